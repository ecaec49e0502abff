package boost

import (
	"context"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestSatMsatConversion(t *testing.T) {
	assert.Equal(t, int64(1000), ToMsat(1))
	assert.Equal(t, int64(0), ToMsat(0))
	assert.Equal(t, int64(21_000_000), ToMsat(21_000))

	assert.Equal(t, int64(1), ToSats(1000))
	assert.Equal(t, int64(1), ToSats(1999), "partial sats are floored")
	assert.Equal(t, int64(0), ToSats(999))
	assert.Equal(t, int64(0), ToSats(-5000))
}

func TestAllocateSumsExactly(t *testing.T) {
	recipients := []Recipient{
		{Name: "host", Split: 30},
		{Name: "cohost1", Split: 15},
		{Name: "cohost2", Split: 15},
		{Name: "cohost3", Split: 15},
		{Name: "cohost4", Split: 15},
		{Name: "producer", Split: 5},
		{Name: "app", Split: 5},
	}

	allocations := Allocate(1000, recipients)
	require.Len(t, allocations, 7)

	var total int64
	for _, a := range allocations {
		total += a.AmountSats
	}
	assert.Equal(t, int64(1000), total, "floor division remainder goes to the first recipient")
	assert.Equal(t, int64(300), allocations[0].AmountSats)
	assert.Equal(t, int64(50), allocations[5].AmountSats)
}

func TestAllocateRemainderGoesFirst(t *testing.T) {
	recipients := []Recipient{
		{Name: "a", Split: 1},
		{Name: "b", Split: 1},
		{Name: "c", Split: 1},
	}

	allocations := Allocate(100, recipients)
	require.Len(t, allocations, 3)
	assert.Equal(t, int64(34), allocations[0].AmountSats)
	assert.Equal(t, int64(33), allocations[1].AmountSats)
	assert.Equal(t, int64(33), allocations[2].AmountSats)
}

func TestAllocateNoSplitsSharesEqually(t *testing.T) {
	recipients := []Recipient{{Name: "a"}, {Name: "b"}}

	allocations := Allocate(101, recipients)
	require.Len(t, allocations, 2)
	assert.Equal(t, int64(51), allocations[0].AmountSats)
	assert.Equal(t, int64(50), allocations[1].AmountSats)
}

func TestAllocateDegenerateInputs(t *testing.T) {
	assert.Nil(t, Allocate(1000, nil))
	assert.Nil(t, Allocate(0, []Recipient{{Name: "a", Split: 1}}))
	assert.Nil(t, Allocate(-5, []Recipient{{Name: "a", Split: 1}}))
}

func TestMetadataTLVValue(t *testing.T) {
	meta := Metadata{
		Podcast:    "Go Time",
		Episode:    "300",
		Action:     "boost",
		Timestamp:  1234,
		AppName:    "nwcpay",
		SenderName: "satoshi",
		Message:    "great episode!",
	}

	value, err := meta.TLVValue()
	require.NoError(t, err)

	raw, err := hex.DecodeString(value)
	require.NoError(t, err)
	parsed := gjson.ParseBytes(raw)
	assert.Equal(t, "Go Time", parsed.Get("podcast").Str)
	assert.Equal(t, "boost", parsed.Get("action").Str)
	assert.Equal(t, int64(1234), parsed.Get("ts").Int())
	assert.Equal(t, "great episode!", parsed.Get("message").Str)
	assert.False(t, parsed.Get("value_msat_total").Exists(), "zero fields stay off the wire")
}

func TestMetaBoostNormalize(t *testing.T) {
	b := &MetaBoost{Amount: 50, PaymentProof: "00ff"}
	require.NoError(t, b.Normalize())
	assert.Equal(t, int64(50), b.Amount)
	assert.Equal(t, int64(50_000), b.ValueMsat)
	assert.Equal(t, int64(50_000), b.ValueMsatTotal)

	b = &MetaBoost{ValueMsat: 21_000, PaymentProof: "00ff"}
	require.NoError(t, b.Normalize())
	assert.Equal(t, int64(21), b.Amount)
	assert.Equal(t, int64(21_000), b.ValueMsatTotal)

	b = &MetaBoost{ValueMsatTotal: 100_000, PaymentProof: "00ff"}
	require.NoError(t, b.Normalize())
	assert.Equal(t, int64(100), b.Amount)
	assert.Equal(t, int64(100_000), b.ValueMsat)
}

func TestMetaBoostNormalizeRejectsIncomplete(t *testing.T) {
	assert.Error(t, (&MetaBoost{Amount: 50}).Normalize(), "payment proof is mandatory")
	assert.Error(t, (&MetaBoost{PaymentProof: "00ff"}).Normalize(), "some amount is mandatory")
}

func TestReporterSend(t *testing.T) {
	var received gjson.Result
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "POST", r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		received = gjson.ParseBytes(body)
	}))
	t.Cleanup(srv.Close)

	reporter := &Reporter{}
	err := reporter.Send(context.Background(), srv.URL, &MetaBoost{
		Amount:       21,
		PaymentProof: "00ff",
		Podcast:      "Go Time",
		Message:      "boost!",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(21), received.Get("amount").Int())
	assert.Equal(t, int64(21_000), received.Get("value_msat").Int(), "missing amount denominations are derived before posting")
	assert.Equal(t, int64(21_000), received.Get("value_msat_total").Int())
	assert.Equal(t, "00ff", received.Get("paymentProof").Str)
	assert.Equal(t, "Go Time", received.Get("podcast").Str)
}

func TestReporterSendSurfacesFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	reporter := &Reporter{}
	err := reporter.Send(context.Background(), srv.URL, &MetaBoost{Amount: 21, PaymentProof: "00ff"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")

	err = reporter.Send(context.Background(), srv.URL, &MetaBoost{Amount: 21})
	require.Error(t, err, "normalization failures never reach the wire")
}
