package boost

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigFastest

// MetaBoost is the JSON body a metaBoost webhook accepts. Amount,
// ValueMsat and ValueMsatTotal are mutually derivable; Normalize fills
// whichever are missing. PaymentProof is the preimage of the settled
// payment and is mandatory.
type MetaBoost struct {
	Amount         int64  `json:"amount,omitempty"` // sats
	ValueMsat      int64  `json:"value_msat,omitempty"`
	ValueMsatTotal int64  `json:"value_msat_total,omitempty"`
	PaymentProof   string `json:"paymentProof"`

	Podcast     string       `json:"podcast,omitempty"`
	Episode     string       `json:"episode,omitempty"`
	FeedURL     string       `json:"feedUrl,omitempty"`
	EpisodeGUID string       `json:"episodeGuid,omitempty"`
	BoostID     string       `json:"boostId,omitempty"`
	Action      string       `json:"action,omitempty"` // defaults to "boost" server-side
	Message     string       `json:"message,omitempty"`
	SenderName  string       `json:"senderName,omitempty"`
	AppName     string       `json:"appName,omitempty"`
	Timestamp   int64        `json:"ts,omitempty"`
	Recipients  []Allocation `json:"recipients,omitempty"`
}

// Normalize derives the missing amount fields from whichever one is set,
// the same way the receiving endpoint does, and rejects reports with no
// amount or no payment proof.
func (b *MetaBoost) Normalize() error {
	if b.PaymentProof == "" {
		return errors.New("metaboost: missing payment proof")
	}
	if b.Amount == 0 && b.ValueMsat == 0 && b.ValueMsatTotal == 0 {
		return errors.New("metaboost: missing amount, value_msat or value_msat_total")
	}

	if b.Amount == 0 {
		if b.ValueMsat != 0 {
			b.Amount = ToSats(b.ValueMsat)
		} else {
			b.Amount = ToSats(b.ValueMsatTotal)
		}
	}
	if b.ValueMsat == 0 {
		b.ValueMsat = ToMsat(b.Amount)
	}
	if b.ValueMsatTotal == 0 {
		b.ValueMsatTotal = b.ValueMsat
	}
	return nil
}

// Reporter posts metaBoost reports to a feed's webhook.
type Reporter struct {
	// HTTPClient defaults to a client with a 10 second timeout.
	HTTPClient *http.Client
}

func (r *Reporter) client() *http.Client {
	if r.HTTPClient != nil {
		return r.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

// Send normalizes the report and posts it as JSON. Any non-2xx status is
// an error; the webhook is the feed owner's bookkeeping, so failures
// should be surfaced and retried by the caller, not dropped.
func (r *Reporter) Send(ctx context.Context, webhookURL string, b *MetaBoost) error {
	if err := b.Normalize(); err != nil {
		return err
	}

	body, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("metaboost: marshaling report: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("metaboost: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := r.client().Do(req)
	if err != nil {
		return fmt.Errorf("metaboost: posting to %s: %w", webhookURL, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("metaboost: webhook %s returned status %d", webhookURL, res.StatusCode)
	}
	return nil
}
