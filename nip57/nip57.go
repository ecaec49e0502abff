// Package nip57 resolves Lightning addresses to LNURL-pay endpoints,
// requests zap invoices, and checks zap receipts (kind 9735) as
// auxiliary payment confirmation.
package nip57

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/fiatjaf/go-lnurl"
	decodepay "github.com/fiatjaf/ln-decodepay"
	jsoniter "github.com/json-iterator/go"

	"github.com/podpay/nwcpay/nostr"
)

var json = jsoniter.ConfigFastest

// httpClient is swappable so tests can point well-known lookups at a
// local server.
var httpClient = http.DefaultClient

var (
	// ErrAmountOutOfRange means the requested amount falls outside the
	// endpoint's [minSendable, maxSendable] window. Checked before any
	// call to the callback.
	ErrAmountOutOfRange = errors.New("amount outside the endpoint's sendable range")

	// ErrAmountMismatch means the endpoint returned an invoice for a
	// different amount than requested.
	ErrAmountMismatch = errors.New("invoice amount differs from requested amount")
)

// PayEndpoint is the LNURL-pay descriptor served at
// https://<domain>/.well-known/lnurlp/<user>. Min/MaxSendable are in
// millisatoshis.
type PayEndpoint struct {
	Callback       string `json:"callback"`
	MinSendable    int64  `json:"minSendable"`
	MaxSendable    int64  `json:"maxSendable"`
	Metadata       string `json:"metadata"`
	Tag            string `json:"tag"`
	AllowsNostr    bool   `json:"allowsNostr"`
	NostrPubkey    string `json:"nostrPubkey"`
	CommentAllowed int    `json:"commentAllowed"`

	// URL is the well-known url this descriptor was fetched from; its
	// bech32 lnurl form goes into zap request tags.
	URL string `json:"-"`
}

type payResponse struct {
	PR     string `json:"pr"`
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// ResolveLightningAddress fetches the LNURL-pay endpoint behind a
// user@domain Lightning address.
func ResolveLightningAddress(ctx context.Context, address string) (*PayEndpoint, error) {
	spl := strings.Split(address, "@")
	if len(spl) != 2 || spl[0] == "" || spl[1] == "" {
		return nil, fmt.Errorf("'%s' is not a valid lightning address", address)
	}
	user, domain := spl[0], spl[1]
	if !strings.Contains(domain, ".") {
		return nil, fmt.Errorf("'%s' is not a valid lightning address: hostname has no dot", address)
	}

	wellKnown := fmt.Sprintf("https://%s/.well-known/lnurlp/%s", domain, user)
	req, err := http.NewRequestWithContext(ctx, "GET", wellKnown, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	res, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lnurlp request failed: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		return nil, fmt.Errorf("lnurlp request to %s returned status %d", wellKnown, res.StatusCode)
	}

	endpoint := PayEndpoint{URL: wellKnown}
	if err := json.NewDecoder(res.Body).Decode(&endpoint); err != nil {
		return nil, fmt.Errorf("failed to decode lnurlp response: %w", err)
	}
	if endpoint.Callback == "" {
		return nil, fmt.Errorf("lnurlp response from %s has no callback", wellKnown)
	}
	return &endpoint, nil
}

// RequestZapInvoice builds a kind-9734 zap request under a fresh
// ephemeral key, submits it to the endpoint's callback, and returns the
// bolt11 invoice plus the checking id used to find the zap receipt
// later. The checking id is the ephemeral pubkey, which the request
// e-tags and the receipt echoes.
func RequestZapInvoice(ctx context.Context, endpoint *PayEndpoint, amountSats int64, relays []string) (invoice string, checkingID string, err error) {
	msat := amountSats * 1000
	if msat < endpoint.MinSendable || (endpoint.MaxSendable > 0 && msat > endpoint.MaxSendable) {
		return "", "", fmt.Errorf("%w: %d msat not in [%d, %d]",
			ErrAmountOutOfRange, msat, endpoint.MinSendable, endpoint.MaxSendable)
	}

	encodedLnurl, err := lnurl.LNURLEncode(endpoint.URL)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode lnurl: %w", err)
	}

	sk := nostr.GeneratePrivateKey()
	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		return "", "", err
	}

	zapRequest := nostr.Event{
		Kind:      nostr.KindZapRequest,
		CreatedAt: nostr.Now(),
		Content:   "",
		Tags: nostr.Tags{
			append(nostr.Tag{"relays"}, relays...),
			{"amount", strconv.FormatInt(msat, 10)},
			{"p", endpoint.NostrPubkey},
			{"e", pk},
			{"lnurl", encodedLnurl},
		},
	}
	if err := zapRequest.Sign(sk); err != nil {
		return "", "", fmt.Errorf("failed to sign zap request: %w", err)
	}

	encoded, err := json.MarshalToString(zapRequest)
	if err != nil {
		return "", "", err
	}

	sep := "?"
	if strings.Contains(endpoint.Callback, "?") {
		sep = "&"
	}
	callback := endpoint.Callback + sep +
		"amount=" + strconv.FormatInt(msat, 10) +
		"&nostr=" + url.QueryEscape(encoded) +
		"&lnurl=" + encodedLnurl

	req, err := http.NewRequestWithContext(ctx, "GET", callback, nil)
	if err != nil {
		return "", "", fmt.Errorf("failed to create callback request: %w", err)
	}
	res, err := httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("callback request failed: %w", err)
	}
	defer res.Body.Close()

	var payRes payResponse
	if err := json.NewDecoder(res.Body).Decode(&payRes); err != nil {
		return "", "", fmt.Errorf("failed to decode callback response: %w", err)
	}
	if payRes.Status == "ERROR" {
		return "", "", fmt.Errorf("lnurl callback error: %s", payRes.Reason)
	}
	if payRes.PR == "" {
		return "", "", fmt.Errorf("lnurl callback returned no invoice")
	}

	// sanity-decode the invoice; some services emit nonstandard ones, so
	// an undecodable invoice passes through, but a decodable one with
	// the wrong amount is rejected
	if bolt11, err := decodepay.Decodepay(payRes.PR); err != nil {
		nostr.DebugLogger.Printf("could not decode invoice from %s: %v", endpoint.Callback, err)
	} else if bolt11.MSatoshi != msat {
		return "", "", fmt.Errorf("%w: invoice is for %d msat, requested %d", ErrAmountMismatch, bolt11.MSatoshi, msat)
	}

	return payRes.PR, pk, nil
}

// CheckZapReceipt looks for a kind-9735 receipt e-tagged with checkingID
// whose bolt11 tag matches the invoice. It returns the receipt event
// when settled and (nil, nil) while pending — absence and mismatch are
// both "pending", never failures, because the payment may well have
// settled without a receipt. The wallet's own pay/lookup result is
// authoritative; this is auxiliary confirmation only.
func CheckZapReceipt(ctx context.Context, relays []string, invoice string, checkingID string) (*nostr.Event, error) {
	if len(relays) == 0 {
		return nil, errors.New("no relays to check for a zap receipt")
	}

	for _, relayURL := range relays {
		relay, err := nostr.RelayConnect(ctx, relayURL)
		if err != nil {
			nostr.DebugLogger.Printf("zap receipt check: %v", err)
			continue
		}

		events, err := relay.QuerySync(ctx, nostr.Filter{
			Kinds: []int{nostr.KindZap},
			TagE:  []string{checkingID},
			Limit: 1,
		})
		relay.Close()
		if err != nil {
			continue
		}

		for _, receipt := range events {
			if tag := receipt.Tags.Find("bolt11"); tag != nil && tag.Value() == invoice {
				return &receipt, nil
			}
		}
	}

	return nil, nil
}
