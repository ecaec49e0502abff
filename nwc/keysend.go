package nwc

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/podpay/nwcpay/nostr"
)

// tlvMessage is the TLV record type carrying a freeform message on a
// keysend payment.
const tlvMessage = 34349334

type TLVRecord struct {
	Type  uint64 `json:"type"`
	Value string `json:"value"` // hex encoded
}

type PayKeysendResult struct {
	Preimage string `json:"preimage"`
	FeesPaid uint64 `json:"fees_paid"`
}

// Wallets disagree on which JSON field names the keysend destination.
// Each candidate wraps the normalized destination in one encoding; they
// are tried in order until the wallet accepts one.
type keysendFormat struct {
	name   string
	params func(dest string) map[string]any
}

func keysendFormats() []keysendFormat {
	return []keysendFormat{
		{"pubkey", func(d string) map[string]any { return map[string]any{"pubkey": d} }},
		{"node_id", func(d string) map[string]any { return map[string]any{"node_id": d} }},
		{"compressed_pubkey", func(d string) map[string]any { return map[string]any{"pubkey": d} }},
		{"destination", func(d string) map[string]any { return map[string]any{"destination": d} }},
		{"raw_hex", func(d string) map[string]any { return map[string]any{"destination": d[2:]} }},
		{"uncompressed_pubkey", func(d string) map[string]any { return map[string]any{"destination": d} }},
	}
}

// lastWorkingKeysendFormat remembers the destination encoding the
// connected wallet last accepted, so later payments try it first. This
// is an optimization hint only: concurrent writers race with
// last-write-wins, and a stale value just costs one extra round trip.
var lastWorkingKeysendFormat atomic.Pointer[string]

// ResetKeysendFormat clears the remembered destination encoding.
func ResetKeysendFormat() {
	lastWorkingKeysendFormat.Store(nil)
}

// NormalizeKeysendDestination trims, lowercases and validates a node
// pubkey, prepending the "02" compression prefix to a bare 32-byte
// x-only key. Anything that is not 66 hex chars afterwards is rejected.
func NormalizeKeysendDestination(destination string) (string, error) {
	d := strings.ToLower(strings.TrimSpace(destination))
	if d == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidDestination)
	}
	if _, err := hex.DecodeString(d); err != nil {
		return "", fmt.Errorf("%w: not a hex string", ErrInvalidDestination)
	}
	switch len(d) {
	case 64:
		d = "02" + d
	case 66:
	default:
		return "", fmt.Errorf("%w: %d hex chars, want 66", ErrInvalidDestination, len(d))
	}
	if d[:2] != "02" && d[:2] != "03" {
		nostr.DebugLogger.Printf("unusual keysend pubkey prefix %s", d[:2])
	}
	return d, nil
}

// PayKeysend pushes amountSats directly to a node pubkey without an
// invoice. Candidate destination encodings are tried strictly one at a
// time: each attempt must resolve (success, wallet error, or its own
// timeout) before the next starts, otherwise the response subscriptions
// would be ambiguous about which attempt a response belongs to.
//
// A wallet error or malformed response advances to the next candidate; a
// timeout aborts the whole trial, because the timed-out attempt may
// still settle and retrying would risk a double payment. When every
// candidate is rejected the per-candidate failures come back aggregated
// in a *KeysendError.
func (c *Client) PayKeysend(ctx context.Context, destination string, amountSats int64, message string) (*PayKeysendResult, error) {
	if amountSats <= 0 {
		return nil, fmt.Errorf("%w: non-positive amount %d", ErrInvalidDestination, amountSats)
	}
	dest, err := NormalizeKeysendDestination(destination)
	if err != nil {
		return nil, err
	}

	formats := keysendFormats()
	if last := lastWorkingKeysendFormat.Load(); last != nil {
		for i, f := range formats {
			if f.name == *last && i > 0 {
				reordered := make([]keysendFormat, 0, len(formats))
				reordered = append(reordered, f)
				reordered = append(reordered, formats[:i]...)
				reordered = append(reordered, formats[i+1:]...)
				formats = reordered
				break
			}
		}
	}

	var attempts []string
	for _, format := range formats {
		params := format.params(dest)
		params["amount"] = amountSats * 1000
		params["message"] = message
		if message != "" {
			params["tlv_records"] = []TLVRecord{{
				Type:  tlvMessage,
				Value: hex.EncodeToString([]byte(message)),
			}}
		}

		var result PayKeysendResult
		err := c.call(ctx, "pay_keysend", params, c.KeysendTimeout, &result)
		if err == nil {
			name := format.name
			lastWorkingKeysendFormat.Store(&name)
			return &result, nil
		}
		if errors.Is(err, ErrTimeout) {
			// unknown outcome; trying the next format now could pay twice
			return nil, fmt.Errorf("format %s: %w", format.name, err)
		}
		nostr.DebugLogger.Printf("pay_keysend format %s failed: %v", format.name, err)
		attempts = append(attempts, fmt.Sprintf("format %s: %v", format.name, err))
	}

	return nil, &KeysendError{Attempts: attempts}
}
