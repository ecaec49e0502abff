package nostr

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

type Event struct {
	ID        string    `json:"id"`
	PubKey    string    `json:"pubkey"`
	CreatedAt Timestamp `json:"created_at"`
	Kind      int       `json:"kind"`
	Tags      Tags      `json:"tags"`
	Content   string    `json:"content"`
	Sig       string    `json:"sig"`
}

// GetID serializes the event and returns its id as a hex string.
func (evt *Event) GetID() string {
	h := sha256.Sum256(evt.Serialize())
	return hex.EncodeToString(h[:])
}

// Serialize outputs the canonical byte form that is hashed to produce the
// event id: the JSON array [0,pubkey,created_at,kind,tags,content] per
// NIP-01. Field order and the array shape are part of the contract, so
// this is built by hand instead of going through a generic encoder.
func (evt *Event) Serialize() []byte {
	dst := make([]byte, 0, 100+len(evt.Content)+len(evt.Tags)*40)

	dst = append(dst, fmt.Sprintf("[0,\"%s\",%d,%d,", evt.PubKey, evt.CreatedAt, evt.Kind)...)
	dst = evt.Tags.marshalTo(dst)
	dst = append(dst, ',')
	dst = escapeString(dst, evt.Content)
	dst = append(dst, ']')

	return dst
}

// CheckSignature recomputes the id and verifies the Schnorr signature
// against the event's pubkey. An inbound event must pass this before its
// content is trusted.
func (evt Event) CheckSignature() (bool, error) {
	pk, err := hex.DecodeString(evt.PubKey)
	if err != nil {
		return false, fmt.Errorf("event pubkey '%s' is invalid hex: %w", evt.PubKey, err)
	}
	pubkey, err := schnorr.ParsePubKey(pk)
	if err != nil {
		return false, fmt.Errorf("event has invalid pubkey '%s': %w", evt.PubKey, err)
	}

	s, err := hex.DecodeString(evt.Sig)
	if err != nil {
		return false, fmt.Errorf("signature '%s' is invalid hex: %w", evt.Sig, err)
	}
	sig, err := schnorr.ParseSignature(s)
	if err != nil {
		return false, fmt.Errorf("failed to parse signature: %w", err)
	}

	hash := sha256.Sum256(evt.Serialize())
	if evt.ID != hex.EncodeToString(hash[:]) {
		return false, nil
	}
	return sig.Verify(hash[:], pubkey), nil
}

// Sign computes the event id and signs it with the given hex private key,
// filling in ID, PubKey and Sig.
func (evt *Event) Sign(privateKey string) error {
	s, err := hex.DecodeString(privateKey)
	if err != nil {
		return fmt.Errorf("Sign called with invalid private key: %w", err)
	}
	if len(s) != 32 {
		return fmt.Errorf("Sign called with private key of %d bytes, want 32", len(s))
	}
	sk, pk := btcec.PrivKeyFromBytes(s)

	if evt.Tags == nil {
		evt.Tags = make(Tags, 0)
	}
	evt.PubKey = hex.EncodeToString(schnorr.SerializePubKey(pk))

	h := sha256.Sum256(evt.Serialize())
	sig, err := schnorr.Sign(sk, h[:])
	if err != nil {
		return err
	}

	evt.ID = hex.EncodeToString(h[:])
	evt.Sig = hex.EncodeToString(sig.Serialize())
	return nil
}
