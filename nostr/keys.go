package nostr

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

func GeneratePrivateKey() string {
	sk, err := btcec.NewPrivateKey()
	if err != nil {
		// only fails when the system randomness source is broken
		panic(err)
	}
	return hex.EncodeToString(sk.Serialize())
}

// GetPublicKey derives the x-only public key for a hex private key.
func GetPublicKey(sk string) (string, error) {
	b, err := hex.DecodeString(sk)
	if err != nil {
		return "", fmt.Errorf("private key is invalid hex: %w", err)
	}
	if len(b) != 32 {
		return "", fmt.Errorf("private key has %d bytes, want 32", len(b))
	}

	privKey, pubKey := btcec.PrivKeyFromBytes(b)
	if privKey.Key.IsZero() {
		return "", fmt.Errorf("private key scalar is zero")
	}
	return hex.EncodeToString(schnorr.SerializePubKey(pubKey)), nil
}

func IsValid32ByteHex(thing string) bool {
	if strings.ToLower(thing) != thing {
		return false
	}
	if len(thing) != 64 {
		return false
	}
	_, err := hex.DecodeString(thing)
	return err == nil
}
