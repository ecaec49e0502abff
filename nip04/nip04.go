// Package nip04 implements the NIP-04 encrypted channel used by Nostr
// Wallet Connect: an ECDH shared secret between the two parties keys an
// AES-256-CBC cipher, and ciphertexts travel as
// base64(ciphertext) + "?iv=" + base64(iv).
package nip04

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
)

// ComputeSharedSecret returns the raw x coordinate of the ECDH point
// between sk and pub. The peer key is a 32-byte x-only hex key; it is
// interpreted with the even-parity "02" prefix, matching every NWC
// implementation in the wild.
func ComputeSharedSecret(pub string, sk string) ([]byte, error) {
	privKeyBytes, err := hex.DecodeString(sk)
	if err != nil {
		return nil, fmt.Errorf("error decoding sender private key: %w", err)
	}
	privKey, _ := btcec.PrivKeyFromBytes(privKeyBytes)

	pubKeyBytes, err := hex.DecodeString("02" + pub)
	if err != nil {
		return nil, fmt.Errorf("error decoding hex string of receiver public key '%s': %w", "02"+pub, err)
	}
	pubKey, err := btcec.ParsePubKey(pubKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("error parsing receiver public key '%s': %w", "02"+pub, err)
	}

	return btcec.GenerateSharedSecret(privKey, pubKey), nil
}

// Encrypt encrypts message with the shared key. A fresh random IV is
// generated on every call; reusing an IV under CBC leaks plaintext
// relationships, so there is deliberately no way to supply one.
func Encrypt(message string, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("error creating block cipher: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("error creating initialization vector: %w", err)
	}

	// PKCS#7
	pad := aes.BlockSize - len(message)%aes.BlockSize
	padded := make([]byte, len(message)+pad)
	copy(padded, message)
	for i := len(message); i < len(padded); i++ {
		padded[i] = byte(pad)
	}

	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return base64.StdEncoding.EncodeToString(ciphertext) +
		"?iv=" +
		base64.StdEncoding.EncodeToString(iv), nil
}

// Decrypt reverses Encrypt. Any malformed envelope, wrong IV size,
// misaligned ciphertext or invalid padding fails with an error.
func Decrypt(content string, key []byte) (string, error) {
	parts := strings.Split(content, "?iv=")
	if len(parts) < 2 {
		return "", fmt.Errorf("error parsing encrypted message: no initialization vector")
	}

	ciphertext, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("error decoding ciphertext from base64: %w", err)
	}
	iv, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("error decoding iv from base64: %w", err)
	}
	if len(iv) != aes.BlockSize {
		return "", fmt.Errorf("invalid iv size %d, want %d", len(iv), aes.BlockSize)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("error creating block cipher: %w", err)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", fmt.Errorf("ciphertext length %d is not a multiple of the block size", len(ciphertext))
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	pad := int(plaintext[len(plaintext)-1])
	if pad == 0 || pad > aes.BlockSize || pad > len(plaintext) {
		return "", fmt.Errorf("invalid padding amount: %d", pad)
	}
	for _, b := range plaintext[len(plaintext)-pad:] {
		if int(b) != pad {
			return "", fmt.Errorf("invalid padding")
		}
	}

	return string(plaintext[:len(plaintext)-pad]), nil
}
