package nwc

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidConnectionString marks a malformed pairing string. No
	// retry will help; the caller's input is wrong.
	ErrInvalidConnectionString = errors.New("invalid connection string")

	// ErrInvalidDestination marks a keysend destination that is not a
	// valid compressed node pubkey.
	ErrInvalidDestination = errors.New("invalid keysend destination")

	// ErrTimeout means no matching response arrived before the deadline.
	// The outcome of the underlying operation is unknown, not failed:
	// the wallet may still process and settle a published request.
	// Reconcile payment calls via LookupInvoice instead of retrying.
	ErrTimeout = errors.New("timed out waiting for wallet response")

	// ErrRelay marks transport failures: relay unreachable or the socket
	// closed before any response.
	ErrRelay = errors.New("relay failure")
)

// WalletError is an error the wallet itself reported inside a decrypted
// response. It is surfaced verbatim, never swallowed.
type WalletError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (err *WalletError) Error() string {
	return fmt.Sprintf("wallet error %s: %s", err.Code, err.Message)
}

// KeysendError aggregates the per-candidate failures of a keysend whose
// destination-format candidates were all rejected. Callers need the
// detail to tell "node unreachable" apart from "wallet rejected format".
type KeysendError struct {
	Attempts []string
}

func (err *KeysendError) Error() string {
	return "all keysend destination formats failed: " + strings.Join(err.Attempts, "; ")
}
