// Package nwc implements the client side of Nostr Wallet Connect
// (NIP-47): it commands a remote Lightning wallet by exchanging
// NIP-04-encrypted, Schnorr-signed events through a relay, correlating
// requests with responses by event id.
package nwc

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/podpay/nwcpay/nip04"
	"github.com/podpay/nwcpay/nostr"
)

const connectionScheme = "nostr+walletconnect://"

// ConnectionInfo is a parsed pairing string. It is immutable once parsed
// and always carries a derived ClientPubkey, so a descriptor that exists
// is usable.
type ConnectionInfo struct {
	RelayURL     string
	WalletPubkey string

	// ClientSecret is owned exclusively by the client and never
	// transmitted.
	ClientSecret string
	ClientPubkey string
}

// ParseConnectionString parses and validates a pairing string of the form
//
//	nostr+walletconnect://<walletPubkeyHex>?relay=<url>&secret=<hex>
//
// The relay url arrives percent-encoded and is decoded and normalized
// before use. The client pubkey is derived immediately so key problems
// fail here rather than at first use.
func ParseConnectionString(uri string) (*ConnectionInfo, error) {
	if !strings.HasPrefix(uri, connectionScheme) {
		return nil, fmt.Errorf("%w: must start with %s", ErrInvalidConnectionString, connectionScheme)
	}

	p, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidConnectionString, err)
	}

	walletPubkey := strings.ToLower(p.Host)
	if !nostr.IsValid32ByteHex(walletPubkey) {
		return nil, fmt.Errorf("%w: wallet pubkey is not 32-byte hex", ErrInvalidConnectionString)
	}

	query := p.Query()

	relay := query.Get("relay")
	if relay == "" {
		return nil, fmt.Errorf("%w: missing relay", ErrInvalidConnectionString)
	}
	relay = nostr.NormalizeURL(relay)
	if relay == "" {
		return nil, fmt.Errorf("%w: unusable relay url", ErrInvalidConnectionString)
	}

	secret := query.Get("secret")
	if secret == "" {
		return nil, fmt.Errorf("%w: missing secret", ErrInvalidConnectionString)
	}
	clientPubkey, err := nostr.GetPublicKey(secret)
	if err != nil {
		return nil, fmt.Errorf("%w: secret is not a valid private key: %s", ErrInvalidConnectionString, err)
	}

	return &ConnectionInfo{
		RelayURL:     relay,
		WalletPubkey: walletPubkey,
		ClientSecret: secret,
		ClientPubkey: clientPubkey,
	}, nil
}

// Client talks to one wallet over one relay. Calls are independent; each
// opens its own short-lived relay session, so a Client is safe for
// concurrent use.
type Client struct {
	info         *ConnectionInfo
	sharedSecret []byte

	// QueryTimeout bounds cheap lookups (get_info, get_balance, ...).
	// PayTimeout bounds pay_invoice, which may need to find a route.
	// KeysendTimeout bounds each individual keysend format attempt.
	QueryTimeout   time.Duration
	PayTimeout     time.Duration
	KeysendTimeout time.Duration
}

// NewClient builds a client from a pairing string.
func NewClient(uri string) (*Client, error) {
	info, err := ParseConnectionString(uri)
	if err != nil {
		return nil, err
	}
	return NewClientFromConnectionInfo(info)
}

func NewClientFromConnectionInfo(info *ConnectionInfo) (*Client, error) {
	sharedSecret, err := nip04.ComputeSharedSecret(info.WalletPubkey, info.ClientSecret)
	if err != nil {
		return nil, fmt.Errorf("computing shared secret: %w", err)
	}
	return &Client{
		info:           info,
		sharedSecret:   sharedSecret,
		QueryTimeout:   3 * time.Second,
		PayTimeout:     30 * time.Second,
		KeysendTimeout: 15 * time.Second,
	}, nil
}

// ConnectionInfo returns the descriptor this client was built from.
func (c *Client) ConnectionInfo() *ConnectionInfo { return c.info }
