package nwc

import (
	"context"
	"fmt"
	"strings"

	"github.com/podpay/nwcpay/nostr"
)

// All amounts below are in millisatoshis on the wire, as NIP-47 demands.
// Sat-denominated callers convert at the boundary (see package boost).

type GetInfoResult struct {
	Alias       string   `json:"alias"`
	Color       string   `json:"color"`
	Pubkey      string   `json:"pubkey"`
	Network     string   `json:"network"`
	BlockHeight uint     `json:"block_height"`
	BlockHash   string   `json:"block_hash"`
	Methods     []string `json:"methods"`
}

type GetBalanceResult struct {
	Balance uint64 `json:"balance"`
}

type MakeInvoiceParams struct {
	Amount          uint64  `json:"amount"`
	Description     string  `json:"description,omitempty"`
	DescriptionHash string  `json:"description_hash,omitempty"`
	Expiry          *uint32 `json:"expiry,omitempty"`
}

type MakeHodlInvoiceParams struct {
	Amount          uint64  `json:"amount"`
	PaymentHash     string  `json:"payment_hash,omitempty"`
	Expiry          *uint32 `json:"expiry,omitempty"`
	Description     string  `json:"description,omitempty"`
	DescriptionHash string  `json:"desc_hash,omitempty"`
}

type PayInvoiceParams struct {
	Invoice string  `json:"invoice"`
	Amount  *uint64 `json:"amount,omitempty"`
}

type PayInvoiceResult struct {
	Preimage string `json:"preimage"`
	FeesPaid uint64 `json:"fees_paid"`
}

type LookupInvoiceParams struct {
	PaymentHash string `json:"payment_hash,omitempty"`
	// wallets disagree on the field name, so LookupInvoice fills both
	Invoice string `json:"invoice,omitempty"`
	Bolt11  string `json:"bolt11,omitempty"`
}

type ListTransactionsParams struct {
	From   uint64 `json:"from,omitempty"`
	Until  uint64 `json:"until,omitempty"`
	Limit  uint16 `json:"limit,omitempty"`
	Offset uint32 `json:"offset,omitempty"`
	Unpaid bool   `json:"unpaid,omitempty"`
	Type   string `json:"type,omitempty"`
}

type Transaction struct {
	Type            string  `json:"type"`
	State           string  `json:"state"`
	Invoice         string  `json:"invoice"`
	Description     string  `json:"description"`
	DescriptionHash string  `json:"description_hash"`
	Preimage        string  `json:"preimage"`
	PaymentHash     string  `json:"payment_hash"`
	Amount          uint64  `json:"amount"`
	FeesPaid        uint64  `json:"fees_paid"`
	CreatedAt       uint64  `json:"created_at"`
	ExpiresAt       uint64  `json:"expires_at"`
	SettledAt       *uint64 `json:"settled_at"`
}

type MakeInvoiceResult = Transaction
type LookupInvoiceResult = Transaction

type ListTransactionsResult struct {
	Transactions []Transaction `json:"transactions"`
	TotalCount   uint32        `json:"total_count"`
}

func (c *Client) GetInfo(ctx context.Context) (*GetInfoResult, error) {
	var result GetInfoResult
	if err := c.call(ctx, "get_info", nil, c.QueryTimeout, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) GetBalance(ctx context.Context) (*GetBalanceResult, error) {
	var result GetBalanceResult
	if err := c.call(ctx, "get_balance", nil, c.QueryTimeout, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) MakeInvoice(ctx context.Context, params *MakeInvoiceParams) (*MakeInvoiceResult, error) {
	var result MakeInvoiceResult
	if err := c.call(ctx, "make_invoice", params, c.QueryTimeout, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) MakeHodlInvoice(ctx context.Context, params *MakeHodlInvoiceParams) (*MakeInvoiceResult, error) {
	var result MakeInvoiceResult
	if err := c.call(ctx, "make_hodl_invoice", params, c.QueryTimeout, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) SettleHodlInvoice(ctx context.Context, preimage string) error {
	return c.call(ctx, "settle_hodl_invoice", map[string]string{"preimage": preimage}, c.QueryTimeout, nil)
}

func (c *Client) CancelHodlInvoice(ctx context.Context, paymentHash string) error {
	return c.call(ctx, "cancel_hodl_invoice", map[string]string{"payment_hash": paymentHash}, c.QueryTimeout, nil)
}

// PayInvoice pays a bolt11 invoice. This uses the long payment timeout:
// the wallet may need a while to find a route. On ErrTimeout the payment
// state is unknown; reconcile with DidPaymentSucceed before retrying.
func (c *Client) PayInvoice(ctx context.Context, params *PayInvoiceParams) (*PayInvoiceResult, error) {
	var result PayInvoiceResult
	if err := c.call(ctx, "pay_invoice", params, c.PayTimeout, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// LookupInvoice checks an invoice by its bolt11 string, sending it under
// both field names wallets use.
func (c *Client) LookupInvoice(ctx context.Context, invoice string) (*LookupInvoiceResult, error) {
	params := LookupInvoiceParams{Invoice: invoice, Bolt11: invoice}
	var result LookupInvoiceResult
	if err := c.call(ctx, "lookup_invoice", &params, c.QueryTimeout, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// LookupInvoiceByHash checks an invoice by payment hash.
func (c *Client) LookupInvoiceByHash(ctx context.Context, paymentHash string) (*LookupInvoiceResult, error) {
	params := LookupInvoiceParams{PaymentHash: paymentHash}
	var result LookupInvoiceResult
	if err := c.call(ctx, "lookup_invoice", &params, c.QueryTimeout, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) ListTransactions(ctx context.Context, params *ListTransactionsParams) (*ListTransactionsResult, error) {
	var result ListTransactionsResult
	if err := c.call(ctx, "list_transactions", params, c.QueryTimeout, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DidPaymentSucceed looks an invoice up and returns its preimage when the
// wallet reports it settled. This is the reconciliation path after a
// timed-out payment call, and the preimage is the payment proof a
// metaBoost report carries.
func (c *Client) DidPaymentSucceed(ctx context.Context, invoice string) (string, error) {
	info, err := c.LookupInvoice(ctx, invoice)
	if err != nil {
		return "", err
	}
	if info.Preimage == "" {
		return "", nil
	}
	return info.Preimage, nil
}

// WalletServiceInfo describes the wallet service's advertised
// capabilities from its replaceable kind-13194 info event.
type WalletServiceInfo struct {
	Capabilities      []string
	NotificationTypes []string
}

func (c *Client) GetWalletServiceInfo(ctx context.Context) (*WalletServiceInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.QueryTimeout)
	defer cancel()

	relay, err := nostr.RelayConnect(ctx, c.info.RelayURL)
	if err != nil {
		return nil, fmt.Errorf("get_wallet_service_info: %w: %s", ErrRelay, err)
	}
	defer relay.Close()

	events, err := relay.QuerySync(ctx, nostr.Filter{
		Kinds:   []int{nostr.KindNWCWalletInfo},
		Authors: []string{c.info.WalletPubkey},
		Limit:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("get_wallet_service_info: %w: %s", ErrRelay, err)
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("get_wallet_service_info: %w", ErrTimeout)
	}

	info := &WalletServiceInfo{
		Capabilities: strings.Fields(events[0].Content),
	}
	if tag := events[0].Tags.Find("notifications"); tag != nil {
		info.NotificationTypes = strings.Fields(tag.Value())
	}
	return info, nil
}
