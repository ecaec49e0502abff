package nwc

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/podpay/nwcpay/nip04"
	"github.com/podpay/nwcpay/nostr"
)

var json = jsoniter.ConfigFastest

type request struct {
	Method string `json:"method"`
	Params any    `json:"params"`
}

type response struct {
	ResultType string              `json:"result_type"`
	Error      *WalletError        `json:"error"`
	Result     jsoniter.RawMessage `json:"result"`
}

// call runs one NWC round trip: encrypt {method,params}, sign it into a
// kind-23194 event, publish it, and wait for the kind-23195 response
// that e-tags the request's event id.
//
// A response that decrypts but fails to parse, or fails to decrypt at
// all, is a protocol error for that single event: it is dropped and the
// wait continues until the deadline, because a public relay may deliver
// noise. Only the deadline aborts the call, and then the outcome of the
// request is unknown, not failed.
func (c *Client) call(ctx context.Context, method string, params any, timeout time.Duration, result any) error {
	if params == nil {
		params = struct{}{}
	}
	payload, err := json.Marshal(request{Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("%s: marshaling params: %w", method, err)
	}

	content, err := nip04.Encrypt(string(payload), c.sharedSecret)
	if err != nil {
		return fmt.Errorf("%s: encrypting request: %w", method, err)
	}

	evt := nostr.Event{
		Kind:      nostr.KindNWCWalletRequest,
		CreatedAt: nostr.Now(),
		Tags:      nostr.Tags{{"p", c.info.WalletPubkey}},
		Content:   content,
	}
	if err := evt.Sign(c.info.ClientSecret); err != nil {
		return fmt.Errorf("%s: signing request event: %w", method, err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	relay, err := nostr.RelayConnect(ctx, c.info.RelayURL)
	if err != nil {
		return fmt.Errorf("%s: %w: %s", method, ErrRelay, err)
	}
	defer relay.Close()

	// the subscription is registered before publishing so a fast wallet
	// cannot answer into the void
	sub, err := relay.Subscribe(ctx, nostr.Filter{
		Kinds: []int{nostr.KindNWCWalletResponse},
		TagE:  []string{evt.ID},
		TagP:  []string{c.info.ClientPubkey},
	})
	if err != nil {
		return fmt.Errorf("%s: %w: %s", method, ErrRelay, err)
	}
	defer sub.Unsub()

	if err := relay.Publish(ctx, evt); err != nil {
		return fmt.Errorf("%s: %w: %s", method, ErrRelay, err)
	}

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", method, ErrTimeout)
		case revt, ok := <-sub.Events:
			if !ok {
				select {
				case <-ctx.Done():
					return fmt.Errorf("%s: %w", method, ErrTimeout)
				default:
					return fmt.Errorf("%s: %w: connection closed before a response arrived", method, ErrRelay)
				}
			}
			// the relay-side filter already scopes this, but a
			// misbehaving relay must not cross-resolve calls
			if revt.Kind != nostr.KindNWCWalletResponse || revt.Tags.FindWithValue("e", evt.ID) == nil {
				continue
			}

			plain, err := nip04.Decrypt(revt.Content, c.sharedSecret)
			if err != nil {
				nostr.DebugLogger.Printf("%s: discarding response %s: %v", method, revt.ID, err)
				continue
			}

			var resp response
			if err := json.UnmarshalFromString(plain, &resp); err != nil {
				nostr.DebugLogger.Printf("%s: discarding unparsable response %s: %v", method, revt.ID, err)
				continue
			}

			if resp.Error != nil {
				return resp.Error
			}
			if result != nil && len(resp.Result) > 0 {
				if err := json.Unmarshal(resp.Result, result); err != nil {
					return fmt.Errorf("%s: unmarshaling result: %w", method, err)
				}
			}
			return nil
		}
	}
}

// RPC executes a custom NWC method with the client's query timeout.
// result may be nil when the caller does not care about the payload.
func (c *Client) RPC(ctx context.Context, method string, params any, result any) error {
	return c.call(ctx, method, params, c.QueryTimeout, result)
}
