package nostr

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/tidwall/gjson"
)

var json = jsoniter.ConfigFastest

// okAckWindow is how long Publish waits for the relay's "OK" before
// giving up on the acknowledgment. Relays vary in strictness, so a
// missing OK is logged, never fatal.
const okAckWindow = 2 * time.Second

// Relay is a single short-lived websocket session with a relay. Each
// logical call opens its own session and closes it when done; there is no
// connection pool.
type Relay struct {
	URL string

	conn          *websocket.Conn
	ctx           context.Context
	cancel        context.CancelFunc
	writeMutex    sync.Mutex
	subscriptions *xsync.MapOf[string, *Subscription]
	okCallbacks   *xsync.MapOf[string, func(ok bool, reason string)]
	closeOnce     sync.Once
}

// RelayConnect opens a websocket to the relay url and starts the message
// dispatch loop. If ctx carries no deadline a 7 second one is applied to
// the dial only; once connected, call Close to end the session.
func RelayConnect(ctx context.Context, url string) (*Relay, error) {
	normalized := NormalizeURL(url)
	if normalized == "" {
		return nil, fmt.Errorf("invalid relay URL '%s'", url)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 7*time.Second)
		defer cancel()
	}

	conn, _, err := websocket.Dial(ctx, normalized, nil)
	if err != nil {
		return nil, fmt.Errorf("error opening websocket to '%s': %w", normalized, err)
	}
	conn.SetReadLimit(1 << 20)

	r := &Relay{
		URL:           normalized,
		conn:          conn,
		subscriptions: xsync.NewMapOf[string, *Subscription](),
		okCallbacks:   xsync.NewMapOf[string, func(bool, string)](),
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())

	go r.readLoop()

	return r, nil
}

func (r *Relay) String() string { return r.URL }

func (r *Relay) readLoop() {
	for {
		_, message, err := r.conn.Read(r.ctx)
		if err != nil {
			r.Close()
			return
		}
		r.dispatch(message)
	}
}

// dispatch routes one relay frame. Unparsable or unrelated frames are
// dropped; a noisy relay must never break a pending call.
func (r *Relay) dispatch(message []byte) {
	parsed := gjson.ParseBytes(message)
	if !parsed.IsArray() {
		return
	}
	arr := parsed.Array()
	if len(arr) < 2 {
		return
	}

	switch arr[0].Str {
	case "EVENT":
		if len(arr) < 3 {
			return
		}
		sub, ok := r.subscriptions.Load(arr[1].Str)
		if !ok {
			return
		}
		var evt Event
		if err := json.UnmarshalFromString(arr[2].Raw, &evt); err != nil {
			DebugLogger.Printf("%s sent an unparsable event: %v", r.URL, err)
			return
		}
		if ok, err := evt.CheckSignature(); !ok {
			InfoLogger.Printf("bad signature on event %s from %s: %v", evt.ID, r.URL, err)
			return
		}
		if !sub.Filter.Matches(&evt) {
			return
		}
		sub.deliver(evt)
	case "EOSE":
		if sub, ok := r.subscriptions.Load(arr[1].Str); ok {
			sub.emitEose.Do(func() {
				close(sub.EndOfStoredEvents)
			})
		}
	case "OK":
		if len(arr) < 3 {
			return
		}
		reason := ""
		if len(arr) >= 4 {
			reason = arr[3].Str
		}
		if cb, ok := r.okCallbacks.Load(arr[1].Str); ok {
			cb(arr[2].Bool(), reason)
		}
	case "NOTICE":
		InfoLogger.Printf("notice from %s: %s", r.URL, arr[1].Str)
	}
}

func (r *Relay) write(ctx context.Context, data []byte) error {
	r.writeMutex.Lock()
	defer r.writeMutex.Unlock()
	return r.conn.Write(ctx, websocket.MessageText, data)
}

// Publish sends ["EVENT", event] and waits up to okAckWindow for the
// relay's acknowledgment. A write failure is an error; a missing or
// negative OK is only logged, since the caller will learn the real
// outcome from the response subscription anyway.
func (r *Relay) Publish(ctx context.Context, evt Event) error {
	msg, err := json.Marshal([]any{"EVENT", evt})
	if err != nil {
		return err
	}

	acked := make(chan bool, 1)
	r.okCallbacks.Store(evt.ID, func(ok bool, reason string) {
		if !ok {
			InfoLogger.Printf("%s rejected event %s: %s", r.URL, evt.ID, reason)
		}
		select {
		case acked <- ok:
		default:
		}
	})
	defer r.okCallbacks.Delete(evt.ID)

	if err := r.write(ctx, msg); err != nil {
		return fmt.Errorf("error publishing to '%s': %w", r.URL, err)
	}

	select {
	case <-acked:
	case <-time.After(okAckWindow):
		DebugLogger.Printf("%s did not acknowledge event %s", r.URL, evt.ID)
	case <-ctx.Done():
	}
	return nil
}

// Subscribe sends ["REQ", id, filter] and returns a live subscription.
// Callers must Unsub on every exit path so the relay-side subscription is
// closed before the socket goes away.
func (r *Relay) Subscribe(ctx context.Context, filter Filter) (*Subscription, error) {
	random := make([]byte, 8)
	rand.Read(random)

	sub := &Subscription{
		ID:                hex.EncodeToString(random),
		relay:             r,
		Filter:            filter,
		Events:            make(chan Event, 16),
		EndOfStoredEvents: make(chan struct{}),
		live:              true,
	}
	r.subscriptions.Store(sub.ID, sub)

	msg, err := json.Marshal([]any{"REQ", sub.ID, filter})
	if err != nil {
		r.subscriptions.Delete(sub.ID)
		return nil, err
	}
	if err := r.write(ctx, msg); err != nil {
		r.subscriptions.Delete(sub.ID)
		return nil, fmt.Errorf("error subscribing on '%s': %w", r.URL, err)
	}

	return sub, nil
}

// QuerySync collects stored events matching the filter until the relay
// signals EOSE or ctx expires, then closes the subscription.
func (r *Relay) QuerySync(ctx context.Context, filter Filter) ([]Event, error) {
	sub, err := r.Subscribe(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer sub.Unsub()

	var events []Event
	for {
		select {
		case evt, ok := <-sub.Events:
			if !ok {
				return events, nil
			}
			events = append(events, evt)
			if filter.Limit > 0 && len(events) >= filter.Limit {
				return events, nil
			}
		case <-sub.EndOfStoredEvents:
			// dispatch is sequential, so everything the relay sent before
			// EOSE is already buffered; drain it before returning
			for {
				select {
				case evt, ok := <-sub.Events:
					if !ok {
						return events, nil
					}
					events = append(events, evt)
					if filter.Limit > 0 && len(events) >= filter.Limit {
						return events, nil
					}
				default:
					return events, nil
				}
			}
		case <-ctx.Done():
			return events, nil
		}
	}
}

// Close tears the session down: every live subscription gets a CLOSE, the
// dispatch loop stops, the socket closes. Safe to call more than once.
func (r *Relay) Close() error {
	r.closeOnce.Do(func() {
		r.subscriptions.Range(func(_ string, sub *Subscription) bool {
			sub.Unsub()
			return true
		})
		r.cancel()
		r.conn.Close(websocket.StatusNormalClosure, "")
	})
	return nil
}
