package nostr

import (
	"context"
	"sync"
	"time"
)

type Subscription struct {
	ID     string
	Filter Filter

	// Events carries verified, filter-matched events. It is closed by
	// Unsub.
	Events chan Event

	// EndOfStoredEvents is closed when the relay sends EOSE.
	EndOfStoredEvents chan struct{}

	relay    *Relay
	emitEose sync.Once
	mutex    sync.Mutex
	live     bool
}

func (sub *Subscription) deliver(evt Event) {
	sub.mutex.Lock()
	defer sub.mutex.Unlock()
	if !sub.live {
		return
	}
	select {
	case sub.Events <- evt:
	default:
		DebugLogger.Printf("subscription %s dropped event %s: consumer too slow", sub.ID, evt.ID)
	}
}

// Unsub sends ["CLOSE", id] to the relay and closes sub.Events. It is
// idempotent and must run on every exit path of the subscriber; leaking
// open subscriptions on a relay is a resource-leak bug.
func (sub *Subscription) Unsub() {
	sub.mutex.Lock()
	if !sub.live {
		sub.mutex.Unlock()
		return
	}
	sub.live = false
	close(sub.Events)
	sub.mutex.Unlock()

	sub.relay.subscriptions.Delete(sub.ID)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if msg, err := json.Marshal([]any{"CLOSE", sub.ID}); err == nil {
		sub.relay.write(ctx, msg)
	}
}
