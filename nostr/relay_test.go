package nostr

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// startTestRelay runs a websocket server that feeds every inbound frame to
// serve. Returns the ws:// url to dial.
func startTestRelay(t *testing.T, serve func(ctx context.Context, conn *websocket.Conn, msg gjson.Result)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				return
			}
			serve(r.Context(), conn, gjson.ParseBytes(data))
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func sendFrame(ctx context.Context, conn *websocket.Conn, items ...any) {
	msg, _ := json.Marshal(items)
	conn.Write(ctx, websocket.MessageText, msg)
}

func TestNormalizeURL(t *testing.T) {
	assert.Equal(t, "wss://relay.example.com", NormalizeURL("https://relay.example.com"))
	assert.Equal(t, "wss://relay.example.com", NormalizeURL("relay.example.com/"))
	assert.Equal(t, "ws://localhost:7447", NormalizeURL("localhost:7447"))
	assert.Equal(t, "ws://127.0.0.1:8080/path", NormalizeURL("http://127.0.0.1:8080/path/"))
	assert.Equal(t, "", NormalizeURL(""))
}

func TestRelayConnectFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := RelayConnect(ctx, "")
	assert.Error(t, err)

	_, err = RelayConnect(ctx, "ws://127.0.0.1:1")
	assert.Error(t, err)
}

func TestSubscriptionDeliversOnlyVerifiedMatchingEvents(t *testing.T) {
	sk := GeneratePrivateKey()

	good := Event{Kind: 1, CreatedAt: Now(), Tags: Tags{}, Content: "good"}
	require.NoError(t, good.Sign(sk))

	tampered := Event{Kind: 1, CreatedAt: Now(), Tags: Tags{}, Content: "forged"}
	require.NoError(t, tampered.Sign(sk))
	tampered.Content = "tampered after signing"

	offKind := Event{Kind: 7, CreatedAt: Now(), Tags: Tags{}, Content: "wrong kind"}
	require.NoError(t, offKind.Sign(sk))

	url := startTestRelay(t, func(ctx context.Context, conn *websocket.Conn, msg gjson.Result) {
		if msg.Get("0").Str != "REQ" {
			return
		}
		subID := msg.Get("1").Str
		sendFrame(ctx, conn, "EVENT", subID, tampered)
		sendFrame(ctx, conn, "EVENT", subID, offKind)
		sendFrame(ctx, conn, "EVENT", subID, good)
		sendFrame(ctx, conn, "EOSE", subID)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	relay, err := RelayConnect(ctx, url)
	require.NoError(t, err)
	defer relay.Close()

	events, err := relay.QuerySync(ctx, Filter{Kinds: []int{1}})
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.Equal(t, good.ID, events[0].ID)
	assert.Equal(t, "good", events[0].Content)
}

func TestPublishWaitsForOK(t *testing.T) {
	url := startTestRelay(t, func(ctx context.Context, conn *websocket.Conn, msg gjson.Result) {
		if msg.Get("0").Str == "EVENT" {
			sendFrame(ctx, conn, "OK", msg.Get("1.id").Str, true, "")
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	relay, err := RelayConnect(ctx, url)
	require.NoError(t, err)
	defer relay.Close()

	evt := Event{Kind: 1, CreatedAt: Now(), Tags: Tags{}, Content: "publish me"}
	require.NoError(t, evt.Sign(GeneratePrivateKey()))

	start := time.Now()
	require.NoError(t, relay.Publish(ctx, evt))
	assert.Less(t, time.Since(start), okAckWindow,
		"an acknowledged publish must not sit out the whole ack window")
}

func TestPublishToleratesMissingOK(t *testing.T) {
	url := startTestRelay(t, func(ctx context.Context, conn *websocket.Conn, msg gjson.Result) {})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	relay, err := RelayConnect(ctx, url)
	require.NoError(t, err)
	defer relay.Close()

	evt := Event{Kind: 1, CreatedAt: Now(), Tags: Tags{}, Content: "no ack"}
	require.NoError(t, evt.Sign(GeneratePrivateKey()))

	// relay never sends OK; Publish gives up at the ctx deadline but the
	// write itself succeeded
	assert.NoError(t, relay.Publish(ctx, evt))
}

func TestUnsubSendsClose(t *testing.T) {
	closed := make(chan string, 1)
	url := startTestRelay(t, func(ctx context.Context, conn *websocket.Conn, msg gjson.Result) {
		if msg.Get("0").Str == "CLOSE" {
			closed <- msg.Get("1").Str
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	relay, err := RelayConnect(ctx, url)
	require.NoError(t, err)
	defer relay.Close()

	sub, err := relay.Subscribe(ctx, Filter{Kinds: []int{23195}})
	require.NoError(t, err)

	sub.Unsub()

	select {
	case id := <-closed:
		assert.Equal(t, sub.ID, id)
	case <-time.After(2 * time.Second):
		t.Fatal("relay never received CLOSE")
	}

	// Events channel is closed, and a second Unsub is a no-op
	_, open := <-sub.Events
	assert.False(t, open)
	sub.Unsub()
}

func TestRelayCloseUnsubscribesEverything(t *testing.T) {
	closed := make(chan string, 4)
	url := startTestRelay(t, func(ctx context.Context, conn *websocket.Conn, msg gjson.Result) {
		if msg.Get("0").Str == "CLOSE" {
			closed <- msg.Get("1").Str
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	relay, err := RelayConnect(ctx, url)
	require.NoError(t, err)

	sub, err := relay.Subscribe(ctx, Filter{Kinds: []int{1}})
	require.NoError(t, err)

	relay.Close()

	select {
	case id := <-closed:
		assert.Equal(t, sub.ID, id)
	case <-time.After(2 * time.Second):
		t.Fatal("closing the relay must CLOSE live subscriptions first")
	}
}
