package push

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	gorilla "github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chanReceiver chan string

func (c chanReceiver) OnPushNotification(token string) {
	c <- token
}

func newPushServer(t *testing.T, tokens ...string) (*httptest.Server, <-chan string) {
	t.Helper()
	senders := make(chan string, 1)
	upgrader := gorilla.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		senders <- r.URL.Query().Get(SenderQueryParam)

		write := func(m Message) {
			data, _ := json.Marshal(m)
			_ = conn.WriteMessage(gorilla.TextMessage, data)
		}
		write(Message{RegID: "reg-ws"})
		for _, tok := range tokens {
			write(Message{SubID: tok})
		}
		// Hold the connection until the client closes it.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, senders
}

func TestWebSocketProvider(t *testing.T) {
	srv, senders := newPushServer(t, "reg-ws:query:#cat", "reg-ws:query:#dog")

	received := make(chanReceiver, 2)
	p := NewWebSocketProvider("ws"+strings.TrimPrefix(srv.URL, "http")+"/push", zerolog.Nop()).
		SetReceiver(received)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id, err := p.Register(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "reg-ws", id)
	assert.Equal(t, "42", <-senders)

	for _, want := range []string{"reg-ws:query:#cat", "reg-ws:query:#dog"} {
		select {
		case got := <-received:
			assert.Equal(t, want, got)
		case <-ctx.Done():
			t.Fatal("push frame not delivered")
		}
	}

	require.NoError(t, p.Close(ctx))
	assert.True(t, p.IsClosed())
	require.NoError(t, p.Close(ctx))
}

func TestWebSocketProviderWithRegistrarAndRouter(t *testing.T) {
	srv, _ := newPushServer(t, "reg-ws:query:#cat")

	p := NewWebSocketProvider("ws"+strings.TrimPrefix(srv.URL, "http")+"/push", zerolog.Nop())
	queries := &recordingQueries{}
	p.SetReceiver(NewRouter(queries, zerolog.Nop(), nil))
	r := NewRegistrar("42", p, zerolog.Nop())

	id, err := r.RegistrationID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "reg-ws", id)

	assert.Eventually(t, func() bool {
		queries.mu.Lock()
		defer queries.mu.Unlock()
		return len(queries.ids) == 1 && queries.ids[0] == "#cat"
	}, 5*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Close(ctx))
}

// newFlakyPushServer drops the first connection right after registering it
// and keeps every later one open.
func newFlakyPushServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var dials atomic.Int32
	upgrader := gorilla.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		n := dials.Add(1)

		data, _ := json.Marshal(Message{RegID: fmt.Sprintf("reg-%d", n)})
		_ = conn.WriteMessage(gorilla.TextMessage, data)
		if n == 1 {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &dials
}

func TestWebSocketProviderReconnectsAfterDrop(t *testing.T) {
	srv, dials := newFlakyPushServer(t)

	p := NewWebSocketProvider("ws"+strings.TrimPrefix(srv.URL, "http")+"/push", zerolog.Nop())
	r := NewRegistrar("42", p, zerolog.Nop())
	r.ReconnectInterval = 10 * time.Millisecond
	defer r.Close()

	reregistered := make(chan string, 4)
	r.SetReregisteredHandler(func(regID string) { reregistered <- regID })
	p.SetDisconnectHandler(r.Disconnected)

	require.NoError(t, r.RegisterIfNeeded(context.Background()))

	select {
	case id := <-reregistered:
		assert.Equal(t, "reg-2", id)
	case <-time.After(5 * time.Second):
		t.Fatal("not registered again after the connection dropped")
	}

	id, err := r.RegistrationID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "reg-2", id)
	assert.Equal(t, StateRegistered, r.State())
	assert.EqualValues(t, 2, dials.Load())
	assert.False(t, p.IsClosed())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Close(ctx))
}

func TestWebSocketProviderIgnoresStaleConnection(t *testing.T) {
	srv, _ := newPushServer(t)

	disconnects := make(chan error, 1)
	p := NewWebSocketProvider("ws"+strings.TrimPrefix(srv.URL, "http")+"/push", zerolog.Nop()).
		SetDisconnectHandler(func(err error) { disconnects <- err })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := p.Register(ctx, "42")
	require.NoError(t, err)

	// A read loop of an earlier connection must not tear down this one.
	stale := make(chan int)
	p.handleError(errors.New("read on old connection"), stale)
	assert.False(t, p.IsClosed())
	p.connLock.Lock()
	assert.NotNil(t, p.Conn)
	p.connLock.Unlock()
	assert.Empty(t, disconnects)

	require.NoError(t, p.Close(ctx))
	assert.Empty(t, disconnects)
}
