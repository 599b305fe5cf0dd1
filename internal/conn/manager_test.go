package conn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejoacosta74/paradex-api/internal/config"
	"github.com/alejoacosta74/paradex-api/internal/conn/conntest"
	"github.com/alejoacosta74/paradex-api/internal/events"
	"github.com/alejoacosta74/paradex-api/pkg/paradex"
)

// staticTokens is a TokenSource returning a fixed token.
type staticTokens struct {
	token string
	calls int32
	err   error
}

func (s *staticTokens) Token(ctx context.Context) (string, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.err != nil {
		return "", s.err
	}
	return s.token, nil
}

func testConfig() config.Config {
	cfg := config.Default(config.Testnet)
	cfg.BackoffInitial = time.Millisecond
	cfg.BackoffCap = 10 * time.Millisecond
	cfg.PingInterval = 50 * time.Millisecond
	cfg.PongTimeout = 200 * time.Millisecond
	return cfg
}

func newTestManager(t *testing.T, server *conntest.Server, tokens TokenSource) (*Manager, *Registry) {
	t.Helper()
	registry := NewRegistry(16)
	bus := events.NewEventBus()
	t.Cleanup(bus.Shutdown)
	m := NewManager(testConfig(), tokens, registry, bus, WithURL(server.URL))
	return m, registry
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("timed out waiting for " + msg)
}

func TestManager_SubscribeAndReceive(t *testing.T) {
	server := conntest.NewServer()
	defer server.Close()

	m, _ := newTestManager(t, server, &staticTokens{token: "jwt"})

	received := make(chan json.RawMessage, 1)
	err := m.Subscribe(paradex.ChannelTrades, "BTC-USD-PERP", func(channel paradex.Channel, market string, data json.RawMessage) {
		received <- data
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	waitFor(t, func() bool {
		return len(server.ReceivedByMethod(paradex.MethodSubscribe)) == 1
	}, "subscribe frame")
	assert.Equal(t, "trades.BTC-USD-PERP", server.ReceivedByMethod(paradex.MethodSubscribe)[0].Params.Channel)

	server.Push("trades.BTC-USD-PERP", json.RawMessage(`{"price":"50000"}`))

	select {
	case data := <-received:
		assert.JSONEq(t, `{"price":"50000"}`, string(data))
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for data frame")
	}

	assert.Equal(t, Connected, m.State())
}

func TestManager_PublicOnlySkipsAuth(t *testing.T) {
	server := conntest.NewServer()
	defer server.Close()

	tokens := &staticTokens{token: "jwt"}
	m, _ := newTestManager(t, server, tokens)

	require.NoError(t, m.Subscribe(paradex.ChannelBBO, "ETH-USD-PERP", func(paradex.Channel, string, json.RawMessage) {}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	waitFor(t, func() bool {
		return len(server.ReceivedByMethod(paradex.MethodSubscribe)) == 1
	}, "subscribe frame")

	assert.Empty(t, server.ReceivedByMethod(paradex.MethodAuth))
	assert.Equal(t, int32(0), atomic.LoadInt32(&tokens.calls))
}

func TestManager_AuthenticatesBeforeSubscribing(t *testing.T) {
	server := conntest.NewServer()
	defer server.Close()

	tokens := &staticTokens{token: "jwt-abc"}
	m, _ := newTestManager(t, server, tokens)

	require.NoError(t, m.Subscribe(paradex.ChannelFills, "", func(paradex.Channel, string, json.RawMessage) {}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	waitFor(t, func() bool {
		return len(server.ReceivedByMethod(paradex.MethodSubscribe)) == 1
	}, "subscribe frame")

	reqs := server.Received()
	require.NotEmpty(t, reqs)
	assert.Equal(t, paradex.MethodAuth, reqs[0].Method)
	assert.Equal(t, "jwt-abc", reqs[0].Params.Bearer)
	assert.True(t, server.Authed())
}

func TestManager_ReplaysSubscriptionsInOrderAfterReconnect(t *testing.T) {
	server := conntest.NewServer()
	defer server.Close()

	m, _ := newTestManager(t, server, &staticTokens{token: "jwt"})

	noop := func(paradex.Channel, string, json.RawMessage) {}
	require.NoError(t, m.Subscribe(paradex.ChannelTrades, "BTC-USD-PERP", noop))
	require.NoError(t, m.Subscribe(paradex.ChannelOrderBook, "BTC-USD-PERP", noop))
	require.NoError(t, m.Subscribe(paradex.ChannelBBO, "ETH-USD-PERP", noop))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	waitFor(t, func() bool {
		return len(server.ReceivedByMethod(paradex.MethodSubscribe)) == 3
	}, "initial subscribes")

	server.DropConnections()

	waitFor(t, func() bool {
		return len(server.ReceivedByMethod(paradex.MethodSubscribe)) == 6
	}, "replayed subscribes")
	assert.GreaterOrEqual(t, server.ConnCount(), 2)

	subs := server.ReceivedByMethod(paradex.MethodSubscribe)
	replayed := subs[3:]
	assert.Equal(t, "trades.BTC-USD-PERP", replayed[0].Params.Channel)
	assert.Equal(t, "order_book.BTC-USD-PERP", replayed[1].Params.Channel)
	assert.Equal(t, "bbo.ETH-USD-PERP", replayed[2].Params.Channel)

	// Exactly one replay per subscription, no duplicates.
	assert.Len(t, subs, 6)
}

func TestManager_AuthRejectedIsTerminal(t *testing.T) {
	server := conntest.NewServer()
	defer server.Close()
	server.RejectAuth = true

	m, _ := newTestManager(t, server, &staticTokens{token: "bad-jwt"})

	require.NoError(t, m.Subscribe(paradex.ChannelOrders, "BTC-USD-PERP", func(paradex.Channel, string, json.RawMessage) {}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	select {
	case <-m.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("manager did not terminate on repeated auth rejection")
	}

	assert.Equal(t, Closed, m.State())
	assert.True(t, errors.Is(m.Err(), ErrAuthRejected))
	// Capped at AuthRejectMax connections.
	assert.Equal(t, 3, len(server.ReceivedByMethod(paradex.MethodAuth)))
}

func TestManager_UnsubscribeSendsFrame(t *testing.T) {
	server := conntest.NewServer()
	defer server.Close()

	m, registry := newTestManager(t, server, &staticTokens{token: "jwt"})

	require.NoError(t, m.Subscribe(paradex.ChannelTrades, "BTC-USD-PERP", func(paradex.Channel, string, json.RawMessage) {}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	waitFor(t, func() bool {
		return len(server.ReceivedByMethod(paradex.MethodSubscribe)) == 1
	}, "subscribe frame")

	require.NoError(t, m.Unsubscribe(paradex.ChannelTrades, "BTC-USD-PERP"))

	waitFor(t, func() bool {
		return len(server.ReceivedByMethod(paradex.MethodUnsubscribe)) == 1
	}, "unsubscribe frame")
	assert.Equal(t, "trades.BTC-USD-PERP", server.ReceivedByMethod(paradex.MethodUnsubscribe)[0].Params.Channel)
	assert.Equal(t, 0, registry.Len())
}

func TestManager_SubscribeWhileConnected(t *testing.T) {
	server := conntest.NewServer()
	defer server.Close()

	m, _ := newTestManager(t, server, &staticTokens{token: "jwt"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	waitFor(t, func() bool { return m.State() == Connected }, "connected state")

	require.NoError(t, m.Subscribe(paradex.ChannelTrades, "BTC-USD-PERP", func(paradex.Channel, string, json.RawMessage) {}))

	waitFor(t, func() bool {
		return len(server.ReceivedByMethod(paradex.MethodSubscribe)) == 1
	}, "late subscribe frame")
}

func TestManager_StopIsTerminal(t *testing.T) {
	server := conntest.NewServer()
	defer server.Close()

	m, _ := newTestManager(t, server, &staticTokens{token: "jwt"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	waitFor(t, func() bool { return m.State() == Connected }, "connected state")

	m.Stop()
	assert.Equal(t, Closed, m.State())
	assert.NoError(t, m.Err())

	// Calls after Stop are rejected.
	err := m.Subscribe(paradex.ChannelTrades, "BTC-USD-PERP", func(paradex.Channel, string, json.RawMessage) {})
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, m.Unsubscribe(paradex.ChannelTrades, "BTC-USD-PERP"), ErrClosed)
}

func TestManager_SubscribeNeverBlocksWhileDisconnected(t *testing.T) {
	registry := NewRegistry(16)
	bus := events.NewEventBus()
	defer bus.Shutdown()

	// Nothing listens on this address; the manager stays in its
	// dial/backoff cycle for the whole test.
	m := NewManager(testConfig(), &staticTokens{token: "jwt"}, registry, bus, WithURL("ws://127.0.0.1:1"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	const count = 600
	done := make(chan struct{})
	go func() {
		defer close(done)
		noop := func(paradex.Channel, string, json.RawMessage) {}
		for i := 0; i < count; i++ {
			market := fmt.Sprintf("M%d-USD-PERP", i)
			assert.NoError(t, m.Subscribe(paradex.ChannelTrades, market, noop))
			assert.NoError(t, m.Unsubscribe(paradex.ChannelTrades, market))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe blocked while disconnected")
	}
	assert.Equal(t, 0, registry.Len())
}

func TestManager_UnsubscribeWhileDisconnectedSendsNothing(t *testing.T) {
	server := conntest.NewServer()
	defer server.Close()

	m, registry := newTestManager(t, server, &staticTokens{token: "jwt"})

	// Subscribe and immediately unsubscribe before the first connection:
	// the pending commands coalesce and the server must see neither.
	noop := func(paradex.Channel, string, json.RawMessage) {}
	require.NoError(t, m.Subscribe(paradex.ChannelTrades, "BTC-USD-PERP", noop))
	require.NoError(t, m.Unsubscribe(paradex.ChannelTrades, "BTC-USD-PERP"))
	require.NoError(t, m.Subscribe(paradex.ChannelBBO, "ETH-USD-PERP", noop))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	waitFor(t, func() bool {
		return len(server.ReceivedByMethod(paradex.MethodSubscribe)) == 1
	}, "surviving subscribe frame")

	assert.Equal(t, "bbo.ETH-USD-PERP", server.ReceivedByMethod(paradex.MethodSubscribe)[0].Params.Channel)
	assert.Empty(t, server.ReceivedByMethod(paradex.MethodUnsubscribe))
	assert.Equal(t, 1, registry.Len())
}

func TestManager_MissedPongTriggersReconnect(t *testing.T) {
	server := conntest.NewServer()
	defer server.Close()
	server.SwallowPings = true

	m, _ := newTestManager(t, server, &staticTokens{token: "jwt"})

	require.NoError(t, m.Subscribe(paradex.ChannelTrades, "BTC-USD-PERP", func(paradex.Channel, string, json.RawMessage) {}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	// With no pongs the read deadline (PingInterval+PongTimeout) expires
	// and the connection is declared dead.
	waitFor(t, func() bool { return server.ConnCount() >= 2 }, "reconnect after missed pong")
}

func TestManager_StopWithoutStart(t *testing.T) {
	server := conntest.NewServer()
	defer server.Close()

	m, _ := newTestManager(t, server, &staticTokens{token: "jwt"})

	stopped := make(chan struct{})
	go func() {
		m.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on a manager that was never started")
	}
	assert.ErrorIs(t, m.Subscribe(paradex.ChannelTrades, "BTC-USD-PERP", func(paradex.Channel, string, json.RawMessage) {}), ErrClosed)
}

func TestManager_AuthRejectionPublishesEvents(t *testing.T) {
	server := conntest.NewServer()
	defer server.Close()
	server.RejectAuth = true

	registry := NewRegistry(16)
	bus := events.NewEventBus()
	defer bus.Shutdown()
	rejected := bus.Subscribe(events.TopicAuthRejected)

	m := NewManager(testConfig(), &staticTokens{token: "bad-jwt"}, registry, bus, WithURL(server.URL))
	require.NoError(t, m.Subscribe(paradex.ChannelFills, "", func(paradex.Channel, string, json.RawMessage) {}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	select {
	case <-m.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("manager did not terminate on repeated auth rejection")
	}

	// One event per rejection, counted consecutively, before the terminal
	// error surfaces.
	var got []events.AuthRejected
	for drained := false; !drained; {
		select {
		case event := <-rejected:
			ar, ok := event.(events.AuthRejected)
			require.True(t, ok)
			got = append(got, ar)
		default:
			drained = true
		}
	}
	require.Len(t, got, 3)
	assert.Equal(t, 1, got[0].Rejections)
	assert.Equal(t, 3, got[2].Rejections)
	assert.Contains(t, got[0].Reason, "invalid bearer token")
}

func TestManager_ReconnectPublishesEvents(t *testing.T) {
	server := conntest.NewServer()
	defer server.Close()

	registry := NewRegistry(16)
	bus := events.NewEventBus()
	defer bus.Shutdown()
	reconnects := bus.Subscribe(events.TopicReconnect)

	m := NewManager(testConfig(), &staticTokens{token: "jwt"}, registry, bus, WithURL(server.URL))
	require.NoError(t, m.Subscribe(paradex.ChannelTrades, "BTC-USD-PERP", func(paradex.Channel, string, json.RawMessage) {}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	waitFor(t, func() bool {
		return len(server.ReceivedByMethod(paradex.MethodSubscribe)) == 1
	}, "initial subscribe")

	server.DropConnections()

	select {
	case event := <-reconnects:
		_, ok := event.(events.Reconnect)
		assert.True(t, ok)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reconnect event")
	}
}
