package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foxzool/open-lark-sub013/pkg/frame"
)

// endpointFor serves a negotiation response pointing at the push server.
func endpointFor(t *testing.T, ps *pushServer, cfg string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": 0,
			"msg":  "ok",
			"data": map[string]any{
				"URL":          ps.URL(),
				"ClientConfig": json.RawMessage(cfg),
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func runClient(c *Client, ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	return done
}

func TestClient_EndToEnd(t *testing.T) {
	ps := newPushServer(t)
	neg := endpointFor(t, ps, `{"ReconnectCount":5,"ReconnectInterval":10,"ReconnectNonce":2,"PingInterval":60}`)

	c := New("app", "secret", HandlerFunc(func(ctx context.Context, payload []byte) ([]byte, error) {
		return append([]byte("echo:"), payload...), nil
	}), WithDomain(neg.URL))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runClient(c, ctx)

	sc := ps.accept(t)
	sc.next(t, frame.TypePing, time.Second)

	sc.send(t, fragment("big", 2, 1, "lo"))
	sc.send(t, fragment("big", 2, 0, "hel"))
	sc.send(t, dataFrame(frame.TypeCard, "c1", []byte("card")))
	sc.send(t, dataFrame(frame.TypeEvent, "small", []byte("x")))

	first := sc.next(t, frame.TypeEvent, 2*time.Second)
	second := sc.next(t, frame.TypeEvent, 2*time.Second)

	assert.Equal(t, "big", first.Headers.MessageID())
	assert.Equal(t, []byte("echo:hello"), decodeEnvelope(t, first).Data)
	assert.Equal(t, "small", second.Headers.MessageID())
	assert.Equal(t, []byte("echo:x"), decodeEnvelope(t, second).Data)

	ep := c.Endpoint()
	require.NotNil(t, ep)
	assert.Equal(t, testServiceID, ep.ServiceID)
	assert.Equal(t, "dev", ep.DeviceID)
	assert.Equal(t, ReconnectPolicy{MaxAttempts: 5, Interval: 10 * time.Second, Nonce: 2 * time.Second}, c.ReconnectPolicy())

	st := c.Stats()
	assert.Equal(t, StateOpen, st.State)
	assert.NotEmpty(t, st.ConnID)
	assert.Equal(t, testServiceID, st.ServiceID)
	assert.Equal(t, uint64(2), st.Handled)
	assert.Equal(t, uint64(1), st.Ignored)

	c.Close()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("client did not stop")
	}
	assert.Equal(t, StateClosed, c.State())
}

func TestClient_RunTwice(t *testing.T) {
	ps := newPushServer(t)
	neg := endpointFor(t, ps, `{}`)

	c := New("app", "secret", HandlerFunc(func(ctx context.Context, payload []byte) ([]byte, error) {
		return nil, nil
	}), WithDomain(neg.URL))

	ctx, cancel := context.WithCancel(context.Background())
	done := runClient(c, ctx)
	ps.accept(t)

	assert.ErrorIs(t, c.Run(ctx), ErrAlreadyStarted)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("client did not stop")
	}
}

func TestClient_NegotiationFailure(t *testing.T) {
	srv, _ := negotiationServer(t, http.StatusOK, `{"code":514,"msg":"auth failed"}`)

	c := New("app", "bad", HandlerFunc(func(ctx context.Context, payload []byte) ([]byte, error) {
		return nil, nil
	}), WithDomain(srv.URL))

	err := c.Run(context.Background())

	var nerr *NegotiationError
	require.True(t, errors.As(err, &nerr))
	assert.Equal(t, KindClient, nerr.Kind)
	assert.Equal(t, StateErrored, c.State())
	assert.Nil(t, c.Endpoint())
}

func TestClient_SessionFailureSurfaces(t *testing.T) {
	ps := newPushServer(t)
	neg := endpointFor(t, ps, `{}`)

	c := New("app", "secret", HandlerFunc(func(ctx context.Context, payload []byte) ([]byte, error) {
		return nil, nil
	}), WithDomain(neg.URL),
		WithHeartbeatTimeout(100*time.Millisecond),
		WithLivenessInterval(10*time.Millisecond),
	)

	done := runClient(c, context.Background())
	ps.accept(t)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrHeartbeatTimeout)
	case <-time.After(3 * time.Second):
		t.Fatal("client did not fail")
	}
	assert.Equal(t, StateErrored, c.State())
}

func TestClient_SeededConfig(t *testing.T) {
	seed := ClientConfig{ReconnectCount: 1, ReconnectInterval: 7, ReconnectNonce: 0, PingInterval: 30}
	c := New("app", "secret", nil, WithClientConfig(seed))

	assert.Equal(t, seed, c.ClientConfig())
	assert.Equal(t, StateConnecting, c.State())
	assert.Equal(t, StateConnecting, c.Stats().State)
}

func TestClient_StuckHandlerDoesNotHoldTerminalError(t *testing.T) {
	tests := []struct {
		name    string
		workers int
	}{
		{name: "serial", workers: 1},
		{name: "pool", workers: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ps := newPushServer(t)
			neg := endpointFor(t, ps, `{}`)

			started := make(chan struct{}, 1)
			release := make(chan struct{})
			t.Cleanup(func() { close(release) })

			// Ignores ctx on purpose.
			handler := HandlerFunc(func(ctx context.Context, payload []byte) ([]byte, error) {
				started <- struct{}{}
				<-release
				return nil, nil
			})

			c := New("app", "secret", handler,
				WithDomain(neg.URL),
				WithWorkers(tt.workers),
				WithDrainTimeout(100*time.Millisecond),
			)
			done := runClient(c, context.Background())

			sc := ps.accept(t)
			sc.send(t, dataFrame(frame.TypeEvent, "stuck", []byte("x")))
			select {
			case <-started:
			case <-time.After(2 * time.Second):
				t.Fatal("handler never started")
			}

			sc.writeRaw(t, websocket.CloseMessage, websocket.FormatCloseMessage(4000, "server restarting"))

			select {
			case err := <-done:
				assert.ErrorIs(t, err, ErrRemoteClosed)
			case <-time.After(2 * time.Second):
				t.Fatal("Run did not return after the session ended")
			}
			assert.Equal(t, StateErrored, c.State())
		})
	}
}

func TestClient_SeedKeptWhenServerSendsNoConfig(t *testing.T) {
	ps := newPushServer(t)
	neg := endpointFor(t, ps, `null`)

	seed := ClientConfig{ReconnectCount: 3, ReconnectInterval: 9, ReconnectNonce: 1, PingInterval: 45}
	c := New("app", "secret", HandlerFunc(func(ctx context.Context, payload []byte) ([]byte, error) {
		return nil, nil
	}), WithDomain(neg.URL), WithClientConfig(seed))

	ctx, cancel := context.WithCancel(context.Background())
	done := runClient(c, ctx)
	ps.accept(t)

	require.Eventually(t, func() bool { return c.Endpoint() != nil }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, c.Endpoint().HasConfig)
	assert.Equal(t, seed, c.ClientConfig())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("client did not stop")
	}
}
