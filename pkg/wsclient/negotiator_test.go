package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   endpointRequest
}

func negotiationServer(t *testing.T, status int, body string) (*httptest.Server, <-chan capturedRequest) {
	t.Helper()
	reqs := make(chan capturedRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := capturedRequest{Method: r.Method, Path: r.URL.Path, Header: r.Header.Clone()}
		_ = json.NewDecoder(r.Body).Decode(&c.Body)
		select {
		case reqs <- c:
		default:
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, reqs
}

func TestNegotiate_Success(t *testing.T) {
	body := `{"code":0,"msg":"ok","data":{"URL":"wss://push.example.com/ws?device_id=d-1&service_id=33554678","ClientConfig":{"ReconnectCount":5,"ReconnectInterval":10,"ReconnectNonce":3,"PingInterval":90}}}`
	srv, reqs := negotiationServer(t, http.StatusOK, body)

	tokens := TokenSourceFunc(func(ctx context.Context) (string, error) { return "tok", nil })
	n := NewNegotiator(srv.URL, "app", "secret", srv.Client(), tokens)

	ep, err := n.Negotiate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "wss://push.example.com/ws?device_id=d-1&service_id=33554678", ep.URL)
	assert.Equal(t, int32(33554678), ep.ServiceID)
	assert.Equal(t, "d-1", ep.DeviceID)
	assert.Equal(t, ClientConfig{ReconnectCount: 5, ReconnectInterval: 10, ReconnectNonce: 3, PingInterval: 90}, ep.ClientConfig)
	assert.True(t, ep.HasConfig)

	req := <-reqs
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, EndpointPath, req.Path)
	assert.Equal(t, "zh", req.Header.Get("locale"))
	assert.Equal(t, "Bearer tok", req.Header.Get("Authorization"))
	assert.Equal(t, endpointRequest{AppID: "app", AppSecret: "secret"}, req.Body)
}

func TestNegotiate_DefaultConfigWhenMissing(t *testing.T) {
	srv, _ := negotiationServer(t, http.StatusOK, `{"code":0,"data":{"URL":"wss://x/ws?service_id=1"}}`)
	n := NewNegotiator(srv.URL, "app", "secret", srv.Client(), nil)

	ep, err := n.Negotiate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultClientConfig(), ep.ClientConfig)
	assert.False(t, ep.HasConfig)
	assert.Equal(t, "", ep.DeviceID)
}

func TestNegotiate_Failures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		kind      NegotiationKind
		code      int
		retryable bool
	}{
		{"system busy", 200, `{"code":1,"msg":"system busy"}`, KindServer, CodeSystemBusy, true},
		{"internal error", 200, `{"code":1000040343,"msg":"internal"}`, KindServer, CodeInternalError, true},
		{"forbidden", 200, `{"code":403,"msg":"forbidden"}`, KindClient, CodeForbidden, false},
		{"auth failed", 200, `{"code":514,"msg":"auth failed"}`, KindClient, CodeAuthFailed, false},
		{"connection limit", 200, `{"code":1000040350,"msg":"exceed"}`, KindClient, CodeExceedConnLimit, false},
		{"empty url", 200, `{"code":0,"data":{"URL":""}}`, KindNoEndpoint, 0, true},
		{"missing data", 200, `{"code":0}`, KindNoEndpoint, 0, true},
		{"missing service id", 200, `{"code":0,"data":{"URL":"wss://x/ws?device_id=1"}}`, KindClient, 0, false},
		{"bad service id", 200, `{"code":0,"data":{"URL":"wss://x/ws?service_id=abc"}}`, KindClient, 0, false},
		{"http error", 502, `bad gateway`, KindTransport, 0, true},
		{"bad body", 200, `not json`, KindTransport, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := negotiationServer(t, tt.status, tt.body)
			n := NewNegotiator(srv.URL, "app", "secret", srv.Client(), nil)

			ep, err := n.Negotiate(context.Background())
			require.Error(t, err)
			assert.Nil(t, ep)

			var nerr *NegotiationError
			require.True(t, errors.As(err, &nerr))
			assert.Equal(t, tt.kind, nerr.Kind)
			assert.Equal(t, tt.code, nerr.Code)
			assert.Equal(t, tt.retryable, nerr.Retryable())
			assert.NotEmpty(t, nerr.Error())
		})
	}
}

func TestNegotiate_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	n := NewNegotiator(url, "app", "secret", nil, nil)
	_, err := n.Negotiate(context.Background())

	var nerr *NegotiationError
	require.True(t, errors.As(err, &nerr))
	assert.Equal(t, KindTransport, nerr.Kind)
	assert.True(t, nerr.Retryable())
	assert.NotNil(t, errors.Unwrap(nerr))
}

func TestNegotiate_TokenError(t *testing.T) {
	srv, _ := negotiationServer(t, http.StatusOK, `{"code":0}`)
	boom := errors.New("token service down")
	tokens := TokenSourceFunc(func(ctx context.Context) (string, error) { return "", boom })

	n := NewNegotiator(srv.URL, "app", "secret", srv.Client(), tokens)
	_, err := n.Negotiate(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestNegotiationKind_String(t *testing.T) {
	assert.Equal(t, "transport", KindTransport.String())
	assert.Equal(t, "server", KindServer.String())
	assert.Equal(t, "client", KindClient.String())
	assert.Equal(t, "no_endpoint", KindNoEndpoint.String())
	assert.Equal(t, "unknown", NegotiationKind(42).String())
}
