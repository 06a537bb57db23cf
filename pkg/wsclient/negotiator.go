package wsclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/foxzool/open-lark-sub013/internal/logger"
	"github.com/foxzool/open-lark-sub013/internal/metrics"
)

// Platform domains.
const (
	FeishuDomain = "https://open.feishu.cn"
	LarkDomain   = "https://open.larksuite.com"
)

// EndpointPath is the negotiation path relative to the domain.
const EndpointPath = "/callback/ws/endpoint"

// Application codes returned by the negotiation endpoint.
const (
	CodeOK                = 0
	CodeSystemBusy        = 1
	CodeForbidden         = 403
	CodeAuthFailed        = 514
	CodeInternalError     = 1000040343
	CodeExceedConnLimit   = 1000040350
	maxNegotiationBodyLen = 1 << 20
)

// Query parameters of the connection URL.
const (
	queryServiceID = "service_id"
	queryDeviceID  = "device_id"
)

// TokenSource supplies a bearer token for the negotiation request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func(ctx context.Context) (string, error)

func (f TokenSourceFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// Endpoint is the result of a successful negotiation.
type Endpoint struct {
	URL          string
	ServiceID    int32
	DeviceID     string
	ClientConfig ClientConfig

	// HasConfig is false when the server sent no ClientConfig and
	// ClientConfig holds the defaults.
	HasConfig bool
}

type endpointRequest struct {
	AppID     string `json:"AppID"`
	AppSecret string `json:"AppSecret"`
}

type endpointResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data *struct {
		URL          string        `json:"URL"`
		ClientConfig *ClientConfig `json:"ClientConfig"`
	} `json:"data"`
}

// Negotiator performs the one-shot REST call that yields a connection URL.
// It does not retry.
type Negotiator struct {
	httpClient *http.Client
	domain     string
	appID      string
	appSecret  string
	tokens     TokenSource
}

// NewNegotiator creates a Negotiator. A nil httpClient uses
// http.DefaultClient; tokens may be nil.
func NewNegotiator(domain, appID, appSecret string, httpClient *http.Client, tokens TokenSource) *Negotiator {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if domain == "" {
		domain = FeishuDomain
	}
	return &Negotiator{
		httpClient: httpClient,
		domain:     strings.TrimRight(domain, "/"),
		appID:      appID,
		appSecret:  appSecret,
		tokens:     tokens,
	}
}

// Negotiate requests a connection endpoint. Failures are *NegotiationError.
func (n *Negotiator) Negotiate(ctx context.Context) (*Endpoint, error) {
	ep, err := n.negotiate(ctx)
	if err != nil {
		result := "error"
		if nerr, ok := err.(*NegotiationError); ok {
			result = nerr.Kind.String()
		}
		metrics.RecordNegotiation(result)
		return nil, err
	}
	metrics.RecordNegotiation("ok")
	return ep, nil
}

func (n *Negotiator) negotiate(ctx context.Context) (*Endpoint, error) {
	body, err := json.Marshal(endpointRequest{AppID: n.appID, AppSecret: n.appSecret})
	if err != nil {
		return nil, &NegotiationError{Kind: KindClient, Msg: "encode request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.domain+EndpointPath, bytes.NewReader(body))
	if err != nil {
		return nil, &NegotiationError{Kind: KindClient, Msg: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("locale", "zh")

	if n.tokens != nil {
		token, err := n.tokens.Token(ctx)
		if err != nil {
			return nil, &NegotiationError{Kind: KindTransport, Msg: "acquire token", Err: err}
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return nil, &NegotiationError{Kind: KindTransport, Msg: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &NegotiationError{
			Kind: KindTransport,
			Msg:  "unexpected status",
			Err:  fmt.Errorf("server returned status: %d", resp.StatusCode),
		}
	}

	var res endpointResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxNegotiationBodyLen)).Decode(&res); err != nil {
		return nil, &NegotiationError{Kind: KindTransport, Msg: "decode response", Err: err}
	}

	switch res.Code {
	case CodeOK:
	case CodeSystemBusy, CodeInternalError:
		return nil, &NegotiationError{Kind: KindServer, Code: res.Code, Msg: res.Msg}
	default:
		return nil, &NegotiationError{Kind: KindClient, Code: res.Code, Msg: res.Msg}
	}

	if res.Data == nil || res.Data.URL == "" {
		return nil, &NegotiationError{Kind: KindNoEndpoint, Msg: "no endpoint available"}
	}

	serviceID, deviceID, err := parseEndpointURL(res.Data.URL)
	if err != nil {
		return nil, &NegotiationError{Kind: KindClient, Msg: "invalid endpoint url", Err: err}
	}

	cfg := DefaultClientConfig()
	if res.Data.ClientConfig != nil {
		cfg = *res.Data.ClientConfig
	}

	logger.Debug().
		Int32("service_id", serviceID).
		Str("device_id", deviceID).
		Int("ping_interval", cfg.PingInterval).
		Msg("endpoint negotiated")

	return &Endpoint{
		URL:          res.Data.URL,
		ServiceID:    serviceID,
		DeviceID:     deviceID,
		ClientConfig: cfg,
		HasConfig:    res.Data.ClientConfig != nil,
	}, nil
}

func parseEndpointURL(raw string) (int32, string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return 0, "", err
	}
	q := u.Query()
	sid := q.Get(queryServiceID)
	if sid == "" {
		return 0, "", fmt.Errorf("missing %s", queryServiceID)
	}
	id, err := strconv.ParseInt(sid, 10, 32)
	if err != nil {
		return 0, "", fmt.Errorf("parse %s: %w", queryServiceID, err)
	}
	return int32(id), q.Get(queryDeviceID), nil
}
