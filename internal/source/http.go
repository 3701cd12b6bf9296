package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/linepulse/linepulse/internal/resilience"
)

// HTTP timeout defaults: connect, response header read, and total call.
const (
	defaultConnectTimeout = 10 * time.Second
	defaultReadTimeout    = 20 * time.Second
	defaultTotalTimeout   = 30 * time.Second
)

const defaultUserAgent = "linepulse/1.0 (multi-source sports data)"

// HTTPTransport fetches JSON documents from a provider's REST API. The
// request path convention is {base}/{dataType}/{entityID}.
type HTTPTransport struct {
	baseURL string
	headers map[string]string
	client  *http.Client
}

// NewHTTPTransport creates a transport for one provider endpoint.
func NewHTTPTransport(baseURL string, headers map[string]string) *HTTPTransport {
	return &HTTPTransport{
		baseURL: baseURL,
		headers: headers,
		client: &http.Client{
			Timeout: defaultTotalTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   defaultConnectTimeout,
					KeepAlive: 60 * time.Second,
				}).DialContext,
				ResponseHeaderTimeout: defaultReadTimeout,
				MaxIdleConns:          50,
				MaxIdleConnsPerHost:   20,
				IdleConnTimeout:       60 * time.Second,
			},
		},
	}
}

// Do executes one GET against the provider and decodes the JSON body.
func (t *HTTPTransport) Do(ctx context.Context, req Request) (Response, error) {
	u, err := url.JoinPath(t.baseURL, string(req.DataType), req.EntityID)
	if err != nil {
		return Response{}, resilience.NewTransportError(resilience.TransportLocal, 0,
			eris.Wrap(err, "http: build url"))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Response{}, resilience.NewTransportError(resilience.TransportLocal, 0,
			eris.Wrap(err, "http: build request"))
	}
	httpReq.Header.Set("User-Agent", defaultUserAgent)
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range t.headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := t.client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		te := resilience.ClassifyTransportError(err)
		return Response{Latency: latency}, te
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Response{StatusCode: resp.StatusCode, Latency: latency},
			resilience.NewTransportError(resilience.TransportRemote, resp.StatusCode,
				fmt.Errorf("provider returned %s", resp.Status))
	}

	var fields map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&fields); err != nil {
		return Response{StatusCode: resp.StatusCode, Latency: latency},
			resilience.NewTransportError(resilience.TransportRemote, resp.StatusCode,
				eris.Wrap(err, "http: decode body"))
	}

	return Response{Fields: fields, StatusCode: resp.StatusCode, Latency: latency}, nil
}

var _ Transport = (*HTTPTransport)(nil)
