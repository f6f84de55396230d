// Package fetch replays captured upstream requests. A Template is a
// declarative description of one call (method, URL, headers, raw body)
// sufficient to repeat it without browser context.
package fetch

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds every upstream call. A hanging endpoint delays the
// accounts behind it for at most this long.
const DefaultTimeout = 25 * time.Second

type Template struct {
	Method      string
	URL         string
	Headers     map[string]string
	Body        string
	InsecureTLS bool
}

type Response struct {
	Status int
	Body   string
}

// NetworkError marks connection and timeout failures so callers can
// distinguish them from a reachable endpoint returning garbage.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Client executes Templates. It keeps two underlying http.Clients, one
// verifying TLS and one not, so per-template insecure_tls doesn't force a
// new transport per call.
type Client struct {
	verify   *http.Client
	insecure *http.Client
}

func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	insecureTr := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}
	return &Client{
		verify:   &http.Client{Timeout: timeout},
		insecure: &http.Client{Timeout: timeout, Transport: insecureTr},
	}
}

// Execute performs the call. Network and timeout failures come back as
// *NetworkError; a non-2xx status is not an error, the body is returned for
// the caller to inspect.
func (c *Client) Execute(ctx context.Context, t Template) (*Response, error) {
	method := strings.ToUpper(strings.TrimSpace(t.Method))
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if t.Body != "" {
		body = strings.NewReader(t.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range t.Headers {
		req.Header.Set(k, v)
	}

	hc := c.verify
	if t.InsecureTLS {
		hc = c.insecure
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: t.URL, Err: err}
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, &NetworkError{URL: t.URL, Err: err}
	}
	return &Response{Status: resp.StatusCode, Body: string(b)}, nil
}
