package reqbridge

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
)

type (
	// Transport performs a single HTTP exchange. Implementations must be
	// safe for concurrent use, and should honour ctx, which carries the
	// request's timeout.
	Transport interface {
		RoundTrip(ctx context.Context, req *Request) (*Response, error)
	}

	// Response is the fully read result of a successful exchange.
	Response struct {
		Header http.Header
		Body   []byte
		Status int
	}

	// HTTPTransport is the default [Transport], backed by an [http.Client].
	HTTPTransport struct {
		// Client performs the exchange, a nil Client uses a zero value
		// http.Client.
		Client *http.Client

		// UserAgent is sent if the request headers carry none, no
		// User-Agent is added if empty.
		UserAgent string
	}
)

var defaultHTTPClient = &http.Client{}

// NewHTTPTransport returns an [HTTPTransport] using client, which may be nil.
func NewHTTPTransport(client *http.Client, userAgent string) *HTTPTransport {
	return &HTTPTransport{Client: client, UserAgent: userAgent}
}

// RoundTrip implements [Transport].
func (x *HTTPTransport) RoundTrip(ctx context.Context, req *Request) (*Response, error) {
	httpReq, err := x.newHTTPRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	client := x.Client
	if client == nil {
		client = defaultHTTPClient
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// a truncated body still counts as a completed exchange
	body, _ := io.ReadAll(resp.Body)

	return &Response{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   body,
	}, nil
}

func (x *HTTPTransport) newHTTPRequest(ctx context.Context, req *Request) (*http.Request, error) {
	u := *req.URL

	var body io.Reader
	switch {
	case req.Body != nil:
		body = bytes.NewReader(req.Body)
	case len(req.Parameters) != 0:
		form := make(url.Values, len(req.Parameters))
		for k, v := range req.Parameters {
			form.Set(k, v)
		}
		if req.Method == http.MethodGet || req.Method == http.MethodHead {
			query := u.Query()
			for k, v := range form {
				query[k] = v
			}
			u.RawQuery = query.Encode()
		} else {
			body = bytes.NewReader([]byte(form.Encode()))
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), body)
	if err != nil {
		return nil, err
	}

	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if x.UserAgent != "" && httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", x.UserAgent)
	}
	httpReq.Header.Set("Content-Type", req.ContentType)

	return httpReq, nil
}
