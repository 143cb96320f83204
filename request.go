package reqbridge

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/http/httpguts"
)

const (
	// DefaultContentType is sent when Request.ContentType is empty.
	DefaultContentType = "text/plain; charset=utf-8"

	// DefaultTimeout bounds each request, unless overridden by
	// Request.Timeout or [WithDefaultTimeout].
	DefaultTimeout = 60 * time.Second

	// DefaultUserAgent is sent when the request headers carry none.
	DefaultUserAgent = "Valve/Steam HTTP Client 1.0 (4000)"
)

// Request models a single HTTP request, built on the host goroutine, then
// handed over to the worker by [Dispatcher.Submit]. The caller must not
// retain or modify a Request after submitting it.
type Request struct {
	// URL is required, and must be absolute, using http or https.
	URL *url.URL

	// Parameters are form values, ignored if Body is non-nil. They are
	// encoded into the query string for GET and HEAD, and as an urlencoded
	// body otherwise. The Content-Type is still ContentType, so callers
	// sending a form body should set it.
	Parameters map[string]string

	// Headers are sent as-is, except Content-Type, which is always
	// ContentType.
	Headers map[string]string

	// Method defaults to GET.
	Method string

	// ContentType defaults to DefaultContentType.
	ContentType string

	// Body is the raw request body.
	Body []byte

	// Timeout bounds the entire exchange, including reading the response
	// body. Values <= 0 use the dispatcher's default.
	Timeout time.Duration

	// Success receives (status, body, headers) if the request completes.
	Success Handle

	// Failure receives (FailureMarker, message) if the request fails.
	Failure Handle
}

// normalize validates the request and fills in defaults, the returned error
// will be a *RequestError.
func (r *Request) normalize(defaultTimeout time.Duration) error {
	if r == nil {
		return &RequestError{Cause: errors.New("nil request")}
	}

	if r.URL == nil {
		return &RequestError{Field: "url", Cause: errors.New("missing")}
	}
	if !r.URL.IsAbs() {
		return &RequestError{Field: "url", Cause: errors.New("not absolute")}
	}
	switch strings.ToLower(r.URL.Scheme) {
	case "http", "https":
	default:
		return &RequestError{Field: "url", Cause: errors.New("unsupported scheme " + r.URL.Scheme)}
	}
	if r.URL.Host == "" {
		return &RequestError{Field: "url", Cause: errors.New("missing host")}
	}

	if r.Method == "" {
		r.Method = http.MethodGet
	} else if !httpguts.ValidHeaderFieldName(r.Method) {
		return &RequestError{Field: "method", Cause: errors.New("invalid token " + r.Method)}
	}

	if r.Body != nil {
		r.Parameters = nil
	}

	if r.ContentType == "" {
		r.ContentType = DefaultContentType
	}

	if r.Timeout <= 0 {
		r.Timeout = defaultTimeout
	}

	return nil
}

// handles moves both handles out of the request.
func (r *Request) handles() (success, failure Handle) {
	success, failure = r.Success, r.Failure
	r.Success, r.Failure = NoHandle, NoHandle
	return
}
