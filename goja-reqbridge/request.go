package gojareqbridge

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/dop251/goja"
	reqbridge "github.com/joeycumines/go-reqbridge"
)

// errInvalidURL is thrown, as a TypeError, for a missing or unusable url.
var errInvalidURL = errors.New("invalid url")

// jsRequest implements reqwest(config). Configuration errors are thrown
// synchronously, as a TypeError. Otherwise, exactly one of the success or
// failed callbacks (if provided) is called later, on the loop.
//
// Config:
//   - url: string, required, absolute http or https
//   - method: string, case insensitive, defaults to GET
//   - body: string or ArrayBuffer, parameters are ignored if present
//   - parameters: object, sent as the query string for GET and HEAD,
//     otherwise as a form encoded body
//   - headers: object
//   - type: string, the Content-Type header
//   - timeout: whole number of seconds, truncated, values < 1 use the
//     default
//   - success: function(status, body, headers)
//   - failed: function(reason, message), where reason is always
//     FAILURE_MARKER
//
// Parameter and header values that aren't strings, numbers or booleans are
// ignored.
func (m *Module) jsRequest(call goja.FunctionCall) goja.Value {
	req, err := m.parseRequest(call.Argument(0))
	if err != nil {
		panic(m.runtime.NewTypeError("%s", err.Error()))
	}

	if fn, ok := callable(req.success); ok {
		req.Success = m.Acquire(fn)
	}
	if fn, ok := callable(req.failure); ok {
		req.Failure = m.Acquire(fn)
	}

	// once submitted, the request belongs to the worker
	success, failure := req.Success, req.Failure
	if err := m.dispatcher.Submit(&req.Request); err != nil {
		if success.Valid() {
			m.Release(success)
		}
		if failure.Valid() {
			m.Release(failure)
		}
		var reqErr *reqbridge.RequestError
		if errors.As(err, &reqErr) {
			if reqErr.Field == "url" {
				panic(m.runtime.NewTypeError("%s", errInvalidURL.Error()))
			}
			panic(m.runtime.NewTypeError("%s", err.Error()))
		}
		panic(m.runtime.NewGoError(err))
	}

	return goja.Undefined()
}

type jsRequestConfig struct {
	success goja.Value
	failure goja.Value
	reqbridge.Request
}

// parseRequest reads the config object, without acquiring any handles.
func (m *Module) parseRequest(arg goja.Value) (*jsRequestConfig, error) {
	if isNullish(arg) {
		return nil, errors.New("request config must be an object")
	}
	obj, ok := arg.(*goja.Object)
	if !ok {
		return nil, errors.New("request config must be an object")
	}

	var req jsRequestConfig

	u, err := parseURL(obj.Get("url"))
	if err != nil {
		return nil, err
	}
	req.URL = u

	if v := obj.Get("method"); !isNullish(v) {
		req.Method = strings.ToUpper(v.String())
	}

	if v := obj.Get("body"); !isNullish(v) {
		body, err := exportBody(v)
		if err != nil {
			return nil, err
		}
		req.Body = body
	}

	if req.Body == nil {
		if req.Parameters, err = m.stringMap(obj.Get("parameters"), "parameters"); err != nil {
			return nil, err
		}
	}

	if req.Headers, err = m.stringMap(obj.Get("headers"), "headers"); err != nil {
		return nil, err
	}

	if v := obj.Get("type"); !isNullish(v) {
		req.ContentType = v.String()
	}

	if v := obj.Get("timeout"); !isNullish(v) {
		req.Timeout = parseTimeout(v)
	}

	req.success = obj.Get("success")
	req.failure = obj.Get("failed")

	return &req, nil
}

// maxTimeout is the largest whole number of seconds a time.Duration holds.
const maxTimeout = time.Duration(math.MaxInt64/int64(time.Second)) * time.Second

// parseTimeout truncates to whole seconds, clamped to maxTimeout. Anything
// less than one second (including NaN) is zero, meaning the default.
func parseTimeout(v goja.Value) time.Duration {
	seconds := math.Trunc(v.ToFloat())
	switch {
	case !(seconds >= 1):
		return 0
	case seconds >= float64(maxTimeout/time.Second):
		return maxTimeout
	default:
		return time.Duration(seconds) * time.Second
	}
}

func parseURL(v goja.Value) (*url.URL, error) {
	if isNullish(v) {
		return nil, errInvalidURL
	}
	if _, ok := v.Export().(string); !ok {
		return nil, errInvalidURL
	}
	u, err := url.Parse(v.String())
	if err != nil {
		return nil, errInvalidURL
	}
	return u, nil
}

func exportBody(v goja.Value) ([]byte, error) {
	switch b := v.Export().(type) {
	case string:
		return []byte(b), nil
	case goja.ArrayBuffer:
		return append([]byte{}, b.Bytes()...), nil
	case []byte:
		return append([]byte{}, b...), nil
	default:
		return nil, fmt.Errorf("body must be a string or ArrayBuffer, got %s", v.ExportType())
	}
}

// stringMap reads the enumerable properties of an object, skipping values
// that aren't strings, numbers or booleans.
func (m *Module) stringMap(v goja.Value, name string) (map[string]string, error) {
	if isNullish(v) {
		return nil, nil
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, fmt.Errorf("%s must be an object", name)
	}
	keys := obj.Keys()
	if len(keys) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		val := obj.Get(k)
		if val == nil {
			continue
		}
		switch val.Export().(type) {
		case string, int64, float64, bool:
			out[k] = val.String()
		}
	}
	return out, nil
}

func callable(v goja.Value) (goja.Callable, bool) {
	if isNullish(v) {
		return nil, false
	}
	return goja.AssertFunction(v)
}

func isNullish(v goja.Value) bool {
	return v == nil || goja.IsUndefined(v) || goja.IsNull(v)
}
