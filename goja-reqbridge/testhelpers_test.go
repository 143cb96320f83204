package gojareqbridge

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	gojarequire "github.com/dop251/goja_nodejs/require"
	"github.com/stretchr/testify/require"
)

// testEnv runs scripts on a goja_nodejs loop, with the module enabled.
type testEnv struct {
	loop     *eventloop.EventLoop
	registry *gojarequire.Registry
	module   *Module
	runtime  *goja.Runtime
}

// newTestEnv creates the loop and the module, the latter on the loop,
// since it is bound to the loop's runtime.
func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()

	registry := gojarequire.NewRegistry()
	env := &testEnv{
		loop:     eventloop.NewEventLoop(eventloop.WithRegistry(registry)),
		registry: registry,
	}

	var err error
	env.loop.Run(func(runtime *goja.Runtime) {
		env.runtime = runtime
		env.module, err = New(runtime, append([]Option{WithLoop(env.loop)}, opts...)...)
		if err == nil {
			env.module.Enable()
			registry.RegisterNativeModule("reqwest", env.module.Require())
		}
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		if env.module != nil {
			_ = env.module.Close()
		}
	})

	return env
}

// run executes code on the loop, returning once the loop is idle, i.e. once
// every pending request has been delivered.
func (e *testEnv) run(t *testing.T, code string) {
	t.Helper()

	var err error
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.loop.Run(func(runtime *goja.Runtime) {
			_, err = runtime.RunString(code)
		})
	}()

	select {
	case <-done:
	case <-time.After(time.Second * 10):
		e.loop.Terminate()
		<-done
		t.Fatal(`timed out waiting for the loop`)
	}

	require.NoError(t, err)
}

// set assigns a global, the loop must not be running.
func (e *testEnv) set(t *testing.T, name string, value any) {
	t.Helper()
	require.NoError(t, e.runtime.Set(name, value))
}

// get exports a global, the loop must not be running.
func (e *testEnv) get(name string) any {
	v := e.runtime.Get(name)
	if v == nil {
		return nil
	}
	return v.Export()
}

type recordedRequest struct {
	header http.Header
	method string
	path   string
	query  string
	body   string
}

type testServer struct {
	*httptest.Server
	mu       sync.Mutex
	requests []recordedRequest
}

// newTestServer responds to /status/{code} with that code, /slow after a
// delay, and everything else with 200, echoing the path as the body.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	s := &testServer{}
	mux := http.NewServeMux()
	mux.HandleFunc(`/slow`, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second * 5):
		case <-r.Context().Done():
		}
	})
	mux.HandleFunc(`/status/{code}`, func(w http.ResponseWriter, r *http.Request) {
		s.record(r)
		code := http.StatusOK
		switch r.PathValue(`code`) {
		case `404`:
			code = http.StatusNotFound
		case `500`:
			code = http.StatusInternalServerError
		}
		w.WriteHeader(code)
	})
	mux.HandleFunc(`/`, func(w http.ResponseWriter, r *http.Request) {
		s.record(r)
		w.Header().Set(`X-Served-By`, `test`)
		_, _ = io.WriteString(w, r.URL.Path)
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func (s *testServer) record(r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, recordedRequest{
		method: r.Method,
		path:   r.URL.Path,
		query:  r.URL.RawQuery,
		header: r.Header.Clone(),
		body:   string(body),
	})
}

func (s *testServer) recorded() []recordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]recordedRequest(nil), s.requests...)
}
