package instruction

import (
	"net/http"
	"sync"
)

// Response is the mutable response slot owned by an Instruction. It
// accumulates body bytes as they arrive and is freed immediately after the
// After hook returns (or immediately after completion if no After hook is
// registered).
type Response struct {
	mu         sync.Mutex
	body       []byte
	header     http.Header
	statusCode int
}

func newResponse() *Response {
	return &Response{}
}

// AppendBody grows the response body by b. Called by the dispatching
// engine's write callback as bytes arrive off the wire.
func (r *Response) AppendBody(b []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.body = append(r.body, b...)
}

// SetStatusCode records the observed HTTP status code.
func (r *Response) SetStatusCode(code int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statusCode = code
}

// SetHeader records the full response header set, for consumers (such as
// header-search hooks) that need more than the body.
func (r *Response) SetHeader(h http.Header) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.header = h
}

// Body returns the accumulated response bytes. The returned slice is only
// valid until Discard is called.
func (r *Response) Body() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.body
}

// Len reports the accumulated body length.
func (r *Response) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.body)
}

// StatusCode returns the observed HTTP status code, or zero if the request
// never completed.
func (r *Response) StatusCode() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statusCode
}

// Header reports the named response header, looked up case-insensitively.
func (r *Response) Header(name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.header == nil {
		return "", false
	}
	values, ok := r.header[http.CanonicalHeaderKey(name)]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// Discard frees the accumulated body. Called once the After hook has
// returned, or immediately on completion if there is no After hook.
func (r *Response) Discard() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.body = nil
}
