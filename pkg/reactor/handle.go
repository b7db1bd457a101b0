package reactor

import "net/http"

// Handle is the live, per-dispatch view of an HTTP request that before/after
// hooks are allowed to manipulate. It implements instruction.ClientHandle
// without pkg/instruction ever importing this package.
type Handle struct {
	req              *http.Request
	disableRedirects bool
	proxyHost        string
	proxyPort        int
}

// Request returns the in-flight (or, in an after hook, completed) request.
func (h *Handle) Request() *http.Request {
	return h.req
}

// SetHeader sets an additional header on the outgoing request.
func (h *Handle) SetHeader(name, value string) {
	h.req.Header.Set(name, value)
}

// SetProxy overrides the proxy for this one dispatch.
func (h *Handle) SetProxy(host string, port int) {
	h.proxyHost = host
	h.proxyPort = port
}

// DisableRedirects prevents this one request from following redirects.
func (h *Handle) DisableRedirects() {
	h.disableRedirects = true
}
