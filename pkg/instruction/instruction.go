// Package instruction defines the Request Descriptor: the immutable-after-
// submit specification of one HTTP call, plus its mutable response slot and
// user hooks.
package instruction

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-shellwords"
)

// Method identifies the HTTP verb a descriptor dispatches as.
type Method string

// The methods the reactor engine gives dedicated dispatch treatment to, per
// spec: GET sets HTTPGET, POST sets POST+body, HEAD sets NOBODY. Anything
// else is sent as a custom request method.
const (
	MethodGet    Method = http.MethodGet
	MethodPost   Method = http.MethodPost
	MethodHead   Method = http.MethodHead
	MethodPut    Method = http.MethodPut
	MethodDelete Method = http.MethodDelete
)

// DefaultUserAgent is applied to a descriptor unless SetUserAgent overrides
// it.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) swarmreq/1.0"

// HeaderLine is one raw "Name: Value" header line, preserved verbatim so
// that duplicate headers and the caller's original ordering survive
// dispatch.
type HeaderLine string

// Split parses the header line into a name and value. ok is false if the
// line has no colon separator.
func (h HeaderLine) Split() (name, value string, ok bool) {
	idx := strings.IndexByte(string(h), ':')
	if idx < 0 {
		return "", "", false
	}
	name = strings.TrimSpace(string(h)[:idx])
	value = strings.TrimSpace(string(h)[idx+1:])
	return name, value, name != ""
}

// ClientHandle is the narrow, capability-scoped view of the live HTTP
// client handle that Before/After hooks are allowed to manipulate. It is
// implemented by pkg/reactor.Handle. Instruction never imports pkg/reactor:
// hooks receive this interface as a parameter instead of the descriptor
// carrying a back-reference to the engine that dispatches it.
type ClientHandle interface {
	// Request returns the in-flight (or, in After, completed) HTTP request.
	Request() *http.Request
	// SetHeader sets an additional header on the outgoing request.
	SetHeader(name, value string)
	// SetProxy overrides the proxy for this one dispatch.
	SetProxy(host string, port int)
	// DisableRedirects prevents this one request from following redirects,
	// regardless of the descriptor's FollowRedirects setting.
	DisableRedirects()
}

// BeforeHook runs synchronously on the worker goroutine immediately before
// dispatch, with the live client handle, so hook code can apply final
// client options the descriptor doesn't model directly.
type BeforeHook func(instr *Instruction, handle ClientHandle)

// AfterHook runs synchronously on the worker goroutine after the transport
// completes, but only if the response code matches the descriptor's filter.
type AfterHook func(instr *Instruction, handle ClientHandle, resp *Response)

// Instruction is one HTTP request's full specification: its target, its
// dispatch options, its hooks, and the response slot they observe.
//
// Construction is single-owner: New is the only way to create one, and it
// never wraps another constructor call, so a descriptor's resources have
// exactly one owner from construction through dispatch.
type Instruction struct {
	// ID correlates before/after/finish log lines for this instruction
	// across the fork boundary.
	ID uuid.UUID

	Host string
	Port int
	SSL  bool

	Method   Method
	PostBody []byte

	UserAgent            string
	CookieFile           string
	Proxy                string
	ProxyPort            int
	UseProxy             bool
	FollowRedirects      bool
	IncludeHeadersInBody bool
	Verbose              bool

	// ExpectedResponseCode filters After invocation: 0 means "any code".
	ExpectedResponseCode uint

	// ConnectTimeout and HTTPTimeout are reserved for the reactor engine's
	// per-request client configuration; the core does not enforce them
	// itself (the worker-level SIGALRM timeout is the enforced bound).
	ConnectTimeout time.Duration
	HTTPTimeout    time.Duration
	// DNSCacheTimeout is carried on the descriptor but not read by the
	// reactor, which applies its own engine-level DNS cache lifetime to
	// every request.
	DNSCacheTimeout time.Duration

	// ExtraClientFlags is a free-form curl-style flag string for attaching
	// miscellaneous client options the core doesn't special-case. Tokenize
	// with ExtraFlags before use.
	ExtraClientFlags string

	Before BeforeHook
	After  AfterHook

	path    string
	headers []HeaderLine

	response        *Response
	transportStatus error
}

// New constructs an Instruction targeting host and path. path is normalized
// immediately: it is given exactly one leading slash, and any further
// leading slashes are collapsed.
func New(host, path string) (*Instruction, error) {
	if host == "" {
		return nil, ErrEmptyHost
	}
	return &Instruction{
		ID:        uuid.New(),
		Host:      host,
		Port:      80,
		Method:    MethodGet,
		UserAgent: DefaultUserAgent,
		path:      normalizePath(path),
		response:  newResponse(),
	}, nil
}

// normalizePath gives p exactly one leading slash, collapsing any run of
// leading slashes into one, matching spec.md's invariant: P[0] == '/' and
// P[0:2] != "//". Internal slashes are left untouched; this only concerns
// the leading edge, unlike a general path.Clean.
func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	if p[0] != '/' {
		return "/" + p
	}
	i := 0
	for i < len(p) && p[i] == '/' {
		i++
	}
	return "/" + p[i:]
}

// SetPath replaces the descriptor's path, re-normalizing it.
func (i *Instruction) SetPath(path string) {
	i.path = normalizePath(path)
}

// Path returns the normalized path.
func (i *Instruction) Path() string {
	return i.path
}

// SetPort validates and sets the descriptor's target port.
func (i *Instruction) SetPort(port int) error {
	if port < 1 || port > 65535 {
		return ErrInvalidPort
	}
	i.Port = port
	return nil
}

// AddHeader appends an "Name: Value" header line. Order is preserved and
// duplicate header names are allowed, matching spec.md's invariant.
func (i *Instruction) AddHeader(line string) {
	i.headers = append(i.headers, HeaderLine(line))
}

// Headers returns the descriptor's header lines in insertion order.
func (i *Instruction) Headers() []HeaderLine {
	return i.headers
}

// SetUserAgent replaces the descriptor's User-Agent string.
func (i *Instruction) SetUserAgent(ua string) {
	i.UserAgent = ua
}

// Scheme returns "https" if SSL is set, "http" otherwise.
func (i *Instruction) Scheme() string {
	if i.SSL {
		return "https"
	}
	return "http"
}

// ExtraFlags tokenizes ExtraClientFlags the way a shell would, for hooks
// that want to apply ad hoc, unmodeled client options.
func (i *Instruction) ExtraFlags() ([]string, error) {
	if i.ExtraClientFlags == "" {
		return nil, nil
	}
	return shellwords.Parse(i.ExtraClientFlags)
}

// Response returns the descriptor's response slot.
func (i *Instruction) Response() *Response {
	return i.response
}

// SetTransportStatus records the transport-layer result of dispatching this
// instruction. A nil status means the transport completed without error;
// callers should still check the response's status code.
func (i *Instruction) SetTransportStatus(err error) {
	i.transportStatus = err
}

// TransportStatus reports the transport-layer result captured by
// SetTransportStatus.
func (i *Instruction) TransportStatus() error {
	return i.transportStatus
}

// AcceptsResponseCode reports whether code satisfies the descriptor's
// response-code filter: ExpectedResponseCode == 0 accepts anything.
func (i *Instruction) AcceptsResponseCode(code int) bool {
	return i.ExpectedResponseCode == 0 || int(i.ExpectedResponseCode) == code
}
