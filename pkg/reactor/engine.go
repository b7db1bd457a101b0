// Package reactor is the per-worker Reactor Engine: given a slice of
// request descriptors, it dispatches all of them concurrently over a
// shared, connection-reusing HTTP client and invokes the descriptors'
// hooks around each dispatch.
//
// Go's own runtime scheduler, driving goroutines over the OS's async I/O
// facilities, is the idiomatic replacement for a hand-rolled poll/timer
// reactor multiplexing a third-party HTTP client: there is no separate
// "reactor" type here, only a bounded-concurrency dispatch loop over
// *http.Client.
package reactor

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/swarmreq/swarmreq/pkg/instruction"
	"github.com/swarmreq/swarmreq/pkg/internal/strsan"
	"github.com/swarmreq/swarmreq/pkg/swarmlog"
	"github.com/swarmreq/swarmreq/pkg/swarmmetrics"
)

// Config tunes one Engine's shared HTTP client.
type Config struct {
	// PoolSize bounds how many requests this engine dispatches at once,
	// standing in for a libcurl multi-handle's easy-handle pool size.
	PoolSize int
	// MaxResponseBytes caps how much of a response body is accumulated
	// per request. Zero means unbounded (not recommended).
	MaxResponseBytes int64
	// DNSCacheTimeout bounds how long a resolved address is reused before
	// a fresh lookup is issued.
	DNSCacheTimeout time.Duration
	// InsecureSkipVerify controls TLS peer verification. Default true,
	// matching the contract that the engine disables it unless told
	// otherwise.
	InsecureSkipVerify bool
	// Metrics receives one ObserveTransportStatus call per completed
	// dispatch. A nil Registry makes this a no-op.
	Metrics *swarmmetrics.Registry
}

// DefaultConfig returns the Engine configuration used when a worker
// doesn't override anything.
func DefaultConfig() Config {
	return Config{
		PoolSize:           64,
		MaxResponseBytes:   16 << 20,
		DNSCacheTimeout:    60 * time.Second,
		InsecureSkipVerify: true,
	}
}

// Engine dispatches one worker's slice of instructions.
type Engine struct {
	cfg       Config
	log       swarmlog.Logger
	transport *http.Transport
	client    *http.Client

	jarMu sync.Mutex
	jars  map[string]http.CookieJar
}

// New constructs an Engine with its own shared transport, sized for
// cfg.PoolSize concurrent connections per host (the Go analog of reusing
// libcurl easy-handles instead of opening a fresh connection per request).
func New(log swarmlog.Logger, cfg Config) *Engine {
	cache := newDNSCache(cfg.DNSCacheTimeout)
	transport := &http.Transport{
		DialContext:         cache.dialContext,
		MaxIdleConnsPerHost: cfg.PoolSize,
		MaxConnsPerHost:     cfg.PoolSize,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify},
	}
	return &Engine{
		cfg:       cfg,
		log:       log,
		transport: transport,
		client:    &http.Client{Transport: transport},
		jars:      make(map[string]http.CookieJar),
	}
}

// Run dispatches every instruction in slice concurrently, bounded by
// cfg.PoolSize, and returns once all of them have completed. Per-request
// transport failures are recorded on the instruction, not returned here;
// Run itself only fails if the context is canceled before completion.
func (e *Engine) Run(ctx context.Context, slice []*instruction.Instruction) error {
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, max(1, e.cfg.PoolSize))

	for _, instr := range slice {
		instr := instr
		select {
		case sem <- struct{}{}:
		case <-gctx.Done():
			_ = g.Wait()
			return ctx.Err()
		}
		g.Go(func() error {
			defer func() { <-sem }()
			e.dispatch(gctx, instr)
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

// dispatch runs one instruction end to end: build the request, invoke
// Before, perform the round trip, accumulate the response, invoke After if
// the response-code filter accepts, then discard the response buffer.
func (e *Engine) dispatch(ctx context.Context, instr *instruction.Instruction) {
	url := e.buildURL(instr)
	e.log.WithField("instruction_id", instr.ID).
		Debugf("reactor: dispatching %s %s", instr.Method, strsan.SanitizeForLog(url))

	req, err := e.buildRequest(ctx, instr, url)
	if err != nil {
		e.finishDispatch(instr, err)
		return
	}

	handle := &Handle{req: req}
	if instr.Before != nil {
		instr.Before(instr, handle)
	}

	client := e.clientFor(instr, handle)
	resp, err := client.Do(handle.req)
	if err != nil {
		e.log.WithField("instruction_id", instr.ID).
			Debugf("reactor: transport error for %s: %s", strsan.SanitizeForLog(url), strsan.SanitizeForLog(err.Error()))
		e.finishDispatch(instr, err)
		return
	}
	defer resp.Body.Close()

	response := instr.Response()
	response.SetStatusCode(resp.StatusCode)
	response.SetHeader(resp.Header)

	if instr.IncludeHeadersInBody {
		var headerBuf bytes.Buffer
		resp.Header.Write(&headerBuf)
		response.AppendBody(headerBuf.Bytes())
	}

	if err := e.accumulateBody(resp.Body, response); err != nil {
		e.finishDispatch(instr, err)
		response.Discard()
		return
	}
	e.finishDispatch(instr, nil)

	if instr.AcceptsResponseCode(resp.StatusCode) && instr.After != nil {
		instr.After(instr, handle, response)
	}
	response.Discard()
}

// finishDispatch records one dispatch's transport outcome on the
// instruction and, if a metrics registry is configured, as a
// "ok"/"error" observation.
func (e *Engine) finishDispatch(instr *instruction.Instruction, err error) {
	instr.SetTransportStatus(err)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	e.cfg.Metrics.ObserveTransportStatus(outcome)
}

func (e *Engine) accumulateBody(body io.Reader, response *instruction.Response) error {
	max := e.cfg.MaxResponseBytes
	if max <= 0 {
		max = 1 << 62
	}
	limited := io.LimitReader(body, max+1)
	buf, err := io.ReadAll(limited)
	if err != nil {
		return fmt.Errorf("reactor: read response body: %w", err)
	}
	if int64(len(buf)) > max {
		return ErrResponseTooLarge
	}
	response.AppendBody(buf)
	return nil
}

func (e *Engine) buildURL(instr *instruction.Instruction) string {
	host := instr.Host
	if instr.Port != 0 && instr.Port != defaultPortFor(instr.Scheme()) {
		host = net.JoinHostPort(instr.Host, strconv.Itoa(instr.Port))
	}
	return instr.Scheme() + "://" + host + instr.Path()
}

func defaultPortFor(scheme string) int {
	if scheme == "https" {
		return 443
	}
	return 80
}

func (e *Engine) buildRequest(ctx context.Context, instr *instruction.Instruction, url string) (*http.Request, error) {
	var body io.Reader
	method := string(instr.Method)
	switch instr.Method {
	case instruction.MethodGet:
		method = http.MethodGet
	case instruction.MethodPost:
		method = http.MethodPost
		body = bytes.NewReader(instr.PostBody)
	case instruction.MethodHead:
		method = http.MethodHead
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("reactor: build request: %w", err)
	}
	req.Header.Set("User-Agent", instr.UserAgent)
	for _, h := range instr.Headers() {
		if name, value, ok := h.Split(); ok {
			req.Header.Add(name, value)
		}
	}
	return req, nil
}

// clientFor returns the engine's shared client unless this instruction
// needs per-request behavior (proxy, disabled redirects, a cookie jar)
// that the shared client can't carry, in which case it builds a client for
// this one dispatch. That client reuses the shared transport, except that a
// proxied dispatch gets a clone of it with the proxy set.
func (e *Engine) clientFor(instr *instruction.Instruction, handle *Handle) *http.Client {
	needsProxy := instr.UseProxy || handle.proxyHost != ""
	needsCustom := needsProxy || instr.CookieFile != "" || !instr.FollowRedirects || handle.disableRedirects
	if !needsCustom {
		return e.client
	}

	client := &http.Client{Transport: e.transport}
	if needsProxy {
		host, port := instr.Proxy, instr.ProxyPort
		if handle.proxyHost != "" {
			host, port = handle.proxyHost, handle.proxyPort
		}
		transport := e.transport.Clone()
		transport.Proxy = http.ProxyURL(&url.URL{
			Scheme: "http",
			Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		})
		client.Transport = transport
	}
	if !instr.FollowRedirects || handle.disableRedirects {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	if instr.CookieFile != "" {
		client.Jar = e.jarFor(instr.CookieFile)
	}
	return client
}

func (e *Engine) jarFor(path string) http.CookieJar {
	e.jarMu.Lock()
	defer e.jarMu.Unlock()
	if jar, ok := e.jars[path]; ok {
		return jar
	}
	jar, _ := cookiejar.New(nil)
	e.jars[path] = jar
	return jar
}
