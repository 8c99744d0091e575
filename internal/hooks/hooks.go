// Package hooks is the Hook Chain (C6): an ordered, cancellable list of
// request/response interceptors registered once at config load (§4.6).
package hooks

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/moviebox/engine/pkg/pattern"
)

// ErrChainCancelled is returned when a hook sets Cancel to terminate the
// chain early.
var ErrChainCancelled = errors.New("hooks: chain cancelled")

// Request is the mutable request context a hook may rewrite.
type Request struct {
	URL     string
	Method  string
	Headers http.Header
}

// Response is the mutable response context a hook may rewrite.
type Response struct {
	Status  int
	Headers http.Header
	Host    string // origin host the response came from, for AdBlockHook
}

// Hook is the contract every built-in and user-registered interceptor
// implements. OnRequest may return a non-nil short-circuit Response instead
// of a rewritten Request, per §4.6's "req'|Short-circuit(resp)".
type Hook interface {
	Name() string
	OnRequest(req *Request) (short *Response, cancel bool, err error)
	OnResponse(resp *Response) (cancel bool, err error)
}

// Chain runs its hooks in registration order; order is deterministic and
// stable once built (§4.6).
type Chain struct {
	hooks []Hook
}

func NewChain(hooks ...Hook) *Chain {
	return &Chain{hooks: hooks}
}

// RunRequest applies every hook's OnRequest in order. If a hook
// short-circuits, the returned Response is final and no further hooks run.
func (c *Chain) RunRequest(req *Request) (short *Response, err error) {
	for _, h := range c.hooks {
		resp, cancel, hookErr := h.OnRequest(req)
		if hookErr != nil {
			return nil, hookErr
		}
		if cancel {
			return nil, ErrChainCancelled
		}
		if resp != nil {
			return resp, nil
		}
	}
	return nil, nil
}

// RunResponse applies every hook's OnResponse in order.
func (c *Chain) RunResponse(resp *Response) error {
	for _, h := range c.hooks {
		cancel, err := h.OnResponse(resp)
		if err != nil {
			return err
		}
		if cancel {
			return ErrChainCancelled
		}
	}
	return nil
}

// HostRewriteHook maps a request host to an alternate per a static table.
type HostRewriteHook struct {
	Rewrites map[string]string
}

func (h *HostRewriteHook) Name() string { return "host-rewrite" }

func (h *HostRewriteHook) OnRequest(req *Request) (*Response, bool, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, false, nil
	}
	alt, ok := h.Rewrites[u.Host]
	if !ok {
		return nil, false, nil
	}
	u.Host = alt
	req.URL = u.String()
	return nil, false, nil
}

func (h *HostRewriteHook) OnResponse(resp *Response) (bool, error) { return false, nil }

// AdBlockHook drops responses whose origin host matches any configured
// pattern (§4.6), compiled once via pkg/pattern at construction.
type AdBlockHook struct {
	compiled []*pattern.Pattern
}

// NewAdBlockHook compiles Config.adHostPatterns; malformed regexp patterns
// (`~`/`~*` prefix) are skipped rather than failing construction, since a
// single bad pattern in a remote config shouldn't disable ad-blocking
// entirely.
func NewAdBlockHook(hostPatterns []string) *AdBlockHook {
	h := &AdBlockHook{}
	for _, raw := range hostPatterns {
		p, err := pattern.Compile(raw)
		if err != nil {
			continue
		}
		h.compiled = append(h.compiled, p)
	}
	return h
}

func (h *AdBlockHook) Name() string { return "ad-block" }

func (h *AdBlockHook) OnRequest(req *Request) (*Response, bool, error) { return nil, false, nil }

func (h *AdBlockHook) OnResponse(resp *Response) (bool, error) {
	host := strings.ToLower(resp.Host)
	for _, p := range h.compiled {
		if p.Match(host) {
			return true, nil
		}
	}
	return false, nil
}

// CookieInjectHook attaches a static Cookie header to every outbound
// request, keyed by request host.
type CookieInjectHook struct {
	ByHost map[string]string
}

func (h *CookieInjectHook) Name() string { return "cookie-inject" }

func (h *CookieInjectHook) OnRequest(req *Request) (*Response, bool, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, false, nil
	}
	cookie, ok := h.ByHost[u.Host]
	if !ok || cookie == "" {
		return nil, false, nil
	}
	if req.Headers == nil {
		req.Headers = http.Header{}
	}
	if existing := req.Headers.Get("Cookie"); existing != "" {
		req.Headers.Set("Cookie", existing+"; "+cookie)
	} else {
		req.Headers.Set("Cookie", cookie)
	}
	return nil, false, nil
}

func (h *CookieInjectHook) OnResponse(resp *Response) (bool, error) { return false, nil }
