package hooks

import (
	"net/http"
	"testing"
)

func TestHostRewriteHook_RewritesMatchingHost(t *testing.T) {
	h := &HostRewriteHook{Rewrites: map[string]string{"old.example.com": "new.example.com"}}
	req := &Request{URL: "https://old.example.com/path"}

	if _, _, err := h.OnRequest(req); err != nil {
		t.Fatalf("OnRequest: %v", err)
	}
	if req.URL != "https://new.example.com/path" {
		t.Fatalf("got %q", req.URL)
	}
}

func TestAdBlockHook_DropsMatchingHost(t *testing.T) {
	h := NewAdBlockHook([]string{"*.ads.example.com", "~^track\\d+\\.net$"})

	cancel, err := h.OnResponse(&Response{Host: "banner.ads.example.com"})
	if err != nil || !cancel {
		t.Fatalf("expected cancel=true, got cancel=%v err=%v", cancel, err)
	}

	cancel, err = h.OnResponse(&Response{Host: "track42.net"})
	if err != nil || !cancel {
		t.Fatalf("expected regexp match to cancel, got cancel=%v err=%v", cancel, err)
	}

	cancel, err = h.OnResponse(&Response{Host: "safe.example.com"})
	if err != nil || cancel {
		t.Fatalf("expected no cancel for unmatched host, got cancel=%v err=%v", cancel, err)
	}
}

func TestCookieInjectHook_SetsCookieHeader(t *testing.T) {
	h := &CookieInjectHook{ByHost: map[string]string{"api.example.com": "sid=abc123"}}
	req := &Request{URL: "https://api.example.com/detail", Headers: http.Header{}}

	if _, _, err := h.OnRequest(req); err != nil {
		t.Fatalf("OnRequest: %v", err)
	}
	if got := req.Headers.Get("Cookie"); got != "sid=abc123" {
		t.Fatalf("got cookie %q", got)
	}
}

func TestChain_ShortCircuitsOnHookResponse(t *testing.T) {
	shortCircuit := &stubHook{shortResp: &Response{Status: 403}}
	c := NewChain(&HostRewriteHook{}, shortCircuit, &CookieInjectHook{})

	resp, err := c.RunRequest(&Request{URL: "https://example.com"})
	if err != nil {
		t.Fatalf("RunRequest: %v", err)
	}
	if resp == nil || resp.Status != 403 {
		t.Fatalf("expected short-circuit response, got %+v", resp)
	}
}

func TestChain_CancelPropagatesAsError(t *testing.T) {
	c := NewChain(&stubHook{wantCancel: true})
	_, err := c.RunRequest(&Request{URL: "https://example.com"})
	if err != ErrChainCancelled {
		t.Fatalf("expected ErrChainCancelled, got %v", err)
	}
}

type stubHook struct {
	shortResp  *Response
	wantCancel bool
}

func (s *stubHook) Name() string { return "stub" }

func (s *stubHook) OnRequest(req *Request) (*Response, bool, error) {
	return s.shortResp, s.wantCancel, nil
}

func (s *stubHook) OnResponse(resp *Response) (bool, error) { return false, nil }
