package fetcher

import (
	"net/url"
	"strings"
	"sync"

	"github.com/valyala/fasthttp"
)

// cookieJar is a minimal per-host cookie store. fasthttp has no built-in
// jar (unlike net/http.Client); Spiders that rely on session cookies across
// calls (login-gated CMS sites) need one, so the Fetcher carries its own.
type cookieJar struct {
	mu    sync.Mutex
	byHost map[string]map[string]string
}

func newCookieJar() *cookieJar {
	return &cookieJar{byHost: make(map[string]map[string]string)}
}

func (j *cookieJar) apply(req *fasthttp.Request, rawURL string) {
	host := hostOf(rawURL)
	if host == "" {
		return
	}
	j.mu.Lock()
	cookies := j.byHost[host]
	j.mu.Unlock()
	for k, v := range cookies {
		req.Header.SetCookie(k, v)
	}
}

func (j *cookieJar) store(resp *fasthttp.Response, rawURL string) {
	host := hostOf(rawURL)
	if host == "" {
		return
	}
	var kvs map[string]string
	resp.Header.VisitAllCookie(func(key, value []byte) {
		if kvs == nil {
			kvs = make(map[string]string)
		}
		kvs[string(key)] = string(value)
	})
	if kvs == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	existing, ok := j.byHost[host]
	if !ok {
		existing = make(map[string]string)
		j.byHost[host] = existing
	}
	for k, v := range kvs {
		existing[k] = v
	}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}
