// Package fetcher is the HTTP client wrapper (C1): per-site headers/UA/
// cookie jar, DoH resolution, outbound proxying, and the NetworkError/
// TimeoutError/TooManyRedirectsError taxonomy (§4.1, §7).
//
// Grounded on a fasthttp.Client wrapper with SSRF-safe dial and
// timeout-to-502 mapping, plus a shared SSRF guard reused verbatim for
// DoH-resolved IPs.
package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"

	commonurl "github.com/moviebox/engine/internal/common/urlutil"
)

const (
	maxRedirects  = 10
	maxBodyBytes  = 16 * 1024 * 1024 // 16 MiB per §4.1
	defaultUA     = "Mozilla/5.0 (MovieboxEngine)"
)

// Options configures a Fetcher at construction.
type Options struct {
	DefaultUserAgent string
	DefaultReferer   string
	DoHEndpoint      string // empty disables DoH
	OutboundProxy    string // empty disables process-wide outbound proxy
	SSRFProtection   bool
}

// Fetcher is shared (read-mostly) across all Spiders, per §5.
type Fetcher struct {
	opts    Options
	client  *fasthttp.Client
	logger  *zap.Logger
	jar     *cookieJar
	limiter sync.Map // site key -> *rate.Limiter
}

func New(opts Options, logger *zap.Logger) *Fetcher {
	client := &fasthttp.Client{
		MaxConnsPerHost:     512,
		ReadBufferSize:      64 * 1024,
		MaxResponseBodySize: maxBodyBytes,
	}

	if opts.SSRFProtection {
		client.Dial = ssrfSafeDial
	}
	if opts.DoHEndpoint != "" {
		client.Dial = dohDial(opts.DoHEndpoint, opts.SSRFProtection)
	}
	if opts.OutboundProxy != "" {
		client.Dial = fasthttpProxyDial(opts.OutboundProxy)
	}

	return &Fetcher{
		opts:   opts,
		client: client,
		logger: logger,
		jar:    newCookieJar(),
	}
}

// SetDial overrides the underlying client's dial function. Exported for
// tests in other packages that need to point a Fetcher at an in-memory
// listener instead of the network.
func (f *Fetcher) SetDial(dial fasthttp.DialFunc) {
	f.client.Dial = dial
}

// Request describes one outbound call.
type Request struct {
	SiteKey string
	URL     string
	Method  string
	Headers map[string]string
	Body    []byte
	Timeout time.Duration
}

// Response is the normalized outcome of a fetch.
type Response struct {
	Status  int
	Headers map[string][]string
	Body    []byte
}

// FetchBytes performs the request and returns the raw response body.
func (f *Fetcher) FetchBytes(ctx context.Context, r Request) (*Response, error) {
	if r.Method == "" {
		r.Method = "GET"
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	if err := f.rateLimit(ctx, r.SiteKey); err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(r.URL)
	req.Header.SetMethod(r.Method)
	f.applyDefaultHeaders(req, r.Headers)
	if len(r.Body) > 0 {
		req.SetBody(r.Body)
	}
	f.jar.apply(req, r.URL)

	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	redirects := 0
	currentReq := req
	for {
		err := f.client.DoDeadline(currentReq, resp, deadline)
		if err != nil {
			return nil, classifyError(err)
		}

		status := resp.StatusCode()
		f.jar.store(resp, r.URL)

		if status >= 300 && status < 400 {
			location := string(resp.Header.Peek("Location"))
			if location == "" {
				break
			}
			redirects++
			if redirects > maxRedirects {
				return nil, ErrTooManyRedirects
			}
			currentReq.SetRequestURI(location)
			resp.Reset()
			continue
		}
		break
	}

	if resp.Header.ContentLength() > maxBodyBytes || len(resp.Body()) > maxBodyBytes {
		return nil, ErrBodyTooLarge
	}

	headers := make(map[string][]string)
	resp.Header.VisitAll(func(key, value []byte) {
		k := string(key)
		headers[k] = append(headers[k], string(value))
	})

	body := make([]byte, len(resp.Body()))
	copy(body, resp.Body())

	return &Response{Status: resp.StatusCode(), Headers: headers, Body: body}, nil
}

// StreamResponse is the normalized outcome of a FetchStream call: headers
// arrive eagerly, the body arrives lazily through Body.
type StreamResponse struct {
	Status  int
	Headers map[string][]string
	Body    io.ReadCloser
}

// FetchStream performs the request like FetchBytes but never buffers the
// response body into memory: callers that must relay large payloads (the
// Local Proxy's /proxy passthrough) read Body directly and copy it
// straight to their own destination. The returned Body still enforces
// maxBodyBytes, just incrementally instead of up front. Callers MUST
// Close the returned Body exactly once to release the pooled request and
// response back to fasthttp.
func (f *Fetcher) FetchStream(ctx context.Context, r Request) (*StreamResponse, error) {
	if r.Method == "" {
		r.Method = "GET"
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	if err := f.rateLimit(ctx, r.SiteKey); err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	resp.StreamBody = true

	release := func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}

	req.SetRequestURI(r.URL)
	req.Header.SetMethod(r.Method)
	f.applyDefaultHeaders(req, r.Headers)
	if len(r.Body) > 0 {
		req.SetBody(r.Body)
	}
	f.jar.apply(req, r.URL)

	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	redirects := 0
	for {
		if err := f.client.DoDeadline(req, resp, deadline); err != nil {
			release()
			return nil, classifyError(err)
		}

		status := resp.StatusCode()
		f.jar.store(resp, r.URL)

		if status >= 300 && status < 400 {
			location := string(resp.Header.Peek("Location"))
			if location == "" {
				break
			}
			redirects++
			if redirects > maxRedirects {
				release()
				return nil, ErrTooManyRedirects
			}
			req.SetRequestURI(location)
			resp.Reset()
			resp.StreamBody = true
			continue
		}
		break
	}

	if cl := resp.Header.ContentLength(); cl > maxBodyBytes {
		release()
		return nil, ErrBodyTooLarge
	}

	headers := make(map[string][]string)
	resp.Header.VisitAll(func(key, value []byte) {
		headers[string(key)] = append(headers[string(key)], string(value))
	})

	body := &limitedBodyStream{r: resp.BodyStream(), remaining: maxBodyBytes, release: release}
	return &StreamResponse{Status: resp.StatusCode(), Headers: headers, Body: body}, nil
}

// limitedBodyStream enforces maxBodyBytes across a streamed read instead
// of inspecting a fully-buffered body, and releases the pooled
// fasthttp.Request/Response once the caller is done with it.
type limitedBodyStream struct {
	r         io.Reader
	remaining int64
	release   func()
	released  bool
}

func (s *limitedBodyStream) Read(p []byte) (int, error) {
	if s.remaining <= 0 {
		return 0, ErrBodyTooLarge
	}
	if int64(len(p)) > s.remaining {
		p = p[:s.remaining]
	}
	n, err := s.r.Read(p)
	s.remaining -= int64(n)
	return n, err
}

func (s *limitedBodyStream) Close() error {
	if !s.released {
		s.released = true
		s.release()
	}
	return nil
}

// FetchString performs the request and decodes the body per its
// Content-Type charset, falling back to UTF-8 (§4.1).
func (f *Fetcher) FetchString(ctx context.Context, r Request) (string, *Response, error) {
	resp, err := f.FetchBytes(ctx, r)
	if err != nil {
		return "", nil, err
	}

	contentType := firstHeader(resp.Headers, "Content-Type")
	reader, err := charset.NewReader(bytes.NewReader(resp.Body), contentType)
	if err != nil {
		return string(resp.Body), resp, nil
	}
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return string(resp.Body), resp, nil
	}
	return string(decoded), resp, nil
}

func (f *Fetcher) applyDefaultHeaders(req *fasthttp.Request, overrides map[string]string) {
	ua := f.opts.DefaultUserAgent
	if ua == "" {
		ua = defaultUA
	}
	req.Header.Set("User-Agent", ua)
	if f.opts.DefaultReferer != "" {
		req.Header.Set("Referer", f.opts.DefaultReferer)
	}
	for k, v := range overrides {
		req.Header.Set(k, v)
	}
}

func (f *Fetcher) rateLimit(ctx context.Context, siteKey string) error {
	if siteKey == "" {
		return nil
	}
	v, _ := f.limiter.LoadOrStore(siteKey, rate.NewLimiter(rate.Inf, 1))
	limiter := v.(*rate.Limiter)
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return nil
}

// SetSiteRateLimit configures a per-site outbound rate limit (requests/sec).
func (f *Fetcher) SetSiteRateLimit(siteKey string, requestsPerSecond float64, burst int) {
	if burst <= 0 {
		burst = 1
	}
	f.limiter.Store(siteKey, rate.NewLimiter(rate.Limit(requestsPerSecond), burst))
}

func classifyError(err error) error {
	switch {
	case err == fasthttp.ErrTimeout || err == fasthttp.ErrDialTimeout:
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	default:
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
}

func firstHeader(headers map[string][]string, key string) string {
	for k, v := range headers {
		if strings.EqualFold(k, key) && len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

// ssrfSafeDial rejects connections to private/reserved IP literals before
// establishing a TCP connection (reused from urlutil, grounded on
// bypass_service.go's default-on SSRF protection).
func ssrfSafeDial(addr string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	if err := commonurl.ValidateHostNotPrivateIP(commonurl.ExtractHostname(host)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return fasthttp.Dial(addr)
}
