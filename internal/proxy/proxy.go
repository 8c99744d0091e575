// Package proxy is the Local Proxy (C10): an embedded fasthttp server
// exposing /, /proxy, /parse, and /m3u8 to clients needing a local origin
// (§4.10).
package proxy

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/moviebox/engine/internal/cache"
	"github.com/moviebox/engine/internal/common/requestid"
	"github.com/moviebox/engine/internal/extractor"
	"github.com/moviebox/engine/internal/fetcher"
	"github.com/moviebox/engine/internal/metrics"
)

const serverName = "moviebox-engine/1.0"

// StatusProvider supplies the health/status surface's live figures; the
// Orchestrator implements it.
type StatusProvider interface {
	Epoch() uint64
	SitesLoaded() int
	CacheStats() cache.Stats
}

// Server is the embedded HTTP server exposing the play-support endpoints.
type Server struct {
	fetcher  *fetcher.Fetcher
	pipeline *extractor.Pipeline
	status   StatusProvider
	logger   *zap.Logger

	srv     *fasthttp.Server
	addr    string
	metrics *metrics.Metrics
}

// SetMetrics attaches a Prometheus sink; nil-safe when never called.
func (s *Server) SetMetrics(m *metrics.Metrics) { s.metrics = m }

// Options configures the Local Proxy.
type Options struct {
	Addr        string
	IdleTimeout time.Duration // default 30s per §4.10
}

func New(f *fetcher.Fetcher, pipeline *extractor.Pipeline, status StatusProvider, logger *zap.Logger, opts Options) *Server {
	idle := opts.IdleTimeout
	if idle <= 0 {
		idle = 30 * time.Second
	}

	s := &Server{fetcher: f, pipeline: pipeline, status: status, logger: logger, addr: opts.Addr}
	s.srv = &fasthttp.Server{
		Handler:                      s.handle,
		Name:                         serverName,
		IdleTimeout:                  idle,
		DisablePreParseMultipartForm: true,
		NoDefaultServerHeader:        true,
		NoDefaultDate:                true,
	}
	return s
}

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.addr }

// ListenAndServe blocks serving on Addr until the server is shut down.
func (s *Server) ListenAndServe() error {
	s.logger.Info("local proxy listening", zap.String("addr", s.addr))
	return s.srv.ListenAndServe(s.addr)
}

// Shutdown gracefully drains in-flight connections.
func (s *Server) Shutdown() error {
	return s.srv.Shutdown()
}

func (s *Server) handle(ctx *fasthttp.RequestCtx) {
	route := string(ctx.Path())
	reqID := requestid.GenerateRequestID(string(ctx.Request.Header.Peek("X-Request-Id")))
	ctx.Response.Header.Set("X-Request-Id", reqID)

	switch route {
	case "/":
		s.handleStatus(ctx)
	case "/proxy":
		s.handleProxy(ctx)
	case "/parse":
		s.handleParse(ctx)
	case "/m3u8":
		s.handleM3U8(ctx)
	default:
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	}

	status := ctx.Response.StatusCode()
	s.logger.Debug("local proxy request",
		zap.String("requestId", reqID),
		zap.String("route", route),
		zap.Int("status", status))

	if s.metrics != nil {
		s.metrics.RecordProxyRequest(route, statusClass(status))
	}
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// statusPayload is the supplemented health/status surface (§9): a
// liveness endpoint alongside the Local Proxy's other routes.
type statusPayload struct {
	Status      string      `json:"status"`
	Epoch       uint64      `json:"epoch"`
	SitesLoaded int         `json:"sitesLoaded"`
	CacheStats  cache.Stats `json:"cacheStats"`
}

func (s *Server) handleStatus(ctx *fasthttp.RequestCtx) {
	payload := statusPayload{Status: "ok"}
	if s.status != nil {
		payload.Epoch = s.status.Epoch()
		payload.SitesLoaded = s.status.SitesLoaded()
		payload.CacheStats = s.status.CacheStats()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

// handleProxy transparently relays a request to an arbitrary origin URL,
// so a client behind a restrictive network only ever talks to this
// process (§4.10). The origin's body is never buffered in full: it is
// copied straight through to the client as it arrives, so a multi-hundred-
// megabyte video segment costs this process a constant amount of memory
// rather than one full copy per in-flight request.
func (s *Server) handleProxy(ctx *fasthttp.RequestCtx) {
	target := string(ctx.QueryArgs().Peek("url"))
	if target == "" {
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		return
	}

	stream, err := s.fetcher.FetchStream(ctx, fetcher.Request{URL: target, Timeout: 30 * time.Second})
	if err != nil {
		writeError(ctx, "upstream", err, fasthttp.StatusBadGateway)
		return
	}

	ctx.SetStatusCode(stream.Status)
	if ct := firstHeader(stream.Headers, "Content-Type"); ct != "" {
		ctx.SetContentType(ct)
	}

	logger := s.logger
	ctx.SetBodyStreamWriter(func(w *bufio.Writer) {
		defer stream.Body.Close()
		if _, err := io.Copy(w, stream.Body); err != nil {
			logger.Warn("proxy stream copy failed", zap.Error(err))
		}
		w.Flush()
	})
}

// handleParse resolves a raw playable identifier through the Extractor
// Pipeline and returns the direct URL + headers as JSON (§4.10: the HTTP
// surface over C7 for clients that can't run extraction themselves).
func (s *Server) handleParse(ctx *fasthttp.RequestCtx) {
	rawURL := string(ctx.QueryArgs().Peek("url"))
	if rawURL == "" {
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		return
	}

	result, err := s.pipeline.Resolve(ctx, rawURL, nil)
	if err != nil {
		if errors.Is(err, extractor.ErrUnresolved) {
			writeError(ctx, "unresolved", err, fasthttp.StatusNotFound)
			return
		}
		writeError(ctx, "parse", err, fasthttp.StatusUnprocessableEntity)
		return
	}

	body, err := json.Marshal(result)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

// handleM3U8 fetches a remote playlist and rewrites every segment/key URI
// to route back through /proxy, so a client with no direct origin access
// can still play an HLS stream (§4.10).
func (s *Server) handleM3U8(ctx *fasthttp.RequestCtx) {
	rawURL := string(ctx.QueryArgs().Peek("url"))
	if rawURL == "" {
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		return
	}

	proxify := func(absoluteURL string) string {
		return "/proxy?url=" + url.QueryEscape(absoluteURL)
	}

	rewritten, err := extractor.M3U8FetchRewrite(ctx, s.fetcher, "", rawURL, nil, proxify)
	if err != nil {
		writeError(ctx, "m3u8", err, fasthttp.StatusBadGateway)
		return
	}

	ctx.SetContentType("application/vnd.apple.mpegurl")
	ctx.SetBody(rewritten)
}

// writeError encodes an error as the engine-wide `{"error":"<kind>:
// <message>"}` wire shape (§6) and sets the given status code.
func writeError(ctx *fasthttp.RequestCtx, kind string, err error, statusCode int) {
	ctx.SetStatusCode(statusCode)
	ctx.SetContentType("application/json")
	body, _ := json.Marshal(map[string]string{"error": fmt.Sprintf("%s: %v", kind, err)})
	ctx.SetBody(body)
}

func firstHeader(h map[string][]string, key string) string {
	if vs, ok := h[key]; ok && len(vs) > 0 {
		return vs[0]
	}
	return ""
}
