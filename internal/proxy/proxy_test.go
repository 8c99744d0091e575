package proxy

import (
	"errors"
	"net"
	"strings"
	"testing"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
	"go.uber.org/zap"

	"github.com/moviebox/engine/internal/cache"
	"github.com/moviebox/engine/internal/extractor"
	"github.com/moviebox/engine/internal/fetcher"
)

var errTestDialRefused = errors.New("dial refused")

type stubStatus struct{}

func (stubStatus) Epoch() uint64            { return 7 }
func (stubStatus) SitesLoaded() int         { return 3 }
func (stubStatus) CacheStats() cache.Stats  { return cache.Stats{MemoryLen: 2} }

// newTestProxy wires a Local Proxy whose Fetcher dials into an in-memory
// origin server instead of the network, mirroring the fetcher package's
// own fasthttputil-based test harness.
func newTestProxy(t *testing.T, originHandler fasthttp.RequestHandler) (*Server, func()) {
	t.Helper()

	originLn := fasthttputil.NewInmemoryListener()
	originSrv := &fasthttp.Server{Handler: originHandler}
	go func() { _ = originSrv.Serve(originLn) }()

	f := fetcher.New(fetcher.Options{}, zap.NewNop())
	f.SetDial(func(addr string) (net.Conn, error) { return originLn.Dial() })

	pipeline := extractor.NewPipeline(nil, nil)
	s := New(f, pipeline, stubStatus{}, zap.NewNop(), Options{Addr: "unused"})

	return s, func() { originLn.Close() }
}

func TestHandleStatus_ReportsLiveFigures(t *testing.T) {
	s, cleanup := newTestProxy(t, func(ctx *fasthttp.RequestCtx) {})
	defer cleanup()

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("/")
	s.handle(ctx)

	body := string(ctx.Response.Body())
	if !strings.Contains(body, `"sitesLoaded":3`) || !strings.Contains(body, `"epoch":7`) {
		t.Fatalf("unexpected status body: %s", body)
	}
}

func TestHandleProxy_RelaysOriginResponse(t *testing.T) {
	s, cleanup := newTestProxy(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(200)
		ctx.SetContentType("text/plain")
		ctx.SetBodyString("origin body")
	})
	defer cleanup()

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("/proxy?url=http://origin/path")
	s.handle(ctx)

	if ctx.Response.StatusCode() != 200 {
		t.Fatalf("status = %d", ctx.Response.StatusCode())
	}
	if string(ctx.Response.Body()) != "origin body" {
		t.Fatalf("body = %q", ctx.Response.Body())
	}
}

func TestHandleProxy_MissingURLIsBadRequest(t *testing.T) {
	s, cleanup := newTestProxy(t, func(ctx *fasthttp.RequestCtx) {})
	defer cleanup()

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("/proxy")
	s.handle(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusBadRequest {
		t.Fatalf("status = %d", ctx.Response.StatusCode())
	}
}

func TestHandleProxy_UpstreamFailureReportsWrappedErrorShape(t *testing.T) {
	s, cleanup := newTestProxy(t, func(ctx *fasthttp.RequestCtx) {})
	defer cleanup()

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("/proxy?url=http://origin/timeout")
	s.fetcher.SetDial(func(addr string) (net.Conn, error) { return nil, errTestDialRefused })
	s.handle(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusBadGateway {
		t.Fatalf("status = %d", ctx.Response.StatusCode())
	}
	body := string(ctx.Response.Body())
	if !strings.Contains(body, `"error":"upstream:`) {
		t.Fatalf("expected wrapped error shape, got %s", body)
	}
}

func TestHandleParse_DirectMediaPassesThrough(t *testing.T) {
	s, cleanup := newTestProxy(t, func(ctx *fasthttp.RequestCtx) {})
	defer cleanup()

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("/parse?url=https://cdn.example.com/a.mp4")
	s.handle(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("status = %d, body = %s", ctx.Response.StatusCode(), ctx.Response.Body())
	}
	if !strings.Contains(string(ctx.Response.Body()), "cdn.example.com/a.mp4") {
		t.Fatalf("unexpected parse body: %s", ctx.Response.Body())
	}
}
