package fetcher

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
	"go.uber.org/zap"
)

func TestFetchBytes_BasicGet(t *testing.T) {
	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{
		Handler: func(ctx *fasthttp.RequestCtx) {
			ctx.SetStatusCode(200)
			ctx.SetBodyString("hello world")
		},
	}
	go func() { _ = srv.Serve(ln) }()
	defer ln.Close()

	f := New(Options{}, zap.NewNop())
	f.client.Dial = func(addr string) (net.Conn, error) { return ln.Dial() }

	resp, err := f.FetchBytes(context.Background(), Request{URL: "http://test/ping"})
	require.NoError(t, err)
	require.Equal(t, 200, resp.Status)
	require.Equal(t, "hello world", string(resp.Body))
}

func TestFetchBytes_TooManyRedirects(t *testing.T) {
	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{
		Handler: func(ctx *fasthttp.RequestCtx) {
			ctx.SetStatusCode(302)
			ctx.Response.Header.Set("Location", "http://test/next")
		},
	}
	go func() { _ = srv.Serve(ln) }()
	defer ln.Close()

	f := New(Options{}, zap.NewNop())
	f.client.Dial = func(addr string) (net.Conn, error) { return ln.Dial() }

	_, err := f.FetchBytes(context.Background(), Request{URL: "http://test/start", Timeout: 2 * time.Second})
	require.ErrorIs(t, err, ErrTooManyRedirects)
}

func TestFetchStream_CopiesBodyAndEnforcesMaxSize(t *testing.T) {
	payload := strings.Repeat("segment-bytes-", 1024)

	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{
		Handler: func(ctx *fasthttp.RequestCtx) {
			ctx.SetStatusCode(200)
			ctx.SetContentType("video/mp2t")
			ctx.SetBodyString(payload)
		},
	}
	go func() { _ = srv.Serve(ln) }()
	defer ln.Close()

	f := New(Options{}, zap.NewNop())
	f.client.Dial = func(addr string) (net.Conn, error) { return ln.Dial() }

	stream, err := f.FetchStream(context.Background(), Request{URL: "http://test/segment.ts"})
	require.NoError(t, err)
	defer stream.Body.Close()

	require.Equal(t, 200, stream.Status)

	var buf bytes.Buffer
	n, err := io.Copy(&buf, stream.Body)
	require.NoError(t, err)
	require.Equal(t, int64(len(payload)), n)
	require.Equal(t, payload, buf.String())
}

func TestFetchStream_OverMaxBodyBytesErrors(t *testing.T) {
	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{
		Handler: func(ctx *fasthttp.RequestCtx) {
			ctx.SetStatusCode(200)
			ctx.SetBodyStreamWriter(func(w *bufio.Writer) {
				chunk := make([]byte, 64*1024)
				written := 0
				for written < maxBodyBytes+64*1024 {
					n, err := w.Write(chunk)
					written += n
					if err != nil {
						return
					}
				}
				w.Flush()
			})
		},
	}
	go func() { _ = srv.Serve(ln) }()
	defer ln.Close()

	f := New(Options{}, zap.NewNop())
	f.client.Dial = func(addr string) (net.Conn, error) { return ln.Dial() }

	stream, err := f.FetchStream(context.Background(), Request{URL: "http://test/huge.ts"})
	require.NoError(t, err)
	defer stream.Body.Close()

	_, err = io.Copy(io.Discard, stream.Body)
	require.ErrorIs(t, err, ErrBodyTooLarge)
}

func TestSetSiteRateLimit_BlocksSecondCallUntilRefill(t *testing.T) {
	f := New(Options{}, zap.NewNop())
	f.SetSiteRateLimit("slow-site", 1000, 1)

	ctx := context.Background()
	require.NoError(t, f.rateLimit(ctx, "slow-site"))

	ctxTimeout, cancel := context.WithTimeout(ctx, 1*time.Millisecond)
	defer cancel()
	err := f.rateLimit(ctxTimeout, "slow-site")
	require.Error(t, err)
}
