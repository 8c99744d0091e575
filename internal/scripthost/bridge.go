package scripthost

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/moviebox/engine/internal/fetcher"
	"github.com/moviebox/engine/internal/htmlselect"
)

// defaultBridge is the concrete Bridge backing every Host variant. It is
// constructed once per Host instance (hosts are never shared across
// Spiders, per §4.3) and closes over that Spider's Fetcher and an optional
// outbound-proxy URL template.
type defaultBridge struct {
	fetcher     *fetcher.Fetcher
	siteKey     string
	proxyPrefix string // e.g. "http://127.0.0.1:%d/proxy?url=" for ProxyURL minting
	logger      *zap.Logger
}

func newBridge(f *fetcher.Fetcher, siteKey, proxyPrefix string, logger *zap.Logger) *defaultBridge {
	return &defaultBridge{fetcher: f, siteKey: siteKey, proxyPrefix: proxyPrefix, logger: logger}
}

func (b *defaultBridge) Req(rawURL string, opts map[string]any) (map[string]any, error) {
	req := fetcher.Request{SiteKey: b.siteKey, URL: rawURL, Method: "GET", Timeout: 15 * time.Second}

	if opts != nil {
		if method, ok := opts["method"].(string); ok && method != "" {
			req.Method = method
		}
		if headers, ok := opts["headers"].(map[string]any); ok {
			req.Headers = make(map[string]string, len(headers))
			for k, v := range headers {
				if s, ok := v.(string); ok {
					req.Headers[k] = s
				}
			}
		}
		if body, ok := opts["body"].(string); ok {
			req.Body = []byte(body)
		}
	}

	body, resp, err := b.fetcher.FetchString(context.Background(), req)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"status":  resp.Status,
		"body":    body,
		"headers": resp.Headers,
	}, nil
}

func (b *defaultBridge) Pdfh(rawHTML, selector string) (string, error) {
	doc, err := htmlselect.ParseDocument([]byte(rawHTML))
	if err != nil {
		return "", fmt.Errorf("pdfh: %w", err)
	}
	return doc.First(htmlselect.Parse(selector)), nil
}

func (b *defaultBridge) Pdfa(rawHTML, selector string) ([]string, error) {
	doc, err := htmlselect.ParseDocument([]byte(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("pdfa: %w", err)
	}
	return doc.All(htmlselect.Parse(selector)), nil
}

func (b *defaultBridge) URLJoin(base, ref string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}

func (b *defaultBridge) Base64Encode(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func (b *defaultBridge) Base64Decode(s string) (string, error) {
	out, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (b *defaultBridge) Sleep(ms int) {
	if ms <= 0 {
		return
	}
	time.Sleep(time.Duration(ms) * time.Millisecond)
}

func (b *defaultBridge) Log(args ...any) {
	b.logger.Sugar().Infow("script log", "args", args, "site", b.siteKey)
}

func (b *defaultBridge) RegexMatchAll(pattern, text string) [][]string {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil
	}
	return re.FindAllStringSubmatch(text, -1)
}

func (b *defaultBridge) ProxyURL(target string) string {
	if b.proxyPrefix == "" {
		return target
	}
	return b.proxyPrefix + url.QueryEscape(target)
}
