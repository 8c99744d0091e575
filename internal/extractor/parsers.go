package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/moviebox/engine/internal/fetcher"
	"github.com/moviebox/engine/internal/vod"
)

// parserResponse is the JSON shape a JSON-type parser endpoint returns:
// the resolved direct URL plus any headers the player needs to replay it.
type parserResponse struct {
	URL     string      `json:"url"`
	Headers vod.Headers `json:"header,omitempty"`
}

// NewParserResolver builds the Parser-chain fallback (§4.7's "other" row:
// "run Parser chain, possibly via Script Host or a web-view sniffing
// proxy"). Only ParserType JSON is resolvable without a browser-rendering
// backend; Sniff/Ext/Mix/God all assume a web-view or embedded script
// sniffing proxy this module doesn't carry (no chromedp/cdproto, per
// DESIGN.md's dropped-dependency ledger), so they report ErrExtractorBackend.
func NewParserResolver(f *fetcher.Fetcher) ParserResolver {
	return func(ctx context.Context, p vod.Parser, rawURL string, headers vod.Headers) (Result, error) {
		switch p.Type {
		case vod.ParserJSON:
			return resolveJSONParser(ctx, f, p, rawURL)
		default:
			return Result{}, fmt.Errorf("extractor: parser %q type %d: %w", p.Name, p.Type, ErrExtractorBackend)
		}
	}
}

func resolveJSONParser(ctx context.Context, f *fetcher.Fetcher, p vod.Parser, rawURL string) (Result, error) {
	if p.URL == "" {
		return Result{}, fmt.Errorf("extractor: parser %q has no url", p.Name)
	}

	endpoint := p.URL + url.QueryEscape(rawURL)

	resp, err := f.FetchBytes(ctx, fetcher.Request{
		URL:     endpoint,
		Headers: p.Headers,
		Timeout: 10 * time.Second,
	})
	if err != nil {
		return Result{}, fmt.Errorf("extractor: parser %q fetch: %w", p.Name, err)
	}

	var decoded parserResponse
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return Result{}, fmt.Errorf("extractor: parser %q decode: %w", p.Name, err)
	}
	if decoded.URL == "" {
		return Result{}, fmt.Errorf("extractor: parser %q returned empty url: %w", p.Name, ErrUnresolved)
	}

	return Result{URL: decoded.URL, Headers: decoded.Headers}, nil
}
