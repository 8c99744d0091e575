package extractor

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	m3u8 "github.com/livepeer/m3u8"

	"github.com/moviebox/engine/internal/fetcher"
	"github.com/moviebox/engine/internal/vod"
)

// RewriteM3U8ThroughProxy rewrites every segment and key URI in an HLS
// playlist to route through the Local Proxy's /m3u8 (or /proxy) endpoint,
// so a player behind a restrictive network only ever talks to this
// process. Its one caller is M3U8FetchRewrite, which the Local Proxy's
// /m3u8 handler uses; the Extractor Pipeline's direct-media pass-through
// returns the origin URL unchanged.
func RewriteM3U8ThroughProxy(playlist []byte, baseURL string, proxify func(absoluteURL string) string) ([]byte, error) {
	p, listType, err := m3u8.DecodeFrom(bytes.NewReader(playlist), true)
	if err != nil {
		return nil, fmt.Errorf("extractor: decode m3u8: %w", err)
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("extractor: parse base url: %w", err)
	}

	resolve := func(ref string) string {
		if ref == "" {
			return ref
		}
		u, err := url.Parse(ref)
		if err != nil {
			return ref
		}
		return proxify(base.ResolveReference(u).String())
	}

	switch listType {
	case m3u8.MEDIA:
		media := p.(*m3u8.MediaPlaylist)
		for _, seg := range media.Segments {
			if seg == nil {
				continue
			}
			seg.URI = resolve(seg.URI)
			if seg.Key != nil && seg.Key.URI != "" {
				seg.Key.URI = resolve(seg.Key.URI)
			}
		}
		return media.Encode().Bytes(), nil

	case m3u8.MASTER:
		master := p.(*m3u8.MasterPlaylist)
		for _, variant := range master.Variants {
			if variant == nil {
				continue
			}
			variant.URI = resolve(variant.URI)
		}
		return master.Encode().Bytes(), nil

	default:
		return nil, fmt.Errorf("extractor: unsupported m3u8 list type %v", listType)
	}
}

// isM3U8 reports whether rawURL looks like an HLS playlist by extension.
func isM3U8(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".m3u8")
}

// M3U8FetchRewrite fetches and rewrites a remote playlist in one step and
// returns the rewritten playlist bytes; the Local Proxy's /m3u8 handler
// serves them to the player.
func M3U8FetchRewrite(ctx context.Context, f *fetcher.Fetcher, siteKey, rawURL string, headers vod.Headers, proxify func(string) string) ([]byte, error) {
	resp, err := f.FetchBytes(ctx, fetcher.Request{
		SiteKey: siteKey,
		URL:     rawURL,
		Headers: headers,
	})
	if err != nil {
		return nil, err
	}
	return RewriteM3U8ThroughProxy(resp.Body, rawURL, proxify)
}
