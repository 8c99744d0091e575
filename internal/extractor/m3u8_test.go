package extractor

import (
	"strings"
	"testing"
)

const samplePlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXTINF:9.009,
segment0.ts
#EXTINF:9.009,
segment1.ts
#EXT-X-ENDLIST
`

func TestRewriteM3U8ThroughProxy_RewritesSegmentURIs(t *testing.T) {
	out, err := RewriteM3U8ThroughProxy([]byte(samplePlaylist), "https://origin.example.com/live/index.m3u8", func(absoluteURL string) string {
		return "/proxy?url=" + absoluteURL
	})
	if err != nil {
		t.Fatalf("RewriteM3U8ThroughProxy: %v", err)
	}

	rewritten := string(out)
	if !strings.Contains(rewritten, "/proxy?url=https://origin.example.com/live/segment0.ts") {
		t.Fatalf("segment0 not rewritten: %s", rewritten)
	}
	if !strings.Contains(rewritten, "/proxy?url=https://origin.example.com/live/segment1.ts") {
		t.Fatalf("segment1 not rewritten: %s", rewritten)
	}
}

func TestIsM3U8(t *testing.T) {
	if !isM3U8("https://cdn.example.com/a/b/index.m3u8") {
		t.Fatalf("expected m3u8 suffix to match")
	}
	if isM3U8("https://cdn.example.com/a/b.mp4") {
		t.Fatalf("expected mp4 to not match")
	}
}
