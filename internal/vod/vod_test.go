package vod

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodePlaySources_RoundTrip(t *testing.T) {
	sources := []PlaySource{
		{Flag: "CDN-A", Episodes: []Episode{{Name: "第1集", URL: "https://a/1.m3u8"}, {Name: "第2集", URL: "https://a/2.m3u8"}}},
		{Flag: "CDN-B", Episodes: []Episode{{Name: "第1集", URL: "https://b/1.m3u8"}}},
	}

	playFrom, playURL := EncodePlaySources(sources)
	require.Equal(t, "CDN-A$$$CDN-B", playFrom)

	decoded := DecodePlaySources(playFrom, playURL)
	require.Equal(t, sources, decoded)
}

func TestEncodePlaySources_SourceCountInvariant(t *testing.T) {
	// §8: split($$$).length == split(vodPlayFrom,$$$).length after round-trip.
	sources := []PlaySource{
		{Flag: "A", Episodes: []Episode{{Name: "ep1", URL: "u1"}}},
		{Flag: "B", Episodes: nil},
		{Flag: "C", Episodes: []Episode{{Name: "ep1", URL: "u1"}, {Name: "ep2", URL: "u2"}}},
	}
	playFrom, playURL := EncodePlaySources(sources)

	require.Equal(t, len(strings.Split(playFrom, "$$$")), len(strings.Split(playURL, "$$$")))
}

func TestHeaders_UnmarshalJSON_AcceptsObjectAndString(t *testing.T) {
	var h Headers
	require.NoError(t, h.UnmarshalJSON([]byte(`{"User-Agent":"demo"}`)))
	require.Equal(t, "demo", h["User-Agent"])

	var h2 Headers
	require.NoError(t, h2.UnmarshalJSON([]byte(`"User-Agent: demo; Referer: https://x"`)))
	require.Equal(t, "demo", h2["User-Agent"])
	require.Equal(t, "https://x", h2["Referer"])

	var h3 Headers
	require.NoError(t, h3.UnmarshalJSON([]byte(`"User-Agent: demo\nReferer: https://x"`)))
	require.Equal(t, "https://x", h3["Referer"])
}

func TestExt_AsStringAndAsMap(t *testing.T) {
	var e Ext
	require.NoError(t, e.UnmarshalJSON([]byte(`"raw-string-config"`)))
	require.Equal(t, "raw-string-config", e.AsString())
	_, ok := e.AsMap()
	require.False(t, ok)

	var e2 Ext
	require.NoError(t, e2.UnmarshalJSON([]byte(`{"list_selector":".item"}`)))
	m, ok := e2.AsMap()
	require.True(t, ok)
	require.Equal(t, ".item", m["list_selector"])
}

func TestConfig_Validate_DuplicateSiteKey(t *testing.T) {
	cfg := Config{Sites: []Site{
		{Key: "demo", APIURL: "https://a"},
		{Key: "demo", APIURL: "https://b"},
	}}
	err := cfg.Validate()
	require.Error(t, err)
}

func TestConfig_Validate_DuplicateParserName(t *testing.T) {
	cfg := Config{Parsers: []Parser{{Name: "p1"}, {Name: "p1"}}}
	err := cfg.Validate()
	require.Error(t, err)
}
