package spider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/moviebox/engine/internal/vod"
)

func TestAlistSpider_HomeListsOnlyDirectoriesAsCategories(t *testing.T) {
	f := newTestFetcher(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"data":{"content":[{"name":"Movies","is_dir":true},{"name":"readme.txt","is_dir":false}],"total":2}}`)
	})
	site := vod.Site{Key: "alist1", APIURL: "http://alist.test"}
	s := NewAlistSpider(site, f)

	home, err := s.Home(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, home.Class, 1)
	require.Equal(t, "Movies", home.Class[0].Name)
}

func TestAlistSpider_CategoryFiltersToVideoExtensions(t *testing.T) {
	f := newTestFetcher(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"data":{"content":[
			{"name":"episode1.mp4","is_dir":false},
			{"name":"cover.jpg","is_dir":false},
			{"name":"Season2","is_dir":true}
		],"total":3}}`)
	})
	site := vod.Site{Key: "alist1", APIURL: "http://alist.test"}
	s := NewAlistSpider(site, f)

	page, err := s.Category(context.Background(), "Movies", 1, false, nil)
	require.NoError(t, err)
	require.Len(t, page.List, 1, "only the .mp4 file should survive the extension filter")
	require.Equal(t, "Movies/episode1.mp4", page.List[0].VodID)
}

func TestAlistSpider_DetailEncodesDirectPlayURL(t *testing.T) {
	site := vod.Site{Key: "alist1", APIURL: "http://alist.test/"}
	s := NewAlistSpider(site, nil)

	detail, err := s.Detail(context.Background(), []string{"Movies/episode1.mp4"})
	require.NoError(t, err)
	require.Len(t, detail.List, 1)

	sources := vod.DecodePlaySources(detail.List[0].VodPlayFrom, detail.List[0].VodPlayURL)
	require.Len(t, sources, 1)
	require.Equal(t, "alist", sources[0].Flag)
	require.Len(t, sources[0].Episodes, 1)
	require.Equal(t, "http://alist.test/d/Movies/episode1.mp4", sources[0].Episodes[0].URL)
}

func TestAlistSpider_SearchReturnsEntriesFromSearchEndpoint(t *testing.T) {
	f := newTestFetcher(t, func(ctx *fasthttp.RequestCtx) {
		require.Contains(t, string(ctx.Path()), "/api/fs/search")
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"data":{"content":[{"name":"found.mkv","is_dir":false}],"total":1}}`)
	})
	site := vod.Site{Key: "alist1", APIURL: "http://alist.test"}
	s := NewAlistSpider(site, f)

	out, err := s.Search(context.Background(), "found", false)
	require.NoError(t, err)
	require.Len(t, out.List, 1)
	require.Equal(t, "found.mkv", out.List[0].VodName)
}

func TestAlistSpider_PlayerReturnsDirectURL(t *testing.T) {
	site := vod.Site{Key: "alist1", APIURL: "http://alist.test"}
	s := NewAlistSpider(site, nil)

	out, err := s.Player(context.Background(), "alist", "http://alist.test/d/Movies/episode1.mp4", nil)
	require.NoError(t, err)
	require.Equal(t, 0, out.Parse)
}
