package spider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/moviebox/engine/internal/vod"
)

const xpathListHTML = `
<html><body>
<ul class="list">
  <li><a class="link" href="/v/1">First Movie</a></li>
  <li><a class="link" href="/v/2">Second Movie</a></li>
</ul>
</body></html>
`

const xpathDetailHTML = `
<html><body>
<h1 class="title">Detail Title</h1>
<img class="image" src="/img/1.jpg">
<div class="content">Plot summary here.</div>
</body></html>
`

func newXPathTestSite(ext string) vod.Site {
	var e vod.Ext
	_ = e.UnmarshalJSON([]byte(ext))
	return vod.Site{Key: "xp1", APIURL: "http://xp.test/list", Ext: e}
}

func TestXPathSpider_CategoryExtractsListEntries(t *testing.T) {
	f := newTestFetcher(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetBodyString(xpathListHTML)
	})
	site := newXPathTestSite(`{"list":"ul.list li","title":"a.link","link":"a.link@href"}`)
	s := NewXPathSpider(site, f)

	page, err := s.Category(context.Background(), "1", 1, false, nil)
	require.NoError(t, err)
	require.Len(t, page.List, 2)
	require.Equal(t, "/v/1", page.List[0].VodID)
	require.Equal(t, "First Movie", page.List[0].VodName)
	require.Equal(t, "xp1", page.List[0].SiteKey)
}

func TestXPathSpider_DetailExtractsSingleRecordFields(t *testing.T) {
	f := newTestFetcher(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetBodyString(xpathDetailHTML)
	})
	site := newXPathTestSite(`{"title":"h1.title","image":"img.image@src","content":"div.content"}`)
	s := NewXPathSpider(site, f)

	detail, err := s.Detail(context.Background(), []string{"http://xp.test/detail/1"})
	require.NoError(t, err)
	require.Len(t, detail.List, 1)
	require.Equal(t, "Detail Title", detail.List[0].VodName)
	require.Equal(t, "/img/1.jpg", detail.List[0].VodPic)
	require.Equal(t, "Plot summary here.", detail.List[0].VodContent)
}

func TestXPathSpider_DetailSkipsIDsThatFailToFetch(t *testing.T) {
	f := newTestFetcher(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
	})
	site := newXPathTestSite(`{"title":"h1.title"}`)
	s := NewXPathSpider(site, f)

	detail, err := s.Detail(context.Background(), []string{"http://xp.test/broken"})
	require.NoError(t, err, "Detail tolerates individual fetch failures rather than failing the whole batch")
	require.Empty(t, detail.List)
}

func TestXPathSpider_PlayerAlwaysRequestsParsing(t *testing.T) {
	site := newXPathTestSite(`{}`)
	s := NewXPathSpider(site, nil)

	out, err := s.Player(context.Background(), "flag1", "http://xp.test/play/1", nil)
	require.NoError(t, err)
	require.Equal(t, 1, out.Parse, "XPath-scraped play pages are never direct media URLs")
}
