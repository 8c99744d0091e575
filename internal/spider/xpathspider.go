package spider

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/moviebox/engine/internal/fetcher"
	"github.com/moviebox/engine/internal/htmlselect"
	"github.com/moviebox/engine/internal/vod"
)

// xpathSelectors is the configured selector table a XPath-variant site
// supplies via its ext payload (§4.4's selector table: list/title/link/
// image/pagination/detail fields). Despite the variant's name, this module
// evaluates the same CSS-selector-lite grammar htmlselect defines rather
// than true XPath, since no XPath engine is wired into this module.
type xpathSelectors struct {
	List       string `json:"list"`
	Title      string `json:"title"`
	Link       string `json:"link"`
	Image      string `json:"image"`
	Pagination string `json:"pagination"`
	Content    string `json:"content"`
}

// XPathSpider loads HTML via Fetcher and evaluates configured selectors.
type XPathSpider struct {
	site      vod.Site
	fetcher   *fetcher.Fetcher
	selectors xpathSelectors
}

func NewXPathSpider(site vod.Site, f *fetcher.Fetcher) *XPathSpider {
	var sel xpathSelectors
	if m, ok := site.Ext.AsMap(); ok {
		if v, ok := m["list"].(string); ok {
			sel.List = v
		}
		if v, ok := m["title"].(string); ok {
			sel.Title = v
		}
		if v, ok := m["link"].(string); ok {
			sel.Link = v
		}
		if v, ok := m["image"].(string); ok {
			sel.Image = v
		}
		if v, ok := m["pagination"].(string); ok {
			sel.Pagination = v
		}
		if v, ok := m["content"].(string); ok {
			sel.Content = v
		}
	}
	return &XPathSpider{site: site, fetcher: f, selectors: sel}
}

func (s *XPathSpider) Kind() Kind      { return KindXPath }
func (s *XPathSpider) SiteKey() string { return s.site.Key }

func (s *XPathSpider) fetchDoc(ctx context.Context, pageURL string) (*htmlselect.Doc, error) {
	timeout := 15 * time.Second
	if s.site.TimeoutMs > 0 {
		timeout = time.Duration(s.site.TimeoutMs) * time.Millisecond
	}
	body, resp, err := s.fetcher.FetchString(ctx, fetcher.Request{
		SiteKey: s.site.Key,
		URL:     pageURL,
		Headers: s.site.Headers,
		Timeout: timeout,
	})
	if err != nil {
		return nil, err
	}
	if resp.Status >= 400 {
		return nil, fmt.Errorf("spider: upstream status %d for %s", resp.Status, pageURL)
	}
	doc, err := htmlselect.ParseDocument([]byte(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return doc, nil
}

func (s *XPathSpider) Home(ctx context.Context, filter bool) (vod.HomeContent, error) {
	return vod.HomeContent{Class: s.site.Categories}, nil
}

func (s *XPathSpider) Category(ctx context.Context, typeID string, page int, filter bool, extend map[string]string) (vod.CategoryPage, error) {
	pageURL := s.site.APIURL + "?t=" + typeID + "&pg=" + strconv.Itoa(page)
	doc, err := s.fetchDoc(ctx, pageURL)
	if err != nil {
		return vod.CategoryPage{}, err
	}

	links := doc.All(htmlselect.Parse(s.selectors.List + " " + s.selectors.Link))
	titles := doc.All(htmlselect.Parse(s.selectors.List + " " + s.selectors.Title))

	list := make([]vod.Vod, 0, len(links))
	for i, link := range links {
		name := ""
		if i < len(titles) {
			name = titles[i]
		}
		list = append(list, vod.Vod{
			VodID:   link,
			VodName: name,
			TypeID:  typeID,
			SiteKey: s.site.Key,
		})
	}

	return vod.CategoryPage{List: list, Page: page, Limit: len(list), Total: len(list)}, nil
}

func (s *XPathSpider) Detail(ctx context.Context, ids []string) (vod.DetailContent, error) {
	list := make([]vod.Vod, 0, len(ids))
	for _, id := range ids {
		doc, err := s.fetchDoc(ctx, id)
		if err != nil {
			continue
		}
		list = append(list, vod.Vod{
			VodID:      id,
			VodName:    doc.First(htmlselect.Parse(s.selectors.Title)),
			VodPic:     doc.First(htmlselect.Parse(s.selectors.Image)),
			VodContent: doc.First(htmlselect.Parse(s.selectors.Content)),
			SiteKey:    s.site.Key,
		})
	}
	return vod.DetailContent{List: list}, nil
}

func (s *XPathSpider) Search(ctx context.Context, key string, quick bool) (vod.SearchContent, error) {
	pageURL := s.site.APIURL + "?wd=" + key
	doc, err := s.fetchDoc(ctx, pageURL)
	if err != nil {
		return vod.SearchContent{}, err
	}

	links := doc.All(htmlselect.Parse(s.selectors.List + " " + s.selectors.Link))
	titles := doc.All(htmlselect.Parse(s.selectors.List + " " + s.selectors.Title))

	list := make([]vod.Vod, 0, len(links))
	for i, link := range links {
		name := ""
		if i < len(titles) {
			name = titles[i]
		}
		list = append(list, vod.Vod{VodID: link, VodName: name, SiteKey: s.site.Key})
	}
	return vod.SearchContent{List: list}, nil
}

func (s *XPathSpider) Player(ctx context.Context, flag, id string, vipFlags []string) (vod.PlayResult, error) {
	return vod.PlayResult{Parse: 1, URL: id, Flag: flag}, nil
}
