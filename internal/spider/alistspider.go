package spider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/moviebox/engine/internal/fetcher"
	"github.com/moviebox/engine/internal/vod"
)

// alistVideoExtensions is the filter set for treating a listed file as a
// playable Vod, per §4.4.
var alistVideoExtensions = map[string]bool{
	".mp4": true, ".mkv": true, ".avi": true, ".mov": true, ".wmv": true,
	".flv": true, ".webm": true, ".m4v": true, ".3gp": true, ".ts": true, ".m3u8": true,
}

// AlistSpider treats the site as a file-listing API (/api/fs/list,
// /api/fs/search) and synthesizes Vods from folders/files.
type AlistSpider struct {
	site    vod.Site
	fetcher *fetcher.Fetcher
}

func NewAlistSpider(site vod.Site, f *fetcher.Fetcher) *AlistSpider {
	return &AlistSpider{site: site, fetcher: f}
}

func (s *AlistSpider) Kind() Kind      { return KindAlist }
func (s *AlistSpider) SiteKey() string { return s.site.Key }

type alistEntry struct {
	Name     string `json:"name"`
	IsDir    bool   `json:"is_dir"`
	Size     int64  `json:"size"`
	Modified string `json:"modified"`
}

type alistListResponse struct {
	Data struct {
		Content []alistEntry `json:"content"`
		Total   int          `json:"total"`
	} `json:"data"`
}

func (s *AlistSpider) list(ctx context.Context, path string) ([]alistEntry, error) {
	body := fmt.Sprintf(`{"path":%q,"page":1,"per_page":0,"refresh":false}`, path)
	reqURL := strings.TrimRight(s.site.APIURL, "/") + "/api/fs/list"

	resp, _, err := s.fetcher.FetchString(ctx, fetcher.Request{
		SiteKey: s.site.Key,
		URL:     reqURL,
		Method:  "POST",
		Headers: mergeJSONHeader(s.site.Headers),
		Body:    []byte(body),
		Timeout: 15 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	var parsed alistListResponse
	if err := json.Unmarshal([]byte(resp), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return parsed.Data.Content, nil
}

func mergeJSONHeader(h vod.Headers) map[string]string {
	out := make(map[string]string, len(h)+1)
	for k, v := range h {
		out[k] = v
	}
	out["Content-Type"] = "application/json"
	return out
}

func (s *AlistSpider) Home(ctx context.Context, filter bool) (vod.HomeContent, error) {
	entries, err := s.list(ctx, "/")
	if err != nil {
		return vod.HomeContent{}, err
	}

	var categories []vod.Category
	for _, e := range entries {
		if e.IsDir {
			categories = append(categories, vod.Category{ID: e.Name, Name: e.Name})
		}
	}
	return vod.HomeContent{Class: categories}, nil
}

func (s *AlistSpider) Category(ctx context.Context, typeID string, page int, filter bool, extend map[string]string) (vod.CategoryPage, error) {
	entries, err := s.list(ctx, "/"+typeID)
	if err != nil {
		return vod.CategoryPage{}, err
	}

	list := s.entriesToVods(entries, typeID)
	return vod.CategoryPage{List: list, Page: page, Limit: len(list), Total: len(list)}, nil
}

func (s *AlistSpider) entriesToVods(entries []alistEntry, typeID string) []vod.Vod {
	var list []vod.Vod
	for _, e := range entries {
		if e.IsDir {
			continue
		}
		if !alistVideoExtensions[strings.ToLower(pathExt(e.Name))] {
			continue
		}
		list = append(list, vod.Vod{
			VodID:   typeID + "/" + e.Name,
			VodName: e.Name,
			TypeID:  typeID,
			SiteKey: s.site.Key,
		})
	}
	return list
}

func pathExt(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return ""
	}
	return name[idx:]
}

func (s *AlistSpider) Detail(ctx context.Context, ids []string) (vod.DetailContent, error) {
	list := make([]vod.Vod, 0, len(ids))
	for _, id := range ids {
		dirPath := "/" + id
		idx := strings.LastIndex(id, "/")
		name := id
		if idx >= 0 {
			dirPath = "/" + id[:idx]
			name = id[idx+1:]
		}

		playURL := strings.TrimRight(s.site.APIURL, "/") + "/d" + dirPath + "/" + url.PathEscape(name)
		playFrom, playAll := vod.EncodePlaySources([]vod.PlaySource{
			{Flag: "alist", Episodes: []vod.Episode{{Name: name, URL: playURL}}},
		})

		list = append(list, vod.Vod{
			VodID:       id,
			VodName:     name,
			VodPlayFrom: playFrom,
			VodPlayURL:  playAll,
			SiteKey:     s.site.Key,
		})
	}
	return vod.DetailContent{List: list}, nil
}

func (s *AlistSpider) Search(ctx context.Context, key string, quick bool) (vod.SearchContent, error) {
	body := fmt.Sprintf(`{"parent":"/","keywords":%q,"page":1,"per_page":0}`, key)
	reqURL := strings.TrimRight(s.site.APIURL, "/") + "/api/fs/search"

	resp, _, err := s.fetcher.FetchString(ctx, fetcher.Request{
		SiteKey: s.site.Key,
		URL:     reqURL,
		Method:  "POST",
		Headers: mergeJSONHeader(s.site.Headers),
		Body:    []byte(body),
		Timeout: 15 * time.Second,
	})
	if err != nil {
		return vod.SearchContent{}, err
	}

	var parsed alistListResponse
	if err := json.Unmarshal([]byte(resp), &parsed); err != nil {
		return vod.SearchContent{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return vod.SearchContent{List: s.entriesToVods(parsed.Data.Content, "")}, nil
}

// Player resolves the direct /d/<path> URL already embedded at Detail time.
func (s *AlistSpider) Player(ctx context.Context, flag, id string, vipFlags []string) (vod.PlayResult, error) {
	return vod.PlayResult{Parse: 0, URL: id, Flag: flag}, nil
}
