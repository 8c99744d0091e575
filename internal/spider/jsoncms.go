package spider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/moviebox/engine/internal/fetcher"
	"github.com/moviebox/engine/internal/vod"
)

// JSONCMSSpider performs templated GETs against a vendor-standard CMS API
// (ac=list|detail, t, pg, wd, ids) and parses its { list, class, pagecount }
// response shape (§4.4).
type JSONCMSSpider struct {
	site    vod.Site
	fetcher *fetcher.Fetcher
}

func NewJSONCMSSpider(site vod.Site, f *fetcher.Fetcher) *JSONCMSSpider {
	return &JSONCMSSpider{site: site, fetcher: f}
}

func (s *JSONCMSSpider) Kind() Kind      { return KindJSONCMS }
func (s *JSONCMSSpider) SiteKey() string { return s.site.Key }

// cmsResponse mirrors the vendor-standard CMS wire shape. Field names match
// the upstream format exactly, not this module's normalized vod.Vod.
type cmsResponse struct {
	List      []cmsVod      `json:"list"`
	Class     []vod.Category `json:"class"`
	Page      json.Number   `json:"page"`
	PageCount json.Number   `json:"pagecount"`
	Limit     json.Number   `json:"limit"`
	Total     json.Number   `json:"total"`
}

type cmsVod struct {
	VodID       json.Number `json:"vod_id"`
	VodName     string      `json:"vod_name"`
	VodPic      string      `json:"vod_pic"`
	VodRemarks  string      `json:"vod_remarks"`
	VodYear     string      `json:"vod_year"`
	VodArea     string      `json:"vod_area"`
	VodActor    string      `json:"vod_actor"`
	VodDirector string      `json:"vod_director"`
	VodContent  string      `json:"vod_content"`
	VodPlayFrom string      `json:"vod_play_from"`
	VodPlayURL  string      `json:"vod_play_url"`
	TypeID      json.Number `json:"type_id"`
	TypeName    string      `json:"type_name"`
}

func (v cmsVod) toVod(siteKey string) vod.Vod {
	return vod.Vod{
		VodID:       v.VodID.String(),
		VodName:     v.VodName,
		VodPic:      v.VodPic,
		VodRemarks:  v.VodRemarks,
		VodYear:     v.VodYear,
		VodArea:     v.VodArea,
		VodActor:    v.VodActor,
		VodDirector: v.VodDirector,
		VodContent:  v.VodContent,
		VodPlayFrom: v.VodPlayFrom,
		VodPlayURL:  v.VodPlayURL,
		TypeID:      v.TypeID.String(),
		TypeName:    v.TypeName,
		SiteKey:     siteKey,
	}
}

func (s *JSONCMSSpider) fetchCMS(ctx context.Context, params url.Values) (cmsResponse, error) {
	sep := "?"
	if strings.Contains(s.site.APIURL, "?") {
		sep = "&"
	}
	reqURL := s.site.APIURL + sep + params.Encode()

	timeout := 15 * time.Second
	if s.site.TimeoutMs > 0 {
		timeout = time.Duration(s.site.TimeoutMs) * time.Millisecond
	}

	body, _, err := s.fetcher.FetchString(ctx, fetcher.Request{
		SiteKey: s.site.Key,
		URL:     reqURL,
		Headers: s.site.Headers,
		Timeout: timeout,
	})
	if err != nil {
		return cmsResponse{}, err
	}

	var resp cmsResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return cmsResponse{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return resp, nil
}

func (s *JSONCMSSpider) Home(ctx context.Context, filter bool) (vod.HomeContent, error) {
	params := url.Values{"ac": {"list"}}
	resp, err := s.fetchCMS(ctx, params)
	if err != nil {
		return vod.HomeContent{}, err
	}
	if len(resp.Class) == 0 {
		resp.Class = s.site.Categories
	}
	return vod.HomeContent{Class: resp.Class}, nil
}

func (s *JSONCMSSpider) Category(ctx context.Context, typeID string, page int, filter bool, extend map[string]string) (vod.CategoryPage, error) {
	params := url.Values{"ac": {"list"}, "t": {typeID}, "pg": {strconv.Itoa(page)}}
	for k, v := range extend {
		params.Set(k, v)
	}
	resp, err := s.fetchCMS(ctx, params)
	if err != nil {
		return vod.CategoryPage{}, err
	}

	list := make([]vod.Vod, 0, len(resp.List))
	for _, v := range resp.List {
		list = append(list, v.toVod(s.site.Key))
	}

	return vod.CategoryPage{
		List:      list,
		Page:      numberOrDefault(resp.Page, page),
		PageCount: numberOrDefault(resp.PageCount, 0),
		Limit:     numberOrDefault(resp.Limit, 20),
		Total:     numberOrDefault(resp.Total, len(list)),
	}, nil
}

func (s *JSONCMSSpider) Detail(ctx context.Context, ids []string) (vod.DetailContent, error) {
	params := url.Values{"ac": {"detail"}, "ids": {strings.Join(ids, ",")}}
	resp, err := s.fetchCMS(ctx, params)
	if err != nil {
		return vod.DetailContent{}, err
	}

	list := make([]vod.Vod, 0, len(resp.List))
	for _, v := range resp.List {
		list = append(list, v.toVod(s.site.Key))
	}
	return vod.DetailContent{List: list}, nil
}

func (s *JSONCMSSpider) Search(ctx context.Context, key string, quick bool) (vod.SearchContent, error) {
	params := url.Values{"ac": {"list"}, "wd": {key}}
	resp, err := s.fetchCMS(ctx, params)
	if err != nil {
		return vod.SearchContent{}, err
	}

	list := make([]vod.Vod, 0, len(resp.List))
	for _, v := range resp.List {
		list = append(list, v.toVod(s.site.Key))
	}
	return vod.SearchContent{List: list}, nil
}

// Player is not served directly by a CMS-variant API call; CMS sites embed
// play URLs in detailContent's vod_play_url, and Player hands the chosen
// episode URL back unchanged with Parse 0, so the Orchestrator returns it
// as direct media without running the Extractor Pipeline (C7).
func (s *JSONCMSSpider) Player(ctx context.Context, flag, id string, vipFlags []string) (vod.PlayResult, error) {
	return vod.PlayResult{Parse: 0, URL: id, Flag: flag}, nil
}

func numberOrDefault(n json.Number, def int) int {
	if n == "" {
		return def
	}
	v, err := n.Int64()
	if err != nil {
		return def
	}
	return int(v)
}
