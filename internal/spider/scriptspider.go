package spider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/moviebox/engine/internal/scripthost"
	"github.com/moviebox/engine/internal/vod"
)

// ScriptSpider loads the site's user script through Fetcher (by Spider
// Manager, before construction) and dispatches operations to the
// corresponding Script Host function by name, falling back to a documented
// default JSON shape when the script doesn't implement an operation
// (§4.4: "falls back to a documented default JSON if the script does not
// implement that operation").
type ScriptSpider struct {
	site vod.Site
	host scripthost.Host
}

func NewScriptSpider(site vod.Site, host scripthost.Host) *ScriptSpider {
	return &ScriptSpider{site: site, host: host}
}

func (s *ScriptSpider) Kind() Kind      { return KindScript }
func (s *ScriptSpider) SiteKey() string { return s.site.Key }

func (s *ScriptSpider) callOrDefault(ctx context.Context, fnName string, args any, into any) error {
	if !s.host.HasFn(fnName) {
		return nil // default JSON is whatever `into` was already zero-valued to
	}

	callCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	result, err := s.host.Call(callCtx, fnName, args)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrParse, fnName, err)
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("%w: re-marshal %s result: %v", ErrParse, fnName, err)
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("%w: decode %s result: %v", ErrParse, fnName, err)
	}
	return nil
}

func (s *ScriptSpider) Home(ctx context.Context, filter bool) (vod.HomeContent, error) {
	out := vod.HomeContent{Class: s.site.Categories}
	if err := s.callOrDefault(ctx, "homeContent", map[string]any{"filter": filter}, &out); err != nil {
		return vod.HomeContent{Class: s.site.Categories}, err
	}
	return out, nil
}

func (s *ScriptSpider) Category(ctx context.Context, typeID string, page int, filter bool, extend map[string]string) (vod.CategoryPage, error) {
	out := vod.CategoryPage{Page: page, Limit: 20}
	args := map[string]any{"tid": typeID, "pg": page, "filter": filter, "extend": extend}
	if err := s.callOrDefault(ctx, "categoryContent", args, &out); err != nil {
		return vod.CategoryPage{Page: page}, err
	}
	return out, nil
}

func (s *ScriptSpider) Detail(ctx context.Context, ids []string) (vod.DetailContent, error) {
	var out vod.DetailContent
	if err := s.callOrDefault(ctx, "detailContent", map[string]any{"ids": ids}, &out); err != nil {
		return vod.DetailContent{}, err
	}
	return out, nil
}

// Search returns a single placeholder record (§8 scenario 6's documented
// default) when the script doesn't implement searchContent, rather than
// the empty list callOrDefault's generic zero-value fallback would leave
// every other operation with: an empty search result reads as "no
// matches", which is a different outcome from "not implemented here" and
// would be silently indistinguishable to a caller.
func (s *ScriptSpider) Search(ctx context.Context, key string, quick bool) (vod.SearchContent, error) {
	if !s.host.HasFn("searchContent") {
		return vod.SearchContent{List: []vod.Vod{placeholderSearchResult(s.site.Key, key)}}, nil
	}

	var out vod.SearchContent
	args := map[string]any{"key": key, "quick": quick}
	if err := s.callOrDefault(ctx, "searchContent", args, &out); err != nil {
		return vod.SearchContent{}, err
	}
	return out, nil
}

// placeholderSearchResult is the documented default record returned in
// place of a real match set when a site's script never implements
// searchContent.
func placeholderSearchResult(siteKey, key string) vod.Vod {
	return vod.Vod{
		VodID:   "placeholder",
		VodName: fmt.Sprintf("no search results for %q", key),
		SiteKey: siteKey,
	}
}

func (s *ScriptSpider) Player(ctx context.Context, flag, id string, vipFlags []string) (vod.PlayResult, error) {
	var out vod.PlayResult
	args := map[string]any{"flag": flag, "id": id, "vipFlags": vipFlags}
	if err := s.callOrDefault(ctx, "playerContent", args, &out); err != nil {
		return vod.PlayResult{}, err
	}
	if out.URL == "" {
		out.URL = id
		out.Flag = flag
	}
	return out, nil
}
