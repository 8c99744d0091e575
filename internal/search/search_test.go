package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/moviebox/engine/internal/spider"
	"github.com/moviebox/engine/internal/vod"
)

type stubSpider struct {
	key     string
	results []vod.Vod
	err     error
	delay   time.Duration
}

func (s *stubSpider) Kind() spider.Kind { return spider.KindJSONCMS }
func (s *stubSpider) SiteKey() string   { return s.key }

func (s *stubSpider) Home(ctx context.Context, filter bool) (vod.HomeContent, error) {
	return vod.HomeContent{}, nil
}

func (s *stubSpider) Category(ctx context.Context, typeID string, page int, filter bool, extend map[string]string) (vod.CategoryPage, error) {
	return vod.CategoryPage{}, nil
}

func (s *stubSpider) Detail(ctx context.Context, ids []string) (vod.DetailContent, error) {
	return vod.DetailContent{}, nil
}

func (s *stubSpider) Search(ctx context.Context, key string, quick bool) (vod.SearchContent, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return vod.SearchContent{}, ctx.Err()
		}
	}
	if s.err != nil {
		return vod.SearchContent{}, s.err
	}
	return vod.SearchContent{List: s.results}, nil
}

func (s *stubSpider) Player(ctx context.Context, flag, id string, vipFlags []string) (vod.PlayResult, error) {
	return vod.PlayResult{}, nil
}

func searchableSite(key string, timeoutMs int, searchable, quick bool) vod.Site {
	return vod.Site{Key: key, APIURL: "https://x.test/" + key, Searchable: searchable, QuickSearchable: quick, TimeoutMs: timeoutMs}
}

func TestSearcher_FiltersBySearchableAndQuick(t *testing.T) {
	searcher := New()
	sites := []Searchable{
		{Site: searchableSite("a", 1000, true, true), Spider: &stubSpider{key: "a", results: []vod.Vod{{VodName: "Foo", VodYear: "2020"}}}},
		{Site: searchableSite("b", 1000, false, false), Spider: &stubSpider{key: "b"}},
		{Site: searchableSite("c", 1000, true, false), Spider: &stubSpider{key: "c", results: []vod.Vod{{VodName: "Bar", VodYear: "2021"}}}},
	}

	results := searcher.Search(context.Background(), "foo", true, sites)

	seen := map[string]bool{}
	for r := range results {
		seen[r.SiteKey] = true
	}
	if seen["b"] {
		t.Fatalf("non-searchable site b should have been filtered out")
	}
	if seen["c"] {
		t.Fatalf("non-quick-searchable site c should have been filtered out under quick=true")
	}
	if !seen["a"] {
		t.Fatalf("expected site a in results")
	}
}

func TestSearcher_StreamsAllSiteResults(t *testing.T) {
	searcher := New()
	sites := []Searchable{
		{Site: searchableSite("fast", 1000, true, true), Spider: &stubSpider{key: "fast", results: []vod.Vod{{VodName: "A", VodYear: "2020"}}}},
		{Site: searchableSite("slow", 1000, true, true), Spider: &stubSpider{key: "slow", delay: 50 * time.Millisecond, results: []vod.Vod{{VodName: "B", VodYear: "2021"}}}},
	}

	results := searcher.Search(context.Background(), "q", false, sites)

	count := 0
	for range results {
		count++
	}
	if count != 2 {
		t.Fatalf("expected 2 site results, got %d", count)
	}
}

func TestSearcher_PerSiteErrorsDoNotAbortOthers(t *testing.T) {
	searcher := New()
	sites := []Searchable{
		{Site: searchableSite("bad", 1000, true, true), Spider: &stubSpider{key: "bad", err: errors.New("boom")}},
		{Site: searchableSite("good", 1000, true, true), Spider: &stubSpider{key: "good", results: []vod.Vod{{VodName: "A", VodYear: "2020"}}}},
	}

	results := searcher.Search(context.Background(), "q", false, sites)
	list, total, errored := Dedup(results, []string{"bad", "good"})

	if total != 2 || errored != 1 {
		t.Fatalf("total=%d errored=%d", total, errored)
	}
	if len(list) != 1 || list[0].VodName != "A" {
		t.Fatalf("unexpected dedup result: %+v", list)
	}
}

func TestDedup_KeepsFirstHitBySitePriority(t *testing.T) {
	resultsCh := make(chan SiteResult, 2)
	resultsCh <- SiteResult{SiteKey: "low-priority", List: []vod.Vod{{VodName: "Same", VodYear: "2020", SiteKey: "low-priority"}}}
	resultsCh <- SiteResult{SiteKey: "high-priority", List: []vod.Vod{{VodName: "Same", VodYear: "2020", SiteKey: "high-priority"}}}
	close(resultsCh)

	list, _, _ := Dedup(resultsCh, []string{"high-priority", "low-priority"})
	if len(list) != 1 {
		t.Fatalf("expected exactly 1 deduped entry, got %d", len(list))
	}
	if list[0].SiteKey != "high-priority" {
		t.Fatalf("expected high-priority site to win dedup, got %q", list[0].SiteKey)
	}
}
