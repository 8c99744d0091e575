// Package search is the Concurrent Searcher (C8): fan-out one task per
// searchable site, streaming each result to the consumer as it arrives
// rather than waiting for the slowest, deduplicating across sites, and
// respecting both a cap on how many sites are searched at once and a global
// deadline (§4.8).
package search

import (
	"context"
	"sync"
	"time"

	"github.com/moviebox/engine/internal/spider"
	"github.com/moviebox/engine/internal/vod"
)

// SiteResult is one site's search outcome, streamed to the consumer as
// soon as it completes.
type SiteResult struct {
	SiteKey string
	List    []vod.Vod
	Err     error
}

// Searchable is the subset of a site + its live Spider the searcher needs;
// kept narrow so callers (the Orchestrator) don't have to hand over their
// whole Spider Manager.
type Searchable struct {
	Site   vod.Site
	Spider spider.Spider
}

// Searcher runs the fan-out/fan-in search across a site set.
type Searcher struct {
	perSiteCap int // 0 means "derive min(5, len(sites)) per call"
}

func New() *Searcher {
	return &Searcher{}
}

// Search fans out one goroutine per searchable site (filtered by
// `searchable`, and by `quickSearchable` too when quick=true), streams
// each site's result over the returned channel as it completes, and
// closes the channel once every site has reported or the global deadline
// elapses. The caller is responsible for deduplicating across the stream
// via Dedup, or doing it incrementally.
//
// Grounded on a fan-out/buffered-channel/WaitGroup-closer shape commonly
// used for racing concurrent clients, adapted here from "race to first
// success" to "stream every result, cancel only on deadline or explicit
// consumer cancellation".
func (s *Searcher) Search(ctx context.Context, query string, quick bool, sites []Searchable) <-chan SiteResult {
	filtered := make([]Searchable, 0, len(sites))
	for _, sr := range sites {
		if !sr.Site.Searchable {
			continue
		}
		if quick && !sr.Site.QuickSearchable {
			continue
		}
		filtered = append(filtered, sr)
	}

	out := make(chan SiteResult, len(filtered))
	if len(filtered) == 0 {
		close(out)
		return out
	}

	concurrency := s.perSiteCap
	if concurrency <= 0 {
		concurrency = len(filtered)
		if concurrency > 5 {
			concurrency = 5
		}
	}

	globalDeadline := maxTimeout(filtered) + 2*time.Second
	searchCtx, cancel := context.WithTimeout(ctx, globalDeadline)

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for _, sr := range filtered {
		wg.Add(1)
		go func(sr Searchable) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-searchCtx.Done():
				return
			}

			timeout := time.Duration(sr.Site.TimeoutMs) * time.Millisecond
			if timeout <= 0 {
				timeout = 15 * time.Second
			}
			taskCtx, taskCancel := context.WithTimeout(searchCtx, timeout)
			defer taskCancel()

			content, err := sr.Spider.Search(taskCtx, query, quick)

			select {
			case out <- SiteResult{SiteKey: sr.Site.Key, List: content.List, Err: err}:
			case <-searchCtx.Done():
			}
		}(sr)
	}

	go func() {
		wg.Wait()
		cancel()
		close(out)
	}()

	return out
}

func maxTimeout(sites []Searchable) time.Duration {
	var longest time.Duration
	for _, sr := range sites {
		t := time.Duration(sr.Site.TimeoutMs) * time.Millisecond
		if t > longest {
			longest = t
		}
	}
	if longest <= 0 {
		longest = 15 * time.Second
	}
	return longest
}

// Dedup collects every SiteResult off results, deduplicating by
// (vodName, vodYear) across sites and keeping the first hit per key in the
// order the originating sites were given (§4.8 step 6). Returns the
// combined list, the number of sites that reported, and the number of
// those that errored (used by callers to apply the "only surface an error
// if ALL sites failed" policy).
func Dedup(results <-chan SiteResult, siteOrder []string) ([]vod.Vod, int, int) {
	priority := make(map[string]int, len(siteOrder))
	for i, key := range siteOrder {
		priority[key] = i
	}

	type keyed struct {
		vod   vod.Vod
		order int
	}

	seen := make(map[string]keyed)
	total, errored := 0, 0

	for r := range results {
		total++
		if r.Err != nil {
			errored++
			continue
		}
		order, ok := priority[r.SiteKey]
		if !ok {
			order = len(siteOrder)
		}
		for _, v := range r.List {
			key := v.VodName + "\x00" + v.VodYear
			existing, ok := seen[key]
			if !ok || order < existing.order {
				seen[key] = keyed{vod: v, order: order}
			}
		}
	}

	out := make([]vod.Vod, 0, len(seen))
	for _, k := range seen {
		out = append(out, k.vod)
	}
	return out, total, errored
}
