// Package orchestrator is the top-level facade (C11): home/category/
// detail/search/play, wiring the Spider Manager, Cache, Hook Chain, and
// Extractor Pipeline behind five public operations (§4.11).
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/moviebox/engine/internal/cache"
	"github.com/moviebox/engine/internal/extractor"
	"github.com/moviebox/engine/internal/hooks"
	"github.com/moviebox/engine/internal/metrics"
	"github.com/moviebox/engine/internal/search"
	"github.com/moviebox/engine/internal/spider"
	"github.com/moviebox/engine/internal/vod"
)

// spiderSource is the Spider Manager's surface the Orchestrator needs;
// satisfied by *spidermgr.Manager, narrowed here so tests can supply a
// stub without standing up real Script Host/JSONCMS instances.
type spiderSource interface {
	Get(ctx context.Context, site vod.Site) spider.Spider
}

// configSource is the Config Resolver's surface the Orchestrator needs;
// satisfied by *siteconfig.Resolver.
type configSource interface {
	Active() vod.Config
}

// TTLs per §4.11: home=24h, category=10min, detail=30min, search=10min,
// play=0 (never cached).
var (
	ttlHome     = 24 * time.Hour
	ttlCategory = 10 * time.Minute
	ttlDetail   = 30 * time.Minute
	ttlSearch   = 10 * time.Minute
)

// Orchestrator owns the Cache, Spider Manager, and Local Proxy's
// dependencies per §3's ownership rule.
type Orchestrator struct {
	cache    *cache.Cache
	spiders  spiderSource
	pipeline *extractor.Pipeline
	hookChn  *hooks.Chain
	resolver configSource
	searcher *search.Searcher
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// SetMetrics attaches a Prometheus sink; nil-safe when never called, so
// existing callers and tests don't need a metrics dependency.
func (o *Orchestrator) SetMetrics(m *metrics.Metrics) { o.metrics = m }

func New(c *cache.Cache, spiders spiderSource, pipeline *extractor.Pipeline, hookChain *hooks.Chain, resolver configSource, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		cache:    c,
		spiders:  spiders,
		pipeline: pipeline,
		hookChn:  hookChain,
		resolver: resolver,
		searcher: search.New(),
		logger:   logger,
	}
}

// cacheKey builds the fingerprint input `(op, siteKey, args, configEpoch)`
// from §4.11 step 1. The xxhash64 fingerprinting itself happens inside the
// disk tier (internal/cache); this key is the pre-image string.
func cacheKey(op, siteKey string, args any, epoch uint64) string {
	argsJSON, _ := json.Marshal(args)
	return fmt.Sprintf("%s|%s|%s|%d", op, siteKey, argsJSON, epoch)
}

func (o *Orchestrator) logOutcome(op, siteKey string, start time.Time, err error) {
	latency := time.Since(start)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	o.logger.Info("orchestrator op",
		zap.String("op", op),
		zap.String("site", siteKey),
		zap.Int64("latencyMs", latency.Milliseconds()),
		zap.String("outcome", outcome))

	if o.metrics != nil {
		o.metrics.ObserveOrchestratorOp(op, outcome, latency.Seconds())
	}
}

func (o *Orchestrator) site(siteKey string) (vod.Site, error) {
	site, ok := o.resolver.Active().SiteByKey(siteKey)
	if !ok {
		return vod.Site{}, fmt.Errorf("orchestrator: unknown site %q", siteKey)
	}
	return site, nil
}

// gate runs the Hook Chain's onRequest phase against a site's API origin
// before the Spider is invoked, per §4.6/§4.11 ("loader calls Spider
// through Hook chain"): HostRewriteHook and CookieInjectHook can rewrite
// the outbound host or inject auth before the Spider ever runs (AdBlockHook
// acts only on responses, so it does nothing here). A hook that returns a
// short-circuit Response or cancels the chain refuses the call with an
// error; a plain rewrite just updates the Site the Spider will see.
func (o *Orchestrator) gate(site vod.Site) (vod.Site, error) {
	if o.hookChn == nil {
		return site, nil
	}

	req := &hooks.Request{URL: site.APIURL, Method: "GET", Headers: http.Header{}}
	for k, v := range site.Headers {
		req.Headers.Set(k, v)
	}

	short, err := o.hookChn.RunRequest(req)
	if err != nil {
		return vod.Site{}, fmt.Errorf("orchestrator: hook chain rejected site %q: %w", site.Key, err)
	}
	if short != nil {
		return vod.Site{}, fmt.Errorf("orchestrator: hook chain short-circuited site %q with status %d", site.Key, short.Status)
	}

	site.APIURL = req.URL
	if len(req.Headers) > 0 {
		headers := make(vod.Headers, len(site.Headers)+len(req.Headers))
		for k, v := range site.Headers {
			headers[k] = v
		}
		for k := range req.Headers {
			headers[k] = req.Headers.Get(k)
		}
		site.Headers = headers
	}
	return site, nil
}

func getOrComputeJSON[T any](ctx context.Context, o *Orchestrator, key string, ttl time.Duration, loader func() (T, error)) (T, error) {
	var zero T
	raw, err := o.cache.GetOrCompute(ctx, key, ttl, func(ctx context.Context) ([]byte, error) {
		v, err := loader()
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	})
	if err != nil {
		return zero, err
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, fmt.Errorf("orchestrator: decode cached value: %w", err)
	}
	return out, nil
}

// Home implements §4.11's home(siteKey).
func (o *Orchestrator) Home(ctx context.Context, siteKey string, filter bool) (vod.HomeContent, error) {
	start := time.Now()
	site, err := o.site(siteKey)
	if err != nil {
		o.logOutcome("home", siteKey, start, err)
		return vod.HomeContent{}, err
	}

	epoch := o.resolver.Active().Epoch
	key := cacheKey("home", siteKey, map[string]any{"filter": filter}, epoch)

	result, err := getOrComputeJSON(ctx, o, key, ttlHome, func() (vod.HomeContent, error) {
		gated, err := o.gate(site)
		if err != nil {
			return vod.HomeContent{}, err
		}
		sp := o.spiders.Get(ctx, gated)
		return sp.Home(ctx, filter)
	})
	o.logOutcome("home", siteKey, start, err)
	return result, err
}

// Category implements §4.11's category(siteKey, tid, pg, filter, extend).
func (o *Orchestrator) Category(ctx context.Context, siteKey, typeID string, page int, filter bool, extend map[string]string) (vod.CategoryPage, error) {
	start := time.Now()
	site, err := o.site(siteKey)
	if err != nil {
		o.logOutcome("category", siteKey, start, err)
		return vod.CategoryPage{}, err
	}

	epoch := o.resolver.Active().Epoch
	args := map[string]any{"tid": typeID, "pg": page, "filter": filter, "extend": canonicalizeExtend(extend)}
	key := cacheKey("category", siteKey, args, epoch)

	result, err := getOrComputeJSON(ctx, o, key, ttlCategory, func() (vod.CategoryPage, error) {
		gated, err := o.gate(site)
		if err != nil {
			return vod.CategoryPage{}, err
		}
		sp := o.spiders.Get(ctx, gated)
		return sp.Category(ctx, typeID, page, filter, extend)
	})
	o.logOutcome("category", siteKey, start, err)
	return result, err
}

// Detail implements §4.11's detail(siteKey, ids).
func (o *Orchestrator) Detail(ctx context.Context, siteKey string, ids []string) (vod.DetailContent, error) {
	start := time.Now()
	site, err := o.site(siteKey)
	if err != nil {
		o.logOutcome("detail", siteKey, start, err)
		return vod.DetailContent{}, err
	}

	epoch := o.resolver.Active().Epoch
	key := cacheKey("detail", siteKey, ids, epoch)

	result, err := getOrComputeJSON(ctx, o, key, ttlDetail, func() (vod.DetailContent, error) {
		gated, err := o.gate(site)
		if err != nil {
			return vod.DetailContent{}, err
		}
		sp := o.spiders.Get(ctx, gated)
		return sp.Detail(ctx, ids)
	})
	o.logOutcome("detail", siteKey, start, err)
	return result, err
}

// Search implements §4.11's search(query, quick), fanning out across
// every searchable site via the Concurrent Searcher (C8) and caching the
// deduplicated combined result.
func (o *Orchestrator) Search(ctx context.Context, query string, quick bool) (vod.SearchContent, error) {
	start := time.Now()
	cfg := o.resolver.Active()

	key := cacheKey("search", "*", map[string]any{"q": query, "quick": quick}, cfg.Epoch)

	result, err := getOrComputeJSON(ctx, o, key, ttlSearch, func() (vod.SearchContent, error) {
		sites := make([]search.Searchable, 0, len(cfg.Sites))
		order := make([]string, 0, len(cfg.Sites))
		gateFailures := 0
		for _, s := range cfg.Sites {
			gated, err := o.gate(s)
			if err != nil {
				o.logger.Warn("site rejected by hook chain", zap.String("site", s.Key), zap.Error(err))
				gateFailures++
				continue
			}
			sites = append(sites, search.Searchable{Site: gated, Spider: o.spiders.Get(ctx, gated)})
			order = append(order, gated.Key)
		}

		stream := o.searcher.Search(ctx, query, quick, sites)
		list, total, errored := search.Dedup(stream, order)
		total += gateFailures
		errored += gateFailures
		if o.metrics != nil {
			for i := 0; i < errored; i++ {
				o.metrics.RecordSearchSite("error")
			}
			for i := 0; i < total-errored; i++ {
				o.metrics.RecordSearchSite("ok")
			}
		}
		if total > 0 && errored == total {
			return vod.SearchContent{}, fmt.Errorf("orchestrator: search failed on all %d sites", total)
		}

		sort.Slice(list, func(i, j int) bool { return list[i].VodName < list[j].VodName })
		return vod.SearchContent{List: list}, nil
	})
	o.logOutcome("search", "*", start, err)
	return result, err
}

// Play implements §4.11's play(siteKey, flag, id, vipFlags): never cached,
// and the Spider's PlayResult is additionally passed through the
// Extractor Pipeline when it requires client-side parsing (Parse=1).
func (o *Orchestrator) Play(ctx context.Context, siteKey, flag, id string, vipFlags []string) (vod.PlayResult, error) {
	start := time.Now()
	site, err := o.site(siteKey)
	if err != nil {
		o.logOutcome("play", siteKey, start, err)
		return vod.PlayResult{}, err
	}

	gated, err := o.gate(site)
	if err != nil {
		o.logOutcome("play", siteKey, start, err)
		return vod.PlayResult{}, err
	}

	sp := o.spiders.Get(ctx, gated)
	result, err := sp.Player(ctx, flag, id, vipFlags)
	if err != nil {
		o.logOutcome("play", siteKey, start, err)
		return vod.PlayResult{}, err
	}

	if result.Parse == 1 && o.pipeline != nil {
		resolved, resolveErr := o.pipeline.Resolve(ctx, result.URL, result.Headers)
		if resolveErr != nil {
			o.logOutcome("play", siteKey, start, resolveErr)
			return vod.PlayResult{}, fmt.Errorf("orchestrator: extractor: %w", resolveErr)
		}
		result.URL = resolved.URL
		result.Headers = resolved.Headers
		result.Parse = 0
	}

	o.logOutcome("play", siteKey, start, nil)
	return result, nil
}

// Epoch, SitesLoaded, and CacheStats implement proxy.StatusProvider for
// the Local Proxy's health/status surface.
func (o *Orchestrator) Epoch() uint64      { return o.resolver.Active().Epoch }
func (o *Orchestrator) SitesLoaded() int   { return len(o.resolver.Active().Sites) }
func (o *Orchestrator) CacheStats() cache.Stats { return o.cache.Stats() }

// canonicalizeExtend produces a stable string representation of a filter
// map so two calls with the same filters (but different map iteration
// order) hash to the same cache key.
func canonicalizeExtend(extend map[string]string) string {
	if len(extend) == 0 {
		return ""
	}
	keys := make([]string, 0, len(extend))
	for k := range extend {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := xxhash.New()
	for _, k := range keys {
		h.WriteString(k)
		h.WriteString("=")
		h.WriteString(extend[k])
		h.WriteString(";")
	}
	return strconv.FormatUint(h.Sum64(), 16)
}
