// Package spidermgr is the Spider Manager (C5): it maintains a
// {siteKey → Spider} map, infers the effective variant from URL/ext
// heuristics even when the declared type disagrees, and degrades a site to
// spider.NullSpider rather than propagating a construction failure to
// every caller (§4.5).
package spidermgr

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/moviebox/engine/internal/fetcher"
	"github.com/moviebox/engine/internal/scripthost"
	"github.com/moviebox/engine/internal/spider"
	"github.com/moviebox/engine/internal/vod"
)

// entry is one live (or degraded) Spider together with the epoch it was
// built for, so destroyAll can atomically drop an entire generation
// without needing a second map.
type entry struct {
	spider spider.Spider
	epoch  uint64
	host   scripthost.Host // non-nil only for script-variant entries; Destroy'd on eviction
}

// Manager owns every live Spider instance; per §3's ownership rule, Spiders
// never outlive the Manager's bookkeeping.
type Manager struct {
	fetcher *fetcher.Fetcher
	logger  *zap.Logger

	mu      sync.RWMutex
	epoch   uint64
	byKey   map[string]*entry
}

func New(f *fetcher.Fetcher, logger *zap.Logger) *Manager {
	return &Manager{
		fetcher: f,
		logger:  logger,
		byKey:   make(map[string]*entry),
	}
}

// Get returns the live Spider for site, constructing (and caching) one if
// none exists yet for the current epoch (§4.5 steps 1-3).
func (m *Manager) Get(ctx context.Context, site vod.Site) spider.Spider {
	m.mu.RLock()
	if e, ok := m.byKey[site.Key]; ok && e.epoch == m.currentEpochLocked() && (e.host == nil || e.host.IsAlive()) {
		sp := e.spider
		m.mu.RUnlock()
		return sp
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Re-check under the write lock: another goroutine may have raced us.
	// An entry whose Script Host has died is destroyed and rebuilt.
	if e, ok := m.byKey[site.Key]; ok && e.epoch == m.epoch {
		if e.host == nil || e.host.IsAlive() {
			return e.spider
		}
		e.host.Destroy()
	}

	sp, host, err := m.construct(ctx, site)
	if err != nil {
		m.logger.Warn("spider construction failed, degrading to NullSpider",
			zap.String("site", site.Key), zap.Error(err))
		sp = spider.NullSpider{Site: site}
	}

	m.byKey[site.Key] = &entry{spider: sp, epoch: m.epoch, host: host}
	return sp
}

func (m *Manager) currentEpochLocked() uint64 {
	return m.epoch
}

// InferKind implements §4.5 step 2's ordered heuristic: URL/ext signals
// take precedence over the declared site.Type, since vendor configs
// routinely mislabel the type field.
func InferKind(site vod.Site) spider.Kind {
	url := strings.ToLower(site.APIURL)
	switch {
	case strings.Contains(url, ".js") || strings.Contains(url, ".min.js") ||
		strings.Contains(url, "drpy") || strings.Contains(url, "hipy"):
		return spider.KindScript
	case site.JarURL != "" || strings.Contains(url, ".jar"):
		return spider.KindNative
	case strings.Contains(url, "csp_") || strings.Contains(url, "spider"):
		return spider.KindScript
	case site.Type == vod.SiteTypeAlist:
		return spider.KindAlist
	case site.Type == vod.SiteTypeCMS:
		return spider.KindJSONCMS
	case declaresXPathExt(site):
		return spider.KindXPath
	default:
		return spider.KindJSONCMS
	}
}

func declaresXPathExt(site vod.Site) bool {
	m, ok := site.Ext.AsMap()
	if !ok {
		return false
	}
	_, hasList := m["list"]
	_, hasTitle := m["title"]
	return hasList && hasTitle
}

// construct instantiates the inferred variant, wiring whatever dependency
// that variant needs (Fetcher directly, or a fresh Script Host loaded from
// the site's script URL through Fetcher per §4.4's "loads the user script
// through Fetcher (cached)").
func (m *Manager) construct(ctx context.Context, site vod.Site) (spider.Spider, scripthost.Host, error) {
	switch InferKind(site) {
	case spider.KindJSONCMS:
		return spider.NewJSONCMSSpider(site, m.fetcher), nil, nil
	case spider.KindXPath:
		return spider.NewXPathSpider(site, m.fetcher), nil, nil
	case spider.KindAlist:
		return spider.NewAlistSpider(site, m.fetcher), nil, nil
	case spider.KindNative:
		sp, err := spider.NewNativeSpider(ctx, site, m.fetcher)
		if err != nil {
			return nil, nil, err
		}
		return sp, nil, nil
	case spider.KindScript:
		return m.constructScript(ctx, site)
	default:
		return nil, nil, fmt.Errorf("spidermgr: unknown kind for site %q", site.Key)
	}
}

func (m *Manager) constructScript(ctx context.Context, site vod.Site) (spider.Spider, scripthost.Host, error) {
	scriptURL := site.JarURL
	if scriptURL == "" {
		scriptURL = site.APIURL
	}

	source, _, err := m.fetcher.FetchString(ctx, fetcher.Request{
		SiteKey: site.Key,
		URL:     scriptURL,
		Headers: site.Headers,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("spidermgr: fetch script for %q: %w", site.Key, err)
	}

	proxyPrefix := "/proxy?site=" + site.Key + "&url="
	host := scripthost.NewJSHost(m.fetcher, site.Key, proxyPrefix, m.logger)
	if err := host.Init(ctx); err != nil {
		return nil, nil, fmt.Errorf("spidermgr: init script host for %q: %w", site.Key, err)
	}
	if err := host.Eval(ctx, source); err != nil {
		return nil, nil, fmt.Errorf("spidermgr: eval script for %q: %w", site.Key, err)
	}

	return spider.NewScriptSpider(site, host), host, nil
}

// DestroyAll is invoked atomically on config change (§4.5): every Script
// Host of the previous generation is destroyed, the map is emptied and the
// epoch advances, so any subsequent Get call observes the new, empty
// generation and reconstructs against the fresh config. Destroy waits for
// a call already running on a host to return; a later call through an old
// reference to a destroyed host fails.
func (m *Manager) DestroyAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.byKey {
		if e.host != nil {
			e.host.Destroy()
		}
	}
	m.byKey = make(map[string]*entry)
	m.epoch++
}

// Status reports per-site degradation for observability (§4.5: "observable
// via a status report but does not propagate as an error").
type Status struct {
	SiteKey   string
	Kind      spider.Kind
	Degraded  bool
}

func (m *Manager) StatusReport() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Status, 0, len(m.byKey))
	for key, e := range m.byKey {
		_, degraded := e.spider.(spider.NullSpider)
		out = append(out, Status{SiteKey: key, Kind: e.spider.Kind(), Degraded: degraded})
	}
	return out
}
