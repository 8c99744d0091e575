package spider

import (
	"context"
	"fmt"
	"sync"

	"github.com/moviebox/engine/internal/fetcher"
	"github.com/moviebox/engine/internal/vod"
)

// NativeAdapter is a built-in, per-site coded adapter (§4.4: "a built-in,
// per-site coded adapter; directly uses Fetcher"). Unlike the other four
// variants, a Native adapter's parsing logic ships compiled into the
// binary rather than being data-driven by the site config document.
type NativeAdapter func(ctx context.Context, site vod.Site, f *fetcher.Fetcher) Spider

var (
	nativeRegistryMu sync.RWMutex
	nativeRegistry   = map[string]NativeAdapter{}
)

// RegisterNativeAdapter makes a built-in adapter available under name for
// sites that declare native=<name> in their ext config. Intended to be
// called from adapter package init() functions.
func RegisterNativeAdapter(name string, adapter NativeAdapter) {
	nativeRegistryMu.Lock()
	defer nativeRegistryMu.Unlock()
	nativeRegistry[name] = adapter
}

// NewNativeSpider looks up the adapter named in site.Ext ("native" key) and
// constructs it. Falls back to an error the Spider Manager turns into a
// NullSpider if the name is unregistered.
func NewNativeSpider(ctx context.Context, site vod.Site, f *fetcher.Fetcher) (Spider, error) {
	name := site.Key
	if m, ok := site.Ext.AsMap(); ok {
		if n, ok := m["native"].(string); ok && n != "" {
			name = n
		}
	}

	nativeRegistryMu.RLock()
	adapter, ok := nativeRegistry[name]
	nativeRegistryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("spider: no native adapter registered for %q", name)
	}
	return adapter(ctx, site, f), nil
}

// nativePassthrough, registered as "default", is the reference native
// adapter: it treats the site's apiURL exactly as the JSON/CMS variant
// would. Real deployments register additional adapters (per-site quirks the
// vendor-standard CMS shape doesn't cover) via RegisterNativeAdapter; this
// one demonstrates the registration path. It serves only sites keyed
// "default" or declaring native=default; other native sites with no
// registered adapter degrade to a NullSpider.
func init() {
	RegisterNativeAdapter("default", func(ctx context.Context, site vod.Site, f *fetcher.Fetcher) Spider {
		return &nativePassthrough{JSONCMSSpider: NewJSONCMSSpider(site, f)}
	})
}

type nativePassthrough struct {
	*JSONCMSSpider
}

func (n *nativePassthrough) Kind() Kind { return KindNative }
