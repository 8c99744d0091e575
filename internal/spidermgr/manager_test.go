package spidermgr

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/moviebox/engine/internal/fetcher"
	"github.com/moviebox/engine/internal/spider"
	"github.com/moviebox/engine/internal/vod"
)

func TestInferKind(t *testing.T) {
	cases := []struct {
		name string
		site vod.Site
		want spider.Kind
	}{
		{"script by js ext", vod.Site{APIURL: "https://x.test/api.js"}, spider.KindScript},
		{"script by drpy", vod.Site{APIURL: "https://x.test/drpy_cms"}, spider.KindScript},
		{"native by jar url", vod.Site{APIURL: "https://x.test/api", JarURL: "https://x.test/spider.jar"}, spider.KindNative},
		{"native by jar ext in url", vod.Site{APIURL: "https://x.test/main.jar"}, spider.KindNative},
		{"alist by declared type", vod.Site{APIURL: "https://x.test/api", Type: vod.SiteTypeAlist}, spider.KindAlist},
		{"cms by declared type", vod.Site{APIURL: "https://x.test/api", Type: vod.SiteTypeCMS}, spider.KindJSONCMS},
		{"default cms", vod.Site{APIURL: "https://x.test/api"}, spider.KindJSONCMS},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := InferKind(tc.site)
			if got != tc.want {
				t.Fatalf("InferKind(%+v) = %v, want %v", tc.site, got, tc.want)
			}
		})
	}
}

func TestInferKind_XPathFromExtSelectors(t *testing.T) {
	site := vod.Site{
		APIURL: "https://x.test/list",
		Ext:    rawExt(`{"list":".item","title":".title"}`),
	}
	if got := InferKind(site); got != spider.KindXPath {
		t.Fatalf("InferKind = %v, want KindXPath", got)
	}
}

func rawExt(s string) vod.Ext {
	var e vod.Ext
	_ = e.UnmarshalJSON([]byte(s))
	return e
}

func TestManager_Get_CachesInstanceAcrossCalls(t *testing.T) {
	m := New(fetcher.New(fetcher.Options{}, zap.NewNop()), zap.NewNop())
	site := vod.Site{Key: "demo", APIURL: "https://x.test/api.php"}

	sp1 := m.Get(context.Background(), site)
	sp2 := m.Get(context.Background(), site)
	if sp1 != sp2 {
		t.Fatalf("expected cached spider instance, got distinct instances")
	}
}

func TestManager_DestroyAll_ForcesReconstruction(t *testing.T) {
	m := New(fetcher.New(fetcher.Options{}, zap.NewNop()), zap.NewNop())
	site := vod.Site{Key: "demo", APIURL: "https://x.test/api.php"}

	sp1 := m.Get(context.Background(), site)
	m.DestroyAll()
	sp2 := m.Get(context.Background(), site)
	if sp1 == sp2 {
		t.Fatalf("expected a fresh spider instance after DestroyAll")
	}
}

func TestManager_StatusReport(t *testing.T) {
	m := New(fetcher.New(fetcher.Options{}, zap.NewNop()), zap.NewNop())
	site := vod.Site{Key: "demo", APIURL: "https://x.test/api.php"}
	m.Get(context.Background(), site)

	statuses := m.StatusReport()
	if len(statuses) != 1 || statuses[0].SiteKey != "demo" {
		t.Fatalf("unexpected status report: %+v", statuses)
	}
}
