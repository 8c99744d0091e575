package spider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/moviebox/engine/internal/fetcher"
	"github.com/moviebox/engine/internal/vod"
)

func TestNewNativeSpider_FallsBackToSiteKeyWhenExtOmitsNative(t *testing.T) {
	RegisterNativeAdapter("native-spider-test-keyed", func(ctx context.Context, site vod.Site, f *fetcher.Fetcher) Spider {
		return &nativePassthrough{JSONCMSSpider: NewJSONCMSSpider(site, f)}
	})

	site := vod.Site{Key: "native-spider-test-keyed"}
	sp, err := NewNativeSpider(context.Background(), site, nil)
	require.NoError(t, err)
	require.Equal(t, KindNative, sp.Kind())
}

func TestNewNativeSpider_UsesExtNativeNameWhenPresent(t *testing.T) {
	called := false
	RegisterNativeAdapter("native-spider-test-named", func(ctx context.Context, site vod.Site, f *fetcher.Fetcher) Spider {
		called = true
		return &nativePassthrough{JSONCMSSpider: NewJSONCMSSpider(site, f)}
	})

	var ext vod.Ext
	_ = ext.UnmarshalJSON([]byte(`{"native":"native-spider-test-named"}`))
	site := vod.Site{Key: "some-other-key", Ext: ext}

	sp, err := NewNativeSpider(context.Background(), site, nil)
	require.NoError(t, err)
	require.Equal(t, KindNative, sp.Kind())
	require.True(t, called, "the ext-declared adapter name must take priority over the site key")
}

func TestNewNativeSpider_UnregisteredNameErrors(t *testing.T) {
	site := vod.Site{Key: "nobody-registered-this-name"}
	_, err := NewNativeSpider(context.Background(), site, nil)
	require.Error(t, err)
}

func TestDefaultNativeAdapter_PassesThroughAsJSONCMSShape(t *testing.T) {
	site := vod.Site{Key: "default"}
	sp, err := NewNativeSpider(context.Background(), site, nil)
	require.NoError(t, err)
	require.Equal(t, KindNative, sp.Kind())
	require.Equal(t, "default", sp.SiteKey())
}
