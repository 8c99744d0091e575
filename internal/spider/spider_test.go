package spider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/moviebox/engine/internal/vod"
)

func TestNullSpider_DegradesToEmptyResultsExceptPlayer(t *testing.T) {
	site := vod.Site{Key: "degraded", Categories: []vod.Category{{ID: "1", Name: "Movies"}}}
	n := NullSpider{Site: site}

	require.Equal(t, KindNative, n.Kind())
	require.Equal(t, "degraded", n.SiteKey())

	home, err := n.Home(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, site.Categories, home.Class)

	cat, err := n.Category(context.Background(), "1", 2, false, nil)
	require.NoError(t, err)
	require.Equal(t, 2, cat.Page)
	require.Equal(t, 20, cat.Limit)

	detail, err := n.Detail(context.Background(), []string{"1"})
	require.NoError(t, err)
	require.Empty(t, detail.List)

	search, err := n.Search(context.Background(), "x", false)
	require.NoError(t, err)
	require.Empty(t, search.List)

	_, err = n.Player(context.Background(), "flag", "id", nil)
	require.Error(t, err, "a degraded site must not report a playable source")
}
