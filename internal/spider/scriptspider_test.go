package spider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/moviebox/engine/internal/vod"
)

// stubHost is a minimal scripthost.Host double: a fixed set of "defined"
// function names plus a canned result/error per call, enough to exercise
// ScriptSpider's dispatch and fallback logic without a real VM.
type stubHost struct {
	defined map[string]bool
	results map[string]any
	callErr error
	calls   []string
}

func (h *stubHost) Init(ctx context.Context) error                { return nil }
func (h *stubHost) Eval(ctx context.Context, source string) error { return nil }
func (h *stubHost) Destroy()                                      {}
func (h *stubHost) IsAlive() bool                                 { return true }

func (h *stubHost) HasFn(name string) bool { return h.defined[name] }

func (h *stubHost) Call(ctx context.Context, name string, args any) (any, error) {
	h.calls = append(h.calls, name)
	if h.callErr != nil {
		return nil, h.callErr
	}
	return h.results[name], nil
}

func TestScriptSpider_SearchReturnsPlaceholderWhenUnimplemented(t *testing.T) {
	host := &stubHost{defined: map[string]bool{}}
	s := NewScriptSpider(vod.Site{Key: "site1"}, host)

	out, err := s.Search(context.Background(), "some query", false)
	require.NoError(t, err)
	require.Len(t, out.List, 1)
	require.Equal(t, "placeholder", out.List[0].VodID)
	require.Equal(t, "site1", out.List[0].SiteKey)
	require.Empty(t, host.calls, "searchContent must never be called when HasFn reports it's undefined")
}

func TestScriptSpider_SearchDispatchesToHostWhenImplemented(t *testing.T) {
	host := &stubHost{
		defined: map[string]bool{"searchContent": true},
		results: map[string]any{
			"searchContent": map[string]any{
				"list": []map[string]any{{"vod_id": "42", "vod_name": "Found It"}},
			},
		},
	}
	s := NewScriptSpider(vod.Site{Key: "site1"}, host)

	out, err := s.Search(context.Background(), "some query", false)
	require.NoError(t, err)
	require.Len(t, out.List, 1)
	require.Equal(t, "42", out.List[0].VodID)
	require.Equal(t, "Found It", out.List[0].VodName)
	require.Equal(t, []string{"searchContent"}, host.calls)
}

func TestScriptSpider_SearchSurfacesHostCallError(t *testing.T) {
	host := &stubHost{
		defined: map[string]bool{"searchContent": true},
		callErr: errors.New("vm panicked"),
	}
	s := NewScriptSpider(vod.Site{Key: "site1"}, host)

	_, err := s.Search(context.Background(), "q", false)
	require.ErrorIs(t, err, ErrParse)
}

func TestScriptSpider_HomeFallsBackToConfiguredCategoriesWhenUnimplemented(t *testing.T) {
	host := &stubHost{defined: map[string]bool{}}
	categories := []vod.Category{{ID: "1", Name: "Movies"}}
	s := NewScriptSpider(vod.Site{Key: "site1", Categories: categories}, host)

	out, err := s.Home(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, categories, out.Class)
}

func TestScriptSpider_CategoryDefaultsPageAndLimitWhenUnimplemented(t *testing.T) {
	host := &stubHost{defined: map[string]bool{}}
	s := NewScriptSpider(vod.Site{Key: "site1"}, host)

	out, err := s.Category(context.Background(), "2", 3, false, nil)
	require.NoError(t, err)
	require.Equal(t, 3, out.Page)
	require.Equal(t, 20, out.Limit)
	require.Empty(t, out.List)
}

func TestScriptSpider_PlayerDefaultsURLToIDWhenUnimplemented(t *testing.T) {
	host := &stubHost{defined: map[string]bool{}}
	s := NewScriptSpider(vod.Site{Key: "site1"}, host)

	out, err := s.Player(context.Background(), "flag1", "https://cdn.example.com/a.mp4", nil)
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/a.mp4", out.URL)
	require.Equal(t, "flag1", out.Flag)
}

func TestScriptSpider_DetailReturnsEmptyListWhenUnimplemented(t *testing.T) {
	host := &stubHost{defined: map[string]bool{}}
	s := NewScriptSpider(vod.Site{Key: "site1"}, host)

	out, err := s.Detail(context.Background(), []string{"1", "2"})
	require.NoError(t, err)
	require.Empty(t, out.List)
}

func TestScriptSpider_KindAndSiteKey(t *testing.T) {
	s := NewScriptSpider(vod.Site{Key: "site9"}, &stubHost{})
	require.Equal(t, KindScript, s.Kind())
	require.Equal(t, "site9", s.SiteKey())
}
