// Package spider is the polymorphic Spider adapter (C4): five variants
// behind one contract (§4.4), dispatched by Spider Manager (C5) based on
// a Site's declared/inferred Kind.
package spider

import (
	"context"
	"errors"

	"github.com/moviebox/engine/internal/vod"
)

// Kind is the tagged-variant discriminator for a Spider implementation,
// following the sum-type-over-interface-family guidance in the Design
// Notes rather than a reflected type switch.
type Kind int

const (
	KindNative Kind = iota
	KindJSONCMS
	KindXPath
	KindScript
	KindAlist
)

// ErrParse is the taxonomy entry for a malformed or unexpected upstream
// response shape (§4.4's failure policy: "any operation may fail with
// ParseError").
var ErrParse = errors.New("spider: parse error")

// Spider is the contract every variant implements (§4.4).
type Spider interface {
	Kind() Kind
	SiteKey() string
	Home(ctx context.Context, filter bool) (vod.HomeContent, error)
	Category(ctx context.Context, typeID string, page int, filter bool, extend map[string]string) (vod.CategoryPage, error)
	Detail(ctx context.Context, ids []string) (vod.DetailContent, error)
	Search(ctx context.Context, key string, quick bool) (vod.SearchContent, error)
	Player(ctx context.Context, flag, id string, vipFlags []string) (vod.PlayResult, error)
}

// NullSpider is returned by Spider Manager when construction of the real
// variant fails (dead Script Host, unreachable jar, etc.); every operation
// degrades to an empty-but-valid response rather than propagating the
// construction failure to every caller (§4.5, §7).
type NullSpider struct {
	Site vod.Site
}

func (n NullSpider) Kind() Kind      { return KindNative }
func (n NullSpider) SiteKey() string { return n.Site.Key }

func (n NullSpider) Home(ctx context.Context, filter bool) (vod.HomeContent, error) {
	return vod.HomeContent{Class: n.Site.Categories}, nil
}

func (n NullSpider) Category(ctx context.Context, typeID string, page int, filter bool, extend map[string]string) (vod.CategoryPage, error) {
	return vod.CategoryPage{Page: page, Limit: 20}, nil
}

func (n NullSpider) Detail(ctx context.Context, ids []string) (vod.DetailContent, error) {
	return vod.DetailContent{}, nil
}

func (n NullSpider) Search(ctx context.Context, key string, quick bool) (vod.SearchContent, error) {
	return vod.SearchContent{}, nil
}

func (n NullSpider) Player(ctx context.Context, flag, id string, vipFlags []string) (vod.PlayResult, error) {
	return vod.PlayResult{}, errors.New("spider: site degraded to NullSpider, no playable source")
}
