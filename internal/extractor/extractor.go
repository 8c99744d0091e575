// Package extractor is the Extractor Pipeline (C7): a scheme/host-dispatch
// table that turns a raw "playable identifier" into a direct stream URL
// and headers, or reports it Unresolved (§4.7). Single-shot per play
// request; cooperates with cancellation via the context passed to Resolve.
package extractor

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/moviebox/engine/internal/vod"
)

// ErrUnresolved is returned when no extractor in the pipeline claims the
// input and the Parser chain also fails to resolve it.
var ErrUnresolved = errors.New("extractor: unresolved")

// ErrExtractorBackend wraps a failure from an external-backend extractor
// (torrent/p2p/tvbus); the backend itself is out of scope for this
// module — this sentinel is what callers see until one is registered.
var ErrExtractorBackend = errors.New("extractor: backend unavailable")

// Result is a resolved direct URL ready for playback.
type Result struct {
	URL     string
	Headers vod.Headers
}

// Extractor is the contract every scheme handler implements (§4.7:
// "implements match, fetch(url), stop, exit").
type Extractor interface {
	Match(rawURL string) bool
	Fetch(ctx context.Context, rawURL string, headers vod.Headers) (Result, error)
	Stop()
	Exit()
}

// Pipeline dispatches by scheme/host, first-registered-wins (§8's
// invariant), falling back to the Parser chain for anything unmatched.
type Pipeline struct {
	extractors []Extractor
	parsers    []vod.Parser
	resolver   ParserResolver
}

// ParserResolver runs a configured Parser against a raw identifier — the
// "possibly via Script Host or a web-view sniffing proxy" fallback path
// (§4.7). Left pluggable since the concrete resolution depends on the
// Parser's Type (SNIFF/JSON/EXT/MIX/GOD), which is the Orchestrator's
// concern to wire, not this package's.
type ParserResolver func(ctx context.Context, p vod.Parser, rawURL string, headers vod.Headers) (Result, error)

func NewPipeline(parsers []vod.Parser, resolver ParserResolver, extractors ...Extractor) *Pipeline {
	return &Pipeline{extractors: extractors, parsers: parsers, resolver: resolver}
}

// Resolve dispatches rawURL per §4.7's scheme/host table.
func (p *Pipeline) Resolve(ctx context.Context, rawURL string, headers vod.Headers) (Result, error) {
	if strings.HasPrefix(rawURL, "video://") {
		return Result{URL: strings.TrimPrefix(rawURL, "video://"), Headers: headers}, nil
	}

	if isDirectMedia(rawURL) {
		return Result{URL: rawURL, Headers: headers}, nil
	}

	for _, ex := range p.extractors {
		if ex.Match(rawURL) {
			return ex.Fetch(ctx, rawURL, headers)
		}
	}

	for _, parser := range p.parsers {
		if p.resolver == nil {
			continue
		}
		result, err := p.resolver(ctx, parser, rawURL, headers)
		if err == nil {
			return result, nil
		}
	}

	return Result{}, ErrUnresolved
}

// isDirectMedia reports whether rawURL is an http(s) URL pointing at a
// container/segment format the player can consume without resolution
// (§4.7's "direct media (m3u8/mp4/ts)" row).
func isDirectMedia(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	path := strings.ToLower(u.Path)
	for _, ext := range []string{".m3u8", ".mp4", ".ts", ".flv", ".mkv"} {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// PushExtractor handles push://<target>: a pure side-effect notifying an
// external listener, returning an empty (already-delivered) result.
type PushExtractor struct {
	Notify func(target string)
}

func (e *PushExtractor) Match(rawURL string) bool { return strings.HasPrefix(rawURL, "push://") }

func (e *PushExtractor) Fetch(ctx context.Context, rawURL string, headers vod.Headers) (Result, error) {
	target := strings.TrimPrefix(rawURL, "push://")
	if e.Notify != nil {
		e.Notify(target)
	}
	return Result{}, nil
}

func (e *PushExtractor) Stop() {}
func (e *PushExtractor) Exit() {}

// BackendExtractor is the shared shape for the external-collaborator
// schemes (magnet/ed2k/thunder, tvbox-xg/jianpian/ftp, p2p/mitv, tvbus):
// each publishes a local HTTP URL once its backend resolves, and this
// module's job is only the match/wait/cancel plumbing (§1 Non-goals: the
// torrent/peer/TVBus backends themselves are external collaborators).
type BackendExtractor struct {
	schemes []string
	backend Backend
}

// Backend is satisfied by a real torrent/peer/TVBus client. Resolve blocks
// until the backend publishes a local URL or ctx is cancelled.
type Backend interface {
	Resolve(ctx context.Context, rawURL string) (localURL string, err error)
	Stop()
}

func NewBackendExtractor(backend Backend, schemes ...string) *BackendExtractor {
	return &BackendExtractor{schemes: schemes, backend: backend}
}

func (e *BackendExtractor) Match(rawURL string) bool {
	for _, scheme := range e.schemes {
		if strings.HasPrefix(rawURL, scheme) {
			return true
		}
	}
	return false
}

func (e *BackendExtractor) Fetch(ctx context.Context, rawURL string, headers vod.Headers) (Result, error) {
	if e.backend == nil {
		return Result{}, ErrExtractorBackend
	}
	localURL, err := e.backend.Resolve(ctx, rawURL)
	if err != nil {
		return Result{}, err
	}
	return Result{URL: localURL, Headers: headers}, nil
}

func (e *BackendExtractor) Stop() {
	if e.backend != nil {
		e.backend.Stop()
	}
}

func (e *BackendExtractor) Exit() {}
