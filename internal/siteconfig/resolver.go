// Package siteconfig is the Config Resolver (C9): a priority-ordered
// loader (user URL → remote index → bundled default) that validates a
// fetched document, installs it atomically as a new epoch, and notifies
// registered listeners (§4.9).
package siteconfig

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"go.uber.org/zap"

	"github.com/moviebox/engine/internal/fetcher"
	"github.com/moviebox/engine/internal/vod"
)

// EpochListener is notified after a new Config is installed. Registered
// at construction, per Design Notes' "typed dispatcher registered at
// construction" guidance (replacing a reflected event bus).
type EpochListener interface {
	OnEpochChange(cfg vod.Config)
}

// indexResponse is the shape of the remote signed index document (§4.9
// step 2): it points at the actual config document rather than embedding
// it directly.
type indexResponse struct {
	ConfigURL string `json:"configUrl"`
}

// Resolver implements the three-tier priority chain and keeps the
// currently-active Config plus its install history.
type Resolver struct {
	fetcher         *fetcher.Fetcher
	logger          *zap.Logger
	userConfigURL   string
	remoteIndexURL  string
	bundledDefault  vod.Config
	snapshotPath    string
	db              *sql.DB

	mu     sync.RWMutex
	active vod.Config

	listeners []EpochListener
}

// Options configures a Resolver's priority chain (§4.9).
type Options struct {
	UserConfigURL  string
	RemoteIndexURL string
	BundledDefault vod.Config
	SnapshotPath   string // where config.json is atomically written
	HistoryDB      *sql.DB
}

func New(f *fetcher.Fetcher, logger *zap.Logger, opts Options) *Resolver {
	return &Resolver{
		fetcher:        f,
		logger:         logger,
		userConfigURL:  opts.UserConfigURL,
		remoteIndexURL: opts.RemoteIndexURL,
		bundledDefault: opts.BundledDefault,
		snapshotPath:   opts.SnapshotPath,
		db:             opts.HistoryDB,
		active:         opts.BundledDefault,
	}
}

// Register adds an EpochListener; intended to be called during
// construction, before the first Resolve.
func (r *Resolver) Register(l EpochListener) {
	r.listeners = append(r.listeners, l)
}

// Active returns the currently installed Config.
func (r *Resolver) Active() vod.Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Resolve walks the priority chain (§4.9 priority order), validates the
// first document it successfully fetches and parses, and installs it as
// a new epoch. On any failure it keeps the previously active config and
// returns the error rather than leaving the system without one (§4.9's
// failure semantics) — the bundled default is always the terminal
// fallback since it requires no fetch at all.
func (r *Resolver) Resolve(ctx context.Context) error {
	cfg, source, err := r.fetchFirstAvailable(ctx)
	if err != nil {
		r.logger.Warn("config resolve failed, keeping previously active config", zap.Error(err))
		return err
	}

	if err := cfg.Validate(); err != nil {
		r.logger.Warn("resolved config failed validation, keeping previously active config",
			zap.String("source", source), zap.Error(err))
		return fmt.Errorf("siteconfig: validate: %w", err)
	}

	return r.install(ctx, cfg, source)
}

func (r *Resolver) fetchFirstAvailable(ctx context.Context) (vod.Config, string, error) {
	if r.userConfigURL != "" {
		if cfg, err := r.fetchConfigDocument(ctx, r.userConfigURL); err == nil {
			return cfg, "user", nil
		} else {
			r.logger.Debug("user config url failed", zap.Error(err))
		}
	}

	if r.remoteIndexURL != "" {
		if cfg, err := r.fetchViaRemoteIndex(ctx); err == nil {
			return cfg, "remote-index", nil
		} else {
			r.logger.Debug("remote index failed", zap.Error(err))
		}
	}

	if len(r.bundledDefault.Sites) > 0 {
		return r.bundledDefault, "bundled", nil
	}

	return vod.Config{}, "", fmt.Errorf("siteconfig: no config source available")
}

func (r *Resolver) fetchViaRemoteIndex(ctx context.Context) (vod.Config, error) {
	body, _, err := r.fetcher.FetchString(ctx, fetcher.Request{URL: r.remoteIndexURL, Timeout: 10 * time.Second})
	if err != nil {
		return vod.Config{}, fmt.Errorf("fetch remote index: %w", err)
	}

	var idx indexResponse
	if err := json.Unmarshal([]byte(body), &idx); err != nil || idx.ConfigURL == "" {
		return vod.Config{}, fmt.Errorf("parse remote index: %w", err)
	}

	return r.fetchConfigDocument(ctx, idx.ConfigURL)
}

func (r *Resolver) fetchConfigDocument(ctx context.Context, url string) (vod.Config, error) {
	body, _, err := r.fetcher.FetchString(ctx, fetcher.Request{URL: url, Timeout: 15 * time.Second})
	if err != nil {
		return vod.Config{}, fmt.Errorf("fetch config document: %w", err)
	}

	var cfg vod.Config
	if err := json.Unmarshal([]byte(body), &cfg); err != nil {
		return vod.Config{}, fmt.Errorf("parse config document: %w", err)
	}
	return cfg, nil
}

// install atomically writes config.json, records the epoch in the history
// table, bumps the epoch, and notifies listeners in registration order.
func (r *Resolver) install(ctx context.Context, cfg vod.Config, source string) error {
	r.mu.Lock()
	cfg.Epoch = r.active.Epoch + 1
	r.active = cfg
	r.mu.Unlock()

	if r.snapshotPath != "" {
		if err := writeSnapshotAtomic(r.snapshotPath, cfg); err != nil {
			r.logger.Warn("config snapshot write failed", zap.Error(err))
		}
	}

	if r.db != nil {
		if err := recordHistory(ctx, r.db, cfg.Epoch, source); err != nil {
			r.logger.Warn("config history record failed", zap.Error(err))
		}
	}

	for _, l := range r.listeners {
		l.OnEpochChange(cfg)
	}

	r.logger.Info("config installed", zap.Uint64("epoch", cfg.Epoch),
		zap.String("source", source), zap.Int("sites", len(cfg.Sites)))
	return nil
}

// writeSnapshotAtomic writes config.json via renameio so a crash mid-write
// never corrupts the last-good snapshot (§6, §4.9).
func writeSnapshotAtomic(path string, cfg vod.Config) error {
	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("siteconfig: create pending snapshot: %w", err)
	}
	defer pending.Cleanup()

	enc := json.NewEncoder(pending)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("siteconfig: encode snapshot: %w", err)
	}

	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("siteconfig: replace snapshot: %w", err)
	}
	return nil
}
