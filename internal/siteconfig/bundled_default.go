package siteconfig

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/moviebox/engine/internal/vod"
)

//go:embed bundled_default.json
var bundledDefaultJSON []byte

// BundledDefault parses the engine's compiled-in fallback Config, the
// terminal step of §4.9's priority chain when no user or remote source
// is reachable. It panics on a malformed embedded asset since that would
// be a build-time defect, never a runtime condition.
func BundledDefault() vod.Config {
	var cfg vod.Config
	if err := json.Unmarshal(bundledDefaultJSON, &cfg); err != nil {
		panic(fmt.Sprintf("siteconfig: malformed bundled default: %v", err))
	}
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("siteconfig: invalid bundled default: %v", err))
	}
	return cfg
}
