// Package vod defines the normalized data model shared by every component:
// the Site/Config/Parser registry (§3, §6) and the Vod/CategoryPage/
// PlayResult shapes produced by a Spider (§4.4) and returned by the
// Orchestrator (§4.11). Field names are part of the external wire contract
// and must not be renamed casually (§9 Design Notes: "field names are part
// of the external contract").
package vod

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SiteType enumerates the declared (not inferred) kind of a Site entry.
type SiteType int

const (
	SiteTypeSpider SiteType = 0
	SiteTypeCMS    SiteType = 1
	SiteTypeApp    SiteType = 2 // reserved, not produced by any variant in this implementation
	SiteTypeAlist  SiteType = 4
)

// Category is one entry in a Site's ordered category list.
type Category struct {
	ID   string `json:"type_id"`
	Name string `json:"type_name"`
	Flag string `json:"type_flag,omitempty"`
}

// Ext carries a site/parser's opaque configuration payload, which the wire
// format allows to be either a bare string or a JSON object (§6). Callers
// that need structured access type-assert via AsString/AsMap.
type Ext struct {
	raw json.RawMessage
}

func (e *Ext) UnmarshalJSON(data []byte) error {
	e.raw = append(e.raw[:0], data...)
	return nil
}

func (e Ext) MarshalJSON() ([]byte, error) {
	if len(e.raw) == 0 {
		return []byte(`""`), nil
	}
	return e.raw, nil
}

// AsString returns the ext payload as a string whether it was written as a
// JSON string or a JSON object (object is re-serialized to its compact form).
func (e Ext) AsString() string {
	if len(e.raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(e.raw, &s); err == nil {
		return s
	}
	return string(e.raw)
}

// AsMap returns the ext payload as a map when it was written as a JSON
// object; ok is false for string-shaped ext.
func (e Ext) AsMap() (map[string]any, bool) {
	if len(e.raw) == 0 {
		return nil, false
	}
	var m map[string]any
	if err := json.Unmarshal(e.raw, &m); err != nil {
		return nil, false
	}
	return m, true
}

// IsEmpty reports whether no ext payload was set.
func (e Ext) IsEmpty() bool {
	return len(e.raw) == 0
}

// Headers is a string->string map that also accepts the "k:v; k:v" or
// newline-separated wire encodings used by some site config documents (§6).
type Headers map[string]string

func (h *Headers) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*h = Headers{}
		return nil
	}

	if trimmed[0] == '{' {
		var m map[string]string
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("headers object: %w", err)
		}
		*h = m
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("headers string: %w", err)
	}
	*h = parseHeaderString(s)
	return nil
}

// parseHeaderString accepts "k:v; k:v" and newline-separated "k:v" forms.
func parseHeaderString(s string) Headers {
	out := Headers{}
	s = strings.ReplaceAll(s, "\n", ";")
	for _, pair := range strings.Split(s, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		idx := strings.Index(pair, ":")
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(pair[:idx])
		val := strings.TrimSpace(pair[idx+1:])
		if key != "" {
			out[key] = val
		}
	}
	return out
}

// Site is one registered third-party video source (§3).
type Site struct {
	Key              string     `json:"key"`
	Name             string     `json:"name"`
	APIURL           string     `json:"api"`
	Ext              Ext        `json:"ext,omitempty"`
	JarURL           string     `json:"jar,omitempty"`
	Type             SiteType   `json:"type"`
	Searchable       bool       `json:"searchable"`
	QuickSearchable  bool       `json:"quickSearch"`
	Filterable       bool       `json:"filterable"`
	Changeable       bool       `json:"changeable"`
	Headers          Headers    `json:"header,omitempty"`
	TimeoutMs        int        `json:"timeout,omitempty"`
	Categories       []Category `json:"categories,omitempty"`
}

// Validate checks the invariants from §3: apiURL non-empty, key non-empty.
// Key uniqueness is a Config-level invariant, checked by the config package.
func (s Site) Validate() error {
	if strings.TrimSpace(s.Key) == "" {
		return fmt.Errorf("site: key must not be empty")
	}
	if strings.TrimSpace(s.APIURL) == "" {
		return fmt.Errorf("site %q: apiURL must not be empty", s.Key)
	}
	return nil
}

// ParserType enumerates how a Parser resolves a play URL (§3).
type ParserType int

const (
	ParserSniff ParserType = 0
	ParserJSON  ParserType = 1
	ParserExt   ParserType = 2
	ParserMix   ParserType = 3
	ParserGod   ParserType = 4
)

// Parser is a remote or script-backed URL resolver (§3, GLOSSARY).
type Parser struct {
	Name    string   `json:"name"`
	Type    ParserType `json:"type"`
	URL     string   `json:"url"`
	Headers Headers  `json:"header,omitempty"`
	Ext     Ext      `json:"ext,omitempty"`
}

func (p Parser) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("parser: name must not be empty")
	}
	return nil
}

// Config is the top-level resolved configuration document (§3, §6).
type Config struct {
	Sites          []Site   `json:"sites"`
	Parsers        []Parser `json:"parses"`
	SpiderJarURL   string   `json:"spider,omitempty"`
	AdHostPatterns []string `json:"ads,omitempty"`
	Flags          map[string]string `json:"flags,omitempty"`
	Wallpaper      string   `json:"wallpaper,omitempty"`
	Notice         string   `json:"notice,omitempty"`

	// Epoch is assigned by the Config Resolver on install, not part of the
	// wire document itself (omitted from JSON round-trips per §8).
	Epoch uint64 `json:"-"`
}

// Validate enforces §3's invariants: unique site keys, unique parser names,
// well-formed URLs are left to the fetch layer (a malformed apiURL simply
// fails at request time, per the CMS variant's contract).
func (c Config) Validate() error {
	seenSites := make(map[string]struct{}, len(c.Sites))
	for _, s := range c.Sites {
		if err := s.Validate(); err != nil {
			return err
		}
		if _, dup := seenSites[s.Key]; dup {
			return fmt.Errorf("config: duplicate site key %q", s.Key)
		}
		seenSites[s.Key] = struct{}{}
	}

	seenParsers := make(map[string]struct{}, len(c.Parsers))
	for _, p := range c.Parsers {
		if err := p.Validate(); err != nil {
			return err
		}
		if _, dup := seenParsers[p.Name]; dup {
			return fmt.Errorf("config: duplicate parser name %q", p.Name)
		}
		seenParsers[p.Name] = struct{}{}
	}
	return nil
}

// SiteByKey returns the site with the given key, if registered.
func (c Config) SiteByKey(key string) (Site, bool) {
	for _, s := range c.Sites {
		if s.Key == key {
			return s, true
		}
	}
	return Site{}, false
}
