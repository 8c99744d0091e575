package vod

import "strings"

const (
	sourceSep  = "$$$"
	episodeSep = "#"
	fieldSep   = "$"
)

// Vod is the normalized video descriptor produced by every Spider variant
// and returned by the Orchestrator (§3). Field names match the external
// wire contract exactly (§6, §9 Design Notes).
type Vod struct {
	VodID        string `json:"vod_id"`
	VodName      string `json:"vod_name"`
	VodPic       string `json:"vod_pic,omitempty"`
	VodRemarks   string `json:"vod_remarks,omitempty"`
	VodYear      string `json:"vod_year,omitempty"`
	VodArea      string `json:"vod_area,omitempty"`
	VodActor     string `json:"vod_actor,omitempty"`
	VodDirector  string `json:"vod_director,omitempty"`
	VodContent   string `json:"vod_content,omitempty"`
	VodPlayFrom  string `json:"vod_play_from,omitempty"`
	VodPlayURL   string `json:"vod_play_url,omitempty"`
	TypeID       string `json:"type_id,omitempty"`
	TypeName     string `json:"type_name,omitempty"`
	SiteKey      string `json:"site_key,omitempty"`
}

// Episode is a single playable item within a source ("name$url", §6).
type Episode struct {
	Name string
	URL  string
}

// PlaySource is a named group of episodes ("CDN A", "CDN B", ...).
type PlaySource struct {
	Flag     string
	Episodes []Episode
}

// EncodePlaySources renders sources into the VodPlayFrom/VodPlayUrl pair
// per §6's wire encoding: sources "$$$"-joined, episodes "#"-joined within
// a source, each episode "name$url".
func EncodePlaySources(sources []PlaySource) (playFrom, playURL string) {
	flags := make([]string, 0, len(sources))
	groups := make([]string, 0, len(sources))
	for _, src := range sources {
		flags = append(flags, src.Flag)
		episodes := make([]string, 0, len(src.Episodes))
		for _, ep := range src.Episodes {
			episodes = append(episodes, ep.Name+fieldSep+ep.URL)
		}
		groups = append(groups, strings.Join(episodes, episodeSep))
	}
	return strings.Join(flags, sourceSep), strings.Join(groups, sourceSep)
}

// DecodePlaySources parses VodPlayFrom/VodPlayUrl back into structured
// sources. Malformed episode entries (missing the "$" separator) are
// skipped defensively per §4.4 ("variants must NOT throw on missing
// optional fields").
func DecodePlaySources(playFrom, playURL string) []PlaySource {
	if playFrom == "" {
		return nil
	}
	flags := strings.Split(playFrom, sourceSep)
	groups := strings.Split(playURL, sourceSep)

	sources := make([]PlaySource, 0, len(flags))
	for i, flag := range flags {
		src := PlaySource{Flag: flag}
		if i < len(groups) {
			for _, raw := range strings.Split(groups[i], episodeSep) {
				if raw == "" {
					continue
				}
				idx := strings.Index(raw, fieldSep)
				if idx < 0 {
					continue
				}
				src.Episodes = append(src.Episodes, Episode{
					Name: raw[:idx],
					URL:  raw[idx+1:],
				})
			}
		}
		sources = append(sources, src)
	}
	return sources
}

// CategoryPage is the paginated result of categoryContent (§3, §4.4).
type CategoryPage struct {
	List       []Vod `json:"list"`
	Page       int   `json:"page"`
	PageCount  int   `json:"pagecount"`
	Limit      int   `json:"limit"`
	Total      int   `json:"total"`
}

// HomeContent is the result of homeContent (§4.4): categories, optionally a
// seed list, and optional filter metadata (opaque, site-specific).
type HomeContent struct {
	Class   []Category     `json:"class"`
	List    []Vod          `json:"list,omitempty"`
	Filters map[string]any `json:"filters,omitempty"`
}

// DetailContent is the result of detailContent: full records with play
// sources populated.
type DetailContent struct {
	List []Vod `json:"list"`
}

// SearchContent is the result of searchContent.
type SearchContent struct {
	List []Vod `json:"list"`
}

// PlayResult is the result of playerContent (§3).
type PlayResult struct {
	Parse   int     `json:"parse"` // 0 = direct URL, 1 = client must run parser
	PlayURL string  `json:"playUrl,omitempty"`
	URL     string  `json:"url"`
	Headers Headers `json:"header,omitempty"`
	Flag    string  `json:"flag,omitempty"`
}
