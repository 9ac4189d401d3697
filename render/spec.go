package render

import (
	"strconv"
	"strings"

	"github.com/teranos/listsync/config"
	"github.com/teranos/listsync/errors"
)

// LinksMode controls how entity cells link.
type LinksMode int

const (
	LinksAll  LinksMode = iota // labeled links to the entity page
	LinksText                  // plain labels, no links
)

// ParseLinksMode maps a template parameter to a mode; anything
// unrecognized falls back to LinksAll.
func ParseLinksMode(s string) LinksMode {
	if strings.ToUpper(strings.TrimSpace(s)) == "TEXT" {
		return LinksText
	}
	return LinksAll
}

// Spec is one page's parsed list declaration: everything between the start
// marker's template braces, interpreted.
type Spec struct {
	Sparql    string
	Columns   []Column
	Language  string // empty means the configured default
	ThumbSize int    // 0 means the configured default
	SkipTable bool
	Summary   string // uppercased; "ITEMNUMBER" appends the item count footer
	Links     LinksMode
}

// ParseSpec interprets raw template parameters (lowercase keys) into a
// Spec. A missing sparql parameter is a configuration error; every other
// parameter is optional.
func ParseSpec(params map[string]string) (Spec, error) {
	sparql, ok := params["sparql"]
	if !ok || strings.TrimSpace(sparql) == "" {
		return Spec{}, errors.New("list template has no sparql parameter")
	}

	spec := Spec{
		Sparql:   strings.TrimSpace(sparql),
		Columns:  ParseColumns(params["columns"]),
		Language: strings.TrimSpace(params["language"]),
		Summary:  strings.ToUpper(strings.TrimSpace(params["summary"])),
		Links:    ParseLinksMode(params["links"]),
	}
	if _, ok := params["skip_table"]; ok {
		spec.SkipTable = true
	}
	if thumb, ok := params["thumb"]; ok {
		if n, err := strconv.Atoi(strings.TrimSpace(thumb)); err == nil && n > 0 {
			spec.ThumbSize = n
		}
	}
	if len(spec.Columns) == 0 {
		spec.Columns = []Column{{Kind: ColItem, Header: "item"}}
	}
	return spec, nil
}

// language returns the effective list language.
func (s Spec) language(cfg config.RenderConfig) string {
	if s.Language != "" {
		return s.Language
	}
	return cfg.DefaultLanguage
}

// thumbSize returns the effective thumbnail width in pixels.
func (s Spec) thumbSize(cfg config.RenderConfig) int {
	if s.ThumbSize > 0 {
		return s.ThumbSize
	}
	return cfg.DefaultThumbnailSize
}
