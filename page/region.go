// Package page locates the managed region of a wiki page, extracts the
// list declaration from its start template, and decides whether a freshly
// rendered table requires an edit.
package page

import (
	"strings"

	"github.com/teranos/listsync/errors"
)

// region is the managed slice of a page: Start is the offset just past the
// closing braces of the start template, End the offset of the end marker.
// The start template's raw text (including braces) is kept for parameter
// extraction.
type region struct {
	Start    int
	End      int
	Template string
}

// findRegion locates the first start marker, the close of its template and
// the first subsequent end marker. Absent markers and an unterminated
// start template both report ErrMarkersNotFound: they are configuration
// problems on the page, not transient failures.
func findRegion(text, startMarker, endMarker string) (region, error) {
	start := strings.Index(text, startMarker)
	if start < 0 {
		return region{}, errors.Wrapf(errors.ErrMarkersNotFound, "start marker %q", startMarker)
	}

	tmplEnd, ok := matchTemplateClose(text, start)
	if !ok {
		return region{}, errors.Wrapf(errors.ErrMarkersNotFound, "start template %q never closes", startMarker)
	}

	endRel := strings.Index(text[tmplEnd:], endMarker)
	if endRel < 0 {
		return region{}, errors.Wrapf(errors.ErrMarkersNotFound, "end marker %q", endMarker)
	}

	return region{
		Start:    tmplEnd,
		End:      tmplEnd + endRel,
		Template: text[start:tmplEnd],
	}, nil
}

// matchTemplateClose scans from the opening "{{" at start and returns the
// offset just past the matching "}}", honoring nested templates.
func matchTemplateClose(text string, start int) (int, bool) {
	depth := 0
	for i := start; i < len(text)-1; i++ {
		switch {
		case text[i] == '{' && text[i+1] == '{':
			depth++
			i++
		case text[i] == '}' && text[i+1] == '}':
			depth--
			i++
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}

// Params extracts the start template's parameters as a lowercase-keyed
// map. Parameters split on pipes at template nesting depth zero, so values
// may themselves contain templates or links. Valueless parameters (like
// skip_table) map to the empty string.
func Params(text, startMarker, endMarker string) (map[string]string, error) {
	reg, err := findRegion(text, startMarker, endMarker)
	if err != nil {
		return nil, err
	}
	return parseTemplateParams(reg.Template, startMarker), nil
}

func parseTemplateParams(template, startMarker string) map[string]string {
	body := strings.TrimPrefix(template, startMarker)
	body = strings.TrimSuffix(body, "}}")

	params := make(map[string]string)
	for _, part := range splitTopLevel(body) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, found := strings.Cut(part, "=")
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			continue
		}
		if !found {
			params[key] = ""
			continue
		}
		params[key] = strings.TrimSpace(value)
	}
	return params
}

// splitTopLevel splits template body text on pipes outside nested braces
// and links.
func splitTopLevel(s string) []string {
	var parts []string
	var b strings.Builder
	depth := 0
	for i := 0; i < len(s); i++ {
		switch {
		case i < len(s)-1 && (s[i] == '{' && s[i+1] == '{' || s[i] == '[' && s[i+1] == '['):
			depth++
			b.WriteByte(s[i])
			b.WriteByte(s[i+1])
			i++
		case i < len(s)-1 && (s[i] == '}' && s[i+1] == '}' || s[i] == ']' && s[i+1] == ']'):
			depth--
			b.WriteByte(s[i])
			b.WriteByte(s[i+1])
			i++
		case s[i] == '|' && depth == 0:
			parts = append(parts, b.String())
			b.Reset()
		default:
			b.WriteByte(s[i])
		}
	}
	parts = append(parts, b.String())
	return parts
}
