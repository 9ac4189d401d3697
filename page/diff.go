package page

import (
	"strings"
)

// Decision is the outcome of comparing a page against freshly rendered
// output. When Changed is set, NewText carries the complete replacement
// page text with all unmanaged regions preserved verbatim.
type Decision struct {
	Changed bool
	NewText string
}

// Diff compares the page's managed region against the rendered table.
// Differences that survive normalization produce an update; cosmetic
// whitespace and line-ending differences never trigger an edit.
func Diff(current, rendered, startMarker, endMarker string) (Decision, error) {
	reg, err := findRegion(current, startMarker, endMarker)
	if err != nil {
		return Decision{}, err
	}

	managed := current[reg.Start:reg.End]
	if normalize(managed) == normalize(rendered) {
		return Decision{}, nil
	}

	var b strings.Builder
	b.WriteString(current[:reg.Start])
	b.WriteString("\n")
	b.WriteString(rendered)
	b.WriteString("\n")
	b.WriteString(current[reg.End:])
	return Decision{Changed: true, NewText: b.String()}, nil
}

// normalize strips per-line trailing whitespace, unifies line endings and
// drops leading and trailing blank lines, so only substantive differences
// compare unequal.
func normalize(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r")
	}
	return strings.Trim(strings.Join(lines, "\n"), "\n")
}
