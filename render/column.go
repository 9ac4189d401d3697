// Package render turns a page's list specification plus query results and
// resolved entities into canonical wikitext. Rendering is pure: identical
// inputs always produce byte-identical output, which is what makes the
// downstream diff meaningful.
package render

import (
	"regexp"
	"strings"
)

// ColumnKind is the closed set of column types a list can declare.
type ColumnKind int

const (
	ColUnknown ColumnKind = iota
	ColNumber             // running row number
	ColLabel              // entity label in the list language
	ColLabelLang          // label in an explicit language
	ColAliasLang          // aliases in an explicit language
	ColDescription
	ColItem // linked entity
	ColQid  // bare entity identifier
	ColProperty
	ColPropertyQualifier      // P1/P2: qualifier P2 values of P1 statements
	ColPropertyQualifierValue // P1/Q2/P3: qualifier P3 of P1 statements valued Q2
	ColField                  // ?var: raw query variable
)

// Column is one parsed column declaration.
type Column struct {
	Kind      ColumnKind
	Lang      string // ColLabelLang, ColAliasLang
	Langs     []string
	Property  string // ColProperty and compounds
	Qualifier string // ColPropertyQualifier, ColPropertyQualifierValue
	QualValue string // ColPropertyQualifierValue
	Field     string // ColField, uppercased variable name
	Header    string
	hasHeader bool
}

var reColumnHeader = regexp.MustCompile(`^\s*(.+?)\s*:\s*(.+?)\s*$`)

// ParseColumn parses one declaration of the form "type" or "type:Header".
func ParseColumn(s string) Column {
	if m := reColumnHeader.FindStringSubmatch(s); m != nil {
		col := parseColumnType(m[1])
		col.Header = m[2]
		col.hasHeader = m[2] != ""
		return col
	}
	col := parseColumnType(strings.TrimSpace(s))
	col.Header = strings.TrimSpace(s)
	return col
}

// ParseColumns parses a comma-separated columns parameter.
func ParseColumns(s string) []Column {
	var cols []Column
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		cols = append(cols, ParseColumn(part))
	}
	return cols
}

func parseColumnType(s string) Column {
	lower := strings.ToLower(strings.TrimSpace(s))

	switch lower {
	case "number":
		return Column{Kind: ColNumber}
	case "label":
		return Column{Kind: ColLabel}
	case "description":
		return Column{Kind: ColDescription}
	case "item":
		return Column{Kind: ColItem}
	case "qid":
		return Column{Kind: ColQid}
	}

	if rest, ok := strings.CutPrefix(lower, "description/"); ok {
		var langs []string
		for _, l := range strings.Split(rest, "/") {
			if l = strings.TrimSpace(l); l != "" {
				langs = append(langs, l)
			}
		}
		return Column{Kind: ColDescription, Langs: langs}
	}
	if rest, ok := strings.CutPrefix(lower, "label/"); ok {
		return Column{Kind: ColLabelLang, Lang: rest}
	}
	if rest, ok := strings.CutPrefix(lower, "alias/"); ok {
		return Column{Kind: ColAliasLang, Lang: rest}
	}

	trimmed := strings.TrimSpace(s)

	if p, ok := parsePQID(trimmed, 'P'); ok {
		return Column{Kind: ColProperty, Property: p}
	}

	if strings.Contains(trimmed, "/") {
		if col, ok := parseSlashCompound(trimmed); ok {
			return col
		}
	}

	if rest, ok := strings.CutPrefix(trimmed, "?"); ok && rest != "" {
		return Column{Kind: ColField, Field: strings.ToUpper(rest)}
	}

	return Column{Kind: ColUnknown}
}

// parsePQID matches `[Pp]\d+` or `[Qq]\d+` and returns the uppercase form.
func parsePQID(s string, prefix byte) (string, bool) {
	if len(s) < 2 {
		return "", false
	}
	if s[0] != prefix && s[0] != prefix|0x20 {
		return "", false
	}
	for i := 1; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return "", false
		}
	}
	return strings.ToUpper(s), true
}

// parseSlashCompound parses "P31/P580" and "P39/Q41582/P580" forms.
func parseSlashCompound(s string) (Column, bool) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	switch len(parts) {
	case 2:
		p1, ok1 := parsePQID(parts[0], 'P')
		p2, ok2 := parsePQID(parts[1], 'P')
		if ok1 && ok2 {
			return Column{Kind: ColPropertyQualifier, Property: p1, Qualifier: p2}, true
		}
	case 3:
		p1, ok1 := parsePQID(parts[0], 'P')
		q, ok2 := parsePQID(parts[1], 'Q')
		p2, ok3 := parsePQID(parts[2], 'P')
		if ok1 && ok2 && ok3 {
			return Column{Kind: ColPropertyQualifierValue, Property: p1, QualValue: q, Qualifier: p2}, true
		}
	}
	return Column{}, false
}
