// Package entity resolves entity identifiers to their metadata and caches
// the results in a bounded, deduplicating LRU cache.
package entity

import (
	"sort"
)

// Rank orders statements by editorial preference.
type Rank int

const (
	RankDeprecated Rank = iota
	RankNormal
	RankPreferred
)

// ValueKind tags the closed set of statement value variants.
type ValueKind int

const (
	ValueNone ValueKind = iota // "no value" / "unknown value" snaks
	ValueEntity
	ValueString
	ValueFile // commons media
	ValueExternalID
	ValueTime
	ValueQuantity
	ValueCoordinate
	ValueMonolingual
)

// Value is one statement's payload. Text carries everything except
// coordinates, which use Lat/Lon. Monolingual values prefix their
// language as "lang:text"; external ids keep the property in Property.
type Value struct {
	Kind ValueKind
	Text string
	Lat  float64
	Lon  float64
}

// Qualifier refines a statement with an extra property-value pair.
type Qualifier struct {
	Property string
	Value    Value
}

// Statement is one property claim on an entity, in entity order.
type Statement struct {
	Property   string
	Rank       Rank
	Value      Value
	Qualifiers []Qualifier
}

// QualifierValues returns the statement's qualifier values for one
// property, in qualifier order.
func (s Statement) QualifierValues(property string) []Value {
	var vals []Value
	for _, q := range s.Qualifiers {
		if q.Property == property {
			vals = append(vals, q.Value)
		}
	}
	return vals
}

// Entity is resolved metadata for one identifier. Entities are immutable
// after insertion into the cache; a re-fetch replaces the whole entry, so
// concurrent renders may hold and read one safely.
type Entity struct {
	ID           string
	Labels       map[string]string
	Descriptions map[string]string
	Aliases      map[string][]string
	Sitelinks    map[string]string
	Statements   []Statement
}

// Label returns the label in the given language.
func (e *Entity) Label(lang string) (string, bool) {
	s, ok := e.Labels[lang]
	return s, ok
}

// LabelWithFallback returns the best label: the requested language first,
// then the fallback order, then the lexicographically smallest remaining
// language code (a deterministic "any"), then the bare identifier.
func (e *Entity) LabelWithFallback(lang string, fallback []string) string {
	if s, ok := e.Labels[lang]; ok {
		return s
	}
	for _, l := range fallback {
		if s, ok := e.Labels[l]; ok {
			return s
		}
	}
	if len(e.Labels) > 0 {
		langs := make([]string, 0, len(e.Labels))
		for l := range e.Labels {
			langs = append(langs, l)
		}
		sort.Strings(langs)
		return e.Labels[langs[0]]
	}
	return e.ID
}

// Description returns the description in the given language.
func (e *Entity) Description(lang string) (string, bool) {
	s, ok := e.Descriptions[lang]
	return s, ok
}

// StatementsFor returns the entity's statements for one property,
// preserving entity order and dropping deprecated ranks. With
// preferPreferred set and at least one preferred statement present, only
// the preferred ones are returned.
func (e *Entity) StatementsFor(property string, preferPreferred bool) []Statement {
	var all, preferred []Statement
	for _, s := range e.Statements {
		if s.Property != property || s.Rank == RankDeprecated {
			continue
		}
		all = append(all, s)
		if s.Rank == RankPreferred {
			preferred = append(preferred, s)
		}
	}
	if preferPreferred && len(preferred) > 0 {
		return preferred
	}
	return all
}
