package render

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/teranos/listsync/config"
	"github.com/teranos/listsync/entity"
	"github.com/teranos/listsync/errors"
	"github.com/teranos/listsync/sparql"
)

// Warning is a non-fatal problem found while rendering, attributed to one
// result row. Warned rows are skipped, never fatal.
type Warning struct {
	Row     int
	Message string
}

// Renderer produces canonical wikitext from query results and resolved
// entities. It holds only configuration and is safe for concurrent use.
type Renderer struct {
	cfg config.RenderConfig
}

func New(cfg config.RenderConfig) *Renderer {
	return &Renderer{cfg: cfg}
}

// Render builds the full managed-region wikitext for one list. It performs
// no I/O: row order follows the query result, column order follows the
// spec, and identical inputs yield byte-identical output. Entities missing
// from the snapshot render as their bare identifier.
func (r *Renderer) Render(spec Spec, result *sparql.Result, entities map[string]*entity.Entity) (string, []Warning) {
	var warnings []Warning
	shadow := &shadowList{}
	lang := spec.language(r.cfg)

	var rows []string
	for i, row := range result.Rows {
		wt, err := r.renderRow(spec, result, row, i, lang, entities, shadow)
		if err != nil {
			warnings = append(warnings, Warning{Row: i, Message: err.Error()})
			continue
		}
		rows = append(rows, wt)
	}

	var b strings.Builder
	if !spec.SkipTable {
		b.WriteString("{| class='wikitable sortable' style='width:100%'\n")
		for _, col := range spec.Columns {
			b.WriteString("! ")
			b.WriteString(r.headerFor(col, lang, entities))
			b.WriteString("\n")
		}
		if len(rows) > 0 {
			b.WriteString("|-\n")
		}
		b.WriteString(strings.Join(rows, "\n|-\n"))
		b.WriteString("\n|}")
	} else {
		b.WriteString(strings.Join(rows, "\n"))
	}

	if files := shadow.files; len(files) > 0 {
		b.WriteString("\n----\nThe following local image(s) are not shown in the above list, because they shadow a Commons image of the same name, and might be non-free:")
		for _, f := range files {
			b.WriteString(fmt.Sprintf("\n# [[:File:%s|]]", f))
		}
	}

	if spec.Summary == "ITEMNUMBER" {
		b.WriteString(fmt.Sprintf("\n----\n&sum; %d items.", len(rows)))
	}

	return b.String(), warnings
}

// headerFor resolves a column's display header. Property columns without
// an explicit header use the property's label when it was resolved.
func (r *Renderer) headerFor(col Column, lang string, entities map[string]*entity.Entity) string {
	if col.hasHeader {
		return col.Header
	}
	label := func(id string) string {
		if e, ok := entities[id]; ok {
			return e.LabelWithFallback(lang, r.cfg.LanguageFallback)
		}
		return id
	}
	switch col.Kind {
	case ColProperty:
		return label(col.Property)
	case ColPropertyQualifier, ColPropertyQualifierValue:
		return label(col.Property) + "/" + label(col.Qualifier)
	}
	return col.Header
}

func (r *Renderer) renderRow(spec Spec, result *sparql.Result, row sparql.Row, rownum int, lang string, entities map[string]*entity.Entity, shadow *shadowList) (string, error) {
	subject := subjectID(result, row)

	cells := make([]string, 0, len(spec.Columns))
	for _, col := range spec.Columns {
		cell, err := r.renderCell(spec, col, result, row, rownum, lang, subject, entities, shadow)
		if err != nil {
			return "", err
		}
		cells = append(cells, cell)
	}
	return "| " + strings.Join(cells, "\n| "), nil
}

func (r *Renderer) renderCell(spec Spec, col Column, result *sparql.Result, row sparql.Row, rownum int, lang, subject string, entities map[string]*entity.Entity, shadow *shadowList) (string, error) {
	e := entities[subject]

	switch col.Kind {
	case ColNumber:
		return fmt.Sprintf("style='text-align:right'| %d", rownum+1), nil

	case ColLabel:
		if subject == "" {
			return "", errors.New("row has no entity binding for a label column")
		}
		return r.entityText(spec, subject, lang, entities), nil

	case ColItem:
		if subject == "" {
			return "", errors.New("row has no entity binding for an item column")
		}
		return r.entityLink(subject, r.labelOf(subject, lang, entities)), nil

	case ColQid:
		if subject == "" {
			return "", errors.New("row has no entity binding for a qid column")
		}
		return subject, nil

	case ColLabelLang:
		if e == nil {
			return subject, nil
		}
		return e.LabelWithFallback(col.Lang, r.cfg.LanguageFallback), nil

	case ColAliasLang:
		if e == nil {
			return "", nil
		}
		return strings.Join(e.Aliases[col.Lang], ", "), nil

	case ColDescription:
		if e == nil {
			return "", nil
		}
		langs := col.Langs
		if len(langs) == 0 {
			langs = []string{lang}
		}
		langs = append(langs, r.cfg.LanguageFallback...)
		for _, l := range langs {
			if d, ok := e.Description(l); ok {
				return d, nil
			}
		}
		return "", nil

	case ColProperty:
		if e == nil {
			return "", nil
		}
		var parts []string
		for _, s := range e.StatementsFor(col.Property, r.cfg.PreferPreferred) {
			parts = append(parts, r.statementValue(spec, s.Value, lang, entities, shadow))
		}
		return strings.Join(parts, "<br/>"), nil

	case ColPropertyQualifier:
		if e == nil {
			return "", nil
		}
		var parts []string
		for _, s := range e.StatementsFor(col.Property, r.cfg.PreferPreferred) {
			if qv := r.qualifierValues(spec, s, col.Qualifier, lang, entities, shadow); qv != "" {
				parts = append(parts, qv)
			}
		}
		return strings.Join(parts, "<br/>"), nil

	case ColPropertyQualifierValue:
		if e == nil {
			return "", nil
		}
		var parts []string
		for _, s := range e.StatementsFor(col.Property, r.cfg.PreferPreferred) {
			if s.Value.Kind != entity.ValueEntity || s.Value.Text != col.QualValue {
				continue
			}
			if qv := r.qualifierValues(spec, s, col.Qualifier, lang, entities, shadow); qv != "" {
				parts = append(parts, qv)
			}
		}
		return strings.Join(parts, "<br/>"), nil

	case ColField:
		name, ok := result.Variable(col.Field)
		if !ok {
			return "", errors.Newf("query result has no variable %q", col.Field)
		}
		v, bound := row[name]
		if !bound {
			return "", nil
		}
		return r.sparqlValue(spec, v, lang, entities, shadow), nil
	}

	return "", nil
}

// qualifierValues renders one statement's qualifier values for a property,
// joined inline.
func (r *Renderer) qualifierValues(spec Spec, s entity.Statement, qualifier, lang string, entities map[string]*entity.Entity, shadow *shadowList) string {
	var parts []string
	for _, v := range s.QualifierValues(qualifier) {
		parts = append(parts, r.statementValue(spec, v, lang, entities, shadow))
	}
	return strings.Join(parts, " — ")
}

// statementValue renders one entity statement value.
func (r *Renderer) statementValue(spec Spec, v entity.Value, lang string, entities map[string]*entity.Entity, shadow *shadowList) string {
	switch v.Kind {
	case entity.ValueEntity:
		return r.entityText(spec, v.Text, lang, entities)
	case entity.ValueFile:
		return r.fileCell(spec, v.Text, shadow)
	case entity.ValueCoordinate:
		return r.locationCell(v.Lat, v.Lon)
	case entity.ValueNone:
		return ""
	default:
		return v.Text
	}
}

// sparqlValue renders one raw query binding.
func (r *Renderer) sparqlValue(spec Spec, v sparql.Value, lang string, entities map[string]*entity.Entity, shadow *shadowList) string {
	switch v.Kind {
	case sparql.KindEntity:
		return r.entityText(spec, v.Text, lang, entities)
	case sparql.KindFile:
		return r.fileCell(spec, v.Text, shadow)
	case sparql.KindLocation:
		return r.locationCell(v.Lat, v.Lon)
	default:
		return v.Text
	}
}

// entityText renders an entity reference as its best label, linked unless
// the list asked for plain text. Unresolved entities degrade to the bare
// identifier.
func (r *Renderer) entityText(spec Spec, id, lang string, entities map[string]*entity.Entity) string {
	label := r.labelOf(id, lang, entities)
	if spec.Links == LinksText {
		return label
	}
	return r.entityLink(id, label)
}

func (r *Renderer) labelOf(id, lang string, entities map[string]*entity.Entity) string {
	if e, ok := entities[id]; ok {
		return e.LabelWithFallback(lang, r.cfg.LanguageFallback)
	}
	return id
}

func (r *Renderer) entityLink(id, label string) string {
	return fmt.Sprintf("[[:d:%s|%s]]", id, label)
}

// fileCell renders an image thumbnail, suppressing names on the shadow
// exclusion list and recording them for the footer.
func (r *Renderer) fileCell(spec Spec, name string, shadow *shadowList) string {
	for _, s := range r.cfg.ShadowImages {
		if normalizeFileName(s) == normalizeFileName(name) {
			shadow.add(name)
			return ""
		}
	}
	return fmt.Sprintf("[[File:%s|center|%dpx]]", name, spec.thumbSize(r.cfg))
}

// locationCell formats a coordinate through the template configured for
// the first matching region, substituting placeholders textually.
func (r *Renderer) locationCell(lat, lon float64) string {
	region := ""
	for _, name := range sortedKeys(r.cfg.LocationRegions) {
		if r.cfg.LocationRegions[name].Contains(lat, lon) {
			region = name
			break
		}
	}
	tmpl, ok := r.cfg.LocationTemplates[region]
	if !ok {
		tmpl = r.cfg.LocationTemplates["default"]
	}
	tmpl = strings.ReplaceAll(tmpl, "$LAT$", formatCoord(lat))
	tmpl = strings.ReplaceAll(tmpl, "$LON$", formatCoord(lon))
	return strings.ReplaceAll(tmpl, "$REGION$", region)
}

func formatCoord(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// subjectID finds the row's subject: the first entity-valued binding in
// result head order.
func subjectID(result *sparql.Result, row sparql.Row) string {
	for _, v := range result.Variables {
		if val, ok := row[v]; ok && val.Kind == sparql.KindEntity {
			return val.Text
		}
	}
	return ""
}

// shadowList collects suppressed image names in first-seen order.
type shadowList struct {
	files []string
}

func (s *shadowList) add(name string) {
	for _, f := range s.files {
		if f == name {
			return
		}
	}
	s.files = append(s.files, name)
}

func normalizeFileName(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), "_", " ")
}

// sortedKeys orders region names so the first-match rule is stable across
// runs; map iteration order is not.
func sortedKeys(m map[string]config.Region) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
