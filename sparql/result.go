package sparql

import (
	"encoding/json"
	"strings"

	"github.com/teranos/listsync/errors"
)

// Row maps variable name to its typed value. Variables a row does not
// bind are absent from the map.
type Row map[string]Value

// Result is an ordered sequence of result rows plus the ordered variable
// head from the response. Row order is preserved exactly as the endpoint
// returned it; rendering depends on that.
type Result struct {
	Variables []string
	Rows      []Row
}

// Variable resolves name against the result head case-insensitively and
// returns the declared spelling. Column references arrive uppercased, so
// an exact match cannot be required here.
func (r *Result) Variable(name string) (string, bool) {
	for _, v := range r.Variables {
		if strings.EqualFold(v, name) {
			return v, true
		}
	}
	return "", false
}

// EntityIDs collects, in first-appearance order, every distinct entity
// identifier bound anywhere in the result. This is the resolve set handed
// to the entity cache.
func (r *Result) EntityIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, row := range r.Rows {
		for _, v := range r.Variables {
			val, ok := row[v]
			if !ok || val.Kind != KindEntity {
				continue
			}
			if !seen[val.Text] {
				seen[val.Text] = true
				ids = append(ids, val.Text)
			}
		}
	}
	return ids
}

// sparqlResponse mirrors the SPARQL 1.1 JSON results format.
type sparqlResponse struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Results struct {
		Bindings []map[string]binding `json:"bindings"`
	} `json:"results"`
}

// ParseResult decodes a SPARQL JSON response body.
func ParseResult(body []byte) (*Result, error) {
	var resp sparqlResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(errors.ErrMalformedResponse, err.Error())
	}
	if resp.Head.Vars == nil {
		return nil, errors.Wrap(errors.ErrMalformedResponse, "response has no head.vars")
	}

	result := &Result{Variables: resp.Head.Vars}
	for _, rawRow := range resp.Results.Bindings {
		row := make(Row, len(rawRow))
		for name, b := range rawRow {
			if v, ok := parseValue(b); ok {
				row[name] = v
			}
		}
		result.Rows = append(result.Rows, row)
	}
	return result, nil
}
