// Package sparql executes queries against a SPARQL endpoint and parses its
// JSON results into typed values.
package sparql

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// ValueKind tags the closed set of value variants a result binding can
// carry. The set is fixed; rendering dispatches on it.
type ValueKind int

const (
	KindLiteral ValueKind = iota
	KindEntity
	KindFile
	KindURI
	KindTime
	KindLocation
)

// Value is one typed binding cell. Text holds the payload for every kind
// except Location, which uses Lat/Lon.
type Value struct {
	Kind ValueKind
	Text string
	Lat  float64
	Lon  float64
}

var (
	reEntity = regexp.MustCompile(`^https?://[^/]+/entity/([A-Z]\d+)$`)
	reFile   = regexp.MustCompile(`^https?://[^/]+/wiki/Special:FilePath/(.+?)$`)
	rePoint  = regexp.MustCompile(`^Point\((-?\d+[\.0-9]*) (-?\d+[\.0-9]*)\)$`)
	reDate   = regexp.MustCompile(`^([+-]?\d+-\d{2}-\d{2})T00:00:00Z$`)
)

const (
	datatypeWKT      = "http://www.opengis.net/ont/geosparql#wktLiteral"
	datatypeDateTime = "http://www.w3.org/2001/XMLSchema#dateTime"
)

// binding mirrors one cell of the SPARQL JSON results format.
type binding struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Datatype string `json:"datatype,omitempty"`
}

// parseValue turns a raw binding into a typed Value. Returns false for
// binding shapes we do not understand; callers drop those cells.
func parseValue(b binding) (Value, bool) {
	switch b.Type {
	case "uri":
		if m := reEntity.FindStringSubmatch(b.Value); m != nil {
			return Value{Kind: KindEntity, Text: m[1]}, true
		}
		if m := reFile.FindStringSubmatch(b.Value); m != nil {
			name, err := url.QueryUnescape(m[1])
			if err != nil {
				return Value{}, false
			}
			return Value{Kind: KindFile, Text: strings.ReplaceAll(name, "_", " ")}, true
		}
		return Value{Kind: KindURI, Text: b.Value}, true
	case "literal":
		switch b.Datatype {
		case datatypeWKT:
			m := rePoint.FindStringSubmatch(b.Value)
			if m == nil {
				return Value{}, false
			}
			lon, errLon := strconv.ParseFloat(m[1], 64)
			lat, errLat := strconv.ParseFloat(m[2], 64)
			if errLon != nil || errLat != nil {
				return Value{}, false
			}
			return Value{Kind: KindLocation, Lat: lat, Lon: lon}, true
		case datatypeDateTime:
			// Midnight timestamps are dates; keep just the date part
			if m := reDate.FindStringSubmatch(b.Value); m != nil {
				return Value{Kind: KindTime, Text: m[1]}, true
			}
			return Value{Kind: KindTime, Text: b.Value}, true
		default:
			return Value{Kind: KindLiteral, Text: b.Value}, true
		}
	case "bnode":
		return Value{Kind: KindLiteral, Text: b.Value}, true
	}
	return Value{}, false
}
