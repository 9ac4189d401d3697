package entity

import (
	"context"
	"encoding/json"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/teranos/listsync/config"
	"github.com/teranos/listsync/errors"
	"github.com/teranos/listsync/internal/httpclient"
)

// BatchSize is the wbgetentities limit on ids per request.
const BatchSize = 50

// Fetcher retrieves a batch of entities from the external service.
// Identifiers absent from the result are missing upstream; only whole-call
// failures return an error.
type Fetcher interface {
	Fetch(ctx context.Context, ids []string) (map[string]*Entity, error)
}

// apiFetcher fetches entities from a MediaWiki wbgetentities endpoint.
type apiFetcher struct {
	apiURL string
	client *httpclient.Client
}

// NewFetcher creates the production fetcher for the configured API.
func NewFetcher(cfg config.EntityConfig) Fetcher {
	return &apiFetcher{
		apiURL: cfg.APIURL,
		client: httpclient.New(time.Duration(cfg.TimeoutSeconds) * time.Second),
	}
}

func (f *apiFetcher) Fetch(ctx context.Context, ids []string) (map[string]*Entity, error) {
	if len(ids) > BatchSize {
		return nil, errors.Newf("batch of %d exceeds the %d-id limit", len(ids), BatchSize)
	}
	params := url.Values{}
	params.Set("action", "wbgetentities")
	params.Set("ids", strings.Join(ids, "|"))
	params.Set("format", "json")

	body, err := f.client.Get(ctx, f.apiURL+"?"+params.Encode())
	if err != nil {
		return nil, errors.Wrapf(err, "fetching %d entities", len(ids))
	}
	return parseEntitiesResponse(body)
}

// Wire format of a wbgetentities response, see
// https://www.wikidata.org/w/api.php?action=help&modules=wbgetentities
type apiResponse struct {
	Entities map[string]apiEntity `json:"entities"`
	Error    *struct {
		Code string `json:"code"`
		Info string `json:"info"`
	} `json:"error"`
}

type apiEntity struct {
	ID           string                    `json:"id"`
	Missing      *string                   `json:"missing"`
	Labels       map[string]apiLangValue   `json:"labels"`
	Descriptions map[string]apiLangValue   `json:"descriptions"`
	Aliases      map[string][]apiLangValue `json:"aliases"`
	Sitelinks    map[string]apiSitelink    `json:"sitelinks"`
	Claims       map[string][]apiClaim     `json:"claims"`
}

type apiLangValue struct {
	Language string `json:"language"`
	Value    string `json:"value"`
}

type apiSitelink struct {
	Site  string `json:"site"`
	Title string `json:"title"`
}

type apiClaim struct {
	Mainsnak        apiSnak              `json:"mainsnak"`
	Rank            string               `json:"rank"`
	Qualifiers      map[string][]apiSnak `json:"qualifiers"`
	QualifiersOrder []string             `json:"qualifiers-order"`
}

type apiSnak struct {
	Snaktype  string `json:"snaktype"`
	Property  string `json:"property"`
	Datatype  string `json:"datatype"`
	Datavalue *struct {
		Type  string          `json:"type"`
		Value json.RawMessage `json:"value"`
	} `json:"datavalue"`
}

// parseEntitiesResponse decodes a wbgetentities body. Entities flagged
// missing are dropped from the result rather than failing the batch.
func parseEntitiesResponse(body []byte) (map[string]*Entity, error) {
	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(errors.ErrMalformedResponse, err.Error())
	}
	if resp.Error != nil {
		if resp.Error.Code == "no-such-entity" {
			return nil, errors.Wrapf(errors.ErrNotFound, "%s", resp.Error.Info)
		}
		return nil, errors.Wrapf(errors.ErrMalformedResponse, "API error %s: %s", resp.Error.Code, resp.Error.Info)
	}

	entities := make(map[string]*Entity, len(resp.Entities))
	for id, raw := range resp.Entities {
		if raw.Missing != nil {
			continue
		}
		entities[id] = parseAPIEntity(id, raw)
	}
	return entities, nil
}

func parseAPIEntity(id string, raw apiEntity) *Entity {
	e := &Entity{
		ID:           id,
		Labels:       make(map[string]string, len(raw.Labels)),
		Descriptions: make(map[string]string, len(raw.Descriptions)),
		Aliases:      make(map[string][]string, len(raw.Aliases)),
		Sitelinks:    make(map[string]string, len(raw.Sitelinks)),
	}
	for lang, lv := range raw.Labels {
		e.Labels[lang] = lv.Value
	}
	for lang, lv := range raw.Descriptions {
		e.Descriptions[lang] = lv.Value
	}
	for lang, lvs := range raw.Aliases {
		for _, lv := range lvs {
			e.Aliases[lang] = append(e.Aliases[lang], lv.Value)
		}
	}
	for site, sl := range raw.Sitelinks {
		e.Sitelinks[site] = sl.Title
	}

	// Claims arrive keyed by property; sort the property keys so the
	// flattened statement order is deterministic across fetches, while
	// the per-property order stays as the entity declares it.
	props := make([]string, 0, len(raw.Claims))
	for p := range raw.Claims {
		props = append(props, p)
	}
	sortProperties(props)
	for _, p := range props {
		for _, claim := range raw.Claims[p] {
			e.Statements = append(e.Statements, Statement{
				Property:   p,
				Rank:       parseRank(claim.Rank),
				Value:      parseSnak(claim.Mainsnak),
				Qualifiers: parseQualifiers(claim),
			})
		}
	}

	return e
}

// parseQualifiers flattens a claim's qualifier snaks in the order the
// entity declares (qualifiers-order), falling back to numeric property
// order when the ordering hint is absent.
func parseQualifiers(claim apiClaim) []Qualifier {
	if len(claim.Qualifiers) == 0 {
		return nil
	}
	order := claim.QualifiersOrder
	if len(order) == 0 {
		order = make([]string, 0, len(claim.Qualifiers))
		for p := range claim.Qualifiers {
			order = append(order, p)
		}
		sortProperties(order)
	}
	var quals []Qualifier
	for _, p := range order {
		for _, snak := range claim.Qualifiers[p] {
			quals = append(quals, Qualifier{Property: p, Value: parseSnak(snak)})
		}
	}
	return quals
}

func parseRank(s string) Rank {
	switch s {
	case "preferred":
		return RankPreferred
	case "deprecated":
		return RankDeprecated
	default:
		return RankNormal
	}
}

func parseSnak(snak apiSnak) Value {
	if snak.Snaktype != "value" || snak.Datavalue == nil {
		return Value{Kind: ValueNone}
	}

	switch snak.Datavalue.Type {
	case "wikibase-entityid":
		var v struct {
			ID string `json:"id"`
		}
		if json.Unmarshal(snak.Datavalue.Value, &v) != nil {
			return Value{Kind: ValueNone}
		}
		return Value{Kind: ValueEntity, Text: v.ID}
	case "string":
		var s string
		if json.Unmarshal(snak.Datavalue.Value, &s) != nil {
			return Value{Kind: ValueNone}
		}
		switch snak.Datatype {
		case "commonsMedia":
			return Value{Kind: ValueFile, Text: s}
		case "external-id":
			return Value{Kind: ValueExternalID, Text: s}
		default:
			return Value{Kind: ValueString, Text: s}
		}
	case "time":
		var v struct {
			Time      string `json:"time"`
			Precision int    `json:"precision"`
		}
		if json.Unmarshal(snak.Datavalue.Value, &v) != nil {
			return Value{Kind: ValueNone}
		}
		return Value{Kind: ValueTime, Text: reduceTime(v.Time, v.Precision)}
	case "quantity":
		var v struct {
			Amount string `json:"amount"`
		}
		if json.Unmarshal(snak.Datavalue.Value, &v) != nil {
			return Value{Kind: ValueNone}
		}
		return Value{Kind: ValueQuantity, Text: v.Amount}
	case "globecoordinate":
		var v struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		}
		if json.Unmarshal(snak.Datavalue.Value, &v) != nil {
			return Value{Kind: ValueNone}
		}
		return Value{Kind: ValueCoordinate, Lat: v.Latitude, Lon: v.Longitude}
	case "monolingualtext":
		var v struct {
			Text     string `json:"text"`
			Language string `json:"language"`
		}
		if json.Unmarshal(snak.Datavalue.Value, &v) != nil {
			return Value{Kind: ValueNone}
		}
		return Value{Kind: ValueMonolingual, Text: v.Language + ":" + v.Text}
	}
	return Value{Kind: ValueNone}
}

var reWikibaseTime = regexp.MustCompile(`^\+?(-?\d+)-(\d{2})-(\d{2})T`)

// reduceTime formats a wikibase timestamp according to its precision:
// 9 = year, 10 = year-month, 11+ = full date.
func reduceTime(ts string, precision int) string {
	m := reWikibaseTime.FindStringSubmatch(ts)
	if m == nil {
		return ts
	}
	switch {
	case precision <= 9:
		return m[1]
	case precision == 10:
		return m[1] + "-" + m[2]
	default:
		return m[1] + "-" + m[2] + "-" + m[3]
	}
}

// sortProperties orders property ids numerically (P9 before P31).
func sortProperties(props []string) {
	numeric := func(p string) int {
		n := 0
		for _, r := range p {
			if r >= '0' && r <= '9' {
				n = n*10 + int(r-'0')
			}
		}
		return n
	}
	sort.Slice(props, func(i, j int) bool { return numeric(props[i]) < numeric(props[j]) })
}
