package search

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// FacetType is the Atlas Search facet kind.
type FacetType string

const (
	FacetString FacetType = "string"
	FacetDate   FacetType = "date"
)

// FacetDef declares one facet dimension of a domain.
type FacetDef struct {
	Name       string
	Type       FacetType
	Path       string
	NumBuckets int
	Boundaries []time.Time
	Default    string
}

// Domain is the declarative configuration for one searchable collection.
// Everything that differed between the trial and drug routes lives here, so the
// compiler itself carries no per-domain branches.
type Domain struct {
	Name            string // "trials", "drugs"
	Label           string // used in user-facing messages
	Collection      string
	SearchIndex     string
	VectorIndex     string
	VectorPath      string
	IDField         string
	DateFields      []string
	SearchPaths     []string
	TitlePath       string
	DescriptionPath string
	HighlightPaths  []string

	// AutocompletePath is searched by autocomplete unless the term is an id.
	AutocompletePath string

	// IDPattern, when set, routes autocomplete terms that match it to IDField.
	IDPattern       string
	IDTitleField    string
	Projection      bson.D
	DetailFields    []string
	AutocompleteOut bson.D
	ExportColumns   []string
	Facets          []FacetDef
}

// IsDateField reports whether field is one of the domain's date-range fields.
func (d *Domain) IsDateField(field string) bool {
	for _, f := range d.DateFields {
		if f == field {
			return true
		}
	}
	return false
}

// DetailProjection is the get-by-id projection: the list projection plus the
// detail-only fields. Domains without detail fields only hide the internal id.
func (d *Domain) DetailProjection() bson.D {
	if len(d.DetailFields) == 0 {
		return bson.D{{Key: "_id", Value: 0}}
	}
	out := make(bson.D, 0, len(d.Projection)+len(d.DetailFields))
	for _, e := range d.Projection {
		switch e.Key {
		case FieldScore, FieldCount, FieldPaginationToken, FieldHighlights:
			continue
		}
		out = append(out, e)
	}
	for _, f := range d.DetailFields {
		out = append(out, bson.E{Key: f, Value: 1})
	}
	return out
}

// Output field names populated by the enrichment stage.
const (
	FieldScore           = "score"
	FieldCount           = "count"
	FieldPaginationToken = "pagination_token"
	FieldHighlights      = "highlights"
)

func yearBoundaries(from, to int) []time.Time {
	out := make([]time.Time, 0, to-from+1)
	for y := from; y <= to; y++ {
		out = append(out, time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC))
	}
	return out
}

// Trials is the clinical trials collection.
var Trials = &Domain{
	Name:             "trials",
	Label:            "Trial",
	Collection:       "trials",
	SearchIndex:      "default",
	VectorIndex:      "trials_vector_index",
	VectorPath:       "detailed_description_vector",
	IDField:          "nct_id",
	DateFields:       []string{"start_date"},
	SearchPaths:      []string{"brief_title", "official_title", "brief_summary", "detailed_description"},
	TitlePath:        "brief_title",
	DescriptionPath:  "brief_summary",
	AutocompletePath: "brief_title",
	IDPattern:        `(?i)^NCT\d{1,8}$`,
	IDTitleField:     "nct_title",
	Projection: bson.D{
		{Key: "_id", Value: 0},
		{Key: "nct_id", Value: 1},
		{Key: "brief_title", Value: 1},
		{Key: "official_title", Value: 1},
		{Key: "start_date", Value: 1},
		{Key: "completion_date", Value: 1},
		{Key: "condition", Value: 1},
		{Key: "intervention", Value: 1},
		{Key: "intervention_mesh_term", Value: 1},
		{Key: "sponsors", Value: 1},
		{Key: "status", Value: 1},
		{Key: "phase", Value: 1},
		{Key: FieldScore, Value: 1},
		{Key: FieldPaginationToken, Value: 1},
		{Key: FieldCount, Value: 1},
	},
	DetailFields: []string{
		"brief_summary", "detailed_description", "enrollment", "gender",
		"maximum_age", "minimum_age", "facility", "study_type", "url",
	},
	AutocompleteOut: bson.D{
		{Key: "_id", Value: 0},
		{Key: "nct_id", Value: 1},
		{Key: "brief_title", Value: 1},
		{Key: FieldScore, Value: 1},
		{Key: FieldHighlights, Value: bson.D{{Key: "$meta", Value: "searchHighlights"}}},
	},
	ExportColumns: []string{"nct_id", "brief_title", "status", "phase", "start_date", "completion_date", "condition", "sponsors.agency"},
	Facets: []FacetDef{
		{Name: "conditions", Type: FacetString, Path: "condition", NumBuckets: 10},
		{Name: "intervention_types", Type: FacetString, Path: "intervention", NumBuckets: 10},
		{Name: "interventions", Type: FacetString, Path: "intervention_mesh_term", NumBuckets: 10},
		{Name: "genders", Type: FacetString, Path: "gender", NumBuckets: 10},
		{Name: "sponsors", Type: FacetString, Path: "sponsors.agency", NumBuckets: 10},
		{Name: "start_date", Type: FacetDate, Path: "start_date", Boundaries: yearBoundaries(2012, 2024), Default: "other"},
		{Name: "statuses", Type: FacetString, Path: "status", NumBuckets: 10},
	},
}

// Drugs is the drug label collection.
var Drugs = &Domain{
	Name:             "drugs",
	Label:            "Drug",
	Collection:       "drug_data",
	SearchIndex:      "drugs",
	VectorIndex:      "drugs_vector_index",
	VectorPath:       "indications_and_usage_vector",
	IDField:          "id",
	DateFields:       []string{"start_date", "effective_time"},
	SearchPaths:      []string{"openfda.brand_name", "openfda.generic_name", "openfda.manufacturer_name"},
	TitlePath:        "openfda.brand_name",
	DescriptionPath:  "indications_and_usage",
	HighlightPaths:   []string{"openfda.brand_name", "openfda.generic_name", "openfda.manufacturer_name"},
	AutocompletePath: "openfda.brand_name",
	Projection: bson.D{
		{Key: "_id", Value: 0},
		{Key: "id", Value: 1},
		{Key: "active_ingredient", Value: 1},
		{Key: "brand_name", Value: 1},
		{Key: "effective_time", Value: 1},
		{Key: "indications_and_usage", Value: 1},
		{Key: "purpose", Value: 1},
		{Key: "openfda.brand_name", Value: 1},
		{Key: "openfda.generic_name", Value: 1},
		{Key: "openfda.manufacturer_name", Value: 1},
		{Key: FieldScore, Value: 1},
		{Key: FieldHighlights, Value: 1},
		{Key: FieldPaginationToken, Value: 1},
		{Key: FieldCount, Value: 1},
	},
	AutocompleteOut: bson.D{
		{Key: "_id", Value: 0},
		{Key: "id", Value: 1},
		{Key: FieldScore, Value: 1},
		{Key: FieldHighlights, Value: bson.D{{Key: "$meta", Value: "searchHighlights"}}},
		{Key: "brand_name", Value: "$openfda.brand_name"},
	},
	ExportColumns: []string{"id", "openfda.brand_name", "openfda.generic_name", "openfda.manufacturer_name", "effective_time", "purpose"},
	Facets: []FacetDef{
		{Name: "manufacturers", Type: FacetString, Path: "openfda.manufacturer_name", NumBuckets: 10},
		{Name: "routes", Type: FacetString, Path: "openfda.route", NumBuckets: 10},
	},
}

// Domains lists every mounted domain.
var Domains = []*Domain{Trials, Drugs}
