package search

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// IndexDefinition is an Atlas Search or Vector Search index the domain's plans
// depend on.
type IndexDefinition struct {
	Name       string
	Type       string // "search" or "vectorSearch"
	Definition bson.M
}

// IndexDefinitions derives the lexical and vector index definitions from the
// domain: autocomplete on the autocomplete (and id) path, token fields for
// string facets, date fields for ranges and date facets, and the vector path
// with every facet and date path as a pre-filter.
func (d *Domain) IndexDefinitions(dimensions int) []IndexDefinition {
	fields := bson.M{}
	autocomplete := bson.M{"type": "autocomplete", "tokenization": "edgeGram", "minGrams": 2, "maxGrams": 15}
	text := bson.M{"type": "string"}

	if d.AutocompletePath != "" {
		addIndexField(fields, d.AutocompletePath, autocomplete, text)
	}
	if d.IDPattern != "" {
		addIndexField(fields, d.IDField, autocomplete, text, bson.M{"type": "token"})
	}
	for _, f := range d.DateFields {
		addIndexField(fields, f, bson.M{"type": "date"})
	}

	filters := bson.A{}
	seen := map[string]bool{}
	addFilter := func(path string) {
		if !seen[path] {
			seen[path] = true
			filters = append(filters, bson.M{"type": "filter", "path": path})
		}
	}
	for _, f := range d.Facets {
		if f.Type == FacetString {
			addIndexField(fields, f.Path, bson.M{"type": "token"}, text)
		}
		addFilter(f.Path)
	}
	for _, f := range d.DateFields {
		addFilter(f)
	}

	vector := bson.A{bson.M{
		"type":          "vector",
		"path":          d.VectorPath,
		"numDimensions": dimensions,
		"similarity":    "cosine",
	}}
	vector = append(vector, filters...)

	return []IndexDefinition{
		{
			Name:       d.SearchIndex,
			Type:       "search",
			Definition: bson.M{"mappings": bson.M{"dynamic": true, "fields": fields}},
		},
		{
			Name:       d.VectorIndex,
			Type:       "vectorSearch",
			Definition: bson.M{"fields": vector},
		},
	}
}

// addIndexField appends mappings for a dotted path, nesting document mappings
// for each parent segment.
func addIndexField(fields bson.M, path string, types ...bson.M) {
	head, rest, nested := strings.Cut(path, ".")
	if nested {
		doc, ok := fields[head].(bson.M)
		if !ok {
			doc = bson.M{"type": "document", "dynamic": true, "fields": bson.M{}}
			fields[head] = doc
		}
		addIndexField(doc["fields"].(bson.M), rest, types...)
		return
	}

	existing, _ := fields[head].(bson.A)
	for _, t := range types {
		if !containsType(existing, t["type"]) {
			existing = append(existing, t)
		}
	}
	fields[head] = existing
}

func containsType(list bson.A, typ any) bool {
	for _, v := range list {
		if m, ok := v.(bson.M); ok && m["type"] == typ {
			return true
		}
	}
	return false
}
