package models

// FacetBucket is one reshaped facet bucket.
type FacetBucket struct {
	Name  interface{} `json:"name"`
	Count int64       `json:"count"`
}

// FacetCount is the $searchMeta count document.
type FacetCount struct {
	Total      int64 `bson:"total,omitempty" json:"total,omitempty"`
	LowerBound int64 `bson:"lowerBound,omitempty" json:"lower_bound,omitempty"`
}

// FacetResult is the response of a facets call. Facets is nil for count-only
// requests.
type FacetResult struct {
	Count  *FacetCount              `json:"count,omitempty"`
	Facets map[string][]FacetBucket `json:"facets,omitempty"`
}
