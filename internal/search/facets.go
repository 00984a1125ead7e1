package search

import (
	"clinical-search-api/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RawBucket is one bucket as returned by $searchMeta.
type RawBucket struct {
	ID    interface{} `bson:"_id"`
	Count int64       `bson:"count"`
}

// RawFacet holds the buckets of one facet dimension.
type RawFacet struct {
	Buckets []RawBucket `bson:"buckets"`
}

// RawFacetDocument is the single document a $searchMeta stage yields.
type RawFacetDocument struct {
	Count *models.FacetCount  `bson:"count,omitempty"`
	Facet map[string]RawFacet `bson:"facet,omitempty"`
}

// Reshape turns raw facet output into name/count lists for each of the
// domain's facet dimensions. Bucket order is kept as the engine returned it.
// Count-only results pass the count through untouched.
func Reshape(docs []RawFacetDocument, d *Domain, countOnly bool) *models.FacetResult {
	out := &models.FacetResult{}
	if len(docs) == 0 {
		return out
	}
	raw := docs[0]
	out.Count = raw.Count
	if countOnly {
		return out
	}

	out.Facets = make(map[string][]models.FacetBucket, len(d.Facets))
	for _, def := range d.Facets {
		buckets := raw.Facet[def.Name].Buckets
		list := make([]models.FacetBucket, 0, len(buckets))
		for _, b := range buckets {
			list = append(list, models.FacetBucket{Name: bucketName(b.ID), Count: b.Count})
		}
		out.Facets[def.Name] = list
	}
	return out
}

func bucketName(id interface{}) interface{} {
	if dt, ok := id.(primitive.DateTime); ok {
		return dt.Time().UTC()
	}
	return id
}
