package search

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Stage is one aggregation pipeline stage. The set of implementations is closed;
// every stage renders a fresh document so plans never share nested state.
type Stage interface {
	Name() string
	Document() bson.D
	stage()
}

// Operator is an Atlas Search operator usable inside $search, $searchMeta or a
// compound clause.
type Operator interface {
	Render() bson.D
	operator()
}

// Fuzzy bounds the edit distance of a text operator.
type Fuzzy struct {
	MaxEdits      int
	MaxExpansions int
}

// DefaultFuzzy is used by every lexical plan.
var DefaultFuzzy = Fuzzy{MaxEdits: 2, MaxExpansions: 100}

// TitleBoost weights the should-clause on the domain's title field.
const TitleBoost = 3

type TextOperator struct {
	Query string
	Path  []string
	Fuzzy *Fuzzy
	Boost float64
}

func (TextOperator) operator() {}

func (o TextOperator) Render() bson.D {
	body := bson.D{{Key: "query", Value: o.Query}, {Key: "path", Value: pathValue(o.Path)}}
	if o.Fuzzy != nil {
		body = append(body, bson.E{Key: "fuzzy", Value: bson.D{
			{Key: "maxEdits", Value: o.Fuzzy.MaxEdits},
			{Key: "maxExpansions", Value: o.Fuzzy.MaxExpansions},
		}})
	}
	if o.Boost > 0 {
		body = append(body, bson.E{Key: "score", Value: bson.D{
			{Key: "boost", Value: bson.D{{Key: "value", Value: o.Boost}}},
		}})
	}
	return bson.D{{Key: "text", Value: body}}
}

type ExistsOperator struct {
	Path string
}

func (ExistsOperator) operator() {}

func (o ExistsOperator) Render() bson.D {
	return bson.D{{Key: "exists", Value: bson.D{{Key: "path", Value: o.Path}}}}
}

type QueryStringOperator struct {
	DefaultPath string
	Query       string
}

func (QueryStringOperator) operator() {}

func (o QueryStringOperator) Render() bson.D {
	return bson.D{{Key: "queryString", Value: bson.D{
		{Key: "defaultPath", Value: o.DefaultPath},
		{Key: "query", Value: o.Query},
	}}}
}

type RangeOperator struct {
	Path string
	Gte  time.Time
	Lt   time.Time
}

func (RangeOperator) operator() {}

func (o RangeOperator) Render() bson.D {
	return bson.D{{Key: "range", Value: bson.D{
		{Key: "path", Value: o.Path},
		{Key: "gte", Value: o.Gte},
		{Key: "lt", Value: o.Lt},
	}}}
}

type AutocompleteOperator struct {
	Path  string
	Query string
}

func (AutocompleteOperator) operator() {}

func (o AutocompleteOperator) Render() bson.D {
	return bson.D{{Key: "autocomplete", Value: bson.D{
		{Key: "path", Value: o.Path},
		{Key: "query", Value: o.Query},
	}}}
}

type MoreLikeThisOperator struct {
	Like bson.D
}

func (MoreLikeThisOperator) operator() {}

func (o MoreLikeThisOperator) Render() bson.D {
	return bson.D{{Key: "moreLikeThis", Value: bson.D{{Key: "like", Value: o.Like}}}}
}

// Compound combines operators: Must is required, Should only boosts, Filter is
// required but does not score.
type Compound struct {
	Must   []Operator
	Should []Operator
	Filter []Operator
}

func (Compound) operator() {}

func (o Compound) Render() bson.D {
	body := bson.D{}
	for _, part := range []struct {
		key string
		ops []Operator
	}{{"must", o.Must}, {"should", o.Should}, {"filter", o.Filter}} {
		if len(part.ops) == 0 {
			continue
		}
		rendered := make(bson.A, len(part.ops))
		for i, op := range part.ops {
			rendered[i] = op.Render()
		}
		body = append(body, bson.E{Key: part.key, Value: rendered})
	}
	return bson.D{{Key: "compound", Value: body}}
}

// SearchStage is $search.
type SearchStage struct {
	Index       string
	Operator    Operator
	Count       bool
	Highlight   []string
	Sort        bson.D
	SearchAfter string
	Tracking    string
}

func (SearchStage) stage()       {}
func (SearchStage) Name() string { return "$search" }

func (s SearchStage) Document() bson.D {
	body := bson.D{{Key: "index", Value: s.Index}}
	body = append(body, s.Operator.Render()...)
	if s.Count {
		body = append(body, bson.E{Key: "count", Value: bson.D{{Key: "type", Value: "total"}}})
	}
	if len(s.Highlight) > 0 {
		body = append(body, bson.E{Key: "highlight", Value: bson.D{{Key: "path", Value: pathValue(s.Highlight)}}})
	}
	if len(s.Sort) > 0 {
		body = append(body, bson.E{Key: "sort", Value: s.Sort})
	}
	if s.SearchAfter != "" {
		body = append(body, bson.E{Key: "searchAfter", Value: s.SearchAfter})
	}
	if s.Tracking != "" {
		body = append(body, bson.E{Key: "tracking", Value: bson.D{{Key: "searchTerms", Value: s.Tracking}}})
	}
	return bson.D{{Key: s.Name(), Value: body}}
}

// SearchMetaStage is $searchMeta. With Facets set it renders a facet collector
// wrapping Operator; otherwise Operator is inlined and only the count is asked for.
type SearchMetaStage struct {
	Index    string
	Operator Operator
	Facets   []FacetDef
	Count    bool
}

func (SearchMetaStage) stage()       {}
func (SearchMetaStage) Name() string { return "$searchMeta" }

func (s SearchMetaStage) Document() bson.D {
	body := bson.D{{Key: "index", Value: s.Index}}
	if len(s.Facets) > 0 {
		facet := bson.D{}
		if s.Operator != nil {
			facet = append(facet, bson.E{Key: "operator", Value: s.Operator.Render()})
		}
		facet = append(facet, bson.E{Key: "facets", Value: renderFacets(s.Facets)})
		body = append(body, bson.E{Key: "facet", Value: facet})
	} else if s.Operator != nil {
		body = append(body, s.Operator.Render()...)
	}
	if s.Count {
		body = append(body, bson.E{Key: "count", Value: bson.D{{Key: "type", Value: "total"}}})
	}
	return bson.D{{Key: s.Name(), Value: body}}
}

func renderFacets(defs []FacetDef) bson.D {
	out := make(bson.D, 0, len(defs))
	for _, f := range defs {
		body := bson.D{{Key: "type", Value: string(f.Type)}, {Key: "path", Value: f.Path}}
		switch f.Type {
		case FacetDate:
			bounds := make(bson.A, len(f.Boundaries))
			for i, b := range f.Boundaries {
				bounds[i] = b
			}
			body = append(body, bson.E{Key: "boundaries", Value: bounds})
			if f.Default != "" {
				body = append(body, bson.E{Key: "default", Value: f.Default})
			}
		default:
			body = append(body, bson.E{Key: "numBuckets", Value: f.NumBuckets})
		}
		out = append(out, bson.E{Key: f.Name, Value: body})
	}
	return out
}

// VectorSearchStage is $vectorSearch with an optional structural pre-filter.
type VectorSearchStage struct {
	Index         string
	Path          string
	QueryVector   []float32
	NumCandidates int
	Limit         int
	Filter        bson.D
}

func (VectorSearchStage) stage()       {}
func (VectorSearchStage) Name() string { return "$vectorSearch" }

func (s VectorSearchStage) Document() bson.D {
	body := bson.D{
		{Key: "index", Value: s.Index},
		{Key: "path", Value: s.Path},
		{Key: "queryVector", Value: s.QueryVector},
		{Key: "numCandidates", Value: s.NumCandidates},
		{Key: "limit", Value: s.Limit},
	}
	if len(s.Filter) > 0 {
		body = append(body, bson.E{Key: "filter", Value: s.Filter})
	}
	return bson.D{{Key: s.Name(), Value: body}}
}

type SkipStage struct{ N int }

func (SkipStage) stage()             {}
func (SkipStage) Name() string       { return "$skip" }
func (s SkipStage) Document() bson.D { return bson.D{{Key: s.Name(), Value: s.N}} }

type LimitStage struct{ N int }

func (LimitStage) stage()             {}
func (LimitStage) Name() string       { return "$limit" }
func (s LimitStage) Document() bson.D { return bson.D{{Key: s.Name(), Value: s.N}} }

type MatchStage struct{ Filter bson.D }

func (MatchStage) stage()             {}
func (MatchStage) Name() string       { return "$match" }
func (s MatchStage) Document() bson.D { return bson.D{{Key: s.Name(), Value: s.Filter}} }

// AddFieldsStage attaches metadata ($meta score, count, cursor) to each result.
type AddFieldsStage struct{ Fields bson.D }

func (AddFieldsStage) stage()             {}
func (AddFieldsStage) Name() string       { return "$addFields" }
func (s AddFieldsStage) Document() bson.D { return bson.D{{Key: s.Name(), Value: copyD(s.Fields)}} }

type ProjectStage struct{ Fields bson.D }

func (ProjectStage) stage()             {}
func (ProjectStage) Name() string       { return "$project" }
func (s ProjectStage) Document() bson.D { return bson.D{{Key: s.Name(), Value: copyD(s.Fields)}} }

// PlanKind names the decision taken by the compiler.
type PlanKind string

const (
	PlanListing         PlanKind = "listing"
	PlanFilteredListing PlanKind = "filtered_listing"
	PlanLexical         PlanKind = "lexical"
	PlanFilteredLexical PlanKind = "filtered_lexical"
	PlanVector          PlanKind = "vector"
	PlanFacets          PlanKind = "facets"
	PlanFilteredFacets  PlanKind = "filtered_facets"
	PlanFacetCount      PlanKind = "facet_count"
	PlanAutocomplete    PlanKind = "autocomplete"
	PlanMoreLikeThis    PlanKind = "more_like_this"
)

// Plan is the ordered stage list for one request.
type Plan struct {
	Domain *Domain
	Kind   PlanKind
	Stages []Stage
}

// Pipeline renders the plan for mongo.Collection.Aggregate.
func (p *Plan) Pipeline() mongo.Pipeline {
	out := make(mongo.Pipeline, len(p.Stages))
	for i, s := range p.Stages {
		out[i] = s.Document()
	}
	return out
}

// Find returns the first stage with the given name.
func (p *Plan) Find(name string) (Stage, bool) {
	for _, s := range p.Stages {
		if s.Name() == name {
			return s, true
		}
	}
	return nil, false
}

func pathValue(paths []string) any {
	if len(paths) == 1 {
		return paths[0]
	}
	out := make(bson.A, len(paths))
	for i, p := range paths {
		out[i] = p
	}
	return out
}

func copyD(d bson.D) bson.D {
	out := make(bson.D, len(d))
	copy(out, d)
	return out
}
