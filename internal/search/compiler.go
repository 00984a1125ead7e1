package search

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
)

// Embedder resolves query text to a vector. The embedding cache satisfies it.
type Embedder interface {
	GetEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Compiler turns validated requests into stage pipelines. It holds no per-request
// state and is safe for concurrent use.
type Compiler struct {
	embedder Embedder
}

// NewCompiler creates a compiler. A nil embedder disables vector plans.
func NewCompiler(embedder Embedder) *Compiler {
	return &Compiler{embedder: embedder}
}

// Compile builds the list/search plan for req.
func (c *Compiler) Compile(ctx context.Context, req SearchRequest, d *Domain) (*Plan, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	filter, err := Translate(req.Filters, d)
	if err != nil {
		return nil, err
	}
	term := strings.TrimSpace(req.Term)

	if req.UseVector {
		return c.compileVector(ctx, term, filter, req, d)
	}

	base := SearchStage{Index: d.SearchIndex, Count: true}
	plan := &Plan{Domain: d}

	switch {
	case term == "" && filter != nil:
		plan.Kind = PlanFilteredListing
		base.Operator = Compound{Filter: filterOperators(filter)}
		base.Tracking = filter.QueryString
	case term == "":
		plan.Kind = PlanListing
		base.Operator = Compound{Filter: []Operator{ExistsOperator{Path: d.IDField}}}
	case filter != nil:
		plan.Kind = PlanFilteredLexical
		op := lexicalCompound(term, d)
		op.Filter = filterOperators(filter)
		base.Operator = op
	default:
		plan.Kind = PlanLexical
		base.Operator = lexicalCompound(term, d)
	}

	if term != "" {
		base.Tracking = term
		base.Highlight = d.HighlightPaths
	}
	if req.Sort != "" {
		base.Sort = bson.D{{Key: req.Sort, Value: req.SortOrder}}
	}
	if req.PaginationToken != "" {
		base.SearchAfter = req.PaginationToken
	}

	plan.Stages = append(plan.Stages, base)
	if req.PaginationToken == "" && req.Skip > 0 {
		plan.Stages = append(plan.Stages, SkipStage{N: req.Skip})
	}
	plan.Stages = append(plan.Stages,
		LimitStage{N: req.Limit},
		lexicalEnrichment(len(base.Highlight) > 0),
		ProjectStage{Fields: d.Projection},
	)
	return plan, nil
}

// compileVector builds a $vectorSearch plan. Sort, skip and the pagination token
// are not supported by the vector stage and are ignored.
func (c *Compiler) compileVector(ctx context.Context, term string, filter *CompiledFilter, req SearchRequest, d *Domain) (*Plan, error) {
	if c.embedder == nil {
		return nil, fmt.Errorf("%w: vector search is not configured", ErrUpstream)
	}
	vec, err := c.embedder.GetEmbedding(ctx, term)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %w", ErrUpstream, err)
	}

	stage := VectorSearchStage{
		Index:         d.VectorIndex,
		Path:          d.VectorPath,
		QueryVector:   vec,
		NumCandidates: req.NumCandidates,
		Limit:         req.Limit,
	}
	if filter != nil {
		stage.Filter = filter.Match
	}

	return &Plan{
		Domain: d,
		Kind:   PlanVector,
		Stages: []Stage{
			stage,
			AddFieldsStage{Fields: bson.D{{Key: FieldScore, Value: meta("vectorSearchScore")}}},
			ProjectStage{Fields: d.Projection},
		},
	}, nil
}

// CompileFacets builds a $searchMeta plan. Buckets are always computed over the
// domain's full facet set.
func (c *Compiler) CompileFacets(req FacetRequest, d *Domain) (*Plan, error) {
	filter, err := Translate(req.Filters, d)
	if err != nil {
		return nil, err
	}
	term := strings.TrimSpace(req.Term)

	var op Compound
	if term != "" {
		op.Must = []Operator{TextOperator{Query: term, Path: d.SearchPaths}}
	}
	if filter != nil {
		op.Filter = filterOperators(filter)
	}
	narrowed := len(op.Must) > 0 || len(op.Filter) > 0

	stage := SearchMetaStage{Index: d.SearchIndex, Count: true}
	plan := &Plan{Domain: d}
	switch {
	case req.CountOnly && narrowed:
		plan.Kind = PlanFacetCount
		stage.Operator = op
	case req.CountOnly:
		plan.Kind = PlanFacetCount
		stage.Operator = ExistsOperator{Path: d.IDField}
	case narrowed:
		plan.Kind = PlanFilteredFacets
		stage.Operator = op
		stage.Facets = d.Facets
	default:
		plan.Kind = PlanFacets
		stage.Facets = d.Facets
	}
	plan.Stages = []Stage{stage}
	return plan, nil
}

// CompileAutocomplete builds a prefix search on the domain's title field, or on
// its id field when the term looks like an identifier.
func (c *Compiler) CompileAutocomplete(req AutocompleteRequest, d *Domain) (*Plan, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	term := strings.TrimSpace(req.Term)
	path := d.AutocompletePath
	byID := d.matchesID(term)
	if byID {
		path = d.IDField
	}

	stages := []Stage{
		SearchStage{
			Index:     d.SearchIndex,
			Operator:  AutocompleteOperator{Path: path, Query: term},
			Highlight: []string{path},
		},
		AddFieldsStage{Fields: bson.D{{Key: FieldScore, Value: meta("searchScore")}}},
	}
	if req.Skip > 0 {
		stages = append(stages, SkipStage{N: req.Skip})
	}
	stages = append(stages, LimitStage{N: req.Limit}, ProjectStage{Fields: d.AutocompleteOut})
	if byID && d.IDTitleField != "" {
		stages = append(stages, AddFieldsStage{Fields: bson.D{{
			Key:   d.IDTitleField,
			Value: bson.D{{Key: "$concat", Value: bson.A{"$" + d.IDField, ": ", "$" + d.TitlePath}}},
		}}})
	}
	return &Plan{Domain: d, Kind: PlanAutocomplete, Stages: stages}, nil
}

// CompileMoreLikeThis finds documents similar to the given title/description.
func (c *Compiler) CompileMoreLikeThis(req MoreLikeThisRequest, d *Domain) (*Plan, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	like := bson.M{}
	if t := strings.TrimSpace(req.Title); t != "" {
		setPath(like, d.TitlePath, t)
	}
	if desc := strings.TrimSpace(req.Description); desc != "" {
		setPath(like, d.DescriptionPath, desc)
	}

	stages := []Stage{SearchStage{
		Index:    d.SearchIndex,
		Operator: MoreLikeThisOperator{Like: toD(like)},
	}}
	if req.ExcludeID != "" {
		stages = append(stages, MatchStage{Filter: bson.D{{Key: d.IDField, Value: bson.D{{Key: "$ne", Value: req.ExcludeID}}}}})
	}
	stages = append(stages,
		LimitStage{N: req.Limit},
		AddFieldsStage{Fields: bson.D{{Key: FieldScore, Value: meta("searchScore")}}},
		ProjectStage{Fields: d.Projection},
	)
	return &Plan{Domain: d, Kind: PlanMoreLikeThis, Stages: stages}, nil
}

// lexicalCompound requires a fuzzy match on any search path and boosts matches
// on the title field without excluding documents that only match elsewhere.
func lexicalCompound(term string, d *Domain) Compound {
	fuzzy := DefaultFuzzy
	return Compound{
		Must: []Operator{TextOperator{Query: term, Path: d.SearchPaths, Fuzzy: &fuzzy}},
		Should: []Operator{TextOperator{
			Query: term,
			Path:  []string{d.TitlePath},
			Boost: TitleBoost,
		}},
	}
}

func filterOperators(f *CompiledFilter) []Operator {
	var ops []Operator
	if f.HasQueryString() {
		ops = append(ops, QueryStringOperator{DefaultPath: f.DefaultPath, Query: f.QueryString})
	}
	if f.Range != nil {
		ops = append(ops, RangeOperator{Path: f.Range.Path, Gte: f.Range.Gte, Lt: f.Range.Lt})
	}
	return ops
}

func lexicalEnrichment(highlights bool) AddFieldsStage {
	fields := bson.D{
		{Key: FieldScore, Value: meta("searchScore")},
		{Key: FieldPaginationToken, Value: meta("searchSequenceToken")},
		{Key: FieldCount, Value: "$$SEARCH_META.count"},
	}
	if highlights {
		fields = append(fields, bson.E{Key: FieldHighlights, Value: meta("searchHighlights")})
	}
	return AddFieldsStage{Fields: fields}
}

func meta(key string) bson.D {
	return bson.D{{Key: "$meta", Value: key}}
}

var idPatterns sync.Map // pattern -> *regexp.Regexp

func (d *Domain) matchesID(term string) bool {
	if d.IDPattern == "" {
		return false
	}
	re, ok := idPatterns.Load(d.IDPattern)
	if !ok {
		re, _ = idPatterns.LoadOrStore(d.IDPattern, regexp.MustCompile(d.IDPattern))
	}
	return re.(*regexp.Regexp).MatchString(term)
}

// setPath writes value at a dotted path, creating nested documents.
func setPath(doc bson.M, path string, value any) {
	head, rest, nested := strings.Cut(path, ".")
	if !nested {
		doc[head] = value
		return
	}
	child, ok := doc[head].(bson.M)
	if !ok {
		child = bson.M{}
		doc[head] = child
	}
	setPath(child, rest, value)
}

// toD converts a nested bson.M into key-sorted documents.
func toD(m bson.M) bson.D {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(bson.D, 0, len(m))
	for _, k := range keys {
		v := m[k]
		if sub, ok := v.(bson.M); ok {
			v = toD(sub)
		}
		out = append(out, bson.E{Key: k, Value: v})
	}
	return out
}
