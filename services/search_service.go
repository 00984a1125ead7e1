package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"clinical-search-api/internal/logger"
	"clinical-search-api/internal/search"
	"clinical-search-api/internal/telemetry"
	"clinical-search-api/models"

	"go.mongodb.org/mongo-driver/bson"
)

// SearchService compiles requests into plans and runs them.
type SearchService struct {
	compiler *search.Compiler
	exec     Executor
	metrics  *telemetry.Metrics
}

func NewSearchService(compiler *search.Compiler, exec Executor, metrics *telemetry.Metrics) *SearchService {
	return &SearchService{compiler: compiler, exec: exec, metrics: metrics}
}

// Search lists or searches a domain.
func (s *SearchService) Search(ctx context.Context, d *search.Domain, req search.SearchRequest) ([]bson.M, error) {
	plan, err := s.compiler.Compile(ctx, req, d)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, plan)
}

// Get returns one document by its domain identifier, using the detail projection.
func (s *SearchService) Get(ctx context.Context, d *search.Domain, id string) (bson.M, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", search.ErrInvalidRequest)
	}

	var doc bson.M
	err := s.exec.FindOne(ctx, d.Collection, bson.D{{Key: d.IDField, Value: id}}, d.DetailProjection(), &doc)
	if errors.Is(err, ErrNoDocument) {
		return nil, search.NewNotFound(d, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", search.ErrUpstream, err)
	}
	return doc, nil
}

func (s *SearchService) Autocomplete(ctx context.Context, d *search.Domain, req search.AutocompleteRequest) ([]bson.M, error) {
	plan, err := s.compiler.CompileAutocomplete(req, d)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, plan)
}

func (s *SearchService) MoreLikeThis(ctx context.Context, d *search.Domain, req search.MoreLikeThisRequest) ([]bson.M, error) {
	plan, err := s.compiler.CompileMoreLikeThis(req, d)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, plan)
}

// Facets returns bucket counts, or only the total when req.CountOnly is set.
func (s *SearchService) Facets(ctx context.Context, d *search.Domain, req search.FacetRequest) (*models.FacetResult, error) {
	plan, err := s.compiler.CompileFacets(req, d)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordPlan(ctx, d.Name, string(plan.Kind))

	var raw []search.RawFacetDocument
	if err := s.exec.Aggregate(ctx, d.Collection, plan.Pipeline(), &raw); err != nil {
		logger.Error("Facet aggregation failed", "domain", d.Name, "plan", plan.Kind, "error", err)
		return nil, fmt.Errorf("%w: %w", search.ErrUpstream, err)
	}
	return search.Reshape(raw, d, req.CountOnly), nil
}

func (s *SearchService) run(ctx context.Context, plan *search.Plan) ([]bson.M, error) {
	d := plan.Domain
	s.metrics.RecordPlan(ctx, d.Name, string(plan.Kind))
	logger.Debug("Executing search plan", "domain", d.Name, "plan", plan.Kind, "stages", len(plan.Stages))

	docs := []bson.M{}
	if err := s.exec.Aggregate(ctx, d.Collection, plan.Pipeline(), &docs); err != nil {
		logger.Error("Search aggregation failed", "domain", d.Name, "plan", plan.Kind, "error", err)
		return nil, fmt.Errorf("%w: %w", search.ErrUpstream, err)
	}
	return docs, nil
}
