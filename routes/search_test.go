package routes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"clinical-search-api/internal/search"
	"clinical-search-api/models"
	"clinical-search-api/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSearch struct {
	err error

	domain    string
	searchReq search.SearchRequest
	getID     string
	acReq     search.AutocompleteRequest
	mltReq    search.MoreLikeThisRequest
	facetReq  search.FacetRequest
	format    string
}

func (f *fakeSearch) Search(_ context.Context, d *search.Domain, req search.SearchRequest) ([]bson.M, error) {
	f.domain, f.searchReq = d.Name, req
	if f.err != nil {
		return nil, f.err
	}
	return []bson.M{{d.IDField: "X1"}}, nil
}

func (f *fakeSearch) Get(_ context.Context, d *search.Domain, id string) (bson.M, error) {
	f.domain, f.getID = d.Name, id
	if f.err != nil {
		return nil, f.err
	}
	return bson.M{d.IDField: id}, nil
}

func (f *fakeSearch) Autocomplete(_ context.Context, d *search.Domain, req search.AutocompleteRequest) ([]bson.M, error) {
	f.domain, f.acReq = d.Name, req
	return []bson.M{}, f.err
}

func (f *fakeSearch) MoreLikeThis(_ context.Context, d *search.Domain, req search.MoreLikeThisRequest) ([]bson.M, error) {
	f.domain, f.mltReq = d.Name, req
	return []bson.M{}, f.err
}

func (f *fakeSearch) Facets(_ context.Context, d *search.Domain, req search.FacetRequest) (*models.FacetResult, error) {
	f.domain, f.facetReq = d.Name, req
	if f.err != nil {
		return nil, f.err
	}
	return &models.FacetResult{Count: &models.FacetCount{Total: 3}}, nil
}

func (f *fakeSearch) Export(_ context.Context, d *search.Domain, req search.SearchRequest, format string, w io.Writer) (int, error) {
	f.domain, f.searchReq, f.format = d.Name, req, format
	if f.err != nil {
		return 0, f.err
	}
	_, err := io.WriteString(w, "nct_id\nNCT01\n")
	return 1, err
}

func newSearchRouter(svc SearchAPI) *gin.Engine {
	r := gin.New()
	SetupSearchRoutes(r, svc, time.Second)
	return r
}

func do(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) utils.ErrorResponse {
	t.Helper()
	var resp utils.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestSearchRoutes_SearchBindsQuery(t *testing.T) {
	svc := &fakeSearch{}
	r := newSearchRouter(svc)

	w := do(r, http.MethodPost, "/trials?term=asthma&filters=status:Recruiting&filters=phase:Phase2&limit=20&skip=5&sort=start_date&sort_order=-1", "")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, "trials", svc.domain)
	assert.Equal(t, "asthma", svc.searchReq.Term)
	assert.Equal(t, []string{"status:Recruiting", "phase:Phase2"}, svc.searchReq.Filters)
	assert.Equal(t, 20, svc.searchReq.Limit)
	assert.Equal(t, 5, svc.searchReq.Skip)
	assert.Equal(t, "start_date", svc.searchReq.Sort)
	assert.Equal(t, -1, svc.searchReq.SortOrder)
	assert.Equal(t, search.DefaultNumCandidates, svc.searchReq.NumCandidates)

	var docs []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &docs))
	assert.Equal(t, []map[string]any{{"nct_id": "X1"}}, docs)
}

func TestSearchRoutes_ListUsesDefaultsAndIgnoresTerm(t *testing.T) {
	svc := &fakeSearch{}
	r := newSearchRouter(svc)

	w := do(r, http.MethodGet, "/drugs?term=ibuprofen&use_vector=true", "")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, "drugs", svc.domain)
	assert.Empty(t, svc.searchReq.Term)
	assert.False(t, svc.searchReq.UseVector)
	assert.Equal(t, search.DefaultLimit, svc.searchReq.Limit)
	assert.Equal(t, 1, svc.searchReq.SortOrder)
}

func TestSearchRoutes_Get(t *testing.T) {
	svc := &fakeSearch{}
	r := newSearchRouter(svc)

	w := do(r, http.MethodGet, "/trials/NCT0001", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "NCT0001", svc.getID)
	assert.JSONEq(t, `{"nct_id":"NCT0001"}`, w.Body.String())
}

func TestSearchRoutes_StaticRoutesWinOverID(t *testing.T) {
	svc := &fakeSearch{}
	r := newSearchRouter(svc)

	w := do(r, http.MethodGet, "/trials/export", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, svc.getID)
	assert.Equal(t, "csv", svc.format)
}

func TestSearchRoutes_Autocomplete(t *testing.T) {
	svc := &fakeSearch{}
	r := newSearchRouter(svc)

	w := do(r, http.MethodPost, "/trials/autocomplete?term=asth", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", w.Body.String())
	assert.Equal(t, search.AutocompleteRequest{Term: "asth", Limit: search.DefaultAutocompleteLimit}, svc.acReq)
}

func TestSearchRoutes_Facets(t *testing.T) {
	svc := &fakeSearch{}
	r := newSearchRouter(svc)

	w := do(r, http.MethodPost, "/drugs/facets?count_only=true&filters=route:ORAL", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, svc.facetReq.CountOnly)
	assert.Equal(t, []string{"route:ORAL"}, svc.facetReq.Filters)
	assert.JSONEq(t, `{"count":{"total":3}}`, w.Body.String())
}

func TestSearchRoutes_MoreLikeThis(t *testing.T) {
	svc := &fakeSearch{}
	r := newSearchRouter(svc)

	w := do(r, http.MethodPost, "/trials/more-like-this?limit=3&exclude_id=NCT9", `{"title":"Asthma in adults","description":"inhaled steroids"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, search.MoreLikeThisRequest{
		Title:       "Asthma in adults",
		Description: "inhaled steroids",
		Limit:       3,
		ExcludeID:   "NCT9",
	}, svc.mltReq)

	w = do(r, http.MethodPost, "/trials/more-like-this", `{"title":"x"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, search.DefaultMoreLikeThisLimit, svc.mltReq.Limit)
}

func TestSearchRoutes_Export(t *testing.T) {
	svc := &fakeSearch{}
	r := newSearchRouter(svc)

	w := do(r, http.MethodGet, "/trials/export?format=csv&term=asthma", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), `attachment; filename="trials-`)
	assert.Equal(t, "1", w.Header().Get("X-Export-Rows"))
	assert.Equal(t, "nct_id\nNCT01\n", w.Body.String())
	assert.Equal(t, "asthma", svc.searchReq.Term)

	w = do(r, http.MethodGet, "/trials/export?format=pdf", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestSearchRoutes_ErrorMapping(t *testing.T) {
	d := search.Trials
	tests := []struct {
		name string
		err  error
		code int
		want string
	}{
		{"malformed filter", &search.MalformedFilterError{Clause: "start_date:bad", Reason: "not a date"}, http.StatusBadRequest, "malformed_filter"},
		{"invalid request", fmt.Errorf("%w: use_vector requires a search term", search.ErrInvalidRequest), http.StatusUnprocessableEntity, "invalid_request"},
		{"not found", search.NewNotFound(d, "NCT404"), http.StatusNotFound, "not_found"},
		{"upstream", fmt.Errorf("%w: connection reset", search.ErrUpstream), http.StatusBadGateway, "upstream_failure"},
		{"timeout", fmt.Errorf("%w: %w", search.ErrUpstream, context.DeadlineExceeded), http.StatusGatewayTimeout, "timeout"},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newSearchRouter(&fakeSearch{err: tt.err})
			w := do(r, http.MethodGet, "/trials/NCT404", "")
			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, tt.want, decodeError(t, w).ErrorCode)
		})
	}
}

func TestSearchRoutes_ErrorDetails(t *testing.T) {
	r := newSearchRouter(&fakeSearch{err: search.NewNotFound(search.Trials, "NCT404")})
	w := do(r, http.MethodGet, "/trials/NCT404", "")
	resp := decodeError(t, w)
	assert.Equal(t, "Trial NCT404 not found", resp.Message)
	assert.Equal(t, map[string]any{"id": "NCT404"}, resp.Details)

	r = newSearchRouter(&fakeSearch{err: &search.MalformedFilterError{Clause: "start_date:bad", Reason: "not a date"}})
	w = do(r, http.MethodPost, "/trials?filters=start_date:bad", "")
	assert.Equal(t, map[string]any{"clause": "start_date:bad"}, decodeError(t, w).Details)
}

func TestSearchRoutes_BindError(t *testing.T) {
	r := newSearchRouter(&fakeSearch{})
	w := do(r, http.MethodPost, "/trials?limit=abc", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "invalid_request", decodeError(t, w).ErrorCode)

	w = do(r, http.MethodPost, "/trials/more-like-this", "{")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}
