package search

import "strings"

// Request defaults, matching the public API.
const (
	DefaultLimit             = 100
	DefaultNumCandidates     = 1000
	DefaultAutocompleteLimit = 5
	DefaultMoreLikeThisLimit = 10
)

// SearchRequest is a list or search call against one domain.
type SearchRequest struct {
	Term            string   `form:"term" json:"term"`
	Filters         []string `form:"filters" json:"filters"`
	Limit           int      `form:"limit" json:"limit"`
	Skip            int      `form:"skip" json:"skip"`
	PaginationToken string   `form:"pagination_token" json:"pagination_token"`
	Sort            string   `form:"sort" json:"sort"`
	SortOrder       int      `form:"sort_order" json:"sort_order"`
	UseVector       bool     `form:"use_vector" json:"use_vector"`
	NumCandidates   int      `form:"num_candidates" json:"num_candidates"`
}

// NewSearchRequest returns a request populated with the API defaults.
func NewSearchRequest() SearchRequest {
	return SearchRequest{Limit: DefaultLimit, SortOrder: 1, NumCandidates: DefaultNumCandidates}
}

// Validate rejects requests that cannot be compiled. The vector/term check runs
// first so it is reported even when other fields are also off.
func (r SearchRequest) Validate() error {
	if r.UseVector && strings.TrimSpace(r.Term) == "" {
		return invalid("use_vector requires a search term")
	}
	if r.Limit <= 0 {
		return invalid("limit must be positive")
	}
	if r.Skip < 0 {
		return invalid("skip must not be negative")
	}
	if r.SortOrder != 1 && r.SortOrder != -1 {
		return invalid("sort_order must be 1 or -1")
	}
	if r.UseVector {
		if r.NumCandidates <= 0 {
			return invalid("num_candidates must be positive")
		}
		if r.NumCandidates < r.Limit {
			return invalid("num_candidates must be at least limit")
		}
	}
	return nil
}

// FacetRequest asks for bucket counts over the domain's facet dimensions.
type FacetRequest struct {
	Term      string   `form:"term" json:"term"`
	Filters   []string `form:"filters" json:"filters"`
	CountOnly bool     `form:"count_only" json:"count_only"`
}

// AutocompleteRequest is a prefix lookup on the title (or id) field.
type AutocompleteRequest struct {
	Term  string `form:"term" json:"term"`
	Limit int    `form:"limit" json:"limit"`
	Skip  int    `form:"skip" json:"skip"`
}

func (r AutocompleteRequest) Validate() error {
	if strings.TrimSpace(r.Term) == "" {
		return invalid("term is required")
	}
	if r.Limit <= 0 {
		return invalid("limit must be positive")
	}
	if r.Skip < 0 {
		return invalid("skip must not be negative")
	}
	return nil
}

// MoreLikeThisRequest finds documents resembling a title and/or description.
type MoreLikeThisRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Limit       int    `json:"-" form:"limit"`
	ExcludeID   string `json:"-" form:"exclude_id"`
}

func (r MoreLikeThisRequest) Validate() error {
	if strings.TrimSpace(r.Title) == "" && strings.TrimSpace(r.Description) == "" {
		return invalid("title or description is required")
	}
	if r.Limit <= 0 {
		return invalid("limit must be positive")
	}
	return nil
}
