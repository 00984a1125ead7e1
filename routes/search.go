package routes

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"clinical-search-api/internal/logger"
	"clinical-search-api/internal/search"
	"clinical-search-api/middleware"
	"clinical-search-api/models"
	"clinical-search-api/services"
	"clinical-search-api/utils"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
)

// SearchAPI is what the domain routes need from the search service.
type SearchAPI interface {
	Search(ctx context.Context, d *search.Domain, req search.SearchRequest) ([]bson.M, error)
	Get(ctx context.Context, d *search.Domain, id string) (bson.M, error)
	Autocomplete(ctx context.Context, d *search.Domain, req search.AutocompleteRequest) ([]bson.M, error)
	MoreLikeThis(ctx context.Context, d *search.Domain, req search.MoreLikeThisRequest) ([]bson.M, error)
	Facets(ctx context.Context, d *search.Domain, req search.FacetRequest) (*models.FacetResult, error)
	Export(ctx context.Context, d *search.Domain, req search.SearchRequest, format string, w io.Writer) (int, error)
}

// SetupSearchRoutes mounts every domain under /<name>.
func SetupSearchRoutes(router gin.IRouter, svc SearchAPI, timeout time.Duration) {
	for _, d := range search.Domains {
		group := router.Group("/" + d.Name)

		group.GET("", handleList(svc, d, timeout))
		group.POST("", handleSearch(svc, d, timeout))
		group.POST("/autocomplete", handleAutocomplete(svc, d, timeout))
		group.POST("/facets", handleFacets(svc, d, timeout))
		group.POST("/more-like-this", handleMoreLikeThis(svc, d, timeout))
		group.GET("/export", handleExport(svc, d))
		group.GET("/:id", handleGet(svc, d, timeout))
	}
}

// handleList serves the unfiltered listing; term, filters and vector mode are
// ignored so a GET never triggers an embedding call.
func handleList(svc SearchAPI, d *search.Domain, timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := search.NewSearchRequest()
		if err := c.ShouldBindQuery(&req); err != nil {
			respondBindError(c, err)
			return
		}
		req.Term, req.Filters, req.UseVector = "", nil, false

		ctx, cancel := utils.WithCustomTimeout(c.Request.Context(), timeout)
		defer cancel()

		docs, err := svc.Search(ctx, d, req)
		if err != nil {
			respondSearchError(c, d, err)
			return
		}
		c.JSON(http.StatusOK, docs)
	}
}

func handleSearch(svc SearchAPI, d *search.Domain, timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := search.NewSearchRequest()
		if err := c.ShouldBindQuery(&req); err != nil {
			respondBindError(c, err)
			return
		}

		ctx, cancel := utils.WithCustomTimeout(c.Request.Context(), timeout)
		defer cancel()

		docs, err := svc.Search(ctx, d, req)
		if err != nil {
			respondSearchError(c, d, err)
			return
		}
		c.JSON(http.StatusOK, docs)
	}
}

func handleGet(svc SearchAPI, d *search.Domain, timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := utils.WithCustomTimeout(c.Request.Context(), timeout)
		defer cancel()

		doc, err := svc.Get(ctx, d, c.Param("id"))
		if err != nil {
			respondSearchError(c, d, err)
			return
		}
		c.JSON(http.StatusOK, doc)
	}
}

func handleAutocomplete(svc SearchAPI, d *search.Domain, timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := search.AutocompleteRequest{Limit: search.DefaultAutocompleteLimit}
		if err := c.ShouldBindQuery(&req); err != nil {
			respondBindError(c, err)
			return
		}

		ctx, cancel := utils.WithCustomTimeout(c.Request.Context(), timeout)
		defer cancel()

		docs, err := svc.Autocomplete(ctx, d, req)
		if err != nil {
			respondSearchError(c, d, err)
			return
		}
		c.JSON(http.StatusOK, docs)
	}
}

func handleFacets(svc SearchAPI, d *search.Domain, timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req search.FacetRequest
		if err := c.ShouldBindQuery(&req); err != nil {
			respondBindError(c, err)
			return
		}

		ctx, cancel := utils.WithCustomTimeout(c.Request.Context(), timeout)
		defer cancel()

		result, err := svc.Facets(ctx, d, req)
		if err != nil {
			respondSearchError(c, d, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func handleMoreLikeThis(svc SearchAPI, d *search.Domain, timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := search.MoreLikeThisRequest{Limit: search.DefaultMoreLikeThisLimit}
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		if err := c.ShouldBindQuery(&req); err != nil {
			respondBindError(c, err)
			return
		}

		ctx, cancel := utils.WithCustomTimeout(c.Request.Context(), timeout)
		defer cancel()

		docs, err := svc.MoreLikeThis(ctx, d, req)
		if err != nil {
			respondSearchError(c, d, err)
			return
		}
		c.JSON(http.StatusOK, docs)
	}
}

// handleExport buffers the file so a failed search still gets a JSON error.
func handleExport(svc SearchAPI, d *search.Domain) gin.HandlerFunc {
	return func(c *gin.Context) {
		format := c.DefaultQuery("format", services.FormatCSV)
		contentType, ok := services.ExportContentType(format)
		if !ok {
			utils.RespondWithUnprocessable(c, "Unsupported export format", gin.H{"format": format})
			return
		}

		req := search.NewSearchRequest()
		if err := c.ShouldBindQuery(&req); err != nil {
			respondBindError(c, err)
			return
		}

		ctx, cancel := utils.WithLongTimeout(c.Request.Context())
		defer cancel()

		var buf bytes.Buffer
		rows, err := svc.Export(ctx, d, req, format, &buf)
		if err != nil {
			respondSearchError(c, d, err)
			return
		}

		filename := fmt.Sprintf("%s-%s.%s", d.Name, time.Now().UTC().Format("20060102-150405"), format)
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		c.Header("X-Export-Rows", fmt.Sprint(rows))
		c.Data(http.StatusOK, contentType, buf.Bytes())
	}
}

func respondBindError(c *gin.Context, err error) {
	utils.RespondWithUnprocessable(c, "Invalid request parameters", gin.H{"error": err.Error()})
}

// respondSearchError maps search sentinels onto HTTP responses.
func respondSearchError(c *gin.Context, d *search.Domain, err error) {
	var mf *search.MalformedFilterError
	var nf *search.NotFoundError

	switch {
	case errors.As(err, &mf):
		utils.RespondWithBadRequest(c, "malformed_filter", err.Error(), gin.H{"clause": mf.Clause})
	case errors.As(err, &nf):
		utils.RespondWithNotFound(c, nf.Error(), gin.H{"id": nf.ID})
	case errors.Is(err, search.ErrInvalidRequest):
		utils.RespondWithUnprocessable(c, err.Error(), nil)
	case errors.Is(err, context.DeadlineExceeded):
		utils.RespondWithError(c, http.StatusGatewayTimeout, "timeout", "Search timed out", nil)
	case errors.Is(err, search.ErrUpstream):
		logger.Error("Search upstream failure",
			"domain", d.Name, "request_id", middleware.GetRequestID(c), "error", err)
		utils.RespondWithBadGateway(c, "Search backend unavailable")
	default:
		logger.Error("Search failed",
			"domain", d.Name, "request_id", middleware.GetRequestID(c), "error", err)
		utils.RespondWithInternalError(c, "Search failed", nil)
	}
}
