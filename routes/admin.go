package routes

import (
	"context"
	"net/http"

	"clinical-search-api/internal/logger"
	"clinical-search-api/internal/queue"
	"clinical-search-api/middleware"
	"clinical-search-api/models"
	"clinical-search-api/utils"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
)

// TokenAuthority validates and revokes admin tokens.
type TokenAuthority interface {
	middleware.TokenValidator
	Revoke(ctx context.Context, jti string) error
}

// CacheStats reports embedding cache size.
type CacheStats interface {
	Stats(ctx context.Context) (models.EmbeddingCacheStats, error)
}

// TaskEnqueuer is satisfied by *asynq.Client.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

func SetupAdminRoutes(router gin.IRouter, tokens TokenAuthority, cache CacheStats, enqueuer TaskEnqueuer) {
	admin := router.Group("/admin")
	admin.Use(middleware.RequireAdmin(tokens))

	admin.GET("/embeddings/stats", handleCacheStats(cache))
	admin.POST("/embeddings/warm", handleWarmEmbeddings(enqueuer))
	admin.POST("/logout", handleLogout(tokens))
}

func handleCacheStats(cache CacheStats) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := utils.WithTimeout(c.Request.Context())
		defer cancel()

		stats, err := cache.Stats(ctx)
		if err != nil {
			logger.Error("Embedding cache stats failed", "error", err)
			utils.RespondWithBadGateway(c, "Embedding cache unavailable")
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

func handleWarmEmbeddings(enqueuer TaskEnqueuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if enqueuer == nil {
			utils.RespondWithError(c, http.StatusServiceUnavailable, "queue_unavailable",
				"Background queue is not configured", nil)
			return
		}

		var req models.EmbeddingWarmRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithUnprocessable(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		subject := ""
		if claims := middleware.GetClaims(c); claims != nil {
			subject = claims.Subject
		}

		task, err := queue.NewWarmEmbeddingsTask(req.Texts, subject)
		if err != nil {
			utils.RespondWithUnprocessable(c, err.Error(), nil)
			return
		}

		ctx, cancel := utils.WithShortTimeout(c.Request.Context())
		defer cancel()

		info, err := enqueuer.EnqueueContext(ctx, task)
		if err != nil {
			logger.Error("Failed to enqueue embedding warm-up", "error", err)
			utils.RespondWithBadGateway(c, "Failed to enqueue task")
			return
		}

		logger.Info("Embedding warm-up enqueued", "task_id", info.ID, "texts", len(req.Texts), "by", subject)
		c.JSON(http.StatusAccepted, gin.H{
			"task_id": info.ID,
			"queue":   info.Queue,
			"texts":   len(req.Texts),
		})
	}
}

func handleLogout(tokens TokenAuthority) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := middleware.GetClaims(c)
		if claims == nil {
			utils.RespondWithUnauthorized(c, "Authentication token is required")
			return
		}
		if err := tokens.Revoke(c.Request.Context(), claims.ID); err != nil {
			logger.Error("Token revocation failed", "jti", claims.ID, "error", err)
			utils.RespondWithInternalError(c, "Failed to revoke token", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "token revoked", "jti": claims.ID})
	}
}
