package middleware

import (
	"context"
	"errors"

	"clinical-search-api/internal/auth"
	"clinical-search-api/utils"

	"github.com/gin-gonic/gin"
)

// TokenValidator checks an admin bearer token.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*auth.Claims, error)
}

// RequireAdmin rejects requests without a valid admin bearer token and stores
// the claims under "claims".
func RequireAdmin(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := utils.ExtractTokenFromHeader(c.GetHeader("Authorization"))
		if tokenString == "" {
			utils.RespondWithUnauthorized(c, "Authentication token is required")
			c.Abort()
			return
		}

		claims, err := validator.Validate(c.Request.Context(), tokenString)
		if err != nil {
			msg := "Invalid or expired token"
			if errors.Is(err, auth.ErrRevoked) {
				msg = "Token has been revoked"
			}
			utils.RespondWithUnauthorized(c, msg)
			c.Abort()
			return
		}

		c.Set("claims", claims)
		c.Next()
	}
}

// GetClaims returns the admin claims set by RequireAdmin.
func GetClaims(c *gin.Context) *auth.Claims {
	if v, ok := c.Get("claims"); ok {
		if cl, ok := v.(*auth.Claims); ok {
			return cl
		}
	}
	return nil
}
