package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Malathy2002/hall-booking-website/internal/pkg/apperror"
	"github.com/Malathy2002/hall-booking-website/internal/pkg/response"
)

var errUnauthenticated = apperror.New(http.StatusUnauthorized, apperror.KindAuthorization, "authentication required")

// AuthRequired is a Gin middleware that validates JWT from Authorization: Bearer <token>
func AuthRequired(jwtManager *JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abort(c, "missing Authorization header")
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			abort(c, "invalid Authorization header format")
			return
		}

		claims, err := jwtManager.ParseAndValidate(parts[1])
		if err != nil {
			abort(c, "invalid or expired token")
			return
		}
		userID, err := claims.UserID()
		if err != nil {
			abort(c, "invalid token subject")
			return
		}

		c.Set(userIDKey, userID)

		c.Next()
	}
}

func abort(c *gin.Context, message string) {
	response.Error(c, errUnauthenticated.WithMessage(message))
	c.Abort()
}
