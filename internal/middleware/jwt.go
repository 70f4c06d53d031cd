package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/gloodan17/Course-Enrollment-Database/internal/models"
	"github.com/gloodan17/Course-Enrollment-Database/internal/repository"
	appErrors "github.com/gloodan17/Course-Enrollment-Database/pkg/errors"
	"github.com/gloodan17/Course-Enrollment-Database/pkg/response"
)

// ContextUserKey is the gin context key storing JWT claims.
const ContextUserKey = "currentUser"

type tokenValidator interface {
	ValidateToken(token string) (*models.JWTClaims, error)
}

// JWT protects routes by requiring a valid access token. The operator named in the
// token is attached to the request context so record writes are audited under it.
func JWT(auth tokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}

		claims, err := auth.ValidateToken(parts[1])
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Request = c.Request.WithContext(repository.WithActor(c.Request.Context(), claims.Username))
		c.Next()
	}
}

// CurrentOperator returns the authenticated operator, if any.
func CurrentOperator(c *gin.Context) (string, bool) {
	value, ok := c.Get(ContextUserKey)
	if !ok {
		return "", false
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return "", false
	}
	return claims.Username, true
}
