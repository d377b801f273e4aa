package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/unforkableco/fabrikator/internal/auth"
	"github.com/unforkableco/fabrikator/pkg/errors"
	"github.com/unforkableco/fabrikator/pkg/response"
)

const (
	CtxClaimsKey = "authClaims"
	CtxUserIDKey = "userID"
	CtxAuthorKey = "author"
)

// Auth enforces JWT authentication using the supplied token service. The
// author name stored in the context is what the changelog records for
// user-driven changes.
func Auth(tokens *iauth.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		claims, err := tokens.Validate(strings.TrimSpace(authz[7:]))
		if err != nil {
			// Normalise all validation failures to 401
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		author := claims.DisplayName
		if author == "" {
			author = claims.Username
		}

		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, claims.UserID)
		c.Set(CtxAuthorKey, author)

		c.Next()
	}
}
