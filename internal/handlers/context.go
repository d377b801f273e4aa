package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/unforkableco/fabrikator/internal/middleware"
	"github.com/unforkableco/fabrikator/internal/models"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// requestAuthor resolves the changelog author for a user-driven change: the
// authenticated identity when present, the generic user marker otherwise.
func requestAuthor(c *gin.Context) string {
	if author := c.GetString(middleware.CtxAuthorKey); author != "" {
		return author
	}
	return models.AuthorUser
}
