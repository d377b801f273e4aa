package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/unforkableco/fabrikator/internal/auth"
	"github.com/unforkableco/fabrikator/internal/realtime"
	"github.com/unforkableco/fabrikator/pkg/errors"
	"github.com/unforkableco/fabrikator/pkg/response"
)

// RealtimeHandler upgrades HTTP connections into authenticated project
// event streams. Browsers cannot set headers on WebSocket dials, so the
// token is also accepted as a query parameter.
type RealtimeHandler struct {
	hub    *realtime.Hub
	tokens *iauth.TokenService
}

func NewRealtimeHandler(hub *realtime.Hub, tokens *iauth.TokenService) *RealtimeHandler {
	return &RealtimeHandler{hub: hub, tokens: tokens}
}

// GET /api/ws?token=...&projects=a,b
func (h *RealtimeHandler) Stream(c *gin.Context) {
	if h.hub == nil || h.tokens == nil {
		response.Error(c, errors.ErrNotFound)
		return
	}

	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		authz := c.GetHeader("Authorization")
		if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			token = strings.TrimSpace(authz[7:])
		}
	}

	claims, err := h.tokens.Validate(token)
	if err != nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var projects []string
	for _, projectID := range strings.Split(c.Query("projects"), ",") {
		if projectID = strings.TrimSpace(projectID); projectID != "" {
			projects = append(projects, projectID)
		}
	}

	h.hub.Serve(claims.UserID, projects, c.Writer, c.Request)
}
