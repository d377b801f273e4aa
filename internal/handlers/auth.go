package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	iauth "github.com/unforkableco/fabrikator/internal/auth"
	"github.com/unforkableco/fabrikator/internal/middleware"
	"github.com/unforkableco/fabrikator/pkg/errors"
	"github.com/unforkableco/fabrikator/pkg/response"
)

// AuthHandler manages the login flow and identity lookups.
type AuthHandler struct {
	auth *iauth.Service
}

func NewAuthHandler(auth *iauth.Service) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.auth.Login(requestContext(c), req.Username, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	user, err := h.auth.GetUser(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}
