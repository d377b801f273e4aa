package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/unforkableco/fabrikator/internal/ai"
	"github.com/unforkableco/fabrikator/internal/realtime"
	"github.com/unforkableco/fabrikator/internal/services"
	"github.com/unforkableco/fabrikator/pkg/response"
)

// SuggestionHandler exposes the assistant batch lifecycle over HTTP.
type SuggestionHandler struct {
	suggestions *services.SuggestionService
	hub         *realtime.Hub
}

func NewSuggestionHandler(suggestions *services.SuggestionService, hub *realtime.Hub) *SuggestionHandler {
	return &SuggestionHandler{suggestions: suggestions, hub: hub}
}

type proposeRequest struct {
	Prompt string            `json:"prompt"`
	Items  []ai.ProposedItem `json:"items"`
}

// POST /api/projects/:id/suggestions
func (h *SuggestionHandler) Propose(c *gin.Context) {
	var req proposeRequest
	if !bindAndValidate(c, &req) {
		return
	}

	suggestion, err := h.suggestions.Propose(requestContext(c), c.Param("id"), req.Prompt, requestAuthor(c), req.Items)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.publish(suggestion.ProjectID, realtime.EventSuggestionProposed, suggestion)
	response.Success(c, http.StatusCreated, suggestion)
}

// GET /api/projects/:id/suggestions
func (h *SuggestionHandler) List(c *gin.Context) {
	suggestions, err := h.suggestions.List(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, suggestions)
}

// GET /api/suggestions/:suggestionId
func (h *SuggestionHandler) Get(c *gin.Context) {
	suggestion, err := h.suggestions.Get(requestContext(c), c.Param("suggestionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, suggestion)
}

// POST /api/suggestions/:suggestionId/accept
//
// Item failures do not fail the request: the batch lands accepted and each
// item carries its own outcome.
func (h *SuggestionHandler) Accept(c *gin.Context) {
	suggestion, err := h.suggestions.Accept(requestContext(c), c.Param("suggestionId"))
	if err != nil && suggestion.ID == "" {
		response.Error(c, err)
		return
	}

	h.publish(suggestion.ProjectID, realtime.EventSuggestionResolved, suggestion)
	response.Success(c, http.StatusOK, suggestion)
}

// POST /api/suggestions/:suggestionId/reject
func (h *SuggestionHandler) Reject(c *gin.Context) {
	suggestion, err := h.suggestions.Reject(requestContext(c), c.Param("suggestionId"))
	if err != nil {
		response.Error(c, err)
		return
	}

	h.publish(suggestion.ProjectID, realtime.EventSuggestionResolved, suggestion)
	response.Success(c, http.StatusOK, suggestion)
}

func (h *SuggestionHandler) publish(projectID, event string, data any) {
	if h.hub == nil {
		return
	}
	h.hub.Publish(realtime.Event{ProjectID: projectID, Event: event, Data: data})
}
