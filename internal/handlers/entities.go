package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/unforkableco/fabrikator/internal/realtime"
	"github.com/unforkableco/fabrikator/internal/services"
	"github.com/unforkableco/fabrikator/pkg/response"
)

// EntityHandler serves the versioned-artifact routes for one entity kind. The
// same handler shape backs components, requirements, wiring schemas, 3D
// designs and documents; only the bound service differs.
type EntityHandler struct {
	svc services.EntityAPI
	hub *realtime.Hub
}

// NewEntityHandler binds an entity service to HTTP routes. The hub may be nil
// when realtime delivery is disabled.
func NewEntityHandler(svc services.EntityAPI, hub *realtime.Hub) *EntityHandler {
	return &EntityHandler{svc: svc, hub: hub}
}

type createEntityRequest struct {
	Payload map[string]any `json:"payload" validate:"required"`
}

type addVersionRequest struct {
	Payload map[string]any `json:"payload" validate:"required"`
}

type validateVersionRequest struct {
	Decision string `json:"decision" validate:"required,oneof=accept reject"`
}

// GET /api/projects/:id/<kind>
func (h *EntityHandler) ListByProject(c *gin.Context) {
	entities, err := h.svc.ListByProject(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, entities)
}

// POST /api/projects/:id/<kind>
func (h *EntityHandler) Create(c *gin.Context) {
	var req createEntityRequest
	if !bindAndValidate(c, &req) {
		return
	}

	entity, err := h.svc.Create(requestContext(c), c.Param("id"), req.Payload, requestAuthor(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	h.publish(entity.ProjectID, realtime.EventEntityCreated, entity)
	response.Success(c, http.StatusCreated, entity)
}

// GET /api/<kind>/:rootId
func (h *EntityHandler) Get(c *gin.Context) {
	entity, err := h.svc.Get(requestContext(c), c.Param("rootId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, entity)
}

// POST /api/<kind>/:rootId/versions
func (h *EntityHandler) AddVersion(c *gin.Context) {
	var req addVersionRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)
	version, err := h.svc.AddVersion(ctx, c.Param("rootId"), req.Payload, requestAuthor(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	if h.hub != nil {
		if entity, err := h.svc.Get(ctx, c.Param("rootId")); err == nil {
			h.publish(entity.ProjectID, realtime.EventVersionAdded, version)
		}
	}
	response.Success(c, http.StatusCreated, version)
}

// GET /api/<kind>/:rootId/versions
func (h *EntityHandler) History(c *gin.Context) {
	versions, err := h.svc.History(requestContext(c), c.Param("rootId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, versions)
}

// GET /api/<kind>/:rootId/versions/next
func (h *EntityHandler) NextVersionNumber(c *gin.Context) {
	next, err := h.svc.NextVersionNumber(requestContext(c), c.Param("rootId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"next_version_number": next})
}

// POST /api/<kind>/:rootId/versions/:versionId/validate
func (h *EntityHandler) Validate(c *gin.Context) {
	var req validateVersionRequest
	if !bindAndValidate(c, &req) {
		return
	}

	entity, err := h.svc.Validate(
		requestContext(c),
		c.Param("rootId"),
		c.Param("versionId"),
		services.Decision(req.Decision),
		requestAuthor(c),
	)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.publish(entity.ProjectID, realtime.EventVersionValidated, gin.H{
		"entity":   entity,
		"decision": req.Decision,
	})
	response.Success(c, http.StatusOK, entity)
}

func (h *EntityHandler) publish(projectID, event string, data any) {
	if h.hub == nil {
		return
	}
	h.hub.Publish(realtime.Event{
		ProjectID: projectID,
		Event:     event,
		Entity:    string(h.svc.Kind()),
		Data:      data,
	})
}
