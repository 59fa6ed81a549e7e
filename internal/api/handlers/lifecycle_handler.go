package handlers

import (
	"github.com/gin-gonic/gin"

	"example.com/northstar/services/custops/internal/commands"
	"example.com/northstar/services/custops/internal/domain"
	"example.com/northstar/services/custops/internal/metrics"
	"example.com/northstar/services/custops/internal/tracing"
)

// LifecycleHandler exposes the lifecycle command surface over HTTP
type LifecycleHandler struct {
	lifecycles *commands.LifecycleCommands
	tracer     tracing.Tracer
	metrics    *metrics.Metrics
}

// NewLifecycleHandler creates a new lifecycle command handler
func NewLifecycleHandler(lifecycles *commands.LifecycleCommands, tracer tracing.Tracer, m *metrics.Metrics) *LifecycleHandler {
	return &LifecycleHandler{lifecycles: lifecycles, tracer: tracer, metrics: m}
}

func (h *LifecycleHandler) finish(c *gin.Context, name string, result commands.Result, err error) {
	if err != nil {
		h.metrics.RecordError("api." + name)
	} else {
		h.metrics.RecordSuccess("api." + name)
	}
	respondCommand(c, result, err)
}

type startLifecycleRequest struct {
	Actor domain.Actor `json:"actor" binding:"required"`
	commands.StartLifecycleInput
}

func (h *LifecycleHandler) HandleStartLifecycle(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-start-lifecycle")
	defer h.tracer.EndTransaction(txn)

	var req startLifecycleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	h.tracer.AddAttribute(txn, "lifecycleID", req.LifecycleID)

	result, err := h.lifecycles.StartLifecycle(c.Request.Context(), req.Actor, req.StartLifecycleInput)
	if err != nil {
		h.tracer.RecordError(txn, err)
	}
	h.finish(c, "start_lifecycle", result, err)
}

type advanceStageRequest struct {
	Actor domain.Actor `json:"actor" binding:"required"`
	commands.AdvanceStageInput
}

func (h *LifecycleHandler) HandleAdvanceStage(c *gin.Context) {
	var req advanceStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	req.LifecycleID = c.Param("id")

	result, err := h.lifecycles.AdvanceStage(c.Request.Context(), req.Actor, req.AdvanceStageInput)
	h.finish(c, "advance_stage", result, err)
}

type setOwnerRequest struct {
	Actor domain.Actor `json:"actor" binding:"required"`
	commands.SetOwnerInput
}

func (h *LifecycleHandler) HandleSetOwner(c *gin.Context) {
	var req setOwnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	req.LifecycleID = c.Param("id")

	result, err := h.lifecycles.SetOwner(c.Request.Context(), req.Actor, req.SetOwnerInput)
	h.finish(c, "set_owner", result, err)
}

type setTierRequest struct {
	Actor domain.Actor `json:"actor" binding:"required"`
	commands.SetTierInput
}

func (h *LifecycleHandler) HandleSetTier(c *gin.Context) {
	var req setTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	req.LifecycleID = c.Param("id")

	result, err := h.lifecycles.SetTier(c.Request.Context(), req.Actor, req.SetTierInput)
	h.finish(c, "set_tier", result, err)
}

type createSuggestionRequest struct {
	Actor domain.Actor `json:"actor" binding:"required"`
	commands.CreateSuggestionInput
}

func (h *LifecycleHandler) HandleCreateSuggestion(c *gin.Context) {
	var req createSuggestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	req.LifecycleID = c.Param("id")

	result, err := h.lifecycles.CreateSuggestion(c.Request.Context(), req.Actor, req.CreateSuggestionInput)
	h.finish(c, "create_suggestion", result, err)
}

type suggestionDecisionRequest struct {
	Actor domain.Actor `json:"actor" binding:"required"`
	commands.SuggestionDecisionInput
}

func (h *LifecycleHandler) HandleAcceptSuggestion(c *gin.Context) {
	var req suggestionDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	req.LifecycleID = c.Param("id")
	req.SuggestionID = c.Param("sid")

	result, err := h.lifecycles.AcceptSuggestion(c.Request.Context(), req.Actor, req.SuggestionDecisionInput)
	h.finish(c, "accept_suggestion", result, err)
}

func (h *LifecycleHandler) HandleDismissSuggestion(c *gin.Context) {
	var req suggestionDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	req.LifecycleID = c.Param("id")
	req.SuggestionID = c.Param("sid")

	result, err := h.lifecycles.DismissSuggestion(c.Request.Context(), req.Actor, req.SuggestionDecisionInput)
	h.finish(c, "dismiss_suggestion", result, err)
}

// RegisterRoutes registers the handler's routes
func (h *LifecycleHandler) RegisterRoutes(router *gin.Engine) {
	lifecycles := router.Group("/api/v1/lifecycles")
	lifecycles.POST("", h.HandleStartLifecycle)
	lifecycles.POST("/:id/stage", h.HandleAdvanceStage)
	lifecycles.POST("/:id/owner", h.HandleSetOwner)
	lifecycles.POST("/:id/tier", h.HandleSetTier)
	lifecycles.POST("/:id/suggestions", h.HandleCreateSuggestion)
	lifecycles.POST("/:id/suggestions/:sid/accept", h.HandleAcceptSuggestion)
	lifecycles.POST("/:id/suggestions/:sid/dismiss", h.HandleDismissSuggestion)
}
