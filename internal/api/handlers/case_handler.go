package handlers

import (
	"github.com/gin-gonic/gin"

	"example.com/northstar/services/custops/internal/commands"
	"example.com/northstar/services/custops/internal/domain"
	"example.com/northstar/services/custops/internal/metrics"
	"example.com/northstar/services/custops/internal/tracing"
)

// CaseHandler exposes the case command surface over HTTP
type CaseHandler struct {
	cases   *commands.CaseCommands
	tracer  tracing.Tracer
	metrics *metrics.Metrics
}

// NewCaseHandler creates a new case command handler
func NewCaseHandler(cases *commands.CaseCommands, tracer tracing.Tracer, m *metrics.Metrics) *CaseHandler {
	return &CaseHandler{cases: cases, tracer: tracer, metrics: m}
}

// finish records metrics for the command and writes the response
func (h *CaseHandler) finish(c *gin.Context, name string, result commands.Result, err error) {
	if err != nil {
		h.metrics.RecordError("api." + name)
	} else {
		h.metrics.RecordSuccess("api." + name)
	}
	respondCommand(c, result, err)
}

type createCaseRequest struct {
	Actor domain.Actor `json:"actor" binding:"required"`
	commands.CreateCaseInput
}

func (h *CaseHandler) HandleCreateCase(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-create-case")
	defer h.tracer.EndTransaction(txn)

	var req createCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	h.tracer.AddAttribute(txn, "caseID", req.CaseID)

	result, err := h.cases.CreateCase(c.Request.Context(), req.Actor, req.CreateCaseInput)
	if err != nil {
		h.tracer.RecordError(txn, err)
	}
	h.finish(c, "create_case", result, err)
}

type assignCaseRequest struct {
	Actor domain.Actor `json:"actor" binding:"required"`
	commands.AssignCaseInput
}

func (h *CaseHandler) HandleAssignCase(c *gin.Context) {
	var req assignCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	req.CaseID = c.Param("id")

	result, err := h.cases.AssignCase(c.Request.Context(), req.Actor, req.AssignCaseInput)
	h.finish(c, "assign_case", result, err)
}

type changeStatusRequest struct {
	Actor domain.Actor `json:"actor" binding:"required"`
	commands.ChangeStatusInput
}

func (h *CaseHandler) HandleChangeStatus(c *gin.Context) {
	var req changeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	req.CaseID = c.Param("id")

	result, err := h.cases.ChangeStatus(c.Request.Context(), req.Actor, req.ChangeStatusInput)
	h.finish(c, "change_status", result, err)
}

type changeSeverityRequest struct {
	Actor domain.Actor `json:"actor" binding:"required"`
	commands.ChangeSeverityInput
}

func (h *CaseHandler) HandleChangeSeverity(c *gin.Context) {
	var req changeSeverityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	req.CaseID = c.Param("id")

	result, err := h.cases.ChangeSeverity(c.Request.Context(), req.Actor, req.ChangeSeverityInput)
	h.finish(c, "change_severity", result, err)
}

type assessImpactRequest struct {
	Actor domain.Actor `json:"actor" binding:"required"`
	commands.AssessImpactInput
}

func (h *CaseHandler) HandleAssessImpact(c *gin.Context) {
	var req assessImpactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	req.CaseID = c.Param("id")

	result, err := h.cases.AssessImpact(c.Request.Context(), req.Actor, req.AssessImpactInput)
	h.finish(c, "assess_impact", result, err)
}

type resolveCaseRequest struct {
	Actor domain.Actor `json:"actor" binding:"required"`
	commands.ResolveCaseInput
}

func (h *CaseHandler) HandleResolveCase(c *gin.Context) {
	var req resolveCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	req.CaseID = c.Param("id")

	result, err := h.cases.ResolveCase(c.Request.Context(), req.Actor, req.ResolveCaseInput)
	h.finish(c, "resolve_case", result, err)
}

type closeCaseRequest struct {
	Actor domain.Actor `json:"actor" binding:"required"`
	commands.CloseCaseInput
}

func (h *CaseHandler) HandleCloseCase(c *gin.Context) {
	var req closeCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	req.CaseID = c.Param("id")

	result, err := h.cases.CloseCase(c.Request.Context(), req.Actor, req.CloseCaseInput)
	h.finish(c, "close_case", result, err)
}

type reopenCaseRequest struct {
	Actor domain.Actor `json:"actor" binding:"required"`
	commands.ReopenCaseInput
}

func (h *CaseHandler) HandleReopenCase(c *gin.Context) {
	var req reopenCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	req.CaseID = c.Param("id")

	result, err := h.cases.ReopenCase(c.Request.Context(), req.Actor, req.ReopenCaseInput)
	h.finish(c, "reopen_case", result, err)
}

type customerMessageRequest struct {
	Actor domain.Actor `json:"actor" binding:"required"`
	commands.LogCustomerMessageInput
}

func (h *CaseHandler) HandleLogCustomerMessage(c *gin.Context) {
	var req customerMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	req.CaseID = c.Param("id")

	result, err := h.cases.LogCustomerMessage(c.Request.Context(), req.Actor, req.LogCustomerMessageInput)
	h.finish(c, "log_customer_message", result, err)
}

type agentResponseRequest struct {
	Actor domain.Actor `json:"actor" binding:"required"`
	commands.RecordAgentResponseInput
}

func (h *CaseHandler) HandleRecordAgentResponse(c *gin.Context) {
	var req agentResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	req.CaseID = c.Param("id")

	result, err := h.cases.RecordAgentResponse(c.Request.Context(), req.Actor, req.RecordAgentResponseInput)
	h.finish(c, "record_agent_response", result, err)
}

type tagRequest struct {
	Actor domain.Actor `json:"actor" binding:"required"`
	commands.TagInput
}

func (h *CaseHandler) HandleAddTag(c *gin.Context) {
	var req tagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	req.CaseID = c.Param("id")

	result, err := h.cases.AddTag(c.Request.Context(), req.Actor, req.TagInput)
	h.finish(c, "add_tag", result, err)
}

func (h *CaseHandler) HandleRemoveTag(c *gin.Context) {
	var req tagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	req.CaseID = c.Param("id")

	result, err := h.cases.RemoveTag(c.Request.Context(), req.Actor, req.TagInput)
	h.finish(c, "remove_tag", result, err)
}

// RegisterRoutes registers the handler's routes
func (h *CaseHandler) RegisterRoutes(router *gin.Engine) {
	cases := router.Group("/api/v1/cases")
	cases.POST("", h.HandleCreateCase)
	cases.POST("/:id/assign", h.HandleAssignCase)
	cases.POST("/:id/status", h.HandleChangeStatus)
	cases.POST("/:id/severity", h.HandleChangeSeverity)
	cases.POST("/:id/impact", h.HandleAssessImpact)
	cases.POST("/:id/resolve", h.HandleResolveCase)
	cases.POST("/:id/close", h.HandleCloseCase)
	cases.POST("/:id/reopen", h.HandleReopenCase)
	cases.POST("/:id/messages", h.HandleLogCustomerMessage)
	cases.POST("/:id/responses", h.HandleRecordAgentResponse)
	cases.POST("/:id/tags", h.HandleAddTag)
	cases.DELETE("/:id/tags", h.HandleRemoveTag)
}
