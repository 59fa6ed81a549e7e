package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/northstar/services/custops/internal/domain"
	"example.com/northstar/services/custops/internal/repositories"
	"example.com/northstar/services/custops/internal/search"
	"example.com/northstar/services/custops/internal/services"
	"example.com/northstar/services/custops/internal/tracing"
)

const defaultListLimit = 50

// QueryHandler serves the read side: projected rows, insights, and search
type QueryHandler struct {
	caseRepo   *repositories.CaseReadRepository
	lifecycles *repositories.LifecycleReadRepository
	stageFacts *repositories.StageFactRepository
	insights   *services.InsightsService
	search     *search.ElasticClient
	tracer     tracing.Tracer
}

// NewQueryHandler creates a new query handler
func NewQueryHandler(
	caseRepo *repositories.CaseReadRepository,
	lifecycles *repositories.LifecycleReadRepository,
	stageFacts *repositories.StageFactRepository,
	insights *services.InsightsService,
	searchClient *search.ElasticClient,
	tracer tracing.Tracer,
) *QueryHandler {
	return &QueryHandler{
		caseRepo:   caseRepo,
		lifecycles: lifecycles,
		stageFacts: stageFacts,
		insights:   insights,
		search:     searchClient,
		tracer:     tracer,
	}
}

func (h *QueryHandler) HandleGetCase(c *gin.Context) {
	row, err := h.caseRepo.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, row)
}

func (h *QueryHandler) HandleListCompanyCases(c *gin.Context) {
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			respondBadRequest(c, errors.New("limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	rows, err := h.caseRepo.ListByCompany(c.Request.Context(), c.Param("companyID"), limit)
	if err != nil {
		h.respondQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cases": rows})
}

func (h *QueryHandler) HandleGetLifecycle(c *gin.Context) {
	row, err := h.lifecycles.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, row)
}

func (h *QueryHandler) HandleListCompanyLifecycles(c *gin.Context) {
	rows, err := h.lifecycles.ListByCompany(c.Request.Context(), c.Param("companyID"))
	if err != nil {
		h.respondQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lifecycles": rows})
}

// HandleGetStageHistory returns a lifecycle's stage durations in entry order
func (h *QueryHandler) HandleGetStageHistory(c *gin.Context) {
	rows, err := h.stageFacts.ListByAggregate(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stages": rows})
}

func (h *QueryHandler) HandleCompanyInsights(c *gin.Context) {
	insights, err := h.insights.CompanyInsights(c.Request.Context(), c.Param("companyID"))
	if err != nil {
		h.respondQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, insights)
}

func (h *QueryHandler) HandleCaseQueue(c *gin.Context) {
	queue, err := h.insights.CaseQueue(c.Request.Context(), c.Param("companyID"))
	if err != nil {
		h.respondQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"queue": queue})
}

// HandleSearchCases runs a free-text search over the indexed case documents
func (h *QueryHandler) HandleSearchCases(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-search-cases")
	defer h.tracer.EndTransaction(txn)

	if h.search == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "search is not configured"})
		return
	}

	q := c.Query("q")
	if q == "" {
		respondBadRequest(c, errors.New("query parameter q is required"))
		return
	}
	h.tracer.AddAttribute(txn, "query", q)

	query := map[string]interface{}{
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  q,
				"fields": []string{"title^2", "description", "tags", "category"},
			},
		},
	}
	if companyID := c.Query("company_id"); companyID != "" {
		query["query"] = map[string]interface{}{
			"bool": map[string]interface{}{
				"must":   query["query"],
				"filter": map[string]interface{}{"term": map[string]interface{}{"company_id": companyID}},
			},
		}
	}

	docs, err := h.search.SearchCases(c.Request.Context(), query)
	if err != nil {
		h.tracer.RecordError(txn, err)
		h.respondQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": docs})
}

func (h *QueryHandler) respondQueryError(c *gin.Context, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Query failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

// RegisterRoutes registers the handler's routes
func (h *QueryHandler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	v1.GET("/cases/:id", h.HandleGetCase)
	v1.GET("/lifecycles/:id", h.HandleGetLifecycle)
	v1.GET("/lifecycles/:id/stages", h.HandleGetStageHistory)
	v1.GET("/companies/:companyID/cases", h.HandleListCompanyCases)
	v1.GET("/companies/:companyID/lifecycles", h.HandleListCompanyLifecycles)
	v1.GET("/companies/:companyID/insights", h.HandleCompanyInsights)
	v1.GET("/companies/:companyID/queue", h.HandleCaseQueue)
	v1.GET("/search/cases", h.HandleSearchCases)
}
