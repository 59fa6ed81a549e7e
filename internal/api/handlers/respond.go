package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/northstar/services/custops/internal/commands"
	"example.com/northstar/services/custops/internal/domain"
	"example.com/northstar/services/custops/internal/eventstore"
)

// CommandResponse is the common shape for command endpoints
type CommandResponse struct {
	Success     bool      `json:"success"`
	AggregateID string    `json:"aggregate_id,omitempty"`
	EventIDs    []string  `json:"event_ids,omitempty"`
	Error       *APIError `json:"error,omitempty"`
}

// APIError carries a stable code alongside the message
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// respondCommand writes a command result or maps the error to a status
func respondCommand(c *gin.Context, result commands.Result, err error) {
	if err == nil {
		c.JSON(http.StatusOK, CommandResponse{
			Success:     true,
			AggregateID: result.AggregateID,
			EventIDs:    result.EventIDs,
		})
		return
	}

	status, apiErr := classifyError(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Msg("Command failed")
	}
	c.JSON(status, CommandResponse{Success: false, Error: apiErr})
}

func classifyError(err error) (int, *APIError) {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		status := http.StatusBadRequest
		if ve.Code == domain.CodeAlreadyExists {
			status = http.StatusConflict
		}
		return status, &APIError{Code: ve.Code, Message: ve.Message}
	}

	var ge *domain.GuardrailError
	if errors.As(err, &ge) {
		return http.StatusForbidden, &APIError{Code: ge.Code, Message: ge.Message}
	}

	if errors.Is(err, domain.ErrNotFound) {
		return http.StatusNotFound, &APIError{Code: "not_found", Message: "aggregate not found"}
	}

	if errors.Is(err, eventstore.ErrSequenceConflict) {
		return http.StatusConflict, &APIError{Code: "sequence_conflict", Message: "concurrent update, retry the command"}
	}

	return http.StatusInternalServerError, &APIError{Code: "internal", Message: "internal error"}
}

// respondBadRequest rejects a malformed request body
func respondBadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, CommandResponse{
		Success: false,
		Error:   &APIError{Code: domain.CodeInvalidInput, Message: err.Error()},
	})
}
