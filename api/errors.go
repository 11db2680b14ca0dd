package api

import (
	"errors"
	"net/http"

	errorsmod "cosmossdk.io/errors"
	"github.com/gin-gonic/gin"

	"github.com/strangelove-ventures/swap-bridge/scheduler"
	"github.com/strangelove-ventures/swap-bridge/types"
)

type errorResponse struct {
	Codespace string `json:"codespace,omitempty"`
	Code      uint32 `json:"code,omitempty"`
	Message   string `json:"message"`
}

func statusOf(err error) int {
	switch {
	case types.IsAccessError(err):
		return http.StatusForbidden
	case errorsmod.IsOf(err, types.ErrChainNotFound):
		return http.StatusNotFound
	case errorsmod.IsOf(err, types.ErrAlreadyProcessed, types.ErrInFlight, types.ErrUnreconciled):
		return http.StatusConflict
	case types.IsValidationError(err):
		return http.StatusBadRequest
	case errors.Is(err, scheduler.ErrStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) abort(c *gin.Context, err error) {
	status := statusOf(err)
	resp := errorResponse{Message: err.Error()}

	var coded *errorsmod.Error
	if errors.As(err, &coded) {
		resp.Codespace = coded.Codespace()
		resp.Code = coded.ABCICode()
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", "path", c.FullPath(), "err", err)
	}
	c.AbortWithStatusJSON(status, resp)
}

func (s *Server) badRequest(c *gin.Context, err error) {
	s.abort(c, errorsmod.Wrap(types.ErrInvalidPayload, err.Error()))
}
