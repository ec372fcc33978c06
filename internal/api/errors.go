package api

import (
	"errors"
	"net/http"

	"raffleengine/internal/logger"
	"raffleengine/internal/raffle"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// status maps an engine error kind to an HTTP status.
func status(err error) int {
	if errors.Is(err, raffle.ErrRaffleNotFound) || errors.Is(err, raffle.ErrTicketNotFound) {
		return http.StatusNotFound
	}

	switch raffle.KindOf(err) {
	case raffle.Validation:
		return http.StatusBadRequest
	case raffle.Authorization:
		return http.StatusForbidden
	case raffle.State:
		return http.StatusConflict
	case raffle.Arithmetic:
		return http.StatusUnprocessableEntity
	case raffle.External:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	code := raffle.CodeOf(err)
	if code == "" {
		logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal"})
		return
	}

	if raffle.KindOf(err) == raffle.External {
		logger.Warn("request rejected by external service", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.AbortWithStatusJSON(status(err), gin.H{"error": code})
}

func badRequest(c *gin.Context, err error) {
	logger.Debug("bad request", zap.String("path", c.FullPath()), zap.Error(err))
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "BadRequest"})
}
