package handlers

import (
	"net/http"

	"github.com/cairndns/cairndns/internal/api/models"
	"github.com/gin-gonic/gin"
)

// Shutdown godoc
// @Summary Stop the server
// @Description Begins a graceful shutdown. The response is sent before the
// @Description servers stop, so the client sees it complete.
// @Tags system
// @Produce json
// @Success 202 {object} models.StatusResponse
// @Failure 503 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /shutdown [post]
func (h *Handler) Shutdown(c *gin.Context) {
	shutdown := h.GetShutdownFunc()

	if shutdown == nil {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "shutdown not available"})
		return
	}

	if h.logger != nil {
		h.logger.Info("shutdown requested via api", "client_ip", c.ClientIP())
	}

	c.JSON(http.StatusAccepted, models.StatusResponse{Status: "shutting down"})
	shutdown()
}
