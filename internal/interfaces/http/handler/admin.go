package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopcore/stockhold/internal/application/reservation"
	"github.com/shopcore/stockhold/internal/interfaces/http/dto"
)

// AdminHandler exposes operational endpoints
type AdminHandler struct {
	BaseHandler
	sweeper *reservation.Sweeper
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(sweeper *reservation.Sweeper) *AdminHandler {
	return &AdminHandler{sweeper: sweeper}
}

// Sweep handles POST /admin/sweep by running one expiration pass now
func (h *AdminHandler) Sweep(c *gin.Context) {
	stats, err := h.sweeper.Sweep(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, stats)
}

// Pinger checks a dependency, typically the database
type Pinger func(ctx context.Context) error

// HealthHandler answers liveness probes
type HealthHandler struct {
	BaseHandler
	ping      Pinger
	startTime time.Time
}

// NewHealthHandler creates a HealthHandler. A nil ping reports healthy.
func NewHealthHandler(ping Pinger) *HealthHandler {
	return &HealthHandler{ping: ping, startTime: time.Now()}
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Uptime   string `json:"uptime"`
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	resp := HealthResponse{
		Status:   "ok",
		Database: "ok",
		Uptime:   time.Since(h.startTime).Round(time.Second).String(),
	}
	if h.ping != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.Database = err.Error()
			c.JSON(http.StatusServiceUnavailable, dto.Response{Success: false, Data: resp})
			return
		}
	}
	h.Success(c, resp)
}
