package handlers

import (
	"github.com/fasthttp/router"
	gateway "github.com/nimasrn/congregation-messenger/internal/gateways"
	xhttp "github.com/nimasrn/congregation-messenger/pkg/http"
)

type GatewayStats interface {
	Stats() gateway.Stats
}

type HealthHandler struct {
	gateway GatewayStats
}

func RegisterHealthRoutes(e *router.Group, h *HealthHandler, g Guards) {
	e.GET("/health", h.GetHealth)
	e.GET("/gateway/stats", g.read(h.GetGatewayStats))
}

func NewHealthHandler(gw GatewayStats) *HealthHandler {
	return &HealthHandler{
		gateway: gw,
	}
}

func (h *HealthHandler) GetHealth(ctx *xhttp.RequestCtx) {
	ctx.Response.SetBodyString("success")
}

func (h *HealthHandler) GetGatewayStats(ctx *xhttp.RequestCtx) {
	if h.gateway == nil {
		xhttp.WriteError(ctx, xhttp.StatusServiceUnavailable, "gateway not configured")
		return
	}
	xhttp.WriteJSON(ctx, xhttp.StatusOK, h.gateway.Stats())
}
