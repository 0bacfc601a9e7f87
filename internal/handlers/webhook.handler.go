package handlers

import (
	"context"

	"github.com/fasthttp/router"
	gateway "github.com/nimasrn/congregation-messenger/internal/gateways"
	xhttp "github.com/nimasrn/congregation-messenger/pkg/http"
	"github.com/nimasrn/congregation-messenger/pkg/logger"
)

type DeliveryQueue interface {
	PublishJSON(ctx context.Context, data interface{}, metadata map[string]string) (string, error)
}

type WebhookHandler struct {
	queue DeliveryQueue
}

// RegisterWebhookRoutes mounts the gateway callback. It is called by the
// gateway, not by users, so it carries no guard.
func RegisterWebhookRoutes(e *router.Group, h *WebhookHandler) {
	e.POST("/webhooks/delivery", h.Delivery)
}

func NewWebhookHandler(queue DeliveryQueue) *WebhookHandler {
	return &WebhookHandler{queue: queue}
}

// Delivery always acknowledges with the handshake so the gateway does not
// re-deliver; items that could not be queued are only logged.
func (h *WebhookHandler) Delivery(ctx *xhttp.RequestCtx) {
	defer xhttp.WriteJSON(ctx, xhttp.StatusOK, gateway.AckHandshake())

	items, err := gateway.ParseDeliveryWebhook(ctx.PostBody())
	if err != nil {
		logger.Warn("delivery webhook rejected", "error", err, "body", string(ctx.PostBody()))
		return
	}

	queued := 0
	for _, it := range items {
		if _, err := h.queue.PublishJSON(ctx, it, map[string]string{"key": it.Key()}); err != nil {
			logger.Error("failed to queue delivery report", "message_id", it.MessageID, "phone", it.Phone, "error", err)
			continue
		}
		queued++
	}
	logger.Debug("delivery webhook received", "items", len(items), "queued", queued)
}
