package handlers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/nimasrn/congregation-messenger/internal/notify"
	xhttp "github.com/nimasrn/congregation-messenger/pkg/http"
)

type NotificationCenter interface {
	List() []notify.Notice
	Dismiss(id string) error
	Retry(ctx context.Context, id string) error
}

type NotificationHandler struct {
	center NotificationCenter
}

func RegisterNotificationRoutes(e *router.Group, h *NotificationHandler, g Guards) {
	e.GET("/notifications", g.read(h.List))
	e.DELETE("/notifications/{id}", g.read(h.Dismiss))
	e.POST("/notifications/{id}/retry", g.dispatch(h.Retry))
}

func NewNotificationHandler(center NotificationCenter) *NotificationHandler {
	return &NotificationHandler{center: center}
}

func (h *NotificationHandler) List(ctx *xhttp.RequestCtx) {
	xhttp.WriteJSON(ctx, xhttp.StatusOK, map[string]any{"items": h.center.List()})
}

func (h *NotificationHandler) Dismiss(ctx *xhttp.RequestCtx) {
	if err := h.center.Dismiss(pathParam(ctx, "id")); err != nil {
		writeServiceError(ctx, err)
		return
	}
	ctx.SetStatusCode(xhttp.StatusNoContent)
}

// Retry runs the failed operation again and waits for it. A new failure shows
// up as a new notice.
func (h *NotificationHandler) Retry(ctx *xhttp.RequestCtx) {
	if err := h.center.Retry(ctx, pathParam(ctx, "id")); err != nil {
		writeServiceError(ctx, err)
		return
	}
	xhttp.WriteJSON(ctx, xhttp.StatusOK, map[string]string{"status": "ok"})
}
