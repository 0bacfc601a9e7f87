package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/fasthttp/router"
	"github.com/nimasrn/congregation-messenger/internal/cost"
	gateway "github.com/nimasrn/congregation-messenger/internal/gateways"
	"github.com/nimasrn/congregation-messenger/internal/services"
	xhttp "github.com/nimasrn/congregation-messenger/pkg/http"
)

type BroadcastService interface {
	Broadcast(ctx context.Context, req services.BroadcastRequest) (*services.BroadcastResult, error)
	Schedule(ctx context.Context, req services.BroadcastRequest, at time.Time) (*services.BroadcastResult, error)
	SendBirthday(ctx context.Context, req services.BirthdayRequest) (*services.BroadcastResult, error)
	Estimate(text string, destinations int) cost.Estimate
	EstimateBroadcast(ctx context.Context, req services.BroadcastRequest) (cost.Estimate, error)
	Balance(ctx context.Context) (*gateway.Balance, error)
}

type BroadcastHandler struct {
	svc BroadcastService
}

func RegisterBroadcastRoutes(e *router.Group, h *BroadcastHandler, g Guards) {
	e.POST("/broadcasts", g.dispatch(h.Broadcast))
	e.POST("/broadcasts/schedule", g.dispatch(h.Schedule))
	e.POST("/broadcasts/birthday", g.dispatch(h.Birthday))
	e.POST("/estimate", g.read(h.Estimate))
	e.GET("/balance", g.read(h.Balance))
}

func NewBroadcastHandler(svc BroadcastService) *BroadcastHandler {
	return &BroadcastHandler{svc: svc}
}

type scheduleRequest struct {
	services.BroadcastRequest
	At string `json:"at"`
}

type estimateRequest struct {
	services.BroadcastRequest
	Destinations int `json:"destinations"`
}

/* --------------------------------- Routes ----------------------------------- */

func (h *BroadcastHandler) Broadcast(ctx *xhttp.RequestCtx) {
	var req services.BroadcastRequest
	if err := xhttp.ReadJSON(ctx, &req); err != nil {
		xhttp.WriteError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	res, err := h.svc.Broadcast(ctx, req)
	writeResult(ctx, res, err)
}

func (h *BroadcastHandler) Schedule(ctx *xhttp.RequestCtx) {
	var req scheduleRequest
	if err := xhttp.ReadJSON(ctx, &req); err != nil {
		xhttp.WriteError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	at, err := parseTime(req.At)
	if err != nil {
		xhttp.WriteError(ctx, xhttp.StatusBadRequest, "invalid schedule time: "+req.At)
		return
	}
	res, err := h.svc.Schedule(ctx, req.BroadcastRequest, at)
	writeResult(ctx, res, err)
}

func (h *BroadcastHandler) Birthday(ctx *xhttp.RequestCtx) {
	var req services.BirthdayRequest
	if err := xhttp.ReadJSON(ctx, &req); err != nil {
		xhttp.WriteError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	res, err := h.svc.SendBirthday(ctx, req)
	writeResult(ctx, res, err)
}

// Estimate prices the resolved selection when a mode is given, else the text
// for the given number of destinations.
func (h *BroadcastHandler) Estimate(ctx *xhttp.RequestCtx) {
	var req estimateRequest
	if err := xhttp.ReadJSON(ctx, &req); err != nil {
		xhttp.WriteError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Mode == "" {
		xhttp.WriteJSON(ctx, xhttp.StatusOK, h.svc.Estimate(req.Text, req.Destinations))
		return
	}
	est, err := h.svc.EstimateBroadcast(ctx, req.BroadcastRequest)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	xhttp.WriteJSON(ctx, xhttp.StatusOK, est)
}

func (h *BroadcastHandler) Balance(ctx *xhttp.RequestCtx) {
	b, err := h.svc.Balance(ctx)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	xhttp.WriteJSON(ctx, xhttp.StatusOK, b)
}

// writeResult answers 207 when some personalized messages went out and others
// failed. A failed send still returns the result with its history.
func writeResult(ctx *xhttp.RequestCtx, res *services.BroadcastResult, err error) {
	switch {
	case err == nil:
		xhttp.WriteJSON(ctx, xhttp.StatusOK, res)
	case res == nil:
		writeServiceError(ctx, err)
	case errors.Is(err, services.ErrPartialDispatch) && res.Sent > 0:
		xhttp.WriteJSON(ctx, xhttp.StatusMultiStatus, res)
	case errors.Is(err, services.ErrPartialDispatch):
		xhttp.WriteJSON(ctx, xhttp.StatusBadGateway, res)
	default:
		xhttp.WriteJSON(ctx, statusFor(err), res)
	}
}
