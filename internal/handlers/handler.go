package handlers

import (
	"errors"
	"strconv"
	"time"

	"github.com/nimasrn/congregation-messenger/internal/auth"
	gateway "github.com/nimasrn/congregation-messenger/internal/gateways"
	"github.com/nimasrn/congregation-messenger/internal/notify"
	"github.com/nimasrn/congregation-messenger/internal/repository"
	"github.com/nimasrn/congregation-messenger/internal/retry"
	xhttp "github.com/nimasrn/congregation-messenger/pkg/http"
)

// Guards wrap routes by privilege. A nil guard lets every request through.
type Guards struct {
	Read     xhttp.MiddlewareFunc
	Dispatch xhttp.MiddlewareFunc
}

// NewGuards requires a signed-in user for reads and a dispatching role for writes.
func NewGuards(a auth.Authenticator) Guards {
	return Guards{
		Read:     auth.RequireRole(a),
		Dispatch: auth.RequireRole(a, auth.RoleAdmin, auth.RoleSecretary),
	}
}

func (g Guards) read(h xhttp.RequestHandler) xhttp.RequestHandler {
	if g.Read == nil {
		return h
	}
	return g.Read(h)
}

func (g Guards) dispatch(h xhttp.RequestHandler) xhttp.RequestHandler {
	if g.Dispatch == nil {
		return h
	}
	return g.Dispatch(h)
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var exhausted *retry.ExhaustedError
	switch {
	case gateway.IsValidation(err):
		return xhttp.StatusBadRequest
	case gateway.IsConfiguration(err):
		return xhttp.StatusServiceUnavailable
	case repository.IsNotFound(err), errors.Is(err, notify.ErrNotFound):
		return xhttp.StatusNotFound
	case errors.Is(err, notify.ErrNotRetryable):
		return xhttp.StatusUnprocessableEntity
	case errors.As(err, &exhausted), gateway.IsRetryable(err):
		return xhttp.StatusBadGateway
	default:
		return xhttp.StatusInternalServerError
	}
}

func writeServiceError(ctx *xhttp.RequestCtx, err error) {
	xhttp.WriteError(ctx, statusFor(err), err.Error())
}

func queryInt(ctx *xhttp.RequestCtx, key string) int {
	n, _ := strconv.Atoi(xhttp.Query(ctx, key))
	return n
}

func pathParam(ctx *xhttp.RequestCtx, name string) string {
	v, _ := ctx.UserValue(name).(string)
	return v
}

func parseTime(s string) (time.Time, error) {
	// RFC3339, the gateway schedule layout or YYYY-MM-DD
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(gateway.ScheduleLayout, s, time.Local); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
