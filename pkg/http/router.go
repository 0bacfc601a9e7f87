package xhttp

import (
	"github.com/fasthttp/router"
	"github.com/nimasrn/congregation-messenger/pkg/logger"
)

type Router = router.Router

func NewRouter() *Router {
	return router.New()
}

// CreateDefaultRouter answers unknown routes and methods with a JSON error
// and recovers handler panics as 500.
func CreateDefaultRouter() *Router {
	r := NewRouter()
	r.RedirectTrailingSlash = true
	r.RedirectFixedPath = true
	r.SaveMatchedRoutePath = true
	r.HandleMethodNotAllowed = true
	r.HandleOPTIONS = false
	r.NotFound = NotFoundHandler
	r.MethodNotAllowed = MethodNotAllowedHandler
	r.PanicHandler = func(ctx *RequestCtx, v interface{}) {
		logger.Error("[xhttp] handler panic", "path", string(ctx.Path()), "panic", v)
		WriteError(ctx, StatusInternalServerError, StatusText(StatusInternalServerError))
	}
	return r
}

func NotFoundHandler(ctx *RequestCtx) {
	WriteError(ctx, StatusNotFound, StatusText(StatusNotFound))
}

func MethodNotAllowedHandler(ctx *RequestCtx) {
	WriteError(ctx, StatusMethodNotAllowed, StatusText(StatusMethodNotAllowed))
}
