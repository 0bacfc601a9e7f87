package xhttp

import (
	"context"
	"net"
	"time"

	"github.com/nimasrn/congregation-messenger/pkg/logger"
	"github.com/valyala/fasthttp"
)

type Server = fasthttp.Server

type ServerOption struct {
	Name string

	// ReadTimeout and WriteTimeout bound a whole request and response,
	// bodies included.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// IdleTimeout closes keep-alive connections nobody is using. Long
	// values end in too many open files under load.
	IdleTimeout time.Duration

	// ReadBufferSize also caps the request header size.
	ReadBufferSize  int
	WriteBufferSize int

	MaxRequestBodySize int
	Concurrency        int
	MaxConnsPerIP      int

	// ShutdownTimeout is how long Shutdown waits for open requests.
	ShutdownTimeout time.Duration

	Logger logger.Logger
}

var DefaultServerOption = ServerOption{
	Name:               "congregation-messenger",
	ReadTimeout:        5 * time.Second,
	WriteTimeout:       30 * time.Second,
	IdleTimeout:        10 * time.Second,
	ReadBufferSize:     4 * 1024,
	WriteBufferSize:    4 * 1024,
	MaxRequestBodySize: 4 * 1024 * 1024, // member imports stay well below
	Concurrency:        10_000,
	MaxConnsPerIP:      1_000,
	ShutdownTimeout:    30 * time.Second,
	Logger:             logger.GetLogger(),
}

// Engine is a router plus the middleware chain in front of it.
type Engine struct {
	*Router
	Server *Server
	option ServerOption
	middle []MiddlewareFunc
}

func NewServer(options ServerOption) *Engine {
	if options.Logger == nil {
		options.Logger = logger.GetLogger()
	}
	return &Engine{
		Router: CreateDefaultRouter(),
		Server: &fasthttp.Server{
			Name:                  options.Name,
			ReadTimeout:           options.ReadTimeout,
			WriteTimeout:          options.WriteTimeout,
			IdleTimeout:           options.IdleTimeout,
			ReadBufferSize:        options.ReadBufferSize,
			WriteBufferSize:       options.WriteBufferSize,
			MaxRequestBodySize:    options.MaxRequestBodySize,
			Concurrency:           options.Concurrency,
			MaxConnsPerIP:         options.MaxConnsPerIP,
			NoDefaultServerHeader: true,
			NoDefaultDate:         true,
			CloseOnShutdown:       true,
			Logger:                options.Logger,
			ErrorHandler: func(ctx *RequestCtx, err error) {
				logger.Warn("[xhttp] request error", "error", err, "ip", ctx.RemoteIP().String())
				WriteError(ctx, StatusBadRequest, StatusText(StatusBadRequest))
			},
		},
		option: options,
	}
}

// CreateServer is NewServer with the default options.
func CreateServer() *Engine {
	return NewServer(DefaultServerOption)
}

// Use appends middleware; the first one added runs outermost.
func (e *Engine) Use(middleware MiddlewareFunc) {
	e.middle = append(e.middle, middleware)
}

// Handler returns the router wrapped in the middleware chain.
func (e *Engine) Handler() RequestHandler {
	h := e.Router.Handler
	for i := len(e.middle) - 1; i >= 0; i-- {
		h = e.middle[i](h)
	}
	return h
}

func (e *Engine) prepare() {
	for method, routes := range e.Router.List() {
		for _, r := range routes {
			logger.Debug("[xhttp] route registered", "method", method, "path", r)
		}
	}
	e.Server.Handler = e.Handler()
}

func (e *Engine) ListenAndServe(addr string) error {
	e.prepare()
	logger.Info("[xhttp] server is listening", "addr", addr, "middlewares", len(e.middle))
	return e.Server.ListenAndServe(addr)
}

// Serve runs on an existing listener, tests pass an in-memory one.
func (e *Engine) Serve(ln net.Listener) error {
	e.prepare()
	return e.Server.Serve(ln)
}

// Shutdown stops accepting connections and waits for open requests up to ShutdownTimeout.
func (e *Engine) Shutdown() error {
	logger.Info("[xhttp] server is shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), e.option.ShutdownTimeout)
	defer cancel()
	return e.Server.ShutdownWithContext(ctx)
}
