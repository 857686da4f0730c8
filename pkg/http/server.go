package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"CoinPull/pkg/http/middleware"
	applogger "CoinPull/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler registers its routes on the server.
type Handler interface {
	RegisterRoutes(e *echo.Echo)
}

type ServerOption func(*serverOptions)

type serverOptions struct {
	host            string
	port            int
	readTimeout     time.Duration
	writeTimeout    time.Duration
	shutdownTimeout time.Duration
	slow            time.Duration
	registerer      prometheus.Registerer
	gatherer        prometheus.Gatherer
}

// Server is the Echo status server. It serves the handler's routes and
// /metrics.
type Server struct {
	echo *echo.Echo
	opts serverOptions
	log  *applogger.Logger
	ln   net.Listener
}

// NewServer builds the Echo instance; nothing listens until Start. handler
// may be nil.
func NewServer(handler Handler, log *applogger.Logger, opts ...ServerOption) *Server {
	o := serverOptions{
		host:            "0.0.0.0",
		port:            8080,
		readTimeout:     10 * time.Second,
		writeTimeout:    10 * time.Second,
		shutdownTimeout: 10 * time.Second,
		slow:            time.Second,
		registerer:      prometheus.DefaultRegisterer,
		gatherer:        prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if log == nil {
		log = applogger.Nop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = o.readTimeout
	e.Server.WriteTimeout = o.writeTimeout
	e.Use(
		middleware.RequestID(),
		middleware.Access(log, o.registerer, o.slow),
		middleware.Recover(log),
	)

	if handler != nil {
		handler.RegisterRoutes(e)
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(o.gatherer, promhttp.HandlerOpts{})))

	return &Server{echo: e, opts: o, log: log}
}

func (s *Server) listenAddr() string {
	return net.JoinHostPort(s.opts.host, strconv.Itoa(s.opts.port))
}

// Addr is the bound address once Start has returned, the configured one
// before.
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.listenAddr()
}

// Start binds synchronously so a port conflict is reported to the caller,
// then serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.listenAddr())
	if err != nil {
		return fmt.Errorf("http listen %s: %w", s.listenAddr(), err)
	}
	s.ln = ln
	s.echo.Listener = ln

	go func() {
		s.log.Info("http server listening", applogger.String("addr", ln.Addr().String()))
		if err := s.echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server error", applogger.Error(err))
		}
	}()
	return nil
}

// Stop drains in-flight requests, bounded by the shutdown timeout.
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.log.Info("http server stopped")
	return nil
}

func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func WithHost(host string) ServerOption {
	return func(o *serverOptions) { o.host = host }
}

func WithPort(port int) ServerOption {
	return func(o *serverOptions) { o.port = port }
}

func WithTimeouts(read, write, shutdown time.Duration) ServerOption {
	return func(o *serverOptions) {
		o.readTimeout = read
		o.writeTimeout = write
		o.shutdownTimeout = shutdown
	}
}

// WithSlowThreshold sets the latency above which a request is logged at warn.
func WithSlowThreshold(d time.Duration) ServerOption {
	return func(o *serverOptions) { o.slow = d }
}

// WithRegistry registers HTTP metrics on reg and serves /metrics from it.
func WithRegistry(reg *prometheus.Registry) ServerOption {
	return func(o *serverOptions) {
		o.registerer = reg
		o.gatherer = reg
	}
}
