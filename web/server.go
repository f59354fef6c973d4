package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	engine          *gin.Engine
	lg              *zap.Logger
	mode            string
	port            int64
	shutdownTimeout time.Duration
	middlewares     []gin.HandlerFunc
	routes          map[string]http.Handler
}

type Option func(*Server)

func defaultServer() *Server {
	return &Server{
		lg:              zap.L(),
		mode:            gin.ReleaseMode,
		port:            8080,
		shutdownTimeout: 15 * time.Second,
		routes:          map[string]http.Handler{},
	}
}

func WithMode(mode string) Option {
	return func(s *Server) {
		if mode != "" {
			s.mode = mode
		}
	}
}

func WithPort(port int64) Option {
	return func(s *Server) {
		s.port = port
	}
}

func WithLogger(lg *zap.Logger) Option {
	return func(s *Server) {
		if lg != nil {
			s.lg = lg
		}
	}
}

// WithShutdownTimeout bounds how long Run waits for open requests on shutdown. Default: 15s.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// WithMiddleware adds a handler that runs before every route.
func WithMiddleware(handler gin.HandlerFunc) Option {
	return func(s *Server) {
		s.middlewares = append(s.middlewares, handler)
	}
}

// WithRoute serves GET requests for path with handler, e.g. a websocket endpoint.
func WithRoute(path string, handler http.Handler) Option {
	return func(s *Server) {
		s.routes[path] = handler
	}
}

func NewServer(opts ...Option) *Server {
	s := defaultServer()
	for _, opt := range opts {
		opt(s)
	}

	gin.SetMode(s.mode)
	s.engine = gin.New()
	s.engine.Use(gin.Recovery())
	s.engine.Use(s.middlewares...)

	s.engine.GET("/", healthCheck)
	s.engine.GET("/healthcheck", healthCheck)
	for path, handler := range s.routes {
		s.engine.GET(path, gin.WrapH(handler))
	}
	return s
}

// Handler exposes the engine, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is done and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("fail to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:     s.engine,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.lg.Info("starting web server ...", zap.String("address", ln.Addr().String()))
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("fail to serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.lg.Info("shutdown web server ...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	// Hijacked websocket connections are not tracked by Shutdown; they end
	// with ctx through BaseContext.
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("fail to shutdown web server: %w", err)
	}
	s.lg.Info("web server exiting")
	return nil
}

func healthCheck(c *gin.Context) {
	c.Status(http.StatusOK)
}
