// =============================
// File: internal/server/server.go
// =============================
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// Server is the HTTP shell around the swap engine. It stays thin: parse the
// request, call the engine, format the envelope.
type Server struct {
	echo     *echo.Echo
	handlers *Handlers
	addr     string
	logger   *zap.Logger
}

// New builds the HTTP server and registers its routes.
func New(h *Handlers, addr string, logger *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())

	e.Server.ReadTimeout = 15 * time.Second
	e.Server.WriteTimeout = 75 * time.Second
	e.Server.IdleTimeout = 60 * time.Second

	e.HTTPErrorHandler = jsonErrorHandler

	e.GET("/health", h.Health)
	e.POST("/api/swap", h.Swap)
	e.GET("/api/route/:mint", h.Route)
	e.GET("/api/pool/:id", h.Pool)
	e.GET("/api/token_accounts", h.TokenAccounts)
	e.GET("/api/token_accounts/:mint", h.TokenAccounts)

	return &Server{echo: e, handlers: h, addr: addr, logger: logger.Named("server")}
}

// Start serves HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.addr))
	err := s.echo.Start(s.addr)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.echo.Shutdown(ctx)
}

// jsonErrorHandler keeps every error response, 404s included, in the same
// envelope the handlers use.
func jsonErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	message := "internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		message = http.StatusText(he.Code)
	}
	_ = c.JSON(code, errorEnvelope(message))
}
