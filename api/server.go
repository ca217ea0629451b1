// Package api exposes the vault over JSON/HTTP using echo.
package api

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/xraph/subvault"
)

// DefaultBasePath is the route prefix used when none is configured.
const DefaultBasePath = "/subvault"

// Server holds the HTTP handlers of one vault.
type Server struct {
	vault    *subvault.Vault
	logger   *slog.Logger
	basePath string
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithBasePath sets the route prefix.
func WithBasePath(path string) Option {
	return func(s *Server) {
		s.basePath = path
	}
}

// NewServer creates the handlers for v.
func NewServer(v *subvault.Vault, opts ...Option) *Server {
	s := &Server{
		vault:    v,
		logger:   slog.Default(),
		basePath: DefaultBasePath,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Echo builds a ready-to-serve echo instance with every route registered.
func (s *Server) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.ErrorHandler

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())

	s.Register(e.Group(s.basePath))
	return e
}

// Register mounts the vault routes on g. Read-only routes are public;
// every mutating route except the bootstrap Init requires a bearer token.
func (s *Server) Register(g *echo.Group) {
	bearer := RequireBearer()

	// Bootstrap and settings
	g.POST("/init", s.Init)
	g.GET("/settings/min-topup", s.GetMinTopup)
	g.PUT("/settings/min-topup", s.SetMinTopup, bearer)

	// Subscriptions
	g.POST("/subscriptions", s.CreateSubscription, bearer)
	g.GET("/subscriptions", s.ListSubscriptions)
	g.POST("/subscriptions/batch-charge", s.BatchCharge, bearer)
	g.GET("/subscriptions/:id", s.GetSubscription)
	g.GET("/subscriptions/:id/topup-estimate", s.EstimateTopup)
	g.POST("/subscriptions/:id/deposit", s.Deposit, bearer)
	g.POST("/subscriptions/:id/charge", s.ChargeInterval, bearer)
	g.POST("/subscriptions/:id/usage", s.ChargeUsage, bearer)
	g.POST("/subscriptions/:id/pause", s.Pause, bearer)
	g.POST("/subscriptions/:id/resume", s.Resume, bearer)
	g.POST("/subscriptions/:id/cancel", s.Cancel, bearer)

	// Merchants
	g.POST("/merchants/:merchant/withdraw", s.Withdraw, bearer)
}
