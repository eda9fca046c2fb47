// Package httpapi exposes the booking service over a JSON HTTP API.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Dependencies carries the collaborators of the HTTP facade.
type Dependencies struct {
	Service ReservationService
	Limiter *RateLimiter
	Logger  *zap.Logger
}

// NewRouter validates cfg and builds the gin engine serving every route.
func NewRouter(cfg Config, deps Dependencies) (*gin.Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Service == nil {
		return nil, fmt.Errorf("reservation service is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	authenticator, err := NewAuthenticator(cfg.JWTSigningKey, cfg.JWTIssuer)
	if err != nil {
		return nil, err
	}
	handler := &httpHandler{logger: logger, service: deps.Service, cfg: cfg}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Origin", "Accept", "If-Match"},
		ExposeHeaders:    []string{"ETag", "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.Use(authenticator.Middleware())
	api.Use(deps.Limiter.Middleware())

	api.POST("/reservations", handler.handleCreateReservation)
	api.GET("/reservations", handler.handleListReservations)
	api.GET("/reservations/:id", handler.handleGetReservation)
	api.PATCH("/reservations/:id", handler.handleUpdateDetails)
	api.POST("/reservations/:id/cancel", handler.handleCancelReservation)
	api.PUT("/reservations/:id/calendar-ref", handler.handleAttachCalendarRef)

	api.GET("/notifications", handler.handleListNotifications)
	api.POST("/notifications/:id/read", handler.handleMarkNotificationRead)

	admin := api.Group("/admin")
	admin.GET("/reservations", handler.handleAdminListReservations)
	admin.PUT("/reservations/:id/status", handler.handleAdminSetStatus)

	return router, nil
}

// Run serves router on cfg.ListenAddr until ctx is cancelled.
func Run(ctx context.Context, cfg Config, router http.Handler, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("bookingd listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		started := time.Now()
		ctx.Next()
		logger.Info("http request",
			zap.String("method", ctx.Request.Method),
			zap.String("path", ctx.FullPath()),
			zap.Int("status", ctx.Writer.Status()),
			zap.Duration("latency", time.Since(started)),
		)
	}
}
