// Package api exposes the raffle engine over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"raffleengine/internal/logger"
	"raffleengine/internal/raffle"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	engine *raffle.Engine
	router *gin.Engine
	server *http.Server
}

func NewServer(engine *raffle.Engine, address string) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{engine: engine, router: gin.New()}
	s.router.Use(gin.Recovery(), requestLogger())
	s.RegisterRoutes(s.router)

	s.server = &http.Server{
		Addr:              address,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// RegisterRoutes registers all the application routes.
func (s *Server) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", s.Health)

	router.GET("/raffles/:raffle", s.GetRaffle)
	router.GET("/raffles/:raffle/tickets", s.ListTickets)

	signed := router.Group("/")
	signed.Use(SignerMiddleware())

	signed.POST("/raffles", s.CreateRaffle)
	signed.POST("/raffles/:raffle/deposits", s.Deposit)
	signed.POST("/raffles/:raffle/slots", s.ReserveSlots)
	signed.POST("/raffles/:raffle/joins", s.JoinWithTickets)
	signed.POST("/raffles/:raffle/draw", s.RequestDraw)
	signed.POST("/raffles/:raffle/settle", s.Settle)
	signed.POST("/raffles/:raffle/refunds", s.ClaimRefund)
	signed.POST("/raffles/:raffle/refunds/batch", s.RefundBatch)
	signed.POST("/raffles/:raffle/tickets/:ticket/win", s.ClaimWin)
	signed.POST("/raffles/:raffle/prize", s.SetPrize)
	signed.POST("/raffles/:raffle/prize/claim", s.ClaimPrize)
	signed.POST("/raffles/:raffle/proceeds", s.CollectProceeds)
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("address", s.server.Addr))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("http server stopping")
	return s.server.Shutdown(shutdownCtx)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(started)),
		)
	}
}
