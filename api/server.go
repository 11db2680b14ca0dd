package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"cosmossdk.io/log"
	"github.com/gin-gonic/gin"

	"github.com/strangelove-ventures/swap-bridge/bridge"
)

// HeaderCaller carries the identity of the account invoking an entry point.
const HeaderCaller = "X-Caller-Id"

// Server exposes the bridge entry points and views over HTTP.
type Server struct {
	logger log.Logger
	bridge *bridge.Bridge
	engine *gin.Engine

	depositHook bool
}

type Option func(*Server)

// WithDepositHook serves the ledger transfer hook. Only enable it when the
// ledger moving custody is the one calling the hook; the hook trusts the
// deposit it is told about.
func WithDepositHook() Option {
	return func(s *Server) {
		s.depositHook = true
	}
}

func NewServer(logger log.Logger, b *bridge.Bridge, trustedProxies []string, opts ...Option) (*Server, error) {
	s := &Server{
		logger: logger.With("module", "api"),
		bridge: b,
		engine: gin.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.engine.SetTrustedProxies(trustedProxies); err != nil {
		return nil, err
	}
	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	v1 := s.engine.Group("/v1")

	v1.POST("/settlements", s.postSettlement)
	if s.depositHook {
		v1.POST("/ft_on_transfer", s.postFtOnTransfer)
	}
	v1.POST("/admin/:setter", s.postAdmin)

	v1.GET("/version", s.getVersion)
	v1.GET("/config", s.getConfig)
	v1.GET("/chains", s.getChains)
	v1.GET("/chains/:id", s.getChain)
	v1.GET("/tx/:hash", s.getTxByHash)
	v1.GET("/pending", s.getPending)
	v1.GET("/sagas/:id", s.getSaga)
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting API server", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("Stopping API server")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("Handled request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"caller", c.GetHeader(HeaderCaller),
			"took", time.Since(start),
		)
	}
}
