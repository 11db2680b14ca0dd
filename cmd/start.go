package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/strangelove-ventures/swap-bridge/api"
	"github.com/strangelove-ventures/swap-bridge/bridge"
	"github.com/strangelove-ventures/swap-bridge/ledger"
	"github.com/strangelove-ventures/swap-bridge/metrics"
	"github.com/strangelove-ventures/swap-bridge/mock"
	"github.com/strangelove-ventures/swap-bridge/router"
	"github.com/strangelove-ventures/swap-bridge/scheduler"
	"github.com/strangelove-ventures/swap-bridge/store"
	"github.com/strangelove-ventures/swap-bridge/types"
)

func startCmd(a *AppState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the bridge service",
		Long:  `Start the bridge service: settlement, deposit and admin entry points over HTTP, backed by the configured token ledger and DEX router.`,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			a.InitAppState()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			port, err := cmd.Flags().GetInt16(flagMetricsPort)
			if err != nil {
				return fmt.Errorf("invalid port: %w", err)
			}
			m := metrics.InitPromMetrics(a.Logger, port)

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			svc, err := NewService(ctx, a, m)
			if err != nil {
				a.Logger.Error("Unable to start bridge", "err", err)
				return err
			}
			defer svc.Close()

			return svc.Run(ctx, a.Config.Api.ListenAddr)
		},
	}
	return cmd
}

// Service is a fully wired bridge with its HTTP surface.
type Service struct {
	Bridge *bridge.Bridge
	API    *api.Server

	// Ledger is set in memory mode.
	Ledger *mock.Ledger

	runtime   *scheduler.Runtime
	retention time.Duration
	closers   []func() error
}

// NewService opens the store, connects the collaborators and initializes the
// bridge from the genesis section of the config. The exclusive loop admits new
// entries until ctx is done and then drains the chains already issued.
func NewService(ctx context.Context, a *AppState, m *metrics.PromMetrics) (*Service, error) {
	cfg := a.Config
	logger := a.Logger

	st, err := store.Open(cfg.Storage.Backend, cfg.Storage.Dir)
	if err != nil {
		return nil, err
	}
	svc := &Service{retention: cfg.Storage.Retention(), closers: []func() error{st.Close}}

	svc.runtime = scheduler.NewRuntime(logger, time.Duration(cfg.Collaborators.CallTimeout)*time.Second)
	go svc.runtime.Run(ctx)

	var (
		l    types.Ledger
		r    types.Router
		opts []api.Option
	)
	switch cfg.Collaborators.Mode {
	case types.CollaboratorsRPC:
		lc, err := ledger.Dial(ctx, cfg.Collaborators.LedgerRPC)
		if err != nil {
			svc.Close()
			return nil, err
		}
		rc, err := router.Dial(ctx, cfg.Collaborators.RouterRPC)
		if err != nil {
			lc.Close()
			svc.Close()
			return nil, err
		}
		svc.closers = append(svc.closers, closer(lc.Close), closer(rc.Close))
		l, r = lc, rc
		// deposits reach the bridge from the remote ledger through the hook
		opts = append(opts, api.WithDepositHook())
		logger.Info("Connected to collaborators", "ledger", cfg.Collaborators.LedgerRPC, "router", cfg.Collaborators.RouterRPC)
	default:
		ml, mr, err := memoryCollaborators(cfg.Collaborators, cfg.Bridge.Router)
		if err != nil {
			svc.Close()
			return nil, err
		}
		svc.Ledger = ml
		l, r = ml, mr
		logger.Info("Using in-process collaborators", "pools", len(cfg.Collaborators.Pools))
	}

	b := bridge.New(logger, st, l, r, svc.runtime, m)

	genesis, err := cfg.Bridge.Settings()
	if err != nil {
		svc.Close()
		return nil, err
	}
	written, err := b.Init(ctx, genesis, cfg.Entries())
	if err != nil {
		svc.Close()
		return nil, fmt.Errorf("failed to initialize bridge: %w", err)
	}
	settings, err := b.Settings()
	if err != nil {
		svc.Close()
		return nil, err
	}
	logger.Info("Bridge initialized", "genesis_written", written, "account", settings.Account, "blockchain_id", settings.ChainID, "running", settings.Running)

	if svc.Ledger != nil {
		svc.Ledger.Register(settings.Account, b)
	}

	srv, err := api.NewServer(logger, b, cfg.Api.TrustedProxies, opts...)
	if err != nil {
		svc.Close()
		return nil, err
	}
	svc.Bridge, svc.API = b, srv
	return svc, nil
}

// Run serves the API until ctx is done, then waits for the exclusive loop to
// drain every issued chain.
func (s *Service) Run(ctx context.Context, addr string) error {
	go s.pruneSagas(ctx)
	err := s.API.Run(ctx, addr)
	<-s.runtime.Stopped()
	return err
}

func (s *Service) pruneSagas(ctx context.Context) {
	ticker := time.NewTicker(s.retention / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Bridge.PruneSagas(s.retention)
		}
	}
}

func (s *Service) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}

func closer(fn func()) func() error {
	return func() error {
		fn()
		return nil
	}
}

// memoryCollaborators builds the in-process ledger and router and mints the
// genesis balances.
func memoryCollaborators(cc types.CollaboratorsConfig, routerAccount string) (*mock.Ledger, *mock.Router, error) {
	l := mock.NewLedger()
	r := mock.NewRouter(l, routerAccount)

	for id, pool := range cc.Pools {
		r.AddPool(id, mock.Pool{TokenIn: pool.TokenIn, TokenOut: pool.TokenOut, Num: pool.Num, Den: pool.Den})
	}
	for token, balances := range cc.Genesis {
		for account, amount := range balances {
			a, err := types.ParseAmount(amount)
			if err != nil {
				return nil, nil, fmt.Errorf("genesis balance of %s for %s: %w", token, account, err)
			}
			l.Mint(token, account, a)
		}
	}
	return l, r, nil
}
