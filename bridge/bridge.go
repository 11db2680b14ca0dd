package bridge

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/log"
	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/strangelove-ventures/swap-bridge/metrics"
	"github.com/strangelove-ventures/swap-bridge/scheduler"
	"github.com/strangelove-ventures/swap-bridge/store"
	"github.com/strangelove-ventures/swap-bridge/types"
)

// Version is reported by the version view.
const Version = 1

var _ types.Receiver = (*Bridge)(nil)

// Bridge holds custody of the transfer token and orchestrates settlements
// from other blockchains and swaps toward them.
//
// Every entry point and continuation runs on the runtime's exclusive loop, so
// inFlight and collecting need no locking.
type Bridge struct {
	logger  log.Logger
	store   *store.Store
	ledger  types.Ledger
	router  types.Router
	rt      *scheduler.Runtime
	metrics *metrics.PromMetrics

	sagas *types.StateMap
	seq   *types.SequenceMap

	inFlight   map[string]struct{}
	collecting bool
	// pendingCollection is a fee payout whose outcome is unknown.
	pendingCollection *math.Uint
}

func New(
	logger log.Logger,
	st *store.Store,
	ledger types.Ledger,
	router types.Router,
	rt *scheduler.Runtime,
	m *metrics.PromMetrics,
) *Bridge {
	return &Bridge{
		logger:   logger.With("module", "bridge"),
		store:    st,
		ledger:   ledger,
		router:   router,
		rt:       rt,
		metrics:  m,
		sagas:    types.NewStateMap(),
		seq:      types.NewSequenceMap(),
		inFlight: map[string]struct{}{},
	}
}

// Init writes the genesis settings and registry unless the store already holds
// settings. It reports whether genesis was written.
func (b *Bridge) Init(ctx context.Context, settings types.Settings, chains []types.ChainEntry) (bool, error) {
	var written bool
	_, err := b.rt.Invoke(ctx, "init", func(context.Context) (*scheduler.Promise, error) {
		tx := b.store.Begin()
		if _, ok, err := tx.Settings(); err != nil || ok {
			return nil, err
		}

		if err := validateGenesis(settings, chains); err != nil {
			return nil, err
		}
		if err := tx.SetSettings(settings); err != nil {
			return nil, err
		}
		for _, c := range chains {
			if c.RelayAddress != "" {
				tx.SetRelayAddress(c.ID, c.RelayAddress)
			}
			if c.HasFeeRate {
				tx.SetFeeRate(c.ID, c.FeeRate)
			}
			tx.SetEnabled(c.ID, c.Enabled)
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		written = true
		return nil, nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to initialize bridge: %w", err)
	}

	if written {
		b.logger.Info("Initialized bridge", "chain_id", settings.ChainID, "transfer_token", settings.TransferToken, "chains", len(chains))
	} else {
		b.logger.Info("Bridge already initialized, keeping persisted settings")
	}
	b.refreshFeeGauge()
	return written, nil
}

func validateGenesis(settings types.Settings, chains []types.ChainEntry) error {
	for _, a := range []math.Uint{settings.MinAmount, settings.MaxAmount, settings.AccumulatedFee, settings.WithdrawnFee} {
		if err := types.CheckAmount(a); err != nil {
			return err
		}
	}
	if settings.MinAmount.GT(settings.MaxAmount) {
		return errorsmod.Wrapf(types.ErrInvalidBounds, "min %s > max %s", settings.MinAmount, settings.MaxAmount)
	}
	if settings.DefaultFeeRate >= types.FeeDenominator {
		return errorsmod.Wrapf(types.ErrInvalidFeeRate, "default fee rate %d", settings.DefaultFeeRate)
	}
	for _, c := range chains {
		if c.Enabled && c.ID == settings.ChainID {
			return errorsmod.Wrapf(types.ErrInvalidTarget, "blockchain %d is this blockchain", c.ID)
		}
		if c.HasFeeRate && c.FeeRate >= types.FeeDenominator {
			return errorsmod.Wrapf(types.ErrInvalidFeeRate, "blockchain %d fee rate %d", c.ID, c.FeeRate)
		}
	}
	return nil
}

// Saga returns a snapshot of a tracked saga.
func (b *Bridge) Saga(id string) (types.SagaState, bool) {
	return b.sagas.Load(id)
}

// SagasByTxHash returns every inbound saga started for an other-chain tx hash.
func (b *Bridge) SagasByTxHash(hash string) []types.SagaState {
	return b.sagas.FindByTxHash(hash)
}

func (b *Bridge) loadSettings(tx *store.Tx) (types.Settings, error) {
	settings, ok, err := tx.Settings()
	if err != nil {
		return settings, errorsmod.Wrap(types.ErrInternal, err.Error())
	}
	if !ok {
		return settings, errorsmod.Wrap(types.ErrInternal, "bridge is not initialized")
	}
	return settings, nil
}

func (b *Bridge) newSaga(dir types.Direction, sender, token string, amount math.Uint) types.SagaState {
	seq := make([]byte, 8)
	binary.BigEndian.PutUint64(seq, b.seq.Next(dir))
	id := crypto.Keccak256Hash([]byte(dir), []byte(sender), []byte(token), []byte(amount.String()), seq)

	now := time.Now()
	return types.SagaState{
		ID:        id.Hex(),
		Direction: dir,
		Status:    types.Received,
		Sender:    sender,
		Token:     token,
		Amount:    amount,
		Created:   now,
		Updated:   now,
	}
}

// advance moves a tracked saga to status, recording cause as its error.
func (b *Bridge) advance(id, status string, cause error) error {
	found, err := b.sagas.Update(id, func(s *types.SagaState) error {
		if err := s.Advance(status); err != nil {
			return err
		}
		if cause != nil {
			s.Err = cause.Error()
		}
		return nil
	})
	if err != nil {
		return errorsmod.Wrap(types.ErrInternal, err.Error())
	}
	if !found {
		return errorsmod.Wrapf(types.ErrInternal, "saga %s is not tracked", id)
	}
	return nil
}

func (b *Bridge) refreshFeeGauge() {
	if b.metrics == nil {
		return
	}
	settings, ok, err := b.store.Begin().Settings()
	if err != nil || !ok {
		return
	}
	f, _ := settings.WithdrawableFee().BigInt().Float64()
	b.metrics.SetWithdrawableFee(f)
}

func internalError(err error) error {
	return errorsmod.Wrap(types.ErrInternal, err.Error())
}
