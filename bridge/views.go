package bridge

import (
	errorsmod "cosmossdk.io/errors"

	"github.com/strangelove-ventures/swap-bridge/types"
)

// Views read committed state directly and never wait on the exclusive loop.

func (b *Bridge) GetVersion() int {
	return Version
}

// Settings returns the committed settings record.
func (b *Bridge) Settings() (types.Settings, error) {
	return b.loadSettings(b.store.Begin())
}

func (b *Bridge) IsRunning() (bool, error) {
	s, err := b.Settings()
	return s.Running, err
}

// RelayAddress returns the relay address registered for blockchain id.
func (b *Bridge) RelayAddress(id uint64) (string, error) {
	addr, ok, err := b.store.Begin().RelayAddress(id)
	if err != nil {
		return "", internalError(err)
	}
	if !ok {
		return "", errorsmod.Wrapf(types.ErrChainNotFound, "no relay address for blockchain %d", id)
	}
	return addr, nil
}

// FeeRate returns the fee rate applied to settlements from blockchain id.
func (b *Bridge) FeeRate(id uint64) (uint32, error) {
	tx := b.store.Begin()
	settings, err := b.loadSettings(tx)
	if err != nil {
		return 0, err
	}
	return feeRateFor(tx, settings, &id)
}

func (b *Bridge) Chain(id uint64) (types.ChainEntry, error) {
	entry, err := b.store.Begin().Chain(id)
	if err != nil {
		return entry, internalError(err)
	}
	return entry, nil
}

func (b *Bridge) EnabledChains() ([]uint64, error) {
	ids, err := b.store.Begin().EnabledChains()
	if err != nil {
		return nil, internalError(err)
	}
	return ids, nil
}

func (b *Bridge) IsEnabled(id uint64) (bool, error) {
	enabled, err := b.store.Begin().IsEnabled(id)
	if err != nil {
		return false, internalError(err)
	}
	return enabled, nil
}

func (b *Bridge) IsProcessed(hash string) (bool, error) {
	processed, err := b.store.Begin().IsProcessed(hash)
	if err != nil {
		return false, internalError(err)
	}
	return processed, nil
}
