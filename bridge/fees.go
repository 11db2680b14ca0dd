package bridge

import (
	"github.com/strangelove-ventures/swap-bridge/store"
	"github.com/strangelove-ventures/swap-bridge/types"
)

// feeRateFor picks the fee rate of the source blockchain, falling back to the
// default rate when the source is unknown or has no rate registered.
func feeRateFor(tx *store.Tx, settings types.Settings, source *uint64) (uint32, error) {
	if source == nil {
		return settings.DefaultFeeRate, nil
	}
	rate, ok, err := tx.FeeRate(*source)
	if err != nil {
		return 0, internalError(err)
	}
	if !ok {
		return settings.DefaultFeeRate, nil
	}
	return rate, nil
}
