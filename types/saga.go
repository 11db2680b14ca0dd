package types

import (
	"fmt"
	"time"

	"cosmossdk.io/math"
)

type Direction string

const (
	Inbound  Direction = "inbound"
	Outbound Direction = "outbound"
)

const (
	Received         string = "received"
	RoutedToSwap     string = "routed_to_swap"
	SwapSucceeded    string = "swap_succeeded"
	WithdrawnOutward string = "withdrawn_outward"
	SwapFailed       string = "swap_failed"
	Refunded         string = "refunded"
	Forwarded        string = "forwarded"
	Settled          string = "settled"
	Failed           string = "failed"
	Stalled          string = "stalled"
)

// transitions lists the statuses reachable from each status. Terminal statuses
// have no entry.
//
// A stalled inbound saga is resolved by reconciliation, so stalled is only
// terminal for outbound sagas.
var transitions = map[string][]string{
	Received:      {RoutedToSwap, Forwarded, Settled, Failed, Stalled},
	RoutedToSwap:  {SwapSucceeded, SwapFailed, Stalled},
	SwapSucceeded: {WithdrawnOutward, Stalled},
	SwapFailed:    {Refunded, Stalled},
	Stalled:       {Settled, Failed},
}

// SagaState tracks one inbound settlement or outbound swap from entry to its
// terminal status.
type SagaState struct {
	ID        string    `json:"id"`
	Direction Direction `json:"direction"`
	Status    string    `json:"status"`

	// Sender is the depositor for outbound sagas and the relayer for inbound ones.
	Sender string    `json:"sender"`
	Token  string    `json:"token"`
	Amount math.Uint `json:"amount"`

	// inbound
	TxHash     string     `json:"original_tx_hash,omitempty"`
	NewAddress string     `json:"new_address,omitempty"`
	AfterFee   *math.Uint `json:"amount_after_fee,omitempty"`
	Fee        *math.Uint `json:"fee,omitempty"`

	// outbound
	MinAmountOut *math.Uint    `json:"min_amount_out,omitempty"`
	Target       *SwapToParams `json:"target,omitempty"`

	Err     string    `json:"error,omitempty"`
	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`
}

// Advance moves the saga to status, rejecting transitions the state machine does not allow.
func (s *SagaState) Advance(status string) error {
	for _, next := range transitions[s.Status] {
		if next == status {
			s.Status = status
			s.Updated = time.Now()
			return nil
		}
	}
	return fmt.Errorf("saga %s: illegal transition %s -> %s", s.ID, s.Status, status)
}

// Terminal reports whether no further transition is possible.
func (s *SagaState) Terminal() bool {
	if s.Status == Stalled {
		return s.Direction == Outbound
	}
	return len(transitions[s.Status]) == 0
}
