package mock

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cosmossdk.io/math"

	"github.com/strangelove-ventures/swap-bridge/types"
)

var (
	ErrSlippage    = errors.New("swap output below minimum")
	ErrUnknownPool = errors.New("unknown pool")
)

var (
	_ types.Router   = (*Router)(nil)
	_ types.Receiver = (*Router)(nil)
)

// Pool converts TokenIn to TokenOut at a fixed Num/Den rate.
type Pool struct {
	TokenIn  string
	TokenOut string
	Num      uint64
	Den      uint64
}

// Router is an in-process DEX router holding per-account deposits in its
// ledger account.
type Router struct {
	ledger  *Ledger
	account string

	mu            sync.Mutex
	deposits      map[string]map[string]math.Uint // account -> token -> deposit
	pools         map[uint64]Pool
	failSwaps     error
	failWithdraws error
}

// NewRouter creates a router owning account on ledger and registers its transfer hook.
func NewRouter(ledger *Ledger, account string) *Router {
	r := &Router{
		ledger:   ledger,
		account:  account,
		deposits: map[string]map[string]math.Uint{},
		pools:    map[uint64]Pool{},
	}
	ledger.Register(account, r)
	return r
}

func (r *Router) AddPool(id uint64, pool Pool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pools[id] = pool
}

// FailSwaps makes every swap fail with err. A nil err clears it.
func (r *Router) FailSwaps(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failSwaps = err
}

// FailWithdraws makes every withdraw fail with err. A nil err clears it.
func (r *Router) FailWithdraws(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failWithdraws = err
}

func (r *Router) Deposit(account, token string) math.Uint {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.deposits[account][token]; ok {
		return d
	}
	return math.ZeroUint()
}

// OnTransfer credits a plain deposit, or runs an ExecuteSwap message and pays
// the output straight back to the sender.
func (r *Router) OnTransfer(ctx context.Context, token, sender string, amount math.Uint, msg string) (math.Uint, error) {
	if msg == "" {
		r.mu.Lock()
		r.credit(r.deposits, sender, token, amount)
		r.mu.Unlock()
		return math.ZeroUint(), nil
	}

	m, err := types.ParseExecuteSwap(msg)
	if err != nil {
		return math.ZeroUint(), err
	}
	if len(m.Actions) == 0 || m.Actions[0].TokenIn != token {
		return math.ZeroUint(), fmt.Errorf("swap must start with the deposited token %s", token)
	}

	r.mu.Lock()
	work := r.snapshot()
	r.credit(work, sender, token, amount)
	out, tokenOut, err := r.execute(work, sender, m.Actions)
	if err != nil {
		r.mu.Unlock()
		return math.ZeroUint(), err
	}
	if err := r.debit(work, sender, tokenOut, out); err != nil {
		r.mu.Unlock()
		return math.ZeroUint(), err
	}
	if err := r.ledger.Transfer(ctx, tokenOut, r.account, sender, out); err != nil {
		r.mu.Unlock()
		return math.ZeroUint(), err
	}
	r.deposits = work
	r.mu.Unlock()

	return math.ZeroUint(), nil
}

func (r *Router) Swap(ctx context.Context, account string, legs []types.SwapLeg) (math.Uint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	work := r.snapshot()
	out, _, err := r.execute(work, account, legs)
	if err != nil {
		return math.ZeroUint(), err
	}
	r.deposits = work
	return out, nil
}

func (r *Router) Withdraw(ctx context.Context, account, token string, amount math.Uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failWithdraws != nil {
		return r.failWithdraws
	}
	work := r.snapshot()
	if err := r.debit(work, account, token, amount); err != nil {
		return err
	}
	if err := r.ledger.Transfer(ctx, token, r.account, account, amount); err != nil {
		return err
	}
	r.deposits = work
	return nil
}

func (r *Router) execute(work map[string]map[string]math.Uint, account string, legs []types.SwapLeg) (math.Uint, string, error) {
	if r.failSwaps != nil {
		return math.Uint{}, "", r.failSwaps
	}
	if len(legs) == 0 {
		return math.Uint{}, "", errors.New("no swap actions")
	}

	var (
		prev     math.Uint
		tokenOut string
	)
	for i, leg := range legs {
		pool, ok := r.pools[leg.PoolID]
		if !ok {
			return math.Uint{}, "", fmt.Errorf("%w: %d", ErrUnknownPool, leg.PoolID)
		}
		if pool.TokenIn != leg.TokenIn || pool.TokenOut != leg.TokenOut {
			return math.Uint{}, "", fmt.Errorf("pool %d swaps %s for %s", leg.PoolID, pool.TokenIn, pool.TokenOut)
		}

		in := prev
		if leg.AmountIn != nil {
			in = *leg.AmountIn
		} else if i == 0 {
			return math.Uint{}, "", errors.New("first swap action needs amount_in")
		}

		if err := r.debit(work, account, leg.TokenIn, in); err != nil {
			return math.Uint{}, "", err
		}
		out := in.MulUint64(pool.Num).QuoUint64(pool.Den)
		if out.LT(leg.MinAmountOut) {
			return math.Uint{}, "", fmt.Errorf("%w: pool %d gives %s, want %s", ErrSlippage, leg.PoolID, out, leg.MinAmountOut)
		}
		r.credit(work, account, leg.TokenOut, out)
		prev, tokenOut = out, leg.TokenOut
	}
	return prev, tokenOut, nil
}

func (r *Router) snapshot() map[string]map[string]math.Uint {
	work := make(map[string]map[string]math.Uint, len(r.deposits))
	for account, tokens := range r.deposits {
		cp := make(map[string]math.Uint, len(tokens))
		for token, amount := range tokens {
			cp[token] = amount
		}
		work[account] = cp
	}
	return work
}

func (r *Router) credit(work map[string]map[string]math.Uint, account, token string, amount math.Uint) {
	tokens, ok := work[account]
	if !ok {
		tokens = map[string]math.Uint{}
		work[account] = tokens
	}
	if held, ok := tokens[token]; ok {
		tokens[token] = held.Add(amount)
		return
	}
	tokens[token] = amount
}

func (r *Router) debit(work map[string]map[string]math.Uint, account, token string, amount math.Uint) error {
	held, ok := work[account][token]
	if !ok || held.LT(amount) {
		return fmt.Errorf("%w: %s has %s of %s deposited, needs %s", ErrInsufficientBalance, account, held, token, amount)
	}
	work[account][token] = held.Sub(amount)
	return nil
}
