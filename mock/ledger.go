package mock

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cosmossdk.io/math"

	"github.com/strangelove-ventures/swap-bridge/types"
)

var ErrInsufficientBalance = errors.New("insufficient balance")

var (
	_ types.Ledger = (*Ledger)(nil)
)

// Ledger is an in-process fungible token ledger.
type Ledger struct {
	mu        sync.Mutex
	balances  map[string]map[string]math.Uint // token -> account -> balance
	receivers map[string]types.Receiver
	failures  map[string]error // receiver account -> injected transfer failure
}

func NewLedger() *Ledger {
	return &Ledger{
		balances:  map[string]map[string]math.Uint{},
		receivers: map[string]types.Receiver{},
		failures:  map[string]error{},
	}
}

// Register installs the OnTransfer hook of account.
func (l *Ledger) Register(account string, r types.Receiver) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.receivers[account] = r
}

// FailTransfersTo makes every transfer to account fail with err. A nil err clears it.
func (l *Ledger) FailTransfersTo(account string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err == nil {
		delete(l.failures, account)
		return
	}
	l.failures[account] = err
}

func (l *Ledger) Mint(token, account string, amount math.Uint) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(token, account, amount)
}

func (l *Ledger) Balance(token, account string) math.Uint {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.balances[token][account]; ok {
		return b
	}
	return math.ZeroUint()
}

func (l *Ledger) Transfer(ctx context.Context, token, sender, receiver string, amount math.Uint) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.move(token, sender, receiver, amount)
}

func (l *Ledger) TransferCall(ctx context.Context, token, sender, receiver string, amount math.Uint, msg string) (math.Uint, error) {
	l.mu.Lock()
	if err := l.move(token, sender, receiver, amount); err != nil {
		l.mu.Unlock()
		return math.ZeroUint(), err
	}
	r, ok := l.receivers[receiver]
	l.mu.Unlock()

	if !ok {
		l.refund(token, receiver, sender, amount)
		return math.ZeroUint(), fmt.Errorf("account %s cannot receive transfer calls", receiver)
	}

	unused, err := r.OnTransfer(ctx, token, sender, amount, msg)
	if err != nil {
		l.refund(token, receiver, sender, amount)
		return math.ZeroUint(), fmt.Errorf("receiver %s rejected transfer: %w", receiver, err)
	}
	if unused.IsNil() {
		unused = math.ZeroUint()
	}
	if unused.GT(amount) {
		unused = amount
	}
	if !unused.IsZero() {
		l.refund(token, receiver, sender, unused)
	}
	return amount.Sub(unused), nil
}

// refund returns tokens, capped at what the receiver still holds.
func (l *Ledger) refund(token, from, to string, amount math.Uint) {
	l.mu.Lock()
	defer l.mu.Unlock()
	held := l.balances[token][from]
	if held.IsNil() {
		return
	}
	amount = math.MinUint(amount, held)
	if amount.IsZero() {
		return
	}
	l.balances[token][from] = held.Sub(amount)
	l.credit(token, to, amount)
}

func (l *Ledger) move(token, sender, receiver string, amount math.Uint) error {
	if amount.IsNil() || amount.IsZero() {
		return fmt.Errorf("transfer amount must be positive")
	}
	if sender == receiver {
		return fmt.Errorf("sender and receiver must differ")
	}
	if err, ok := l.failures[receiver]; ok {
		return err
	}
	held := l.balances[token][sender]
	if held.IsNil() || held.LT(amount) {
		return fmt.Errorf("%w: %s holds %s of %s, needs %s", ErrInsufficientBalance, sender, held, token, amount)
	}
	l.balances[token][sender] = held.Sub(amount)
	l.credit(token, receiver, amount)
	return nil
}

func (l *Ledger) credit(token, account string, amount math.Uint) {
	accounts, ok := l.balances[token]
	if !ok {
		accounts = map[string]math.Uint{}
		l.balances[token] = accounts
	}
	if held, ok := accounts[account]; ok {
		accounts[account] = held.Add(amount)
		return
	}
	accounts[account] = amount
}
