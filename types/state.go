package types

import (
	"sync"
	"time"
)

// StateMap wraps sync.Map with type safety
// maps saga id -> SagaState
type StateMap struct {
	Mu       sync.Mutex
	internal sync.Map
}

func NewStateMap() *StateMap {
	return &StateMap{
		Mu:       sync.Mutex{},
		internal: sync.Map{},
	}
}

// Load returns a snapshot of the saga. Changes to the snapshot are not stored.
func (sm *StateMap) Load(key string) (value SagaState, ok bool) {
	sm.Mu.Lock()
	defer sm.Mu.Unlock()

	internalResult, ok := sm.internal.Load(key)
	if !ok {
		return SagaState{}, ok
	}
	return *internalResult.(*SagaState), ok
}

func (sm *StateMap) Delete(key string) {
	sm.Mu.Lock()
	defer sm.Mu.Unlock()

	sm.internal.Delete(key)
}

// Store stores the saga under its id
func (sm *StateMap) Store(value SagaState) {
	sm.Mu.Lock()
	defer sm.Mu.Unlock()

	sm.internal.Store(value.ID, &value)
}

// Update applies fn to the stored saga under the lock. It returns false when
// no saga is stored under key.
func (sm *StateMap) Update(key string, fn func(*SagaState) error) (bool, error) {
	sm.Mu.Lock()
	defer sm.Mu.Unlock()

	internalResult, ok := sm.internal.Load(key)
	if !ok {
		return false, nil
	}
	next := *internalResult.(*SagaState)
	if err := fn(&next); err != nil {
		return true, err
	}
	sm.internal.Store(key, &next)
	return true, nil
}

// FindByTxHash returns every saga that settled or tried to settle hash.
func (sm *StateMap) FindByTxHash(hash string) []SagaState {
	sm.Mu.Lock()
	defer sm.Mu.Unlock()

	var found []SagaState
	sm.internal.Range(func(_, v any) bool {
		s := v.(*SagaState)
		if s.TxHash == hash {
			found = append(found, *s)
		}
		return true
	})
	return found
}

// Prune drops terminal sagas last updated before cutoff and returns how many
// were dropped. Sagas still in progress or awaiting reconciliation are kept.
func (sm *StateMap) Prune(cutoff time.Time) int {
	sm.Mu.Lock()
	defer sm.Mu.Unlock()

	pruned := 0
	sm.internal.Range(func(k, v any) bool {
		s := v.(*SagaState)
		if s.Terminal() && s.Updated.Before(cutoff) {
			sm.internal.Delete(k)
			pruned++
		}
		return true
	})
	return pruned
}
