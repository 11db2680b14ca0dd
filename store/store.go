package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"

	"cosmossdk.io/math"
	dbm "github.com/cometbft/cometbft-db"

	"github.com/strangelove-ventures/swap-bridge/types"
)

var (
	keySettings     = []byte("settings")
	prefixRelay     = []byte("relay/")
	prefixFeeRate   = []byte("fee/")
	prefixEnabled   = []byte("enabled/")
	prefixProcessed = []byte("processed/")
	prefixPending   = []byte("pending/")

	present = []byte{1}
)

// Store persists the bridge configuration, the target chain registry, the
// processed transaction set and the settlements awaiting reconciliation.
type Store struct {
	db dbm.DB
}

func New(db dbm.DB) *Store {
	return &Store{db: db}
}

// Open opens (or creates) the named backend under dir. The memdb backend ignores dir.
func Open(backend, dir string) (*Store, error) {
	if backend == "" || backend == string(dbm.MemDBBackend) {
		return New(dbm.NewMemDB()), nil
	}
	db, err := dbm.NewDB("bridge", dbm.BackendType(backend), dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store in %s: %w", backend, dir, err)
	}
	return New(db), nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Begin starts a write overlay. Nothing reaches the database until Commit.
func (s *Store) Begin() *Tx {
	return &Tx{db: s.db, pending: map[string][]byte{}}
}

// Tx buffers writes over the database. Reads see the buffered writes.
type Tx struct {
	db      dbm.DB
	pending map[string][]byte // nil value = delete
	order   []string
}

func (tx *Tx) get(key []byte) ([]byte, error) {
	if v, ok := tx.pending[string(key)]; ok {
		return v, nil
	}
	return tx.db.Get(key)
}

func (tx *Tx) set(key, value []byte) {
	k := string(key)
	if _, ok := tx.pending[k]; !ok {
		tx.order = append(tx.order, k)
	}
	tx.pending[k] = value
}

func (tx *Tx) delete(key []byte) {
	tx.set(key, nil)
}

// Commit writes every buffered change in a single batch.
func (tx *Tx) Commit() error {
	if len(tx.order) == 0 {
		return nil
	}
	batch := tx.db.NewBatch()
	defer batch.Close()

	for _, k := range tx.order {
		v := tx.pending[k]
		var err error
		if v == nil {
			err = batch.Delete([]byte(k))
		} else {
			err = batch.Set([]byte(k), v)
		}
		if err != nil {
			return fmt.Errorf("failed to stage %q: %w", k, err)
		}
	}
	if err := batch.WriteSync(); err != nil {
		return fmt.Errorf("failed to write batch: %w", err)
	}
	tx.pending = map[string][]byte{}
	tx.order = nil
	return nil
}

// Settings returns the settings record. ok is false before Init.
func (tx *Tx) Settings() (settings types.Settings, ok bool, err error) {
	bz, err := tx.get(keySettings)
	if err != nil {
		return settings, false, err
	}
	if bz == nil {
		return settings, false, nil
	}
	if err := json.Unmarshal(bz, &settings); err != nil {
		return settings, false, fmt.Errorf("corrupt settings record: %w", err)
	}
	return settings, true, nil
}

func (tx *Tx) SetSettings(settings types.Settings) error {
	bz, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	tx.set(keySettings, bz)
	return nil
}

func (tx *Tx) RelayAddress(chain uint64) (string, bool, error) {
	bz, err := tx.get(chainKey(prefixRelay, chain))
	if err != nil || bz == nil {
		return "", false, err
	}
	return string(bz), true, nil
}

func (tx *Tx) SetRelayAddress(chain uint64, address string) {
	tx.set(chainKey(prefixRelay, chain), []byte(address))
}

func (tx *Tx) FeeRate(chain uint64) (uint32, bool, error) {
	bz, err := tx.get(chainKey(prefixFeeRate, chain))
	if err != nil || bz == nil {
		return 0, false, err
	}
	if len(bz) != 4 {
		return 0, false, fmt.Errorf("corrupt fee rate for chain %d", chain)
	}
	return binary.BigEndian.Uint32(bz), true, nil
}

func (tx *Tx) SetFeeRate(chain uint64, rate uint32) {
	bz := make([]byte, 4)
	binary.BigEndian.PutUint32(bz, rate)
	tx.set(chainKey(prefixFeeRate, chain), bz)
}

func (tx *Tx) IsEnabled(chain uint64) (bool, error) {
	bz, err := tx.get(chainKey(prefixEnabled, chain))
	return bz != nil, err
}

func (tx *Tx) SetEnabled(chain uint64, enabled bool) {
	if enabled {
		tx.set(chainKey(prefixEnabled, chain), present)
		return
	}
	tx.delete(chainKey(prefixEnabled, chain))
}

// EnabledChains lists enabled chain ids in ascending order.
func (tx *Tx) EnabledChains() ([]uint64, error) {
	keys, err := tx.keys(prefixEnabled)
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, binary.BigEndian.Uint64([]byte(k[len(prefixEnabled):])))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Chain assembles the registry entry of one chain.
func (tx *Tx) Chain(chain uint64) (types.ChainEntry, error) {
	entry := types.ChainEntry{ID: chain}
	var err error
	if entry.RelayAddress, _, err = tx.RelayAddress(chain); err != nil {
		return entry, err
	}
	if entry.FeeRate, entry.HasFeeRate, err = tx.FeeRate(chain); err != nil {
		return entry, err
	}
	if entry.Enabled, err = tx.IsEnabled(chain); err != nil {
		return entry, err
	}
	return entry, nil
}

func (tx *Tx) IsProcessed(hash string) (bool, error) {
	bz, err := tx.get(append(append([]byte{}, prefixProcessed...), hash...))
	return bz != nil, err
}

// MarkProcessed records hash as settled. There is no way to unmark a hash.
func (tx *Tx) MarkProcessed(hash string) {
	tx.set(append(append([]byte{}, prefixProcessed...), hash...), present)
}

// PendingFee returns the fee held for a settlement whose payout outcome is
// unknown. ok is false when hash is not awaiting reconciliation.
func (tx *Tx) PendingFee(hash string) (fee math.Uint, ok bool, err error) {
	bz, err := tx.get(append(append([]byte{}, prefixPending...), hash...))
	if err != nil || bz == nil {
		return math.ZeroUint(), false, err
	}
	if err := fee.Unmarshal(bz); err != nil {
		return math.ZeroUint(), false, fmt.Errorf("failed to decode pending fee of %s: %w", hash, err)
	}
	return fee, true, nil
}

// MarkPending blocks hash until the outcome of its payout is reconciled.
func (tx *Tx) MarkPending(hash string, fee math.Uint) error {
	bz, err := fee.Marshal()
	if err != nil {
		return err
	}
	tx.set(append(append([]byte{}, prefixPending...), hash...), bz)
	return nil
}

func (tx *Tx) ClearPending(hash string) {
	tx.delete(append(append([]byte{}, prefixPending...), hash...))
}

// PendingHashes lists every settlement awaiting reconciliation.
func (tx *Tx) PendingHashes() ([]string, error) {
	keys, err := tx.keys(prefixPending)
	if err != nil {
		return nil, err
	}
	hashes := make([]string, 0, len(keys))
	for _, k := range keys {
		hashes = append(hashes, k[len(prefixPending):])
	}
	sort.Strings(hashes)
	return hashes, nil
}

// keys returns the live keys under prefix, merging buffered writes.
func (tx *Tx) keys(prefix []byte) ([]string, error) {
	it, err := tx.db.Iterator(prefix, prefixEnd(prefix))
	if err != nil {
		return nil, err
	}
	defer it.Close()

	live := map[string]bool{}
	for ; it.Valid(); it.Next() {
		live[string(it.Key())] = true
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	for _, k := range tx.order {
		if len(k) < len(prefix) || k[:len(prefix)] != string(prefix) {
			continue
		}
		live[k] = tx.pending[k] != nil
	}

	out := make([]string, 0, len(live))
	for k, ok := range live {
		if ok {
			out = append(out, k)
		}
	}
	return out, nil
}

func chainKey(prefix []byte, chain uint64) []byte {
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], chain)
	return key
}

func prefixEnd(prefix []byte) []byte {
	end := append([]byte{}, prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
