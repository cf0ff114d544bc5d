package checkpoints

import (
	"fmt"
	"sort"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Checkpoint identifies a block the maintainers assert is on the canonical chain.
type Checkpoint struct {
	Height int32
	Hash   *chainhash.Hash
}

// Registry is the immutable checkpoint data of one network. Checkpoints are
// ordered from oldest to newest and the three statistics describe the newest one.
type Registry struct {
	Name                       string
	checkpoints                []Checkpoint
	LastCheckpointTime         int64
	TransactionsLastCheckpoint int64
	TransactionsPerDay         float64
}

type InvalidRegistryErr struct {
	Err error
}

func (err InvalidRegistryErr) Error() string {
	return err.Err.Error()
}

func (err InvalidRegistryErr) Unwrap() error {
	return err.Err
}

// NewRegistry copies the passed checkpoints and rejects tables that are not
// strictly ascending by height or that carry impossible statistics.
func NewRegistry(name string, cps []Checkpoint, lastTime, lastTxs int64, txsPerDay float64) (*Registry, error) {
	for i, cp := range cps {
		if cp.Height < 0 {
			return nil, InvalidRegistryErr{fmt.Errorf("registry %s: negative height %d at index %d", name, cp.Height, i)}
		}
		if cp.Hash == nil {
			return nil, InvalidRegistryErr{fmt.Errorf("registry %s: nil hash at height %d", name, cp.Height)}
		}
		if i > 0 && cps[i-1].Height >= cp.Height {
			return nil, InvalidRegistryErr{fmt.Errorf("registry %s: height %d follows %d, heights must be unique and ascending",
				name, cp.Height, cps[i-1].Height)}
		}
	}
	if lastTxs < 0 {
		return nil, InvalidRegistryErr{fmt.Errorf("registry %s: transactions at last checkpoint must be >= 0, yours %d", name, lastTxs)}
	}
	if !(txsPerDay > 0) {
		return nil, InvalidRegistryErr{fmt.Errorf("registry %s: transactions per day must be > 0, yours %f", name, txsPerDay)}
	}

	r := &Registry{
		Name:                       name,
		checkpoints:                make([]Checkpoint, len(cps)),
		LastCheckpointTime:         lastTime,
		TransactionsLastCheckpoint: lastTxs,
		TransactionsPerDay:         txsPerDay,
	}
	for i, cp := range cps {
		h := *cp.Hash
		r.checkpoints[i] = Checkpoint{Height: cp.Height, Hash: &h}
	}
	return r, nil
}

func mustRegistry(name string, cps []Checkpoint, lastTime, lastTxs int64, txsPerDay float64) *Registry {
	r, err := NewRegistry(name, cps, lastTime, lastTxs, txsPerDay)
	if err != nil {
		panic(err)
	}
	return r
}

// newHashFromStr parses a display-order hex hash, with or without a 0x prefix.
// It panics on malformed input so it may only be used for compiled-in tables.
func newHashFromStr(hexStr string) *chainhash.Hash {
	hash, err := chainhash.NewHashFromStr(strings.TrimPrefix(hexStr, "0x"))
	if err != nil {
		panic(err)
	}
	return hash
}

func (r *Registry) Len() int {
	return len(r.checkpoints)
}

// Lookup returns the checkpoint hash at height, if there is one.
func (r *Registry) Lookup(height int32) (*chainhash.Hash, bool) {
	i := sort.Search(len(r.checkpoints), func(i int) bool {
		return r.checkpoints[i].Height >= height
	})
	if i < len(r.checkpoints) && r.checkpoints[i].Height == height {
		return r.checkpoints[i].Hash, true
	}
	return nil, false
}

// Latest returns the checkpoint with the greatest height. ok is false for an
// empty registry.
func (r *Registry) Latest() (cp Checkpoint, ok bool) {
	if len(r.checkpoints) == 0 {
		return Checkpoint{}, false
	}
	return r.checkpoints[len(r.checkpoints)-1], true
}

// Checkpoints returns a copy of the table, oldest first.
func (r *Registry) Checkpoints() []Checkpoint {
	res := make([]Checkpoint, len(r.checkpoints))
	copy(res, r.checkpoints)
	return res
}

// Descend calls fn for every checkpoint from the highest height down until fn
// returns false.
func (r *Registry) Descend(fn func(cp Checkpoint) bool) {
	for i := len(r.checkpoints) - 1; i >= 0; i-- {
		if !fn(r.checkpoints[i]) {
			return
		}
	}
}
