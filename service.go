package checkpoints

import (
	"fmt"
	"math"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/evdatsion/axf-checkpoints/blockindex"
	"github.com/evdatsion/axf-checkpoints/log"
)

// How many times we expect transactions after the last checkpoint to be
// slower. This can't be accurate for every system: reindexing from a fast
// disk with a slow CPU can be up to 20, downloading over a slow network with
// a fast multicore CPU is close to 1.
const SigcheckVerificationFactor = 5.0

const secondsPerDay = 86400.0

type Config struct {
	Network Network
	// Enabled is the "checkpoints" switch. When false Validate accepts
	// everything, TotalBlocksEstimate is 0 and LastCheckpoint is nil.
	Enabled bool
}

func DefaultConfig() Config {
	return Config{Network: MainNet, Enabled: true}
}

// Service answers checkpoint queries against one network's registry. It holds
// no mutable state and is safe for concurrent use.
type Service struct {
	registry *Registry
	enabled  bool
	now      func() time.Time
}

type Option func(*Service)

// WithClock overrides the wall clock used by GuessVerificationProgress.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithRegistry replaces the network's compiled-in registry.
func WithRegistry(r *Registry) Option {
	return func(s *Service) {
		s.registry = r
	}
}

func NewService(conf Config, opts ...Option) *Service {
	s := &Service{
		registry: RegistryFor(conf.Network),
		enabled:  conf.Enabled,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Registry() *Registry {
	return s.registry
}

func (s *Service) Enabled() bool {
	return s.enabled
}

// Validate reports whether hash is acceptable at height. Heights without a
// checkpoint are unconstrained.
func (s *Service) Validate(height int32, hash *chainhash.Hash) bool {
	if !s.enabled {
		return true
	}
	want, ok := s.registry.Lookup(height)
	if !ok {
		return true
	}
	if hash == nil || !want.IsEqual(hash) {
		log.Debugf("[Checkpoints] block %v at height %d does not match checkpoint %s", hash, height, want)
		return false
	}
	return true
}

type CheckpointMismatchErr struct {
	Height int32
	Got    *chainhash.Hash
	Want   *chainhash.Hash
}

func (err CheckpointMismatchErr) Error() string {
	return fmt.Sprintf("block %v at height %d does not match checkpoint %s", err.Got, err.Height, err.Want)
}

// CheckBlock is Validate returning a CheckpointMismatchErr on rejection.
func (s *Service) CheckBlock(height int32, hash *chainhash.Hash) error {
	if s.Validate(height, hash) {
		return nil
	}
	want, _ := s.registry.Lookup(height)
	return CheckpointMismatchErr{Height: height, Got: hash, Want: want}
}

// TotalBlocksEstimate is the height of the last checkpoint, a rough
// denominator for sync progress display.
func (s *Service) TotalBlocksEstimate() int32 {
	if !s.enabled {
		return 0
	}
	cp, ok := s.registry.Latest()
	if !ok {
		return 0
	}
	return cp.Height
}

// GuessVerificationProgress estimates how far verification has got at entry.
// Work is 1 per transaction up to the last checkpoint and
// SigcheckVerificationFactor per transaction after it. The result is in [0, 1];
// a degenerate zero total yields 0.
func (s *Service) GuessVerificationProgress(entry *blockindex.Entry) float64 {
	if entry == nil {
		return 0.0
	}

	now := s.now().Unix()
	r := s.registry

	var workBefore, workAfter float64
	chainTx := float64(entry.ChainTx)
	lastTxs := float64(r.TransactionsLastCheckpoint)
	if entry.ChainTx <= r.TransactionsLastCheckpoint {
		cheapBefore := chainTx
		cheapAfter := lastTxs - chainTx
		expensiveAfter := float64(now-r.LastCheckpointTime) / secondsPerDay * r.TransactionsPerDay
		workBefore = cheapBefore
		workAfter = cheapAfter + expensiveAfter*SigcheckVerificationFactor
	} else {
		cheapBefore := lastTxs
		expensiveBefore := chainTx - lastTxs
		expensiveAfter := float64(now-entry.Timestamp) / secondsPerDay * r.TransactionsPerDay
		workBefore = cheapBefore + expensiveBefore*SigcheckVerificationFactor
		workAfter = expensiveAfter * SigcheckVerificationFactor
	}

	total := workBefore + workAfter
	if !(total > 0) || math.IsInf(total, 0) {
		return 0.0
	}
	return math.Max(0, math.Min(1, workBefore/total))
}

// LastCheckpoint returns the index entry of the highest checkpoint present in
// index, or nil if none is known yet. A hash present with a nil entry stops the
// scan and yields nil.
func (s *Service) LastCheckpoint(index blockindex.Lookup) *blockindex.Entry {
	if !s.enabled || index == nil {
		return nil
	}
	var found *blockindex.Entry
	s.registry.Descend(func(cp Checkpoint) bool {
		if e, ok := index.LookupEntry(*cp.Hash); ok {
			found = e
			return false
		}
		return true
	})
	return found
}
