package observer

import (
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	checkpoints "github.com/evdatsion/axf-checkpoints"
	"github.com/evdatsion/axf-checkpoints/blockindex"
	"github.com/evdatsion/axf-checkpoints/db"
	"github.com/evdatsion/axf-checkpoints/log"
	"github.com/evdatsion/axf-checkpoints/metrics"
	"github.com/evdatsion/axf-checkpoints/utils"
)

type AuditorConfig struct {
	MaxRetries int `json:"max_retries"`
}

// Auditor compares a running node's chain against the compiled-in checkpoints
// and mirrors the checkpoint blocks into a local block index.
type Auditor struct {
	cli     *utils.RestCli
	svc     *checkpoints.Service
	index   *db.IndexDB
	metrics *metrics.Metrics
	conf    *AuditorConfig
}

// NewAuditor wires the collaborators. index and m may be nil when the caller
// only audits.
func NewAuditor(conf *AuditorConfig, cli *utils.RestCli, svc *checkpoints.Service, index *db.IndexDB, m *metrics.Metrics) *Auditor {
	if conf == nil {
		conf = &AuditorConfig{}
	}
	return &Auditor{
		cli:     cli,
		svc:     svc,
		index:   index,
		metrics: m,
		conf:    conf,
	}
}

type Mismatch struct {
	Height int32
	Got    *chainhash.Hash
	Want   *chainhash.Hash
}

type AuditReport struct {
	NodeHeight int32
	Matched    []int32
	Mismatched []Mismatch
	// Skipped lists checkpoints above the node's height.
	Skipped []int32
}

func (r *AuditReport) OK() bool {
	return len(r.Mismatched) == 0
}

func (r *AuditReport) String() string {
	return fmt.Sprintf("node height %d: %d matched, %d mismatched, %d skipped",
		r.NodeHeight, len(r.Matched), len(r.Mismatched), len(r.Skipped))
}

// retry runs fn until it succeeds, fails with a non-retryable error or runs
// out of attempts.
func (a *Auditor) retry(what string, fn func() error) error {
	var err error
	for i := 0; i <= a.conf.MaxRetries; i++ {
		if err = fn(); err == nil || !utils.Retryable(err) {
			return err
		}
		log.Errorf("[Auditor] %s failed, retry after %d sec: %v", what, utils.SleepTime, err)
		if i < a.conf.MaxRetries {
			utils.Wait(time.Second * utils.SleepTime)
		}
	}
	return err
}

func (a *Auditor) nodeHeight() (int32, error) {
	var count int32
	err := a.retry("getblockcount", func() (err error) {
		count, err = a.cli.GetBlockCount()
		return
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get node height: %v", err)
	}
	if a.metrics != nil {
		a.metrics.SetNodeHeight(count)
	}
	return count, nil
}

func (a *Auditor) nodeHash(height int32) (*chainhash.Hash, error) {
	var hash *chainhash.Hash
	err := a.retry(fmt.Sprintf("getblockhash %d", height), func() (err error) {
		hash, err = a.cli.GetBlockHash(height)
		return
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get hash at height %d: %v", height, err)
	}
	return hash, nil
}

func (a *Auditor) record(result string) {
	if a.metrics != nil {
		a.metrics.IncValidation(result)
	}
}

// Audit validates the node's block hash at every checkpoint height it has reached.
func (a *Auditor) Audit() (*AuditReport, error) {
	top, err := a.nodeHeight()
	if err != nil {
		return nil, err
	}
	report := &AuditReport{NodeHeight: top}
	for _, cp := range a.svc.Registry().Checkpoints() {
		if cp.Height > top {
			report.Skipped = append(report.Skipped, cp.Height)
			a.record(metrics.ResultSkipped)
			continue
		}
		hash, err := a.nodeHash(cp.Height)
		if err != nil {
			return nil, err
		}
		if a.svc.Validate(cp.Height, hash) {
			report.Matched = append(report.Matched, cp.Height)
			a.record(metrics.ResultMatched)
			continue
		}
		log.Warnf("[Auditor] node block %s at height %d does not match checkpoint %s", hash, cp.Height, cp.Hash)
		report.Mismatched = append(report.Mismatched, Mismatch{Height: cp.Height, Got: hash, Want: cp.Hash})
		a.record(metrics.ResultMismatched)
	}
	log.Infof("[Auditor] audit done, %s", report)
	return report, nil
}

// IndexCheckpoints stores an index entry for every checkpoint block the node
// has and whose hash passes validation. It returns the number of entries written.
func (a *Auditor) IndexCheckpoints() (int, error) {
	if a.index == nil {
		return 0, fmt.Errorf("no index db configured")
	}
	top, err := a.nodeHeight()
	if err != nil {
		return 0, err
	}

	count := 0
	for _, cp := range a.svc.Registry().Checkpoints() {
		if cp.Height > top {
			break
		}
		hash, err := a.nodeHash(cp.Height)
		if err != nil {
			return count, err
		}
		if !a.svc.Validate(cp.Height, hash) {
			log.Warnf("[Auditor] refuse to index block %s at height %d, checkpoint is %s", hash, cp.Height, cp.Hash)
			continue
		}
		entry, err := a.fetchEntry(cp.Height, hash)
		if err != nil {
			return count, err
		}
		if err := a.index.PutEntry(entry); err != nil {
			return count, fmt.Errorf("failed to store entry %s: %v", entry, err)
		}
		log.Debugf("[Auditor] indexed checkpoint block %s", entry)
		count++
	}

	if _, err := a.Status(); err != nil {
		log.Errorf("[Auditor] failed to refresh status: %v", err)
	}
	return count, nil
}

func (a *Auditor) fetchEntry(height int32, hash *chainhash.Hash) (*blockindex.Entry, error) {
	var entry *blockindex.Entry
	err := a.retry(fmt.Sprintf("header %s", hash), func() error {
		header, err := a.cli.GetHeader(hash)
		if err != nil {
			return err
		}
		stats, err := a.cli.GetChainTxStats(hash)
		if err != nil {
			return err
		}
		entry = blockindex.NewEntryFromHeader(height, header, stats.TxCount)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch block %s: %v", hash, err)
	}
	if !entry.Hash.IsEqual(hash) {
		return nil, fmt.Errorf("node returned header %s for block %s", entry.Hash.String(), hash)
	}
	return entry, nil
}

type Status struct {
	Tip            *blockindex.Entry
	LastCheckpoint *blockindex.Entry
	Progress       float64
	TotalBlocks    int32
}

// Status answers the checkpoint queries against the local index.
func (a *Auditor) Status() (*Status, error) {
	if a.index == nil {
		return nil, fmt.Errorf("no index db configured")
	}
	st := &Status{TotalBlocks: a.svc.TotalBlocksEstimate()}
	tip, err := a.index.Tip()
	switch {
	case err == db.ErrNotFound:
	case err != nil:
		return nil, err
	default:
		st.Tip = tip
	}
	st.Progress = a.svc.GuessVerificationProgress(st.Tip)
	st.LastCheckpoint = a.svc.LastCheckpoint(a.index)

	if a.metrics != nil {
		a.metrics.SetVerificationProgress(st.Progress)
		if st.LastCheckpoint != nil {
			a.metrics.SetLastCheckpointHeight(st.LastCheckpoint.Height)
		}
	}
	return st, nil
}

// Entries lists the stored index entries ordered by height.
func (a *Auditor) Entries() (blockindex.Entries, error) {
	if a.index == nil {
		return nil, fmt.Errorf("no index db configured")
	}
	all, err := a.index.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to load index: %v", err)
	}
	return all.Entries(), nil
}
