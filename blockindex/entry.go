package blockindex

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Entry is the node's per-block bookkeeping record: height, header time,
// number of transactions in the chain up to and including this block, and
// the block hash.
type Entry struct {
	Height    int32
	Timestamp int64
	ChainTx   int64
	Hash      chainhash.Hash
}

func NewEntryFromHeader(height int32, header *wire.BlockHeader, chainTx int64) *Entry {
	return &Entry{
		Height:    height,
		Timestamp: header.Timestamp.Unix(),
		ChainTx:   chainTx,
		Hash:      header.BlockHash(),
	}
}

func (e *Entry) String() string {
	return fmt.Sprintf("%s:%d", e.Hash.String(), e.Height)
}

const entrySize = 4 + 8 + 8 + chainhash.HashSize

func (e *Entry) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(entrySize)

	if err := binary.Write(&buf, binary.BigEndian, e.Height); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, e.Timestamp); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, e.ChainTx); err != nil {
		return nil, err
	}
	buf.Write(e.Hash[:])

	return buf.Bytes(), nil
}

func (e *Entry) Deserialize(buf []byte) error {
	if len(buf) != entrySize {
		return fmt.Errorf("wrong entry length %d, expected %d", len(buf), entrySize)
	}
	r := bytes.NewReader(buf)
	if err := binary.Read(r, binary.BigEndian, &e.Height); err != nil {
		return err
	}
	if err := binary.Read(r, binary.BigEndian, &e.Timestamp); err != nil {
		return err
	}
	if err := binary.Read(r, binary.BigEndian, &e.ChainTx); err != nil {
		return err
	}
	hash := make([]byte, chainhash.HashSize)
	if _, err := r.Read(hash); err != nil {
		return err
	}
	return e.Hash.SetBytes(hash)
}

type Entries []*Entry

func (es Entries) Len() int {
	return len(es)
}

func (es Entries) Less(i, j int) bool {
	return es[i].Height < es[j].Height
}

func (es Entries) Swap(i, j int) {
	es[i], es[j] = es[j], es[i]
}

// Sorted sorts the entries by height in place and returns them.
func (es Entries) Sorted() Entries {
	sort.Sort(es)
	return es
}

// Lookup is a hash keyed view of the block index. Implementations own their
// concurrency discipline; readers must not keep returned entries past the call
// that obtained them unless the implementation says otherwise.
type Lookup interface {
	LookupEntry(hash chainhash.Hash) (*Entry, bool)
}

// Map adapts a plain hash->entry table to Lookup.
type Map map[chainhash.Hash]*Entry

func (m Map) LookupEntry(hash chainhash.Hash) (*Entry, bool) {
	e, ok := m[hash]
	return e, ok
}

// Add indexes e by its hash.
func (m Map) Add(e *Entry) {
	m[e.Hash] = e
}

// Entries returns the non-nil entries of m ordered by height.
func (m Map) Entries() Entries {
	es := make(Entries, 0, len(m))
	for _, e := range m {
		if e != nil {
			es = append(es, e)
		}
	}
	return es.Sorted()
}
