package db

import (
	"encoding/binary"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/boltdb/bolt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/evdatsion/axf-checkpoints/blockindex"
	"github.com/evdatsion/axf-checkpoints/log"
)

var (
	BKTEntries = []byte("entries")
	BKTHeights = []byte("heights")
	BKTTip     = []byte("tip")
	KEYTip     = []byte("tip")
)

var ErrNotFound = errors.New("entry not found")

// IndexDB is a bolt backed hash->entry table of block index entries, with a
// secondary height->hash bucket.
type IndexDB struct {
	rwlock *sync.RWMutex
	db     *bolt.DB
	dbPath string
}

func NewIndexDB(filePath string) (*IndexDB, error) {
	if !strings.Contains(filePath, ".bin") {
		filePath = path.Join(filePath, "index.bin")
	}

	db, err := bolt.Open(filePath, 0644, &bolt.Options{InitialMmapSize: 500000})
	if err != nil {
		return nil, err
	}

	if err = db.Update(func(btx *bolt.Tx) error {
		for _, name := range [][]byte{BKTEntries, BKTHeights, BKTTip} {
			if _, err := btx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &IndexDB{
		rwlock: new(sync.RWMutex),
		db:     db,
		dbPath: filePath,
	}, nil
}

func (r *IndexDB) Path() string {
	return r.dbPath
}

func (r *IndexDB) Close() error {
	return r.db.Close()
}

func heightKey(height int32) []byte {
	key := make([]byte, 4)
	binary.BigEndian.PutUint32(key, uint32(height))
	return key
}

// PutEntry stores e and moves the tip forward when e is higher than it.
func (r *IndexDB) PutEntry(e *blockindex.Entry) error {
	r.rwlock.Lock()
	defer r.rwlock.Unlock()

	val, err := e.Serialize()
	if err != nil {
		return err
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(BKTEntries).Put(e.Hash[:], val); err != nil {
			return err
		}
		if err := tx.Bucket(BKTHeights).Put(heightKey(e.Height), e.Hash[:]); err != nil {
			return err
		}
		tip := tx.Bucket(BKTTip)
		if old := tip.Get(KEYTip); old != nil && int32(binary.BigEndian.Uint32(old)) >= e.Height {
			return nil
		}
		return tip.Put(KEYTip, heightKey(e.Height))
	})
}

func (r *IndexDB) GetEntry(hash chainhash.Hash) (*blockindex.Entry, error) {
	r.rwlock.RLock()
	defer r.rwlock.RUnlock()

	var e *blockindex.Entry
	if err := r.db.View(func(tx *bolt.Tx) error {
		val := tx.Bucket(BKTEntries).Get(hash[:])
		if val == nil {
			return ErrNotFound
		}
		e = new(blockindex.Entry)
		return e.Deserialize(val)
	}); err != nil {
		return nil, err
	}
	return e, nil
}

// LookupEntry implements blockindex.Lookup. Read errors are logged and
// reported as a miss.
func (r *IndexDB) LookupEntry(hash chainhash.Hash) (*blockindex.Entry, bool) {
	e, err := r.GetEntry(hash)
	if err != nil {
		if err != ErrNotFound {
			log.Errorf("[IndexDB] failed to read entry %s: %v", hash.String(), err)
		}
		return nil, false
	}
	return e, true
}

func (r *IndexDB) GetEntryByHeight(height int32) (*blockindex.Entry, error) {
	r.rwlock.RLock()
	hashb := make([]byte, 0, chainhash.HashSize)
	err := r.db.View(func(tx *bolt.Tx) error {
		val := tx.Bucket(BKTHeights).Get(heightKey(height))
		if val == nil {
			return ErrNotFound
		}
		hashb = append(hashb, val...)
		return nil
	})
	r.rwlock.RUnlock()
	if err != nil {
		return nil, err
	}

	hash, err := chainhash.NewHash(hashb)
	if err != nil {
		return nil, err
	}
	return r.GetEntry(*hash)
}

// Tip returns the highest stored entry.
func (r *IndexDB) Tip() (*blockindex.Entry, error) {
	r.rwlock.RLock()
	var height int32
	err := r.db.View(func(tx *bolt.Tx) error {
		val := tx.Bucket(BKTTip).Get(KEYTip)
		if val == nil {
			return ErrNotFound
		}
		height = int32(binary.BigEndian.Uint32(val))
		return nil
	})
	r.rwlock.RUnlock()
	if err != nil {
		return nil, err
	}
	return r.GetEntryByHeight(height)
}

// LoadAll reads the whole index into memory.
func (r *IndexDB) LoadAll() (blockindex.Map, error) {
	r.rwlock.RLock()
	defer r.rwlock.RUnlock()

	res := blockindex.Map{}
	if err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(BKTEntries).ForEach(func(k, v []byte) error {
			e := new(blockindex.Entry)
			if err := e.Deserialize(v); err != nil {
				return fmt.Errorf("entry %x: %v", k, err)
			}
			res.Add(e)
			return nil
		})
	}); err != nil {
		return nil, err
	}
	return res, nil
}
