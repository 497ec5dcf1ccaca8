package kv

import (
	"bytes"

	"github.com/pkt-cash/indexer-sdk/er"
	bolt "go.etcd.io/bbolt"
)

// rootBucket holds every record regardless of column tag; the column
// tag is simply the first byte of the key, so bbolt's natural
// lexicographic key ordering gives us prefix scans for free via a
// cursor Seek, the same trick lnd/channeldb's kvdb layer relies on
// bbolt for.
var rootBucket = []byte("kv")

var boltErrType = er.NewErrorType("kv.bolt")

var errCorrupt = boltErrType.CodeWithDetail("errCorrupt", "durable kv store is missing its root bucket")

// boltEngine is the durable Engine backend, used whenever the
// configured db_path is non-empty.
type boltEngine struct {
	db *bolt.DB
}

// NewBoltEngine opens (creating if necessary) a bbolt-backed Engine at
// path.
func NewBoltEngine(path string) (Engine, er.R) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, er.E(err)
	}
	txErr := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(rootBucket)
		return err
	})
	if txErr != nil {
		db.Close()
		return nil, er.E(txErr)
	}
	return &boltEngine{db: db}, nil
}

func (b *boltEngine) Get(key []byte) ([]byte, bool, er.R) {
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(rootBucket)
		if bucket == nil {
			return er.Native(errCorrupt.Default())
		}
		v := bucket.Get(key)
		if v != nil {
			out = make([]byte, len(v))
			copy(out, v)
		}
		return nil
	})
	if err != nil {
		return nil, false, er.E(err)
	}
	return out, out != nil, nil
}

func (b *boltEngine) Set(key, value []byte) er.R {
	return b.WriteBatch([]Op{Put(key, value)}, true)
}

func (b *boltEngine) WriteBatch(ops []Op, sync bool) er.R {
	apply := func(tx *bolt.Tx) error {
		bucket := tx.Bucket(rootBucket)
		if bucket == nil {
			return er.Native(errCorrupt.Default())
		}
		for _, op := range ops {
			if op.Delete {
				if err := bucket.Delete(op.Key); err != nil {
					return err
				}
				continue
			}
			if err := bucket.Put(op.Key, op.Value); err != nil {
				return err
			}
		}
		return nil
	}
	var err error
	if sync {
		err = b.db.Update(apply)
	} else {
		err = b.db.Batch(apply)
	}
	if err != nil {
		return er.E(err)
	}
	return nil
}

func (b *boltEngine) IterPrefix(prefix []byte, fn func(key, value []byte) (bool, er.R)) er.R {
	return er.E(b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(rootBucket)
		if bucket == nil {
			return er.Native(errCorrupt.Default())
		}
		c := bucket.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			key := append([]byte(nil), k...)
			val := append([]byte(nil), v...)
			keep, rErr := fn(key, val)
			if rErr != nil {
				return er.Native(rErr)
			}
			if !keep {
				break
			}
		}
		return nil
	}))
}

func (b *boltEngine) Close() er.R {
	return er.E(b.db.Close())
}
