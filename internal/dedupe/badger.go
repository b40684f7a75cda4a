// Package dedupe provides an on-disk duplicate set for identifier columns
// too large to hold in memory.
package dedupe

import (
	"errors"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/yourorg/case-audit/internal/pipeline"
)

// Badger is a pipeline.Deduper backed by a badger key set.
type Badger struct {
	db  *badger.DB
	dir string
}

// Open creates a key set under a fresh directory inside scratch. An empty
// scratch keeps the set in memory.
func Open(scratch string) (*Badger, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	var dir string
	if scratch != "" {
		if err := os.MkdirAll(scratch, 0o755); err != nil {
			return nil, err
		}
		d, err := os.MkdirTemp(scratch, "dedupe-*.badger")
		if err != nil {
			return nil, err
		}
		dir = d
		opts = badger.DefaultOptions(dir).WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		if dir != "" {
			_ = os.RemoveAll(dir)
		}
		return nil, err
	}
	return &Badger{db: db, dir: dir}, nil
}

// Factory opens one set per pipeline run.
func Factory(scratch string) pipeline.DeduperFactory {
	return func() (pipeline.Deduper, error) { return Open(scratch) }
}

func (b *Badger) Seen(key string) (bool, error) {
	k := []byte(key)
	var seen bool
	err := b.db.Update(func(txn *badger.Txn) error {
		_, e := txn.Get(k)
		if errors.Is(e, badger.ErrKeyNotFound) {
			return txn.Set(k, []byte{1})
		}
		if e != nil {
			return e
		}
		seen = true
		return nil
	})
	return seen, err
}

// Close releases the database and removes its directory.
func (b *Badger) Close() error {
	err := b.db.Close()
	if b.dir != "" {
		if rerr := os.RemoveAll(b.dir); err == nil {
			err = rerr
		}
	}
	return err
}
