// Copyright (C) 2019-2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package prefixdb

import (
	"github.com/time-coin/timecoin/database"
)

var _ database.Database = (*Database)(nil)

// Database partitions a backing store into a namespace by prepending a fixed
// prefix to every key. The §6 persisted-state layout is realized as four
// prefixdbs over one leveldb: chain/ (height index and blocks by hash),
// utxo/, finality/ and registry/.
type Database struct {
	prefix []byte
	db     database.Database
}

// New returns a new prefixed database
func New(prefix []byte, db database.Database) *Database {
	return &Database{
		prefix: append([]byte{}, prefix...),
		db:     db,
	}
}

func (db *Database) prefixed(key []byte) []byte {
	prefixed := make([]byte, 0, len(db.prefix)+len(key))
	prefixed = append(prefixed, db.prefix...)
	return append(prefixed, key...)
}

func (db *Database) Has(key []byte) (bool, error) {
	return db.db.Has(db.prefixed(key))
}

func (db *Database) Get(key []byte) ([]byte, error) {
	return db.db.Get(db.prefixed(key))
}

func (db *Database) Put(key, value []byte) error {
	return db.db.Put(db.prefixed(key), value)
}

func (db *Database) Delete(key []byte) error {
	return db.db.Delete(db.prefixed(key))
}

func (db *Database) NewBatch() database.Batch {
	return &batch{
		db:    db,
		inner: db.db.NewBatch(),
	}
}

// Close is a no-op: the backing database is owned by the caller.
func (*Database) Close() error {
	return nil
}

type batch struct {
	db    *Database
	inner database.Batch
}

func (b *batch) Put(key, value []byte) error {
	return b.inner.Put(b.db.prefixed(key), value)
}

func (b *batch) Delete(key []byte) error {
	return b.inner.Delete(b.db.prefixed(key))
}

func (b *batch) Size() int {
	return b.inner.Size()
}

func (b *batch) Write() error {
	return b.inner.Write()
}

func (b *batch) Reset() {
	b.inner.Reset()
}
