// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package leveldb

import (
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/time-coin/timecoin/database"
)

const (
	// writeBufferSize mirrors what a validator's steady-state commit volume
	// needs; two buffers are in flight at a time.
	writeBufferSize = 12 * opt.MiB

	blockCacheSize = 12 * opt.MiB

	handleCap = 1024

	bitsPerKey = 10
)

var _ database.Database = (*Database)(nil)

// Database is a persistent key-value store backed by goleveldb.
type Database struct {
	db *leveldb.DB
}

// New opens (creating if necessary) the database rooted at [path].
func New(path string) (*Database, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{
		WriteBuffer:            writeBufferSize,
		BlockCacheCapacity:     blockCacheSize,
		OpenFilesCacheCapacity: handleCap,
		Filter:                 filter.NewBloomFilter(bitsPerKey),
	})
	if _, corrupted := err.(*errors.ErrCorrupted); corrupted {
		db, err = leveldb.RecoverFile(path, nil)
	}
	if err != nil {
		return nil, err
	}
	return &Database{db: db}, nil
}

func (db *Database) Has(key []byte) (bool, error) {
	return db.db.Has(key, nil)
}

func (db *Database) Get(key []byte) ([]byte, error) {
	value, err := db.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, database.ErrNotFound
	}
	return value, err
}

func (db *Database) Put(key []byte, value []byte) error {
	return db.db.Put(key, value, nil)
}

func (db *Database) Delete(key []byte) error {
	return db.db.Delete(key, nil)
}

func (db *Database) NewBatch() database.Batch {
	return &batch{db: db.db}
}

func (db *Database) Close() error {
	return db.db.Close()
}

type batch struct {
	db    *leveldb.DB
	batch leveldb.Batch
	size  int
}

func (b *batch) Put(key, value []byte) error {
	b.batch.Put(key, value)
	b.size += len(key) + len(value)
	return nil
}

func (b *batch) Delete(key []byte) error {
	b.batch.Delete(key)
	b.size += len(key)
	return nil
}

func (b *batch) Size() int {
	return b.size
}

func (b *batch) Write() error {
	return b.db.Write(&b.batch, nil)
}

func (b *batch) Reset() {
	b.batch.Reset()
	b.size = 0
}
