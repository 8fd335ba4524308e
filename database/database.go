// Copyright (C) 2019-2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package database

import (
	"errors"
	"io"
)

var (
	ErrNotFound = errors.New("not found")
	ErrClosed   = errors.New("closed")
)

// KeyValueReader wraps the Has and Get methods of a backing data store.
type KeyValueReader interface {
	// Has retrieves if a key is present in the key-value data store.
	Has(key []byte) (bool, error)

	// Get retrieves the given key if it's present in the key-value data store.
	// Returns ErrNotFound if the key is not present.
	Get(key []byte) ([]byte, error)
}

// KeyValueWriter wraps the Put method of a backing data store.
type KeyValueWriter interface {
	// Put inserts the given value into the key-value data store.
	Put(key []byte, value []byte) error
}

// KeyValueDeleter wraps the Delete method of a backing data store.
type KeyValueDeleter interface {
	// Delete removes the key from the key-value data store.
	Delete(key []byte) error
}

// Batcher wraps the NewBatch method of a backing data store.
type Batcher interface {
	// NewBatch creates a write-only database that buffers changes to the
	// underlying store until a final write is called.
	NewBatch() Batch
}

// Batch is a write-only database that commits changes to its host database
// when Write is called. A batch must be written atomically by the backend.
type Batch interface {
	KeyValueWriter
	KeyValueDeleter

	// Size retrieves the amount of data queued up for writing
	Size() int

	// Write flushes any accumulated data to disk atomically.
	Write() error

	// Reset resets the batch for reuse.
	Reset()
}

// Database contains all the methods required to interact with a persistent
// key-value store.
type Database interface {
	KeyValueReader
	KeyValueWriter
	KeyValueDeleter
	Batcher
	io.Closer
}
