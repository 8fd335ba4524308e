// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chainstore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/time-coin/timecoin/blocks"
	"github.com/time-coin/timecoin/database"
	"github.com/time-coin/timecoin/ids"
)

var (
	ErrNotInitialized  = errors.New("chain store not initialized")
	ErrWrongGenesis    = errors.New("genesis hash mismatch")
	ErrNotExtendingTip = errors.New("block does not extend the tip")
	ErrBlockNotFound   = errors.New("block not found")

	tipKey     = []byte("tip")
	genesisKey = []byte("genesis")

	_ Store = (*store)(nil)
)

// Store holds the committed chain. Only fully finalized blocks enter; a
// block is never removed except through a consensus-gated reorg, which pops
// never-archived tips only.
type Store interface {
	// Initialize installs [genesis] on an empty database, or verifies it
	// against the persisted chain.
	Initialize(genesis *blocks.Block) error

	// Commit appends [blk], which must extend the current tip
	Commit(blk *blocks.Block) error

	// Pop removes the tip block during a reorg and returns it. The genesis
	// cannot be popped.
	Pop() (*blocks.Block, error)

	// Tip returns the current head's height and hash
	Tip() (uint64, ids.ID)

	GenesisHash() ids.ID

	GetBlock(hash ids.ID) (*blocks.Block, error)

	GetBlockAtHeight(height uint64) (*blocks.Block, error)
}

type store struct {
	db database.Database

	lock        sync.RWMutex
	tipHeight   uint64
	tipHash     ids.ID
	genesisHash ids.ID
	initialized bool
}

func New(db database.Database) Store {
	return &store{db: db}
}

func heightKey(height uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, height)
	return key
}

func (s *store) Initialize(genesis *blocks.Block) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	persisted, err := s.db.Get(genesisKey)
	switch {
	case err == nil:
		storedGenesis, err := ids.ToID(persisted)
		if err != nil {
			return err
		}
		if storedGenesis != genesis.ID() {
			return fmt.Errorf("%w: stored %s, configured %s", ErrWrongGenesis, storedGenesis, genesis.ID())
		}
		return s.loadTipLocked(storedGenesis)
	case errors.Is(err, database.ErrNotFound):
		batch := s.db.NewBatch()
		if err := batch.Put(genesisKey, genesis.ID().Bytes()); err != nil {
			return err
		}
		if err := s.writeBlockLocked(batch, genesis); err != nil {
			return err
		}
		if err := batch.Write(); err != nil {
			return err
		}
		s.genesisHash = genesis.ID()
		s.tipHeight = genesis.Header.Height
		s.tipHash = genesis.ID()
		s.initialized = true
		return nil
	default:
		return err
	}
}

func (s *store) loadTipLocked(genesisHash ids.ID) error {
	tipBytes, err := s.db.Get(tipKey)
	if err != nil {
		return err
	}
	tipHash, err := ids.ToID(tipBytes[8:])
	if err != nil {
		return err
	}
	s.genesisHash = genesisHash
	s.tipHeight = binary.BigEndian.Uint64(tipBytes[:8])
	s.tipHash = tipHash
	s.initialized = true
	return nil
}

func (s *store) writeBlockLocked(batch database.Batch, blk *blocks.Block) error {
	if err := batch.Put(blk.ID().Bytes(), blk.Bytes()); err != nil {
		return err
	}
	if err := batch.Put(heightKey(blk.Header.Height), blk.ID().Bytes()); err != nil {
		return err
	}
	tipBytes := make([]byte, 8+ids.IDLen)
	binary.BigEndian.PutUint64(tipBytes, blk.Header.Height)
	copy(tipBytes[8:], blk.ID().Bytes())
	return batch.Put(tipKey, tipBytes)
}

func (s *store) Commit(blk *blocks.Block) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	if blk.Header.PrevHash != s.tipHash || blk.Header.Height != s.tipHeight+1 {
		return ErrNotExtendingTip
	}
	batch := s.db.NewBatch()
	if err := s.writeBlockLocked(batch, blk); err != nil {
		return err
	}
	if err := batch.Write(); err != nil {
		return err
	}
	s.tipHeight = blk.Header.Height
	s.tipHash = blk.ID()
	return nil
}

func (s *store) Pop() (*blocks.Block, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if !s.initialized {
		return nil, ErrNotInitialized
	}
	if s.tipHash == s.genesisHash {
		return nil, ErrNotExtendingTip
	}
	blk, err := s.getBlockLocked(s.tipHash)
	if err != nil {
		return nil, err
	}
	batch := s.db.NewBatch()
	if err := batch.Delete(s.tipHash.Bytes()); err != nil {
		return nil, err
	}
	if err := batch.Delete(heightKey(s.tipHeight)); err != nil {
		return nil, err
	}
	parent, err := s.getBlockLocked(blk.Header.PrevHash)
	if err != nil {
		return nil, err
	}
	tipBytes := make([]byte, 8+ids.IDLen)
	binary.BigEndian.PutUint64(tipBytes, parent.Header.Height)
	copy(tipBytes[8:], parent.ID().Bytes())
	if err := batch.Put(tipKey, tipBytes); err != nil {
		return nil, err
	}
	if err := batch.Write(); err != nil {
		return nil, err
	}
	s.tipHeight = parent.Header.Height
	s.tipHash = parent.ID()
	return blk, nil
}

func (s *store) Tip() (uint64, ids.ID) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return s.tipHeight, s.tipHash
}

func (s *store) GenesisHash() ids.ID {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return s.genesisHash
}

func (s *store) GetBlock(hash ids.ID) (*blocks.Block, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return s.getBlockLocked(hash)
}

func (s *store) getBlockLocked(hash ids.ID) (*blocks.Block, error) {
	bytes, err := s.db.Get(hash.Bytes())
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrBlockNotFound
	}
	if err != nil {
		return nil, err
	}
	return blocks.Parse(bytes)
}

func (s *store) GetBlockAtHeight(height uint64) (*blocks.Block, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	hashBytes, err := s.db.Get(heightKey(height))
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrBlockNotFound
	}
	if err != nil {
		return nil, err
	}
	hash, err := ids.ToID(hashBytes)
	if err != nil {
		return nil, err
	}
	return s.getBlockLocked(hash)
}
