// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package node

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/time-coin/timecoin/chainstore"
	"github.com/time-coin/timecoin/config"
	"github.com/time-coin/timecoin/database"
	"github.com/time-coin/timecoin/database/leveldb"
	"github.com/time-coin/timecoin/database/prefixdb"
	"github.com/time-coin/timecoin/genesis"
	"github.com/time-coin/timecoin/ids"
	"github.com/time-coin/timecoin/mempool"
	"github.com/time-coin/timecoin/network"
	"github.com/time-coin/timecoin/snow/consensus/avalanche"
	"github.com/time-coin/timecoin/snow/consensus/tsdc"
	"github.com/time-coin/timecoin/snow/consensus/vfp"
	"github.com/time-coin/timecoin/snow/validators"
	"github.com/time-coin/timecoin/utils/constants"
	"github.com/time-coin/timecoin/utils/logging"
	"github.com/time-coin/timecoin/utils/timer/mockable"
	"github.com/time-coin/timecoin/utils/worker"
	"github.com/time-coin/timecoin/utxoledger"
	"github.com/time-coin/timecoin/vrf"
)

// Database namespaces of the persisted state layout
var (
	chainPrefix    = []byte("chain/")
	utxoPrefix     = []byte("utxo/")
	finalityPrefix = []byte("finality/")
	registryPrefix = []byte("registry/")
)

// Node owns every component of a running validator. All set-once state — the
// identity keys, the broadcast surface, the snapshot store — is installed
// here during construction and handed out as immutable references.
type Node struct {
	Log        logging.Logger
	LogFactory logging.Factory

	// This node's identity on the network
	ID      ids.NodeID
	signKey ed25519.PrivateKey

	cfg *config.Config

	DB         database.Database
	finalityDB database.Database
	registryDB database.Database

	clock   *mockable.Clock
	workers worker.Pool

	Ledger    utxoledger.Ledger
	Mempool   mempool.Mempool
	Chain     chainstore.Store
	Snapshots *vfp.Snapshots
	VdrSet    validators.Set
	Registry  validators.Registry

	Engine      *avalanche.Engine
	Accumulator vfp.Accumulator
	SlotClock   *tsdc.SlotClock
	Producer    *tsdc.Producer
	Voter       *tsdc.Voter
	Runner      *tsdc.Runner
	Resolver    *chainstore.Resolver
	Net         *network.Network

	metrics *prometheus.Registry

	shutdownCancel context.CancelFunc
}

// New builds a node from [cfg]. Nothing starts running until Start.
func New(cfg *config.Config, logFactory logging.Factory) (*Node, error) {
	n := &Node{
		cfg:        cfg,
		LogFactory: logFactory,
		Log:        logFactory.Make("node"),
		clock:      &mockable.Clock{},
		metrics:    prometheus.NewRegistry(),
	}

	signKey, err := loadOrCreateIdentity(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("loading identity: %w", err)
	}
	n.signKey = signKey
	n.ID = ids.NodeIDFromPublicKey(signKey.Public().(ed25519.PublicKey))
	n.Log.Info("node identity", zap.Stringer("nodeID", n.ID))

	vrfKey, err := vrf.NewKey(signKey)
	if err != nil {
		return nil, fmt.Errorf("deriving vrf key: %w", err)
	}

	db, err := leveldb.New(filepath.Join(cfg.DataDir, "db"))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	n.DB = db
	n.finalityDB = prefixdb.New(finalityPrefix, db)

	n.workers = worker.NewPool(runtime.NumCPU())
	n.Ledger = utxoledger.New(prefixdb.New(utxoPrefix, db), n.clock)
	n.Chain = chainstore.New(prefixdb.New(chainPrefix, db))
	n.VdrSet = validators.NewSet()
	n.Registry = validators.NewRegistry(n.VdrSet, n.clock, cfg.RateLimitPerMinute)
	n.registryDB = prefixdb.New(registryPrefix, db)
	n.Snapshots = vfp.NewSnapshots()

	genesisBlk, err := genesis.Build(cfg.GenesisParams)
	if err != nil {
		return nil, fmt.Errorf("building genesis: %w", err)
	}
	freshChain := false
	if _, err := n.Chain.GetBlock(genesisBlk.ID()); err != nil {
		freshChain = true
	}
	if err := n.Chain.Initialize(genesisBlk); err != nil {
		return nil, err
	}
	if freshChain {
		if err := n.Ledger.AddUTXOs(genesis.InitialUTXOs(genesisBlk)); err != nil {
			return nil, err
		}
	}

	mempoolMetrics, err := mempool.NewMetrics("timecoin_mempool", n.metrics)
	if err != nil {
		return nil, err
	}
	n.Mempool = mempool.New(mempool.Config{
		MaxEntries: cfg.MempoolMaxEntries,
		MaxBytes:   cfg.MempoolMaxBytes,
	}, n.Ledger, n.clock, mempoolMetrics)

	netMetrics, err := network.NewMetrics("timecoin_network", n.metrics)
	if err != nil {
		return nil, err
	}
	n.Net = network.New(network.Config{
		NetworkName: cfg.NetworkName,
		ChainID:     cfg.ChainID,
		GenesisHash: genesisBlk.ID(),
		ListenAddr:  fmt.Sprintf(":%d", cfg.ListenPort),
		SeedPeers:   cfg.SeedPeers,
		MinStake:    cfg.MinStake,
		NodeID:      n.ID,
		SignKey:     signKey,
		Stake:       cfg.StakeAmount,
	}, n.Registry, n, netMetrics, logFactory.Make("network"), n.clock)

	avalancheMetrics, err := avalanche.NewMetrics("timecoin_avalanche", n.metrics)
	if err != nil {
		return nil, err
	}
	n.Engine, err = avalanche.New(
		cfg.Snowball,
		n.VdrSet,
		n.Net,
		n.Mempool,
		n,
		logFactory.Make("avalanche"),
		avalancheMetrics,
	)
	if err != nil {
		return nil, err
	}

	n.Accumulator = vfp.NewAccumulator(
		cfg.ChainID,
		cfg.VFPThreshold,
		n.Snapshots,
		n,
		logFactory.Make("vfp"),
	)

	n.SlotClock = tsdc.NewSlotClock(n.clock, cfg.SlotDuration)
	n.Producer = tsdc.NewProducer(
		n.ID,
		signKey,
		vrfKey,
		n.Mempool,
		n.SlotClock,
		cfg.BlockMaxBytes,
		cfg.BlockTxLimit,
	)
	tsdcMetrics, err := tsdc.NewMetrics("timecoin_tsdc", n.metrics)
	if err != nil {
		return nil, err
	}
	n.Voter = tsdc.NewVoter(
		cfg.ChainID,
		n.ID,
		signKey,
		n.SlotClock,
		n.Snapshots,
		n.Chain,
		n,
		n,
		n.Net,
		logFactory.Make("tsdc"),
		tsdcMetrics,
	)
	n.Runner = tsdc.NewRunner(
		n.SlotClock,
		n.Snapshots,
		n.VdrSet,
		n.Producer,
		n.Voter,
		n.Chain,
		n.Net,
		logFactory.Make("tsdc"),
		tsdcMetrics,
	)
	n.Resolver = chainstore.NewResolver(n.Chain, n.Ledger, n.Net, logFactory.Make("chain"))

	// The local validator participates with its own stake.
	selfPub := signKey.Public().(ed25519.PublicKey)
	if cfg.StakeAmount >= cfg.MinStake {
		if err := n.VdrSet.Add(n.ID, selfPub, cfg.StakeAmount); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// Start runs the node until [ctx] is canceled or a fatal error occurs
func (n *Node) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	n.shutdownCancel = cancel

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return n.Net.Dispatch(ctx)
	})
	eg.Go(func() error {
		n.Runner.Run(ctx)
		return nil
	})
	eg.Go(func() error {
		n.runSyncer(ctx)
		return nil
	})

	err := eg.Wait()
	n.shutdown()
	return err
}

// Shutdown requests a graceful stop
func (n *Node) Shutdown() {
	if n.shutdownCancel != nil {
		n.shutdownCancel()
	}
}

// shutdown releases everything within the grace period: voting loops drain,
// UTXO locks release, persistence flushes.
func (n *Node) shutdown() {
	n.Log.Info("shutting down", zap.Duration("grace", constants.DefaultShutdownGrace))

	done := make(chan struct{})
	go func() {
		defer close(done)
		n.Engine.Shutdown()
		n.workers.Shutdown()
	}()
	select {
	case <-done:
	case <-time.After(constants.DefaultShutdownGrace):
		n.Log.Warn("shutdown grace period exceeded")
	}

	if err := n.DB.Close(); err != nil {
		n.Log.Error("database close failed", zap.Error(err))
	}
	n.Log.Info("shutdown complete")
	n.LogFactory.Close()
}
