// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

// Recognized configuration keys. Anything else in the config file is a
// startup error, so typos fail loudly.
const (
	NetworkNameKey            = "network_name"
	ChainIDKey                = "chain_id"
	SlotDurationKey           = "slot_duration_seconds"
	MempoolMaxEntriesKey      = "mempool_max_entries"
	MempoolMaxBytesKey        = "mempool_max_bytes"
	MinStakeKey               = "min_stake"
	AvalancheKKey             = "avalanche.k"
	AvalancheAlphaKey         = "avalanche.alpha"
	AvalancheBetaKey          = "avalanche.beta"
	AvalancheMaxRoundsKey     = "avalanche.max_rounds"
	AvalancheRoundIntervalKey = "avalanche.round_interval_ms"
	VFPThresholdNumKey        = "vfp.threshold_numerator"
	VFPThresholdDenKey        = "vfp.threshold_denominator"
	MaxReorgDepthKey          = "max_reorg_depth"
	BlockMaxBytesKey          = "block_max_bytes"
	BlockTxLimitKey           = "block_tx_limit"
	RateLimitPerMinuteKey     = "rate_limit_per_minute"
	ListenPortKey             = "listen_port"
	SeedPeersKey              = "seed_peers"
	DataDirKey                = "data_dir"
	LogLevelKey               = "log_level"
	LogDirKey                 = "log_dir"
	StakeAmountKey            = "stake_amount"
)
