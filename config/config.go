// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/time-coin/timecoin/genesis"
	"github.com/time-coin/timecoin/snow/consensus/snowball"
	"github.com/time-coin/timecoin/snow/consensus/vfp"
	"github.com/time-coin/timecoin/utils/constants"
)

var (
	errUnknownKey      = errors.New("unrecognized configuration key")
	errBadVFPThreshold = errors.New("vfp threshold must satisfy 0 < num <= den")
	errBadSlotDuration = errors.New("slot duration must be positive")
	errBadListenPort   = errors.New("listen port out of range")
)

// Config is the fully resolved node configuration
type Config struct {
	NetworkID   uint32
	NetworkName string
	ChainID     uint32

	SlotDuration time.Duration

	MempoolMaxEntries int
	MempoolMaxBytes   int

	MinStake    uint64
	StakeAmount uint64

	Snowball     snowball.Parameters
	VFPThreshold vfp.Threshold

	MaxReorgDepth uint64
	BlockMaxBytes int
	BlockTxLimit  int

	RateLimitPerMinute int
	ListenPort         uint16
	SeedPeers          []string

	DataDir  string
	LogDir   string
	LogLevel string

	GenesisParams *genesis.Params
}

// BuildFlags declares every recognized flag with its default
func BuildFlags(fs *pflag.FlagSet) {
	fs.String(NetworkNameKey, constants.DevnetName, "network to join: mainnet, testnet or devnet")
	fs.Uint32(ChainIDKey, 0, "chain id mixed into signatures; 0 uses the network default")
	fs.Uint64(SlotDurationKey, 0, "slot duration override in seconds; 0 uses the network default")
	fs.Int(MempoolMaxEntriesKey, 10_000, "mempool eviction threshold, entries")
	fs.Int(MempoolMaxBytesKey, 300*1024*1024, "mempool eviction threshold, bytes")
	fs.Uint64(MinStakeKey, constants.MinStake, "validator admission stake threshold")
	fs.Uint64(StakeAmountKey, constants.MinStake, "stake this node advertises")
	fs.Int(AvalancheKKey, snowball.DefaultK, "avalanche sample size")
	fs.Int(AvalancheAlphaKey, 0, "avalanche quorum; 0 derives ceil(0.7k)")
	fs.Int(AvalancheBetaKey, snowball.DefaultBeta, "avalanche finality confidence")
	fs.Int(AvalancheMaxRoundsKey, snowball.DefaultMaxRounds, "avalanche voting round cap")
	fs.Int(AvalancheRoundIntervalKey, 100, "avalanche round interval in milliseconds")
	fs.Uint64(VFPThresholdNumKey, 2, "finality threshold numerator")
	fs.Uint64(VFPThresholdDenKey, 3, "finality threshold denominator")
	fs.Uint64(MaxReorgDepthKey, constants.MaxReorgDepth, "maximum fork depth")
	fs.Int(BlockMaxBytesKey, constants.BlockMaxBytes, "block assembly byte cap")
	fs.Int(BlockTxLimitKey, constants.BlockTxLimit, "block assembly transaction cap")
	fs.Int(RateLimitPerMinuteKey, 100, "per-peer inbound request cap")
	fs.Uint16(ListenPortKey, 9651, "p2p listen port")
	fs.StringSlice(SeedPeersKey, nil, "seed peer addresses host:port")
	fs.String(DataDirKey, defaultDataDir(), "root directory for persistence")
	fs.String(LogDirKey, "", "log directory; empty logs to stderr only")
	fs.String(LogLevelKey, "info", "log level for file output")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".timecoind"
	}
	return filepath.Join(home, ".timecoind")
}

// GetConfig resolves a validated Config from [v]
func GetConfig(v *viper.Viper) (*Config, error) {
	for _, key := range v.AllKeys() {
		if !knownKeys[key] {
			return nil, fmt.Errorf("%w: %q", errUnknownKey, key)
		}
	}

	networkName := v.GetString(NetworkNameKey)
	networkID, err := constants.NetworkID(networkName)
	if err != nil {
		return nil, err
	}
	genesisParams, err := genesis.GetParams(networkID)
	if err != nil {
		return nil, err
	}

	chainID := cast.ToUint32(v.Get(ChainIDKey))
	if chainID == 0 {
		chainID = genesisParams.ChainID
	}

	slotDuration := constants.SlotDuration(networkID)
	if override := v.GetUint64(SlotDurationKey); override > 0 {
		slotDuration = time.Duration(override) * time.Second
	}
	if slotDuration <= 0 {
		return nil, errBadSlotDuration
	}

	threshold := vfp.Threshold{
		Numerator:   v.GetUint64(VFPThresholdNumKey),
		Denominator: v.GetUint64(VFPThresholdDenKey),
	}
	if threshold.Numerator == 0 || threshold.Denominator == 0 || threshold.Numerator > threshold.Denominator {
		return nil, errBadVFPThreshold
	}

	listenPort := v.GetUint32(ListenPortKey)
	if listenPort == 0 || listenPort > 65535 {
		return nil, errBadListenPort
	}

	cfg := &Config{
		NetworkID:    networkID,
		NetworkName:  networkName,
		ChainID:      chainID,
		SlotDuration: slotDuration,

		MempoolMaxEntries: v.GetInt(MempoolMaxEntriesKey),
		MempoolMaxBytes:   v.GetInt(MempoolMaxBytesKey),

		MinStake:    v.GetUint64(MinStakeKey),
		StakeAmount: v.GetUint64(StakeAmountKey),

		Snowball: snowball.Parameters{
			K:             v.GetInt(AvalancheKKey),
			Alpha:         v.GetInt(AvalancheAlphaKey),
			Beta:          v.GetInt(AvalancheBetaKey),
			MaxRounds:     v.GetInt(AvalancheMaxRoundsKey),
			RoundInterval: time.Duration(v.GetInt(AvalancheRoundIntervalKey)) * time.Millisecond,
			QueryTimeout:  snowball.DefaultQueryTimeout,
		},
		VFPThreshold: threshold,

		MaxReorgDepth: v.GetUint64(MaxReorgDepthKey),
		BlockMaxBytes: v.GetInt(BlockMaxBytesKey),
		BlockTxLimit:  v.GetInt(BlockTxLimitKey),

		RateLimitPerMinute: v.GetInt(RateLimitPerMinuteKey),
		ListenPort:         uint16(listenPort),
		SeedPeers:          v.GetStringSlice(SeedPeersKey),

		DataDir:  v.GetString(DataDirKey),
		LogDir:   v.GetString(LogDirKey),
		LogLevel: v.GetString(LogLevelKey),

		GenesisParams: genesisParams,
	}
	if err := cfg.Snowball.Verify(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var knownKeys = map[string]bool{
	NetworkNameKey:            true,
	ChainIDKey:                true,
	SlotDurationKey:           true,
	MempoolMaxEntriesKey:      true,
	MempoolMaxBytesKey:        true,
	MinStakeKey:               true,
	StakeAmountKey:            true,
	AvalancheKKey:             true,
	AvalancheAlphaKey:         true,
	AvalancheBetaKey:          true,
	AvalancheMaxRoundsKey:     true,
	AvalancheRoundIntervalKey: true,
	VFPThresholdNumKey:        true,
	VFPThresholdDenKey:        true,
	MaxReorgDepthKey:          true,
	BlockMaxBytesKey:          true,
	BlockTxLimitKey:           true,
	RateLimitPerMinuteKey:     true,
	ListenPortKey:             true,
	SeedPeersKey:              true,
	DataDirKey:                true,
	LogDirKey:                 true,
	LogLevelKey:               true,

	// process flags that ride along on the same flag set
	"version": true,
}
