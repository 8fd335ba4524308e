// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package genesis

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/time-coin/timecoin/ids"
	"github.com/time-coin/timecoin/utils/constants"
)

func TestBuildDeterministic(t *testing.T) {
	require := require.New(t)

	for _, networkID := range []uint32{constants.MainnetID, constants.TestnetID, constants.DevnetID} {
		params, err := GetParams(networkID)
		require.NoError(err)

		a, err := Build(params)
		require.NoError(err)
		b, err := Build(params)
		require.NoError(err)

		// the genesis hash is consensus critical: identical on every node
		require.Equal(a.ID(), b.ID())
		require.Equal(a.Bytes(), b.Bytes())
		require.Equal(uint64(0), a.Header.Height)
		require.Equal(ids.Empty, a.Header.PrevHash)
	}
}

func TestNetworksDiffer(t *testing.T) {
	require := require.New(t)

	mainnetParams, err := GetParams(constants.MainnetID)
	require.NoError(err)
	testnetParams, err := GetParams(constants.TestnetID)
	require.NoError(err)

	mainnet, err := Build(mainnetParams)
	require.NoError(err)
	testnet, err := Build(testnetParams)
	require.NoError(err)
	require.NotEqual(mainnet.ID(), testnet.ID())
}

func TestInitialUTXOs(t *testing.T) {
	require := require.New(t)

	params, err := GetParams(constants.TestnetID)
	require.NoError(err)
	blk, err := Build(params)
	require.NoError(err)

	utxos := InitialUTXOs(blk)
	require.Len(utxos, len(params.Allocations))
	for i, utxo := range utxos {
		require.Equal(params.Allocations[i].Amount, utxo.Value)
		require.Equal(blk.Coinbase().ID(), utxo.UTXOID.TxID)
		require.Equal(uint32(i), utxo.UTXOID.OutputIndex)
	}

	_, err = GetParams(999)
	require.Error(err)
}
