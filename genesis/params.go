// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package genesis

import (
	"github.com/time-coin/timecoin/utils/constants"
	"github.com/time-coin/timecoin/utils/units"
)

var (
	mainnetParams = Params{
		NetworkID: constants.MainnetID,
		ChainID:   1,
		Timestamp: 1_735_689_600, // 2025-01-01 00:00:00 UTC
		Allocations: []Allocation{
			{
				PubKeyHex: "3d4017c3e843895a92b70aa74d1b7ebc9c982ccf2ec4968cc0cd55f12af4660c",
				Amount:    720_000 * units.Coin,
			},
			{
				PubKeyHex: "fc51cd8e6218a1a38da47ed00230f0580816ed13ba3303ac5deb911548908025",
				Amount:    480_000 * units.Coin,
			},
			{
				PubKeyHex: "c9f8ccbf761cff1afc38ba8943ab675c5d7d5f1d33c94b9a0c521be7f9be1fb5",
				Amount:    300_000 * units.Coin,
			},
		},
	}

	testnetParams = Params{
		NetworkID: constants.TestnetID,
		ChainID:   5,
		Timestamp: 1_727_740_800, // 2024-10-01 00:00:00 UTC
		Allocations: []Allocation{
			{
				PubKeyHex: "d75a980182b10ab7d54bfed3c964073a0ee172f3daa62325af021a68f707511a",
				Amount:    1_000_000 * units.Coin,
			},
			{
				PubKeyHex: "278117fc144c72340f67d0f2316e8386ceffbf2b2428c9c51fef7c597f1d426e",
				Amount:    1_000_000 * units.Coin,
			},
		},
	}

	devnetParams = Params{
		NetworkID: constants.DevnetID,
		ChainID:   1337,
		Timestamp: 0,
		Allocations: []Allocation{
			{
				PubKeyHex: "9d61b19deffd5a60ba844af492ec2cc44449c5697b326919703bac031cae7f60",
				Amount:    10_000_000 * units.Coin,
			},
		},
	}
)
