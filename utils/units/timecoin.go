// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package units

// Denominations of value
const (
	BaseUnit  uint64 = 1
	MilliCoin uint64 = 100_000 * BaseUnit
	Coin      uint64 = 1000 * MilliCoin
	KiloCoin  uint64 = 1000 * Coin
)
