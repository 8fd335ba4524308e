// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package constants

import (
	"fmt"
	"time"
)

// Const variables to be exported
const (
	MainnetID uint32 = 1
	TestnetID uint32 = 5
	DevnetID  uint32 = 1337

	MainnetName = "mainnet"
	TestnetName = "testnet"
	DevnetName  = "devnet"

	// MainnetSlotDuration is the default block cadence on mainnet
	MainnetSlotDuration = 600 * time.Second
	// TestnetSlotDuration is the default block cadence on testnet and devnet
	TestnetSlotDuration = 60 * time.Second
)

// Variables to be exported
var (
	NetworkIDToNetworkName = map[uint32]string{
		MainnetID: MainnetName,
		TestnetID: TestnetName,
		DevnetID:  DevnetName,
	}
	NetworkNameToNetworkID = map[string]uint32{
		MainnetName: MainnetID,
		TestnetName: TestnetID,
		DevnetName:  DevnetID,
	}
)

// NetworkName returns a human readable name for the network with
// ID [networkID]
func NetworkName(networkID uint32) string {
	if name, exists := NetworkIDToNetworkName[networkID]; exists {
		return name
	}
	return fmt.Sprintf("network-%d", networkID)
}

// NetworkID returns the ID of the network with name [networkName]
func NetworkID(networkName string) (uint32, error) {
	if id, exists := NetworkNameToNetworkID[networkName]; exists {
		return id, nil
	}
	return 0, fmt.Errorf("failed to parse %q as a network name", networkName)
}

// SlotDuration returns the default slot duration of [networkID]
func SlotDuration(networkID uint32) time.Duration {
	if networkID == MainnetID {
		return MainnetSlotDuration
	}
	return TestnetSlotDuration
}
