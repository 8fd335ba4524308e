// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package version

import "fmt"

const Client = "timecoind"

// These are globals that describe the node version and the wire protocol it
// speaks.
var (
	Current = &Semantic{
		Major: 1,
		Minor: 0,
		Patch: 0,
	}

	// CurrentProtocol is carried in the handshake. Peers on a different major
	// version refuse to connect; minor additions are backward compatible.
	CurrentProtocol uint32 = 1<<16 | 0

	// MinimumCompatibleProtocol is the oldest protocol this node still speaks
	MinimumCompatibleProtocol uint32 = 1 << 16
)

// Semantic is a semantic version
type Semantic struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
	Patch int `json:"patch"`
}

func (s *Semantic) String() string {
	return fmt.Sprintf("v%d.%d.%d", s.Major, s.Minor, s.Patch)
}

// MajorProtocol extracts the major component of a wire protocol version
func MajorProtocol(protocol uint32) uint32 {
	return protocol >> 16
}

// Compatible returns nil if a peer speaking [peerProtocol] can participate in
// consensus with this node.
func Compatible(peerProtocol uint32) error {
	if MajorProtocol(peerProtocol) != MajorProtocol(CurrentProtocol) {
		return fmt.Errorf("incompatible protocol %d; current %d", peerProtocol, CurrentProtocol)
	}
	if peerProtocol < MinimumCompatibleProtocol {
		return fmt.Errorf("protocol %d below minimum %d", peerProtocol, MinimumCompatibleProtocol)
	}
	return nil
}
