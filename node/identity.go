// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package node

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const stakingKeyFile = "staker.key"

// loadOrCreateIdentity returns the node's Ed25519 keypair, creating and
// persisting a fresh one on first start. The same secret drives the ECVRF
// per the shared-key scheme over edwards25519.
func loadOrCreateIdentity(dataDir string) (ed25519.PrivateKey, error) {
	path := filepath.Join(dataDir, stakingKeyFile)

	hexKey, err := os.ReadFile(path)
	switch {
	case err == nil:
		seed, err := hex.DecodeString(strings.TrimSpace(string(hexKey)))
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		if len(seed) != ed25519.SeedSize {
			return nil, fmt.Errorf("%s: expected %d byte seed", path, ed25519.SeedSize)
		}
		return ed25519.NewKeyFromSeed(seed), nil
	case os.IsNotExist(err):
		_, key, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(dataDir, 0o700); err != nil {
			return nil, err
		}
		encoded := hex.EncodeToString(key.Seed())
		if err := os.WriteFile(path, []byte(encoded), 0o600); err != nil {
			return nil, err
		}
		return key, nil
	default:
		return nil, err
	}
}
