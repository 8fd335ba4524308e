// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package vrf wraps an RFC 9381 ECVRF over edwards25519 with SHA-512. The
// scheme provides determinism (same key and input give the same output),
// uniqueness (the proof binds the output to the public key) and
// unpredictability (a validator cannot bias its output without changing its
// key).
package vrf

import (
	"bytes"
	"errors"

	"github.com/ProtonMail/go-ecvrf/ecvrf"
)

var (
	ErrInvalidProof = errors.New("vrf proof does not verify")

	errNilKey = errors.New("nil vrf key")
)

// Key is a validator's VRF secret
type Key struct {
	sk *ecvrf.PrivateKey
}

// GenerateKey creates a fresh VRF keypair
func GenerateKey() (*Key, error) {
	sk, err := ecvrf.GenerateKey(nil)
	if err != nil {
		return nil, err
	}
	return &Key{sk: sk}, nil
}

// NewKey rebuilds a key from its serialized secret
func NewKey(secret []byte) (*Key, error) {
	sk, err := ecvrf.NewPrivateKey(secret)
	if err != nil {
		return nil, err
	}
	return &Key{sk: sk}, nil
}

// Bytes returns the serialized secret
func (k *Key) Bytes() []byte {
	return k.sk.Bytes()
}

// PublicKey returns the serialized public key other validators verify against
func (k *Key) PublicKey() ([]byte, error) {
	if k == nil || k.sk == nil {
		return nil, errNilKey
	}
	pk, err := k.sk.Public()
	if err != nil {
		return nil, err
	}
	return pk.Bytes(), nil
}

// Evaluate returns the VRF output and proof for [input]. Deterministic: the
// same key and input always produce identical results.
func (k *Key) Evaluate(input []byte) (output []byte, proof []byte, err error) {
	if k == nil || k.sk == nil {
		return nil, nil, errNilKey
	}
	return k.sk.Prove(input)
}

// Verify checks that [output] is the unique VRF output of [input] under the
// key serialized in [publicKey], as attested by [proof].
func Verify(publicKey []byte, input []byte, output []byte, proof []byte) error {
	pk, err := ecvrf.NewPublicKey(publicKey)
	if err != nil {
		return ErrInvalidProof
	}
	verified, derived, err := pk.Verify(input, proof)
	if err != nil || !verified {
		return ErrInvalidProof
	}
	if !bytes.Equal(derived, output) {
		return ErrInvalidProof
	}
	return nil
}
