// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package txs

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/time-coin/timecoin/ids"
	"github.com/time-coin/timecoin/utils/constants"
)

func newTestKey(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return pub, priv
}

func newTestTx(t *testing.T, pub ed25519.PublicKey) *Tx {
	tx := &Tx{
		Version: Version,
		Inputs: []Input{
			{UTXOID: UTXOID{TxID: ids.ID{0x02}, OutputIndex: 1}},
			{UTXOID: UTXOID{TxID: ids.ID{0x01}, OutputIndex: 7}},
		},
		Outputs: []Output{
			{Value: 5 * constants.MinDust, PubKey: pub},
		},
	}
	require.NoError(t, tx.Initialize())
	return tx
}

func TestTxInputsSorted(t *testing.T) {
	require := require.New(t)

	pub, _ := newTestKey(t)
	tx := newTestTx(t, pub)

	require.Equal(ids.ID{0x01}, tx.Inputs[0].UTXOID.TxID)
	require.Equal(ids.ID{0x02}, tx.Inputs[1].UTXOID.TxID)
}

func TestTxRoundTrip(t *testing.T) {
	require := require.New(t)

	pub, priv := newTestKey(t)
	tx := newTestTx(t, pub)
	for i := range tx.Inputs {
		tx.Inputs[i].Sig = SignInput(priv, tx.ID(), uint32(i), tx.Inputs[i].UTXOID, 6*constants.MinDust)
	}
	require.NoError(tx.Initialize())

	parsed, err := Parse(tx.Bytes())
	require.NoError(err)
	require.Equal(tx.ID(), parsed.ID())
	require.Equal(tx.Bytes(), parsed.Bytes())
	require.Equal(tx.Inputs, parsed.Inputs)
	require.Equal(tx.Outputs, parsed.Outputs)
}

func TestTxIDIgnoresSignatures(t *testing.T) {
	require := require.New(t)

	pub, priv := newTestKey(t)
	tx := newTestTx(t, pub)
	unsignedID := tx.ID()

	tx.Inputs[0].Sig = SignInput(priv, tx.ID(), 0, tx.Inputs[0].UTXOID, 6*constants.MinDust)
	require.NoError(tx.Initialize())
	require.Equal(unsignedID, tx.ID())
}

func TestSyntacticVerify(t *testing.T) {
	pub, _ := newTestKey(t)

	tests := []struct {
		name        string
		tx          func() *Tx
		expectedErr error
	}{
		{
			name: "valid",
			tx: func() *Tx {
				return newTestTx(t, pub)
			},
			expectedErr: nil,
		},
		{
			name: "no outputs",
			tx: func() *Tx {
				tx := newTestTx(t, pub)
				tx.Outputs = nil
				return tx
			},
			expectedErr: ErrNoOutputs,
		},
		{
			name: "dust output",
			tx: func() *Tx {
				tx := newTestTx(t, pub)
				tx.Outputs[0].Value = constants.MinDust - 1
				return tx
			},
			expectedErr: ErrDustOutput,
		},
		{
			name: "duplicate outpoint",
			tx: func() *Tx {
				tx := newTestTx(t, pub)
				tx.Inputs[1] = tx.Inputs[0]
				return tx
			},
			expectedErr: ErrDuplicateInput,
		},
		{
			name: "bad pubkey length",
			tx: func() *Tx {
				tx := newTestTx(t, pub)
				tx.Outputs[0].PubKey = []byte{1, 2, 3}
				return tx
			},
			expectedErr: ErrBadPubKeyLen,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, tt.tx().SyntacticVerify(), tt.expectedErr)
		})
	}
}

func TestFee(t *testing.T) {
	require := require.New(t)

	pub, _ := newTestKey(t)
	tx := newTestTx(t, pub)

	// inputs exactly cover outputs: zero fee is rejected
	_, err := tx.Fee(5 * constants.MinDust)
	require.ErrorIs(err, ErrInsufficientFee)

	// outputs exceed inputs
	_, err = tx.Fee(constants.MinDust)
	require.ErrorIs(err, ErrOutputsExceed)

	fee, err := tx.Fee(5*constants.MinDust + 42)
	require.NoError(err)
	require.Equal(uint64(42), fee)
}

func TestSignatureVerifies(t *testing.T) {
	require := require.New(t)

	pub, priv := newTestKey(t)
	tx := newTestTx(t, pub)
	value := 6 * constants.MinDust
	tx.Inputs[0].Sig = SignInput(priv, tx.ID(), 0, tx.Inputs[0].UTXOID, value)

	require.NoError(VerifyInputSignature(tx, 0, value, pub))

	// altering the committed value breaks the signature
	require.ErrorIs(VerifyInputSignature(tx, 0, value+1, pub), ErrInvalidSignature)

	// a different key does not verify
	otherPub, _ := newTestKey(t)
	require.ErrorIs(VerifyInputSignature(tx, 0, value, otherPub), ErrInvalidSignature)
}
