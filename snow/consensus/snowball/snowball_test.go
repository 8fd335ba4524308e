// Copyright (C) 2019-2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package snowball

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSnowballFinalizesAfterBeta(t *testing.T) {
	require := require.New(t)

	sb := NewSnowball(Accept, 3)
	for i := 0; i < 2; i++ {
		sb.RecordPoll(14, 6, 14)
		require.False(sb.Finalized())
	}
	sb.RecordPoll(14, 6, 14)
	require.True(sb.Finalized())
	require.Equal(Accept, sb.Preference())
}

func TestSnowballConfidenceResetsOnFailedRound(t *testing.T) {
	require := require.New(t)

	sb := NewSnowball(Accept, 2)
	sb.RecordPoll(14, 6, 14)
	require.Equal(1, sb.Confidence())

	// neither color reaches quorum
	sb.RecordPoll(10, 10, 14)
	require.Equal(0, sb.Confidence())
	require.False(sb.Finalized())
	require.Equal(Accept, sb.Preference())
}

func TestSnowballFlipsPreference(t *testing.T) {
	require := require.New(t)

	sb := NewSnowball(Accept, 3)
	sb.RecordPoll(14, 6, 14)
	require.Equal(1, sb.Confidence())

	// an opposite quorum flips the color and restarts the count at 1
	sb.RecordPoll(2, 18, 14)
	require.Equal(Reject, sb.Preference())
	require.Equal(1, sb.Confidence())

	sb.RecordPoll(0, 20, 14)
	sb.RecordPoll(0, 20, 14)
	require.True(sb.Finalized())
	require.Equal(Reject, sb.Preference())
}

func TestSnowballForceReject(t *testing.T) {
	require := require.New(t)

	sb := NewSnowball(Accept, 15)
	sb.ForceReject()
	require.True(sb.Finalized())
	require.Equal(Reject, sb.Preference())

	// further polls are ignored
	sb.RecordPoll(20, 0, 14)
	require.Equal(Reject, sb.Preference())
}

func TestParameters(t *testing.T) {
	require := require.New(t)

	p := DefaultParameters()
	require.NoError(p.Verify())

	// derived quorum is ceil(0.7 * k)
	require.Equal(14, p.AlphaFor(20))
	require.Equal(4, p.AlphaFor(5))
	require.Equal(3, p.AlphaFor(3))

	// explicit alpha wins
	p.Alpha = 11
	require.Equal(11, p.AlphaFor(20))

	require.Equal(20, p.EffectiveK(100))
	require.Equal(7, p.EffectiveK(7))
	require.Equal(3, p.EffectiveK(3))

	bad := DefaultParameters()
	bad.K = 0
	require.Error(bad.Verify())
}
