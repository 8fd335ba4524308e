// Copyright (C) 2019-2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package snowball

import "fmt"

// Preference is the color a node currently supports for a transaction
type Preference byte

const (
	Accept Preference = iota
	Reject
)

func (p Preference) String() string {
	if p == Accept {
		return "accept"
	}
	return "reject"
}

// Opposite returns the other color
func (p Preference) Opposite() Preference {
	if p == Accept {
		return Reject
	}
	return Accept
}

// Snowball is the confidence counter driving one transaction toward a
// decision. Successful rounds in support of the current preference increase
// confidence; an alpha quorum for the opposite color flips the preference and
// restarts the count.
type Snowball struct {
	// preference is the currently supported color
	preference Preference

	// confidence is the number of consecutive successful polls for preference
	confidence int

	// numSuccessfulPolls tracks total successful polls per color; preference
	// flips depend only on the current round's votes, not on these counts
	numSuccessfulPolls [2]int

	// finalized is set once confidence reaches beta
	finalized bool

	beta int
}

// NewSnowball starts at [initial] with zero confidence
func NewSnowball(initial Preference, beta int) *Snowball {
	return &Snowball{
		preference: initial,
		beta:       beta,
	}
}

func (sb *Snowball) Preference() Preference {
	return sb.preference
}

func (sb *Snowball) Confidence() int {
	return sb.confidence
}

func (sb *Snowball) Finalized() bool {
	return sb.finalized
}

// RecordPoll applies one round's result. [acceptVotes] and [rejectVotes] are
// the respondents supporting each color; [alpha] is the round quorum.
func (sb *Snowball) RecordPoll(acceptVotes, rejectVotes, alpha int) {
	if sb.finalized {
		return
	}

	votesFor := acceptVotes
	votesAgainst := rejectVotes
	if sb.preference == Reject {
		votesFor, votesAgainst = rejectVotes, acceptVotes
	}

	switch {
	case votesFor >= alpha:
		sb.numSuccessfulPolls[sb.preference]++
		sb.confidence++
		if sb.confidence >= sb.beta {
			sb.finalized = true
		}
	case votesAgainst >= alpha:
		sb.preference = sb.preference.Opposite()
		sb.numSuccessfulPolls[sb.preference]++
		sb.confidence = 1
		if sb.confidence >= sb.beta {
			sb.finalized = true
		}
	default:
		// No quorum either way: the round failed, confidence resets.
		sb.confidence = 0
	}
}

// ForceReject finalizes the instance at Reject. Used when a conflicting
// transaction finalized first.
func (sb *Snowball) ForceReject() {
	sb.preference = Reject
	sb.finalized = true
}

func (sb *Snowball) String() string {
	return fmt.Sprintf("SB(Preference = %s, Confidence = %d, Finalized = %v)",
		sb.preference, sb.confidence, sb.finalized)
}
