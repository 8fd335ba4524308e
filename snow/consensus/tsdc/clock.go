// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tsdc

import (
	"time"

	"github.com/time-coin/timecoin/utils/timer/mockable"
)

// SlotClock maps wall-clock time onto the fixed slot grid. Validators'
// clocks are assumed NTP-synchronized within half a second, far inside the
// slot duration.
type SlotClock struct {
	clock        *mockable.Clock
	slotDuration time.Duration
}

func NewSlotClock(clock *mockable.Clock, slotDuration time.Duration) *SlotClock {
	return &SlotClock{
		clock:        clock,
		slotDuration: slotDuration,
	}
}

func (c *SlotClock) SlotDuration() time.Duration {
	return c.slotDuration
}

// CurrentSlot returns floor(now / slotDuration)
func (c *SlotClock) CurrentSlot() uint64 {
	return c.SlotAt(c.clock.Unix())
}

// SlotAt returns the slot containing the unix second [ts]
func (c *SlotClock) SlotAt(ts uint64) uint64 {
	return ts / uint64(c.slotDuration/time.Second)
}

// SlotTimestamp returns the unix second at which [slot] opens
func (c *SlotClock) SlotTimestamp(slot uint64) uint64 {
	return slot * uint64(c.slotDuration/time.Second)
}

// InWindow reports whether [ts] falls inside [slot]'s acceptance window
// [slotTimestamp, slotTimestamp + slotDuration).
func (c *SlotClock) InWindow(slot uint64, ts uint64) bool {
	start := c.SlotTimestamp(slot)
	return ts >= start && ts < start+uint64(c.slotDuration/time.Second)
}

// UntilNextSlot returns the wait until the next slot boundary
func (c *SlotClock) UntilNextSlot() time.Duration {
	now := c.clock.Time()
	next := c.SlotTimestamp(c.CurrentSlot() + 1)
	return time.Unix(int64(next), 0).Sub(now)
}

// Now returns the current unix second
func (c *SlotClock) Now() uint64 {
	return c.clock.Unix()
}
