package spam

import (
	"github.com/disgoorg/snowflake/v2"
	"github.com/puzpuzpuz/xsync/v3"
)

// DefaultThreshold is the message count a member may reach before the next message triggers.
const DefaultThreshold = 5

// Key identifies one member's counter within one guild.
type Key struct {
	GuildID  snowflake.ID
	AuthorID snowflake.ID
}

// Detector counts messages per guild member and fires when a count exceeds the threshold.
// A key that is absent from the table has a count of zero.
type Detector struct {
	counts    *xsync.MapOf[Key, int]
	threshold int
}

// NewDetector creates a detector. A threshold below one falls back to DefaultThreshold.
func NewDetector(threshold int) *Detector {
	if threshold < 1 {
		threshold = DefaultThreshold
	}

	return &Detector{
		counts:    xsync.NewMapOf[Key, int](),
		threshold: threshold,
	}
}

// Threshold returns the configured threshold.
func (d *Detector) Threshold() int {
	return d.threshold
}

// Observe counts one message and reports whether it triggered.
// Increment, compare and reset happen in a single atomic step for the key, so concurrent
// messages can never both see the exceeded count.
func (d *Detector) Observe(guildID, authorID snowflake.ID) bool {
	triggered := false

	d.counts.Compute(Key{GuildID: guildID, AuthorID: authorID}, func(count int, _ bool) (int, bool) {
		count++
		if count > d.threshold {
			triggered = true
			return 0, true
		}

		return count, false
	})

	return triggered
}

// Count returns the current count for a member.
func (d *Detector) Count(guildID, authorID snowflake.ID) int {
	count, _ := d.counts.Load(Key{GuildID: guildID, AuthorID: authorID})
	return count
}

// Len returns how many members currently have a nonzero count.
func (d *Detector) Len() int {
	return d.counts.Size()
}

// Sweep resets every counter and returns how many were nonzero.
func (d *Detector) Sweep() int {
	cleared := 0

	d.counts.Range(func(key Key, _ int) bool {
		if _, loaded := d.counts.LoadAndDelete(key); loaded {
			cleared++
		}

		return true
	})

	return cleared
}
