package model

import "time"

// Shared defaults used by both the server and TUI binaries.
const (
	DefaultUpdateInterval    = 2 * time.Second
	DefaultGenerateInterval  = 5 * time.Second
	DefaultGenerateBackoff   = 1 * time.Second
	DefaultPollInterval      = 100 * time.Millisecond
	DefaultStopTimeout       = 1 * time.Second
	DefaultAggregationWindow = time.Hour
	DefaultBucketWidth       = 5 * time.Minute
	DefaultDeltaLookback     = 60 * time.Minute
	DefaultRecentLimit       = 10
	DefaultSearchLimit       = 100

	// DefaultCivilOffset is the UTC offset all record timestamps are expressed in (KST).
	DefaultCivilOffset = 9 * time.Hour
)

// DefaultCivilZone is the fixed, non-UTC zone used when a component is not given one.
var DefaultCivilZone = CivilZone(DefaultCivilOffset)

// CivilZone returns a fixed zone for the given UTC offset.
func CivilZone(offset time.Duration) *time.Location {
	if offset == DefaultCivilOffset {
		return time.FixedZone("KST", int(offset.Seconds()))
	}
	return time.FixedZone("", int(offset.Seconds()))
}
