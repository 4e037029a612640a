package compoundfiles

import "time"

// Timestamps are stored as 100-nanosecond ticks since 1601-01-01 UTC.
// Zero means "not set".

var filetimeEpoch = time.Date(1601, time.January, 1, 0, 0, 0, 0, time.UTC)

// Plausibility bounds for on-disk tick values; values outside them are
// reported with a DirTimeWarning on load.
const (
	minPlausibleTicks uint64 = 10000000
	maxPlausibleTicks uint64 = 999999999999999999
)

func TimeFromTicks(ticks uint64) time.Time {
	if ticks == 0 {
		return time.Time{}
	}
	// Spans from 1601 exceed what a time.Duration can hold, so the
	// conversion goes through whole seconds.
	secs := int64(ticks/10000000) + filetimeEpoch.Unix()
	nanos := int64(ticks%10000000) * 100
	return time.Unix(secs, nanos).UTC()
}

func TicksFromTime(t time.Time) uint64 {
	if t.IsZero() || t.Before(filetimeEpoch) {
		return 0
	}
	secs := uint64(t.Unix() - filetimeEpoch.Unix())
	return secs*10000000 + uint64(t.Nanosecond()/100)
}

func plausibleTicks(ticks uint64) bool {
	return ticks == 0 || (ticks >= minPlausibleTicks && ticks <= maxPlausibleTicks)
}
