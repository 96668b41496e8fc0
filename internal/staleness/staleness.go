// Package staleness renders the "last updated" label shown next to the
// connection indicator.
package staleness

import (
	"math"
	"strconv"
	"time"
)

// Labels that do not carry a number.
const (
	Never          = "Never"
	JustNow        = "Just Now"
	FewSecondsAgo  = "Few Seconds Ago"
	secondsAgoTail = " Seconds Ago"
	minutesAgoTail = " Minutes Ago"
)

// Label classifies the time since last into a human readable label.
// A zero last means nothing was ever received.
//
// Buckets are checked in order; 5..10s and anything <= 0 fall through to
// "Just Now". Callers match on these strings, so the gap is kept as is.
func Label(now, last time.Time) string {
	if last.IsZero() {
		return Never
	}
	return ForElapsed(Elapsed(now, last))
}

// Elapsed returns the whole seconds between last and now, with both
// timestamps rounded to the nearest second first.
func Elapsed(now, last time.Time) int64 {
	return roundUnix(now) - roundUnix(last)
}

// ForElapsed maps elapsed seconds to a label.
func ForElapsed(elapsed int64) string {
	switch {
	case elapsed > 0 && elapsed < 5:
		return JustNow
	case elapsed > 10 && elapsed <= 30:
		return FewSecondsAgo
	case elapsed >= 30 && elapsed < 60:
		return strconv.FormatInt(elapsed, 10) + secondsAgoTail
	case elapsed >= 60:
		minutes := int64(math.Floor(float64(elapsed)/60 + 0.5))
		return strconv.FormatInt(minutes, 10) + minutesAgoTail
	default:
		return JustNow
	}
}

func roundUnix(t time.Time) int64 {
	return int64(math.Floor(float64(t.UnixMilli())/1000 + 0.5))
}
