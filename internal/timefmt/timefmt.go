// Package timefmt converts race clock values into display strings.
package timefmt

import (
	"fmt"
	"time"

	"github.com/hako/durafmt"
)

// FormatTimer renders ms as mm:ss, the countdown format shown on displays.
func FormatTimer(ms int64) string {
	ms = max(ms, 0)
	return fmt.Sprintf("%02d:%02d", ms/60000, (ms%60000)/1000)
}

// FormatLapTime renders ms as mm:ss.ff with hundredths of a second.
func FormatLapTime(ms int64) string {
	ms = max(ms, 0)
	return fmt.Sprintf("%02d:%02d.%02d", ms/60000, (ms%60000)/1000, (ms%1000)/10)
}

// TimeRemaining returns how much of duration is left at now for a race that
// started at start. It never returns a negative value.
func TimeRemaining(start time.Time, duration time.Duration, now time.Time) time.Duration {
	return max(duration-now.Sub(start), 0)
}

// Humanize renders d to whole seconds in words, e.g. "9 minutes 30 seconds".
func Humanize(d time.Duration) string {
	d = d.Truncate(time.Second)
	if d <= 0 {
		return "0 seconds"
	}
	return durafmt.Parse(d).String()
}
