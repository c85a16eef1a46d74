// Package scheduler runs due work: recurring triggers through the
// conversation orchestrator and scheduled posts directly.
package scheduler

import (
	"time"

	"github.com/pysugar/agent-nexus/internal/db/models"
)

// DefaultClaimTTL bounds how long a claimed item stays invisible to other cycles.
const DefaultClaimTTL = 10 * time.Minute

// Interval converts a trigger's interval and unit into a duration. Unknown
// units count as minutes and non-positive intervals as 1.
func Interval(interval int, unit models.RunEvery) time.Duration {
	if interval < 1 {
		interval = 1
	}
	n := time.Duration(interval)
	switch unit {
	case models.RunEveryHours:
		return n * time.Hour
	case models.RunEveryDays:
		return n * 24 * time.Hour
	default:
		return n * time.Minute
	}
}

// NextRunAt is from plus one interval. It is always relative to the time
// processing started, never to the previous NextRunAt.
func NextRunAt(from time.Time, interval int, unit models.RunEvery) time.Time {
	return from.Add(Interval(interval, unit))
}
