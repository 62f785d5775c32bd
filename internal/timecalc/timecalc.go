package timecalc

import (
	"math"
	"time"
)

const (
	// PomodoroSeconds is the length of one work cycle (25 minutes).
	PomodoroSeconds = 1500
	// BreakSecondsPerCycle is the break earned per completed cycle (5 minutes).
	BreakSecondsPerCycle = 300
	// ReferenceDaySeconds normalises durations against an 8-hour working day.
	ReferenceDaySeconds = 8 * 3600
)

// ElapsedSeconds returns the whole seconds between from and to, never negative.
func ElapsedSeconds(from, to time.Time) int64 {
	d := to.Sub(from)
	if d <= 0 {
		return 0
	}
	return int64(d / time.Second)
}

// PomodoroCyclesFromElapsed counts full pomodoro cycles in elapsed seconds.
func PomodoroCyclesFromElapsed(elapsed int64) int64 {
	if elapsed <= 0 {
		return 0
	}
	return elapsed / PomodoroSeconds
}

// BreakSecondsForCycles returns the break entitlement for the given cycles.
func BreakSecondsForCycles(cycles int64) int64 {
	if cycles <= 0 {
		return 0
	}
	return cycles * BreakSecondsPerCycle
}

// IncrementIfThreshold is used when pausing mid-session: a stretch of at least
// one full cycle counts as a single pomodoro.
func IncrementIfThreshold(elapsed int64) int64 {
	if elapsed >= PomodoroSeconds {
		return 1
	}
	return 0
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func SecondsToHours(seconds int64) float64 {
	return Round2(float64(seconds) / 3600)
}
