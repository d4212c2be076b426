// Package inference turns an hour:minute report into absolute kill and spawn
// timestamps.
package inference

import (
	"errors"
	"fmt"
	"time"
)

// Mode says whether the reported clock time is a kill or the next spawn.
type Mode string

const (
	ModeKill  Mode = "kill"
	ModeSpawn Mode = "spawn"
)

// Window is how far a reported time may sit on the "wrong" side of now before
// it is moved by one calendar day.
const Window = 15 * time.Minute

var (
	ErrInvalidTime = errors.New("invalid time")
	ErrInvalidMode = errors.New("invalid input mode")
)

// Result holds inferred timestamps in milliseconds since the epoch.
type Result struct {
	KillTime  int64
	NextSpawn int64
}

// ParseMode converts user input to a Mode; empty input means kill.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeKill:
		return ModeKill, nil
	case ModeSpawn:
		return ModeSpawn, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// ValidClock reports whether hour and minute name a wall-clock time.
func ValidClock(hour, minute int) bool {
	return hour >= 0 && hour <= 23 && minute >= 0 && minute <= 59
}

// Infer resolves hour:minute against now.
//
// In kill mode a candidate more than Window in the future is taken to mean
// yesterday. In spawn mode a candidate more than Window in the past is taken
// to mean tomorrow, and the kill time is back-computed from the interval.
func Infer(interval time.Duration, hour, minute int, mode Mode, now time.Time) (Result, error) {
	if !ValidClock(hour, minute) {
		return Result{}, fmt.Errorf("%w: %02d:%02d", ErrInvalidTime, hour, minute)
	}

	candidate := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	intervalMs := interval.Milliseconds()

	switch mode {
	case ModeKill:
		if candidate.After(now.Add(Window)) {
			candidate = candidate.AddDate(0, 0, -1)
		}
		kill := candidate.UnixMilli()
		return Result{KillTime: kill, NextSpawn: kill + intervalMs}, nil
	case ModeSpawn:
		if candidate.Before(now.Add(-Window)) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		spawn := candidate.UnixMilli()
		return Result{KillTime: spawn - intervalMs, NextSpawn: spawn}, nil
	}
	return Result{}, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
}
