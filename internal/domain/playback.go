package domain

import (
	"time"
)

type Status int

const (
	StatusIdle Status = iota
	StatusPaused
	StatusPlaying
)

func (s Status) String() string {
	switch s {
	case StatusPaused:
		return "paused"
	case StatusPlaying:
		return "playing"
	default:
		return "idle"
	}
}

// PlaybackState is meaningful only relative to LastUpdate: while playing the
// real position keeps advancing from Position at wall-clock speed.
type PlaybackState struct {
	IsPlaying  bool
	Position   float64
	LastUpdate time.Time
}

func (p PlaybackState) PositionAt(now time.Time) float64 {
	if !p.IsPlaying {
		return p.Position
	}

	elapsed := now.Sub(p.LastUpdate).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}

	return p.Position + elapsed
}

// ProjectAt returns the same playback re-anchored at now.
func (p PlaybackState) ProjectAt(now time.Time) PlaybackState {
	return PlaybackState{
		IsPlaying:  p.IsPlaying,
		Position:   p.PositionAt(now),
		LastUpdate: now,
	}
}

func clampPosition(position float64) float64 {
	if position < 0 {
		return 0
	}

	return position
}
