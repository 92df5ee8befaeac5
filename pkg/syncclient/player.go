package syncclient

import "strconv"

// PlayerState mirrors the numeric states reported by the YouTube iframe player.
type PlayerState int

const (
	StateUnstarted PlayerState = -1
	StateEnded     PlayerState = 0
	StatePlaying   PlayerState = 1
	StatePaused    PlayerState = 2
	StateBuffering PlayerState = 3
	StateCued      PlayerState = 5
)

func (s PlayerState) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateEnded:
		return "ended"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateBuffering:
		return "buffering"
	case StateCued:
		return "cued"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// progressing reports whether the playhead position in this state reflects
// real playback progress.
func (s PlayerState) progressing() bool {
	return s == StatePlaying || s == StatePaused
}

// Player is the control surface of a local video player. State changes are
// reported back through Agent.OnStateChange.
type Player interface {
	LoadByID(videoId string)
	Play()
	Pause()
	SeekTo(seconds float64)
	CurrentTime() float64
	State() PlayerState
}
