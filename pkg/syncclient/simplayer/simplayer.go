// Package simplayer is an in-memory video player driven by a clock. It
// reports state changes the way the YouTube iframe player does, including
// the buffering step after a seek during playback.
package simplayer

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sharetube/syncroom/pkg/syncclient"
)

type Player struct {
	clock    clock.Clock
	duration time.Duration

	mu       sync.Mutex
	listener func(syncclient.PlayerState)
	videoId  string
	state    syncclient.PlayerState
	position float64
	since    time.Time
	endTimer *clock.Timer
}

// New creates a player; videos end after duration, zero means never.
func New(clk clock.Clock, duration time.Duration) *Player {
	if clk == nil {
		clk = clock.New()
	}

	return &Player{
		clock:    clk,
		duration: duration,
		state:    syncclient.StateUnstarted,
	}
}

// SetListener registers the state change callback.
func (p *Player) SetListener(fn func(syncclient.PlayerState)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.listener = fn
}

func (p *Player) VideoId() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.videoId
}

func (p *Player) LoadByID(videoId string) {
	p.mu.Lock()
	p.stopEndTimer()
	p.videoId = videoId
	p.position = 0
	p.mu.Unlock()

	p.setState(syncclient.StateCued)
}

func (p *Player) Play() {
	p.mu.Lock()
	if p.videoId == "" || p.state == syncclient.StatePlaying {
		p.mu.Unlock()
		return
	}
	p.since = p.clock.Now()
	p.scheduleEnd()
	p.mu.Unlock()

	p.setState(syncclient.StatePlaying)
}

func (p *Player) Pause() {
	p.mu.Lock()
	if p.state != syncclient.StatePlaying && p.state != syncclient.StateBuffering {
		p.mu.Unlock()
		return
	}
	p.position = p.positionLocked()
	p.stopEndTimer()
	p.mu.Unlock()

	p.setState(syncclient.StatePaused)
}

func (p *Player) SeekTo(seconds float64) {
	p.mu.Lock()
	if p.videoId == "" {
		p.mu.Unlock()
		return
	}
	p.position = max(seconds, 0)
	if p.duration > 0 {
		p.position = min(p.position, p.duration.Seconds())
	}
	p.since = p.clock.Now()
	playing := p.state == syncclient.StatePlaying
	if playing {
		p.scheduleEnd()
	}
	p.mu.Unlock()

	if playing {
		p.setState(syncclient.StateBuffering)
		p.mu.Lock()
		p.since = p.clock.Now()
		p.mu.Unlock()
		p.setState(syncclient.StatePlaying)
	}
}

func (p *Player) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.positionLocked()
}

func (p *Player) State() syncclient.PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state
}

func (p *Player) positionLocked() float64 {
	if p.state != syncclient.StatePlaying {
		return p.position
	}

	pos := p.position + p.clock.Since(p.since).Seconds()
	if p.duration > 0 {
		pos = min(pos, p.duration.Seconds())
	}
	return pos
}

func (p *Player) scheduleEnd() {
	p.stopEndTimer()
	if p.duration <= 0 {
		return
	}

	remaining := p.duration - time.Duration(p.position*float64(time.Second))
	p.endTimer = p.clock.AfterFunc(max(remaining, 0), p.end)
}

func (p *Player) stopEndTimer() {
	if p.endTimer != nil {
		p.endTimer.Stop()
		p.endTimer = nil
	}
}

func (p *Player) end() {
	p.mu.Lock()
	if p.state != syncclient.StatePlaying {
		p.mu.Unlock()
		return
	}
	p.position = p.duration.Seconds()
	p.endTimer = nil
	p.mu.Unlock()

	p.setState(syncclient.StateEnded)
}

func (p *Player) setState(state syncclient.PlayerState) {
	p.mu.Lock()
	p.state = state
	listener := p.listener
	p.mu.Unlock()

	if listener != nil {
		listener(state)
	}
}
