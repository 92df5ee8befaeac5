package syncclient

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	DefaultSuppressWindow = 1500 * time.Millisecond
	DefaultMaxTransit     = 5 * time.Second
	DefaultSeekTolerance  = 2 * time.Second
	DefaultPollInterval   = time.Second
	DefaultDriftThreshold = 3 * time.Second
)

// Emitter sends a client event to the server.
type Emitter interface {
	Emit(msgType string, payload any) error
}

type AgentConfig struct {
	Clock  clock.Clock
	Logger *slog.Logger
	// SuppressWindow is how long local player events are ignored after a
	// remote update was applied.
	SuppressWindow time.Duration
	MaxTransit     time.Duration
	SeekTolerance  time.Duration
	PollInterval   time.Duration
	DriftThreshold time.Duration
}

type agentState int

const (
	stateIdle agentState = iota
	stateApplyingRemote
)

type baseline struct {
	valid   bool
	time    float64
	at      time.Time
	playing bool
}

// Agent reconciles a local player with the authoritative room state. It
// turns local player changes into outbound events, applies remote snapshots
// and detects manual seeks by polling the playhead.
//
// The agent never holds its lock while calling into the player, so players
// may report state changes synchronously.
type Agent struct {
	player Player
	emit   Emitter
	clock  clock.Clock
	logger *slog.Logger

	suppressWindow time.Duration
	maxTransit     time.Duration
	seekTolerance  float64
	pollInterval   time.Duration
	driftThreshold float64

	mu            sync.Mutex
	state         agentState
	suppressTimer *clock.Timer
	suppressGen   uint64
	videoId       string
	entryId       int
	baseline      baseline
	cancelPoll    context.CancelFunc
	closed        bool
}

func withDefault(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func NewAgent(player Player, emit Emitter, cfg *AgentConfig) *Agent {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Agent{
		player:         player,
		emit:           emit,
		clock:          clk,
		logger:         logger,
		suppressWindow: withDefault(cfg.SuppressWindow, DefaultSuppressWindow),
		maxTransit:     withDefault(cfg.MaxTransit, DefaultMaxTransit),
		seekTolerance:  withDefault(cfg.SeekTolerance, DefaultSeekTolerance).Seconds(),
		pollInterval:   withDefault(cfg.PollInterval, DefaultPollInterval),
		driftThreshold: withDefault(cfg.DriftThreshold, DefaultDriftThreshold).Seconds(),
	}
}

// Start runs the drift poll until ctx is done or the agent is closed.
func (a *Agent) Start(ctx context.Context) {
	a.mu.Lock()
	if a.closed || a.cancelPoll != nil {
		a.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancelPoll = cancel
	a.mu.Unlock()

	ticker := a.clock.Ticker(a.pollInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.CheckDrift()
			}
		}
	}()
}

// Close stops the drift poll and the suppression timer.
func (a *Agent) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.closed = true
	if a.cancelPoll != nil {
		a.cancelPoll()
	}
	if a.suppressTimer != nil {
		a.suppressTimer.Stop()
		a.suppressTimer = nil
	}
	a.state = stateIdle
	a.baseline = baseline{}
}

// Suppressed reports whether local player events are currently ignored.
func (a *Agent) Suppressed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.state == stateApplyingRemote
}

func (a *Agent) EntryId() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.entryId
}

// beginRemote moves the agent into applyingRemote and (re)starts the single
// suppression timer. Returns false once the agent is closed.
func (a *Agent) beginRemote() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return false
	}

	a.state = stateApplyingRemote
	a.baseline = baseline{}
	a.suppressGen++
	gen := a.suppressGen
	if a.suppressTimer != nil {
		a.suppressTimer.Stop()
	}
	a.suppressTimer = a.clock.AfterFunc(a.suppressWindow, func() {
		a.endRemote(gen)
	})

	return true
}

func (a *Agent) endRemote(gen uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// a newer remote update restarted the window
	if gen != a.suppressGen || a.closed {
		return
	}

	a.state = stateIdle
	a.suppressTimer = nil
	a.baseline = baseline{}
}

// LoadVideo switches the local player to a video announced by the server and
// applies its snapshot.
func (a *Agent) LoadVideo(videoId string, entryId int, state VideoState) {
	if !a.beginRemote() {
		return
	}

	a.mu.Lock()
	changed := a.videoId != videoId || a.entryId != entryId
	a.videoId = videoId
	a.entryId = entryId
	a.mu.Unlock()

	if changed {
		a.logger.Debug("loading video", "video_id", videoId, "entry_id", entryId)
		a.player.LoadByID(videoId)
	}

	a.apply(state)
}

// ApplyState reconciles the local player with a remote snapshot.
func (a *Agent) ApplyState(state VideoState) {
	if !a.beginRemote() {
		return
	}

	a.apply(state)
}

func (a *Agent) apply(state VideoState) {
	target := state.target(a.clock.Now(), a.maxTransit)

	current := a.player.CurrentTime()
	if math.Abs(current-target) > a.seekTolerance {
		a.logger.Debug("seeking to remote position", "current", current, "target", target)
		a.player.SeekTo(target)
	}

	playerState := a.player.State()
	switch {
	case state.IsPlaying && playerState != StatePlaying:
		a.player.Play()
	case !state.IsPlaying && (playerState == StatePlaying || playerState == StateBuffering):
		a.player.Pause()
	}
}

// Stop handles a server side stop: the queue ran out.
func (a *Agent) Stop() {
	if !a.beginRemote() {
		return
	}

	a.mu.Lock()
	a.videoId = ""
	a.entryId = 0
	a.mu.Unlock()

	if a.player.State() == StatePlaying {
		a.player.Pause()
	}
}

// OnStateChange receives state notifications from the local player.
func (a *Agent) OnStateChange(state PlayerState) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	if a.state == stateApplyingRemote {
		a.mu.Unlock()
		a.logger.Debug("ignoring player state during remote update", "state", state)
		return
	}
	if !state.progressing() {
		a.baseline = baseline{}
	}
	if a.videoId == "" {
		a.mu.Unlock()
		return
	}
	entryId := a.entryId
	a.mu.Unlock()

	switch state {
	case StatePlaying:
		a.send(TypeVideoPlay, playbackPayload{CurrentTime: a.player.CurrentTime()})
	case StatePaused:
		a.send(TypeVideoPause, playbackPayload{CurrentTime: a.player.CurrentTime()})
	case StateEnded:
		if entryId != 0 {
			a.send(TypeVideoEnded, videoEndedPayload{EntryId: entryId})
		}
	}
}

// CheckDrift samples the playhead and reports a seek when it moved further
// than the elapsed time explains.
func (a *Agent) CheckDrift() {
	a.mu.Lock()
	if a.closed || a.state == stateApplyingRemote || a.videoId == "" {
		a.baseline = baseline{}
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()

	current := a.player.CurrentTime()
	playerState := a.player.State()
	now := a.clock.Now()

	a.mu.Lock()
	// a remote update may have started while the player was sampled
	if a.state == stateApplyingRemote || !playerState.progressing() {
		a.baseline = baseline{}
		a.mu.Unlock()
		return
	}

	prev := a.baseline
	a.baseline = baseline{valid: true, time: current, at: now, playing: playerState == StatePlaying}
	a.mu.Unlock()

	if !prev.valid {
		return
	}

	expected := prev.time
	if prev.playing {
		expected += now.Sub(prev.at).Seconds()
	}

	if math.Abs(current-expected) > a.driftThreshold {
		a.logger.Debug("manual seek detected", "expected", expected, "current", current)
		a.send(TypeVideoSeek, playbackPayload{CurrentTime: current})
	}
}

func (a *Agent) send(msgType string, payload any) {
	if err := a.emit.Emit(msgType, payload); err != nil {
		a.logger.Warn("failed to emit event", "type", msgType, "error", err)
	}
}
