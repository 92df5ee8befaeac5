package domain

import (
	"errors"
	"time"

	"golang.org/x/time/rate"
)

var (
	ErrNoVideo   = errors.New("no video loaded")
	ErrThrottled = errors.New("transition throttled")
)

// flipBurst is how many play/pause flips pass inside one throttle window.
const flipBurst = 3

type Video struct {
	EntryId  int
	VideoId  string
	Platform string
	Title    string
}

type Config struct {
	MembersLimit     int
	QueueLimit       int
	ThrottleInterval time.Duration
}

// Room is the authoritative state of one room. It is not safe for
// concurrent use; the registry serializes access.
type Room struct {
	Id             string
	PasswordHash   []byte
	CreatedAt      time.Time
	LastActivityAt time.Time
	Members        *Members
	Queue          *Queue
	CurrentVideo   *Video
	Playback       PlaybackState
	throttle       *rate.Limiter
	flipThrottle   *rate.Limiter
	revokedRejoins map[string]struct{}
}

func NewRoom(id string, now time.Time, cfg *Config) *Room {
	limiter := rate.NewLimiter(rate.Inf, 1)
	flipLimiter := rate.NewLimiter(rate.Inf, flipBurst)
	if cfg.ThrottleInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.ThrottleInterval), 1)
		flipLimiter = rate.NewLimiter(rate.Every(cfg.ThrottleInterval), flipBurst)
	}

	return &Room{
		Id:             id,
		CreatedAt:      now,
		LastActivityAt: now,
		Members:        NewMembers(cfg.MembersLimit),
		Queue:          NewQueue(cfg.QueueLimit),
		Playback:       PlaybackState{LastUpdate: now},
		throttle:       limiter,
		flipThrottle:   flipLimiter,
		revokedRejoins: make(map[string]struct{}),
	}
}

func (r *Room) Touch(now time.Time) {
	r.LastActivityAt = now
}

func (r Room) Status() Status {
	switch {
	case r.CurrentVideo == nil:
		return StatusIdle
	case r.Playback.IsPlaying:
		return StatusPlaying
	default:
		return StatusPaused
	}
}

// Snapshot returns the playback state projected to now.
func (r Room) Snapshot(now time.Time) PlaybackState {
	return r.Playback.ProjectAt(now)
}

// allowTransition drops seeks and repeated play/pause inside the throttle
// window. Play/pause flips have their own limiter that lets a few toggles
// through per window and drops longer play/pause storms.
func (r *Room) allowTransition(now time.Time, isPlaying bool, isSeek bool) bool {
	if !isSeek && r.Playback.IsPlaying != isPlaying {
		if !r.flipThrottle.AllowN(now, 1) {
			return false
		}
		r.throttle.AllowN(now, 1)
		return true
	}

	return r.throttle.AllowN(now, 1)
}

func (r *Room) applyTransition(now time.Time, isPlaying bool, position float64, isSeek bool) (PlaybackState, error) {
	if r.CurrentVideo == nil {
		return PlaybackState{}, ErrNoVideo
	}

	if !r.allowTransition(now, isPlaying, isSeek) {
		return PlaybackState{}, ErrThrottled
	}

	r.Playback = PlaybackState{
		IsPlaying:  isPlaying,
		Position:   clampPosition(position),
		LastUpdate: now,
	}
	r.Touch(now)

	return r.Playback, nil
}

func (r *Room) ApplyPlay(now time.Time, position float64) (PlaybackState, error) {
	return r.applyTransition(now, true, position, false)
}

func (r *Room) ApplyPause(now time.Time, position float64) (PlaybackState, error) {
	return r.applyTransition(now, false, position, false)
}

// ApplySeek moves the playhead and keeps the play/pause state.
func (r *Room) ApplySeek(now time.Time, position float64) (PlaybackState, error) {
	return r.applyTransition(now, r.Playback.IsPlaying, position, true)
}

// LoadVideo makes video current, paused at 0.
func (r *Room) LoadVideo(now time.Time, video Video) Video {
	if video.EntryId == 0 {
		video.EntryId = r.Queue.NextId()
	}

	r.CurrentVideo = &video
	r.Playback = PlaybackState{LastUpdate: now}
	r.Members.resetVideoFlags()
	r.Touch(now)

	return video
}

// AdvanceQueue pops the queue head and loads it. With an empty queue the
// current video is cleared and false is returned.
func (r *Room) AdvanceQueue(now time.Time) (QueueItem, bool) {
	item, ok := r.Queue.Pop()
	if !ok {
		r.CurrentVideo = nil
		r.Playback = PlaybackState{LastUpdate: now}
		r.Members.resetVideoFlags()
		r.Touch(now)
		return QueueItem{}, false
	}

	r.LoadVideo(now, Video{
		EntryId:  item.Id,
		VideoId:  item.VideoId,
		Platform: item.Platform,
		Title:    item.Title,
	})

	return item, true
}

// StartPlayback resumes the loaded video from its current position without
// consuming the throttle. It is used for server-originated starts.
func (r *Room) StartPlayback(now time.Time) (PlaybackState, error) {
	if r.CurrentVideo == nil {
		return PlaybackState{}, ErrNoVideo
	}

	r.Playback = PlaybackState{
		IsPlaying:  true,
		Position:   r.Playback.PositionAt(now),
		LastUpdate: now,
	}
	r.Touch(now)

	return r.Playback, nil
}

// IsCurrentEntry reports whether entryId names the loaded video.
func (r Room) IsCurrentEntry(entryId int) bool {
	return r.CurrentVideo != nil && r.CurrentVideo.EntryId == entryId
}

// RevokeRejoin invalidates rejoin tokens issued to memberId.
func (r *Room) RevokeRejoin(memberId string) {
	r.revokedRejoins[memberId] = struct{}{}
}

// CanRejoinAs reports whether a rejoin token issued to memberId may still be
// used: the member is not connected and its tokens were not revoked.
func (r Room) CanRejoinAs(memberId string) bool {
	if _, revoked := r.revokedRejoins[memberId]; revoked {
		return false
	}

	_, _, err := r.Members.GetById(memberId)
	return err != nil
}
