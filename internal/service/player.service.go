package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sharetube/syncroom/internal/domain"
)

type LoadVideoParams struct {
	SenderId string
	RoomId   string
	VideoId  string
	Url      string
	Title    string
}

type LoadVideoResponse struct {
	Video Video
}

// LoadVideo replaces the current video for the whole room, paused at 0.
func (s service) LoadVideo(ctx context.Context, params *LoadVideoParams) (LoadVideoResponse, error) {
	if !s.roomRepo.Exists(params.RoomId) {
		return LoadVideoResponse{}, ErrRoomNotFound
	}

	video, err := s.resolveVideo(ctx, &resolveVideoParams{
		VideoId: params.VideoId,
		Url:     params.Url,
		Title:   params.Title,
	})
	if err != nil {
		return LoadVideoResponse{}, err
	}

	var resp LoadVideoResponse
	err = s.withMember(params.RoomId, params.SenderId, func(rm *domain.Room, _ domain.Member) error {
		now := s.clock.Now()
		loaded := rm.LoadVideo(now, video)
		s.broadcastVideoLoaded(ctx, rm, now)
		resp.Video = *mapVideo(&loaded)
		return nil
	})
	if err != nil {
		return LoadVideoResponse{}, err
	}

	return resp, nil
}

type UpdatePlaybackParams struct {
	SenderId    string
	RoomId      string
	CurrentTime float64
}

type UpdatePlaybackResponse struct {
	VideoState VideoState
}

func (s service) Play(ctx context.Context, params *UpdatePlaybackParams) (UpdatePlaybackResponse, error) {
	return s.updatePlayback(ctx, params, TypeVideoPlay, (*domain.Room).ApplyPlay)
}

func (s service) Pause(ctx context.Context, params *UpdatePlaybackParams) (UpdatePlaybackResponse, error) {
	return s.updatePlayback(ctx, params, TypeVideoPause, (*domain.Room).ApplyPause)
}

func (s service) Seek(ctx context.Context, params *UpdatePlaybackParams) (UpdatePlaybackResponse, error) {
	return s.updatePlayback(ctx, params, TypeVideoSeek, (*domain.Room).ApplySeek)
}

type transitionFunc func(rm *domain.Room, now time.Time, position float64) (domain.PlaybackState, error)

// updatePlayback records a reported transition and relays the compensated
// state to every member except the reporter. A dropped transition is
// answered with video-sync so the reporter's player returns to the room state.
func (s service) updatePlayback(ctx context.Context, params *UpdatePlaybackParams, outType string, apply transitionFunc) (UpdatePlaybackResponse, error) {
	var resp UpdatePlaybackResponse
	err := s.withMember(params.RoomId, params.SenderId, func(rm *domain.Room, member domain.Member) error {
		now := s.clock.Now()
		if _, err := apply(rm, now, params.CurrentTime); err != nil {
			if errors.Is(err, domain.ErrThrottled) {
				s.sendTo(ctx, member.Id, &Output{
					Type:    TypeVideoSync,
					Payload: s.videoSyncPayload(rm, now),
				})
			}
			return mapDomainError(err)
		}

		resp.VideoState = mapVideoState(rm, now, member.Id)
		s.broadcastOthers(ctx, rm, member.Id, &Output{
			Type:    outType,
			Payload: resp.VideoState,
		})
		return nil
	})
	if errors.Is(err, ErrThrottled) {
		slog.DebugContext(ctx, "transition dropped", "room_id", params.RoomId, "type", outType)
	}
	if err != nil {
		return UpdatePlaybackResponse{}, err
	}

	return resp, nil
}

type VideoEndedParams struct {
	SenderId string
	RoomId   string
	EntryId  int
}

// VideoEnded advances the queue once per entry no matter how many members
// report the end.
func (s service) VideoEnded(ctx context.Context, params *VideoEndedParams) error {
	return s.withMember(params.RoomId, params.SenderId, func(rm *domain.Room, _ domain.Member) error {
		if !rm.IsCurrentEntry(params.EntryId) {
			slog.DebugContext(ctx, "stale video ended report", "room_id", rm.Id, "entry_id", params.EntryId)
			return nil
		}

		s.advanceLocked(ctx, rm, s.clock.Now())
		return nil
	})
}

type PlayNextParams struct {
	SenderId string
	RoomId   string
}

func (s service) PlayNext(ctx context.Context, params *PlayNextParams) error {
	return s.withMember(params.RoomId, params.SenderId, func(rm *domain.Room, _ domain.Member) error {
		s.advanceLocked(ctx, rm, s.clock.Now())
		return nil
	})
}

// advanceLocked loads the next queued video and starts it for everybody, or
// announces that playback stopped when the queue is empty.
func (s service) advanceLocked(ctx context.Context, rm *domain.Room, now time.Time) {
	_, ok := rm.AdvanceQueue(now)
	s.broadcastQueue(ctx, rm)
	if !ok {
		s.broadcastRoom(ctx, rm, &Output{
			Type: TypeVideoStopped,
			Payload: map[string]any{
				"videoState": mapVideoState(rm, now, ""),
			},
		})
		slog.InfoContext(ctx, "queue exhausted", "room_id", rm.Id)
		return
	}

	rm.StartPlayback(now)
	s.broadcastVideoLoaded(ctx, rm, now)
}

func (s service) broadcastVideoLoaded(ctx context.Context, rm *domain.Room, now time.Time) {
	video := mapVideo(rm.CurrentVideo)
	s.broadcastRoom(ctx, rm, &Output{
		Type: TypeVideoLoaded,
		Payload: map[string]any{
			"videoId":    video.VideoId,
			"entryId":    video.EntryId,
			"platform":   video.Platform,
			"title":      video.Title,
			"videoState": mapVideoState(rm, now, ""),
		},
	})
}
