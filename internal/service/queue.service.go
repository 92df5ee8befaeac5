package service

import (
	"context"
	"log/slog"

	"github.com/sharetube/syncroom/internal/domain"
)

type AddToQueueParams struct {
	SenderId string
	RoomId   string
	VideoId  string
	Url      string
	Title    string
}

type AddToQueueResponse struct {
	Item QueueItem
}

// AddToQueue appends a video to the queue. In an idle room the new item is
// loaded and started right away.
func (s service) AddToQueue(ctx context.Context, params *AddToQueueParams) (AddToQueueResponse, error) {
	if !s.roomRepo.Exists(params.RoomId) {
		return AddToQueueResponse{}, ErrRoomNotFound
	}

	video, err := s.resolveVideo(ctx, &resolveVideoParams{
		VideoId: params.VideoId,
		Url:     params.Url,
		Title:   params.Title,
	})
	if err != nil {
		return AddToQueueResponse{}, err
	}

	var resp AddToQueueResponse
	err = s.withMember(params.RoomId, params.SenderId, func(rm *domain.Room, member domain.Member) error {
		now := s.clock.Now()
		item, err := rm.Queue.Add(domain.QueueItem{
			VideoId:  video.VideoId,
			Platform: video.Platform,
			Title:    video.Title,
			AddedBy:  member.Id,
			AddedAt:  now,
		})
		if err != nil {
			return mapDomainError(err)
		}
		rm.Touch(now)
		resp.Item = mapQueueItem(item)

		if rm.Status() == domain.StatusIdle {
			slog.InfoContext(ctx, "room idle, starting queued video", "room_id", rm.Id, "entry_id", item.Id)
			s.advanceLocked(ctx, rm, now)
			return nil
		}

		s.broadcastQueue(ctx, rm)
		return nil
	})
	if err != nil {
		return AddToQueueResponse{}, err
	}

	return resp, nil
}

type RemoveFromQueueParams struct {
	SenderId string
	RoomId   string
	ItemId   int
}

// RemoveFromQueue drops a pending item. Members may remove what they added;
// the host may remove anything.
func (s service) RemoveFromQueue(ctx context.Context, params *RemoveFromQueueParams) error {
	return s.withMember(params.RoomId, params.SenderId, func(rm *domain.Room, member domain.Member) error {
		item, _, err := rm.Queue.GetById(params.ItemId)
		if err != nil {
			return mapDomainError(err)
		}

		if !member.IsHost && item.AddedBy != member.Id {
			return ErrPermissionDenied
		}

		if _, err := rm.Queue.RemoveById(params.ItemId); err != nil {
			return mapDomainError(err)
		}
		rm.Touch(s.clock.Now())

		s.broadcastQueue(ctx, rm)
		return nil
	})
}
