package service

import (
	"context"
	"log/slog"

	"github.com/sharetube/syncroom/internal/domain"
)

const (
	TypeRoomCreated        = "room-created"
	TypeRoomJoined         = "room-joined"
	TypeRoomClosed         = "room-closed"
	TypeRoomSettingsUpdate = "room-settings-updated"
	TypeVideoLoaded        = "video-loaded"
	TypeVideoPlay          = "video-play"
	TypeVideoPause         = "video-pause"
	TypeVideoSeek          = "video-seek"
	TypeVideoSync          = "video-sync"
	TypeVideoStopped       = "video-stopped"
	TypeQueueUpdated       = "queue-updated"
	TypeUserCountUpdated   = "user-count-updated"
	TypeMembersUpdated     = "members-updated"
	TypeHostChanged        = "host-changed"
	TypeSkipVotesUpdated   = "skip-votes-updated"
	TypeError              = "error"
)

type Output struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

func (s service) sendTo(ctx context.Context, memberId string, out *Output) {
	conn, err := s.connRepo.Get(memberId)
	if err != nil {
		slog.DebugContext(ctx, "skip send to disconnected member", "member_id", memberId, "type", out.Type)
		return
	}

	if err := conn.Send(out); err != nil {
		slog.WarnContext(ctx, "failed to send", "member_id", memberId, "type", out.Type, "error", err)
	}
}

func (s service) broadcast(ctx context.Context, memberIds []string, out *Output) {
	for _, memberId := range memberIds {
		s.sendTo(ctx, memberId, out)
	}
}

func (s service) broadcastRoom(ctx context.Context, rm *domain.Room, out *Output) {
	s.broadcast(ctx, rm.Members.Ids(), out)
}

func (s service) broadcastOthers(ctx context.Context, rm *domain.Room, exceptId string, out *Output) {
	for _, memberId := range rm.Members.Ids() {
		if memberId != exceptId {
			s.sendTo(ctx, memberId, out)
		}
	}
}

func (s service) broadcastMembership(ctx context.Context, rm *domain.Room, exceptId string) {
	s.broadcastOthers(ctx, rm, exceptId, &Output{
		Type: TypeMembersUpdated,
		Payload: map[string]any{
			"members": mapMembers(rm.Members),
		},
	})
	s.broadcastOthers(ctx, rm, exceptId, &Output{
		Type: TypeUserCountUpdated,
		Payload: map[string]any{
			"userCount": rm.Members.Length(),
		},
	})
}

func (s service) broadcastQueue(ctx context.Context, rm *domain.Room) {
	s.broadcastRoom(ctx, rm, &Output{
		Type: TypeQueueUpdated,
		Payload: map[string]any{
			"queue": mapQueue(rm.Queue),
		},
	})
}
