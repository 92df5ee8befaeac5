package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/sharetube/syncroom/internal/domain"
)

type SetReadyParams struct {
	SenderId string
	RoomId   string
	IsReady  bool
}

type SetReadyResponse struct {
	Member Member
}

// SetReady records the sender's player readiness. Once every member is ready
// a paused video starts for the whole room.
func (s service) SetReady(ctx context.Context, params *SetReadyParams) (SetReadyResponse, error) {
	var resp SetReadyResponse
	err := s.withMember(params.RoomId, params.SenderId, func(rm *domain.Room, member domain.Member) error {
		if member.IsReady == params.IsReady {
			resp.Member = mapMember(member)
			return nil
		}

		updated, err := rm.Members.SetReady(member.Id, params.IsReady)
		if err != nil {
			return mapDomainError(err)
		}
		now := s.clock.Now()
		rm.Touch(now)
		resp.Member = mapMember(updated)

		s.broadcastRoom(ctx, rm, &Output{
			Type: TypeMembersUpdated,
			Payload: map[string]any{
				"members": mapMembers(rm.Members),
			},
		})

		s.startIfAllReadyLocked(ctx, rm, now)
		return nil
	})
	if err != nil {
		return SetReadyResponse{}, err
	}

	return resp, nil
}

func (s service) startIfAllReadyLocked(ctx context.Context, rm *domain.Room, now time.Time) {
	if rm.Status() != domain.StatusPaused || !rm.Members.AllReady() {
		return
	}

	if _, err := rm.StartPlayback(now); err != nil {
		return
	}

	slog.InfoContext(ctx, "all members ready, starting playback", "room_id", rm.Id)
	s.broadcastRoom(ctx, rm, &Output{
		Type:    TypeVideoPlay,
		Payload: mapVideoState(rm, now, ""),
	})
}

type VoteSkipParams struct {
	SenderId string
	RoomId   string
	Vote     bool
}

// VoteSkip toggles the sender's vote to skip the current video. A strict
// majority of members advances the queue.
func (s service) VoteSkip(ctx context.Context, params *VoteSkipParams) error {
	return s.withMember(params.RoomId, params.SenderId, func(rm *domain.Room, member domain.Member) error {
		if rm.CurrentVideo == nil {
			return ErrNoVideo
		}

		if _, err := rm.Members.SetSkipVote(member.Id, params.Vote); err != nil {
			return mapDomainError(err)
		}
		now := s.clock.Now()
		rm.Touch(now)

		s.evaluateVotesLocked(ctx, rm, now)
		return nil
	})
}

// evaluateVotesLocked announces the vote tally and skips when it reaches a
// majority. It runs after votes change and after membership shrinks.
func (s service) evaluateVotesLocked(ctx context.Context, rm *domain.Room, now time.Time) {
	if rm.CurrentVideo == nil {
		return
	}

	votes := rm.Members.SkipVotes()
	required := requiredSkipVotes(rm.Members.Length())
	s.broadcastRoom(ctx, rm, &Output{
		Type: TypeSkipVotesUpdated,
		Payload: map[string]any{
			"entryId":  rm.CurrentVideo.EntryId,
			"votes":    votes,
			"required": required,
		},
	})

	if votes == 0 || votes < required {
		return
	}

	slog.InfoContext(ctx, "skip vote passed", "room_id", rm.Id, "votes", votes)
	s.advanceLocked(ctx, rm, now)
}

func requiredSkipVotes(members int) int {
	return members/2 + 1
}

func mapMember(member domain.Member) Member {
	return Member{
		Id:      member.Id,
		Name:    member.Name,
		IsHost:  member.IsHost,
		IsReady: member.IsReady,
	}
}
