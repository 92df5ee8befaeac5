package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sharetube/syncroom/internal/domain"
	"github.com/sharetube/syncroom/internal/repository/connection"
	"golang.org/x/crypto/bcrypt"
)

const (
	createRoomAttempts = 5
	closeCodeKicked    = 4001
)

type ConnectMemberParams struct {
	ConnectionId string
	Conn         connection.Conn
}

// ConnectMember registers the outbound side of a new connection. Its id is
// also the member id once the connection joins a room.
func (s service) ConnectMember(ctx context.Context, params *ConnectMemberParams) error {
	if err := s.connRepo.Add(params.ConnectionId, params.Conn); err != nil {
		return fmt.Errorf("failed to connect member: %w", err)
	}

	return nil
}

type DisconnectMemberParams struct {
	ConnectionId string
	RoomId       string
}

func (s service) DisconnectMember(ctx context.Context, params *DisconnectMemberParams) error {
	if params.RoomId != "" {
		_, err := s.LeaveRoom(ctx, &LeaveRoomParams{
			SenderId: params.ConnectionId,
			RoomId:   params.RoomId,
		})
		if err != nil && !errors.Is(err, ErrRoomNotFound) && !errors.Is(err, ErrNotAMember) {
			return fmt.Errorf("failed to leave room: %w", err)
		}
	}

	if _, err := s.connRepo.Remove(params.ConnectionId); err != nil {
		return fmt.Errorf("failed to disconnect member: %w", err)
	}

	return nil
}

type CreateRoomParams struct {
	SenderId string
	Name     string
	Password string
	// PreviousRoomId is left once the new room exists.
	PreviousRoomId string
}

type CreateRoomResponse struct {
	RoomId string
}

func (s service) CreateRoom(ctx context.Context, params *CreateRoomParams) (CreateRoomResponse, error) {
	var passwordHash []byte
	if params.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
		if err != nil {
			return CreateRoomResponse{}, fmt.Errorf("failed to hash password: %w", err)
		}
		passwordHash = hash
	}

	for range createRoomAttempts {
		roomId := s.generator.GenerateRandomString(roomIdLength)
		now := s.clock.Now()

		var created domain.Member
		ok := s.roomRepo.GetOrCreate(roomId, func() *domain.Room {
			rm := domain.NewRoom(roomId, now, &domain.Config{
				MembersLimit:     s.membersLimit,
				QueueLimit:       s.queueLimit,
				ThrottleInterval: s.throttleInterval,
			})
			rm.PasswordHash = passwordHash
			created, _ = rm.Members.Add(domain.Member{
				Id:       params.SenderId,
				Name:     s.memberName(params.Name, params.SenderId),
				JoinedAt: now,
			})
			return rm
		})
		if !ok {
			slog.DebugContext(ctx, "room id collision", "room_id", roomId)
			continue
		}

		if params.PreviousRoomId != "" {
			s.leavePrevious(ctx, params.PreviousRoomId, created.Id)
		}

		err := s.withRoom(roomId, func(rm *domain.Room) error {
			token, err := s.generateRejoinToken(&RejoinClaims{
				RoomId:   roomId,
				MemberId: created.Id,
				JoinedAt: created.JoinedAt,
			})
			if err != nil {
				return fmt.Errorf("failed to generate rejoin token: %w", err)
			}

			s.sendTo(ctx, created.Id, &Output{
				Type: TypeRoomCreated,
				Payload: map[string]any{
					"roomId":      roomId,
					"isHost":      created.IsHost,
					"memberId":    created.Id,
					"rejoinToken": token,
					"queue":       mapQueue(rm.Queue),
					"members":     mapMembers(rm.Members),
					"userCount":   rm.Members.Length(),
				},
			})
			return nil
		})
		if err != nil {
			return CreateRoomResponse{}, err
		}

		slog.InfoContext(ctx, "room created", "room_id", roomId)
		return CreateRoomResponse{RoomId: roomId}, nil
	}

	return CreateRoomResponse{}, errors.New("failed to generate unique room id")
}

type JoinRoomParams struct {
	SenderId    string
	RoomId      string
	Name        string
	Password    string
	RejoinToken string
	// PreviousRoomId is left only if the join succeeds.
	PreviousRoomId string
}

type JoinRoomResponse struct {
	IsHost bool
}

// JoinRoom adds the sender to an existing room. Joining a missing room fails
// with ErrRoomNotFound; rooms are only created by CreateRoom. A failed join
// leaves the sender in its previous room.
func (s service) JoinRoom(ctx context.Context, params *JoinRoomParams) (JoinRoomResponse, error) {
	var resp JoinRoomResponse
	err := s.withRoomPair(params.RoomId, params.PreviousRoomId, func(rm, previous *domain.Room) error {
		if len(rm.PasswordHash) > 0 {
			if err := bcrypt.CompareHashAndPassword(rm.PasswordHash, []byte(params.Password)); err != nil {
				return ErrWrongPassword
			}
		}

		now := s.clock.Now()
		joinedAt := now
		var rejoinedAs string
		if params.RejoinToken != "" {
			claims, err := s.parseRejoinToken(params.RejoinToken)
			switch {
			case err != nil:
				slog.InfoContext(ctx, "ignoring rejoin token", "error", err)
			case claims.RoomId != rm.Id || !claims.JoinedAt.Before(now):
				slog.InfoContext(ctx, "ignoring rejoin token", "error", "token does not match the room")
			case !rm.CanRejoinAs(claims.MemberId):
				slog.InfoContext(ctx, "ignoring rejoin token", "error", "token already used or revoked")
			default:
				joinedAt = claims.JoinedAt
				rejoinedAs = claims.MemberId
			}
		}

		member, err := rm.Members.Add(domain.Member{
			Id:       params.SenderId,
			Name:     s.memberName(params.Name, params.SenderId),
			JoinedAt: joinedAt,
		})
		if err != nil {
			return mapDomainError(err)
		}
		rm.Touch(now)

		token, err := s.generateRejoinToken(&RejoinClaims{
			RoomId:   rm.Id,
			MemberId: member.Id,
			JoinedAt: member.JoinedAt,
		})
		if err != nil {
			// nothing has been broadcast yet, so the join is rolled back
			_, _, _ = rm.Members.RemoveById(member.Id)
			return fmt.Errorf("failed to generate rejoin token: %w", err)
		}

		if rejoinedAs != "" {
			rm.RevokeRejoin(rejoinedAs)
		}
		if previous != nil {
			s.removeMemberLocked(ctx, previous, member.Id)
		}

		var currentVideo *string
		if rm.CurrentVideo != nil {
			videoId := rm.CurrentVideo.VideoId
			currentVideo = &videoId
		}

		s.sendTo(ctx, member.Id, &Output{
			Type: TypeRoomJoined,
			Payload: map[string]any{
				"roomId":       rm.Id,
				"isHost":       member.IsHost,
				"memberId":     member.Id,
				"rejoinToken":  token,
				"currentVideo": currentVideo,
				"video":        mapVideo(rm.CurrentVideo),
				"videoState":   mapVideoState(rm, now, ""),
				"queue":        mapQueue(rm.Queue),
				"members":      mapMembers(rm.Members),
				"userCount":    rm.Members.Length(),
			},
		})
		s.broadcastMembership(ctx, rm, member.Id)

		if rm.CurrentVideo != nil {
			s.scheduleLateJoinSync(ctx, rm.Id, member.Id)
		}

		resp.IsHost = member.IsHost
		return nil
	})
	if err != nil {
		return JoinRoomResponse{}, err
	}

	slog.InfoContext(ctx, "member joined", "room_id", params.RoomId, "is_host", resp.IsHost)
	return resp, nil
}

// scheduleLateJoinSync sends the joiner the playback state once its player
// had time to initialize. The snapshot is taken when the timer fires.
func (s service) scheduleLateJoinSync(ctx context.Context, roomId, memberId string) {
	ctx = context.WithoutCancel(ctx)
	s.clock.AfterFunc(s.lateJoinDelay, func() {
		err := s.withMember(roomId, memberId, func(rm *domain.Room, _ domain.Member) error {
			if rm.CurrentVideo == nil {
				return nil
			}

			s.sendTo(ctx, memberId, &Output{
				Type:    TypeVideoSync,
				Payload: s.videoSyncPayload(rm, s.clock.Now()),
			})
			return nil
		})
		if err != nil {
			slog.DebugContext(ctx, "late join sync skipped", "room_id", roomId, "member_id", memberId, "error", err)
		}
	})
}

func (s service) videoSyncPayload(rm *domain.Room, now time.Time) map[string]any {
	state := mapVideoState(rm, now, "")
	return map[string]any{
		"videoId":     rm.CurrentVideo.VideoId,
		"entryId":     rm.CurrentVideo.EntryId,
		"isPlaying":   state.IsPlaying,
		"currentTime": state.CurrentTime,
		"lastUpdate":  state.LastUpdate,
	}
}

type LeaveRoomParams struct {
	SenderId string
	RoomId   string
}

type LeaveRoomResponse struct {
	IsRoomEmpty bool
}

func (s service) LeaveRoom(ctx context.Context, params *LeaveRoomParams) (LeaveRoomResponse, error) {
	var resp LeaveRoomResponse
	err := s.withMember(params.RoomId, params.SenderId, func(rm *domain.Room, member domain.Member) error {
		s.removeMemberLocked(ctx, rm, member.Id)
		resp.IsRoomEmpty = rm.Members.Length() == 0
		return nil
	})
	if err != nil {
		return LeaveRoomResponse{}, err
	}

	slog.InfoContext(ctx, "member left", "room_id", params.RoomId, "room_empty", resp.IsRoomEmpty)
	return resp, nil
}

// leavePrevious removes memberId from a room it is switching away from. A room
// that is gone or a membership revoked by a kick is ignored.
func (s service) leavePrevious(ctx context.Context, roomId, memberId string) {
	_, err := s.LeaveRoom(ctx, &LeaveRoomParams{
		SenderId: memberId,
		RoomId:   roomId,
	})
	if err != nil && !errors.Is(err, ErrRoomNotFound) && !errors.Is(err, ErrNotAMember) {
		slog.WarnContext(ctx, "failed to leave previous room", "room_id", roomId, "error", err)
	}
}

func (s service) removeMemberLocked(ctx context.Context, rm *domain.Room, memberId string) {
	now := s.clock.Now()
	_, newHost, err := rm.Members.RemoveById(memberId)
	if err != nil {
		return
	}
	rm.Touch(now)

	if newHost != nil {
		s.sendTo(ctx, newHost.Id, &Output{
			Type: TypeHostChanged,
			Payload: map[string]any{
				"isHost": true,
			},
		})
	}
	s.broadcastMembership(ctx, rm, "")

	if rm.Members.Length() > 0 {
		s.evaluateVotesLocked(ctx, rm, now)
		s.startIfAllReadyLocked(ctx, rm, now)
	}
}

type KickMemberParams struct {
	SenderId       string
	RoomId         string
	KickedMemberId string
}

func (s service) KickMember(ctx context.Context, params *KickMemberParams) error {
	return s.withMember(params.RoomId, params.SenderId, func(rm *domain.Room, sender domain.Member) error {
		if !sender.IsHost || params.KickedMemberId == sender.Id {
			return ErrPermissionDenied
		}

		if _, _, err := rm.Members.GetById(params.KickedMemberId); err != nil {
			return ErrNotAMember
		}

		s.removeMemberLocked(ctx, rm, params.KickedMemberId)
		rm.RevokeRejoin(params.KickedMemberId)

		if conn, err := s.connRepo.Get(params.KickedMemberId); err == nil {
			if err := conn.Close(closeCodeKicked, "kicked"); err != nil {
				slog.DebugContext(ctx, "failed to close kicked conn", "error", err)
			}
		}

		slog.InfoContext(ctx, "member kicked", "room_id", rm.Id, "kicked_member_id", params.KickedMemberId)
		return nil
	})
}

type UpdateRoomSettingsParams struct {
	SenderId string
	RoomId   string
	Password *string
}

func (s service) UpdateRoomSettings(ctx context.Context, params *UpdateRoomSettingsParams) error {
	var passwordHash []byte
	if params.Password != nil && *params.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(*params.Password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		passwordHash = hash
	}

	return s.withMember(params.RoomId, params.SenderId, func(rm *domain.Room, sender domain.Member) error {
		if !sender.IsHost {
			return ErrPermissionDenied
		}

		if params.Password != nil {
			rm.PasswordHash = passwordHash
		}
		rm.Touch(s.clock.Now())

		s.broadcastRoom(ctx, rm, &Output{
			Type: TypeRoomSettingsUpdate,
			Payload: map[string]any{
				"hasPassword": len(rm.PasswordHash) > 0,
			},
		})
		return nil
	})
}

type RoomInfo struct {
	RoomId      string `json:"roomId"`
	UserCount   int    `json:"userCount"`
	HasPassword bool   `json:"hasPassword"`
	Status      string `json:"status"`
}

func (s service) GetRoom(ctx context.Context, roomId string) (RoomInfo, error) {
	var info RoomInfo
	err := s.withRoom(roomId, func(rm *domain.Room) error {
		info = RoomInfo{
			RoomId:      rm.Id,
			UserCount:   rm.Members.Length(),
			HasPassword: len(rm.PasswordHash) > 0,
			Status:      rm.Status().String(),
		}
		return nil
	})
	if err != nil {
		return RoomInfo{}, err
	}

	return info, nil
}

// RunJanitor periodically removes inactive rooms until ctx is done.
func (s service) RunJanitor(ctx context.Context) {
	if s.sweepInterval <= 0 {
		return
	}

	ticker := s.clock.Ticker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, expired := range s.roomRepo.Sweep() {
				slog.InfoContext(ctx, "room expired", "room_id", expired.RoomId, "members", len(expired.MemberIds))
				s.broadcast(ctx, expired.MemberIds, &Output{
					Type: TypeRoomClosed,
					Payload: map[string]any{
						"roomId": expired.RoomId,
						"reason": "inactive",
					},
				})
			}
		}
	}
}

func (s service) memberName(name, memberId string) string {
	if name != "" {
		return name
	}

	if len(memberId) > 4 {
		memberId = memberId[:4]
	}

	return "Guest " + memberId
}
