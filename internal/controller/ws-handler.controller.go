package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sharetube/syncroom/internal/service"
)

type EmptyInput struct{}

func (c controller) handleAlive(_ context.Context, _ *session, _ EmptyInput) error {
	return nil
}

type CreateRoomInput struct {
	Name     string `json:"name" validate:"max=32"`
	Password string `json:"password" validate:"max=64"`
}

func (c controller) handleCreateRoom(ctx context.Context, sess *session, input CreateRoomInput) error {
	resp, err := c.service.CreateRoom(ctx, &service.CreateRoomParams{
		SenderId:       sess.connId,
		Name:           input.Name,
		Password:       input.Password,
		PreviousRoomId: sess.roomId,
	})
	if err != nil {
		return fmt.Errorf("failed to create room: %w", err)
	}

	sess.roomId = resp.RoomId
	return nil
}

type JoinRoomInput struct {
	RoomId      string `json:"roomId" validate:"required,len=8,alphanum"`
	Name        string `json:"name" validate:"max=32"`
	Password    string `json:"password" validate:"max=64"`
	RejoinToken string `json:"rejoinToken" validate:"max=1024"`
}

func (c controller) handleJoinRoom(ctx context.Context, sess *session, input JoinRoomInput) error {
	if sess.roomId == input.RoomId {
		return service.ErrAlreadyInRoom
	}

	if _, err := c.service.JoinRoom(ctx, &service.JoinRoomParams{
		SenderId:       sess.connId,
		RoomId:         input.RoomId,
		Name:           input.Name,
		Password:       input.Password,
		RejoinToken:    input.RejoinToken,
		PreviousRoomId: sess.roomId,
	}); err != nil {
		return fmt.Errorf("failed to join room: %w", err)
	}

	sess.roomId = input.RoomId
	return nil
}

func (c controller) handleLeaveRoom(ctx context.Context, sess *session, _ EmptyInput) error {
	if !sess.inRoom() {
		return service.ErrNotAMember
	}

	return c.leaveCurrentRoom(ctx, sess)
}

// leaveCurrentRoom detaches the session from its room, if any. A room that is
// already gone or a membership that was revoked by a kick is not an error.
func (c controller) leaveCurrentRoom(ctx context.Context, sess *session) error {
	if !sess.inRoom() {
		return nil
	}

	roomId := sess.roomId
	sess.roomId = ""

	_, err := c.service.LeaveRoom(ctx, &service.LeaveRoomParams{
		SenderId: sess.connId,
		RoomId:   roomId,
	})
	if err != nil && !isGone(err) {
		return fmt.Errorf("failed to leave room: %w", err)
	}

	return nil
}

type VideoSourceInput struct {
	VideoId string `json:"videoId" validate:"omitempty,videoid"`
	Url     string `json:"url" validate:"omitempty,url,max=2048"`
	Title   string `json:"title" validate:"max=256"`
}

func (c controller) handleLoadVideo(ctx context.Context, sess *session, input VideoSourceInput) error {
	if _, err := c.service.LoadVideo(ctx, &service.LoadVideoParams{
		SenderId: sess.connId,
		RoomId:   sess.roomId,
		VideoId:  input.VideoId,
		Url:      input.Url,
		Title:    input.Title,
	}); err != nil {
		return fmt.Errorf("failed to load video: %w", err)
	}

	return nil
}

type PlaybackInput struct {
	CurrentTime float64 `json:"currentTime"`
}

func (c controller) handleVideoPlay(ctx context.Context, sess *session, input PlaybackInput) error {
	_, err := c.service.Play(ctx, c.playbackParams(sess, input))
	return err
}

func (c controller) handleVideoPause(ctx context.Context, sess *session, input PlaybackInput) error {
	_, err := c.service.Pause(ctx, c.playbackParams(sess, input))
	return err
}

func (c controller) handleVideoSeek(ctx context.Context, sess *session, input PlaybackInput) error {
	_, err := c.service.Seek(ctx, c.playbackParams(sess, input))
	return err
}

func (c controller) playbackParams(sess *session, input PlaybackInput) *service.UpdatePlaybackParams {
	return &service.UpdatePlaybackParams{
		SenderId:    sess.connId,
		RoomId:      sess.roomId,
		CurrentTime: input.CurrentTime,
	}
}

type VideoEndedInput struct {
	EntryId int `json:"entryId" validate:"required"`
}

func (c controller) handleVideoEnded(ctx context.Context, sess *session, input VideoEndedInput) error {
	return c.service.VideoEnded(ctx, &service.VideoEndedParams{
		SenderId: sess.connId,
		RoomId:   sess.roomId,
		EntryId:  input.EntryId,
	})
}

func (c controller) handleAddToQueue(ctx context.Context, sess *session, input VideoSourceInput) error {
	if _, err := c.service.AddToQueue(ctx, &service.AddToQueueParams{
		SenderId: sess.connId,
		RoomId:   sess.roomId,
		VideoId:  input.VideoId,
		Url:      input.Url,
		Title:    input.Title,
	}); err != nil {
		return fmt.Errorf("failed to add to queue: %w", err)
	}

	return nil
}

type RemoveFromQueueInput struct {
	ItemId int `json:"itemId" validate:"required"`
}

func (c controller) handleRemoveFromQueue(ctx context.Context, sess *session, input RemoveFromQueueInput) error {
	return c.service.RemoveFromQueue(ctx, &service.RemoveFromQueueParams{
		SenderId: sess.connId,
		RoomId:   sess.roomId,
		ItemId:   input.ItemId,
	})
}

func (c controller) handlePlayNext(ctx context.Context, sess *session, _ EmptyInput) error {
	return c.service.PlayNext(ctx, &service.PlayNextParams{
		SenderId: sess.connId,
		RoomId:   sess.roomId,
	})
}

type SetReadyInput struct {
	IsReady bool `json:"isReady"`
}

func (c controller) handleSetReady(ctx context.Context, sess *session, input SetReadyInput) error {
	_, err := c.service.SetReady(ctx, &service.SetReadyParams{
		SenderId: sess.connId,
		RoomId:   sess.roomId,
		IsReady:  input.IsReady,
	})
	return err
}

type VoteSkipInput struct {
	// Vote defaults to true; false withdraws a vote.
	Vote *bool `json:"vote"`
}

func (c controller) handleVoteSkip(ctx context.Context, sess *session, input VoteSkipInput) error {
	vote := true
	if input.Vote != nil {
		vote = *input.Vote
	}

	return c.service.VoteSkip(ctx, &service.VoteSkipParams{
		SenderId: sess.connId,
		RoomId:   sess.roomId,
		Vote:     vote,
	})
}

type KickMemberInput struct {
	MemberId string `json:"memberId" validate:"required,uuid"`
}

func (c controller) handleKickMember(ctx context.Context, sess *session, input KickMemberInput) error {
	return c.service.KickMember(ctx, &service.KickMemberParams{
		SenderId:       sess.connId,
		RoomId:         sess.roomId,
		KickedMemberId: input.MemberId,
	})
}

type UpdateRoomSettingsInput struct {
	Password *string `json:"password" validate:"omitempty,max=64"`
}

func (c controller) handleUpdateRoomSettings(ctx context.Context, sess *session, input UpdateRoomSettingsInput) error {
	return c.service.UpdateRoomSettings(ctx, &service.UpdateRoomSettingsParams{
		SenderId: sess.connId,
		RoomId:   sess.roomId,
		Password: input.Password,
	})
}

func newConnectionId() string {
	return uuid.NewString()
}

func isGone(err error) bool {
	return errors.Is(err, service.ErrRoomNotFound) || errors.Is(err, service.ErrNotAMember)
}
