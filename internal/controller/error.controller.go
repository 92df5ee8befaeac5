package controller

import (
	"context"
	"errors"

	"github.com/sharetube/syncroom/internal/service"
	"github.com/sharetube/syncroom/pkg/wsrouter"
)

const (
	CodeRoomNotFound           = "ROOM_NOT_FOUND"
	CodeNotAMember             = "NOT_A_MEMBER"
	CodeAlreadyInRoom          = "ALREADY_IN_ROOM"
	CodeInvalidPayload         = "INVALID_PAYLOAD"
	CodeUnknownMessageType     = "UNKNOWN_MESSAGE_TYPE"
	CodeUnsupportedVideoSource = "UNSUPPORTED_VIDEO_SOURCE"
	CodeNoVideo                = "NO_VIDEO"
	CodePermissionDenied       = "PERMISSION_DENIED"
	CodeWrongPassword          = "WRONG_PASSWORD"
	CodeMembersLimitReached    = "MEMBERS_LIMIT_REACHED"
	CodeQueueLimitReached      = "QUEUE_LIMIT_REACHED"
	CodeQueueItemNotFound      = "QUEUE_ITEM_NOT_FOUND"
	CodeInternal               = "INTERNAL_ERROR"
)

var errorCodes = []struct {
	err  error
	code string
}{
	{service.ErrRoomNotFound, CodeRoomNotFound},
	{service.ErrNotAMember, CodeNotAMember},
	{service.ErrAlreadyInRoom, CodeAlreadyInRoom},
	{service.ErrInvalidPayload, CodeInvalidPayload},
	{wsrouter.ErrInvalidPayload, CodeInvalidPayload},
	{wsrouter.ErrUnknownMessageType, CodeUnknownMessageType},
	{service.ErrUnsupportedVideoSource, CodeUnsupportedVideoSource},
	{service.ErrNoVideo, CodeNoVideo},
	{service.ErrPermissionDenied, CodePermissionDenied},
	{service.ErrWrongPassword, CodeWrongPassword},
	{service.ErrMembersLimitReached, CodeMembersLimitReached},
	{service.ErrQueueLimitReached, CodeQueueLimitReached},
	{service.ErrQueueItemNotFound, CodeQueueItemNotFound},
}

func errorCode(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}

	return CodeInternal
}

// handleError reports a failed message to the sending connection only.
func (c controller) handleError(ctx context.Context, sess *session, err error) {
	if errors.Is(err, service.ErrThrottled) {
		return
	}

	ctx = sess.logCtx(ctx)
	code := errorCode(err)
	if code == CodeInternal {
		c.logger.ErrorContext(ctx, "failed to handle message", "error", err)
	} else {
		c.logger.InfoContext(ctx, "message rejected", "code", code, "error", err)
	}

	payload := map[string]any{
		"code":    code,
		"message": err.Error(),
	}
	if code == CodeInternal {
		payload["message"] = "internal error"
	}

	var validationErr *wsrouter.ValidationError
	if errors.As(err, &validationErr) {
		payload["errors"] = validationErr.Errors
	}

	if err := sess.conn.Send(&service.Output{
		Type:    service.TypeError,
		Payload: payload,
	}); err != nil {
		c.logger.DebugContext(ctx, "failed to send error", "error", err)
	}
}
