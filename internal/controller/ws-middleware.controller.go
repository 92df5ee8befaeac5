package controller

import (
	"context"
	"log/slog"
	"time"

	"github.com/sharetube/syncroom/internal/service"
	"github.com/sharetube/syncroom/pkg/ctxlogger"
	"github.com/sharetube/syncroom/pkg/wsrouter"
)

func (c controller) loggerWSMw() wsrouter.Middleware[*session] {
	return func(next wsrouter.HandlerFunc[*session, any]) wsrouter.HandlerFunc[*session, any] {
		return func(ctx context.Context, sess *session, payload any) error {
			ctx = sess.logCtx(ctx)
			ctx = ctxlogger.AppendCtx(ctx, slog.String("message_type", wsrouter.GetMessageTypeFromCtx(ctx)))
			c.logger.DebugContext(ctx, "websocket message received", "payload", payload)

			start := time.Now()
			err := next(ctx, sess, payload)

			c.logger.InfoContext(ctx, "websocket message handled",
				"processing_time_us", time.Since(start).Microseconds(),
				"ok", err == nil,
			)

			return err
		}
	}
}

// roomlessMessages may be sent by a connection that is not in a room.
var roomlessMessages = map[string]bool{
	TypeCreateRoom: true,
	TypeJoinRoom:   true,
	TypeAlive:      true,
}

func (c controller) requireRoomWSMw() wsrouter.Middleware[*session] {
	return func(next wsrouter.HandlerFunc[*session, any]) wsrouter.HandlerFunc[*session, any] {
		return func(ctx context.Context, sess *session, payload any) error {
			if !sess.inRoom() && !roomlessMessages[wsrouter.GetMessageTypeFromCtx(ctx)] {
				return service.ErrNotAMember
			}

			return next(ctx, sess, payload)
		}
	}
}
