package controller

import (
	"context"
	"log/slog"

	"github.com/sharetube/syncroom/pkg/ctxlogger"
)

// session is the per-connection state. It is only touched by the
// connection's read loop.
type session struct {
	connId string
	roomId string
	conn   *wsConn
}

func (s *session) inRoom() bool {
	return s.roomId != ""
}

func (s *session) logCtx(ctx context.Context) context.Context {
	ctx = ctxlogger.AppendCtx(ctx, slog.String("connection_id", s.connId))
	if s.roomId != "" {
		ctx = ctxlogger.AppendCtx(ctx, slog.String("room_id", s.roomId))
	}

	return ctx
}
