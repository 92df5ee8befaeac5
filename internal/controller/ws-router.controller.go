package controller

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sharetube/syncroom/internal/service"
	"github.com/sharetube/syncroom/pkg/validator"
	"github.com/sharetube/syncroom/pkg/wsrouter"
)

const (
	TypeCreateRoom         = "create-room"
	TypeJoinRoom           = "join-room"
	TypeLeaveRoom          = "leave-room"
	TypeLoadVideo          = "load-video"
	TypeVideoPlay          = "video-play"
	TypeVideoPause         = "video-pause"
	TypeVideoSeek          = "video-seek"
	TypeVideoEnded         = "video-ended"
	TypeAddToQueue         = "add-to-queue"
	TypeRemoveFromQueue    = "remove-from-queue"
	TypePlayNext           = "play-next"
	TypeSetReady           = "set-ready"
	TypeVoteSkip           = "vote-skip"
	TypeKickMember         = "kick-member"
	TypeUpdateRoomSettings = "update-room-settings"
	TypeAlive              = "alive"
)

func (c controller) getWSRouter(v *validator.Validator) *wsrouter.WSRouter[*session] {
	mux := wsrouter.New[*session](v)
	mux.Use(c.loggerWSMw(), c.requireRoomWSMw())
	mux.OnError(c.handleError)

	wsrouter.Handle(mux, TypeAlive, c.handleAlive)

	// room
	wsrouter.Handle(mux, TypeCreateRoom, c.handleCreateRoom)
	wsrouter.Handle(mux, TypeJoinRoom, c.handleJoinRoom)
	wsrouter.Handle(mux, TypeLeaveRoom, c.handleLeaveRoom)
	wsrouter.Handle(mux, TypeKickMember, c.handleKickMember)
	wsrouter.Handle(mux, TypeUpdateRoomSettings, c.handleUpdateRoomSettings)

	// player
	wsrouter.Handle(mux, TypeLoadVideo, c.handleLoadVideo)
	wsrouter.Handle(mux, TypeVideoPlay, c.handleVideoPlay)
	wsrouter.Handle(mux, TypeVideoPause, c.handleVideoPause)
	wsrouter.Handle(mux, TypeVideoSeek, c.handleVideoSeek)
	wsrouter.Handle(mux, TypeVideoEnded, c.handleVideoEnded)

	// queue
	wsrouter.Handle(mux, TypeAddToQueue, c.handleAddToQueue)
	wsrouter.Handle(mux, TypeRemoveFromQueue, c.handleRemoveFromQueue)
	wsrouter.Handle(mux, TypePlayNext, c.handlePlayNext)

	// member
	wsrouter.Handle(mux, TypeSetReady, c.handleSetReady)
	wsrouter.Handle(mux, TypeVoteSkip, c.handleVoteSkip)

	return mux
}

func (c controller) serveWS(w http.ResponseWriter, r *http.Request) {
	ws, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.WarnContext(r.Context(), "failed to upgrade to websocket", "error", err)
		return
	}

	sess := &session{
		connId: newConnectionId(),
		conn:   newWSConn(ws, c.sendBufferSize, c.writeTimeout, c.pongWait),
	}

	// the request context is cancelled when the handler returns; the
	// connection lives until the read loop ends
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	if err := c.service.ConnectMember(ctx, &service.ConnectMemberParams{
		ConnectionId: sess.connId,
		Conn:         sess.conn,
	}); err != nil {
		c.logger.WarnContext(ctx, "failed to connect member", "error", err)
		sess.conn.shutdown()
		return
	}
	defer c.disconnect(ctx, sess)

	go sess.conn.writePump(ctx, c.logger)

	ws.SetReadLimit(c.maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(c.pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	c.logger.InfoContext(sess.logCtx(ctx), "websocket connected")
	if err := c.wsRouter.ServeConn(ctx, sess, &deadlineReader{ws: ws, pongWait: c.pongWait}); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !errors.Is(err, context.Canceled) {
			c.logger.InfoContext(sess.logCtx(ctx), "websocket read failed", "error", err)
		}
	}
}

func (c controller) disconnect(ctx context.Context, sess *session) {
	if err := c.service.DisconnectMember(ctx, &service.DisconnectMemberParams{
		ConnectionId: sess.connId,
		RoomId:       sess.roomId,
	}); err != nil {
		c.logger.WarnContext(sess.logCtx(ctx), "failed to disconnect member", "error", err)
	}

	sess.conn.shutdown()
	c.logger.InfoContext(sess.logCtx(ctx), "websocket disconnected")
}

// deadlineReader extends the read deadline whenever a message arrives, so
// application level keepalives count as liveness too.
type deadlineReader struct {
	ws       *websocket.Conn
	pongWait time.Duration
}

func (d *deadlineReader) ReadJSON(v any) error {
	if err := d.ws.ReadJSON(v); err != nil {
		return err
	}

	return d.ws.SetReadDeadline(time.Now().Add(d.pongWait))
}
