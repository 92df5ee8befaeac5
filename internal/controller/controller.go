package controller

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sharetube/syncroom/internal/service"
	"github.com/sharetube/syncroom/pkg/validator"
	"github.com/sharetube/syncroom/pkg/wsrouter"
)

type iService interface {
	ConnectMember(context.Context, *service.ConnectMemberParams) error
	DisconnectMember(context.Context, *service.DisconnectMemberParams) error
	CreateRoom(context.Context, *service.CreateRoomParams) (service.CreateRoomResponse, error)
	JoinRoom(context.Context, *service.JoinRoomParams) (service.JoinRoomResponse, error)
	LeaveRoom(context.Context, *service.LeaveRoomParams) (service.LeaveRoomResponse, error)
	KickMember(context.Context, *service.KickMemberParams) error
	UpdateRoomSettings(context.Context, *service.UpdateRoomSettingsParams) error
	GetRoom(context.Context, string) (service.RoomInfo, error)
	RoomsCount() int
	LoadVideo(context.Context, *service.LoadVideoParams) (service.LoadVideoResponse, error)
	Play(context.Context, *service.UpdatePlaybackParams) (service.UpdatePlaybackResponse, error)
	Pause(context.Context, *service.UpdatePlaybackParams) (service.UpdatePlaybackResponse, error)
	Seek(context.Context, *service.UpdatePlaybackParams) (service.UpdatePlaybackResponse, error)
	VideoEnded(context.Context, *service.VideoEndedParams) error
	PlayNext(context.Context, *service.PlayNextParams) error
	AddToQueue(context.Context, *service.AddToQueueParams) (service.AddToQueueResponse, error)
	RemoveFromQueue(context.Context, *service.RemoveFromQueueParams) error
	SetReady(context.Context, *service.SetReadyParams) (service.SetReadyResponse, error)
	VoteSkip(context.Context, *service.VoteSkipParams) error
}

type Config struct {
	// SendBufferSize is the number of outbound frames queued per connection.
	SendBufferSize int
	// WriteTimeout bounds a single socket write.
	WriteTimeout time.Duration
	// PongWait is how long a connection may stay silent before it is dropped.
	PongWait time.Duration
	// MaxMessageSize limits inbound frames in bytes.
	MaxMessageSize int64
	Logger         *slog.Logger
}

type controller struct {
	service        iService
	upgrader       websocket.Upgrader
	wsRouter       *wsrouter.WSRouter[*session]
	logger         *slog.Logger
	sendBufferSize int
	writeTimeout   time.Duration
	pongWait       time.Duration
	maxMessageSize int64
}

func NewController(svc iService, cfg *Config) *controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &controller{
		service: svc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger:         logger,
		sendBufferSize: withDefault(cfg.SendBufferSize, 64),
		writeTimeout:   withDefault(cfg.WriteTimeout, 5*time.Second),
		pongWait:       withDefault(cfg.PongWait, 60*time.Second),
		maxMessageSize: withDefault(cfg.MaxMessageSize, 64*1024),
	}
	c.wsRouter = c.getWSRouter(validator.NewValidator())

	return c
}

func withDefault[T int | int64 | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}

	return v
}
