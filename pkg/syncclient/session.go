package syncclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
)

var ErrNotConnected = errors.New("not connected")

type SessionConfig struct {
	// URL of the websocket endpoint, e.g. ws://localhost:8080/api/v1/ws.
	URL      string
	Name     string
	Password string

	Dialer       *websocket.Dialer
	Clock        clock.Clock
	Logger       *slog.Logger
	WriteTimeout time.Duration
	// Reconnect redials after the connection drops and rejoins the room.
	Reconnect      bool
	ReconnectDelay time.Duration
	// RetryDelay is the pause before the single silent rejoin retry.
	RetryDelay time.Duration
	Agent      AgentConfig

	// OnMessage observes every server message after it was handled.
	OnMessage func(Message)
	// OnError receives server errors that were not handled silently.
	OnError func(ErrorPayload)
}

// Session is a websocket client of a sync room. It feeds server directives
// into an Agent and forwards the agent's events to the server.
type Session struct {
	cfg    SessionConfig
	dialer *websocket.Dialer
	clock  clock.Clock
	logger *slog.Logger
	agent  *Agent

	writeMu sync.Mutex
	conn    *websocket.Conn

	mu          sync.Mutex
	roomId      string
	memberId    string
	rejoinToken string
	isHost      bool
	rejoining   bool
	retried     bool
	closed      bool
}

// Dial connects to the server. The player is driven by the session's agent.
func Dial(ctx context.Context, player Player, cfg *SessionConfig) (*Session, error) {
	s := &Session{
		cfg:    *cfg,
		dialer: cfg.Dialer,
		clock:  cfg.Clock,
		logger: cfg.Logger,
	}
	if s.dialer == nil {
		s.dialer = websocket.DefaultDialer
	}
	if s.clock == nil {
		s.clock = clock.New()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.cfg.WriteTimeout = withDefault(cfg.WriteTimeout, 5*time.Second)
	s.cfg.ReconnectDelay = withDefault(cfg.ReconnectDelay, time.Second)
	s.cfg.RetryDelay = withDefault(cfg.RetryDelay, time.Second)

	agentCfg := cfg.Agent
	if agentCfg.Clock == nil {
		agentCfg.Clock = s.clock
	}
	if agentCfg.Logger == nil {
		agentCfg.Logger = s.logger
	}
	s.agent = NewAgent(player, s, &agentCfg)

	conn, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	s.conn = conn

	return s, nil
}

func (s *Session) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := s.dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", s.cfg.URL, err)
	}
	resp.Body.Close()

	return conn, nil
}

func (s *Session) Agent() *Agent {
	return s.agent
}

func (s *Session) RoomId() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.roomId
}

func (s *Session) MemberId() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.memberId
}

func (s *Session) IsHost() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.isHost
}

// Emit sends one event to the server.
func (s *Session) Emit(msgType string, payload any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.conn == nil {
		return ErrNotConnected
	}

	if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		return err
	}

	return s.conn.WriteJSON(outMessage{Type: msgType, Payload: payload})
}

func (s *Session) CreateRoom() error {
	return s.Emit(TypeCreateRoom, createRoomPayload{Name: s.cfg.Name, Password: s.cfg.Password})
}

func (s *Session) JoinRoom(roomId string) error {
	s.mu.Lock()
	s.rejoining = false
	s.retried = false
	s.mu.Unlock()

	return s.Emit(TypeJoinRoom, joinRoomPayload{RoomId: roomId, Name: s.cfg.Name, Password: s.cfg.Password})
}

func (s *Session) LeaveRoom() error {
	s.mu.Lock()
	s.roomId = ""
	s.rejoinToken = ""
	s.mu.Unlock()

	return s.Emit(TypeLeaveRoom, nil)
}

// LoadVideo accepts a video id or a url.
func (s *Session) LoadVideo(source string) error {
	return s.Emit(TypeLoadVideo, videoSource(source, ""))
}

func (s *Session) AddToQueue(source, title string) error {
	return s.Emit(TypeAddToQueue, videoSource(source, title))
}

func (s *Session) PlayNext() error {
	return s.Emit(TypePlayNext, nil)
}

func (s *Session) SetReady(isReady bool) error {
	return s.Emit(TypeSetReady, map[string]bool{"isReady": isReady})
}

func (s *Session) VoteSkip() error {
	return s.Emit(TypeVoteSkip, nil)
}

func videoSource(source, title string) videoSourcePayload {
	if len(source) == 11 {
		return videoSourcePayload{VideoId: source, Title: title}
	}
	return videoSourcePayload{Url: source, Title: title}
}

// Run reads server messages until ctx is done or the connection is lost for
// good. With Reconnect set, a dropped connection is redialed and the room is
// rejoined with the rejoin token.
func (s *Session) Run(ctx context.Context) error {
	s.agent.Start(ctx)
	defer s.agent.Close()

	for {
		err := s.readLoop(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if !s.cfg.Reconnect || s.isClosed() {
			return err
		}

		s.logger.WarnContext(ctx, "connection lost, reconnecting", "error", err)
		if err := s.reconnect(ctx); err != nil {
			return nil
		}
		if err := s.rejoin(); err != nil {
			s.logger.WarnContext(ctx, "failed to rejoin room", "error", err)
		}
	}
}

// reconnect redials until it succeeds or ctx is done.
func (s *Session) reconnect(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(s.cfg.ReconnectDelay):
		}

		conn, err := s.dial(ctx)
		if err != nil {
			s.logger.WarnContext(ctx, "reconnect failed", "error", err)
			continue
		}

		s.writeMu.Lock()
		s.conn = conn
		s.writeMu.Unlock()
		return nil
	}
}

func (s *Session) rejoin() error {
	s.mu.Lock()
	roomId := s.roomId
	token := s.rejoinToken
	s.rejoining = roomId != ""
	s.mu.Unlock()

	if roomId == "" {
		return nil
	}

	return s.Emit(TypeJoinRoom, joinRoomPayload{
		RoomId:      roomId,
		Name:        s.cfg.Name,
		Password:    s.cfg.Password,
		RejoinToken: token,
	})
}

func (s *Session) readLoop(ctx context.Context) error {
	s.writeMu.Lock()
	conn := s.conn
	s.writeMu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()
	defer conn.Close()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}

		if err := s.handle(ctx, msg); err != nil {
			s.logger.WarnContext(ctx, "failed to handle message", "type", msg.Type, "error", err)
		}
		if s.cfg.OnMessage != nil {
			s.cfg.OnMessage(msg)
		}
	}
}

func (s *Session) handle(ctx context.Context, msg Message) error {
	switch msg.Type {
	case TypeRoomCreated:
		var p RoomCreated
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		s.enterRoom(p.RoomId, p.MemberId, p.RejoinToken, p.IsHost)
		s.agent.Stop()

	case TypeRoomJoined:
		var p RoomJoined
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		s.enterRoom(p.RoomId, p.MemberId, p.RejoinToken, p.IsHost)
		if p.Video != nil {
			s.agent.LoadVideo(p.Video.VideoId, p.Video.EntryId, p.VideoState)
		} else {
			s.agent.Stop()
		}

	case TypeVideoLoaded:
		var p VideoLoaded
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		s.agent.LoadVideo(p.VideoId, p.EntryId, p.VideoState)

	case TypeVideoSync:
		var p VideoSync
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		s.agent.LoadVideo(p.VideoId, p.EntryId, p.VideoState)

	case TypeVideoPlay, TypeVideoPause, TypeVideoSeek:
		var p VideoState
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		s.agent.ApplyState(p)

	case TypeVideoStopped:
		s.agent.Stop()

	case TypeHostChanged:
		var p struct {
			IsHost bool `json:"isHost"`
		}
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		s.mu.Lock()
		s.isHost = p.IsHost
		s.mu.Unlock()

	case TypeRoomClosed:
		s.mu.Lock()
		s.roomId = ""
		s.rejoinToken = ""
		s.mu.Unlock()
		s.agent.Stop()

	case TypeError:
		var p ErrorPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		s.handleError(ctx, p)
	}

	return nil
}

func (s *Session) enterRoom(roomId, memberId, token string, isHost bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.roomId = roomId
	s.memberId = memberId
	s.rejoinToken = token
	s.isHost = isHost
	s.rejoining = false
	s.retried = false
}

// handleError retries a failed rejoin once before surfacing the error.
func (s *Session) handleError(ctx context.Context, p ErrorPayload) {
	s.mu.Lock()
	retry := p.Code == CodeRoomNotFound && s.rejoining && !s.retried
	if retry {
		s.retried = true
	} else if p.Code == CodeRoomNotFound && s.rejoining {
		s.rejoining = false
		s.roomId = ""
		s.rejoinToken = ""
	}
	s.mu.Unlock()

	if retry {
		s.logger.InfoContext(ctx, "room not found after reconnect, retrying join")
		s.clock.AfterFunc(s.cfg.RetryDelay, func() {
			if err := s.rejoin(); err != nil {
				s.logger.WarnContext(ctx, "failed to retry join", "error", err)
			}
		})
		return
	}

	s.logger.WarnContext(ctx, "server error", "code", p.Code, "message", p.Message)
	if s.cfg.OnError != nil {
		s.cfg.OnError(p)
	}
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closed
}

// Close closes the current connection; Run returns once it notices.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.conn == nil {
		return nil
	}

	_ = s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(s.cfg.WriteTimeout),
	)
	return s.conn.Close()
}
