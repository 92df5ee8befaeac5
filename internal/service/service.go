package service

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sharetube/syncroom/internal/domain"
	"github.com/sharetube/syncroom/internal/repository/connection"
	"github.com/sharetube/syncroom/internal/repository/room"
	"github.com/sharetube/syncroom/internal/repository/videodata"
	"github.com/sharetube/syncroom/pkg/randstr"
	"github.com/sharetube/syncroom/pkg/ytvideodata"
)

var (
	ErrRoomNotFound           = errors.New("room not found")
	ErrNotAMember             = errors.New("not a member of the room")
	ErrAlreadyInRoom          = errors.New("already in a room")
	ErrInvalidPayload         = errors.New("invalid payload")
	ErrUnsupportedVideoSource = errors.New("unsupported video source")
	ErrNoVideo                = errors.New("no video loaded")
	ErrPermissionDenied       = errors.New("permission denied")
	ErrWrongPassword          = errors.New("wrong room password")
	ErrMembersLimitReached    = errors.New("members limit reached")
	ErrQueueLimitReached      = errors.New("queue limit reached")
	ErrQueueItemNotFound      = errors.New("queue item not found")
	ErrThrottled              = errors.New("transition throttled")
)

const roomIdLength = 8

type iRoomRepo interface {
	GetOrCreate(roomId string, newRoom func() *domain.Room) bool
	WithRoom(roomId string, fn func(*domain.Room) error) error
	WithRoomPair(roomId, otherId string, fn func(rm, other *domain.Room) error) error
	Exists(roomId string) bool
	Sweep() []room.Expired
	Len() int
}

type iConnRepo interface {
	Add(memberId string, conn connection.Conn) error
	Remove(memberId string) (connection.Conn, error)
	Get(memberId string) (connection.Conn, error)
}

type iVideoDataRepo interface {
	Get(ctx context.Context, videoId string) (videodata.VideoData, error)
	Set(ctx context.Context, videoId string, data *videodata.VideoData) error
}

type iVideoDataProvider interface {
	Get(ctx context.Context, videoId string) (*ytvideodata.VideoData, error)
}

type iGenerator interface {
	GenerateRandomString(length int) string
}

type service struct {
	roomRepo         iRoomRepo
	connRepo         iConnRepo
	videoDataRepo    iVideoDataRepo
	videoData        iVideoDataProvider
	generator        iGenerator
	clock            clock.Clock
	membersLimit     int
	queueLimit       int
	secret           []byte
	throttleInterval time.Duration
	lateJoinDelay    time.Duration
	metadataTimeout  time.Duration
	sweepInterval    time.Duration
	rejoinTokenTTL   time.Duration
}

type Config struct {
	MembersLimit     int
	QueueLimit       int
	Secret           string
	ThrottleInterval time.Duration
	LateJoinDelay    time.Duration
	MetadataTimeout  time.Duration
	SweepInterval    time.Duration
	RejoinTokenTTL   time.Duration
	Clock            clock.Clock
	// VideoDataRepo and VideoData are optional.
	VideoDataRepo iVideoDataRepo
	VideoData     iVideoDataProvider
}

func New(roomRepo iRoomRepo, connRepo iConnRepo, cfg *Config) *service {
	letterBytes := []byte("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")

	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}

	generator := randstr.New(letterBytes)
	secret := cfg.Secret
	if secret == "" {
		secret = generator.GenerateRandomString(32)
	}

	return &service{
		roomRepo:         roomRepo,
		connRepo:         connRepo,
		videoDataRepo:    cfg.VideoDataRepo,
		videoData:        cfg.VideoData,
		generator:        generator,
		clock:            clk,
		membersLimit:     cfg.MembersLimit,
		queueLimit:       cfg.QueueLimit,
		secret:           []byte(secret),
		throttleInterval: cfg.ThrottleInterval,
		lateJoinDelay:    cfg.LateJoinDelay,
		metadataTimeout:  cfg.MetadataTimeout,
		sweepInterval:    cfg.SweepInterval,
		rejoinTokenTTL:   cfg.RejoinTokenTTL,
	}
}

// withRoom maps repository errors to service errors.
func (s service) withRoom(roomId string, fn func(*domain.Room) error) error {
	err := s.roomRepo.WithRoom(roomId, fn)
	if errors.Is(err, room.ErrRoomNotFound) {
		return ErrRoomNotFound
	}

	return err
}

// withRoomPair is withRoom that also locks otherId when it still exists.
func (s service) withRoomPair(roomId, otherId string, fn func(rm, other *domain.Room) error) error {
	err := s.roomRepo.WithRoomPair(roomId, otherId, fn)
	if errors.Is(err, room.ErrRoomNotFound) {
		return ErrRoomNotFound
	}

	return err
}

// withMember is withRoom restricted to current members of the room.
func (s service) withMember(roomId, memberId string, fn func(*domain.Room, domain.Member) error) error {
	return s.withRoom(roomId, func(rm *domain.Room) error {
		member, _, err := rm.Members.GetById(memberId)
		if err != nil {
			return ErrNotAMember
		}

		return fn(rm, member)
	})
}

func (s service) RoomsCount() int {
	return s.roomRepo.Len()
}

// mapDomainError translates state machine errors to service errors.
func mapDomainError(err error) error {
	switch {
	case errors.Is(err, domain.ErrNoVideo):
		return ErrNoVideo
	case errors.Is(err, domain.ErrThrottled):
		return ErrThrottled
	case errors.Is(err, domain.ErrMembersLimitReached):
		return ErrMembersLimitReached
	case errors.Is(err, domain.ErrMemberAlreadyExists):
		return ErrAlreadyInRoom
	case errors.Is(err, domain.ErrQueueLimitReached):
		return ErrQueueLimitReached
	case errors.Is(err, domain.ErrQueueItemNotFound):
		return ErrQueueItemNotFound
	case errors.Is(err, domain.ErrMemberNotFound):
		return ErrNotAMember
	default:
		return err
	}
}
