package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

const (
	roomIdKey   = "room_id"
	memberIdKey = "member_id"
	joinedAtKey = "joined_at"
	expKey      = "exp"
)

// RejoinClaims let a reconnecting client keep its original join time.
type RejoinClaims struct {
	RoomId   string
	MemberId string
	JoinedAt time.Time
}

func (s service) generateRejoinToken(claims *RejoinClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		roomIdKey:   claims.RoomId,
		memberIdKey: claims.MemberId,
		joinedAtKey: claims.JoinedAt.UnixMilli(),
		expKey:      s.clock.Now().Add(s.rejoinTokenTTL).Unix(),
	})

	return token.SignedString(s.secret)
}

func (s service) parseRejoinToken(tokenString string) (*RejoinClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, jwt.MapClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.clock.Now))
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	roomId, ok := claims[roomIdKey].(string)
	if !ok {
		return nil, ErrInvalidToken
	}

	memberId, ok := claims[memberIdKey].(string)
	if !ok {
		return nil, ErrInvalidToken
	}

	joinedAt, ok := claims[joinedAtKey].(float64)
	if !ok {
		return nil, ErrInvalidToken
	}

	return &RejoinClaims{
		RoomId:   roomId,
		MemberId: memberId,
		JoinedAt: time.UnixMilli(int64(joinedAt)),
	}, nil
}
