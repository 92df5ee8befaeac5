package room

import "errors"

var (
	ErrRoomNotFound = errors.New("room not found")
)

// Expired describes a room removed by the inactivity sweep.
type Expired struct {
	RoomId    string
	MemberIds []string
}
