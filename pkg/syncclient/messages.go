package syncclient

import (
	"encoding/json"
	"time"
)

// client to server
const (
	TypeCreateRoom      = "create-room"
	TypeJoinRoom        = "join-room"
	TypeLeaveRoom       = "leave-room"
	TypeLoadVideo       = "load-video"
	TypeVideoPlay       = "video-play"
	TypeVideoPause      = "video-pause"
	TypeVideoSeek       = "video-seek"
	TypeVideoEnded      = "video-ended"
	TypeAddToQueue      = "add-to-queue"
	TypeRemoveFromQueue = "remove-from-queue"
	TypePlayNext        = "play-next"
	TypeSetReady        = "set-ready"
	TypeVoteSkip        = "vote-skip"
	TypeAlive           = "alive"
)

// server to client
const (
	TypeRoomCreated      = "room-created"
	TypeRoomJoined       = "room-joined"
	TypeRoomClosed       = "room-closed"
	TypeVideoLoaded      = "video-loaded"
	TypeVideoSync        = "video-sync"
	TypeVideoStopped     = "video-stopped"
	TypeQueueUpdated     = "queue-updated"
	TypeUserCountUpdated = "user-count-updated"
	TypeMembersUpdated   = "members-updated"
	TypeHostChanged      = "host-changed"
	TypeError            = "error"
)

const CodeRoomNotFound = "ROOM_NOT_FOUND"

type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type outMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// VideoState is an authoritative playback snapshot taken at LastUpdate (unix ms).
type VideoState struct {
	IsPlaying   bool    `json:"isPlaying"`
	CurrentTime float64 `json:"currentTime"`
	LastUpdate  int64   `json:"lastUpdate"`
	SenderId    string  `json:"senderId,omitempty"`
}

// target returns the position the snapshot implies at now. Transit time is
// only added while playing and is clamped to [0, maxTransit].
func (s VideoState) target(now time.Time, maxTransit time.Duration) float64 {
	if !s.IsPlaying || s.LastUpdate == 0 {
		return s.CurrentTime
	}

	transit := now.Sub(time.UnixMilli(s.LastUpdate))
	transit = max(transit, 0)
	transit = min(transit, maxTransit)

	return s.CurrentTime + transit.Seconds()
}

type Video struct {
	EntryId  int    `json:"entryId"`
	VideoId  string `json:"videoId"`
	Platform string `json:"platform"`
	Title    string `json:"title"`
}

type QueueItem struct {
	Id      int    `json:"id"`
	VideoId string `json:"videoId"`
	Title   string `json:"title"`
	AddedBy string `json:"addedBy"`
}

type Member struct {
	Id      string `json:"id"`
	Name    string `json:"name"`
	IsHost  bool   `json:"isHost"`
	IsReady bool   `json:"isReady"`
}

type RoomCreated struct {
	RoomId      string   `json:"roomId"`
	IsHost      bool     `json:"isHost"`
	MemberId    string   `json:"memberId"`
	RejoinToken string   `json:"rejoinToken"`
	Members     []Member `json:"members"`
	UserCount   int      `json:"userCount"`
}

type RoomJoined struct {
	RoomId      string      `json:"roomId"`
	IsHost      bool        `json:"isHost"`
	MemberId    string      `json:"memberId"`
	RejoinToken string      `json:"rejoinToken"`
	Video       *Video      `json:"video"`
	VideoState  VideoState  `json:"videoState"`
	Queue       []QueueItem `json:"queue"`
	Members     []Member    `json:"members"`
	UserCount   int         `json:"userCount"`
}

type VideoLoaded struct {
	Video
	VideoState VideoState `json:"videoState"`
}

type VideoSync struct {
	VideoId string `json:"videoId"`
	EntryId int    `json:"entryId"`
	VideoState
}

type VideoStopped struct {
	VideoState VideoState `json:"videoState"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type playbackPayload struct {
	CurrentTime float64 `json:"currentTime"`
}

type videoEndedPayload struct {
	EntryId int `json:"entryId"`
}

type joinRoomPayload struct {
	RoomId      string `json:"roomId"`
	Name        string `json:"name,omitempty"`
	Password    string `json:"password,omitempty"`
	RejoinToken string `json:"rejoinToken,omitempty"`
}

type createRoomPayload struct {
	Name     string `json:"name,omitempty"`
	Password string `json:"password,omitempty"`
}

type videoSourcePayload struct {
	VideoId string `json:"videoId,omitempty"`
	Url     string `json:"url,omitempty"`
	Title   string `json:"title,omitempty"`
}
