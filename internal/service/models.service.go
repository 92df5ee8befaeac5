package service

import (
	"time"

	"github.com/sharetube/syncroom/internal/domain"
)

type Member struct {
	Id      string `json:"id"`
	Name    string `json:"name"`
	IsHost  bool   `json:"isHost"`
	IsReady bool   `json:"isReady"`
}

type QueueItem struct {
	Id      int    `json:"id"`
	VideoId string `json:"videoId"`
	Title   string `json:"title"`
	AddedBy string `json:"addedBy"`
	AddedAt int64  `json:"addedAt"`
}

type Video struct {
	EntryId  int    `json:"entryId"`
	VideoId  string `json:"videoId"`
	Platform string `json:"platform"`
	Title    string `json:"title"`
}

// VideoState is a playback snapshot anchored at LastUpdate (unix ms).
type VideoState struct {
	IsPlaying   bool    `json:"isPlaying"`
	CurrentTime float64 `json:"currentTime"`
	LastUpdate  int64   `json:"lastUpdate"`
	SenderId    string  `json:"senderId,omitempty"`
}

func mapMembers(members *domain.Members) []Member {
	list := members.AsList()
	result := make([]Member, 0, len(list))
	for _, member := range list {
		result = append(result, Member{
			Id:      member.Id,
			Name:    member.Name,
			IsHost:  member.IsHost,
			IsReady: member.IsReady,
		})
	}

	return result
}

func mapQueue(queue *domain.Queue) []QueueItem {
	list := queue.AsList()
	result := make([]QueueItem, 0, len(list))
	for _, item := range list {
		result = append(result, mapQueueItem(item))
	}

	return result
}

func mapQueueItem(item domain.QueueItem) QueueItem {
	return QueueItem{
		Id:      item.Id,
		VideoId: item.VideoId,
		Title:   item.Title,
		AddedBy: item.AddedBy,
		AddedAt: item.AddedAt.UnixMilli(),
	}
}

func mapVideo(video *domain.Video) *Video {
	if video == nil {
		return nil
	}

	return &Video{
		EntryId:  video.EntryId,
		VideoId:  video.VideoId,
		Platform: video.Platform,
		Title:    video.Title,
	}
}

// mapVideoState projects the room playback to now, so every snapshot leaving
// the server is compensated exactly at send time.
func mapVideoState(rm *domain.Room, now time.Time, senderId string) VideoState {
	snapshot := rm.Snapshot(now)
	return VideoState{
		IsPlaying:   snapshot.IsPlaying,
		CurrentTime: snapshot.Position,
		LastUpdate:  snapshot.LastUpdate.UnixMilli(),
		SenderId:    senderId,
	}
}
