package videodata

import "errors"

var ErrNotFound = errors.New("video data not found")

type VideoData struct {
	Title        string `redis:"title"`
	AuthorName   string `redis:"author_name"`
	ThumbnailUrl string `redis:"thumbnail_url"`
}
