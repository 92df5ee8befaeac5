package ytvideodata

import (
	"regexp"
	"strings"
)

const PlatformYouTube = "youtube"

var (
	urlRegex = regexp.MustCompile(`(?:youtube\.com/(?:watch\?(?:.*&)?v=|embed/|v/|live/|shorts/)|youtu\.be/)([a-zA-Z0-9_-]{11})`)
	idRegex  = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)
)

// ExtractVideoID returns the video id and platform for a YouTube url or a bare id.
func ExtractVideoID(s string) (string, string, bool) {
	s = strings.TrimSpace(s)
	if idRegex.MatchString(s) {
		return s, PlatformYouTube, true
	}

	match := urlRegex.FindStringSubmatch(s)
	if match == nil {
		return "", "", false
	}

	return match[1], PlatformYouTube, true
}

func IsVideoID(s string) bool {
	return idRegex.MatchString(s)
}

// PlaceholderTitle is used when metadata cannot be fetched.
func PlaceholderTitle(videoId string) string {
	if len(videoId) > 8 {
		videoId = videoId[:8]
	}

	return "Video " + videoId
}
