package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sharetube/syncroom/internal/domain"
	"github.com/sharetube/syncroom/internal/repository/videodata"
	"github.com/sharetube/syncroom/pkg/ytvideodata"
)

type resolveVideoParams struct {
	VideoId string
	Url     string
	Title   string
}

// resolveVideo parses the source and looks up the title. Metadata failures
// degrade to a placeholder title.
func (s service) resolveVideo(ctx context.Context, params *resolveVideoParams) (domain.Video, error) {
	source := params.VideoId
	if source == "" {
		source = params.Url
	}

	videoId, platform, ok := ytvideodata.ExtractVideoID(source)
	if !ok {
		return domain.Video{}, ErrUnsupportedVideoSource
	}

	title := params.Title
	if title == "" {
		title = s.lookupTitle(ctx, videoId)
	}

	return domain.Video{
		VideoId:  videoId,
		Platform: platform,
		Title:    title,
	}, nil
}

func (s service) lookupTitle(ctx context.Context, videoId string) string {
	if s.videoDataRepo != nil {
		cached, err := s.videoDataRepo.Get(ctx, videoId)
		if err == nil {
			return cached.Title
		}
		if !errors.Is(err, videodata.ErrNotFound) {
			slog.WarnContext(ctx, "failed to read video data cache", "video_id", videoId, "error", err)
		}
	}

	if s.videoData == nil {
		return ytvideodata.PlaceholderTitle(videoId)
	}

	lookupCtx := ctx
	if s.metadataTimeout > 0 {
		var cancel context.CancelFunc
		lookupCtx, cancel = context.WithTimeout(ctx, s.metadataTimeout)
		defer cancel()
	}

	data, err := s.videoData.Get(lookupCtx, videoId)
	if err != nil || data.Title == "" {
		slog.InfoContext(ctx, "metadata lookup failed, using placeholder title", "video_id", videoId, "error", err)
		return ytvideodata.PlaceholderTitle(videoId)
	}

	if s.videoDataRepo != nil {
		if err := s.videoDataRepo.Set(ctx, videoId, &videodata.VideoData{
			Title:        data.Title,
			AuthorName:   data.AuthorName,
			ThumbnailUrl: data.ThumbnailUrl,
		}); err != nil {
			slog.WarnContext(ctx, "failed to cache video data", "video_id", videoId, "error", err)
		}
	}

	return data.Title
}
