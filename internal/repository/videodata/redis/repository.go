package redis

import (
	"context"
	"log/slog"
	"reflect"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sharetube/syncroom/internal/repository/videodata"
)

type repo struct {
	rc             *redis.Client
	expireDuration time.Duration
}

func NewRepo(rc *redis.Client, expireDuration time.Duration) *repo {
	return &repo{
		rc:             rc,
		expireDuration: expireDuration,
	}
}

func (r repo) getVideoKey(videoId string) string {
	return "video:" + videoId
}

func (r repo) Get(ctx context.Context, videoId string) (videodata.VideoData, error) {
	funcName := "videodata.redis.Get"
	slog.DebugContext(ctx, funcName, "video_id", videoId)

	var data videodata.VideoData
	cmd := r.rc.HGetAll(ctx, r.getVideoKey(videoId))
	if err := cmd.Err(); err != nil {
		return videodata.VideoData{}, err
	}

	if len(cmd.Val()) == 0 {
		slog.DebugContext(ctx, funcName, "error", videodata.ErrNotFound)
		return videodata.VideoData{}, videodata.ErrNotFound
	}

	if err := cmd.Scan(&data); err != nil {
		return videodata.VideoData{}, err
	}

	slog.DebugContext(ctx, funcName, "result", data.Title)
	return data, nil
}

func (r repo) Set(ctx context.Context, videoId string, data *videodata.VideoData) error {
	funcName := "videodata.redis.Set"
	slog.DebugContext(ctx, funcName, "video_id", videoId)

	pipe := r.rc.TxPipeline()
	key := r.getVideoKey(videoId)
	r.hSetStruct(ctx, pipe, key, data)
	pipe.Expire(ctx, key, r.expireDuration)

	return r.executePipe(ctx, pipe)
}

func (r repo) hSetStruct(ctx context.Context, c redis.Pipeliner, key string, value any) {
	v := reflect.ValueOf(value)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	fields := make(map[string]any)
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		tag := t.Field(i).Tag.Get("redis")
		if tag == "" {
			tag = t.Field(i).Name
		}
		fields[tag] = v.Field(i).Interface()
	}

	c.HSet(ctx, key, fields)
}

func (r repo) executePipe(ctx context.Context, pipe redis.Pipeliner) error {
	cmds, err := pipe.Exec(ctx)
	if err != nil {
		for _, cmd := range cmds {
			if err := cmd.Err(); err != nil {
				return err
			}
		}

		return err
	}

	return nil
}
