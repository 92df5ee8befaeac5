package ytvideodata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const (
	defaultOEmbedURL = "https://www.youtube.com/oembed"
	defaultPageURL   = "https://www.youtube.com/watch"
)

type VideoData struct {
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
	ThumbnailUrl string `json:"thumbnail_url"`
}

type Config struct {
	Timeout   time.Duration
	OEmbedURL string
	PageURL   string
}

type Client struct {
	httpClient *http.Client
	oEmbedURL  string
	pageURL    string
}

func NewClient(cfg *Config) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		oEmbedURL:  cfg.OEmbedURL,
		pageURL:    cfg.PageURL,
	}
	if c.oEmbedURL == "" {
		c.oEmbedURL = defaultOEmbedURL
	}
	if c.pageURL == "" {
		c.pageURL = defaultPageURL
	}

	return c
}

// Get fetches metadata through oEmbed and falls back to scraping the watch
// page when the video is not embeddable.
func (c *Client) Get(ctx context.Context, videoId string) (*VideoData, error) {
	videoData, err := c.getWithEmbed(ctx, videoId)
	if err != nil {
		if !errors.Is(err, ErrVideoNotEmbeddable) {
			return nil, fmt.Errorf("failed to get video data with embed: %w", err)
		}

		videoData, err = c.getFromPage(ctx, videoId)
		if err != nil {
			return nil, fmt.Errorf("failed to get video data from page: %w", err)
		}
	}

	return videoData, nil
}
