package extractor

import (
	"context"
	"net/http"
	"time"

	"github.com/apex/log"
	"github.com/kkdai/youtube/v2"

	"tubegrab/internal/video"
	"tubegrab/pkg/models"
)

const nativeTimeout = 30 * time.Second

// Native reads metadata straight from YouTube without the yt-dlp binary
type Native struct {
	client *youtube.Client
}

// NewNative creates a native extractor. A nil client gets a default one.
func NewNative(client *youtube.Client) *Native {
	if client == nil {
		client = &youtube.Client{
			HTTPClient: &http.Client{Timeout: nativeTimeout},
		}
	}
	return &Native{client: client}
}

// Info fetches metadata for a single video
func (n *Native) Info(ctx context.Context, url string) (*models.VideoInfo, error) {
	v, err := n.client.GetVideoContext(ctx, url)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, ErrNoInfo
	}

	out := nativeInfo(v)
	log.WithField("url", url).WithField("title", out.Title).Info("Fetched video information")

	return out, nil
}

// nativeInfo converts a kkdai video, using the widest thumbnail
func nativeInfo(v *youtube.Video) *models.VideoInfo {
	out := &models.VideoInfo{
		Title:           v.Title,
		DurationSeconds: int(v.Duration.Seconds()),
		Duration:        video.FormatDuration(v.Duration.Seconds()),
		Views:           int64(v.Views),
	}
	if out.Title == "" {
		out.Title = unknownTitle
	}

	var widest uint
	for _, thumb := range v.Thumbnails {
		if thumb.Width >= widest {
			widest = thumb.Width
			out.Thumbnail = thumb.URL
		}
	}

	heights := make([]int, 0, len(v.Formats))
	for _, f := range v.Formats {
		heights = append(heights, f.Height)
	}
	out.Resolutions = video.Resolutions(heights)

	return out
}

// Search is not available without yt-dlp
func (n *Native) Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error) {
	return nil, ErrSearchUnsupported
}
