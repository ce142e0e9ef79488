package extractor

import (
	"encoding/json"
	"fmt"

	"tubegrab/internal/video"
	"tubegrab/pkg/models"
)

const unknownTitle = "Unknown Title"

// ytdlpFormat is the subset of a yt-dlp format entry we read
type ytdlpFormat struct {
	FormatID string   `json:"format_id"`
	Height   *float64 `json:"height"`
}

// ytdlpInfo is the subset of yt-dlp's -J output we read
type ytdlpInfo struct {
	ID         string        `json:"id"`
	Type       string        `json:"_type"`
	Title      *string       `json:"title"`
	Duration   *float64      `json:"duration"`
	ViewCount  *float64      `json:"view_count"`
	Thumbnail  *string       `json:"thumbnail"`
	Channel    string        `json:"channel"`
	Uploader   string        `json:"uploader"`
	URL        string        `json:"url"`
	WebpageURL string        `json:"webpage_url"`
	Formats    []ytdlpFormat `json:"formats"`
	Entries    []ytdlpInfo   `json:"entries"`
	Thumbnails []struct {
		URL string `json:"url"`
	} `json:"thumbnails"`
}

func parseInfo(raw []byte) (*ytdlpInfo, error) {
	var info ytdlpInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("failed to parse yt-dlp output: %w", err)
	}
	return &info, nil
}

// videoInfo converts yt-dlp metadata, filling in the same defaults the UI expects
func (i *ytdlpInfo) videoInfo() *models.VideoInfo {
	out := &models.VideoInfo{
		Title: unknownTitle,
	}

	if i.Title != nil {
		out.Title = *i.Title
	}

	var duration float64
	if i.Duration != nil {
		duration = *i.Duration
	}
	out.DurationSeconds = int(duration)
	out.Duration = video.FormatDuration(duration)

	if i.ViewCount != nil {
		out.Views = int64(*i.ViewCount)
	}

	if i.Thumbnail != nil {
		out.Thumbnail = *i.Thumbnail
	}

	heights := make([]int, 0, len(i.Formats))
	for _, f := range i.Formats {
		if f.Height != nil {
			heights = append(heights, int(*f.Height))
		}
	}
	out.Resolutions = video.Resolutions(heights)

	return out
}

// searchResult converts a (possibly flat) search entry
func (i *ytdlpInfo) searchResult() models.SearchResult {
	res := models.SearchResult{
		ID:      i.ID,
		Channel: i.Channel,
		Link:    i.WebpageURL,
	}

	if i.Title != nil {
		res.Title = *i.Title
	}
	if res.Channel == "" {
		res.Channel = i.Uploader
	}
	if res.Link == "" {
		res.Link = i.URL
	}
	if res.Link == "" && i.ID != "" {
		res.Link = video.WatchURL(i.ID)
	}
	if i.Duration != nil {
		res.Duration = video.FormatDuration(*i.Duration)
	}
	if i.Thumbnail != nil {
		res.Thumbnail = *i.Thumbnail
	} else if len(i.Thumbnails) > 0 {
		res.Thumbnail = i.Thumbnails[len(i.Thumbnails)-1].URL
	}

	return res
}
