package extractor

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/apex/log"
	"github.com/wader/goutubedl"

	"tubegrab/pkg/models"
)

// fetchFunc returns yt-dlp's raw JSON description of url
type fetchFunc func(ctx context.Context, url string, typ goutubedl.Type) ([]byte, error)

// Ytdlp extracts metadata by running yt-dlp through goutubedl
type Ytdlp struct {
	cookies string
	fetch   fetchFunc
}

type debugLogger struct{}

func (debugLogger) Print(v ...interface{}) {
	log.Debug(strings.TrimSpace(fmt.Sprint(v...)))
}

// NewYtdlp creates a yt-dlp backed extractor. binPath replaces goutubedl's
// process-wide binary path when set.
func NewYtdlp(binPath, cookiesPath string) *Ytdlp {
	if binPath != "" {
		goutubedl.Path = binPath
	}

	y := &Ytdlp{cookies: cookiesPath}
	y.fetch = y.fetchRaw
	return y
}

func (y *Ytdlp) fetchRaw(ctx context.Context, url string, typ goutubedl.Type) ([]byte, error) {
	opts := goutubedl.Options{
		Type:     typ,
		DebugLog: debugLogger{},
	}
	if y.cookies != "" {
		if _, err := os.Stat(y.cookies); err == nil {
			opts.Cookies = y.cookies
		}
	}

	result, err := goutubedl.New(ctx, url, opts)
	if err != nil {
		return nil, err
	}
	return result.RawJSON, nil
}

// Info fetches metadata for a single video without downloading it
func (y *Ytdlp) Info(ctx context.Context, url string) (*models.VideoInfo, error) {
	logger := log.WithField("url", url)
	logger.Debug("Fetching video information")

	raw, err := y.fetch(ctx, url, goutubedl.TypeSingle)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, ErrNoInfo
	}

	info, err := parseInfo(raw)
	if err != nil {
		return nil, err
	}

	out := info.videoInfo()
	logger.WithField("title", out.Title).WithField("resolutions", len(out.Resolutions)).Info("Fetched video information")

	return out, nil
}

// Search runs a "ytsearchN:" query and returns at most limit results
func (y *Ytdlp) Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = 5
	}

	raw, err := y.fetch(ctx, fmt.Sprintf("ytsearch%d:%s", limit, query), goutubedl.TypePlaylist)
	if err != nil {
		return nil, err
	}

	info, err := parseInfo(raw)
	if err != nil {
		return nil, err
	}

	results := make([]models.SearchResult, 0, len(info.Entries))
	for i := range info.Entries {
		if len(results) == limit {
			break
		}
		results = append(results, info.Entries[i].searchResult())
	}

	log.WithField("query", query).WithField("results", len(results)).Debug("Search finished")

	return results, nil
}
