package extractor

import (
	"context"
	"errors"
	"fmt"

	"tubegrab/pkg/models"
)

var (
	ErrNoInfo            = errors.New("failed to fetch video information")
	ErrSearchUnsupported = errors.New("search is not supported by this extractor")
	ErrEmptyQuery        = errors.New("empty search query")
)

// Extractor resolves video metadata and searches for videos
type Extractor interface {
	Info(ctx context.Context, url string) (*models.VideoInfo, error)
	Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error)
}

// New returns the extractor backend selected by the configuration
func New(cfg *models.Config) (Extractor, error) {
	switch cfg.Extractor {
	case "", models.ExtractorYtdlp:
		return NewYtdlp(cfg.YtdlPath, cfg.YtdlCookiesPath), nil
	case models.ExtractorNative:
		return NewNative(nil), nil
	default:
		return nil, fmt.Errorf("unknown extractor %q", cfg.Extractor)
	}
}
