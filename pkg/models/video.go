package models

import "time"

// VideoInfo is the metadata shown before a download is started
type VideoInfo struct {
	Title           string   `json:"title"`
	Duration        string   `json:"duration"`
	DurationSeconds int      `json:"duration_seconds"`
	Views           int64    `json:"views"`
	Thumbnail       string   `json:"thumbnail"`
	Resolutions     []string `json:"resolutions"`
}

// SearchResult is a single hit of a free-text search
type SearchResult struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Channel   string `json:"channel"`
	Duration  string `json:"duration"`
	Link      string `json:"link"`
	Thumbnail string `json:"thumbnail"`
}

// MediaRequest describes what to download
type MediaRequest struct {
	URL        string `json:"url"`
	Resolution string `json:"resolution"`
	Audio      bool   `json:"is_audio"`
}

// ProgressStatus is the stage a download is in
type ProgressStatus string

const (
	ProgressStarted     ProgressStatus = "started"
	ProgressDownloading ProgressStatus = "downloading"
	ProgressFinished    ProgressStatus = "finished"
	ProgressError       ProgressStatus = "error"
)

// Terminal reports whether no further events follow
func (s ProgressStatus) Terminal() bool {
	return s == ProgressFinished || s == ProgressError
}

// Progress is a single progress update of a running download
type Progress struct {
	Status          ProgressStatus `json:"status"`
	Progress        float64        `json:"progress"`
	DownloadedBytes int64          `json:"downloaded_bytes"`
	TotalBytes      int64          `json:"total_bytes"`
	Speed           float64        `json:"speed"`
	ETA             int            `json:"eta"`
	Error           string         `json:"error,omitempty"`
}

// StoreEntry represents a downloaded file retained for later pickup
type StoreEntry struct {
	ID         string    `json:"id"`
	FileName   string    `json:"filename"`
	Size       int64     `json:"size"`
	LastAccess time.Time `json:"lastAccess"`
	Created    time.Time `json:"created"`
}
