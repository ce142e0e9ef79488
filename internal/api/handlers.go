package api

import (
	_ "embed"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/apex/log"
	"github.com/dustin/go-humanize"

	"tubegrab/internal/downloader"
	"tubegrab/internal/extractor"
	"tubegrab/internal/video"
	"tubegrab/pkg/models"
)

var ErrInvalidCookies = errors.New("invalid cookies")

//go:embed web/index.html
var indexHTML []byte

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// handleSearch answers with a JSON array; failures are logged and yield []
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.FormValue("query"))
	results := []models.SearchResult{}

	if query != "" {
		found, err := s.extractor.Search(r.Context(), query, s.config.SearchLimit)
		if err != nil {
			log.WithError(err).WithField("query", query).Warn("Search failed")
		} else if found != nil {
			results = found
		}
	}

	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleVideoInfo(w http.ResponseWriter, r *http.Request) {
	url := r.FormValue("url")
	if !video.IsValidURL(url) {
		writeError(w, http.StatusBadRequest, "Invalid YouTube URL")
		return
	}

	info, err := s.extractor.Info(r.Context(), url)
	switch {
	case errors.Is(err, extractor.ErrNoInfo):
		writeError(w, http.StatusNotFound, "Failed to fetch video information")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error loading video information: %s", err))
		return
	case info == nil:
		writeError(w, http.StatusNotFound, "Failed to fetch video information")
		return
	}

	writeJSON(w, http.StatusOK, info)
}

// handleDownload downloads synchronously and answers with the file. When
// job_id is set, progress is published under that id for /download_progress.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	req := models.MediaRequest{
		URL:        r.FormValue("url"),
		Resolution: r.FormValue("resolution"),
		Audio:      r.FormValue("is_audio") == "true",
	}

	if !video.IsValidURL(req.URL) {
		writeError(w, http.StatusBadRequest, "Invalid YouTube URL")
		return
	}

	var onProgress downloader.ProgressFunc
	if jobID := r.FormValue("job_id"); jobID != "" {
		hub, topic := s.downloader.Hub(), syncTopic(jobID)
		onProgress = func(p models.Progress) {
			hub.Publish(topic, p)
		}
	}

	res, err := s.downloader.Download(r.Context(), req, onProgress)
	if err != nil {
		var notFound *downloader.FileNotFoundError
		if errors.As(err, &notFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("Downloaded file not found: %s", notFound.Path))
			return
		}
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("An error occurred during download: %s", err))
		return
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			log.WithError(err).WithField("dir", res.Dir).Warn("Failed to remove download directory")
		}
	}()

	serveAttachment(w, r, res.Path, res.FileName)
}

func (s *Server) handleDownloadProgress(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "No progress id provided")
		return
	}

	s.streamProgress(w, r, syncTopic(id))
}

// syncTopic keeps page-chosen ids apart from async job ids in the hub
func syncTopic(id string) string {
	return "sync:" + id
}

// handleHealth handles health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleStatus handles status endpoint
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	storeSize := s.store.GetSize()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"running":         s.IsRunning(),
		"version":         models.Version,
		"extractor":       s.config.Extractor,
		"ffmpeg":          s.downloader.FfmpegAvailable(r.Context()),
		"queueLength":     s.downloader.GetQueueLength(),
		"activeDownloads": s.downloader.GetActiveDownloads(),
		"storeSize":       storeSize,
		"storeSizeHuman":  humanize.Bytes(uint64(storeSize)),
		"storeCount":      len(s.store.ListEntries()),
	})
}

// handleYouTubeCookies stores a Netscape cookies file used by yt-dlp
func (s *Server) handleYouTubeCookies(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read body")
		return
	}

	cookies := string(body)
	if !validateCookies(cookies) {
		writeError(w, http.StatusBadRequest, ErrInvalidCookies.Error())
		return
	}

	path := s.config.YtdlCookiesPath
	if path == "" {
		writeError(w, http.StatusInternalServerError, "No cookies path configured")
		return
	}

	if err := os.WriteFile(path, body, 0600); err != nil {
		log.WithError(err).WithField("path", path).Error("Failed to save cookies")
		writeError(w, http.StatusInternalServerError, "Failed to save cookies")
		return
	}

	log.WithField("path", path).Info("YouTube cookies updated")

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Cookies received",
	})
}

// validateCookies checks for a cookies file with at least one YouTube entry
func validateCookies(cookies string) bool {
	for _, line := range strings.Split(cookies, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") && !strings.HasPrefix(line, "#HttpOnly_") {
			continue
		}

		fields := strings.Split(strings.TrimPrefix(line, "#HttpOnly_"), "\t")
		if len(fields) == 7 && strings.HasSuffix(fields[0], "youtube.com") {
			return true
		}
	}
	return false
}
