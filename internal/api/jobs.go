package api

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"tubegrab/internal/downloader"
	"tubegrab/internal/store"
	"tubegrab/internal/video"
	"tubegrab/pkg/models"
)

// handleCreateJob queues an asynchronous download. The body is either JSON
// or a form with the same fields as /download.
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req models.MediaRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		body, err := readBody(w, r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Failed to read body")
			return
		}
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}
	} else {
		req = models.MediaRequest{
			URL:        r.FormValue("url"),
			Resolution: r.FormValue("resolution"),
			Audio:      r.FormValue("is_audio") == "true",
		}
	}

	if !video.IsValidURL(req.URL) {
		writeError(w, http.StatusBadRequest, "Invalid YouTube URL")
		return
	}

	if !req.Audio && req.Resolution != "" {
		if _, err := video.ParseResolution(req.Resolution); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	job, err := s.downloader.Queue(req)
	if err != nil {
		if errors.Is(err, downloader.ErrDownloaderStopped) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Location", "/api/jobs/"+job.ID)
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.downloader.ListJobs())
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.downloader.GetStatus(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	err := s.downloader.RemoveJob(chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, downloader.ErrJobNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.downloader.GetStatus(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	s.streamProgress(w, r, id)
}

func (s *Server) handleJobFile(w http.ResponseWriter, r *http.Request) {
	path, err := s.downloader.FilePath(chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, downloader.ErrJobNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, downloader.ErrJobNotReady):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, store.ErrEntryNotFound):
		writeError(w, http.StatusGone, "Downloaded file has expired")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	serveAttachment(w, r, path, filepath.Base(path))
}
