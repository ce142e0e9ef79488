package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"tubegrab/internal/downloader"
	"tubegrab/internal/extractor"
	"tubegrab/internal/store"
	"tubegrab/pkg/models"
)

var (
	ErrServerAlreadyRunning = errors.New("server is already running")
	ErrServerNotRunning     = errors.New("server is not running")
)

const (
	metadataTimeout = 60 * time.Second
	janitorInterval = time.Minute
)

// Server represents the HTTP server
type Server struct {
	config      *models.Config
	extractor   extractor.Extractor
	downloader  *downloader.Downloader
	store       *store.Manager
	router      *chi.Mux
	server      *http.Server
	listener    net.Listener
	janitorDone chan struct{}
	running     bool
	mu          sync.RWMutex
}

// NewServer creates a new HTTP server
func NewServer(config *models.Config, ext extractor.Extractor, dl *downloader.Downloader, st *store.Manager) *Server {
	s := &Server{
		config:     config,
		extractor:  ext,
		downloader: dl,
		store:      st,
		router:     chi.NewRouter(),
	}

	s.setupRoutes()

	return s
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/", s.handleIndex)

	// Downloads stream for as long as yt-dlp runs, only metadata lookups are bounded
	s.router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(metadataTimeout))
		r.Post("/search", s.handleSearch)
		r.Post("/video_info", s.handleVideoInfo)
	})

	s.router.Post("/download", s.handleDownload)
	s.router.Get("/download_progress", s.handleDownloadProgress)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)
		r.Post("/youtube-cookies", s.handleYouTubeCookies)

		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.handleCreateJob)
			r.Get("/", s.handleListJobs)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetJob)
				r.Delete("/", s.handleDeleteJob)
				r.Get("/events", s.handleJobEvents)
				r.Get("/file", s.handleJobFile)
			})
		})
	})
}

// Handler returns the router serving all routes
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server, the download workers and the janitor
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrServerAlreadyRunning
	}

	listener, err := net.Listen("tcp", s.GetAddr())
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	if err := s.downloader.Start(); err != nil {
		listener.Close()
		return fmt.Errorf("failed to start downloader: %w", err)
	}

	s.listener = listener
	// No WriteTimeout: file responses last as long as the download
	httpServer := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.server = httpServer
	s.running = true

	s.janitorDone = make(chan struct{})
	go s.janitor(s.janitorDone)

	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Server error")
		}
	}()

	log.WithField("addr", listener.Addr().String()).Info("Server started")

	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return ErrServerNotRunning
	}

	close(s.janitorDone)

	// Stop downloader first so running yt-dlp processes are cancelled
	if err := s.downloader.Stop(); err != nil {
		log.WithError(err).Warn("Downloader stop error")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.running = false
	s.server = nil
	s.listener = nil

	log.Info("Server stopped")

	return nil
}

// janitor expires finished jobs and their files until done is closed
func (s *Server) janitor(done <-chan struct{}) {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Server) sweep() {
	if s.config.JobRetentionMin <= 0 {
		return
	}
	s.downloader.Sweep(time.Duration(s.config.JobRetentionMin) * time.Minute)
}

// IsRunning returns whether the server is currently running
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// GetAddr returns the configured server address
func (s *Server) GetAddr() string {
	return net.JoinHostPort(s.config.WebServerHost, fmt.Sprint(s.config.WebServerPort))
}

// GetActualAddr returns the actual listening address (useful when port is 0)
func (s *Server) GetActualAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}

	return s.GetAddr()
}
