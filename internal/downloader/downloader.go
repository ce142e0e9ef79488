package downloader

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"

	"tubegrab/internal/config"
	"tubegrab/internal/progress"
	"tubegrab/internal/store"
	"tubegrab/internal/transcode"
	"tubegrab/internal/video"
	"tubegrab/pkg/models"
)

var (
	ErrDownloadFailed    = errors.New("download failed")
	ErrFileNotFound      = errors.New("downloaded file not found")
	ErrDownloaderStopped = errors.New("downloader is stopped")
	ErrJobNotFound       = errors.New("job not found")
	ErrJobNotReady       = errors.New("job has not completed")
)

const (
	// errTailLines bounds how much yt-dlp stderr is kept for error messages
	errTailLines = 20
	waitDelay    = time.Second
)

// FileNotFoundError reports the path yt-dlp was expected to produce
type FileNotFoundError struct {
	Path string
}

func (e *FileNotFoundError) Error() string {
	return fmt.Sprintf("%s: %s", ErrFileNotFound, e.Path)
}

func (e *FileNotFoundError) Is(target error) bool {
	return target == ErrFileNotFound
}

// FfmpegProber reports whether ffmpeg can be used for merging and extraction
type FfmpegProber interface {
	Available(ctx context.Context) bool
	Path() string
}

// ProgressFunc receives progress events of a single download
type ProgressFunc func(models.Progress)

// Result is a finished download inside its temporary directory
type Result struct {
	Dir      string
	Path     string
	FileName string
}

// Cleanup removes the temporary directory and the file in it
func (r *Result) Cleanup() error {
	return os.RemoveAll(r.Dir)
}

// Downloader runs yt-dlp for synchronous downloads and for queued jobs
type Downloader struct {
	mu         sync.RWMutex
	config     *models.Config
	store      *store.Manager
	hub        *progress.Hub
	ffmpeg     FfmpegProber
	queue      []*Job
	jobs       map[string]*Job
	active     map[string]context.CancelFunc
	ctx        context.Context
	cancel     context.CancelFunc
	workerWg   sync.WaitGroup
	running    bool
	maxWorkers int
	now        func() time.Time
}

// NewDownloader creates a new downloader
func NewDownloader(config *models.Config, store *store.Manager, hub *progress.Hub, ffmpeg FfmpegProber, maxWorkers int) *Downloader {
	if maxWorkers <= 0 {
		maxWorkers = 2
	}
	if hub == nil {
		hub = progress.NewHub()
	}
	if ffmpeg == nil {
		ffmpeg = transcode.NewProber(config.FfmpegPath, transcode.DefaultCacheTTL)
	}

	return &Downloader{
		config:     config,
		store:      store,
		hub:        hub,
		ffmpeg:     ffmpeg,
		queue:      make([]*Job, 0),
		jobs:       make(map[string]*Job),
		active:     make(map[string]context.CancelFunc),
		maxWorkers: maxWorkers,
		now:        time.Now,
	}
}

// Hub returns the hub job progress is published to
func (d *Downloader) Hub() *progress.Hub {
	return d.hub
}

// FfmpegAvailable reports whether downloads can merge streams and extract audio
func (d *Downloader) FfmpegAvailable(ctx context.Context) bool {
	return d.ffmpeg.Available(ctx)
}

// Download fetches req into a fresh temporary directory. The caller owns the
// result and must call Cleanup. onProgress always sees a terminal event.
func (d *Downloader) Download(ctx context.Context, req models.MediaRequest, onProgress ProgressFunc) (*Result, error) {
	if onProgress == nil {
		onProgress = func(models.Progress) {}
	}

	res, err := d.download(ctx, req, onProgress)
	if err != nil {
		onProgress(models.Progress{Status: models.ProgressError, Error: err.Error()})
		return nil, err
	}

	onProgress(models.Progress{Status: models.ProgressFinished, Progress: 100})
	return res, nil
}

func (d *Downloader) download(ctx context.Context, req models.MediaRequest, onProgress ProgressFunc) (*Result, error) {
	height := 0
	if !req.Audio {
		label := req.Resolution
		if label == "" {
			label = d.config.DefaultResolution
		}

		h, err := video.ParseResolution(label)
		if err != nil {
			return nil, err
		}
		height = h
	}

	ffmpeg := d.ffmpeg.Available(ctx)
	sel := video.FormatSpec(height, req.Audio, ffmpeg, video.AudioOptions{
		Codec:   d.config.AudioCodec,
		Quality: d.config.AudioQuality,
	})

	workDir := config.WorkDir(d.config)
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}

	dir, err := os.MkdirTemp(workDir, "download-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	if d.config.DownloadTimeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(d.config.DownloadTimeoutSec)*time.Second)
		defer cancel()
	}

	logger := log.WithFields(log.Fields{
		"url":    req.URL,
		"format": sel.Format,
		"ffmpeg": ffmpeg,
	})
	logger.Info("Starting download")
	start := d.now()

	onProgress(models.Progress{Status: models.ProgressStarted})

	printed, err := d.run(ctx, d.buildArgs(sel, dir, ffmpeg, req.URL), onProgress)
	if err != nil {
		os.RemoveAll(dir)
		logger.WithError(err).Warn("Download failed")
		return nil, err
	}

	path, err := locateFile(dir, printed, sel.Extension)
	if err != nil {
		os.RemoveAll(dir)
		logger.WithError(err).Warn("Download produced no file")
		return nil, err
	}

	logger.WithField("file", filepath.Base(path)).WithField("took", d.now().Sub(start).String()).Info("Download completed")

	return &Result{
		Dir:      dir,
		Path:     path,
		FileName: filepath.Base(path),
	}, nil
}

// buildArgs builds the yt-dlp command line for one download
func (d *Downloader) buildArgs(sel video.Selection, dir string, ffmpeg bool, url string) []string {
	args := []string{
		"--no-playlist",
		"--no-warnings",
		"--newline",
		"--progress",
		"--progress-template", progressTemplate,
		"--print", "after_move:filepath",
		"-f", sel.Format,
		"-o", filepath.Join(dir, "%(title)s.%(ext)s"),
	}

	args = append(args, sel.PostArgs...)

	if ffmpeg && d.ffmpeg.Path() != transcode.DefaultBinary {
		args = append(args, "--ffmpeg-location", d.ffmpeg.Path())
	}

	if d.config.YtdlCookiesPath != "" {
		if _, err := os.Stat(d.config.YtdlCookiesPath); err == nil {
			args = append(args, "--cookies", d.config.YtdlCookiesPath)
		}
	}

	if d.config.YtdlAdditionalArgs != "" {
		args = append(args, strings.Fields(d.config.YtdlAdditionalArgs)...)
	}

	return append(args, "--", url)
}

// run executes yt-dlp, forwarding progress lines and returning the last
// other line printed on stdout, which is the final file path.
func (d *Downloader) run(ctx context.Context, args []string, onProgress ProgressFunc) (string, error) {
	cmd := exec.CommandContext(ctx, d.config.YtdlPath, args...)
	// children of a killed yt-dlp may keep the pipes open
	cmd.WaitDelay = waitDelay
	log.WithField("cmd", cmd.String()).Debug("Running yt-dlp")

	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	var progressMu sync.Mutex
	emit := func(line string) bool {
		if !isProgressLine(line) {
			return false
		}
		if ev, ok := parseProgressLine(line); ok {
			progressMu.Lock()
			onProgress(ev)
			progressMu.Unlock()
		}
		return true
	}

	var (
		wg      sync.WaitGroup
		printed string
		errTail []string
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		scanLines(stdoutR, func(line string) {
			if emit(line) || line == "" {
				return
			}
			printed = line
		})
	}()
	go func() {
		defer wg.Done()
		scanLines(stderrR, func(line string) {
			if emit(line) || line == "" {
				return
			}
			errTail = append(errTail, line)
			if len(errTail) > errTailLines {
				errTail = errTail[1:]
			}
		})
	}()

	err := cmd.Run()
	stdoutW.Close()
	stderrW.Close()
	wg.Wait()

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("%w: %v", ErrDownloadFailed, ctxErr)
		}

		msg := strings.Join(errTail, "\n")
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("%w: %s", ErrDownloadFailed, msg)
	}

	return printed, nil
}

func scanLines(r io.Reader, fn func(line string)) {
	scanner := bufio.NewScanner(r)
	scanner.Split(splitLines)
	for scanner.Scan() {
		fn(strings.TrimSpace(scanner.Text()))
	}
	// keep draining so yt-dlp never blocks on a full pipe
	io.Copy(io.Discard, r)
}

// locateFile finds the produced file, preferring the path yt-dlp printed
func locateFile(dir, printed, ext string) (string, error) {
	if printed != "" {
		if info, err := os.Stat(printed); err == nil && !info.IsDir() {
			return printed, nil
		}
	}

	entries, err := os.ReadDir(dir)
	if err == nil {
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if strings.EqualFold(filepath.Ext(entry.Name()), "."+ext) {
				return filepath.Join(dir, entry.Name()), nil
			}
		}
	}

	expected := filepath.Join(dir, "*."+ext)
	if printed != "" {
		expected = strings.TrimSuffix(printed, filepath.Ext(printed)) + "." + ext
	}

	return "", &FileNotFoundError{Path: expected}
}
