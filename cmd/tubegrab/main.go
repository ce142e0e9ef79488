package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/apex/log"

	"tubegrab/internal/api"
	"tubegrab/internal/cli"
	"tubegrab/internal/config"
	"tubegrab/internal/downloader"
	"tubegrab/internal/extractor"
	"tubegrab/internal/logging"
	"tubegrab/internal/progress"
	"tubegrab/internal/store"
	"tubegrab/internal/transcode"
	"tubegrab/internal/ytdl"
	"tubegrab/pkg/models"
)

func main() {
	cliApp := cli.NewCLI(models.Version)
	os.Exit(cliApp.Run(os.Args[1:], os.Stdout, os.Stderr, executeCommand))
}

// app holds what every command needs after configuration is loaded
type app struct {
	cfg    *models.Config
	ytdl   *ytdl.Manager
	prober *transcode.Prober
}

func setup(ctx context.Context, prepareYtdlp bool) (*app, error) {
	cfgMgr, err := config.NewManager(config.GetDefaultConfigPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg := cfgMgr.Get()
	if err := logging.Setup(os.Stderr, cfg.LogLevel, cfg.LogFormat); err != nil {
		return nil, err
	}

	mgr := ytdl.NewManager(config.UtilsDir())

	if prepareYtdlp {
		if cfg.YtdlAutoInstall {
			if err := mgr.EnsureInstalled(ctx); err != nil {
				log.WithError(err).Warn("Failed to install yt-dlp")
			}
		}
		if cfg.YtdlAutoUpdate && mgr.IsInstalled() {
			if err := mgr.AutoUpdate(ctx); err != nil {
				log.WithError(err).Warn("Failed to update yt-dlp")
			}
		}
	}

	cfg.YtdlPath = mgr.ResolvePath(cfg.YtdlPath)
	cfg.YtdlCookiesPath = config.CookiesPath(cfg)
	log.WithFields(log.Fields{"ytdlp": cfg.YtdlPath, "config": cfgMgr.Path()}).Debug("Configuration loaded")

	return &app{
		cfg:    cfg,
		ytdl:   mgr,
		prober: transcode.NewProber(cfg.FfmpegPath, transcode.DefaultCacheTTL),
	}, nil
}

func executeCommand(cmd *cli.Command) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, cmd.Type != cli.CommandYtdlp)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	switch cmd.Type {
	case cli.CommandServer:
		return a.runServer(ctx, cmd.Port)
	case cli.CommandInfo:
		return a.runInfo(ctx, cmd.URL)
	case cli.CommandSearch:
		return a.runSearch(ctx, cmd.Query, cmd.Limit)
	case cli.CommandDownload:
		return a.runDownload(ctx, cmd)
	case cli.CommandYtdlp:
		return a.runYtdlp(ctx, cmd.CheckOnly)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd.String())
		return 1
	}
}

func (a *app) newExtractor() (extractor.Extractor, bool) {
	ext, err := extractor.New(a.cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return nil, false
	}
	return ext, true
}

func (a *app) runServer(ctx context.Context, port int) int {
	if port != 0 {
		a.cfg.WebServerPort = port
	}

	ext, ok := a.newExtractor()
	if !ok {
		return 1
	}

	if !a.prober.Available(ctx) {
		cli.PrintFfmpegWarning(os.Stderr)
	}

	st := store.NewManager(config.StoreDir(), a.cfg.StoreMaxSizeGB)
	dl := downloader.NewDownloader(a.cfg, st, progress.NewHub(), a.prober, a.cfg.MaxConcurrentJobs)
	server := api.NewServer(a.cfg, ext, dl, st)

	if err := server.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		return 1
	}

	fmt.Printf("Server listening on http://%s\n", server.GetActualAddr())
	fmt.Println("Press Ctrl+C to stop")

	<-ctx.Done()

	if err := server.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func (a *app) runInfo(ctx context.Context, url string) int {
	ext, ok := a.newExtractor()
	if !ok {
		return 1
	}

	info, err := ext.Info(ctx, url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Error loading video information: %v\n", err)
		return 1
	}

	cli.PrintInfo(os.Stdout, info)
	return 0
}

func (a *app) runSearch(ctx context.Context, query string, limit int) int {
	ext, ok := a.newExtractor()
	if !ok {
		return 1
	}

	if limit == 0 {
		limit = a.cfg.SearchLimit
	}

	results, err := ext.Search(ctx, query, limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	cli.PrintSearchResults(os.Stdout, results)
	return 0
}

func (a *app) runDownload(ctx context.Context, cmd *cli.Command) int {
	if !a.prober.Available(ctx) {
		cli.PrintFfmpegWarning(os.Stderr)
	}

	if err := os.MkdirAll(cmd.OutDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	dl := downloader.NewDownloader(a.cfg, nil, nil, a.prober, 1)
	res, err := dl.Download(ctx, models.MediaRequest{
		URL:        cmd.URL,
		Resolution: cmd.Resolution,
		Audio:      cmd.Audio,
	}, cli.ProgressPrinter(os.Stdout))
	if err != nil {
		if errors.Is(err, downloader.ErrFileNotFound) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "Error: An error occurred during download: %v\n", err)
		}
		return 1
	}
	defer res.Cleanup()

	dst := filepath.Join(cmd.OutDir, res.FileName)
	if err := store.MoveFile(res.Path, dst); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to save %s: %v\n", dst, err)
		return 1
	}

	fmt.Printf("Download completed: %s\n", dst)
	return 0
}

func (a *app) runYtdlp(ctx context.Context, checkOnly bool) int {
	fmt.Printf("Managed yt-dlp: %s\n", a.ytdl.GetYtdlpPath())
	if a.ytdl.IsInstalled() {
		fmt.Printf("Installed version: %s\n", a.ytdl.GetCurrentVersion())
	}

	latest, hasUpdate, err := a.ytdl.CheckForUpdate(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if !hasUpdate {
		fmt.Printf("Already up to date (version %s)\n", latest)
		return 0
	}

	fmt.Printf("Update available: %s\n", latest)
	if checkOnly {
		fmt.Println("Run 'tubegrab ytdlp' to install it")
		return 0
	}

	if err := a.ytdl.Download(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Printf("yt-dlp %s installed\n", latest)
	return 0
}
