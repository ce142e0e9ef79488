package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/apex/log"

	"tubegrab/internal/video"
	"tubegrab/pkg/models"
)

var (
	ErrInvalidPort        = errors.New("invalid port: must be between 1 and 65535")
	ErrInvalidResolution  = errors.New("invalid default resolution")
	ErrInvalidStoreSize   = errors.New("invalid store size: must be non-negative")
	ErrInvalidWorkers     = errors.New("invalid job workers: must be at least 1")
	ErrInvalidSearchLimit = errors.New("invalid search limit: must be between 1 and 50")
	ErrInvalidTimeout     = errors.New("invalid download timeout: must be non-negative")
	ErrInvalidExtractor   = errors.New("invalid extractor: must be ytdlp or native")
	ErrInvalidLogLevel    = errors.New("invalid log level")
	ErrInvalidLogFormat   = errors.New("invalid log format: must be text, json or cli")
)

const appDirName = "tubegrab"

// Manager guards the loaded configuration and persists every change
type Manager struct {
	mu     sync.RWMutex
	config *models.Config
	path   string
}

// NewManager loads the config at path. A missing file is created with defaults.
func NewManager(path string) (*Manager, error) {
	cfg, err := readFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		cfg = models.DefaultConfig()
		if err := writeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		log.WithField("path", path).Info("Created default config")
	case err != nil:
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}

	return &Manager{config: cfg, path: path}, nil
}

// Get returns a snapshot; callers may modify it freely.
func (m *Manager) Get() *models.Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := *m.config
	return &snapshot
}

// Path returns the file the configuration is persisted to
func (m *Manager) Path() string {
	return m.path
}

// Update runs fn on a copy, validates it and only then swaps and persists it.
func (m *Manager) Update(fn func(*models.Config)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := *m.config
	fn(&next)

	if err := Validate(&next); err != nil {
		return fmt.Errorf("rejected config update: %w", err)
	}
	if err := writeFile(m.path, &next); err != nil {
		return err
	}

	m.config = &next
	return nil
}

// Save rewrites the config file from memory
func (m *Manager) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return writeFile(m.path, m.config)
}

func readFile(path string) (*models.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// fields absent from the file keep their defaults; an explicit 0 stays 0
	cfg := models.DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("malformed %s: %w", filepath.Base(path), err)
	}

	applyDefaults(cfg, models.DefaultConfig())
	return cfg, nil
}

// writeFile replaces path through a rename so readers never see a partial file
func writeFile(path string, cfg *models.Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace config: %w", err)
	}
	return nil
}

// applyDefaults replaces blank strings, which never name a usable setting
func applyDefaults(cfg, def *models.Config) {
	for field, fallback := range map[*string]string{
		&cfg.WebServerHost:     def.WebServerHost,
		&cfg.YtdlPath:          def.YtdlPath,
		&cfg.FfmpegPath:        def.FfmpegPath,
		&cfg.Extractor:         def.Extractor,
		&cfg.DefaultResolution: def.DefaultResolution,
		&cfg.AudioCodec:        def.AudioCodec,
		&cfg.AudioQuality:      def.AudioQuality,
		&cfg.LogLevel:          def.LogLevel,
		&cfg.LogFormat:         def.LogFormat,
	} {
		if *field == "" {
			*field = fallback
		}
	}
}

// GetDataDir returns the per-user data directory, creating it on first use.
// TUBEGRAB_HOME overrides the platform default.
func GetDataDir() string {
	dir := os.Getenv("TUBEGRAB_HOME")
	if dir == "" {
		dir = platformDataDir()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.WithError(err).WithField("dir", dir).Warn("Cannot create data directory")
	}
	return dir
}

func platformDataDir() string {
	if local := os.Getenv("LOCALAPPDATA"); local != "" {
		return filepath.Join(local, appDirName)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, "."+appDirName)
	}
	return "."
}

// GetDefaultConfigPath is config.json inside GetDataDir
func GetDefaultConfigPath() string {
	return filepath.Join(GetDataDir(), "config.json")
}

// WorkDir returns the directory temporary downloads are created in
func WorkDir(cfg *models.Config) string {
	if cfg.WorkDir != "" {
		return cfg.WorkDir
	}
	return filepath.Join(os.TempDir(), appDirName)
}

// StoreDir returns the directory finished job downloads are kept in
func StoreDir() string {
	return filepath.Join(GetDataDir(), "downloads")
}

// UtilsDir returns the directory managed binaries are installed into
func UtilsDir() string {
	return filepath.Join(GetDataDir(), "utils")
}

// CookiesPath returns the configured cookies file, or the one in the data dir
func CookiesPath(cfg *models.Config) string {
	if cfg.YtdlCookiesPath != "" {
		return cfg.YtdlCookiesPath
	}
	return filepath.Join(GetDataDir(), "youtube_cookies.txt")
}
