package ytdl

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/dustin/go-humanize"
)

const (
	ytdlpReleaseAPI = "https://api.github.com/repos/yt-dlp/yt-dlp/releases/latest"
	checksumAsset   = "SHA2-256SUMS"
	versionTimeout  = 10 * time.Second
)

var (
	ErrNoAsset          = errors.New("no asset found for platform")
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// HTTPClient is the part of *http.Client the manager needs
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Manager handles yt-dlp installation and updates
type Manager struct {
	mu             sync.Mutex
	utilsDir       string
	releaseURL     string
	client         HTTPClient
	currentVersion string
	lastCheckTime  time.Time
}

// GitHubRelease represents a GitHub release
type GitHubRelease struct {
	TagName string         `json:"tag_name"`
	Assets  []ReleaseAsset `json:"assets"`
}

// ReleaseAsset is a downloadable file of a release
type ReleaseAsset struct {
	Name               string `json:"name"`
	Size               int64  `json:"size"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

func (r *GitHubRelease) asset(name string) (ReleaseAsset, bool) {
	for _, a := range r.Assets {
		if a.Name == name {
			return a, true
		}
	}
	return ReleaseAsset{}, false
}

// NewManager creates a new yt-dlp manager
func NewManager(utilsDir string) *Manager {
	return NewManagerWithClient(utilsDir, &http.Client{Timeout: 5 * time.Minute})
}

// NewManagerWithClient creates a manager that talks to GitHub through client
func NewManagerWithClient(utilsDir string, client HTTPClient) *Manager {
	if err := os.MkdirAll(utilsDir, 0755); err != nil {
		log.WithError(err).WithField("dir", utilsDir).Warn("Failed to create utils directory")
	}

	return &Manager{
		utilsDir:   utilsDir,
		releaseURL: ytdlpReleaseAPI,
		client:     client,
	}
}

// GetYtdlpPath returns the path of the managed yt-dlp executable
func (m *Manager) GetYtdlpPath() string {
	return filepath.Join(m.utilsDir, detectPlatform())
}

// IsInstalled checks if the managed yt-dlp exists
func (m *Manager) IsInstalled() bool {
	_, err := os.Stat(m.GetYtdlpPath())
	return err == nil
}

// ResolvePath returns configured when it can be found, else the managed binary
func (m *Manager) ResolvePath(configured string) string {
	if configured != "" {
		if path, err := exec.LookPath(configured); err == nil {
			return path
		}
	}
	return m.GetYtdlpPath()
}

// GetCurrentVersion returns the installed version, asking the binary if
// it was not installed by this manager
func (m *Manager) GetCurrentVersion() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.currentVersion == "" && m.IsInstalled() {
		m.currentVersion = BinaryVersion(context.Background(), m.GetYtdlpPath())
	}
	return m.currentVersion
}

// LastCheck returns when GitHub was last asked for a release
func (m *Manager) LastCheck() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCheckTime
}

// BinaryVersion runs `<path> --version` and returns its output, or "" on failure
func BinaryVersion(ctx context.Context, path string) string {
	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, path, "--version").Output()
	if err != nil {
		log.WithError(err).WithField("path", path).Debug("Failed to read yt-dlp version")
		return ""
	}
	return strings.TrimSpace(string(out))
}

func (m *Manager) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return m.client.Do(req)
}

func (m *Manager) latestRelease(ctx context.Context) (*GitHubRelease, error) {
	resp, err := m.get(ctx, m.releaseURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GitHub API returned status %d", resp.StatusCode)
	}

	var release GitHubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("failed to parse release info: %w", err)
	}

	m.mu.Lock()
	m.lastCheckTime = time.Now()
	m.mu.Unlock()

	return &release, nil
}

// CheckForUpdate checks if a newer version is available
func (m *Manager) CheckForUpdate(ctx context.Context) (string, bool, error) {
	release, err := m.latestRelease(ctx)
	if err != nil {
		return "", false, fmt.Errorf("failed to check for updates: %w", err)
	}

	// If not installed, any version is an update
	if !m.IsInstalled() {
		return release.TagName, true, nil
	}

	current := m.GetCurrentVersion()
	if current == "" || current != release.TagName {
		return release.TagName, true, nil
	}

	return release.TagName, false, nil
}

// Download downloads and installs the latest yt-dlp
func (m *Manager) Download(ctx context.Context) error {
	release, err := m.latestRelease(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch release info: %w", err)
	}

	platform := detectPlatform()
	asset, ok := release.asset(platform)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoAsset, platform)
	}

	logger := log.WithFields(log.Fields{"version": release.TagName, "asset": asset.Name})
	logger.Info("Downloading yt-dlp")

	resp, err := m.get(ctx, asset.BrowserDownloadURL)
	if err != nil {
		return fmt.Errorf("failed to download yt-dlp: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	ytdlpPath := m.GetYtdlpPath()
	tmpPath := ytdlpPath + ".tmp"

	out, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	hash := sha256.New()
	written, err := io.Copy(io.MultiWriter(out, hash), resp.Body)
	out.Close()
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write file: %w", err)
	}

	if sums, ok := release.asset(checksumAsset); ok {
		if err := m.verifyChecksum(ctx, sums.BrowserDownloadURL, platform, hex.EncodeToString(hash.Sum(nil))); err != nil {
			os.Remove(tmpPath)
			return err
		}
	} else {
		logger.Warn("Release has no checksum file, skipping verification")
	}

	if err := os.Chmod(tmpPath, 0755); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to make executable: %w", err)
	}

	// Windows cannot rename over an existing file
	if m.IsInstalled() {
		if err := os.Remove(ytdlpPath); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to remove old file: %w", err)
		}
	}

	if err := os.Rename(tmpPath, ytdlpPath); err != nil {
		return fmt.Errorf("failed to rename file: %w", err)
	}

	m.mu.Lock()
	m.currentVersion = release.TagName
	m.mu.Unlock()

	logger.WithField("size", humanize.Bytes(uint64(written))).Info("yt-dlp installed")

	return nil
}

// verifyChecksum compares sum with the entry for name in the release checksum file
func (m *Manager) verifyChecksum(ctx context.Context, url, name, sum string) error {
	resp, err := m.get(ctx, url)
	if err != nil {
		return fmt.Errorf("failed to download checksums: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("checksum download failed with status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 || strings.TrimPrefix(fields[1], "*") != name {
			continue
		}
		if !strings.EqualFold(fields[0], sum) {
			return fmt.Errorf("%w for %s", ErrChecksumMismatch, name)
		}
		return nil
	}

	return fmt.Errorf("%w: %s not listed", ErrChecksumMismatch, name)
}

// EnsureInstalled ensures yt-dlp is installed, downloading if necessary
func (m *Manager) EnsureInstalled(ctx context.Context) error {
	if m.IsInstalled() {
		return nil
	}

	log.WithField("path", m.GetYtdlpPath()).Info("yt-dlp not found, downloading")
	return m.Download(ctx)
}

// AutoUpdate checks for and applies updates if available
func (m *Manager) AutoUpdate(ctx context.Context) error {
	latestVersion, hasUpdate, err := m.CheckForUpdate(ctx)
	if err != nil {
		return err
	}

	if !hasUpdate {
		log.WithField("version", latestVersion).Info("yt-dlp is up to date")
		return nil
	}

	log.WithField("version", latestVersion).Info("Updating yt-dlp")
	return m.Download(ctx)
}

// detectPlatform returns the appropriate yt-dlp binary name for the current platform
func detectPlatform() string {
	switch runtime.GOOS {
	case "windows":
		return "yt-dlp.exe"
	case "linux":
		if runtime.GOARCH == "arm64" {
			return "yt-dlp_linux_aarch64"
		}
		return "yt-dlp_linux"
	case "darwin":
		return "yt-dlp_macos"
	default:
		return "yt-dlp"
	}
}
