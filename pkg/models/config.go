package models

// Version is the application version, set with -ldflags at build time
var Version = "0.1.0"

// Config represents the application configuration
type Config struct {
	WebServerHost      string  `json:"webServerHost"`
	WebServerPort      int     `json:"webServerPort"`
	YtdlPath           string  `json:"ytdlPath"`
	YtdlAutoInstall    bool    `json:"ytdlAutoInstall"`
	YtdlAutoUpdate     bool    `json:"ytdlAutoUpdate"`
	YtdlCookiesPath    string  `json:"ytdlCookiesPath"`
	YtdlAdditionalArgs string  `json:"ytdlAdditionalArgs"`
	FfmpegPath         string  `json:"ffmpegPath"`
	Extractor          string  `json:"extractor"`
	SearchLimit        int     `json:"searchLimit"`
	DefaultResolution  string  `json:"defaultResolution"`
	AudioCodec         string  `json:"audioCodec"`
	AudioQuality       string  `json:"audioQuality"`
	WorkDir            string  `json:"workDir"`
	DownloadTimeoutSec int     `json:"downloadTimeoutSec"`
	MaxConcurrentJobs  int     `json:"maxConcurrentJobs"`
	JobRetentionMin    int     `json:"jobRetentionMin"`
	StoreMaxSizeGB     float64 `json:"storeMaxSizeGb"`
	LogLevel           string  `json:"logLevel"`
	LogFormat          string  `json:"logFormat"`
}

// Extractor backends
const (
	ExtractorYtdlp  = "ytdlp"
	ExtractorNative = "native"
)

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		WebServerHost:      "127.0.0.1",
		WebServerPort:      5000,
		YtdlPath:           "yt-dlp",
		YtdlAutoInstall:    false,
		YtdlAutoUpdate:     false,
		YtdlCookiesPath:    "",
		YtdlAdditionalArgs: "",
		FfmpegPath:         "ffmpeg",
		Extractor:          ExtractorYtdlp,
		SearchLimit:        5,
		DefaultResolution:  "720p",
		AudioCodec:         "mp3",
		AudioQuality:       "192",
		WorkDir:            "",
		DownloadTimeoutSec: 3600,
		MaxConcurrentJobs:  2,
		JobRetentionMin:    60,
		StoreMaxSizeGB:     0,
		LogLevel:           "info",
		LogFormat:          "text",
	}
}
