package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"tubegrab/internal/video"
)

var ErrInvalidURL = errors.New("invalid YouTube URL")

// CommandType represents the type of CLI command
type CommandType int

const (
	CommandHelp CommandType = iota
	CommandVersion
	CommandServer
	CommandInfo
	CommandSearch
	CommandDownload
	CommandYtdlp
)

// Command represents a parsed CLI command
type Command struct {
	Type       CommandType
	Port       int
	URL        string
	Query      string
	Limit      int
	Resolution string
	Audio      bool
	OutDir     string
	CheckOnly  bool
}

// String returns a string representation of the command
func (c *Command) String() string {
	switch c.Type {
	case CommandHelp:
		return "help"
	case CommandVersion:
		return "version"
	case CommandServer:
		if c.Port != 0 {
			return fmt.Sprintf("server (port: %d)", c.Port)
		}
		return "server"
	case CommandInfo:
		return fmt.Sprintf("info (url: %s)", c.URL)
	case CommandSearch:
		return fmt.Sprintf("search (query: %q)", c.Query)
	case CommandDownload:
		if c.Audio {
			return fmt.Sprintf("download (url: %s, audio)", c.URL)
		}
		return fmt.Sprintf("download (url: %s, resolution: %s)", c.URL, c.Resolution)
	case CommandYtdlp:
		if c.CheckOnly {
			return "ytdlp (check only)"
		}
		return "ytdlp"
	default:
		return "unknown"
	}
}

// CLI represents the command-line interface
type CLI struct {
	version string
}

// NewCLI creates a new CLI instance
func NewCLI(version string) *CLI {
	return &CLI{
		version: version,
	}
}

// ParseCommand parses command-line arguments and returns a Command
func (c *CLI) ParseCommand(args []string) (*Command, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("no command specified")
	}

	// Check for global flags first
	if args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		return &Command{Type: CommandHelp}, nil
	}

	if args[0] == "-v" || args[0] == "--version" || args[0] == "version" {
		return &Command{Type: CommandVersion}, nil
	}

	switch args[0] {
	case "server":
		return c.parseServerCommand(args[1:])
	case "info":
		return c.parseInfoCommand(args[1:])
	case "search":
		return c.parseSearchCommand(args[1:])
	case "download":
		return c.parseDownloadCommand(args[1:])
	case "ytdlp":
		return c.parseYtdlpCommand(args[1:])
	default:
		return nil, fmt.Errorf("unknown command: %s", args[0])
	}
}

// parseServerCommand parses the server command. Port 0 keeps the configured port.
func (c *CLI) parseServerCommand(args []string) (*Command, error) {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	port := fs.Int("port", 0, "Server port (default from config)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *port < 0 || *port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", *port)
	}

	return &Command{
		Type: CommandServer,
		Port: *port,
	}, nil
}

func (c *CLI) parseInfoCommand(args []string) (*Command, error) {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	url, err := singleURL(fs.Args())
	if err != nil {
		return nil, err
	}

	return &Command{
		Type: CommandInfo,
		URL:  url,
	}, nil
}

func (c *CLI) parseSearchCommand(args []string) (*Command, error) {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	limit := fs.Int("limit", 0, "Number of results (default from config)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		return nil, fmt.Errorf("no search query specified")
	}

	if *limit < 0 {
		return nil, fmt.Errorf("invalid limit: %d", *limit)
	}

	return &Command{
		Type:  CommandSearch,
		Query: query,
		Limit: *limit,
	}, nil
}

func (c *CLI) parseDownloadCommand(args []string) (*Command, error) {
	fs := flag.NewFlagSet("download", flag.ContinueOnError)
	resolution := fs.String("res", "", "Maximum video resolution, e.g. 720p (default from config)")
	audio := fs.Bool("audio", false, "Download audio only")
	outDir := fs.String("out", ".", "Directory the file is saved to")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	url, err := singleURL(fs.Args())
	if err != nil {
		return nil, err
	}

	if *resolution != "" && !*audio {
		if _, err := video.ParseResolution(*resolution); err != nil {
			return nil, err
		}
	}

	return &Command{
		Type:       CommandDownload,
		URL:        url,
		Resolution: *resolution,
		Audio:      *audio,
		OutDir:     *outDir,
	}, nil
}

func (c *CLI) parseYtdlpCommand(args []string) (*Command, error) {
	fs := flag.NewFlagSet("ytdlp", flag.ContinueOnError)
	checkOnly := fs.Bool("check", false, "Only check for updates without installing")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	return &Command{
		Type:      CommandYtdlp,
		CheckOnly: *checkOnly,
	}, nil
}

func singleURL(args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("expected exactly one URL, got %d arguments", len(args))
	}

	if !video.IsValidURL(args[0]) {
		return "", fmt.Errorf("%w: %s", ErrInvalidURL, args[0])
	}

	return strings.TrimSpace(args[0]), nil
}

// PrintHelp prints the help message
func (c *CLI) PrintHelp(w io.Writer) {
	help := `tubegrab - download YouTube videos and audio through yt-dlp

Usage:
  tubegrab [command] [flags] [arguments]

Available Commands:
  server      Start the web interface and HTTP API
  info        Show information about a video
  search      Search YouTube
  download    Download a video or its audio
  ytdlp       Install or update the managed yt-dlp binary
  version     Print version information
  help        Print this help message

Server Flags:
  -port int      Server port (default from config)

Search Flags:
  -limit int     Number of results (default from config)

Download Flags:
  -res string    Maximum video resolution, e.g. 720p (default from config)
  -audio         Download audio only (mp3 when ffmpeg is available)
  -out string    Directory the file is saved to (default ".")

Ytdlp Flags:
  -check         Only check for updates without installing

Examples:
  tubegrab server
  tubegrab server -port 9000
  tubegrab info https://www.youtube.com/watch?v=dQw4w9WgXcQ
  tubegrab search -limit 10 lofi hip hop
  tubegrab download -res 1080p https://youtu.be/dQw4w9WgXcQ
  tubegrab download -audio -out ~/Music https://youtu.be/dQw4w9WgXcQ
  tubegrab ytdlp -check
`
	fmt.Fprint(w, help)
}

// PrintVersion prints the version information
func (c *CLI) PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "tubegrab version %s\n", c.version)
}

// Run parses args and answers help and version itself. Every other
// command is handed to execute, whose result becomes the exit code.
func (c *CLI) Run(args []string, stdout, stderr io.Writer, execute func(*Command) int) int {
	if len(args) == 0 {
		c.PrintHelp(stderr)
		return 1
	}

	cmd, err := c.ParseCommand(args)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n\n", err)
		c.PrintHelp(stderr)
		return 1
	}

	switch cmd.Type {
	case CommandHelp:
		c.PrintHelp(stdout)
		return 0
	case CommandVersion:
		c.PrintVersion(stdout)
		return 0
	default:
		return execute(cmd)
	}
}
