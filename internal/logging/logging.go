package logging

import (
	"fmt"
	"io"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/text"
)

// Setup installs the global apex/log handler and level
func Setup(w io.Writer, level, format string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}

	var handler log.Handler
	switch format {
	case "json":
		handler = json.New(w)
	case "cli":
		handler = cli.New(w)
	case "", "text":
		handler = text.New(w)
	default:
		return fmt.Errorf("unknown log format %q", format)
	}

	log.SetHandler(handler)
	log.SetLevel(lvl)

	return nil
}
