package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"

	"tubegrab/pkg/models"
)

// PrintFfmpegWarning tells the user which features are missing without ffmpeg
func PrintFfmpegWarning(w io.Writer) {
	fmt.Fprintln(w, "Warning: ffmpeg was not found. Video and audio streams cannot be merged,")
	fmt.Fprintln(w, "so downloads use single-file formats and audio is saved without conversion.")
}

// PrintInfo prints the metadata block of a video
func PrintInfo(w io.Writer, info *models.VideoInfo) {
	fmt.Fprintf(w, "Title:       %s\n", info.Title)
	fmt.Fprintf(w, "Duration:    %s\n", info.Duration)
	fmt.Fprintf(w, "Views:       %s\n", humanize.Comma(info.Views))
	if info.Thumbnail != "" {
		fmt.Fprintf(w, "Thumbnail:   %s\n", info.Thumbnail)
	}
	fmt.Fprintf(w, "Resolutions: %s\n", strings.Join(info.Resolutions, ", "))
}

// PrintSearchResults prints numbered search hits
func PrintSearchResults(w io.Writer, results []models.SearchResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No results found")
		return
	}

	for i, r := range results {
		fmt.Fprintf(w, "%d. %s\n", i+1, r.Title)
		fmt.Fprintf(w, "   %s | %s\n", r.Channel, r.Duration)
		fmt.Fprintf(w, "   %s\n", r.Link)
	}
}

// ProgressPrinter returns a progress callback that keeps rewriting one
// status line on w
func ProgressPrinter(w io.Writer) func(models.Progress) {
	var mu sync.Mutex
	width := 0

	line := func(s string) {
		pad := ""
		if n := width - len(s); n > 0 {
			pad = strings.Repeat(" ", n)
		}
		fmt.Fprintf(w, "\r%s%s", s, pad)
		width = len(s)
	}

	return func(p models.Progress) {
		mu.Lock()
		defer mu.Unlock()

		switch p.Status {
		case models.ProgressStarted:
			line("Starting download...")
		case models.ProgressDownloading:
			s := fmt.Sprintf("Downloaded: %s / %s (%.1f%%)",
				humanize.Bytes(uint64(p.DownloadedBytes)),
				humanize.Bytes(uint64(p.TotalBytes)),
				p.Progress)
			if p.Speed > 0 {
				s += fmt.Sprintf(" at %s/s", humanize.Bytes(uint64(p.Speed)))
			}
			line(s)
		case models.ProgressFinished:
			line("Download finished")
			fmt.Fprintln(w)
		case models.ProgressError:
			fmt.Fprintln(w)
		}
	}
}
