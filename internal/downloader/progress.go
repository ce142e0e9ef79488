package downloader

import (
	"strconv"
	"strings"

	"tubegrab/pkg/models"
)

// progressPrefix marks the lines produced by progressTemplate
const progressPrefix = "tubegrab-progress"

// progressTemplate makes yt-dlp print one parseable line per progress tick.
// Fields yt-dlp does not know are printed as "NA".
var progressTemplate = "download:" + progressPrefix +
	" %(progress.status)s" +
	" %(progress.downloaded_bytes)s" +
	" %(progress.total_bytes)s" +
	" %(progress.total_bytes_estimate)s" +
	" %(progress.speed)s" +
	" %(progress.eta)s"

func isProgressLine(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), progressPrefix+" ")
}

// parseProgressLine turns a template line into a progress event. ok is
// false for other stages and for ticks without a known total size.
func parseProgressLine(line string) (models.Progress, bool) {
	fields := strings.Fields(line)
	if len(fields) != 7 || fields[0] != progressPrefix || fields[1] != "downloading" {
		return models.Progress{}, false
	}

	downloaded := parseNumber(fields[2])
	total := parseNumber(fields[3])
	if total <= 0 {
		total = parseNumber(fields[4])
	}
	if total <= 0 {
		return models.Progress{}, false
	}

	return models.Progress{
		Status:          models.ProgressDownloading,
		Progress:        downloaded / total * 100,
		DownloadedBytes: int64(downloaded),
		TotalBytes:      int64(total),
		Speed:           parseNumber(fields[5]),
		ETA:             int(parseNumber(fields[6])),
	}, true
}

func parseNumber(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// splitLines is a bufio.SplitFunc that treats both '\r' and '\n' as line ends
func splitLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i, b := range data {
		if b == '\r' || b == '\n' {
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}
