package downloader

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tubegrab/pkg/models"
)

func TestParseProgressLine(t *testing.T) {
	ev, ok := parseProgressLine("tubegrab-progress downloading 250 1000 NA 100.5 7")
	require.True(t, ok)
	assert.Equal(t, models.ProgressDownloading, ev.Status)
	assert.InDelta(t, 25.0, ev.Progress, 0.001)
	assert.Equal(t, int64(250), ev.DownloadedBytes)
	assert.Equal(t, int64(1000), ev.TotalBytes)
	assert.InDelta(t, 100.5, ev.Speed, 0.001)
	assert.Equal(t, 7, ev.ETA)
}

func TestParseProgressLineEstimate(t *testing.T) {
	ev, ok := parseProgressLine("tubegrab-progress downloading 500 NA 2000.0 NA NA")
	require.True(t, ok)
	assert.InDelta(t, 25.0, ev.Progress, 0.001)
	assert.Equal(t, int64(2000), ev.TotalBytes)
	assert.Zero(t, ev.Speed)
	assert.Zero(t, ev.ETA)
}

func TestParseProgressLineDropped(t *testing.T) {
	lines := []string{
		"tubegrab-progress downloading 10 NA NA NA NA",
		"tubegrab-progress downloading 10 0 0 NA NA",
		"tubegrab-progress finished 1000 1000 NA NA NA",
		"tubegrab-progress downloading 1 2",
		"[download] Destination: video.mp4",
		"",
	}

	for _, line := range lines {
		_, ok := parseProgressLine(line)
		assert.False(t, ok, line)
	}
}

func TestIsProgressLine(t *testing.T) {
	assert.True(t, isProgressLine("tubegrab-progress downloading 1 2 NA NA NA"))
	assert.True(t, isProgressLine("  tubegrab-progress finished 1 1 NA NA NA"))
	assert.False(t, isProgressLine("/tmp/download-1/tubegrab-progress.mp4"))
	assert.False(t, isProgressLine("ERROR: unavailable"))
}

func TestSplitLines(t *testing.T) {
	scanner := bufio.NewScanner(strings.NewReader("a\rb\nc\r\nd"))
	scanner.Split(splitLines)

	var got []string
	for scanner.Scan() {
		got = append(got, scanner.Text())
	}

	assert.Equal(t, []string{"a", "b", "c", "", "d"}, got)
}
