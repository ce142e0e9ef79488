package video

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var ErrInvalidResolution = errors.New("invalid resolution")

// DefaultResolutions is reported when no format carries a height
var DefaultResolutions = []string{"720p"}

// ParseResolution turns a label such as "720p" into a pixel height
func ParseResolution(label string) (int, error) {
	s := strings.TrimSuffix(strings.TrimSpace(strings.ToLower(label)), "p")
	if s == "" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidResolution, label)
	}

	height, err := strconv.Atoi(s)
	if err != nil || height <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidResolution, label)
	}

	return height, nil
}

// Resolutions converts format heights into unique labels, highest first
func Resolutions(heights []int) []string {
	seen := make(map[int]struct{}, len(heights))
	unique := make([]int, 0, len(heights))
	for _, h := range heights {
		if h <= 0 {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		unique = append(unique, h)
	}

	if len(unique) == 0 {
		return append([]string(nil), DefaultResolutions...)
	}

	sort.Sort(sort.Reverse(sort.IntSlice(unique)))

	labels := make([]string, len(unique))
	for i, h := range unique {
		labels[i] = fmt.Sprintf("%dp", h)
	}
	return labels
}

// AudioOptions controls audio extraction when ffmpeg is present
type AudioOptions struct {
	Codec   string
	Quality string
}

// Selection is everything yt-dlp needs to pick and post-process streams
type Selection struct {
	Format    string
	Extension string
	// PostArgs are appended to the yt-dlp invocation
	PostArgs []string
}

// FormatSpec builds the stream selection for a download.
// Without ffmpeg separate streams cannot be merged, so only
// pre-muxed formats are selected.
func FormatSpec(height int, audio, ffmpeg bool, opts AudioOptions) Selection {
	if audio {
		if !ffmpeg {
			return Selection{Format: "bestaudio/best", Extension: "webm"}
		}

		codec := opts.Codec
		if codec == "" {
			codec = "mp3"
		}
		quality := opts.Quality
		if quality == "" {
			quality = "192"
		}
		// yt-dlp reads 0-10 as a VBR level and anything above as kbit/s
		if q, err := strconv.Atoi(quality); err == nil && q > 10 {
			quality += "K"
		}

		return Selection{
			Format:    "bestaudio/best",
			Extension: codec,
			PostArgs:  []string{"--extract-audio", "--audio-format", codec, "--audio-quality", quality},
		}
	}

	if ffmpeg {
		return Selection{
			Format:    fmt.Sprintf("bestvideo[height<=%d]+bestaudio/best[height<=%d]", height, height),
			Extension: "mp4",
			PostArgs:  []string{"--merge-output-format", "mp4"},
		}
	}

	return Selection{
		Format:    fmt.Sprintf("best[height<=%d]", height),
		Extension: "mp4",
	}
}
