// Package testutil holds stand-ins for the external binaries used in tests.
package testutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// Environment variables understood by the fake yt-dlp script
const (
	EnvExt     = "FAKE_YTDLP_EXT"     // extension of the produced file, default mp4
	EnvTitle   = "FAKE_YTDLP_TITLE"   // title substituted into the output template
	EnvFail    = "FAKE_YTDLP_FAIL"    // exit 1 with an error on stderr
	EnvNoPrint = "FAKE_YTDLP_NOPRINT" // do not print the final path
	EnvNoFile  = "FAKE_YTDLP_NOFILE"  // do not create the output file
	EnvArgs    = "FAKE_YTDLP_ARGS"    // write the received arguments to this file
	EnvSleep   = "FAKE_YTDLP_SLEEP"   // seconds to sleep before finishing
)

// FakeContent is what the fake script writes into the produced file
const FakeContent = "fake media content"

const fakeYtdlpScript = `#!/bin/sh
out=""
prev=""
for a in "$@"; do
  if [ "$prev" = "-o" ]; then out="$a"; fi
  prev="$a"
done

if [ -n "$FAKE_YTDLP_ARGS" ]; then
  printf '%s\n' "$@" > "$FAKE_YTDLP_ARGS"
fi

if [ -n "$FAKE_YTDLP_FAIL" ]; then
  echo "ERROR: [youtube] Video unavailable" >&2
  exit 1
fi

ext="${FAKE_YTDLP_EXT:-mp4}"
title="${FAKE_YTDLP_TITLE:-Test Video}"
dir=$(dirname "$out")
file="$dir/$title.$ext"

echo "tubegrab-progress downloading 250 1000 NA 100.5 7"
echo "tubegrab-progress downloading 10 NA NA NA NA"
echo "tubegrab-progress downloading 500 NA 1000.0 200 2" >&2
echo "tubegrab-progress downloading 1000 1000 NA 300 0"
echo "tubegrab-progress finished 1000 1000 NA NA NA"

if [ -n "$FAKE_YTDLP_SLEEP" ]; then
  sleep "$FAKE_YTDLP_SLEEP"
fi

if [ -z "$FAKE_YTDLP_NOFILE" ]; then
  printf '%s' "fake media content" > "$file"
fi

if [ -z "$FAKE_YTDLP_NOPRINT" ]; then
  echo "$file"
fi
`

// FakeYtdlp writes an executable script that mimics the parts of yt-dlp
// the downloader relies on and returns its path.
func FakeYtdlp(t testing.TB) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake yt-dlp is a shell script")
	}

	path := filepath.Join(t.TempDir(), "yt-dlp")
	if err := os.WriteFile(path, []byte(fakeYtdlpScript), 0755); err != nil {
		t.Fatalf("failed to write fake yt-dlp: %v", err)
	}
	return path
}

// FakeFfmpeg writes a script standing in for ffmpeg. When available is
// false the script exits non-zero, like a broken install.
func FakeFfmpeg(t testing.TB, available bool) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake ffmpeg is a shell script")
	}

	code := "1"
	if available {
		code = "0"
	}

	path := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit "+code+"\n"), 0755); err != nil {
		t.Fatalf("failed to write fake ffmpeg: %v", err)
	}
	return path
}
