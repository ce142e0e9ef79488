package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tubegrab/internal/extractor"
	"tubegrab/internal/testutil"
	"tubegrab/pkg/models"
)

const testURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

func postForm(path string, values url.Values) *http.Request {
	req := httptest.NewRequest("POST", path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestHandleSearch(t *testing.T) {
	results := []models.SearchResult{
		{ID: "dQw4w9WgXcQ", Title: "Never Gonna Give You Up", Channel: "Rick Astley", Duration: "3:33", Link: testURL},
	}

	tests := []struct {
		name     string
		query    string
		ext      *fakeExtractor
		wantBody string
	}{
		{
			name:     "results",
			query:    "rick astley",
			ext:      &fakeExtractor{results: results},
			wantBody: `[{"id":"dQw4w9WgXcQ","title":"Never Gonna Give You Up","channel":"Rick Astley","duration":"3:33","link":"` + testURL + `","thumbnail":""}]`,
		},
		{
			name:     "search error yields empty list",
			query:    "rick astley",
			ext:      &fakeExtractor{searchErr: errors.New("boom")},
			wantBody: `[]`,
		},
		{
			name:     "unsupported search yields empty list",
			query:    "rick astley",
			ext:      &fakeExtractor{searchErr: extractor.ErrSearchUnsupported},
			wantBody: `[]`,
		},
		{
			name:     "no results",
			query:    "nothing",
			ext:      &fakeExtractor{},
			wantBody: `[]`,
		},
		{
			name:     "empty query",
			query:    "   ",
			ext:      &fakeExtractor{results: results},
			wantBody: `[]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newTestServer(t, tt.ext)

			w := serve(server, postForm("/search", url.Values{"query": {tt.query}}))

			assert.Equal(t, http.StatusOK, w.Code)
			assert.JSONEq(t, tt.wantBody, w.Body.String())
		})
	}
}

func TestHandleSearchUsesConfiguredLimit(t *testing.T) {
	ext := &fakeExtractor{}
	server := newTestServer(t, ext)
	server.config.SearchLimit = 7

	serve(server, postForm("/search", url.Values{"query": {" lofi "}}))

	assert.Equal(t, 7, ext.lastLimit)
	assert.Equal(t, "lofi", ext.lastQuery)
}

func TestHandleVideoInfo(t *testing.T) {
	info := &models.VideoInfo{
		Title:           "Test Video",
		Duration:        "3m 33s",
		DurationSeconds: 213,
		Views:           1000,
		Thumbnail:       "https://i.ytimg.com/vi/dQw4w9WgXcQ/hqdefault.jpg",
		Resolutions:     []string{"1080p", "720p"},
	}

	tests := []struct {
		name           string
		url            string
		ext            *fakeExtractor
		wantStatusCode int
		wantContains   string
	}{
		{
			name:           "valid video",
			url:            testURL,
			ext:            &fakeExtractor{info: info},
			wantStatusCode: http.StatusOK,
			wantContains:   `"resolutions":["1080p","720p"]`,
		},
		{
			name:           "invalid URL",
			url:            "https://example.com/video.mp4",
			ext:            &fakeExtractor{info: info},
			wantStatusCode: http.StatusBadRequest,
			wantContains:   `{"error":"Invalid YouTube URL"}`,
		},
		{
			name:           "missing URL",
			url:            "",
			ext:            &fakeExtractor{info: info},
			wantStatusCode: http.StatusBadRequest,
			wantContains:   "Invalid YouTube URL",
		},
		{
			name:           "extractor error",
			url:            testURL,
			ext:            &fakeExtractor{infoErr: errors.New("Video unavailable")},
			wantStatusCode: http.StatusInternalServerError,
			wantContains:   "Error loading video information: Video unavailable",
		},
		{
			name:           "no information",
			url:            testURL,
			ext:            &fakeExtractor{infoErr: fmt.Errorf("%w: empty response", extractor.ErrNoInfo)},
			wantStatusCode: http.StatusNotFound,
			wantContains:   "Failed to fetch video information",
		},
		{
			name:           "nil information",
			url:            testURL,
			ext:            &fakeExtractor{},
			wantStatusCode: http.StatusNotFound,
			wantContains:   "Failed to fetch video information",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newTestServer(t, tt.ext)

			w := serve(server, postForm("/video_info", url.Values{"url": {tt.url}}))

			assert.Equal(t, tt.wantStatusCode, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantContains)
			assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
		})
	}
}

func TestHandleDownload(t *testing.T) {
	server := newTestServer(t, nil)

	w := serve(server, postForm("/download", url.Values{
		"url":        {testURL},
		"resolution": {"720p"},
		"is_audio":   {"false"},
	}))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, testutil.FakeContent, w.Body.String())
	assert.Equal(t, `attachment; filename="Test Video.mp4"`, w.Header().Get("Content-Disposition"))

	// the temporary directory is removed once the response is written
	entries, err := os.ReadDir(server.config.WorkDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestHandleDownloadAudioWithoutFfmpeg(t *testing.T) {
	server := newTestServer(t, nil)
	argsFile := filepath.Join(t.TempDir(), "args")
	t.Setenv(testutil.EnvArgs, argsFile)
	t.Setenv(testutil.EnvExt, "webm")

	w := serve(server, postForm("/download", url.Values{
		"url":      {testURL},
		"is_audio": {"true"},
	}))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "Test Video.webm")

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Contains(t, string(args), "bestaudio/best")
	assert.NotContains(t, string(args), "--extract-audio")
}

func TestHandleDownloadErrors(t *testing.T) {
	tests := []struct {
		name           string
		env            string
		url            string
		resolution     string
		wantStatusCode int
		wantContains   string
	}{
		{
			name:           "invalid URL",
			url:            "not a url",
			resolution:     "720p",
			wantStatusCode: http.StatusBadRequest,
			wantContains:   "Invalid YouTube URL",
		},
		{
			name:           "yt-dlp failure",
			env:            testutil.EnvFail,
			url:            testURL,
			resolution:     "720p",
			wantStatusCode: http.StatusInternalServerError,
			wantContains:   "An error occurred during download: download failed: ERROR: [youtube] Video unavailable",
		},
		{
			name:           "missing file",
			env:            testutil.EnvNoFile,
			url:            testURL,
			resolution:     "720p",
			wantStatusCode: http.StatusNotFound,
			wantContains:   "Downloaded file not found: ",
		},
		{
			name:           "bad resolution",
			url:            testURL,
			resolution:     "best",
			wantStatusCode: http.StatusInternalServerError,
			wantContains:   "An error occurred during download: ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newTestServer(t, nil)
			if tt.env != "" {
				t.Setenv(tt.env, "1")
			}

			w := serve(server, postForm("/download", url.Values{
				"url":        {tt.url},
				"resolution": {tt.resolution},
			}))

			assert.Equal(t, tt.wantStatusCode, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantContains)
			assert.Empty(t, w.Header().Get("Content-Disposition"))
		})
	}
}

func TestHandleDownloadProgress(t *testing.T) {
	server := newTestServer(t, nil)

	w := serve(server, postForm("/download", url.Values{
		"url":        {testURL},
		"resolution": {"720p"},
		"job_id":     {"page-1"},
	}))
	require.Equal(t, http.StatusOK, w.Code)

	// a late subscriber gets the final event and the stream ends
	w = serve(server, httptest.NewRequest("GET", "/download_progress?id=page-1", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, `data: {"status":"finished","progress":100,"downloaded_bytes":0,"total_bytes":0,"speed":0,"eta":0}`+"\n\n", w.Body.String())
}

func TestHandleDownloadProgressSeparateFromJobs(t *testing.T) {
	server := newTestServer(t, nil)
	hub := server.downloader.Hub()
	hub.Publish("job-1", models.Progress{Status: models.ProgressDownloading, Progress: 40})

	w := serve(server, postForm("/download", url.Values{
		"url":        {testURL},
		"resolution": {"720p"},
		"job_id":     {"job-1"},
	}))
	require.Equal(t, http.StatusOK, w.Code)

	last, ok := hub.Last("job-1")
	require.True(t, ok)
	assert.Equal(t, models.ProgressDownloading, last.Status)
	assert.Equal(t, 40.0, last.Progress)

	w = serve(server, httptest.NewRequest("GET", "/download_progress?id=job-1", nil))
	assert.Contains(t, w.Body.String(), `"status":"finished"`)
}

func TestHandleDownloadProgressMissingID(t *testing.T) {
	server := newTestServer(t, nil)

	w := serve(server, httptest.NewRequest("GET", "/download_progress", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleYouTubeCookies(t *testing.T) {
	valid := "# Netscape HTTP Cookie File\n" +
		".youtube.com\tTRUE\t/\tTRUE\t1735689600\tLOGIN_INFO\tabc\n"
	httpOnly := "#HttpOnly_.youtube.com\tTRUE\t/\tTRUE\t1735689600\tSID\tabc\n"

	tests := []struct {
		name           string
		body           string
		wantStatusCode int
	}{
		{name: "valid cookies", body: valid, wantStatusCode: http.StatusOK},
		{name: "http only cookies", body: httpOnly, wantStatusCode: http.StatusOK},
		{name: "empty body", body: "", wantStatusCode: http.StatusBadRequest},
		{name: "other domain", body: ".example.com\tTRUE\t/\tTRUE\t0\tid\tx\n", wantStatusCode: http.StatusBadRequest},
		{name: "comments only", body: "# youtube.com\n", wantStatusCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newTestServer(t, nil)
			server.config.YtdlCookiesPath = filepath.Join(t.TempDir(), "cookies.txt")

			w := serve(server, httptest.NewRequest("POST", "/api/youtube-cookies", strings.NewReader(tt.body)))
			assert.Equal(t, tt.wantStatusCode, w.Code)

			if tt.wantStatusCode == http.StatusOK {
				data, err := os.ReadFile(server.config.YtdlCookiesPath)
				require.NoError(t, err)
				assert.Equal(t, tt.body, string(data))
			} else {
				assert.NoFileExists(t, server.config.YtdlCookiesPath)
			}
		})
	}
}
