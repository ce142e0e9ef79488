package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tubegrab/internal/testutil"
)

type jobResponse struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	FileName string `json:"filename"`
	Error    string `json:"error"`
}

func startJobServer(t *testing.T) *Server {
	t.Helper()

	server := newTestServer(t, nil)
	require.NoError(t, server.downloader.Start())
	t.Cleanup(func() { server.downloader.Stop() })
	return server
}

func createJob(t *testing.T, server *Server, body string) jobResponse {
	t.Helper()

	req := httptest.NewRequest("POST", "/api/jobs", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := serve(server, req)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var job jobResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	assert.Equal(t, "/api/jobs/"+job.ID, w.Header().Get("Location"))
	return job
}

func waitForJob(t *testing.T, server *Server, id, status string) jobResponse {
	t.Helper()

	var job jobResponse
	require.Eventually(t, func() bool {
		w := serve(server, httptest.NewRequest("GET", "/api/jobs/"+id, nil))
		if w.Code != http.StatusOK {
			return false
		}
		job = jobResponse{}
		return json.Unmarshal(w.Body.Bytes(), &job) == nil && job.Status == status
	}, 10*time.Second, 50*time.Millisecond)
	return job
}

func TestJobLifecycle(t *testing.T) {
	server := startJobServer(t)

	job := createJob(t, server, `{"url":"`+testURL+`","resolution":"720p"}`)
	assert.Equal(t, "queued", job.Status)

	done := waitForJob(t, server, job.ID, "completed")
	assert.Equal(t, "Test Video.mp4", done.FileName)

	// events of a finished job replay the final event
	w := serve(server, httptest.NewRequest("GET", "/api/jobs/"+job.ID+"/events", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"finished"`)

	w = serve(server, httptest.NewRequest("GET", "/api/jobs/"+job.ID+"/file", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, testutil.FakeContent, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "Test Video.mp4")

	w = serve(server, httptest.NewRequest("GET", "/api/jobs", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var jobs []jobResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &jobs))
	require.Len(t, jobs, 1)
	assert.Equal(t, job.ID, jobs[0].ID)

	w = serve(server, httptest.NewRequest("DELETE", "/api/jobs/"+job.ID, nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = serve(server, httptest.NewRequest("GET", "/api/jobs/"+job.ID, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = serve(server, httptest.NewRequest("GET", "/api/jobs/"+job.ID+"/file", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateJobFromForm(t *testing.T) {
	server := startJobServer(t)

	w := serve(server, postForm("/api/jobs", url.Values{"url": {testURL}, "is_audio": {"true"}}))
	require.Equal(t, http.StatusAccepted, w.Code)

	var job jobResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	assert.NotEmpty(t, job.ID)
}

func TestCreateJobValidation(t *testing.T) {
	server := startJobServer(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "invalid json", body: `{"url":`},
		{name: "invalid url", body: `{"url":"https://example.com/watch"}`},
		{name: "invalid resolution", body: `{"url":"` + testURL + `","resolution":"high"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/jobs", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")

			w := serve(server, req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestCreateJobWhenStopped(t *testing.T) {
	server := newTestServer(t, nil)

	w := serve(server, postForm("/api/jobs", url.Values{"url": {testURL}}))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestFailedJobFile(t *testing.T) {
	server := startJobServer(t)
	t.Setenv(testutil.EnvFail, "1")

	job := createJob(t, server, `{"url":"`+testURL+`"}`)
	failed := waitForJob(t, server, job.ID, "failed")
	assert.Contains(t, failed.Error, "Video unavailable")

	w := serve(server, httptest.NewRequest("GET", "/api/jobs/"+job.ID+"/file", nil))
	assert.Equal(t, http.StatusConflict, w.Code)

	w = serve(server, httptest.NewRequest("GET", "/api/jobs/"+job.ID+"/events", nil))
	assert.Contains(t, w.Body.String(), `"status":"error"`)
}

func TestUnknownJob(t *testing.T) {
	server := newTestServer(t, nil)

	for _, req := range []*http.Request{
		httptest.NewRequest("GET", "/api/jobs/missing", nil),
		httptest.NewRequest("GET", "/api/jobs/missing/events", nil),
		httptest.NewRequest("GET", "/api/jobs/missing/file", nil),
		httptest.NewRequest("DELETE", "/api/jobs/missing", nil),
	} {
		w := serve(server, req)
		assert.Equal(t, http.StatusNotFound, w.Code, req.Method+" "+req.URL.Path)
	}
}
