package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/mdnorm/internal/config"
	"github.com/dgallion1/mdnorm/internal/normalize"
	"github.com/dgallion1/mdnorm/internal/pipeline"
)

func newTestServer(t *testing.T, apiKey string) *Server {
	t.Helper()
	cfg := config.Config{
		Port:            "8090",
		APIKey:          apiKey,
		WorkerCount:     2,
		MaxQueueSize:    10,
		MaxUploadBytes:  1024,
		JobTTL:          time.Hour,
		MaxNestingDepth: 64,
		LogLevel:        "warn",
	}
	log := slog.New(slog.DiscardHandler)
	n := normalize.New()
	orch := pipeline.NewOrchestrator(cfg, n, log)
	orch.Start(context.Background())
	t.Cleanup(orch.Stop)
	return NewServer(orch, n, log, cfg)
}

func multipartBody(t *testing.T, field string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		fw, err := mw.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = io.WriteString(fw, content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, "secret")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestNormalize_RawBody(t *testing.T) {
	srv := newTestServer(t, "")
	req := httptest.NewRequest(http.MethodPost, "/api/normalize", strings.NewReader("* a\n* b\n"))
	req.Header.Set("Content-Type", "text/markdown")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "- a\n- b\n", rec.Body.String())
	assert.Equal(t, "0", rec.Header().Get("X-Nested-Failures"))
}

func TestNormalize_Multipart(t *testing.T) {
	srv := newTestServer(t, "")
	body, ctype := multipartBody(t, "file", map[string]string{"doc.md": "```md\n+ x\n```\n"})
	req := httptest.NewRequest(http.MethodPost, "/api/normalize", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "```md\n- x\n```\n", rec.Body.String())
	assert.Equal(t, "1", rec.Header().Get("X-Nested-Rewritten"))
}

func TestNormalize_NestedFailureHeader(t *testing.T) {
	srv := newTestServer(t, "")
	doc := "```markdown\n" + strings.Repeat(">", 100) + " x\n```\n"
	req := httptest.NewRequest(http.MethodPost, "/api/normalize", strings.NewReader(doc))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, doc, rec.Body.String())
	assert.Equal(t, "1", rec.Header().Get("X-Nested-Failures"))
}

func TestNormalize_TopLevelFailure(t *testing.T) {
	srv := newTestServer(t, "")
	req := httptest.NewRequest(http.MethodPost, "/api/normalize", strings.NewReader("bad \xff\n"))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "UTF-8")
}

func TestNormalize_TooLarge(t *testing.T) {
	srv := newTestServer(t, "")
	req := httptest.NewRequest(http.MethodPost, "/api/normalize", strings.NewReader(strings.Repeat("a", 2048)))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestNormalize_UnsupportedUpload(t *testing.T) {
	srv := newTestServer(t, "")
	body, ctype := multipartBody(t, "file", map[string]string{"main.go": "package main\n"})
	req := httptest.NewRequest(http.MethodPost, "/api/normalize", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unsupported file type")
}

func TestAuth(t *testing.T) {
	srv := newTestServer(t, "secret")

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/normalize", strings.NewReader("x")))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing authorization")

	req := httptest.NewRequest(http.MethodPost, "/api/normalize", strings.NewReader("x"))
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/normalize", strings.NewReader("x"))
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestJobs_SubmitAndPoll(t *testing.T) {
	srv := newTestServer(t, "")
	body, ctype := multipartBody(t, "files", map[string]string{
		"a.md":  "* one\n",
		"b.txt": "ignored\n",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		Jobs []map[string]any `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Jobs, 2)

	var jobID string
	for _, j := range resp.Jobs {
		switch j["filename"] {
		case "a.md":
			jobID, _ = j["job_id"].(string)
		case "b.txt":
			assert.Contains(t, j["error"], "unsupported file type")
		}
	}
	require.NotEmpty(t, jobID)

	job := srv.orchestrator.GetJob(jobID)
	require.NotNil(t, job)
	select {
	case <-job.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("job did not finish")
	}

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/"+jobID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var snap pipeline.JobSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, pipeline.StatusCompleted, snap.Status)
	assert.Equal(t, "- one\n", snap.Output)
	assert.True(t, snap.Changed)
}

func TestJobs_NotFound(t *testing.T) {
	srv := newTestServer(t, "")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"../../etc/passwd": "passwd",
		"notes.md":         "notes.md",
		"a..b.md":          "a_b.md",
		"":                 "unnamed",
	}
	for in, want := range tests {
		assert.Equal(t, want, sanitizeFilename(in), "sanitizeFilename(%q)", in)
	}
}
