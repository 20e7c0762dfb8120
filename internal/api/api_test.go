// SPDX-License-Identifier: MIT

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamloft/vodhub/internal/assemble"
	"github.com/streamloft/vodhub/internal/catalog"
	"github.com/streamloft/vodhub/internal/config"
	"github.com/streamloft/vodhub/internal/transcode"
	"github.com/streamloft/vodhub/internal/upload"
)

// fakeRunner stands in for ffmpeg/ffprobe so handler tests run the full
// pipeline without external binaries.
type fakeRunner struct{}

func (fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if strings.Contains(name, "ffprobe") {
		return []byte("1280,720,30.0\n"), nil
	}
	return nil, nil
}

type testEnv struct {
	handler http.Handler
	store   *catalog.Store
	cfg     *config.AppConfig
}

func newTestEnv(t *testing.T, mutate func(*config.AppConfig)) *testEnv {
	t.Helper()

	dataDir := t.TempDir()
	cfg := config.AppConfig{
		Listen:          ":0",
		DataDir:         dataDir,
		ChunkDir:        filepath.Join(dataDir, "chunks"),
		MediaDir:        filepath.Join(dataDir, "media"),
		HLSDir:          filepath.Join(dataDir, "hls"),
		MaxFileSize:     1 << 20,
		MinDiskFree:     0,
		RequireInit:     true,
		SessionTTL:      time.Hour,
		SweepEvery:      time.Hour,
		FFmpegPath:      "ffmpeg",
		FFprobePath:     "ffprobe",
		Workers:         1,
		QueueDepth:      4,
		SegmentDuration: 6,
		Qualities:       []string{"480p", "720p", "1080p", "2160p"},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	require.NoError(t, cfg.EnsureDirs())

	sessions, err := upload.OpenStoreInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sessions.Close() })

	store, err := catalog.NewStore(filepath.Join(dataDir, "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	tracker := upload.NewTracker(sessions, upload.TrackerConfig{
		RequireInit: cfg.RequireInit,
		MaxFileSize: cfg.MaxFileSize,
		MinDiskFree: cfg.MinDiskFree,
		ChunkDir:    cfg.ChunkDir,
	})
	receiver := upload.NewReceiver(tracker, cfg.MinDiskFree)

	scheduler := transcode.NewScheduler(transcode.Config{
		Workers:         cfg.Workers,
		QueueDepth:      cfg.QueueDepth,
		FFmpegPath:      cfg.FFmpegPath,
		FFprobePath:     cfg.FFprobePath,
		HLSDir:          cfg.HLSDir,
		SegmentDuration: cfg.SegmentDuration,
		Qualities:       cfg.Qualities,
	}, fakeRunner{}, store)
	ctx, cancel := context.WithCancel(context.Background())
	scheduler.Start(ctx)
	t.Cleanup(func() {
		cancel()
		scheduler.Stop()
	})

	assembler := assemble.New(tracker, receiver, store, scheduler, cfg.MediaDir)
	server := New(&cfg, tracker, receiver, assembler, scheduler, store, catalog.NewSQLCounters(store))
	return &testEnv{handler: server.Router(), store: store, cfg: &cfg}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) postForm(t *testing.T, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return e.do(t, req)
}

func (e *testEnv) postChunk(t *testing.T, filename string, index, total int, payload string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("chunkIndex", strconv.Itoa(index)))
	require.NoError(t, w.WriteField("totalChunks", strconv.Itoa(total)))
	require.NoError(t, w.WriteField("filename", filename))
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = io.WriteString(part, payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload/chunk", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return e.do(t, req)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestUploadFlow(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.postForm(t, "/api/upload/init", url.Values{
		"filename":    {"My Movie.mp4"},
		"totalSize":   {"22"},
		"totalChunks": {"2"},
		"title":       {"My Movie"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "initialized", body["status"])
	assert.Equal(t, "My_Movie.mp4", body["sessionKey"])

	rec = env.postChunk(t, "My Movie.mp4", 1, 2, "second-half")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body = decodeBody(t, rec)
	assert.Equal(t, "chunk_received", body["status"])
	assert.InDelta(t, 50.0, body["progress"], 0.01)

	rec = env.postChunk(t, "My Movie.mp4", 0, 2, "first-half-")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.postForm(t, "/api/upload/complete", url.Values{
		"filename":    {"My Movie.mp4"},
		"totalChunks": {"2"},
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	body = decodeBody(t, rec)
	assert.Equal(t, "processing_started", body["status"])
	videoID, _ := body["videoId"].(string)
	require.NotEmpty(t, videoID)
	assert.Equal(t, "/hls/"+videoID+"/master.m3u8", body["hlsUrl"])

	// Poll until the fake transcode pipeline publishes the video.
	require.Eventually(t, func() bool {
		rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/upload/videos/"+videoID, nil))
		if rec.Code != http.StatusOK {
			return false
		}
		return strings.Contains(rec.Body.String(), `"status":"ready"`)
	}, 5*time.Second, 20*time.Millisecond)

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/upload/videos/"+videoID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var video catalog.Video
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &video))
	assert.Equal(t, "My Movie", video.Title)
	assert.Equal(t, []string{"480p", "720p"}, video.Qualities)
	assert.Equal(t, 30, video.DurationSeconds)

	// The published master manifest is served through the HLS endpoint.
	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/hls/"+videoID+"/master.m3u8", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/vnd.apple.mpegurl", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "#EXTM3U")
	assert.Contains(t, rec.Body.String(), "720p/playlist.m3u8")
}

func TestCompleteIncompleteUploadConflict(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.postForm(t, "/api/upload/init", url.Values{
		"filename":    {"partial.mp4"},
		"totalSize":   {"10"},
		"totalChunks": {"3"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	env.postChunk(t, "partial.mp4", 0, 3, "x")

	rec = env.postForm(t, "/api/upload/complete", url.Values{
		"filename":    {"partial.mp4"},
		"totalChunks": {"3"},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["message"], "chunks missing")
}

func TestChunkStrictModeRequiresInit(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.postChunk(t, "ghost.mp4", 0, 2, "x")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChunkLenientModeCreatesSession(t *testing.T) {
	env := newTestEnv(t, func(c *config.AppConfig) { c.RequireInit = false })
	rec := env.postChunk(t, "lazy.mp4", 0, 1, "whole thing")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.postForm(t, "/api/upload/complete", url.Values{
		"filename":    {"lazy.mp4"},
		"totalChunks": {"1"},
	})
	assert.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
}

func TestInitValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name string
		form url.Values
		want int
	}{
		{"missing size", url.Values{"filename": {"a.mp4"}, "totalChunks": {"2"}}, http.StatusBadRequest},
		{"bad chunks", url.Values{"filename": {"a.mp4"}, "totalSize": {"10"}, "totalChunks": {"zero"}}, http.StatusBadRequest},
		{"zero chunks", url.Values{"filename": {"a.mp4"}, "totalSize": {"10"}, "totalChunks": {"0"}}, http.StatusBadRequest},
		{"too large", url.Values{"filename": {"a.mp4"}, "totalSize": {"9999999"}, "totalChunks": {"1"}}, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.postForm(t, "/api/upload/init", tt.form)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestAuth(t *testing.T) {
	env := newTestEnv(t, func(c *config.AppConfig) { c.APIToken = "secret-token" })

	req := httptest.NewRequest(http.MethodGet, "/api/upload/videos", nil)
	assert.Equal(t, http.StatusUnauthorized, env.do(t, req).Code, "missing token")

	req = httptest.NewRequest(http.MethodGet, "/api/upload/videos", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, env.do(t, req).Code, "wrong token")

	req = httptest.NewRequest(http.MethodGet, "/api/upload/videos", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	assert.Equal(t, http.StatusOK, env.do(t, req).Code)

	// Health and playback surfaces stay open.
	assert.Equal(t, http.StatusOK, env.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil)).Code)
}

func TestListPagination(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 15; i++ {
		require.NoError(t, env.store.Create(ctx, catalog.Video{
			ID:        fmt.Sprintf("vid-%02d", i),
			Title:     fmt.Sprintf("Video %02d", i),
			Filename:  "f.mp4",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/upload/videos", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Len(t, body["videos"], 12, "default page size")

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/upload/videos?page=2&limit=10", nil))
	body = decodeBody(t, rec)
	assert.Len(t, body["videos"], 5)

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/upload/videos?limit=5000", nil))
	body = decodeBody(t, rec)
	assert.Len(t, body["videos"], 15, "limit clamped to maximum")
}

func TestVideoMetadataUpdate(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, env.store.Create(context.Background(), catalog.Video{
		ID: "v1", Title: "Old", Filename: "f.mp4", Uploader: "alice",
	}))

	patch := func(uploader, title string) *httptest.ResponseRecorder {
		body, _ := json.Marshal(map[string]string{"title": title, "description": "d"})
		req := httptest.NewRequest(http.MethodPatch, "/api/upload/videos/v1", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Uploader", uploader)
		return env.do(t, req)
	}

	rec := patch("mallory", "Stolen")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = patch("alice", "New Title")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "New Title")

	rec = patch("alice", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "empty title rejected")
}

func TestVideoDelete(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, env.store.Create(context.Background(), catalog.Video{
		ID: "v1", Title: "T", Filename: "f.mp4", Uploader: "alice",
	}))

	req := httptest.NewRequest(http.MethodDelete, "/api/upload/videos/v1", nil)
	req.Header.Set("X-Uploader", "mallory")
	assert.Equal(t, http.StatusForbidden, env.do(t, req).Code)

	req = httptest.NewRequest(http.MethodDelete, "/api/upload/videos/v1", nil)
	req.Header.Set("X-Uploader", "alice")
	assert.Equal(t, http.StatusOK, env.do(t, req).Code)

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/upload/videos/v1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestViewAndLike(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, env.store.Create(context.Background(), catalog.Video{
		ID: "v1", Title: "T", Filename: "f.mp4",
	}))

	for i := 0; i < 3; i++ {
		rec := env.do(t, httptest.NewRequest(http.MethodPost, "/api/upload/videos/v1/view", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}
	rec := env.do(t, httptest.NewRequest(http.MethodPost, "/api/upload/videos/v1/like", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	video, err := env.store.Get(context.Background(), "v1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), video.Views)
	assert.Equal(t, int64(1), video.Likes)

	rec = env.do(t, httptest.NewRequest(http.MethodPost, "/api/upload/videos/missing/view", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSearch(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	require.NoError(t, env.store.Create(ctx, catalog.Video{ID: "a", Title: "Summer Trip", Filename: "a.mp4"}))
	require.NoError(t, env.store.Create(ctx, catalog.Video{ID: "b", Title: "Other", Filename: "b.mp4"}))

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/upload/search?query=Summer", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Len(t, body["videos"], 1)

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/upload/search", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFileServerHardening(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name string
		path string
		want int
	}{
		{"traversal", "/hls/../catalog.db", http.StatusForbidden},
		{"encoded traversal", "/hls/%2e%2e/catalog.db", http.StatusForbidden},
		{"directory listing", "/hls/", http.StatusForbidden},
		{"missing file", "/hls/nope/master.m3u8", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.want, env.do(t, req).Code)
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/hls/x.m3u8", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, env.do(t, req).Code)
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "vodhub_")
}
