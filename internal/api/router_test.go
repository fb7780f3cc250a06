package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/pixelfix/internal/api"
	"github.com/kiranshivaraju/pixelfix/internal/api/handler"
	mw "github.com/kiranshivaraju/pixelfix/internal/api/middleware"
	"github.com/kiranshivaraju/pixelfix/internal/cache"
	"github.com/kiranshivaraju/pixelfix/internal/enhance"
	"github.com/kiranshivaraju/pixelfix/internal/fetch"
	"github.com/kiranshivaraju/pixelfix/internal/poll"
	"github.com/kiranshivaraju/pixelfix/internal/provider/mock"
	"github.com/kiranshivaraju/pixelfix/internal/storage"
	"github.com/kiranshivaraju/pixelfix/pkg/models"
)

// --- in-memory cache ---

type memCache struct {
	mu       sync.Mutex
	counts   map[string]int64
	progress map[string]models.Progress
	incrErr  error
}

func newMemCache() *memCache {
	return &memCache{counts: map[string]int64{}, progress: map[string]models.Progress{}}
}

func (c *memCache) Ping(_ context.Context) error                                      { return nil }

func (c *memCache) SetProgress(_ context.Context, p models.Progress, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.progress[p.RequestID] = p
	return nil
}

func (c *memCache) GetProgress(_ context.Context, id string) (*models.Progress, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.progress[id]
	if !ok {
		return nil, false, nil
	}
	return &p, true, nil
}

func (c *memCache) IncrWithExpiry(_ context.Context, key string, _ time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.incrErr != nil {
		return 0, c.incrErr
	}
	c.counts[key]++
	return c.counts[key], nil
}

var _ cache.Cache = (*memCache)(nil)

// --- helpers ---

func okHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func uploadRequest(t *testing.T, filename string, data []byte, mode string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mpw := multipart.NewWriter(&buf)
	part, err := mpw.CreateFormFile("image", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	if mode != "" {
		require.NoError(t, mpw.WriteField("mode", mode))
	}
	require.NoError(t, mpw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/enhance", &buf)
	req.Header.Set("Content-Type", mpw.FormDataContentType())
	return req
}

func noSleep(context.Context, time.Duration) error { return nil }

// --- routing ---

func TestRouter_NilHandlersReturn501(t *testing.T) {
	router := api.NewRouter(api.Dependencies{})

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/"},
		{http.MethodGet, "/api/health"},
		{http.MethodPost, "/api/enhance"},
		{http.MethodGet, "/api/enhance/abc/progress"},
	} {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
			assert.Equal(t, http.StatusNotImplemented, w.Code)
		})
	}
}

func TestRouter_HealthAndRequestID(t *testing.T) {
	router := api.NewRouter(api.Dependencies{HealthHandler: okHandler(`{"status":"ok"}`)})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(mw.RequestIDHeader))
}

func TestRouter_UnknownRouteIsJSON404(t *testing.T) {
	router := api.NewRouter(api.Dependencies{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
}

func TestRouter_WrongMethodOnEnhance(t *testing.T) {
	router := api.NewRouter(api.Dependencies{EnhanceHandler: okHandler("ok")})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/enhance", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestRouter_StaticMountedWhenConfigured(t *testing.T) {
	static := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("static:" + r.URL.Path))
	})
	router := api.NewRouter(api.Dependencies{StaticHandler: static})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/static/app.css", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "static:/static/app.css", w.Body.String())
}

func TestRouter_RateLimitOnlyOnEnhance(t *testing.T) {
	c := newMemCache()
	router := api.NewRouter(api.Dependencies{
		RateLimit:      mw.NewRateLimit(c, 2),
		HealthHandler:  okHandler("healthy"),
		EnhanceHandler: okHandler("enhanced"),
	})

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/enhance", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/enhance", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_RateLimitFailsOpen(t *testing.T) {
	c := newMemCache()
	c.incrErr = errors.New("redis down")
	router := api.NewRouter(api.Dependencies{
		RateLimit:      mw.NewRateLimit(c, 1),
		EnhanceHandler: okHandler("enhanced"),
	})

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/enhance", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

// --- full stack ---

func newStack(t *testing.T, p models.EnhanceProvider, mode models.Mode, c *memCache) http.Handler {
	t.Helper()
	scratch := storage.NewScratch(t.TempDir(), t.TempDir())
	svc := enhance.NewService(p, scratch, fetch.NewDownloader(5*time.Second, 0), c, mode).
		WithPoller(poll.Poller{Interval: time.Millisecond, MaxAttempts: 5, Sleep: noSleep})

	deps := api.Dependencies{
		EnhanceHandler:  handler.NewEnhanceHandler(svc, 1<<20),
		ProgressHandler: handler.NewProgressHandler(c),
	}
	return api.NewRouter(deps)
}

func TestStack_ChainEnhanceReturnsImage(t *testing.T) {
	original := pngBytes(t)
	c := newMemCache()
	router := newStack(t, mock.NewEchoProvider(), models.ModeChain, c)

	req := uploadRequest(t, "my face.png", original, "")
	req.Header.Set(mw.RequestIDHeader, "stack-req-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, original, w.Body.Bytes())
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "enh_my_face.png")
	assert.Equal(t, "echo-1,echo-2", w.Header().Get(handler.JobsHeader))
	assert.Equal(t, "stack-req-1", w.Header().Get(mw.RequestIDHeader))

	pw := httptest.NewRecorder()
	router.ServeHTTP(pw, httptest.NewRequest(http.MethodGet, "/api/enhance/stack-req-1/progress", nil))
	require.Equal(t, http.StatusOK, pw.Code)

	var progress models.Progress
	require.NoError(t, json.Unmarshal(pw.Body.Bytes(), &progress))
	assert.Equal(t, models.StageUpscale, progress.Stage)
	assert.Equal(t, models.JobStatusSucceeded, progress.Status)
}

func TestStack_RejectsNonImage(t *testing.T) {
	router := newStack(t, mock.NewEchoProvider(), models.ModeSingle, newMemCache())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, uploadRequest(t, "notes.txt", []byte("plain text, not pixels"), ""))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "not a supported image")
}

func TestStack_RemoteJobFailure(t *testing.T) {
	p := mock.NewScriptedProvider(map[models.Stage]mock.Script{
		models.StageUpscale: {
			Statuses: []models.JobStatus{models.JobStatusCreated, models.JobStatusFailed},
			Error:    "CUDA out of memory",
		},
	})
	router := newStack(t, p, models.ModeSingle, newMemCache())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, uploadRequest(t, "face.png", pngBytes(t), "single"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "CUDA out of memory")
}

func TestStack_PollTimeoutIs504(t *testing.T) {
	p := mock.NewScriptedProvider(map[models.Stage]mock.Script{
		models.StageUpscale: {Statuses: []models.JobStatus{models.JobStatusPending}},
	})
	router := newStack(t, p, models.ModeSingle, newMemCache())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, uploadRequest(t, "face.png", pngBytes(t), ""))

	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Equal(t, 5, len(p.StatusCalls()))
}

func TestStack_UnknownProgressID(t *testing.T) {
	router := newStack(t, mock.NewEchoProvider(), models.ModeSingle, newMemCache())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/enhance/"+strings.Repeat("a", 8)+"/progress", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}
