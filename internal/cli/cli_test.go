package cli

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/pixelfix/internal/enhance"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writePNG(t *testing.T, dir, name string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{G: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func mockEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ENHANCE_PROVIDER", "mock")
	t.Setenv("ENHANCE_MODE", "")
	t.Setenv("UPLOAD_DIR", t.TempDir())
	t.Setenv("OUTPUT_DIR", t.TempDir())
	t.Setenv("REDIS_URL", "")
}

func TestEnhanceCmd_WritesOutput(t *testing.T) {
	mockEnv(t)
	dir := t.TempDir()
	in := writePNG(t, dir, "portrait.png")
	out := filepath.Join(dir, "result.png")

	stdout, err := execute(t, "enhance", in, "--mode", "chain", "--out", out)
	require.NoError(t, err)

	want, err := os.ReadFile(in)
	require.NoError(t, err)
	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	assert.Contains(t, stdout, "Provider: mock")
	assert.Contains(t, stdout, "Mode: chain")
	assert.Contains(t, stdout, "Jobs: echo-1, echo-2")
	assert.Contains(t, stdout, "Manifest: ")
	assert.Contains(t, stdout, "face_restore: job echo-1 succeeded after 1 polls")
	assert.Contains(t, stdout, "upscale: job echo-2 succeeded after 1 polls")
}

func TestEnhanceCmd_DefaultOutputNextToInput(t *testing.T) {
	mockEnv(t)
	dir := t.TempDir()
	in := writePNG(t, dir, "portrait.png")

	_, err := execute(t, "enhance", in)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "enh_portrait.png"))
}

func TestEnhanceCmd_InvalidMode(t *testing.T) {
	mockEnv(t)
	_, err := execute(t, "enhance", "whatever.png", "--mode", "fast")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid mode")
	assert.ErrorIs(t, err, enhance.ErrInvalidMode)
}

func TestEnhanceCmd_NotAnImage(t *testing.T) {
	mockEnv(t)
	in := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(in, []byte("just words"), 0o644))

	_, err := execute(t, "enhance", in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_input")
}

func TestEnhanceCmd_RequiresFile(t *testing.T) {
	_, err := execute(t, "enhance")
	require.Error(t, err)
}

func TestHealthCmd_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/health", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","message":"PixelFix backend is running"}`))
	}))
	defer srv.Close()

	stdout, err := execute(t, "health", "--addr", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, stdout, "PixelFix backend is running")
}

func TestHealthCmd_Unhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"down"}`))
	}))
	defer srv.Close()

	_, err := execute(t, "health", "--addr", srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestHealthCmd_Unreachable(t *testing.T) {
	_, err := execute(t, "health", "--addr", "127.0.0.1:1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
}
