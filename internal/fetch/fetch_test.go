package fetch

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch_HTTPSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/out/enhanced.png", r.URL.Path)
		w.Write([]byte("enhanced-bytes"))
	}))
	defer srv.Close()

	d := NewDownloader(5*time.Second, 0)
	data, err := d.Fetch(context.Background(), srv.URL+"/out/enhanced.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("enhanced-bytes"), data)
}

func TestFetch_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewDownloader(5*time.Second, 0).Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrStatus)
	assert.Contains(t, err.Error(), "404")
}

func TestFetch_TooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer srv.Close()

	_, err := NewDownloader(5*time.Second, 10).Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestFetch_ConnectionRefused(t *testing.T) {
	_, err := NewDownloader(5*time.Second, 0).Fetch(context.Background(), "http://127.0.0.1:1/out.png")
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestFetch_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	_, err := NewDownloader(100*time.Millisecond, 0).Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestFetch_DataURL(t *testing.T) {
	payload := []byte{0x89, 'P', 'N', 'G', 1, 2, 3}
	ref := "data:image/png;base64," + base64.StdEncoding.EncodeToString(payload)

	data, err := NewDownloader(time.Second, 0).Fetch(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestFetch_BadReferences(t *testing.T) {
	d := NewDownloader(time.Second, 0)
	for _, ref := range []string{"", "ftp://example.com/x.png", "not a url", "data:image/png;base64", "data:image/png;base64,!!!"} {
		_, err := d.Fetch(context.Background(), ref)
		assert.ErrorIs(t, err, ErrBadReference, "ref %q", ref)
	}
}
