package handler

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/kiranshivaraju/pixelfix/internal/api/response"
)

// NewIndexHandler serves {staticDir}/index.html for GET /.
func NewIndexHandler(staticDir string) http.HandlerFunc {
	index := filepath.Join(staticDir, "index.html")
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := os.Stat(index); err != nil {
			response.Error(w, http.StatusNotFound, "Page not found")
			return
		}
		w.Header().Set("Cache-Control", "no-cache")
		http.ServeFile(w, r, index)
	}
}

// NewStaticHandler serves files below staticDir under prefix.
func NewStaticHandler(prefix, staticDir string) http.Handler {
	return http.StripPrefix(prefix, http.FileServer(http.Dir(staticDir)))
}
