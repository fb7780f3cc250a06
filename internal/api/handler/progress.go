package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kiranshivaraju/pixelfix/internal/api/response"
	"github.com/kiranshivaraju/pixelfix/pkg/models"
)

// ProgressReader defines the interface the progress handler depends on.
type ProgressReader interface {
	GetProgress(ctx context.Context, requestID string) (*models.Progress, bool, error)
}

// NewProgressHandler returns an http.HandlerFunc for
// GET /api/enhance/{requestID}/progress.
func NewProgressHandler(store ProgressReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := chi.URLParam(r, "requestID")
		if requestID == "" {
			response.Error(w, http.StatusBadRequest, "request ID is required")
			return
		}

		p, found, err := store.GetProgress(r.Context(), requestID)
		if err != nil {
			slog.Error("reading progress", "request_id", requestID, "error", err)
			response.Error(w, http.StatusServiceUnavailable, "Progress store unavailable")
			return
		}
		if !found {
			response.Error(w, http.StatusNotFound, "Unknown request ID")
			return
		}

		response.JSON(w, p)
	}
}
