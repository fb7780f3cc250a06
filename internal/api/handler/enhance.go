package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	mw "github.com/kiranshivaraju/pixelfix/internal/api/middleware"
	"github.com/kiranshivaraju/pixelfix/internal/api/response"
	"github.com/kiranshivaraju/pixelfix/internal/enhance"
)

const (
	// DefaultMaxUploadBytes bounds the whole multipart body.
	DefaultMaxUploadBytes int64 = 32 << 20
	multipartMemory             = 8 << 20

	// JobsHeader lists the provider job IDs that produced the response.
	JobsHeader = "X-Enhance-Jobs"
)

// Enhancer defines the interface the handler depends on.
type Enhancer interface {
	Enhance(ctx context.Context, req enhance.Request) (*enhance.Result, error)
}

// NewEnhanceHandler returns an http.HandlerFunc for POST /api/enhance.
// The response body is the enhanced image itself.
func NewEnhanceHandler(svc Enhancer, maxUploadBytes int64) http.HandlerFunc {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			if isTooLarge(err) {
				response.Error(w, http.StatusRequestEntityTooLarge,
					fmt.Sprintf("Uploaded file exceeds the %d byte limit", maxUploadBytes))
				return
			}
			response.Error(w, http.StatusBadRequest, "No image file provided")
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, hdr, err := r.FormFile("image")
		if err != nil {
			response.Error(w, http.StatusBadRequest, "No image file provided")
			return
		}
		defer file.Close()

		mode, err := enhance.ParseMode(r.FormValue("mode"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, err.Error())
			return
		}

		data, err := io.ReadAll(file)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "Failed to read uploaded file")
			return
		}
		if data == nil {
			data = []byte{}
		}

		requestID, _ := mw.GetRequestID(r)
		result, err := svc.Enhance(r.Context(), enhance.Request{
			RequestID: requestID,
			Filename:  hdr.Filename,
			Data:      data,
			Mode:      mode,
		})
		if err != nil {
			status := StatusFor(enhance.KindOf(err))
			if status >= http.StatusInternalServerError {
				slog.Error("enhance failed", "request_id", requestID, "kind", enhance.KindOf(err), "error", err)
			} else {
				slog.Warn("enhance rejected", "request_id", requestID, "kind", enhance.KindOf(err), "error", err)
			}
			response.Error(w, status, enhance.MessageOf(err))
			return
		}

		art := result.Artifact
		defer art.File.Close()

		modTime := time.Now()
		if fi, err := art.File.Stat(); err == nil {
			modTime = fi.ModTime()
		}

		w.Header().Set("Content-Type", art.ContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", art.Name))
		w.Header().Set(JobsHeader, strings.Join(result.JobIDs(), ","))
		w.Header().Set("Cache-Control", "no-store")
		http.ServeContent(w, r, art.Name, modTime, art.File)
	}
}

// StatusFor maps a pipeline failure kind to an HTTP status code.
func StatusFor(kind enhance.Kind) int {
	switch kind {
	case enhance.KindMissingInput, enhance.KindInvalidInput:
		return http.StatusBadRequest
	case enhance.KindPollTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
