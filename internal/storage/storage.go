// Package storage stages uploads and enhanced outputs in local scratch
// directories. Nothing here is durable: files are never cleaned up by the
// service and may be removed by the operator at any time.
package storage

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/kiranshivaraju/pixelfix/pkg/models"
)

// DefaultContentType is served when the output bytes cannot be identified.
const DefaultContentType = "image/jpeg"

var (
	ErrEmptyUpload = errors.New("uploaded file is empty")
	ErrNotImage    = errors.New("uploaded file is not a supported image")
)

// Scratch owns the upload and output directories.
type Scratch struct {
	uploadDir string
	outputDir string
}

// NewScratch returns a Scratch rooted at the given directories. The
// directories are created lazily on first write.
func NewScratch(uploadDir, outputDir string) *Scratch {
	return &Scratch{uploadDir: uploadDir, outputDir: outputDir}
}

func (s *Scratch) UploadDir() string { return s.uploadDir }
func (s *Scratch) OutputDir() string { return s.outputDir }

// Inspect identifies the image format of data and reads its dimensions.
func Inspect(data []byte) (contentType string, width, height int, err error) {
	if len(data) == 0 {
		return "", 0, 0, ErrEmptyUpload
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", 0, 0, fmt.Errorf("%w: detected %s", ErrNotImage, mt.String())
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", 0, 0, fmt.Errorf("%w: %v", ErrNotImage, err)
	}
	return mt.String(), cfg.Width, cfg.Height, nil
}

// SaveUpload validates data and writes it as {token}_{sanitised name} in the
// upload directory. The token is a fresh UUID so concurrent uploads sharing a
// filename never collide.
func (s *Scratch) SaveUpload(originalName string, data []byte) (*models.Upload, error) {
	contentType, w, h, err := Inspect(data)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload dir: %w", err)
	}

	name := SanitizeFilename(originalName)
	storageName := StorageName(name)
	path := filepath.Join(s.uploadDir, storageName)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating upload file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing upload file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("closing upload file: %w", err)
	}

	return &models.Upload{
		OriginalName: originalName,
		Name:         name,
		StorageName:  storageName,
		Path:         path,
		Size:         int64(len(data)),
		ContentType:  contentType,
		Width:        w,
		Height:       h,
	}, nil
}

// StorageName prefixes a sanitised name with a random 32-hex-char token.
func StorageName(name string) string {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	return token + "_" + name
}

// WriteOutput stores data as enh_{name} in the output directory. The bytes go
// to a temp file that is renamed into place; the returned Artifact keeps that
// file open, so the caller reads exactly what it wrote even if another request
// replaces the same output name afterwards.
func (s *Scratch) WriteOutput(name string, data []byte) (*models.Artifact, error) {
	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}

	outName := OutputName(SanitizeFilename(name))
	target := filepath.Join(s.outputDir, outName)

	f, err := os.CreateTemp(s.outputDir, ".tmp_"+outName+"_*")
	if err != nil {
		return nil, fmt.Errorf("creating temp output: %w", err)
	}
	cleanup := func() {
		f.Close()
		os.Remove(f.Name())
	}

	if _, err := f.Write(data); err != nil {
		cleanup()
		return nil, fmt.Errorf("writing output: %w", err)
	}
	if err := f.Chmod(0o644); err != nil {
		cleanup()
		return nil, fmt.Errorf("setting output mode: %w", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		cleanup()
		return nil, fmt.Errorf("rewinding output: %w", err)
	}
	if err := os.Rename(f.Name(), target); err != nil {
		cleanup()
		return nil, fmt.Errorf("publishing output: %w", err)
	}

	return &models.Artifact{
		Name:        outName,
		Path:        target,
		ContentType: DetectContentType(data),
		Size:        int64(len(data)),
		File:        f,
	}, nil
}

// DetectContentType sniffs an image MIME type, defaulting to image/jpeg.
func DetectContentType(data []byte) string {
	mt := mimetype.Detect(data).String()
	if strings.HasPrefix(mt, "image/") {
		return mt
	}
	return DefaultContentType
}
