// Package enhance runs the per-request pipeline: stage the upload, call the
// remote model(s), wait for completion, download the result and store it.
package enhance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kiranshivaraju/pixelfix/internal/poll"
	"github.com/kiranshivaraju/pixelfix/internal/provider/remote"
	"github.com/kiranshivaraju/pixelfix/internal/storage"
	"github.com/kiranshivaraju/pixelfix/pkg/models"
)

const progressTTL = 10 * time.Minute

// Downloader retrieves the bytes behind an output reference.
type Downloader interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// ProgressSink receives progress snapshots. cache.Cache satisfies it.
type ProgressSink interface {
	SetProgress(ctx context.Context, p models.Progress, ttl time.Duration) error
}

// Request is one enhancement call.
type Request struct {
	RequestID string
	Filename  string
	Data      []byte
	// Mode overrides the service default when set.
	Mode models.Mode
}

// Result is a successful enhancement. The caller owns Artifact.File.
type Result struct {
	RequestID string
	Mode      models.Mode
	Upload    *models.Upload
	Jobs      []*models.Job
	Artifact  *models.Artifact
}

// JobIDs returns the provider job IDs in stage order.
func (r *Result) JobIDs() []string {
	ids := make([]string, 0, len(r.Jobs))
	for _, j := range r.Jobs {
		ids = append(ids, j.ID)
	}
	return ids
}

// Service orchestrates enhancement requests.
type Service struct {
	provider    models.EnhanceProvider
	scratch     *storage.Scratch
	downloader  Downloader
	progress    ProgressSink
	poller      poll.Poller
	defaultMode models.Mode
	now         func() time.Time
}

// NewService creates a Service. progress may be nil.
func NewService(p models.EnhanceProvider, scratch *storage.Scratch, dl Downloader, progress ProgressSink, mode models.Mode) *Service {
	if mode == "" {
		mode = models.ModeSingle
	}
	return &Service{
		provider:    p,
		scratch:     scratch,
		downloader:  dl,
		progress:    progress,
		poller:      *poll.New(),
		defaultMode: mode,
		now:         time.Now,
	}
}

// WithPoller replaces the poll settings. Intended for tests and the CLI.
func (s *Service) WithPoller(p poll.Poller) *Service {
	s.poller = p
	return s
}

// DefaultMode returns the mode used when a request does not pick one.
func (s *Service) DefaultMode() models.Mode { return s.defaultMode }

// ProviderName returns the configured provider identifier.
func (s *Service) ProviderName() string { return s.provider.Name() }

// Enhance runs the full pipeline for req. Errors are always *Error.
func (s *Service) Enhance(ctx context.Context, req Request) (*Result, error) {
	started := s.now()

	if req.Data == nil {
		return nil, newError(KindMissingInput, "", "No image file provided", nil)
	}

	mode := req.Mode
	if mode == "" {
		mode = s.defaultMode
	}
	stages := mode.Stages()
	for _, stage := range stages {
		if !s.provider.Supports(stage) {
			return nil, newError(KindInvalidInput, stage,
				fmt.Sprintf("Mode %s is not supported by %s", mode, s.provider.Name()), nil)
		}
	}

	upload, err := s.scratch.SaveUpload(req.Filename, req.Data)
	if err != nil {
		if errors.Is(err, storage.ErrNotImage) || errors.Is(err, storage.ErrEmptyUpload) {
			return nil, newError(KindInvalidInput, "", "Uploaded file is not a supported image", err)
		}
		return nil, newError(KindInternal, "", "Failed to store upload", err)
	}

	log := slog.With("request_id", req.RequestID, "provider", s.provider.Name(), "mode", mode)
	log.Info("enhance: upload staged",
		"storage_name", upload.StorageName,
		"size", upload.Size,
		"content_type", upload.ContentType,
	)

	result := &Result{RequestID: req.RequestID, Mode: mode, Upload: upload}
	var records []storage.StageRecord

	input := models.ImageRef{Data: req.Data, Filename: upload.StorageName, ContentType: upload.ContentType}
	for _, stage := range stages {
		job, rec, err := s.runStage(ctx, log, req.RequestID, stage, input)
		if err != nil {
			return nil, err
		}
		result.Jobs = append(result.Jobs, job)
		records = append(records, rec)
		// The next stage consumes exactly the reference this stage produced.
		input = models.ImageRef{URL: job.Output}
	}

	last := result.Jobs[len(result.Jobs)-1]
	data, err := s.downloader.Fetch(ctx, last.Output)
	if err != nil {
		if isCanceled(ctx, err) {
			return nil, newError(KindInternal, last.Stage, "Request canceled", err)
		}
		return nil, newError(KindDownload, last.Stage, "Failed to download enhanced image", err)
	}

	artifact, err := s.scratch.WriteOutput(upload.Name, data)
	if err != nil {
		return nil, newError(KindInternal, "", "Failed to store enhanced image", err)
	}
	result.Artifact = artifact

	manifest := &storage.Manifest{
		RequestID: req.RequestID,
		Provider:  s.provider.Name(),
		Mode:      string(mode),
		Input: storage.ManifestInput{
			OriginalName: upload.OriginalName,
			StorageName:  upload.StorageName,
			ContentType:  upload.ContentType,
			Size:         upload.Size,
			Width:        upload.Width,
			Height:       upload.Height,
		},
		Output: storage.ManifestFile{
			Name:        artifact.Name,
			ContentType: artifact.ContentType,
			Size:        artifact.Size,
		},
		Stages:     records,
		StartedAt:  started.UTC(),
		FinishedAt: s.now().UTC(),
	}
	if err := s.scratch.WriteManifest(artifact.Name, manifest); err != nil {
		log.Warn("enhance: manifest not written", "error", err)
	}

	log.Info("enhance: completed",
		"artifact", artifact.Name,
		"bytes", artifact.Size,
		"jobs", strings.Join(result.JobIDs(), ","),
		"duration_ms", s.now().Sub(started).Milliseconds(),
	)
	return result, nil
}

// runStage submits one stage and, when the job is not already terminal,
// polls it to completion.
func (s *Service) runStage(ctx context.Context, log *slog.Logger, requestID string, stage models.Stage, input models.ImageRef) (*models.Job, storage.StageRecord, error) {
	rec := storage.StageRecord{Stage: string(stage)}
	stageStart := s.now()

	job, err := s.provider.Submit(ctx, stage, input)
	if err != nil {
		if isCanceled(ctx, err) {
			return nil, rec, newError(KindInternal, stage, "Request canceled", err)
		}
		return nil, rec, newError(KindRemoteCall, stage, remoteCallMessage(s.provider.Name(), stage, err), err)
	}
	job.Stage = stage
	rec.JobID = job.ID
	log.Info("enhance: job submitted", "stage", stage, "job_id", job.ID, "status", job.Status)
	s.publish(ctx, requestID, job, 0)

	if !job.Status.Terminal() {
		p := s.poller
		p.OnAttempt = func(attempt int, j *models.Job) {
			log.Debug("enhance: poll", "stage", stage, "job_id", j.ID, "attempt", attempt, "status", j.Status)
			j.Stage = stage
			s.publish(ctx, requestID, j, attempt)
		}

		polled, attempts, err := p.Wait(ctx, job.ID, s.provider.Status)
		rec.Polls = attempts
		if polled != nil {
			job = polled
			job.Stage = stage
		}
		switch {
		case err == nil:
		case errors.Is(err, poll.ErrTimeout):
			return nil, rec, newError(KindPollTimeout, stage,
				fmt.Sprintf("%s job %s did not finish in time", stage, job.ID), err)
		case errors.Is(err, poll.ErrJobFailed):
			return nil, rec, newError(KindRemoteJob, stage, jobFailedMessage(stage, job), err)
		case isCanceled(ctx, err):
			return nil, rec, newError(KindInternal, stage, "Request canceled", err)
		default:
			return nil, rec, newError(KindRemoteCall, stage, remoteCallMessage(s.provider.Name(), stage, err), err)
		}
	}

	rec.Status = string(job.Status)
	rec.Duration = s.now().Sub(stageStart)

	if job.Status == models.JobStatusFailed {
		return nil, rec, newError(KindRemoteJob, stage, jobFailedMessage(stage, job), poll.ErrJobFailed)
	}
	if job.Output == "" {
		return nil, rec, newError(KindRemoteJob, stage,
			fmt.Sprintf("%s returned no image", displayName(s.provider.Name())), nil)
	}

	log.Info("enhance: job finished", "stage", stage, "job_id", job.ID, "polls", rec.Polls)
	return job, rec, nil
}

// publish records progress; a failing cache never fails the request.
func (s *Service) publish(ctx context.Context, requestID string, job *models.Job, attempt int) {
	if s.progress == nil || requestID == "" {
		return
	}
	err := s.progress.SetProgress(ctx, models.Progress{
		RequestID: requestID,
		Stage:     job.Stage,
		JobID:     job.ID,
		Status:    job.Status,
		Attempt:   attempt,
		UpdatedAt: s.now().UTC(),
	}, progressTTL)
	if err != nil {
		slog.Debug("enhance: progress not recorded", "request_id", requestID, "error", err)
	}
}

func remoteCallMessage(provider string, stage models.Stage, err error) string {
	switch {
	case errors.Is(err, remote.ErrUnauthorized):
		return fmt.Sprintf("%s rejected the API credentials", displayName(provider))
	case errors.Is(err, remote.ErrBilling):
		return fmt.Sprintf("%s reported a billing issue", displayName(provider))
	case errors.Is(err, remote.ErrRemoteTimeout):
		return fmt.Sprintf("%s did not respond in time", displayName(provider))
	case errors.Is(err, remote.ErrUnreachable):
		return fmt.Sprintf("%s is unreachable", displayName(provider))
	default:
		return fmt.Sprintf("%s %s request failed: %v", displayName(provider), stage, err)
	}
}

func jobFailedMessage(stage models.Stage, job *models.Job) string {
	if job.Error != "" {
		return fmt.Sprintf("%s job %s failed: %s", stage, job.ID, job.Error)
	}
	return fmt.Sprintf("%s job %s failed", stage, job.ID)
}

func displayName(provider string) string {
	switch provider {
	case "deepai":
		return "DeepAI"
	case "replicate":
		return "Replicate"
	default:
		return provider
	}
}

func isCanceled(ctx context.Context, err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled)
}
