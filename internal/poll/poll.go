// Package poll waits for remote jobs to reach a terminal status.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kiranshivaraju/pixelfix/pkg/models"
)

const (
	DefaultInterval    = 2 * time.Second
	DefaultMaxAttempts = 30
)

var (
	ErrJobFailed = errors.New("remote job failed")
	ErrTimeout   = errors.New("remote job did not finish in time")
)

// StatusFunc fetches the current state of a job.
type StatusFunc func(ctx context.Context, jobID string) (*models.Job, error)

// Poller queries a job at a fixed interval until it is terminal or the
// attempt budget runs out. There is no backoff and no jitter.
type Poller struct {
	Interval    time.Duration
	MaxAttempts int
	// Sleep waits between queries; nil uses a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnAttempt is called after every status query.
	OnAttempt func(attempt int, job *models.Job)
}

// New returns a Poller with the default interval and budget.
func New() *Poller {
	return &Poller{Interval: DefaultInterval, MaxAttempts: DefaultMaxAttempts}
}

// Wait polls jobID until it succeeds, fails or the budget is spent. It sleeps
// between queries and never after the last allowed one. The returned attempt
// count is the number of status queries made.
func (p *Poller) Wait(ctx context.Context, jobID string, status StatusFunc) (*models.Job, int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		job, err := status(ctx, jobID)
		if err != nil {
			return nil, attempt, err
		}
		if p.OnAttempt != nil {
			p.OnAttempt(attempt, job)
		}

		switch job.Status {
		case models.JobStatusSucceeded:
			return job, attempt, nil
		case models.JobStatusFailed:
			return job, attempt, fmt.Errorf("%w: job %s: %s", ErrJobFailed, jobID, failureReason(job))
		}

		if attempt == maxAttempts {
			break
		}
		if err := sleep(ctx, p.Interval); err != nil {
			return nil, attempt, err
		}
	}

	return nil, maxAttempts, fmt.Errorf("%w: job %s still pending after %d attempts", ErrTimeout, jobID, maxAttempts)
}

func failureReason(job *models.Job) string {
	if job.Error != "" {
		return job.Error
	}
	return "no reason given"
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
