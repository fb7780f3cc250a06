package mock

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/kiranshivaraju/pixelfix/internal/provider/remote"
	"github.com/kiranshivaraju/pixelfix/pkg/models"
)

// SubmitCall records one Submit invocation.
type SubmitCall struct {
	Stage models.Stage
	Input models.ImageRef
}

// MockProvider satisfies models.EnhanceProvider for testing and local runs.
type MockProvider struct {
	Name_      string
	SupportsFn func(stage models.Stage) bool
	SubmitFunc func(ctx context.Context, stage models.Stage, input models.ImageRef) (*models.Job, error)
	StatusFunc func(ctx context.Context, jobID string) (*models.Job, error)

	mu          sync.Mutex
	submits     []SubmitCall
	statusCalls []string
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Supports(stage models.Stage) bool {
	if m.SupportsFn != nil {
		return m.SupportsFn(stage)
	}
	return true
}

func (m *MockProvider) Submit(ctx context.Context, stage models.Stage, input models.ImageRef) (*models.Job, error) {
	m.mu.Lock()
	m.submits = append(m.submits, SubmitCall{Stage: stage, Input: input})
	m.mu.Unlock()

	if m.SubmitFunc != nil {
		return m.SubmitFunc(ctx, stage, input)
	}
	return &models.Job{ID: "mock-job", Stage: stage, Status: models.JobStatusSucceeded}, nil
}

func (m *MockProvider) Status(ctx context.Context, jobID string) (*models.Job, error) {
	m.mu.Lock()
	m.statusCalls = append(m.statusCalls, jobID)
	m.mu.Unlock()

	if m.StatusFunc != nil {
		return m.StatusFunc(ctx, jobID)
	}
	return &models.Job{ID: jobID, Status: models.JobStatusSucceeded}, nil
}

// Submits returns a copy of every recorded Submit call.
func (m *MockProvider) Submits() []SubmitCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SubmitCall(nil), m.submits...)
}

// StatusCalls returns the job IDs passed to Status, in order.
func (m *MockProvider) StatusCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.statusCalls...)
}

// Script describes how one stage behaves: the status returned by Submit
// followed by the statuses returned by successive Status calls. The last
// status repeats once the script runs out.
type Script struct {
	Statuses []models.JobStatus
	Output   string
	Error    string
}

// NewScriptedProvider returns a provider whose jobs follow per-stage scripts.
// Job IDs are "{stage}-job".
func NewScriptedProvider(scripts map[models.Stage]Script) *MockProvider {
	var mu sync.Mutex
	next := map[string]int{}
	stages := map[string]models.Stage{}

	jobAt := func(stage models.Stage, id string, i int) *models.Job {
		s := scripts[stage]
		if i >= len(s.Statuses) {
			i = len(s.Statuses) - 1
		}
		job := &models.Job{ID: id, Stage: stage, Status: s.Statuses[i]}
		switch job.Status {
		case models.JobStatusSucceeded:
			job.Output = s.Output
		case models.JobStatusFailed:
			job.Error = s.Error
		}
		return job
	}

	return &MockProvider{
		Name_: "mock",
		SupportsFn: func(stage models.Stage) bool {
			_, ok := scripts[stage]
			return ok
		},
		SubmitFunc: func(_ context.Context, stage models.Stage, _ models.ImageRef) (*models.Job, error) {
			s, ok := scripts[stage]
			if !ok || len(s.Statuses) == 0 {
				return nil, fmt.Errorf("%w: no script for %s", remote.ErrUnsupportedStage, stage)
			}
			id := string(stage) + "-job"
			mu.Lock()
			next[id] = 1
			stages[id] = stage
			mu.Unlock()
			return jobAt(stage, id, 0), nil
		},
		StatusFunc: func(_ context.Context, jobID string) (*models.Job, error) {
			mu.Lock()
			stage, ok := stages[jobID]
			i := next[jobID]
			next[jobID] = i + 1
			mu.Unlock()
			if !ok {
				return nil, fmt.Errorf("%w: unknown job %s", remote.ErrRemoteCall, jobID)
			}
			return jobAt(stage, jobID, i), nil
		},
	}
}

// NewEchoProvider returns a provider that "enhances" by handing the input
// back: inline bytes become a data: URL, URLs pass through. Each job reports
// pending once before succeeding so the poll path is exercised.
func NewEchoProvider() *MockProvider {
	var mu sync.Mutex
	var seq int
	outputs := map[string]string{}

	return &MockProvider{
		Name_: "mock",
		SubmitFunc: func(_ context.Context, stage models.Stage, input models.ImageRef) (*models.Job, error) {
			out := input.URL
			if !input.IsURL() {
				ct := input.ContentType
				if ct == "" {
					ct = "application/octet-stream"
				}
				out = "data:" + ct + ";base64," + base64.StdEncoding.EncodeToString(input.Data)
			}
			mu.Lock()
			seq++
			id := fmt.Sprintf("echo-%d", seq)
			outputs[id] = out
			mu.Unlock()
			return &models.Job{ID: id, Stage: stage, Status: models.JobStatusPending}, nil
		},
		StatusFunc: func(_ context.Context, jobID string) (*models.Job, error) {
			mu.Lock()
			out, ok := outputs[jobID]
			mu.Unlock()
			if !ok {
				return nil, fmt.Errorf("%w: unknown job %s", remote.ErrRemoteCall, jobID)
			}
			return &models.Job{ID: jobID, Status: models.JobStatusSucceeded, Output: out}, nil
		},
	}
}

// NewFailingProvider returns a MockProvider whose Submit always returns err.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		SubmitFunc: func(context.Context, models.Stage, models.ImageRef) (*models.Job, error) {
			return nil, err
		},
		StatusFunc: func(context.Context, string) (*models.Job, error) {
			return nil, err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until the context is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-timeout",
		SubmitFunc: func(ctx context.Context, _ models.Stage, _ models.ImageRef) (*models.Job, error) {
			<-ctx.Done()
			return nil, remote.ClassifyError(ctx.Err())
		},
	}
}

var _ models.EnhanceProvider = (*MockProvider)(nil)
