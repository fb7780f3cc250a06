// Package replicate implements models.EnhanceProvider on the Replicate
// predictions API. Face restoration runs GFPGAN, upscaling runs Real-ESRGAN.
package replicate

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kiranshivaraju/pixelfix/internal/provider/remote"
	"github.com/kiranshivaraju/pixelfix/pkg/models"
)

const (
	DefaultBaseURL = "https://api.replicate.com/v1"

	ModelGFPGAN     = "tencentarc/gfpgan:9283608cc6b7be6b65a8e44983db012355fde4132009bf99d976b2f0896856a3"
	ModelRealESRGAN = "nightmareai/real-esrgan:f121d640bd286e1fdc67f9799164c1d5be36ff74576ee11c803ae5b665dd46aa"
)

// Prediction statuses reported by Replicate.
const (
	statusStarting   = "starting"
	statusProcessing = "processing"
	statusSucceeded  = "succeeded"
	statusFailed     = "failed"
	statusCanceled   = "canceled"
)

// Client talks to the Replicate HTTP API.
type Client struct {
	baseURL string
	token   string
	models  map[models.Stage]string
	client  *http.Client
}

// NewClient creates a Replicate client with the default model versions.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		models: map[models.Stage]string{
			models.StageFaceRestore: ModelGFPGAN,
			models.StageUpscale:     ModelRealESRGAN,
		},
		client: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Name() string { return "replicate" }

func (c *Client) Supports(stage models.Stage) bool {
	_, ok := c.models[stage]
	return ok
}

type predictionRequest struct {
	Version string         `json:"version,omitempty"`
	Input   map[string]any `json:"input"`
}

type prediction struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Output    any       `json:"output"`
	Error     any       `json:"error"`
	CreatedAt time.Time `json:"created_at"`
}

// Submit creates a prediction for stage. A model reference with a version
// hash goes to /predictions; a bare owner/name goes to the model endpoint.
func (c *Client) Submit(ctx context.Context, stage models.Stage, input models.ImageRef) (*models.Job, error) {
	model, ok := c.models[stage]
	if !ok {
		return nil, fmt.Errorf("%w: replicate cannot run %s", remote.ErrUnsupportedStage, stage)
	}

	ref := imageValue(input)
	var u string
	var body predictionRequest
	body.Input = buildInput(stage, ref)
	if _, version, found := strings.Cut(model, ":"); found {
		u = c.baseURL + "/predictions"
		body.Version = version
	} else {
		u = fmt.Sprintf("%s/models/%s/predictions", c.baseURL, model)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding prediction request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	slog.Debug("replicate: creating prediction", "stage", stage, "model", model, "request_bytes", len(payload))

	p, err := c.do(req, http.StatusCreated, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return toJob(stage, p), nil
}

// Status fetches a prediction by ID.
func (c *Client) Status(ctx context.Context, jobID string) (*models.Job, error) {
	u := fmt.Sprintf("%s/predictions/%s", c.baseURL, url.PathEscape(jobID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(req)

	p, err := c.do(req, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return toJob("", p), nil
}

func (c *Client) do(req *http.Request, accepted ...int) (*prediction, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, remote.ClassifyError(err)
	}
	defer resp.Body.Close()

	if err := remote.CheckStatus(resp, accepted...); err != nil {
		return nil, err
	}

	var p prediction
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: decoding prediction: %v", remote.ErrInvalidResponse, err)
	}
	if p.ID == "" {
		return nil, fmt.Errorf("%w: prediction without id", remote.ErrInvalidResponse)
	}
	return &p, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
}

// buildInput returns the model input for a stage.
func buildInput(stage models.Stage, image string) map[string]any {
	if stage == models.StageFaceRestore {
		return map[string]any{
			"img":     image,
			"version": "v1.4",
			"scale":   2,
		}
	}
	return map[string]any{
		"image":        image,
		"scale":        4,
		"face_enhance": false,
	}
}

// imageValue passes URLs through unchanged and inlines bytes as a data URL.
func imageValue(input models.ImageRef) string {
	if input.IsURL() {
		return input.URL
	}
	ct := input.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	return "data:" + ct + ";base64," + base64.StdEncoding.EncodeToString(input.Data)
}

func toJob(stage models.Stage, p *prediction) *models.Job {
	job := &models.Job{
		ID:        p.ID,
		Stage:     stage,
		Status:    mapStatus(p.Status),
		CreatedAt: p.CreatedAt,
	}
	if job.Status == models.JobStatusSucceeded {
		job.Output = extractOutput(p.Output)
	}
	if p.Error != nil {
		job.Error = fmt.Sprint(p.Error)
	}
	if p.Status == statusCanceled && job.Error == "" {
		job.Error = "prediction was canceled"
	}
	return job
}

func mapStatus(s string) models.JobStatus {
	switch s {
	case statusSucceeded:
		return models.JobStatusSucceeded
	case statusFailed, statusCanceled:
		return models.JobStatusFailed
	case statusStarting, statusProcessing:
		return models.JobStatusPending
	default:
		return models.JobStatusCreated
	}
}

// extractOutput returns the first usable reference from a prediction output,
// which is either a string or a list of strings depending on the model.
func extractOutput(out any) string {
	switch v := out.(type) {
	case string:
		return v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				return s
			}
		}
	case map[string]any:
		for _, key := range []string{"image", "output", "url"} {
			if s, ok := v[key].(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

var _ models.EnhanceProvider = (*Client)(nil)
