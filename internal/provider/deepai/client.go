// Package deepai implements models.EnhanceProvider on DeepAI's synchronous
// super-resolution endpoint. Jobs come back terminal from Submit.
package deepai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/kiranshivaraju/pixelfix/internal/provider/remote"
	"github.com/kiranshivaraju/pixelfix/pkg/models"
)

const (
	DefaultBaseURL = "https://api.deepai.org"
	superResPath   = "/api/torch-srgan"
)

// Client talks to the DeepAI HTTP API.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	now     func() time.Time
}

// NewClient creates a DeepAI client.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		now:     time.Now,
	}
}

func (c *Client) Name() string { return "deepai" }

// Supports reports true for upscale only; DeepAI has no face restoration model.
func (c *Client) Supports(stage models.Stage) bool {
	return stage == models.StageUpscale
}

type response struct {
	ID        string `json:"id"`
	OutputURL string `json:"output_url"`
}

// Submit runs the super-resolution model and waits for its answer.
func (c *Client) Submit(ctx context.Context, stage models.Stage, input models.ImageRef) (*models.Job, error) {
	if !c.Supports(stage) {
		return nil, fmt.Errorf("%w: deepai cannot run %s", remote.ErrUnsupportedStage, stage)
	}

	body, contentType, err := encodeForm(input)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+superResPath, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("api-key", c.apiKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, remote.ClassifyError(err)
	}
	defer resp.Body.Close()

	if err := remote.CheckStatus(resp, http.StatusOK); err != nil {
		return nil, err
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decoding deepai response: %v", remote.ErrInvalidResponse, err)
	}

	// A reply without output_url still counts as finished; the pipeline
	// reports the missing image.
	return &models.Job{
		ID:        out.ID,
		Stage:     stage,
		Status:    models.JobStatusSucceeded,
		Output:    out.OutputURL,
		CreatedAt: c.now().UTC(),
	}, nil
}

// Status is never needed: Submit only returns terminal jobs.
func (c *Client) Status(_ context.Context, jobID string) (*models.Job, error) {
	return nil, fmt.Errorf("%w: deepai job %s completed synchronously", remote.ErrInvalidResponse, jobID)
}

// encodeForm builds the multipart body. Inline bytes are sent as a file
// part; a URL from a previous stage is sent as a plain form value.
func encodeForm(input models.ImageRef) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if input.IsURL() {
		if err := mw.WriteField("image", input.URL); err != nil {
			return nil, "", fmt.Errorf("writing image field: %w", err)
		}
	} else {
		name := input.Filename
		if name == "" {
			name = "image"
		}
		part, err := mw.CreateFormFile("image", name)
		if err != nil {
			return nil, "", fmt.Errorf("creating image part: %w", err)
		}
		if _, err := part.Write(input.Data); err != nil {
			return nil, "", fmt.Errorf("writing image part: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart body: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}

var _ models.EnhanceProvider = (*Client)(nil)
