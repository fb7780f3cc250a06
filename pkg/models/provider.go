// Package models contains shared data models used across the PixelFix codebase.
package models

import "context"

// EnhanceProvider is the contract every remote enhancement backend implements.
// Synchronous backends return a job that is already terminal from Submit.
type EnhanceProvider interface {
	// Name returns the provider identifier (e.g., "replicate", "deepai").
	Name() string
	// Supports reports whether the provider can run the given stage.
	Supports(stage Stage) bool
	// Submit starts a job for stage with the given input.
	Submit(ctx context.Context, stage Stage, input ImageRef) (*Job, error)
	// Status fetches the current state of a previously submitted job.
	Status(ctx context.Context, jobID string) (*Job, error)
}
