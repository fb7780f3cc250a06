// Package provider selects the enhancement backend from configuration.
package provider

import (
	"fmt"

	"github.com/kiranshivaraju/pixelfix/internal/config"
	"github.com/kiranshivaraju/pixelfix/internal/provider/deepai"
	"github.com/kiranshivaraju/pixelfix/internal/provider/mock"
	"github.com/kiranshivaraju/pixelfix/internal/provider/replicate"
	"github.com/kiranshivaraju/pixelfix/pkg/models"
)

// New constructs the configured enhancement provider.
// Called once at startup.
func New(cfg config.EnhanceConfig) (models.EnhanceProvider, error) {
	switch cfg.Provider {
	case "replicate":
		return replicate.NewClient(cfg.Replicate.BaseURL, cfg.Replicate.APIToken, cfg.RemoteTimeout), nil
	case "deepai":
		return deepai.NewClient(cfg.DeepAI.BaseURL, cfg.DeepAI.APIKey, cfg.RemoteTimeout), nil
	case "mock":
		return mock.NewEchoProvider(), nil
	default:
		return nil, fmt.Errorf("unknown enhance provider %q: must be one of replicate, deepai, mock", cfg.Provider)
	}
}
