package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kiranshivaraju/pixelfix/internal/config"
	"github.com/kiranshivaraju/pixelfix/internal/enhance"
	"github.com/kiranshivaraju/pixelfix/internal/fetch"
	"github.com/kiranshivaraju/pixelfix/internal/provider"
	"github.com/kiranshivaraju/pixelfix/internal/storage"
	"github.com/kiranshivaraju/pixelfix/pkg/models"
)

type enhanceOptions struct {
	mode string
	out  string
}

func newEnhanceCmd() *cobra.Command {
	opts := &enhanceOptions{}

	cmd := &cobra.Command{
		Use:   "enhance <file>",
		Short: "Enhance an image file with the configured provider",
		Long: `Run the enhancement pipeline in-process. Provider credentials and
directories come from the same environment variables as the server.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnhance(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.mode, "mode", "m", "", "Pipeline mode: single or chain (default from ENHANCE_MODE)")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "Where to write the enhanced image (default enh_<name> next to the input)")
	return cmd
}

func runEnhance(cmd *cobra.Command, path string, opts *enhanceOptions) error {
	mode, err := enhance.ParseMode(opts.mode)
	if err != nil {
		return fmt.Errorf("invalid mode %q: %w", opts.mode, err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.LogLevel})))

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	p, err := provider.New(cfg.Enhance)
	if err != nil {
		return fmt.Errorf("create provider: %w", err)
	}

	scratch := storage.NewScratch(cfg.Storage.UploadDir, cfg.Storage.OutputDir)
	for _, dir := range []string{scratch.UploadDir(), scratch.OutputDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	downloader := fetch.NewDownloader(cfg.Enhance.RemoteTimeout, cfg.Limits.MaxOutputBytes)
	svc := enhance.NewService(p, scratch, downloader, nil, models.Mode(cfg.Enhance.Mode))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	result, err := svc.Enhance(ctx, enhance.Request{
		RequestID: uuid.NewString(),
		Filename:  filepath.Base(path),
		Data:      data,
		Mode:      mode,
	})
	if err != nil {
		return fmt.Errorf("%s: %s", enhance.KindOf(err), enhance.MessageOf(err))
	}
	defer result.Artifact.File.Close()

	out := opts.out
	if out == "" {
		out = filepath.Join(filepath.Dir(path), result.Artifact.Name)
	}
	if err := copyTo(out, result.Artifact.File); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Provider: %s\n", svc.ProviderName())
	fmt.Fprintf(w, "Mode: %s\n", result.Mode)
	fmt.Fprintf(w, "Jobs: %s\n", strings.Join(result.JobIDs(), ", "))
	fmt.Fprintf(w, "Output: %s (%s, %d bytes)\n", out, result.Artifact.ContentType, result.Artifact.Size)
	printManifest(w, scratch, result.Artifact.Name)
	return nil
}

// printManifest lists the per-stage record written next to the artifact.
func printManifest(w io.Writer, scratch *storage.Scratch, artifact string) {
	m, err := scratch.ReadManifest(artifact)
	if err != nil {
		slog.Warn("manifest unavailable", "artifact", artifact, "error", err)
		return
	}
	fmt.Fprintf(w, "Manifest: %s\n", filepath.Join(scratch.OutputDir(), storage.ManifestName(artifact)))
	for _, st := range m.Stages {
		fmt.Fprintf(w, "  %s: job %s %s after %d polls (%s)\n", st.Stage, st.JobID, st.Status, st.Polls, st.Duration.Round(time.Millisecond))
	}
}

func copyTo(path string, src io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
