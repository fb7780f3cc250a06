package models

import "os"

// Stage names one remote model invocation in the pipeline.
type Stage string

const (
	StageFaceRestore Stage = "face_restore"
	StageUpscale     Stage = "upscale"
)

// Mode selects which stages run for a request.
type Mode string

const (
	ModeSingle Mode = "single"
	ModeChain  Mode = "chain"
)

// Stages returns the ordered stages a mode runs.
func (m Mode) Stages() []Stage {
	if m == ModeChain {
		return []Stage{StageFaceRestore, StageUpscale}
	}
	return []Stage{StageUpscale}
}

// Upload is a staged client file in the upload scratch directory.
type Upload struct {
	OriginalName string
	Name         string // sanitised
	StorageName  string // {token}_{Name}
	Path         string
	Size         int64
	ContentType  string
	Width        int
	Height       int
}

// ImageRef is the input of a remote call: either a URL produced by a previous
// stage or the inline bytes of the staged upload.
type ImageRef struct {
	URL         string
	Data        []byte
	Filename    string
	ContentType string
}

// IsURL reports whether the reference points at a remote output.
func (r ImageRef) IsURL() bool { return r.URL != "" }

// Artifact is the downloaded result written to the output directory.
// The caller owns File and must close it.
type Artifact struct {
	Name        string
	Path        string
	ContentType string
	Size        int64
	File        *os.File
}
