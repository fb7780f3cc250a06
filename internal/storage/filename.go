package storage

import (
	"path/filepath"
	"strings"
)

const (
	fallbackName = "image"
	// maxNameBytes keeps {token}_{name} and the enh_ temp names under NAME_MAX.
	maxNameBytes = 128
	maxExtBytes  = 16
)

// SanitizeFilename reduces a client-supplied filename to a safe base name.
// Path components and traversal sequences are removed, characters outside
// [A-Za-z0-9._-] become separators, and runs of separators collapse to "_".
// An empty result yields "image". Long names are cut to 128 bytes, keeping
// the extension.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")

	parts := strings.Split(name, "/")
	kept := parts[:0]
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || p == "." || p == ".." {
			continue
		}
		kept = append(kept, p)
	}
	name = strings.Join(kept, "_")

	var b strings.Builder
	b.Grow(len(name))
	lastSep := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
			lastSep = false
		default:
			if !lastSep {
				b.WriteByte('_')
				lastSep = true
			}
		}
	}

	out := strings.Trim(b.String(), "._")
	if len(out) > maxNameBytes {
		out = truncateName(out)
	}
	if out == "" {
		return fallbackName
	}
	return out
}

// truncateName shortens an already sanitised (ASCII only) name.
func truncateName(name string) string {
	ext := filepath.Ext(name)
	if len(ext) > maxExtBytes {
		ext = ""
	}
	stem := strings.TrimRight(name[:maxNameBytes-len(ext)], "._")
	if stem == "" {
		stem = fallbackName
	}
	return stem + ext
}

// OutputName returns the artifact name for a sanitised input name.
func OutputName(name string) string {
	return "enh_" + name
}

// ManifestName returns the YAML sidecar name for an artifact.
func ManifestName(artifact string) string {
	return artifact + ".yaml"
}

