package main

import (
	"archive/zip"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// defaultOutputPrefix is prepended to every downloaded artifact name.
const defaultOutputPrefix = "edited-"

// Artifact is a finished output ready for download.
type Artifact struct {
	Name string
	Data []byte
}

// outputName builds the artifact filename: prefix plus the original name,
// with the extension matching the output encoding.
func outputName(prefix, original string, format imaging.Format) string {
	base := strings.TrimSuffix(original, filepath.Ext(original))
	return prefix + base + outputExtension(format)
}

// BuildArchive writes all artifacts into a single ZIP in batch order.
func BuildArchive(w io.Writer, artifacts []Artifact) error {
	zw := zip.NewWriter(w)
	for _, a := range artifacts {
		f, err := zw.Create(a.Name)
		if err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", a.Name, err)
		}
		if _, err := f.Write(a.Data); err != nil {
			return fmt.Errorf("failed to write %s to archive: %w", a.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	return nil
}
