package failures

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// WriteYAML writes failures as a YAML sequence.
func WriteYAML(w io.Writer, failures []*Failure) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(failures); err != nil {
		return fmt.Errorf("failed to encode failures: %w", err)
	}
	return enc.Close()
}

// ArtifactPath is where a run's failure artifact lives inside dir.
func ArtifactPath(dir, runID string) string {
	return filepath.Join(dir, "failed-"+runID+".json")
}

// WriteArtifact writes a run's failures to dir as JSON and returns the file
// path. Nothing is written when there are no failures.
func WriteArtifact(dir, runID string, failures []*Failure) (string, error) {
	if len(failures) == 0 {
		return "", nil
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create artifacts directory: %w", err)
	}

	data, err := json.MarshalIndent(failures, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode failures: %w", err)
	}
	path := ArtifactPath(dir, runID)
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	return path, nil
}
