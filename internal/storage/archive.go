package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Archive keeps the raw OCR responses, one indented JSON file per job.
type Archive struct {
	dir string
}

func NewArchive(dir string) (*Archive, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("storage: archive dir must not be empty")
	}
	return &Archive{dir: dir}, nil
}

// Save writes payload to mindee_response_<jobID>.json and returns the path.
func (a *Archive) Save(jobID string, payload []byte) (string, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return "", errors.New("storage: job id is required")
	}
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return "", fmt.Errorf("storage: create archive dir: %w", err)
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, payload, "", "    "); err != nil {
		return "", fmt.Errorf("storage: indent payload: %w", err)
	}
	path := filepath.Join(a.dir, "mindee_response_"+filepath.Base(jobID)+".json")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("storage: write archive: %w", err)
	}
	return path, nil
}
