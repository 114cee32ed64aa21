// Package filesystem implements the capture sink as one file per message
// under a base directory.
package filesystem

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/eastgenomics/hl7-epic-integration/internal/capture"
)

// nameLayout gives nanosecond resolution; the uuid suffix below closes the
// remaining collision window between concurrent writers.
const nameLayout = "2006-01-02_15-04-05.000000000"

// Sink writes each captured message to its own file.
type Sink struct {
	dir string
}

// New creates the base directory if needed and returns a Sink writing
// into it.
func New(dir string) (*Sink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating capture directory: %w", err)
	}
	return &Sink{dir: dir}, nil
}

// Store writes the entry to a new file and syncs it before returning.
func (s *Sink) Store(_ context.Context, entry capture.Entry) error {
	name := entry.ReceivedAt.Format(nameLayout) + "_" + uuid.New().String()[:8] + ".hl7"
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("creating capture file: %w", err)
	}
	if _, err := f.WriteString(entry.Raw); err != nil {
		f.Close()
		return fmt.Errorf("writing capture file %s: %w", name, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing capture file %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing capture file %s: %w", name, err)
	}
	return nil
}

// Close implements capture.Sink. The filesystem sink holds no resources.
func (s *Sink) Close(context.Context) error {
	return nil
}
