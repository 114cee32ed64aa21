// Package source enumerates candidate outbound message files and reads
// their content for transmission.
//
// Enumeration is a collaborator of the delivery engine: it yields file
// identities in a stable order (directory argument order, then name order
// within a directory) so a delivery run is reproducible. Outside test mode,
// files are filtered to those modified within a trailing freshness window.
package source

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// File identifies one candidate outbound message.
type File struct {
	Path    string
	ModTime time.Time
}

// Enumerator lists candidate files from one or more directories.
type Enumerator struct {
	// Window is the trailing modification-time window; files older than
	// this are skipped. Zero means one hour.
	Window time.Duration
	// TestMode disables the freshness filter entirely.
	TestMode bool

	Logger *slog.Logger
}

// Enumerate returns candidate files from dirs, in directory order and
// sorted by name within each directory.
func (e *Enumerator) Enumerate(dirs []string) ([]File, error) {
	window := e.Window
	if window == 0 {
		window = time.Hour
	}
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cutoff := time.Now().Add(-window)

	var files []File
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", dir, err)
		}
		names := make([]string, 0, len(entries))
		byName := make(map[string]os.DirEntry, len(entries))
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			names = append(names, entry.Name())
			byName[entry.Name()] = entry
		}
		sort.Strings(names)

		for _, name := range names {
			info, err := byName[name].Info()
			if err != nil {
				return nil, fmt.Errorf("stat %s: %w", name, err)
			}
			if !e.TestMode && info.ModTime().Before(cutoff) {
				logger.Debug("skipping stale file", "path", filepath.Join(dir, name), "modified", info.ModTime())
				continue
			}
			files = append(files, File{
				Path:    filepath.Join(dir, name),
				ModTime: info.ModTime(),
			})
		}
	}
	return files, nil
}

// ReadMessage reads a candidate file and joins its trimmed lines with CR,
// the segment terminator the parser and the wire format expect.
func ReadMessage(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return strings.Join(lines, "\r"), nil
}
