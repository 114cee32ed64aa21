// Package stitch merges result segments across two captures of the same
// logical HL7 message.
//
// The lab workflow produces a result message and, later, a response capture
// carrying additional OBX observation segments for the same order. Merge
// folds the response's OBX segments into the result text: their set IDs are
// renumbered to continue the result's own OBX sequence and they are inserted
// immediately before the specimen block (the first SPM or ZSP segment).
//
// This is a pure, order-preserving text transformation. No semantic
// validation of segment content takes place.
package stitch

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Options controls which segments are merged and where they are inserted.
type Options struct {
	// Tag names the segment type to merge. Empty means OBX.
	Tag string
	// Terminal lists the segment names the merged block is inserted
	// before; the first occurrence of any of them wins. Empty means
	// SPM then ZSP.
	Terminal []string
}

func (o Options) withDefaults() Options {
	if o.Tag == "" {
		o.Tag = "OBX"
	}
	if len(o.Terminal) == 0 {
		o.Terminal = []string{"SPM", "ZSP"}
	}
	return o
}

// Merge folds the tagged segments of second into first and returns the
// merged text. changed is false when second carries no tagged segments, in
// which case merged is empty and the caller should produce no output.
func Merge(first, second string, opts Options) (merged string, changed bool) {
	opts = opts.withDefaults()

	firstTagged := taggedLines(first, opts.Tag)
	secondTagged := taggedLines(second, opts.Tag)
	if len(secondTagged) == 0 {
		return "", false
	}

	// Renumber the incoming segments' set IDs to continue the sequence
	// already present on the first side, preserving their relative order.
	next := len(firstTagged) + 1
	renumbered := make([]string, 0, len(secondTagged))
	for _, line := range secondTagged {
		renumbered = append(renumbered, setSetID(line, next))
		next++
	}

	lines := messageLines(first)
	insertAt := len(lines)
	for i, line := range lines {
		if isTerminal(line, opts.Terminal) {
			insertAt = i
			break
		}
	}

	out := make([]string, 0, len(lines)+len(renumbered))
	out = append(out, lines[:insertAt]...)
	out = append(out, renumbered...)
	out = append(out, lines[insertAt:]...)
	return strings.Join(out, "\n"), true
}

// Run merges every file name present in both resultsDir and responsesDir and
// writes the merged text under the same name in outDir. Names whose response
// side has no tagged segments are skipped without output.
func Run(resultsDir, responsesDir, outDir string, opts Options, logger *slog.Logger) error {
	opts = opts.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	responses, err := fileNames(responsesDir)
	if err != nil {
		return fmt.Errorf("listing responses: %w", err)
	}

	entries, err := os.ReadDir(resultsDir)
	if err != nil {
		return fmt.Errorf("listing results: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !responses[name] {
			continue
		}

		result, err := os.ReadFile(filepath.Join(resultsDir, name))
		if err != nil {
			return fmt.Errorf("reading result %s: %w", name, err)
		}
		response, err := os.ReadFile(filepath.Join(responsesDir, name))
		if err != nil {
			return fmt.Errorf("reading response %s: %w", name, err)
		}

		merged, changed := Merge(string(result), string(response), opts)
		if !changed {
			logger.Info("no segments to merge, skipping", "name", name, "tag", opts.Tag)
			continue
		}

		outPath := filepath.Join(outDir, name)
		if err := os.WriteFile(outPath, []byte(merged), 0o644); err != nil {
			return fmt.Errorf("writing merged %s: %w", name, err)
		}
		logger.Info("merged message written", "name", name, "path", outPath)
	}
	return nil
}

// messageLines splits captured text into trimmed, non-empty segment lines,
// accepting any of the CR / LF / CRLF terminator conventions.
func messageLines(text string) []string {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")
	var lines []string
	for _, line := range strings.Split(normalized, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func taggedLines(text, tag string) []string {
	var tagged []string
	for _, line := range messageLines(text) {
		if strings.HasPrefix(line, tag+"|") {
			tagged = append(tagged, line)
		}
	}
	return tagged
}

// setSetID rewrites the set ID (first field after the segment name).
func setSetID(line string, id int) string {
	parts := strings.Split(line, "|")
	if len(parts) > 1 {
		parts[1] = strconv.Itoa(id)
	}
	return strings.Join(parts, "|")
}

func isTerminal(line string, terminal []string) bool {
	for _, name := range terminal {
		if strings.HasPrefix(line, name+"|") {
			return true
		}
	}
	return false
}

func fileNames(dir string) (map[string]bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make(map[string]bool, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names[entry.Name()] = true
		}
	}
	return names, nil
}
