// Package dataset reads crawler datasets and writes conversion output.
package dataset

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/mfenderov/bam-curate/pkg/models"
)

// Files expands a glob pattern (with ** support) into a sorted list of
// regular files. It is an error for the pattern to match nothing.
func Files(pattern string) ([]string, error) {
	if pattern == "" {
		return nil, fmt.Errorf("input pattern is required")
	}

	absPattern := pattern
	if !filepath.IsAbs(pattern) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		absPattern = filepath.Join(cwd, pattern)
	}

	matches, err := doublestar.FilepathGlob(absPattern)
	if err != nil {
		return nil, fmt.Errorf("glob error: %w", err)
	}

	var files []string
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil {
			continue // Skip paths that can't be stat'd
		}
		if info.Mode().IsRegular() {
			files = append(files, match)
		}
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no files match pattern: %s", pattern)
	}

	sort.Strings(files)
	return files, nil
}

// Load reads every file matching pattern and returns their entries in file
// order.
func Load(pattern string) ([]models.Entry, error) {
	files, err := Files(pattern)
	if err != nil {
		return nil, err
	}

	var entries []models.Entry
	for _, path := range files {
		fileEntries, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		slog.Debug("loaded dataset file", "path", path, "entries", len(fileEntries))
		entries = append(entries, fileEntries...)
	}

	slog.Info("loaded dataset", "files", len(files), "entries", len(entries))
	return entries, nil
}

// LoadFile reads a single dataset file.
func LoadFile(path string) ([]models.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	entries, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entries, nil
}

// Decode reads a JSON array of entries.
func Decode(r io.Reader) ([]models.Entry, error) {
	var entries []models.Entry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to decode dataset: %w", err)
	}
	return entries, nil
}

// Encode writes entries as an indented JSON array.
func Encode(w io.Writer, entries []models.Entry) error {
	if entries == nil {
		entries = []models.Entry{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("failed to encode dataset: %w", err)
	}
	return nil
}

// WriteFile writes entries as a JSON dataset file.
func WriteFile(path string, entries []models.Entry) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create dataset file: %w", err)
	}

	if err := Encode(f, entries); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
