package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// ErrMissingInput is returned when a stage's required input does not exist
var ErrMissingInput = errors.New("missing required input")

// WriteJSON writes v as indented JSON. The file is written to a temporary
// sibling and renamed into place, so readers see either the previous
// complete file or the new one.
func WriteJSON(path string, v any) error {
	dir := filepath.Dir(path)
	if err := EnsureDir(dir); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	encoder := json.NewEncoder(tmp)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)

	if err := encoder.Encode(v); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}

// ReadJSON decodes the file at path into v
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrMissingInput, path)
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// EnsureDir creates dir and any missing parents
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// Exists reports whether path exists
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// JSONLog is an append-only JSON Lines file safe for concurrent writers
type JSONLog struct {
	path string
	mu   sync.Mutex
}

// NewJSONLog returns a log that appends to path, creating it on first write
func NewJSONLog(path string) *JSONLog {
	return &JSONLog{path: path}
}

func (l *JSONLog) Path() string { return l.path }

// Append writes each value as one line
func (l *JSONLog) Append(values ...any) error {
	if len(values) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log %s: %w", l.path, err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	for _, v := range values {
		if err := encoder.Encode(v); err != nil {
			return fmt.Errorf("failed to append to %s: %w", l.path, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", l.path, err)
	}
	return file.Sync()
}

// ReadJSONLines decodes every line of a JSON Lines file. A missing file
// yields an empty slice since logs are created lazily.
func ReadJSONLines[T any](path string) ([]T, error) {
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	var out []T
	scanner := bufio.NewScanner(file)
	const maxCapacity = 10 * 1024 * 1024
	scanner.Buffer(make([]byte, maxCapacity), maxCapacity)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var v T
		if err := json.Unmarshal(scanner.Bytes(), &v); err != nil {
			return nil, fmt.Errorf("failed to parse %s line %d: %w", path, lineNum, err)
		}
		out = append(out, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}
	return out, nil
}
