package source

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mvc24/bibliopa/internal/models"
	"github.com/mvc24/bibliopa/internal/reconcile"
	"github.com/mvc24/bibliopa/internal/storage"
	"github.com/parquet-go/parquet-go"
)

// RawEntry is one row of document extraction output
type RawEntry struct {
	Text  string `json:"text" parquet:"text"`
	Price *int64 `json:"price,omitempty" parquet:"price,optional"`
	Topic string `json:"topic,omitempty" parquet:"topic,optional"`
}

// minTextLength skips table cells that only hold stray characters
const minTextLength = 2

// Loader reads one extracted catalog file into ordered entries
type Loader struct {
	path string
	tag  models.SourceTag
}

// NewLoader creates a loader for a file produced by document extraction
func NewLoader(path string, tag models.SourceTag) *Loader {
	return &Loader{path: path, tag: tag}
}

// Load reads every entry, preserving file order. Prices embedded in the text
// are lifted out when the row carries no explicit price.
func (l *Loader) Load() ([]models.Entry, error) {
	if _, err := os.Stat(l.path); err != nil {
		return nil, fmt.Errorf("%w: %s", storage.ErrMissingInput, l.path)
	}

	var raws []RawEntry
	var err error

	ext := strings.ToLower(filepath.Ext(l.path))
	switch ext {
	case ".parquet":
		raws, err = l.loadParquet()
	case ".jsonl", ".json":
		raws, err = l.loadJSONL()
	default:
		return nil, fmt.Errorf("unsupported file format: %s (supported: .parquet, .jsonl)", ext)
	}
	if err != nil {
		return nil, err
	}

	fileTopic := reconcile.TopicFromFilename(l.path)
	entries := make([]models.Entry, 0, len(raws))
	for _, raw := range raws {
		if len(strings.TrimSpace(raw.Text)) < minTextLength {
			continue
		}

		text, embedded := CleanText(raw.Text)
		price := raw.Price
		if price == nil {
			price = embedded
		}

		topic := strings.ToUpper(strings.TrimSpace(raw.Topic))
		if topic == "" {
			topic = fileTopic
		}

		entries = append(entries, models.Entry{
			Text:      text,
			SourceTag: l.tag,
			Price:     price,
			Topic:     topic,
			TopicKey:  reconcile.TopicKey(topic),
		})
	}

	slog.Debug("Loaded source entries", "path", l.path, "source", l.tag, "entries", len(entries))
	return entries, nil
}

func (l *Loader) loadJSONL() ([]RawEntry, error) {
	file, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open source file: %w", err)
	}
	defer file.Close()

	var records []RawEntry
	scanner := bufio.NewScanner(file)

	const maxCapacity = 10 * 1024 * 1024
	buf := make([]byte, maxCapacity)
	scanner.Buffer(buf, maxCapacity)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var record RawEntry
		if err := json.Unmarshal(line, &record); err != nil {
			return nil, fmt.Errorf("failed to parse JSON at %s line %d: %w", l.path, lineNum, err)
		}
		records = append(records, record)

		if lineNum%1000 == 0 {
			slog.Debug("Reading JSONL", "path", l.path, "lines_read", lineNum)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading source file: %w", err)
	}

	return records, nil
}

func (l *Loader) loadParquet() ([]RawEntry, error) {
	file, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}

	slog.Debug("Parquet file opened", "path", l.path, "num_rows", pf.NumRows(), "num_row_groups", len(pf.RowGroups()))

	reader := parquet.NewGenericReader[RawEntry](pf)
	defer reader.Close()

	records := make([]RawEntry, 0, pf.NumRows())
	rows := make([]RawEntry, 128)
	for {
		n, err := reader.Read(rows)
		records = append(records, rows[:n]...)
		if err != nil {
			break
		}
	}

	if int64(len(records)) != pf.NumRows() {
		return nil, fmt.Errorf("short parquet read from %s: got %d of %d rows", l.path, len(records), pf.NumRows())
	}

	return records, nil
}
