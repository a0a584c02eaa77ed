package source

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/mvc24/bibliopa/internal/models"
	"github.com/mvc24/bibliopa/internal/storage"
)

// TopicFiles is the pair of extracted files that describe one topic
type TopicFiles struct {
	Filename  string
	TextPath  string
	PricePath string
}

// Pair matches files in the text-authoritative directory with same-named
// files in the price-authoritative directory. A topic present on only one
// side is a missing-input error.
func Pair(textDir, priceDir string) ([]TopicFiles, error) {
	textFiles, err := listSourceFiles(textDir)
	if err != nil {
		return nil, err
	}
	priceFiles, err := listSourceFiles(priceDir)
	if err != nil {
		return nil, err
	}

	var pairs []TopicFiles
	for name := range textFiles {
		if !priceFiles[name] {
			return nil, fmt.Errorf("%w: no price-authoritative file for %s in %s", storage.ErrMissingInput, name, priceDir)
		}
		pairs = append(pairs, TopicFiles{
			Filename:  name,
			TextPath:  filepath.Join(textDir, name),
			PricePath: filepath.Join(priceDir, name),
		})
	}
	for name := range priceFiles {
		if !textFiles[name] {
			return nil, fmt.Errorf("%w: no text-authoritative file for %s in %s", storage.ErrMissingInput, name, textDir)
		}
	}

	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Filename < pairs[j].Filename })
	return pairs, nil
}

// Load reads both sides of the pair
func (t TopicFiles) Load() (primary, secondary []models.Entry, err error) {
	primary, err = NewLoader(t.TextPath, models.TextAuthoritative).Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load text-authoritative entries: %w", err)
	}
	secondary, err = NewLoader(t.PricePath, models.PriceAuthoritative).Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load price-authoritative entries: %w", err)
	}
	return primary, secondary, nil
}

func listSourceFiles(dir string) (map[string]bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", storage.ErrMissingInput, dir)
	}

	files := make(map[string]bool)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".jsonl", ".json", ".parquet":
			files[e.Name()] = true
		}
	}
	return files, nil
}
