package discrepancy

import (
	"sort"

	"github.com/mvc24/bibliopa/internal/models"
	"github.com/mvc24/bibliopa/internal/textmatch"
)

// Index maps normalized text to every consolidated record that carries it.
// It is built once and only read afterwards, so it can be shared by workers.
type Index struct {
	byKey map[string][]models.ConsolidatedRecord
	keys  []string
}

// NewIndex builds the lookup over the pooled corpus. Records sharing a key
// are kept in corpus order.
func NewIndex(corpus []models.ConsolidatedRecord) *Index {
	idx := &Index{byKey: make(map[string][]models.ConsolidatedRecord, len(corpus))}
	for _, r := range corpus {
		key := textmatch.Normalize(r.Text)
		if _, ok := idx.byKey[key]; !ok {
			idx.keys = append(idx.keys, key)
		}
		idx.byKey[key] = append(idx.byKey[key], r)
	}
	sort.Strings(idx.keys)
	return idx
}

// Len returns the number of distinct normalized keys
func (i *Index) Len() int { return len(i.keys) }

// Lookup returns the records whose normalized text equals key
func (i *Index) Lookup(key string) []models.ConsolidatedRecord {
	return i.byKey[key]
}

// Collisions returns the number of keys shared by more than one record
func (i *Index) Collisions() int {
	n := 0
	for _, records := range i.byKey {
		if len(records) > 1 {
			n++
		}
	}
	return n
}
