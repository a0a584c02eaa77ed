package discrepancy

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/mvc24/bibliopa/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func price(v int64) *int64 { return &v }

func record(id, topic, text string, p *int64) models.ConsolidatedRecord {
	return models.ConsolidatedRecord{CompositeID: id, Topic: topic, Text: text, Price: p}
}

func disc(i int, text string, p *int64) models.Discrepancy {
	return models.Discrepancy{
		Entry:       models.Entry{Text: text, Price: p, SourceTag: models.PriceAuthoritative},
		SourceIndex: i,
	}
}

func TestNewResolverEmptyCorpus(t *testing.T) {
	_, err := NewResolver(nil, Config{})
	assert.ErrorIs(t, err, ErrEmptyCorpus)
}

func TestNewResolverRejectsInvertedThresholds(t *testing.T) {
	_, err := NewResolver([]models.ConsolidatedRecord{record("a_0_1_1", "A", "x", nil)}, Config{ExactThreshold: 70, ProbableThreshold: 80})
	assert.Error(t, err)
}

func TestResolveTiers(t *testing.T) {
	corpus := []models.ConsolidatedRecord{
		record("klassik_0_1_1", "KLASSIK", "Goethe, J. W. Faust.", price(30)),
		record("lyrik_0_1_1", "LYRIK", "abc", nil),
		record("lyrik_1_1_1", "LYRIK", "Heine. Buch der Lieder.", price(12)),
	}
	r, err := NewResolver(corpus, Config{})
	require.NoError(t, err)

	tests := []struct {
		name      string
		text      string
		tier      models.Tier
		exact     bool
		matchedID string
		minScore  int
	}{
		{name: "exact after normalizing", text: "HEINE.  Buch der Lieder.", tier: models.TierResolved, exact: true, matchedID: "lyrik_1_1_1", minScore: 100},
		{name: "fuzzy above exact threshold", text: "Goethe, J.W. Faust", tier: models.TierResolved, matchedID: "klassik_0_1_1", minScore: 95},
		{name: "probable", text: "abcd", tier: models.TierResolvedIsh, matchedID: "lyrik_0_1_1", minScore: 75},
		{name: "unresolved", text: "zzzz qqqq", tier: models.TierUnresolved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Resolve(disc(0, tt.text, price(5)))
			assert.Equal(t, tt.tier, res.Tier)
			assert.Equal(t, tt.exact, res.Exact)
			assert.GreaterOrEqual(t, res.Score, tt.minScore)
			if tt.matchedID != "" {
				assert.Equal(t, tt.matchedID, res.MatchedCompositeID)
			}
			if tt.tier == models.TierUnresolved {
				assert.Less(t, res.Score, DefaultProbableThreshold)
			}
		})
	}
}

func TestResolveExactRecordsTopicAndPrice(t *testing.T) {
	r, err := NewResolver([]models.ConsolidatedRecord{
		record("klassik_3_1_1", "KLASSIK", "Schiller. Wallenstein.", price(18)),
	}, Config{})
	require.NoError(t, err)

	res := r.Resolve(disc(0, "schiller. wallenstein.", nil))
	assert.Equal(t, "KLASSIK", res.MatchedTopic)
	require.NotNil(t, res.MatchedPrice)
	assert.Equal(t, int64(18), *res.MatchedPrice)
}

func TestResolveShortCircuitsAtExactThreshold(t *testing.T) {
	// "abcdefgh" sorts before the closer "abcdefghijz" and already clears 80
	r, err := NewResolver([]models.ConsolidatedRecord{
		record("t_1_1_1", "T", "abcdefghijz", nil),
		record("t_0_1_1", "T", "abcdefgh", nil),
	}, Config{ExactThreshold: 80, ProbableThreshold: 50})
	require.NoError(t, err)

	res := r.Resolve(disc(0, "abcdefghij", nil))
	assert.Equal(t, models.TierResolved, res.Tier)
	assert.Equal(t, "abcdefgh", res.MatchedText)
	assert.Equal(t, 89, res.Score)
}

func TestResolveKeepsFirstBestOnTie(t *testing.T) {
	r, err := NewResolver([]models.ConsolidatedRecord{
		record("t_1_1_1", "T", "abcy", nil),
		record("t_0_1_1", "T", "abcx", nil),
	}, Config{})
	require.NoError(t, err)

	res := r.Resolve(disc(0, "abcd", nil))
	assert.Equal(t, models.TierResolvedIsh, res.Tier)
	assert.Equal(t, 75, res.Score)
	assert.Equal(t, "abcx", res.MatchedText)
}

func TestResolveKeepsAllCandidatesForSharedKey(t *testing.T) {
	r, err := NewResolver([]models.ConsolidatedRecord{
		record("lyrik_4_1_1", "LYRIK", "Rilke. Gedichte.", price(9)),
		record("klassik_7_1_1", "KLASSIK", "rilke.  gedichte.", price(11)),
	}, Config{})
	require.NoError(t, err)

	res := r.Resolve(disc(0, "Rilke. Gedichte.", nil))
	assert.Equal(t, 2, res.CandidateCount)
	assert.Equal(t, "lyrik_4_1_1", res.MatchedCompositeID)
}

func testCorpus(n int) []models.ConsolidatedRecord {
	var corpus []models.ConsolidatedRecord
	for i := 0; i < n; i++ {
		corpus = append(corpus, record(fmt.Sprintf("t_%d_1_1", i), "T", fmt.Sprintf("Autor %d. Werk über Nummer %d.", i, i*7), price(int64(i))))
	}
	return corpus
}

func testDiscrepancies(n int) []models.Discrepancy {
	var ds []models.Discrepancy
	for i := 0; i < n; i++ {
		switch i % 3 {
		case 0:
			ds = append(ds, disc(i, fmt.Sprintf("Autor %d. Werk über Nummer %d.", i, i*7), price(1)))
		case 1:
			ds = append(ds, disc(i, fmt.Sprintf("Autor %d Werk uber Nummer %d", i, i*7), price(1)))
		default:
			ds = append(ds, disc(i, fmt.Sprintf("völlig anderer Eintrag %d qxz", i), price(1)))
		}
	}
	return ds
}

func TestResolveAllPartition(t *testing.T) {
	tests := []struct {
		name    string
		workers int
	}{
		{name: "sequential", workers: 1},
		{name: "parallel", workers: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewResolver(testCorpus(40), Config{Workers: tt.workers})
			require.NoError(t, err)

			input := testDiscrepancies(30)
			b, err := r.ResolveAll(context.Background(), input)
			require.NoError(t, err)

			assert.Equal(t, len(input), b.Total())

			seen := map[int]int{}
			for _, bucket := range [][]models.ResolvedDiscrepancy{b.Resolved, b.ResolvedIsh, b.Unresolved} {
				for _, res := range bucket {
					seen[res.Discrepancy.SourceIndex]++
				}
			}
			assert.Len(t, seen, len(input))
			for idx, count := range seen {
				assert.Equal(t, 1, count, "discrepancy %d", idx)
			}
			assert.GreaterOrEqual(t, len(b.Resolved), 10)
		})
	}
}

func TestResolveAllSequentialAndParallelAgree(t *testing.T) {
	input := testDiscrepancies(24)

	seq, err := NewResolver(testCorpus(30), Config{Workers: 1})
	require.NoError(t, err)
	par, err := NewResolver(testCorpus(30), Config{Workers: 3})
	require.NoError(t, err)

	a, err := seq.ResolveAll(context.Background(), input)
	require.NoError(t, err)
	b, err := par.ResolveAll(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestResolveAllReportsProgress(t *testing.T) {
	var mu sync.Mutex
	var calls []int

	r, err := NewResolver(testCorpus(10), Config{
		Workers: 2,
		Progress: func(done, total int) {
			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, 9, total)
			calls = append(calls, done)
		},
	})
	require.NoError(t, err)

	_, err = r.ResolveAll(context.Background(), testDiscrepancies(9))
	require.NoError(t, err)

	require.Len(t, calls, 9)
	for i, done := range calls {
		assert.Equal(t, i+1, done)
	}
}

func TestResolveAllCancelled(t *testing.T) {
	for _, workers := range []int{1, 3} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			r, err := NewResolver(testCorpus(10), Config{Workers: workers})
			require.NoError(t, err)

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			b, err := r.ResolveAll(ctx, testDiscrepancies(9))
			assert.ErrorIs(t, err, context.Canceled)
			assert.Zero(t, b.Total())
		})
	}
}

func TestApplyPrices(t *testing.T) {
	corpus := []models.ConsolidatedRecord{
		record("a_0_1_1", "A", "one", nil),
		record("a_1_1_1", "A", "two", price(50)),
		record("a_2_1_1", "A", "three", nil),
	}
	resolved := []models.ResolvedDiscrepancy{
		{Tier: models.TierResolved, MatchedCompositeID: "a_0_1_1", Discrepancy: disc(0, "one", price(20))},
		{Tier: models.TierResolved, MatchedCompositeID: "a_1_1_1", Discrepancy: disc(1, "two", price(99))},
		{Tier: models.TierResolvedIsh, MatchedCompositeID: "a_2_1_1", Discrepancy: disc(2, "thre", price(7))},
	}

	updated := ApplyPrices(corpus, resolved)

	assert.Equal(t, 1, updated)
	require.NotNil(t, corpus[0].Price)
	assert.Equal(t, int64(20), *corpus[0].Price)
	assert.True(t, corpus[0].PriceImported)
	assert.Equal(t, int64(50), *corpus[1].Price)
	assert.False(t, corpus[1].PriceImported)
	assert.Nil(t, corpus[2].Price)
}
