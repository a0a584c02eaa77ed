package parsing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/mvc24/bibliopa/internal/models"
	"github.com/mvc24/bibliopa/internal/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func price(v int64) *int64 { return &v }

func record(id, text string) models.ConsolidatedRecord {
	return models.ConsolidatedRecord{
		Text:        text,
		Price:       price(40),
		Topic:       "PHILOSOPHIE",
		TopicKey:    "philosophie",
		CompositeID: id,
	}
}

const faustJSON = `{
  "title": "Faust",
  "subtitle": "Eine Tragödie",
  "authors": [{"display_name": "Goethe, Johann Wolfgang von", "family_name": "Goethe", "given_names": "Johann Wolfgang", "name_particles": "von", "single_name": null}],
  "publication_year": 1949,
  "price": 999,
  "topic": "LYRIK",
  "administrative": {"original_entry": "GOETHE, J. W. v.: Faust.", "parsing_confidence": "high", "needs_review": false}
}`

func TestDecodeEntry(t *testing.T) {
	p := NewParser(nil, Options{})

	tests := []struct {
		name    string
		raw     string
		title   string
		wantErr bool
	}{
		{name: "plain object", raw: faustJSON, title: "Faust"},
		{name: "json fence", raw: "```json\n" + faustJSON + "\n```", title: "Faust"},
		{name: "bare fence", raw: "```\n" + faustJSON + "\n```", title: "Faust"},
		{name: "prose around object", raw: "Here is the record:\n" + faustJSON + "\nLet me know.", title: "Faust"},
		{name: "no object", raw: "I cannot parse this entry.", wantErr: true},
		{name: "truncated", raw: `{"title": "Faust", "authors": [`, wantErr: true},
		{name: "wrong type", raw: `{"title": "Faust", "pages": "zwei"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, err := p.DecodeEntry(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.title, entry.Title)
		})
	}
}

func TestParseKeepsReconciledPriceAndTopic(t *testing.T) {
	var got providers.Config
	provider := providers.Func(func(ctx context.Context, cfg providers.Config) (string, error) {
		got = cfg
		return faustJSON, nil
	})

	book, err := NewParser(provider, Options{Model: "test-model"}).Parse(context.Background(), record("philosophie_1_1_1", "GOETHE, J. W. v.: Faust. € 40.-"))
	require.NoError(t, err)

	assert.Equal(t, "philosophie_1_1_1", book.CompositeID)
	require.NotNil(t, book.Entry.Price)
	assert.Equal(t, int64(40), *book.Entry.Price)
	assert.Equal(t, "PHILOSOPHIE", book.Entry.Topic)
	require.Len(t, book.Entry.Authors, 1)
	assert.Equal(t, "von", book.Entry.Authors[0].NameParticles)

	assert.Equal(t, "test-model", got.Model)
	assert.True(t, got.JSON)
	assert.Contains(t, got.Prompt, "PRICE: 40")
	assert.Contains(t, got.Prompt, "TOPIC: PHILOSOPHIE")
	assert.NotEmpty(t, got.System)
}

func TestParseFillsOriginalEntry(t *testing.T) {
	provider := providers.Func(func(ctx context.Context, cfg providers.Config) (string, error) {
		return `{"title": "Ethik", "administrative": {"parsing_confidence": "medium"}}`, nil
	})

	book, err := NewParser(provider, Options{}).Parse(context.Background(), record("philosophie_1_1_2", "SPINOZA: Ethik."))
	require.NoError(t, err)
	assert.Equal(t, "SPINOZA: Ethik.", book.Entry.Administrative.OriginalEntry)
}

func TestParseRejectsInvalidRecords(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "missing title", raw: `{"title": "", "administrative": {"original_entry": "x"}}`},
		{name: "bad confidence", raw: `{"title": "X", "administrative": {"original_entry": "x", "parsing_confidence": "certain"}}`},
		{name: "nameless author", raw: `{"title": "X", "authors": [{"family_name": "Kant"}], "administrative": {"original_entry": "x"}}`},
		{name: "year out of range", raw: `{"title": "X", "publication_year": 19, "administrative": {"original_entry": "x"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := providers.Func(func(ctx context.Context, cfg providers.Config) (string, error) {
				return tt.raw, nil
			})
			_, err := NewParser(provider, Options{}).Parse(context.Background(), record("x_1_1_1", "x"))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestParseAllQuarantinesAndContinues(t *testing.T) {
	provider := providers.Func(func(ctx context.Context, cfg providers.Config) (string, error) {
		switch {
		case strings.Contains(cfg.Prompt, "BROKEN"):
			return "not json at all", nil
		case strings.Contains(cfg.Prompt, "OFFLINE"):
			return "", errors.New("connection refused")
		case strings.Contains(cfg.Prompt, "SIEHE"):
			return `{"title": "Siehe Kant", "administrative": {"original_entry": "SIEHE Kant", "parsing_confidence": "low", "needs_review": true}}`, nil
		default:
			return faustJSON, nil
		}
	})

	var mu sync.Mutex
	var sink []QuarantinedRecord
	parser := NewParser(provider, Options{
		Concurrency: 3,
		Quarantine: func(q QuarantinedRecord) {
			mu.Lock()
			defer mu.Unlock()
			sink = append(sink, q)
		},
	})

	records := []models.ConsolidatedRecord{
		record("a_1_1_1", "Faust one"),
		record("a_1_1_2", "BROKEN"),
		record("a_1_1_3", "Faust two"),
		record("a_1_1_4", "OFFLINE"),
		record("a_1_1_5", "SIEHE Kant"),
	}

	result, err := parser.ParseAll(context.Background(), records)
	require.NoError(t, err)

	require.Len(t, result.Books, 3)
	assert.Equal(t, "a_1_1_1", result.Books[0].CompositeID)
	assert.Equal(t, "a_1_1_3", result.Books[1].CompositeID)
	assert.Equal(t, "a_1_1_5", result.Books[2].CompositeID)
	assert.Equal(t, []string{"a_1_1_5"}, result.NeedsReview)

	require.Len(t, result.Quarantined, 2)
	ids := []string{result.Quarantined[0].SourceID, result.Quarantined[1].SourceID}
	assert.ElementsMatch(t, []string{"a_1_1_2", "a_1_1_4"}, ids)
	for _, q := range result.Quarantined {
		if q.SourceID == "a_1_1_2" {
			assert.Equal(t, "not json at all", q.RawContent)
		}
		assert.NotEmpty(t, q.Error)
	}
	assert.Len(t, sink, 2)
	assert.Equal(t, len(records), len(result.Books)+len(result.Quarantined))
}

func TestParseAllBoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	provider := providers.Func(func(ctx context.Context, cfg providers.Config) (string, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		return faustJSON, nil
	})

	records := make([]models.ConsolidatedRecord, 20)
	for i := range records {
		records[i] = record(fmt.Sprintf("b_1_1_%d", i), "Faust")
	}

	result, err := NewParser(provider, Options{Concurrency: 2}).ParseAll(context.Background(), records)
	require.NoError(t, err)
	assert.Len(t, result.Books, 20)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestParseAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	provider := providers.Func(func(ctx context.Context, cfg providers.Config) (string, error) {
		cancel()
		return "", ctx.Err()
	})

	records := []models.ConsolidatedRecord{record("c_1_1_1", "x"), record("c_1_1_2", "y")}
	_, err := NewParser(provider, Options{}).ParseAll(ctx, records)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDecodeAssignments(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    int
		wantErr bool
	}{
		{name: "array", raw: `[{"composite_id":"a","display_name":"Kant","unified_id":"kant"}]`, want: 1},
		{name: "fenced array", raw: "```json\n[{\"composite_id\":\"a\",\"unified_id\":\"oops\"}]\n```", want: 1},
		{name: "wrapped object", raw: `{"mentions":[{"composite_id":"a"},{"composite_id":"b"}]}`, want: 2},
		{name: "garbage", raw: "sorry", wantErr: true},
		{name: "object without mentions", raw: `{"status":"done"}`, wantErr: true},
		{name: "truncated array", raw: `[{"composite_id":"a","unified_id":"x"}, {"composite_id":"b","unified_id":"y"}, {"composite_id":"c","unif`, want: 2},
		{name: "truncated fenced array", raw: "```json\n[{\"composite_id\":\"a\"},\n{\"composite_id\":\"b\",\"display", want: 1},
		{name: "truncated before first element ends", raw: `[{"composite_id":"a","display_na`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeAssignments(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformed)
				return
			}
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestAssignAll(t *testing.T) {
	kant := models.PersonMention{BookCompositeID: "a_1_1_1", DisplayName: "Kant, Immanuel", FamilyName: "Kant", Roles: models.Roles{IsAuthor: true}}
	kant2 := models.PersonMention{BookCompositeID: "a_1_1_2", DisplayName: "KANT, I.", FamilyName: "KANT", Roles: models.Roles{IsAuthor: true}}
	nobody := models.PersonMention{BookCompositeID: "a_1_1_3", DisplayName: "", Roles: models.Roles{IsEditor: true}}
	lost := models.PersonMention{BookCompositeID: "a_1_1_4", DisplayName: "Lost, Person", Roles: models.Roles{IsAuthor: true}}

	provider := providers.Func(func(ctx context.Context, cfg providers.Config) (string, error) {
		if strings.Contains(cfg.Prompt, "Lost") {
			return "", errors.New("timeout")
		}
		return `[
			{"composite_id":"a_1_1_1","display_name":"Kant, Immanuel","roles":{"is_author":true},"sort_order":0,"unified_id":"kant_immanuel"},
			{"composite_id":"a_1_1_2","display_name":"KANT, I.","roles":{"is_author":true},"sort_order":0,"unified_id":"kant_immanuel"},
			{"composite_id":"a_1_1_3","display_name":"","roles":{"is_editor":true},"sort_order":0,"unified_id":"oops"}
		]`, nil
	})

	out, failed, err := NewAssigner(provider, "m").AssignAll(context.Background(), [][]models.PersonMention{
		{kant, kant2, nobody},
		{lost},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, failed)
	require.Len(t, out, 4)
	id, ok := out[0].Identity.ID()
	assert.True(t, ok)
	assert.Equal(t, "kant_immanuel", id)
	assert.Equal(t, out[0].Identity, out[1].Identity)
	assert.True(t, out[2].Identity.IsAmbiguous())
	assert.True(t, out[3].Identity.IsUnassigned())
}

func TestAssignBatchKeepsTruncatedTail(t *testing.T) {
	batch := []models.PersonMention{
		{BookCompositeID: "a_0_1_1", DisplayName: "Kant, Immanuel", Roles: models.Roles{IsAuthor: true}},
		{BookCompositeID: "a_1_1_1", DisplayName: "Hegel, G. W. F.", Roles: models.Roles{IsAuthor: true}},
	}
	provider := providers.Func(func(ctx context.Context, cfg providers.Config) (string, error) {
		return `[{"composite_id":"a_0_1_1","display_name":"Kant, Immanuel","roles":{"is_author":true},"sort_order":0,"unified_id":"kant_immanuel"},
			{"composite_id":"a_1_1_1","display_name":"Hegel, G. W. F.","roles":{"is_au`, nil
	})

	out, err := NewAssigner(provider, "m").AssignBatch(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "kant_immanuel", out[0].Identity.String())
	assert.True(t, out[1].Identity.IsUnassigned())
}

func TestSplitAll(t *testing.T) {
	grimm := models.PersonMention{BookCompositeID: "m_0_1_1", DisplayName: "Grimm, Jacob u. Wilhelm", Roles: models.Roles{IsAuthor: true}}
	pair := models.PersonMention{BookCompositeID: "m_1_1_1", DisplayName: "Müller und Schmidt", Roles: models.Roles{IsEditor: true}}
	broken := models.PersonMention{BookCompositeID: "m_2_1_1", DisplayName: "Marx und Engels", Roles: models.Roles{IsAuthor: true}}

	provider := providers.Func(func(ctx context.Context, cfg providers.Config) (string, error) {
		if strings.Contains(cfg.Prompt, "Marx") {
			return "I cannot help with that.", nil
		}
		return "```json\n" + `[
			{"source": {"composite_id":"m_0_1_1","display_name":"Grimm, Jacob u. Wilhelm","roles":{"is_author":true},"sort_order":0},
			 "people": [{"display_name":"Grimm, Jacob","family_name":"Grimm","given_names":"Jacob"},
			            {"display_name":"Grimm, Wilhelm","family_name":"Grimm","given_names":"Wilhelm"},
			            {"display_name":"  "}]},
			{"source": {"composite_id":"x_9_1_1","display_name":"Somebody else","roles":{"is_author":true},"sort_order":0},
			 "people": [{"display_name":"A"},{"display_name":"B"}]},
			{"source": {"composite_id":"m_1_1_1","display_name":"Müller und Schmidt","roles":{"is_editor":true},"sort_order":0},
			 "people": [{"display_name":"Müller","family_name":"Müller"},{"display_name":"Schm` + "\n```", nil
	})

	splits, failed, err := NewSplitter(provider, "m").SplitAll(context.Background(), [][]models.PersonMention{
		{grimm, pair},
		{broken},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, failed)

	require.Len(t, splits, 1)
	assert.Equal(t, "m_0_1_1", splits[0].Source.BookCompositeID)
	require.Len(t, splits[0].People, 2)
	assert.Equal(t, "Wilhelm", splits[0].People[1].GivenNames)
}

func TestDecodeSplits(t *testing.T) {
	splits, err := DecodeSplits(`[{"source":{"composite_id":"a"},"people":[{"display_name":"A"},{"display_name":"B"}]}]`)
	require.NoError(t, err)
	require.Len(t, splits, 1)
	assert.Len(t, splits[0].People, 2)

	_, err = DecodeSplits("sorry, nothing to split")
	assert.ErrorIs(t, err, ErrMalformed)
}
