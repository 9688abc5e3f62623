package warmer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmem/hrce/internal/config"
	"github.com/agentmem/hrce/pkg/hrce"
)

type recordingSearcher struct {
	calls []string
	fail  map[string]bool
}

func (s *recordingSearcher) Search(ctx context.Context, q hrce.Query) ([]hrce.SearchResult, error) {
	s.calls = append(s.calls, q.Text)
	if s.fail[q.Text] {
		return nil, errors.New("boom")
	}
	return []hrce.SearchResult{{ID: "x"}}, nil
}

type recordingWarmSearcher struct {
	recordingSearcher
	warmCalls []string
}

func (s *recordingWarmSearcher) WarmSearch(ctx context.Context, q hrce.Query) ([]hrce.SearchResult, error) {
	s.warmCalls = append(s.warmCalls, q.Text)
	return []hrce.SearchResult{{ID: "x"}}, nil
}

func TestWarmer_PrefersWarmSearchWhenAvailable(t *testing.T) {
	searcher := &recordingWarmSearcher{}
	w := New(Options{
		Strategy: config.WarmingEager,
		Searcher: searcher,
		Seed:     []hrce.Query{{Text: "a"}, {Text: "b"}},
	})
	w.WarmOnce(context.Background())
	assert.ElementsMatch(t, []string{"a", "b"}, searcher.warmCalls)
	assert.Empty(t, searcher.calls, "WarmSearch should be used instead of Search when the searcher supports it")
}

func TestWarmer_EagerRunsSeedQueries(t *testing.T) {
	searcher := &recordingSearcher{}
	w := New(Options{
		Strategy: config.WarmingEager,
		Searcher: searcher,
		Seed:     []hrce.Query{{Text: "a"}, {Text: "b"}},
	})
	w.WarmOnce(context.Background())
	assert.ElementsMatch(t, []string{"a", "b"}, searcher.calls)
}

func TestWarmer_FrequencyRunsTopCounted(t *testing.T) {
	searcher := &recordingSearcher{}
	w := New(Options{
		Strategy: config.WarmingFrequency,
		MaxItems: 1,
		Searcher: searcher,
	})
	w.RecordQuery(hrce.Query{Text: "rare"})
	for i := 0; i < 5; i++ {
		w.RecordQuery(hrce.Query{Text: "common"})
	}
	w.WarmOnce(context.Background())
	require.Len(t, searcher.calls, 1)
	assert.Equal(t, "common", searcher.calls[0])
}

func TestWarmer_ScheduledRunsOnlyWhenDue(t *testing.T) {
	searcher := &recordingSearcher{}
	w := New(Options{
		Strategy: config.WarmingScheduled,
		Searcher: searcher,
		Schedule: []ScheduleEntry{{Query: hrce.Query{Text: "hourly"}, Interval: time.Hour}},
	})
	w.WarmOnce(context.Background())
	assert.Equal(t, []string{"hourly"}, searcher.calls)

	searcher.calls = nil
	w.WarmOnce(context.Background())
	assert.Empty(t, searcher.calls)
}

func TestWarmer_LearningUsesCallback(t *testing.T) {
	searcher := &recordingSearcher{}
	w := New(Options{
		Strategy: config.WarmingLearning,
		Searcher: searcher,
		LearningFn: func() []hrce.Query {
			return []hrce.Query{{Text: "learned"}}
		},
	})
	w.WarmOnce(context.Background())
	assert.Equal(t, []string{"learned"}, searcher.calls)
}

func TestWarmer_ToleratesIndividualFailures(t *testing.T) {
	searcher := &recordingSearcher{fail: map[string]bool{"bad": true}}
	w := New(Options{
		Strategy: config.WarmingEager,
		Searcher: searcher,
		Seed:     []hrce.Query{{Text: "bad"}, {Text: "good"}},
	})
	w.WarmOnce(context.Background())
	assert.ElementsMatch(t, []string{"bad", "good"}, searcher.calls)
}
