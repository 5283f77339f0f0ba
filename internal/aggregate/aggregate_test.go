package aggregate

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runtimeviewer/internal/models"
	"runtimeviewer/internal/runtimes"
)

var base = time.Date(2022, time.October, 10, 12, 0, 0, 0, time.UTC)

func round(id int, server, revision string, at time.Time, batches ...models.RuntimeBatch) models.Round {
	return models.Round{
		RoundID:   id,
		Timestamp: models.NewTimestamp(at),
		Revision:  revision,
		Server:    server,
		Runtimes:  batches,
	}
}

func batch(exception, proc, file string, line int, count int64) models.RuntimeBatch {
	return models.RuntimeBatch{Exception: exception, ProcPath: proc, SourceFile: file, Line: line, Count: count}
}

// exampleRounds are newest first, as the loader publishes them.
func exampleRounds() []models.Round {
	a := round(1, "basil", "abc", base, batch("E1", "/p", "f.dm", 10, 3))
	b := round(2, "basil", "def", base.Add(time.Hour), batch("E1", "/p", "f.dm", 12, 2))
	return []models.Round{b, a}
}

var batchCmp = cmp.Comparer(func(a, b *models.BestGuessFilenames) bool {
	return a.Kind() == b.Kind() && cmp.Equal(a.Paths(), b.Paths())
})

func TestFilterUnboundedReturnsEverything(t *testing.T) {
	rounds := []models.Round{
		round(3, "sybil", "r", base.Add(-30*24*time.Hour)),
		round(2, "basil", "r", base),
		round(1, "terry", "r", base.Add(-400*24*time.Hour)),
	}
	got := Filter(rounds, AllServers, TimeframeAll)
	if diff := cmp.Diff(rounds, got, batchCmp); diff != "" {
		t.Fatalf("unexpected filter output (-want +got):\n%s", diff)
	}
}

func TestFilterServerAndTimeframe(t *testing.T) {
	rounds := []models.Round{
		round(5, "basil", "r", base),
		round(4, "sybil", "r", base.Add(-12*time.Hour)),
		round(3, "basil", "r", base.Add(-36*time.Hour)),
		round(2, "basil", "r", base.Add(-72*time.Hour)),
		round(1, "basil", "r", base.Add(-8*24*time.Hour)),
	}

	ids := func(rounds []models.Round) []int {
		out := make([]int, 0, len(rounds))
		for _, r := range rounds {
			out = append(out, r.RoundID)
		}
		return out
	}

	assert.Equal(t, []int{5, 4}, ids(Filter(rounds, AllServers, TimeframeDay)))
	assert.Equal(t, []int{5, 3, 2}, ids(Filter(rounds, "basil", TimeframeThreeDays)))
	assert.Equal(t, []int{5, 4, 3, 2}, ids(Filter(rounds, AllServers, TimeframeWeek)))
	assert.Equal(t, []int{4}, ids(Filter(rounds, "sybil", TimeframeWeek)))
	assert.Empty(t, Filter(rounds, "manuel", TimeframeAll))
}

func TestFilterAnchorsOnNewestRoundRegardlessOfOrder(t *testing.T) {
	rounds := []models.Round{
		round(1, "basil", "r", base.Add(-2*24*time.Hour)),
		round(2, "basil", "r", base),
	}
	got := Filter(rounds, AllServers, TimeframeDay)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].RoundID)
}

func TestFilterEmpty(t *testing.T) {
	got := Filter(nil, AllServers, TimeframeWeek)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	view := Run(nil, DefaultParams(), nil)
	assert.Equal(t, 0, view.Table.Len())
	assert.Empty(t, view.Chart)
}

func TestParseTimeframe(t *testing.T) {
	for raw, want := range map[string]Timeframe{"": TimeframeAll, "all": TimeframeAll, "0": TimeframeAll, "1": TimeframeDay, "3": TimeframeThreeDays, " 7 ": TimeframeWeek} {
		got, err := ParseTimeframe(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
	for _, raw := range []string{"2", "week", "-1"} {
		_, err := ParseTimeframe(raw)
		assert.Error(t, err, raw)
	}
}

func TestSearchEmptyPatternIsIdentity(t *testing.T) {
	rounds := exampleRounds()
	got := Search(rounds, "")
	if diff := cmp.Diff(rounds, got, batchCmp); diff != "" {
		t.Fatalf("empty search changed rounds (-want +got):\n%s", diff)
	}
}

func TestSearchMatching(t *testing.T) {
	rounds := []models.Round{
		round(1, "basil", "r", base,
			batch("Cannot read NULL.loc", "/obj/item", "items.dm", 1, 1),
			batch("bad index", "/datum/Controller", "ctrl.dm", 2, 1),
			batch("division by zero", "/mob/living", "Living.DM", 3, 1),
		),
		round(2, "basil", "r", base),
	}

	exceptions := func(rounds []models.Round) []string {
		var out []string
		for _, r := range rounds {
			for _, b := range r.Runtimes {
				out = append(out, b.Exception)
			}
		}
		return out
	}

	t.Run("exception is case insensitive", func(t *testing.T) {
		assert.Equal(t, []string{"Cannot read NULL.loc"}, exceptions(Search(rounds, "null")))
	})
	t.Run("source file is case insensitive", func(t *testing.T) {
		assert.Equal(t, []string{"division by zero"}, exceptions(Search(rounds, "LIVING.dm")))
	})
	t.Run("proc path is not lowercased", func(t *testing.T) {
		assert.Empty(t, exceptions(Search(rounds, "Controller")))
		assert.Equal(t, []string{"bad index"}, exceptions(Search(rounds, "/datum/")))
	})
	t.Run("rounds are kept even when emptied", func(t *testing.T) {
		got := Search(rounds, "nothing matches this")
		require.Len(t, got, 2)
		assert.Empty(t, got[0].Runtimes)
		assert.NotNil(t, got[1].Runtimes)
	})
	t.Run("input is untouched", func(t *testing.T) {
		_ = Search(rounds, "null")
		assert.Len(t, rounds[0].Runtimes, 3)
	})
}

func TestCollateSumsWithinRound(t *testing.T) {
	rounds := []models.Round{
		round(2, "basil", "r", base,
			batch("E1", "/p", "a.dm", 1, 2),
			batch("E2", "/q", "b.dm", 5, 7),
			batch("E1", "/p", "c.dm", 9, 4),
			batch("E1", "/p", "a.dm", 1, 1),
		),
		round(1, "basil", "r", base.Add(-time.Hour),
			batch("E1", "/p", "a.dm", 1, 10),
		),
	}

	acc := NewCollator()
	got := Collate(rounds, acc)
	require.Len(t, got, 2)

	require.Len(t, got[0].Runtimes, 2)
	assert.Equal(t, "E1", got[0].Runtimes[0].Exception)
	assert.Equal(t, int64(7), got[0].Runtimes[0].Count)
	assert.Equal(t, "a.dm", got[0].Runtimes[0].SourceFile)
	assert.Equal(t, int64(7), got[0].Runtimes[1].Count)

	require.Len(t, got[1].Runtimes, 1)
	assert.Equal(t, int64(10), got[1].Runtimes[0].Count)

	assert.Equal(t, int64(17), acc.Total("E1_______/p"))
	assert.Equal(t, int64(7), acc.Total("E2_______/q"))
	assert.Equal(t, []string{"E1_______/p", "E2_______/q"}, acc.Keys())

	rep, ok := acc.Representative("E1_______/p")
	require.True(t, ok)
	assert.Equal(t, "a.dm", rep.SourceFile)

	// originals keep their counts
	assert.Equal(t, int64(2), rounds[0].Runtimes[0].Count)
	assert.Len(t, rounds[0].Runtimes, 4)
}

func TestCollateSumProperty(t *testing.T) {
	exceptions := []string{"E1", "E2", "E3"}
	for seed := 0; seed < 20; seed++ {
		var batches []models.RuntimeBatch
		want := make(map[string]int64)
		for i := 0; i < 30; i++ {
			b := batch(exceptions[(seed+i*7)%3], "/p", fmt.Sprintf("f%d.dm", i%4), i, int64((seed*i)%5+1))
			batches = append(batches, b)
			want[runtimes.Key(b)] += b.Count
		}

		got := Collate([]models.Round{round(1, "basil", "r", base, batches...)}, NewCollator())
		seen := make(map[string]int64)
		for _, b := range got[0].Runtimes {
			key := runtimes.Key(b)
			_, dup := seen[key]
			require.False(t, dup, "identity %s collated twice", key)
			seen[key] = b.Count
		}
		assert.Equal(t, want, seen)
	}
}

func TestCollateExample(t *testing.T) {
	acc := NewCollator()
	got := Collate(exampleRounds(), acc)
	require.Len(t, got, 2)
	require.Len(t, got[0].Runtimes, 1)
	require.Len(t, got[1].Runtimes, 1)
	assert.Equal(t, int64(2), got[0].Runtimes[0].Count)
	assert.Equal(t, int64(3), got[1].Runtimes[0].Count)
	assert.Equal(t, int64(5), acc.Total("E1_______/p"))
}

func TestCollateRoundWithoutData(t *testing.T) {
	got := Collate([]models.Round{round(1, "basil", "r", base)}, nil)
	require.Len(t, got, 1)
	assert.NotNil(t, got[0].Runtimes)
	assert.Empty(t, got[0].Runtimes)
}

func TestRankExample(t *testing.T) {
	table := Rank(exampleRounds())
	require.Equal(t, 1, table.Len())

	row, ok := table.At(0)
	require.True(t, ok)
	assert.Equal(t, "E1_______/p", row.Key)
	assert.Equal(t, int64(5), row.TotalCount)
	assert.Equal(t, 2, row.RoundCount)
	assert.Equal(t, 1.0, row.Percent)
	assert.Equal(t, 2, table.RoundsSupplied())
}

func TestRankProperties(t *testing.T) {
	rounds := []models.Round{
		round(4, "basil", "r", base,
			batch("E1", "/p", "a.dm", 1, 1),
			batch("E2", "/p", "a.dm", 2, 50),
			batch("E1", "/p", "b.dm", 3, 1),
		),
		round(3, "sybil", "r", base, batch("E3", "/q", "c.dm", 1, 4), batch("E4", "/q", "c.dm", 1, 4)),
		round(2, "basil", "r", base, batch("E1", "/p", "a.dm", 1, 8)),
		round(1, "basil", "r", base),
	}

	table := Rank(rounds)
	rows := table.Rows()

	keys := make([]string, 0, len(rows))
	for i, row := range rows {
		keys = append(keys, row.Key)
		if i > 0 {
			assert.GreaterOrEqual(t, rows[i-1].TotalCount, row.TotalCount)
		}
		assert.LessOrEqual(t, row.RoundCount, len(rounds))
	}
	assert.ElementsMatch(t, []string{"E1_______/p", "E2_______/p", "E3_______/q", "E4_______/q"}, keys)

	// E3 and E4 tie on total and keep first-seen order
	assert.Equal(t, []string{"E2_______/p", "E1_______/p", "E3_______/q", "E4_______/q"}, keys)

	e1, idx, ok := table.Find("E1_______/p")
	require.True(t, ok)
	assert.Equal(t, 1, idx)
	assert.Equal(t, int64(10), e1.TotalCount)
	assert.Equal(t, 2, e1.RoundCount)
	assert.Equal(t, 0.5, e1.Percent)
	assert.Equal(t, "a.dm", e1.Runtime.SourceFile)

	again := Rank(rounds).Rows()
	if diff := cmp.Diff(rows, again, batchCmp); diff != "" {
		t.Fatalf("ranking is not deterministic:\n%s", diff)
	}
}

func TestTableWindow(t *testing.T) {
	var batches []models.RuntimeBatch
	for i := 0; i < 10; i++ {
		batches = append(batches, batch(fmt.Sprintf("E%d", i), "/p", "a.dm", i, int64(100-i)))
	}
	table := Rank([]models.Round{round(1, "basil", "r", base, batches...)})

	window := table.Window(3, 4)
	require.Len(t, window, 4)
	assert.Equal(t, "E3", window[0].Runtime.Exception)
	assert.Equal(t, "E6", window[3].Runtime.Exception)

	assert.Len(t, table.Window(8, 5), 2)
	assert.Empty(t, table.Window(20, 5))
	assert.Len(t, table.Window(-1, 0), 10)

	_, ok := table.At(10)
	assert.False(t, ok)
	_, ok = table.At(-1)
	assert.False(t, ok)

	var empty *Table
	assert.Equal(t, 0, empty.Len())
	assert.Empty(t, empty.Window(0, 10))
}

func TestDetailExample(t *testing.T) {
	links := DefaultLinks()
	rounds := exampleRounds()
	rounds[0].Runtimes[0].BestGuessFilenames = models.Possible([]string{"code/f.dm", "code/old/f.dm"})
	rounds[1].Runtimes[0].BestGuessFilenames = models.Definitely("code/f.dm")

	detail := Detail("E1_______/p", rounds, links)
	assert.True(t, detail.Found)
	assert.Equal(t, "E1", detail.Exception)

	want := []RoundOccurrence{
		{RoundID: 1, Server: "basil", Revision: "abc", Count: 3, URL: "https://scrubby.melonmesa.com/round/1/source"},
		{RoundID: 2, Server: "basil", Revision: "def", Count: 2, URL: "https://scrubby.melonmesa.com/round/2/source"},
	}
	if diff := cmp.Diff(want, detail.Rounds); diff != "" {
		t.Fatalf("rounds mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, []FileLink{
		{URL: "https://github.com/tgstation/tgstation/tree/def/code/f.dm#L12", Label: "def - code/f.dm#L12"},
		{URL: "https://github.com/tgstation/tgstation/tree/def/code/old/f.dm#L12", Label: "def - code/old/f.dm#L12"},
		{URL: "https://github.com/tgstation/tgstation/tree/abc/code/f.dm#L10", Label: "abc - code/f.dm#L10"},
	}, detail.Files)
	assert.Equal(t, []FileLink{
		{URL: "https://github.com/tgstation/tgstation/tree/master/code/f.dm#L12", Label: "master - code/f.dm#L12"},
		{URL: "https://github.com/tgstation/tgstation/tree/master/code/old/f.dm#L12", Label: "master - code/old/f.dm#L12"},
		{URL: "https://github.com/tgstation/tgstation/tree/master/code/f.dm#L10", Label: "master - code/f.dm#L10"},
	}, detail.ReferenceFiles)
}

func TestDetailLastWritePerRound(t *testing.T) {
	rounds := []models.Round{
		round(1, "basil", "r", base, batch("E1", "/p", "a.dm", 1, 9), batch("E1", "/p", "b.dm", 2, 4)),
	}
	detail := Detail("E1_______/p", rounds, DefaultLinks())
	require.Len(t, detail.Rounds, 1)
	assert.Equal(t, int64(4), detail.Rounds[0].Count)
}

func TestDetailMiss(t *testing.T) {
	detail := Detail("nope_______/x", exampleRounds(), DefaultLinks())
	assert.False(t, detail.Found)
	assert.Equal(t, NotFoundMessage, detail.Exception)
	assert.NotNil(t, detail.Rounds)
	assert.Empty(t, detail.Rounds)
	assert.Empty(t, detail.Files)
	assert.Empty(t, detail.ReferenceFiles)

	empty := Detail("E1_______/p", nil, DefaultLinks())
	assert.Equal(t, NotFoundMessage, empty.Exception)
}

func TestFileURLHelpers(t *testing.T) {
	links := Links{CodeHost: "https://example.com/org/repo/", ReferenceRevision: "main", RoundService: "https://rounds.example.com/"}
	url := links.FileURL("0123456789abcdef", "code/modules/a.dm", 42)
	assert.Equal(t, "https://example.com/org/repo/tree/0123456789abcdef/code/modules/a.dm#L42", url)
	assert.Equal(t, "code/modules/a.dm#L42", CodeFile(url))
	assert.Equal(t, "012345", ShortRevision(url))
	assert.Equal(t, "https://rounds.example.com/round/7/source", links.RoundURL(7))

	assert.Equal(t, "not a link", CodeFile("not a link"))
	assert.Equal(t, "", ShortRevision("not a link"))

	assert.Equal(t, FileLink{URL: url, Label: "012345 - code/modules/a.dm#L42"}, NewFileLink(url))
	assert.Equal(t, FileLink{URL: "not a link", Label: "not a link"}, NewFileLink("not a link"))
}

func TestSeries(t *testing.T) {
	rounds := []models.Round{
		round(3, "basil", "r", base, batch("E1", "/p", "a.dm", 1, 2), batch("E2", "/p", "a.dm", 1, 5)),
		round(2, "mystery", "r", base, batch("E1", "/p", "a.dm", 1, 1)),
		round(1, "sybil", "r", base),
	}
	colors := map[string]string{"basil": "brown", UnknownServer: "grey"}

	got := Series(rounds, colors)
	want := []models.ChartPoint{
		{RoundID: 3, Server: "basil", Total: 7, Color: "brown"},
		{RoundID: 2, Server: "mystery", Total: 1, Color: "grey"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("series mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, fallbackColor, ServerColor(nil, "basil"))
}

func TestRunPipeline(t *testing.T) {
	rounds := []models.Round{
		round(3, "basil", "r", base,
			batch("E1", "/p", "a.dm", 1, 2),
			batch("E1", "/p", "b.dm", 2, 3),
			batch("Other", "/q", "c.dm", 3, 1),
		),
		round(2, "sybil", "r", base.Add(-time.Hour), batch("E1", "/p", "a.dm", 1, 4)),
		round(1, "basil", "r", base.Add(-10*24*time.Hour), batch("E1", "/p", "a.dm", 1, 100)),
	}

	view := Run(rounds, Params{Timeframe: TimeframeWeek, Search: "e1", Collate: true}, nil)
	assert.Equal(t, AllServers, view.Params.Server)
	require.Len(t, view.Rounds, 2)
	require.Len(t, view.Rounds[0].Runtimes, 1)
	assert.Equal(t, int64(5), view.Rounds[0].Runtimes[0].Count)
	require.NotNil(t, view.Collator)
	assert.Equal(t, int64(9), view.Collator.Total("E1_______/p"))

	require.Equal(t, 1, view.Table.Len())
	row, _ := view.Table.At(0)
	assert.Equal(t, int64(9), row.TotalCount)
	assert.Equal(t, 2, row.RoundCount)

	assert.Equal(t, []int64{5, 4}, []int64{view.Chart[0].Total, view.Chart[1].Total})

	uncollated := Run(rounds, Params{Server: "basil", Timeframe: TimeframeAll}, nil)
	assert.Nil(t, uncollated.Collator)
	assert.Equal(t, 2, uncollated.Table.Len())
	assert.Len(t, uncollated.Rounds[0].Runtimes, 3)

	detail := view.Detail("E1_______/p", DefaultLinks())
	assert.Equal(t, []int64{5, 4}, []int64{detail.Rounds[0].Count, detail.Rounds[1].Count})
	assert.Equal(t, 1, detail.Rank)
	assert.Equal(t, int64(9), detail.TotalCount)
	assert.Equal(t, 2, detail.RoundCount)
	require.NotNil(t, detail.Representative)
	assert.Equal(t, "a.dm", detail.Representative.SourceFile)
	assert.Equal(t, int64(2), detail.Representative.Count)

	otherDetail := uncollated.Detail("Other_______/q", DefaultLinks())
	assert.Equal(t, 2, otherDetail.Rank)
	require.NotNil(t, otherDetail.Representative)
	assert.Equal(t, "c.dm", otherDetail.Representative.SourceFile)

	missing := view.Detail("Other_______/q", DefaultLinks())
	assert.False(t, missing.Found)
	assert.Zero(t, missing.Rank)
	assert.Nil(t, missing.Representative)
}

func TestMemo(t *testing.T) {
	rounds := exampleRounds()
	var calls atomic.Int32
	memo := NewMemo(2, func(p Params) *View {
		calls.Add(1)
		return Run(rounds, p, nil)
	})

	first, hit := memo.Get(DefaultParams())
	assert.False(t, hit)
	second, hit := memo.Get(Params{Server: "", Timeframe: TimeframeWeek, Collate: true})
	assert.True(t, hit)
	assert.Same(t, first, second)
	assert.Equal(t, int32(1), calls.Load())

	memo.Get(Params{Timeframe: TimeframeDay})
	memo.Get(Params{Timeframe: TimeframeThreeDays})
	assert.Equal(t, 2, memo.Len())

	_, hit = memo.Get(DefaultParams())
	assert.False(t, hit, "oldest entry should have been evicted")
	assert.Equal(t, int32(4), calls.Load())
}

func TestMemoConcurrentCallers(t *testing.T) {
	rounds := exampleRounds()
	memo := NewMemo(0, func(p Params) *View { return Run(rounds, p, nil) })

	var wg sync.WaitGroup
	views := make([]*View, 16)
	for i := range views {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			views[i], _ = memo.Get(DefaultParams())
		}(i)
	}
	wg.Wait()

	for _, v := range views {
		require.NotNil(t, v)
		assert.Equal(t, 1, v.Table.Len())
	}
	assert.Equal(t, 1, memo.Len())
	assert.Empty(t, cmp.Diff(views[0].Table.Rows(), views[15].Table.Rows(), batchCmp, cmpopts.EquateEmpty()))
}
