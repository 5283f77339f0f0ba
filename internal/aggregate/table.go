package aggregate

import (
	"sort"

	"runtimeviewer/internal/models"
	"runtimeviewer/internal/runtimes"
)

// Row is one identity of the runtime table.
type Row struct {
	Key        string              `json:"key"`
	Runtime    models.RuntimeBatch `json:"runtime"`
	TotalCount int64               `json:"total_count"`
	RoundCount int                 `json:"round_count"`
	Percent    float64             `json:"percent"`
}

// Table is the ranked list of identities, most frequent first. It is
// immutable once built and supports random access for windowed display.
type Table struct {
	rows   []Row
	rounds int
}

// Rank counts every identity across rounds: the distinct rounds it occurs in
// and its cumulative count. Rows are sorted by total count, descending; ties
// keep first-seen order.
func Rank(rounds []models.Round) *Table {
	type acc struct {
		row    Row
		rounds map[models.RoundID]struct{}
	}

	accs := make(map[string]*acc)
	order := make([]string, 0)
	for _, round := range rounds {
		for _, batch := range round.Runtimes {
			key := runtimes.Key(batch)
			entry := accs[key]
			if entry == nil {
				entry = &acc{
					row:    Row{Key: key, Runtime: batch},
					rounds: make(map[models.RoundID]struct{}),
				}
				accs[key] = entry
				order = append(order, key)
			}
			entry.rounds[round.RoundID] = struct{}{}
			entry.row.TotalCount += batch.Count
		}
	}

	rows := make([]Row, 0, len(order))
	for _, key := range order {
		entry := accs[key]
		entry.row.RoundCount = len(entry.rounds)
		if len(rounds) > 0 {
			entry.row.Percent = float64(entry.row.RoundCount) / float64(len(rounds))
		}
		rows = append(rows, entry.row)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].TotalCount > rows[j].TotalCount
	})

	return &Table{rows: rows, rounds: len(rounds)}
}

// Len is the number of distinct identities.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

// RoundsSupplied is the number of rounds the table was computed from.
func (t *Table) RoundsSupplied() int {
	if t == nil {
		return 0
	}
	return t.rounds
}

// At returns the row at index i.
func (t *Table) At(i int) (Row, bool) {
	if i < 0 || i >= t.Len() {
		return Row{}, false
	}
	return t.rows[i], true
}

// Window returns a copy of at most limit rows starting at offset. A
// non-positive limit returns everything from offset on.
func (t *Table) Window(offset, limit int) []Row {
	total := t.Len()
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []Row{}
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	out := make([]Row, end-offset)
	copy(out, t.rows[offset:end])
	return out
}

// Rows returns a copy of every row.
func (t *Table) Rows() []Row {
	return t.Window(0, 0)
}

// Find returns the row for key and its index.
func (t *Table) Find(key string) (Row, int, bool) {
	for i := 0; i < t.Len(); i++ {
		if t.rows[i].Key == key {
			return t.rows[i], i, true
		}
	}
	return Row{}, -1, false
}
