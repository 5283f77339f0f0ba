package aggregate

import (
	"runtimeviewer/internal/models"
	"runtimeviewer/internal/runtimes"
)

// Collator accumulates identities across the rounds of one pipeline pass.
type Collator struct {
	representatives map[string]models.RuntimeBatch
	totals          map[string]int64
	order           []string
}

// NewCollator returns an empty accumulator.
func NewCollator() *Collator {
	return &Collator{
		representatives: make(map[string]models.RuntimeBatch),
		totals:          make(map[string]int64),
	}
}

// Representative returns the first occurrence collated for key.
func (c *Collator) Representative(key string) (models.RuntimeBatch, bool) {
	batch, ok := c.representatives[key]
	return batch, ok
}

// Total is the running count for key across every round collated so far.
func (c *Collator) Total(key string) int64 {
	return c.totals[key]
}

// Keys lists the collated identities in first-seen order.
func (c *Collator) Keys() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Collate merges same-identity runtimes within every round into a single
// record whose count is the sum of the merged counts. Each round of the
// result holds every identity at most once.
func Collate(rounds []models.Round, acc *Collator) []models.Round {
	if acc == nil {
		acc = NewCollator()
	}

	out := make([]models.Round, len(rounds))
	for i, round := range rounds {
		merged := make([]models.RuntimeBatch, 0, len(round.Runtimes))
		positions := make(map[string]int, len(round.Runtimes))

		for _, batch := range round.Runtimes {
			key := runtimes.Key(batch)
			acc.totals[key] += batch.Count

			if idx, ok := positions[key]; ok {
				merged[idx].Count += batch.Count
				continue
			}
			positions[key] = len(merged)
			merged = append(merged, batch)
			if _, seen := acc.representatives[key]; !seen {
				acc.representatives[key] = batch
				acc.order = append(acc.order, key)
			}
		}

		round.Runtimes = merged
		out[i] = round
	}
	return out
}
