package aggregate

import (
	"strings"

	"runtimeviewer/internal/models"
)

// Search prunes each round's runtimes to those matching pattern. Exception
// and source file are matched case-insensitively; the proc path is matched
// against the lowercased pattern as-is. Rounds are never dropped, and an
// empty pattern returns the input unchanged.
func Search(rounds []models.Round, pattern string) []models.Round {
	if pattern == "" {
		return rounds
	}
	lowered := strings.ToLower(pattern)

	out := make([]models.Round, len(rounds))
	for i, round := range rounds {
		kept := make([]models.RuntimeBatch, 0)
		for _, batch := range round.Runtimes {
			if matchesSearch(batch, lowered) {
				kept = append(kept, batch)
			}
		}
		round.Runtimes = kept
		out[i] = round
	}
	return out
}

func matchesSearch(batch models.RuntimeBatch, lowered string) bool {
	return strings.Contains(strings.ToLower(batch.Exception), lowered) ||
		strings.Contains(strings.ToLower(batch.SourceFile), lowered) ||
		strings.Contains(batch.ProcPath, lowered)
}
