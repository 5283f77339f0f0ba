package history

import (
	"sort"
	"strings"

	"runtimeviewer/internal/models"
)

type tally struct {
	color   string
	rounds  int
	total   int64
	busiest models.ChartPoint
}

// BuildServerSummaries reduces chart points into one legend entry per server,
// sorted by server name.
func BuildServerSummaries(points []models.ChartPoint) []models.ServerSummary {
	if len(points) == 0 {
		return []models.ServerSummary{}
	}

	tallies := make(map[string]*tally)
	for _, point := range points {
		entry, ok := tallies[point.Server]
		if !ok {
			entry = &tally{color: point.Color}
			tallies[point.Server] = entry
		}
		entry.rounds++
		entry.total += point.Total
		// ties keep the first round seen
		if entry.rounds == 1 || point.Total > entry.busiest.Total {
			entry.busiest = point
		}
	}

	names := make([]string, 0, len(tallies))
	for name := range tallies {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return strings.ToLower(names[i]) < strings.ToLower(names[j])
	})

	result := make([]models.ServerSummary, 0, len(names))
	for _, name := range names {
		entry := tallies[name]
		summary := models.ServerSummary{
			Server: name,
			Color:  entry.color,
			Rounds: entry.rounds,
			Total:  entry.total,
		}
		if entry.rounds > 0 {
			summary.MeanPerRound = float64(entry.total) / float64(entry.rounds)
		}
		if entry.busiest.Total > 0 {
			summary.BusiestRound = entry.busiest.RoundID
			summary.BusiestTotal = entry.busiest.Total
		}
		result = append(result, summary)
	}
	return result
}

// Overall folds every summary into a single fleet-wide entry.
func Overall(summaries []models.ServerSummary) models.ServerSummary {
	overall := models.ServerSummary{Server: "all"}
	for _, summary := range summaries {
		overall.Rounds += summary.Rounds
		overall.Total += summary.Total
		if summary.BusiestTotal > overall.BusiestTotal {
			overall.BusiestRound = summary.BusiestRound
			overall.BusiestTotal = summary.BusiestTotal
		}
	}
	if overall.Rounds > 0 {
		overall.MeanPerRound = float64(overall.Total) / float64(overall.Rounds)
	}
	return overall
}
