package models

// ChartPoint is a single bar of the per-round runtime chart.
type ChartPoint struct {
	RoundID RoundID `json:"round_id"`
	Server  string  `json:"server"`
	Total   int64   `json:"total"`
	Color   string  `json:"color"`
}

// ServerSummary aggregates chart points for a single server.
type ServerSummary struct {
	Server       string  `json:"server"`
	Color        string  `json:"color"`
	Rounds       int     `json:"rounds"`
	Total        int64   `json:"total"`
	MeanPerRound float64 `json:"mean_per_round"`
	BusiestRound RoundID `json:"busiest_round,omitempty"`
	BusiestTotal int64   `json:"busiest_total,omitempty"`
}
