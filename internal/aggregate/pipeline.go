package aggregate

import (
	"fmt"
	"strings"

	"runtimeviewer/internal/models"
)

// Params are the user inputs a view depends on.
type Params struct {
	Server    string    `json:"server"`
	Timeframe Timeframe `json:"timeframe"`
	Search    string    `json:"search"`
	Collate   bool      `json:"collate"`
}

// DefaultParams mirrors the viewer's initial state.
func DefaultParams() Params {
	return Params{
		Server:    AllServers,
		Timeframe: TimeframeWeek,
		Collate:   true,
	}
}

// Normalize fills an empty server with AllServers.
func (p Params) Normalize() Params {
	p.Server = strings.TrimSpace(p.Server)
	if p.Server == "" {
		p.Server = AllServers
	}
	return p
}

func (p Params) cacheKey() string {
	return fmt.Sprintf("%q|%d|%q|%t", p.Server, p.Timeframe, p.Search, p.Collate)
}

// View is the output of one pipeline pass.
type View struct {
	Params Params
	// Rounds are the filtered rounds after search and optional collation.
	Rounds []models.Round
	Table  *Table
	Chart  []models.ChartPoint
	// Collator is nil when collation was disabled.
	Collator *Collator
}

// Run executes filter, search, collation and ranking over rounds.
func Run(rounds []models.Round, params Params, colors map[string]string) *View {
	params = params.Normalize()

	filtered := Filter(rounds, params.Server, params.Timeframe)
	filtered = Search(filtered, params.Search)

	var collator *Collator
	if params.Collate {
		collator = NewCollator()
		filtered = Collate(filtered, collator)
	}

	return &View{
		Params:   params,
		Rounds:   filtered,
		Table:    Rank(filtered),
		Chart:    Series(filtered, colors),
		Collator: collator,
	}
}

// Detail resolves key against the rounds of the view and adds its ranking.
func (v *View) Detail(key string, links Links) RuntimeDetail {
	detail := Detail(key, v.Rounds, links)
	if !detail.Found {
		return detail
	}
	if row, idx, ok := v.Table.Find(key); ok {
		detail.Rank = idx + 1
		detail.TotalCount = row.TotalCount
		detail.RoundCount = row.RoundCount
		representative := row.Runtime
		detail.Representative = &representative
	}
	if v.Collator != nil {
		if representative, ok := v.Collator.Representative(key); ok {
			detail.Representative = &representative
		}
	}
	return detail
}
