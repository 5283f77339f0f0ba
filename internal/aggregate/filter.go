// Package aggregate turns a round snapshot into the filtered, collated and
// ranked views shown by the viewer. Every stage is a pure projection over its
// input and never modifies the rounds it is given.
package aggregate

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"runtimeviewer/internal/models"
)

// AllServers disables the server filter.
const AllServers = "all"

// Timeframe is the recency window in days, measured from the newest round.
type Timeframe int

const (
	TimeframeAll       Timeframe = 0
	TimeframeDay       Timeframe = 1
	TimeframeThreeDays Timeframe = 3
	TimeframeWeek      Timeframe = 7
)

// Timeframes lists the selectable windows, widest first.
var Timeframes = []Timeframe{TimeframeWeek, TimeframeThreeDays, TimeframeDay}

// ParseTimeframe accepts "all" (or empty) and the day counts of Timeframes.
func ParseTimeframe(raw string) (Timeframe, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" || raw == "all" {
		return TimeframeAll, nil
	}
	days, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid timeframe %q", raw)
	}
	tf := Timeframe(days)
	if tf == TimeframeAll {
		return tf, nil
	}
	for _, allowed := range Timeframes {
		if tf == allowed {
			return tf, nil
		}
	}
	return 0, fmt.Errorf("unsupported timeframe %d days", days)
}

func (tf Timeframe) String() string {
	switch tf {
	case TimeframeAll:
		return "all time"
	case TimeframeDay:
		return "last day"
	case TimeframeThreeDays:
		return "last three days"
	case TimeframeWeek:
		return "last week"
	default:
		return fmt.Sprintf("last %d days", int(tf))
	}
}

// Filter keeps rounds played on server (or any server for AllServers) whose
// start lies within timeframe days of the newest round in rounds.
func Filter(rounds []models.Round, server string, timeframe Timeframe) []models.Round {
	out := make([]models.Round, 0, len(rounds))
	latest, ok := MostRecent(rounds)
	if !ok {
		return out
	}

	for _, round := range rounds {
		if server != AllServers && round.Server != server {
			continue
		}
		if timeframe != TimeframeAll && daysBetween(latest, round.Timestamp.Time) > float64(timeframe) {
			continue
		}
		out = append(out, round)
	}
	return out
}

// MostRecent returns the newest round timestamp. It reports false for an
// empty list, where no window can be anchored.
func MostRecent(rounds []models.Round) (time.Time, bool) {
	if len(rounds) == 0 {
		return time.Time{}, false
	}
	latest := rounds[0].Timestamp.Time
	for _, round := range rounds[1:] {
		if round.Timestamp.After(latest) {
			latest = round.Timestamp.Time
		}
	}
	return latest, true
}

func daysBetween(a, b time.Time) float64 {
	return math.Abs(a.Sub(b).Hours() / 24)
}
