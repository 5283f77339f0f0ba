package dataset

import (
	"sort"
	"time"

	"runtimeviewer/internal/models"
)

// Snapshot is the frozen round list of one session, newest round first.
// Callers must treat returned rounds as read-only.
type Snapshot struct {
	rounds   []models.Round
	loadedAt time.Time
	source   string
}

// NewSnapshot freezes rounds received oldest first. The input slice is not
// modified.
func NewSnapshot(rounds []models.Round, source string, loadedAt time.Time) *Snapshot {
	reversed := make([]models.Round, len(rounds))
	for i, round := range rounds {
		reversed[len(rounds)-1-i] = round
	}
	return &Snapshot{rounds: reversed, loadedAt: loadedAt.UTC(), source: source}
}

// Rounds returns the rounds in display order, newest first.
func (s *Snapshot) Rounds() []models.Round {
	if s == nil {
		return nil
	}
	out := make([]models.Round, len(s.rounds))
	copy(out, s.rounds)
	return out
}

// Original returns the rounds in the order they were received.
func (s *Snapshot) Original() []models.Round {
	if s == nil {
		return nil
	}
	out := make([]models.Round, len(s.rounds))
	for i, round := range s.rounds {
		out[len(s.rounds)-1-i] = round
	}
	return out
}

// Len is the number of rounds.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rounds)
}

// Servers lists the distinct server names present, sorted.
func (s *Snapshot) Servers() []string {
	if s == nil {
		return nil
	}
	seen := make(map[string]struct{})
	for _, round := range s.rounds {
		seen[round.Server] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for server := range seen {
		out = append(out, server)
	}
	sort.Strings(out)
	return out
}

// LoadedAt is when the snapshot was published.
func (s *Snapshot) LoadedAt() time.Time {
	return s.loadedAt
}

// Source describes where the rounds were read from.
func (s *Snapshot) Source() string {
	return s.source
}
