package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RoundID identifies a single server session.
type RoundID = int

// Round is one recorded server session.
type Round struct {
	RoundID    RoundID        `json:"round_id"`
	Timestamp  Timestamp      `json:"timestamp"`
	Revision   string         `json:"revision"`
	Server     string         `json:"server"`
	Runtimes   []RuntimeBatch `json:"runtimes"`
	TestMerges []TestMerge    `json:"test_merges"`
}

// HasRuntimes reports whether runtime data was collected for the round.
// A nil list means collection failed upstream, which differs from a round
// that simply had no runtimes.
func (r Round) HasRuntimes() bool {
	return r.Runtimes != nil
}

// RuntimeBatch aggregates one exception type at one file/line within a round.
type RuntimeBatch struct {
	Count      int64  `json:"count"`
	Exception  string `json:"exception"`
	ProcPath   string `json:"proc_path"`
	SourceFile string `json:"source_file"`
	Line       int    `json:"line"`

	BestGuessFilenames *BestGuessFilenames `json:"best_guess_filenames,omitempty"`
}

// TestMerge describes a pull request test merged into a round.
type TestMerge struct {
	Details      TestMergeDetails `json:"details"`
	FilesChanged []string         `json:"files_changed"`
}

// TestMergeDetails identifies a test merged pull request.
type TestMergeDetails struct {
	Number uint64 `json:"number"`
	Title  string `json:"title"`
	Author string `json:"author"`
	Commit string `json:"commit"`
}

// UnmarshalJSON accepts the pull request number as a JSON number or a numeric string.
func (d *TestMergeDetails) UnmarshalJSON(data []byte) error {
	var raw struct {
		Number json.RawMessage `json:"number"`
		Title  string          `json:"title"`
		Author string          `json:"author"`
		Commit string          `json:"commit"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	number, err := parseStringOrNumber(raw.Number)
	if err != nil {
		return fmt.Errorf("test merge number: %w", err)
	}
	*d = TestMergeDetails{
		Number: number,
		Title:  raw.Title,
		Author: raw.Author,
		Commit: raw.Commit,
	}
	return nil
}

func parseStringOrNumber(raw json.RawMessage) (uint64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return strconv.ParseUint(strings.TrimSpace(asString), 10, 64)
	}
	var asNumber uint64
	if err := json.Unmarshal(raw, &asNumber); err != nil {
		return 0, fmt.Errorf("expected a string or number, got %s", string(raw))
	}
	return asNumber, nil
}

// Server describes a known server of the fleet.
type Server struct {
	Name  string `yaml:"name" json:"name"`
	Port  int    `yaml:"port" json:"port"`
	Color string `yaml:"color" json:"color"`
}

const timestampLayout = "2006-01-02T15:04:05.999999999"

var timestampLayouts = []string{
	time.RFC3339Nano,
	timestampLayout,
	"2006-01-02 15:04:05.999999999",
}

// Timestamp is a round start time. The dataset stores zone-less ISO
// timestamps; they are read as UTC.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t as a UTC timestamp.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC()}
}

// ParseTimestamp parses an RFC 3339 or zone-less ISO timestamp.
func ParseTimestamp(value string) (Timestamp, error) {
	value = strings.TrimSpace(value)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return NewTimestamp(t), nil
		}
	}
	return Timestamp{}, fmt.Errorf("invalid timestamp %q", value)
}

// MarshalJSON writes the zone-less ISO form used by the dataset.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(timestampLayout))
}

// UnmarshalJSON reads any of the accepted timestamp layouts.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	parsed, err := ParseTimestamp(value)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
