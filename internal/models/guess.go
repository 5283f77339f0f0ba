package models

import (
	"bytes"
	"encoding/json"
)

// GuessKind names the variant held by BestGuessFilenames.
type GuessKind int

const (
	// GuessNone means no usable annotation.
	GuessNone GuessKind = iota
	// GuessDefinitely is a single confident source file match.
	GuessDefinitely
	// GuessPossible is an ambiguous set of candidate files.
	GuessPossible
)

// BestGuessFilenames maps a runtime to the source files likely responsible.
// Exactly one variant is set; construct values with Definitely or Possible.
type BestGuessFilenames struct {
	kind     GuessKind
	definite string
	possible []string
}

// Definitely returns the single-confident-match variant.
func Definitely(path string) *BestGuessFilenames {
	return &BestGuessFilenames{kind: GuessDefinitely, definite: path}
}

// Possible returns the candidate-set variant.
func Possible(paths []string) *BestGuessFilenames {
	copied := make([]string, len(paths))
	copy(copied, paths)
	return &BestGuessFilenames{kind: GuessPossible, possible: copied}
}

// Kind reports the held variant. A nil receiver is GuessNone.
func (g *BestGuessFilenames) Kind() GuessKind {
	if g == nil {
		return GuessNone
	}
	return g.kind
}

// Paths returns every filename carried by the annotation, whatever the variant.
func (g *BestGuessFilenames) Paths() []string {
	switch g.Kind() {
	case GuessDefinitely:
		return []string{g.definite}
	case GuessPossible:
		out := make([]string, len(g.possible))
		copy(out, g.possible)
		return out
	default:
		return nil
	}
}

// MarshalJSON encodes the externally tagged form {"Definitely": ...} or {"Possible": [...]}.
func (g *BestGuessFilenames) MarshalJSON() ([]byte, error) {
	switch g.Kind() {
	case GuessDefinitely:
		return json.Marshal(map[string]string{"Definitely": g.definite})
	case GuessPossible:
		possible := g.possible
		if possible == nil {
			possible = []string{}
		}
		return json.Marshal(map[string][]string{"Possible": possible})
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes either variant. Unrecognised shapes leave the value
// as GuessNone instead of failing, since upstream data quality varies.
func (g *BestGuessFilenames) UnmarshalJSON(data []byte) error {
	*g = BestGuessFilenames{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	if value, ok := raw["Definitely"]; ok {
		var path string
		if err := json.Unmarshal(value, &path); err == nil {
			*g = BestGuessFilenames{kind: GuessDefinitely, definite: path}
		}
		return nil
	}
	if value, ok := raw["Possible"]; ok {
		var paths []string
		if err := json.Unmarshal(value, &paths); err == nil {
			*g = BestGuessFilenames{kind: GuessPossible, possible: paths}
		}
	}
	return nil
}
