package aggregate

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"runtimeviewer/internal/models"
	"runtimeviewer/internal/runtimes"
)

// NotFoundMessage is reported when no runtime in scope matches a key.
const NotFoundMessage = "Couldn't find runtime"

// Links locates the external services referenced by a detail view.
type Links struct {
	CodeHost          string `yaml:"code_host" json:"code_host"`
	ReferenceRevision string `yaml:"reference_revision" json:"reference_revision"`
	RoundService      string `yaml:"round_service" json:"round_service"`
}

// DefaultLinks points at the upstream code host and round inspection service.
func DefaultLinks() Links {
	return Links{
		CodeHost:          "https://github.com/tgstation/tgstation",
		ReferenceRevision: "master",
		RoundService:      "https://scrubby.melonmesa.com",
	}
}

// FileURL links to line of path at revision on the code host.
func (l Links) FileURL(revision, path string, line int) string {
	return fmt.Sprintf("%s/tree/%s/%s#L%d", strings.TrimSuffix(l.CodeHost, "/"), revision, path, line)
}

// RoundURL links to the inspection page of a round.
func (l Links) RoundURL(id models.RoundID) string {
	return fmt.Sprintf("%s/round/%d/source", strings.TrimSuffix(l.RoundService, "/"), id)
}

// RoundOccurrence is the count of one identity within one round.
type RoundOccurrence struct {
	RoundID  models.RoundID `json:"round_id"`
	Server   string         `json:"server"`
	Revision string         `json:"revision"`
	Count    int64          `json:"count"`
	URL      string         `json:"url"`
}

// RuntimeDetail reconstructs every round and source reference of one identity.
type RuntimeDetail struct {
	Key       string            `json:"key"`
	Found     bool              `json:"found"`
	Exception string            `json:"exception"`
	Rounds    []RoundOccurrence `json:"rounds"`
	// Files are resolved against each contributing round's own revision.
	Files []FileLink `json:"files"`
	// ReferenceFiles are resolved against the reference revision.
	ReferenceFiles []FileLink `json:"reference_files"`

	// Set by View.Detail from the ranked table of the view.
	Rank       int   `json:"rank,omitempty"`
	TotalCount int64 `json:"total_count,omitempty"`
	RoundCount int   `json:"round_count,omitempty"`
	// Representative is the first occurrence of the identity in the view.
	Representative *models.RuntimeBatch `json:"representative,omitempty"`
}

// FileLink is a source link with its display label, "<rev6> - path#Lline".
type FileLink struct {
	URL   string `json:"url"`
	Label string `json:"label"`
}

// NewFileLink labels fileURL with its short revision and code file.
func NewFileLink(fileURL string) FileLink {
	label := CodeFile(fileURL)
	if revision := ShortRevision(fileURL); revision != "" {
		label = revision + " - " + label
	}
	return FileLink{URL: fileURL, Label: label}
}

// Detail collects the rounds and candidate source files of key. When a round
// lists the key more than once the last count wins. Rounds are ordered by
// count, descending. A key with no match yields NotFoundMessage and empty
// lists.
func Detail(key string, rounds []models.Round, links Links) RuntimeDetail {
	detail := RuntimeDetail{
		Key:            key,
		Exception:      NotFoundMessage,
		Rounds:         []RoundOccurrence{},
		Files:          []FileLink{},
		ReferenceFiles: []FileLink{},
	}

	positions := make(map[models.RoundID]int)
	files := newOrderedSet()
	referenceFiles := newOrderedSet()

	for _, round := range rounds {
		for _, batch := range round.Runtimes {
			if runtimes.Key(batch) != key {
				continue
			}
			detail.Found = true
			detail.Exception = batch.Exception

			occurrence := RoundOccurrence{
				RoundID:  round.RoundID,
				Server:   round.Server,
				Revision: round.Revision,
				Count:    batch.Count,
				URL:      links.RoundURL(round.RoundID),
			}
			if idx, ok := positions[round.RoundID]; ok {
				detail.Rounds[idx] = occurrence
			} else {
				positions[round.RoundID] = len(detail.Rounds)
				detail.Rounds = append(detail.Rounds, occurrence)
			}

			for _, path := range batch.BestGuessFilenames.Paths() {
				files.add(links.FileURL(round.Revision, path, batch.Line))
				referenceFiles.add(links.FileURL(links.ReferenceRevision, path, batch.Line))
			}
		}
	}

	sort.SliceStable(detail.Rounds, func(i, j int) bool {
		return detail.Rounds[i].Count > detail.Rounds[j].Count
	})
	detail.Files = files.links()
	detail.ReferenceFiles = referenceFiles.links()
	return detail
}

var (
	codeFilePattern = regexp.MustCompile(`/tree/[^/]+/([^#]+)(#L[0-9]+)?$`)
	revisionPattern = regexp.MustCompile(`/tree/([A-Za-z0-9]+)`)
)

// CodeFile extracts "path#Lline" from a file URL built by Links.FileURL, or
// returns the URL unchanged when it has another shape.
func CodeFile(fileURL string) string {
	match := codeFilePattern.FindStringSubmatch(fileURL)
	if match == nil {
		return fileURL
	}
	return match[1] + match[2]
}

// ShortRevision returns the first six characters of the revision in a file URL.
func ShortRevision(fileURL string) string {
	match := revisionPattern.FindStringSubmatch(fileURL)
	if match == nil {
		return ""
	}
	revision := match[1]
	if len(revision) > 6 {
		revision = revision[:6]
	}
	return revision
}

type orderedSet struct {
	seen   map[string]struct{}
	values []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]struct{}), values: []string{}}
}

func (s *orderedSet) add(value string) {
	if _, ok := s.seen[value]; ok {
		return
	}
	s.seen[value] = struct{}{}
	s.values = append(s.values, value)
}

func (s *orderedSet) links() []FileLink {
	out := make([]FileLink, 0, len(s.values))
	for _, value := range s.values {
		out = append(out, NewFileLink(value))
	}
	return out
}
