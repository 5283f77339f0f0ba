package runtimes

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"

	"runtimeviewer/internal/models"
)

const stackTraceProc = "/proc/_stack_trace"

var (
	runtimePattern = regexp.MustCompile(`The following runtime has occurred (?P<count>[0-9]+).*\n` +
		`runtime error: (?P<exception>.+)\n` +
		`proc name: (?P<proc>.+?) \((?P<proc_path>.+?)\)\n` +
		`  source file: (?P<source_file>.+?),(?P<line>[0-9]+)`)

	stackTracePattern = regexp.MustCompile(`.+\(((?P<filename>.+?):(?P<line>[0-9]+))\)$`)
)

// Parse extracts runtime batches from the body of a runtime.condensed.txt log.
func Parse(text string) ([]models.RuntimeBatch, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	matches := runtimePattern.FindAllStringSubmatch(text, -1)
	batches := make([]models.RuntimeBatch, 0, len(matches))
	for _, match := range matches {
		batch, err := batchFromMatch(match)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", firstLine(match[0]), err)
		}
		batches = append(batches, batch)
	}
	return batches, nil
}

func batchFromMatch(match []string) (models.RuntimeBatch, error) {
	group := func(name string) string {
		return match[runtimePattern.SubexpIndex(name)]
	}

	count, err := strconv.ParseInt(group("count"), 10, 64)
	if err != nil {
		return models.RuntimeBatch{}, fmt.Errorf("count: %w", err)
	}
	line, err := strconv.Atoi(group("line"))
	if err != nil {
		return models.RuntimeBatch{}, fmt.Errorf("line: %w", err)
	}

	batch := models.RuntimeBatch{
		Count:      count,
		Exception:  group("exception"),
		ProcPath:   group("proc_path"),
		SourceFile: group("source_file"),
		Line:       line,
	}
	if batch.ProcPath == stackTraceProc {
		patchStackTrace(&batch)
	}
	return batch, nil
}

// patchStackTrace recovers the real location of a _stack_trace runtime from
// the "(file:line)" suffix of its message.
func patchStackTrace(batch *models.RuntimeBatch) {
	match := stackTracePattern.FindStringSubmatch(batch.Exception)
	if match == nil {
		return
	}
	line, err := strconv.Atoi(match[stackTracePattern.SubexpIndex("line")])
	if err != nil {
		return
	}
	filename := match[stackTracePattern.SubexpIndex("filename")]

	batch.SourceFile = path.Base(filename)
	batch.BestGuessFilenames = models.Definitely(filename)
	batch.Line = line
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
