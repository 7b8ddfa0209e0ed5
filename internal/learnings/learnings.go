// Package learnings assembles the "Prior Learnings" preamble injected into
// every agent prompt within a workflow. It reads an optional free-text
// learnings file plus an optional known-failure-pattern database, and
// folds both into a single bounded-size preamble, mirroring the way
// dev/memory.go turns raw commit history into a small set of ranked
// insights rather than dumping the whole history back into a prompt.
package learnings

import (
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	maxPatterns     = 10
	maxPreambleSize = 2000
	header          = "# Prior Learnings"
	truncationMark  = "...\n"
)

// Pattern is one entry in the known-failure-pattern database, keyed by
// Identifier. Occurrences ranks patterns for the top-N cut; Resolved
// patterns are dropped entirely since they no longer inform future
// attempts.
type Pattern struct {
	Identifier      string `yaml:"identifier"`
	Summary         string `yaml:"summary"`
	OccurrenceCount int    `yaml:"occurrenceCount"`
	Resolved        bool   `yaml:"resolved"`
}

type patternFile struct {
	Patterns []Pattern `yaml:"patterns"`
}

// Loader reads the learnings file and the failure-pattern database from
// fixed paths and renders the combined preamble. Either path may be
// empty or point at a nonexistent/malformed file; both cases degrade to
// "no preamble" rather than blocking workflow startup.
type Loader struct {
	LearningsFilePath string
	PatternsFilePath  string
}

// AsFunc adapts Load to the `func() (string, error)` shape the workflow
// driver expects for its LoadLearnings hook; the error return is always
// nil since Load never fails.
func (l Loader) AsFunc() func() (string, error) {
	return func() (string, error) {
		return l.Load(), nil
	}
}

// Load renders the bounded preamble. It never returns an error: a
// missing or malformed input file is silently treated as empty, per the
// "never block workflow startup on a malformed local artifact" rule.
func (l Loader) Load() string {
	var sections []string

	if text := readLearningsFile(l.LearningsFilePath); text != "" {
		sections = append(sections, text)
	}
	if text := renderPatterns(loadPatterns(l.PatternsFilePath)); text != "" {
		sections = append(sections, text)
	}
	if len(sections) == 0 {
		return ""
	}

	body := header + "\n\n" + strings.Join(sections, "\n\n")
	return truncateKeepTail(body, maxPreambleSize)
}

func readLearningsFile(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func loadPatterns(path string) []Pattern {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var pf patternFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		// Tolerate a bare top-level list as well as the {patterns: [...]} shape.
		var bare []Pattern
		if err2 := yaml.Unmarshal(data, &bare); err2 != nil {
			return nil
		}
		return bare
	}
	return pf.Patterns
}

// renderPatterns drops resolved patterns, sorts the remainder by
// occurrence count descending, keeps at most maxPatterns, and renders
// them as a bullet list.
func renderPatterns(patterns []Pattern) string {
	live := make([]Pattern, 0, len(patterns))
	for _, p := range patterns {
		if !p.Resolved {
			live = append(live, p)
		}
	}
	if len(live) == 0 {
		return ""
	}

	sort.SliceStable(live, func(i, j int) bool {
		return live[i].OccurrenceCount > live[j].OccurrenceCount
	})
	if len(live) > maxPatterns {
		live = live[:maxPatterns]
	}

	var b strings.Builder
	b.WriteString("## Known failure patterns\n")
	for _, p := range live {
		b.WriteString("- ")
		if p.Identifier != "" {
			b.WriteString("[" + p.Identifier + "] ")
		}
		b.WriteString(p.Summary)
		if p.OccurrenceCount > 0 {
			b.WriteString(" (seen ")
			b.WriteString(strconv.Itoa(p.OccurrenceCount))
			b.WriteString("x)")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// truncateKeepTail enforces the size cap by keeping the tail of the
// text (the most recently appended, hence most informative, learnings)
// and prefixing a leading ellipsis marker when truncation occurred.
func truncateKeepTail(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := len(text) - (limit - len(truncationMark))
	if cut < 0 {
		cut = 0
	}
	return truncationMark + text[cut:]
}
