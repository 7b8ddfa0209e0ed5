// Package contextmgr keeps one phase's agent-loop message history below
// the model's token ceiling through two mechanisms: per-tool-output
// truncation applied immediately when a tool result is appended, and
// whole-conversation compaction once the estimated token count crosses a
// threshold.
package contextmgr

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/wittyreference/feature-factory/internal/model"
)

// Default truncation caps, one per tool family. Bash and Read keep head and
// tail (errors and summaries live at the edges of build output; the model
// has already named the file it wants, so only the middle of a Read needs
// cutting). Grep and Glob keep only the first N matches/paths.
const (
	DefaultBashCap = 30000
	DefaultReadCap = 40000
	DefaultGrepCap = 20000
	DefaultGlobCap = 200 // paths, not chars

	// DefaultCompactionThresholdTokens triggers compaction once the
	// estimated message-list token count exceeds it.
	DefaultCompactionThresholdTokens = 120000
	// DefaultKeepTurnPairs is the number of most-recent (request, response)
	// pairs compaction preserves verbatim; 8 pairs ⇒ 16 messages.
	DefaultKeepTurnPairs = 8
)

// TruncateToolOutput caps content by the tool family's default rule.
// toolName is matched case-sensitively against the fixed six tool names;
// an unrecognized name is left untouched since it isn't one of the
// truncation-prone families.
func TruncateToolOutput(toolName, content string) string {
	switch toolName {
	case "Bash":
		return headTail(content, DefaultBashCap)
	case "Read":
		return headTail(content, DefaultReadCap)
	case "Grep":
		return firstNChars(content, DefaultGrepCap)
	case "Glob":
		return firstNLines(content, DefaultGlobCap)
	default:
		return content
	}
}

// headTail keeps the first and last half of maxChars verbatim with an
// ellipsis marker between them.
func headTail(s string, maxChars int) string {
	if len(s) <= maxChars {
		return s
	}
	half := maxChars / 2
	return s[:half] + fmt.Sprintf("\n... (truncated %d chars) ...\n", len(s)-maxChars) + s[len(s)-half:]
}

func firstNChars(s string, maxChars int) string {
	if len(s) <= maxChars {
		return s
	}
	return s[:maxChars] + fmt.Sprintf("\n... (truncated, %d chars omitted)", len(s)-maxChars)
}

func firstNLines(s string, maxLines int) string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	if len(lines) <= maxLines {
		return s
	}
	kept := lines[:maxLines]
	out := ""
	for i, l := range kept {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	out += fmt.Sprintf("\n... (truncated to first %d entries, %d omitted)", maxLines, len(lines)-maxLines)
	return out
}

// Estimator counts tokens in text and message lists. It need not be exact;
// the contract is only that after compaction the estimate is ≤ threshold.
type Estimator interface {
	Count(text string) int
	CountMessages(msgs []model.Message) int
}

// tiktokenEstimator is the accurate estimator, backed by cl100k_base via
// tiktoken-go. Grounded on pkg/utils/tokens.go's TokenCounter.
type tiktokenEstimator struct {
	mu       sync.RWMutex
	encoding *tiktoken.Tiktoken
}

// NewTiktokenEstimator builds an Estimator using the cl100k_base encoding,
// which approximates every major chat model closely enough for a budget
// check that doesn't need to be exact.
func NewTiktokenEstimator() (Estimator, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("contextmgr: load tokenizer encoding: %w", err)
	}
	return &tiktokenEstimator{encoding: enc}, nil
}

func (e *tiktokenEstimator) Count(text string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.encoding.Encode(text, nil, nil))
}

func (e *tiktokenEstimator) CountMessages(msgs []model.Message) int {
	const perMessageOverhead = 3
	total := 0
	for _, m := range msgs {
		total += perMessageOverhead
		total += e.Count(m.Text)
		for _, b := range m.Blocks {
			total += e.Count(b.Text) + e.Count(b.Result) + len(b.Input)/4
		}
	}
	return total
}

// HeuristicEstimator is the conservative character/4 fallback, for callers
// that don't want to load a real tokenizer (tests, or a minimal build
// without the tiktoken-go vocabulary files available).
type HeuristicEstimator struct{}

func (HeuristicEstimator) Count(text string) int { return (len(text) + 3) / 4 }

func (h HeuristicEstimator) CountMessages(msgs []model.Message) int {
	total := 0
	for _, m := range msgs {
		total += 3 + h.Count(m.Text)
		for _, b := range m.Blocks {
			total += h.Count(b.Text) + h.Count(b.Result) + len(b.Input)/4
		}
	}
	return total
}

// Config controls a Manager.
type Config struct {
	Estimator           Estimator
	CompactionThreshold int
	KeepTurnPairs       int
	SystemPrompt        string
}

// Manager applies truncation as tool results are appended and compacts the
// conversation once it estimates the message list has grown past the
// configured threshold.
type Manager struct {
	estimator    Estimator
	threshold    int
	keepPairs    int
	systemPrompt string
}

// NewManager builds a Manager. Zero-value threshold/keepPairs fall back to
// the package defaults.
func NewManager(cfg Config) *Manager {
	threshold := cfg.CompactionThreshold
	if threshold <= 0 {
		threshold = DefaultCompactionThresholdTokens
	}
	keep := cfg.KeepTurnPairs
	if keep <= 0 {
		keep = DefaultKeepTurnPairs
	}
	est := cfg.Estimator
	if est == nil {
		est = HeuristicEstimator{}
	}
	return &Manager{estimator: est, threshold: threshold, keepPairs: keep, systemPrompt: cfg.SystemPrompt}
}

// EstimateTokens returns the Manager's token estimate for msgs.
func (m *Manager) EstimateTokens(msgs []model.Message) int {
	return m.estimator.CountMessages(msgs)
}

// MaybeCompact compacts msgs if the estimate exceeds the threshold,
// otherwise returns msgs unchanged. Compaction keeps the most recent
// keepPairs*2 messages verbatim and replaces everything before them,
// message 0 included, with one summary message. The persona system prompt
// is not part of msgs (it travels in llm.Request.SystemPrompt), so
// compaction never touches it.
func (m *Manager) MaybeCompact(msgs []model.Message) []model.Message {
	if m.EstimateTokens(msgs) <= m.threshold {
		return msgs
	}
	keepCount := m.keepPairs * 2
	if keepCount >= len(msgs) {
		return msgs
	}
	head := msgs[:len(msgs)-keepCount]
	tail := msgs[len(msgs)-keepCount:]

	summary := summarize(head)
	out := make([]model.Message, 0, len(tail)+1)
	out = append(out, model.Message{Role: model.RoleUser, Text: summary})
	out = append(out, tail...)
	return out
}

// summarize produces a compact digest of the compacted turns, which
// MaybeCompact inserts as a user-role message (model.Role has no system
// role): counts per role and a short excerpt of the most recent
// discarded turn, enough for the model to know history was elided without
// carrying the elided content's token weight.
func summarize(msgs []model.Message) string {
	if len(msgs) == 0 {
		return "[earlier conversation summary: no prior turns]"
	}
	var userTurns, assistantTurns, toolResults int
	for _, m := range msgs {
		switch m.Role {
		case model.RoleUser:
			userTurns++
		case model.RoleAssistant:
			assistantTurns++
		case model.RoleToolResult:
			toolResults++
		}
	}
	last := msgs[len(msgs)-1]
	excerpt := last.Text
	if len(excerpt) > 400 {
		excerpt = excerpt[:400] + "..."
	}
	return fmt.Sprintf(
		"[earlier conversation summary: %d user turns, %d assistant turns, %d tool results elided; most recent elided turn: %q]",
		userTurns, assistantTurns, toolResults, excerpt,
	)
}
