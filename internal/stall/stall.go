// Package stall tracks one agent-phase's tool-call sequence and classifies
// it as repeating, oscillating, idling, or progressing normally, emitting
// intervention nudges and eventually a hard stop when an agent loop isn't
// making progress.
package stall

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Classification is the result of inspecting the most recent call history.
type Classification string

const (
	Normal      Classification = "normal"
	Repetition  Classification = "repetition"
	Oscillation Classification = "oscillation"
	Idle        Classification = "idle"
)

// Defaults for the classifier thresholds.
const (
	DefaultRepetitionThreshold = 3
	DefaultOscillationWindow   = 6
	DefaultIdleTurns           = 15
	DefaultMaxInterventions    = 2
)

// record is one (toolName, inputHash) observation.
type record struct {
	tool string
	hash string
	// isStateChanging marks Write/Edit/Bash calls, the only ones that reset
	// the idle counter.
	isStateChanging bool
}

// Tracker is one agent-phase's stall detector. Not safe for concurrent use;
// the agent loop that owns it is single-threaded by construction.
type Tracker struct {
	repetitionThreshold int
	oscillationWindow   int
	idleTurns           int
	maxInterventions    int

	history          []record
	turnsSinceChange int
	interventions    int
	disabled         bool
}

// Config controls a Tracker's thresholds. Zero values fall back to the
// package defaults.
type Config struct {
	RepetitionThreshold int
	OscillationWindow   int
	IdleTurns           int
	MaxInterventions    int
	Disabled            bool
}

// NewTracker builds a Tracker.
func NewTracker(cfg Config) *Tracker {
	t := &Tracker{
		repetitionThreshold: cfg.RepetitionThreshold,
		oscillationWindow:   cfg.OscillationWindow,
		idleTurns:           cfg.IdleTurns,
		maxInterventions:    cfg.MaxInterventions,
		disabled:            cfg.Disabled,
	}
	if t.repetitionThreshold <= 0 {
		t.repetitionThreshold = DefaultRepetitionThreshold
	}
	if t.oscillationWindow <= 0 {
		t.oscillationWindow = DefaultOscillationWindow
	}
	if t.idleTurns <= 0 {
		t.idleTurns = DefaultIdleTurns
	}
	if t.maxInterventions <= 0 {
		t.maxInterventions = DefaultMaxInterventions
	}
	return t
}

// HashInput produces the stable serialization Tracker uses to compare tool
// inputs. Callers pass the raw JSON bytes of the tool call's input.
func HashInput(input []byte) string {
	sum := sha256.Sum256(input)
	return hex.EncodeToString(sum[:])
}

var stateChangingTools = map[string]bool{"Write": true, "Edit": true, "Bash": true}

// Observe records one tool call and returns its classification.
func (t *Tracker) Observe(toolName string, inputHash string) Classification {
	rec := record{tool: toolName, hash: inputHash, isStateChanging: stateChangingTools[toolName]}
	t.history = append(t.history, rec)

	if rec.isStateChanging {
		t.turnsSinceChange = 0
	} else {
		t.turnsSinceChange++
	}

	if t.disabled {
		return Normal
	}

	if t.isRepetition() {
		return Repetition
	}
	if t.isOscillation() {
		return Oscillation
	}
	if t.turnsSinceChange >= t.idleTurns {
		return Idle
	}
	return Normal
}

func (t *Tracker) isRepetition() bool {
	n := t.repetitionThreshold
	if len(t.history) < n {
		return false
	}
	last := t.history[len(t.history)-1]
	for i := len(t.history) - n; i < len(t.history)-1; i++ {
		if t.history[i].tool != last.tool || t.history[i].hash != last.hash {
			return false
		}
	}
	return true
}

// isOscillation looks for an A-B-A-B alternation in the last
// oscillationWindow records: two distinct (tool, hash) pairs alternating.
func (t *Tracker) isOscillation() bool {
	w := t.oscillationWindow
	if len(t.history) < w {
		return false
	}
	window := t.history[len(t.history)-w:]
	a, b := window[0], window[1]
	if a.tool == b.tool && a.hash == b.hash {
		return false // not two distinct calls
	}
	for i, rec := range window {
		want := a
		if i%2 == 1 {
			want = b
		}
		if rec.tool != want.tool || rec.hash != want.hash {
			return false
		}
	}
	return true
}

// Intervene is called by the agent loop on a non-normal classification. It
// returns the nudge message to inject as a user turn, and whether the
// phase must now hard-stop because the intervention budget is exhausted.
func (t *Tracker) Intervene(class Classification) (message string, hardStop bool) {
	t.interventions++
	if t.interventions > t.maxInterventions {
		return "", true
	}
	return nudgeFor(class), false
}

func nudgeFor(class Classification) string {
	switch class {
	case Repetition:
		return "You have called the same tool with the same input several times in a row. Change your approach, or summarize your findings and continue to the next step."
	case Oscillation:
		return "You appear to be alternating between two actions without making progress. Pick one path forward and commit to it."
	case Idle:
		return "You haven't made any file or command changes in a while. If you still need more information, gather it efficiently; otherwise start making the required changes."
	default:
		return ""
	}
}

// Interventions reports how many interventions have been issued so far.
func (t *Tracker) Interventions() int { return t.interventions }

// StalledError is returned by the agent loop when the tracker hard-stops.
type StalledError struct {
	Classification Classification
}

func (e *StalledError) Error() string {
	return fmt.Sprintf("STALLED: exceeded maximum interventions after repeated %s classification", e.Classification)
}
