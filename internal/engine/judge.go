// Package engine drives one interview conversation from candidate join to
// completion handoff.
package engine

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/vivahq/viva/internal/script"
	"github.com/vivahq/viva/internal/session"
)

// FollowUpJudge decides whether an answer deserves one follow-up probe and
// what that probe should say.
type FollowUpJudge interface {
	// Probe returns the follow-up text for the given question and answer, or
	// "" when no follow-up is warranted.
	Probe(prompt script.Prompt, answer string) string
}

// HeuristicJudge flags answers that are too thin to evaluate: too few words,
// or a near-echo of the question itself. Deliberately cheap; it runs inside
// the live turn loop where an LLM round-trip would eat the candidate's time.
type HeuristicJudge struct {
	// MinWords is the word count under which an answer counts as thin.
	MinWords int

	// EchoThreshold is the Jaro-Winkler similarity above which the answer is
	// treated as a repetition of the question.
	EchoThreshold float64
}

var _ FollowUpJudge = HeuristicJudge{}

// Probe implements [FollowUpJudge]. An empty or sentinel answer gets no
// follow-up; the candidate already had their silence window.
func (j HeuristicJudge) Probe(prompt script.Prompt, answer string) string {
	trimmed := strings.TrimSpace(answer)
	if trimmed == "" || trimmed == session.NoResponseSentinel {
		return ""
	}

	if len(strings.Fields(trimmed)) < j.MinWords {
		return "Could you expand on that a little? Feel free to walk me through your thinking."
	}

	sim := matchr.JaroWinkler(normalize(trimmed), normalize(prompt.Text), false)
	if sim >= j.EchoThreshold {
		return "That sounds close to the question itself. Could you give me your own take, " +
			"perhaps with a concrete example?"
	}
	return ""
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
