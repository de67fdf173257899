package engine

import (
	"testing"

	"github.com/vivahq/viva/internal/script"
	"github.com/vivahq/viva/internal/session"
)

func TestHeuristicJudge(t *testing.T) {
	t.Parallel()

	judge := HeuristicJudge{MinWords: 8, EchoThreshold: 0.9}
	prompt := script.Prompt{
		Type: script.TypeTechnical,
		Text: "How would you design a rate limiter for a public API?",
	}

	tests := []struct {
		name      string
		answer    string
		wantProbe bool
	}{
		{
			name:      "substantive answer passes",
			answer:    "I would use a token bucket per client key, backed by Redis, with burst allowance tuned per plan tier.",
			wantProbe: false,
		},
		{
			name:      "thin answer probed",
			answer:    "Token bucket.",
			wantProbe: true,
		},
		{
			name:      "echo of the question probed",
			answer:    "How would you design a rate limiter for a public API",
			wantProbe: true,
		},
		{
			name:      "empty answer never probed",
			answer:    "",
			wantProbe: false,
		},
		{
			name:      "no-response sentinel never probed",
			answer:    session.NoResponseSentinel,
			wantProbe: false,
		},
		{
			name:      "whitespace only never probed",
			answer:    "   \n\t ",
			wantProbe: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			probe := judge.Probe(prompt, tt.answer)
			if got := probe != ""; got != tt.wantProbe {
				t.Fatalf("Probe(%q) = %q, wantProbe=%v", tt.answer, probe, tt.wantProbe)
			}
		})
	}
}

func TestHeuristicJudgeCaseInsensitiveEcho(t *testing.T) {
	t.Parallel()

	judge := HeuristicJudge{MinWords: 3, EchoThreshold: 0.9}
	prompt := script.Prompt{Text: "Explain eventual consistency to a junior engineer."}

	if probe := judge.Probe(prompt, "EXPLAIN   eventual Consistency to a JUNIOR engineer."); probe == "" {
		t.Error("case and whitespace differences should not defeat echo detection")
	}
}
