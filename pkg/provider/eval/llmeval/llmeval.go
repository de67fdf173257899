// Package llmeval provides an evaluator backed by an LLM through
// github.com/mozilla-ai/any-llm-go, which supports OpenAI, Anthropic, Gemini,
// Ollama, and other providers behind one interface.
//
// The evaluator renders the interview transcript into a scoring prompt,
// requests a JSON-only completion, and parses the verdict. Malformed or
// unparseable model output is reported as an error so the completion handoff
// can fall back to its degraded result.
package llmeval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/vivahq/viva/pkg/provider/eval"
)

// systemPrompt instructs the model to act as a structured interview grader.
const systemPrompt = `You are an experienced technical recruiter grading a scripted screening interview.
Score the candidate from 0 to 10 based only on the answers below.
Respond with a single JSON object and nothing else, using this shape:
{"score": <number>, "summary": "<2-3 sentences>", "strengths": ["..."], "concerns": ["..."]}`

// Provider implements eval.Provider by wrapping an any-llm-go backend.
type Provider struct {
	backend anyllmlib.Provider
	model   string
}

// New creates an evaluator backed by the named LLM provider.
//
// providerName is one of: "openai", "anthropic", "gemini", "ollama".
// model is the specific model to use (e.g., "gpt-4o-mini").
// opts are any-llm-go options (anyllmlib.WithAPIKey, anyllmlib.WithBaseURL);
// without an API key option the backend falls back to its environment
// variable (OPENAI_API_KEY, ANTHROPIC_API_KEY, …).
func New(providerName, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if providerName == "" {
		return nil, fmt.Errorf("llmeval: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("llmeval: model must not be empty")
	}

	backend, err := createBackend(providerName, opts...)
	if err != nil {
		return nil, fmt.Errorf("llmeval: create %q backend: %w", providerName, err)
	}
	return &Provider{backend: backend, model: model}, nil
}

// createBackend creates the underlying any-llm-go provider for the given name.
func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: openai, anthropic, gemini, ollama", providerName)
	}
}

// Evaluate implements eval.Provider.
func (p *Provider) Evaluate(ctx context.Context, req eval.Request) (*eval.Result, error) {
	params := anyllmlib.CompletionParams{
		Model: p.model,
		Messages: []anyllmlib.Message{
			{Role: anyllmlib.RoleSystem, Content: systemPrompt},
			{Role: anyllmlib.RoleUser, Content: renderTranscript(req)},
		},
	}

	resp, err := p.backend.Completion(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("llmeval: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("llmeval: empty choices in response")
	}

	result, err := parseVerdict(resp.Choices[0].Message.ContentString())
	if err != nil {
		return nil, fmt.Errorf("llmeval: parse verdict: %w", err)
	}
	return result, nil
}

// renderTranscript formats the interview transcript for the grading prompt.
func renderTranscript(req eval.Request) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Role: %s\nCandidate: %s\n\n", req.Role, req.CandidateName)
	for i, r := range req.Responses {
		fmt.Fprintf(&sb, "Q%d (%s): %s\nA%d: %s\n", i+1, r.QuestionType, r.Question, i+1, r.Answer)
		if r.FollowUp != "" {
			fmt.Fprintf(&sb, "Follow-up answer: %s\n", r.FollowUp)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// parseVerdict extracts the JSON verdict from model output. Models sometimes
// wrap JSON in markdown fences or add prose around it, so the parser locates
// the outermost object before unmarshalling.
func parseVerdict(content string) (*eval.Result, error) {
	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in output %q", truncate(content, 120))
	}

	var result eval.Result
	if err := json.Unmarshal([]byte(content[start:end+1]), &result); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	// Clamp out-of-range scores rather than rejecting the whole verdict.
	if result.Score < 0 {
		result.Score = 0
	}
	if result.Score > 10 {
		result.Score = 10
	}
	if result.Summary == "" {
		return nil, fmt.Errorf("verdict missing summary")
	}
	return &result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
