// Package script builds the fixed question sequence for an interview.
//
// The script is immutable for the lifetime of a session: an opening greeting,
// the role's technical questions, the role's behavioral questions, and a
// closing statement, in that order. The engine walks it front to back and
// never revisits a prompt.
package script

import (
	"fmt"
	"strings"
	"time"
)

// PromptType classifies a scripted prompt.
type PromptType string

const (
	// TypeOpening is the greeting; it asks the candidate for a brief
	// introduction.
	TypeOpening PromptType = "opening"

	// TypeTechnical is a technical question.
	TypeTechnical PromptType = "technical"

	// TypeBehavioral is a behavioral question.
	TypeBehavioral PromptType = "behavioral"

	// TypeClosing is the sign-off; it expects no response.
	TypeClosing PromptType = "closing"
)

// Prompt is one scripted utterance.
type Prompt struct {
	Type PromptType
	Text string

	// ExpectsResponse reports whether the engine should open a response
	// window after speaking this prompt.
	ExpectsResponse bool

	// ResponseWaitBudget caps the total response window. Zero when
	// ExpectsResponse is false.
	ResponseWaitBudget time.Duration
}

// Role is the input to [Build].
type Role struct {
	Name       string
	Technical  []string
	Behavioral []string

	// TechnicalWaitBudget and BehavioralWaitBudget cap the response windows
	// for the respective question types.
	TechnicalWaitBudget  time.Duration
	BehavioralWaitBudget time.Duration
}

// Script is an ordered, immutable prompt sequence.
type Script struct {
	role    string
	prompts []Prompt
}

// Build assembles the script for one candidate and role.
func Build(candidateName string, role Role) (*Script, error) {
	if len(role.Technical)+len(role.Behavioral) == 0 {
		return nil, fmt.Errorf("script: role %q has no questions", role.Name)
	}

	prompts := make([]Prompt, 0, len(role.Technical)+len(role.Behavioral)+2)
	// The opening asks for an introduction; it shares the behavioral budget.
	prompts = append(prompts, Prompt{
		Type:               TypeOpening,
		Text:               openingText(candidateName, role.Name),
		ExpectsResponse:    true,
		ResponseWaitBudget: role.BehavioralWaitBudget,
	})
	for _, q := range role.Technical {
		prompts = append(prompts, Prompt{
			Type:               TypeTechnical,
			Text:               q,
			ExpectsResponse:    true,
			ResponseWaitBudget: role.TechnicalWaitBudget,
		})
	}
	for _, q := range role.Behavioral {
		prompts = append(prompts, Prompt{
			Type:               TypeBehavioral,
			Text:               q,
			ExpectsResponse:    true,
			ResponseWaitBudget: role.BehavioralWaitBudget,
		})
	}
	prompts = append(prompts, Prompt{
		Type: TypeClosing,
		Text: closingText(candidateName),
	})

	return &Script{role: role.Name, prompts: prompts}, nil
}

// Role returns the role name the script was built for.
func (s *Script) Role() string {
	return s.role
}

// Len returns the number of prompts, including opening and closing.
func (s *Script) Len() int {
	return len(s.prompts)
}

// Prompt returns the prompt at index i.
func (s *Script) Prompt(i int) (Prompt, bool) {
	if i < 0 || i >= len(s.prompts) {
		return Prompt{}, false
	}
	return s.prompts[i], true
}

// ExpectedResponses returns how many prompts open a response window.
func (s *Script) ExpectedResponses() int {
	n := 0
	for _, p := range s.prompts {
		if p.ExpectsResponse {
			n++
		}
	}
	return n
}

// Texts returns every prompt text in order. Used to pre-warm the voice cache.
func (s *Script) Texts() []string {
	out := make([]string, len(s.prompts))
	for i, p := range s.prompts {
		out[i] = p.Text
	}
	return out
}

func openingText(candidateName, roleName string) string {
	name := strings.TrimSpace(candidateName)
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf(
		"Hello %s, and welcome. This is an automated screening interview for the %s position. "+
			"I will ask you a series of questions; take your time with each answer, and when "+
			"you are done, simply pause and I will move on. "+
			"To warm up, could you briefly introduce yourself?",
		name, strings.ReplaceAll(roleName, "-", " "),
	)
}

func closingText(candidateName string) string {
	name := strings.TrimSpace(candidateName)
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf(
		"That was the last question. Thank you for your time today, %s. "+
			"Our team will review your interview and get back to you soon. Goodbye.",
		name,
	)
}
