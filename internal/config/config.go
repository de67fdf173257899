// Package config defines the service configuration and its YAML loader.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config is the root configuration for the interview service.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Transports TransportsConfig `yaml:"transports"`
	Storage    StorageConfig    `yaml:"storage"`
	Interview  InterviewConfig  `yaml:"interview"`
	Roles      []RoleConfig     `yaml:"roles"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	// ListenAddr is the address the HTTP server binds to, e.g. ":8080".
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `yaml:"log_level"`
}

// ProviderEntry names one external provider plus its credentials.
type ProviderEntry struct {
	// Provider is the vendor identifier, e.g. "openai", "anthropic".
	Provider string `yaml:"provider"`

	// Model is the vendor-specific model or voice model identifier.
	Model string `yaml:"model"`

	// APIKey authenticates against the vendor.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the vendor's default endpoint. Optional.
	BaseURL string `yaml:"base_url"`

	// Voice selects the synthesis voice for TTS providers. Optional.
	Voice string `yaml:"voice"`
}

// ProvidersConfig wires the AI providers.
type ProvidersConfig struct {
	// TTS is the primary speech synthesis provider.
	TTS ProviderEntry `yaml:"tts"`

	// TTSFallbacks are tried in order when the primary synthesis fails.
	TTSFallbacks []ProviderEntry `yaml:"tts_fallbacks"`

	// Evaluator is the LLM used for post-interview scoring.
	Evaluator ProviderEntry `yaml:"evaluator"`
}

// TransportsConfig configures the candidate-facing transports. Only the
// sections relevant to the selected transport mode need to be present.
type TransportsConfig struct {
	Embedded EmbeddedConfig `yaml:"embedded"`
	CloudBot CloudBotConfig `yaml:"cloud_bot"`
	Headless HeadlessConfig `yaml:"headless"`
}

// EmbeddedConfig configures the in-process room server client.
type EmbeddedConfig struct {
	// RoomServerURL is the WebSocket endpoint of the room server.
	RoomServerURL string `yaml:"room_server_url"`
}

// CloudBotConfig configures the cloud recording-bot vendor.
type CloudBotConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`

	// Transcription enables the vendor's live transcription stream. Without
	// it the cloud bot cannot drive an interview.
	Transcription bool `yaml:"transcription"`
}

// HeadlessConfig configures the self-hosted headless-browser bot controller.
type HeadlessConfig struct {
	// ControlURL is the controller's WebSocket endpoint.
	ControlURL string `yaml:"control_url"`
}

// BotCredentialsConfigured reports whether any external meeting-bot backend
// has credentials present.
func (t TransportsConfig) BotCredentialsConfigured() bool {
	return t.CloudBot.APIKey != "" || t.Headless.ControlURL != ""
}

// CloudTranscriptionConfigured reports whether the cloud bot can deliver live
// transcripts.
func (t TransportsConfig) CloudTranscriptionConfigured() bool {
	return t.CloudBot.APIKey != "" && t.CloudBot.Transcription
}

// StorageConfig configures persistence.
type StorageConfig struct {
	// PostgresDSN is the connection string for the Postgres store. When empty
	// the service runs on in-memory stores and loses state on restart.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// FollowUpConfig tunes the heuristic that decides when an answer deserves a
// follow-up probe.
type FollowUpConfig struct {
	// MinWords is the word count under which an answer counts as thin.
	MinWords int `yaml:"min_words"`

	// EchoThreshold is the Jaro-Winkler similarity above which an answer is
	// treated as an echo of the question. Range (0, 1].
	EchoThreshold float64 `yaml:"echo_threshold"`
}

// InterviewConfig tunes the turn engine and session lifecycle.
type InterviewConfig struct {
	// QuietPeriod is how long the candidate must stay silent after speaking
	// before the answer is considered complete.
	QuietPeriod time.Duration `yaml:"quiet_period"`

	// JoinTimeout bounds how long a session waits for the candidate to join.
	JoinTimeout time.Duration `yaml:"join_timeout"`

	// InterQuestionPause is the breathing room between an acknowledgment and
	// the next question.
	InterQuestionPause time.Duration `yaml:"inter_question_pause"`

	// TechnicalWaitBudget caps the total response window for a technical
	// question.
	TechnicalWaitBudget time.Duration `yaml:"technical_wait_budget"`

	// BehavioralWaitBudget caps the total response window for a behavioral
	// question.
	BehavioralWaitBudget time.Duration `yaml:"behavioral_wait_budget"`

	// MaxSessionAge is the age beyond which a stalled session is reaped.
	MaxSessionAge time.Duration `yaml:"max_session_age"`

	// ReapInterval is how often the reaper sweeps for stalled sessions.
	ReapInterval time.Duration `yaml:"reap_interval"`

	// SpeakerLabel is the diarization label under which the interviewer's own
	// audio comes back from transports. Fragments with this label are ignored.
	SpeakerLabel string `yaml:"speaker_label"`

	FollowUp FollowUpConfig `yaml:"follow_up"`
}

// RoleConfig describes one interviewable role and its scripted questions.
type RoleConfig struct {
	// Name identifies the role, e.g. "backend-engineer".
	Name string `yaml:"name"`

	// Technical questions, asked in order after the opening.
	Technical []string `yaml:"technical"`

	// Behavioral questions, asked in order after the technical block.
	Behavioral []string `yaml:"behavioral"`
}

// ─── defaults & validation ────────────────────────────────────────────────────

// Default returns a Config with conservative defaults. Loaded files override
// individual fields.
func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   "info",
		},
		Interview: InterviewConfig{
			QuietPeriod:          5 * time.Second,
			JoinTimeout:          3 * time.Minute,
			InterQuestionPause:   time.Second,
			TechnicalWaitBudget:  4 * time.Minute,
			BehavioralWaitBudget: 3 * time.Minute,
			MaxSessionAge:        45 * time.Minute,
			ReapInterval:         time.Minute,
			SpeakerLabel:         "interviewer",
			FollowUp: FollowUpConfig{
				MinWords:      12,
				EchoThreshold: 0.88,
			},
		},
	}
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks the configuration and returns all problems joined into a
// single error.
func (c Config) Validate() error {
	var errs []error

	if c.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr must not be empty"))
	}
	if !validLogLevels[c.Server.LogLevel] {
		errs = append(errs, fmt.Errorf("server.log_level %q is not one of debug, info, warn, error", c.Server.LogLevel))
	}

	if c.Providers.TTS.Provider == "" {
		errs = append(errs, errors.New("providers.tts.provider must not be empty"))
	}
	if c.Providers.Evaluator.Provider == "" {
		errs = append(errs, errors.New("providers.evaluator.provider must not be empty"))
	}
	for i, fb := range c.Providers.TTSFallbacks {
		if fb.Provider == "" {
			errs = append(errs, fmt.Errorf("providers.tts_fallbacks[%d].provider must not be empty", i))
		}
	}

	if !c.Transports.BotCredentialsConfigured() && c.Transports.Embedded.RoomServerURL == "" {
		errs = append(errs, errors.New("transports: embedded.room_server_url is required when no bot backend is configured"))
	}

	if c.Interview.QuietPeriod <= 0 {
		errs = append(errs, errors.New("interview.quiet_period must be positive"))
	}
	if c.Interview.JoinTimeout <= 0 {
		errs = append(errs, errors.New("interview.join_timeout must be positive"))
	}
	if c.Interview.TechnicalWaitBudget <= c.Interview.QuietPeriod {
		errs = append(errs, errors.New("interview.technical_wait_budget must exceed the quiet period"))
	}
	if c.Interview.BehavioralWaitBudget <= c.Interview.QuietPeriod {
		errs = append(errs, errors.New("interview.behavioral_wait_budget must exceed the quiet period"))
	}
	if c.Interview.MaxSessionAge <= 0 {
		errs = append(errs, errors.New("interview.max_session_age must be positive"))
	}
	// The reaper must never out-age a session that is legitimately waiting:
	// the engine sits silent for up to the join timeout, and a follow-up can
	// hold a question open for two full wait budgets.
	if c.Interview.MaxSessionAge <= c.Interview.JoinTimeout {
		errs = append(errs, errors.New("interview.max_session_age must exceed join_timeout"))
	}
	if c.Interview.MaxSessionAge <= 2*c.Interview.TechnicalWaitBudget {
		errs = append(errs, errors.New("interview.max_session_age must exceed twice technical_wait_budget"))
	}
	if c.Interview.MaxSessionAge <= 2*c.Interview.BehavioralWaitBudget {
		errs = append(errs, errors.New("interview.max_session_age must exceed twice behavioral_wait_budget"))
	}
	if c.Interview.ReapInterval <= 0 {
		errs = append(errs, errors.New("interview.reap_interval must be positive"))
	}
	if c.Interview.SpeakerLabel == "" {
		errs = append(errs, errors.New("interview.speaker_label must not be empty"))
	}
	if c.Interview.FollowUp.MinWords < 0 {
		errs = append(errs, errors.New("interview.follow_up.min_words must not be negative"))
	}
	if th := c.Interview.FollowUp.EchoThreshold; th <= 0 || th > 1 {
		errs = append(errs, errors.New("interview.follow_up.echo_threshold must be in (0, 1]"))
	}

	if len(c.Roles) == 0 {
		errs = append(errs, errors.New("roles: at least one role must be configured"))
	}
	seen := make(map[string]bool, len(c.Roles))
	for i, r := range c.Roles {
		if r.Name == "" {
			errs = append(errs, fmt.Errorf("roles[%d].name must not be empty", i))
			continue
		}
		if seen[r.Name] {
			errs = append(errs, fmt.Errorf("roles[%d]: duplicate role %q", i, r.Name))
		}
		seen[r.Name] = true
		if len(r.Technical)+len(r.Behavioral) == 0 {
			errs = append(errs, fmt.Errorf("roles[%d] (%s): needs at least one question", i, r.Name))
		}
	}

	return errors.Join(errs...)
}

// Role returns the role configuration by name.
func (c Config) Role(name string) (RoleConfig, bool) {
	for _, r := range c.Roles {
		if r.Name == name {
			return r, true
		}
	}
	return RoleConfig{}, false
}
