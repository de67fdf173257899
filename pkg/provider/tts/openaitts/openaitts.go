// Package openaitts provides a TTS provider backed by the OpenAI speech API.
// It implements the tts.Provider interface.
package openaitts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/vivahq/viva/pkg/provider/tts"
)

const (
	defaultModel = oai.SpeechModelTTS1

	// pcmSampleRate is the sample rate of the OpenAI "pcm" response format.
	pcmSampleRate = 24000
	pcmChannels   = 1

	// maxClipBytes caps the synthesized payload read from the API. Interview
	// prompts are a sentence or two; 10 MiB of PCM is far beyond any of them.
	maxClipBytes = 10 << 20
)

// Provider implements tts.Provider using the OpenAI audio/speech endpoint.
type Provider struct {
	client oai.Client
	model  oai.SpeechModel
}

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	model   string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithModel sets the speech model (e.g., "tts-1", "tts-1-hd").
func WithModel(model string) Option {
	return func(c *config) {
		c.model = model
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI speech Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openaitts: apiKey must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	model := defaultModel
	if cfg.model != "" {
		model = oai.SpeechModel(cfg.model)
	}

	return &Provider{client: oai.NewClient(reqOpts...), model: model}, nil
}

// Synthesize implements tts.Provider. It requests raw PCM output so the clip
// can be re-encoded for whichever transport plays it.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceParams) (*tts.Clip, error) {
	if text == "" {
		return nil, fmt.Errorf("openaitts: text must not be empty")
	}

	params := oai.AudioSpeechNewParams{
		Model:          p.model,
		Input:          text,
		Voice:          oai.AudioSpeechNewParamsVoice(voice.Voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	}
	if voice.Voice == "" {
		params.Voice = oai.AudioSpeechNewParamsVoiceAlloy
	}
	if voice.Speed != 0 {
		params.Speed = oai.Float(voice.Speed)
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openaitts: speech request: %w", err)
	}
	defer resp.Body.Close()

	pcm, err := io.ReadAll(io.LimitReader(resp.Body, maxClipBytes))
	if err != nil {
		return nil, fmt.Errorf("openaitts: read speech body: %w", err)
	}
	if len(pcm) == 0 {
		return nil, fmt.Errorf("openaitts: empty speech response")
	}

	return &tts.Clip{
		PCM:        pcm,
		SampleRate: pcmSampleRate,
		Channels:   pcmChannels,
	}, nil
}

// Name implements tts.Provider.
func (p *Provider) Name() string {
	return "openai"
}
