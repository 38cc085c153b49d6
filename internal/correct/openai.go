package correct

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
)

const (
	defaultTemperature = 0.2
	// defaultMaxTokens caps completion length; callers must not assume
	// unbounded output.
	defaultMaxTokens = 500
)

const systemPrompt = `You are a transcription cleanup assistant.

Your task: rewrite the raw voice transcript below with corrected grammar, punctuation, spelling, and capitalisation.

Rules:
- Preserve the original meaning and tone of the speaker.
- Do NOT add new content, summaries, or commentary.
- Do NOT answer questions that appear in the transcript; only clean the text.
- Respond with ONLY the corrected transcript text, no markdown and no prose around it.`

const hintsPreamble = `The speaker maintains a personal dictionary. When a word on the left appears in the transcript (in any casing), spell it as the word on the right:`

// OpenAIOption is a functional option for configuring an OpenAICorrector.
type OpenAIOption func(*openAIConfig)

type openAIConfig struct {
	baseURL     string
	timeout     time.Duration
	temperature float64
	maxTokens   int
}

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) OpenAIOption {
	return func(c *openAIConfig) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) OpenAIOption {
	return func(c *openAIConfig) {
		c.timeout = d
	}
}

// WithTemperature overrides the sampling temperature. Lower values keep
// corrections close to the source text. Default: 0.2.
func WithTemperature(temp float64) OpenAIOption {
	return func(c *openAIConfig) {
		c.temperature = temp
	}
}

// WithMaxTokens overrides the completion token ceiling. Default: 500.
func WithMaxTokens(n int) OpenAIOption {
	return func(c *openAIConfig) {
		c.maxTokens = n
	}
}

// OpenAICorrector implements Corrector using OpenAI chat completions.
type OpenAICorrector struct {
	client      oai.Client
	model       string
	temperature float64
	maxTokens   int
}

var _ Corrector = (*OpenAICorrector)(nil)

// NewOpenAICorrector constructs a corrector for the given API key and model.
func NewOpenAICorrector(apiKey, model string, opts ...OpenAIOption) (*OpenAICorrector, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("correct: api key must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("correct: model must not be empty")
	}

	cfg := &openAIConfig{
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
	}
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

	client := oai.NewClient(reqOpts...)
	return &OpenAICorrector{
		client:      client,
		model:       model,
		temperature: cfg.temperature,
		maxTokens:   cfg.maxTokens,
	}, nil
}

// Correct sends the transcript and hint instructions to the model and returns
// the cleaned text. Each call is independent; re-correcting the same input
// replaces rather than accumulates output.
func (c *OpenAICorrector) Correct(ctx context.Context, text string, hints []Hint) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty transcript", ErrCorrection)
	}

	params := oai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(buildSystemPrompt(hints)),
			oai.UserMessage(text),
		},
		Temperature:         param.NewOpt(c.temperature),
		MaxCompletionTokens: param.NewOpt(int64(c.maxTokens)),
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorrection, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choices in response", ErrCorrection)
	}

	corrected := strings.TrimSpace(resp.Choices[0].Message.Content)
	if corrected == "" {
		return "", fmt.Errorf("%w: empty completion", ErrCorrection)
	}
	return corrected, nil
}

// buildSystemPrompt renders the dictionary hints into the system prompt as
// explicit spelling instructions. Without hints the base prompt is returned
// unchanged.
func buildSystemPrompt(hints []Hint) string {
	if len(hints) == 0 {
		return systemPrompt
	}

	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\n")
	b.WriteString(hintsPreamble)
	for _, h := range hints {
		word := strings.TrimSpace(h.Word)
		spelling := strings.TrimSpace(h.CorrectSpelling)
		if word == "" || spelling == "" {
			continue
		}
		fmt.Fprintf(&b, "\n- %q must be written as %q", word, spelling)
	}
	return b.String()
}
