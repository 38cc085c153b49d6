package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
)

const defaultTranscribeModel = "whisper-1"

// OpenAIOption is a functional option for configuring an OpenAITranscriber.
type OpenAIOption func(*openAIConfig)

type openAIConfig struct {
	model   string
	baseURL string
	timeout time.Duration
}

// WithModel overrides the default transcription model ("whisper-1").
func WithModel(model string) OpenAIOption {
	return func(c *openAIConfig) {
		c.model = model
	}
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

// OpenAITranscriber implements Transcriber against the OpenAI audio
// transcription endpoint (Whisper family models).
type OpenAITranscriber struct {
	client oai.Client
	model  string
}

var _ Transcriber = (*OpenAITranscriber)(nil)

// NewOpenAITranscriber constructs a transcriber for the given API key.
func NewOpenAITranscriber(apiKey string, opts ...OpenAIOption) (*OpenAITranscriber, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("transcribe: api key must not be empty")
	}

	cfg := &openAIConfig{model: defaultTranscribeModel}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.model == "" {
		cfg.model = defaultTranscribeModel
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
	return &OpenAITranscriber{client: client, model: cfg.model}, nil
}

// Transcribe uploads the audio artifact and returns the transcript text.
func (t *OpenAITranscriber) Transcribe(ctx context.Context, req Request) (string, error) {
	if len(req.Audio) == 0 {
		return "", ErrEmptyAudio
	}

	language := strings.TrimSpace(req.Language)
	if language == "" {
		language = DefaultLanguage
	}

	params := oai.AudioTranscriptionNewParams{
		Model:    oai.AudioModel(t.model),
		File:     oai.File(bytes.NewReader(req.Audio), artifactFilename(req.Format), artifactContentType(req.Format)),
		Language: param.NewOpt(language),
	}

	resp, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTranscription, err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", fmt.Errorf("%w: empty transcript in response", ErrTranscription)
	}
	return text, nil
}

// artifactFilename derives the upload filename from the artifact format.
// The provider keys decoding off the extension, so an unknown or empty format
// falls back to wav, the encoding the capture workflow produces.
func artifactFilename(format string) string {
	ext := strings.ToLower(strings.TrimSpace(format))
	if ext == "" {
		ext = "wav"
	}
	return "audio." + ext
}

func artifactContentType(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "wav":
		return "audio/wav"
	case "mp3":
		return "audio/mpeg"
	case "ogg":
		return "audio/ogg"
	case "webm":
		return "audio/webm"
	default:
		return "application/octet-stream"
	}
}
