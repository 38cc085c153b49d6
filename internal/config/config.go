package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                  = "ECHONOTE"
	defaultHTTPAddress         = "0.0.0.0:8080"
	defaultDatabasePath        = "echonote.db"
	defaultLogLevel            = "info"
	defaultGoogleJWKSURL       = "https://www.googleapis.com/oauth2/v3/certs"
	defaultTokenTTL            = time.Hour
	defaultTranscribeModel     = "whisper-1"
	defaultCorrectionModel     = "gpt-4o-mini"
	defaultCorrectionMaxTokens = 500
	defaultCaptureSampleRate   = 16000
	defaultCaptureChannels     = 1
	defaultCaptureSessionTTL   = 10 * time.Minute
	defaultCaptureLanguage     = "en"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress         string
	DatabasePath        string
	LogLevel            string
	SigningSecret       string
	GoogleClientID      string
	GoogleJWKSURL       string
	TokenTTL            time.Duration
	OpenAIAPIKey        string
	OpenAIBaseURL       string
	TranscribeModel     string
	CorrectionModel     string
	CorrectionMaxTokens int
	CaptureSampleRate   int
	CaptureChannels     int
	CaptureSessionTTL   time.Duration
	CaptureLanguage     string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.google_jwks_url", defaultGoogleJWKSURL)
	configViper.SetDefault("auth.token_ttl", defaultTokenTTL)
	configViper.SetDefault("openai.transcribe_model", defaultTranscribeModel)
	configViper.SetDefault("openai.correction_model", defaultCorrectionModel)
	configViper.SetDefault("openai.correction_max_tokens", defaultCorrectionMaxTokens)
	configViper.SetDefault("capture.sample_rate", defaultCaptureSampleRate)
	configViper.SetDefault("capture.channels", defaultCaptureChannels)
	configViper.SetDefault("capture.session_ttl", defaultCaptureSessionTTL)
	configViper.SetDefault("capture.language", defaultCaptureLanguage)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:         configViper.GetString("http.address"),
		DatabasePath:        configViper.GetString("database.path"),
		LogLevel:            configViper.GetString("log.level"),
		SigningSecret:       configViper.GetString("auth.signing_secret"),
		GoogleClientID:      configViper.GetString("auth.google_client_id"),
		GoogleJWKSURL:       configViper.GetString("auth.google_jwks_url"),
		TokenTTL:            configViper.GetDuration("auth.token_ttl"),
		OpenAIAPIKey:        configViper.GetString("openai.api_key"),
		OpenAIBaseURL:       configViper.GetString("openai.base_url"),
		TranscribeModel:     configViper.GetString("openai.transcribe_model"),
		CorrectionModel:     configViper.GetString("openai.correction_model"),
		CorrectionMaxTokens: configViper.GetInt("openai.correction_max_tokens"),
		CaptureSampleRate:   configViper.GetInt("capture.sample_rate"),
		CaptureChannels:     configViper.GetInt("capture.channels"),
		CaptureSessionTTL:   configViper.GetDuration("capture.session_ttl"),
		CaptureLanguage:     configViper.GetString("capture.language"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.GoogleClientID) == "" {
		return fmt.Errorf("auth.google_client_id is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.OpenAIAPIKey) == "" {
		return fmt.Errorf("openai.api_key is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	if c.CorrectionMaxTokens <= 0 {
		return fmt.Errorf("openai.correction_max_tokens must be positive")
	}
	if c.CaptureSampleRate <= 0 {
		return fmt.Errorf("capture.sample_rate must be positive")
	}
	if c.CaptureChannels <= 0 {
		return fmt.Errorf("capture.channels must be positive")
	}
	return nil
}
