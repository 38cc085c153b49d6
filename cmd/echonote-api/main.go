package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/echonote/backend/internal/auth"
	"github.com/echonote/backend/internal/capture"
	"github.com/echonote/backend/internal/config"
	"github.com/echonote/backend/internal/correct"
	"github.com/echonote/backend/internal/database"
	"github.com/echonote/backend/internal/dictionary"
	"github.com/echonote/backend/internal/logging"
	"github.com/echonote/backend/internal/notes"
	"github.com/echonote/backend/internal/server"
	"github.com/echonote/backend/internal/transcribe"
	"github.com/echonote/backend/internal/users"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "echonote-api",
		Short: "EchoNote voice note backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("google-client-id", defaults.GetString("auth.google_client_id"), "Google OAuth client ID")
	cmd.PersistentFlags().String("google-jwks-url", defaults.GetString("auth.google_jwks_url"), "Google JWKS URL")
	cmd.PersistentFlags().Duration("token-ttl", defaults.GetDuration("auth.token_ttl"), "Backend token TTL")
	cmd.PersistentFlags().String("signing-secret", "", "Backend signing secret (overrides env)")
	cmd.PersistentFlags().String("openai-api-key", "", "OpenAI API key (overrides env)")
	cmd.PersistentFlags().String("openai-base-url", defaults.GetString("openai.base_url"), "OpenAI-compatible API base URL")
	cmd.PersistentFlags().String("transcribe-model", defaults.GetString("openai.transcribe_model"), "Transcription model")
	cmd.PersistentFlags().String("correction-model", defaults.GetString("openai.correction_model"), "Correction model")
	cmd.PersistentFlags().Int("correction-max-tokens", defaults.GetInt("openai.correction_max_tokens"), "Correction completion token cap")
	cmd.PersistentFlags().Int("capture-sample-rate", defaults.GetInt("capture.sample_rate"), "PCM sample rate in Hz")
	cmd.PersistentFlags().Int("capture-channels", defaults.GetInt("capture.channels"), "PCM channel count")
	cmd.PersistentFlags().Duration("capture-session-ttl", defaults.GetDuration("capture.session_ttl"), "Idle capture session lifetime")
	cmd.PersistentFlags().String("capture-language", defaults.GetString("capture.language"), "Transcription language code")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.google_client_id", "google-client-id")
	bindFlag(cmd, "auth.google_jwks_url", "google-jwks-url")
	bindFlag(cmd, "auth.token_ttl", "token-ttl")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "openai.api_key", "openai-api-key")
	bindFlag(cmd, "openai.base_url", "openai-base-url")
	bindFlag(cmd, "openai.transcribe_model", "transcribe-model")
	bindFlag(cmd, "openai.correction_model", "correction-model")
	bindFlag(cmd, "openai.correction_max_tokens", "correction-max-tokens")
	bindFlag(cmd, "capture.sample_rate", "capture-sample-rate")
	bindFlag(cmd, "capture.channels", "capture-channels")
	bindFlag(cmd, "capture.session_ttl", "capture-session-ttl")
	bindFlag(cmd, "capture.language", "capture-language")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	tokenManager, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        "echonote-auth",
		Audience:      "echonote-api",
		TokenTTL:      appConfig.TokenTTL,
	})
	if err != nil {
		return err
	}

	googleVerifier, err := auth.NewGoogleVerifier(auth.GoogleVerifierConfig{
		Audience:       appConfig.GoogleClientID,
		JWKSURL:        appConfig.GoogleJWKSURL,
		AllowedIssuers: []string{"https://accounts.google.com", "accounts.google.com"},
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	identityService, err := users.NewService(users.ServiceConfig{
		Database: db,
		Clock:    time.Now,
	})
	if err != nil {
		return err
	}

	idProvider := notes.NewUUIDProvider()

	notesService, err := notes.NewService(notes.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	dictionaryService, err := dictionary.NewService(dictionary.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	transcribeOpts := []transcribe.OpenAIOption{transcribe.WithModel(appConfig.TranscribeModel)}
	if appConfig.OpenAIBaseURL != "" {
		transcribeOpts = append(transcribeOpts, transcribe.WithBaseURL(appConfig.OpenAIBaseURL))
	}
	transcriber, err := transcribe.NewOpenAITranscriber(appConfig.OpenAIAPIKey, transcribeOpts...)
	if err != nil {
		return err
	}

	correctOpts := []correct.OpenAIOption{correct.WithMaxTokens(appConfig.CorrectionMaxTokens)}
	if appConfig.OpenAIBaseURL != "" {
		correctOpts = append(correctOpts, correct.WithBaseURL(appConfig.OpenAIBaseURL))
	}
	corrector, err := correct.NewOpenAICorrector(appConfig.OpenAIAPIKey, appConfig.CorrectionModel, correctOpts...)
	if err != nil {
		return err
	}

	captureManager, err := capture.NewManager(capture.ManagerConfig{
		Transcriber: transcriber,
		Corrector:   corrector,
		Dictionary:  dictionaryService,
		Notes:       notesService,
		Clock:       time.Now,
		Logger:      logger,
		SampleRate:  appConfig.CaptureSampleRate,
		Channels:    appConfig.CaptureChannels,
		Language:    appConfig.CaptureLanguage,
		SessionTTL:  appConfig.CaptureSessionTTL,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		GoogleVerifier: googleVerifier,
		TokenManager:   tokenManager,
		Identities:     identityService,
		NotesService:   notesService,
		Dictionary:     dictionaryService,
		Capture:        captureManager,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go captureManager.Run(signalCtx)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
