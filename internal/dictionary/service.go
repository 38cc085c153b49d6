package dictionary

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingUserID     = errors.New("user identifier is required")
	noOpLogger           = zap.NewNop()
)

// ServiceError carries a stable dotted operation code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew  = "dictionary.service.new"
	opAddEntry    = "dictionary.add"
	opListEntries = "dictionary.list"
	opDeleteEntry = "dictionary.delete"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// IDProvider issues unique identifiers for created entries.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig bundles the dependencies for the dictionary store service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service persists per-user dictionary entries used as correction hints.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService validates the configuration and returns a dictionary service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// Add persists a new entry for the user. The word is lowercased before it is
// stored; empty word or spelling is rejected before any persistence call.
// Duplicate words are permitted deliberately.
func (s *Service) Add(ctx context.Context, userID, word, correctSpelling string) (Entry, error) {
	if strings.TrimSpace(userID) == "" {
		return Entry{}, newServiceError(opAddEntry, "missing_user_id", errMissingUserID)
	}
	normalizedWord := strings.ToLower(strings.TrimSpace(word))
	if normalizedWord == "" {
		return Entry{}, newServiceError(opAddEntry, "empty_word", ErrValidation)
	}
	spelling := strings.TrimSpace(correctSpelling)
	if spelling == "" {
		return Entry{}, newServiceError(opAddEntry, "empty_correct_spelling", ErrValidation)
	}

	entryID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opAddEntry, "id_generation_failed", err, zap.String("user_id", userID))
		return Entry{}, newServiceError(opAddEntry, "id_generation_failed", err)
	}

	entry := Entry{
		EntryID:          entryID,
		UserID:           userID,
		Word:             normalizedWord,
		CorrectSpelling:  spelling,
		CreatedAtSeconds: s.clock().UTC().Unix(),
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		s.logError(opAddEntry, "insert_failed", err, zap.String("user_id", userID))
		return Entry{}, newServiceError(opAddEntry, "insert_failed", err)
	}

	return entry, nil
}

// List returns the user's entries ordered ascending by word. Insertion order
// breaks ties so listings are stable across calls.
func (s *Service) List(ctx context.Context, userID string) ([]Entry, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, newServiceError(opListEntries, "missing_user_id", errMissingUserID)
	}

	var entries []Entry
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("word ASC, created_at_s ASC, entry_id ASC").
		Find(&entries).Error; err != nil {
		s.logError(opListEntries, "query_failed", err, zap.String("user_id", userID))
		return nil, newServiceError(opListEntries, "query_failed", err)
	}

	return entries, nil
}

// Delete removes the entry when it exists and belongs to the user; otherwise
// it reports ErrEntryNotFound.
func (s *Service) Delete(ctx context.Context, userID, entryID string) error {
	if strings.TrimSpace(userID) == "" {
		return newServiceError(opDeleteEntry, "missing_user_id", errMissingUserID)
	}
	if strings.TrimSpace(entryID) == "" {
		return newServiceError(opDeleteEntry, "empty_entry_id", ErrValidation)
	}

	result := s.db.WithContext(ctx).
		Where("user_id = ? AND entry_id = ?", userID, entryID).
		Delete(&Entry{})
	if result.Error != nil {
		s.logError(opDeleteEntry, "delete_failed", result.Error,
			zap.String("user_id", userID),
			zap.String("entry_id", entryID))
		return newServiceError(opDeleteEntry, "delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return newServiceError(opDeleteEntry, "not_found", ErrEntryNotFound)
	}

	return nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	logger := s.logger
	if logger == nil {
		logger = noOpLogger
	}
	logger.Error("dictionary service error", attrs...)
}
