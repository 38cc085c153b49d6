package notes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
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
	opServiceNew = "notes.service.new"
	opCreateNote = "notes.create"
	opListNotes  = "notes.list"
	opDeleteNote = "notes.delete"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// IDProvider issues unique identifiers for created notes.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig bundles the dependencies for the note store service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service persists and lists voice notes scoped to their owning user.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService validates the configuration and returns a note store service.
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

// Create persists a new voice note for the given user. The server assigns the
// note identifier and creation timestamp. Both text fields must be non-empty;
// validation happens before any persistence call.
func (s *Service) Create(ctx context.Context, userID, originalText, correctedText string) (VoiceNote, error) {
	owner, err := NewUserID(userID)
	if err != nil {
		return VoiceNote{}, newServiceError(opCreateNote, "invalid_user_id", err)
	}
	if strings.TrimSpace(originalText) == "" {
		return VoiceNote{}, newServiceError(opCreateNote, "empty_original_text", ErrValidation)
	}
	if strings.TrimSpace(correctedText) == "" {
		return VoiceNote{}, newServiceError(opCreateNote, "empty_corrected_text", ErrValidation)
	}

	noteID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateNote, "id_generation_failed", err, zap.String("user_id", owner.String()))
		return VoiceNote{}, newServiceError(opCreateNote, "id_generation_failed", err)
	}

	note := VoiceNote{
		NoteID:           noteID,
		UserID:           owner.String(),
		OriginalText:     originalText,
		CorrectedText:    correctedText,
		CreatedAtSeconds: s.clock().UTC().Unix(),
	}
	if err := s.db.WithContext(ctx).Create(&note).Error; err != nil {
		s.logError(opCreateNote, "insert_failed", err, zap.String("user_id", owner.String()))
		return VoiceNote{}, newServiceError(opCreateNote, "insert_failed", err)
	}

	return note, nil
}

// List returns the user's notes ordered newest first. A non-positive limit
// falls back to the default; oversized limits are clamped.
func (s *Service) List(ctx context.Context, userID string, limit int) ([]VoiceNote, error) {
	owner, err := NewUserID(userID)
	if err != nil {
		return nil, newServiceError(opListNotes, "invalid_user_id", err)
	}

	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	var stored []VoiceNote
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", owner.String()).
		Order("created_at_s DESC, note_id DESC").
		Limit(limit).
		Find(&stored).Error; err != nil {
		s.logError(opListNotes, "query_failed", err, zap.String("user_id", owner.String()))
		return nil, newServiceError(opListNotes, "query_failed", err)
	}

	return stored, nil
}

// Delete removes the note when it exists and belongs to the user; otherwise it
// reports ErrNoteNotFound.
func (s *Service) Delete(ctx context.Context, userID, noteID string) error {
	owner, err := NewUserID(userID)
	if err != nil {
		return newServiceError(opDeleteNote, "invalid_user_id", err)
	}
	id, err := NewNoteID(noteID)
	if err != nil {
		return newServiceError(opDeleteNote, "invalid_note_id", err)
	}

	result := s.db.WithContext(ctx).
		Where("user_id = ? AND note_id = ?", owner.String(), id.String()).
		Delete(&VoiceNote{})
	if result.Error != nil {
		s.logError(opDeleteNote, "delete_failed", result.Error,
			zap.String("user_id", owner.String()),
			zap.String("note_id", id.String()))
		return newServiceError(opDeleteNote, "delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return newServiceError(opDeleteNote, "not_found", ErrNoteNotFound)
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
	logger.Error("notes service error", attrs...)
}
