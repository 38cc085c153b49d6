package server

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/echonote/backend/internal/auth"
	"github.com/echonote/backend/internal/capture"
	"github.com/echonote/backend/internal/dictionary"
	"github.com/echonote/backend/internal/notes"
	"github.com/echonote/backend/internal/users"
)

const userIDContextKey = "echonote_user_id"

var (
	errMissingGoogleVerifier  = errors.New("google verifier dependency required")
	errMissingTokenManager    = errors.New("token manager dependency required")
	errMissingIdentityService = errors.New("identity service dependency required")
	errMissingNotesService    = errors.New("notes service dependency required")
	errMissingDictionary      = errors.New("dictionary service dependency required")
	errMissingCaptureManager  = errors.New("capture manager dependency required")
	errInvalidAuthorization   = errors.New("authorization header missing or invalid")
)

type GoogleVerifier interface {
	Verify(ctx context.Context, token string) (auth.GoogleClaims, error)
}

type BackendTokenManager interface {
	IssueBackendToken(ctx context.Context, claims auth.GoogleClaims) (string, int64, error)
	ValidateToken(token string) (string, error)
}

type IdentityService interface {
	ResolveIdentity(claims auth.GoogleClaims) (users.Identity, error)
	Lookup(userID string) (users.Identity, error)
}

type NotesService interface {
	List(ctx context.Context, userID string, limit int) ([]notes.VoiceNote, error)
	Delete(ctx context.Context, userID, noteID string) error
}

type DictionaryService interface {
	Add(ctx context.Context, userID, word, correctSpelling string) (dictionary.Entry, error)
	List(ctx context.Context, userID string) ([]dictionary.Entry, error)
	Delete(ctx context.Context, userID, entryID string) error
}

type CaptureManager interface {
	Start(userID string) (capture.Snapshot, error)
	AppendChunk(userID string, chunk []byte) error
	Stop(ctx context.Context, userID string) (capture.Snapshot, error)
	Edit(userID, correctedText string) (capture.Snapshot, error)
	Recorrect(ctx context.Context, userID string) (capture.Snapshot, error)
	Save(ctx context.Context, userID string) (notes.VoiceNote, error)
	Discard(userID string) (capture.Snapshot, error)
	Snapshot(userID string) capture.Snapshot
}

type Dependencies struct {
	GoogleVerifier GoogleVerifier
	TokenManager   BackendTokenManager
	Identities     IdentityService
	NotesService   NotesService
	Dictionary     DictionaryService
	Capture        CaptureManager
	Logger         *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.GoogleVerifier == nil {
		return nil, errMissingGoogleVerifier
	}
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.Identities == nil {
		return nil, errMissingIdentityService
	}
	if deps.NotesService == nil {
		return nil, errMissingNotesService
	}
	if deps.Dictionary == nil {
		return nil, errMissingDictionary
	}
	if deps.Capture == nil {
		return nil, errMissingCaptureManager
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	handler := &httpHandler{
		verifier:   deps.GoogleVerifier,
		tokens:     deps.TokenManager,
		identities: deps.Identities,
		notes:      deps.NotesService,
		dictionary: deps.Dictionary,
		capture:    deps.Capture,
		logger:     logger,
	}

	router.GET("/healthz", handler.handleHealth)
	router.POST("/auth/google", handler.handleGoogleAuth)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/me", handler.handleMe)

	protected.GET("/capture", handler.handleCaptureSnapshot)
	protected.POST("/capture/start", handler.handleCaptureStart)
	protected.POST("/capture/chunk", handler.handleCaptureChunk)
	protected.POST("/capture/stop", handler.handleCaptureStop)
	protected.POST("/capture/edit", handler.handleCaptureEdit)
	protected.POST("/capture/recorrect", handler.handleCaptureRecorrect)
	protected.POST("/capture/save", handler.handleCaptureSave)
	protected.POST("/capture/discard", handler.handleCaptureDiscard)

	protected.GET("/notes", handler.handleNotesList)
	protected.DELETE("/notes/:id", handler.handleNoteDelete)

	protected.GET("/dictionary", handler.handleDictionaryList)
	protected.POST("/dictionary", handler.handleDictionaryAdd)
	protected.DELETE("/dictionary/:id", handler.handleDictionaryDelete)

	return router, nil
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	})
}

type httpHandler struct {
	verifier   GoogleVerifier
	tokens     BackendTokenManager
	identities IdentityService
	notes      NotesService
	dictionary DictionaryService
	capture    CaptureManager
	logger     *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type authRequestPayload struct {
	IDToken string `json:"id_token"`
}

type authResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (h *httpHandler) handleGoogleAuth(c *gin.Context) {
	var request authRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.IDToken) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	claims, err := h.verifier.Verify(c.Request.Context(), request.IDToken)
	if err != nil {
		h.logger.Warn("google token verification failed", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	if _, err := h.identities.ResolveIdentity(claims); err != nil {
		h.logger.Error("failed to resolve identity", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "identity_resolution_failed"})
		return
	}

	token, expiresIn, err := h.tokens.IssueBackendToken(c.Request.Context(), claims)
	if err != nil {
		h.logger.Error("failed to issue backend token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	response := authResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	}
	c.JSON(http.StatusOK, response)
}

type mePayload struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

func (h *httpHandler) handleMe(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	identity, err := h.identities.Lookup(userID)
	if err != nil {
		if errors.Is(err, users.ErrIdentityNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "identity_not_found"})
			return
		}
		h.logger.Error("failed to load identity", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "identity_lookup_failed"})
		return
	}

	c.JSON(http.StatusOK, mePayload{
		ID:    identity.UserID,
		Email: identity.Email,
		Name:  identity.DisplayName,
	})
}

type captureSnapshotPayload struct {
	State            string `json:"state"`
	OriginalText     string `json:"original_text"`
	CorrectedText    string `json:"corrected_text"`
	BufferedBytes    int    `json:"buffered_bytes"`
	CorrectionFailed bool   `json:"correction_failed"`
}

func snapshotPayload(snap capture.Snapshot) captureSnapshotPayload {
	return captureSnapshotPayload{
		State:            string(snap.State),
		OriginalText:     snap.OriginalText,
		CorrectedText:    snap.CorrectedText,
		BufferedBytes:    snap.BufferedBytes,
		CorrectionFailed: snap.CorrectionFailed,
	}
}

func (h *httpHandler) handleCaptureSnapshot(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	c.JSON(http.StatusOK, snapshotPayload(h.capture.Snapshot(userID)))
}

func (h *httpHandler) handleCaptureStart(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	snap, err := h.capture.Start(userID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	c.JSON(http.StatusOK, snapshotPayload(snap))
}

type captureChunkPayload struct {
	Audio string `json:"audio"`
}

func (h *httpHandler) handleCaptureChunk(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	var request captureChunkPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Audio == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	chunk, err := base64.StdEncoding.DecodeString(request.Audio)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_audio_encoding"})
		return
	}

	if err := h.capture.AppendChunk(userID, chunk); err != nil {
		switch {
		case errors.Is(err, capture.ErrNotRecording):
			c.JSON(http.StatusConflict, gin.H{"error": "not_recording"})
		case errors.Is(err, capture.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_chunk"})
		default:
			h.logger.Error("failed to buffer audio chunk", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "chunk_failed"})
		}
		return
	}
	c.Status(http.StatusAccepted)
}

func (h *httpHandler) handleCaptureStop(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	snap, err := h.capture.Stop(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, capture.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "empty_capture"})
			return
		}
		h.logger.Error("transcription failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "transcription_failed"})
		return
	}
	c.JSON(http.StatusOK, snapshotPayload(snap))
}

type captureEditPayload struct {
	CorrectedText string `json:"corrected_text"`
}

func (h *httpHandler) handleCaptureEdit(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	var request captureEditPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	snap, err := h.capture.Edit(userID, request.CorrectedText)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "invalid_state"})
		return
	}
	c.JSON(http.StatusOK, snapshotPayload(snap))
}

func (h *httpHandler) handleCaptureRecorrect(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	snap, err := h.capture.Recorrect(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "invalid_state"})
		return
	}
	c.JSON(http.StatusOK, snapshotPayload(snap))
}

type notePayload struct {
	ID               string `json:"id"`
	OriginalText     string `json:"original_text"`
	CorrectedText    string `json:"corrected_text"`
	CreatedAtSeconds int64  `json:"created_at_s"`
}

func noteToPayload(note notes.VoiceNote) notePayload {
	return notePayload{
		ID:               note.NoteID,
		OriginalText:     note.OriginalText,
		CorrectedText:    note.CorrectedText,
		CreatedAtSeconds: note.CreatedAtSeconds,
	}
}

func (h *httpHandler) handleCaptureSave(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	note, err := h.capture.Save(c.Request.Context(), userID)
	if err != nil {
		switch {
		case errors.Is(err, capture.ErrInvalidState):
			c.JSON(http.StatusConflict, gin.H{"error": "invalid_state"})
		case errors.Is(err, capture.ErrValidation), errors.Is(err, notes.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": "empty_draft"})
		default:
			h.logger.Error("failed to save note", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "save_failed"})
		}
		return
	}
	c.JSON(http.StatusCreated, noteToPayload(note))
}

func (h *httpHandler) handleCaptureDiscard(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	snap, err := h.capture.Discard(userID)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "invalid_state"})
		return
	}
	c.JSON(http.StatusOK, snapshotPayload(snap))
}

type notesListPayload struct {
	Notes []notePayload `json:"notes"`
}

func (h *httpHandler) handleNotesList(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_limit"})
			return
		}
		limit = parsed
	}

	stored, err := h.notes.List(c.Request.Context(), userID, limit)
	if err != nil {
		h.logger.Error("failed to list notes", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}

	response := notesListPayload{Notes: make([]notePayload, 0, len(stored))}
	for _, note := range stored {
		response.Notes = append(response.Notes, noteToPayload(note))
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleNoteDelete(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	if err := h.notes.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		switch {
		case errors.Is(err, notes.ErrNoteNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "note_not_found"})
		case errors.Is(err, notes.ErrValidation), errors.Is(err, notes.ErrInvalidNoteID):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		default:
			h.logger.Error("failed to delete note", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "delete_failed"})
		}
		return
	}
	c.Status(http.StatusNoContent)
}

type dictionaryEntryPayload struct {
	ID               string `json:"id"`
	Word             string `json:"word"`
	CorrectSpelling  string `json:"correct_spelling"`
	CreatedAtSeconds int64  `json:"created_at_s"`
}

func entryToPayload(entry dictionary.Entry) dictionaryEntryPayload {
	return dictionaryEntryPayload{
		ID:               entry.EntryID,
		Word:             entry.Word,
		CorrectSpelling:  entry.CorrectSpelling,
		CreatedAtSeconds: entry.CreatedAtSeconds,
	}
}

type dictionaryListPayload struct {
	Entries []dictionaryEntryPayload `json:"entries"`
}

func (h *httpHandler) handleDictionaryList(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	stored, err := h.dictionary.List(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list dictionary entries", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}

	response := dictionaryListPayload{Entries: make([]dictionaryEntryPayload, 0, len(stored))}
	for _, entry := range stored {
		response.Entries = append(response.Entries, entryToPayload(entry))
	}
	c.JSON(http.StatusOK, response)
}

type dictionaryAddPayload struct {
	Word            string `json:"word"`
	CorrectSpelling string `json:"correct_spelling"`
}

func (h *httpHandler) handleDictionaryAdd(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	var request dictionaryAddPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	entry, err := h.dictionary.Add(c.Request.Context(), userID, request.Word, request.CorrectSpelling)
	if err != nil {
		if errors.Is(err, dictionary.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_entry"})
			return
		}
		h.logger.Error("failed to add dictionary entry", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "add_failed"})
		return
	}
	c.JSON(http.StatusCreated, entryToPayload(entry))
}

func (h *httpHandler) handleDictionaryDelete(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	if err := h.dictionary.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		switch {
		case errors.Is(err, dictionary.ErrEntryNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "entry_not_found"})
		case errors.Is(err, dictionary.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		default:
			h.logger.Error("failed to delete dictionary entry", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "delete_failed"})
		}
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, subject)
	c.Next()
}
