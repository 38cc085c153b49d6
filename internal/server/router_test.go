package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/echonote/backend/internal/auth"
	"github.com/echonote/backend/internal/capture"
	"github.com/echonote/backend/internal/dictionary"
	"github.com/echonote/backend/internal/notes"
	"github.com/echonote/backend/internal/users"
)

type stubGoogleVerifier struct {
	claims auth.GoogleClaims
	err    error
}

func (s stubGoogleVerifier) Verify(context.Context, string) (auth.GoogleClaims, error) {
	return s.claims, s.err
}

type stubTokenManager struct {
	issuedToken string
	issueErr    error
	subject     string
	validateErr error
}

func (s stubTokenManager) IssueBackendToken(context.Context, auth.GoogleClaims) (string, int64, error) {
	if s.issueErr != nil {
		return "", 0, s.issueErr
	}
	return s.issuedToken, 3600, nil
}

func (s stubTokenManager) ValidateToken(string) (string, error) {
	if s.validateErr != nil {
		return "", s.validateErr
	}
	return s.subject, nil
}

type stubIdentityService struct {
	identity  users.Identity
	resolved  int
	lookupErr error
}

func (s *stubIdentityService) ResolveIdentity(auth.GoogleClaims) (users.Identity, error) {
	s.resolved++
	return s.identity, nil
}

func (s *stubIdentityService) Lookup(string) (users.Identity, error) {
	if s.lookupErr != nil {
		return users.Identity{}, s.lookupErr
	}
	return s.identity, nil
}

type stubNotesService struct {
	notes   []notes.VoiceNote
	listErr error

	deletedNoteID string
	deleteErr     error
}

func (s *stubNotesService) List(_ context.Context, _ string, limit int) ([]notes.VoiceNote, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	if limit > 0 && limit < len(s.notes) {
		return s.notes[:limit], nil
	}
	return s.notes, nil
}

func (s *stubNotesService) Delete(_ context.Context, _, noteID string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deletedNoteID = noteID
	return nil
}

type stubDictionaryService struct {
	entries []dictionary.Entry
	listErr error

	added     []dictionary.Entry
	addErr    error
	deleteErr error
}

func (s *stubDictionaryService) Add(_ context.Context, userID, word, spelling string) (dictionary.Entry, error) {
	if s.addErr != nil {
		return dictionary.Entry{}, s.addErr
	}
	entry := dictionary.Entry{
		EntryID:         fmt.Sprintf("entry-%03d", len(s.added)+1),
		UserID:          userID,
		Word:            word,
		CorrectSpelling: spelling,
	}
	s.added = append(s.added, entry)
	return entry, nil
}

func (s *stubDictionaryService) List(context.Context, string) ([]dictionary.Entry, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.entries, nil
}

func (s *stubDictionaryService) Delete(context.Context, string, string) error {
	return s.deleteErr
}

type stubCaptureManager struct {
	snapshot capture.Snapshot

	startErr     error
	chunkErr     error
	chunks       [][]byte
	stopErr      error
	editErr      error
	editedText   string
	recorrectErr error
	savedNote    notes.VoiceNote
	saveErr      error
	discardErr   error
}

func (s *stubCaptureManager) Start(string) (capture.Snapshot, error) {
	if s.startErr != nil {
		return capture.Snapshot{}, s.startErr
	}
	return s.snapshot, nil
}

func (s *stubCaptureManager) AppendChunk(_ string, chunk []byte) error {
	if s.chunkErr != nil {
		return s.chunkErr
	}
	s.chunks = append(s.chunks, chunk)
	return nil
}

func (s *stubCaptureManager) Stop(context.Context, string) (capture.Snapshot, error) {
	if s.stopErr != nil {
		return capture.Snapshot{}, s.stopErr
	}
	return s.snapshot, nil
}

func (s *stubCaptureManager) Edit(_ string, correctedText string) (capture.Snapshot, error) {
	if s.editErr != nil {
		return capture.Snapshot{}, s.editErr
	}
	s.editedText = correctedText
	return s.snapshot, nil
}

func (s *stubCaptureManager) Recorrect(context.Context, string) (capture.Snapshot, error) {
	if s.recorrectErr != nil {
		return capture.Snapshot{}, s.recorrectErr
	}
	return s.snapshot, nil
}

func (s *stubCaptureManager) Save(context.Context, string) (notes.VoiceNote, error) {
	if s.saveErr != nil {
		return notes.VoiceNote{}, s.saveErr
	}
	return s.savedNote, nil
}

func (s *stubCaptureManager) Discard(string) (capture.Snapshot, error) {
	if s.discardErr != nil {
		return capture.Snapshot{}, s.discardErr
	}
	return s.snapshot, nil
}

func (s *stubCaptureManager) Snapshot(string) capture.Snapshot {
	return s.snapshot
}

type testDependencies struct {
	verifier   *stubGoogleVerifier
	tokens     *stubTokenManager
	identities *stubIdentityService
	notes      *stubNotesService
	dictionary *stubDictionaryService
	capture    *stubCaptureManager
}

func newTestDependencies() *testDependencies {
	return &testDependencies{
		verifier:   &stubGoogleVerifier{claims: auth.GoogleClaims{Subject: "user-1", Email: "user@example.com"}},
		tokens:     &stubTokenManager{issuedToken: "backend-token", subject: "user-1"},
		identities: &stubIdentityService{identity: users.Identity{UserID: "user-1", Email: "user@example.com"}},
		notes:      &stubNotesService{},
		dictionary: &stubDictionaryService{},
		capture:    &stubCaptureManager{snapshot: capture.Snapshot{State: capture.StateIdle}},
	}
}

func newTestHandler(t *testing.T, deps *testDependencies) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	handler, err := NewHTTPHandler(Dependencies{
		GoogleVerifier: deps.verifier,
		TokenManager:   deps.tokens,
		Identities:     deps.identities,
		NotesService:   deps.notes,
		Dictionary:     deps.dictionary,
		Capture:        deps.capture,
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	return handler
}

func TestNewHTTPHandlerRequiresDependencies(t *testing.T) {
	gin.SetMode(gin.TestMode)
	deps := newTestDependencies()

	testCases := []struct {
		name   string
		mutate func(d Dependencies) Dependencies
	}{
		{name: "missing verifier", mutate: func(d Dependencies) Dependencies { d.GoogleVerifier = nil; return d }},
		{name: "missing token manager", mutate: func(d Dependencies) Dependencies { d.TokenManager = nil; return d }},
		{name: "missing identities", mutate: func(d Dependencies) Dependencies { d.Identities = nil; return d }},
		{name: "missing notes", mutate: func(d Dependencies) Dependencies { d.NotesService = nil; return d }},
		{name: "missing dictionary", mutate: func(d Dependencies) Dependencies { d.Dictionary = nil; return d }},
		{name: "missing capture", mutate: func(d Dependencies) Dependencies { d.Capture = nil; return d }},
	}
	base := Dependencies{
		GoogleVerifier: deps.verifier,
		TokenManager:   deps.tokens,
		Identities:     deps.identities,
		NotesService:   deps.notes,
		Dictionary:     deps.dictionary,
		Capture:        deps.capture,
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if _, err := NewHTTPHandler(testCase.mutate(base)); err == nil {
				t.Fatalf("expected constructor error")
			}
		})
	}
}

func TestHealthzIsPublic(t *testing.T) {
	handler := newTestHandler(t, newTestDependencies())

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, recorder.Code)
	}
}

func TestProtectedRoutesRejectMissingToken(t *testing.T) {
	handler := newTestHandler(t, newTestDependencies())

	paths := []struct {
		method string
		path   string
	}{
		{method: http.MethodGet, path: "/me"},
		{method: http.MethodGet, path: "/notes"},
		{method: http.MethodGet, path: "/dictionary"},
		{method: http.MethodGet, path: "/capture"},
		{method: http.MethodPost, path: "/capture/start"},
	}
	for _, route := range paths {
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, httptest.NewRequest(route.method, route.path, http.NoBody))
		if recorder.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected status %d, got %d", route.method, route.path, http.StatusUnauthorized, recorder.Code)
		}
	}
}

func TestProtectedRoutesRejectInvalidToken(t *testing.T) {
	deps := newTestDependencies()
	deps.tokens.validateErr = errors.New("signature mismatch")
	handler := newTestHandler(t, deps)

	request := httptest.NewRequest(http.MethodGet, "/notes", http.NoBody)
	request.Header.Set("Authorization", "Bearer forged-token")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, recorder.Code)
	}
}
