package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/echonote/backend/internal/capture"
	"github.com/echonote/backend/internal/notes"
)

func authorizedRequest(method, path string, body string) *http.Request {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Authorization", "Bearer backend-token")
	if body != "" {
		request.Header.Set("Content-Type", "application/json")
	}
	return request
}

func TestCaptureStartReturnsSnapshot(t *testing.T) {
	deps := newTestDependencies()
	deps.capture.snapshot = capture.Snapshot{State: capture.StateRecording}
	handler := newTestHandler(t, deps)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, authorizedRequest(http.MethodPost, "/capture/start", ""))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, recorder.Code, recorder.Body.String())
	}

	var response captureSnapshotPayload
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.State != string(capture.StateRecording) {
		t.Fatalf("unexpected state %q", response.State)
	}
}

func TestCaptureChunkDecodesBase64Audio(t *testing.T) {
	deps := newTestDependencies()
	handler := newTestHandler(t, deps)

	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	body := fmt.Sprintf(`{"audio":%q}`, base64.StdEncoding.EncodeToString(pcm))
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, authorizedRequest(http.MethodPost, "/capture/chunk", body))

	if recorder.Code != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d: %s", http.StatusAccepted, recorder.Code, recorder.Body.String())
	}
	if len(deps.capture.chunks) != 1 || !bytes.Equal(deps.capture.chunks[0], pcm) {
		t.Fatalf("expected decoded chunk forwarded, got %+v", deps.capture.chunks)
	}
}

func TestCaptureChunkRejectsBadEncoding(t *testing.T) {
	handler := newTestHandler(t, newTestDependencies())

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, authorizedRequest(http.MethodPost, "/capture/chunk", `{"audio":"not base64!!"}`))

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, recorder.Code)
	}
}

func TestCaptureChunkWithoutRecordingConflicts(t *testing.T) {
	deps := newTestDependencies()
	deps.capture.chunkErr = capture.ErrNotRecording
	handler := newTestHandler(t, deps)

	body := fmt.Sprintf(`{"audio":%q}`, base64.StdEncoding.EncodeToString([]byte{1, 2}))
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, authorizedRequest(http.MethodPost, "/capture/chunk", body))

	if recorder.Code != http.StatusConflict {
		t.Fatalf("expected status %d, got %d", http.StatusConflict, recorder.Code)
	}
}

func TestCaptureStopReturnsDraft(t *testing.T) {
	deps := newTestDependencies()
	deps.capture.snapshot = capture.Snapshot{
		State:         capture.StateReadyToSave,
		OriginalText:  "the nukular plant",
		CorrectedText: "the nuclear plant",
	}
	handler := newTestHandler(t, deps)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, authorizedRequest(http.MethodPost, "/capture/stop", ""))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, recorder.Code)
	}

	var response captureSnapshotPayload
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.CorrectedText != "the nuclear plant" {
		t.Fatalf("unexpected corrected text %q", response.CorrectedText)
	}
}

func TestCaptureStopMapsTranscriptionFailure(t *testing.T) {
	deps := newTestDependencies()
	deps.capture.stopErr = errors.New("upstream unavailable")
	handler := newTestHandler(t, deps)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, authorizedRequest(http.MethodPost, "/capture/stop", ""))

	if recorder.Code != http.StatusBadGateway {
		t.Fatalf("expected status %d, got %d", http.StatusBadGateway, recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), "transcription_failed") {
		t.Fatalf("expected transcription_failed code, got %s", recorder.Body.String())
	}
}

func TestCaptureStopMapsEmptyCapture(t *testing.T) {
	deps := newTestDependencies()
	deps.capture.stopErr = fmt.Errorf("%w: no audio captured", capture.ErrValidation)
	handler := newTestHandler(t, deps)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, authorizedRequest(http.MethodPost, "/capture/stop", ""))

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, recorder.Code)
	}
}

func TestCaptureEditForwardsText(t *testing.T) {
	deps := newTestDependencies()
	deps.capture.snapshot = capture.Snapshot{State: capture.StateReadyToSave, CorrectedText: "edited"}
	handler := newTestHandler(t, deps)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, authorizedRequest(http.MethodPost, "/capture/edit", `{"corrected_text":"edited"}`))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, recorder.Code)
	}
	if deps.capture.editedText != "edited" {
		t.Fatalf("expected edit forwarded, got %q", deps.capture.editedText)
	}
}

func TestCaptureEditOutsideDraftConflicts(t *testing.T) {
	deps := newTestDependencies()
	deps.capture.editErr = capture.ErrInvalidState
	handler := newTestHandler(t, deps)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, authorizedRequest(http.MethodPost, "/capture/edit", `{"corrected_text":"x"}`))

	if recorder.Code != http.StatusConflict {
		t.Fatalf("expected status %d, got %d", http.StatusConflict, recorder.Code)
	}
}

func TestCaptureSaveReturnsCreatedNote(t *testing.T) {
	deps := newTestDependencies()
	deps.capture.savedNote = notes.VoiceNote{
		NoteID:        "note-001",
		UserID:        "user-1",
		OriginalText:  "raw",
		CorrectedText: "fixed",
	}
	handler := newTestHandler(t, deps)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, authorizedRequest(http.MethodPost, "/capture/save", ""))

	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", http.StatusCreated, recorder.Code)
	}

	var response notePayload
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.ID != "note-001" || response.CorrectedText != "fixed" {
		t.Fatalf("unexpected note payload %+v", response)
	}
}

func TestCaptureSaveMapsValidationFailure(t *testing.T) {
	deps := newTestDependencies()
	deps.capture.saveErr = fmt.Errorf("%w: empty corrected text", capture.ErrValidation)
	handler := newTestHandler(t, deps)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, authorizedRequest(http.MethodPost, "/capture/save", ""))

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, recorder.Code)
	}
}

func TestCaptureSaveOutsideDraftConflicts(t *testing.T) {
	deps := newTestDependencies()
	deps.capture.saveErr = capture.ErrInvalidState
	handler := newTestHandler(t, deps)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, authorizedRequest(http.MethodPost, "/capture/save", ""))

	if recorder.Code != http.StatusConflict {
		t.Fatalf("expected status %d, got %d", http.StatusConflict, recorder.Code)
	}
}

func TestCaptureDiscardReturnsIdleSnapshot(t *testing.T) {
	deps := newTestDependencies()
	handler := newTestHandler(t, deps)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, authorizedRequest(http.MethodPost, "/capture/discard", ""))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, recorder.Code)
	}

	var response captureSnapshotPayload
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.State != string(capture.StateIdle) {
		t.Fatalf("unexpected state %q", response.State)
	}
}

func TestCaptureSnapshotReportsFailureFlag(t *testing.T) {
	deps := newTestDependencies()
	deps.capture.snapshot = capture.Snapshot{
		State:            capture.StateReadyToSave,
		OriginalText:     "raw",
		CorrectedText:    "raw",
		CorrectionFailed: true,
	}
	handler := newTestHandler(t, deps)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, authorizedRequest(http.MethodGet, "/capture", ""))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, recorder.Code)
	}

	var response captureSnapshotPayload
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !response.CorrectionFailed {
		t.Fatalf("expected correction failure flag in payload")
	}
}
