// Package capture implements the note-capture workflow: a per-user state
// machine that buffers recorded audio, finalizes it into a WAV artifact,
// drives transcription and dictionary-hinted correction, and hands the
// resulting draft to the note store on save.
//
// States advance Idle → Recording → Transcribing → Correcting → ReadyToSave
// and return to Idle on save or discard. Transcription failure drops back to
// Idle with the audio discarded; correction failure never blocks the flow,
// the draft falls back to the uncorrected transcript instead.
package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/echonote/backend/internal/correct"
	"github.com/echonote/backend/internal/dictionary"
	"github.com/echonote/backend/internal/notes"
	"github.com/echonote/backend/internal/transcribe"
)

// State identifies a capture workflow phase.
type State string

const (
	StateIdle         State = "idle"
	StateRecording    State = "recording"
	StateTranscribing State = "transcribing"
	StateCorrecting   State = "correcting"
	StateReadyToSave  State = "ready_to_save"
)

const (
	defaultSampleRate = 16000
	defaultChannels   = 1
	defaultSessionTTL = 10 * time.Minute
	sweepInterval     = time.Minute

	// maxCaptureBytes bounds one capture buffer (roughly 35 minutes of
	// 16 kHz mono 16-bit PCM).
	maxCaptureBytes = 64 << 20
)

var (
	// ErrValidation indicates malformed workflow input (empty user, empty or
	// misaligned chunk, nothing captured, empty draft on save).
	ErrValidation = errors.New("capture: validation failed")
	// ErrNotRecording indicates a chunk arrived while no recording is active.
	ErrNotRecording = errors.New("capture: no active recording")
	// ErrInvalidState indicates an operation that is not defined as a no-op
	// was invoked outside its legal state.
	ErrInvalidState = errors.New("capture: operation not valid in current state")

	errMissingTranscriber = errors.New("transcriber is required")
	errMissingCorrector   = errors.New("corrector is required")
	errMissingDictionary  = errors.New("dictionary lister is required")
	errMissingNotes       = errors.New("note creator is required")
)

// DictionaryLister supplies the user's current correction hints.
type DictionaryLister interface {
	List(ctx context.Context, userID string) ([]dictionary.Entry, error)
}

// NoteCreator persists a finished draft as a voice note.
type NoteCreator interface {
	Create(ctx context.Context, userID, originalText, correctedText string) (notes.VoiceNote, error)
}

// Snapshot is the externally visible view of one user's capture session.
type Snapshot struct {
	State         State
	OriginalText  string
	CorrectedText string
	BufferedBytes int
	// CorrectionFailed reports that the last correction attempt failed and
	// CorrectedText carries the fallback (the unmodified transcript).
	CorrectionFailed bool
}

// ManagerConfig bundles the collaborators and tuning for a Manager.
type ManagerConfig struct {
	Transcriber transcribe.Transcriber
	Corrector   correct.Corrector
	Dictionary  DictionaryLister
	Notes       NoteCreator
	Clock       func() time.Time
	Logger      *zap.Logger
	SampleRate  int
	Channels    int
	Language    string
	// SessionTTL bounds how long an untouched session may hold its buffer
	// before it is reclaimed.
	SessionTTL time.Duration
}

// Manager owns at most one capture session per user and serializes the
// workflow transitions for each of them. Sessions of different users share no
// mutable state beyond the session registry itself.
type Manager struct {
	transcriber transcribe.Transcriber
	corrector   correct.Corrector
	dictionary  DictionaryLister
	notes       NoteCreator
	clock       func() time.Time
	logger      *zap.Logger
	sampleRate  int
	channels    int
	language    string
	sessionTTL  time.Duration

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	mu               sync.Mutex
	state            State
	pcm              []byte
	originalText     string
	correctedText    string
	correctionFailed bool
	lastActive       time.Time
}

// NewManager validates the configuration and returns a capture manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Transcriber == nil {
		return nil, fmt.Errorf("capture: %w", errMissingTranscriber)
	}
	if cfg.Corrector == nil {
		return nil, fmt.Errorf("capture: %w", errMissingCorrector)
	}
	if cfg.Dictionary == nil {
		return nil, fmt.Errorf("capture: %w", errMissingDictionary)
	}
	if cfg.Notes == nil {
		return nil, fmt.Errorf("capture: %w", errMissingNotes)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}
	channels := cfg.Channels
	if channels <= 0 {
		channels = defaultChannels
	}
	language := strings.TrimSpace(cfg.Language)
	if language == "" {
		language = transcribe.DefaultLanguage
	}
	sessionTTL := cfg.SessionTTL
	if sessionTTL <= 0 {
		sessionTTL = defaultSessionTTL
	}

	return &Manager{
		transcriber: cfg.Transcriber,
		corrector:   cfg.Corrector,
		dictionary:  cfg.Dictionary,
		notes:       cfg.Notes,
		clock:       clock,
		logger:      logger,
		sampleRate:  sampleRate,
		channels:    channels,
		language:    language,
		sessionTTL:  sessionTTL,
		sessions:    make(map[string]*session),
	}, nil
}

// Start begins buffering a new recording. Starting while a session is already
// recording (or mid transcription/correction) is a no-op that returns the
// current snapshot: the user holds at most one capture session.
func (m *Manager) Start(userID string) (Snapshot, error) {
	if strings.TrimSpace(userID) == "" {
		return Snapshot{}, fmt.Errorf("%w: empty user id", ErrValidation)
	}

	s := m.obtain(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = m.clock()

	if s.state != StateIdle {
		return s.snapshotLocked(), nil
	}

	s.state = StateRecording
	s.pcm = nil
	s.originalText = ""
	s.correctedText = ""
	s.correctionFailed = false
	return s.snapshotLocked(), nil
}

// AppendChunk buffers one raw PCM chunk for the active recording.
func (m *Manager) AppendChunk(userID string, chunk []byte) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: empty user id", ErrValidation)
	}
	if len(chunk) == 0 {
		return fmt.Errorf("%w: empty chunk", ErrValidation)
	}
	if len(chunk)%2 != 0 {
		return fmt.Errorf("%w: chunk must contain whole 16-bit samples", ErrValidation)
	}

	s := m.lookup(userID)
	if s == nil {
		return ErrNotRecording
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRecording {
		return ErrNotRecording
	}
	if len(s.pcm)+len(chunk) > maxCaptureBytes {
		return fmt.Errorf("%w: capture exceeds %d bytes", ErrValidation, maxCaptureBytes)
	}
	s.pcm = append(s.pcm, chunk...)
	s.lastActive = m.clock()
	return nil
}

// Stop finalizes the buffered audio into a WAV artifact and runs the
// transcribe-then-correct sequence exactly once. Stop while nothing is
// recording is a no-op. The PCM buffer is released on every path. On
// transcription failure the session returns to Idle and the error is
// reported; retry is a new recording. Correction failure falls back to the
// original transcript, so a stopped recording always reaches ReadyToSave
// unless transcription itself failed.
func (m *Manager) Stop(ctx context.Context, userID string) (Snapshot, error) {
	s := m.lookup(userID)
	if s == nil {
		return Snapshot{State: StateIdle}, nil
	}

	s.mu.Lock()
	if s.state != StateRecording {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, nil
	}

	pcm := s.pcm
	s.pcm = nil
	if len(pcm) == 0 {
		s.state = StateIdle
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, fmt.Errorf("%w: no audio captured", ErrValidation)
	}
	s.state = StateTranscribing
	s.lastActive = m.clock()
	s.mu.Unlock()

	artifact := encodeWAV(pcm, m.sampleRate, m.channels)
	text, err := m.transcriber.Transcribe(ctx, transcribe.Request{
		Audio:    artifact,
		Format:   "wav",
		Language: m.language,
	})
	if err != nil {
		m.logger.Error("transcription failed",
			zap.String("user_id", userID),
			zap.Error(err))
		s.mu.Lock()
		s.state = StateIdle
		s.originalText = ""
		s.correctedText = ""
		s.lastActive = m.clock()
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, err
	}

	s.mu.Lock()
	s.state = StateCorrecting
	s.originalText = text
	s.mu.Unlock()

	corrected, failed := m.correctText(ctx, userID, text)

	s.mu.Lock()
	s.correctedText = corrected
	s.correctionFailed = failed
	s.state = StateReadyToSave
	s.lastActive = m.clock()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	return snap, nil
}

// Edit replaces the draft's corrected text. Edits are transient session state
// until save; an empty edit is accepted here and rejected by Save.
func (m *Manager) Edit(userID, correctedText string) (Snapshot, error) {
	s := m.lookup(userID)
	if s == nil {
		return Snapshot{}, ErrInvalidState
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReadyToSave {
		return Snapshot{}, ErrInvalidState
	}
	s.correctedText = correctedText
	s.correctionFailed = false
	s.lastActive = m.clock()
	return s.snapshotLocked(), nil
}

// Recorrect re-runs correction against the unedited original transcript,
// discarding any manual edits made since transcription. This is deliberate
// start-over-from-transcript semantics, not a merge.
func (m *Manager) Recorrect(ctx context.Context, userID string) (Snapshot, error) {
	s := m.lookup(userID)
	if s == nil {
		return Snapshot{}, ErrInvalidState
	}

	s.mu.Lock()
	if s.state != StateReadyToSave {
		s.mu.Unlock()
		return Snapshot{}, ErrInvalidState
	}
	original := s.originalText
	s.state = StateCorrecting
	s.mu.Unlock()

	corrected, failed := m.correctText(ctx, userID, original)

	s.mu.Lock()
	s.correctedText = corrected
	s.correctionFailed = failed
	s.state = StateReadyToSave
	s.lastActive = m.clock()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	return snap, nil
}

// Save persists the draft through the note store and resets the session to
// Idle. Both texts must be non-empty; on validation failure no store call is
// made and the state is unchanged. The session mutates only after the store
// confirms the write.
func (m *Manager) Save(ctx context.Context, userID string) (notes.VoiceNote, error) {
	s := m.lookup(userID)
	if s == nil {
		return notes.VoiceNote{}, ErrInvalidState
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReadyToSave {
		return notes.VoiceNote{}, ErrInvalidState
	}
	if strings.TrimSpace(s.originalText) == "" {
		return notes.VoiceNote{}, fmt.Errorf("%w: empty original text", ErrValidation)
	}
	if strings.TrimSpace(s.correctedText) == "" {
		return notes.VoiceNote{}, fmt.Errorf("%w: empty corrected text", ErrValidation)
	}

	note, err := m.notes.Create(ctx, userID, s.originalText, s.correctedText)
	if err != nil {
		m.logger.Error("saving note failed",
			zap.String("user_id", userID),
			zap.Error(err))
		return notes.VoiceNote{}, err
	}

	s.state = StateIdle
	s.originalText = ""
	s.correctedText = ""
	s.correctionFailed = false
	s.lastActive = m.clock()
	return note, nil
}

// Discard abandons the current recording or draft. Discard while Idle is a
// no-op; discarding mid transcription/correction is rejected because there is
// no mid-flight abort.
func (m *Manager) Discard(userID string) (Snapshot, error) {
	s := m.lookup(userID)
	if s == nil {
		return Snapshot{State: StateIdle}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateIdle:
		return s.snapshotLocked(), nil
	case StateRecording, StateReadyToSave:
		s.state = StateIdle
		s.pcm = nil
		s.originalText = ""
		s.correctedText = ""
		s.correctionFailed = false
		s.lastActive = m.clock()
		return s.snapshotLocked(), nil
	default:
		return Snapshot{}, ErrInvalidState
	}
}

// Snapshot reports the user's current session without modifying it.
func (m *Manager) Snapshot(userID string) Snapshot {
	s := m.lookup(userID)
	if s == nil {
		return Snapshot{State: StateIdle}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Run sweeps abandoned sessions until the context is cancelled, so stale
// recordings release their buffers.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.pruneIdle(m.clock())
		}
	}
}

// pruneIdle drops sessions untouched for longer than the TTL. Sessions with a
// transcription or correction in flight are skipped; their completion updates
// lastActive and a later sweep picks them up.
func (m *Manager) pruneIdle(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	pruned := 0
	for userID, s := range m.sessions {
		s.mu.Lock()
		expired := s.state != StateTranscribing &&
			s.state != StateCorrecting &&
			now.Sub(s.lastActive) > m.sessionTTL
		state := s.state
		s.mu.Unlock()
		if expired {
			delete(m.sessions, userID)
			pruned++
			if state != StateIdle {
				m.logger.Info("reclaimed abandoned capture session",
					zap.String("user_id", userID),
					zap.String("state", string(state)))
			}
		}
	}
	return pruned
}

func (m *Manager) correctText(ctx context.Context, userID, original string) (string, bool) {
	var hints []correct.Hint
	entries, err := m.dictionary.List(ctx, userID)
	if err != nil {
		m.logger.Warn("dictionary lookup failed, correcting without hints",
			zap.String("user_id", userID),
			zap.Error(err))
	} else {
		hints = make([]correct.Hint, 0, len(entries))
		for _, entry := range entries {
			hints = append(hints, correct.Hint{
				Word:            entry.Word,
				CorrectSpelling: entry.CorrectSpelling,
			})
		}
	}

	corrected, err := m.corrector.Correct(ctx, original, hints)
	if err != nil {
		m.logger.Warn("correction failed, falling back to original transcript",
			zap.String("user_id", userID),
			zap.Error(err))
		return original, true
	}
	return corrected, false
}

func (m *Manager) obtain(userID string) *session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok {
		s = &session{state: StateIdle, lastActive: m.clock()}
		m.sessions[userID] = s
	}
	return s
}

func (m *Manager) lookup(userID string) *session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[userID]
}

func (s *session) snapshotLocked() Snapshot {
	return Snapshot{
		State:            s.state,
		OriginalText:     s.originalText,
		CorrectedText:    s.correctedText,
		BufferedBytes:    len(s.pcm),
		CorrectionFailed: s.correctionFailed,
	}
}
