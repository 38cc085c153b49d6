// Package transcribe defines the speech-to-text client boundary. A
// Transcriber receives one finalized audio artifact and returns a best-effort
// plain-text transcript; correctness of the text is never guaranteed.
package transcribe

import (
	"context"
	"errors"
)

// DefaultLanguage is the language hint applied when a request carries none.
const DefaultLanguage = "en"

var (
	// ErrTranscription indicates the provider call failed (network, malformed
	// audio, or provider error). Callers retry only via an explicit user action.
	ErrTranscription = errors.New("transcribe: transcription failed")
	// ErrEmptyAudio indicates the request carried no audio bytes; it is
	// reported before any network call is made.
	ErrEmptyAudio = errors.New("transcribe: audio artifact is empty")
)

// Request carries a single finalized audio artifact across the component
// boundary. The buffering strategy that produced it is a caller concern.
type Request struct {
	// Audio holds the encoded artifact bytes.
	Audio []byte
	// Format names the container encoding, e.g. "wav".
	Format string
	// Language is an optional hint; empty means DefaultLanguage.
	Language string
}

// Transcriber converts one audio artifact into plain text.
type Transcriber interface {
	Transcribe(ctx context.Context, req Request) (string, error)
}
