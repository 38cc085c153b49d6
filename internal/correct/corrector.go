// Package correct defines the transcript correction boundary. A Corrector
// cleans up a raw transcript (grammar, punctuation, spelling, capitalization)
// while preserving its meaning and tone, optionally biased by per-user
// dictionary hints. Correction is stateless: calling it again on the same
// input simply produces a fresh replacement output.
package correct

import (
	"context"
	"errors"
)

// ErrCorrection indicates the provider call failed. The capture workflow's
// fallback policy substitutes the original text rather than leaving the
// corrected field empty.
var ErrCorrection = errors.New("correct: correction failed")

// Hint is one (spoken form, intended spelling) pair injected into the request
// as an explicit spelling instruction, so generation prefers it over the
// model's default spelling.
type Hint struct {
	Word            string
	CorrectSpelling string
}

// Corrector rewrites a transcript into a cleaned-up version of itself.
type Corrector interface {
	Correct(ctx context.Context, text string, hints []Hint) (string, error)
}
