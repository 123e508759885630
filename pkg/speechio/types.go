package speechio

import "time"

// RecognitionEvent is one result emitted by a speech input provider.
// Both interim and final results use this type.
type RecognitionEvent struct {
	// Text is the recognized speech content.
	Text string

	// IsFinal indicates whether this is a final (authoritative) or interim
	// (advisory) result. Interim results are for live transcript display only
	// and must never trigger intent matching.
	IsFinal bool

	// Confidence is the recognizer's confidence score (0.0–1.0). May be zero
	// if the provider does not report confidence.
	Confidence float64

	// Timestamp marks when the result was produced.
	Timestamp time.Time
}

// ErrorKind classifies speech input provider errors so the capture state
// machine can decide between retry and fatal shutdown.
type ErrorKind string

const (
	// ErrNoSpeech is a transient no-speech timeout. Recoverable.
	ErrNoSpeech ErrorKind = "no-speech"

	// ErrNetwork is a transient connectivity failure. Recoverable.
	ErrNetwork ErrorKind = "network"

	// ErrNotAllowed means capture permission was denied. Fatal.
	ErrNotAllowed ErrorKind = "not-allowed"

	// ErrAborted means the provider was stopped externally. Fatal for the
	// current session but not an environment problem.
	ErrAborted ErrorKind = "aborted"

	// ErrOther covers anything else. Treated as transient.
	ErrOther ErrorKind = "other"
)

// Recoverable reports whether an error of this kind should be retried with
// backoff rather than terminating the session.
func (k ErrorKind) Recoverable() bool {
	switch k {
	case ErrNoSpeech, ErrNetwork, ErrOther:
		return true
	}
	return false
}

// InputError is an asynchronous error event from a speech input provider.
type InputError struct {
	Kind    ErrorKind
	Message string
}

// VoiceParams controls how a speech output provider renders an utterance.
type VoiceParams struct {
	// Language is the BCP-47 language tag for the voice (e.g., "en-US").
	Language string

	// Rate is the speaking rate multiplier (0.5–2.0, 1.0 = default).
	Rate float64

	// Pitch is the pitch multiplier (0.5–2.0, 1.0 = default).
	Pitch float64

	// Volume is the output volume (0.0–1.0).
	Volume float64
}

// DefaultVoiceParams returns neutral voice parameters for the given language.
func DefaultVoiceParams(language string) VoiceParams {
	return VoiceParams{
		Language: language,
		Rate:     1.0,
		Pitch:    1.0,
		Volume:   1.0,
	}
}

// InputConfig describes how a speech input session should behave.
type InputConfig struct {
	// Language is the BCP-47 language tag for recognition.
	Language string

	// Continuous keeps the recognizer listening across utterance boundaries
	// instead of stopping after the first final result.
	Continuous bool

	// InterimResults requests low-latency interim events in addition to
	// final results.
	InterimResults bool
}
