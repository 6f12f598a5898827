package ports

import (
	"context"
	"io"

	"clinscribe/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session producing PCM frames.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture acquires microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// AudioPlayer plays synthesized speech once.
type AudioPlayer interface {
	Play(ctx context.Context, pcm []byte, sampleRate int) error
}

// StreamingConfig describes a role-specific live transcription channel.
type StreamingConfig struct {
	Instruction string
	Language    string
	SampleRate  int
	Channels    int
	Encoding    string
}

// StreamingSession is an open live transcription channel.
type StreamingSession interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Events() <-chan domain.TranscriptEvent
	Wait() error
	Close() error
}

// TranscriptionProvider opens live transcription channels.
type TranscriptionProvider interface {
	StartStreaming(ctx context.Context, cfg StreamingConfig) (StreamingSession, error)
}

// Reasoner turns a flattened transcript into a structured draft.
type Reasoner interface {
	Analyze(ctx context.Context, transcript string) (domain.ConsultationDraft, error)
}

// Translator translates an utterance between two languages.
type Translator interface {
	Translate(ctx context.Context, text, from, to string) (domain.Translation, error)
}

// Refiner cleans up a raw utterance in the expected document language.
type Refiner interface {
	Refine(ctx context.Context, text, language string) (string, error)
}

// Verifier audits a prescription for safety.
type Verifier interface {
	Verify(ctx context.Context, medicine, dosage string) (domain.VerificationResult, error)
}

// RulesEngine transforms finalized utterances using deterministic rules.
type RulesEngine interface {
	Apply(text string) (string, error)
}

// Archive is the persistent, identifier-keyed collection of completed drafts.
type Archive interface {
	List(ctx context.Context) ([]domain.ConsultationDraft, error)
	Get(ctx context.Context, id string) (domain.ConsultationDraft, error)
	Put(ctx context.Context, draft domain.ConsultationDraft) error
	Delete(ctx context.Context, id string) error
}

// Clipboard writes text into the system clipboard.
type Clipboard interface {
	SetText(ctx context.Context, text string) error
}

// EventSink receives session events for the UI.
type EventSink interface {
	SessionStateChanged(status domain.Status, reason domain.SessionStateReason)
	LiveTranscript(role domain.Role, text string)
	TranscriptUpdated(entries []domain.TranscriptEntry)
	DraftChanged(draft *domain.ConsultationDraft)
	VerificationChanged(index int, verification domain.Verification)
	TaskCompleted(kind domain.TaskKind, err error)
	SessionError(code domain.ErrorCode, detail string)
}
