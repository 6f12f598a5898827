package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"clinscribe/internal/domain"
	"clinscribe/internal/metrics"
	"clinscribe/internal/ports"
	"clinscribe/internal/retry"
)

// Languages maps each role to its expected spoken language tag.
type Languages struct {
	Doctor   string
	Patient  string
	Document string
}

// Config controls capture, routing and retry behavior.
type Config struct {
	Mode      domain.Mode
	Languages Languages
	Audio     ports.AudioConfig
	ChunkSize int

	// FinalizeGrace is the wait between halting audio and reading the
	// capture buffer. Zero disables the wait.
	FinalizeGrace      time.Duration
	StreamCloseTimeout time.Duration
	PlaybackSampleRate int

	// Retry applies to every external service call. A nil Retryable retries
	// quota errors only.
	Retry retry.Policy

	Now   func() time.Time
	NewID func() string
}

// Dependencies are the collaborators a SessionController drives.
type Dependencies struct {
	Audio       ports.AudioCapture
	Transcriber ports.TranscriptionProvider
	Reasoner    ports.Reasoner
	Translator  ports.Translator
	Refiner     ports.Refiner
	Verifier    ports.Verifier
	Player      ports.AudioPlayer
	Rules       ports.RulesEngine
	Archive     ports.Archive
	Events      ports.EventSink
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

// SessionController owns the consultation session: the active capture, the
// transcript log, the draft and its verification state. Commands that change
// the capture or the draft lifecycle are serialized; state reads are not.
type SessionController struct {
	deps   Dependencies
	cfg    Config
	logger *slog.Logger

	// opMu serializes StartCapture, StopCapture, Analyze, Reset and archive
	// commands so at most one finalize is in flight.
	opMu sync.Mutex

	mu            sync.Mutex
	mode          domain.Mode
	phase         domain.Phase
	state         domain.SessionState
	message       string
	capture       *activeCapture
	liveText      string
	draft         *domain.ConsultationDraft
	demographics  domain.Demographics
	verifications []domain.Verification

	log *transcriptLog

	lifetime context.Context
	cancel   context.CancelFunc
	tasks    sync.WaitGroup
}

func NewSessionController(deps Dependencies, cfg Config) *SessionController {
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = 4096
	}
	if cfg.FinalizeGrace < 0 {
		cfg.FinalizeGrace = 0
	}
	if cfg.StreamCloseTimeout <= 0 {
		cfg.StreamCloseTimeout = 4 * time.Second
	}
	if cfg.PlaybackSampleRate <= 0 {
		cfg.PlaybackSampleRate = 24000
	}
	if !cfg.Mode.Valid() {
		cfg.Mode = domain.ModeUnilingual
	}
	if cfg.Retry.Retryable == nil {
		cfg.Retry.Retryable = domain.IsQuota
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if deps.Events == nil {
		deps.Events = noopSink{}
	}

	lifetime, cancel := context.WithCancel(context.Background())
	return &SessionController{
		deps:     deps,
		cfg:      cfg,
		logger:   logger.With("component", "session"),
		mode:     cfg.Mode,
		phase:    domain.PhaseConsultation,
		state:    domain.SessionStateIdle,
		log:      newTranscriptLog(),
		lifetime: lifetime,
		cancel:   cancel,
	}
}

// Status returns a snapshot of the session.
func (c *SessionController) Status() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *SessionController) statusLocked() domain.Status {
	status := domain.Status{
		Mode:     c.mode,
		Phase:    c.phase,
		State:    c.state,
		LiveText: c.liveText,
		Entries:  c.log.Len(),
		HasDraft: c.draft != nil,
		Message:  c.message,
	}
	if c.capture != nil {
		status.ActiveRole = c.capture.role
	}
	return status
}

// Mode returns the current consultation mode.
func (c *SessionController) Mode() domain.Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Transcript returns a copy of the transcript log.
func (c *SessionController) Transcript() []domain.TranscriptEntry {
	return c.log.Snapshot()
}

func (c *SessionController) transition(state domain.SessionState, reason domain.SessionStateReason, message string) {
	c.mu.Lock()
	c.state = state
	c.message = message
	status := c.statusLocked()
	c.mu.Unlock()

	c.deps.Events.SessionStateChanged(status, reason)
}

func (c *SessionController) currentCapture() *activeCapture {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capture
}

func (c *SessionController) languageFor(role domain.Role) string {
	switch role {
	case domain.RoleDoctor:
		return c.cfg.Languages.Doctor
	case domain.RolePatient:
		return c.cfg.Languages.Patient
	default:
		return c.cfg.Languages.Document
	}
}

// spawn runs a background side effect bound to the controller lifetime.
// Its outcome is always reported through TaskCompleted, even when ignored.
func (c *SessionController) spawn(kind domain.TaskKind, fn func(ctx context.Context) error) {
	c.tasks.Add(1)
	go func() {
		defer c.tasks.Done()
		err := fn(c.lifetime)
		if err != nil {
			c.logger.Warn("background task failed", "task", kind, "error", err)
		}
		c.deps.Events.TaskCompleted(kind, err)
	}()
}

// Drain waits for background refinement and playback tasks to finish.
func (c *SessionController) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.tasks.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close discards any active capture, cancels background tasks and waits
// for them to exit.
func (c *SessionController) Close() error {
	c.opMu.Lock()
	if active := c.currentCapture(); active != nil {
		c.abortLocked(active)
	}
	c.opMu.Unlock()

	c.cancel()
	c.tasks.Wait()
	return nil
}

type noopSink struct{}

func (noopSink) SessionStateChanged(domain.Status, domain.SessionStateReason) {}
func (noopSink) LiveTranscript(domain.Role, string)                           {}
func (noopSink) TranscriptUpdated([]domain.TranscriptEntry)                   {}
func (noopSink) DraftChanged(*domain.ConsultationDraft)                       {}
func (noopSink) VerificationChanged(int, domain.Verification)                 {}
func (noopSink) TaskCompleted(domain.TaskKind, error)                         {}
func (noopSink) SessionError(domain.ErrorCode, string)                        {}
