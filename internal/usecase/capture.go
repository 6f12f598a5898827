package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"clinscribe/internal/domain"
	"clinscribe/internal/ports"
)

// activeCapture holds the resources of one role's capture. They are released
// only through teardown.
type activeCapture struct {
	role      domain.Role
	startedAt time.Time
	cancel    context.CancelFunc
	audio     ports.AudioSession
	stream    ports.StreamingSession
	buffer    *captureBuffer

	halted     atomic.Bool
	pumpDone   chan struct{}
	eventsDone chan struct{}
}

// captureBuffer accumulates fragments for the active role: a space-joined
// internal buffer and the raw user-visible live text.
type captureBuffer struct {
	mu        sync.Mutex
	fragments []string
	live      strings.Builder
	sealed    bool
}

// Append records a fragment and returns the updated live text. Fragments
// arriving after Seal are ignored.
func (b *captureBuffer) Append(text string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sealed {
		return "", false
	}
	b.fragments = append(b.fragments, text)
	b.live.WriteString(text)
	return b.live.String(), true
}

// Seal stops accepting fragments and returns the buffer with whitespace
// collapsed and trimmed.
func (b *captureBuffer) Seal() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sealed = true
	return strings.Join(strings.Fields(strings.Join(b.fragments, " ")), " ")
}

// StartCapture begins capturing role. If role is already capturing the call
// finalizes it instead, like a push-to-talk toggle. If another role is
// capturing, that capture is fully finalized and routed before the new
// microphone and channel are acquired. The returned utterance is the one
// finalized by this call, if any.
func (c *SessionController) StartCapture(ctx context.Context, role domain.Role) (domain.Utterance, error) {
	if !role.Valid() {
		return domain.Utterance{}, fmt.Errorf("%w: %q", domain.ErrInvalidRole, role)
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	var finalized domain.Utterance
	switched := false
	if active := c.currentCapture(); active != nil {
		if active.role == role {
			return c.stopCaptureLocked(ctx, active), nil
		}
		finalized = c.stopCaptureLocked(ctx, active)
		switched = true
	}

	if err := c.startCaptureLocked(role, switched); err != nil {
		return finalized, err
	}
	return finalized, nil
}

// StopCapture finalizes the active capture and routes its text. It is a no-op
// returning a zero Utterance when nothing is capturing.
func (c *SessionController) StopCapture(ctx context.Context) (domain.Utterance, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	active := c.currentCapture()
	if active == nil {
		return domain.Utterance{}, nil
	}
	return c.stopCaptureLocked(ctx, active), nil
}

// Abort discards the active capture without routing its text.
func (c *SessionController) Abort() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	active := c.currentCapture()
	if active == nil {
		return nil
	}
	c.abortLocked(active)
	c.transition(domain.SessionStateIdle, domain.SessionReasonCaptureDiscarded, "")
	return nil
}

func (c *SessionController) startCaptureLocked(role domain.Role, switched bool) error {
	c.setLiveText(role, "")

	captureCtx, cancel := context.WithCancel(c.lifetime)

	audio, err := c.deps.Audio.Start(captureCtx, c.cfg.Audio)
	if err != nil {
		cancel()
		var micErr *domain.MicrophoneAccessError
		if !errors.As(err, &micErr) {
			err = &domain.MicrophoneAccessError{Err: err}
		}
		c.logger.Error("microphone unavailable", "role", role, "error", err)
		c.deps.Events.SessionError(domain.ErrorCodeMicrophone, "microphone access denied")
		c.transition(domain.SessionStateIdle, domain.SessionReasonMicrophoneDenied, "microphone access denied")
		return err
	}

	language := c.languageFor(role)
	stream, err := c.deps.Transcriber.StartStreaming(captureCtx, ports.StreamingConfig{
		Instruction: captureInstruction(role, language),
		Language:    language,
		SampleRate:  c.cfg.Audio.SampleRate,
		Channels:    c.cfg.Audio.Channels,
		Encoding:    "pcm_s16le",
	})
	if err != nil {
		_ = audio.Stop()
		cancel()
		c.logger.Error("transcription channel failed to open", "role", role, "error", err)
		c.deps.Events.SessionError(domain.ErrorCodeChannel, "transcription channel unavailable")
		c.transition(domain.SessionStateIdle, domain.SessionReasonChannelFailed, "transcription channel unavailable")
		return fmt.Errorf("open transcription channel: %w", err)
	}

	active := &activeCapture{
		role:       role,
		startedAt:  c.cfg.Now(),
		cancel:     cancel,
		audio:      audio,
		stream:     stream,
		buffer:     &captureBuffer{},
		pumpDone:   make(chan struct{}),
		eventsDone: make(chan struct{}),
	}

	c.mu.Lock()
	c.capture = active
	c.mu.Unlock()

	go c.consumeFragments(active)
	go pumpAudioChunks(active.audio, active.stream, c.cfg.ChunkSize, &active.halted, c.reportAudioError, active.pumpDone)

	c.deps.Metrics.RecordCaptureStarted()
	c.logger.Info("capture started", "role", role, "language", language)

	reason := domain.SessionReasonCaptureStarted
	if switched {
		reason = domain.SessionReasonCaptureSwitched
	}
	c.transition(domain.SessionStateCapturing, reason, "")
	return nil
}

func (c *SessionController) stopCaptureLocked(ctx context.Context, active *activeCapture) domain.Utterance {
	c.transition(domain.SessionStateFinalizing, domain.SessionReasonFinalizing, "")

	active.halted.Store(true)
	if c.cfg.FinalizeGrace > 0 {
		timer := time.NewTimer(c.cfg.FinalizeGrace)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
		}
	}

	text := active.buffer.Seal()
	c.teardown(active)
	c.deps.Metrics.RecordCaptureFinished(c.cfg.Now().Sub(active.startedAt))

	if text == "" {
		c.deps.Metrics.RecordUtterance(string(c.Mode()), "empty")
		c.transition(domain.SessionStateIdle, domain.SessionReasonNoTranscript, "")
		return domain.Utterance{}
	}

	if c.deps.Rules != nil {
		transformed, err := c.deps.Rules.Apply(text)
		if err != nil {
			c.logger.Warn("substitution rules failed, keeping raw text", "error", err)
		} else if strings.TrimSpace(transformed) != "" {
			text = strings.TrimSpace(transformed)
		}
	}

	utterance := domain.Utterance{Role: active.role, Text: text}
	c.route(utterance)
	c.transition(domain.SessionStateIdle, domain.SessionReasonUtteranceRouted, "")
	return utterance
}

func (c *SessionController) abortLocked(active *activeCapture) {
	active.halted.Store(true)
	active.buffer.Seal()
	c.teardown(active)
	c.logger.Info("capture discarded", "role", active.role)
}

// teardown releases the audio session and the channel of active. Release
// errors are logged and never block the caller past StreamCloseTimeout.
func (c *SessionController) teardown(active *activeCapture) {
	if err := active.audio.Stop(); err != nil {
		c.logger.Warn("audio capture did not stop cleanly", "role", active.role, "error", err)
	}
	_ = active.stream.CloseSend()
	if err := closeStream(active.stream, c.cfg.StreamCloseTimeout); err != nil {
		c.logger.Warn("transcription channel closed with error", "role", active.role, "error", err)
	}
	active.cancel()

	deadline := time.NewTimer(c.cfg.StreamCloseTimeout)
	defer deadline.Stop()
wait:
	for _, done := range []chan struct{}{active.pumpDone, active.eventsDone} {
		select {
		case <-done:
		case <-deadline.C:
			c.logger.Warn("capture goroutines still running after teardown", "role", active.role)
			break wait
		}
	}

	c.mu.Lock()
	if c.capture == active {
		c.capture = nil
	}
	c.mu.Unlock()
}

// consumeFragments appends channel fragments to the capture buffer in
// arrival order. Channel error events are logged and never end the capture.
func (c *SessionController) consumeFragments(active *activeCapture) {
	defer close(active.eventsDone)

	for event := range active.stream.Events() {
		switch event.Kind {
		case domain.TranscriptEventError:
			err := &domain.ChannelError{Err: errors.New(event.Text)}
			c.deps.Metrics.RecordChannelError()
			c.logger.Warn("transcription channel error", "role", active.role, "error", err)
			c.deps.Events.TaskCompleted(domain.TaskChannel, err)
		default:
			if event.Text == "" {
				continue
			}
			live, ok := active.buffer.Append(event.Text)
			if ok {
				c.setLiveText(active.role, live)
			}
		}
	}
}

func (c *SessionController) setLiveText(role domain.Role, text string) {
	c.mu.Lock()
	c.liveText = text
	c.mu.Unlock()

	c.deps.Events.LiveTranscript(role, text)
}

func (c *SessionController) reportAudioError(err error) {
	c.logger.Error("audio stream interrupted", "error", err)
	c.deps.Events.SessionError(domain.ErrorCodeAudioStream, fmt.Sprintf("audio stream interrupted: %v", err))
}
