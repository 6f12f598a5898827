package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"clinscribe/internal/domain"
	"clinscribe/internal/ports"
	"clinscribe/internal/retry"
)

// trace records the order in which fakes acquire and release resources.
type trace struct {
	mu    sync.Mutex
	steps []string
}

func (t *trace) add(step string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.steps = append(t.steps, step)
}

func (t *trace) snapshot() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.steps))
	copy(out, t.steps)
	return out
}

type fakeAudioCapture struct {
	mu       sync.Mutex
	sessions []*fakeAudioSession
	err      error
	calls    int
	trace    *trace
	onStart  func()
}

func (f *fakeAudioCapture) Start(_ context.Context, _ ports.AudioConfig) (ports.AudioSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.onStart != nil {
		f.onStart()
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.calls >= len(f.sessions) {
		return nil, errors.New("no audio session configured")
	}
	session := f.sessions[f.calls]
	f.calls++
	f.trace.add(fmt.Sprintf("audio.start#%d", f.calls))
	session.name = fmt.Sprintf("#%d", f.calls)
	session.trace = f.trace
	return session, nil
}

// fakeAudioSession yields its chunks, then blocks until stopped.
type fakeAudioSession struct {
	mu        sync.Mutex
	chunks    [][]byte
	index     int
	stopCalls int
	stopErr   error
	stopped   chan struct{}
	name      string
	trace     *trace
}

func newFakeAudioSession(chunks ...[]byte) *fakeAudioSession {
	return &fakeAudioSession{chunks: chunks, stopped: make(chan struct{})}
}

func (f *fakeAudioSession) Read(p []byte) (int, error) {
	f.mu.Lock()
	if f.index < len(f.chunks) {
		n := copy(p, f.chunks[f.index])
		f.index++
		f.mu.Unlock()
		return n, nil
	}
	f.mu.Unlock()

	<-f.stopped
	return 0, io.EOF
}

func (f *fakeAudioSession) Close() error { return f.Stop() }

func (f *fakeAudioSession) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	if f.stopCalls == 1 {
		close(f.stopped)
		f.trace.add("audio.stop" + f.name)
	}
	return f.stopErr
}

func (f *fakeAudioSession) stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopCalls
}

type fakeProvider struct {
	mu       sync.Mutex
	sessions []*fakeStreamingSession
	configs  []ports.StreamingConfig
	err      error
	calls    int
	trace    *trace
}

func (f *fakeProvider) StartStreaming(_ context.Context, cfg ports.StreamingConfig) (ports.StreamingSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configs = append(f.configs, cfg)
	if f.err != nil {
		return nil, f.err
	}
	if f.calls >= len(f.sessions) {
		return nil, errors.New("no stream session configured")
	}
	session := f.sessions[f.calls]
	f.calls++
	f.trace.add(fmt.Sprintf("stream.open#%d", f.calls))
	session.name = fmt.Sprintf("#%d", f.calls)
	session.trace = f.trace
	return session, nil
}

func (f *fakeProvider) startCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.configs)
}

type fakeStreamingSession struct {
	mu         sync.Mutex
	events     chan domain.TranscriptEvent
	sent       [][]byte
	closeSend  int
	closeCalls int
	closed     bool
	closeErr   error
	name       string
	trace      *trace
}

// newFakeStreamingSession queues fragments that are delivered as soon as
// the session is consumed.
func newFakeStreamingSession(fragments ...string) *fakeStreamingSession {
	s := &fakeStreamingSession{events: make(chan domain.TranscriptEvent, 16)}
	for _, fragment := range fragments {
		s.events <- domain.TranscriptEvent{Kind: domain.TranscriptEventFragment, Text: fragment}
	}
	return s
}

func (f *fakeStreamingSession) SendAudio(chunk []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, append([]byte(nil), chunk...))
	return nil
}

func (f *fakeStreamingSession) CloseSend() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeSend++
	return nil
}

func (f *fakeStreamingSession) Events() <-chan domain.TranscriptEvent { return f.events }

func (f *fakeStreamingSession) Wait() error { return nil }

func (f *fakeStreamingSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	if !f.closed {
		close(f.events)
		f.closed = true
		f.trace.add("stream.close" + f.name)
	}
	return f.closeErr
}

func (f *fakeStreamingSession) closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCalls
}

func (f *fakeStreamingSession) sentBytes() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []byte
	for _, chunk := range f.sent {
		out = append(out, chunk...)
	}
	return out
}

type translateCall struct {
	text, from, to string
}

type fakeTranslator struct {
	mu      sync.Mutex
	results []domain.Translation
	errs    []error
	calls   []translateCall
	trace   *trace
}

// Translate returns errs[n] for the nth call while one is set, then results.
func (f *fakeTranslator) Translate(_ context.Context, text, from, to string) (domain.Translation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.calls)
	f.calls = append(f.calls, translateCall{text: text, from: from, to: to})
	f.trace.add("translate")
	if n < len(f.errs) && f.errs[n] != nil {
		return domain.Translation{}, f.errs[n]
	}
	if len(f.results) == 0 {
		return domain.Translation{Text: "translated: " + text}, nil
	}
	return f.results[min(n, len(f.results)-1)], nil
}

func (f *fakeTranslator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeRefiner struct {
	mu       sync.Mutex
	refined  map[string]string
	err      error
	release  chan struct{}
	calls    []string
	language string
}

func (f *fakeRefiner) Refine(ctx context.Context, text, language string) (string, error) {
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, text)
	f.language = language
	if f.err != nil {
		return "", f.err
	}
	if refined, ok := f.refined[text]; ok {
		return refined, nil
	}
	return "Refined " + text, nil
}

type fakeReasoner struct {
	mu          sync.Mutex
	draft       domain.ConsultationDraft
	errs        []error
	calls       int
	transcripts []string
}

func (f *fakeReasoner) Analyze(_ context.Context, transcript string) (domain.ConsultationDraft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.calls
	f.calls++
	f.transcripts = append(f.transcripts, transcript)
	if n < len(f.errs) && f.errs[n] != nil {
		return domain.ConsultationDraft{}, f.errs[n]
	}
	return f.draft.Clone(), nil
}

func (f *fakeReasoner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type verifyResponse struct {
	delay  time.Duration
	result domain.VerificationResult
	err    error
}

type fakeVerifier struct {
	responses map[string]verifyResponse
}

func (f *fakeVerifier) Verify(ctx context.Context, medicine, _ string) (domain.VerificationResult, error) {
	response := f.responses[medicine]
	if response.delay > 0 {
		select {
		case <-time.After(response.delay):
		case <-ctx.Done():
			return domain.VerificationResult{}, ctx.Err()
		}
	}
	return response.result, response.err
}

type fakePlayer struct {
	mu         sync.Mutex
	err        error
	played     [][]byte
	sampleRate int
}

func (f *fakePlayer) Play(_ context.Context, pcm []byte, sampleRate int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.played = append(f.played, pcm)
	f.sampleRate = sampleRate
	return f.err
}

type fakeRules struct {
	transform string
	err       error
	// release, when set, holds Apply until it is closed.
	release chan struct{}
}

func (f *fakeRules) Apply(text string) (string, error) {
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return "", f.err
	}
	if f.transform != "" {
		return f.transform, nil
	}
	return text, nil
}

type fakeArchive struct {
	mu     sync.Mutex
	drafts map[string]domain.ConsultationDraft
	err    error
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{drafts: map[string]domain.ConsultationDraft{}}
}

func (f *fakeArchive) List(_ context.Context) ([]domain.ConsultationDraft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.ConsultationDraft, 0, len(f.drafts))
	for _, draft := range f.drafts {
		out = append(out, draft)
	}
	return out, nil
}

func (f *fakeArchive) Get(_ context.Context, id string) (domain.ConsultationDraft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	draft, ok := f.drafts[id]
	if !ok {
		return domain.ConsultationDraft{}, domain.ErrDraftNotFound
	}
	return draft, nil
}

func (f *fakeArchive) Put(_ context.Context, draft domain.ConsultationDraft) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.drafts[draft.ID] = draft
	return nil
}

func (f *fakeArchive) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.drafts, id)
	return nil
}

type stateEvent struct {
	status domain.Status
	reason domain.SessionStateReason
}

type errEvent struct {
	code   domain.ErrorCode
	detail string
}

type taskEvent struct {
	kind domain.TaskKind
	err  error
}

type verificationEvent struct {
	index        int
	verification domain.Verification
}

type fakeEventSink struct {
	mu sync.Mutex

	states        []stateEvent
	live          []string
	transcripts   [][]domain.TranscriptEntry
	drafts        []*domain.ConsultationDraft
	verifications []verificationEvent
	tasks         []taskEvent
	errors        []errEvent
}

func (f *fakeEventSink) SessionStateChanged(status domain.Status, reason domain.SessionStateReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, stateEvent{status: status, reason: reason})
}

func (f *fakeEventSink) LiveTranscript(_ domain.Role, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.live = append(f.live, text)
}

func (f *fakeEventSink) TranscriptUpdated(entries []domain.TranscriptEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transcripts = append(f.transcripts, entries)
}

func (f *fakeEventSink) DraftChanged(draft *domain.ConsultationDraft) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drafts = append(f.drafts, draft)
}

func (f *fakeEventSink) VerificationChanged(index int, verification domain.Verification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifications = append(f.verifications, verificationEvent{index: index, verification: verification})
}

func (f *fakeEventSink) TaskCompleted(kind domain.TaskKind, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, taskEvent{kind: kind, err: err})
}

func (f *fakeEventSink) SessionError(code domain.ErrorCode, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, errEvent{code: code, detail: detail})
}

func (f *fakeEventSink) snapshotStates() []stateEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]stateEvent, len(f.states))
	copy(out, f.states)
	return out
}

func (f *fakeEventSink) snapshotErrors() []errEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]errEvent, len(f.errors))
	copy(out, f.errors)
	return out
}

func (f *fakeEventSink) snapshotTasks() []taskEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]taskEvent, len(f.tasks))
	copy(out, f.tasks)
	return out
}

func (f *fakeEventSink) snapshotVerifications() []verificationEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]verificationEvent, len(f.verifications))
	copy(out, f.verifications)
	return out
}

func (f *fakeEventSink) lastLive() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.live) == 0 {
		return ""
	}
	return f.live[len(f.live)-1]
}

func (f *fakeEventSink) lastReason() domain.SessionStateReason {
	states := f.snapshotStates()
	if len(states) == 0 {
		return ""
	}
	return states[len(states)-1].reason
}

// harness bundles a controller with its fakes.
type harness struct {
	controller *SessionController
	audio      *fakeAudioCapture
	provider   *fakeProvider
	translator *fakeTranslator
	refiner    *fakeRefiner
	reasoner   *fakeReasoner
	verifier   *fakeVerifier
	player     *fakePlayer
	archive    *fakeArchive
	events     *fakeEventSink
	trace      *trace
	delays     *[]time.Duration
}

type harnessOption func(*Dependencies, *Config)

func withMode(mode domain.Mode) harnessOption {
	return func(_ *Dependencies, cfg *Config) { cfg.Mode = mode }
}

func withRules(rules ports.RulesEngine) harnessOption {
	return func(deps *Dependencies, _ *Config) { deps.Rules = rules }
}

func withFinalizeGrace(d time.Duration) harnessOption {
	return func(_ *Dependencies, cfg *Config) { cfg.FinalizeGrace = d }
}

// newHarness builds a controller whose capture sessions are taken in order
// from streams. Retries sleep for no time and record the requested delays.
func newHarness(t *testing.T, streams []*fakeStreamingSession, opts ...harnessOption) *harness {
	t.Helper()

	tr := &trace{}
	audioSessions := make([]*fakeAudioSession, len(streams))
	for i := range streams {
		audioSessions[i] = newFakeAudioSession([]byte("pcm-frame"))
	}

	delays := &[]time.Duration{}
	var delaysMu sync.Mutex

	h := &harness{
		audio:      &fakeAudioCapture{sessions: audioSessions, trace: tr},
		provider:   &fakeProvider{sessions: streams, trace: tr},
		translator: &fakeTranslator{trace: tr},
		refiner:    &fakeRefiner{},
		reasoner:   &fakeReasoner{},
		verifier:   &fakeVerifier{responses: map[string]verifyResponse{}},
		player:     &fakePlayer{},
		archive:    newFakeArchive(),
		events:     &fakeEventSink{},
		trace:      tr,
		delays:     delays,
	}

	deps := Dependencies{
		Audio:       h.audio,
		Transcriber: h.provider,
		Reasoner:    h.reasoner,
		Translator:  h.translator,
		Refiner:     h.refiner,
		Verifier:    h.verifier,
		Player:      h.player,
		Archive:     h.archive,
		Events:      h.events,
	}
	cfg := Config{
		Mode:               domain.ModeUnilingual,
		Languages:          Languages{Doctor: "en", Patient: "es", Document: "en"},
		Audio:              ports.AudioConfig{SampleRate: 16000, Channels: 1},
		FinalizeGrace:      5 * time.Millisecond,
		StreamCloseTimeout: time.Second,
		Retry: retry.Policy{
			MaxRetries:   2,
			InitialDelay: 200 * time.Millisecond,
			Multiplier:   2,
			Sleep: func(_ context.Context, d time.Duration) error {
				delaysMu.Lock()
				defer delaysMu.Unlock()
				*delays = append(*delays, d)
				return nil
			},
		},
		Now:   func() time.Time { return time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC) },
		NewID: func() string { return "draft-1" },
	}
	for _, opt := range opts {
		opt(&deps, &cfg)
	}

	h.controller = NewSessionController(deps, cfg)
	t.Cleanup(func() { _ = h.controller.Close() })
	return h
}

// speak starts a capture for role and waits until every queued fragment of
// the session has reached the live text.
func (h *harness) speak(t *testing.T, role domain.Role, want string) {
	t.Helper()
	if _, err := h.controller.StartCapture(context.Background(), role); err != nil {
		t.Fatalf("start capture failed: %v", err)
	}
	h.waitLive(t, want)
}

func (h *harness) waitLive(t *testing.T, want string) {
	t.Helper()
	waitFor(t, func() bool { return h.events.lastLive() == want }, "live text %q, got %q", want, h.events.lastLive())
}

func (h *harness) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.controller.Drain(ctx); err != nil {
		t.Fatalf("drain failed: %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool, format string, args ...any) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for "+format, args...)
}
