// Package desktop is the Wails shell: bound methods forward UI commands to
// the session controller and controller events are emitted to the frontend.
package desktop

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"clinscribe/internal/bootstrap"
	"clinscribe/internal/domain"
	"clinscribe/internal/export"
	"clinscribe/internal/ports"
	"clinscribe/internal/usecase"
)

const (
	eventSession      = "clinscribe:session"
	eventLive         = "clinscribe:live"
	eventTranscript   = "clinscribe:transcript"
	eventDraft        = "clinscribe:draft"
	eventVerification = "clinscribe:verification"
	eventTask         = "clinscribe:task"
	eventError        = "clinscribe:error"
)

// Builder assembles the runtime graph with events delivered to sink.
type Builder func(sink ports.EventSink) (*bootstrap.Services, error)

type emitter func(ctx context.Context, name string, data ...interface{})

// App is the Wails application root.
type App struct {
	ctx context.Context

	build      Builder
	services   *bootstrap.Services
	controller *usecase.SessionController
	clipboard  ports.Clipboard
	emit       emitter
	bootErr    error
}

func NewApp(build Builder) *App {
	return &App{
		build:     build,
		clipboard: wailsClipboard{},
		emit:      runtime.EventsEmit,
	}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := a.build(a)
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.services = services
	a.controller = services.Controller
	a.SessionStateChanged(a.controller.Status(), domain.SessionReasonReady)
}

func (a *App) shutdown(_ context.Context) {
	if a.services != nil {
		_ = a.services.Close()
	}
}

// StartCapture opens the microphone for role, or closes it when role is
// already active.
func (a *App) StartCapture(role string) (domain.Utterance, error) {
	if err := a.requireReady(); err != nil {
		return domain.Utterance{}, err
	}
	return a.controller.StartCapture(a.ctx, domain.Role(strings.ToLower(role)))
}

// StopCapture finalizes the active capture and returns its utterance.
func (a *App) StopCapture() (domain.Utterance, error) {
	if err := a.requireReady(); err != nil {
		return domain.Utterance{}, err
	}
	return a.controller.StopCapture(a.ctx)
}

// AbortCapture discards an in-progress capture.
func (a *App) AbortCapture() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.Abort()
}

func (a *App) Analyze() (domain.ConsultationDraft, error) {
	if err := a.requireReady(); err != nil {
		return domain.ConsultationDraft{}, err
	}
	return a.controller.Analyze(a.ctx)
}

func (a *App) VerifyPrescription(index int) (domain.Verification, error) {
	if err := a.requireReady(); err != nil {
		return domain.Verification{}, err
	}
	return a.controller.VerifyPrescription(a.ctx, index)
}

func (a *App) VerifyAll() ([]domain.Verification, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	return a.controller.VerifyAll(a.ctx)
}

func (a *App) UpdateSOAP(section, text string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.UpdateSOAP(domain.SOAPSection(section), text)
}

func (a *App) AddPrescription(p domain.Prescription) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.AddPrescription(p)
}

func (a *App) UpdatePrescription(index int, p domain.Prescription) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.UpdatePrescription(index, p)
}

func (a *App) RemovePrescription(index int) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.RemovePrescription(index)
}

func (a *App) SetApproved(approved bool) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.SetApproved(approved)
}

func (a *App) SetMode(mode string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.SetMode(domain.Mode(strings.ToLower(mode)))
}

func (a *App) SetDemographics(d domain.Demographics) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.controller.SetDemographics(d)
	return nil
}

func (a *App) GetDemographics() domain.Demographics {
	if a.controller == nil {
		return domain.Demographics{}
	}
	return a.controller.Demographics()
}

func (a *App) GetTranscript() []domain.TranscriptEntry {
	if a.controller == nil {
		return nil
	}
	return a.controller.Transcript()
}

func (a *App) GetDraft() *domain.ConsultationDraft {
	if a.controller == nil {
		return nil
	}
	return a.controller.Draft()
}

func (a *App) GetVerifications() []domain.Verification {
	if a.controller == nil {
		return nil
	}
	return a.controller.Verifications()
}

// ArchiveDraft stores the draft and starts a new consultation.
func (a *App) ArchiveDraft() (domain.ConsultationDraft, error) {
	if err := a.requireReady(); err != nil {
		return domain.ConsultationDraft{}, err
	}
	return a.controller.ArchiveDraft(a.ctx)
}

func (a *App) Reset() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.controller.Reset()
	return nil
}

func (a *App) ListArchive() ([]domain.ConsultationDraft, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	return a.controller.ListArchive(a.ctx)
}

func (a *App) GetArchived(id string) (domain.ConsultationDraft, error) {
	if err := a.requireReady(); err != nil {
		return domain.ConsultationDraft{}, err
	}
	return a.controller.ArchivedDraft(a.ctx, id)
}

func (a *App) DeleteArchived(id string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.DeleteArchived(a.ctx, id)
}

// ExportDraft writes the current draft to path. The format is taken from
// format, or from the path extension when format is empty.
func (a *App) ExportDraft(path, format string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	draft := a.controller.Draft()
	if draft == nil {
		return domain.ErrNoDraft
	}
	if format == "" {
		format = filepath.Ext(path)
	}
	f, err := export.ParseFormat(format)
	if err != nil {
		return err
	}
	if err := export.WriteFile(path, *draft, f); err != nil {
		a.SessionError(domain.ErrorCodeExport, err.Error())
		return err
	}
	return nil
}

// CopyNote places the plain-text note on the system clipboard.
func (a *App) CopyNote() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	draft := a.controller.Draft()
	if draft == nil {
		return domain.ErrNoDraft
	}
	if err := a.clipboard.SetText(a.ctx, export.PlainText(*draft)); err != nil {
		a.SessionError(domain.ErrorCodeClipboard, err.Error())
		return err
	}
	return nil
}

// GetStatus returns the current session status.
func (a *App) GetStatus() domain.Status {
	if a.controller == nil {
		if a.bootErr != nil {
			return domain.Status{State: domain.SessionStateError, Message: a.bootErr.Error()}
		}
		return domain.Status{State: domain.SessionStateIdle, Phase: domain.PhaseConsultation}
	}
	return a.controller.Status()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}
	if a.services == nil {
		return map[string]string{}
	}

	cfg := a.services.Config
	return map[string]string{
		"mode":             string(cfg.Session.Mode),
		"doctorLanguage":   cfg.Session.DoctorLanguage,
		"patientLanguage":  cfg.Session.PatientLanguage,
		"documentLanguage": cfg.Session.DocumentLanguage,
		"realtimeModel":    cfg.Realtime.Model,
		"rulesFile":        cfg.Rules.Path,
		"archive":          cfg.Archive.Backend,
		"audioInput":       cfg.Audio.InputDevice,
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.controller == nil {
		return errors.New("application is not initialized")
	}
	return nil
}

func (a *App) send(name string, payload interface{}) {
	if a.ctx == nil {
		return
	}
	a.emit(a.ctx, name, payload)
}

// SessionStateChanged emits session lifecycle updates to the frontend.
func (a *App) SessionStateChanged(status domain.Status, reason domain.SessionStateReason) {
	a.send(eventSession, map[string]interface{}{
		"status":  status,
		"reason":  string(reason),
		"message": sessionReasonMessage(reason, status.Message),
	})
}

// LiveTranscript emits the in-progress text of the active capture.
func (a *App) LiveTranscript(role domain.Role, text string) {
	a.send(eventLive, map[string]string{"role": string(role), "text": text})
}

func (a *App) TranscriptUpdated(entries []domain.TranscriptEntry) {
	if entries == nil {
		entries = []domain.TranscriptEntry{}
	}
	a.send(eventTranscript, entries)
}

func (a *App) DraftChanged(draft *domain.ConsultationDraft) {
	a.send(eventDraft, draft)
}

func (a *App) VerificationChanged(index int, verification domain.Verification) {
	a.send(eventVerification, map[string]interface{}{
		"index":        index,
		"verification": verification,
	})
}

// TaskCompleted emits the outcome of background work such as refinement or
// playback. Failures there are informational.
func (a *App) TaskCompleted(kind domain.TaskKind, err error) {
	payload := map[string]string{"kind": string(kind)}
	if err != nil {
		payload["error"] = err.Error()
	}
	a.send(eventTask, payload)
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	a.send(eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func sessionReasonMessage(reason domain.SessionStateReason, detail string) string {
	switch reason {
	case domain.SessionReasonReady:
		return "Ready"
	case domain.SessionReasonCaptureStarted:
		return "Listening"
	case domain.SessionReasonCaptureSwitched:
		return "Speaker switched"
	case domain.SessionReasonFinalizing:
		return "Finishing utterance..."
	case domain.SessionReasonUtteranceRouted:
		return "Utterance added"
	case domain.SessionReasonNoTranscript:
		return "No speech captured"
	case domain.SessionReasonCaptureDiscarded:
		return "Capture discarded"
	case domain.SessionReasonMicrophoneDenied:
		return "Microphone access denied"
	case domain.SessionReasonChannelFailed:
		return "Transcription unavailable"
	case domain.SessionReasonAnalyzing:
		return "Generating draft..."
	case domain.SessionReasonDraftReady:
		return "Draft ready for review"
	case domain.SessionReasonAnalysisFailed:
		if detail != "" {
			return fmt.Sprintf("Draft failed: %s", detail)
		}
		return "Draft failed"
	case domain.SessionReasonSessionReset:
		return "New consultation"
	case domain.SessionReasonDraftArchived:
		return "Consultation archived"
	case domain.SessionReasonModeChanged:
		return "Mode changed"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeMicrophone:
		return "Microphone access denied"
	case domain.ErrorCodeChannel:
		return "Transcription channel error"
	case domain.ErrorCodeAudioStream:
		return "Audio streaming issue"
	case domain.ErrorCodeBusy:
		return "System busy"
	case domain.ErrorCodeAnalysis:
		return "Analysis error"
	case domain.ErrorCodeVerification:
		return "Audit timeout"
	case domain.ErrorCodeArchive:
		return "Archive write failed"
	case domain.ErrorCodeExport:
		return "Export failed"
	case domain.ErrorCodeClipboard:
		return "Clipboard write failed"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}

type wailsClipboard struct{}

func (wailsClipboard) SetText(ctx context.Context, text string) error {
	return runtime.ClipboardSetText(ctx, text)
}
