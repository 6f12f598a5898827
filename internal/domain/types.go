package domain

import "time"

// Role identifies which voice is being captured.
type Role string

const (
	RoleNone    Role = ""
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
	RoleScribe  Role = "scribe"
)

// Valid reports whether r names a capturable role.
func (r Role) Valid() bool {
	switch r {
	case RoleDoctor, RolePatient, RoleScribe:
		return true
	default:
		return false
	}
}

// Bilingual reports whether r is one of the two interpreter-mode speakers.
func (r Role) Bilingual() bool {
	return r == RoleDoctor || r == RolePatient
}

// Counterpart returns the other interpreter-mode speaker.
func (r Role) Counterpart() Role {
	switch r {
	case RoleDoctor:
		return RolePatient
	case RolePatient:
		return RoleDoctor
	default:
		return RoleNone
	}
}

// Mode selects single-party scribing or two-party interpreting.
type Mode string

const (
	ModeUnilingual Mode = "unilingual"
	ModeBilingual  Mode = "bilingual"
)

// Valid reports whether m is a known consultation mode.
func (m Mode) Valid() bool {
	return m == ModeUnilingual || m == ModeBilingual
}

// SessionState models the capture lifecycle.
type SessionState string

const (
	SessionStateIdle       SessionState = "idle"
	SessionStateCapturing  SessionState = "capturing"
	SessionStateFinalizing SessionState = "finalizing"
	SessionStateAnalyzing  SessionState = "analyzing"
	SessionStateError      SessionState = "error"
)

// Phase is the coarse consultation view: still talking, or reviewing a draft.
type Phase string

const (
	PhaseConsultation Phase = "consultation"
	PhaseReview       Phase = "review"
)

// SessionStateReason provides a structured reason for state transitions.
type SessionStateReason string

const (
	SessionReasonReady            SessionStateReason = "ready"
	SessionReasonCaptureStarted   SessionStateReason = "capture_started"
	SessionReasonCaptureSwitched  SessionStateReason = "capture_switched"
	SessionReasonFinalizing       SessionStateReason = "finalizing"
	SessionReasonUtteranceRouted  SessionStateReason = "utterance_routed"
	SessionReasonNoTranscript     SessionStateReason = "no_transcript"
	SessionReasonCaptureDiscarded SessionStateReason = "capture_discarded"
	SessionReasonMicrophoneDenied SessionStateReason = "microphone_denied"
	SessionReasonChannelFailed    SessionStateReason = "channel_failed"
	SessionReasonAnalyzing        SessionStateReason = "analyzing"
	SessionReasonDraftReady       SessionStateReason = "draft_ready"
	SessionReasonAnalysisFailed   SessionStateReason = "analysis_failed"
	SessionReasonSessionReset     SessionStateReason = "session_reset"
	SessionReasonDraftArchived    SessionStateReason = "draft_archived"
	SessionReasonModeChanged      SessionStateReason = "mode_changed"
)

// ErrorCode identifies errors surfaced to the user.
type ErrorCode string

const (
	ErrorCodeStartup      ErrorCode = "startup"
	ErrorCodeMicrophone   ErrorCode = "microphone"
	ErrorCodeChannel      ErrorCode = "channel"
	ErrorCodeAudioStream  ErrorCode = "audio_stream"
	ErrorCodeAnalysis     ErrorCode = "analysis"
	ErrorCodeBusy         ErrorCode = "busy"
	ErrorCodeVerification ErrorCode = "verification"
	ErrorCodeArchive      ErrorCode = "archive"
	ErrorCodeExport       ErrorCode = "export"
	ErrorCodeClipboard    ErrorCode = "clipboard"
)

// TaskKind names a background side effect whose outcome is reported but not surfaced.
type TaskKind string

const (
	TaskRefinement TaskKind = "refinement"
	TaskPlayback   TaskKind = "playback"
	TaskChannel    TaskKind = "channel"
)

// TranscriptEventKind separates transcript text from channel-level errors.
type TranscriptEventKind string

const (
	TranscriptEventFragment TranscriptEventKind = "fragment"
	TranscriptEventError    TranscriptEventKind = "error"
)

// TranscriptEvent is one message delivered by a live transcription channel.
type TranscriptEvent struct {
	Kind TranscriptEventKind `json:"kind"`
	Text string              `json:"text"`
}

// EntryKind distinguishes the two transcript log shapes.
type EntryKind string

const (
	EntryScribe   EntryKind = "scribe"
	EntryDialogue EntryKind = "dialogue"
)

// TranscriptEntry is one finalized utterance in the consultation log.
// Refined and Translated are empty until the asynchronous result is attached.
type TranscriptEntry struct {
	Kind       EntryKind `json:"kind"`
	Role       Role      `json:"role"`
	Original   string    `json:"original"`
	Refined    string    `json:"refined,omitempty"`
	Translated string    `json:"translated,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// RefinementPending reports whether a scribe entry still waits for refinement.
func (e TranscriptEntry) RefinementPending() bool {
	return e.Kind == EntryScribe && e.Refined == ""
}

// Utterance is returned once a capture has been finalized.
type Utterance struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Demographics holds the patient record attached to a draft.
type Demographics struct {
	Name        string `json:"name"`
	Age         string `json:"age"`
	Sex         string `json:"sex"`
	DateOfBirth string `json:"dateOfBirth,omitempty"`
	PatientID   string `json:"patientId,omitempty"`
}

// SOAP holds the four free-text sections of a clinical note.
type SOAP struct {
	Subjective string `json:"subjective"`
	Objective  string `json:"objective"`
	Assessment string `json:"assessment"`
	Plan       string `json:"plan"`
}

// SOAPSection names one SOAP field for editing.
type SOAPSection string

const (
	SectionSubjective SOAPSection = "subjective"
	SectionObjective  SOAPSection = "objective"
	SectionAssessment SOAPSection = "assessment"
	SectionPlan       SOAPSection = "plan"
)

// Set writes text into the named section.
func (s *SOAP) Set(section SOAPSection, text string) bool {
	switch section {
	case SectionSubjective:
		s.Subjective = text
	case SectionObjective:
		s.Objective = text
	case SectionAssessment:
		s.Assessment = text
	case SectionPlan:
		s.Plan = text
	default:
		return false
	}
	return true
}

// Prescription is one medication order in a draft.
type Prescription struct {
	Name         string `json:"name"`
	Dosage       string `json:"dosage"`
	Frequency    string `json:"frequency,omitempty"`
	Duration     string `json:"duration,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

// DiagnosticCode is an ICD-10 suggestion.
type DiagnosticCode struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// ConsultationDraft is the structured record produced from a transcript.
type ConsultationDraft struct {
	ID                   string           `json:"id"`
	CreatedAt            time.Time        `json:"createdAt"`
	NormalizedTranscript string           `json:"normalizedTranscript"`
	Demographics         Demographics     `json:"demographics"`
	SOAP                 SOAP             `json:"soap"`
	Prescriptions        []Prescription   `json:"prescriptions"`
	SuggestedICD10       []DiagnosticCode `json:"suggestedICD10"`
	Approved             bool             `json:"approvalFlag"`
}

// Clone returns a deep copy safe to hand across goroutines.
func (d ConsultationDraft) Clone() ConsultationDraft {
	out := d
	out.Prescriptions = append([]Prescription(nil), d.Prescriptions...)
	out.SuggestedICD10 = append([]DiagnosticCode(nil), d.SuggestedICD10...)
	return out
}

// VerificationStatus is the UI-local audit state of a prescription.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationWarning  VerificationStatus = "warning"
)

// Verification is the display state attached to one prescription.
type Verification struct {
	Status  VerificationStatus `json:"status"`
	Message string             `json:"message,omitempty"`
}

// Translation is a translated utterance with optional synthesized speech.
type Translation struct {
	Text        string `json:"text"`
	AudioBase64 string `json:"audio,omitempty"`
	SampleRate  int    `json:"sampleRate,omitempty"`
}

// VerificationResult is the safety-audit outcome for a prescription.
type VerificationResult struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
}

// Status summarizes the current runtime status.
type Status struct {
	Mode       Mode         `json:"mode"`
	Phase      Phase        `json:"phase"`
	State      SessionState `json:"state"`
	ActiveRole Role         `json:"activeRole,omitempty"`
	LiveText   string       `json:"liveText,omitempty"`
	Entries    int          `json:"entries"`
	HasDraft   bool         `json:"hasDraft"`
	Message    string       `json:"message,omitempty"`
}
