package usecase

import (
	"context"
	"fmt"
	"strings"

	"clinscribe/internal/domain"
)

// Analyze finalizes any active capture, then asks the reasoning service for a
// structured draft of the whole transcript log. On failure the log, the
// demographics and any previous draft are left as they were.
func (c *SessionController) Analyze(ctx context.Context) (domain.ConsultationDraft, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if active := c.currentCapture(); active != nil {
		c.stopCaptureLocked(ctx, active)
	}

	transcript := flattenTranscript(c.log.Snapshot())
	if transcript == "" {
		err := domain.NewServiceFailure(opAnalyze, domain.ErrEmptyTranscript)
		c.logger.Warn("analysis skipped", "error", err)
		c.deps.Events.SessionError(domain.ErrorCodeAnalysis, "analysis error")
		return domain.ConsultationDraft{}, err
	}

	c.transition(domain.SessionStateAnalyzing, domain.SessionReasonAnalyzing, "")

	draft, err := callService(ctx, c, opAnalyze, func(ctx context.Context) (domain.ConsultationDraft, error) {
		return c.deps.Reasoner.Analyze(ctx, transcript)
	})
	if err != nil {
		code, message := domain.ErrorCodeAnalysis, "analysis error"
		if domain.IsQuota(err) {
			code, message = domain.ErrorCodeBusy, "system busy"
		}
		c.logger.Error("analysis failed", "error", err)
		c.deps.Events.SessionError(code, message)
		c.transition(domain.SessionStateIdle, domain.SessionReasonAnalysisFailed, message)
		return domain.ConsultationDraft{}, err
	}

	c.mu.Lock()
	draft.Demographics = c.demographics
	if draft.ID == "" {
		draft.ID = c.cfg.NewID()
	}
	if draft.CreatedAt.IsZero() {
		draft.CreatedAt = c.cfg.Now()
	}
	if draft.NormalizedTranscript == "" {
		draft.NormalizedTranscript = transcript
	}
	stored := draft.Clone()
	c.draft = &stored
	c.verifications = make([]domain.Verification, len(stored.Prescriptions))
	c.phase = domain.PhaseReview
	c.mu.Unlock()

	c.logger.Info("draft ready", "draft_id", draft.ID, "prescriptions", len(draft.Prescriptions))
	c.emitDraft()
	c.transition(domain.SessionStateIdle, domain.SessionReasonDraftReady, "")
	return draft, nil
}

// flattenTranscript renders the log as the reasoning input, one line per
// entry: scribe entries as "original (Refined: refined)" and dialogue
// entries as "role: original (interpreted: translated)".
func flattenTranscript(entries []domain.TranscriptEntry) string {
	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		switch entry.Kind {
		case domain.EntryDialogue:
			lines = append(lines, fmt.Sprintf("%s: %s (interpreted: %s)", entry.Role, entry.Original, entry.Translated))
		default:
			if entry.Refined != "" {
				lines = append(lines, fmt.Sprintf("%s (Refined: %s)", entry.Original, entry.Refined))
			} else {
				lines = append(lines, entry.Original)
			}
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// Draft returns a copy of the current draft, or nil before analysis.
func (c *SessionController) Draft() *domain.ConsultationDraft {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.draft == nil {
		return nil
	}
	out := c.draft.Clone()
	return &out
}

// UpdateSOAP replaces one SOAP section of the draft.
func (c *SessionController) UpdateSOAP(section domain.SOAPSection, text string) error {
	return c.editDraft(func(draft *domain.ConsultationDraft) error {
		if !draft.SOAP.Set(section, text) {
			return fmt.Errorf("unknown SOAP section %q", section)
		}
		return nil
	})
}

// AddPrescription appends a prescription with no verification state.
func (c *SessionController) AddPrescription(p domain.Prescription) error {
	return c.editDraft(func(draft *domain.ConsultationDraft) error {
		draft.Prescriptions = append(draft.Prescriptions, p)
		c.verifications = append(c.verifications, domain.Verification{})
		return nil
	})
}

// UpdatePrescription replaces prescription i and clears its verification.
func (c *SessionController) UpdatePrescription(i int, p domain.Prescription) error {
	return c.editDraft(func(draft *domain.ConsultationDraft) error {
		if i < 0 || i >= len(draft.Prescriptions) {
			return domain.ErrPrescriptionIndex
		}
		draft.Prescriptions[i] = p
		c.verifications[i] = domain.Verification{}
		return nil
	})
}

// RemovePrescription deletes prescription i and its verification.
func (c *SessionController) RemovePrescription(i int) error {
	return c.editDraft(func(draft *domain.ConsultationDraft) error {
		if i < 0 || i >= len(draft.Prescriptions) {
			return domain.ErrPrescriptionIndex
		}
		draft.Prescriptions = append(draft.Prescriptions[:i], draft.Prescriptions[i+1:]...)
		c.verifications = append(c.verifications[:i], c.verifications[i+1:]...)
		return nil
	})
}

// SetApproved records the clinician's sign-off on the draft.
func (c *SessionController) SetApproved(approved bool) error {
	return c.editDraft(func(draft *domain.ConsultationDraft) error {
		draft.Approved = approved
		return nil
	})
}

// SetDemographics replaces the session patient record. An existing draft
// takes the new record too.
func (c *SessionController) SetDemographics(d domain.Demographics) {
	c.mu.Lock()
	c.demographics = d
	hasDraft := c.draft != nil
	if hasDraft {
		c.draft.Demographics = d
	}
	c.mu.Unlock()

	if hasDraft {
		c.emitDraft()
	}
}

// Demographics returns the session patient record.
func (c *SessionController) Demographics() domain.Demographics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.demographics
}

// SetMode switches between scribe and interpreter mode. Entries already in
// the log keep their shape. A finalize in flight completes under the old mode
// before the switch is applied.
func (c *SessionController) SetMode(mode domain.Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("unknown mode %q", mode)
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.currentCapture() != nil {
		return domain.ErrCaptureActive
	}

	c.mu.Lock()
	c.mode = mode
	state := c.state
	c.mu.Unlock()

	c.transition(state, domain.SessionReasonModeChanged, "")
	return nil
}

func (c *SessionController) editDraft(edit func(draft *domain.ConsultationDraft) error) error {
	c.mu.Lock()
	if c.draft == nil {
		c.mu.Unlock()
		return domain.ErrNoDraft
	}
	if err := edit(c.draft); err != nil {
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	c.emitDraft()
	return nil
}

func (c *SessionController) emitDraft() {
	c.deps.Events.DraftChanged(c.Draft())
}
