package usecase

import (
	"context"
	"fmt"

	"clinscribe/internal/domain"
)

// ArchiveDraft stores the current draft, replacing any archived draft with
// the same ID, then starts a fresh session.
func (c *SessionController) ArchiveDraft(ctx context.Context) (domain.ConsultationDraft, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	draft := c.Draft()
	if draft == nil {
		return domain.ConsultationDraft{}, domain.ErrNoDraft
	}
	if err := c.deps.Archive.Put(ctx, *draft); err != nil {
		c.logger.Error("archive write failed", "draft_id", draft.ID, "error", err)
		c.deps.Events.SessionError(domain.ErrorCodeArchive, "could not archive consultation")
		return domain.ConsultationDraft{}, fmt.Errorf("archive draft %s: %w", draft.ID, err)
	}

	c.logger.Info("draft archived", "draft_id", draft.ID)
	c.resetLocked(domain.SessionReasonDraftArchived)
	return *draft, nil
}

// Reset discards any active capture, the transcript log, the draft, the
// demographics and all verification state.
func (c *SessionController) Reset() {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.resetLocked(domain.SessionReasonSessionReset)
}

func (c *SessionController) resetLocked(reason domain.SessionStateReason) {
	if active := c.currentCapture(); active != nil {
		c.abortLocked(active)
	}

	c.log.Clear()
	c.mu.Lock()
	c.draft = nil
	c.demographics = domain.Demographics{}
	c.verifications = nil
	c.liveText = ""
	c.phase = domain.PhaseConsultation
	c.mu.Unlock()

	c.deps.Events.LiveTranscript(domain.RoleNone, "")
	c.deps.Events.TranscriptUpdated(nil)
	c.deps.Events.DraftChanged(nil)
	c.transition(domain.SessionStateIdle, reason, "")
}

// ListArchive returns archived drafts, newest first.
func (c *SessionController) ListArchive(ctx context.Context) ([]domain.ConsultationDraft, error) {
	return c.deps.Archive.List(ctx)
}

// ArchivedDraft returns one archived draft by ID.
func (c *SessionController) ArchivedDraft(ctx context.Context, id string) (domain.ConsultationDraft, error) {
	return c.deps.Archive.Get(ctx, id)
}

// DeleteArchived removes one archived draft by ID.
func (c *SessionController) DeleteArchived(ctx context.Context, id string) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.deps.Archive.Delete(ctx, id)
}
