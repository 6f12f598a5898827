package usecase

import (
	"context"

	"golang.org/x/sync/errgroup"

	"clinscribe/internal/domain"
)

const (
	auditTimeoutMessage = "audit timeout"
	auditWarningMessage = "prescription requires review"
)

// VerifyPrescription audits prescription i. Calls for different prescriptions
// run independently and may resolve in any order. Service failures resolve
// to a warning rather than an error.
func (c *SessionController) VerifyPrescription(ctx context.Context, i int) (domain.Verification, error) {
	c.mu.Lock()
	if c.draft == nil {
		c.mu.Unlock()
		return domain.Verification{}, domain.ErrNoDraft
	}
	if i < 0 || i >= len(c.draft.Prescriptions) {
		c.mu.Unlock()
		return domain.Verification{}, domain.ErrPrescriptionIndex
	}
	draftID := c.draft.ID
	prescription := c.draft.Prescriptions[i]
	pending := domain.Verification{Status: domain.VerificationPending}
	c.verifications[i] = pending
	c.mu.Unlock()

	c.deps.Events.VerificationChanged(i, pending)

	result, err := callService(ctx, c, opVerify, func(ctx context.Context) (domain.VerificationResult, error) {
		return c.deps.Verifier.Verify(ctx, prescription.Name, prescription.Dosage)
	})

	var verification domain.Verification
	switch {
	case err != nil:
		c.logger.Warn("prescription audit failed", "index", i, "medicine", prescription.Name, "error", err)
		verification = domain.Verification{Status: domain.VerificationWarning, Message: auditTimeoutMessage}
	case result.Valid:
		verification = domain.Verification{Status: domain.VerificationVerified}
	default:
		message := result.Message
		if message == "" {
			message = auditWarningMessage
		}
		verification = domain.Verification{Status: domain.VerificationWarning, Message: message}
	}
	c.deps.Metrics.RecordVerification(string(verification.Status))

	// Drop the result if the draft or the prescription changed meanwhile.
	c.mu.Lock()
	current := c.draft != nil && c.draft.ID == draftID &&
		i < len(c.draft.Prescriptions) && c.draft.Prescriptions[i] == prescription
	if current {
		c.verifications[i] = verification
	}
	c.mu.Unlock()

	if current {
		c.deps.Events.VerificationChanged(i, verification)
	}
	return verification, nil
}

// VerifyAll audits every prescription of the draft concurrently.
func (c *SessionController) VerifyAll(ctx context.Context) ([]domain.Verification, error) {
	c.mu.Lock()
	if c.draft == nil {
		c.mu.Unlock()
		return nil, domain.ErrNoDraft
	}
	count := len(c.draft.Prescriptions)
	c.mu.Unlock()

	results := make([]domain.Verification, count)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < count; i++ {
		g.Go(func() error {
			verification, err := c.VerifyPrescription(gctx, i)
			if err != nil {
				return err
			}
			results[i] = verification
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Verifications returns the display state of every prescription, indexed
// like the draft prescriptions.
func (c *SessionController) Verifications() []domain.Verification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Verification, len(c.verifications))
	copy(out, c.verifications)
	return out
}
