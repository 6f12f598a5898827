package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"clinscribe/internal/domain"
)

// route dispatches a finalized utterance by consultation mode. Bilingual
// doctor/patient speech is translated before it is logged; everything else is
// logged at once and refined in the background.
func (c *SessionController) route(utterance domain.Utterance) {
	mode := c.Mode()
	if mode == domain.ModeBilingual && utterance.Role.Bilingual() {
		c.routeDialogue(utterance)
		return
	}
	c.routeScribe(mode, utterance)
}

func (c *SessionController) routeDialogue(utterance domain.Utterance) {
	from := c.languageFor(utterance.Role)
	to := c.languageFor(utterance.Role.Counterpart())

	translation, err := callService(c.lifetime, c, opTranslate, func(ctx context.Context) (domain.Translation, error) {
		return c.deps.Translator.Translate(ctx, utterance.Text, from, to)
	})
	if err != nil {
		// Dropped utterances are not surfaced to the user.
		c.deps.Metrics.RecordUtterance(string(domain.ModeBilingual), "dropped")
		c.logger.Warn("translation failed, utterance dropped", "role", utterance.Role, "error", err)
		return
	}

	entries := c.log.Append(domain.TranscriptEntry{
		Kind:       domain.EntryDialogue,
		Role:       utterance.Role,
		Original:   utterance.Text,
		Translated: translation.Text,
		Timestamp:  c.cfg.Now(),
	})
	c.deps.Metrics.RecordUtterance(string(domain.ModeBilingual), "routed")
	c.deps.Events.TranscriptUpdated(entries)

	if translation.AudioBase64 != "" {
		c.playTranslation(translation)
	}
}

func (c *SessionController) routeScribe(mode domain.Mode, utterance domain.Utterance) {
	entries := c.log.Append(domain.TranscriptEntry{
		Kind:      domain.EntryScribe,
		Role:      utterance.Role,
		Original:  utterance.Text,
		Timestamp: c.cfg.Now(),
	})
	c.deps.Metrics.RecordUtterance(string(mode), "routed")
	c.deps.Events.TranscriptUpdated(entries)

	original := utterance.Text
	language := c.cfg.Languages.Document
	c.spawn(domain.TaskRefinement, func(ctx context.Context) error {
		refined, err := callService(ctx, c, opRefine, func(ctx context.Context) (string, error) {
			return c.deps.Refiner.Refine(ctx, original, language)
		})
		if err != nil {
			return err
		}
		if refined == "" {
			return errors.New("refinement returned empty text")
		}

		entries, matched := c.log.AttachRefinement(original, refined)
		if matched > 0 {
			c.deps.Events.TranscriptUpdated(entries)
		}
		return nil
	})
}

// playTranslation plays synthesized speech once. Failures are reported as a
// task outcome and otherwise ignored.
func (c *SessionController) playTranslation(translation domain.Translation) {
	if c.deps.Player == nil {
		return
	}
	sampleRate := translation.SampleRate
	if sampleRate <= 0 {
		sampleRate = c.cfg.PlaybackSampleRate
	}

	c.spawn(domain.TaskPlayback, func(ctx context.Context) error {
		pcm, err := base64.StdEncoding.DecodeString(translation.AudioBase64)
		if err != nil {
			return fmt.Errorf("decode synthesized audio: %w", err)
		}
		return c.deps.Player.Play(ctx, pcm, sampleRate)
	})
}
