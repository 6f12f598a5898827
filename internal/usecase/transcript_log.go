package usecase

import (
	"sync"

	"clinscribe/internal/domain"
)

// transcriptLog is the append-only consultation log. Entries change only
// when a pending refinement is attached.
type transcriptLog struct {
	mu      sync.Mutex
	entries []domain.TranscriptEntry
}

func newTranscriptLog() *transcriptLog {
	return &transcriptLog{}
}

// Append adds entry and returns a snapshot of the log.
func (l *transcriptLog) Append(entry domain.TranscriptEntry) []domain.TranscriptEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return l.snapshotLocked()
}

// AttachRefinement sets Refined on every scribe entry whose Original equals
// original. Identical utterances therefore share one refinement.
func (l *transcriptLog) AttachRefinement(original, refined string) ([]domain.TranscriptEntry, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	matched := 0
	for i := range l.entries {
		if l.entries[i].Kind == domain.EntryScribe && l.entries[i].Original == original {
			l.entries[i].Refined = refined
			matched++
		}
	}
	return l.snapshotLocked(), matched
}

func (l *transcriptLog) Snapshot() []domain.TranscriptEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

func (l *transcriptLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *transcriptLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

func (l *transcriptLog) snapshotLocked() []domain.TranscriptEntry {
	out := make([]domain.TranscriptEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
