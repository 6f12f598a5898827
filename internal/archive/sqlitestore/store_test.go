package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinscribe/internal/domain"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func draft(id string, created time.Time) domain.ConsultationDraft {
	return domain.ConsultationDraft{
		ID:                   id,
		CreatedAt:            created,
		NormalizedTranscript: "patient has fever",
		Demographics:         domain.Demographics{Name: "Ana Ruiz", Age: "34", Sex: "F"},
		SOAP:                 domain.SOAP{Subjective: "Fever"},
		Prescriptions:        []domain.Prescription{{Name: "Paracetamol", Dosage: "500mg"}},
		SuggestedICD10:       []domain.DiagnosticCode{{Code: "R50.9", Description: "Fever, unspecified"}},
	}
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := openMemory(t)
	older := draft("c-1", time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	newer := draft("c-2", time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	require.NoError(t, store.Put(context.Background(), older))
	require.NoError(t, store.Put(context.Background(), newer))

	got, err := store.Get(context.Background(), "c-2")
	require.NoError(t, err)
	assert.Equal(t, newer, got)

	list, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, []string{"c-2", "c-1"}, []string{list[0].ID, list[1].ID})
}

func TestStorePutReplacesByID(t *testing.T) {
	t.Parallel()

	store := openMemory(t)
	original := draft("c-1", time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	require.NoError(t, store.Put(context.Background(), original))

	updated := original
	updated.Approved = true
	require.NoError(t, store.Put(context.Background(), updated))

	list, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Approved)
}

func TestStoreDeleteAndNotFound(t *testing.T) {
	t.Parallel()

	store := openMemory(t)
	require.NoError(t, store.Put(context.Background(), draft("c-1", time.Now().UTC())))
	require.NoError(t, store.Delete(context.Background(), "c-1"))

	_, err := store.Get(context.Background(), "c-1")
	assert.ErrorIs(t, err, domain.ErrDraftNotFound)
	assert.ErrorIs(t, store.Delete(context.Background(), "c-1"), domain.ErrDraftNotFound)
}

func TestStorePersistsAcrossOpen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "archive.sqlite")
	first, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, first.Put(context.Background(), draft("c-1", time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))))
	require.NoError(t, first.Close())

	second, err := Open(path)
	require.NoError(t, err)
	defer second.Close()

	got, err := second.Get(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Equal(t, "Ana Ruiz", got.Demographics.Name)
}

func TestStoreRejectsEmptyID(t *testing.T) {
	t.Parallel()

	store := openMemory(t)
	assert.Error(t, store.Put(context.Background(), domain.ConsultationDraft{}))
}
