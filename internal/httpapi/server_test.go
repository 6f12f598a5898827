package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinscribe/internal/domain"
	"clinscribe/internal/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type memoryArchive struct {
	drafts []domain.ConsultationDraft
	err    error
}

func (m *memoryArchive) List(context.Context) ([]domain.ConsultationDraft, error) {
	return m.drafts, m.err
}

func (m *memoryArchive) Get(_ context.Context, id string) (domain.ConsultationDraft, error) {
	if m.err != nil {
		return domain.ConsultationDraft{}, m.err
	}
	for _, draft := range m.drafts {
		if draft.ID == id {
			return draft, nil
		}
	}
	return domain.ConsultationDraft{}, domain.ErrDraftNotFound
}

func (m *memoryArchive) Put(context.Context, domain.ConsultationDraft) error { return nil }
func (m *memoryArchive) Delete(context.Context, string) error                { return nil }

func newTestServer(archive *memoryArchive) *Server {
	reg := prometheus.NewRegistry()
	metrics.New(reg).RecordCaptureStarted()
	return New(Options{Archive: archive, Gatherer: reg})
}

func do(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func sampleArchive() *memoryArchive {
	return &memoryArchive{drafts: []domain.ConsultationDraft{{
		ID:            "c-1",
		CreatedAt:     time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
		Demographics:  domain.Demographics{Name: "Ana Ruiz"},
		SOAP:          domain.SOAP{Subjective: "Fever"},
		Prescriptions: []domain.Prescription{{Name: "Paracetamol", Dosage: "500mg"}},
	}}}
}

func TestHealthz(t *testing.T) {
	w := do(t, newTestServer(sampleArchive()), "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestListConsultations(t *testing.T) {
	w := do(t, newTestServer(sampleArchive()), "/api/consultations")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Consultations []consultationSummary `json:"consultations"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Consultations, 1)
	assert.Equal(t, "Ana Ruiz", body.Consultations[0].Patient)
	assert.Equal(t, 1, body.Consultations[0].Prescriptions)
}

func TestGetConsultation(t *testing.T) {
	s := newTestServer(sampleArchive())

	w := do(t, s, "/api/consultations/c-1")
	require.Equal(t, http.StatusOK, w.Code)
	var draft domain.ConsultationDraft
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &draft))
	assert.Equal(t, "Fever", draft.SOAP.Subjective)

	assert.Equal(t, http.StatusNotFound, do(t, s, "/api/consultations/missing").Code)
}

func TestExportConsultation(t *testing.T) {
	s := newTestServer(sampleArchive())

	w := do(t, s, "/api/consultations/c-1/export?format=markdown")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/markdown")
	assert.Contains(t, w.Body.String(), "Paracetamol 500mg")

	w = do(t, s, "/api/consultations/c-1/export?format=yaml")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "name: Ana Ruiz")

	assert.Equal(t, http.StatusBadRequest, do(t, s, "/api/consultations/c-1/export?format=pdf").Code)
}

func TestArchiveFailureIsInternalError(t *testing.T) {
	w := do(t, newTestServer(&memoryArchive{err: errors.New("disk gone")}), "/api/consultations")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "disk gone")
}

func TestMetricsEndpoint(t *testing.T) {
	w := do(t, newTestServer(sampleArchive()), "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "clinscribe_captures_started_total 1")
}

func TestUnknownRoute(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, do(t, newTestServer(sampleArchive()), "/nope").Code)
}
