// Package export renders consultation drafts as shareable documents.
package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"clinscribe/internal/domain"
)

type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatYAML     Format = "yaml"
)

// ParseFormat accepts a format name or a file extension.
func ParseFormat(raw string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(raw), ".")) {
	case "", "md", "markdown":
		return FormatMarkdown, nil
	case "yml", "yaml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown export format %q", raw)
	}
}

// ContentType returns the MIME type of documents in format f.
func (f Format) ContentType() string {
	if f == FormatYAML {
		return "application/yaml"
	}
	return "text/markdown; charset=utf-8"
}

// Render returns draft as a document in format.
func Render(draft domain.ConsultationDraft, format Format) ([]byte, error) {
	switch format {
	case FormatMarkdown:
		return []byte(renderMarkdown(draft)), nil
	case FormatYAML:
		out, err := yaml.Marshal(toDocument(draft))
		if err != nil {
			return nil, &domain.ExportError{Format: string(format), Err: err}
		}
		return out, nil
	default:
		return nil, &domain.ExportError{Format: string(format), Err: errors.New("unsupported format")}
	}
}

// WriteFile renders draft and writes it to path. Every failure is an
// *domain.ExportError.
func WriteFile(path string, draft domain.ConsultationDraft, format Format) error {
	data, err := Render(draft, format)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &domain.ExportError{Format: string(format), Err: err}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &domain.ExportError{Format: string(format), Err: err}
	}
	return nil
}

// PlainText renders the note the way it is shared on the clipboard.
func PlainText(draft domain.ConsultationDraft) string {
	var b strings.Builder
	writeSection(&b, "Subjective", draft.SOAP.Subjective)
	writeSection(&b, "Objective", draft.SOAP.Objective)
	writeSection(&b, "Assessment", draft.SOAP.Assessment)
	writeSection(&b, "Plan", draft.SOAP.Plan)
	if len(draft.Prescriptions) > 0 {
		b.WriteString("Prescriptions:\n")
		for _, p := range draft.Prescriptions {
			fmt.Fprintf(&b, "- %s\n", describePrescription(p))
		}
	}
	return strings.TrimSpace(b.String())
}

func writeSection(b *strings.Builder, title, body string) {
	if strings.TrimSpace(body) == "" {
		return
	}
	fmt.Fprintf(b, "%s:\n%s\n\n", title, strings.TrimSpace(body))
}

func renderMarkdown(draft domain.ConsultationDraft) string {
	var b strings.Builder

	b.WriteString("# Consultation Note\n\n")
	if !draft.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "_%s_", draft.CreatedAt.Format("2006-01-02 15:04"))
		if draft.Approved {
			b.WriteString(" · approved")
		}
		b.WriteString("\n\n")
	}

	d := draft.Demographics
	b.WriteString("## Patient\n\n")
	fmt.Fprintf(&b, "- **Name:** %s\n", orDash(d.Name))
	fmt.Fprintf(&b, "- **Age:** %s\n", orDash(d.Age))
	fmt.Fprintf(&b, "- **Sex:** %s\n", orDash(d.Sex))
	if d.DateOfBirth != "" {
		fmt.Fprintf(&b, "- **Date of birth:** %s\n", d.DateOfBirth)
	}
	if d.PatientID != "" {
		fmt.Fprintf(&b, "- **Patient ID:** %s\n", d.PatientID)
	}
	b.WriteString("\n")

	for _, section := range []struct{ title, body string }{
		{"Subjective", draft.SOAP.Subjective},
		{"Objective", draft.SOAP.Objective},
		{"Assessment", draft.SOAP.Assessment},
		{"Plan", draft.SOAP.Plan},
	} {
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", section.title, orDash(strings.TrimSpace(section.body)))
	}

	if len(draft.Prescriptions) > 0 {
		b.WriteString("## Prescriptions\n\n")
		for i, p := range draft.Prescriptions {
			fmt.Fprintf(&b, "%d. %s\n", i+1, describePrescription(p))
		}
		b.WriteString("\n")
	}

	if len(draft.SuggestedICD10) > 0 {
		b.WriteString("## Suggested ICD-10\n\n")
		for _, code := range draft.SuggestedICD10 {
			fmt.Fprintf(&b, "- `%s` %s\n", code.Code, code.Description)
		}
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

func describePrescription(p domain.Prescription) string {
	parts := []string{strings.TrimSpace(p.Name + " " + p.Dosage)}
	for _, extra := range []string{p.Frequency, p.Duration, p.Instructions} {
		if extra != "" {
			parts = append(parts, extra)
		}
	}
	return strings.Join(parts, ", ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

type document struct {
	ID            string                 `yaml:"id"`
	CreatedAt     string                 `yaml:"created_at,omitempty"`
	Approved      bool                   `yaml:"approved"`
	Patient       patientDocument        `yaml:"patient"`
	SOAP          soapDocument           `yaml:"soap"`
	Prescriptions []prescriptionDocument `yaml:"prescriptions,omitempty"`
	ICD10         []codeDocument         `yaml:"icd10,omitempty"`
	Transcript    string                 `yaml:"transcript,omitempty"`
}

type patientDocument struct {
	Name        string `yaml:"name"`
	Age         string `yaml:"age"`
	Sex         string `yaml:"sex"`
	DateOfBirth string `yaml:"date_of_birth,omitempty"`
	PatientID   string `yaml:"patient_id,omitempty"`
}

type soapDocument struct {
	Subjective string `yaml:"subjective"`
	Objective  string `yaml:"objective"`
	Assessment string `yaml:"assessment"`
	Plan       string `yaml:"plan"`
}

type prescriptionDocument struct {
	Name         string `yaml:"name"`
	Dosage       string `yaml:"dosage"`
	Frequency    string `yaml:"frequency,omitempty"`
	Duration     string `yaml:"duration,omitempty"`
	Instructions string `yaml:"instructions,omitempty"`
}

type codeDocument struct {
	Code        string `yaml:"code"`
	Description string `yaml:"description"`
}

func toDocument(draft domain.ConsultationDraft) document {
	doc := document{
		ID:         draft.ID,
		Approved:   draft.Approved,
		Patient:    patientDocument(draft.Demographics),
		SOAP:       soapDocument(draft.SOAP),
		Transcript: draft.NormalizedTranscript,
	}
	if !draft.CreatedAt.IsZero() {
		doc.CreatedAt = draft.CreatedAt.Format(time.RFC3339)
	}
	for _, p := range draft.Prescriptions {
		doc.Prescriptions = append(doc.Prescriptions, prescriptionDocument(p))
	}
	for _, code := range draft.SuggestedICD10 {
		doc.ICD10 = append(doc.ICD10, codeDocument(code))
	}
	return doc
}
