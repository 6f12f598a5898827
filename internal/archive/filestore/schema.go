package filestore

import "clinscribe/internal/domain"

type fileSchema struct {
	Version       int                  `toml:"version"`
	Consultations []consultationSchema `toml:"consultation"`
}

type consultationSchema struct {
	ID            string               `toml:"id"`
	CreatedAt     string               `toml:"created_at"`
	Approved      bool                 `toml:"approved"`
	Transcript    string               `toml:"transcript,multiline"`
	Demographics  demographicsSchema   `toml:"demographics"`
	SOAP          soapSchema           `toml:"soap"`
	Prescriptions []prescriptionSchema `toml:"prescription"`
	Diagnoses     []diagnosisSchema    `toml:"icd10"`
}

type demographicsSchema struct {
	Name        string `toml:"name"`
	Age         string `toml:"age"`
	Sex         string `toml:"sex"`
	DateOfBirth string `toml:"date_of_birth,omitempty"`
	PatientID   string `toml:"patient_id,omitempty"`
}

type soapSchema struct {
	Subjective string `toml:"subjective,multiline"`
	Objective  string `toml:"objective,multiline"`
	Assessment string `toml:"assessment,multiline"`
	Plan       string `toml:"plan,multiline"`
}

type prescriptionSchema struct {
	Name         string `toml:"name"`
	Dosage       string `toml:"dosage"`
	Frequency    string `toml:"frequency,omitempty"`
	Duration     string `toml:"duration,omitempty"`
	Instructions string `toml:"instructions,omitempty"`
}

type diagnosisSchema struct {
	Code        string `toml:"code"`
	Description string `toml:"description"`
}

func toSchema(draft domain.ConsultationDraft) consultationSchema {
	out := consultationSchema{
		ID:         draft.ID,
		CreatedAt:  formatTime(draft.CreatedAt),
		Approved:   draft.Approved,
		Transcript: draft.NormalizedTranscript,
		Demographics: demographicsSchema{
			Name:        draft.Demographics.Name,
			Age:         draft.Demographics.Age,
			Sex:         draft.Demographics.Sex,
			DateOfBirth: draft.Demographics.DateOfBirth,
			PatientID:   draft.Demographics.PatientID,
		},
		SOAP: soapSchema{
			Subjective: draft.SOAP.Subjective,
			Objective:  draft.SOAP.Objective,
			Assessment: draft.SOAP.Assessment,
			Plan:       draft.SOAP.Plan,
		},
	}
	for _, p := range draft.Prescriptions {
		out.Prescriptions = append(out.Prescriptions, prescriptionSchema(p))
	}
	for _, code := range draft.SuggestedICD10 {
		out.Diagnoses = append(out.Diagnoses, diagnosisSchema(code))
	}
	return out
}

func fromSchema(entry consultationSchema) domain.ConsultationDraft {
	out := domain.ConsultationDraft{
		ID:                   entry.ID,
		CreatedAt:            parseTime(entry.CreatedAt),
		Approved:             entry.Approved,
		NormalizedTranscript: entry.Transcript,
		Demographics: domain.Demographics{
			Name:        entry.Demographics.Name,
			Age:         entry.Demographics.Age,
			Sex:         entry.Demographics.Sex,
			DateOfBirth: entry.Demographics.DateOfBirth,
			PatientID:   entry.Demographics.PatientID,
		},
		SOAP: domain.SOAP{
			Subjective: entry.SOAP.Subjective,
			Objective:  entry.SOAP.Objective,
			Assessment: entry.SOAP.Assessment,
			Plan:       entry.SOAP.Plan,
		},
	}
	for _, p := range entry.Prescriptions {
		out.Prescriptions = append(out.Prescriptions, domain.Prescription(p))
	}
	for _, code := range entry.Diagnoses {
		out.SuggestedICD10 = append(out.SuggestedICD10, domain.DiagnosticCode(code))
	}
	return out
}
