package usecase

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"clinscribe/internal/domain"
)

// captureInstruction builds the channel instruction for role, naming the
// expected language and writing system so the channel neither translates
// nor transliterates.
func captureInstruction(role domain.Role, lang string) string {
	name, script := describeLanguage(lang)

	expectation := fmt.Sprintf("Expect speech in %s", name)
	if script != "" {
		expectation += fmt.Sprintf(" and write it in %s script", script)
	}
	return fmt.Sprintf(
		"Transcribe %s verbatim. %s. Do not translate. Output only the spoken words.",
		speakerLabel(role), expectation,
	)
}

func describeLanguage(lang string) (name, script string) {
	tag, err := language.Parse(lang)
	if err != nil {
		return lang, ""
	}

	name = display.English.Languages().Name(tag)
	if name == "" {
		name = lang
	}
	if s, confidence := tag.Script(); confidence != language.No {
		script = display.English.Scripts().Name(s)
	}
	return name, script
}

func speakerLabel(role domain.Role) string {
	switch role {
	case domain.RoleDoctor:
		return "the doctor"
	case domain.RolePatient:
		return "the patient"
	default:
		return "the clinician's dictation"
	}
}
