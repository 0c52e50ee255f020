package language

import (
	"strings"

	"github.com/firstaidvox/gateway/internal/model/triage"
)

// Language is a BCP-47-ish primary subtag the detector can emit.
type Language string

const (
	English  Language = "en"
	Korean   Language = "ko"
	Japanese Language = "ja"
	Spanish  Language = "es"
)

// Spanish carries no distinctive script, so detection falls back to a fixed
// vocabulary of medical and function words.
var spanishIndicators = []string{
	"dolor", "cabeza", "estómago", "fiebre", "náuseas", "mareo", "sangre",
	"herida", "corte", "quemadura", "fractura", "emergencia",
	"médico", "ayuda", "duele", "siento", "tengo", "estoy", "me duele",
	"qué", "cómo", "cuándo", "dónde", "por qué",
}

// Romanized Korean and short Korean medical terms that survive ASCII input.
var koreanIndicators = []string{
	"아파", "아픈", "머리", "배", "열", "기침", "감기", "병원", "의사", "약",
	"apayo", "apun", "meori", "gichim", "gamgi",
}

// Detect classifies the text's language by script first, then keyword lists,
// defaulting to English. Pure and deterministic.
func Detect(text string) Language {
	for _, r := range text {
		switch {
		case isHangul(r):
			return Korean
		case isKana(r) || isCJKIdeograph(r):
			// Kanji-only input is treated as Japanese; the consultation flow
			// has no Chinese path.
			return Japanese
		}
	}

	normalized := strings.ToLower(text)
	for _, word := range spanishIndicators {
		if strings.Contains(normalized, word) {
			return Spanish
		}
	}
	for _, word := range koreanIndicators {
		if strings.Contains(normalized, word) {
			return Korean
		}
	}

	return English
}

func isHangul(r rune) bool {
	return (r >= 0xAC00 && r <= 0xD7A3) || // syllables
		(r >= 0x3131 && r <= 0x314E) || // jamo consonants
		(r >= 0x314F && r <= 0x3163) // jamo vowels
}

func isKana(r rune) bool {
	return (r >= 0x3040 && r <= 0x309F) || (r >= 0x30A0 && r <= 0x30FF)
}

func isCJKIdeograph(r rune) bool {
	return r >= 0x4E00 && r <= 0x9FFF
}

// Explicit completion phrases the model is instructed to emit, per language.
var completionMarkers = []string{
	"consultation completed", "상담이 완료", "상담 완료",
	"assessment complete", "final diagnosis", "최종 진단",
	"相談が完了", "consulta completada",
}

// Section markers that indicate a diagnosis block was rendered.
var diagnosisMarkers = []string{
	"**diagnosis**:", "diagnosis:", "**진단**:", "진단:",
	"**immediate care**:", "immediate care:", "즉시 관리:",
	"**hospital**:", "hospital:", "**병원**:", "병원:",
	"**pharmacy**:", "pharmacy:", "**약국**:", "약국:",
	"**emergency**:", "emergency:", "**응급**:", "응급상황:",
}

// HasCompletionMarker reports whether the response explicitly closes the
// consultation.
func HasCompletionMarker(responseText string) bool {
	return containsAny(responseText, completionMarkers)
}

// HasDiagnosisMarker reports whether the response carries diagnosis sections.
func HasDiagnosisMarker(responseText string) bool {
	return containsAny(responseText, diagnosisMarkers)
}

// DetectStage maps a response's markers onto a consultation stage. Completion
// markers and diagnosis sections both mean the dialogue reached its final
// answer; anything else leaves the caller's history-based stage untouched by
// returning an empty stage.
func DetectStage(responseText string) triage.Stage {
	if HasCompletionMarker(responseText) || HasDiagnosisMarker(responseText) {
		return triage.StageFinal
	}
	return ""
}

func containsAny(text string, markers []string) bool {
	lower := strings.ToLower(text)
	for _, m := range markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
