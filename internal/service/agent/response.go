package agent

import (
	"strings"

	"github.com/firstaidvox/gateway/internal/analysis/language"
	"github.com/firstaidvox/gateway/internal/model/triage"
)

const defaultModelConfidence = 0.85

// SplitSections separates a structured "BRIEF: ... DETAILED: ..." response.
// Unstructured responses fall through with both sections set to the whole
// text, matching how the UI degrades.
func SplitSections(responseText string) (brief, detailed string) {
	brief = responseText
	detailed = responseText

	if !strings.Contains(responseText, "BRIEF:") || !strings.Contains(responseText, "DETAILED:") {
		return brief, detailed
	}

	parts := strings.SplitN(responseText, "DETAILED:", 2)
	b := strings.TrimSpace(strings.Replace(parts[0], "BRIEF:", "", 1))
	d := strings.TrimSpace(parts[1])
	if b != "" && d != "" {
		brief, detailed = b, d
	}
	return brief, detailed
}

// StageFor combines the history-derived stage with marker detection on the
// response text. Markers can only upgrade the stage, never lower it.
func StageFor(historyStage triage.Stage, responseText string, historyLen int) triage.Stage {
	stage := historyStage
	if !stage.Valid() {
		stage = triage.StageInitial
	}

	if language.DetectStage(responseText) != triage.StageFinal {
		return stage
	}
	// Diagnosis sections alone only close the consultation once the dialogue
	// has history; an explicit completion marker closes it regardless.
	if !language.HasCompletionMarker(responseText) && historyLen < 2 {
		return stage
	}
	return maxStage(stage, triage.StageFinal)
}

func maxStage(a, b triage.Stage) triage.Stage {
	if b.Order() > a.Order() {
		return b
	}
	return a
}

// Final responses routinely mention 911/119 in a conditional "Emergency:"
// section, so only unconditional phrasing grades as an emergency.
var emergencyKeywords = []string{
	"call 911 immediately", "call 119 immediately", "call emergency services now",
	"go to the emergency room now", "즉시 응급실", "즉시 119", "直ちに救急",
	"llame al 911 inmediatamente",
}

var highUrgencyKeywords = []string{
	"urgent", "immediately", "seek medical attention", "severe",
	"응급", "긴급", "즉시", "emergencia", "urgente", "inmediato", "緊急", "急ぎ",
}

var moderateUrgencyKeywords = []string{
	"see a doctor", "visit", "hospital", "clinic", "worsen",
	"병원", "의사", "médico", "病院", "医者",
}

// UrgencyFor grades the response text. The model does not emit an explicit
// urgency field, so this mirrors the keyword policy the facility search uses.
func UrgencyFor(responseText string) triage.Urgency {
	lower := strings.ToLower(responseText)
	if containsAny(lower, emergencyKeywords) {
		return triage.UrgencyEmergency
	}
	if containsAny(lower, highUrgencyKeywords) {
		return triage.UrgencyHigh
	}
	if containsAny(lower, moderateUrgencyKeywords) {
		return triage.UrgencyModerate
	}
	return triage.UrgencyLow
}

var facilityKeywords = []string{
	"hospital", "emergency", "doctor", "medical help", "seek medical attention",
	"병원", "응급실", "의사", "의료진", "진료",
	"emergencia", "médico", "atención médica",
	"病院", "救急", "医者", "医療",
}

// ShouldSearchFacilities decides whether nearby hospitals belong on this
// response: only at the final stage, only with a location, and only when the
// text actually points the user at care.
func ShouldSearchFacilities(stage triage.Stage, loc *triage.Location, responseText string) bool {
	if !stage.AtLeast(triage.StageFinal) || loc == nil {
		return false
	}
	lower := strings.ToLower(responseText)
	return containsAny(lower, facilityKeywords) || containsAny(lower, highUrgencyKeywords)
}

// Condition pulls the condition name out of a "**Diagnosis**: ..." line when
// the model followed the template.
func Condition(responseText string) string {
	for _, marker := range []string{"**Diagnosis**:", "**진단**:", "Diagnosis:"} {
		idx := strings.Index(responseText, marker)
		if idx < 0 {
			continue
		}
		rest := responseText[idx+len(marker):]
		if end := strings.IndexByte(rest, '\n'); end >= 0 {
			rest = rest[:end]
		}
		if cond := strings.TrimSpace(rest); cond != "" {
			return cond
		}
	}
	return ""
}

// CompletedAcknowledgement is the fixed response for a conversation whose
// consultation already closed; no model call is made for it.
func CompletedAcknowledgement(lang language.Language) *triage.AgentResponse {
	var brief, detailed string
	switch lang {
	case language.Korean:
		brief = "상담이 이미 완료되었습니다. 추가 증상이나 우려사항이 있으시면 의료진에게 직접 문의하시기 바랍니다."
		detailed = "이전에 제공된 진단과 권장사항을 참고하시고, 증상이 악화되거나 새로운 증상이 나타나면 병원을 방문하세요."
	default:
		brief = "The consultation has already been completed. If you have additional symptoms or concerns, please consult with a healthcare professional directly."
		detailed = "Please refer to the previous assessment and recommendations. If symptoms worsen or new symptoms appear, visit a healthcare facility."
	}

	return &triage.AgentResponse{
		ResponseText: "BRIEF: " + brief + "\n\nDETAILED: " + detailed,
		BriefText:    brief,
		DetailedText: detailed,
		Stage:        triage.StageCompleted,
		Urgency:      triage.UrgencyLow,
		Confidence:   1,
		Language:     string(lang),
	}
}

func containsAny(lowerText string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lowerText, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
