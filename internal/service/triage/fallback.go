package triage

import (
	"strings"

	"github.com/firstaidvox/gateway/internal/analysis/language"
	"github.com/firstaidvox/gateway/internal/model/triage"
)

// offlineConfidence marks fallback advice as less trustworthy than a model
// assessment; consumers key degraded-mode UI off it.
const offlineConfidence = 0.6

type fallbackEntry struct {
	keywords []string
	advice   string
	urgency  triage.Urgency
}

// fallbackTable is the keyword-matched first-aid advice served when every
// assessor attempt has failed. First match wins, so rows are ordered by
// severity.
var fallbackTable = []fallbackEntry{
	{
		keywords: []string{"choking", "can't breathe", "cannot breathe", "질식"},
		advice:   "If the person cannot cough, speak, or breathe, call emergency services now and begin abdominal thrusts (Heimlich maneuver). If they become unresponsive, start CPR.",
		urgency:  triage.UrgencyEmergency,
	},
	{
		keywords: []string{"chest pain", "가슴 통증", "dolor de pecho"},
		advice:   "Sit down, stay calm, and loosen tight clothing. If the pain lasts more than a few minutes, spreads to the arm or jaw, or comes with shortness of breath, call emergency services. Do not drive yourself.",
		urgency:  triage.UrgencyHigh,
	},
	{
		keywords: []string{"allergic reaction", "anaphylaxis", "알레르기"},
		advice:   "If there is swelling of the face or throat, difficulty breathing, or widespread hives, use an epinephrine auto-injector if available and call emergency services. For mild reactions, take an antihistamine and monitor closely.",
		urgency:  triage.UrgencyHigh,
	},
	{
		keywords: []string{"bleeding", "blood loss", "출혈"},
		advice:   "Apply firm, direct pressure with a clean cloth. Elevate the wound above the heart if possible. If bleeding soaks through or does not slow within 10 minutes, seek emergency care.",
		urgency:  triage.UrgencyHigh,
	},
	{
		keywords: []string{"burn", "scald", "화상"},
		advice:   "Cool the burn under cool running water for 10-20 minutes. Do not apply ice, butter, or ointments. Cover loosely with a sterile dressing. Seek care for burns that are large, deep, or on the face or hands.",
		urgency:  triage.UrgencyModerate,
	},
	{
		keywords: []string{"fracture", "broken bone", "골절"},
		advice:   "Immobilize the limb in the position found and apply a cold pack wrapped in cloth. Do not attempt to straighten it. Seek medical care; go to an emergency department if the bone is exposed or the limb is deformed.",
		urgency:  triage.UrgencyModerate,
	},
	{
		keywords: []string{"fever", "high temperature", "열이"},
		advice:   "Rest, drink plenty of fluids, and take acetaminophen or ibuprofen as directed. Seek care if the fever exceeds 39°C (102°F), lasts more than three days, or comes with a stiff neck, rash, or confusion.",
		urgency:  triage.UrgencyModerate,
	},
}

// offlineFallback returns keyword-matched first-aid advice, or nil when no
// row matches and the failure has to surface to the caller.
func offlineFallback(message string, stage triage.Stage) *triage.AgentResponse {
	lower := strings.ToLower(message)
	for _, entry := range fallbackTable {
		if !matchesAny(lower, entry.keywords) {
			continue
		}

		brief := entry.advice
		detailed := entry.advice + " This guidance was served from the offline first-aid table because the triage service is unreachable; it is not a full assessment."
		return &triage.AgentResponse{
			ResponseText: "BRIEF: " + brief + "\n\nDETAILED: " + detailed,
			BriefText:    brief,
			DetailedText: detailed,
			Stage:        stage,
			Urgency:      entry.urgency,
			Confidence:   offlineConfidence,
			Language:     string(language.Detect(message)),
			Offline:      true,
		}
	}
	return nil
}

func matchesAny(lowerText string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lowerText, kw) {
			return true
		}
	}
	return false
}
