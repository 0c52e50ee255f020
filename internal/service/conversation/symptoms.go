package conversation

import (
	"strings"

	"github.com/firstaidvox/gateway/internal/model/triage"
)

// symptomKeywords is the coarse vocabulary tracked across a consultation.
// It exists to summarize progress for the UI card, not to diagnose.
var symptomKeywords = []string{
	"chest pain", "headache", "fever", "cough", "sore throat", "nausea",
	"vomiting", "dizziness", "bleeding", "burn", "fracture", "rash",
	"shortness of breath", "choking", "allergic reaction", "abdominal pain",
	"두통", "열", "기침", "복통", "어지러움", "출혈",
}

func recordSymptoms(conv *triage.Conversation, content string) {
	lower := strings.ToLower(content)
	for _, kw := range symptomKeywords {
		if !strings.Contains(lower, kw) {
			continue
		}
		if !containsString(conv.ExtractedSymptoms, kw) {
			conv.ExtractedSymptoms = append(conv.ExtractedSymptoms, kw)
		}
	}
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
