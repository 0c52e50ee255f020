package triage

// Urgency grades how quickly the user should seek care.
type Urgency string

const (
	UrgencyLow       Urgency = "low"
	UrgencyModerate  Urgency = "moderate"
	UrgencyHigh      Urgency = "high"
	UrgencyEmergency Urgency = "emergency"
)

// AgentResponse is the normalized result of one assessment, regardless of
// whether it came from the local model chain, the remote backend, or the
// offline fallback table.
type AgentResponse struct {
	ResponseText string     `json:"response"`
	BriefText    string     `json:"brief_text,omitempty"`
	DetailedText string     `json:"detailed_text,omitempty"`
	Stage        Stage      `json:"assessment_stage"`
	Condition    string     `json:"condition,omitempty"`
	Urgency      Urgency    `json:"urgency_level"`
	Confidence   float64    `json:"confidence"`
	Language     string     `json:"language,omitempty"`
	Hospitals    []Hospital `json:"hospital_data,omitempty"`
	Offline      bool       `json:"offline,omitempty"`
}
