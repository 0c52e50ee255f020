package triage

import "time"

// Stage tracks how far a consultation has progressed.
type Stage string

const (
	StageInitial       Stage = "initial"
	StageClarification Stage = "clarification"
	StageFinal         Stage = "final"
	StageCompleted     Stage = "completed"
)

// stageOrder defines the one-way progression of a consultation.
var stageOrder = map[Stage]int{
	StageInitial:       0,
	StageClarification: 1,
	StageFinal:         2,
	StageCompleted:     3,
}

// Order returns the position of the stage in the progression, or -1 for
// unknown values so they never win a comparison.
func (s Stage) Order() int {
	if n, ok := stageOrder[s]; ok {
		return n
	}
	return -1
}

// AtLeast reports whether the stage has reached other in the progression.
func (s Stage) AtLeast(other Stage) bool {
	return s.Order() >= other.Order()
}

// Valid reports whether the stage is one of the four known values.
func (s Stage) Valid() bool {
	_, ok := stageOrder[s]
	return ok
}

// Conversation is the single source of truth for one consultation session.
// Stage is monotonic non-decreasing; Turns are strictly time-ordered.
type Conversation struct {
	ID                string            `json:"id"`
	Turns             []Turn            `json:"turns"`
	Stage             Stage             `json:"stage"`
	ExtractedSymptoms []string          `json:"extractedSymptoms,omitempty"`
	ProgressFields    map[string]string `json:"progressFields,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
}

// Exchanges counts user turns, which is what the forced-final policy budgets.
func (c *Conversation) Exchanges() int {
	n := 0
	for _, t := range c.Turns {
		if t.Role == RoleUser {
			n++
		}
	}
	return n
}
