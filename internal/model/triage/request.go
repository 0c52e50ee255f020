package triage

// AssessmentRequest is the input handed to an assessor backend. History holds
// the rolling transcript so the backend can stay stateless across calls.
type AssessmentRequest struct {
	Message  string
	History  []Turn
	Stage    Stage
	Location *Location
	Image    []byte
}
