package speech

// SynthesizeRequest asks the voice vendor for audio.
type SynthesizeRequest struct {
	SessionID string  `json:"sessionId"`
	Text      string  `json:"text"`
	VoiceID   string  `json:"voiceId,omitempty"`
	Language  string  `json:"language,omitempty"`
	Rate      float32 `json:"rate,omitempty"` // speaking rate multiplier, 1.0 = normal
}

// SynthesizeResult carries the synthesized audio.
type SynthesizeResult struct {
	SessionID string `json:"sessionId"`
	Audio     []byte `json:"-"`
	Format    string `json:"format"`
	VoiceID   string `json:"voiceId"`
}
