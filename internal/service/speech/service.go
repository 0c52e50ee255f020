package speech

import (
	"context"
	"fmt"
	"time"

	"github.com/firstaidvox/gateway/internal/analysis/language"
	"github.com/firstaidvox/gateway/internal/config"
	speechmodel "github.com/firstaidvox/gateway/internal/model/speech"
	"github.com/firstaidvox/gateway/internal/model/triage"
)

// Synthesizer turns an utterance into audio.
type Synthesizer interface {
	SynthesizeWS(ctx context.Context, req *speechmodel.SynthesizeRequest) (*speechmodel.SynthesizeResult, error)
}

// Service fronts the voice vendor. When no vendor is configured every call
// reports ErrDisabled so callers can degrade to text-only.
type Service struct {
	cfg    config.SpeechConfig
	client Synthesizer
}

// ErrDisabled marks a synthesis attempt without a configured vendor.
var ErrDisabled = fmt.Errorf("speech synthesis is not configured")

// NewService builds the speech facade. client may be nil, in which case the
// vendor WebSocket client is constructed from the configuration.
func NewService(cfg config.SpeechConfig, client Synthesizer) *Service {
	if client == nil {
		client = NewElevenLabsClient(cfg)
	}
	return &Service{cfg: cfg, client: client}
}

// Enabled reports whether a voice vendor is configured.
func (s *Service) Enabled() bool {
	return s.cfg.Enabled
}

// Synthesize speaks arbitrary text after cleaning it for speech.
func (s *Service) Synthesize(ctx context.Context, req *speechmodel.SynthesizeRequest) (*speechmodel.SynthesizeResult, error) {
	if !s.cfg.Enabled {
		return nil, ErrDisabled
	}

	cleaned := CleanForSpeech(req.Text)
	if cleaned == "" {
		return nil, fmt.Errorf("nothing to speak after cleanup")
	}

	effective := *req
	effective.Text = cleaned
	if effective.Rate == 0 {
		lang := language.Language(req.Language)
		if lang == "" {
			lang = language.Detect(cleaned)
		}
		if lang == language.Korean || lang == language.Japanese {
			effective.Rate = 0.9
		}
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.TimeoutSeconds)*time.Second)
	defer cancel()

	return s.client.SynthesizeWS(ctx, &effective)
}

// SpeakResponse derives the spoken form of an assessment and synthesizes it.
func (s *Service) SpeakResponse(ctx context.Context, sessionID string, resp *triage.AgentResponse) (*speechmodel.SynthesizeResult, error) {
	utt := ForResponse(resp)
	return s.Synthesize(ctx, &speechmodel.SynthesizeRequest{
		SessionID: sessionID,
		Text:      utt.Text,
		Language:  string(utt.Language),
		Rate:      utt.Rate,
	})
}
