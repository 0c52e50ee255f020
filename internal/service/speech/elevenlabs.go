package speech

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/firstaidvox/gateway/internal/config"
	speechmodel "github.com/firstaidvox/gateway/internal/model/speech"
)

// defaultVoiceID is the vendor's stock multilingual voice, used when no
// configured or requested voice works out.
const defaultVoiceID = "21m00Tcm4TlvDq8ikWAM"

// synthesisCap bounds a single synthesis call; a stuck stream must not pin
// a connection forever.
const synthesisCap = 5 * time.Minute

const defaultEndpoint = "wss://api.elevenlabs.io"

// ElevenLabsClient streams synthesis over the vendor's WebSocket input API.
type ElevenLabsClient struct {
	cfg      config.SpeechConfig
	endpoint string
	dialer   *websocket.Dialer
}

// NewElevenLabsClient builds the streaming TTS client.
func NewElevenLabsClient(cfg config.SpeechConfig) *ElevenLabsClient {
	return &ElevenLabsClient{
		cfg:      cfg,
		endpoint: defaultEndpoint,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 30 * time.Second,
		},
	}
}

type elevenLabsInit struct {
	Text          string             `json:"text"`
	VoiceSettings *elevenLabsVoice   `json:"voice_settings,omitempty"`
	XiAPIKey      string             `json:"xi_api_key"`
	Generation    *elevenLabsTrigger `json:"generation_config,omitempty"`
}

type elevenLabsVoice struct {
	Stability       float32 `json:"stability"`
	SimilarityBoost float32 `json:"similarity_boost"`
	Speed           float32 `json:"speed,omitempty"`
}

type elevenLabsTrigger struct {
	ChunkLengthSchedule []int `json:"chunk_length_schedule,omitempty"`
}

type elevenLabsChunk struct {
	Text                 string `json:"text"`
	TryTriggerGeneration bool   `json:"try_trigger_generation,omitempty"`
}

type elevenLabsServerMessage struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// SynthesizeWS streams one utterance and collects the audio. Voice
// candidates are tried in order; a voice rejected by the vendor falls
// through to the next one.
func (c *ElevenLabsClient) SynthesizeWS(ctx context.Context, req *speechmodel.SynthesizeRequest) (*speechmodel.SynthesizeResult, error) {
	if req.Text == "" {
		return nil, fmt.Errorf("synthesis text is empty")
	}
	if c.cfg.APIKey == "" {
		return nil, fmt.Errorf("speech vendor api key not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, synthesisCap)
	defer cancel()

	var lastErr error
	for i, voiceID := range c.voiceCandidates(req.VoiceID) {
		audio, err := c.synthesizeWithVoice(ctx, req, voiceID)
		if err == nil {
			if i > 0 {
				log.Printf("[tts] fallback voice %s succeeded", voiceID)
			}
			return &speechmodel.SynthesizeResult{
				SessionID: req.SessionID,
				Audio:     audio,
				Format:    c.cfg.OutputFormat,
				VoiceID:   voiceID,
			}, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			break
		}
		log.Printf("[tts] voice %s failed: %v", voiceID, err)
	}

	return nil, fmt.Errorf("tts synthesis failed: %w", lastErr)
}

func (c *ElevenLabsClient) voiceCandidates(requested string) []string {
	seen := make(map[string]struct{}, 3)
	candidates := make([]string, 0, 3)
	for _, id := range []string{requested, c.cfg.VoiceID, defaultVoiceID} {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		candidates = append(candidates, id)
	}
	return candidates
}

func (c *ElevenLabsClient) synthesizeWithVoice(ctx context.Context, req *speechmodel.SynthesizeRequest, voiceID string) ([]byte, error) {
	wsURL := fmt.Sprintf(
		"%s/v1/text-to-speech/%s/stream-input?model_id=%s&output_format=%s",
		c.endpoint, voiceID, c.cfg.ModelID, c.cfg.OutputFormat,
	)

	header := http.Header{}
	header.Set("X-Connect-Id", uuid.NewString())

	conn, resp, err := c.dialer.DialContext(ctx, wsURL, header)
	if resp != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to TTS WebSocket: %w", err)
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if ok {
		conn.SetReadDeadline(deadline)
		conn.SetWriteDeadline(deadline)
	}

	rate := req.Rate
	if rate == 0 {
		rate = 1.0
	}
	init := elevenLabsInit{
		Text: " ",
		VoiceSettings: &elevenLabsVoice{
			Stability:       0.5,
			SimilarityBoost: 0.75,
			Speed:           rate,
		},
		XiAPIKey: c.cfg.APIKey,
	}
	if err := conn.WriteJSON(init); err != nil {
		return nil, fmt.Errorf("failed to send TTS handshake: %w", err)
	}

	if err := conn.WriteJSON(elevenLabsChunk{Text: req.Text + " ", TryTriggerGeneration: true}); err != nil {
		return nil, fmt.Errorf("failed to send TTS text: %w", err)
	}
	// Empty text closes the input stream and flushes generation.
	if err := conn.WriteJSON(elevenLabsChunk{Text: ""}); err != nil {
		return nil, fmt.Errorf("failed to close TTS input: %w", err)
	}

	var audio []byte
	for {
		var msg elevenLabsServerMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) && len(audio) > 0 {
				return audio, nil
			}
			return nil, fmt.Errorf("failed to read TTS stream: %w", err)
		}

		if msg.Error != "" || msg.Code != 0 {
			return nil, fmt.Errorf("TTS stream error %d: %s%s", msg.Code, msg.Error, msg.Message)
		}

		if msg.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(msg.Audio)
			if err != nil {
				return nil, fmt.Errorf("failed to decode audio chunk: %w", err)
			}
			audio = append(audio, chunk...)
		}

		if msg.IsFinal {
			if len(audio) == 0 {
				return nil, fmt.Errorf("TTS stream finished with no audio")
			}
			return audio, nil
		}
	}
}
