package speech

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/firstaidvox/gateway/internal/config"
	speechmodel "github.com/firstaidvox/gateway/internal/model/speech"
)

// ttsServer upgrades connections for any voice except those listed in
// rejected, which get a plain 403 before the handshake completes.
func ttsServer(t *testing.T, audio []byte, rejected ...string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, voice := range rejected {
			if strings.Contains(r.URL.Path, voice) {
				http.Error(w, "voice not found", http.StatusForbidden)
				return
			}
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		// Drain input frames until the closing empty-text chunk.
		for {
			var frame map[string]any
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			if text, ok := frame["text"].(string); ok && text == "" {
				break
			}
		}

		conn.WriteJSON(map[string]any{"audio": base64.StdEncoding.EncodeToString(audio)})
		conn.WriteJSON(map[string]any{"isFinal": true})
	}))
}

func testClient(server *httptest.Server, voiceID string) *ElevenLabsClient {
	client := NewElevenLabsClient(config.SpeechConfig{
		APIKey:       "test-key",
		VoiceID:      voiceID,
		ModelID:      "eleven_multilingual_v2",
		OutputFormat: "mp3_44100_128",
	})
	client.endpoint = "ws" + strings.TrimPrefix(server.URL, "http")
	return client
}

func TestSynthesizeWSCollectsAudio(t *testing.T) {
	server := ttsServer(t, []byte("audio-bytes"))
	defer server.Close()

	client := testClient(server, "main-voice")
	result, err := client.SynthesizeWS(context.Background(), &speechmodel.SynthesizeRequest{
		SessionID: "s1",
		Text:      "Rest and drink water.",
	})
	if err != nil {
		t.Fatalf("SynthesizeWS err: %v", err)
	}
	if string(result.Audio) != "audio-bytes" {
		t.Fatalf("unexpected audio payload: %q", result.Audio)
	}
	if result.VoiceID != "main-voice" {
		t.Fatalf("expected configured voice, got %s", result.VoiceID)
	}
}

func TestSynthesizeWSFallsBackToNextVoice(t *testing.T) {
	server := ttsServer(t, []byte("fallback-audio"), "broken-voice")
	defer server.Close()

	client := testClient(server, "main-voice")
	result, err := client.SynthesizeWS(context.Background(), &speechmodel.SynthesizeRequest{
		SessionID: "s1",
		Text:      "Rest and drink water.",
		VoiceID:   "broken-voice",
	})
	if err != nil {
		t.Fatalf("SynthesizeWS err: %v", err)
	}
	if result.VoiceID != "main-voice" {
		t.Fatalf("expected fallback to the configured voice, got %s", result.VoiceID)
	}
	if string(result.Audio) != "fallback-audio" {
		t.Fatalf("unexpected audio payload: %q", result.Audio)
	}
}

func TestSynthesizeWSAllVoicesRejected(t *testing.T) {
	server := ttsServer(t, nil, "main-voice", defaultVoiceID)
	defer server.Close()

	client := testClient(server, "main-voice")
	result, err := client.SynthesizeWS(context.Background(), &speechmodel.SynthesizeRequest{
		SessionID: "s1",
		Text:      "Rest and drink water.",
	})
	if err == nil {
		t.Fatal("expected an error when every voice is rejected")
	}
	if result != nil {
		t.Fatalf("expected nil result, got %+v", result)
	}
}

func TestVoiceCandidatesDeduplicate(t *testing.T) {
	client := NewElevenLabsClient(config.SpeechConfig{APIKey: "k", VoiceID: "v1"})
	got := client.voiceCandidates("v1")
	if len(got) != 2 || got[0] != "v1" || got[1] != defaultVoiceID {
		t.Fatalf("unexpected candidates: %v", got)
	}
}
