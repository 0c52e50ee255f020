package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/firstaidvox/gateway/internal/config"
	speechmodel "github.com/firstaidvox/gateway/internal/model/speech"
	"github.com/firstaidvox/gateway/internal/model/triage"
	"github.com/firstaidvox/gateway/internal/service/conversation"
	speechservice "github.com/firstaidvox/gateway/internal/service/speech"
	triageservice "github.com/firstaidvox/gateway/internal/service/triage"
)

type stubSynthesizer struct {
	lastText string
}

func (s *stubSynthesizer) SynthesizeWS(_ context.Context, req *speechmodel.SynthesizeRequest) (*speechmodel.SynthesizeResult, error) {
	s.lastText = req.Text
	return &speechmodel.SynthesizeResult{
		SessionID: req.SessionID,
		Audio:     []byte("audio-bytes"),
		Format:    "mp3_44100_128",
		VoiceID:   "stub-voice",
	}, nil
}

type noopAssessor struct{}

func (noopAssessor) Assess(_ context.Context, _ *triage.AssessmentRequest) (*triage.AgentResponse, error) {
	return &triage.AgentResponse{ResponseText: "ok", Stage: triage.StageClarification}, nil
}

func setupRouter(enabled bool) (*chi.Mux, *stubSynthesizer, *triageservice.Service) {
	stub := &stubSynthesizer{}
	cfg := config.SpeechConfig{Enabled: enabled, OutputFormat: "mp3_44100_128", TimeoutSeconds: 5}
	speechSvc := speechservice.NewService(cfg, stub)

	convs := conversation.NewService(conversation.DefaultStagePolicy())
	retry := triageservice.RetryPolicy{MaxAttempts: 1, BaseDelay: time.Millisecond, Timeout: time.Second}
	triageSvc := triageservice.NewService(convs, noopAssessor{}, nil, retry, 4)

	handler := New(speechSvc, triageSvc)
	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, stub, triageSvc
}

func postJSON(t *testing.T, r *chi.Mux, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestSynthesizeReturnsAudio(t *testing.T) {
	r, _, _ := setupRouter(true)

	resp := postJSON(t, r, "/speech/synthesize", map[string]any{
		"session_id": "s1",
		"text":       "Rest and drink water.",
	})

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var decoded struct {
		SessionID string `json:"session_id"`
		Format    string `json:"format"`
		Audio     string `json:"audio"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if decoded.Audio == "" {
		t.Fatal("expected base64 audio payload")
	}
	if decoded.Format != "mp3_44100_128" {
		t.Fatalf("unexpected format %q", decoded.Format)
	}
}

func TestSynthesizeStripsMarkdown(t *testing.T) {
	r, stub, _ := setupRouter(true)

	resp := postJSON(t, r, "/speech/synthesize", map[string]any{
		"session_id": "s1",
		"text":       "**Diagnosis**: tension headache.",
	})

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if bytes.Contains([]byte(stub.lastText), []byte("**")) {
		t.Fatalf("markdown reached the synthesizer: %q", stub.lastText)
	}
}

func TestSynthesizeEmptyText(t *testing.T) {
	r, _, _ := setupRouter(true)

	resp := postJSON(t, r, "/speech/synthesize", map[string]any{"text": "  "})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestSynthesizeDisabled(t *testing.T) {
	r, _, _ := setupRouter(false)

	resp := postJSON(t, r, "/speech/synthesize", map[string]any{"text": "hello"})
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
}

func TestSpeakTurnUsesLastAssistantTurn(t *testing.T) {
	r, stub, triageSvc := setupRouter(true)

	ctx := context.Background()
	conv, err := triageSvc.Conversations().Start(ctx)
	if err != nil {
		t.Fatalf("failed to start conversation: %v", err)
	}
	if _, err := triageSvc.Send(ctx, conv.ID, "my head hurts", nil, nil); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	resp := postJSON(t, r, "/speech/speak-turn", map[string]any{"session_id": conv.ID})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if stub.lastText == "" {
		t.Fatal("expected the assistant turn to reach the synthesizer")
	}
}

func TestSpeakTurnNoAssistantTurn(t *testing.T) {
	r, _, triageSvc := setupRouter(true)

	conv, err := triageSvc.Conversations().Start(context.Background())
	if err != nil {
		t.Fatalf("failed to start conversation: %v", err)
	}

	resp := postJSON(t, r, "/speech/speak-turn", map[string]any{"session_id": conv.ID})
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}
}

func TestSpeakTurnUnknownSession(t *testing.T) {
	r, _, _ := setupRouter(true)

	resp := postJSON(t, r, "/speech/speak-turn", map[string]any{"session_id": "missing"})
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}
