package speech

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	speechmodel "github.com/firstaidvox/gateway/internal/model/speech"
	"github.com/firstaidvox/gateway/internal/model/triage"
	agentService "github.com/firstaidvox/gateway/internal/service/agent"
	speechService "github.com/firstaidvox/gateway/internal/service/speech"
	triageService "github.com/firstaidvox/gateway/internal/service/triage"
	"github.com/firstaidvox/gateway/pkg/utils"
)

// Handler serves speech synthesis endpoints.
type Handler struct {
	speechSvc *speechService.Service
	triageSvc *triageService.Service
}

// New creates the speech handler.
func New(speechSvc *speechService.Service, triageSvc *triageService.Service) *Handler {
	return &Handler{speechSvc: speechSvc, triageSvc: triageSvc}
}

// RegisterRoutes registers the speech routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/speech/synthesize", h.handleSynthesize)
	r.Post("/speech/speak-turn", h.handleSpeakTurn)
}

type synthesizeRequest struct {
	SessionID string  `json:"session_id"`
	Text      string  `json:"text"`
	VoiceID   string  `json:"voice_id,omitempty"`
	Language  string  `json:"language,omitempty"`
	Rate      float32 `json:"rate,omitempty"`
}

// handleSynthesize speaks arbitrary text.
func (h *Handler) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var payload synthesizeRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(payload.Text) == "" {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}

	result, err := h.speechSvc.Synthesize(r.Context(), &speechmodel.SynthesizeRequest{
		SessionID: payload.SessionID,
		Text:      payload.Text,
		VoiceID:   payload.VoiceID,
		Language:  payload.Language,
		Rate:      payload.Rate,
	})
	if err != nil {
		h.respondSynthesisError(w, err)
		return
	}

	h.respondAudio(w, result)
}

type speakTurnRequest struct {
	SessionID string `json:"session_id"`
}

// handleSpeakTurn speaks the most recent assistant turn of a consultation,
// using the spoken form rather than the on-screen markdown.
func (h *Handler) handleSpeakTurn(w http.ResponseWriter, r *http.Request) {
	var payload speakTurnRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	turns, err := h.triageSvc.Conversations().Transcript(r.Context(), payload.SessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}

	turn, ok := lastAssistantTurn(turns)
	if !ok {
		utils.RespondError(w, http.StatusConflict, "no assistant turn to speak yet")
		return
	}

	result, err := h.speechSvc.SpeakResponse(r.Context(), payload.SessionID, responseFromTurn(turn))
	if err != nil {
		h.respondSynthesisError(w, err)
		return
	}

	h.respondAudio(w, result)
}

func (h *Handler) respondSynthesisError(w http.ResponseWriter, err error) {
	if errors.Is(err, speechService.ErrDisabled) {
		utils.RespondError(w, http.StatusServiceUnavailable, "speech synthesis is not configured")
		return
	}
	utils.RespondError(w, http.StatusBadGateway, "speech synthesis failed")
}

func (h *Handler) respondAudio(w http.ResponseWriter, result *speechmodel.SynthesizeResult) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"session_id": result.SessionID,
		"format":     result.Format,
		"voice_id":   result.VoiceID,
		"audio":      base64.StdEncoding.EncodeToString(result.Audio),
	})
}

func lastAssistantTurn(turns []triage.Turn) (triage.Turn, bool) {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == triage.RoleAssistant {
			return turns[i], true
		}
	}
	return triage.Turn{}, false
}

// responseFromTurn rebuilds enough of the assessment from a stored turn for
// utterance derivation: the sections and the stage recorded in metadata.
func responseFromTurn(turn triage.Turn) *triage.AgentResponse {
	brief, detailed := agentService.SplitSections(turn.Content)

	stage := triage.StageInitial
	if raw, ok := turn.Metadata["assessment_stage"].(string); ok {
		if candidate := triage.Stage(raw); candidate.Valid() {
			stage = candidate
		}
	}

	return &triage.AgentResponse{
		ResponseText: turn.Content,
		BriefText:    brief,
		DetailedText: detailed,
		Stage:        stage,
	}
}
