package chat

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/firstaidvox/gateway/internal/analysis/language"
	"github.com/firstaidvox/gateway/internal/model/triage"
	"github.com/firstaidvox/gateway/internal/service/conversation"
	triageService "github.com/firstaidvox/gateway/internal/service/triage"
	"github.com/firstaidvox/gateway/pkg/utils"
)

const (
	maxImageBytes   = 10 << 20
	maxMultipartMem = 12 << 20
)

var errImageTooLarge = errors.New("image exceeds the 10MB limit")

var allowedImageTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/webp": {},
}

// Handler serves the consultation endpoints.
type Handler struct {
	triageSvc *triageService.Service
}

// New creates the consultation handler.
func New(triageSvc *triageService.Service) *Handler {
	return &Handler{triageSvc: triageSvc}
}

// RegisterRoutes registers the consultation routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Post("/chat", h.handleChat)
	r.Post("/chat/conversational", h.handleConversational)
	r.Get("/chat/{sessionID}/history", h.handleHistory)
}

// handleCreateSession opens a fresh consultation.
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	conv, err := h.triageSvc.Conversations().Start(r.Context())
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	utils.RespondJSON(w, http.StatusCreated, map[string]any{
		"session_id": conv.ID,
		"stage":      string(conv.Stage),
		"created_at": conv.CreatedAt,
	})
}

// handleChat accepts a multipart form turn: a text field plus optional
// coordinates and an optional symptom photo.
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMultipartMem); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	message := strings.TrimSpace(r.FormValue("message"))
	if message == "" {
		message = strings.TrimSpace(r.FormValue("text"))
	}
	if message == "" {
		utils.RespondError(w, http.StatusBadRequest, "message is required")
		return
	}

	loc, err := parseLocation(r.FormValue("latitude"), r.FormValue("longitude"))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	image, err := readImage(r)
	if err != nil {
		utils.RespondError(w, imageErrorStatus(err), err.Error())
		return
	}

	sessionID, err := h.resolveSession(r, r.FormValue("session_id"))
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	resp, err := h.triageSvc.Send(r.Context(), sessionID, message, loc, image)
	if err != nil {
		h.respondSendError(w, err)
		return
	}

	// Flat shape for simple clients: one text plus the assessment labels.
	payload := map[string]any{
		"session_id":    sessionID,
		"response":      resp.ResponseText,
		"stage":         string(resp.Stage),
		"urgency_level": string(resp.Urgency),
		"confidence":    resp.Confidence,
		"language":      resp.Language,
	}
	if resp.Condition != "" {
		payload["condition"] = resp.Condition
	}
	if len(resp.Hospitals) > 0 {
		payload["hospitals"] = resp.Hospitals
	}
	if resp.Offline {
		payload["offline"] = true
	}

	utils.RespondJSON(w, http.StatusOK, payload)
}

type historyEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type conversationalRequest struct {
	SessionID           string           `json:"session_id"`
	Message             string           `json:"message"`
	ConversationHistory []historyEntry   `json:"conversation_history"`
	Location            *triage.Location `json:"user_location,omitempty"`
	ImageData           string           `json:"image_data,omitempty"`
}

// handleConversational accepts a JSON turn and returns the full assessment,
// sections split, for rich clients.
func (h *Handler) handleConversational(w http.ResponseWriter, r *http.Request) {
	var payload conversationalRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var image []byte
	if payload.ImageData != "" {
		decoded, err := base64.StdEncoding.DecodeString(payload.ImageData)
		if err != nil {
			utils.RespondError(w, http.StatusBadRequest, "image_data is not valid base64")
			return
		}
		if err := validateImage(decoded); err != nil {
			utils.RespondError(w, imageErrorStatus(err), err.Error())
			return
		}
		image = decoded
	}

	sessionID := strings.TrimSpace(payload.SessionID)
	if sessionID == "" {
		// Stateless clients carry the transcript themselves; rebuild it so
		// the stage policy sees the full dialogue, not a fresh one.
		conv, err := h.triageSvc.Conversations().Start(r.Context())
		if err != nil {
			utils.RespondError(w, http.StatusInternalServerError, "failed to create session")
			return
		}
		sessionID = conv.ID
		h.seedHistory(r.Context(), sessionID, payload.ConversationHistory)
	}

	resp, err := h.triageSvc.Send(r.Context(), sessionID, payload.Message, payload.Location, image)
	if err != nil {
		h.respondSendError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"session_id":    sessionID,
		"response":      resp.ResponseText,
		"brief":         resp.BriefText,
		"detailed":      resp.DetailedText,
		"stage":         string(resp.Stage),
		"condition":     resp.Condition,
		"urgency_level": string(resp.Urgency),
		"confidence":    resp.Confidence,
		"language":      resp.Language,
		"hospitals":     resp.Hospitals,
		"offline":       resp.Offline,
	})
}

// handleHistory returns the transcript of a consultation.
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	conv, err := h.triageSvc.Conversations().Get(r.Context(), sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"session_id": conv.ID,
		"stage":      string(conv.Stage),
		"symptoms":   conv.ExtractedSymptoms,
		"turns":      conv.Turns,
	})
}

// seedHistory replays a client-carried transcript into a freshly opened
// conversation. Blank or unknown-role entries are skipped; assistant turns
// that carry completion or diagnosis markers restore the final stage.
func (h *Handler) seedHistory(ctx context.Context, sessionID string, history []historyEntry) {
	convs := h.triageSvc.Conversations()
	for _, entry := range history {
		content := strings.TrimSpace(entry.Content)
		if content == "" {
			continue
		}
		var err error
		switch entry.Role {
		case string(triage.RoleUser):
			_, err = convs.AppendUser(ctx, sessionID, content, nil)
		case string(triage.RoleAssistant):
			_, err = convs.AppendAssistant(ctx, sessionID, content, nil, language.DetectStage(content))
		default:
			continue
		}
		if err != nil {
			log.Printf("[chat] failed to seed history turn: %v", err)
		}
	}
}

// resolveSession returns the given session when present, otherwise opens one.
func (h *Handler) resolveSession(r *http.Request, sessionID string) (string, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID != "" {
		return sessionID, nil
	}

	conv, err := h.triageSvc.Conversations().Start(r.Context())
	if err != nil {
		return "", err
	}
	return conv.ID, nil
}

func (h *Handler) respondSendError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, triageService.ErrEmptyMessage),
		errors.Is(err, triageService.ErrMessageTooLong),
		errors.Is(err, triage.ErrInvalidLocation):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, conversation.ErrConversationNotFound):
		utils.RespondError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, triageService.ErrRequestInFlight):
		utils.RespondError(w, http.StatusTooManyRequests, "a request for this session is already in flight")
	default:
		var upstream *triageService.UpstreamError
		if errors.As(err, &upstream) {
			utils.RespondError(w, http.StatusBadGateway, "assessment backend unavailable")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, "assessment failed")
	}
}

func parseLocation(latRaw, lngRaw string) (*triage.Location, error) {
	latRaw, lngRaw = strings.TrimSpace(latRaw), strings.TrimSpace(lngRaw)
	if latRaw == "" && lngRaw == "" {
		return nil, nil
	}
	if latRaw == "" || lngRaw == "" {
		return nil, fmt.Errorf("latitude and longitude must be provided together")
	}

	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid latitude %q", latRaw)
	}
	lng, err := strconv.ParseFloat(lngRaw, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid longitude %q", lngRaw)
	}

	loc := &triage.Location{Latitude: lat, Longitude: lng}
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	return loc, nil
}

func readImage(r *http.Request) ([]byte, error) {
	file, header, err := r.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, fmt.Errorf("invalid image upload")
	}
	defer file.Close()

	if header.Size > maxImageBytes {
		return nil, errImageTooLarge
	}

	data, err := io.ReadAll(io.LimitReader(file, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image upload")
	}
	if err := validateImage(data); err != nil {
		return nil, err
	}
	return data, nil
}

func imageErrorStatus(err error) int {
	if errors.Is(err, errImageTooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func validateImage(data []byte) error {
	if len(data) > maxImageBytes {
		return errImageTooLarge
	}
	contentType := http.DetectContentType(data)
	if _, ok := allowedImageTypes[contentType]; !ok {
		return fmt.Errorf("unsupported image type %s, use JPEG, PNG, or WebP", contentType)
	}
	return nil
}
