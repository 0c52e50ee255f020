package triage

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/firstaidvox/gateway/internal/analysis/language"
	"github.com/firstaidvox/gateway/internal/config"
	"github.com/firstaidvox/gateway/internal/model/triage"
	"github.com/firstaidvox/gateway/internal/service/agent"
)

// RemoteClient speaks the conversational contract of the hosted triage
// backend. The backend is stateless, so each call carries the full history.
type RemoteClient struct {
	baseURL string
	client  *http.Client
}

// NewRemoteClient builds a client for the configured upstream backend.
func NewRemoteClient(cfg config.UpstreamConfig) *RemoteClient {
	return &RemoteClient{
		baseURL: cfg.BaseURL,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

type remoteHistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type remoteRequest struct {
	Message             string               `json:"message"`
	ConversationHistory []remoteHistoryEntry `json:"conversation_history"`
	UserLocation        *triage.Location     `json:"user_location,omitempty"`
	ImageData           string               `json:"image_data,omitempty"`
}

type remoteResponse struct {
	Response        string            `json:"response"`
	Advice          string            `json:"advice"`
	BriefText       string            `json:"brief_text"`
	DetailedText    string            `json:"detailed_text"`
	AssessmentStage string            `json:"assessment_stage"`
	Condition       string            `json:"condition"`
	UrgencyLevel    string            `json:"urgency_level"`
	Confidence      *float64          `json:"confidence"`
	HospitalData    []triage.Hospital `json:"hospital_data"`
}

// Assess forwards one turn to the backend and normalizes the reply.
func (c *RemoteClient) Assess(ctx context.Context, req *triage.AssessmentRequest) (*triage.AgentResponse, error) {
	history := make([]remoteHistoryEntry, 0, len(req.History))
	for _, turn := range req.History {
		history = append(history, remoteHistoryEntry{Role: string(turn.Role), Content: turn.Content})
	}

	payload := remoteRequest{
		Message:             req.Message,
		ConversationHistory: history,
		UserLocation:        req.Location,
	}
	if len(req.Image) > 0 {
		payload.ImageData = base64.StdEncoding.EncodeToString(req.Image)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode upstream request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/conversational", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &UpstreamError{Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Message: string(detail)}
	}

	var decoded remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &UpstreamError{Message: "failed to decode upstream response", Err: err}
	}

	return normalizeRemote(req, decoded), nil
}

// normalizeRemote maps the two response dialects (advice and
// response/confidence) onto one AgentResponse.
func normalizeRemote(req *triage.AssessmentRequest, decoded remoteResponse) *triage.AgentResponse {
	text := decoded.Response
	if text == "" {
		text = decoded.Advice
	}

	brief, detailed := decoded.BriefText, decoded.DetailedText
	if brief == "" && detailed == "" {
		brief, detailed = agent.SplitSections(text)
	}

	stage := triage.Stage(decoded.AssessmentStage)
	if !stage.Valid() {
		stage = req.Stage
	}

	urgency := triage.Urgency(decoded.UrgencyLevel)
	switch urgency {
	case triage.UrgencyLow, triage.UrgencyModerate, triage.UrgencyHigh, triage.UrgencyEmergency:
	default:
		// Older backend revisions omit urgency_level; grade the text with the
		// same keyword policy the local agent uses.
		urgency = agent.UrgencyFor(text)
	}

	confidence := 0.75
	if decoded.Confidence != nil {
		confidence = *decoded.Confidence
	}

	return &triage.AgentResponse{
		ResponseText: text,
		BriefText:    brief,
		DetailedText: detailed,
		Stage:        stage,
		Condition:    decoded.Condition,
		Urgency:      urgency,
		Confidence:   confidence,
		Language:     string(language.Detect(req.Message)),
		Hospitals:    decoded.HospitalData,
	}
}
