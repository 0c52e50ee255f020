package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/cloudwego/eino/schema"

	"github.com/firstaidvox/gateway/internal/analysis/language"
	"github.com/firstaidvox/gateway/internal/model/triage"
	agentService "github.com/firstaidvox/gateway/internal/service/agent"
	triageService "github.com/firstaidvox/gateway/internal/service/triage"
)

// Handler streams assessment turns over Server-Sent Events.
type Handler struct {
	agentSvc  *agentService.Service
	triageSvc *triageService.Service
}

// New creates a stream handler.
func New(agentSvc *agentService.Service, triageSvc *triageService.Service) *Handler {
	return &Handler{agentSvc: agentSvc, triageSvc: triageSvc}
}

// StreamResponse is one SSE frame.
type StreamResponse struct {
	Event     string `json:"event"`
	Content   string `json:"content,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Stage     string `json:"stage,omitempty"`
	Urgency   string `json:"urgency,omitempty"`
	Finished  bool   `json:"finished,omitempty"`
	Error     string `json:"error,omitempty"`
}

// HandleStreamRequest runs one consultation turn, emitting deltas as the
// model produces them, then an assessment frame once the turn is graded.
func (h *Handler) HandleStreamRequest(ctx context.Context, w http.ResponseWriter, sessionID string, userMessage string) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("streaming unsupported")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	conv, err := h.triageSvc.Conversations().Get(ctx, sessionID)
	if err != nil {
		h.sendSSEError(w, flusher, "session not found")
		return err
	}

	h.sendSSE(w, flusher, StreamResponse{Event: "start", SessionID: sessionID})

	// A closed consultation streams the canned acknowledgement instead of
	// reaching the model again.
	if conv.Stage.AtLeast(triage.StageFinal) {
		ack := agentService.CompletedAcknowledgement(language.Detect(userMessage))
		h.triageSvc.RecordExchange(ctx, sessionID, userMessage, nil, ack)
		h.sendSSE(w, flusher, StreamResponse{
			Event:     "message",
			SessionID: sessionID,
			Content:   ack.ResponseText,
			Stage:     string(ack.Stage),
		})
		h.sendSSE(w, flusher, StreamResponse{Event: "end", SessionID: sessionID, Finished: true})
		return nil
	}

	req := &triage.AssessmentRequest{
		Message: userMessage,
		History: conv.Turns,
		Stage:   h.triageSvc.Conversations().StageFor(conv),
	}

	responseText, err := h.dispatchResponse(ctx, w, flusher, sessionID, req)
	if err != nil {
		h.sendSSEError(w, flusher, fmt.Sprintf("assessment failed: %v", err))
		return err
	}

	resp := h.agentSvc.Finalize(req, responseText)
	h.triageSvc.RecordExchange(ctx, sessionID, userMessage, nil, resp)

	h.sendSSE(w, flusher, StreamResponse{
		Event:     "assessment",
		SessionID: sessionID,
		Stage:     string(resp.Stage),
		Urgency:   string(resp.Urgency),
	})

	h.sendSSE(w, flusher, StreamResponse{Event: "end", SessionID: sessionID, Finished: true})

	log.Printf("[stream] completed turn for session=%s stage=%s", sessionID, resp.Stage)
	return nil
}

func (h *Handler) dispatchResponse(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, sessionID string, req *triage.AssessmentRequest) (string, error) {
	if h.agentSvc.StreamingEnabled() {
		return h.streamResponse(ctx, w, flusher, sessionID, req)
	}

	resp, err := h.agentSvc.Assess(ctx, req)
	if err != nil {
		return "", err
	}

	h.sendSSE(w, flusher, StreamResponse{
		Event:     "message",
		SessionID: sessionID,
		Content:   resp.ResponseText,
	})
	return resp.ResponseText, nil
}

func (h *Handler) streamResponse(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, sessionID string, req *triage.AssessmentRequest) (string, error) {
	stream, err := h.agentSvc.StreamAssess(ctx, req)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	chunks := make([]*schema.Message, 0, 8)

	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return "", recvErr
		}
		if chunk == nil {
			continue
		}

		chunks = append(chunks, chunk)
		if chunk.Content != "" {
			h.sendSSE(w, flusher, StreamResponse{
				Event:     "delta",
				SessionID: sessionID,
				Content:   chunk.Content,
			})
		}
	}

	response, err := schema.ConcatMessages(chunks)
	if err != nil {
		return "", err
	}

	h.sendSSE(w, flusher, StreamResponse{
		Event:     "message",
		SessionID: sessionID,
		Content:   response.Content,
	})
	return response.Content, nil
}

func (h *Handler) sendSSE(w http.ResponseWriter, flusher http.Flusher, response StreamResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		log.Printf("failed to marshal SSE response: %v", err)
		return
	}

	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}

func (h *Handler) sendSSEError(w http.ResponseWriter, flusher http.Flusher, errorMsg string) {
	h.sendSSE(w, flusher, StreamResponse{Event: "error", Error: errorMsg})
}
