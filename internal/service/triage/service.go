package triage

import (
	"context"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/firstaidvox/gateway/internal/analysis/language"
	"github.com/firstaidvox/gateway/internal/model/triage"
	"github.com/firstaidvox/gateway/internal/service/agent"
	"github.com/firstaidvox/gateway/internal/service/conversation"
)

const maxMessageLength = 2000

// Assessor produces one assessment turn from a message plus history.
type Assessor interface {
	Assess(ctx context.Context, req *triage.AssessmentRequest) (*triage.AgentResponse, error)
}

// FacilityFinder locates nearby hospitals and pharmacies.
type FacilityFinder interface {
	SearchNearby(ctx context.Context, loc triage.Location) ([]triage.Hospital, error)
}

// RetryPolicy bounds the backoff loop around assessor calls.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Timeout     time.Duration
}

// DefaultRetryPolicy mirrors the production tuning: three attempts, 500 ms
// jittered doubling, 15 s hard cap per request.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, Timeout: 15 * time.Second}
}

type queuedMessage struct {
	conversationID string
	message        string
	location       *triage.Location
}

// Service orchestrates a consultation turn: validation, single-flight
// dispatch, retries, fallback, transcript bookkeeping, and facility search.
type Service struct {
	convs    *conversation.Service
	assessor Assessor
	finder   FacilityFinder
	retry    RetryPolicy

	mu         sync.Mutex
	inflight   map[string]struct{}
	queue      []queuedMessage
	queueLimit int
}

// NewService wires the orchestrator. finder may be nil; facility search then
// degrades to an empty list.
func NewService(convs *conversation.Service, assessor Assessor, finder FacilityFinder, retry RetryPolicy, queueLimit int) *Service {
	if retry.MaxAttempts < 1 {
		retry = DefaultRetryPolicy()
	}
	if queueLimit < 1 {
		queueLimit = 32
	}
	return &Service{
		convs:      convs,
		assessor:   assessor,
		finder:     finder,
		retry:      retry,
		inflight:   make(map[string]struct{}),
		queueLimit: queueLimit,
	}
}

// Conversations exposes the backing store for handlers.
func (s *Service) Conversations() *conversation.Service {
	return s.convs
}

// Send runs one full consultation turn. On success both turns land in the
// transcript, with any hospital data attached to the assistant turn's
// metadata so it renders once and persists. A successful assessment also
// kicks off a background replay of queued messages; the caller never waits
// on it.
func (s *Service) Send(ctx context.Context, conversationID, message string, loc *triage.Location, image []byte) (*triage.AgentResponse, error) {
	resp, err := s.send(ctx, conversationID, message, loc, image)
	if err == nil && !resp.Offline && s.QueuedCount() > 0 {
		go s.drainQueue(context.Background())
	}
	return resp, err
}

func (s *Service) send(ctx context.Context, conversationID, message string, loc *triage.Location, image []byte) (*triage.AgentResponse, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	if len(message) > maxMessageLength {
		return nil, ErrMessageTooLong
	}
	if loc != nil {
		if err := loc.Validate(); err != nil {
			return nil, err
		}
	}

	if !s.beginFlight(conversationID) {
		return nil, ErrRequestInFlight
	}
	defer s.endFlight(conversationID)

	conv, err := s.convs.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	// A closed consultation never reaches an assessor again: the user turn
	// is recorded, the canned acknowledgement comes back.
	if conv.Stage.AtLeast(triage.StageFinal) {
		if _, err := s.convs.AppendUser(ctx, conversationID, message, nil); err != nil {
			return nil, err
		}
		ack := agent.CompletedAcknowledgement(language.Detect(message))
		if _, err := s.convs.AppendAssistant(ctx, conversationID, ack.ResponseText, nil, ack.Stage); err != nil {
			return nil, err
		}
		return ack, nil
	}

	req := &triage.AssessmentRequest{
		Message:  message,
		History:  conv.Turns,
		Stage:    s.convs.StageFor(conv),
		Location: loc,
		Image:    image,
	}

	resp, err := s.assessWithRetry(ctx, req)
	if err != nil {
		if fallback := offlineFallback(message, req.Stage); fallback != nil {
			log.Printf("[triage] assessor unavailable, serving offline fallback: %v", err)
			s.appendExchange(ctx, conversationID, message, fallback)
			return fallback, nil
		}

		s.enqueue(queuedMessage{conversationID: conversationID, message: message, location: loc})
		return nil, err
	}

	s.attachFacilities(ctx, loc, resp)
	s.appendExchange(ctx, conversationID, message, resp)
	return resp, nil
}

// RecordExchange stores an exchange produced outside Send, such as the
// streaming path where the response text arrives incrementally.
func (s *Service) RecordExchange(ctx context.Context, conversationID, message string, loc *triage.Location, resp *triage.AgentResponse) {
	s.attachFacilities(ctx, loc, resp)
	s.appendExchange(ctx, conversationID, message, resp)
}

// assessWithRetry applies bounded exponential backoff to retryable failures
// only; validation-class errors surface immediately.
func (s *Service) assessWithRetry(ctx context.Context, req *triage.AssessmentRequest) (*triage.AgentResponse, error) {
	var lastErr error
	delay := s.retry.BaseDelay

	for attempt := 1; attempt <= s.retry.MaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, s.retry.Timeout)
		resp, err := s.assessor.Assess(attemptCtx, req)
		cancel()

		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !retryable(err) || attempt == s.retry.MaxAttempts {
			break
		}

		log.Printf("[triage] attempt %d/%d failed (%v), retrying in %s", attempt, s.retry.MaxAttempts, err, delay)
		jitter := time.Duration(rand.Int63n(int64(delay)/2 + 1))
		select {
		case <-time.After(delay + jitter):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		delay *= 2
	}

	return nil, lastErr
}

// attachFacilities adds nearby hospitals when the final assessment calls for
// them. Search failures degrade to no data and never block the response.
func (s *Service) attachFacilities(ctx context.Context, loc *triage.Location, resp *triage.AgentResponse) {
	if s.finder == nil || len(resp.Hospitals) > 0 {
		return
	}
	if !agent.ShouldSearchFacilities(resp.Stage, loc, resp.ResponseText) {
		return
	}

	hospitals, err := s.finder.SearchNearby(ctx, *loc)
	if err != nil {
		log.Printf("[triage] facility search failed, continuing without hospital data: %v", err)
		return
	}
	resp.Hospitals = hospitals
}

func (s *Service) appendExchange(ctx context.Context, conversationID, message string, resp *triage.AgentResponse) {
	if _, err := s.convs.AppendUser(ctx, conversationID, message, nil); err != nil {
		log.Printf("[triage] failed to record user turn: %v", err)
		return
	}

	meta := map[string]any{
		"assessment_stage": string(resp.Stage),
		"urgency_level":    string(resp.Urgency),
		"confidence":       resp.Confidence,
	}
	if resp.Offline {
		meta["offline"] = true
	}
	if len(resp.Hospitals) > 0 {
		meta["hospital_data"] = resp.Hospitals
	}
	if _, err := s.convs.AppendAssistant(ctx, conversationID, resp.ResponseText, meta, resp.Stage); err != nil {
		log.Printf("[triage] failed to record assistant turn: %v", err)
	}
}

func (s *Service) beginFlight(conversationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[conversationID]; busy {
		return false
	}
	s.inflight[conversationID] = struct{}{}
	return true
}

func (s *Service) endFlight(conversationID string) {
	s.mu.Lock()
	delete(s.inflight, conversationID)
	s.mu.Unlock()
}

// enqueue stores an unanswerable message for replay once connectivity
// returns. The queue is bounded; the oldest entry gives way.
func (s *Service) enqueue(msg queuedMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) >= s.queueLimit {
		s.queue = s.queue[1:]
	}
	s.queue = append(s.queue, msg)
}

// QueuedCount reports how many messages await replay.
func (s *Service) QueuedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// drainQueue replays queued messages after a successful send. Each entry gets
// a single attempt; failures go back to the queue for the next opportunity.
func (s *Service) drainQueue(ctx context.Context) {
	s.mu.Lock()
	pending := s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, msg := range pending {
		s.replay(ctx, msg)
	}
}

// replay honors the target conversation's single-flight slot; a conversation
// with a live send keeps its entry queued for the next drain.
func (s *Service) replay(ctx context.Context, msg queuedMessage) {
	if !s.beginFlight(msg.conversationID) {
		s.enqueue(msg)
		return
	}
	defer s.endFlight(msg.conversationID)

	conv, err := s.convs.Get(ctx, msg.conversationID)
	if err != nil {
		return // conversation is gone, drop the entry
	}

	req := &triage.AssessmentRequest{
		Message:  msg.message,
		History:  conv.Turns,
		Stage:    s.convs.StageFor(conv),
		Location: msg.location,
	}

	attemptCtx, cancel := context.WithTimeout(ctx, s.retry.Timeout)
	resp, err := s.assessor.Assess(attemptCtx, req)
	cancel()
	if err != nil {
		s.enqueue(msg)
		return
	}

	s.attachFacilities(ctx, msg.location, resp)
	s.appendExchange(ctx, msg.conversationID, msg.message, resp)
	log.Printf("[triage] replayed queued message for conversation %s", msg.conversationID)
}
