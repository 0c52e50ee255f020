package conversation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/firstaidvox/gateway/internal/model/triage"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrEmptyContent         = errors.New("turn content is empty")
)

// StagePolicy bounds the clarifying rounds before a forced final assessment.
type StagePolicy struct {
	MaxExchanges int
}

// DefaultStagePolicy matches the tuned production behavior of 2-3 clarifying
// rounds before the agent must commit to an assessment.
func DefaultStagePolicy() StagePolicy {
	return StagePolicy{MaxExchanges: 3}
}

// Service is the in-memory source of truth for active consultations. One
// Conversation per session; nothing survives a restart.
type Service struct {
	mu     sync.RWMutex
	convs  map[string]*triage.Conversation
	policy StagePolicy
}

// NewService bootstraps the store.
func NewService(policy StagePolicy) *Service {
	if policy.MaxExchanges < 1 {
		policy = DefaultStagePolicy()
	}
	return &Service{
		convs:  make(map[string]*triage.Conversation),
		policy: policy,
	}
}

// Policy exposes the active stage policy.
func (s *Service) Policy() StagePolicy {
	return s.policy
}

// Start provisions a fresh conversation at the initial stage.
func (s *Service) Start(_ context.Context) (triage.Conversation, error) {
	conv := &triage.Conversation{
		ID:             uuid.NewString(),
		Turns:          make([]triage.Turn, 0, 8),
		Stage:          triage.StageInitial,
		ProgressFields: make(map[string]string),
		CreatedAt:      time.Now().UTC(),
	}

	s.mu.Lock()
	s.convs[conv.ID] = conv
	s.mu.Unlock()

	return snapshot(conv), nil
}

// Get returns a copy of the conversation.
func (s *Service) Get(_ context.Context, id string) (triage.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.convs[id]
	if !ok {
		return triage.Conversation{}, ErrConversationNotFound
	}
	return snapshot(conv), nil
}

// Transcript returns the ordered turn history.
func (s *Service) Transcript(_ context.Context, id string) ([]triage.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.convs[id]
	if !ok {
		return nil, ErrConversationNotFound
	}

	turns := make([]triage.Turn, len(conv.Turns))
	copy(turns, conv.Turns)
	return turns, nil
}

// AppendUser records a user turn. A user message arriving after the final
// assessment moves the conversation to its terminal completed stage.
func (s *Service) AppendUser(_ context.Context, id, content string, metadata map[string]any) (triage.Turn, error) {
	if content == "" {
		return triage.Turn{}, ErrEmptyContent
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[id]
	if !ok {
		return triage.Turn{}, ErrConversationNotFound
	}

	turn := newTurn(triage.RoleUser, content, metadata)
	conv.Turns = append(conv.Turns, turn)
	recordSymptoms(conv, content)

	if conv.Stage == triage.StageFinal {
		conv.Stage = triage.StageCompleted
	}

	return turn, nil
}

// AppendAssistant records an assistant turn and advances the stage. The
// proposed stage comes from the assessor; the store only enforces that the
// observed sequence is non-decreasing.
func (s *Service) AppendAssistant(_ context.Context, id, content string, metadata map[string]any, proposed triage.Stage) (triage.Turn, error) {
	if content == "" {
		return triage.Turn{}, ErrEmptyContent
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[id]
	if !ok {
		return triage.Turn{}, ErrConversationNotFound
	}

	turn := newTurn(triage.RoleAssistant, content, metadata)
	conv.Turns = append(conv.Turns, turn)

	if proposed.Valid() && proposed.Order() > conv.Stage.Order() {
		conv.Stage = proposed
	}

	return turn, nil
}

// StageFor derives the history-based stage for the next assessment: under the
// exchange budget the dialogue moves initial -> clarification, at the budget
// it is forced final regardless of content.
func (s *Service) StageFor(conv triage.Conversation) triage.Stage {
	if conv.Stage.AtLeast(triage.StageFinal) {
		return conv.Stage
	}

	exchanges := conv.Exchanges()
	switch {
	case exchanges >= s.policy.MaxExchanges:
		return triage.StageFinal
	case exchanges >= 1:
		return triage.StageClarification
	default:
		return triage.StageInitial
	}
}

func newTurn(role triage.Role, content string, metadata map[string]any) triage.Turn {
	return triage.Turn{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}
}

func snapshot(conv *triage.Conversation) triage.Conversation {
	out := *conv
	out.Turns = make([]triage.Turn, len(conv.Turns))
	copy(out.Turns, conv.Turns)
	out.ExtractedSymptoms = append([]string(nil), conv.ExtractedSymptoms...)
	fields := make(map[string]string, len(conv.ProgressFields))
	for k, v := range conv.ProgressFields {
		fields[k] = v
	}
	out.ProgressFields = fields
	return out
}
