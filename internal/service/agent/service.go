package agent

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/firstaidvox/gateway/internal/analysis/language"
	"github.com/firstaidvox/gateway/internal/config"
	"github.com/firstaidvox/gateway/internal/model/triage"
)

// Service runs triage assessments against the local chat model.
type Service struct {
	chatModel model.ChatModel
	cfg       config.AgentConfig
	chain     compose.Runnable[map[string]any, *schema.Message]
}

// NewService compiles the assessment chain over the configured model.
func NewService(ctx context.Context, cfg config.AgentConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile assessment chain: %w", err)
	}

	return &Service{chatModel: chatModel, cfg: cfg, chain: runnable}, nil
}

// StreamingEnabled indicates whether SSE streaming output is on.
func (s *Service) StreamingEnabled() bool {
	return s.cfg.Stream
}

// Assess generates one assessment turn. The request's Stage carries the
// history-derived stage; the response stage can only move forward from it.
func (s *Service) Assess(ctx context.Context, req *triage.AssessmentRequest) (*triage.AgentResponse, error) {
	lang := language.Detect(req.Message)

	var (
		response *schema.Message
		err      error
	)
	if len(req.Image) > 0 {
		// The prompt template is text-only; multimodal turns go straight to
		// the model.
		response, err = s.chatModel.Generate(ctx, s.buildMessages(req, lang))
	} else {
		response, err = s.chain.Invoke(ctx, s.buildChainInput(req, lang))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to run assessment chain: %w", err)
	}

	result := s.finalize(req, lang, response.Content)
	log.Printf("[agent] assessment stage=%s urgency=%s lang=%s length=%d",
		result.Stage, result.Urgency, result.Language, len(result.ResponseText))
	return result, nil
}

// StreamAssess streams raw model chunks; callers finalize the accumulated
// text with Finalize once the stream closes.
func (s *Service) StreamAssess(ctx context.Context, req *triage.AssessmentRequest) (*schema.StreamReader[*schema.Message], error) {
	if !s.StreamingEnabled() {
		return nil, fmt.Errorf("streaming disabled in configuration")
	}
	if len(req.Image) > 0 {
		return nil, fmt.Errorf("streaming does not support image input")
	}

	lang := language.Detect(req.Message)
	stream, err := s.chain.Stream(ctx, s.buildChainInput(req, lang))
	if err != nil {
		return nil, fmt.Errorf("failed to stream assessment output: %w", err)
	}
	return stream, nil
}

// Finalize post-processes accumulated model text into an AgentResponse.
func (s *Service) Finalize(req *triage.AssessmentRequest, responseText string) *triage.AgentResponse {
	return s.finalize(req, language.Detect(req.Message), responseText)
}

func (s *Service) finalize(req *triage.AssessmentRequest, lang language.Language, responseText string) *triage.AgentResponse {
	if strings.TrimSpace(responseText) == "" {
		responseText = "I apologize, but I couldn't generate a response. Please try again or seek immediate medical attention if this is an emergency."
	}

	brief, detailed := SplitSections(responseText)
	stage := StageFor(req.Stage, responseText, len(req.History))

	return &triage.AgentResponse{
		ResponseText: responseText,
		BriefText:    brief,
		DetailedText: detailed,
		Stage:        stage,
		Condition:    Condition(responseText),
		Urgency:      UrgencyFor(responseText),
		Confidence:   defaultModelConfidence,
		Language:     string(lang),
	}
}

func (s *Service) buildChainInput(req *triage.AssessmentRequest, lang language.Language) map[string]any {
	return map[string]any{
		"system":  s.buildSystemPrompt(req, lang),
		"history": buildHistoryMessages(req.History),
		"query":   req.Message,
	}
}

func (s *Service) buildMessages(req *triage.AssessmentRequest, lang language.Language) []*schema.Message {
	messages := []*schema.Message{schema.SystemMessage(s.buildSystemPrompt(req, lang))}
	messages = append(messages, buildHistoryMessages(req.History)...)

	mime := http.DetectContentType(req.Image)
	encoded := base64.StdEncoding.EncodeToString(req.Image)
	userMsg := &schema.Message{
		Role: schema.User,
		MultiContent: []schema.ChatMessagePart{
			{Type: schema.ChatMessagePartTypeText, Text: req.Message},
			{
				Type: schema.ChatMessagePartTypeImageURL,
				ImageURL: &schema.ChatMessageImageURL{
					URL: fmt.Sprintf("data:%s;base64,%s", mime, encoded),
				},
			},
		},
	}
	return append(messages, userMsg)
}

func (s *Service) buildSystemPrompt(req *triage.AssessmentRequest, lang language.Language) string {
	var builder strings.Builder
	builder.WriteString(systemPrompt)
	builder.WriteString("\n\n")
	builder.WriteString(languageInstruction(lang, req.Message))
	if instruction := stageInstruction(string(req.Stage)); instruction != "" {
		builder.WriteString("\n\n")
		builder.WriteString(instruction)
	}
	if len(req.Image) > 0 {
		builder.WriteString("\n\nIMPORTANT: The user has provided an image. Analyze it for visible injuries or symptoms.")
	}
	return builder.String()
}

func buildHistoryMessages(turns []triage.Turn) []*schema.Message {
	const historyLimit = 10

	if len(turns) == 0 {
		return nil
	}

	startIdx := 0
	if len(turns) > historyLimit {
		startIdx = len(turns) - historyLimit
	}

	history := make([]*schema.Message, 0, len(turns)-startIdx)
	for _, turn := range turns[startIdx:] {
		switch turn.Role {
		case triage.RoleUser:
			history = append(history, schema.UserMessage(turn.Content))
		case triage.RoleAssistant:
			history = append(history, schema.AssistantMessage(turn.Content, nil))
		}
	}
	return history
}
