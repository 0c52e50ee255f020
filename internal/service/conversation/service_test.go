package conversation_test

import (
	"context"
	"testing"

	"github.com/firstaidvox/gateway/internal/model/triage"
	"github.com/firstaidvox/gateway/internal/service/conversation"
)

func TestStartCreatesInitialConversation(t *testing.T) {
	svc := conversation.NewService(conversation.DefaultStagePolicy())
	ctx := context.Background()

	conv, err := svc.Start(ctx)
	if err != nil {
		t.Fatalf("Start err: %v", err)
	}
	if conv.Stage != triage.StageInitial {
		t.Fatalf("expected initial stage, got %s", conv.Stage)
	}
	if len(conv.Turns) != 0 {
		t.Fatalf("expected empty transcript, got %d turns", len(conv.Turns))
	}
}

func TestGetMissingConversation(t *testing.T) {
	svc := conversation.NewService(conversation.DefaultStagePolicy())
	if _, err := svc.Get(context.Background(), "missing"); err != conversation.ErrConversationNotFound {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
}

func TestTranscriptOrderingAndCount(t *testing.T) {
	svc := conversation.NewService(conversation.DefaultStagePolicy())
	ctx := context.Background()

	conv, _ := svc.Start(ctx)
	const pairs = 4
	for i := 0; i < pairs; i++ {
		if _, err := svc.AppendUser(ctx, conv.ID, "symptom update", nil); err != nil {
			t.Fatalf("AppendUser err: %v", err)
		}
		if _, err := svc.AppendAssistant(ctx, conv.ID, "noted", nil, ""); err != nil {
			t.Fatalf("AppendAssistant err: %v", err)
		}
	}

	turns, err := svc.Transcript(ctx, conv.ID)
	if err != nil {
		t.Fatalf("Transcript err: %v", err)
	}
	if len(turns) != 2*pairs {
		t.Fatalf("expected %d turns, got %d", 2*pairs, len(turns))
	}
	for i := 1; i < len(turns); i++ {
		if turns[i].Timestamp.Before(turns[i-1].Timestamp) {
			t.Fatalf("turns out of chronological order at index %d", i)
		}
	}
	for i, turn := range turns {
		want := triage.RoleUser
		if i%2 == 1 {
			want = triage.RoleAssistant
		}
		if turn.Role != want {
			t.Fatalf("turn %d: expected role %s, got %s", i, want, turn.Role)
		}
	}
}

func TestStageIsMonotonic(t *testing.T) {
	svc := conversation.NewService(conversation.DefaultStagePolicy())
	ctx := context.Background()

	conv, _ := svc.Start(ctx)
	svc.AppendUser(ctx, conv.ID, "I have a headache", nil)
	svc.AppendAssistant(ctx, conv.ID, "when did it start?", nil, triage.StageClarification)

	// A stale or lower proposal must not move the stage backwards.
	svc.AppendAssistant(ctx, conv.ID, "noted", nil, triage.StageInitial)

	got, _ := svc.Get(ctx, conv.ID)
	if got.Stage != triage.StageClarification {
		t.Fatalf("stage regressed: got %s", got.Stage)
	}

	svc.AppendAssistant(ctx, conv.ID, "**Diagnosis**: tension headache", nil, triage.StageFinal)
	got, _ = svc.Get(ctx, conv.ID)
	if got.Stage != triage.StageFinal {
		t.Fatalf("expected final, got %s", got.Stage)
	}
}

func TestUserTurnAfterFinalCompletes(t *testing.T) {
	svc := conversation.NewService(conversation.DefaultStagePolicy())
	ctx := context.Background()

	conv, _ := svc.Start(ctx)
	svc.AppendUser(ctx, conv.ID, "fever and cough", nil)
	svc.AppendAssistant(ctx, conv.ID, "**Consultation completed**", nil, triage.StageFinal)

	svc.AppendUser(ctx, conv.ID, "anything else?", nil)
	got, _ := svc.Get(ctx, conv.ID)
	if got.Stage != triage.StageCompleted {
		t.Fatalf("expected completed, got %s", got.Stage)
	}

	// Completed is terminal.
	svc.AppendAssistant(ctx, conv.ID, "the consultation has already been completed", nil, triage.StageFinal)
	got, _ = svc.Get(ctx, conv.ID)
	if got.Stage != triage.StageCompleted {
		t.Fatalf("completed stage must be terminal, got %s", got.Stage)
	}
}

func TestStageForForcesFinalAtBudget(t *testing.T) {
	svc := conversation.NewService(conversation.StagePolicy{MaxExchanges: 2})
	ctx := context.Background()

	conv, _ := svc.Start(ctx)
	if got := svc.StageFor(conv); got != triage.StageInitial {
		t.Fatalf("expected initial before first exchange, got %s", got)
	}

	svc.AppendUser(ctx, conv.ID, "stomach ache", nil)
	svc.AppendAssistant(ctx, conv.ID, "how long?", nil, triage.StageClarification)
	conv, _ = svc.Get(ctx, conv.ID)
	if got := svc.StageFor(conv); got != triage.StageClarification {
		t.Fatalf("expected clarification, got %s", got)
	}

	svc.AppendUser(ctx, conv.ID, "since this morning, mild", nil)
	conv, _ = svc.Get(ctx, conv.ID)
	if got := svc.StageFor(conv); got != triage.StageFinal {
		t.Fatalf("expected forced final at exchange budget, got %s", got)
	}
}

func TestSymptomExtraction(t *testing.T) {
	svc := conversation.NewService(conversation.DefaultStagePolicy())
	ctx := context.Background()

	conv, _ := svc.Start(ctx)
	svc.AppendUser(ctx, conv.ID, "I have chest pain and a fever", nil)
	svc.AppendUser(ctx, conv.ID, "also chest pain still", nil)

	got, _ := svc.Get(ctx, conv.ID)
	if len(got.ExtractedSymptoms) != 2 {
		t.Fatalf("expected 2 distinct symptoms, got %v", got.ExtractedSymptoms)
	}
}
