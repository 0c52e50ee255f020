package language

import (
	"testing"

	"github.com/firstaidvox/gateway/internal/model/triage"
)

func TestDetectHangul(t *testing.T) {
	if got := Detect("머리가 아파요"); got != Korean {
		t.Fatalf("expected ko, got %s", got)
	}
}

func TestDetectJapanese(t *testing.T) {
	if got := Detect("頭が痛いです"); got != Japanese {
		t.Fatalf("expected ja, got %s", got)
	}
}

func TestDetectSpanishKeywords(t *testing.T) {
	if got := Detect("tengo dolor de cabeza"); got != Spanish {
		t.Fatalf("expected es, got %s", got)
	}
}

func TestDetectDefaultsToEnglish(t *testing.T) {
	if got := Detect("I have a headache"); got != English {
		t.Fatalf("expected en, got %s", got)
	}
}

func TestDetectRomanizedKorean(t *testing.T) {
	if got := Detect("gamgi symptoms since yesterday"); got != Korean {
		t.Fatalf("expected ko for romanized input, got %s", got)
	}
}

func TestDetectStageCompletionMarker(t *testing.T) {
	if got := DetectStage("**Consultation completed** - rest well"); got != triage.StageFinal {
		t.Fatalf("expected final, got %q", got)
	}
}

func TestDetectStageDiagnosisSections(t *testing.T) {
	text := "**Diagnosis**: Upper respiratory infection\n**Pharmacy**: lozenges"
	if got := DetectStage(text); got != triage.StageFinal {
		t.Fatalf("expected final, got %q", got)
	}
}

func TestDetectStagePlainQuestionIsUnmarked(t *testing.T) {
	if got := DetectStage("When did the symptoms start?"); got != "" {
		t.Fatalf("expected no stage signal, got %q", got)
	}
}
