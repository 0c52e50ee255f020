package agent

import (
	"testing"

	"github.com/firstaidvox/gateway/internal/analysis/language"
	"github.com/firstaidvox/gateway/internal/model/triage"
)

const finalResponse = `BRIEF: **Diagnosis**: Upper respiratory infection
**Immediate Care**: Rest and fluids
**Hospital**: Visit internal medicine if symptoms persist beyond 7 days
**Pharmacy**: Acetaminophen available over-the-counter
**Emergency**: Call 911 if you develop difficulty breathing
**Consultation completed** - Rest well.

DETAILED: Based on your symptoms this appears to be a typical upper respiratory infection.`

func TestSplitSections(t *testing.T) {
	brief, detailed := SplitSections(finalResponse)
	if brief == detailed {
		t.Fatal("expected distinct brief and detailed sections")
	}
	if brief == "" || detailed == "" {
		t.Fatal("sections must not be empty")
	}
	if want := "Based on your symptoms"; detailed[:len(want)] != want {
		t.Fatalf("unexpected detailed section: %q", detailed)
	}
}

func TestSplitSectionsUnstructured(t *testing.T) {
	text := "When did the pain start?"
	brief, detailed := SplitSections(text)
	if brief != text || detailed != text {
		t.Fatalf("unstructured text must pass through, got brief=%q detailed=%q", brief, detailed)
	}
}

func TestStageForUpgradesOnCompletionMarker(t *testing.T) {
	got := StageFor(triage.StageInitial, finalResponse, 0)
	if got != triage.StageFinal {
		t.Fatalf("expected final on completion marker, got %s", got)
	}
}

func TestStageForDiagnosisNeedsHistory(t *testing.T) {
	text := "**Diagnosis**: mild dehydration\nDrink water."
	if got := StageFor(triage.StageInitial, text, 1); got != triage.StageInitial {
		t.Fatalf("diagnosis marker without history must not upgrade, got %s", got)
	}
	if got := StageFor(triage.StageClarification, text, 3); got != triage.StageFinal {
		t.Fatalf("expected final with history, got %s", got)
	}
}

func TestStageForNeverDowngrades(t *testing.T) {
	if got := StageFor(triage.StageFinal, "how are you feeling?", 6); got != triage.StageFinal {
		t.Fatalf("stage downgraded to %s", got)
	}
}

func TestUrgencyGrading(t *testing.T) {
	cases := []struct {
		text string
		want triage.Urgency
	}{
		{"Call 911 immediately, do not wait.", triage.UrgencyEmergency},
		{"This looks severe, seek medical attention urgently.", triage.UrgencyHigh},
		{"Rest today and see a doctor if it does not improve.", triage.UrgencyModerate},
		{"Stay hydrated and rest.", triage.UrgencyLow},
	}
	for _, tc := range cases {
		if got := UrgencyFor(tc.text); got != tc.want {
			t.Fatalf("UrgencyFor(%q) = %s, want %s", tc.text, got, tc.want)
		}
	}
}

func TestShouldSearchFacilities(t *testing.T) {
	loc := &triage.Location{Latitude: 37.5665, Longitude: 126.978}

	if ShouldSearchFacilities(triage.StageClarification, loc, finalResponse) {
		t.Fatal("must not search before final stage")
	}
	if ShouldSearchFacilities(triage.StageFinal, nil, finalResponse) {
		t.Fatal("must not search without a location")
	}
	if !ShouldSearchFacilities(triage.StageFinal, loc, finalResponse) {
		t.Fatal("expected search at final stage with facility keywords")
	}
}

func TestConditionExtraction(t *testing.T) {
	if got := Condition(finalResponse); got != "Upper respiratory infection" {
		t.Fatalf("unexpected condition: %q", got)
	}
	if got := Condition("no template here"); got != "" {
		t.Fatalf("expected empty condition, got %q", got)
	}
}

func TestCompletedAcknowledgement(t *testing.T) {
	resp := CompletedAcknowledgement(language.Korean)
	if resp.Stage != triage.StageCompleted {
		t.Fatalf("expected completed stage, got %s", resp.Stage)
	}
	if resp.BriefText == "" || resp.DetailedText == "" {
		t.Fatal("acknowledgement sections must be populated")
	}
	if language.Detect(resp.BriefText) != language.Korean {
		t.Fatal("korean acknowledgement expected")
	}
}
