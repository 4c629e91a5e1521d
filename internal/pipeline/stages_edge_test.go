package pipeline_test

// ── Additional edge-case tests ────────────────────────────────────────────
//
// This file extends stages_test.go with input-hygiene cases around
// ParseStage and the Rules terminal/hired helpers. The core state-machine
// matrix is already covered in stages_test.go.

import (
	"testing"

	"recruitment/pipeline-service/internal/pipeline"
)

// ParseStage must be case-sensitive — uppercase variants must not be valid.
func TestParseStage_CaseSensitive(t *testing.T) {
	uppercase := []string{"APPLIED", "PHONE_SCREEN", "ONSITE", "OFFER", "HIRED", "REJECTED"}
	for _, s := range uppercase {
		_, err := pipeline.ParseStage(s)
		if err == nil {
			t.Errorf("ParseStage(%q) should reject uppercase value, got nil error", s)
		}
	}
}

// ParseStage must reject whitespace-padded strings.
func TestParseStage_WithWhitespace(t *testing.T) {
	padded := []string{" applied", "applied ", " applied "}
	for _, s := range padded {
		_, err := pipeline.ParseStage(s)
		if err == nil {
			t.Errorf("ParseStage(%q) should reject padded value, got nil error", s)
		}
	}
}

// All six constants must round-trip through ParseStage without error.
func TestParseStage_AllConstantsRoundTrip(t *testing.T) {
	all := []pipeline.Stage{
		pipeline.StageApplied,
		pipeline.StagePhoneScreen,
		pipeline.StageOnsite,
		pipeline.StageOffer,
		pipeline.StageHired,
		pipeline.StageRejected,
	}
	for _, s := range all {
		got, err := pipeline.ParseStage(string(s))
		if err != nil {
			t.Errorf("ParseStage(%q) unexpected error: %v", s, err)
		}
		if got != s {
			t.Errorf("ParseStage(%q) = %q, want %q", s, got, s)
		}
	}
}

// Exactly hired and rejected are terminal; every other stage has at
// least one outgoing transition.
func TestIsTerminal(t *testing.T) {
	rules := pipeline.DefaultRules()
	terminal := map[pipeline.Stage]bool{
		pipeline.StageHired:    true,
		pipeline.StageRejected: true,
	}
	for _, s := range []pipeline.Stage{
		pipeline.StageApplied, pipeline.StagePhoneScreen, pipeline.StageOnsite,
		pipeline.StageOffer, pipeline.StageHired, pipeline.StageRejected,
	} {
		if got := rules.IsTerminal(s); got != terminal[s] {
			t.Errorf("IsTerminal(%s) = %v, want %v", s, got, terminal[s])
		}
	}
}

// applied is the mandatory initial stage for any new application.
// Verify it is never reachable from any other stage.
func TestIsAllowed_AppliedIsNeverReachable(t *testing.T) {
	rules := pipeline.DefaultRules()
	sources := []pipeline.Stage{
		pipeline.StagePhoneScreen,
		pipeline.StageOnsite,
		pipeline.StageOffer,
		pipeline.StageHired,
		pipeline.StageRejected,
	}
	for _, from := range sources {
		if rules.IsAllowed(from, pipeline.StageApplied) {
			t.Errorf(
				"IsAllowed(%s → applied) must be false: applied is only an initial stage",
				from,
			)
		}
	}
}

// IsHired gates hired_at stamping in the repository.
// Verify it's a strict equality check — only hired returns true.
func TestIsHired_StrictEquality(t *testing.T) {
	nonHired := []pipeline.Stage{
		pipeline.StageApplied,
		pipeline.StagePhoneScreen,
		pipeline.StageOnsite,
		pipeline.StageOffer,
		pipeline.StageRejected,
	}
	if !pipeline.IsHired(pipeline.StageHired) {
		t.Error("IsHired(StageHired) must be true")
	}
	for _, s := range nonHired {
		if pipeline.IsHired(s) {
			t.Errorf("IsHired(%s) must be false", s)
		}
	}
}

// The approved reject-reason set is closed: exactly these five codes.
func TestDefaultRules_RejectReasonSet(t *testing.T) {
	rules := pipeline.DefaultRules()
	want := []string{"culture_fit", "technical_skills", "experience", "salary", "position_closed"}
	if len(rules.RejectReasons) != len(want) {
		t.Fatalf("RejectReasons has %d entries, want %d", len(rules.RejectReasons), len(want))
	}
	for _, code := range want {
		if _, ok := rules.RejectReasons[code]; !ok {
			t.Errorf("RejectReasons missing approved code %q", code)
		}
	}
}
