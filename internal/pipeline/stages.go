// Package pipeline defines the recruitment pipeline state machine for
// job applications.
//
// Valid stage graph:
//
//	applied ──► phone_screen ──► onsite ──► offer ──► hired
//	    │             │             │          │
//	    └─────────────┴─────────────┴──────────┴──► rejected
//
// hired and rejected are terminal stages.
package pipeline

import "fmt"

// Stage values mirror the application status column in PostgreSQL.
type Stage string

const (
	StageApplied     Stage = "applied"
	StagePhoneScreen Stage = "phone_screen"
	StageOnsite      Stage = "onsite"
	StageOffer       Stage = "offer"
	StageHired       Stage = "hired"
	StageRejected    Stage = "rejected"
)

// allStages is the closed set of valid stage values.
var allStages = []Stage{
	StageApplied, StagePhoneScreen, StageOnsite, StageOffer, StageHired, StageRejected,
}

// ParseStage converts a raw string to a Stage, returning an error for
// unknown values.
func ParseStage(s string) (Stage, error) {
	st := Stage(s)
	for _, v := range allStages {
		if st == v {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown application stage %q", s)
}

// Rules holds the transition graph, the approved reject reasons and the
// score bounds. One value is built at startup and injected everywhere;
// nothing in this package reads global state.
type Rules struct {
	// Transitions lists every allowed (from → to) pair. Stages absent
	// from the map are terminal.
	Transitions map[Stage][]Stage

	// RejectReasons maps approved reason codes to human-readable labels.
	RejectReasons map[string]string

	ScoreMin int
	ScoreMax int
}

// DefaultRules returns the fixed production pipeline configuration.
func DefaultRules() *Rules {
	return &Rules{
		Transitions: map[Stage][]Stage{
			StageApplied:     {StagePhoneScreen, StageRejected},
			StagePhoneScreen: {StageOnsite, StageRejected},
			StageOnsite:      {StageOffer, StageRejected},
			StageOffer:       {StageHired, StageRejected},
			// hired and rejected are terminal — no outgoing transitions
		},
		RejectReasons: map[string]string{
			"culture_fit":      "Not a culture fit",
			"technical_skills": "Insufficient technical skills",
			"experience":       "Insufficient experience",
			"salary":           "Salary expectations mismatch",
			"position_closed":  "Position closed",
		},
		ScoreMin: 0,
		ScoreMax: 100,
	}
}

// IsTerminal returns true when the stage has no outgoing transitions.
func (r *Rules) IsTerminal(s Stage) bool {
	return len(r.Transitions[s]) == 0
}

// IsAllowed returns true when moving from → to is permitted by the
// stage graph.
func (r *Rules) IsAllowed(from, to Stage) bool {
	for _, s := range r.Transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ValidateTransition decides whether an application currently at from may
// move to to. Checks run in a fixed order: terminal stage first, then the
// stage graph, then the reject reason. Pure and side-effect free; safe to
// call repeatedly.
func (r *Rules) ValidateTransition(from, to Stage, rejectReason string) error {
	if r.IsTerminal(from) {
		return &ValidationError{
			Code: CodeTerminalStage,
			Msg:  fmt.Sprintf("application is in terminal stage %q, no further transitions", from),
		}
	}
	if !r.IsAllowed(from, to) {
		return &ValidationError{
			Code: CodeIllegalTransition,
			Msg:  fmt.Sprintf("transition from %q to %q is not allowed", from, to),
		}
	}
	if to == StageRejected {
		if _, ok := r.RejectReasons[rejectReason]; !ok {
			return &ValidationError{
				Code: CodeInvalidRejectReason,
				Msg:  fmt.Sprintf("reject_reason %q is missing or not an approved reason", rejectReason),
			}
		}
	}
	return nil
}

// ValidateScore checks the candidate score against the configured bounds.
func (r *Rules) ValidateScore(score int) error {
	if score < r.ScoreMin || score > r.ScoreMax {
		return &ValidationError{
			Code: CodeScoreOutOfRange,
			Msg:  fmt.Sprintf("score must be between %d and %d included", r.ScoreMin, r.ScoreMax),
		}
	}
	return nil
}

// IsHired returns true when the stage is hired (sets hired_at and enables
// the days-to-hire metric).
func IsHired(s Stage) bool { return s == StageHired }
