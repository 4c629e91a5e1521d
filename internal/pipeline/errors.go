package pipeline

import "errors"

// Machine-readable reason codes carried by ValidationError. Clients branch
// on the code, not the message.
const (
	CodeTerminalStage        = "terminal_stage"
	CodeIllegalTransition    = "illegal_transition"
	CodeInvalidRejectReason  = "invalid_reject_reason"
	CodeScoreOutOfRange      = "score_out_of_range"
	CodeDuplicateApplication = "duplicate_active_application"
	CodeUnknownReference     = "unknown_job_or_candidate"
	CodeInvalidStage         = "invalid_stage"
	CodeInvalidRequest       = "invalid_request"
)

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrConflict is returned when a concurrent transition on the same
// application won the race. Callers re-fetch the current stage and retry.
var ErrConflict = errors.New("concurrent transition conflict")

// ValidationError carries a user-facing message plus a stable reason code.
// Never retried automatically.
type ValidationError struct {
	Code string
	Msg  string
}

func (e *ValidationError) Error() string { return e.Msg }
