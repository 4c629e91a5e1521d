package pipeline

import "time"

// TimeInStage returns how long the application has sat in its current
// stage. Always defined: last_transition_at is set at creation time.
func TimeInStage(a *Application, now time.Time) time.Duration {
	return now.Sub(a.LastTransitionAt)
}

// DaysToHire returns the whole number of days between the application
// date and the hired transition. The second return value is false for any
// application that is not hired — there is no placeholder zero.
func DaysToHire(a *Application) (int, bool) {
	if a.Status != StageHired || a.HiredAt == nil {
		return 0, false
	}
	return int(a.HiredAt.Sub(a.AppliedAt) / (24 * time.Hour)), true
}
