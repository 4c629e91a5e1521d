package pipeline_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"recruitment/pipeline-service/internal/pipeline"
	"recruitment/pipeline-service/internal/store"
	"recruitment/pipeline-service/pkg/logging"
)

func newTestService(t *testing.T) (*pipeline.Service, *store.Memory) {
	t.Helper()
	rules := pipeline.DefaultRules()
	repo := store.NewMemory(rules)
	return pipeline.NewService(repo, nil, rules, logging.NewNop()), repo
}

func createFixtures(t *testing.T, svc *pipeline.Service) (jobID, candidateID uuid.UUID) {
	t.Helper()
	ctx := context.Background()

	job, err := svc.CreateJob(ctx, &pipeline.Job{Title: "Backend Engineer", Department: "Platform", Location: "Berlin"})
	require.NoError(t, err)
	cand, err := svc.CreateCandidate(ctx, &pipeline.Candidate{FullName: "Ada Lovelace", Email: "ada@example.com"})
	require.NoError(t, err)
	return job.ID, cand.ID
}

// ── CreateApplication ──────────────────────────────────────────────────────

func TestCreateApplication_StartsAtApplied(t *testing.T) {
	svc, _ := newTestService(t)
	jobID, candID := createFixtures(t, svc)

	app, err := svc.CreateApplication(context.Background(), jobID, candID, 80)
	require.NoError(t, err)

	assert.Equal(t, pipeline.StageApplied, app.Status)
	assert.Equal(t, 80, app.Score)
	assert.Equal(t, app.AppliedAt, app.LastTransitionAt)
	assert.Nil(t, app.HiredAt)
}

func TestCreateApplication_ScoreBounds(t *testing.T) {
	svc, _ := newTestService(t)
	jobID, candID := createFixtures(t, svc)

	for _, score := range []int{-1, 101} {
		_, err := svc.CreateApplication(context.Background(), jobID, candID, score)
		var verr *pipeline.ValidationError
		require.ErrorAs(t, err, &verr, "score %d", score)
		assert.Equal(t, pipeline.CodeScoreOutOfRange, verr.Code)
	}
}

func TestCreateApplication_UnknownJobOrCandidate(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateApplication(context.Background(), uuid.New(), uuid.New(), 50)
	var verr *pipeline.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, pipeline.CodeUnknownReference, verr.Code)
}

func TestCreateApplication_DuplicateActive(t *testing.T) {
	svc, _ := newTestService(t)
	jobID, candID := createFixtures(t, svc)
	ctx := context.Background()

	_, err := svc.CreateApplication(ctx, jobID, candID, 70)
	require.NoError(t, err)

	_, err = svc.CreateApplication(ctx, jobID, candID, 75)
	var verr *pipeline.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, pipeline.CodeDuplicateApplication, verr.Code)
}

// Once the first application reaches a terminal stage, the slot frees up.
func TestCreateApplication_TerminalFreesSlot(t *testing.T) {
	svc, _ := newTestService(t)
	jobID, candID := createFixtures(t, svc)
	ctx := context.Background()

	first, err := svc.CreateApplication(ctx, jobID, candID, 70)
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, first.ID, "rejected", "recruiter-1", "", "experience")
	require.NoError(t, err)

	_, err = svc.CreateApplication(ctx, jobID, candID, 85)
	assert.NoError(t, err, "terminal application must not block a new one")
}

// ── UpdateStatus ───────────────────────────────────────────────────────────

func TestUpdateStatus_AppendsExactlyOneHistoryAndAudit(t *testing.T) {
	svc, repo := newTestService(t)
	jobID, candID := createFixtures(t, svc)
	ctx := context.Background()

	app, err := svc.CreateApplication(ctx, jobID, candID, 80)
	require.NoError(t, err)

	updated, err := svc.UpdateStatus(ctx, app.ID, "phone_screen", "recruiter-1", "strong resume", "")
	require.NoError(t, err)
	assert.Equal(t, pipeline.StagePhoneScreen, updated.Status)

	history, err := repo.ListHistory(ctx, app.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, pipeline.StageApplied, history[0].FromStage)
	assert.Equal(t, pipeline.StagePhoneScreen, history[0].ToStage)
	assert.Equal(t, "strong resume", history[0].Note)

	audit, err := repo.ListAudit(ctx, pipeline.AuditFilter{TargetID: app.ID.String()})
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assert.Equal(t, "recruiter-1", audit[0].Actor)
	assert.Equal(t, pipeline.VerbStatusChanged, audit[0].Verb)
	assert.JSONEq(t,
		`{"old_status":"applied","new_status":"phone_screen","note":"strong resume","reject_reason":""}`,
		string(audit[0].Data))
}

func TestUpdateStatus_DeniedWritesNothing(t *testing.T) {
	svc, repo := newTestService(t)
	jobID, candID := createFixtures(t, svc)
	ctx := context.Background()

	app, err := svc.CreateApplication(ctx, jobID, candID, 80)
	require.NoError(t, err)

	// applied → offer skips two stages
	_, err = svc.UpdateStatus(ctx, app.ID, "offer", "recruiter-1", "", "")
	var verr *pipeline.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, pipeline.CodeIllegalTransition, verr.Code)

	history, _ := repo.ListHistory(ctx, app.ID)
	audit, _ := repo.ListAudit(ctx, pipeline.AuditFilter{TargetID: app.ID.String()})
	assert.Empty(t, history, "denied transition must not append history")
	assert.Empty(t, audit, "denied transition must not append audit")

	current, err := repo.GetApplication(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StageApplied, current.Status)
}

func TestUpdateStatus_UnknownStage(t *testing.T) {
	svc, _ := newTestService(t)
	jobID, candID := createFixtures(t, svc)
	ctx := context.Background()

	app, err := svc.CreateApplication(ctx, jobID, candID, 80)
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, app.ID, "interviewing", "recruiter-1", "", "")
	var verr *pipeline.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, pipeline.CodeInvalidStage, verr.Code)
}

func TestUpdateStatus_NotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.UpdateStatus(context.Background(), uuid.New(), "phone_screen", "recruiter-1", "", "")
	assert.ErrorIs(t, err, pipeline.ErrNotFound)
}

func TestUpdateStatus_RejectStampsReason(t *testing.T) {
	svc, _ := newTestService(t)
	jobID, candID := createFixtures(t, svc)
	ctx := context.Background()

	app, err := svc.CreateApplication(ctx, jobID, candID, 80)
	require.NoError(t, err)

	updated, err := svc.UpdateStatus(ctx, app.ID, "rejected", "recruiter-1", "", "technical_skills")
	require.NoError(t, err)
	require.NotNil(t, updated.RejectReason)
	assert.Equal(t, "technical_skills", *updated.RejectReason)
}

func TestUpdateStatus_TerminalLockout(t *testing.T) {
	svc, _ := newTestService(t)
	jobID, candID := createFixtures(t, svc)
	ctx := context.Background()

	app, err := svc.CreateApplication(ctx, jobID, candID, 80)
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, app.ID, "rejected", "recruiter-1", "", "salary")
	require.NoError(t, err)

	for _, target := range []string{"applied", "phone_screen", "onsite", "offer", "hired", "rejected"} {
		_, err := svc.UpdateStatus(ctx, app.ID, target, "recruiter-1", "", "salary")
		var verr *pipeline.ValidationError
		require.ErrorAs(t, err, &verr, "target %s", target)
		assert.Equal(t, pipeline.CodeTerminalStage, verr.Code)
	}
}

func TestUpdateStatus_HiredStampsHiredAtAndMetric(t *testing.T) {
	svc, _ := newTestService(t)
	jobID, candID := createFixtures(t, svc)
	ctx := context.Background()

	app, err := svc.CreateApplication(ctx, jobID, candID, 90)
	require.NoError(t, err)

	for _, stage := range []string{"phone_screen", "onsite", "offer", "hired"} {
		_, err := svc.UpdateStatus(ctx, app.ID, stage, "recruiter-1", "", "")
		require.NoError(t, err, "stage %s", stage)
	}

	detail, err := svc.GetApplication(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StageHired, detail.Status)
	require.NotNil(t, detail.HiredAt)
	require.NotNil(t, detail.DaysToHire, "days_to_hire must be present when hired")
	assert.Equal(t, 0, *detail.DaysToHire)
	assert.Len(t, detail.StageHistory, 4)
	assert.GreaterOrEqual(t, detail.TimeInStageSeconds, 0.0)
}

func TestGetApplication_MetricsAbsentBeforeHire(t *testing.T) {
	svc, _ := newTestService(t)
	jobID, candID := createFixtures(t, svc)
	ctx := context.Background()

	app, err := svc.CreateApplication(ctx, jobID, candID, 80)
	require.NoError(t, err)

	detail, err := svc.GetApplication(ctx, app.ID)
	require.NoError(t, err)
	assert.Nil(t, detail.DaysToHire)
	assert.Empty(t, detail.StageHistory)
}

// ── Concurrency properties ─────────────────────────────────────────────────

// Concurrent transitions on one application are totally ordered: exactly
// one request commits from any observed stage; the rest are denied
// against the advanced stage or conflict.
func TestUpdateStatus_ConcurrentSingleWinner(t *testing.T) {
	svc, repo := newTestService(t)
	jobID, candID := createFixtures(t, svc)
	ctx := context.Background()

	app, err := svc.CreateApplication(ctx, jobID, candID, 80)
	require.NoError(t, err)

	const workers = 16
	var wins, denials, conflicts atomic.Int64

	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			_, err := svc.UpdateStatus(ctx, app.ID, "phone_screen", "recruiter-1", "", "")
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, pipeline.ErrConflict):
				conflicts.Add(1)
			default:
				var verr *pipeline.ValidationError
				if !errors.As(err, &verr) {
					return err
				}
				denials.Add(1)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int64(1), wins.Load(), "exactly one transition must win")
	assert.Equal(t, int64(workers), wins.Load()+denials.Load()+conflicts.Load())

	history, err := repo.ListHistory(ctx, app.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1, "losers must not append history")

	current, err := repo.GetApplication(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StagePhoneScreen, current.Status)
}

// A transition whose decision raced a committed writer loses with
// ErrConflict and writes nothing. The repository barrier parks the
// first writer between its decision and its commit so the second can
// overtake it deterministically.
func TestUpdateStatus_StaleWriterConflicts(t *testing.T) {
	svc, repo := newTestService(t)
	jobID, candID := createFixtures(t, svc)
	ctx := context.Background()

	app, err := svc.CreateApplication(ctx, jobID, candID, 80)
	require.NoError(t, err)

	entered := make(chan struct{})
	proceed := make(chan struct{})
	var first atomic.Bool
	repo.SetBarrier(func() {
		if first.CompareAndSwap(false, true) {
			close(entered)
			<-proceed
		}
	})

	loser := make(chan error, 1)
	go func() {
		_, err := svc.UpdateStatus(ctx, app.ID, "phone_screen", "recruiter-1", "", "")
		loser <- err
	}()

	<-entered
	_, err = svc.UpdateStatus(ctx, app.ID, "phone_screen", "recruiter-2", "", "")
	require.NoError(t, err, "second writer must commit while the first is parked")
	close(proceed)

	assert.ErrorIs(t, <-loser, pipeline.ErrConflict)

	history, err := repo.ListHistory(ctx, app.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1, "the conflicted writer must not append history")

	current, err := repo.GetApplication(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StagePhoneScreen, current.Status)
}

// Concurrent creations for the same (candidate, job) pair: exactly one
// application survives the uniqueness guard.
func TestCreateApplication_ConcurrentSingleWinner(t *testing.T) {
	svc, _ := newTestService(t)
	jobID, candID := createFixtures(t, svc)
	ctx := context.Background()

	const workers = 16
	var wins, duplicates atomic.Int64

	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			_, err := svc.CreateApplication(ctx, jobID, candID, 50)
			if err == nil {
				wins.Add(1)
				return nil
			}
			var verr *pipeline.ValidationError
			if errors.As(err, &verr) && verr.Code == pipeline.CodeDuplicateApplication {
				duplicates.Add(1)
				return nil
			}
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int64(1), wins.Load(), "exactly one creation must succeed")
	assert.Equal(t, int64(workers-1), duplicates.Load())
}
