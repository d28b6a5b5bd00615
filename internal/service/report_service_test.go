package service

import (
	"context"
	"strings"
	"testing"

	"ecoreports/internal/domain"
	"ecoreports/internal/events"
	"ecoreports/internal/models"
	"ecoreports/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func basicInput() CreateReportInput {
	return CreateReportInput{
		Description: "Hay basura acumulada en la esquina",
		Latitude:    -17.78,
		Longitude:   -63.16,
	}
}

func TestCreateReportWithoutPhoto(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	citizen := testutil.CreateUser(t, h.db, domain.RoleCitizen)
	authority := testutil.CreateUser(t, h.db, domain.RoleAuthority)

	res, err := h.reports.Create(ctx, citizen.ID, basicInput())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReported, res.Report.Status)
	assert.Equal(t, 10, res.PointsAwarded)
	assert.False(t, res.ImageUploaded)
	assert.Nil(t, res.Report.ResolvedAt)
	assert.NotEmpty(t, res.Report.CellToken)
	h.tasks.Wait()

	// 10 for the report plus the first_report bonus.
	assert.Equal(t, 20, h.balance(t, citizen.ID))
	assert.Equal(t, int64(1), countNotifications(t, h, authority.ID, domain.NotifNewReport))
	assert.Equal(t, int64(1), countNotifications(t, h, citizen.ID, domain.NotifAchievement))

	evs := h.published.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, events.ReportCreated, evs[0].Type)
	assert.Equal(t, res.Report.ID, evs[0].ReportID)
	assert.Contains(t, h.live.broadcasts(), "report_marker")
}

func TestCreateReportWithPhoto(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	citizen := testutil.CreateUser(t, h.db, domain.RoleCitizen)

	in := basicInput()
	in.Image = pngBytes
	res, err := h.reports.Create(ctx, citizen.ID, in)
	require.NoError(t, err)
	assert.Equal(t, 15, res.PointsAwarded)
	assert.True(t, res.ImageUploaded)
	assert.NotEmpty(t, res.Report.ImageURL)
	assert.NotEmpty(t, res.Report.ThumbnailURL)
	h.tasks.Wait()
}

func TestCreateReportDegradesWhenUploadFails(t *testing.T) {
	for _, failOn := range []string{"upload", "thumb"} {
		t.Run(failOn, func(t *testing.T) {
			h := newHarness(t)
			h.images.failOn = failOn
			citizen := testutil.CreateUser(t, h.db, domain.RoleCitizen)

			in := basicInput()
			in.Image = pngBytes
			res, err := h.reports.Create(context.Background(), citizen.ID, in)
			require.NoError(t, err)
			assert.False(t, res.ImageUploaded)
			assert.Equal(t, 10, res.PointsAwarded)
			assert.Empty(t, res.Report.ImageURL)
			h.tasks.Wait()
			if failOn == "thumb" {
				assert.Len(t, h.images.destroyed, 1)
			}
		})
	}
}

func TestCreateReportValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	citizen := testutil.CreateUser(t, h.db, domain.RoleCitizen)

	cases := map[string]func(*CreateReportInput){
		"short description": func(in *CreateReportInput) { in.Description = "  basura  " },
		"long description":  func(in *CreateReportInput) { in.Description = strings.Repeat("a", 501) },
		"latitude":          func(in *CreateReportInput) { in.Latitude = 91 },
		"longitude":         func(in *CreateReportInput) { in.Longitude = -181 },
		"not an image":      func(in *CreateReportInput) { in.Image = []byte("hola, no soy una imagen") },
		"too big":           func(in *CreateReportInput) { in.Image = append(pngBytes, make([]byte, 2<<20)...) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := basicInput()
			mutate(&in)
			_, err := h.reports.Create(ctx, citizen.ID, in)
			assert.True(t, IsKind(err, KindValidation), "got %v", err)
		})
	}

	var reports int64
	require.NoError(t, h.db.Model(&models.Report{}).Count(&reports).Error)
	assert.Zero(t, reports)
	assert.Zero(t, h.balance(t, citizen.ID))
}

func TestCreateReportInactiveUser(t *testing.T) {
	h := newHarness(t)
	citizen := testutil.CreateUser(t, h.db, domain.RoleCitizen)
	testutil.Deactivate(t, h.db, citizen)

	_, err := h.reports.Create(context.Background(), citizen.ID, basicInput())
	assert.True(t, IsKind(err, KindInactiveUser))
}

func TestFullResolutionCycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	citizen := testutil.CreateUser(t, h.db, domain.RoleCitizen)
	authority := testutil.CreateUser(t, h.db, domain.RoleAuthority)

	created, err := h.reports.Create(ctx, citizen.ID, basicInput())
	require.NoError(t, err)
	h.tasks.Wait()
	before := h.balance(t, citizen.ID)

	actor := Actor{ID: authority.ID, Role: authority.Role}
	updated, err := h.reports.Transition(ctx, actor, created.Report.ID, "Resolved", "")
	require.NoError(t, err)
	h.tasks.Wait()

	assert.Equal(t, domain.StatusResolved, updated.Status)
	require.NotNil(t, updated.ResolvedAt)
	require.NotNil(t, updated.AssignedAuthorityID)
	assert.Equal(t, authority.ID, *updated.AssignedAuthorityID)
	assert.Equal(t, before+25, h.balance(t, citizen.ID))
	assert.Equal(t, int64(1), countNotifications(t, h, citizen.ID, domain.NotifReportResolved))

	// Resubmitting the same transition is rejected and pays nothing.
	_, err = h.reports.Transition(ctx, actor, created.Report.ID, "Resolved", "")
	assert.True(t, IsKind(err, KindInvalidTransition))
	h.tasks.Wait()
	assert.Equal(t, before+25, h.balance(t, citizen.ID))
	assert.Equal(t, int64(1), countNotifications(t, h, citizen.ID, domain.NotifReportResolved))

	var last events.Event
	for _, e := range h.published.Events() {
		last = e
	}
	assert.Equal(t, events.ReportStatusChanged, last.Type)
	assert.Equal(t, "Resolved", last.Status)
}

func TestFifthResolutionUnlocksProblemSolver(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	citizen := testutil.CreateUser(t, h.db, domain.RoleCitizen)
	authority := testutil.CreateUser(t, h.db, domain.RoleAuthority)
	for i := 0; i < 4; i++ {
		testutil.CreateReport(t, h.db, citizen.ID, domain.StatusResolved)
	}
	// Earlier one-shot badges are already unlocked so only the resolution matters.
	_, err := h.achievements.Evaluate(ctx, citizen.ID)
	require.NoError(t, err)
	r := testutil.CreateReport(t, h.db, citizen.ID, domain.StatusInProgress)
	_, err = h.achievements.Evaluate(ctx, citizen.ID)
	require.NoError(t, err)
	h.tasks.Wait()
	before := h.balance(t, citizen.ID)
	achBefore := countNotifications(t, h, citizen.ID, domain.NotifAchievement)

	_, err = h.reports.Transition(ctx, Actor{ID: authority.ID, Role: authority.Role}, r.ID, "Resolved", "")
	require.NoError(t, err)
	h.tasks.Wait()

	assert.Equal(t, before+25+25, h.balance(t, citizen.ID))
	assert.Equal(t, achBefore+1, countNotifications(t, h, citizen.ID, domain.NotifAchievement))
	assert.Equal(t, int64(1), countUnlocks(t, h, citizen.ID, domain.AchievementProblemSolver))
}

// holdQueue parks every worker until the returned func is called, so queued
// side effects run only after the caller's writes have all committed.
func holdQueue(t *testing.T, h *harness, workers int) func() {
	t.Helper()
	release := make(chan struct{})
	started := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		h.tasks.Go("hold", func(ctx context.Context) error {
			started <- struct{}{}
			<-release
			return nil
		})
	}
	for i := 0; i < workers; i++ {
		<-started
	}
	return func() { close(release) }
}

func TestBackToBackResolutionsKeepProblemSolverMilestone(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	citizen := testutil.CreateUser(t, h.db, domain.RoleCitizen)
	authority := testutil.CreateUser(t, h.db, domain.RoleAuthority)
	actor := Actor{ID: authority.ID, Role: authority.Role}
	for i := 0; i < 4; i++ {
		testutil.CreateReport(t, h.db, citizen.ID, domain.StatusResolved)
	}
	a := testutil.CreateReport(t, h.db, citizen.ID, domain.StatusInProgress)
	b := testutil.CreateReport(t, h.db, citizen.ID, domain.StatusInProgress)

	release := holdQueue(t, h, 2)
	_, err := h.reports.Transition(ctx, actor, a.ID, "Resolved", "")
	require.NoError(t, err)
	_, err = h.reports.Transition(ctx, actor, b.ID, "Resolved", "")
	require.NoError(t, err)
	release()
	h.tasks.Wait()

	assert.Equal(t, int64(1), countUnlocks(t, h, citizen.ID, domain.AchievementProblemSolver))
	var milestone int
	require.NoError(t, h.db.Model(&models.UserAchievement{}).
		Joins("JOIN achievements ON achievements.id = user_achievements.achievement_id").
		Where("user_achievements.user_id = ? AND achievements.achievement_key = ?", citizen.ID, domain.AchievementProblemSolver).
		Pluck("milestone", &milestone).Error)
	assert.Equal(t, 5, milestone)

	mismatches, err := h.points.Reconcile(ctx)
	require.NoError(t, err)
	assert.Empty(t, mismatches)
}

func TestRapidReportsKeepActiveReporter(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	citizen := testutil.CreateUser(t, h.db, domain.RoleCitizen)
	for i := 0; i < 4; i++ {
		testutil.CreateReport(t, h.db, citizen.ID, domain.StatusReported)
	}

	release := holdQueue(t, h, 2)
	for i := 0; i < 2; i++ {
		_, err := h.reports.Create(ctx, citizen.ID, basicInput())
		require.NoError(t, err)
	}
	release()
	h.tasks.Wait()

	assert.Equal(t, int64(1), countUnlocks(t, h, citizen.ID, domain.AchievementActiveReporter))
	assert.Equal(t, int64(1), countUnlocks(t, h, citizen.ID, domain.AchievementFirstReport))
}

func TestTerminalStatesAreImmutable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	citizen := testutil.CreateUser(t, h.db, domain.RoleCitizen)
	admin := testutil.CreateUser(t, h.db, domain.RoleAdmin)
	actor := Actor{ID: admin.ID, Role: admin.Role}

	for _, terminal := range []string{"Resolved", "Rejected"} {
		r := testutil.CreateReport(t, h.db, citizen.ID, domain.StatusReported)
		done, err := h.reports.Transition(ctx, actor, r.ID, terminal, "")
		require.NoError(t, err)
		stamp := *done.ResolvedAt

		for _, next := range []string{"Reported", "InProgress", "Resolved", "Rejected"} {
			_, err := h.reports.Transition(ctx, actor, r.ID, next, "")
			assert.True(t, IsKind(err, KindInvalidTransition), "%s -> %s: %v", terminal, next, err)
		}
		after, err := h.reports.Get(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ReportStatus(terminal), after.Status)
		require.NotNil(t, after.ResolvedAt)
		assert.True(t, stamp.Equal(*after.ResolvedAt))
	}
	h.tasks.Wait()
}

func TestTransitionRules(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	citizen := testutil.CreateUser(t, h.db, domain.RoleCitizen)
	authority := testutil.CreateUser(t, h.db, domain.RoleAuthority)
	actor := Actor{ID: authority.ID, Role: authority.Role}
	r := testutil.CreateReport(t, h.db, citizen.ID, domain.StatusReported)

	_, err := h.reports.Transition(ctx, Actor{ID: citizen.ID, Role: citizen.Role}, r.ID, "InProgress", "")
	assert.True(t, IsKind(err, KindForbidden))

	_, err = h.reports.Transition(ctx, actor, r.ID, "resolved", "")
	assert.True(t, IsKind(err, KindValidation))

	_, err = h.reports.Transition(ctx, actor, 424242, "InProgress", "")
	assert.True(t, IsKind(err, KindNotFound))

	_, err = h.reports.Transition(ctx, actor, r.ID, "Reported", "")
	assert.True(t, IsKind(err, KindInvalidTransition))

	inProgress, err := h.reports.Transition(ctx, actor, r.ID, "InProgress", "")
	require.NoError(t, err)
	assert.Nil(t, inProgress.ResolvedAt)

	_, err = h.reports.Transition(ctx, actor, r.ID, "InProgress", "")
	assert.True(t, IsKind(err, KindInvalidTransition))
	h.tasks.Wait()
	assert.Equal(t, int64(1), countNotifications(t, h, citizen.ID, domain.NotifStatusUpdate))
	assert.Zero(t, h.balance(t, citizen.ID))
}

func TestRejectionCarriesTrimmedComment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	citizen := testutil.CreateUser(t, h.db, domain.RoleCitizen)
	authority := testutil.CreateUser(t, h.db, domain.RoleAuthority)
	r := testutil.CreateReport(t, h.db, citizen.ID, domain.StatusReported)

	long := "  " + strings.Repeat("x", 600) + "  "
	rejected, err := h.reports.Transition(ctx, Actor{ID: authority.ID, Role: authority.Role}, r.ID, "Rejected", long)
	require.NoError(t, err)
	h.tasks.Wait()

	assert.Len(t, rejected.AuthorityComment, domain.CommentMaxLen)
	assert.NotNil(t, rejected.ResolvedAt)
	assert.Zero(t, h.balance(t, citizen.ID))

	page, err := h.notifications.List(ctx, citizen.ID, 1, 10, false)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, domain.NotifReportRejected, page.Items[0].Type)
	assert.Contains(t, page.Items[0].Body, "Motivo: xxx")
}

func TestDeleteReportRules(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, h.db, domain.RoleCitizen)
	other := testutil.CreateUser(t, h.db, domain.RoleCitizen)
	admin := testutil.CreateUser(t, h.db, domain.RoleAdmin)

	pending := testutil.CreateReport(t, h.db, owner.ID, domain.StatusReported)
	working := testutil.CreateReport(t, h.db, owner.ID, domain.StatusInProgress)

	err := h.reports.Delete(ctx, Actor{ID: other.ID, Role: other.Role}, pending.ID)
	assert.True(t, IsKind(err, KindNotFound))

	err = h.reports.Delete(ctx, Actor{ID: owner.ID, Role: owner.Role}, working.ID)
	assert.True(t, IsKind(err, KindForbidden))

	require.NoError(t, h.reports.Delete(ctx, Actor{ID: owner.ID, Role: owner.Role}, pending.ID))
	_, err = h.reports.Get(ctx, pending.ID)
	assert.True(t, IsKind(err, KindNotFound))

	require.NoError(t, h.reports.Delete(ctx, Actor{ID: admin.ID, Role: admin.Role}, working.ID))
	h.tasks.Wait()
}

func TestListNearbyAndMap(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, h.db, domain.RoleCitizen)
	other := testutil.CreateUser(t, h.db, domain.RoleCitizen)

	_, err := h.reports.Create(ctx, owner.ID, basicInput())
	require.NoError(t, err)
	far := basicInput()
	far.Latitude, far.Longitude = -16.4897, -68.1193
	_, err = h.reports.Create(ctx, other.ID, far)
	require.NoError(t, err)
	h.tasks.Wait()

	all, err := h.reports.List(ctx, Actor{ID: owner.ID}, ListReportsInput{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), all.Total)

	mine, err := h.reports.List(ctx, Actor{ID: owner.ID}, ListReportsInput{Mine: true})
	require.NoError(t, err)
	require.Len(t, mine.Items, 1)
	assert.Equal(t, owner.ID, mine.Items[0].UserID)

	_, err = h.reports.List(ctx, Actor{ID: owner.ID}, ListReportsInput{Status: "abierto"})
	assert.True(t, IsKind(err, KindValidation))

	near, err := h.reports.Nearby(ctx, -17.781, -63.161, 1, 10)
	require.NoError(t, err)
	require.Len(t, near, 1)
	assert.Less(t, near[0].DistanceKm, 1.0)
	assert.Equal(t, "muy cerca", near[0].Proximity)

	cells, err := h.reports.MapCells(ctx, 6)
	require.NoError(t, err)
	assert.Len(t, cells, 2)

	_, err = h.reports.MapCells(ctx, 20)
	assert.True(t, IsKind(err, KindValidation))
}
