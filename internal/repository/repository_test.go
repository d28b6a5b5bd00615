package repository

import (
	"context"
	"testing"
	"time"

	"ecoreports/internal/domain"
	"ecoreports/internal/models"
	"ecoreports/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionOnlyMovesFromExpectedState(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	u := testutil.CreateUser(t, db, domain.RoleCitizen)
	authority := testutil.CreateUser(t, db, domain.RoleAuthority)
	r := testutil.CreateReport(t, db, u.ID, domain.StatusReported)
	repo := NewReportRepository(db)
	now := time.Now()

	moved, err := repo.Transition(ctx, r.ID, domain.StatusReported, domain.StatusResolved,
		TransitionFields{AuthorityID: authority.ID, Comment: "retirado", At: now})
	require.NoError(t, err)
	assert.True(t, moved)

	moved, err = repo.Transition(ctx, r.ID, domain.StatusReported, domain.StatusRejected,
		TransitionFields{AuthorityID: authority.ID, At: now})
	require.NoError(t, err)
	assert.False(t, moved)

	got, err := repo.GetByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusResolved, got.Status)
	assert.Equal(t, "retirado", got.AuthorityComment)
	require.NotNil(t, got.ResolvedAt)
	require.NotNil(t, got.AssignedAuthorityID)
	assert.Equal(t, authority.ID, *got.AssignedAuthorityID)
}

func TestSoftDeletedReportsAreHidden(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	u := testutil.CreateUser(t, db, domain.RoleCitizen)
	r := testutil.CreateReport(t, db, u.ID, domain.StatusReported)
	testutil.CreateReport(t, db, u.ID, domain.StatusResolved)
	repo := NewReportRepository(db)

	require.NoError(t, repo.SoftDelete(ctx, r.ID))
	_, err := repo.GetByID(ctx, r.ID)
	assert.Error(t, err)

	list, total, err := repo.List(ctx, ReportFilter{UserID: &u.ID, Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, list, 1)

	stats, err := repo.StatsForUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Total)
	assert.Equal(t, int64(1), stats.Resolved)

	cells, err := repo.OpenCells(ctx)
	require.NoError(t, err)
	assert.Empty(t, cells)
}

func TestUnlockUniqueIndex(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	u := testutil.CreateUser(t, db, domain.RoleCitizen)
	repo := NewAchievementRepository(db)
	catalog, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, catalog)
	a := catalog[0]

	require.NoError(t, repo.Unlock(ctx, &models.UserAchievement{UserID: u.ID, AchievementID: a.ID, Milestone: 1, UnlockedAt: time.Now()}))
	err = repo.Unlock(ctx, &models.UserAchievement{UserID: u.ID, AchievementID: a.ID, Milestone: 1, UnlockedAt: time.Now()})
	assert.Error(t, err)
	require.NoError(t, repo.Unlock(ctx, &models.UserAchievement{UserID: u.ID, AchievementID: a.ID, Milestone: 2, UnlockedAt: time.Now()}))

	ok, err := repo.IsUnlocked(ctx, u.ID, a.ID, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	held, err := repo.UnlockedMilestones(ctx, u.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, map[int]bool{1: true, 2: true}, held)

	list, err := repo.ListUnlocked(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, a.Key, list[0].Achievement.Key)
}

func TestLedgerSumAndMismatches(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	u := testutil.CreateUser(t, db, domain.RoleCitizen)
	repo := NewPointsRepository(db)

	for _, d := range []int{10, 15} {
		_, err := repo.Increment(ctx, u.ID, d)
		require.NoError(t, err)
		require.NoError(t, repo.InsertEntry(ctx, &models.PointsLedgerEntry{UserID: u.ID, Delta: d, Action: domain.ActionManualGrant}))
	}
	sum, err := repo.LedgerSum(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 25, sum)

	bad, err := repo.Mismatches(ctx)
	require.NoError(t, err)
	assert.Empty(t, bad)

	testutil.Deactivate(t, db, u)
	_, err = repo.Increment(ctx, u.ID, 5)
	assert.ErrorIs(t, err, ErrUserInactive)
}

func TestSettingUpsert(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	repo := NewSettingRepository(db)

	require.NoError(t, repo.Set(ctx, domain.SettingPointsReportBase, "11"))
	require.NoError(t, repo.Set(ctx, domain.SettingPointsReportBase, "12"))

	vals, err := repo.Values(ctx, []string{domain.SettingPointsReportBase, "otra"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{domain.SettingPointsReportBase: "12"}, vals)

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestFCMTokensAndActiveIDs(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	users := NewUserRepository(db)
	a := testutil.CreateUser(t, db, domain.RoleAuthority)
	b := testutil.CreateUser(t, db, domain.RoleAuthority)
	c := testutil.CreateUser(t, db, domain.RoleCitizen)
	require.NoError(t, users.SetFCMToken(ctx, a.ID, "tok-a"))
	testutil.Deactivate(t, db, b)

	tokens, err := users.FCMTokens(ctx, []uint{a.ID, b.ID, c.ID})
	require.NoError(t, err)
	assert.Equal(t, map[uint]string{a.ID: "tok-a"}, tokens)

	ids, err := users.ActiveIDsByRole(ctx, domain.RoleAuthority)
	require.NoError(t, err)
	assert.Equal(t, []uint{a.ID}, ids)
}
