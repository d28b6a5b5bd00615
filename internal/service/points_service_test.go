package service

import (
	"context"
	"sync"
	"testing"

	"ecoreports/internal/domain"
	"ecoreports/internal/models"
	"ecoreports/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAwardAppendsEntryAndBumpsBalance(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := testutil.CreateUser(t, h.db, domain.RoleCitizen)

	res, err := h.points.Award(ctx, u.ID, 10, domain.ActionManualGrant, "bienvenida", nil)
	require.NoError(t, err)
	assert.Equal(t, 10, res.Balance)
	assert.Equal(t, 1, res.Level)
	assert.False(t, res.LeveledUp)
	assert.NotZero(t, res.Entry.ID)

	page, err := h.points.History(ctx, u.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, domain.ActionManualGrant, page.Items[0].Action)
	assert.Equal(t, int64(1), page.Total)
}

func TestAwardRejectsBadInput(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := testutil.CreateUser(t, h.db, domain.RoleCitizen)

	_, err := h.points.Award(ctx, u.ID, 0, domain.ActionManualGrant, "x", nil)
	assert.True(t, IsKind(err, KindValidation))

	_, err = h.points.Award(ctx, u.ID, 5, domain.ActionType("bribe"), "x", nil)
	assert.True(t, IsKind(err, KindValidation))

	_, err = h.points.Award(ctx, 99999, 5, domain.ActionManualGrant, "x", nil)
	assert.True(t, IsKind(err, KindValidation))

	testutil.Deactivate(t, h.db, u)
	_, err = h.points.Award(ctx, u.ID, 5, domain.ActionManualGrant, "x", nil)
	assert.True(t, IsKind(err, KindInactiveUser))

	var entries int64
	require.NoError(t, h.db.Model(&models.PointsLedgerEntry{}).Count(&entries).Error)
	assert.Zero(t, entries)
}

func TestAwardLevelUpNotifies(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := testutil.CreateUser(t, h.db, domain.RoleCitizen)

	res, err := h.points.Award(ctx, u.ID, 120, domain.ActionManualGrant, "ajuste", nil)
	require.NoError(t, err)
	assert.True(t, res.LeveledUp)
	assert.Equal(t, 2, res.Level)
	h.tasks.Wait()

	var stored models.User
	require.NoError(t, h.db.First(&stored, u.ID).Error)
	assert.Equal(t, 2, stored.Level)

	page, err := h.notifications.List(ctx, u.ID, 1, 10, false)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, domain.NotifLevelUp, page.Items[0].Type)
}

func TestConcurrentAwardsKeepLedgerInSync(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := testutil.CreateUser(t, h.db, domain.RoleCitizen)

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.points.Award(ctx, u.ID, 1+i%3, domain.ActionManualGrant, "carrera", nil)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	h.tasks.Wait()

	want := 0
	for i := 0; i < workers; i++ {
		want += 1 + i%3
	}
	assert.Equal(t, want, h.balance(t, u.ID))

	mismatches, err := h.points.Reconcile(ctx)
	require.NoError(t, err)
	assert.Empty(t, mismatches)
}

func TestReconcileFindsDrift(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := testutil.CreateUser(t, h.db, domain.RoleCitizen)
	_, err := h.points.Award(ctx, u.ID, 10, domain.ActionManualGrant, "x", nil)
	require.NoError(t, err)

	require.NoError(t, h.db.Model(&models.User{}).Where("id = ?", u.ID).UpdateColumn("points", 50).Error)

	mismatches, err := h.points.Reconcile(ctx)
	require.NoError(t, err)
	require.Len(t, mismatches, 1)
	assert.Equal(t, u.ID, mismatches[0].UserID)
	assert.Equal(t, 50, mismatches[0].Points)
	assert.Equal(t, 10, mismatches[0].LedgerSum)
}

func TestLeaderboardOrdersCitizensByPoints(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := testutil.CreateUser(t, h.db, domain.RoleCitizen)
	b := testutil.CreateUser(t, h.db, domain.RoleCitizen)
	auth := testutil.CreateUser(t, h.db, domain.RoleAuthority)
	for _, g := range []struct {
		id  uint
		pts int
	}{{a.ID, 30}, {b.ID, 60}, {auth.ID, 500}} {
		_, err := h.points.Award(ctx, g.id, g.pts, domain.ActionManualGrant, "x", nil)
		require.NoError(t, err)
	}

	rows, err := h.points.Leaderboard(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, b.ID, rows[0].UserID)
	assert.Equal(t, 1, rows[0].Rank)
	assert.Equal(t, a.ID, rows[1].UserID)
}

func TestSettingsOverridePolicy(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.settings.Set(ctx, domain.SettingPointsReportBase, "12")
	require.NoError(t, err)
	assert.Equal(t, 12, h.settings.Policy(ctx).ReportBase)
	assert.Equal(t, 15, h.settings.Policy(ctx).ReportWithPhoto)

	_, err = h.settings.Set(ctx, domain.SettingPointsReportBase, "-1")
	assert.True(t, IsKind(err, KindValidation))
	_, err = h.settings.Set(ctx, "points.unknown", "3")
	assert.True(t, IsKind(err, KindNotFound))

	list, err := h.settings.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 7)
	for _, v := range list {
		if v.Key == domain.SettingPointsReportBase {
			assert.True(t, v.Overridden)
			assert.Equal(t, 12, v.Value)
			assert.Equal(t, 10, v.Default)
		}
	}
}
