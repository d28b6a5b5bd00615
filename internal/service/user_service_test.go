package service

import (
	"context"
	"strconv"
	"testing"

	"ecoreports/internal/domain"
	"ecoreports/internal/models"
	"ecoreports/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfile(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := testutil.CreateUser(t, h.db, domain.RoleCitizen)
	testutil.CreateReport(t, h.db, u.ID, domain.StatusResolved)
	_, err := h.achievements.Evaluate(ctx, u.ID)
	require.NoError(t, err)

	p, err := h.userSvc.Profile(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Level.Number)
	require.NotNil(t, p.NextLevel)
	assert.Equal(t, p.NextLevel.MinPoints-10, p.PointsToNext)
	assert.Equal(t, UserStats{Reports: 1, Resolved: 1, Points: 10}, p.Stats)
	assert.Equal(t, 1, p.Achievements)
	assert.Equal(t, 1, p.Rank)

	_, err = h.userSvc.Profile(ctx, 4242)
	assert.True(t, IsKind(err, KindNotFound))
}

func TestAdminCannotLockThemselvesOut(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	admin := testutil.CreateUser(t, h.db, domain.RoleAdmin)
	u := testutil.CreateUser(t, h.db, domain.RoleCitizen)

	assert.True(t, IsKind(h.userSvc.SetActive(ctx, admin.ID, admin.ID, false), KindValidation))
	assert.True(t, IsKind(h.userSvc.SetRole(ctx, admin.ID, admin.ID, "citizen"), KindValidation))
	assert.True(t, IsKind(h.userSvc.SetRole(ctx, admin.ID, u.ID, "mayor"), KindValidation))
	assert.True(t, IsKind(h.userSvc.SetActive(ctx, admin.ID, 4242, false), KindNotFound))

	require.NoError(t, h.userSvc.SetRole(ctx, admin.ID, u.ID, "authority"))
	require.NoError(t, h.userSvc.SetActive(ctx, admin.ID, u.ID, false))

	var stored models.User
	require.NoError(t, h.db.First(&stored, u.ID).Error)
	assert.Equal(t, domain.RoleAuthority, stored.Role)
	assert.False(t, stored.Active)

	var audits int64
	require.NoError(t, h.db.Model(&models.AuditLog{}).Where("resource = ? AND resource_id = ?", "user", strconv.FormatUint(uint64(u.ID), 10)).Count(&audits).Error)
	assert.Equal(t, int64(2), audits)
}

func TestGrantPointsNeedsReason(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	admin := testutil.CreateUser(t, h.db, domain.RoleAdmin)
	u := testutil.CreateUser(t, h.db, domain.RoleCitizen)

	_, err := h.userSvc.GrantPoints(ctx, admin.ID, u.ID, 5, "  ")
	assert.True(t, IsKind(err, KindValidation))

	res, err := h.userSvc.GrantPoints(ctx, admin.ID, u.ID, 5, "limpieza comunitaria")
	require.NoError(t, err)
	assert.Equal(t, 5, res.Balance)
	assert.Equal(t, domain.ActionManualGrant, res.Entry.Action)
}

func TestBroadcastUrgentDefaultsToStaff(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	admin := testutil.CreateUser(t, h.db, domain.RoleAdmin)
	authority := testutil.CreateUser(t, h.db, domain.RoleAuthority)
	citizen := testutil.CreateUser(t, h.db, domain.RoleCitizen)

	n, err := h.userSvc.BroadcastUrgent(ctx, admin.ID, nil, "Incendio", "Vertedero en llamas")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, int64(1), countNotifications(t, h, authority.ID, domain.NotifUrgent))
	assert.Zero(t, countNotifications(t, h, citizen.ID, domain.NotifUrgent))

	n, err = h.userSvc.BroadcastUrgent(ctx, admin.ID, []string{"citizen"}, "Aviso", "Recolección suspendida")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = h.userSvc.BroadcastUrgent(ctx, admin.ID, nil, "", "x")
	assert.True(t, IsKind(err, KindValidation))
}
