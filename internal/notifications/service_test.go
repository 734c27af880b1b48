package notifications

import (
	"testing"

	"github.com/google/uuid"
	"github.com/hugh/roombook/internal/database/models"
	"github.com/hugh/roombook/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seed(t *testing.T, db *gorm.DB, userID uuid.UUID, n int) []models.Notification {
	t.Helper()
	out := make([]models.Notification, 0, n)
	for i := 0; i < n; i++ {
		row := models.Notification{UserID: userID, Type: models.NotificationBookingCreated, Title: "Booked"}
		require.NoError(t, db.Create(&row).Error)
		out = append(out, row)
	}
	return out
}

func TestListAndMarkRead(t *testing.T) {
	setup := testutil.NewTestContext(t)
	svc := NewService(setup.DB)
	ctx := testutil.TestContext(t)
	me := testutil.PrincipalFor(setup.User)

	mine := seed(t, setup.DB, setup.User.ID, 3)
	theirs := seed(t, setup.DB, setup.Admin.ID, 1)

	page, err := svc.List(ctx, me, Filter{})
	require.NoError(t, err)
	assert.Len(t, page.Items, 3)
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, int64(3), page.Unread)

	require.NoError(t, svc.MarkRead(ctx, me, mine[0].ID))
	assert.ErrorIs(t, svc.MarkRead(ctx, me, theirs[0].ID), ErrNotFound)
	assert.ErrorIs(t, svc.MarkRead(ctx, me, uuid.New()), ErrNotFound)

	page, err = svc.List(ctx, me, Filter{UnreadOnly: true})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, int64(2), page.Total)
	assert.Equal(t, int64(2), page.Unread)

	n, err := svc.MarkAllRead(ctx, me)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	page, err = svc.List(ctx, me, Filter{})
	require.NoError(t, err)
	assert.Zero(t, page.Unread)
	assert.Equal(t, int64(3), page.Total)

	// the admin's inbox is untouched
	page, err = svc.List(ctx, testutil.PrincipalFor(setup.Admin), Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Unread)
}
