package calendar

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hugh/roombook/internal/database/models"
	"github.com/hugh/roombook/internal/testutil"
	"github.com/hugh/roombook/pkg/config"
	"github.com/hugh/roombook/pkg/crypto"
	"github.com/hugh/roombook/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"gorm.io/gorm"
)

type fakeEvents struct {
	inserted []*gcal.Event
	updated  []string
	deleted  []string
	err      error
}

func (f *fakeEvents) Insert(_ context.Context, _ string, ev *gcal.Event) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.inserted = append(f.inserted, ev)
	return "evt-1", nil
}

func (f *fakeEvents) Update(_ context.Context, _, eventID string, _ *gcal.Event) error {
	f.updated = append(f.updated, eventID)
	return f.err
}

func (f *fakeEvents) Delete(_ context.Context, _, eventID string) error {
	f.deleted = append(f.deleted, eventID)
	return f.err
}

type syncFixture struct {
	db     *gorm.DB
	creds  *Credentials
	syncer *Syncer
	events *fakeEvents
	user   *models.User
	room   *models.Room
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	enc, err := crypto.NewEncryptor(key)
	require.NoError(t, err)

	events := &fakeEvents{}
	creds := NewCredentials(db, enc, nil)
	logger := util.NewLogger("test")
	syncer := NewSyncer(db, creds, OAuthConfig(config.CalendarConfig{GoogleClientID: "id"}), logger,
		WithEventsFactory(func(context.Context, oauth2.TokenSource) (Events, error) { return events, nil }),
	)

	return &syncFixture{
		db:     db,
		creds:  creds,
		syncer: syncer,
		events: events,
		user:   testutil.CreateTestUser(t, db, models.RoleUser),
		room:   testutil.CreateTestRoom(t, db, "Room 101"),
	}
}

func (f *syncFixture) link(t *testing.T) {
	t.Helper()
	_, err := f.creds.Link(testutil.TestContext(t), testutil.PrincipalFor(f.user), LinkInput{
		AccountEmail: "Me@Example.com",
		Token:        oauth2.Token{AccessToken: "access", RefreshToken: "refresh"},
	})
	require.NoError(t, err)
}

func TestCredentials_LinkAndUnlink(t *testing.T) {
	f := newSyncFixture(t)
	ctx := testutil.TestContext(t)
	p := testutil.PrincipalFor(f.user)

	_, err := f.creds.Get(ctx, p)
	assert.ErrorIs(t, err, ErrNotLinked)

	_, err = f.creds.Link(ctx, p, LinkInput{})
	assert.ErrorIs(t, err, ErrInvalidToken)

	f.link(t)
	cred, err := f.creds.Get(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, "primary", cred.CalendarID)
	assert.Equal(t, "me@example.com", cred.AccountEmail)
	assert.NotContains(t, string(cred.EncryptedToken), "access")

	// linking again replaces the row
	f.link(t)
	var count int64
	f.db.Model(&models.CalendarCredential{}).Count(&count)
	assert.Equal(t, int64(1), count)

	_, tok, err := f.creds.token(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, "refresh", tok.RefreshToken)

	require.NoError(t, f.creds.Unlink(ctx, p))
	assert.ErrorIs(t, f.creds.Unlink(ctx, p), ErrNotLinked)
}

func TestCredentials_ViewerCannotLink(t *testing.T) {
	f := newSyncFixture(t)
	viewer := testutil.CreateTestUser(t, f.db, models.RoleViewer)
	_, err := f.creds.Link(testutil.TestContext(t), testutil.PrincipalFor(viewer), LinkInput{
		Token: oauth2.Token{AccessToken: "a"},
	})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestSyncBooking_SkipsWithoutCredential(t *testing.T) {
	f := newSyncFixture(t)
	start := time.Date(2030, 1, 7, 9, 0, 0, 0, time.UTC)
	b := testutil.CreateTestBooking(t, f.db, f.room, f.user, start, start.Add(time.Hour))

	require.NoError(t, f.syncer.SyncBooking(testutil.TestContext(t), b.ID))
	assert.Empty(t, f.events.inserted)
}

func TestSyncBooking_InsertUpdateDelete(t *testing.T) {
	f := newSyncFixture(t)
	f.link(t)
	ctx := testutil.TestContext(t)
	start := time.Date(2030, 1, 7, 9, 0, 0, 0, time.UTC)
	b := testutil.CreateTestBooking(t, f.db, f.room, f.user, start, start.Add(time.Hour))
	require.NoError(t, f.db.Model(b).Updates(map[string]any{"repeat_type": models.RepeatWeekly, "repeat_count": 2, "repeat_interval": 1}).Error)

	require.NoError(t, f.syncer.SyncBooking(ctx, b.ID))
	require.Len(t, f.events.inserted, 1)
	ev := f.events.inserted[0]
	assert.Equal(t, "Test booking", ev.Summary)
	assert.Equal(t, "Room 101, Floor 1", ev.Location)
	require.Len(t, ev.Recurrence, 1)
	assert.Contains(t, ev.Recurrence[0], "FREQ=WEEKLY")

	var stored models.Booking
	require.NoError(t, f.db.First(&stored, "id = ?", b.ID).Error)
	assert.Equal(t, "evt-1", stored.CalendarEventID)

	require.NoError(t, f.syncer.SyncBooking(ctx, b.ID))
	assert.Equal(t, []string{"evt-1"}, f.events.updated)

	require.NoError(t, f.db.Model(&stored).Update("status", models.BookingStatusCancelled).Error)
	require.NoError(t, f.syncer.SyncBooking(ctx, b.ID))
	assert.Equal(t, []string{"evt-1"}, f.events.deleted)

	require.NoError(t, f.db.First(&stored, "id = ?", b.ID).Error)
	assert.Empty(t, stored.CalendarEventID)

	cred, err := f.creds.Get(ctx, testutil.PrincipalFor(f.user))
	require.NoError(t, err)
	assert.NotNil(t, cred.LastSyncAt)
	assert.Empty(t, cred.LastError)
}

func TestSyncBooking_RecordsFailure(t *testing.T) {
	f := newSyncFixture(t)
	f.link(t)
	f.events.err = errors.New("quota exceeded")
	ctx := testutil.TestContext(t)
	start := time.Date(2030, 1, 7, 9, 0, 0, 0, time.UTC)
	b := testutil.CreateTestBooking(t, f.db, f.room, f.user, start, start.Add(time.Hour))

	err := f.syncer.SyncBooking(ctx, b.ID)
	require.Error(t, err)

	cred, err := f.creds.Get(ctx, testutil.PrincipalFor(f.user))
	require.NoError(t, err)
	assert.Equal(t, "quota exceeded", cred.LastError)
}
