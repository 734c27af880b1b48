package reminders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hugh/roombook/internal/database/models"
	"github.com/hugh/roombook/internal/mail"
	"github.com/hugh/roombook/internal/testutil"
	"github.com/hugh/roombook/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg mail.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

var start = time.Date(2030, 1, 7, 9, 0, 0, 0, time.UTC)

func seed(t *testing.T, db *gorm.DB, lead int, participants ...string) *models.Booking {
	t.Helper()
	user := testutil.CreateTestUser(t, db, models.RoleUser)
	room := testutil.CreateTestRoom(t, db, "Room "+user.ID.String()[:6])
	b := testutil.CreateTestBooking(t, db, room, user, start, start.Add(time.Hour))
	require.NoError(t, db.Model(b).Updates(map[string]any{
		"remind_me":        true,
		"reminder_minutes": lead,
		"participants":     models.StringList(participants),
	}).Error)
	return b
}

func newScanner(db *gorm.DB, sender mail.Sender, now *time.Time) *Scanner {
	return NewScanner(db, sender, util.DiscardLogger(), 24*time.Hour,
		WithClock(func() time.Time { return *now }),
		WithBaseURL("https://rooms.example.com/"),
	)
}

func TestScan_NotYetDue(t *testing.T) {
	db := testutil.SetupTestDB(t)
	seed(t, db, 15)
	sender := &fakeSender{}
	now := start.Add(-16 * time.Minute)

	res, err := newScanner(db, sender, &now).Scan(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Claimed)
	assert.Zero(t, sender.count())
}

func TestScan_SendsOnceAcrossRuns(t *testing.T) {
	db := testutil.SetupTestDB(t)
	b := seed(t, db, 15, "guest@example.com")
	sender := &fakeSender{}
	now := start.Add(-15 * time.Minute)
	scanner := newScanner(db, sender, &now)

	first, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Claimed: 1, Sent: 1}, first)

	now = start.Add(-5 * time.Minute)
	second, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{}, second)

	require.Equal(t, 1, sender.count())
	msg := sender.sent[0]
	assert.Len(t, msg.To, 2)
	assert.Contains(t, msg.To, "guest@example.com")
	assert.Contains(t, msg.Body, "https://rooms.example.com/bookings/"+b.ID.String())

	var stored models.Booking
	require.NoError(t, db.First(&stored, "id = ?", b.ID).Error)
	assert.True(t, stored.ReminderSent)
	require.NotNil(t, stored.ReminderSentAt)

	var notifications int64
	db.Model(&models.Notification{}).Where("type = ?", models.NotificationReminder).Count(&notifications)
	assert.Equal(t, int64(1), notifications)
}

func TestScan_ConcurrentScansSendOnce(t *testing.T) {
	db := testutil.SetupTestDB(t)
	seed(t, db, 30)
	sender := &fakeSender{}
	now := start.Add(-10 * time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := newScanner(db, sender, &now).Scan(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, sender.count())
}

func TestScan_FailedSendStaysClaimed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	seed(t, db, 15)
	seed(t, db, 60)
	sender := &fakeSender{err: errors.New("smtp down")}
	now := start.Add(-10 * time.Minute)
	scanner := newScanner(db, sender, &now)

	res, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Claimed)
	assert.Equal(t, 2, res.Failed)

	sender.err = nil
	res, err = scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Claimed)
	assert.Zero(t, sender.count())
}

func TestScan_FinishedBookingIsMarkedWithoutEmail(t *testing.T) {
	db := testutil.SetupTestDB(t)
	seed(t, db, 15)
	sender := &fakeSender{}
	now := start.Add(2 * time.Hour)

	res, err := newScanner(db, sender, &now).Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Claimed: 1, Stale: 1}, res)
	assert.Zero(t, sender.count())
}

func TestScan_IgnoresCancelledAndOptedOut(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cancelled := seed(t, db, 15)
	require.NoError(t, db.Model(cancelled).Update("status", models.BookingStatusCancelled).Error)
	optedOut := seed(t, db, 15)
	require.NoError(t, db.Model(optedOut).Update("remind_me", false).Error)

	sender := &fakeSender{}
	now := start.Add(-5 * time.Minute)
	res, err := newScanner(db, sender, &now).Scan(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Claimed)
}
