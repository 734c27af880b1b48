package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/hugh/roombook/internal/booking"
	"github.com/hugh/roombook/internal/database/models"
	"github.com/hugh/roombook/internal/mail"
	"github.com/hugh/roombook/internal/reminders"
	"github.com/hugh/roombook/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (r *recordingSender) Send(_ context.Context, msg mail.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

type stubScanner struct {
	calls  int
	result reminders.Result
	err    error
}

func (s *stubScanner) Scan(context.Context) (reminders.Result, error) {
	s.calls++
	return s.result, s.err
}

type stubSyncer struct {
	ids []uuid.UUID
	err error
}

func (s *stubSyncer) SyncBooking(_ context.Context, id uuid.UUID) error {
	s.ids = append(s.ids, id)
	return s.err
}

type fakeClient struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeClient) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestRegisterHandlers(t *testing.T) {
	setup := testutil.NewTestContext(t)
	handler := NewHandler(setup.DB, testLogger(), &recordingSender{}, &stubScanner{})

	mux := asynq.NewServeMux()
	handler.RegisterHandlers(mux)

	for _, typ := range []string{TypeReminderScan, TypeSendEmail, TypeBookingNotify, TypeCalendarSync} {
		_, pattern := mux.Handler(asynq.NewTask(typ, nil))
		assert.Equal(t, typ, pattern)
	}
}

func TestHandleReminderScan(t *testing.T) {
	setup := testutil.NewTestContext(t)
	scanner := &stubScanner{result: reminders.Result{Claimed: 2, Sent: 2}}
	handler := NewHandler(setup.DB, testLogger(), &recordingSender{}, scanner)

	require.NoError(t, handler.HandleReminderScan(context.Background(), NewReminderScanTask()))
	assert.Equal(t, 1, scanner.calls)

	scanner.err = errors.New("db down")
	assert.Error(t, handler.HandleReminderScan(context.Background(), NewReminderScanTask()))
}

func TestHandleSendEmail(t *testing.T) {
	setup := testutil.NewTestContext(t)
	sender := &recordingSender{}
	handler := NewHandler(setup.DB, testLogger(), sender, &stubScanner{})

	task, err := NewEmailTask(mail.Message{To: []string{"a@example.com"}, Subject: "hi", Body: "body"})
	require.NoError(t, err)
	require.NoError(t, handler.HandleSendEmail(context.Background(), task))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "hi", sender.sent[0].Subject)
}

func TestHandleSendEmail_InvalidPayload(t *testing.T) {
	setup := testutil.NewTestContext(t)
	handler := NewHandler(setup.DB, testLogger(), &recordingSender{}, &stubScanner{})

	err := handler.HandleSendEmail(context.Background(), asynq.NewTask(TypeSendEmail, []byte("invalid json")))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal payload")
}

func TestHandleSendEmail_NotConfiguredSkipsRetry(t *testing.T) {
	setup := testutil.NewTestContext(t)
	handler := NewHandler(setup.DB, testLogger(), &recordingSender{err: mail.ErrNotConfigured}, &stubScanner{})

	task, err := NewEmailTask(mail.Message{To: []string{"a@example.com"}, Subject: "hi"})
	require.NoError(t, err)

	err = handler.HandleSendEmail(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleSendEmail_TransientErrorRetries(t *testing.T) {
	setup := testutil.NewTestContext(t)
	handler := NewHandler(setup.DB, testLogger(), &recordingSender{err: errors.New("connection reset")}, &stubScanner{})

	task, err := NewEmailTask(mail.Message{To: []string{"a@example.com"}, Subject: "hi"})
	require.NoError(t, err)

	err = handler.HandleSendEmail(context.Background(), task)
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleBookingNotify(t *testing.T) {
	setup := testutil.NewTestContext(t)
	sender := &recordingSender{}
	handler := NewHandler(setup.DB, testLogger(), sender, &stubScanner{}, WithBaseURL("https://rooms.example.com/"))

	room := testutil.CreateTestRoom(t, setup.DB, "Room 101")
	start := time.Date(2030, 1, 7, 9, 0, 0, 0, time.UTC)
	b := testutil.CreateTestBooking(t, setup.DB, room, setup.User, start, start.Add(time.Hour))
	require.NoError(t, setup.DB.Model(b).Update("participants", models.StringList{"guest@example.com"}).Error)

	task, err := NewBookingNotifyTask(BookingNotifyPayload{BookingID: b.ID, Kind: booking.EventCreated})
	require.NoError(t, err)
	require.NoError(t, handler.HandleBookingNotify(context.Background(), task))

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, []string{setup.User.Email, "guest@example.com"}, msg.To)
	assert.Contains(t, msg.Subject, "Test booking")
	assert.Contains(t, msg.Body, "https://rooms.example.com/bookings/"+b.ID.String())
}

func TestHandleBookingNotify_MissingBooking(t *testing.T) {
	setup := testutil.NewTestContext(t)
	sender := &recordingSender{}
	handler := NewHandler(setup.DB, testLogger(), sender, &stubScanner{})

	task, err := NewBookingNotifyTask(BookingNotifyPayload{BookingID: uuid.New(), Kind: booking.EventCancelled})
	require.NoError(t, err)
	require.NoError(t, handler.HandleBookingNotify(context.Background(), task))
	assert.Empty(t, sender.sent)
}

func TestHandleBookingNotify_UnknownKind(t *testing.T) {
	setup := testutil.NewTestContext(t)
	handler := NewHandler(setup.DB, testLogger(), &recordingSender{}, &stubScanner{})

	data, _ := json.Marshal(BookingNotifyPayload{BookingID: uuid.New(), Kind: "exploded"})
	err := handler.HandleBookingNotify(context.Background(), asynq.NewTask(TypeBookingNotify, data))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleCalendarSync(t *testing.T) {
	setup := testutil.NewTestContext(t)
	syncer := &stubSyncer{}
	handler := NewHandler(setup.DB, testLogger(), &recordingSender{}, &stubScanner{}, WithCalendarSyncer(syncer))

	id := uuid.New()
	task, err := NewCalendarSyncTask(CalendarSyncPayload{BookingID: id})
	require.NoError(t, err)
	require.NoError(t, handler.HandleCalendarSync(context.Background(), task))
	assert.Equal(t, []uuid.UUID{id}, syncer.ids)

	// without a syncer the task is a no-op
	bare := NewHandler(setup.DB, testLogger(), &recordingSender{}, &stubScanner{})
	assert.NoError(t, bare.HandleCalendarSync(context.Background(), task))
}

func TestDispatcher_BookingChanged(t *testing.T) {
	client := &fakeClient{}
	d := NewDispatcher(client, "https://rooms.example.com", time.Hour)
	b := &models.Booking{Base: models.Base{ID: uuid.New()}}

	require.NoError(t, d.BookingChanged(context.Background(), booking.EventConfirmed, b))
	require.Len(t, client.tasks, 2)
	assert.Equal(t, TypeBookingNotify, client.tasks[0].Type())
	assert.Equal(t, TypeCalendarSync, client.tasks[1].Type())

	var payload BookingNotifyPayload
	require.NoError(t, json.Unmarshal(client.tasks[0].Payload(), &payload))
	assert.Equal(t, b.ID, payload.BookingID)
	assert.Equal(t, booking.EventConfirmed, payload.Kind)
}

func TestDispatcher_EnqueueFailure(t *testing.T) {
	d := NewDispatcher(&fakeClient{err: errors.New("redis down")}, "", time.Hour)
	err := d.BookingChanged(context.Background(), booking.EventCreated, &models.Booking{})
	assert.ErrorContains(t, err, "redis down")
}

func TestDispatcher_AccountEmails(t *testing.T) {
	client := &fakeClient{}
	d := NewDispatcher(client, "https://rooms.example.com/", 72*time.Hour)
	user := &models.User{Email: "new@example.com", Name: "New Person"}

	require.NoError(t, d.ActivationIssued(context.Background(), user, "tok en"))
	require.NoError(t, d.PasswordResetIssued(context.Background(), user, "reset"))
	require.Len(t, client.tasks, 2)

	var activation EmailPayload
	require.NoError(t, json.Unmarshal(client.tasks[0].Payload(), &activation))
	assert.Equal(t, []string{"new@example.com"}, activation.To)
	assert.Contains(t, activation.Body, "https://rooms.example.com/activate?token=tok+en")

	var reset EmailPayload
	require.NoError(t, json.Unmarshal(client.tasks[1].Payload(), &reset))
	assert.Contains(t, reset.Body, "/reset-password?token=reset")
}

func TestDispatcher_SendWithoutRecipients(t *testing.T) {
	d := NewDispatcher(&fakeClient{}, "", time.Hour)
	assert.ErrorIs(t, d.Send(context.Background(), mail.Message{Subject: "x"}), mail.ErrNoRecipients)
}

type fakeRegistrar struct {
	spec string
	task *asynq.Task
	opts []asynq.Option
}

func (f *fakeRegistrar) Register(spec string, task *asynq.Task, opts ...asynq.Option) (string, error) {
	f.spec, f.task, f.opts = spec, task, opts
	return "entry-1", nil
}

func TestRegisterSchedules(t *testing.T) {
	r := &fakeRegistrar{}
	id, err := RegisterSchedules(r, "*/5 * * * *")
	require.NoError(t, err)
	assert.Equal(t, "entry-1", id)
	assert.Equal(t, "*/5 * * * *", r.spec)
	assert.Equal(t, TypeReminderScan, r.task.Type())
	assert.Len(t, r.opts, 1)

	_, err = RegisterSchedules(r, "not a cron")
	assert.Error(t, err)
}
