package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"collecte-backend/internal/clock"
	"collecte-backend/internal/domain"
	"collecte-backend/internal/repository/memory"

	"firebase.google.com/go/v4/messaging"
	"github.com/go-redis/redismock/v8"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu    sync.Mutex
	notes []domain.Notification
	err   error
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Send(ctx context.Context, note *domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = append(s.notes, *note)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.notes)
}

func shortfall(collectorID int64) *domain.Notification {
	return &domain.Notification{
		CollectorID: collectorID,
		Kind:        domain.NotificationSettlementShortfall,
		Title:       "Settlement shortfall",
		Message:     "Collector remitted less than due.",
		Attributes:  map[string]string{"shortfall": "300.00"},
	}
}

func TestDispatcherCooldown(t *testing.T) {
	clk := clock.NewFixed(time.Date(2024, 1, 15, 18, 0, 0, 0, time.UTC))
	sink := &recordingSink{}
	d := NewDispatcher(NewMemoryCooldown(clk), 30*time.Minute, 10, sink)
	ctx := context.Background()

	d.Notify(ctx, shortfall(1))
	d.Notify(ctx, shortfall(1))
	assert.Equal(t, 1, sink.count(), "second alert inside the window is suppressed")

	d.Notify(ctx, shortfall(2))
	assert.Equal(t, 2, sink.count(), "other collectors have their own window")

	clk.Advance(31 * time.Minute)
	d.Notify(ctx, shortfall(1))
	assert.Equal(t, 3, sink.count())
}

func TestDispatcherSinkFailureIsSwallowed(t *testing.T) {
	failing := &recordingSink{err: errors.New("smtp down")}
	ok := &recordingSink{}
	d := NewDispatcher(nil, 0, 10, failing, ok)

	d.Notify(context.Background(), shortfall(1))
	assert.Equal(t, 1, failing.count())
	assert.Equal(t, 1, ok.count())
}

func TestDispatcherAsync(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(nil, 0, 10, sink)
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx, 2)

	d.Notify(ctx, shortfall(1))
	d.Notify(ctx, shortfall(2))
	assert.Eventually(t, func() bool { return sink.count() == 2 }, time.Second, 10*time.Millisecond)

	cancel()
	d.Wait()
}

func TestRedisCooldown(t *testing.T) {
	client, mock := redismock.NewClientMock()
	cooldown := NewRedisCooldown(client)
	key := CooldownKey(shortfall(7))

	mock.ExpectSetNX(key, 1, 30*time.Minute).SetVal(true)
	mock.ExpectSetNX(key, 1, 30*time.Minute).SetVal(false)

	first, err := cooldown.Acquire(context.Background(), key, 30*time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := cooldown.Acquire(context.Background(), key, 30*time.Minute)
	require.NoError(t, err)
	assert.False(t, second)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCooldownError(t *testing.T) {
	client, mock := redismock.NewClientMock()
	mock.ExpectSetNX("k", 1, time.Minute).SetErr(errors.New("connection refused"))

	_, err := NewRedisCooldown(client).Acquire(context.Background(), "k", time.Minute)
	assert.Error(t, err)
}

type fakeMailClient struct {
	sent   []*mail.SGMailV3
	status int
}

func (c *fakeMailClient) Send(email *mail.SGMailV3) (*rest.Response, error) {
	c.sent = append(c.sent, email)
	return &rest.Response{StatusCode: c.status, Body: "{}"}, nil
}

func TestEmailSink(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		client := &fakeMailClient{status: 202}
		sink := &EmailSink{client: client, fromEmail: "ledger@example.com", fromName: "Ledger", supervisor: "boss@example.com"}

		require.NoError(t, sink.Send(context.Background(), shortfall(3)))
		require.Len(t, client.sent, 1)
		assert.Equal(t, "[SETTLEMENT_SHORTFALL] Settlement shortfall", client.sent[0].Subject)
	})

	t.Run("Provider error", func(t *testing.T) {
		client := &fakeMailClient{status: 500}
		sink := &EmailSink{client: client, supervisor: "boss@example.com"}
		err := sink.Send(context.Background(), shortfall(3))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "status 500")
	})
}

func TestPlainBodyListsAttributes(t *testing.T) {
	body := plainBody(shortfall(3))
	assert.Contains(t, body, "shortfall: 300.00")
	assert.Contains(t, body, "collector_id: 3")
}

type fakePushClient struct {
	messages []*messaging.Message
}

func (c *fakePushClient) Send(ctx context.Context, message *messaging.Message) (string, error) {
	c.messages = append(c.messages, message)
	return "projects/demo/messages/1", nil
}

func TestPushSink(t *testing.T) {
	store := memory.NewStore()
	with := store.AddCollector(domain.Collector{ID: 1, Name: "Awa", PushToken: "tok-1"})
	without := store.AddCollector(domain.Collector{ID: 2, Name: "Binta"})
	client := &fakePushClient{}
	sink := &PushSink{client: client, directory: store.Repos().Directory}
	ctx := context.Background()

	require.NoError(t, sink.Send(ctx, shortfall(with.ID)))
	require.NoError(t, sink.Send(ctx, shortfall(without.ID)))
	require.NoError(t, sink.Send(ctx, shortfall(99)))

	require.Len(t, client.messages, 1)
	assert.Equal(t, "tok-1", client.messages[0].Token)
	assert.Equal(t, "SETTLEMENT_SHORTFALL", client.messages[0].Data["kind"])
	assert.Equal(t, "300.00", client.messages[0].Data["shortfall"])
}

func TestInAppSink(t *testing.T) {
	store := memory.NewStore()
	sink := NewInAppSink(store.Repos().Notifications)
	ctx := context.Background()

	require.NoError(t, sink.Send(ctx, shortfall(4)))
	notes, total, err := store.Repos().Notifications.List(ctx, 4, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(1), total)
	assert.Equal(t, domain.NotificationSettlementShortfall, notes[0].Kind)
}
