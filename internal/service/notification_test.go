package service

import (
	"context"
	"fmt"
	"testing"

	"collecte-backend/internal/domain"
	"collecte-backend/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationService(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	notes := store.Repos().Notifications
	for i := 1; i <= 25; i++ {
		require.NoError(t, notes.Create(ctx, &domain.Notification{
			CollectorID: 2,
			Kind:        domain.NotificationUnsettledJournal,
			Title:       fmt.Sprintf("note %d", i),
		}))
	}
	require.NoError(t, notes.Create(ctx, &domain.Notification{CollectorID: 9, Title: "other"}))

	svc := NewNotificationService(notes)

	t.Run("Defaults to the first page of twenty", func(t *testing.T) {
		list, total, err := svc.GetNotifications(ctx, 2, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, int32(25), total)
		assert.Len(t, list, 20)
		assert.Equal(t, "note 25", list[0].Title, "newest first")
	})

	t.Run("Second page", func(t *testing.T) {
		list, _, err := svc.GetNotifications(ctx, 2, 2, 20)
		require.NoError(t, err)
		assert.Len(t, list, 5)
	})

	t.Run("Mark as read is scoped to the collector", func(t *testing.T) {
		list, _, err := svc.GetNotifications(ctx, 2, 1, 1)
		require.NoError(t, err)
		require.Len(t, list, 1)

		assert.Error(t, svc.MarkAsRead(ctx, 9, list[0].ID))
		require.NoError(t, svc.MarkAsRead(ctx, 2, list[0].ID))

		list, _, err = svc.GetNotifications(ctx, 2, 1, 1)
		require.NoError(t, err)
		assert.True(t, list[0].IsRead)
	})
}
