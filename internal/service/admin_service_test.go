package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buddiesfinder/internal/models"
)

func TestAdminDeletes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	admin := h.verifiedAccount(t, "Admin", "admin@example.com", password)
	h.makeAdmin(t, admin.ID)
	alice := h.verifiedAccount(t, "Alice", "alice@example.com", password)
	bob := h.verifiedAccount(t, "Bob", "bob@example.com", password)

	activity, err := h.bulletin.Host(ctx, alice.ID, badmintonInput(h.now.Add(24*time.Hour), 4))
	require.NoError(t, err)
	require.NoError(t, h.bulletin.Join(ctx, bob.ID, activity.ID))
	post, err := h.feed.CreatePost(ctx, alice.ID, PostInput{Content: "Spam"})
	require.NoError(t, err)

	t.Run("non-admin refused", func(t *testing.T) {
		assert.ErrorIs(t, h.admin.DeleteActivity(ctx, bob.ID, activity.ID), ErrForbidden)
		assert.ErrorIs(t, h.admin.DeletePost(ctx, bob.ID, post.ID), ErrForbidden)
		assert.ErrorIs(t, h.admin.DeletePost(ctx, 9999, post.ID), ErrForbidden)
	})

	t.Run("admin removes content", func(t *testing.T) {
		require.NoError(t, h.admin.DeleteActivity(ctx, admin.ID, activity.ID))
		require.NoError(t, h.admin.DeletePost(ctx, admin.ID, post.ID))

		_, err := h.bulletin.Participants(ctx, activity.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, h.admin.DeletePost(ctx, admin.ID, post.ID), ErrNotFound)

		events := h.audit.ofType(models.EventAdminDeletion)
		require.Len(t, events, 2)
		assert.Equal(t, admin.ID, events[0].UserID)
		assert.Equal(t, fmt.Sprintf("activity:%d", activity.ID), events[0].Reason)
		assert.Equal(t, fmt.Sprintf("post:%d", post.ID), events[1].Reason)
	})
}
