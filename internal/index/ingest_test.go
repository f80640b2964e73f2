package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanMaildir(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)
	root := store.MailRoot()

	writeMessage(t, root, "inbox/cur/seen:2,S",
		"Message-Id: <seen@example.com>",
		"Subject: already read",
	)
	writeMessage(t, root, "inbox/new/fresh",
		"Message-Id: <fresh@example.com>",
		"Subject: just delivered",
	)
	// None of these should be picked up.
	writeMessage(t, root, "inbox/tmp/partial",
		"Message-Id: <partial@example.com>",
	)
	writeMessage(t, root, ".state/cur/internal",
		"Message-Id: <internal@example.com>",
	)
	writeMessage(t, root, "inbox/loose",
		"Message-Id: <loose@example.com>",
	)
	writeMessage(t, root, "inbox/cur/.dotfile",
		"Message-Id: <dot@example.com>",
	)

	added, err := ScanMaildir(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	t.Run("fresh messages get inbox and synced flags", func(t *testing.T) {
		seen, err := store.FindMessageByFilename(ctx, "inbox/cur/seen:2,S")
		require.NoError(t, err)
		require.NotNil(t, seen)
		assert.ElementsMatch(t, []string{TagInbox}, seen.Tags())

		fresh, err := store.FindMessageByFilename(ctx, "inbox/new/fresh")
		require.NoError(t, err)
		require.NotNil(t, fresh)
		assert.ElementsMatch(t, []string{TagInbox, TagUnread}, fresh.Tags())
	})

	t.Run("skipped locations stay unindexed", func(t *testing.T) {
		for _, rel := range []string{
			"inbox/tmp/partial",
			".state/cur/internal",
			"inbox/loose",
			"inbox/cur/.dotfile",
		} {
			msg, err := store.FindMessageByFilename(ctx, rel)
			require.NoError(t, err)
			assert.Nil(t, msg, "expected %s to be skipped", rel)
		}
	})

	t.Run("rescan is a no-op", func(t *testing.T) {
		added, err := ScanMaildir(ctx, store)
		require.NoError(t, err)
		assert.Zero(t, added)
	})

	t.Run("a duplicate message id links without re-tagging", func(t *testing.T) {
		writeMessage(t, root, "archive/cur/seen-copy:2,S",
			"Message-Id: <seen@example.com>",
			"Subject: already read",
		)
		added, err := ScanMaildir(ctx, store)
		require.NoError(t, err)
		assert.Equal(t, 1, added)

		msg, err := store.FindMessageByFilename(ctx, "archive/cur/seen-copy:2,S")
		require.NoError(t, err)
		require.NotNil(t, msg)
		assert.Len(t, msg.Filenames(), 2)
	})
}
