package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaildirFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		filename string
		flags    string
		present  bool
	}{
		{"inbox/cur/msg", "", false},
		{"inbox/cur/msg:2,", "", true},
		{"inbox/cur/msg:2,S", "S", true},
		{"inbox/cur/msg,U=5:2,RS", "RS", true},
		{"inbox/cur:2,weird/msg", "", false}, // flag field in a parent dir does not count
	}
	for _, tt := range tests {
		flags, present := MaildirFlags(tt.filename)
		assert.Equal(t, tt.flags, flags, "MaildirFlags(%q)", tt.filename)
		assert.Equal(t, tt.present, present, "MaildirFlags(%q) presence", tt.filename)
	}
}

func TestSyncMaildirFlags(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)

	t.Run("derives tags from the flag field", func(t *testing.T) {
		writeMessage(t, store.MailRoot(), "inbox/cur/a:2,FS",
			"Message-Id: <a@example.com>",
		)
		msg, err := store.AddMessage(ctx, "inbox/cur/a:2,FS")
		require.NoError(t, err)
		// A stale flag-derived tag gets dropped; unrelated tags survive.
		require.NoError(t, msg.AddTag(ctx, "replied"))
		require.NoError(t, msg.AddTag(ctx, "todo"))

		require.NoError(t, msg.SyncMaildirFlags(ctx))
		assert.ElementsMatch(t, []string{"flagged", "todo"}, msg.Tags())
	})

	t.Run("absence of seen means unread", func(t *testing.T) {
		writeMessage(t, store.MailRoot(), "inbox/cur/b:2,R",
			"Message-Id: <b@example.com>",
		)
		msg, err := store.AddMessage(ctx, "inbox/cur/b:2,R")
		require.NoError(t, err)

		require.NoError(t, msg.SyncMaildirFlags(ctx))
		assert.ElementsMatch(t, []string{"replied", TagUnread}, msg.Tags())
	})

	t.Run("no flag field at all means unread", func(t *testing.T) {
		writeMessage(t, store.MailRoot(), "inbox/new/c",
			"Message-Id: <c@example.com>",
		)
		msg, err := store.AddMessage(ctx, "inbox/new/c")
		require.NoError(t, err)

		require.NoError(t, msg.SyncMaildirFlags(ctx))
		assert.Equal(t, []string{TagUnread}, msg.Tags())
	})

	t.Run("seen clears unread", func(t *testing.T) {
		writeMessage(t, store.MailRoot(), "inbox/cur/d:2,S",
			"Message-Id: <d@example.com>",
		)
		msg, err := store.AddMessage(ctx, "inbox/cur/d:2,S")
		require.NoError(t, err)
		require.NoError(t, msg.AddTag(ctx, TagUnread))

		require.NoError(t, msg.SyncMaildirFlags(ctx))
		assert.Empty(t, msg.Tags())
	})
}
