package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newQueryStore seeds a store with three messages:
//
//	inbox/cur/plan:2,S    alice -> bob   "project plan"  2023-01-03  tag:todo
//	inbox/cur/lunch:2,    carol -> bob   "lunch?"        2023-01-02  tag:unread
//	junk/cur/offer:2,     mallory -> bob "great offer"   2023-01-01  tag:spam
func newQueryStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	store := newTestStore(t)

	seed := []struct {
		rel     string
		tag     string
		headers []string
	}{
		{"inbox/cur/plan:2,S", "todo", []string{
			"Message-Id: <plan@example.com>",
			"From: alice@example.com",
			"To: bob@example.com",
			"Subject: project plan",
			"Date: Tue, 03 Jan 2023 09:00:00 +0000",
		}},
		{"inbox/cur/lunch:2,", "unread", []string{
			"Message-Id: <lunch@example.com>",
			"From: carol@example.com",
			"To: bob@example.com",
			"Subject: lunch?",
			"Date: Mon, 02 Jan 2023 09:00:00 +0000",
		}},
		{"junk/cur/offer:2,", "spam", []string{
			"Message-Id: <offer@example.com>",
			"From: mallory@example.com",
			"To: bob@example.com",
			"Subject: great offer",
			"Date: Sun, 01 Jan 2023 09:00:00 +0000",
		}},
	}
	for _, s := range seed {
		writeMessage(t, store.MailRoot(), s.rel, s.headers...)
		msg, err := store.AddMessage(ctx, s.rel)
		require.NoError(t, err)
		require.NoError(t, msg.AddTag(ctx, s.tag))
	}
	return store
}

func messageIDs(msgs []*Message) []string {
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.MessageID())
	}
	return ids
}

func TestQueryMessages(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newQueryStore(t)

	t.Run("star matches everything newest first", func(t *testing.T) {
		msgs, err := store.QueryMessages(ctx, "*", nil)
		require.NoError(t, err)
		assert.Equal(t, []string{
			"plan@example.com",
			"lunch@example.com",
			"offer@example.com",
		}, messageIDs(msgs))
	})

	t.Run("tag term", func(t *testing.T) {
		msgs, err := store.QueryMessages(ctx, "tag:todo", nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"plan@example.com"}, messageIDs(msgs))
	})

	t.Run("from term", func(t *testing.T) {
		msgs, err := store.QueryMessages(ctx, "from:carol", nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"lunch@example.com"}, messageIDs(msgs))
	})

	t.Run("to term", func(t *testing.T) {
		msgs, err := store.QueryMessages(ctx, "to:bob", nil)
		require.NoError(t, err)
		assert.Len(t, msgs, 3)
	})

	t.Run("subject term", func(t *testing.T) {
		msgs, err := store.QueryMessages(ctx, "subject:lunch", nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"lunch@example.com"}, messageIDs(msgs))
	})

	t.Run("id term", func(t *testing.T) {
		msgs, err := store.QueryMessages(ctx, "id:plan@example.com", nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"plan@example.com"}, messageIDs(msgs))
	})

	t.Run("path term", func(t *testing.T) {
		msgs, err := store.QueryMessages(ctx, "path:junk/", nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"offer@example.com"}, messageIDs(msgs))
	})

	t.Run("bare word matches subject or sender", func(t *testing.T) {
		msgs, err := store.QueryMessages(ctx, "plan", nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"plan@example.com"}, messageIDs(msgs))

		msgs, err = store.QueryMessages(ctx, "mallory", nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"offer@example.com"}, messageIDs(msgs))
	})

	t.Run("terms conjoin", func(t *testing.T) {
		msgs, err := store.QueryMessages(ctx, "to:bob tag:unread", nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"lunch@example.com"}, messageIDs(msgs))
	})

	t.Run("excluded tags drop matches", func(t *testing.T) {
		msgs, err := store.QueryMessages(ctx, "*", []string{"spam"})
		require.NoError(t, err)
		assert.Equal(t, []string{
			"plan@example.com",
			"lunch@example.com",
		}, messageIDs(msgs))
	})

	t.Run("hydrates tags and filenames", func(t *testing.T) {
		msgs, err := store.QueryMessages(ctx, "tag:todo", nil)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, "inbox/cur/plan:2,S", msgs[0].Filename())
		assert.Equal(t, []string{"todo"}, msgs[0].Tags())
	})

	t.Run("rejects bad expressions", func(t *testing.T) {
		_, err := store.QueryMessages(ctx, "", nil)
		assert.Error(t, err)
		_, err = store.QueryMessages(ctx, "   ", nil)
		assert.Error(t, err)
		_, err = store.QueryMessages(ctx, "bogus:x", nil)
		assert.Error(t, err)
		_, err = store.QueryMessages(ctx, "tag:", nil)
		assert.Error(t, err)
	})
}

func TestParseExcludedTags(t *testing.T) {
	t.Parallel()

	assert.Nil(t, ParseExcludedTags(""))
	assert.Equal(t, []string{"spam", "deleted"}, ParseExcludedTags("spam\ndeleted"))
	assert.Equal(t, []string{"spam", "deleted"}, ParseExcludedTags("\nspam\n\n  deleted \n"))
}
