package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestIndexDB creates an initialized database and returns its path and the
// mail root it is bound to.
func newTestIndexDB(t *testing.T) (dbPath, mailRoot string) {
	t.Helper()
	ctx := context.Background()

	dir := t.TempDir()
	mailRoot = filepath.Join(dir, "mail")
	require.NoError(t, os.MkdirAll(mailRoot, 0755))
	dbPath = filepath.Join(dir, "index.db")

	store, err := OpenStore(dbPath, mailRoot, ModeReadWrite)
	require.NoError(t, err)
	require.NoError(t, store.CreateSchema(ctx))
	require.NoError(t, store.SetConfigValue(ctx, ConfigKeyExcludeTags, "spam\ndeleted\n"))
	require.NoError(t, store.Close())
	return dbPath, mailRoot
}

func TestNewContext(t *testing.T) {
	t.Parallel()
	dbPath, mailRoot := newTestIndexDB(t)

	c, err := NewContext(dbPath, mailRoot)
	require.NoError(t, err)
	assert.Equal(t, []string{"spam", "deleted"}, c.ExcludedTags())
	assert.Equal(t, mailRoot, c.MailRoot())
}

func TestContext_OpenClose(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dbPath, mailRoot := newTestIndexDB(t)

	c, err := NewContext(dbPath, mailRoot)
	require.NoError(t, err)

	t.Run("paired open and close", func(t *testing.T) {
		store := c.Open(ModeReadOnly)
		version, err := store.ConfigValue(ctx, ConfigKeySchemaVersion)
		require.NoError(t, err)
		assert.Equal(t, SchemaVersion, version)
		c.Close(store)
	})

	t.Run("opens nest", func(t *testing.T) {
		// A pinned read-only store must not block a second open, which is
		// exactly what happens when a message is opened while its query
		// directory is still being listed.
		pinned := c.Open(ModeReadOnly)

		writeMessage(t, mailRoot, "inbox/cur/nested:2,",
			"Message-Id: <nested@example.com>",
		)
		rw := c.Open(ModeReadWrite)
		_, err := rw.AddMessage(ctx, "inbox/cur/nested:2,")
		require.NoError(t, err)
		c.Close(rw)

		msg, err := pinned.FindMessageByFilename(ctx, "inbox/cur/nested:2,")
		require.NoError(t, err)
		assert.NotNil(t, msg)
		c.Close(pinned)
	})

	t.Run("reopen after full release", func(t *testing.T) {
		store := c.Open(ModeReadWrite)
		c.Close(store)
	})
}
