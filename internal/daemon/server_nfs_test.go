//go:build !smb

package daemon

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mqfs/internal/index"
	mqfsvfs "mqfs/internal/vfs"
)

// newTestAdapter builds a billy adapter over an engine with one query
// directory ("tag:todo") holding one indexed message.
func newTestAdapter(t *testing.T) (*BillyAdapter, string) {
	t.Helper()
	ctx := context.Background()

	backing := t.TempDir()
	mail := t.TempDir()
	dbPath := filepath.Join(t.TempDir(), "index.db")

	store, err := index.OpenStore(dbPath, mail, index.ModeReadWrite)
	require.NoError(t, err)
	require.NoError(t, store.CreateSchema(ctx))

	raw := "Message-Id: <b1@example.com>\r\n\r\n" + strings.Repeat("z", 64)
	p := filepath.Join(mail, "inbox", "cur", "b1:2,")
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(raw), 0644))
	msg, err := store.AddMessage(ctx, "inbox/cur/b1:2,")
	require.NoError(t, err)
	require.NoError(t, msg.AddTag(ctx, "todo"))
	require.NoError(t, store.Close())

	idx, err := index.NewContext(dbPath, mail)
	require.NoError(t, err)
	engine, err := mqfsvfs.NewQueryFS(mqfsvfs.Config{
		BackingDir: backing,
		MailDir:    mail,
	}, idx)
	require.NoError(t, err)

	require.NoError(t, os.Mkdir(filepath.Join(backing, "tag:todo"), 0755))
	return NewBillyAdapter(engine), raw
}

func TestBillyAdapter(t *testing.T) {
	t.Parallel()
	adapter, raw := newTestAdapter(t)
	const flat = "tag:todo/cur/inbox#cur#b1:2,"

	t.Run("stat", func(t *testing.T) {
		fi, err := adapter.Stat("tag:todo")
		require.NoError(t, err)
		assert.True(t, fi.IsDir())
		assert.Equal(t, "tag:todo", fi.Name())

		fi, err = adapter.Stat(flat)
		require.NoError(t, err)
		assert.False(t, fi.IsDir())
		assert.Equal(t, int64(len(raw)+mqfsvfs.DefaultHeaderBudget), fi.Size())
	})

	t.Run("readdir drops the dot entries", func(t *testing.T) {
		infos, err := adapter.ReadDir("tag:todo/cur")
		require.NoError(t, err)
		require.Len(t, infos, 1)
		assert.Equal(t, "inbox#cur#b1:2,", infos[0].Name())
	})

	t.Run("sequential reads through a billy file", func(t *testing.T) {
		f, err := adapter.Open(flat)
		require.NoError(t, err)
		defer f.Close()

		whole := make([]byte, len(raw)+mqfsvfs.DefaultHeaderBudget)
		n, err := f.Read(whole)
		require.NoError(t, err)
		require.Equal(t, len(whole), n)
		assert.True(t, strings.HasPrefix(string(whole), "X-Label: todo"))
		assert.Equal(t, raw, string(whole[mqfsvfs.DefaultHeaderBudget:]))

		// The offset advanced past the end, so the next read is empty.
		n, err = f.Read(make([]byte, 8))
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("writes are refused end to end", func(t *testing.T) {
		_, err := adapter.Create("tag:todo/cur/inbox#cur#nope:2,")
		assert.ErrorIs(t, err, syscall.EACCES)

		f, err := adapter.Open(flat)
		require.NoError(t, err)
		defer f.Close()
		_, err = f.Write([]byte("x"))
		assert.ErrorIs(t, err, syscall.EROFS)
		assert.ErrorIs(t, f.Truncate(0), syscall.EROFS)

		assert.ErrorIs(t, adapter.Chmod(flat, 0600), syscall.EROFS)
	})

	t.Run("query management passes through", func(t *testing.T) {
		require.NoError(t, adapter.MkdirAll("tag:urgent", 0755))
		require.NoError(t, adapter.Rename("tag:urgent", "tag:later"))

		fi, err := adapter.Stat("tag:later")
		require.NoError(t, err)
		assert.True(t, fi.IsDir())

		require.NoError(t, adapter.Symlink("tag:todo", "alias"))
		target, err := adapter.Readlink("alias")
		require.NoError(t, err)
		assert.Equal(t, "tag:todo", target)

		require.NoError(t, adapter.Remove("alias"))
		require.NoError(t, adapter.Remove("tag:later"))
	})

	t.Run("capabilities stay read oriented", func(t *testing.T) {
		caps := adapter.Capabilities()
		assert.NotZero(t, caps)
	})
}
