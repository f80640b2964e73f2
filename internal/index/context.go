// Copyright 2025 The mqfs Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package index

import (
	"context"
	"fmt"
	"sync"

	"github.com/gofrs/flock"
	log "github.com/sirupsen/logrus"

	"mqfs/internal/common"
	"mqfs/internal/util"
)

// Context owns access to the index database for the lifetime of a mount. It
// guards against other processes with a flock beside the database file and
// caches the excluded-tag list fetched at mount time.
//
// Stores are opened and closed around each logical operation, not held for
// the mount's lifetime. Opens nest: a live-query directory handle pins one
// store from directory-open to directory-close, and a message open in the
// meantime gets its own store on a separate connection (WAL keeps the two
// coherent). The flock is acquired by the first open and released by the
// last close, so the external indexer stays shut out for as long as any
// handle is live.
type Context struct {
	mu           sync.Mutex // guards lock acquisition and the open count
	dbPath       string
	mailRoot     string
	lock         *flock.Flock
	opens        int
	excludedTags []string
}

// NewContext prepares index access for a mount and fetches the excluded-tag
// configuration once. An unusable database (unreadable for a non-transient
// reason, or needing an upgrade) terminates the process inside Open.
func NewContext(dbPath, mailRoot string) (*Context, error) {
	c := &Context{
		dbPath:   dbPath,
		mailRoot: mailRoot,
		lock:     flock.New(dbPath + ".lock"),
	}

	store := c.Open(ModeReadOnly)
	raw, err := store.ExcludedTags(context.Background())
	c.Close(store)
	if err != nil {
		return nil, fmt.Errorf("failed to read excluded tags: %w", err)
	}
	c.excludedTags = ParseExcludedTags(raw)
	log.Debugf("[index] excluded tags: %v", c.excludedTags)
	return c, nil
}

// ExcludedTags returns the excluded-tag list fetched at mount time.
func (c *Context) ExcludedTags() []string {
	return c.excludedTags
}

// MailRoot returns the directory indexed filenames are relative to.
func (c *Context) MailRoot() string {
	return c.mailRoot
}

// Open opens a store on the index. The first open acquires the flock; if
// another process holds the database exclusively, the acquisition retries
// forever at one second intervals and never fails for that reason. Any
// other failure, or a database needing upgrade, is fatal: better to stop
// than to operate against an incompatible store.
//
// Every Open must be paired with a Close of the returned store.
func (c *Context) Open(mode Mode) *Store {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.opens == 0 {
		err := util.Retry(func() error {
			ok, err := c.lock.TryLock()
			if err != nil {
				return err
			}
			if !ok {
				return common.ErrLockBusy
			}
			return nil
		}, util.LockRetryOptions()...)
		if err != nil {
			log.Fatalf("FATAL: index lock error: %v", err)
		}
	}

	store, err := util.RetryWithResult(func() (*Store, error) {
		return OpenStore(c.dbPath, c.mailRoot, mode)
	}, util.LockRetryOptions()...)
	if err != nil {
		log.Fatalf("FATAL: index database open error: %v", err)
	}

	needsUpgrade, err := store.NeedsUpgrade(context.Background())
	if err != nil {
		log.Fatalf("FATAL: index schema check error: %v", err)
	}
	if needsUpgrade {
		log.Fatalf("FATAL: index database needs upgrade")
	}

	c.opens++
	return store
}

// Close closes a store handed out by Open. The last close releases the
// context flock.
func (c *Context) Close(store *Store) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.opens == 0 {
		log.Panicf("[index] Close: no store open on this context")
	}
	if err := store.Close(); err != nil {
		log.Warnf("[index] close error: %v", err)
	}
	c.opens--
	if c.opens == 0 {
		if err := c.lock.Unlock(); err != nil {
			log.Warnf("[index] lock release error: %v", err)
		}
	}
}
