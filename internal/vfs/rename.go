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

package vfs

import (
	"context"
	"errors"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"

	"mqfs/internal/common"
	"mqfs/internal/index"
)

// muttRewrite classifies a marker rename whose flat prefixes differ only in
// the cur/new pseudo directory they were addressed through.
type muttRewrite int

const (
	muttNone     muttRewrite = iota
	muttCurToNew             // the client "delivered" the message into new/
	muttNewToCur             // the client moved it back under cur/
)

// RenamePath renames a virtual path. Two worlds exist and a rename may not
// cross between them: plain backing entries rename through to the backing
// store, and flattened message names rename the real message file followed by
// an index resync. The flat prefix up to the last marker, which covers both
// the virtual directory and the real parent directory of the message, must
// be identical on both sides; with the mutt workaround on, a cur/new pseudo
// directory swap in an otherwise identical prefix is also accepted.
func (q *QueryFS) RenamePath(fromPath, toPath string) (err error) {
	defer recoverQueryFSPanic("RenamePath", &err)

	from := common.NormalizePath(fromPath)
	to := common.NormalizePath(toPath)
	log.Debugf("[VFS] RenamePath: %q -> %q", from, to)

	fromMarker := strings.LastIndex(from, Marker)
	toMarker := strings.LastIndex(to, Marker)

	if fromMarker < 0 && toMarker < 0 {
		if err := os.Rename(q.realBackingPath(from), q.realBackingPath(to)); err != nil {
			return errnoFromOS(err)
		}
		return nil
	}
	if fromMarker < 0 || toMarker < 0 {
		// Renames cannot move entries between the backing store and the
		// flattened message namespace.
		return ENOTSUP
	}

	rewrite := muttNone
	if fromMarker != toMarker || from[:fromMarker] != to[:toMarker] {
		rewrite = q.classifyMuttRewrite(from, to)
		if rewrite == muttNone {
			return ENOTSUP
		}
	}

	fromReal := DecodeName(common.BaseName(from))
	toReal := DecodeName(common.BaseName(to))
	if err := os.Rename(q.realMessagePath(common.BaseName(from)), q.realMessagePath(common.BaseName(to))); err != nil {
		return errnoFromOS(err)
	}

	return q.resyncAfterRename(fromReal, toReal, rewrite)
}

// classifyMuttRewrite recognizes the compatibility rename where only the
// penultimate pseudo directory differs between cur and new. Both virtual
// paths must be byte-identical up to that three-character segment.
func (q *QueryFS) classifyMuttRewrite(from, to string) muttRewrite {
	if !q.cfg.MuttWorkaround {
		return muttNone
	}
	fromSlash := strings.LastIndex(from, "/")
	toSlash := strings.LastIndex(to, "/")
	if fromSlash < 3 || toSlash < 3 {
		return muttNone
	}
	if from[:fromSlash-3] != to[:toSlash-3] {
		return muttNone
	}
	fromDir := from[fromSlash-3 : fromSlash]
	toDir := to[toSlash-3 : toSlash]
	switch {
	case fromDir == "cur" && toDir == "new":
		return muttCurToNew
	case fromDir == "new" && toDir == "cur":
		return muttNewToCur
	}
	return muttNone
}

// resyncAfterRename brings the index back in line with the message's new
// real filename, atomically: re-register the file under its new name, drop
// the old name, then re-derive the flag tags from the new name. Failures of
// the individual steps are logged and tolerated; only a failure to open or
// commit the atomic section surfaces as EIO, since then nothing can be said
// about index consistency.
func (q *QueryFS) resyncAfterRename(fromReal, toReal string, rewrite muttRewrite) error {
	ctx := context.Background()
	store := q.db.Open(index.ModeReadWrite)
	defer q.db.Close(store)

	if err := store.BeginAtomic(ctx); err != nil {
		return EIO
	}
	res := error(nil)

	if fromReal != toReal {
		_, err := store.AddMessage(ctx, toReal)
		if errors.Is(err, common.ErrDuplicateMessageID) {
			// Expected: the message was already indexed under its old
			// name, and the new filename is now linked beside it.
			err = store.RemoveMessage(ctx, fromReal)
			if !errors.Is(err, common.ErrDuplicateMessageID) {
				log.Warnf("[VFS] rename resync: old filename %q not released: %v", fromReal, err)
			}
		} else if err != nil {
			log.Warnf("[VFS] rename resync: indexing %q failed: %v", toReal, err)
		} else {
			log.Warnf("[VFS] rename resync: message %q was not previously indexed", toReal)
		}
	}

	msg, err := store.FindMessageByFilename(ctx, toReal)
	if err != nil || msg == nil {
		log.Warnf("[VFS] rename resync: lookup of %q failed: %v", toReal, err)
	} else {
		if err := msg.SyncMaildirFlags(ctx); err != nil {
			log.Warnf("[VFS] rename resync: flag sync for %q failed: %v", toReal, err)
		}
		if rewrite == muttCurToNew {
			// Delivery into new/ marks the message unread, matching
			// what a real maildir delivery would imply.
			if err := msg.AddTag(ctx, index.TagUnread); err != nil {
				log.Warnf("[VFS] rename resync: unread tag for %q failed: %v", toReal, err)
			}
		}
	}

	if err := store.EndAtomic(ctx); err != nil {
		res = EIO
	}
	return res
}
