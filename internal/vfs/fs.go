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

// Package vfs implements the query filesystem engine: a virtual tree whose
// root mirrors a backing store of query directories and whose cur/
// subdirectories materialize, on every open, the current matches of a mail
// index query as flattened read-only message files.
package vfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/macos-fuse-t/go-smb2/vfs"
	log "github.com/sirupsen/logrus"

	"mqfs/internal/common"
	"mqfs/internal/index"
	"mqfs/internal/util"
)

// maxSymlinkHops bounds query symlink chain dereferencing.
const maxSymlinkHops = 40

// Config carries the mount-time parameters of a query filesystem.
type Config struct {
	// BackingDir is the real directory whose entries define the queries.
	BackingDir string
	// MailDir is the root all indexed message filenames are relative to.
	MailDir string
	// MuttWorkaround reinterprets names under new/ pseudo directories as
	// living under cur/, compensating for clients that insist every
	// maildir has a populated new/ lifecycle.
	MuttWorkaround bool
	// HeaderBudget is the synthetic header block size in bytes. Zero means
	// DefaultHeaderBudget.
	HeaderBudget int
	// Hide, when set, removes matching top-level backing entries from
	// listings and lookups.
	Hide func(name string) bool
}

// QueryFS is the filesystem engine. It is read-only except for operations
// that pass through to the backing store and the message rename path.
type QueryFS struct {
	cfg     Config
	db      *index.Context
	handles *HandleManager
}

// NewQueryFS validates the configuration and builds the engine.
func NewQueryFS(cfg Config, db *index.Context) (*QueryFS, error) {
	if cfg.BackingDir == "" || cfg.MailDir == "" {
		return nil, fmt.Errorf("backing dir and mail dir are required")
	}
	if cfg.HeaderBudget == 0 {
		cfg.HeaderBudget = DefaultHeaderBudget
	}
	if cfg.HeaderBudget < minHeaderBudget {
		return nil, fmt.Errorf("header budget %d below minimum %d", cfg.HeaderBudget, minHeaderBudget)
	}
	return &QueryFS{
		cfg:     cfg,
		db:      db,
		handles: NewHandleManager(),
	}, nil
}

// OpenHandles returns the number of live file and directory handles.
func (q *QueryFS) OpenHandles() int {
	return q.handles.Count()
}

// recoverQueryFSPanic recovers from panics in engine operations so a bad
// request cannot take the whole server connection down.
func recoverQueryFSPanic(operation string, err *error) {
	if r := recover(); r != nil {
		log.Errorf("[VFS] PANIC RECOVERED in %s: %v\nStack:\n%s", operation, r, debug.Stack())
		if err != nil {
			*err = EIO
		}
	}
}

// realBackingPath maps a normalized virtual path onto the backing store.
func (q *QueryFS) realBackingPath(rel string) string {
	return filepath.Join(q.cfg.BackingDir, filepath.FromSlash(rel))
}

// realMessagePath maps a flattened message name onto the mail store.
func (q *QueryFS) realMessagePath(flatName string) string {
	return filepath.Join(q.cfg.MailDir, filepath.FromSlash(DecodeName(flatName)))
}

// resolveQueryExpression turns a query directory name into the index query
// expression, following symlink chains in the backing store. A plain entry
// (or a missing one) queries by its own name; a symlink queries by its final
// target string.
func (q *QueryFS) resolveQueryExpression(queryRel string) (string, error) {
	expr := queryRel
	for hops := 0; ; hops++ {
		if hops > maxSymlinkHops {
			return "", ELOOP
		}
		p := expr
		if !filepath.IsAbs(p) {
			p = filepath.Join(q.cfg.BackingDir, filepath.FromSlash(p))
		}
		fi, err := os.Lstat(p)
		if err != nil || fi.Mode()&os.ModeSymlink == 0 {
			return expr, nil
		}
		target, err := os.Readlink(p)
		if err != nil {
			return "", errnoFromOS(err)
		}
		expr = target
	}
}

func (q *QueryFS) isHidden(rel string) bool {
	if q.cfg.Hide == nil {
		return false
	}
	// Only top-level backing entries are subject to hiding.
	return !strings.Contains(rel, "/") && q.cfg.Hide(rel)
}

// --- Attribute Operations ---

// GetAttrByPath stats a virtual path. Pseudo maildir directories report the
// attributes of their parent query directory; message files report the real
// file's attributes with the header budget added to the size.
func (q *QueryFS) GetAttrByPath(vfsPath string) (attrs *vfs.Attributes, err error) {
	defer recoverQueryFSPanic("GetAttrByPath", &err)
	log.Tracef("[VFS] GetAttrByPath: path=%q", vfsPath)

	rp := q.classify(vfsPath)
	switch rp.kind {
	case kindRoot:
		fi, err := os.Stat(q.cfg.BackingDir)
		if err != nil {
			return nil, errnoFromOS(err)
		}
		return fileInfoToAttributes(fi, "", 0), nil

	case kindBacking:
		if q.isHidden(rp.rel) {
			return nil, ENOENT
		}
		fi, err := os.Lstat(q.realBackingPath(rp.rel))
		if err != nil {
			return nil, errnoFromOS(err)
		}
		return fileInfoToAttributes(fi, rp.rel, 0), nil

	case kindPseudo:
		// Pseudo dirs borrow the backing query directory's attributes.
		fi, err := os.Stat(q.realBackingPath(rp.queryRel))
		if err != nil {
			return nil, errnoFromOS(err)
		}
		return fileInfoToAttributes(fi, rp.rel, 0), nil

	case kindMessage:
		fi, err := os.Stat(q.realMessagePath(rp.flatName))
		if err != nil {
			return nil, errnoFromOS(err)
		}
		return fileInfoToAttributes(fi, rp.rel, uint64(q.cfg.HeaderBudget)), nil

	default:
		return nil, ENOENT
	}
}

// GetAttr stats an open handle. Handle 0 means the root directory.
func (q *QueryFS) GetAttr(handle vfs.VfsHandle) (attrs *vfs.Attributes, err error) {
	defer recoverQueryFSPanic("GetAttr", &err)

	if handle == 0 {
		return q.GetAttrByPath("")
	}
	info, ok := q.handles.Get(HandleID(handle))
	if !ok {
		return nil, EBADF
	}
	if info.isDir {
		return q.GetAttrByPath(info.path)
	}

	fi, err := info.file.Stat()
	if err != nil {
		return nil, errnoFromOS(err)
	}
	var extra uint64
	if info.header != nil {
		extra = uint64(len(info.header))
	}
	return fileInfoToAttributes(fi, info.path, extra), nil
}

// SetAttr rejects size and mode changes; the tree is read-only. Pure
// timestamp updates are acknowledged without effect.
func (q *QueryFS) SetAttr(handle vfs.VfsHandle, inAttrs *vfs.Attributes) (attrs *vfs.Attributes, err error) {
	defer recoverQueryFSPanic("SetAttr", &err)

	if _, ok := q.handles.Get(HandleID(handle)); !ok {
		return nil, EBADF
	}
	if _, ok := inAttrs.GetSizeBytes(); ok {
		return nil, EROFS
	}
	if _, ok := inAttrs.GetUnixMode(); ok {
		return nil, EROFS
	}
	return q.GetAttr(handle)
}

// Lookup finds a file in a directory
func (q *QueryFS) Lookup(dirHandle vfs.VfsHandle, name string) (attrs *vfs.Attributes, err error) {
	defer recoverQueryFSPanic("Lookup", &err)
	log.Tracef("[VFS] Lookup: dirHandle=%d name=%q", dirHandle, name)

	base := ""
	if dirHandle != 0 {
		info, ok := q.handles.Get(HandleID(dirHandle))
		if !ok {
			return nil, EBADF
		}
		base = info.path
	}

	switch name {
	case ".", "":
		return q.GetAttrByPath(base)
	case "..":
		return q.GetAttrByPath(common.ParentPath(base))
	}
	if base == "" {
		return q.GetAttrByPath(name)
	}
	return q.GetAttrByPath(base + "/" + name)
}

// --- File Operations ---

// Open opens a file for reading. Any open requesting write access is
// rejected. A flattened message name opens the real message file and builds
// the synthetic label header from the index; anything else passes through to
// the backing store.
func (q *QueryFS) Open(path string, flags int, mode int) (handle vfs.VfsHandle, err error) {
	defer recoverQueryFSPanic("Open", &err)
	log.Debugf("[VFS] Open: path=%q flags=%d mode=%d", path, flags, mode)

	if flags&syscall.O_ACCMODE != os.O_RDONLY {
		return 0, EACCES
	}

	rel := common.NormalizePath(path)
	if !isFlatName(rel) {
		if q.isHidden(rel) {
			return 0, ENOENT
		}
		f, err := os.Open(q.realBackingPath(rel))
		if err != nil {
			return 0, errnoFromOS(err)
		}
		return vfs.VfsHandle(q.handles.AllocateFile(rel, f, nil)), nil
	}

	flatName := common.BaseName(rel)
	decoded := DecodeName(flatName)

	header := make([]byte, q.cfg.HeaderBudget)
	store := q.db.Open(index.ModeReadWrite)
	msg, lookupErr := store.FindMessageByFilename(context.Background(), decoded)
	q.db.Close(store)
	if lookupErr != nil {
		log.Errorf("[VFS] Open: index lookup for %q failed: %v", decoded, lookupErr)
		return 0, EIO
	}
	if msg != nil {
		renderLabelHeader(header, msg.Tags())
	}
	// An unindexed message keeps the zero-filled header block.

	f, err := os.Open(filepath.Join(q.cfg.MailDir, filepath.FromSlash(decoded)))
	if err != nil {
		return 0, errnoFromOS(err)
	}
	return vfs.VfsHandle(q.handles.AllocateFile(rel, f, header)), nil
}

// OpenAny opens a path regardless of whether it is a file or a directory.
func (q *QueryFS) OpenAny(path string, flags int, mode int) (handle vfs.VfsHandle, err error) {
	defer recoverQueryFSPanic("OpenAny", &err)

	attrs, err := q.GetAttrByPath(path)
	if err != nil {
		return 0, err
	}
	if attrs.GetFileType() == vfs.FileTypeDirectory {
		return q.OpenDir(path)
	}
	return q.Open(path, flags, mode)
}

// Close releases a handle. Closing a live-query directory releases the
// pinned index handle; a file close failure is unrecoverable because the
// client has already been promised the data made it.
func (q *QueryFS) Close(handle vfs.VfsHandle) (err error) {
	defer recoverQueryFSPanic("Close", &err)
	log.Debugf("[VFS] Close: handle=%d", handle)

	info, ok := q.handles.Get(HandleID(handle))
	if !ok {
		return EBADF
	}

	if info.isDir {
		if info.kind == DirKindLiveQuery {
			q.db.Close(info.store)
		}
		q.handles.Release(HandleID(handle))
		return nil
	}

	if err := info.file.Close(); err != nil {
		log.Fatalf("FATAL: failed to close %q: %v", info.path, err)
	}
	q.handles.Release(HandleID(handle))
	return nil
}

// Read reads file data. For message files the synthetic header block is
// spliced in front of the real content: offsets below the budget read from
// the rendered header, the remainder reads from the real file shifted back
// by the budget.
func (q *QueryFS) Read(handle vfs.VfsHandle, buf []byte, offset uint64, flags int) (n int, err error) {
	defer recoverQueryFSPanic("Read", &err)

	info, ok := q.handles.Get(HandleID(handle))
	if !ok {
		return 0, EBADF
	}
	if info.isDir {
		return 0, EISDIR
	}

	fileOff := int64(offset)
	if info.header != nil {
		budget := uint64(len(info.header))
		if offset < budget {
			n = copy(buf, info.header[offset:])
			fileOff = 0
		} else {
			fileOff = int64(offset - budget)
		}
	}

	if n < len(buf) {
		m, rerr := info.file.ReadAt(buf[n:], fileOff)
		n += m
		if rerr != nil && rerr != io.EOF {
			return n, errnoFromOS(rerr)
		}
	}
	return n, nil
}

// Write is rejected: message content and backing entries are read-only
// through this tree.
func (q *QueryFS) Write(handle vfs.VfsHandle, buf []byte, offset uint64, flags int) (int, error) {
	return 0, EROFS
}

// Truncate is rejected for the same reason as Write.
func (q *QueryFS) Truncate(handle vfs.VfsHandle, size uint64) error {
	return EROFS
}

// FSync has nothing to flush on a read-only tree.
func (q *QueryFS) FSync(handle vfs.VfsHandle) error {
	return nil
}

// Flush flushes file data
func (q *QueryFS) Flush(handle vfs.VfsHandle) error {
	return nil
}

// --- Directory Operations ---

// Mkdir creates a new query directory in the backing store.
func (q *QueryFS) Mkdir(path string, mode int) (attrs *vfs.Attributes, err error) {
	defer recoverQueryFSPanic("Mkdir", &err)
	log.Debugf("[VFS] Mkdir: path=%q mode=%o", path, mode)

	rel := common.NormalizePath(path)
	if rel == "" {
		return nil, EINVAL
	}
	if err := os.Mkdir(q.realBackingPath(rel), os.FileMode(mode)); err != nil {
		return nil, errnoFromOS(err)
	}
	return q.GetAttrByPath(rel)
}

// OpenDir opens a directory handle. The kind decided here fixes what ReadDir
// will enumerate: the root and other backing directories snapshot the real
// directory, a query directory lists the maildir skeleton, new/ and tmp/ are
// empty, and cur/ runs the query and pins the index open until Close.
func (q *QueryFS) OpenDir(path string) (handle vfs.VfsHandle, err error) {
	defer recoverQueryFSPanic("OpenDir", &err)
	log.Debugf("[VFS] OpenDir: path=%q", path)

	rp := q.classify(path)
	switch rp.kind {
	case kindRoot:
		entries, err := os.ReadDir(q.cfg.BackingDir)
		if err != nil {
			return 0, errnoFromOS(err)
		}
		h := q.handles.AllocateDir(rp.rel, &openHandle{
			kind:    DirKindBacking,
			realDir: q.cfg.BackingDir,
			entries: entries,
		})
		return vfs.VfsHandle(h), nil

	case kindBacking:
		if q.isHidden(rp.rel) {
			return 0, ENOENT
		}
		// Every backing entry presents the maildir skeleton, whatever it
		// really is. Only existence is checked here.
		if _, err := os.Lstat(q.realBackingPath(rp.rel)); err != nil {
			return 0, errnoFromOS(err)
		}
		h := q.handles.AllocateDir(rp.rel, &openHandle{kind: DirKindMaildirRoot})
		return vfs.VfsHandle(h), nil

	case kindPseudo:
		if rp.pseudoDir != "cur" {
			h := q.handles.AllocateDir(rp.rel, &openHandle{kind: DirKindEmpty})
			return vfs.VfsHandle(h), nil
		}

		expr, err := q.resolveQueryExpression(rp.queryRel)
		if err != nil {
			return 0, err
		}
		log.Debugf("[VFS] OpenDir: query %q resolves to expression %q", rp.queryRel, expr)

		// Brief lock contention with an external indexer checkpointing the
		// WAL is retried; real query failures surface as EIO.
		ctx := context.Background()
		store := q.db.Open(index.ModeReadOnly)
		msgs, err := util.RetryWithResult(func() ([]*index.Message, error) {
			return store.QueryMessages(ctx, expr, q.db.ExcludedTags())
		}, util.DatabaseRetryOptions(ctx)...)
		if err != nil {
			q.db.Close(store)
			log.Errorf("[VFS] OpenDir: query %q failed: %v", expr, err)
			return 0, EIO
		}
		// The store stays open, pinned by this directory handle, until
		// Close. Message results remain valid for its lifetime.
		h := q.handles.AllocateDir(rp.rel, &openHandle{
			kind:       DirKindLiveQuery,
			store:      store,
			messages:   msgs,
			nextOffset: 1,
		})
		return vfs.VfsHandle(h), nil

	default:
		return 0, ENOENT
	}
}

// StatFS returns filesystem statistics
func (q *QueryFS) StatFS(handle vfs.VfsHandle) (*vfs.FSAttributes, error) {
	attrs := &vfs.FSAttributes{}
	attrs.SetBlockSize(4096)
	attrs.SetIOSize(4096)
	attrs.SetBlocks(1000000)
	attrs.SetFreeBlocks(500000)
	attrs.SetAvailableBlocks(500000)
	attrs.SetFiles(100000)
	attrs.SetFreeFiles(50000)
	return attrs, nil
}

// --- File Management ---

// Unlink removes the entry behind an open handle.
func (q *QueryFS) Unlink(handle vfs.VfsHandle) error {
	info, ok := q.handles.Get(HandleID(handle))
	if !ok {
		return EBADF
	}
	return q.UnlinkByPath(info.path)
}

// UnlinkByPath removes a file or empty directory. A flattened message name
// removes the real message file; the index entry is left behind on purpose,
// to be reconciled by the next full index pass rather than racing it here.
func (q *QueryFS) UnlinkByPath(vfsPath string) (err error) {
	defer recoverQueryFSPanic("UnlinkByPath", &err)
	rel := common.NormalizePath(vfsPath)
	log.Debugf("[VFS] UnlinkByPath: path=%q", rel)

	if isFlatName(rel) {
		real := q.realMessagePath(common.BaseName(rel))
		if err := os.Remove(real); err != nil {
			return errnoFromOS(err)
		}
		return nil
	}

	if err := os.Remove(q.realBackingPath(rel)); err != nil {
		return errnoFromOS(err)
	}
	return nil
}

// Rename renames the entry behind an open handle. newName may be a bare name
// within the same directory or a full virtual path.
func (q *QueryFS) Rename(handle vfs.VfsHandle, newName string, flags int) error {
	info, ok := q.handles.Get(HandleID(handle))
	if !ok {
		return EBADF
	}
	var to string
	if strings.Contains(newName, "/") {
		to = common.NormalizePath(newName)
	} else if parent := common.ParentPath(info.path); parent != "" {
		to = parent + "/" + newName
	} else {
		to = newName
	}
	return q.RenamePath(info.path, to)
}

// --- Symlinks ---

// Readlink resolves the symlink behind an open handle.
func (q *QueryFS) Readlink(handle vfs.VfsHandle) (string, error) {
	info, ok := q.handles.Get(HandleID(handle))
	if !ok {
		return "", EBADF
	}
	return q.ReadlinkPath(info.path)
}

// ReadlinkPath resolves a symlink in the backing store.
func (q *QueryFS) ReadlinkPath(vfsPath string) (string, error) {
	rel := common.NormalizePath(vfsPath)
	target, err := os.Readlink(q.realBackingPath(rel))
	if err != nil {
		return "", errnoFromOS(err)
	}
	return target, nil
}

// Symlink via an open handle is not supported; links are created by path.
func (q *QueryFS) Symlink(handle vfs.VfsHandle, target string, mode int) (*vfs.Attributes, error) {
	return nil, ENOTSUP
}

// SymlinkPath creates a query symlink in the backing store. The target
// string becomes the query expression for the new directory.
func (q *QueryFS) SymlinkPath(target, vfsPath string) (*vfs.Attributes, error) {
	rel := common.NormalizePath(vfsPath)
	if rel == "" {
		return nil, EINVAL
	}
	if err := os.Symlink(target, q.realBackingPath(rel)); err != nil {
		return nil, errnoFromOS(err)
	}
	return q.GetAttrByPath(rel)
}

// Link creates hard links, which have no meaning in this tree.
func (q *QueryFS) Link(srcNode vfs.VfsNode, dstNode vfs.VfsNode, name string) (*vfs.Attributes, error) {
	return nil, ENOTSUP
}

// --- Extended Attributes (stub implementation) ---

func (q *QueryFS) Listxattr(handle vfs.VfsHandle) ([]string, error) {
	return []string{}, nil
}

func (q *QueryFS) Getxattr(handle vfs.VfsHandle, name string, buf []byte) (int, error) {
	return 0, ENOTSUP
}

func (q *QueryFS) Setxattr(handle vfs.VfsHandle, name string, value []byte) error {
	return ENOTSUP
}

func (q *QueryFS) Removexattr(handle vfs.VfsHandle, name string) error {
	return ENOTSUP
}
