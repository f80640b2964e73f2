//go:build !smb

package daemon

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"time"

	billy "github.com/go-git/go-billy/v5"
	log "github.com/sirupsen/logrus"
	nfs "github.com/willscott/go-nfs"
	nfsfile "github.com/willscott/go-nfs/file"
	nfshelper "github.com/willscott/go-nfs/helpers"

	mqfsvfs "mqfs/internal/vfs"
)

// vfsHandle is the handle type used by the VFS layer
// Uses the type exported from internal/vfs to avoid importing SMB packages
type vfsHandle = mqfsvfs.NfsVfsHandle

func init() {
	netFSTypeName = "nfs"
}

// NFSServer wraps the go-nfs server
type NFSServer struct {
	listener net.Listener
	server   *nfs.Server
	handler  nfs.Handler
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewNFSServer creates a new NFS server for the given engine
func NewNFSServer(fs *mqfsvfs.QueryFS) *NFSServer {
	// Set go-nfs log level to match daemon's log level
	if log.IsLevelEnabled(log.TraceLevel) {
		nfs.Log.SetLevel(nfs.TraceLevel)
	} else if log.IsLevelEnabled(log.DebugLevel) {
		nfs.Log.SetLevel(nfs.DebugLevel)
	}
	billyFS := NewBillyAdapter(fs)
	handler := nfshelper.NewNullAuthHandler(billyFS)
	cacheHelper := nfshelper.NewCachingHandler(handler, 65536)

	ctx, cancel := context.WithCancel(context.Background())
	server := &nfs.Server{
		Handler: cacheHelper,
		Context: ctx,
	}

	return &NFSServer{
		server:  server,
		handler: cacheHelper,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Serve starts the NFS server
func (s *NFSServer) Serve(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = listener

	return s.server.Serve(listener)
}

// Shutdown stops the NFS server gracefully
func (s *NFSServer) Shutdown() {
	// Close the listener first to stop accepting new connections
	if s.listener != nil {
		s.listener.Close()
	}

	// Settle time for in-flight NFS operations to complete after listener
	// close. The mount is removed before this shutdown call, so the kernel
	// NFS client has already disconnected.
	time.Sleep(100 * time.Millisecond)

	if s.cancel != nil {
		s.cancel()
	}

	close(s.done)
}

// NewNetFSServer builds the network filesystem server for this build
// variant (NFS version)
func NewNetFSServer(fs *mqfsvfs.QueryFS) NetFSServer {
	return NewNFSServer(fs)
}

// MountNetFS mounts the network filesystem (NFS version)
func MountNetFS(ip string, port int, mountPath string) error {
	return NFSMount(ip, port, mountPath)
}

// UnmountNetFS unmounts the network filesystem
func UnmountNetFS(mountPath string) error {
	return Unmount(mountPath)
}

// BillyAdapter adapts the query engine to the Billy filesystem interface
type BillyAdapter struct {
	fs  *mqfsvfs.QueryFS
	uid uint32 // cached os.Getuid(), read once per adapter
	gid uint32 // cached os.Getgid(), read once per adapter
}

// NewBillyAdapter creates a Billy adapter for the query engine
func NewBillyAdapter(fs *mqfsvfs.QueryFS) *BillyAdapter {
	return &BillyAdapter{
		fs:  fs,
		uid: uint32(os.Getuid()),
		gid: uint32(os.Getgid()),
	}
}

func (b *BillyAdapter) Create(filename string) (billy.File, error) {
	// The engine rejects every open that asks for write access.
	handle, err := b.fs.Open(filename, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	return &BillyFile{
		adapter: b,
		handle:  handle,
		name:    filename,
		flags:   os.O_CREATE | os.O_RDWR | os.O_TRUNC,
	}, nil
}

func (b *BillyAdapter) Open(filename string) (billy.File, error) {
	return b.OpenFile(filename, os.O_RDONLY, 0)
}

func (b *BillyAdapter) OpenFile(filename string, flag int, perm os.FileMode) (billy.File, error) {
	handle, err := b.fs.Open(filename, flag, int(perm))
	if err != nil {
		return nil, err
	}
	return &BillyFile{
		adapter: b,
		handle:  handle,
		name:    filename,
		flags:   flag,
	}, nil
}

func (b *BillyAdapter) Stat(filename string) (os.FileInfo, error) {
	attrs, err := b.fs.GetAttrByPath(filename)
	if err != nil {
		return nil, err
	}
	return b.fileInfo(path.Base(filename), attrs), nil
}

func (b *BillyAdapter) Rename(oldpath, newpath string) error {
	return b.fs.RenamePath(oldpath, newpath)
}

func (b *BillyAdapter) Remove(filename string) error {
	return b.fs.UnlinkByPath(filename)
}

func (b *BillyAdapter) Join(elem ...string) string {
	return path.Join(elem...)
}

func (b *BillyAdapter) TempFile(dir, prefix string) (billy.File, error) {
	return nil, os.ErrInvalid
}

func (b *BillyAdapter) ReadDir(dirname string) ([]os.FileInfo, error) {
	handle, err := b.fs.OpenDir(dirname)
	if err != nil {
		return nil, err
	}
	defer b.fs.Close(handle)

	entries, err := b.fs.ReadDir(handle, 0, 0)
	if err != nil && err != io.EOF {
		return nil, err
	}

	var result []os.FileInfo
	for i := range entries {
		e := &entries[i]
		if e.Name == "." || e.Name == ".." {
			continue
		}
		result = append(result, b.fileInfo(e.Name, e))
	}
	return result, nil
}

func (b *BillyAdapter) MkdirAll(filename string, perm os.FileMode) error {
	_, err := b.fs.Mkdir(filename, int(perm))
	return err
}

func (b *BillyAdapter) Lstat(filename string) (os.FileInfo, error) {
	// Stat and Lstat coincide: the engine never follows backing symlinks.
	return b.Stat(filename)
}

func (b *BillyAdapter) Symlink(target, link string) error {
	_, err := b.fs.SymlinkPath(target, link)
	return err
}

func (b *BillyAdapter) Readlink(link string) (string, error) {
	return b.fs.ReadlinkPath(link)
}

func (b *BillyAdapter) Chroot(path string) (billy.Filesystem, error) {
	return nil, os.ErrInvalid
}

func (b *BillyAdapter) Root() string {
	return "/"
}

// billy.Change interface
func (b *BillyAdapter) Chmod(name string, mode os.FileMode) error {
	handle, err := b.fs.OpenAny(name, os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	defer b.fs.Close(handle)

	attrs := mqfsvfs.NewAttrsWithMode(uint32(mode) & 0777)
	_, err = b.fs.SetAttr(handle, attrs)
	return err
}

func (b *BillyAdapter) Lchown(name string, uid, gid int) error            { return nil }
func (b *BillyAdapter) Chown(name string, uid, gid int) error             { return nil }
func (b *BillyAdapter) Chtimes(name string, atime, mtime time.Time) error { return nil }

func (b *BillyAdapter) Capabilities() billy.Capability {
	// Write capability stays off: the tree is read-only apart from the
	// rename and passthrough paths, which go through billy anyway.
	return billy.ReadCapability | billy.SeekCapability
}

type BillyFile struct {
	adapter *BillyAdapter
	handle  interface{} // vfs.VfsHandle
	name    string
	flags   int
	offset  int64
}

func (f *BillyFile) Name() string {
	return f.name
}

func (f *BillyFile) Write(p []byte) (n int, err error) {
	return f.adapter.fs.Write(f.handle.(vfsHandle), p, uint64(f.offset), 0)
}

func (f *BillyFile) Read(p []byte) (n int, err error) {
	n, err = f.adapter.fs.Read(f.handle.(vfsHandle), p, uint64(f.offset), 0)
	if err == nil {
		f.offset += int64(n)
	}
	return
}

func (f *BillyFile) ReadAt(p []byte, off int64) (n int, err error) {
	return f.adapter.fs.Read(f.handle.(vfsHandle), p, uint64(off), 0)
}

func (f *BillyFile) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		f.offset = offset
	case io.SeekCurrent:
		f.offset += offset
	case io.SeekEnd:
		attrs, err := f.adapter.fs.GetAttr(f.handle.(vfsHandle))
		if err != nil {
			return 0, err
		}
		size, _ := attrs.GetSizeBytes()
		f.offset = int64(size) + offset
	}
	return f.offset, nil
}

func (f *BillyFile) Close() error {
	return f.adapter.fs.Close(f.handle.(vfsHandle))
}

func (f *BillyFile) Lock() error {
	return nil
}

func (f *BillyFile) Unlock() error {
	return nil
}

func (f *BillyFile) Truncate(size int64) error {
	return f.adapter.fs.Truncate(f.handle.(vfsHandle), uint64(size))
}

// fileInfo flattens an engine attribute answer into a BillyFileInfo. v is
// either a *vfs.Attributes (getattr path) or a *vfs.DirInfo (listing path).
func (b *BillyAdapter) fileInfo(name string, v any) *BillyFileInfo {
	view, ok := mqfsvfs.ViewEntry(v)
	return &BillyFileInfo{name: name, view: view, hasView: ok, adapter: b}
}

type BillyFileInfo struct {
	name    string
	view    mqfsvfs.EntryView
	hasView bool
	adapter *BillyAdapter // cached uid/gid source (nil falls back to syscall)
}

func (fi *BillyFileInfo) Name() string {
	return fi.name
}

func (fi *BillyFileInfo) Size() int64 {
	return int64(fi.view.Size)
}

func (fi *BillyFileInfo) Mode() os.FileMode {
	var baseMode os.FileMode
	if fi.view.IsDir {
		baseMode = os.ModeDir
	} else if fi.view.IsSymlink {
		baseMode = os.ModeSymlink
	}
	if fi.view.HasMode {
		return baseMode | os.FileMode(fi.view.Mode&0777)
	}
	if fi.view.IsDir {
		return os.ModeDir | 0755
	}
	if fi.view.IsSymlink {
		return os.ModeSymlink | 0777
	}
	return 0644
}

func (fi *BillyFileInfo) ModTime() time.Time {
	if fi.hasView && !fi.view.ModTime.IsZero() {
		return fi.view.ModTime
	}
	return time.Now()
}

func (fi *BillyFileInfo) IsDir() bool {
	return fi.view.IsDir
}

func (fi *BillyFileInfo) Sys() interface{} {
	// go-nfs's GetInfo() only recognizes file.FileInfo or *file.FileInfo.
	uid, gid := fi.getUIDGID()
	fileid := fi.view.Inode
	if !fi.hasView {
		fileid = 1
	}
	return &nfsfile.FileInfo{
		Nlink:  1,
		UID:    uid,
		GID:    gid,
		Fileid: fileid,
	}
}

// getUIDGID returns cached uid/gid from the adapter if available, otherwise falls back to syscall.
func (fi *BillyFileInfo) getUIDGID() (uint32, uint32) {
	if fi.adapter != nil {
		return fi.adapter.uid, fi.adapter.gid
	}
	return uint32(os.Getuid()), uint32(os.Getgid())
}

var (
	_ billy.Filesystem = (*BillyAdapter)(nil)
	_ billy.Change     = (*BillyAdapter)(nil)
	_ billy.File       = (*BillyFile)(nil)
)
