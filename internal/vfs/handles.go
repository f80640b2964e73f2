package vfs

import (
	"os"
	"sync"

	"mqfs/internal/index"
)

// HandleID is the type for VFS handles
type HandleID uint64

// DirKind classifies what an open directory handle enumerates.
type DirKind int

const (
	// DirKindEmpty lists only "." and ".." (virtual new/ and tmp/ dirs).
	DirKindEmpty DirKind = iota
	// DirKindBacking lists a snapshot of a real backing-store directory.
	DirKindBacking
	// DirKindMaildirRoot lists the pseudo-maildir skeleton: cur, new, tmp.
	DirKindMaildirRoot
	// DirKindLiveQuery lists the flattened filenames of a query's matches.
	// The handle pins an index database handle open until Close.
	DirKindLiveQuery
)

// openHandle represents an open file or directory
type openHandle struct {
	mu    sync.Mutex // guards directory enumeration state
	path  string     // path within the VFS (relative)
	isDir bool

	// Directory state
	kind       DirKind
	realDir    string        // real path behind a backing directory
	entries    []os.DirEntry // snapshot taken at OpenDir for backing dirs
	store      *index.Store  // pinned open for live-query handles
	messages   []*index.Message
	cursor     int   // next unconsumed message in messages
	nextOffset int64 // expected offset of the next ReadDir call

	// File state
	file   *os.File
	header []byte // synthetic label header, nil for passthrough files
}

// HandleManager manages VFS handles
type HandleManager struct {
	mu         sync.RWMutex
	handles    map[HandleID]*openHandle
	nextHandle HandleID
}

// NewHandleManager creates a new handle manager
func NewHandleManager() *HandleManager {
	return &HandleManager{
		handles:    make(map[HandleID]*openHandle),
		nextHandle: 1,
	}
}

// AllocateDir creates a handle for an open directory.
func (hm *HandleManager) AllocateDir(path string, info *openHandle) HandleID {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	handle := hm.nextHandle
	hm.nextHandle++

	info.path = path
	info.isDir = true
	if info.nextOffset == 0 {
		info.nextOffset = 1
	}
	hm.handles[handle] = info
	return handle
}

// AllocateFile creates a handle for an open file. header is nil for
// passthrough opens and a full synthetic header block for message opens.
func (hm *HandleManager) AllocateFile(path string, f *os.File, header []byte) HandleID {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	handle := hm.nextHandle
	hm.nextHandle++

	hm.handles[handle] = &openHandle{
		path:   path,
		file:   f,
		header: header,
	}
	return handle
}

// Get retrieves a handle's info
func (hm *HandleManager) Get(h HandleID) (*openHandle, bool) {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	info, ok := hm.handles[h]
	return info, ok
}

// Release frees a handle
func (hm *HandleManager) Release(h HandleID) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	delete(hm.handles, h)
}

// Count returns the number of live handles.
func (hm *HandleManager) Count() int {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	return len(hm.handles)
}
