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
	"io"
	"os"

	"github.com/macos-fuse-t/go-smb2/vfs"
	log "github.com/sirupsen/logrus"
)

// ReadDir enumerates an open directory handle. Offsets are positions in the
// enumeration stream. Live-query and empty directories additionally enforce
// contiguity: a resumed read whose offset does not continue exactly where
// the previous one stopped fails with EDOM rather than silently skipping or
// repeating entries, because the underlying result cursor cannot seek.
func (q *QueryFS) ReadDir(handle vfs.VfsHandle, offset int, count int) (entries []vfs.DirInfo, err error) {
	defer recoverQueryFSPanic("ReadDir", &err)
	log.Debugf("[VFS] ReadDir: handle=%d offset=%d count=%d", handle, offset, count)

	info, ok := q.handles.Get(HandleID(handle))
	if !ok {
		return nil, EBADF
	}
	if !info.isDir {
		return nil, ENOTDIR
	}

	info.mu.Lock()
	defer info.mu.Unlock()

	switch info.kind {
	case DirKindEmpty:
		return q.readEmptyDir(info, offset)
	case DirKindMaildirRoot:
		return q.readMaildirRoot(info, offset)
	case DirKindBacking:
		return q.readBackingDir(info, offset, count)
	case DirKindLiveQuery:
		return q.readLiveQueryDir(info, offset, count)
	}
	return nil, EIO
}

// dotEntries builds the "." and ".." entries for a directory handle.
func (q *QueryFS) dotEntries(info *openHandle) ([]vfs.DirInfo, error) {
	attrs, err := q.GetAttrByPath(info.path)
	if err != nil {
		return nil, err
	}
	return []vfs.DirInfo{
		{Name: ".", Attributes: *attrs},
		{Name: "..", Attributes: *attrs},
	}, nil
}

// readEmptyDir lists the virtual new/ and tmp/ directories: dots only.
func (q *QueryFS) readEmptyDir(info *openHandle, offset int) ([]vfs.DirInfo, error) {
	if offset == 0 {
		dots, err := q.dotEntries(info)
		if err != nil {
			return nil, err
		}
		info.nextOffset = 3
		return dots, nil
	}
	if int64(offset)+1 != info.nextOffset {
		return nil, EDOM
	}
	return nil, io.EOF
}

// readMaildirRoot lists the pseudo-maildir skeleton of a query directory.
func (q *QueryFS) readMaildirRoot(info *openHandle, offset int) ([]vfs.DirInfo, error) {
	if offset != 0 {
		return nil, io.EOF
	}
	dots, err := q.dotEntries(info)
	if err != nil {
		return nil, err
	}
	// Pseudo subdirectories borrow the query directory's attributes, same
	// as GetAttrByPath reports for them.
	dirAttrs := dots[0].Attributes
	entries := dots
	for _, name := range []string{"cur", "new", "tmp"} {
		entries = append(entries, vfs.DirInfo{Name: name, Attributes: dirAttrs})
	}
	return entries, nil
}

// readBackingDir lists the snapshot of a real backing directory taken at
// OpenDir time. Offsets index into the snapshot, so arbitrary resume
// positions are honored.
func (q *QueryFS) readBackingDir(info *openHandle, offset int, count int) ([]vfs.DirInfo, error) {
	dirFI, err := os.Stat(info.realDir)
	if err != nil {
		return nil, errnoFromOS(err)
	}

	all := []vfs.DirInfo{
		dirInfoFromFileInfo(".", dirFI, info.path, 0),
		dirInfoFromFileInfo("..", dirFI, info.path, 0),
	}
	for _, e := range info.entries {
		if info.path == "" && q.isHidden(e.Name()) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			log.Warnf("[VFS] ReadDir: skipping unreadable entry %q: %v", e.Name(), err)
			continue
		}
		vfsPath := e.Name()
		if info.path != "" {
			vfsPath = info.path + "/" + e.Name()
		}
		all = append(all, dirInfoFromFileInfo(e.Name(), fi, vfsPath, 0))
	}

	if offset >= len(all) {
		return nil, io.EOF
	}
	out := all[offset:]
	if count > 0 && len(out) > count {
		out = out[:count]
	}
	return out, nil
}

// readLiveQueryDir streams the flattened names of the query's matches. The
// result cursor advances monotonically; entries whose real file has vanished
// since the query ran are skipped with a warning rather than failing the
// listing. A bounded read that fills up leaves the cursor on the first
// unreturned message.
func (q *QueryFS) readLiveQueryDir(info *openHandle, offset int, count int) ([]vfs.DirInfo, error) {
	var out []vfs.DirInfo

	if offset == 0 {
		dots, err := q.dotEntries(info)
		if err != nil {
			return nil, err
		}
		out = append(out, dots...)
		info.nextOffset = 3
	} else if int64(offset)+1 != info.nextOffset {
		return nil, EDOM
	}

	for info.cursor < len(info.messages) {
		if count > 0 && len(out) >= count {
			break
		}
		msg := info.messages[info.cursor]
		fi, err := os.Stat(q.realMessagePath(EncodeName(msg.Filename())))
		if os.IsNotExist(err) {
			// The file vanished between the query and this read. Skip it
			// without consuming an offset slot.
			log.Warnf("[VFS] ReadDir: skipping vanished message file %q", msg.Filename())
			info.cursor++
			continue
		}
		if err != nil {
			return nil, errnoFromOS(err)
		}
		name := EncodeName(msg.Filename())
		out = append(out, dirInfoFromFileInfo(name, fi, info.path+"/"+name, uint64(q.cfg.HeaderBudget)))
		info.cursor++
		info.nextOffset++
	}

	if len(out) == 0 && offset != 0 {
		return nil, io.EOF
	}
	return out, nil
}
