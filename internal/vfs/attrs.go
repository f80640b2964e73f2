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
	"os"
	"syscall"

	"github.com/macos-fuse-t/go-smb2/vfs"
)

// fileInfoToAttributes converts os.FileInfo from the real filesystem into
// vfs.Attributes. extraSize inflates the reported size, used for message
// files that carry the synthetic header block in front of the real content.
func fileInfoToAttributes(info os.FileInfo, vfsPath string, extraSize uint64) *vfs.Attributes {
	attrs := &vfs.Attributes{}

	ino := inodeFor(info, vfsPath)
	attrs.SetFileHandle(vfs.VfsNode(ino))
	attrs.SetInodeNumber(ino)
	attrs.SetSizeBytes(uint64(info.Size()) + extraSize)
	attrs.SetLinkCount(1)
	attrs.SetUID(uint32(os.Getuid()))
	attrs.SetGID(uint32(os.Getgid()))
	attrs.SetPermissions(vfs.NewPermissionsFromMode(uint32(info.Mode())))
	attrs.SetUnixMode(uint32(info.Mode()) & 0777)
	attrs.SetLastDataModificationTime(info.ModTime())
	attrs.SetLastStatusChangeTime(info.ModTime())
	attrs.SetAccessTime(info.ModTime())
	attrs.SetBirthTime(info.ModTime())
	attrs.SetChangeID(uint64(info.ModTime().UnixNano()))

	if info.IsDir() {
		attrs.SetFileType(vfs.FileTypeDirectory)
	} else if info.Mode()&os.ModeSymlink != 0 {
		attrs.SetFileType(vfs.FileTypeSymlink)
	} else {
		attrs.SetFileType(vfs.FileTypeRegularFile)
	}

	return attrs
}

// dirInfoFromFileInfo builds a directory listing entry from real file info.
func dirInfoFromFileInfo(name string, info os.FileInfo, vfsPath string, extraSize uint64) vfs.DirInfo {
	return vfs.DirInfo{
		Name:       name,
		Attributes: *fileInfoToAttributes(info, vfsPath, extraSize),
	}
}

// inodeFor returns the real inode number when the platform exposes it,
// falling back to a hash of the virtual path.
func inodeFor(info os.FileInfo, vfsPath string) uint64 {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return uint64(st.Ino)
	}
	return hashPathToInode(vfsPath)
}

// hashPathToInode generates a deterministic inode number from a path
// High bit is set to distinguish from real inodes
func hashPathToInode(path string) uint64 {
	const fnvPrime = 1099511628211
	const fnvOffset = 14695981039346656037
	hash := uint64(fnvOffset)
	for i := 0; i < len(path); i++ {
		hash ^= uint64(path[i])
		hash *= fnvPrime
	}
	return hash | 0x8000000000000000
}
