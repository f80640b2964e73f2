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

//go:build !smb

package vfs

import (
	"time"

	smbvfs "github.com/macos-fuse-t/go-smb2/vfs"
)

// NfsVfsHandle aliases the engine's handle type so the NFS adapter does not
// have to import the SMB packages directly.
type NfsVfsHandle = smbvfs.VfsHandle

// EntryView is the flattened attribute view the NFS adapter needs for one
// entry, whether it came from a getattr answer or a directory listing.
type EntryView struct {
	IsDir     bool
	IsSymlink bool
	Size      uint64
	Inode     uint64
	Mode      uint32
	HasMode   bool
	ModTime   time.Time
}

// ViewEntry flattens a *smbvfs.Attributes or *smbvfs.DirInfo into an
// EntryView. ok is false for anything else, including nil.
func ViewEntry(v any) (view EntryView, ok bool) {
	switch e := v.(type) {
	case *smbvfs.Attributes:
		return viewAttributes(e), true
	case *smbvfs.DirInfo:
		return viewAttributes(&e.Attributes), true
	}
	return EntryView{}, false
}

func viewAttributes(a *smbvfs.Attributes) EntryView {
	view := EntryView{
		IsDir:     a.GetFileType() == smbvfs.FileTypeDirectory,
		IsSymlink: a.GetFileType() == smbvfs.FileTypeSymlink,
		Inode:     a.GetInodeNumber(),
	}
	view.Size, _ = a.GetSizeBytes()
	view.Mode, view.HasMode = a.GetUnixMode()
	view.ModTime, _ = a.GetLastDataModificationTime()
	return view
}

// NewAttrsWithMode builds the attribute argument for a chmod-style SetAttr.
func NewAttrsWithMode(mode uint32) *smbvfs.Attributes {
	attrs := &smbvfs.Attributes{}
	attrs.SetUnixMode(mode)
	return attrs
}
