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
)

// VFS error codes mapped to syscall errors. These are the engine's
// caller-facing vocabulary: the NFS and SMB bridges translate them onto the
// wire unchanged.
var (
	ENOENT  = syscall.ENOENT  // No such file or directory
	ENOTDIR = syscall.ENOTDIR // Not a directory
	EISDIR  = syscall.EISDIR  // Is a directory
	EBADF   = syscall.EBADF   // Bad file descriptor
	EINVAL  = syscall.EINVAL  // Invalid argument
	ENOTSUP = syscall.ENOTSUP // Operation not supported (rename shape)
	EIO     = syscall.EIO     // I/O error (index operation failed)
	EACCES  = syscall.EACCES  // Permission denied (non-read-only open)
	EROFS   = syscall.EROFS   // Read-only file system
	ELOOP   = syscall.ELOOP   // Too many levels of symbolic links
	EDOM    = syscall.EDOM    // Discontiguous directory read offset
)

// errnoFromOS maps an error from the real filesystem onto the errno
// vocabulary. Passthrough operations report native codes unchanged.
func errnoFromOS(err error) error {
	if err == nil {
		return nil
	}
	if errno, ok := err.(syscall.Errno); ok {
		return errno
	}
	if pathErr, ok := err.(*os.PathError); ok {
		if errno, ok := pathErr.Err.(syscall.Errno); ok {
			return errno
		}
	}
	if linkErr, ok := err.(*os.LinkError); ok {
		if errno, ok := linkErr.Err.(syscall.Errno); ok {
			return errno
		}
	}
	switch {
	case os.IsNotExist(err):
		return ENOENT
	case os.IsPermission(err):
		return EACCES
	default:
		return EIO
	}
}
