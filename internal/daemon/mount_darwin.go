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

//go:build darwin

package daemon

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	log "github.com/sirupsen/logrus"
)

// NFSMount mounts the local NFS export at the given path.
func NFSMount(ip string, port int, mountPath string) error {
	if err := os.MkdirAll(mountPath, 0755); err != nil {
		return fmt.Errorf("failed to create mount point: %w", err)
	}

	// noac keeps attribute caching off so query results refresh on every
	// listing. soft,timeo=50,retrans=3 bounds how long the kernel retries a
	// dead server, preventing zombie mounts that survive daemon crashes.
	// nobrowse hides the mount from Finder and Spotlight.
	cmd := exec.Command("mount_nfs",
		"-o", fmt.Sprintf("port=%d,mountport=%d,tcp,nolocks,vers=3,rsize=65536,wsize=65536,noac,soft,timeo=50,retrans=3,nobrowse", port, port),
		fmt.Sprintf("%s:/", ip),
		mountPath,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("mount_nfs failed: %w: %s", err, string(output))
	}
	return nil
}

// SMBMount mounts an SMB share at the given path, for the smb build variant.
func SMBMount(port int, shareName, mountPath string) error {
	if err := os.MkdirAll(mountPath, 0755); err != nil {
		return fmt.Errorf("failed to create mount point: %w", err)
	}

	url := fmt.Sprintf("//Guest@127.0.0.1:%d/%s", port, shareName)
	cmd := exec.Command("mount_smbfs", "-N", "-o", "nobrowse,nostreams", url, mountPath)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("mount_smbfs failed: %w: %s", err, string(output))
	}
	return nil
}

// unmountTimeout is the maximum time to wait for each unmount attempt.
// After the server is shut down, the kernel client may block unmount
// commands while it waits for the server to respond.
const unmountTimeout = 3 * time.Second

// Unmount unmounts a filesystem
func Unmount(mountPath string) error {
	if !IsMounted(mountPath) {
		log.Debugf("[daemon] %s is not mounted, nothing to do", mountPath)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), unmountTimeout)
	cmd := exec.CommandContext(ctx, "diskutil", "unmount", mountPath)
	output, err := cmd.CombinedOutput()
	cancel()
	if err == nil {
		return nil
	}
	log.Debugf("[daemon] diskutil unmount failed: %v: %s", err, string(output))

	ctx, cancel = context.WithTimeout(context.Background(), unmountTimeout)
	cmd = exec.CommandContext(ctx, "umount", mountPath)
	output, err = cmd.CombinedOutput()
	cancel()
	if err == nil {
		return nil
	}
	log.Debugf("[daemon] umount failed: %v: %s", err, string(output))

	ctx, cancel = context.WithTimeout(context.Background(), unmountTimeout)
	cmd = exec.CommandContext(ctx, "umount", "-f", mountPath)
	output, err = cmd.CombinedOutput()
	cancel()
	if err != nil {
		return fmt.Errorf("all unmount attempts failed for %s: %w: %s", mountPath, err, string(output))
	}
	return nil
}

// IsMounted checks if a path is a mount point by scanning the mount table.
func IsMounted(mountPath string) bool {
	output, err := exec.Command("mount").Output()
	if err != nil {
		return false
	}
	scanner := bufio.NewScanner(bytes.NewReader(output))
	needle := []byte(" on " + mountPath + " ")
	for scanner.Scan() {
		if bytes.Contains(scanner.Bytes(), needle) {
			return true
		}
	}
	return false
}
