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

//go:build linux

package daemon

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
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
	// dead server.
	cmd := exec.Command("mount",
		"-t", "nfs",
		"-o", fmt.Sprintf("port=%d,mountport=%d,tcp,nolock,vers=3,noac,soft,timeo=50,retrans=3", port, port),
		fmt.Sprintf("%s:/", ip),
		mountPath,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("nfs mount failed: %w: %s", err, string(output))
	}
	return nil
}

// SMBMount is not supported on linux builds.
func SMBMount(port int, shareName, mountPath string) error {
	return fmt.Errorf("smb mounting is not supported on linux")
}

// unmountTimeout is the maximum time to wait for each unmount attempt.
const unmountTimeout = 3 * time.Second

// Unmount unmounts a filesystem
func Unmount(mountPath string) error {
	if !IsMounted(mountPath) {
		log.Debugf("[daemon] %s is not mounted, nothing to do", mountPath)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), unmountTimeout)
	cmd := exec.CommandContext(ctx, "umount", mountPath)
	output, err := cmd.CombinedOutput()
	cancel()
	if err == nil {
		return nil
	}
	log.Debugf("[daemon] umount failed: %v: %s", err, string(output))

	// Lazy unmount detaches the tree even with busy handles.
	ctx, cancel = context.WithTimeout(context.Background(), unmountTimeout)
	cmd = exec.CommandContext(ctx, "umount", "-l", mountPath)
	output, err = cmd.CombinedOutput()
	cancel()
	if err != nil {
		return fmt.Errorf("all unmount attempts failed for %s: %w: %s", mountPath, err, string(output))
	}
	return nil
}

// IsMounted checks if a path is a mount point via /proc/mounts.
func IsMounted(mountPath string) bool {
	f, err := os.Open("/proc/mounts")
	if err != nil {
		return false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && fields[1] == mountPath {
			return true
		}
	}
	return false
}
