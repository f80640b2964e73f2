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

package commands

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"mqfs/internal/daemon"
	"mqfs/internal/index"
	"mqfs/internal/util"
	"mqfs/internal/vfs"
)

var mountCmd = &cobra.Command{
	Use:   "mount <mount-point>",
	Short: "Mount the query filesystem",
	Long: `Serves the query filesystem on a local port and mounts it at the given
mount point. Runs in the foreground until interrupted; SIGINT or SIGTERM
unmounts and shuts the server down.

Examples:
  mqfs mount ~/mail/queries -b ~/mail/.queries -m ~/mail
  mqfs mount /mnt/queries --backing-dir /srv/queries --mail-dir /srv/mail --mutt-workaround`,
	Args: cobra.ExactArgs(1),
	RunE: runMount,
}

var (
	mountBackingDir   string
	mountMailDir      string
	mountDBPath       string
	mountMutt         bool
	mountHeaderBudget int
	mountPort         int
)

func init() {
	rootCmd.AddCommand(mountCmd)
	mountCmd.Flags().StringVarP(&mountBackingDir, "backing-dir", "b", "", "Directory whose entries name the queries (required)")
	mountCmd.Flags().StringVarP(&mountMailDir, "mail-dir", "m", "", "Mail root the index filenames are relative to (required)")
	mountCmd.Flags().StringVar(&mountDBPath, "db", "", "Index database path (default <mail-dir>/.mqfs/index.db)")
	mountCmd.Flags().BoolVar(&mountMutt, "mutt-workaround", false, "Treat names under new/ as living under cur/")
	mountCmd.Flags().IntVar(&mountHeaderBudget, "header-budget", 0, "Synthetic header block size in bytes")
	mountCmd.Flags().IntVar(&mountPort, "port", 0, "Local port to serve on (0 picks a free port)")
	mountCmd.MarkFlagRequired("backing-dir")
	mountCmd.MarkFlagRequired("mail-dir")
}

func runMount(cmd *cobra.Command, args []string) error {
	mountPoint, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("failed to resolve mount point: %w", err)
	}
	backingDir, err := filepath.Abs(mountBackingDir)
	if err != nil {
		return fmt.Errorf("failed to resolve backing dir: %w", err)
	}
	mailDir, err := filepath.Abs(mountMailDir)
	if err != nil {
		return fmt.Errorf("failed to resolve mail dir: %w", err)
	}
	for _, dir := range []string{backingDir, mailDir} {
		fi, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("cannot stat %s: %w", dir, err)
		}
		if !fi.IsDir() {
			return fmt.Errorf("%s is not a directory", dir)
		}
	}

	dbPath := mountDBPath
	if dbPath == "" {
		dbPath = filepath.Join(mailDir, ".mqfs", "index.db")
	}
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("index database not found at %s (run \"mqfs index init\" first): %w", dbPath, err)
	}

	settings, err := daemon.LoadSettings()
	if err != nil {
		return err
	}
	mutt := mountMutt || settings.MuttWorkaroundEnabled()
	headerBudget := mountHeaderBudget
	if headerBudget == 0 {
		headerBudget = settings.HeaderBudget
	}
	port := mountPort
	if port == 0 {
		port = settings.Port
	}

	idx, err := index.NewContext(dbPath, mailDir)
	if err != nil {
		return err
	}
	engine, err := vfs.NewQueryFS(vfs.Config{
		BackingDir:     backingDir,
		MailDir:        mailDir,
		MuttWorkaround: mutt,
		HeaderBudget:   headerBudget,
		Hide:           daemon.BuildHideFilter(settings.Hide),
	}, idx)
	if err != nil {
		return err
	}

	if port == 0 {
		port, err = pickFreePort()
		if err != nil {
			return err
		}
	}
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	session := uuid.NewString()
	logger := log.WithFields(log.Fields{"session": session, "addr": addr})
	logger.Infof("serving %s queries over %s", backingDir, daemon.NetFSType())

	server := daemon.NewNetFSServer(engine)
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(addr)
	}()

	if err := waitForServer(addr); err != nil {
		server.Shutdown()
		return err
	}
	if err := daemon.MountNetFS("127.0.0.1", port, mountPoint); err != nil {
		server.Shutdown()
		return err
	}
	logger.Infof("mounted at %s", mountPoint)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		logger.Infof("received %v, unmounting", s)
	case err := <-serveErr:
		logger.Errorf("server stopped: %v", err)
	}

	if err := daemon.UnmountNetFS(mountPoint); err != nil {
		logger.Warnf("unmount failed: %v", err)
	}
	server.Shutdown()
	if n := engine.OpenHandles(); n > 0 {
		logger.Warnf("shut down with %d handles still open", n)
	} else {
		logger.Info("shut down")
	}
	return nil
}

// pickFreePort asks the kernel for an unused local port.
func pickFreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("failed to pick a port: %w", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port, nil
}

// waitForServer blocks until the server accepts connections on addr.
func waitForServer(addr string) error {
	return util.Retry(func() error {
		conn, err := net.DialTimeout("tcp", addr, time.Second)
		if err != nil {
			return err
		}
		conn.Close()
		return nil
	},
		retry.Attempts(20),
		retry.Delay(100*time.Millisecond),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
}
