//go:build smb

package daemon

import (
	smb2 "github.com/macos-fuse-t/go-smb2/server"
	"github.com/macos-fuse-t/go-smb2/vfs"
)

func init() {
	netFSTypeName = "smb"
}

// SMBServer wraps the go-smb2 server
type SMBServer struct {
	server *smb2.Server
}

// shareName is the single share the SMB variant exposes.
const shareName = "mqfs"

// NewSMBServer creates a new SMB server for the given engine, which already
// implements the go-smb2 VFS interface directly.
func NewSMBServer(fs vfs.VFSFileSystem) *SMBServer {
	smbCfg := &smb2.ServerConfig{
		AllowGuest:  true,
		MaxIOReads:  4,
		MaxIOWrites: 4,
	}

	shares := map[string]vfs.VFSFileSystem{
		shareName: fs,
	}

	auth := &smb2.NTLMAuthenticator{
		NbDomain:   "WORKGROUP",
		NbName:     "MQFS",
		DnsName:    "mqfs.local",
		DnsDomain:  ".local",
		AllowGuest: true,
	}

	return &SMBServer{
		server: smb2.NewServer(smbCfg, auth, shares),
	}
}

// Serve starts the SMB server
func (s *SMBServer) Serve(addr string) error {
	return s.server.Serve(addr)
}

// Shutdown stops the SMB server
func (s *SMBServer) Shutdown() {
	s.server.Shutdown()
}

// NewNetFSServer builds the network filesystem server for this build
// variant (SMB version)
func NewNetFSServer(fs vfs.VFSFileSystem) NetFSServer {
	return NewSMBServer(fs)
}

// MountNetFS mounts the network filesystem (SMB version)
func MountNetFS(ip string, port int, mountPath string) error {
	return SMBMount(port, shareName, mountPath)
}

// UnmountNetFS unmounts the network filesystem
func UnmountNetFS(mountPath string) error {
	return Unmount(mountPath)
}
