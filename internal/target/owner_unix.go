//go:build !windows
// +build !windows

// Copyright (c) 2026 Keymaster Team
// keyps - authorized_keys synchronization agent
// This source code is licensed under the MIT license found in the LICENSE file.

package target

import (
	"os"
	"syscall"
)

// preserveOwner gives f the uid/gid of existing. sshd's StrictModes rejects
// an authorized_keys file owned by the wrong user, which would happen when
// keyps runs as root against another user's file.
func preserveOwner(f *os.File, existing os.FileInfo) error {
	st, ok := existing.Sys().(*syscall.Stat_t)
	if !ok {
		return nil
	}
	if int(st.Uid) == os.Geteuid() && int(st.Gid) == os.Getegid() {
		return nil
	}
	return f.Chown(int(st.Uid), int(st.Gid))
}
