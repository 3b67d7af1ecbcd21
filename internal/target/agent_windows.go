//go:build windows
// +build windows

// Copyright (c) 2026 Keymaster Team
// keyps - authorized_keys synchronization agent
// This source code is licensed under the MIT license found in the LICENSE file.

package target

import (
	"io"
	"net"
	"os"

	"github.com/Microsoft/go-winio"
	"github.com/davidmz/go-pageant"
	"golang.org/x/crypto/ssh/agent"
)

// getSSHAgent attempts to connect to a running SSH agent on Windows.
// Pageant-compatible agents are tried first, then the OpenSSH agent's named
// pipe from SSH_AUTH_SOCK or its default location. The caller owns the
// returned closer, which is nil for Pageant.
func getSSHAgent() (agent.Agent, io.Closer) {
	if pageant.Available() {
		return pageant.New(), nil
	}

	var agentConn net.Conn
	var err error
	if sshAgentSocket := os.Getenv("SSH_AUTH_SOCK"); sshAgentSocket != "" {
		agentConn, err = winio.DialPipe(sshAgentSocket, nil)
	} else {
		agentConn, err = winio.DialPipe(`\\.\pipe\openssh-ssh-agent`, nil)
	}

	if err == nil && agentConn != nil {
		return agent.NewClient(agentConn), agentConn
	}

	return nil, nil
}
