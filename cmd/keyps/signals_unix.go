// Copyright (c) 2026 Keymaster Team
// keyps - authorized_keys synchronization agent
// This source code is licensed under the MIT license found in the LICENSE file.

//go:build !windows

package main

import (
	"os"
	"syscall"
)

var watchedSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP}

func isReload(sig os.Signal) bool { return sig == syscall.SIGHUP }
