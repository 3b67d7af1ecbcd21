// Copyright (c) 2026 Keymaster Team
// keyps - authorized_keys synchronization agent
// This source code is licensed under the MIT license found in the LICENSE file.

//go:build windows

package main

import "os"

var watchedSignals = []os.Signal{os.Interrupt}

func isReload(os.Signal) bool { return false }
