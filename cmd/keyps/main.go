// Copyright (c) 2026 Keymaster Team
// keyps - authorized_keys synchronization agent
// This source code is licensed under the MIT license found in the LICENSE file.

// Command keyps keeps an authorized_keys file in sync with public keys
// published by GitHub, GitLab, SourceHut or any HTTP(S) URL.
//
// Usage:
//
//	keyps -s github:alice -s gitlab:bob [-f ~/.ssh/authorized_keys] [-i 30s]
//	keyps once -s github:alice
//	keyps clean
//
// See --help for all options.
package main

import (
	"context"
	"os"

	"github.com/toeirei/keyps/internal/logging"
)

func main() {
	if err := NewRootCmd().ExecuteContext(context.Background()); err != nil {
		logging.L.Error(err.Error())
		os.Exit(1)
	}
}
