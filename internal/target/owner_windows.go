//go:build windows
// +build windows

// Copyright (c) 2026 Keymaster Team
// keyps - authorized_keys synchronization agent
// This source code is licensed under the MIT license found in the LICENSE file.

package target

import "os"

// preserveOwner is a no-op on Windows; ACLs are inherited from the
// directory the temporary file is created in.
func preserveOwner(*os.File, os.FileInfo) error { return nil }
