// Copyright (c) 2026 Keymaster Team
// keyps - authorized_keys synchronization agent
// This source code is licensed under the MIT license found in the LICENSE file.

package target

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalFile is an authorized_keys file on the local filesystem.
type LocalFile struct {
	path string
}

// NewLocalFile resolves path (following symlinks, so the real file is
// replaced rather than the link) and checks that it exists.
func NewLocalFile(path string) (*LocalFile, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("%w at %q: %v", ErrNotFound, path, err)
	}
	fi, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("%w at %q: %v", ErrNotFound, path, err)
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%w at %q: is a directory", ErrNotFound, path)
	}
	return &LocalFile{path: resolved}, nil
}

// Path returns the resolved path.
func (f *LocalFile) Path() string { return f.path }

func (f *LocalFile) String() string { return f.path }

// Read returns the current file content.
func (f *LocalFile) Read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", f.path, err)
	}
	return string(data), nil
}

// Write replaces the file by writing a temporary file in the same
// directory and renaming it into place. Mode and, where supported, owner
// of the existing file are carried over.
func (f *LocalFile) Write(ctx context.Context, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	mode := os.FileMode(0o600)
	existing, statErr := os.Stat(f.path)
	if statErr == nil {
		mode = existing.Mode().Perm()
	}

	dir, base := filepath.Split(f.path)
	tmp, err := os.CreateTemp(dir, "."+base+".keyps.*")
	if err != nil {
		return fmt.Errorf("create temporary file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write temporary file %s: %w", tmpPath, err)
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("chmod temporary file %s: %w", tmpPath, err)
	}
	if statErr == nil {
		if err := preserveOwner(tmp, existing); err != nil {
			tmp.Close()
			cleanup()
			return fmt.Errorf("chown temporary file %s: %w", tmpPath, err)
		}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync temporary file %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temporary file %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, f.path); err != nil {
		cleanup()
		return fmt.Errorf("rename %s to %s: %w", tmpPath, f.path, err)
	}
	return nil
}
