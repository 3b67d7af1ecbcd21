// Copyright (c) 2026 Keymaster Team
// keyps - authorized_keys synchronization agent
// This source code is licensed under the MIT license found in the LICENSE file.

// Package target reads and atomically replaces the authorized_keys file
// keyps manages, either on the local filesystem or on a remote host over
// SFTP.
package target // import "github.com/toeirei/keyps/internal/target"

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Target is the file a reconciliation cycle reads and rewrites.
type Target interface {
	// Read returns the full current content.
	Read(ctx context.Context) (string, error)
	// Write replaces the full content. Implementations must never leave a
	// partially written file in place.
	Write(ctx context.Context, content string) error
	// String names the target in logs.
	String() string
}

// DefaultRelPath is searched for by FindUp when no file is configured.
const DefaultRelPath = ".ssh/authorized_keys"

// ErrNotFound is wrapped by errors describing a missing target.
var ErrNotFound = errors.New("authorized_keys file not found")

// NotFoundError lists the locations that were checked.
type NotFoundError struct {
	SearchPaths []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("unable to locate authorized_keys file at the following paths: %s", strings.Join(e.SearchPaths, ", "))
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// FindUp walks from start towards the filesystem root and returns the
// first existing start/.../rel.
func FindUp(start, rel string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", start, err)
	}

	var searched []string
	for {
		candidate := filepath.Join(dir, rel)
		searched = append(searched, candidate)
		if fi, err := os.Stat(candidate); err == nil && !fi.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", &NotFoundError{SearchPaths: searched}
		}
		dir = parent
	}
}

// Options configures how Open reaches remote targets.
type Options struct {
	SSH SSHOptions
}

// Open returns the Target for spec. "sftp://user@host[:port]/path" selects
// a remote target; anything else is a local path that must already exist.
// An empty spec triggers FindUp from the working directory.
func Open(spec string, opts Options) (Target, error) {
	if strings.HasPrefix(spec, "sftp://") {
		return NewSFTPFile(spec, opts.SSH)
	}
	if spec == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("get working directory: %w", err)
		}
		found, err := FindUp(wd, DefaultRelPath)
		if err != nil {
			return nil, err
		}
		spec = found
	}
	return NewLocalFile(spec)
}
