// Copyright (c) 2026 Keymaster Team
// keyps - authorized_keys synchronization agent
// This source code is licensed under the MIT license found in the LICENSE file.

// Package testutil holds in-memory doubles shared by keyps tests.
package testutil

import (
	"context"
	"fmt"
	"net/url"
	"sync"
)

// Valid public keys for tests that need parseable key material.
const (
	ValidRSAKey     = "ssh-rsa AAAAB3NzaC1yc2EAAAADAQABAAABAQDQJlMbPPckn2OGPx+z7rkrQF1nHB1BfmmHecBCYr7sL6ozZPZZnRrCNvyu5CL1JmE6Hm4t9K3hGauvgDw0hOzwz5/5OCD6R8ttKoAhekSs2kaLN3Q8pAIWknKKE6dlCJcqJo8mdOcgYUf4SQ3tafGmHXzvWMfWsMKdhH8A6R+RaYOn6KaxU7F9bPKg8QpNhKDQcw5ZgcKkjL9dYoTosXMxJ9ks9zPD3P2LLvV8rV3CdRnO0w3sboaVGmMEYPCU0Rzl1CVFLb/cOJmPNxK1xXfrDKTGDpIMAcr+xNnJwe7ClbADJxVtcBYrKKg3i1s5LZ7RE3pfmLfAOIhXMXJyVXsn test@example.com"
	ValidED25519Key = "ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAIOMqqnkVzrm0SdG6UOoqKLsabgH5C9okWi0dh2l9GKJl test@example.com"
	InvalidKey      = "not-a-valid-ssh-key"
)

// MemoryTarget is an in-memory target.Target. Set ReadErr or WriteErr to
// simulate IO failures.
type MemoryTarget struct {
	mu       sync.Mutex
	content  string
	writes   int
	ReadErr  error
	WriteErr error
}

// NewMemoryTarget returns a MemoryTarget holding content.
func NewMemoryTarget(content string) *MemoryTarget {
	return &MemoryTarget{content: content}
}

func (m *MemoryTarget) Read(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return "", m.ReadErr
	}
	return m.content, nil
}

func (m *MemoryTarget) Write(ctx context.Context, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.content = content
	m.writes++
	return nil
}

func (m *MemoryTarget) String() string { return "memory" }

// Content returns the current content.
func (m *MemoryTarget) Content() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.content
}

// Writes counts successful writes.
func (m *MemoryTarget) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// StaticFetcher answers fetches from a map keyed by URL string. URLs in
// Errors fail with the mapped error; unknown URLs fail too.
type StaticFetcher struct {
	mu     sync.Mutex
	Keys   map[string][]string
	Errors map[string]error
	calls  []string
}

func (f *StaticFetcher) Fetch(ctx context.Context, name string, u *url.URL) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, u.String())
	if err, ok := f.Errors[u.String()]; ok {
		return nil, err
	}
	keys, ok := f.Keys[u.String()]
	if !ok {
		return nil, fmt.Errorf("no fixture for %s", u)
	}
	return append([]string(nil), keys...), nil
}

// Calls returns the fetched URLs in order.
func (f *StaticFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}
