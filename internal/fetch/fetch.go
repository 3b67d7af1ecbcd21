// Copyright (c) 2026 Keymaster Team
// keyps - authorized_keys synchronization agent
// This source code is licensed under the MIT license found in the LICENSE file.

// Package fetch retrieves public key listings over HTTP(S).
package fetch // import "github.com/toeirei/keyps/internal/fetch"

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/toeirei/keyps/buildvars"
)

// DefaultTimeout bounds a single fetch when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// maxBodySize caps how much of a response body is read. Key listings are
// tiny; anything larger is almost certainly not a key file.
const maxBodySize = 1 << 20

// ErrUnexpectedStatus is wrapped by FetchError for non-2xx responses.
var ErrUnexpectedStatus = errors.New("unexpected HTTP status")

// FetchError describes a failed fetch for one source.
type FetchError struct {
	Source     string
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s (%s): %v %d", e.Source, e.URL, e.Err, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s (%s): %v", e.Source, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher retrieves key lines from a resolved endpoint.
type Fetcher interface {
	Fetch(ctx context.Context, name string, u *url.URL) ([]string, error)
}

// HTTPFetcher is the Fetcher used in production. The zero value is not
// usable; construct it with New.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

// New returns an HTTPFetcher whose requests time out after timeout. A
// non-positive timeout selects DefaultTimeout.
func New(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPFetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: "keyps/" + buildvars.VersionOrDefault("dev"),
	}
}

// NewWithClient returns an HTTPFetcher using the given client as is.
func NewWithClient(c *http.Client) *HTTPFetcher {
	return &HTTPFetcher{client: c, userAgent: "keyps/" + buildvars.VersionOrDefault("dev")}
}

// Fetch issues a single GET against u and returns the non-blank lines of
// the body. name identifies the source in errors.
func (f *HTTPFetcher) Fetch(ctx context.Context, name string, u *url.URL) ([]string, error) {
	fail := func(status int, err error) error {
		return &FetchError{Source: name, URL: u.String(), StatusCode: status, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fail(0, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/plain")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fail(0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return nil, fail(resp.StatusCode, ErrUnexpectedStatus)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fail(resp.StatusCode, fmt.Errorf("read body: %w", err))
	}
	return SplitBody(string(body)), nil
}

// SplitBody splits a response body into lines, accepting both LF and CRLF
// endings and dropping blank lines.
func SplitBody(body string) []string {
	var lines []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
