// Copyright (c) 2026 Keymaster Team
// keyps - authorized_keys synchronization agent
// This source code is licensed under the MIT license found in the LICENSE file.

// Package keyfile edits the keyps-managed block of an authorized_keys file.
//
// The block is delimited by StartMarker and EndMarker lines. Everything
// outside it (the preamble) belongs to whoever else edits the file and is
// passed through untouched. All functions here are pure.
package keyfile // import "github.com/toeirei/keyps/internal/keyfile"

import "strings"

const (
	StartMarker = "# keyps: START"
	EndMarker   = "# keyps: END"
)

// SplitLines splits file content into lines. A single trailing newline does
// not produce an empty last line, so content with and without it splits
// the same way. Empty content yields no lines.
func SplitLines(content string) []string {
	if content == "" {
		return nil
	}
	content = strings.TrimSuffix(content, "\n")
	return strings.Split(content, "\n")
}

// JoinLines is the inverse of SplitLines. Non-empty output always ends with
// a newline.
func JoinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// ExtractPreamble returns lines with the managed block removed, markers
// included. A start marker without a matching end marker swallows the rest
// of the file, so partial managed content never leaks into the preamble.
func ExtractPreamble(lines []string) []string {
	out := make([]string, 0, len(lines))
	inside := false
	for _, line := range lines {
		switch {
		case !inside && line == StartMarker:
			inside = true
		case inside && line == EndMarker:
			inside = false
		case !inside:
			out = append(out, line)
		}
	}
	return out
}

// RemoveManagedBlock strips the managed block. It is what shutdown applies
// to the file.
func RemoveManagedBlock(lines []string) []string {
	return ExtractPreamble(lines)
}

// ManagedKeys returns the lines currently inside the managed block, in
// file order. An unterminated block runs to the end of the file.
func ManagedKeys(lines []string) []string {
	var out []string
	inside := false
	for _, line := range lines {
		switch {
		case !inside && line == StartMarker:
			inside = true
		case inside && line == EndMarker:
			inside = false
		case inside:
			out = append(out, line)
		}
	}
	return out
}

// HasManagedBlock reports whether lines contain a start marker.
func HasManagedBlock(lines []string) bool {
	for _, line := range lines {
		if line == StartMarker {
			return true
		}
	}
	return false
}

// Upsert appends a fresh managed block holding keys to preamble. Keys that
// already appear verbatim anywhere in the preamble are left out so a key
// added by hand is never duplicated. Marker lines are never emitted as
// keys. The result shares no memory with preamble.
func Upsert(preamble, keys []string) []string {
	present := make(map[string]struct{}, len(preamble)+2)
	for _, line := range preamble {
		present[line] = struct{}{}
	}
	present[StartMarker] = struct{}{}
	present[EndMarker] = struct{}{}

	out := make([]string, 0, len(preamble)+len(keys)+2)
	out = append(out, preamble...)
	out = append(out, StartMarker)
	for _, key := range keys {
		if _, ok := present[key]; ok {
			continue
		}
		present[key] = struct{}{}
		out = append(out, key)
	}
	return append(out, EndMarker)
}

// Dedupe returns keys with repeats removed, keeping the first occurrence of
// each exact line.
func Dedupe(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}

// Render computes the new file content for keys given the current content.
func Render(content string, keys []string) string {
	return JoinLines(Upsert(ExtractPreamble(SplitLines(content)), keys))
}

// Strip computes the file content with the managed block removed.
func Strip(content string) string {
	return JoinLines(RemoveManagedBlock(SplitLines(content)))
}
