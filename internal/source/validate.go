// Copyright (c) 2026 Keymaster Team
// keyps - authorized_keys synchronization agent
// This source code is licensed under the MIT license found in the LICENSE file.

package source

import (
	"errors"
	"strings"
)

// ErrNoSources is returned by Validate when no specification was given.
var ErrNoSources = errors.New("no sources specified")

// InvalidSourcesError lists every specification that failed to parse.
type InvalidSourcesError struct {
	Sources []Identifier
}

func (e *InvalidSourcesError) Error() string {
	raw := make([]string, 0, len(e.Sources))
	for _, s := range e.Sources {
		raw = append(raw, "\""+s.String()+"\"")
	}
	return "invalid sources specified: " + strings.Join(raw, ", ")
}

// ParseAll parses every specification, keeping order and duplicates.
func ParseAll(raws []string) []Identifier {
	ids := make([]Identifier, 0, len(raws))
	for _, raw := range raws {
		ids = append(ids, Parse(strings.TrimSpace(raw)))
	}
	return ids
}

// Validate parses the specifications and rejects the configuration if it
// is empty or contains any Invalid entry. Repeated identifiers are
// collapsed, keeping the first occurrence.
func Validate(raws []string) ([]Identifier, error) {
	ids := ParseAll(raws)
	if len(ids) == 0 {
		return nil, ErrNoSources
	}

	var invalid []Identifier
	seen := make(map[Identifier]struct{}, len(ids))
	out := make([]Identifier, 0, len(ids))
	for _, id := range ids {
		if !id.Valid() {
			invalid = append(invalid, id)
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if len(invalid) > 0 {
		return nil, &InvalidSourcesError{Sources: invalid}
	}
	return out, nil
}
