// Copyright (c) 2026 Keymaster Team
// keyps - authorized_keys synchronization agent
// This source code is licensed under the MIT license found in the LICENSE file.

// Package source parses source specifications such as "github:octocat" or
// "https://example.com/keys" and resolves them to fetch endpoints.
package source // import "github.com/toeirei/keyps/internal/source"

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Kind identifies which provider an Identifier refers to.
type Kind int

const (
	// Invalid marks a specification that could not be parsed.
	Invalid Kind = iota
	GitHub
	GitLab
	SourceHut
	HTTP
)

// String returns the specification prefix for named providers.
func (k Kind) String() string {
	switch k {
	case GitHub:
		return "github"
	case GitLab:
		return "gitlab"
	case SourceHut:
		return "sourcehut"
	case HTTP:
		return "http"
	default:
		return "invalid"
	}
}

// ErrInvalidSource is returned when an Invalid identifier is resolved.
var ErrInvalidSource = errors.New("invalid source")

// Identifier is a parsed source specification. It is comparable, so two
// identifiers naming the same provider and user are equal under ==.
//
// Value holds the username for named providers, the normalized URL for
// HTTP, and the raw input for Invalid.
type Identifier struct {
	Kind  Kind
	Value string
}

// providers maps recognized prefixes to their kind and endpoint template.
var providers = map[string]struct {
	kind     Kind
	endpoint func(username string) *url.URL
}{
	"github": {GitHub, func(u string) *url.URL {
		return &url.URL{Scheme: "https", Host: "github.com", Path: "/" + u + ".keys"}
	}},
	"gitlab": {GitLab, func(u string) *url.URL {
		return &url.URL{Scheme: "https", Host: "gitlab.com", Path: "/" + u + ".keys"}
	}},
	"sourcehut": {SourceHut, func(u string) *url.URL {
		return &url.URL{Scheme: "https", Host: "meta.sr.ht", Path: "/~" + u + ".keys"}
	}},
}

// Parse turns a specification into an Identifier. It never fails: anything
// it cannot make sense of becomes an Invalid identifier carrying raw.
func Parse(raw string) Identifier {
	prefix, rest, found := strings.Cut(raw, ":")
	if !found {
		return Identifier{Kind: Invalid, Value: raw}
	}

	if p, ok := providers[prefix]; ok {
		if p.kind == SourceHut {
			rest = strings.TrimPrefix(rest, "~")
		}
		if rest == "" {
			return Identifier{Kind: Invalid, Value: raw}
		}
		return Identifier{Kind: p.kind, Value: rest}
	}

	switch prefix {
	case "http", "https":
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" || !u.IsAbs() {
			return Identifier{Kind: Invalid, Value: raw}
		}
		return Identifier{Kind: HTTP, Value: u.String()}
	}

	return Identifier{Kind: Invalid, Value: raw}
}

// MustParse is like Parse but panics on Invalid. Intended for tests and
// static tables.
func MustParse(raw string) Identifier {
	id := Parse(raw)
	if !id.Valid() {
		panic(fmt.Sprintf("source: invalid specification %q", raw))
	}
	return id
}

// Valid reports whether the identifier can be resolved.
func (id Identifier) Valid() bool {
	return id.Kind != Invalid
}

// Resolve returns the endpoint keys are fetched from. It returns
// ErrInvalidSource for Invalid identifiers.
func (id Identifier) Resolve() (*url.URL, error) {
	if p, ok := providers[id.Kind.String()]; ok {
		return p.endpoint(id.Value), nil
	}
	if id.Kind == HTTP {
		u, err := url.Parse(id.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidSource, id.Value, err)
		}
		return u, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidSource, id.Value)
}

// String formats the identifier back into specification form.
func (id Identifier) String() string {
	switch id.Kind {
	case GitHub, GitLab, SourceHut:
		return id.Kind.String() + ":" + id.Value
	default:
		return id.Value
	}
}

// MarshalText implements encoding.TextMarshaler.
func (id Identifier) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Invalid input is
// accepted and yields an Invalid identifier.
func (id *Identifier) UnmarshalText(text []byte) error {
	*id = Parse(string(text))
	return nil
}
