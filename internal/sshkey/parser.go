// Copyright (c) 2026 Keymaster Team
// keyps - authorized_keys synchronization agent
// This source code is licensed under the MIT license found in the LICENSE file.

// Package sshkey inspects authorized_keys lines. keyps treats key lines as
// opaque strings; this package is only consulted in strict mode and for
// diagnostics.
package sshkey // import "github.com/toeirei/keyps/internal/sshkey"

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/ssh"
)

// Parse splits a raw public key string (like one from an authorized_keys file)
// into its three core components: algorithm, key data, and comment.
// It correctly handles leading options in the line (e.g., from="...",command="...").
func Parse(rawKey string) (algorithm, keyData, comment string, err error) {
	fields := strings.Fields(rawKey)
	if len(fields) == 0 {
		err = fmt.Errorf("empty line")
		return
	}

	keyStartIndex := -1
	for i, field := range fields {
		if strings.HasPrefix(field, "ssh-") || strings.HasPrefix(field, "ecdsa-") || strings.HasPrefix(field, "sk-") {
			keyStartIndex = i
			break
		}
	}

	if keyStartIndex == -1 {
		err = fmt.Errorf("no valid SSH key type found in line")
		return
	}

	if len(fields) < keyStartIndex+2 {
		err = fmt.Errorf("invalid public key format: missing key data after algorithm")
		return
	}

	algorithm = fields[keyStartIndex]
	keyData = fields[keyStartIndex+1]
	if len(fields) > keyStartIndex+2 {
		comment = strings.Join(fields[keyStartIndex+2:], " ")
	}

	return
}

// Fingerprint parses line as an authorized_keys entry and returns the key
// type and its SHA256 fingerprint.
func Fingerprint(line string) (keyType, fingerprint string, err error) {
	pub, _, _, rest, err := ssh.ParseAuthorizedKey([]byte(line))
	if err != nil {
		return "", "", fmt.Errorf("parse authorized key: %w", err)
	}
	if len(strings.TrimSpace(string(rest))) > 0 {
		return "", "", fmt.Errorf("parse authorized key: trailing data after key")
	}
	return pub.Type(), ssh.FingerprintSHA256(pub), nil
}

// Valid reports whether line is a single well-formed authorized_keys entry.
func Valid(line string) bool {
	_, _, err := Fingerprint(line)
	return err == nil
}

// Filter splits lines into well-formed entries and rejected ones, keeping
// the input order in both.
func Filter(lines []string) (kept, rejected []string) {
	for _, line := range lines {
		if Valid(line) {
			kept = append(kept, line)
		} else {
			rejected = append(rejected, line)
		}
	}
	return kept, rejected
}
