// Copyright (c) 2026 Keymaster Team
// keyps - authorized_keys synchronization agent
// This source code is licensed under the MIT license found in the LICENSE file.
package sshkey

import (
	"crypto/ed25519"
	"crypto/rand"
	"reflect"
	"strings"
	"testing"

	"golang.org/x/crypto/ssh"
)

func newAuthorizedKey(t *testing.T, comment string) string {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		t.Fatalf("ssh public key: %v", err)
	}
	line := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(sshPub)))
	if comment != "" {
		line += " " + comment
	}
	return line
}

func TestParse_NormalLine(t *testing.T) {
	line := "ssh-rsa AAAAB3NzaC1yc2EAAAADAQABAAABAQC3 test-key@example.com"
	alg, key, comment, err := Parse(line)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if alg != "ssh-rsa" {
		t.Fatalf("unexpected alg: %s", alg)
	}
	if key == "" {
		t.Fatalf("empty key data")
	}
	if comment != "test-key@example.com" {
		t.Fatalf("unexpected comment: %s", comment)
	}
}

func TestParse_WithOptions(t *testing.T) {
	line := "no-agent-forwarding,command=\"echo hi\" ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAIBk comment"
	alg, _, comment, err := Parse(line)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if alg != "ssh-ed25519" || comment != "comment" {
		t.Fatalf("unexpected result: alg=%s comment=%s", alg, comment)
	}
}

func TestParse_Errors(t *testing.T) {
	if _, _, _, err := Parse(""); err == nil {
		t.Fatalf("expected error for empty line")
	}
	if _, _, _, err := Parse("just-some-text"); err == nil {
		t.Fatalf("expected error for no key type")
	}
	if _, _, _, err := Parse("ssh-ed25519"); err == nil {
		t.Fatalf("expected error for missing key data")
	}
}

func TestFingerprint(t *testing.T) {
	line := newAuthorizedKey(t, "me@example.com")
	typ, fp, err := Fingerprint(line)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if typ != ssh.KeyAlgoED25519 {
		t.Fatalf("unexpected type %q", typ)
	}
	if !strings.HasPrefix(fp, "SHA256:") {
		t.Fatalf("unexpected fingerprint %q", fp)
	}
}

func TestFilter(t *testing.T) {
	good1 := newAuthorizedKey(t, "one")
	good2 := newAuthorizedKey(t, "")
	lines := []string{good1, "<html>rate limited</html>", good2, "ssh-ed25519 notbase64"}

	kept, rejected := Filter(lines)
	if !reflect.DeepEqual(kept, []string{good1, good2}) {
		t.Fatalf("kept = %q", kept)
	}
	if len(rejected) != 2 {
		t.Fatalf("rejected = %q", rejected)
	}
}
