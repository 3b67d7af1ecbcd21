// Copyright (c) 2026 Keymaster Team
// keyps - authorized_keys synchronization agent
// This source code is licensed under the MIT license found in the LICENSE file.

package reconcile_test

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	clog "github.com/charmbracelet/log"

	"github.com/toeirei/keyps/internal/keyfile"
	"github.com/toeirei/keyps/internal/logging"
	"github.com/toeirei/keyps/internal/reconcile"
	"github.com/toeirei/keyps/internal/source"
	"github.com/toeirei/keyps/internal/sshkey"
	"github.com/toeirei/keyps/internal/testutil"
)

const (
	keyA = "ssh-ed25519 AAAAkeyA a"
	keyB = "ssh-ed25519 AAAAkeyB b"
	keyC = "ssh-ed25519 AAAAkeyC c"
)

func newService(tg *testutil.MemoryTarget, f *testutil.StaticFetcher, specs ...string) *reconcile.Service {
	var ids []source.Identifier
	for _, s := range specs {
		ids = append(ids, source.MustParse(s))
	}
	return reconcile.New(reconcile.Config{Sources: ids, Target: tg, Fetcher: f})
}

func managed(t *testing.T, content string) []string {
	t.Helper()
	return keyfile.ManagedKeys(keyfile.SplitLines(content))
}

func TestRefresh_DedupAcrossSources(t *testing.T) {
	tg := testutil.NewMemoryTarget("# admin\n")
	f := &testutil.StaticFetcher{Keys: map[string][]string{
		"https://github.com/one.keys": {keyA, keyB},
		"https://gitlab.com/two.keys": {keyB, keyC},
	}}
	svc := newService(tg, f, "github:one", "gitlab:two")

	out := svc.Refresh(context.Background())
	if out.Status != reconcile.StatusSuccess || out.Err != nil {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if got := managed(t, tg.Content()); !reflect.DeepEqual(got, []string{keyA, keyB, keyC}) {
		t.Fatalf("managed keys = %q", got)
	}
	if out.Fetched != 4 || out.Keys != 3 || !out.Changed {
		t.Fatalf("unexpected counters: %+v", out)
	}
	if !strings.HasPrefix(tg.Content(), "# admin\n") {
		t.Fatalf("preamble lost: %q", tg.Content())
	}
	if calls := f.Calls(); !reflect.DeepEqual(calls, []string{"https://github.com/one.keys", "https://gitlab.com/two.keys"}) {
		t.Fatalf("sources fetched out of order: %v", calls)
	}
}

func TestRefresh_FetchIsolation(t *testing.T) {
	tg := testutil.NewMemoryTarget("")
	f := &testutil.StaticFetcher{
		Keys:   map[string][]string{"https://gitlab.com/two.keys": {keyA}},
		Errors: map[string]error{"https://github.com/one.keys": errors.New("connection refused")},
	}
	svc := newService(tg, f, "github:one", "gitlab:two")

	out := svc.Refresh(context.Background())
	if out.Status != reconcile.StatusPartial {
		t.Fatalf("status = %s, want partial", out.Status)
	}
	if len(out.FetchErrors) != 1 {
		t.Fatalf("fetch errors = %v", out.FetchErrors)
	}
	if got := managed(t, tg.Content()); !reflect.DeepEqual(got, []string{keyA}) {
		t.Fatalf("managed keys = %q", got)
	}
}

func TestRefresh_AllSourcesFailedEmptiesBlock(t *testing.T) {
	revoked := "ssh-ed25519 AAAA revoked"
	tg := testutil.NewMemoryTarget(keyfile.Render("# admin\n", []string{revoked}))
	f := &testutil.StaticFetcher{Errors: map[string]error{"https://github.com/one.keys": errors.New("timeout")}}
	svc := newService(tg, f, "github:one")

	out := svc.Refresh(context.Background())
	if out.Status != reconcile.StatusPartial || out.Err != nil {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if len(out.FetchErrors) != 1 || out.Keys != 0 || !out.Changed {
		t.Fatalf("unexpected counters: %+v", out)
	}
	if got := managed(t, tg.Content()); len(got) != 0 {
		t.Fatalf("managed keys = %q, want none", got)
	}
	if want := keyfile.Render("# admin\n", nil); tg.Content() != want {
		t.Fatalf("content = %q, want %q", tg.Content(), want)
	}
}

func TestRefresh_KeepOnOutageLeavesFileAlone(t *testing.T) {
	initial := keyfile.Render("# admin\n", []string{keyA})
	tg := testutil.NewMemoryTarget(initial)
	f := &testutil.StaticFetcher{Errors: map[string]error{"https://github.com/one.keys": errors.New("timeout")}}
	svc := reconcile.New(reconcile.Config{
		Sources:      []source.Identifier{source.MustParse("github:one")},
		Target:       tg,
		Fetcher:      f,
		KeepOnOutage: true,
	})

	out := svc.Refresh(context.Background())
	if out.Status != reconcile.StatusSkipped || !errors.Is(out.Err, reconcile.ErrAllSourcesFailed) {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if tg.Content() != initial || tg.Writes() != 0 {
		t.Fatalf("file touched on skipped cycle: %q", tg.Content())
	}
}

func TestRefresh_KeepOnOutageStillAppliesPartialResults(t *testing.T) {
	tg := testutil.NewMemoryTarget(keyfile.Render("", []string{keyA}))
	f := &testutil.StaticFetcher{
		Keys:   map[string][]string{"https://gitlab.com/two.keys": {keyB}},
		Errors: map[string]error{"https://github.com/one.keys": errors.New("timeout")},
	}
	svc := reconcile.New(reconcile.Config{
		Sources:      []source.Identifier{source.MustParse("github:one"), source.MustParse("gitlab:two")},
		Target:       tg,
		Fetcher:      f,
		KeepOnOutage: true,
	})

	out := svc.Refresh(context.Background())
	if out.Status != reconcile.StatusPartial {
		t.Fatalf("status = %s, want partial", out.Status)
	}
	if got := managed(t, tg.Content()); !reflect.DeepEqual(got, []string{keyB}) {
		t.Fatalf("managed keys = %q", got)
	}
}

func TestRefresh_Idempotent(t *testing.T) {
	tg := testutil.NewMemoryTarget(keyA + "\n")
	f := &testutil.StaticFetcher{Keys: map[string][]string{"https://github.com/one.keys": {keyA, keyB}}}
	svc := newService(tg, f, "github:one")

	first := svc.Refresh(context.Background())
	after := tg.Content()
	second := svc.Refresh(context.Background())

	if !first.Changed || second.Changed {
		t.Fatalf("expected only the first pass to change the file: %+v / %+v", first, second)
	}
	if tg.Content() != after || tg.Writes() != 1 {
		t.Fatalf("second pass altered file: %q", tg.Content())
	}
	if got := managed(t, after); !reflect.DeepEqual(got, []string{keyB}) {
		t.Fatalf("key already in preamble was duplicated: %q", got)
	}
}

func TestRefresh_RevokedKeyDisappears(t *testing.T) {
	tg := testutil.NewMemoryTarget(keyfile.Render("", []string{keyA, keyB}))
	f := &testutil.StaticFetcher{Keys: map[string][]string{"https://github.com/one.keys": {keyB}}}
	svc := newService(tg, f, "github:one")

	svc.Refresh(context.Background())
	if got := managed(t, tg.Content()); !reflect.DeepEqual(got, []string{keyB}) {
		t.Fatalf("managed keys = %q", got)
	}
}

func TestRefresh_TargetErrors(t *testing.T) {
	f := &testutil.StaticFetcher{Keys: map[string][]string{"https://github.com/one.keys": {keyA}}}

	readFail := testutil.NewMemoryTarget("")
	readFail.ReadErr = errors.New("permission denied")
	out := newService(readFail, f, "github:one").Refresh(context.Background())
	if out.Status != reconcile.StatusError || !errors.Is(out.Err, readFail.ReadErr) {
		t.Fatalf("read failure outcome: %+v", out)
	}

	writeFail := testutil.NewMemoryTarget("")
	writeFail.WriteErr = errors.New("disk full")
	out = newService(writeFail, f, "github:one").Refresh(context.Background())
	if out.Status != reconcile.StatusError || !errors.Is(out.Err, writeFail.WriteErr) {
		t.Fatalf("write failure outcome: %+v", out)
	}
}

func TestRefresh_StrictDropsMalformedLines(t *testing.T) {
	tg := testutil.NewMemoryTarget("")
	f := &testutil.StaticFetcher{Keys: map[string][]string{
		"https://github.com/one.keys": {testutil.ValidED25519Key, "<html>oops</html>", testutil.ValidRSAKey},
	}}
	svc := reconcile.New(reconcile.Config{
		Sources: []source.Identifier{source.MustParse("github:one")},
		Target:  tg,
		Fetcher: f,
		Strict:  true,
	})

	out := svc.Refresh(context.Background())
	if out.Rejected != 1 {
		t.Fatalf("rejected = %d, want 1", out.Rejected)
	}
	if got := managed(t, tg.Content()); !reflect.DeepEqual(got, []string{testutil.ValidED25519Key, testutil.ValidRSAKey}) {
		t.Fatalf("managed keys = %q", got)
	}
}

func TestCleanup_RemovesBlock(t *testing.T) {
	content := "# admin\n" + keyC + "\n" + keyfile.StartMarker + "\n" + keyA + "\n" + keyB + "\n" + keyfile.EndMarker + "\n"
	tg := testutil.NewMemoryTarget(content)
	svc := newService(tg, &testutil.StaticFetcher{}, "github:one")

	out := svc.Cleanup(context.Background())
	if out.Status != reconcile.StatusSuccess || !out.Changed {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if tg.Content() != "# admin\n"+keyC+"\n" {
		t.Fatalf("content after cleanup = %q", tg.Content())
	}

	again := svc.Cleanup(context.Background())
	if again.Changed || tg.Writes() != 1 {
		t.Fatalf("cleanup without a block should not write: %+v", again)
	}
}

func TestCleanup_WriteFailure(t *testing.T) {
	tg := testutil.NewMemoryTarget(keyfile.Render("", []string{keyA}))
	tg.WriteErr = errors.New("read-only filesystem")
	out := newService(tg, &testutil.StaticFetcher{}, "github:one").Cleanup(context.Background())
	if out.Status != reconcile.StatusError || out.Err == nil {
		t.Fatalf("unexpected outcome: %+v", out)
	}
}

func TestOutcome_String(t *testing.T) {
	o := reconcile.Outcome{Op: reconcile.OpRefresh, Status: reconcile.StatusPartial, Target: "memory", Sources: 2, Keys: 3, Changed: true, FetchErrors: []error{errors.New("x")}}
	if got := o.String(); got != "PARTIAL refresh on memory: 3 keys from 1/2 sources" {
		t.Fatalf("String() = %q", got)
	}
}

func captureLog(t *testing.T, level clog.Level) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := logging.L
	logging.L = clog.New(&buf)
	logging.L.SetLevel(level)
	t.Cleanup(func() { logging.L = prev })
	return &buf
}

func TestCollect_DebugLogsFingerprints(t *testing.T) {
	buf := captureLog(t, clog.DebugLevel)
	f := &testutil.StaticFetcher{Keys: map[string][]string{
		"https://github.com/one.keys": {testutil.ValidED25519Key, testutil.InvalidKey},
	}}
	svc := newService(testutil.NewMemoryTarget(""), f, "github:one")

	if _, _, _, errs := svc.Collect(context.Background()); len(errs) != 0 {
		t.Fatalf("Collect errors: %v", errs)
	}

	_, fingerprint, err := sshkey.Fingerprint(testutil.ValidED25519Key)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	out := buf.String()
	for _, want := range []string{fingerprint, "ssh-ed25519", "test@example.com", "github:one", "unrecognized key line"} {
		if !strings.Contains(out, want) {
			t.Fatalf("debug output missing %q; got: %s", want, out)
		}
	}
}

func TestCollect_NoKeyDetailsAboveDebug(t *testing.T) {
	buf := captureLog(t, clog.InfoLevel)
	f := &testutil.StaticFetcher{Keys: map[string][]string{
		"https://github.com/one.keys": {testutil.ValidED25519Key},
	}}
	svc := newService(testutil.NewMemoryTarget(""), f, "github:one")
	svc.Collect(context.Background())

	if out := buf.String(); strings.Contains(out, "SHA256:") {
		t.Fatalf("fingerprints logged at info level: %s", out)
	}
}
