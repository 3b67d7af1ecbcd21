// Copyright (c) 2026 Keymaster Team
// keyps - authorized_keys synchronization agent
// This source code is licensed under the MIT license found in the LICENSE file.

// Package reconcile runs one fetch, merge and write pass over the target
// file.
package reconcile // import "github.com/toeirei/keyps/internal/reconcile"

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/toeirei/keyps/internal/fetch"
	"github.com/toeirei/keyps/internal/keyfile"
	"github.com/toeirei/keyps/internal/logging"
	"github.com/toeirei/keyps/internal/source"
	"github.com/toeirei/keyps/internal/sshkey"
	"github.com/toeirei/keyps/internal/target"
)

// Status classifies how a pass ended.
type Status string

const (
	// StatusSuccess: every source answered and the file holds the result.
	StatusSuccess Status = "success"
	// StatusPartial: some sources failed; the file holds what the others
	// returned.
	StatusPartial Status = "partial"
	// StatusSkipped: every source failed and KeepOnOutage left the file
	// alone.
	StatusSkipped Status = "skipped"
	// StatusError: the target could not be read or written.
	StatusError Status = "error"
)

// Op names the pass an Outcome belongs to.
type Op string

const (
	OpRefresh Op = "refresh"
	OpCleanup Op = "cleanup"
)

// ErrAllSourcesFailed is the Outcome error when a refresh is skipped.
var ErrAllSourcesFailed = errors.New("all sources failed")

// Outcome is the structured result of a pass.
type Outcome struct {
	Op       Op
	Status   Status
	Target   string
	Sources  int
	Fetched  int // key lines retrieved before deduplication
	Keys     int // lines inside the managed block after the pass
	Rejected int // lines dropped by strict mode
	Changed  bool
	Duration time.Duration

	FetchErrors []error
	Err         error
}

// String renders the outcome for humans.
func (o Outcome) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s on %s", strings.ToUpper(string(o.Status)), o.Op, o.Target)
	if o.Op == OpRefresh {
		fmt.Fprintf(&b, ": %d keys from %d/%d sources", o.Keys, o.Sources-len(o.FetchErrors), o.Sources)
	}
	if !o.Changed && o.Err == nil {
		b.WriteString(" (unchanged)")
	}
	if o.Err != nil {
		fmt.Fprintf(&b, ": %v", o.Err)
	}
	return b.String()
}

// Config wires a Service.
type Config struct {
	Sources []source.Identifier
	Target  target.Target
	Fetcher fetch.Fetcher
	// Strict drops fetched lines that are not well-formed authorized_keys
	// entries.
	Strict bool
	// KeepOnOutage skips the write when every source fails, keeping the
	// previous managed block. By default such a cycle empties the block.
	KeepOnOutage bool
}

// Service reconciles Target against Sources. It keeps no state between
// passes: the file is read fresh every time.
type Service struct {
	cfg Config
	now func() time.Time
}

// New returns a Service for cfg.
func New(cfg Config) *Service {
	return &Service{cfg: cfg, now: time.Now}
}

// Collect fetches every source in order and returns the deduplicated key
// lines together with the per-source failures.
func (s *Service) Collect(ctx context.Context) (keys []string, fetched int, rejected int, errs []error) {
	var all []string
	for _, src := range s.cfg.Sources {
		u, err := src.Resolve()
		if err != nil {
			errs = append(errs, err)
			logging.L.Error("cannot resolve source", "source", src.String(), "err", err)
			continue
		}

		lines, err := s.cfg.Fetcher.Fetch(ctx, src.String(), u)
		if err != nil {
			errs = append(errs, err)
			logging.L.Warn("fetch failed, source contributes no keys this cycle", "source", src.String(), "url", u.String(), "err", err)
			continue
		}

		if s.cfg.Strict {
			var dropped []string
			lines, dropped = sshkey.Filter(lines)
			for _, line := range dropped {
				logging.L.Warn("dropping malformed key line", "source", src.String(), "line", truncate(line, 60))
			}
			rejected += len(dropped)
		}

		logging.L.Debug("fetched keys", "source", src.String(), "count", len(lines))
		if logging.DebugEnabled() {
			for _, line := range lines {
				logKey(src.String(), line)
			}
		}
		fetched += len(lines)
		all = append(all, lines...)
	}
	return keyfile.Dedupe(all), fetched, rejected, errs
}

// Refresh runs one reconciliation cycle. Failures never escape as panics
// or errors; they are reported in the Outcome.
func (s *Service) Refresh(ctx context.Context) (out Outcome) {
	start := s.now()
	out = Outcome{Op: OpRefresh, Target: s.cfg.Target.String(), Sources: len(s.cfg.Sources)}
	defer func() { out.Duration = s.now().Sub(start) }()

	keys, fetched, rejected, errs := s.Collect(ctx)
	out.Fetched, out.Rejected, out.FetchErrors = fetched, rejected, errs

	if s.cfg.KeepOnOutage && len(s.cfg.Sources) > 0 && len(errs) == len(s.cfg.Sources) {
		out.Status = StatusSkipped
		out.Err = ErrAllSourcesFailed
		return out
	}

	content, err := s.cfg.Target.Read(ctx)
	if err != nil {
		out.Status = StatusError
		out.Err = fmt.Errorf("read target: %w", err)
		return out
	}

	lines := keyfile.Upsert(keyfile.ExtractPreamble(keyfile.SplitLines(content)), keys)
	out.Keys = len(keyfile.ManagedKeys(lines))

	updated := keyfile.JoinLines(lines)
	if updated != content {
		if err := s.cfg.Target.Write(ctx, updated); err != nil {
			out.Status = StatusError
			out.Err = fmt.Errorf("write target: %w", err)
			return out
		}
		out.Changed = true
	}

	out.Status = StatusSuccess
	if len(errs) > 0 {
		out.Status = StatusPartial
	}
	return out
}

// Cleanup removes the managed block from the target.
func (s *Service) Cleanup(ctx context.Context) (out Outcome) {
	start := s.now()
	out = Outcome{Op: OpCleanup, Target: s.cfg.Target.String(), Sources: len(s.cfg.Sources)}
	defer func() { out.Duration = s.now().Sub(start) }()

	content, err := s.cfg.Target.Read(ctx)
	if err != nil {
		out.Status = StatusError
		out.Err = fmt.Errorf("read target: %w", err)
		return out
	}

	lines := keyfile.SplitLines(content)
	if keyfile.HasManagedBlock(lines) {
		if err := s.cfg.Target.Write(ctx, keyfile.JoinLines(keyfile.RemoveManagedBlock(lines))); err != nil {
			out.Status = StatusError
			out.Err = fmt.Errorf("write target: %w", err)
			return out
		}
		out.Changed = true
	}

	out.Status = StatusSuccess
	return out
}

// logKey writes one debug line describing a fetched key. Lines that are not
// parseable keys are still logged, without a fingerprint.
func logKey(src, line string) {
	algorithm, _, comment, err := sshkey.Parse(line)
	if err != nil {
		logging.L.Debug("unrecognized key line", "source", src, "line", truncate(line, 60), "err", err)
		return
	}
	_, fingerprint, err := sshkey.Fingerprint(line)
	if err != nil {
		logging.L.Debug("key", "source", src, "algorithm", algorithm, "comment", comment, "err", err)
		return
	}
	logging.L.Debug("key", "source", src, "algorithm", algorithm, "comment", comment, "fingerprint", fingerprint)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
