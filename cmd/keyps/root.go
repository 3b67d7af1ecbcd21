// Copyright (c) 2026 Keymaster Team
// keyps - authorized_keys synchronization agent
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/toeirei/keyps/buildvars"
	"github.com/toeirei/keyps/internal/config"
	"github.com/toeirei/keyps/internal/daemon"
	"github.com/toeirei/keyps/internal/fetch"
	"github.com/toeirei/keyps/internal/i18n"
	"github.com/toeirei/keyps/internal/logging"
	"github.com/toeirei/keyps/internal/metrics"
	"github.com/toeirei/keyps/internal/reconcile"
	"github.com/toeirei/keyps/internal/source"
	"github.com/toeirei/keyps/internal/target"
)

// NewRootCmd creates the keyps command tree. Every call returns fresh
// commands and flags so tests can run them in isolation.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keyps",
		Short: "Keep authorized_keys in sync with published public keys.",
		Long: `keyps fetches public keys from GitHub, GitLab, SourceHut or plain
HTTP(S) URLs and maintains them in a marked block of an authorized_keys
file. Lines outside the block are never touched. The block is refreshed
every interval and removed again when keyps shuts down.`,
		Version:       buildvars.VersionOrDefault("dev"),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runDaemon,
	}

	f := cmd.PersistentFlags()
	f.String("config", "", "config file (default: keyps.yaml in the user or system config directory)")
	f.StringP("file", "f", "", "authorized_keys file, local path or sftp://user@host[:port]/path (default: nearest .ssh/authorized_keys)")
	f.StringArrayP("source", "s", nil, "key source: github:USER, gitlab:USER, sourcehut:USER or an http(s) URL (repeatable)")
	f.StringP("interval", "i", "", "refresh interval, e.g. 30s, 5m or a bare number of seconds (default 10s)")
	f.String("timeout", "", "per-request timeout for fetches and SSH connections (default 10s)")
	f.Bool("strict", false, "drop fetched lines that are not valid authorized_keys entries")
	f.Bool("keep-on-outage", false, "keep the previous managed block when every source fails")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9100")
	f.CountP("verbose", "v", "increase log verbosity (-v errors only ... -vvvv debug)")
	f.String("log-format", "", `log format: "text", "json" or "logfmt"`)
	f.String("language", "", `language for terminal messages ("en", "de")`)
	f.String("ssh-identity", "", "private key for sftp:// targets (the SSH agent is used as well)")
	f.String("known-hosts", "", "known_hosts file for sftp:// targets (default ~/.ssh/known_hosts)")

	cmd.AddCommand(
		newOnceCmd(),
		newCleanCmd(),
		newSourcesCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)
	return cmd
}

// settings is the resolved runtime view of the configuration.
type settings struct {
	cfg     config.Config
	sources []source.Identifier
	target  target.Target
}

type need int

const (
	needSources need = 1 << iota
	needTarget
)

// getConfigPathFromCli returns the --config value when the user set one,
// after making sure the file exists.
func getConfigPathFromCli(cmd *cobra.Command) (*string, error) {
	if !cmd.Flags().Changed("config") {
		return nil, nil
	}
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("could not read --config flag: %w", err)
	}
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file specified via --config flag not found or is not accessible: %w", err)
	}
	return &path, nil
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, err := getConfigPathFromCli(cmd)
	if err != nil {
		return config.Config{}, err
	}
	c, err := config.LoadConfig[config.Config](cmd, config.Defaults(), path)
	if err != nil {
		return c, errors.New(i18n.T("error.config", map[string]any{"Err": err}))
	}

	i18n.SetLang(c.Language)
	logging.SetLevelFromVerbosity(c.Verbosity)
	if err := logging.SetFormat(c.LogFormat); err != nil {
		return c, errors.New(i18n.T("error.log_format", map[string]any{"Format": c.LogFormat}))
	}
	return c, nil
}

// prepare loads the configuration and resolves what n asks for. Every
// error it returns is fatal for the command.
func prepare(cmd *cobra.Command, n need) (*settings, error) {
	c, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	s := &settings{cfg: c}

	if n&needSources != 0 {
		ids, err := source.Validate(c.Sources)
		var invalid *source.InvalidSourcesError
		switch {
		case errors.Is(err, source.ErrNoSources):
			return nil, errors.New(i18n.T("error.no_sources"))
		case errors.As(err, &invalid):
			return nil, errors.New(i18n.T("error.invalid_sources", map[string]any{"Sources": invalidList(invalid)}))
		case err != nil:
			return nil, err
		}
		s.sources = ids
	}

	if n&needTarget != 0 {
		tg, err := target.Open(c.File, target.Options{SSH: target.SSHOptions{
			IdentityFile:   c.SSH.Identity,
			KnownHostsFile: c.SSH.KnownHosts,
			Timeout:        c.Timeout,
		}})
		var notFound *target.NotFoundError
		switch {
		case errors.As(err, &notFound):
			return nil, errors.New(i18n.T("error.target_not_found", map[string]any{"Paths": notFound.SearchPaths}))
		case err != nil:
			return nil, errors.New(i18n.T("error.target", map[string]any{"Target": c.File, "Err": err}))
		}
		s.target = tg
	}
	return s, nil
}

func invalidList(e *source.InvalidSourcesError) []string {
	out := make([]string, 0, len(e.Sources))
	for _, id := range e.Sources {
		out = append(out, id.String())
	}
	return out
}

func (s *settings) service() *reconcile.Service {
	return reconcile.New(reconcile.Config{
		Sources:      s.sources,
		Target:       s.target,
		Fetcher:      fetch.New(s.cfg.Timeout),
		Strict:       s.cfg.Strict,
		KeepOnOutage: s.cfg.KeepOnOutage,
	})
}

// logOutcome reports o at a level matching its status.
func logOutcome(o reconcile.Outcome) {
	kv := []any{"op", o.Op, "target", o.Target, "keys", o.Keys, "changed", o.Changed, "duration", o.Duration}
	switch o.Status {
	case reconcile.StatusSuccess:
		if o.Changed {
			logging.L.Info(o.String(), kv...)
		} else {
			logging.L.Debug(o.String(), kv...)
		}
	case reconcile.StatusPartial, reconcile.StatusSkipped:
		for _, err := range o.FetchErrors {
			logging.Warnf("source failed: %v", err)
		}
		logging.L.Warn(o.String(), kv...)
	default:
		logging.L.Error(o.String(), kv...)
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	s, err := prepare(cmd, needSources|needTarget)
	if err != nil {
		return err
	}

	reg := metrics.NewRegistry()
	m := metrics.New(reg)
	if s.cfg.MetricsAddr != "" {
		srv, err := metrics.Serve(s.cfg.MetricsAddr, reg)
		if err != nil {
			return fmt.Errorf("metrics listener: %w", err)
		}
		defer srv.Close()
		logging.L.Info("serving metrics", "addr", s.cfg.MetricsAddr)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, watchedSignals...)
	defer signal.Stop(sigs)

	d := daemon.Start(daemon.Config{
		Reconciler: s.service(),
		Interval:   s.cfg.Interval,
		OnCycle: func(o reconcile.Outcome) {
			logOutcome(o)
			m.Observe(o)
		},
	})
	logging.L.Info(i18n.T("daemon.started", map[string]any{
		"Target":   s.target,
		"Count":    len(s.sources),
		"Interval": s.cfg.Interval,
	}))

	ctx := cmd.Context()
	for {
		select {
		case sig := <-sigs:
			if isReload(sig) {
				d.Reload()
				continue
			}
			logging.L.Info("shutting down", "signal", sig)
		case <-ctx.Done():
			logging.L.Info("shutting down", "reason", ctx.Err())
		case <-d.Done():
		}
		d.Stop()
		logging.L.Info(i18n.T("daemon.stopped", map[string]any{"Target": s.target}))
		return nil
	}
}
