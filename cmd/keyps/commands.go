// Copyright (c) 2026 Keymaster Team
// keyps - authorized_keys synchronization agent
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"fmt"
	"runtime/debug"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/toeirei/keyps/buildvars"
	"github.com/toeirei/keyps/internal/config"
	"github.com/toeirei/keyps/internal/i18n"
	"github.com/toeirei/keyps/internal/keyfile"
	"github.com/toeirei/keyps/internal/reconcile"
)

func newOnceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single refresh and exit, leaving the managed block in place",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := prepare(cmd, needSources|needTarget)
			if err != nil {
				return err
			}
			out := s.service().Refresh(cmd.Context())
			logOutcome(out)
			fmt.Fprintln(cmd.OutOrStdout(), out.String())
			switch out.Status {
			case reconcile.StatusError, reconcile.StatusSkipped:
				return out.Err
			}
			return nil
		},
	}
}

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove the managed block from the authorized_keys file and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := prepare(cmd, needTarget)
			if err != nil {
				return err
			}
			out := s.service().Cleanup(cmd.Context())
			logOutcome(out)
			if out.Err != nil {
				return out.Err
			}
			msg := "cleanup.none"
			if out.Changed {
				msg = "cleanup.done"
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T(msg, map[string]any{"Target": s.target}))
			return nil
		},
	}
}

func newSourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "Validate the configured sources and show the URL each one resolves to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := prepare(cmd, needSources)
			if err != nil {
				return err
			}

			t := table.New().
				Border(lipgloss.NormalBorder()).
				Headers(i18n.T("sources.header_source"), i18n.T("sources.header_url"))
			for _, id := range s.sources {
				u, err := id.Resolve()
				if err != nil {
					return err
				}
				t.Row(id.String(), u.String())
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return nil
		},
	}
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the keyps configuration file",
	}

	var system bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the effective configuration to the user or system config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			path, err := config.WriteConfigFile(&c, system)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("config.written", map[string]any{"Path": path}))
			return nil
		},
	}
	initCmd.Flags().BoolVar(&system, "system", false, "write the system-wide file instead of the per-user one")

	cmd.AddCommand(initCmd)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			v, commit, date := resolveBuildVersion(nil)
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "version: %s\n", v)
			if commit != "" {
				fmt.Fprintf(w, "commit: %s\n", commit)
			}
			if date != "" {
				fmt.Fprintf(w, "built: %s\n", date)
			}
			fmt.Fprintf(w, "markers: %q %q\n", keyfile.StartMarker, keyfile.EndMarker)
		},
	}
}

// resolveBuildVersion computes the best-available version, commit and build
// date for the running binary. If info is nil, it reads build info from
// the runtime.
func resolveBuildVersion(info *debug.BuildInfo) (version, commit, date string) {
	version = buildvars.VersionOrDefault("dev")
	if info == nil {
		if local, ok := debug.ReadBuildInfo(); ok {
			info = local
		}
	}
	if info == nil {
		return version, "", ""
	}

	if version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		version = info.Main.Version
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			commit = s.Value
		case "vcs.time":
			date = s.Value
		}
	}
	return version, commit, date
}
