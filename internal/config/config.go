// Copyright (c) 2026 Keymaster Team
// keyps - authorized_keys synchronization agent
// This source code is licensed under the MIT license found in the LICENSE file.

// Package config loads keyps settings from defaults, config files,
// KEYPS_* environment variables and command line flags, in increasing order
// of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	appName   = "keyps"
	envPrefix = "keyps"
)

// Config is the full keyps configuration.
type Config struct {
	File         string        `mapstructure:"file" yaml:"file,omitempty"`
	Sources      []string      `mapstructure:"sources" yaml:"sources"`
	Interval     time.Duration `mapstructure:"interval" yaml:"interval"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Strict       bool          `mapstructure:"strict" yaml:"strict"`
	KeepOnOutage bool          `mapstructure:"keep_on_outage" yaml:"keep_on_outage"`
	MetricsAddr  string        `mapstructure:"metrics_addr" yaml:"metrics_addr,omitempty"`
	Language     string        `mapstructure:"language" yaml:"language"`
	LogFormat    string        `mapstructure:"log_format" yaml:"log_format"`
	Verbosity    int           `mapstructure:"verbosity" yaml:"verbosity"`
	SSH          SSHConfig     `mapstructure:"ssh" yaml:"ssh"`
}

// SSHConfig configures access to sftp:// targets.
type SSHConfig struct {
	Identity   string `mapstructure:"identity" yaml:"identity,omitempty"`
	KnownHosts string `mapstructure:"known_hosts" yaml:"known_hosts,omitempty"`
}

// Defaults returns the built-in values, keyed the way viper expects them.
func Defaults() map[string]any {
	return map[string]any{
		"interval":       "10s",
		"timeout":        "10s",
		"strict":         false,
		"keep_on_outage": false,
		"language":       "en",
		"log_format":     "text",
		"verbosity":      0,
	}
}

// GetConfigPath returns the full path for the configuration file.
func GetConfigPath(system bool) (string, error) {
	var configDir string
	var err error

	if system {
		switch runtime.GOOS {
		case "windows":
			configDir = filepath.Join(os.Getenv("ProgramData"), "keyps")
		default:
			configDir = "/etc/keyps"
		}
	} else {
		configDir, err = os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("could not get user config directory: %w", err)
		}
		configDir = filepath.Join(configDir, appName)
	}

	return filepath.Join(configDir, appName+".yaml"), nil
}

// LoadConfig resolves T from defaults, the first keyps.yaml found (or the
// explicit file when configFile is set), the environment and cmd's flags.
// A missing config file is not an error; a malformed one is.
func LoadConfig[T any](cmd *cobra.Command, defaults map[string]any, configFile *string) (T, error) {
	var c T
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName(appName)
	v.SetConfigType("yaml")

	if configFile != nil && *configFile != "" {
		v.SetConfigFile(*configFile)
	}

	if userConfigPath, err := GetConfigPath(false); err == nil {
		v.AddConfigPath(filepath.Dir(userConfigPath))
	}
	if systemConfigPath, err := GetConfigPath(true); err == nil {
		v.AddConfigPath(filepath.Dir(systemConfigPath))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return c, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cmd != nil {
		if err := bindFlags(v, cmd); err != nil {
			return c, err
		}
	}

	err := v.Unmarshal(&c, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		secondsHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return c, fmt.Errorf("decoding config: %w", err)
	}
	return c, nil
}

// flagKeys maps flag names that differ from their config key.
var flagKeys = map[string]string{
	"source":         "sources",
	"verbose":        "verbosity",
	"metrics-addr":   "metrics_addr",
	"log-format":     "log_format",
	"keep-on-outage": "keep_on_outage",
	"ssh-identity":   "ssh.identity",
	"known-hosts":    "ssh.known_hosts",
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	for flag, key := range flagKeys {
		if f := cmd.Flags().Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}
	return nil
}

// secondsHook lets durations be written as a bare number of seconds.
func secondsHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch d := data.(type) {
		case int:
			return time.Duration(d) * time.Second, nil
		case int64:
			return time.Duration(d) * time.Second, nil
		case uint64:
			return time.Duration(d) * time.Second, nil
		case float64:
			return time.Duration(d * float64(time.Second)), nil
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(d)); err == nil {
				return time.Duration(n) * time.Second, nil
			}
		}
		return data, nil
	}
}

// WriteConfigFile writes c as YAML to the user or system config path and
// returns the path written.
func WriteConfigFile[T any](c *T, system bool) (string, error) {
	path, err := GetConfigPath(system)
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}

	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("could not create config directory %s: %w", configDir, err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", err
	}
	return path, nil
}
