// Copyright (c) 2026 Keymaster Team
// keyps - authorized_keys synchronization agent
// This source code is licensed under the MIT license found in the LICENSE file.

// i18n-linter checks that every message ID passed to i18n.T exists in the
// primary locale and that every other locale translates all of them.
//
//	go run ./tools/i18n-linter
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	localesDir    = "internal/i18n/locales"
	primaryLocale = "en.yaml"
	projectRoot   = "."
)

var (
	callRe    = regexp.MustCompile(`i18n\.T\("([^"]+)"`)
	literalRe = regexp.MustCompile(`"([a-z_]+\.[a-z_.]+)"`)
)

func main() {
	fmt.Println("🔍 Running i18n linter...")
	ok, err := lint(projectRoot, localesDir, os.Stdout)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	if !ok {
		fmt.Println("❌ Found issues that need to be addressed.")
		os.Exit(1)
	}
	fmt.Println("✅ All translation files are consistent!")
}

// lint reports to w and returns false when a key is used but undefined or
// a secondary locale lacks a key. Orphaned keys only produce a warning.
func lint(root, locales string, w io.Writer) (bool, error) {
	primary, err := loadKeysFromLocale(filepath.Join(locales, primaryLocale))
	if err != nil {
		return false, fmt.Errorf("loading primary locale %s: %w", primaryLocale, err)
	}
	calls, literals, err := findUsedKeys(root)
	if err != nil {
		return false, fmt.Errorf("scanning sources: %w", err)
	}

	ok := true

	fmt.Fprintln(w, "--- Keys used in code but missing from the primary locale ---")
	undefined := missingFrom(calls, primary)
	for _, key := range undefined {
		fmt.Fprintf(w, "  - Undefined: %s\n", key)
	}
	if len(undefined) > 0 {
		ok = false
	} else {
		fmt.Fprintln(w, "  ✨ None found.")
	}

	fmt.Fprintln(w, "--- Orphaned keys (in primary locale but not used in code) ---")
	used := make(map[string]struct{}, len(calls)+len(literals))
	for k := range calls {
		used[k] = struct{}{}
	}
	for k := range literals {
		used[k] = struct{}{}
	}
	orphaned := missingFrom(primary, used)
	for _, key := range orphaned {
		fmt.Fprintf(w, "  - Orphaned: %s\n", key)
	}
	if len(orphaned) == 0 {
		fmt.Fprintln(w, "  ✨ None found.")
	}

	files, err := filepath.Glob(filepath.Join(locales, "*.yaml"))
	if err != nil {
		return false, err
	}
	sort.Strings(files)
	for _, file := range files {
		if filepath.Base(file) == primaryLocale {
			continue
		}
		fmt.Fprintf(w, "--- Checking %s ---\n", file)
		secondary, err := loadKeysFromLocale(file)
		if err != nil {
			fmt.Fprintf(w, "  - ❌ Error loading %s: %v\n", file, err)
			ok = false
			continue
		}
		missing := missingFrom(primary, secondary)
		for _, key := range missing {
			fmt.Fprintf(w, "  - Missing: %s\n", key)
		}
		if len(missing) > 0 {
			ok = false
		} else {
			fmt.Fprintln(w, "  ✨ All keys present.")
		}
	}
	return ok, nil
}

// missingFrom returns the sorted keys of a that are not in b.
func missingFrom(a, b map[string]struct{}) []string {
	var out []string
	for k := range a {
		if _, exists := b[k]; !exists {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// findUsedKeys scans non-test Go files below root. calls holds IDs passed
// directly to i18n.T; literals holds every other string that looks like a
// message ID, which covers IDs picked into a variable first.
func findUsedKeys(root string) (calls, literals map[string]struct{}, err error) {
	calls = make(map[string]struct{})
	literals = make(map[string]struct{})

	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			switch name := info.Name(); {
			case name == "tools", strings.HasPrefix(name, "_"), path != root && strings.HasPrefix(name, "."):
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		for _, m := range callRe.FindAllStringSubmatch(string(content), -1) {
			calls[m[1]] = struct{}{}
		}
		for _, m := range literalRe.FindAllStringSubmatch(string(content), -1) {
			literals[m[1]] = struct{}{}
		}
		return nil
	})
	return calls, literals, err
}

// loadKeysFromLocale reads a YAML file and returns a flat map of its keys.
func loadKeysFromLocale(path string) (map[string]struct{}, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var data map[string]interface{}
	if err := yaml.Unmarshal(content, &data); err != nil {
		return nil, err
	}

	keys := make(map[string]struct{})
	flattenYAML("", data, keys)
	return keys, nil
}

// flattenYAML converts a nested map into dot-separated keys.
func flattenYAML(prefix string, node interface{}, keys map[string]struct{}) {
	switch v := node.(type) {
	case map[string]interface{}:
		for k, val := range v {
			next := k
			if prefix != "" {
				next = prefix + "." + k
			}
			flattenYAML(next, val, keys)
		}
	default:
		if prefix != "" {
			keys[prefix] = struct{}{}
		}
	}
}
