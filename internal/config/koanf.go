// Searchbridge Adaptor - Content Repository to Search Appliance Bridge
// Copyright 2026 Searchbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchbridge/adaptor

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where the config file is searched, in order.
var DefaultConfigPaths = []string{
	"adaptor-config.yaml",
	"adaptor-config.yml",
	"/etc/searchbridge/adaptor-config.yaml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "ADAPTOR_CONFIG_PATH"

// envPrefix scopes environment variables to this process.
const envPrefix = "ADAPTOR_"

// Load reads the layered configuration. path selects the config file ("" to
// search DefaultConfigPaths), overrides carries -Dkey=value command line
// settings keyed by dotted config key.
func Load(path string, overrides map[string]string) (*Config, error) {
	k := koanf.New(".")

	defaults := Default()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: loading defaults: %w", err)
	}
	recognized := recognizedKeys(k)

	if path == "" {
		path = findConfigFile()
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config: config file %s: %w", path, err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: loading %s: %w", path, err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", envTransform(recognized))
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("config: loading environment: %w", err)
	}

	if len(overrides) > 0 {
		flat := make(map[string]interface{}, len(overrides))
		for key, v := range overrides {
			flat[canonicalKey(recognized, key)] = v
		}
		if err := k.Load(confmap.Provider(flat, "."), nil); err != nil {
			return nil, fmt.Errorf("config: applying overrides: %w", err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	// Keys outside the recognized set belong to the concrete adaptor.
	for _, key := range k.Keys() {
		if _, ok := recognized[strings.ToLower(key)]; !ok {
			cfg.extra[key] = k.String(key)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// recognizedKeys maps the lowercased form of every key in the default set
// to its canonical (camelCase) spelling.
func recognizedKeys(k *koanf.Koanf) map[string]string {
	out := make(map[string]string)
	for _, key := range k.Keys() {
		out[strings.ToLower(key)] = key
	}
	return out
}

// canonicalKey restores the canonical spelling for case-insensitive input,
// passing unknown keys through untouched.
func canonicalKey(recognized map[string]string, key string) string {
	if canon, ok := recognized[strings.ToLower(key)]; ok {
		return canon
	}
	return key
}

// envTransform maps ADAPTOR_FEED_MAXURLS to feed.maxUrls. Environment
// variables that do not correspond to a recognized key are kept as dotted
// lowercase so adaptor-implementation keys remain reachable.
func envTransform(recognized map[string]string) func(string) string {
	return func(name string) string {
		key := strings.ToLower(strings.TrimPrefix(name, envPrefix))
		key = strings.ReplaceAll(key, "_", ".")
		return canonicalKey(recognized, key)
	}
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
