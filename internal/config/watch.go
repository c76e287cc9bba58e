// Searchbridge Adaptor - Content Repository to Search Appliance Bridge
// Copyright 2026 Searchbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchbridge/adaptor

package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
)

// ChangeListener receives the dotted keys whose values changed, mapped to
// their new stringified values.
type ChangeListener func(changed map[string]string)

// Watcher polls the configuration sources and notifies listeners when a
// reload produces different values. It implements suture.Service.
type Watcher struct {
	path      string
	overrides map[string]string
	period    time.Duration
	logger    zerolog.Logger

	mu        sync.Mutex
	current   *Config
	listeners []ChangeListener
}

// NewWatcher wraps an already-loaded configuration. path and overrides must
// match what was passed to Load so reloads see the same layering.
func NewWatcher(cfg *Config, path string, overrides map[string]string, logger *zerolog.Logger) *Watcher {
	period := cfg.Adaptor.ConfigPollPeriod()
	if period <= 0 {
		period = 15 * time.Second
	}
	return &Watcher{
		path:      path,
		overrides: overrides,
		period:    period,
		logger:    logger.With().Str("component", "config-watcher").Logger(),
		current:   cfg,
	}
}

// Current returns the most recently loaded configuration.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Subscribe registers a listener for configuration changes.
func (w *Watcher) Subscribe(l ChangeListener) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, l)
}

// Serve polls until the context is canceled.
func (w *Watcher) Serve(ctx context.Context) error {
	ticker := time.NewTicker(w.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.reload()
		}
	}
}

func (w *Watcher) String() string { return "config-watcher" }

func (w *Watcher) reload() {
	fresh, err := Load(w.path, w.overrides)
	if err != nil {
		w.logger.Warn().Err(err).Msg("config reload failed, keeping previous configuration")
		return
	}

	w.mu.Lock()
	changed := diff(w.current, fresh)
	if len(changed) > 0 {
		w.current = fresh
	}
	listeners := make([]ChangeListener, len(w.listeners))
	copy(listeners, w.listeners)
	w.mu.Unlock()

	if len(changed) == 0 {
		return
	}
	w.logger.Info().Int("keys", len(changed)).Msg("configuration changed")
	for _, l := range listeners {
		l(changed)
	}
}

// diff flattens both configurations and returns the keys whose stringified
// values differ, mapped to the new values.
func diff(old, fresh *Config) map[string]string {
	changed := make(map[string]string)
	oldFlat := flatten(old)
	newFlat := flatten(fresh)
	for key, nv := range newFlat {
		if ov, ok := oldFlat[key]; !ok || ov != nv {
			changed[key] = nv
		}
	}
	for key := range oldFlat {
		if _, ok := newFlat[key]; !ok {
			changed[key] = ""
		}
	}
	return changed
}

func flatten(c *Config) map[string]string {
	k := koanf.New(".")
	// The struct provider cannot fail for an in-memory struct.
	_ = k.Load(structs.Provider(c, "koanf"), nil)
	out := make(map[string]string)
	for key, v := range k.All() {
		out[key] = fmt.Sprint(v)
	}
	for key, v := range c.extra {
		out[key] = v
	}
	return out
}
