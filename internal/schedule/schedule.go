// Searchbridge Adaptor - Content Repository to Search Appliance Bridge
// Copyright 2026 Searchbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchbridge/adaptor

// Package schedule runs full listings on a cron schedule and incremental
// polls on a fixed period. Both types are suture services; the supervisor
// restarts them on failure.
package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/cronexpr"
	"github.com/rs/zerolog"
)

// PushFunc runs one unit of push work. Errors are logged, not fatal to the
// scheduler; the next fire proceeds regardless.
type PushFunc func(ctx context.Context) error

// Scheduler fires a PushFunc at instants described by a cron expression.
// The schedule can be swapped at runtime via Reschedule, and a fire can be
// forced via TriggerNow (used by the dashboard's "push now" action).
type Scheduler struct {
	push   PushFunc
	logger zerolog.Logger
	now    func() time.Time

	mu   sync.Mutex
	expr *cronexpr.Expression

	reschedule chan struct{}
	trigger    chan struct{}
}

// New parses the cron expression and builds a scheduler around push.
func New(spec string, push PushFunc, logger *zerolog.Logger) (*Scheduler, error) {
	expr, err := cronexpr.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("schedule: parsing %q: %w", spec, err)
	}
	return &Scheduler{
		push:       push,
		logger:     logger.With().Str("component", "schedule").Logger(),
		now:        time.Now,
		expr:       expr,
		reschedule: make(chan struct{}, 1),
		trigger:    make(chan struct{}, 1),
	}, nil
}

// Reschedule swaps the cron expression. The running loop recomputes its
// next fire immediately.
func (s *Scheduler) Reschedule(spec string) error {
	expr, err := cronexpr.Parse(spec)
	if err != nil {
		return fmt.Errorf("schedule: parsing %q: %w", spec, err)
	}
	s.mu.Lock()
	s.expr = expr
	s.mu.Unlock()
	s.poke(s.reschedule)
	s.logger.Info().Str("schedule", spec).Msg("rescheduled full listings")
	return nil
}

// ConfigChanged adapts Reschedule to the config watcher's listener shape.
func (s *Scheduler) ConfigChanged(changed map[string]string) {
	if spec, ok := changed["adaptor.fullListingSchedule"]; ok {
		if err := s.Reschedule(spec); err != nil {
			s.logger.Error().Err(err).Msg("ignoring invalid schedule from config change")
		}
	}
}

// TriggerNow requests an immediate fire. Coalesced if one is already
// pending.
func (s *Scheduler) TriggerNow() {
	s.poke(s.trigger)
}

func (s *Scheduler) poke(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (s *Scheduler) nextFire() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expr.Next(s.now())
}

// Serve implements suture.Service. It sleeps until the next cron fire, a
// reschedule, or a manual trigger, then runs the push synchronously so
// fires never overlap from this loop.
func (s *Scheduler) Serve(ctx context.Context) error {
	for {
		next := s.nextFire()
		if next.IsZero() {
			// Expression has no future fire (possible with year fields).
			// Park until rescheduled.
			next = s.now().Add(24 * time.Hour)
		}
		timer := time.NewTimer(next.Sub(s.now()))

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-s.reschedule:
			timer.Stop()
			continue
		case <-s.trigger:
			timer.Stop()
		case <-timer.C:
		}

		s.logger.Info().Msg("starting scheduled full listing")
		if err := s.push(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error().Err(err).Msg("scheduled full listing failed")
		}
	}
}

// String implements fmt.Stringer for supervisor logs.
func (s *Scheduler) String() string { return "full-listing-scheduler" }

// Poller fires a PushFunc at a fixed period, for adaptors that support
// incremental change listings. A zero period disables it; Serve then just
// parks on the context.
type Poller struct {
	period time.Duration
	poll   PushFunc
	logger zerolog.Logger
}

// NewPoller builds a fixed-period poller around poll.
func NewPoller(period time.Duration, poll PushFunc, logger *zerolog.Logger) *Poller {
	return &Poller{
		period: period,
		poll:   poll,
		logger: logger.With().Str("component", "schedule").Logger(),
	}
}

// Serve implements suture.Service.
func (p *Poller) Serve(ctx context.Context) error {
	if p.period <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	ticker := time.NewTicker(p.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.poll(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				p.logger.Error().Err(err).Msg("incremental poll failed")
			}
		}
	}
}

// String implements fmt.Stringer for supervisor logs.
func (p *Poller) String() string { return "incremental-poller" }
