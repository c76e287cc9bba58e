// Searchbridge Adaptor - Content Repository to Search Appliance Bridge
// Copyright 2026 Searchbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchbridge/adaptor

// Package main runs the adaptor process.
//
// The process bridges a content repository to a search appliance: a cron
// scheduler pushes full document listings as XML feeds, an HTTP listener
// serves document content to the appliance's crawler, and SAML endpoints
// answer its authentication and authorization questions. An administrator
// dashboard with Prometheus metrics runs on a second port.
//
// Components run under a suture supervision tree; a crash in the push
// machinery does not take down the serving side. Shutdown on SIGINT or
// SIGTERM cancels the tree, which interrupts any running push, drains the
// listeners, and finally destroys the adaptor.
//
// Configuration is layered (flags, environment, yaml file, defaults):
//
//	./server -config adaptor.yaml -Dgsa.hostname=gsa.example.com -Dfeed.name=docs
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os/signal"
	"strings"
	"syscall"

	"github.com/searchbridge/adaptor/internal/adaptor"
	"github.com/searchbridge/adaptor/internal/authn"
	"github.com/searchbridge/adaptor/internal/authz"
	"github.com/searchbridge/adaptor/internal/config"
	"github.com/searchbridge/adaptor/internal/dashboard"
	"github.com/searchbridge/adaptor/internal/docid"
	"github.com/searchbridge/adaptor/internal/feed"
	"github.com/searchbridge/adaptor/internal/fsadaptor"
	"github.com/searchbridge/adaptor/internal/journal"
	"github.com/searchbridge/adaptor/internal/logging"
	"github.com/searchbridge/adaptor/internal/schedule"
	"github.com/searchbridge/adaptor/internal/server"
	"github.com/searchbridge/adaptor/internal/session"
	"github.com/searchbridge/adaptor/internal/supervisor"
	"github.com/searchbridge/adaptor/internal/unzip"
)

// overrideFlag collects repeated -D key=value settings.
type overrideFlag map[string]string

func (o overrideFlag) String() string { return fmt.Sprint(map[string]string(o)) }

func (o overrideFlag) Set(v string) error {
	key, value, ok := strings.Cut(v, "=")
	if !ok {
		return fmt.Errorf("override %q is not key=value", v)
	}
	o[key] = value
	return nil
}

func main() {
	if err := run(); err != nil {
		logger := logging.Logger()
		logger.Fatal().Err(err).Msg("adaptor failed")
	}
}

func run() error {
	configPath := flag.String("config", "", "path to the yaml configuration file")
	overrides := make(overrideFlag)
	flag.Var(overrides, "D", "configuration override key=value, repeatable")
	flag.Parse()

	cfg, err := config.Load(*configPath, overrides)
	if err != nil {
		return err
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	logger := logging.Logger()
	logger.Info().
		Str("gsa", cfg.Gsa.Hostname).
		Str("feed", cfg.Feed.Name).
		Int("port", cfg.Server.Port).
		Msg("starting adaptor")

	// The built-in filesystem adaptor, with archives exposed as document
	// trees.
	a := unzip.Wrap(fsadaptor.New(&logger), &logger)
	a.InitConfig(cfg)

	scheme := "http"
	if cfg.Server.Secure {
		scheme = "https"
	}
	base, err := url.Parse(fmt.Sprintf("%s://%s:%d", scheme, cfg.Hostname(), cfg.Server.Port))
	if err != nil {
		return fmt.Errorf("building base URL: %w", err)
	}
	codec, err := docid.NewCodec(base, cfg.Server.DocIdPath, cfg.DocID.IsUrl)
	if err != nil {
		return err
	}

	j := journal.New()
	maker := feed.NewMaker(codec, cfg.Feed.Name, cfg.Gsa.CharacterEncoding,
		cfg.Feed.CrawlImmediatelyBitEnabled, cfg.Feed.NoRecrawlBitEnabled)
	sender := feed.NewHTTPSender(cfg.Gsa.Hostname, cfg.Server.Secure, nil)
	pusher := feed.NewPusher(maker, sender, j, cfg.Feed.MaxUrls, &logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	actx := &adaptorContext{cfg: cfg, pusher: pusher}
	if err := a.Init(ctx, actx); err != nil {
		return fmt.Errorf("initializing adaptor: %w", err)
	}
	defer func() {
		if err := a.Destroy(); err != nil {
			logger.Error().Err(err).Msg("adaptor destroy failed")
		}
	}()

	scheduler, err := schedule.New(cfg.Adaptor.FullListingSchedule, func(ctx context.Context) error {
		err := pusher.FullPush(ctx, a, nil)
		if errors.Is(err, feed.ErrPushAlreadyRunning) {
			return nil
		}
		return err
	}, &logger)
	if err != nil {
		return err
	}

	watcher := config.NewWatcher(cfg, *configPath, overrides, &logger)
	watcher.Subscribe(scheduler.ConfigChanged)

	sessions := session.NewStore(cfg.Session.Lifetime, cfg.Session.CleanupPeriod, cfg.Server.Secure, &logger)

	var identities server.IdentityProvider
	var authenticator *authn.Authenticator
	if cfg.Saml.IdpSSOURL != "" {
		authenticator, err = authn.New(cfg, sessions, &logger)
		if err != nil {
			return fmt.Errorf("configuring SAML authentication: %w", err)
		}
		identities = authenticator
	}

	routes := server.Routes{
		Docs: server.NewDocHandler(codec, a, j, identities, cfg.Server.GsaIps, cfg.Server.Secure,
			fmt.Sprintf("%s:%d", cfg.Hostname(), cfg.Server.Port), &logger),
		Authz: authz.NewHandler(codec, a, &logger),
		Dashboard: dashboard.New(cfg, sessions, j,
			dashboard.NewMonitor(dashboard.JournalSources(j)...), scheduler, &logger),
	}
	if authenticator != nil {
		routes.Authn = http.HandlerFunc(authenticator.Initiate)
		routes.AssertionConsumer = http.HandlerFunc(authenticator.Consume)
	}
	srv := server.New(cfg, routes, &logger)

	treeConfig := supervisor.DefaultTreeConfig()
	if cfg.Server.ShutdownTimeout > 0 {
		treeConfig.ShutdownTimeout = cfg.Server.ShutdownTimeout
	}
	tree := supervisor.NewTree(slog.New(logging.NewSlogHandler(logger)), treeConfig)

	tree.AddPushService(scheduler)
	tree.AddPushService(watcher)
	if il, ok := a.(adaptor.IncrementalLister); ok {
		tree.AddPushService(schedule.NewPoller(cfg.Adaptor.IncrementalPollPeriod(), func(ctx context.Context) error {
			return il.GetModifiedDocIDs(ctx, pusher)
		}, &logger))
	}
	tree.AddServeService(supervisor.NewHTTPService(srv.Docs(), treeConfig.ShutdownTimeout))
	if cfg.Server.DashboardPort > 0 {
		tree.AddServeService(supervisor.NewHTTPService(srv.Dashboard(), treeConfig.ShutdownTimeout))
	}

	err = tree.Serve(ctx)
	if report, reportErr := tree.UnstoppedServiceReport(); reportErr == nil && len(report) > 0 {
		for _, s := range report {
			logger.Warn().Str("service", s.Name).Msg("service did not stop in time")
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info().Msg("adaptor stopped")
	return nil
}

// adaptorContext is the framework environment handed to Adaptor.Init.
type adaptorContext struct {
	cfg    *config.Config
	pusher adaptor.Pusher
}

func (c *adaptorContext) Config() *config.Config      { return c.cfg }
func (c *adaptorContext) DocIdPusher() adaptor.Pusher { return c.pusher }
