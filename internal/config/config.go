// Searchbridge Adaptor - Content Repository to Search Appliance Bridge
// Copyright 2026 Searchbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchbridge/adaptor

// Package config loads and watches the adaptor configuration.
//
// Configuration is layered via Koanf v2 (highest priority wins):
//
//   - -Dkey=value command line overrides
//   - Environment variables (ADAPTOR_ prefix, _ maps to .)
//   - Config file (yaml)
//   - Built-in defaults
//
// Keys follow the dotted form recognized by the appliance tooling, e.g.
// gsa.hostname, feed.maxUrls, adaptor.fullListingSchedule. A background
// poller can re-read the file and notify registered listeners of changed
// keys, so schedule changes take effect without a restart.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the complete adaptor configuration.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Gsa     GsaConfig     `koanf:"gsa"`
	DocID   DocIDConfig   `koanf:"docId"`
	Feed    FeedConfig    `koanf:"feed"`
	Adaptor AdaptorConfig `koanf:"adaptor"`
	Saml    SamlConfig    `koanf:"saml"`
	Session SessionConfig `koanf:"session"`
	Admin   AdminConfig   `koanf:"admin"`
	Log     LogConfig     `koanf:"log"`

	// extra carries adaptor-implementation keys outside the recognized
	// set, exposed through Value.
	extra map[string]string
}

// ServerConfig configures the serving side.
type ServerConfig struct {
	// Hostname is used when generating document URLs. Auto-detected when
	// empty.
	Hostname string `koanf:"hostname"`

	// Port is the main document listener.
	Port int `koanf:"port" validate:"gt=0,lt=65536"`

	// DashboardPort binds the administrator dashboard.
	DashboardPort int `koanf:"dashboardPort" validate:"gte=0,lt=65536"`

	// DocIdPath is the URL namespace for served documents.
	DocIdPath string `koanf:"docIdPath" validate:"startswith=/,endswith=/"`

	// Secure enables TLS on both listeners and client certificate
	// whitelisting on the document listener.
	Secure bool `koanf:"secure"`

	// KeyAlias names the keystore entry used for signing SAML messages.
	KeyAlias string `koanf:"keyAlias"`

	// GsaIps whitelists appliance addresses that may fetch documents
	// without authentication.
	GsaIps []string `koanf:"gsaIps"`

	// CertFile and KeyFile hold the TLS identity when Secure is set.
	CertFile string `koanf:"certFile"`
	KeyFile  string `koanf:"keyFile"`

	// ShutdownTimeout bounds the drain of in-flight requests.
	ShutdownTimeout time.Duration `koanf:"shutdownTimeout"`
}

// GsaConfig describes the target appliance.
type GsaConfig struct {
	// Hostname of the appliance receiving feeds. Required.
	Hostname string `koanf:"hostname" validate:"required"`

	// CharacterEncoding declared in generated feed files.
	CharacterEncoding string `koanf:"characterEncoding"`
}

// DocIDConfig tunes the identifier codec.
type DocIDConfig struct {
	// IsUrl enables URL passthrough mode.
	IsUrl bool `koanf:"isUrl"`
}

// FeedConfig tunes manifest construction and batching.
type FeedConfig struct {
	// Name is the datasource announced in feeds.
	Name string `koanf:"name" validate:"required"`

	// NoRecrawlBitEnabled propagates the crawl-once record hint.
	NoRecrawlBitEnabled bool `koanf:"noRecrawlBitEnabled"`

	// CrawlImmediatelyBitEnabled propagates the crawl-immediately hint.
	CrawlImmediatelyBitEnabled bool `koanf:"crawlImmediatelyBitEnabled"`

	// MaxUrls caps records per submitted batch.
	MaxUrls int `koanf:"maxUrls" validate:"gt=0"`
}

// AdaptorConfig drives scheduling of listings.
type AdaptorConfig struct {
	// FullListingSchedule is a cron expression for full pushes.
	FullListingSchedule string `koanf:"fullListingSchedule"`

	// IncrementalPollPeriodMillis is the interval between incremental polls
	// of adaptors that support them. Zero disables polling.
	IncrementalPollPeriodMillis int64 `koanf:"incrementalPollPeriodMillis" validate:"gte=0"`

	// ConfigPollPeriodMillis is the interval between config file re-reads.
	ConfigPollPeriodMillis int64 `koanf:"configPollPeriodMillis" validate:"gte=0"`
}

// IncrementalPollPeriod returns the incremental poll interval as a duration.
func (a AdaptorConfig) IncrementalPollPeriod() time.Duration {
	return time.Duration(a.IncrementalPollPeriodMillis) * time.Millisecond
}

// ConfigPollPeriod returns the config re-read interval as a duration.
func (a AdaptorConfig) ConfigPollPeriod() time.Duration {
	return time.Duration(a.ConfigPollPeriodMillis) * time.Millisecond
}

// SamlConfig points the authentication orchestrator at the identity
// provider on the appliance.
type SamlConfig struct {
	// IdpSSOURL is the identity provider single-sign-on endpoint.
	IdpSSOURL string `koanf:"idpSsoUrl"`

	// IdpEntityID identifies the peer. Configuration-bound, not derived
	// from metadata.
	IdpEntityID string `koanf:"idpEntityId"`

	// SpEntityID identifies this adaptor to the identity provider.
	SpEntityID string `koanf:"spEntityId"`

	// IdpCertFile holds the identity provider's signing certificate (PEM).
	IdpCertFile string `koanf:"idpCertFile"`

	// Expiry bounds how long an authenticated session is trusted when the
	// assertion carries no deadline of its own.
	Expiry time.Duration `koanf:"expiry"`
}

// SessionConfig tunes the cookie session store.
type SessionConfig struct {
	Lifetime      time.Duration `koanf:"lifetime" validate:"gt=0"`
	CleanupPeriod time.Duration `koanf:"cleanupPeriod" validate:"gt=0"`
}

// AdminConfig gates the dashboard.
type AdminConfig struct {
	Username string `koanf:"username"`
	// PasswordHash is a hex-encoded SHA-256 of the admin password.
	PasswordHash string `koanf:"passwordHash"`
}

// LogConfig mirrors the logging package configuration.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default returns the built-in defaults for the recognized key set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            5678,
			DocIdPath:       "/doc/",
			KeyAlias:        "adaptor",
			ShutdownTimeout: 10 * time.Second,
		},
		Gsa: GsaConfig{
			CharacterEncoding: "UTF-8",
		},
		Feed: FeedConfig{
			Name:    "testfeed",
			MaxUrls: 5000,
		},
		Adaptor: AdaptorConfig{
			FullListingSchedule:    "0 3 * * *",
			ConfigPollPeriodMillis: 15_000,
		},
		Saml: SamlConfig{
			Expiry: 30 * time.Minute,
		},
		Session: SessionConfig{
			Lifetime:      30 * time.Minute,
			CleanupPeriod: 5 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		extra: make(map[string]string),
	}
}

// Validate checks structural constraints. A missing gsa.hostname is fatal
// at startup.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("config: field %s fails rule %q", f.Namespace(), f.Tag())
		}
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Value returns an unrecognized (adaptor-implementation) key, with ok
// reporting presence.
func (c *Config) Value(key string) (string, bool) {
	v, ok := c.extra[key]
	return v, ok
}

// SetDefaultValue registers a default for an adaptor-implementation key.
// Called from Adaptor.InitConfig; the layered load overrides it when the
// key appears in any source.
func (c *Config) SetDefaultValue(key, value string) {
	if c.extra == nil {
		c.extra = make(map[string]string)
	}
	if _, ok := c.extra[key]; !ok {
		c.extra[key] = value
	}
}

// Hostname resolves the externally visible hostname, falling back to the
// operating system hostname when unconfigured.
func (c *Config) Hostname() string {
	if c.Server.Hostname != "" {
		return c.Server.Hostname
	}
	h, err := os.Hostname()
	if err != nil {
		return "localhost"
	}
	return h
}
