// Package config loads MailCrab's runtime configuration from environment
// variables, using sensible defaults so the binary runs with zero setup.
package config

import (
	"fmt"
	"net"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds the complete MailCrab runtime configuration.
type Config struct {
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Prefix    string          `mapstructure:"prefix"`
	Retention RetentionConfig `mapstructure:"retention"`
	Broadcast BroadcastConfig `mapstructure:"broadcast"`
}

// SMTPConfig holds inbound SMTP listener settings.
type SMTPConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	EnableTLSAuth bool   `mapstructure:"enable_tls_auth"`
}

// Addr returns the "host:port" listen address for the SMTP server.
func (s SMTPConfig) Addr() string {
	return net.JoinHostPort(s.Host, fmt.Sprintf("%d", s.Port))
}

// HTTPConfig holds the read-only metadata/message API bind settings.
type HTTPConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns the "host:port" listen address for the HTTP API.
func (h HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, fmt.Sprintf("%d", h.Port))
}

// RetentionConfig controls how long messages are kept in the store before
// the sweeper evicts them. A zero period disables eviction entirely.
type RetentionConfig struct {
	PeriodSeconds int `mapstructure:"period_seconds"`
}

// BroadcastConfig controls the live-subscription fan-out bus.
type BroadcastConfig struct {
	QueueCapacity int `mapstructure:"queue_capacity"`
}

// envKeyMap maps the literal environment variable names from MailCrab's
// configuration surface onto koanf's dotted key paths. The variable names
// aren't uniformly namespaced (SMTP_HOST vs MAILCRAB_PREFIX vs
// QUEUE_CAPACITY), so a generic prefix-strip transform can't express this;
// each name is mapped explicitly instead.
var envKeyMap = map[string]string{
	"SMTP_HOST":                 "smtp.host",
	"SMTP_PORT":                 "smtp.port",
	"HTTP_HOST":                 "http.host",
	"HTTP_PORT":                 "http.port",
	"ENABLE_TLS_AUTH":           "smtp.enable_tls_auth",
	"MAILCRAB_PREFIX":           "prefix",
	"MAILCRAB_RETENTION_PERIOD": "retention.period_seconds",
	"QUEUE_CAPACITY":            "broadcast.queue_capacity",
}

// defaults returns the default configuration as a flat map using koanf's "."
// key delimiter for nested paths.
func defaults() map[string]interface{} {
	return map[string]interface{}{
		"smtp.host":                "0.0.0.0",
		"smtp.port":                1025,
		"smtp.enable_tls_auth":     false,
		"http.host":                "127.0.0.1",
		"http.port":                1080,
		"prefix":                   "",
		"retention.period_seconds": 0,
		"broadcast.queue_capacity": 32,
	}
}

// Load reads configuration from defaults overlaid with environment
// variables. MailCrab has no config file: it is meant to run with zero
// setup, so every knob is an env var with a workable default.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if err := k.Load(env.Provider("", ".", func(s string) string {
		if mapped, ok := envKeyMap[s]; ok {
			return mapped
		}
		return ""
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env variables: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "mapstructure"}); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return &cfg, nil
}
