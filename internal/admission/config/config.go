// Package config holds the admission policy table. Policies are resolved once
// at startup and treated as immutable afterwards.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"spendgate/internal/admission/models"
)

// Well-known policy names used by the request layer.
const (
	PolicyChat = "chat"
	PolicyAuth = "auth"
	PolicyAPI  = "api"
)

// Config maps policy names to their limits.
type Config struct {
	policies map[string]models.Policy
}

// Default returns the stock policy table: AI chat endpoints are the most
// restrictive, auth endpoints tighter than general API traffic.
func Default() *Config {
	return New(
		models.Policy{Name: PolicyChat, Limit: 20, Window: time.Minute},
		models.Policy{Name: PolicyAuth, Limit: 10, Window: time.Minute},
		models.Policy{Name: PolicyAPI, Limit: 100, Window: time.Minute},
	)
}

// New builds a config from explicit policies. Invalid policies are dropped so
// a zero limit can never be interpreted as unlimited.
func New(policies ...models.Policy) *Config {
	c := &Config{policies: make(map[string]models.Policy, len(policies))}
	for _, p := range policies {
		if p.IsValid() {
			c.policies[p.Name] = p
		}
	}
	return c
}

// FromEnv returns the default table with per-policy env overrides applied,
// e.g. RATELIMIT_CHAT_LIMIT=5 RATELIMIT_CHAT_WINDOW=30s.
func FromEnv() *Config {
	c := Default()
	for name, p := range c.policies {
		prefix := "RATELIMIT_" + strings.ToUpper(name)
		if v := os.Getenv(prefix + "_LIMIT"); v != "" {
			if limit, err := strconv.Atoi(v); err == nil && limit > 0 {
				p.Limit = limit
			}
		}
		if v := os.Getenv(prefix + "_WINDOW"); v != "" {
			if window, err := time.ParseDuration(v); err == nil && window > 0 {
				p.Window = window
			}
		}
		c.policies[name] = p
	}
	return c
}

// Policy looks up a named policy. The second return is false when no policy
// with that name is configured.
func (c *Config) Policy(name string) (models.Policy, bool) {
	p, ok := c.policies[name]
	return p, ok
}

// Names returns the configured policy names.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.policies))
	for name := range c.policies {
		names = append(names, name)
	}
	return names
}
