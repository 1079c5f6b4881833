package models

import "time"

// Policy is an immutable, named rate limit configuration. Policies are
// supplied by configuration at startup and never mutate afterwards.
type Policy struct {
	Name   string
	Limit  int
	Window time.Duration
}

// IsValid checks that a policy can actually admit requests.
func (p Policy) IsValid() bool {
	return p.Name != "" && p.Limit > 0 && p.Window > 0
}

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds, only set when denied
}

// RequestMetadata carries the caller-supplied network identity used to derive
// a client key. Both fields may be empty; Identify falls back accordingly.
type RequestMetadata struct {
	ForwardedFor string // comma-separated forwarded-address chain
	UserAgent    string
}
