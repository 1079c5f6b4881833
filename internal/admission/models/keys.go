package models

import (
	"strconv"
	"strings"
)

// SanitizeKeySegment escapes delimiter characters in window key segments to
// prevent key collision attacks where user-controlled identifiers containing
// ':' could manipulate adjacent counters.
func SanitizeKeySegment(s string) string {
	return strings.ReplaceAll(s, ":", "_")
}

// WindowKey builds the composite counter key for a (policy, client) pair.
func WindowKey(policyName, clientKey string) string {
	return SanitizeKeySegment(policyName) + ":" + SanitizeKeySegment(clientKey)
}

// ClientKeyFromMetadata derives a stable client key from request metadata.
// The first non-empty hop of the forwarded-address chain wins; without one we
// fall back to a hash of the user agent, prefixed so hashed keys can never
// collide with IP-derived ones.
func ClientKeyFromMetadata(md RequestMetadata) string {
	for _, hop := range strings.Split(md.ForwardedFor, ",") {
		if ip := strings.TrimSpace(hop); ip != "" {
			return ip
		}
	}
	ua := md.UserAgent
	if ua == "" {
		ua = "unknown"
	}
	return "ua-" + hashKey(ua)
}

// hashKey is a 32-bit rolling multiplicative hash rendered in base 36. Not
// cryptographic; it only needs to be deterministic and low-collision for
// typical user-agent strings.
func hashKey(s string) string {
	var h int32
	for _, c := range s {
		h = (h << 5) - h + c
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return strconv.FormatInt(v, 36)
}
