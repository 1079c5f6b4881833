package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientKeyFromMetadata(t *testing.T) {
	tests := []struct {
		name string
		md   RequestMetadata
		want string
	}{
		{
			name: "single forwarded address",
			md:   RequestMetadata{ForwardedFor: "203.0.113.7"},
			want: "203.0.113.7",
		},
		{
			name: "first hop of forwarded chain wins",
			md:   RequestMetadata{ForwardedFor: "203.0.113.7, 10.0.0.1, 172.16.0.1"},
			want: "203.0.113.7",
		},
		{
			name: "whitespace around hops is trimmed",
			md:   RequestMetadata{ForwardedFor: "  203.0.113.7 ,10.0.0.1"},
			want: "203.0.113.7",
		},
		{
			name: "empty leading hop is skipped",
			md:   RequestMetadata{ForwardedFor: " , 203.0.113.7"},
			want: "203.0.113.7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClientKeyFromMetadata(tt.md))
		})
	}

	t.Run("user agent fallback is prefixed and deterministic", func(t *testing.T) {
		md := RequestMetadata{UserAgent: "Mozilla/5.0 (X11; Linux x86_64)"}
		key := ClientKeyFromMetadata(md)
		assert.True(t, strings.HasPrefix(key, "ua-"))
		assert.Equal(t, key, ClientKeyFromMetadata(md))
	})

	t.Run("distinct user agents get distinct keys", func(t *testing.T) {
		a := ClientKeyFromMetadata(RequestMetadata{UserAgent: "curl/8.5.0"})
		b := ClientKeyFromMetadata(RequestMetadata{UserAgent: "Mozilla/5.0"})
		assert.NotEqual(t, a, b)
	})

	t.Run("empty metadata still yields a key", func(t *testing.T) {
		key := ClientKeyFromMetadata(RequestMetadata{})
		assert.True(t, strings.HasPrefix(key, "ua-"))
		assert.NotEqual(t, "ua-", key)
	})
}

func TestWindowKey(t *testing.T) {
	assert.Equal(t, "api:203.0.113.7", WindowKey("api", "203.0.113.7"))

	t.Run("delimiters in segments cannot forge adjacent keys", func(t *testing.T) {
		forged := WindowKey("api", "victim:chat")
		honest := WindowKey("api", "victim")
		assert.NotEqual(t, honest, forged)
		assert.Equal(t, "api:victim_chat", forged)
	})
}
