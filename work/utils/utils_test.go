package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"iptv-player/work/config"
)

func TestObfuscateURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"http://example.com/secret/stream.m3u8?token=abc", "http://example.com/***?***"},
		{"https://example.com/", "https://example.com"},
		{"https://example.com/live#frag", "https://example.com/***#***"},
		{"not a url", "***OBFUSCATED***"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ObfuscateURL(tt.in), tt.in)
	}
}

func TestLogURL(t *testing.T) {
	u := "http://example.com/a/b.ts"
	assert.Equal(t, u, LogURL(&config.Config{}, u))
	assert.Equal(t, "http://example.com/***", LogURL(&config.Config{ObfuscateUrls: true}, u))
	assert.Equal(t, u, LogURL(nil, u))
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.0 KiB", FormatBytes(1024))
	assert.Equal(t, "1.5 MiB", FormatBytes(1536*1024))
}
