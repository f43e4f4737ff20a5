package proxy

import (
	"iptv-player/work/buffer"
	"iptv-player/work/client"
	"iptv-player/work/config"
	"iptv-player/work/logger"
)

// maxPlaylistBytes bounds how much of an upstream playlist is read into memory.
const maxPlaylistBytes = 16 << 20

// StreamProxy rewrites HLS playlists and relays their segments so that a browser
// only ever talks to this server. It holds no per-request state: every operation
// is a function of the upstream URL and the caller's public base URL, and may run
// concurrently with any other.
type StreamProxy struct {
	Config     *config.Config              // application configuration (URL obfuscation in logs)
	HttpClient *client.HeaderSettingClient // upstream client with spoofed headers and fixed limits
	BufferPool *buffer.BufferPool          // pooled copy buffers for segment relays
}

// New wires a StreamProxy from its collaborators. The client is injected rather
// than created here so that every component shares one configured transport.
func New(cfg *config.Config, httpClient *client.HeaderSettingClient, bufferPool *buffer.BufferPool) *StreamProxy {
	logger.Debug("{proxy/proxy - New} Initializing StreamProxy")

	if bufferPool == nil {
		bufferPool = buffer.NewBufferPool(0)
	}

	return &StreamProxy{
		Config:     cfg,
		HttpClient: httpClient,
		BufferPool: bufferPool,
	}
}
