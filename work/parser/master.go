package parser

import (
	"bufio"
	"strings"

	"github.com/grafov/m3u8"
)

// PlaylistKind is the HLS playlist flavour detected in a fetched body.
type PlaylistKind string

const (
	KindMaster  PlaylistKind = "master"
	KindMedia   PlaylistKind = "media"
	KindUnknown PlaylistKind = "unknown"
)

// PlaylistInfo summarises an HLS playlist for logging and metrics.
type PlaylistInfo struct {
	Kind     PlaylistKind
	Variants int // Variant streams of a master playlist
	Segments int // Media segments of a media playlist
}

// DetectPlaylist classifies an HLS playlist body. grafov/m3u8 is tried first in
// non-strict mode; when it rejects the body the tag heuristics decide instead.
// The result is informational only: rewriting never depends on it.
//
// Parameters:
//   - content: raw playlist body
//
// Returns:
//   - PlaylistInfo: detected kind with variant or segment counts when known
func DetectPlaylist(content string) (info PlaylistInfo) {
	info = PlaylistInfo{Kind: KindUnknown}

	defer func() {
		// grafov can panic on badly malformed input; heuristics still apply
		if recover() != nil {
			info = heuristicInfo(content)
		}
	}()

	playlist, listType, err := m3u8.DecodeFrom(bufio.NewReader(strings.NewReader(content)), false)
	if err != nil || playlist == nil {
		return heuristicInfo(content)
	}

	switch listType {
	case m3u8.MASTER:
		master, ok := playlist.(*m3u8.MasterPlaylist)
		if !ok {
			return heuristicInfo(content)
		}
		info.Kind = KindMaster
		info.Variants = len(master.Variants)
	case m3u8.MEDIA:
		media, ok := playlist.(*m3u8.MediaPlaylist)
		if !ok {
			return heuristicInfo(content)
		}
		info.Kind = KindMedia
		info.Segments = int(media.Count())
	}

	return info
}

func heuristicInfo(content string) PlaylistInfo {
	switch {
	case IsMasterPlaylist(content):
		return PlaylistInfo{Kind: KindMaster, Variants: strings.Count(content, "#EXT-X-STREAM-INF")}
	case IsMediaPlaylist(content):
		return PlaylistInfo{Kind: KindMedia, Segments: strings.Count(content, "#EXTINF")}
	}
	return PlaylistInfo{Kind: KindUnknown}
}

// IsMasterPlaylist reports whether content carries #EXT-X-STREAM-INF tags, the
// definitive marker of a master playlist.
func IsMasterPlaylist(content string) bool {
	return strings.Contains(content, "#EXT-X-STREAM-INF")
}

// IsMediaPlaylist reports whether content carries segment tags.
func IsMediaPlaylist(content string) bool {
	return strings.Contains(content, "#EXTINF") || strings.Contains(content, "#EXT-X-TARGETDURATION")
}

// HasHLSMarkers reports whether content looks like any HLS playlist at all.
func HasHLSMarkers(content string) bool {
	return strings.Contains(content, "#EXT")
}
