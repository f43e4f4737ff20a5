package proxy

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/grafana/regexp"

	"iptv-player/work/client"
	"iptv-player/work/logger"
	"iptv-player/work/metrics"
	"iptv-player/work/parser"
	"iptv-player/work/types"
	"iptv-player/work/utils"
)

// Route paths appended to the caller's base URL in rewritten playlists.
const (
	PlaylistRoute = "/proxy/m3u8"
	StreamRoute   = "/proxy/stream"
)

var uriAttrPattern = regexp.MustCompile(`URI="([^"]*)"`)

// RewritePlaylist fetches an upstream playlist and rewrites every reference in it
// into a proxy URL under requestBaseURL.
//
// Parameters:
//   - ctx: request context; cancelling it aborts the upstream fetch
//   - playlistURL: absolute URL of the upstream playlist
//   - requestBaseURL: public base URL of this server including the API prefix
//
// Returns:
//   - string: rewritten playlist body
//   - error: *client.UpstreamFetchError when the origin fails or answers non-2xx,
//     *parser.EmptyContentError when the body is empty or is not a playlist
func (sp *StreamProxy) RewritePlaylist(ctx context.Context, playlistURL, requestBaseURL string) (string, error) {
	logURL := utils.LogURL(sp.Config, playlistURL)
	logger.Debug("{proxy/playlist - RewritePlaylist} Fetching playlist %s", logURL)

	body, err := sp.HttpClient.FetchText(ctx, playlistURL, maxPlaylistBytes)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues("playlist", outcome(err)).Inc()
		logger.Warn("{proxy/playlist - RewritePlaylist} Fetch failed for %s: %v", logURL, err)
		return "", err
	}
	metrics.UpstreamRequests.WithLabelValues("playlist", "ok").Inc()

	if strings.TrimSpace(body) == "" {
		return "", &parser.EmptyContentError{Source: logURL, Reason: "empty playlist"}
	}
	if !parser.HasHLSMarkers(body) {
		return "", &parser.EmptyContentError{Source: logURL, Reason: "no HLS markers in playlist"}
	}

	info := parser.DetectPlaylist(body)
	metrics.PlaylistRewrites.WithLabelValues(string(info.Kind)).Inc()
	logger.Debug("{proxy/playlist - RewritePlaylist} %s playlist (%d variants, %d segments) from %s",
		info.Kind, info.Variants, info.Segments, logURL)

	return RewriteBody(body, playlistURL, requestBaseURL), nil
}

// RewriteBody is the pure line-based rewrite of a playlist body. Lines are split
// on "\n" and joined back the same way, so line count and the trailing newline
// survive. Tag lines keep every byte except the contents of URI="..." attributes;
// reference lines are replaced by proxy URLs and keep a CRLF ending; blank lines
// pass through.
func RewriteBody(body, playlistURL, requestBaseURL string) string {
	base := BaseURL(playlistURL)
	lines := strings.Split(body, "\n")

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			continue
		case strings.HasPrefix(trimmed, "#"):
			if strings.Contains(line, `URI="`) {
				lines[i] = rewriteTagURIs(line, base, playlistURL, requestBaseURL)
			}
		default:
			resolved := Resolve(trimmed, base, playlistURL)
			lines[i] = ProxyURL(ClassifyReference(trimmed, resolved, false), requestBaseURL)
			if strings.HasSuffix(line, "\r") {
				lines[i] += "\r"
			}
		}
	}

	return strings.Join(lines, "\n")
}

func rewriteTagURIs(line, base, playlistURL, requestBaseURL string) string {
	return uriAttrPattern.ReplaceAllStringFunc(line, func(attr string) string {
		raw := uriAttrPattern.FindStringSubmatch(attr)[1]
		resolved := Resolve(raw, base, playlistURL)
		if resolved == "" {
			return attr
		}
		return `URI="` + ProxyURL(ClassifyReference(raw, resolved, true), requestBaseURL) + `"`
	})
}

// ProxyURL builds the same-origin URL that serves ref through this server.
func ProxyURL(ref types.StreamReference, requestBaseURL string) string {
	route := StreamRoute
	if ref.Kind == types.ReferencePlaylist {
		route = PlaylistRoute
	}
	return requestBaseURL + route + "?url=" + url.QueryEscape(ref.Resolved)
}

// outcome is the metrics label for an upstream error.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var ufe *client.UpstreamFetchError
	if errors.As(err, &ufe) {
		return string(ufe.Reason)
	}
	return string(client.ReasonNetwork)
}
