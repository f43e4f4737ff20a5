package proxy

import (
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	"iptv-player/work/client"
	"iptv-player/work/logger"
	"iptv-player/work/metrics"
	"iptv-player/work/types"
	"iptv-player/work/utils"
)

// DefaultSegmentType is used when an upstream segment carries no Content-Type
// and its extension is not recognised.
const DefaultSegmentType = "video/mp2t"

// HLSContentType is the content type of every rewritten playlist.
const HLSContentType = "application/vnd.apple.mpegurl"

var extensionTypes = map[string]string{
	".ts":   "video/mp2t",
	".m4s":  "video/iso.segment",
	".mp4":  "video/mp4",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".mp3":  "audio/mpeg",
	".vtt":  "text/vtt",
	".key":  "application/octet-stream",
	".bin":  "application/octet-stream",
	".m3u8": HLSContentType,
}

// Relay opens an upstream resource for pass-through. The returned envelope owns
// the upstream body; the caller streams it and must close it.
//
// Parameters:
//   - ctx: request context; cancelling it tears down the upstream connection
//   - resourceURL: absolute URL of the segment, key or other resource
//   - rangeHeader: inbound Range header forwarded upstream when non-empty
//
// Returns:
//   - *types.RelayEnvelope: content type, status and streaming body
//   - error: *client.UpstreamFetchError on network failure or a status other than 200/206
func (sp *StreamProxy) Relay(ctx context.Context, resourceURL, rangeHeader string) (*types.RelayEnvelope, error) {
	logURL := utils.LogURL(sp.Config, resourceURL)

	var extra http.Header
	if rangeHeader != "" {
		extra = http.Header{"Range": {rangeHeader}}
	}

	resp, err := sp.HttpClient.Get(ctx, resourceURL, extra)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues("segment", outcome(err)).Inc()
		logger.Warn("{proxy/stream - Relay} Upstream request failed for %s: %v", logURL, err)
		return nil, err
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		resp.Body.Close()
		err := &client.UpstreamFetchError{URL: resourceURL, StatusCode: resp.StatusCode, Reason: client.ReasonStatus}
		metrics.UpstreamRequests.WithLabelValues("segment", string(err.Reason)).Inc()
		logger.Warn("{proxy/stream - Relay} Upstream returned %d for %s", resp.StatusCode, logURL)
		return nil, err
	}
	metrics.UpstreamRequests.WithLabelValues("segment", "ok").Inc()

	kind := resourceKind(resourceURL)
	envelope := &types.RelayEnvelope{
		ContentType:   resp.Header.Get("Content-Type"),
		StatusCode:    resp.StatusCode,
		ContentLength: resp.ContentLength,
		ContentRange:  resp.Header.Get("Content-Range"),
		Kind:          kind,
		Body:          resp.Body,
	}
	if envelope.ContentType == "" {
		envelope.ContentType = InferContentType(resourceURL)
	}

	logger.Debug("{proxy/stream - Relay} Relaying %s (%s, status %d)", logURL, envelope.ContentType, resp.StatusCode)
	return envelope, nil
}

// Stream copies the envelope body to w using a pooled buffer and closes the body.
// Header writing is the caller's concern.
func (sp *StreamProxy) Stream(w io.Writer, env *types.RelayEnvelope) (int64, error) {
	defer env.Body.Close()

	metrics.ActiveRelays.Inc()
	defer metrics.ActiveRelays.Dec()

	n, err := sp.BufferPool.Copy(w, env.Body)
	metrics.BytesRelayed.WithLabelValues(env.Kind.String()).Add(float64(n))
	if err != nil {
		logger.Debug("{proxy/stream - Stream} Relay ended after %s: %v", utils.FormatBytes(n), err)
	}
	return n, err
}

// InferContentType picks a content type from the URL's extension, falling back
// to DefaultSegmentType.
func InferContentType(resourceURL string) string {
	ext := strings.ToLower(path.Ext(urlPath(resourceURL)))
	if t, ok := extensionTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); ext != "" && t != "" {
		return t
	}
	return DefaultSegmentType
}

func resourceKind(resourceURL string) types.ReferenceKind {
	switch strings.ToLower(path.Ext(urlPath(resourceURL))) {
	case ".m3u8":
		return types.ReferencePlaylist
	case ".key", ".bin":
		return types.ReferenceKey
	}
	return types.ReferenceSegment
}

func urlPath(raw string) string {
	if u, err := url.Parse(raw); err == nil {
		return u.Path
	}
	return raw
}
