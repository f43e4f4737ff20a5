package proxy

import (
	"net/url"
	"path"
	"strings"

	"iptv-player/work/types"
)

// Resolve turns a playlist reference into an absolute URL.
//
//   - http:// and https:// references are returned unchanged.
//   - "//host/x" inherits the scheme of playlistURL.
//   - "/x" is appended to scheme://host of playlistURL.
//   - anything else is appended to playlistBaseURL.
//
// Dot segments are not normalised. An empty reference resolves to "".
func Resolve(reference, playlistBaseURL, playlistURL string) string {
	if reference == "" {
		return ""
	}
	if isAbsolute(reference) {
		return reference
	}

	if strings.HasPrefix(reference, "/") {
		u, err := url.Parse(playlistURL)
		if err != nil || u.Host == "" {
			return playlistBaseURL + strings.TrimPrefix(reference, "/")
		}
		if strings.HasPrefix(reference, "//") {
			return u.Scheme + ":" + reference
		}
		return origin(u) + reference
	}

	return playlistBaseURL + reference
}

// BaseURL returns playlistURL truncated after the last "/" of its path, without
// query or fragment.
func BaseURL(playlistURL string) string {
	u, err := url.Parse(playlistURL)
	if err != nil || u.Host == "" {
		return playlistURL[:strings.LastIndex(playlistURL, "/")+1]
	}

	dir := u.EscapedPath()
	dir = dir[:strings.LastIndex(dir, "/")+1]
	if dir == "" {
		dir = "/"
	}
	return origin(u) + dir
}

// origin renders scheme, userinfo and host of u. Credentials embedded in a
// provider URL must reach every resolved reference.
func origin(u *url.URL) string {
	o := url.URL{Scheme: u.Scheme, User: u.User, Host: u.Host}
	return o.String()
}

func isAbsolute(reference string) bool {
	lower := strings.ToLower(reference)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// IsPlaylistURL reports whether a resolved URL points at an HLS playlist, judged
// by the .m3u8 extension of its path so that query tokens do not hide it.
func IsPlaylistURL(resolved string) bool {
	p := resolved
	if u, err := url.Parse(resolved); err == nil {
		p = u.Path
	}
	return strings.EqualFold(path.Ext(p), ".m3u8")
}

// ClassifyReference tags a resolved reference. Tag URIs are keys unless they
// point at a playlist (EXT-X-MEDIA renditions, I-frame playlists).
func ClassifyReference(raw, resolved string, fromTag bool) types.StreamReference {
	ref := types.StreamReference{Raw: raw, Resolved: resolved, Kind: types.ReferenceSegment}
	switch {
	case IsPlaylistURL(resolved):
		ref.Kind = types.ReferencePlaylist
	case fromTag:
		ref.Kind = types.ReferenceKey
	}
	return ref
}
