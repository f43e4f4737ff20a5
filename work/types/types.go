package types

import (
	"io"
)

// ReferenceKind classifies a URI found inside an HLS playlist. The kind decides which
// proxy route the rewritten reference points at: playlists recurse through the
// playlist route, everything else is relayed byte for byte.
type ReferenceKind int

const (
	ReferenceSegment  ReferenceKind = iota // Media segment (.ts, .m4s, .aac, ...)
	ReferencePlaylist                      // Nested or variant playlist (.m3u8)
	ReferenceKey                           // URI attribute of a tag line (EXT-X-KEY, EXT-X-MAP, ...)
)

// String returns the metric/log label of the kind.
func (k ReferenceKind) String() string {
	switch k {
	case ReferencePlaylist:
		return "playlist"
	case ReferenceKey:
		return "key"
	default:
		return "segment"
	}
}

// StreamReference is a single URI extracted from a playlist line together with the
// absolute URL it resolves to. References live only for the duration of one rewrite.
type StreamReference struct {
	Raw      string        // Text exactly as it appeared in the playlist
	Resolved string        // Absolute URL after resolution against the playlist location
	Kind     ReferenceKind // Segment, nested playlist or tag URI
}

// ProbeResult is the outcome of one liveness check. Exactly one of Status and Error
// is populated; ResponseTime is always populated and measured from dispatch to the
// final answer, across both the HEAD attempt and the ranged GET fallback.
type ProbeResult struct {
	URL          string `json:"url,omitempty"`
	Success      bool   `json:"online"`
	ResponseTime int64  `json:"responseTime"`     // Milliseconds
	Status       int    `json:"status,omitempty"` // HTTP status of the deciding attempt
	Error        string `json:"error,omitempty"`  // Classified failure reason when no status was obtained
}

// RelayEnvelope carries an upstream response that is being passed through to a
// client. Body is a streaming handle owned by the caller, who must close it.
type RelayEnvelope struct {
	ContentType   string        // Upstream Content-Type, or a fallback for the resource class
	StatusCode    int           // 200, or 206 when a Range request was honoured
	ContentLength int64         // -1 when unknown
	ContentRange  string        // Mirrored Content-Range for partial responses
	Kind          ReferenceKind // Resource class the content type was inferred for
	Body          io.ReadCloser // Upstream body, streamed to the client
}

// ChannelStatus is the last known reachability of a channel.
type ChannelStatus string

const (
	StatusUnknown ChannelStatus = "unknown"
	StatusOnline  ChannelStatus = "online"
	StatusOffline ChannelStatus = "offline"
)

// Valid reports whether s is one of the known statuses.
func (s ChannelStatus) Valid() bool {
	switch s {
	case StatusUnknown, StatusOnline, StatusOffline:
		return true
	}
	return false
}

// Channel is a stored streaming channel, as imported from an M3U list or created
// by hand. LastTested and ResponseTime stay nil until the channel has been probed.
type Channel struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	URL          string        `json:"url"`
	Logo         string        `json:"logo,omitempty"`
	GroupTitle   string        `json:"group_title"`
	TvgID        string        `json:"tvg_id,omitempty"`
	TvgName      string        `json:"tvg_name,omitempty"`
	Status       ChannelStatus `json:"status"`
	LastTested   *int64        `json:"last_tested,omitempty"`   // Unix milliseconds
	ResponseTime *int64        `json:"response_time,omitempty"` // Milliseconds
	CreatedAt    int64         `json:"created_at"`              // Unix milliseconds
	UpdatedAt    int64         `json:"updated_at"`              // Unix milliseconds
}

// ChannelUpdate is a partial update; nil fields are left untouched.
type ChannelUpdate struct {
	Name       *string        `json:"name,omitempty"`
	URL        *string        `json:"url,omitempty"`
	Logo       *string        `json:"logo,omitempty"`
	GroupTitle *string        `json:"group_title,omitempty"`
	TvgID      *string        `json:"tvg_id,omitempty"`
	TvgName    *string        `json:"tvg_name,omitempty"`
	Status     *ChannelStatus `json:"status,omitempty"`
}

// ChannelFilter narrows a channel listing. Empty fields match everything.
type ChannelFilter struct {
	Search string
	Group  string
	Status ChannelStatus
}

// ChannelStats summarises channel reachability.
type ChannelStats struct {
	Total   int `json:"total"`
	Online  int `json:"online"`
	Offline int `json:"offline"`
	Unknown int `json:"unknown"`
}

// ImportType records where an imported channel list came from.
type ImportType string

const (
	ImportURL  ImportType = "url"
	ImportFile ImportType = "file"
	ImportText ImportType = "text"
)

// ImportHistory is one completed channel list import.
type ImportHistory struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	URL          string     `json:"url,omitempty"`
	Type         ImportType `json:"type"`
	ChannelCount int        `json:"channel_count"`
	ImportedAt   int64      `json:"imported_at"` // Unix milliseconds
}

// ChannelTestResult pairs a channel with the probe that tested it.
type ChannelTestResult struct {
	ID     string        `json:"id"`
	Status ChannelStatus `json:"status"`
	ProbeResult
}
