package parser

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iptv-player/work/types"
)

const sampleList = `#EXTM3U
#EXTINF:-1 tvg-id="cctv1" tvg-name="CCTV-1" tvg-logo="http://logo/cctv1.png" group-title="News, Central",CCTV-1 综合
http://example.com/cctv1.m3u8

#EXTINF:-1 tvg-name="Movies 1",Movie Channel
#EXTGRP:Films
http://example.com/movie.m3u8
#EXTINF:-1,Bare
rtmp://example.com/live/bare
`

func TestParseChannelList(t *testing.T) {
	list, err := ParseChannelList(strings.NewReader(sampleList), "text")
	require.NoError(t, err)
	require.Len(t, list.Channels, 3)

	first := list.Channels[0]
	assert.Equal(t, "CCTV-1 综合", first.Name)
	assert.Equal(t, "http://example.com/cctv1.m3u8", first.URL)
	assert.Equal(t, "cctv1", first.TvgID)
	assert.Equal(t, "CCTV-1", first.TvgName)
	assert.Equal(t, "http://logo/cctv1.png", first.Logo)
	assert.Equal(t, "News, Central", first.GroupTitle)
	assert.Equal(t, types.StatusUnknown, first.Status)

	assert.Equal(t, "Movie Channel", list.Channels[1].Name)
	assert.Equal(t, "Films", list.Channels[1].GroupTitle)

	assert.Equal(t, "Bare", list.Channels[2].Name)
	assert.Equal(t, DefaultGroup, list.Channels[2].GroupTitle)

	assert.Equal(t, []string{"News, Central", "Films", DefaultGroup}, list.Groups)
}

func TestParseChannelListCRLF(t *testing.T) {
	body := "#EXTM3U\r\n#EXTINF:-1 group-title=\"A\",One\r\nhttp://x/1.m3u8\r\n"
	list, err := ParseChannelList(strings.NewReader(body), "text")
	require.NoError(t, err)
	require.Len(t, list.Channels, 1)
	assert.Equal(t, "http://x/1.m3u8", list.Channels[0].URL)
	assert.Equal(t, "One", list.Channels[0].Name)
}

func TestParseChannelListInvalid(t *testing.T) {
	for _, body := range []string{"", "hello world", "#EXTM3U\n#EXTINF:-1,No URL\n"} {
		_, err := ParseChannelList(strings.NewReader(body), "upload.m3u")
		var ece *EmptyContentError
		require.True(t, errors.As(err, &ece), "body %q", body)
		assert.Contains(t, err.Error(), "invalid M3U content")
	}
}

func TestParseEXTINF(t *testing.T) {
	attrs := ParseEXTINF(`#EXTINF:-1 tvg-id="a" group-title="x,y" TVG-LOGO="l.png",Name, with comma`)
	assert.Equal(t, "-1", attrs["duration"])
	assert.Equal(t, "a", attrs["tvg-id"])
	assert.Equal(t, "x,y", attrs["group-title"])
	assert.Equal(t, "l.png", attrs["tvg-logo"])
	assert.Equal(t, "with comma", attrs["name"])
}

func TestRenderChannelListRoundTrip(t *testing.T) {
	list, err := ParseChannelList(strings.NewReader(sampleList), "text")
	require.NoError(t, err)

	again, err := ParseChannelList(strings.NewReader(RenderChannelList(list.Channels)), "export")
	require.NoError(t, err)
	require.Len(t, again.Channels, len(list.Channels))
	for i := range list.Channels {
		assert.Equal(t, list.Channels[i].URL, again.Channels[i].URL)
		assert.Equal(t, list.Channels[i].GroupTitle, again.Channels[i].GroupTitle)
		assert.Equal(t, list.Channels[i].TvgID, again.Channels[i].TvgID)
	}
}

func TestDetectPlaylist(t *testing.T) {
	master := "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=1280000\nlow/index.m3u8\n#EXT-X-STREAM-INF:BANDWIDTH=2560000\nhi/index.m3u8\n"
	media := "#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:10\n#EXT-X-MEDIA-SEQUENCE:0\n#EXTINF:10.0,\nseg0.ts\n#EXTINF:10.0,\nseg1.ts\n"

	m := DetectPlaylist(master)
	assert.Equal(t, KindMaster, m.Kind)
	assert.Equal(t, 2, m.Variants)

	md := DetectPlaylist(media)
	assert.Equal(t, KindMedia, md.Kind)
	assert.Equal(t, 2, md.Segments)

	assert.Equal(t, KindUnknown, DetectPlaylist("<html>nope</html>").Kind)
	assert.False(t, HasHLSMarkers("<html>nope</html>"))
	assert.True(t, HasHLSMarkers(media))
}
