package handlers

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"iptv-player/work/client"
	"iptv-player/work/config"
	"iptv-player/work/probe"
	"iptv-player/work/proxy"
)

type fixture struct {
	cfg    *config.Config
	client *client.HeaderSettingClient
	proxy  *proxy.StreamProxy
	prober *probe.Prober
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Probe.Timeout = 2 * time.Second
	hc := client.NewHeaderSettingClient(cfg.Upstream)
	t.Cleanup(hc.Client.CloseIdleConnections)
	return &fixture{
		cfg:    cfg,
		client: hc,
		proxy:  proxy.New(cfg, hc, nil),
		prober: probe.New(cfg, hc, nil),
	}
}

func decodeEnvelope(t *testing.T, body io.Reader) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.NewDecoder(body).Decode(&env))
	return env
}

func TestRequestBaseURL(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://player.local:8080/api/proxy/m3u8", nil)
	assert.Equal(t, "http://player.local:8080/api", RequestBaseURL(r, ""))

	r.Header.Set("X-Forwarded-Proto", "https")
	r.Header.Set("X-Forwarded-Host", "tv.example.com")
	assert.Equal(t, "https://tv.example.com/api", RequestBaseURL(r, ""))

	assert.Equal(t, "https://public.example/api", RequestBaseURL(r, "https://public.example/"))

	r = httptest.NewRequest(http.MethodGet, "http://h/api", nil)
	r.Header.Set("X-Forwarded-Ssl", "on")
	assert.Equal(t, "https://h/api", RequestBaseURL(r, ""))

	r = httptest.NewRequest(http.MethodGet, "http://h/api", nil)
	r.TLS = &tls.ConnectionState{}
	assert.Equal(t, "https://h/api", RequestBaseURL(r, ""))
}

func TestMissingParameter(t *testing.T) {
	f := newFixture(t)
	handlers := map[string]http.HandlerFunc{
		"m3u8":   HandlePlaylist(f.proxy, f.cfg),
		"stream": HandleStream(f.proxy),
		"test":   HandleTest(f.prober),
		"m3u":    HandleChannelListSource(f.client, f.cfg),
	}
	for name, h := range handlers {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h(rec, httptest.NewRequest(http.MethodGet, "/api/proxy/"+name, nil))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			env := decodeEnvelope(t, rec.Body)
			assert.False(t, env.Success)
			assert.Contains(t, env.Error, "url")
		})
	}
}

func TestHandlePlaylistRewrites(t *testing.T) {
	f := newFixture(t)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=800000\n720p/index.m3u8\n")
	}))
	defer upstream.Close()

	req := httptest.NewRequest(http.MethodGet, "http://player.local/api/proxy/m3u8?url="+url.QueryEscape(upstream.URL+"/live/master.m3u8"), nil)
	rec := httptest.NewRecorder()
	HandlePlaylist(f.proxy, f.cfg)(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, proxy.HLSContentType, rec.Header().Get("Content-Type"))

	lines := strings.Split(rec.Body.String(), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "http://player.local/api/proxy/m3u8?url="+url.QueryEscape(upstream.URL+"/live/720p/index.m3u8"), lines[2])
}

func TestHandlePlaylistMirrorsUpstreamStatus(t *testing.T) {
	f := newFixture(t)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer upstream.Close()

	rec := httptest.NewRecorder()
	HandlePlaylist(f.proxy, f.cfg)(rec, httptest.NewRequest(http.MethodGet, "/api/proxy/m3u8?url="+url.QueryEscape(upstream.URL+"/x.m3u8"), nil))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	env := decodeEnvelope(t, rec.Body)
	assert.False(t, env.Success)
	assert.NotEmpty(t, env.Error)
}

func TestHandlePlaylistEmptyIs500(t *testing.T) {
	f := newFixture(t)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer upstream.Close()

	rec := httptest.NewRecorder()
	HandlePlaylist(f.proxy, f.cfg)(rec, httptest.NewRequest(http.MethodGet, "/api/proxy/m3u8?url="+url.QueryEscape(upstream.URL+"/x.m3u8"), nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleStreamRange(t *testing.T) {
	f := newFixture(t)
	payload := strings.Repeat("0123456789", 100)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "seg.ts", time.Unix(0, 0), strings.NewReader(payload))
	}))
	defer upstream.Close()

	req := httptest.NewRequest(http.MethodGet, "/api/proxy/stream?url="+url.QueryEscape(upstream.URL+"/seg.ts"), nil)
	req.Header.Set("Range", "bytes=10-19")
	rec := httptest.NewRecorder()
	HandleStream(f.proxy)(rec, req)

	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "0123456789", rec.Body.String())
	assert.Equal(t, "bytes 10-19/1000", rec.Header().Get("Content-Range"))
	assert.Equal(t, "10", rec.Header().Get("Content-Length"))
	assert.Equal(t, "bytes", rec.Header().Get("Accept-Ranges"))
}

func TestHandleStreamHead(t *testing.T) {
	f := newFixture(t)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp2t")
		io.WriteString(w, "segment-bytes")
	}))
	defer upstream.Close()

	rec := httptest.NewRecorder()
	HandleStream(f.proxy)(rec, httptest.NewRequest(http.MethodHead, "/api/proxy/stream?url="+url.QueryEscape(upstream.URL+"/a.ts"), nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "video/mp2t", rec.Header().Get("Content-Type"))
	assert.Zero(t, rec.Body.Len())
}

func TestHandleStreamUpstreamError(t *testing.T) {
	f := newFixture(t)
	upstream := httptest.NewServer(http.NotFoundHandler())
	defer upstream.Close()

	rec := httptest.NewRecorder()
	HandleStream(f.proxy)(rec, httptest.NewRequest(http.MethodGet, "/api/proxy/stream?url="+url.QueryEscape(upstream.URL+"/gone.ts"), nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, decodeEnvelope(t, rec.Body).Success)
}

func TestHandleStreamClientCancelReleasesUpstream(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := newFixture(t)
	started := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp2t")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		close(started)
		<-r.Context().Done()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/proxy/stream?url="+url.QueryEscape(upstream.URL+"/live.ts"), nil).WithContext(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		HandleStream(f.proxy)(httptest.NewRecorder(), req)
	}()

	<-started
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not stop after client cancellation")
	}

	f.client.Client.CloseIdleConnections()
	upstream.Close()
}

func TestHandleTest(t *testing.T) {
	f := newFixture(t)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer upstream.Close()

	rec := httptest.NewRecorder()
	HandleTest(f.prober)(rec, httptest.NewRequest(http.MethodGet, "/api/proxy/test?url="+url.QueryEscape(upstream.URL+"/live.m3u8"), nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Success bool `json:"success"`
		Data    struct {
			Online       bool   `json:"online"`
			ResponseTime int64  `json:"responseTime"`
			Status       int    `json:"status"`
			Error        string `json:"error"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.True(t, body.Success)
	assert.True(t, body.Data.Online)
	assert.Equal(t, http.StatusOK, body.Data.Status)
	assert.Empty(t, body.Data.Error)
}

func TestHandleTestBatch(t *testing.T) {
	f := newFixture(t)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "down.m3u8") {
			http.NotFound(w, r)
		}
	}))
	defer upstream.Close()

	payload := fmt.Sprintf(`{"urls":["%s/up.m3u8","%s/down.m3u8","not a url"],"concurrency":2}`, upstream.URL, upstream.URL)
	rec := httptest.NewRecorder()
	HandleTestBatch(f.prober)(rec, httptest.NewRequest(http.MethodPost, "/api/proxy/test-batch", strings.NewReader(payload)))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data []struct {
			URL    string `json:"url"`
			Online bool   `json:"online"`
			Error  string `json:"error"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Data, 3)
	assert.True(t, body.Data[0].Online)
	assert.False(t, body.Data[1].Online)
	assert.False(t, body.Data[2].Online)
	assert.NotEmpty(t, body.Data[2].Error)
	assert.Equal(t, "not a url", body.Data[2].URL)

	rec = httptest.NewRecorder()
	HandleTestBatch(f.prober)(rec, httptest.NewRequest(http.MethodPost, "/api/proxy/test-batch", strings.NewReader(`{"urls":[]}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	HandleTestBatch(f.prober)(rec, httptest.NewRequest(http.MethodPost, "/api/proxy/test-batch", strings.NewReader(`{`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleChannelListSource(t *testing.T) {
	f := newFixture(t)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "#EXTM3U\n#EXTINF:-1,A\nhttp://x/a\n")
	}))
	defer upstream.Close()

	rec := httptest.NewRecorder()
	HandleChannelListSource(f.client, f.cfg)(rec, httptest.NewRequest(http.MethodGet, "/api/proxy/m3u?url="+url.QueryEscape(upstream.URL+"/list.m3u"), nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "#EXTINF:-1,A")
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusFor(&MissingParameterError{Name: "url"}))
	assert.Equal(t, http.StatusBadGateway, StatusFor(&client.UpstreamFetchError{StatusCode: 502, Reason: client.ReasonStatus}))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(&client.UpstreamFetchError{Reason: client.ReasonTimeout}))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(fmt.Errorf("wrapped: %w", io.ErrUnexpectedEOF)))
	assert.Equal(t, http.StatusNotFound, StatusFor(fmt.Errorf("fetch: %w", &client.UpstreamFetchError{StatusCode: 404})))
}
