package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iptv-player/work/cache"
	"iptv-player/work/channels"
	"iptv-player/work/client"
	"iptv-player/work/config"
	"iptv-player/work/database"
	"iptv-player/work/probe"
	"iptv-player/work/proxy"
	"iptv-player/work/types"
)

const testList = `#EXTM3U
#EXTINF:-1 tvg-id="a" group-title="News",Alpha
%[1]s/alpha/index.m3u8
#EXTINF:-1 group-title="Movies",Beta
%[1]s/beta/index.m3u8
`

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func newTestServer(t *testing.T, staticDir string) (*httptest.Server, *httptest.Server) {
	t.Helper()

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/list.m3u":
			fmt.Fprintf(w, testList, "http://"+r.Host)
		case strings.HasPrefix(r.URL.Path, "/alpha/"):
			w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
			io.WriteString(w, "#EXTM3U\n#EXTINF:6,\nseg0.ts\n")
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(origin.Close)

	cfg := config.Default()
	cfg.StaticDir = staticDir
	cfg.Probe.Timeout = 2 * time.Second

	db, err := database.Open(filepath.Join(t.TempDir(), "iptv.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	hc := client.NewHeaderSettingClient(cfg.Upstream)
	prober := probe.New(cfg, hc, nil)
	a := &app{
		cfg:      cfg,
		db:       db,
		proxy:    proxy.New(cfg, hc, nil),
		prober:   prober,
		client:   hc,
		channels: channels.NewService(cfg, db, prober, cache.NewCache(time.Minute), hc),
	}

	router := mux.NewRouter()
	setupAdminRoutes(router, a)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, origin
}

func doJSON(t *testing.T, method, target string, body any) (*http.Response, envelope) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, target, rdr)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp, env
}

func TestImportListTestAndExport(t *testing.T) {
	srv, origin := newTestServer(t, "")

	resp, env := doJSON(t, http.MethodPost, srv.URL+"/api/m3u/url", map[string]string{"url": origin.URL + "/list.m3u"})
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Error)
	var imported channels.ImportResult
	require.NoError(t, json.Unmarshal(env.Data, &imported))
	assert.Equal(t, 2, imported.Count)

	resp, env = doJSON(t, http.MethodGet, srv.URL+"/api/channels?group=News", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []types.Channel
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 1)
	alpha := list[0]
	assert.Equal(t, "Alpha", alpha.Name)

	resp, env = doJSON(t, http.MethodPost, srv.URL+"/api/channels/"+alpha.ID+"/test", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Error)
	var tested types.ChannelTestResult
	require.NoError(t, json.Unmarshal(env.Data, &tested))
	assert.Equal(t, types.StatusOnline, tested.Status)

	resp, env = doJSON(t, http.MethodPost, srv.URL+"/api/channels/test-batch", map[string][]string{"channelIds": {}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var batch []types.ChannelTestResult
	require.NoError(t, json.Unmarshal(env.Data, &batch))
	assert.Len(t, batch, 2)

	resp, env = doJSON(t, http.MethodGet, srv.URL+"/api/channels/stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats types.ChannelStats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, types.ChannelStats{Total: 2, Online: 1, Offline: 1}, stats)

	exp, err := http.Get(srv.URL + "/api/m3u/export")
	require.NoError(t, err)
	defer exp.Body.Close()
	body, _ := io.ReadAll(exp.Body)
	assert.Equal(t, "application/x-mpegurl", exp.Header.Get("Content-Type"))
	assert.True(t, strings.HasPrefix(string(body), "#EXTM3U\n"))
	assert.Contains(t, string(body), ",Beta\n")

	resp, env = doJSON(t, http.MethodGet, srv.URL+"/api/history", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var history []types.ImportHistory
	require.NoError(t, json.Unmarshal(env.Data, &history))
	require.Len(t, history, 1)
	assert.Equal(t, types.ImportURL, history[0].Type)
}

func TestChannelCRUD(t *testing.T) {
	srv, _ := newTestServer(t, "")

	resp, env := doJSON(t, http.MethodPost, srv.URL+"/api/channels", map[string]string{"name": "Local", "url": "http://x/local.m3u8"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, env.Error)
	var ch types.Channel
	require.NoError(t, json.Unmarshal(env.Data, &ch))
	require.NotEmpty(t, ch.ID)

	resp, env = doJSON(t, http.MethodPut, srv.URL+"/api/channels/"+ch.ID, map[string]string{"group_title": "Local TV"})
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Error)

	resp, _ = doJSON(t, http.MethodPatch, srv.URL+"/api/channels/"+ch.ID+"/status", map[string]string{"status": "offline"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, env = doJSON(t, http.MethodGet, srv.URL+"/api/channels/"+ch.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(env.Data, &ch))
	assert.Equal(t, "Local TV", ch.GroupTitle)
	assert.Equal(t, types.StatusOffline, ch.Status)

	resp, _ = doJSON(t, http.MethodPatch, srv.URL+"/api/channels/"+ch.ID+"/status", map[string]string{"status": "sideways"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/api/channels/"+ch.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, env = doJSON(t, http.MethodGet, srv.URL+"/api/channels/"+ch.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.False(t, env.Success)

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/channels", map[string]string{"url": "http://x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestImportTextAndUpload(t *testing.T) {
	srv, _ := newTestServer(t, "")

	resp, env := doJSON(t, http.MethodPost, srv.URL+"/api/m3u/text", map[string]string{"content": "not a playlist"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.False(t, env.Success)

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/m3u/text", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "family.m3u")
	require.NoError(t, err)
	io.WriteString(fw, "#EXTM3U\n#EXTINF:-1,Kids\nhttp://x/kids.m3u8\n")
	require.NoError(t, mw.Close())

	up, err := http.Post(srv.URL+"/api/m3u/upload", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer up.Body.Close()
	require.Equal(t, http.StatusOK, up.StatusCode)

	var upEnv envelope
	require.NoError(t, json.NewDecoder(up.Body).Decode(&upEnv))
	var res channels.ImportResult
	require.NoError(t, json.Unmarshal(upEnv.Data, &res))
	assert.Equal(t, 1, res.Count)
	assert.Equal(t, "family.m3u", res.History.Name)
}

func TestProxyRoutes(t *testing.T) {
	srv, origin := newTestServer(t, "")

	resp, err := http.Get(srv.URL + "/api/proxy/m3u8?url=" + url.QueryEscape(origin.URL+"/alpha/index.m3u8"))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-cache, no-store, must-revalidate", resp.Header.Get("Cache-Control"))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, string(body), srv.URL+"/api/proxy/stream?url="+url.QueryEscape(origin.URL+"/alpha/seg0.ts"))

	resp, err = http.Get(srv.URL + "/api/proxy/hls?url=" + url.QueryEscape(origin.URL+"/alpha/index.m3u8"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/api/proxy/stream", nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "GET, HEAD, OPTIONS", resp.Header.Get("Access-Control-Allow-Methods"))

	resp, env := doJSON(t, http.MethodGet, srv.URL+"/api/proxy/m3u8", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.False(t, env.Success)

	resp, env = doJSON(t, http.MethodGet, srv.URL+"/api/proxy/stream?url="+url.QueryEscape(origin.URL+"/missing.ts"), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.False(t, env.Success)
	resp, env = doJSON(t, http.MethodPost, srv.URL+"/api/proxy/test-batch", map[string]any{
		"urls": []string{origin.URL + "/alpha/index.m3u8"},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, env.Success)
	assert.Equal(t, "no-cache, no-store, must-revalidate", resp.Header.Get("Cache-Control"))
	assert.Equal(t, "no-cache", resp.Header.Get("Pragma"))
	assert.Equal(t, "0", resp.Header.Get("Expires"))
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t, "")

	resp, env := doJSON(t, http.MethodGet, srv.URL+"/api/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(env.Data, &health))
	assert.Equal(t, "ok", health.Status)

	m, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer m.Body.Close()
	body, _ := io.ReadAll(m.Body)
	assert.Contains(t, string(body), "iptv_player_http_requests_total")
}

func TestStaticFallback(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>app</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o644))
	srv, _ := newTestServer(t, dir)

	for path, want := range map[string]string{"/": "app</html>", "/channels/123": "app</html>", "/app.js": "console.log"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Contains(t, string(body), want, path)
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "42s", formatDuration(42*time.Second))
	assert.Equal(t, "5m", formatDuration(5*time.Minute+3*time.Second))
	assert.Equal(t, "2h 30m", formatDuration(150*time.Minute))
	assert.Equal(t, "1d 3h", formatDuration(27*time.Hour))
}
