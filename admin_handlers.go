package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"iptv-player/work/channels"
	"iptv-player/work/client"
	"iptv-player/work/config"
	"iptv-player/work/database"
	"iptv-player/work/handlers"
	"iptv-player/work/logger"
	"iptv-player/work/middleware"
	"iptv-player/work/parser"
	"iptv-player/work/probe"
	"iptv-player/work/proxy"
	"iptv-player/work/types"
	"iptv-player/work/utils"
)

// maxJSONBody bounds API request bodies; pasted channel lists are the largest.
const maxJSONBody = 32 << 20

// maxUploadBytes bounds multipart channel list uploads.
const maxUploadBytes = 64 << 20

// adminStartTime is reported as uptime by the health endpoint.
var adminStartTime = time.Now()

// app carries the collaborators the HTTP routes are built from.
type app struct {
	cfg      *config.Config
	db       *database.DB
	channels *channels.Service
	proxy    *proxy.StreamProxy
	prober   *probe.Prober
	client   *client.HeaderSettingClient
}

// HealthResponse is the body of /api/health.
type HealthResponse struct {
	Status      string `json:"status"`
	Database    string `json:"database"`
	Uptime      string `json:"uptime"`
	MemoryUsage string `json:"memoryUsage"`
	Goroutines  int    `json:"goroutines"`
}

// setupAdminRoutes registers every HTTP route: the proxy endpoints, the
// management API, metrics and the optional single page app.
//
// Parameters:
//   - router: mux router for route registration
//   - a: wired application collaborators
func setupAdminRoutes(router *mux.Router, a *app) {
	router.Use(middleware.Logging)

	api := router.PathPrefix(handlers.APIPrefix).Subrouter()

	// proxy routes: CORS for the player, never cached, never gzipped
	pxy := func(h http.HandlerFunc) http.HandlerFunc {
		return middleware.CORS(middleware.ProxyMethods)(middleware.NoCache(h))
	}
	proxyMethods := []string{http.MethodGet, http.MethodHead, http.MethodOptions}
	api.HandleFunc(proxy.PlaylistRoute, pxy(handlers.HandlePlaylist(a.proxy, a.cfg))).Methods(proxyMethods...)
	api.HandleFunc("/proxy/hls", pxy(handlers.HandlePlaylist(a.proxy, a.cfg))).Methods(proxyMethods...)
	api.HandleFunc(proxy.StreamRoute, pxy(handlers.HandleStream(a.proxy))).Methods(proxyMethods...)
	api.HandleFunc("/proxy/test", pxy(handlers.HandleTest(a.prober))).Methods(proxyMethods...)
	api.HandleFunc("/proxy/m3u", pxy(handlers.HandleChannelListSource(a.client, a.cfg))).Methods(proxyMethods...)
	api.HandleFunc("/proxy/test-batch", middleware.CORS(middleware.APIMethods)(middleware.NoCache(handlers.HandleTestBatch(a.prober)))).Methods(http.MethodPost, http.MethodOptions)

	// management API
	gz := middleware.GzipIf(a.cfg.EnableGzip)
	mgmt := func(h http.HandlerFunc) http.HandlerFunc {
		return middleware.CORS(middleware.APIMethods)(middleware.NoCache(gz(h)))
	}

	api.HandleFunc("/channels", mgmt(handleListChannels(a))).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/channels", mgmt(handleCreateChannel(a))).Methods(http.MethodPost)
	api.HandleFunc("/channels", mgmt(handleDeleteAllChannels(a))).Methods(http.MethodDelete)
	api.HandleFunc("/channels/stats", mgmt(handleChannelStats(a))).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/channels/groups", mgmt(handleChannelGroups(a))).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/channels/batch", mgmt(handleCreateChannels(a))).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/channels/test-batch", mgmt(handleTestChannels(a))).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/channels/{id}", mgmt(handleGetChannel(a))).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/channels/{id}", mgmt(handleUpdateChannel(a))).Methods(http.MethodPut)
	api.HandleFunc("/channels/{id}", mgmt(handleDeleteChannel(a))).Methods(http.MethodDelete)
	api.HandleFunc("/channels/{id}/status", mgmt(handleSetChannelStatus(a))).Methods(http.MethodPatch, http.MethodOptions)
	api.HandleFunc("/channels/{id}/test", mgmt(handleTestChannel(a))).Methods(http.MethodPost, http.MethodOptions)

	api.HandleFunc("/m3u/url", mgmt(handleImportURL(a))).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/m3u/text", mgmt(handleImportText(a))).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/m3u/upload", mgmt(handleImportUpload(a))).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/m3u/export", mgmt(handleExport(a))).Methods(http.MethodGet, http.MethodOptions)

	api.HandleFunc("/history", mgmt(handleListHistory(a))).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/history", mgmt(handleAddHistory(a))).Methods(http.MethodPost)
	api.HandleFunc("/history", mgmt(handleClearHistory(a))).Methods(http.MethodDelete)
	api.HandleFunc("/history/{id}", mgmt(handleDeleteHistory(a))).Methods(http.MethodDelete, http.MethodOptions)

	api.HandleFunc("/health", middleware.CORS(middleware.APIMethods)(handleHealth(a))).Methods(http.MethodGet, http.MethodOptions)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	if a.cfg.StaticDir != "" {
		router.PathPrefix("/").Handler(spaHandler{root: a.cfg.StaticDir})
		logger.Info("{admin_handlers - setupAdminRoutes} Serving web app from %s", a.cfg.StaticDir)
	}
}

// apiStatus maps service errors to HTTP statuses for the management API.
func apiStatus(err error) int {
	var (
		verr  *channels.ValidationError
		empty *parser.EmptyContentError
	)
	switch {
	case errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, channels.ErrTestInProgress):
		return http.StatusConflict
	case errors.As(err, &verr), errors.As(err, &empty):
		return http.StatusBadRequest
	}
	return handlers.StatusFor(err)
}

func writeAPIError(w http.ResponseWriter, err error) {
	status := apiStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error("{admin_handlers - writeAPIError} %v", err)
	}
	handlers.WriteError(w, status, err)
}

// decodeBody reads a JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(v); err != nil {
		return &channels.ValidationError{Field: "body", Reason: "is not valid JSON"}
	}
	return nil
}

func handleListChannels(a *app) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		list, err := a.channels.List(r.Context(), types.ChannelFilter{
			Search: q.Get("search"),
			Group:  q.Get("group"),
			Status: types.ChannelStatus(q.Get("status")),
		})
		if err != nil {
			writeAPIError(w, err)
			return
		}
		handlers.WriteJSON(w, http.StatusOK, list)
	}
}

func handleGetChannel(a *app) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ch, err := a.channels.Get(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			writeAPIError(w, err)
			return
		}
		handlers.WriteJSON(w, http.StatusOK, ch)
	}
}

func handleCreateChannel(a *app) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var ch types.Channel
		if err := decodeBody(r, &ch); err != nil {
			writeAPIError(w, err)
			return
		}
		ch.ID = ""
		stored, err := a.channels.Create(r.Context(), ch)
		if err != nil {
			writeAPIError(w, err)
			return
		}
		handlers.WriteJSON(w, http.StatusCreated, stored)
	}
}

func handleCreateChannels(a *app) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Channels []types.Channel `json:"channels"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeAPIError(w, err)
			return
		}
		if body.Channels == nil {
			writeAPIError(w, &channels.ValidationError{Field: "channels", Reason: "must be an array"})
			return
		}
		for i := range body.Channels {
			body.Channels[i].ID = ""
		}
		n, err := a.channels.CreateMany(r.Context(), body.Channels)
		if err != nil {
			writeAPIError(w, err)
			return
		}
		handlers.WriteJSON(w, http.StatusCreated, map[string]int{"count": n})
	}
}

func handleUpdateChannel(a *app) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var upd types.ChannelUpdate
		if err := decodeBody(r, &upd); err != nil {
			writeAPIError(w, err)
			return
		}
		ch, err := a.channels.Update(r.Context(), mux.Vars(r)["id"], upd)
		if err != nil {
			writeAPIError(w, err)
			return
		}
		handlers.WriteJSON(w, http.StatusOK, ch)
	}
}

func handleSetChannelStatus(a *app) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Status types.ChannelStatus `json:"status"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeAPIError(w, err)
			return
		}
		if err := a.channels.SetStatus(r.Context(), mux.Vars(r)["id"], body.Status); err != nil {
			writeAPIError(w, err)
			return
		}
		handlers.WriteJSON(w, http.StatusOK, nil)
	}
}

func handleDeleteChannel(a *app) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := a.channels.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
			writeAPIError(w, err)
			return
		}
		handlers.WriteJSON(w, http.StatusOK, nil)
	}
}

func handleDeleteAllChannels(a *app) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := a.channels.DeleteAll(r.Context())
		if err != nil {
			writeAPIError(w, err)
			return
		}
		handlers.WriteJSON(w, http.StatusOK, map[string]int64{"deleted": n})
	}
}

func handleChannelStats(a *app) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := a.channels.Stats(r.Context())
		if err != nil {
			writeAPIError(w, err)
			return
		}
		handlers.WriteJSON(w, http.StatusOK, stats)
	}
}

func handleChannelGroups(a *app) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groups, err := a.channels.Groups(r.Context())
		if err != nil {
			writeAPIError(w, err)
			return
		}
		handlers.WriteJSON(w, http.StatusOK, groups)
	}
}

func handleTestChannel(a *app) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := a.channels.TestChannel(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			writeAPIError(w, err)
			return
		}
		handlers.WriteJSON(w, http.StatusOK, res)
	}
}

// handleTestChannels tests the posted ids, or every channel when none are given.
// Both "ids" and the older "channelIds" field names are accepted.
func handleTestChannels(a *app) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			IDs        []string `json:"ids"`
			ChannelIDs []string `json:"channelIds"`
		}
		if r.ContentLength != 0 {
			if err := decodeBody(r, &body); err != nil {
				writeAPIError(w, err)
				return
			}
		}
		ids := body.IDs
		if len(ids) == 0 {
			ids = body.ChannelIDs
		}

		results, err := a.channels.TestChannels(r.Context(), ids)
		if err != nil {
			writeAPIError(w, err)
			return
		}
		handlers.WriteJSON(w, http.StatusOK, results)
	}
}

func handleImportURL(a *app) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			URL string `json:"url"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeAPIError(w, err)
			return
		}
		if strings.TrimSpace(body.URL) == "" {
			writeAPIError(w, &handlers.MissingParameterError{Name: "url"})
			return
		}

		res, err := a.channels.ImportFromURL(r.Context(), strings.TrimSpace(body.URL))
		if err != nil {
			logger.Warn("{admin_handlers - handleImportURL} Import from %s failed: %v", utils.LogURL(a.cfg, body.URL), err)
			writeAPIError(w, err)
			return
		}
		handlers.WriteJSON(w, http.StatusOK, res)
	}
}

func handleImportText(a *app) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Content string `json:"content"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeAPIError(w, err)
			return
		}
		if strings.TrimSpace(body.Content) == "" {
			writeAPIError(w, &handlers.MissingParameterError{Name: "content"})
			return
		}

		res, err := a.channels.ImportText(r.Context(), body.Content)
		if err != nil {
			writeAPIError(w, err)
			return
		}
		handlers.WriteJSON(w, http.StatusOK, res)
	}
}

func handleImportUpload(a *app) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		file, header, err := r.FormFile("file")
		if err != nil {
			writeAPIError(w, &handlers.MissingParameterError{Name: "file"})
			return
		}
		defer file.Close()

		res, err := a.channels.ImportFile(r.Context(), file, filepath.Base(header.Filename))
		if err != nil {
			writeAPIError(w, err)
			return
		}
		handlers.WriteJSON(w, http.StatusOK, res)
	}
}

func handleExport(a *app) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		content, err := a.channels.Export(r.Context())
		if err != nil {
			writeAPIError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/x-mpegurl")
		w.Header().Set("Content-Disposition", "attachment; filename=playlist.m3u")
		io.WriteString(w, content)
	}
}

func handleListHistory(a *app) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		history, err := a.channels.History(r.Context())
		if err != nil {
			writeAPIError(w, err)
			return
		}
		handlers.WriteJSON(w, http.StatusOK, history)
	}
}

func handleAddHistory(a *app) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var entry types.ImportHistory
		if err := decodeBody(r, &entry); err != nil {
			writeAPIError(w, err)
			return
		}
		stored, err := a.channels.AddHistory(r.Context(), entry)
		if err != nil {
			writeAPIError(w, err)
			return
		}
		handlers.WriteJSON(w, http.StatusOK, stored)
	}
}

func handleDeleteHistory(a *app) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := a.channels.DeleteHistory(r.Context(), mux.Vars(r)["id"]); err != nil {
			writeAPIError(w, err)
			return
		}
		handlers.WriteJSON(w, http.StatusOK, nil)
	}
}

func handleClearHistory(a *app) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := a.channels.ClearHistory(r.Context()); err != nil {
			writeAPIError(w, err)
			return
		}
		handlers.WriteJSON(w, http.StatusOK, nil)
	}
}

// handleHealth reports liveness plus database reachability. A failed ping
// answers 503 so orchestrators can restart the container.
func handleHealth(a *app) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)

		resp := HealthResponse{
			Status:      "ok",
			Database:    "ok",
			Uptime:      formatDuration(time.Since(adminStartTime)),
			MemoryUsage: utils.FormatBytes(int64(m.Alloc)),
			Goroutines:  runtime.NumGoroutine(),
		}

		status := http.StatusOK
		if err := a.db.Ping(r.Context()); err != nil {
			resp.Status = "degraded"
			resp.Database = err.Error()
			status = http.StatusServiceUnavailable
		}
		handlers.WriteJSON(w, status, resp)
	}
}

// spaHandler serves a built single page app, falling back to index.html for
// client-side routes.
type spaHandler struct {
	root string
}

func (h spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p := filepath.Join(h.root, filepath.FromSlash(filepath.Clean("/"+r.URL.Path)))
	if info, err := os.Stat(p); err != nil || info.IsDir() {
		http.ServeFile(w, r, filepath.Join(h.root, "index.html"))
		return
	}
	http.FileServer(http.Dir(h.root)).ServeHTTP(w, r)
}

// formatDuration converts an uptime to a short human-readable form.
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	return fmt.Sprintf("%dd %dh", int(d.Hours())/24, int(d.Hours())%24)
}
