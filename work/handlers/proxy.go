package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"iptv-player/work/client"
	"iptv-player/work/config"
	"iptv-player/work/logger"
	"iptv-player/work/probe"
	"iptv-player/work/proxy"
	"iptv-player/work/utils"
)

// APIPrefix is the path prefix of every API route, proxy routes included.
const APIPrefix = "/api"

// maxChannelListBytes bounds the raw channel list passthrough.
const maxChannelListBytes = 32 << 20

// maxBatchURLs bounds a single ad-hoc probe batch.
const maxBatchURLs = 500

// RequestBaseURL is the base that rewritten playlist references are built on:
// the configured public base URL, or the scheme and host the client used to
// reach us (honouring reverse proxy headers), followed by the API prefix.
func RequestBaseURL(r *http.Request, publicBaseURL string) string {
	if publicBaseURL != "" {
		return strings.TrimRight(publicBaseURL, "/") + APIPrefix
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
	}
	if r.Header.Get("X-Forwarded-Ssl") == "on" {
		scheme = "https"
	}

	host := r.Host
	if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
		host = strings.TrimSpace(strings.Split(fwd, ",")[0])
	}

	return scheme + "://" + host + APIPrefix
}

// HandlePlaylist serves /proxy/m3u8: the upstream playlist named by ?url= with
// every reference rewritten to route back through this server.
func HandlePlaylist(sp *proxy.StreamProxy, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target, err := RequireQuery(r, "url")
		if err != nil {
			WriteError(w, 0, err)
			return
		}

		body, err := sp.RewritePlaylist(r.Context(), target, RequestBaseURL(r, cfg.PublicBaseURL))
		if err != nil {
			logger.Warn("{handlers/proxy - HandlePlaylist} %s: %v", utils.LogURL(cfg, target), err)
			WriteError(w, 0, err)
			return
		}

		w.Header().Set("Content-Type", proxy.HLSContentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, body)
	}
}

// HandleStream serves /proxy/stream: segments, keys and init sections relayed
// byte for byte. Range requests are forwarded and partial responses mirrored.
func HandleStream(sp *proxy.StreamProxy) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target, err := RequireQuery(r, "url")
		if err != nil {
			WriteError(w, 0, err)
			return
		}

		env, err := sp.Relay(r.Context(), target, r.Header.Get("Range"))
		if err != nil {
			WriteError(w, 0, err)
			return
		}

		h := w.Header()
		h.Set("Content-Type", env.ContentType)
		h.Set("Accept-Ranges", "bytes")
		if env.ContentLength >= 0 {
			h.Set("Content-Length", strconv.FormatInt(env.ContentLength, 10))
		}
		if env.ContentRange != "" {
			h.Set("Content-Range", env.ContentRange)
		}
		w.WriteHeader(env.StatusCode)

		if r.Method == http.MethodHead {
			env.Body.Close()
			return
		}

		// the client owns the connection once headers are out; a copy error
		// here is almost always the player going away
		sp.Stream(w, env)
	}
}

// HandleTest serves /proxy/test: a liveness probe of ?url=.
func HandleTest(p *probe.Prober) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target, err := RequireQuery(r, "url")
		if err != nil {
			WriteError(w, 0, err)
			return
		}
		WriteJSON(w, http.StatusOK, p.Probe(r.Context(), target))
	}
}

type testBatchRequest struct {
	URLs        []string `json:"urls"`
	Concurrency int      `json:"concurrency"`
}

// HandleTestBatch probes a list of URLs in bounded groups and returns one result
// per URL in request order.
func HandleTestBatch(p *probe.Prober) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req testBatchRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, errors.New("invalid JSON body"))
			return
		}
		if len(req.URLs) == 0 {
			WriteError(w, 0, &MissingParameterError{Name: "urls"})
			return
		}
		if len(req.URLs) > maxBatchURLs {
			WriteError(w, http.StatusRequestEntityTooLarge, errors.New("too many urls in one batch"))
			return
		}

		WriteJSON(w, http.StatusOK, p.ProbeBatch(r.Context(), req.URLs, req.Concurrency))
	}
}

// HandleChannelListSource serves /proxy/m3u: the raw upstream channel list as
// plain text, so the browser can preview a list it could not fetch cross-origin.
func HandleChannelListSource(hc *client.HeaderSettingClient, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target, err := RequireQuery(r, "url")
		if err != nil {
			WriteError(w, 0, err)
			return
		}

		content, err := hc.FetchText(r.Context(), target, maxChannelListBytes)
		if err != nil {
			logger.Warn("{handlers/proxy - HandleChannelListSource} %s: %v", utils.LogURL(cfg, target), err)
			WriteError(w, 0, err)
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, content)
	}
}
