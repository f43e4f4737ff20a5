package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"iptv-player/work/client"
	"iptv-player/work/config"
	"iptv-player/work/logger"
	"iptv-player/work/metrics"
	"iptv-player/work/types"
	"iptv-player/work/utils"
)

// Prober decides whether channel URLs are reachable. A probe is a HEAD request
// followed, when HEAD does not answer with a 2xx/3xx status, by a ranged GET that
// reads at most RangeBytes before the connection is dropped. Each attempt has its
// own timeout, so a probe never takes longer than twice the configured timeout.
type Prober struct {
	client     *client.HeaderSettingClient
	timeout    time.Duration
	rangeBytes int64
	batchSize  int
	submitter  Submitter
	cfg        *config.Config
}

// Submitter runs tasks asynchronously. *ants.Pool satisfies it.
type Submitter interface {
	Submit(task func()) error
}

// New creates a Prober. pool may be nil, in which case batch probes run on
// plain goroutines.
func New(cfg *config.Config, httpClient *client.HeaderSettingClient, pool Submitter) *Prober {
	return &Prober{
		client:     httpClient,
		timeout:    cfg.Probe.Timeout,
		rangeBytes: cfg.Probe.RangeBytes,
		batchSize:  cfg.Probe.BatchSize,
		submitter:  pool,
		cfg:        cfg,
	}
}

// BatchSize is the configured default group size.
func (p *Prober) BatchSize() int {
	return p.batchSize
}

// Probe checks a single URL. It never returns an error and never panics: every
// failure becomes an unsuccessful ProbeResult.
func (p *Prober) Probe(ctx context.Context, rawURL string) (result types.ProbeResult) {
	start := time.Now()
	logURL := utils.LogURL(p.cfg, rawURL)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("{probe/probe - Probe} Recovered from panic probing %s: %v", logURL, r)
			result = types.ProbeResult{URL: rawURL, Error: fmt.Sprintf("internal error: %v", r)}
		}
		result.ResponseTime = time.Since(start).Milliseconds()
		p.observe(result, time.Since(start))
	}()

	if err := client.ValidateURL(rawURL); err != nil {
		return types.ProbeResult{URL: rawURL, Error: fmt.Sprintf("invalid url: %v", err)}
	}

	status, err := p.attempt(ctx, http.MethodHead, rawURL)
	if err == nil && isReachable(status) {
		logger.Debug("{probe/probe - Probe} HEAD %s -> %d", logURL, status)
		return types.ProbeResult{URL: rawURL, Success: true, Status: status}
	}
	logger.Debug("{probe/probe - Probe} HEAD %s inconclusive (status=%d err=%v), trying ranged GET", logURL, status, err)

	status, err = p.attempt(ctx, http.MethodGet, rawURL)
	if err != nil {
		return types.ProbeResult{URL: rawURL, Error: message(err)}
	}

	logger.Debug("{probe/probe - Probe} GET %s -> %d", logURL, status)
	return types.ProbeResult{URL: rawURL, Success: isReachable(status), Status: status}
}

// attempt performs one request under its own timeout and releases the
// connection before returning. Only the status code is of interest.
func (p *Prober) attempt(ctx context.Context, method, rawURL string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var (
		resp *http.Response
		err  error
		kind string
	)
	switch method {
	case http.MethodHead:
		kind = "probe_head"
		resp, err = p.client.Head(ctx, rawURL, nil)
	default:
		kind = "probe_get"
		resp, err = p.client.Get(ctx, rawURL, http.Header{
			"Range": {fmt.Sprintf("bytes=0-%d", p.rangeBytes)},
		})
	}
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues(kind, string(reason(err))).Inc()
		return 0, err
	}
	defer resp.Body.Close()

	if method == http.MethodGet {
		// Read no more than the requested prefix, even when the range was ignored.
		_, _ = io.CopyN(io.Discard, resp.Body, p.rangeBytes+1)
	}

	metrics.UpstreamRequests.WithLabelValues(kind, "ok").Inc()
	return resp.StatusCode, nil
}

func (p *Prober) observe(result types.ProbeResult, elapsed time.Duration) {
	label := "offline"
	if result.Success {
		label = "online"
	}
	metrics.ProbeResults.WithLabelValues(label).Inc()
	metrics.ProbeDuration.Observe(elapsed.Seconds())
}

// isReachable accepts 2xx and 3xx, which includes 206 Partial Content.
func isReachable(status int) bool {
	return status >= 200 && status < 400
}

func reason(err error) client.Reason {
	var ufe *client.UpstreamFetchError
	if errors.As(err, &ufe) {
		return ufe.Reason
	}
	return client.Classify(err)
}

// message renders the classified reason, or the transport's own message when the
// failure fits none of the known classes.
func message(err error) string {
	var ufe *client.UpstreamFetchError
	if errors.As(err, &ufe) {
		return ufe.Message()
	}
	if r := client.Classify(err); r != client.ReasonNetwork {
		return string(r)
	}
	return err.Error()
}
