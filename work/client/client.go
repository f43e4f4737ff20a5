package client

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/ratelimit"

	"iptv-player/work/config"
)

// HeaderSettingClient wraps http.Client to set browser-like headers on every
// upstream request and pace requests per origin host.
type HeaderSettingClient struct {
	Client   *http.Client
	config   config.UpstreamConfig
	limiters *xsync.MapOf[string, ratelimit.Limiter]
}

// NewHeaderSettingClient builds the upstream client from cfg. The overall timeout
// and the redirect limit are fixed for the lifetime of the client.
func NewHeaderSettingClient(cfg config.UpstreamConfig) *HeaderSettingClient {
	maxRedirects := cfg.MaxRedirects
	client := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ResponseHeaderTimeout: cfg.Timeout,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}

	return &HeaderSettingClient{
		Client:   client,
		config:   cfg,
		limiters: xsync.NewMapOf[string, ratelimit.Limiter](),
	}
}

// Do sets the default headers, waits for the host's rate limiter and sends req.
// Any status code is returned to the caller; see CheckStatus.
func (hsc *HeaderSettingClient) Do(req *http.Request) (*http.Response, error) {
	hsc.setHeaders(req)
	if limiter := hsc.limiterFor(req.URL.Host); limiter != nil {
		limiter.Take()
	}
	return hsc.Client.Do(req)
}

// Get issues a GET bound to ctx. extra headers override the defaults.
func (hsc *HeaderSettingClient) Get(ctx context.Context, rawURL string, extra http.Header) (*http.Response, error) {
	return hsc.request(ctx, http.MethodGet, rawURL, extra)
}

// Head issues a HEAD bound to ctx.
func (hsc *HeaderSettingClient) Head(ctx context.Context, rawURL string, extra http.Header) (*http.Response, error) {
	return hsc.request(ctx, http.MethodHead, rawURL, extra)
}

func (hsc *HeaderSettingClient) request(ctx context.Context, method, rawURL string, extra http.Header) (*http.Response, error) {
	if err := ValidateURL(rawURL); err != nil {
		return nil, &UpstreamFetchError{URL: rawURL, Reason: ReasonInvalidURL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, &UpstreamFetchError{URL: rawURL, Reason: ReasonInvalidURL, Err: err}
	}
	for k, vs := range extra {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := hsc.Do(req)
	if err != nil {
		return nil, Wrap(rawURL, err)
	}
	return resp, nil
}

// FetchText GETs rawURL and returns at most limit bytes of a successful body.
func (hsc *HeaderSettingClient) FetchText(ctx context.Context, rawURL string, limit int64) (string, error) {
	resp, err := hsc.Get(ctx, rawURL, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := CheckStatus(rawURL, resp); err != nil {
		return "", err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return "", Wrap(rawURL, err)
	}
	return string(body), nil
}

func (hsc *HeaderSettingClient) setHeaders(req *http.Request) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", hsc.config.UserAgent)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "*/*")
	}
	if req.Header.Get("Accept-Language") == "" && hsc.config.AcceptLanguage != "" {
		req.Header.Set("Accept-Language", hsc.config.AcceptLanguage)
	}
	if req.Header.Get("Referer") == "" {
		req.Header.Set("Referer", Origin(req.URL))
	}
	req.Header.Set("Connection", "keep-alive")
}

// limiterFor returns the per-host limiter, creating it on first use.
func (hsc *HeaderSettingClient) limiterFor(host string) ratelimit.Limiter {
	if hsc.config.RateLimit <= 0 || host == "" {
		return nil
	}
	limiter, _ := hsc.limiters.LoadOrCompute(host, func() ratelimit.Limiter {
		return ratelimit.New(hsc.config.RateLimit)
	})
	return limiter
}

// Origin returns scheme://host of u.
func Origin(u *url.URL) string {
	return u.Scheme + "://" + u.Host
}

// ValidateURL accepts only absolute http(s) URLs with a host.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}
