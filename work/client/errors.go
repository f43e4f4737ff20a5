package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"syscall"
)

// Reason classifies why an upstream request failed.
type Reason string

const (
	ReasonTimeout    Reason = "connection-timeout"
	ReasonDNS        Reason = "dns-resolution-failure"
	ReasonRefused    Reason = "connection-refused"
	ReasonCanceled   Reason = "request-canceled"
	ReasonStatus     Reason = "bad-status"
	ReasonInvalidURL Reason = "invalid-url"
	ReasonNetwork    Reason = "network-error"
)

// ErrTimeout matches any UpstreamFetchError caused by an elapsed deadline.
var ErrTimeout = errors.New("upstream timeout")

// UpstreamFetchError is a network failure, timeout or non-success status from an origin.
type UpstreamFetchError struct {
	URL        string
	StatusCode int
	Reason     Reason
	Err        error
}

func (e *UpstreamFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream returned status %d", e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("upstream fetch failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("upstream fetch failed (%s)", e.Reason)
}

func (e *UpstreamFetchError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrTimeout) identify timeouts.
func (e *UpstreamFetchError) Is(target error) bool {
	return target == ErrTimeout && e.Reason == ReasonTimeout
}

// Message is the classified, user-facing description of the failure.
func (e *UpstreamFetchError) Message() string {
	switch e.Reason {
	case ReasonTimeout, ReasonDNS, ReasonRefused, ReasonCanceled:
		return string(e.Reason)
	case ReasonStatus:
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Reason)
}

// Wrap converts a transport error into an UpstreamFetchError.
func Wrap(rawURL string, err error) error {
	if err == nil {
		return nil
	}
	var ufe *UpstreamFetchError
	if errors.As(err, &ufe) {
		return err
	}
	return &UpstreamFetchError{URL: rawURL, Reason: Classify(err), Err: err}
}

// CheckStatus returns an UpstreamFetchError for any status outside 2xx.
func CheckStatus(rawURL string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &UpstreamFetchError{URL: rawURL, StatusCode: resp.StatusCode, Reason: ReasonStatus}
}

// Classify maps a transport error to a Reason.
func Classify(err error) Reason {
	if err == nil {
		return ""
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return ReasonTimeout
		}
		return ReasonDNS
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return ReasonTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return ReasonRefused
	}
	if errors.Is(err, context.Canceled) {
		return ReasonCanceled
	}
	return ReasonNetwork
}

// StatusCode returns the upstream status carried by err, or 0.
func StatusCode(err error) int {
	var ufe *UpstreamFetchError
	if errors.As(err, &ufe) {
		return ufe.StatusCode
	}
	return 0
}
