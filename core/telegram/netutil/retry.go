// Package netutil classifies transport failures of Bot API calls.
package netutil

import (
	"errors"
	"net"
	"net/url"
)

// ShouldRetry reports whether a network error is worth retrying for calls
// that are safe to repeat: dial failures and timeouts.
func ShouldRetry(err error) bool {
	return IsDialError(err) || IsTimeout(err)
}

// IsDialError reports whether the request failed before reaching the server,
// so repeating it cannot duplicate a side effect.
func IsDialError(err error) bool {
	if err == nil {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

// IsTimeout reports whether err is a network timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
