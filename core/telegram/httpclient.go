package telegram

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"path"
	"time"

	"github.com/m3rciful/intakebot/core/logger"
	"github.com/m3rciful/intakebot/core/telegram/netutil"
)

// longPollMargin is added to the long poll timeout so a healthy getUpdates
// call is never cut by the transport.
const longPollMargin = 10 * time.Second

// readOnlyMethods may be repeated after a timeout because they change nothing
// on the Telegram side.
var readOnlyMethods = map[string]struct{}{
	"getUpdates": {},
	"getMe":      {},
}

// BuildHTTPClient returns an HTTP client tuned for Bot API calls whose
// longest request is a getUpdates long poll of longPoll.
func BuildHTTPClient(longPoll time.Duration) *http.Client {
	dialer := &net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          32,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: longPoll + longPollMargin,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{
		Timeout:   longPoll + 2*longPollMargin,
		Transport: &retryTransport{base: transport, retries: 3, backoff: 2 * time.Second},
	}
}

// retryTransport repeats Bot API requests that never reached the server.
// Timeouts are repeated only for readOnlyMethods.
type retryTransport struct {
	base    http.RoundTripper
	retries int
	backoff time.Duration
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	method := path.Base(req.URL.Path)
	for attempt := 1; ; attempt++ {
		resp, err := base.RoundTrip(req)
		if err == nil {
			return resp, nil
		}
		if attempt > t.retries || !retryable(method, err) {
			return nil, err
		}
		next, replayErr := replay(req)
		if replayErr != nil {
			return nil, errors.Join(err, replayErr)
		}
		wait := t.backoff * time.Duration(attempt)
		logger.Debug(req.Context(), "tg.http", "request.retry",
			slog.String("status", "retry"),
			slog.String("op", method),
			slog.Int("attempts", attempt),
			slog.Duration("backoff", wait),
			logger.Err(err),
		)
		if err := pause(req.Context(), wait); err != nil {
			return nil, err
		}
		req = next
	}
}

// replay clones req with a fresh body. Requests whose body cannot be
// rewound are not repeated.
func replay(req *http.Request) (*http.Request, error) {
	next := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return next, nil
	}
	if req.GetBody == nil {
		return nil, errors.New("telegram: request body cannot be replayed")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	next.Body = body
	return next, nil
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func retryable(method string, err error) bool {
	if netutil.IsDialError(err) {
		return true
	}
	_, readOnly := readOnlyMethods[method]
	return readOnly && netutil.IsTimeout(err)
}
