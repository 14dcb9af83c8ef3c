package alist

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/jpillora/backoff"
)

const retryAfterHeader = "Retry-After"

var retryStatuses = map[int]struct{}{
	http.StatusRequestTimeout:      {},
	http.StatusTooManyRequests:     {},
	http.StatusInternalServerError: {},
	http.StatusBadGateway:          {},
	http.StatusServiceUnavailable:  {},
	http.StatusGatewayTimeout:      {},
}

type requester interface {
	Do(req *http.Request) (*http.Response, error)
}

// retryRequester repeats requests answered with a transient status. Network
// errors are returned at once so the caller sees them as transport failures.
type retryRequester struct {
	client      requester
	maxAttempts int
	minDelay    time.Duration
	maxDelay    time.Duration
	logger      *slog.Logger
}

func newRetryRequester(client requester, maxAttempts int, minDelay, maxDelay time.Duration, logger *slog.Logger) *retryRequester {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &retryRequester{
		client:      client,
		maxAttempts: maxAttempts,
		minDelay:    minDelay,
		maxDelay:    maxDelay,
		logger:      logger,
	}
}

func (r *retryRequester) Do(req *http.Request) (*http.Response, error) {
	bo := &backoff.Backoff{
		Min:    r.minDelay,
		Max:    r.maxDelay,
		Factor: 2,
		Jitter: true,
	}

	for attempt := 1; ; attempt++ {
		resp, err := r.client.Do(req)
		if err != nil {
			return nil, err
		}

		if _, retry := retryStatuses[resp.StatusCode]; !retry || attempt >= r.maxAttempts {
			return resp, nil
		}
		resp.Body.Close()

		wait := retryAfter(resp)
		if wait <= 0 {
			wait = bo.Duration()
		}
		if r.maxDelay > 0 && wait > r.maxDelay {
			wait = r.maxDelay
		}
		r.logger.Debug("retrying request",
			"url", req.URL.String(),
			"status", resp.StatusCode,
			"attempt", attempt,
			"wait", wait)

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		}

		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("failed to rewind request body: %w", err)
			}
			req.Body = body
		}
	}
}

func retryAfter(resp *http.Response) time.Duration {
	value := resp.Header.Get(retryAfterHeader)
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
