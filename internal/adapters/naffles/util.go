package naffles

import (
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"syscall"
	"time"

	perr "nafbridge/internal/platform/errors"
)

// classifyTransport maps transport errors onto the retryable taxonomy
func classifyTransport(err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return perr.Wrapf(err, perr.ErrorCodeNetworkTimeout, "naffles request timed out")
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return perr.Wrapf(err, perr.ErrorCodeConnectionRefused, "naffles connection refused")
	}
	return perr.Wrapf(err, perr.ErrorCodeUnavailable, "naffles request failed")
}

// classifyStatus maps non-2xx statuses the retry loop does not handle
func classifyStatus(status int, body []byte) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return perr.Authf("naffles auth rejected status %d", status)
	case http.StatusNotFound:
		return perr.NotFoundf("naffles entity not found")
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return perr.Validationf("naffles rejected payload status %d body %s", status, string(body))
	default:
		return perr.Internalf("naffles unexpected status %d body %s", status, string(body))
	}
}

// retryAfterWait honors Retry-After seconds when present
func retryAfterWait(h http.Header, fallback time.Duration) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if s, err := strconv.Atoi(v); err == nil && s > 0 {
			return time.Duration(s) * time.Second
		}
	}
	return fallback
}

// drainAndClose empties and closes a response body so the connection can be reused
func drainAndClose(rc io.ReadCloser) error {
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, 1<<16))
	return rc.Close()
}
