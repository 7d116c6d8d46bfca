package errors_test

import (
	stderrs "errors"
	"fmt"
	"net/http"
	"testing"

	perr "nafbridge/internal/platform/errors"
)

func TestCodeOfAndWrap(t *testing.T) {
	base := perr.Timeoutf("dial timed out")
	wrapped := perr.Wrap(base, perr.ErrorCodeDB, "persist failed")

	if got := perr.CodeOf(wrapped); got != perr.ErrorCodeDB {
		t.Fatalf("CodeOf(wrapped) = %d, want ErrorCodeDB", got)
	}
	// the cause is preserved through wrapping
	if root := perr.Root(wrapped); root == nil || root.Error() != "dial timed out" {
		t.Fatalf("Root(wrapped) = %v", root)
	}
	var e *perr.Error
	if !stderrs.As(wrapped, &e) {
		t.Fatalf("expected errors.As to find *perr.Error")
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{perr.NotFoundf("missing"), http.StatusNotFound},
		{perr.Validationf("bad input"), http.StatusBadRequest},
		{perr.JSONErrf("bad json"), http.StatusBadRequest},
		{perr.Authf("bad key"), http.StatusUnauthorized},
		{perr.SignatureInvalidf("hmac mismatch"), http.StatusUnauthorized},
		{perr.PolicyDeniedf("no role"), http.StatusForbidden},
		{perr.RateLimitedf("slow down"), http.StatusTooManyRequests},
		{perr.Timeoutf("deadline"), http.StatusServiceUnavailable},
		{perr.Refusedf("refused"), http.StatusServiceUnavailable},
		{perr.Unavailablef("502"), http.StatusServiceUnavailable},
		{perr.Internalf("boom"), http.StatusInternalServerError},
		{fmt.Errorf("plain"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := perr.HTTPStatus(c.err); got != c.want {
			t.Fatalf("HTTPStatus(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}

func TestRetryableClassification(t *testing.T) {
	retryable := []error{
		perr.Timeoutf("t"),
		perr.Refusedf("r"),
		perr.RateLimitedf("rl"),
		perr.Unavailablef("503"),
	}
	for _, err := range retryable {
		if !perr.Retryable(err) {
			t.Fatalf("expected %v to be retryable", err)
		}
	}

	terminal := []error{
		perr.Authf("a"),
		perr.Validationf("v"),
		perr.NotFoundf("nf"),
		perr.SignatureInvalidf("sig"),
		perr.PolicyDeniedf("pd"),
		perr.Internalf("i"),
		fmt.Errorf("plain"),
	}
	for _, err := range terminal {
		if perr.Retryable(err) {
			t.Fatalf("expected %v to be terminal", err)
		}
	}
}

func TestWireFrom(t *testing.T) {
	w := perr.WireFrom(perr.PolicyDeniedf("bots cannot use commands"))
	if w.Code != perr.ErrorCodePolicyDenied || w.Message != "bots cannot use commands" {
		t.Fatalf("unexpected wire: %+v", w)
	}
	if w := perr.WireFrom(nil); w.Code != 0 || w.Message != "" {
		t.Fatalf("expected zero wire for nil error, got %+v", w)
	}
}

func TestWithOp(t *testing.T) {
	err := perr.DBf("insert failed")
	tagged := perr.WithOp(err, "audit.append")
	e, ok := perr.As(tagged)
	if !ok || e.Op() != "audit.append" {
		t.Fatalf("expected op tag, got %+v", e)
	}
	// original untouched (copy-on-write)
	orig, _ := perr.As(err)
	if orig.Op() != "" {
		t.Fatalf("original error mutated")
	}
}
