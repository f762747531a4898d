package connectors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"testing"
)

func TestKindOf(t *testing.T) {
	err := NewExchangeError("binance", "PlaceOrder", KindTransient, -1003, "too many requests", nil)
	if KindOf(err) != KindTransient {
		t.Fatalf("expected transient, got %s", KindOf(err))
	}

	wrapped := fmt.Errorf("submit failed: %w", err)
	if KindOf(wrapped) != KindTransient {
		t.Fatalf("expected transient through the wrap, got %s", KindOf(wrapped))
	}

	if KindOf(errors.New("plain error")) != KindUnknown {
		t.Fatalf("unclassified errors must report unknown")
	}
	if !IsTransient(wrapped) {
		t.Fatalf("IsTransient should follow the chain")
	}
	if IsTransient(errors.New("plain")) {
		t.Fatalf("plain errors are not transient")
	}
}

func TestExchangeErrorMessagePreservesRawMsg(t *testing.T) {
	err := NewExchangeError("binance", "PlaceOrder", KindRejected, -2019, "Margin is insufficient.", nil)
	msg := err.Error()
	for _, want := range []string{"binance", "PlaceOrder", "rejected", "-2019", "Margin is insufficient."} {
		if !strings.Contains(msg, want) {
			t.Fatalf("error message %q missing %q", msg, want)
		}
	}
}

func TestClassifyHTTPStatus(t *testing.T) {
	cases := []struct {
		status int
		want   ErrorKind
	}{
		{http.StatusTooManyRequests, KindTransient},
		{http.StatusInternalServerError, KindTransient},
		{http.StatusBadGateway, KindTransient},
		{http.StatusServiceUnavailable, KindTransient},
		{http.StatusUnauthorized, KindAuthFailure},
		{http.StatusForbidden, KindAuthFailure},
		{http.StatusBadRequest, KindRejected},
		{http.StatusNotFound, KindRejected},
		{http.StatusOK, KindUnknown},
	}
	for _, tc := range cases {
		if got := classifyHTTPStatus(tc.status); got != tc.want {
			t.Fatalf("classifyHTTPStatus(%d) = %s, want %s", tc.status, got, tc.want)
		}
	}
}

func TestClassifyBinanceCode(t *testing.T) {
	cases := []struct {
		code   int
		status int
		want   ErrorKind
	}{
		{-1003, 429, KindTransient},
		{-1021, 400, KindTransient},
		{-2019, 400, KindRejected},
		{-2018, 400, KindRejected},
		{-2015, 401, KindAuthFailure},
		{-1022, 400, KindAuthFailure},
		// unmapped code falls back to HTTP status
		{-9999, 503, KindTransient},
		{-9999, 400, KindRejected},
	}
	for _, tc := range cases {
		if got := classifyBinanceCode(tc.code, tc.status); got != tc.want {
			t.Fatalf("classifyBinanceCode(%d, %d) = %s, want %s", tc.code, tc.status, got, tc.want)
		}
	}
}

func TestClassifyKrakenError(t *testing.T) {
	cases := []struct {
		msg    string
		status int
		want   ErrorKind
	}{
		{"apiLimitExceeded", 200, KindTransient},
		{"authenticationError", 200, KindAuthFailure},
		{"insufficientAvailableFunds", 200, KindRejected},
		{"somethingNew", 500, KindTransient},
		{"somethingNew", 200, KindUnknown},
	}
	for _, tc := range cases {
		if got := classifyKrakenError(tc.msg, tc.status); got != tc.want {
			t.Fatalf("classifyKrakenError(%q, %d) = %s, want %s", tc.msg, tc.status, got, tc.want)
		}
	}
}

func TestClassifyTransport(t *testing.T) {
	timeout := &net.OpError{Op: "dial", Err: &timeoutError{}}
	if classifyTransport(timeout) != KindTransient {
		t.Fatalf("dial failures should be transient")
	}
	if classifyTransport(context.Canceled) != KindUnknown {
		t.Fatalf("plain cancellation is not classified transient")
	}
}

type timeoutError struct{}

func (*timeoutError) Error() string   { return "i/o timeout" }
func (*timeoutError) Timeout() bool   { return true }
func (*timeoutError) Temporary() bool { return true }

var _ net.Error = (*timeoutError)(nil)
