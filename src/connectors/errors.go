package connectors

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
)

// ErrorKind classifies every raw transport/exchange failure into exactly one
// bucket. The gateway retries Transient only; everything else is terminal for
// the attempt that produced it.
type ErrorKind string

const (
	KindTransient   ErrorKind = "transient"    // network timeout, 5xx, rate limit exceeded
	KindRejected    ErrorKind = "rejected"     // insufficient funds, bad params, business rule
	KindAuthFailure ErrorKind = "auth_failure" // bad key/secret/signature, escalate to operator
	KindUnknown     ErrorKind = "unknown"
)

// ExchangeError wraps a raw exchange failure with its classification. The
// original exchange message is preserved verbatim for operator diagnosis.
type ExchangeError struct {
	Exchange string
	Op       string
	Kind     ErrorKind
	Code     int
	Msg      string
	Err      error
}

func (e *ExchangeError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s %s: [%s] code=%d %s", e.Exchange, e.Op, e.Kind, e.Code, e.Msg)
	}
	return fmt.Sprintf("%s %s: [%s] %s", e.Exchange, e.Op, e.Kind, e.Msg)
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// NewExchangeError builds a classified error for one failed exchange call.
func NewExchangeError(exchange, op string, kind ErrorKind, code int, msg string, err error) *ExchangeError {
	return &ExchangeError{Exchange: exchange, Op: op, Kind: kind, Code: code, Msg: msg, Err: err}
}

// KindOf extracts the classification from an error chain. Unclassified
// errors report KindUnknown.
func KindOf(err error) ErrorKind {
	var ee *ExchangeError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return KindUnknown
}

// IsTransient reports whether the error is safe to retry with the same
// client order id.
func IsTransient(err error) bool {
	return KindOf(err) == KindTransient
}

// asExchangeError is errors.As for *ExchangeError.
func asExchangeError(err error, target **ExchangeError) bool {
	return errors.As(err, target)
}

// classifyTransport maps a transport-level failure (no usable HTTP response)
// into a kind. Network timeouts and connection resets are retryable.
func classifyTransport(err error) ErrorKind {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTransient
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return KindTransient
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindTransient
	}
	return KindUnknown
}

// classifyHTTPStatus maps an HTTP status to a kind when the body carries no
// exchange error code. 429 and 5xx are retryable, 401/403 are auth.
func classifyHTTPStatus(status int) ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindTransient
	case status >= 500:
		return KindTransient
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuthFailure
	case status >= 400:
		return KindRejected
	}
	return KindUnknown
}
