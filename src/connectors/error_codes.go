package connectors

// binanceErrorKinds maps Binance Futures error codes onto the retry
// classification. Codes not listed fall back to HTTP-status classification.
var binanceErrorKinds = map[int]ErrorKind{
	-1000: KindUnknown,     // UNKNOWN
	-1001: KindTransient,   // DISCONNECTED, internal error
	-1003: KindTransient,   // TOO_MANY_REQUESTS
	-1007: KindTransient,   // TIMEOUT waiting for backend
	-1021: KindTransient,   // timestamp outside recvWindow, resync and retry
	-1022: KindAuthFailure, // INVALID_SIGNATURE
	-1100: KindRejected,    // ILLEGAL_CHARS in parameter
	-1102: KindRejected,    // MANDATORY_PARAM_EMPTY_OR_MALFORMED
	-1111: KindRejected,    // BAD_PRECISION
	-1116: KindRejected,    // INVALID_ORDER_TYPE
	-1117: KindRejected,    // INVALID_SIDE
	-1121: KindRejected,    // BAD_SYMBOL
	-2010: KindRejected,    // NEW_ORDER_REJECTED
	-2011: KindRejected,    // CANCEL_REJECTED
	-2013: KindRejected,    // NO_SUCH_ORDER
	-2014: KindAuthFailure, // BAD_API_KEY_FMT
	-2015: KindAuthFailure, // REJECTED_MBX_KEY (invalid key, IP, or permissions)
	-2018: KindRejected,    // BALANCE_NOT_SUFFICIENT
	-2019: KindRejected,    // MARGIN_NOT_SUFFICIENT
	-2020: KindRejected,    // UNABLE_TO_FILL
	-2021: KindRejected,    // ORDER_WOULD_IMMEDIATELY_TRIGGER
	-2022: KindRejected,    // REDUCE_ONLY_REJECT
	-4003: KindRejected,    // QUANTITY_LESS_THAN_ZERO
	-4014: KindRejected,    // PRICE_NOT_INCREASED_BY_TICK_SIZE
	-4028: KindRejected,    // INVALID_LEVERAGE
	-4164: KindRejected,    // MIN_NOTIONAL
}

// classifyBinanceCode resolves a Binance error code, falling back to the
// HTTP status when the code is unmapped.
func classifyBinanceCode(code, httpStatus int) ErrorKind {
	if kind, ok := binanceErrorKinds[code]; ok {
		return kind
	}
	return classifyHTTPStatus(httpStatus)
}

// krakenErrorKinds maps Kraken Futures string errors onto the retry
// classification. Kraken returns HTTP 200 with result=error for most
// business failures, so the body string is the only signal.
var krakenErrorKinds = map[string]ErrorKind{
	"apiLimitExceeded":        KindTransient,
	"nonceBelowThreshold":     KindTransient,
	"nonceDuplicate":          KindTransient,
	"authenticationError":     KindAuthFailure,
	"requiredArgumentMissing": KindRejected,
	"invalidArgument":         KindRejected,
	"insufficientAvailableFunds": KindRejected,
	"marketSuspended":            KindRejected,
	"marketInactive":             KindRejected,
	"invalidUnit":                KindRejected,
	"Unavailable":                KindTransient,
}

func classifyKrakenError(msg string, httpStatus int) ErrorKind {
	if kind, ok := krakenErrorKinds[msg]; ok {
		return kind
	}
	return classifyHTTPStatus(httpStatus)
}
