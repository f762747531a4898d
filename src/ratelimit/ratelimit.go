package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// ErrRateLimitTimeout is returned when a caller's deadline expires before a
// rate-limit slot frees up. The call never reaches the exchange in that case.
var ErrRateLimitTimeout = errors.New("rate limit wait timed out")

// Limiter throttles outbound calls for one exchange. It keeps a shared
// token bucket for the whole exchange plus optional tighter per-symbol
// buckets for endpoints with their own quotas. Safe for concurrent use.
type Limiter struct {
	exchange string
	limiter  *rate.Limiter

	mu        sync.Mutex
	perSymbol map[string]*rate.Limiter

	symbolRate  rate.Limit
	symbolBurst int
}

// New builds a limiter allowing callsPerSecond sustained with the given burst.
func New(exchange string, callsPerSecond float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		exchange:  exchange,
		limiter:   rate.NewLimiter(rate.Limit(callsPerSecond), burst),
		perSymbol: make(map[string]*rate.Limiter),
	}
}

// WithSymbolLimit enables per-symbol buckets on top of the exchange bucket.
func (l *Limiter) WithSymbolLimit(callsPerSecond float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.symbolRate = rate.Limit(callsPerSecond)
	l.symbolBurst = burst
	return l
}

func (l *Limiter) symbolLimiter(symbol string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.symbolRate == 0 || symbol == "" {
		return nil
	}
	lim, ok := l.perSymbol[symbol]
	if !ok {
		lim = rate.NewLimiter(l.symbolRate, l.symbolBurst)
		l.perSymbol[symbol] = lim
	}
	return lim
}

// Wait blocks cooperatively until a slot is available for the exchange (and
// the symbol bucket when configured) or the context expires, in which case it
// returns ErrRateLimitTimeout and the caller must not proceed with the call.
func (l *Limiter) Wait(ctx context.Context, symbol string) error {
	start := time.Now()

	if err := l.limiter.Wait(ctx); err != nil {
		logger.WithFields(map[string]interface{}{
			"exchange": l.exchange,
			"symbol":   symbol,
			"waited":   time.Since(start).String(),
		}).Warn("Rate limit wait aborted")
		return ErrRateLimitTimeout
	}

	if sym := l.symbolLimiter(symbol); sym != nil {
		if err := sym.Wait(ctx); err != nil {
			logger.WithFields(map[string]interface{}{
				"exchange": l.exchange,
				"symbol":   symbol,
				"waited":   time.Since(start).String(),
			}).Warn("Per-symbol rate limit wait aborted")
			return ErrRateLimitTimeout
		}
	}

	return nil
}

// Allow reports whether a call could proceed right now without waiting.
func (l *Limiter) Allow(symbol string) bool {
	if !l.limiter.Allow() {
		return false
	}
	if sym := l.symbolLimiter(symbol); sym != nil {
		return sym.Allow()
	}
	return true
}
