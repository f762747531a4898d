package marketdata

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"

	"tradegateway/src/metrics"
	"tradegateway/src/model"
)

// CandleStore is the persistence interface the channel writes through.
type CandleStore interface {
	Insert(ctx context.Context, candle *model.MarketCandle) error
}

// Channel maintains one streaming market-data subscription for one exchange.
// The receive loop is a single long-running goroutine that terminates only on
// Stop or an unrecoverable auth failure; unexpected disconnects reconnect
// with exponential backoff and re-issue all subscriptions.
type Channel struct {
	exchange string
	config   Config
	store    CandleStore
	log      *logger.Entry
	stats    *metrics.Collector

	mu      sync.Mutex
	symbols map[string]struct{}
	conn    *websocket.Conn
	running bool
	reqID   int64

	cancel context.CancelFunc
	loops  sync.WaitGroup

	// queue decouples the receive loop from persistence; see writerLoop.
	queue chan *model.MarketCandle
}

func NewChannel(exchange string, store CandleStore, config Config) *Channel {
	if config.QueueSize <= 0 {
		config.QueueSize = 256
	}
	return &Channel{
		exchange: exchange,
		config:   config,
		store:    store,
		log:      logger.WithField("component", "MarketDataChannel").WithField("exchange", exchange),
		stats:    metrics.NewCollector(),
		symbols:  make(map[string]struct{}),
		queue:    make(chan *model.MarketCandle, config.QueueSize),
	}
}

// SetCollector replaces the channel's metrics collector, letting the caller
// share one collector across components.
func (c *Channel) SetCollector(stats *metrics.Collector) {
	c.stats = stats
}

// Start opens the stream and subscribes the given symbols. Calling Start
// while already connected is a no-op with a warning.
func (c *Channel) Start(ctx context.Context, symbols []string) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		c.log.Warn("Start called while already running, ignoring")
		return nil
	}
	for _, s := range symbols {
		c.symbols[s] = struct{}{}
	}
	c.running = true
	c.mu.Unlock()

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	conn, err := c.dial(loopCtx)
	if err != nil {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		cancel()
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	if err := c.sendSubscribe(conn, c.currentSymbols()); err != nil {
		c.log.WithError(err).Warn("Initial subscribe failed, receive loop will resubscribe")
	}

	c.loops.Add(2)
	go c.receiveLoop(loopCtx)
	go c.writerLoop(loopCtx)

	c.log.WithField("symbols", symbols).Info("Market data channel started")
	return nil
}

// Stop gracefully closes the stream and waits for the receive and writer
// loops to exit before returning, so no goroutine leaks past it.
func (c *Channel) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	conn := c.conn
	c.conn = nil
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	}

	c.loops.Wait()
	c.log.Info("Market data channel stopped")
}

// Subscribe adds symbols to the live set without tearing down the connection.
func (c *Channel) Subscribe(symbols []string) error {
	c.mu.Lock()
	for _, s := range symbols {
		c.symbols[s] = struct{}{}
	}
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return c.sendSubscribe(conn, symbols)
}

// Unsubscribe removes symbols from the live set.
func (c *Channel) Unsubscribe(symbols []string) error {
	c.mu.Lock()
	for _, s := range symbols {
		delete(c.symbols, s)
	}
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return c.sendUnsubscribe(conn, symbols)
}

func (c *Channel) currentSymbols() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.symbols))
	for s := range c.symbols {
		out = append(out, s)
	}
	return out
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second
	conn, _, err := dialer.DialContext(ctx, c.config.StreamURL, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (c *Channel) sendSubscribe(conn *websocket.Conn, symbols []string) error {
	if len(symbols) == 0 {
		return nil
	}
	params := make([]string, 0, len(symbols))
	for _, s := range symbols {
		params = append(params, streamName(s, c.config.Interval))
	}
	return conn.WriteJSON(subscribeRequest{
		Method: "SUBSCRIBE",
		Params: params,
		ID:     atomic.AddInt64(&c.reqID, 1),
	})
}

func (c *Channel) sendUnsubscribe(conn *websocket.Conn, symbols []string) error {
	if len(symbols) == 0 {
		return nil
	}
	params := make([]string, 0, len(symbols))
	for _, s := range symbols {
		params = append(params, streamName(s, c.config.Interval))
	}
	return conn.WriteJSON(subscribeRequest{
		Method: "UNSUBSCRIBE",
		Params: params,
		ID:     atomic.AddInt64(&c.reqID, 1),
	})
}

// receiveLoop reads frames until stopped. Malformed messages are logged and
// skipped; they never crash the loop.
func (c *Channel) receiveLoop(ctx context.Context) {
	defer c.loops.Done()

	backoff := c.config.ReconnectBase

	for {
		c.mu.Lock()
		conn := c.conn
		running := c.running
		c.mu.Unlock()

		if !running || ctx.Err() != nil {
			return
		}

		if conn == nil {
			var err error
			conn, err = c.reconnect(ctx, &backoff)
			if err != nil {
				return
			}
		}

		if c.config.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			stillRunning := c.running
			c.conn = nil
			c.mu.Unlock()

			_ = conn.Close()
			if !stillRunning || ctx.Err() != nil {
				return
			}
			c.log.WithError(err).Warn("Stream read failed, reconnecting")
			continue
		}
		backoff = c.config.ReconnectBase

		candle, closed, perr := parseKlineMessage(c.exchange, raw)
		if perr != nil {
			c.stats.Inc("stream_malformed_messages")
			c.log.WithError(perr).Warn("Skipping malformed stream message")
			continue
		}
		if !closed {
			continue
		}

		c.enqueue(candle)
	}
}

// reconnect dials with exponential backoff and re-issues subscriptions for
// every previously-subscribed symbol.
func (c *Channel) reconnect(ctx context.Context, backoff *time.Duration) (*websocket.Conn, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(*backoff):
		}

		*backoff *= 2
		if *backoff > c.config.ReconnectMax {
			*backoff = c.config.ReconnectMax
		}

		conn, err := c.dial(ctx)
		if err != nil {
			c.log.WithError(err).WithField("next_backoff", backoff.String()).
				Warn("Reconnect failed")
			continue
		}

		symbols := c.currentSymbols()
		if err := c.sendSubscribe(conn, symbols); err != nil {
			c.log.WithError(err).Warn("Resubscribe failed, retrying connection")
			_ = conn.Close()
			continue
		}

		c.mu.Lock()
		if !c.running {
			c.mu.Unlock()
			_ = conn.Close()
			return nil, context.Canceled
		}
		c.conn = conn
		c.mu.Unlock()

		c.stats.Inc("stream_reconnects")
		c.log.WithField("symbols", symbols).Info("Stream reconnected and resubscribed")
		return conn, nil
	}
}

// enqueue hands a finalized candle to the writer without ever blocking the
// receive loop. When persistence falls behind and the queue is full, the
// oldest pending candle is dropped with a backpressure warning.
func (c *Channel) enqueue(candle *model.MarketCandle) {
	for {
		select {
		case c.queue <- candle:
			return
		default:
		}

		select {
		case dropped := <-c.queue:
			c.stats.Inc("candles_dropped")
			c.log.WithFields(map[string]interface{}{
				"symbol":       dropped.Symbol,
				"bucket_start": dropped.BucketStart,
			}).Warn("Persistence backpressure, dropping oldest pending candle")
		default:
		}
	}
}

// writerLoop drains the queue into the store. Failed inserts are retried a
// bounded number of times, then dropped with a logged error.
func (c *Channel) writerLoop(ctx context.Context) {
	defer c.loops.Done()

	for {
		select {
		case <-ctx.Done():
			// Drain what is already queued before exiting.
			for {
				select {
				case candle := <-c.queue:
					c.persist(context.Background(), candle)
				default:
					return
				}
			}
		case candle := <-c.queue:
			c.persist(ctx, candle)
		}
	}
}

func (c *Channel) persist(ctx context.Context, candle *model.MarketCandle) {
	retries := c.config.PersistRetries
	if retries < 1 {
		retries = 1
	}

	var err error
	for attempt := 0; attempt < retries; attempt++ {
		if err = c.store.Insert(ctx, candle); err == nil {
			c.stats.Inc("candles_persisted")
			return
		}
	}

	c.stats.Inc("candles_dropped")
	c.log.WithFields(map[string]interface{}{
		"symbol":       candle.Symbol,
		"bucket_start": candle.BucketStart,
	}).WithError(err).Error("Dropping candle after persist retries exhausted")
}
