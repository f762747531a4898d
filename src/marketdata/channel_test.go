package marketdata

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"tradegateway/src/model"
)

type fakeStore struct {
	mu      sync.Mutex
	inserts []*model.MarketCandle
	failN   int
}

func (s *fakeStore) Insert(_ context.Context, candle *model.MarketCandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failN > 0 {
		s.failN--
		return errors.New("db unavailable")
	}
	s.inserts = append(s.inserts, candle)
	return nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inserts)
}

var testUpgrader = websocket.Upgrader{}

// newStreamServer runs handler once per websocket connection.
func newStreamServer(t *testing.T, handler func(conn *websocket.Conn, connIndex int)) string {
	t.Helper()

	var mu sync.Mutex
	connIndex := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		mu.Lock()
		idx := connIndex
		connIndex++
		mu.Unlock()
		handler(conn, idx)
	}))
	t.Cleanup(server.Close)

	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func testConfig(url string) Config {
	return Config{
		StreamURL:      url,
		Interval:       "1m",
		QueueSize:      16,
		PersistRetries: 3,
		ReconnectBase:  10 * time.Millisecond,
		ReconnectMax:   50 * time.Millisecond,
		ReadTimeout:    2 * time.Second,
	}
}

func readSubscribe(t *testing.T, conn *websocket.Conn) subscribeRequest {
	t.Helper()
	var req subscribeRequest
	if err := conn.ReadJSON(&req); err != nil {
		t.Errorf("failed reading subscribe frame: %v", err)
	}
	return req
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestChannelPersistsOnlyClosedCandles(t *testing.T) {
	store := &fakeStore{}

	url := newStreamServer(t, func(conn *websocket.Conn, _ int) {
		req := readSubscribe(t, conn)
		if req.Method != "SUBSCRIBE" || len(req.Params) != 1 || req.Params[0] != "btcusdt@kline_1m" {
			t.Errorf("unexpected subscribe frame: %+v", req)
		}

		_ = conn.WriteMessage(websocket.TextMessage, []byte(openKlineFrame))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(closedKlineFrame))

		// Keep the connection alive until the client closes it.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	channel := NewChannel("binance", store, testConfig(url))
	if err := channel.Start(context.Background(), []string{"BTCUSDT"}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer channel.Stop()

	waitFor(t, 3*time.Second, func() bool { return store.count() == 1 })

	candle := store.inserts[0]
	if candle.Symbol != "BTCUSDT" || candle.Exchange != "binance" {
		t.Fatalf("unexpected candle persisted: %+v", candle)
	}
}

func TestChannelSkipsMalformedMessages(t *testing.T) {
	store := &fakeStore{}

	url := newStreamServer(t, func(conn *websocket.Conn, _ int) {
		readSubscribe(t, conn)
		_ = conn.WriteMessage(websocket.TextMessage, []byte("totally not json"))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(closedKlineFrame))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	channel := NewChannel("binance", store, testConfig(url))
	if err := channel.Start(context.Background(), []string{"BTCUSDT"}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer channel.Stop()

	// The malformed frame is skipped and the stream keeps delivering.
	waitFor(t, 3*time.Second, func() bool { return store.count() == 1 })
}

func TestChannelReconnectsAndResubscribes(t *testing.T) {
	store := &fakeStore{}
	subscribes := make(chan subscribeRequest, 4)

	url := newStreamServer(t, func(conn *websocket.Conn, connIndex int) {
		var req subscribeRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		subscribes <- req

		if connIndex == 0 {
			// Simulate an upstream disconnect after the first subscribe.
			_ = conn.Close()
			return
		}

		_ = conn.WriteMessage(websocket.TextMessage, []byte(closedKlineFrame))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	channel := NewChannel("binance", store, testConfig(url))
	if err := channel.Start(context.Background(), []string{"BTCUSDT"}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer channel.Stop()

	for i := 0; i < 2; i++ {
		select {
		case req := <-subscribes:
			if len(req.Params) != 1 || req.Params[0] != "btcusdt@kline_1m" {
				t.Fatalf("connection %d got wrong subscriptions: %+v", i, req)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("subscribe frame %d never arrived", i)
		}
	}

	waitFor(t, 3*time.Second, func() bool { return store.count() == 1 })
}

func TestChannelPersistRetriesTransientStoreFailure(t *testing.T) {
	store := &fakeStore{failN: 2}

	url := newStreamServer(t, func(conn *websocket.Conn, _ int) {
		readSubscribe(t, conn)
		_ = conn.WriteMessage(websocket.TextMessage, []byte(closedKlineFrame))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	channel := NewChannel("binance", store, testConfig(url))
	if err := channel.Start(context.Background(), []string{"BTCUSDT"}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer channel.Stop()

	// Two failures, then the third persist attempt succeeds.
	waitFor(t, 3*time.Second, func() bool { return store.count() == 1 })
}

func TestChannelSubscribeSendsFrame(t *testing.T) {
	store := &fakeStore{}
	frames := make(chan subscribeRequest, 4)

	url := newStreamServer(t, func(conn *websocket.Conn, _ int) {
		for {
			var req subscribeRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			frames <- req
		}
	})

	channel := NewChannel("binance", store, testConfig(url))
	if err := channel.Start(context.Background(), []string{"BTCUSDT"}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer channel.Stop()

	<-frames // initial subscribe

	if err := channel.Subscribe([]string{"ETHUSDT"}); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	select {
	case req := <-frames:
		if req.Method != "SUBSCRIBE" || req.Params[0] != "ethusdt@kline_1m" {
			t.Fatalf("unexpected incremental subscribe: %+v", req)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("incremental subscribe frame never arrived")
	}

	if err := channel.Unsubscribe([]string{"BTCUSDT"}); err != nil {
		t.Fatalf("unsubscribe failed: %v", err)
	}
	select {
	case req := <-frames:
		if req.Method != "UNSUBSCRIBE" || req.Params[0] != "btcusdt@kline_1m" {
			t.Fatalf("unexpected unsubscribe: %+v", req)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("unsubscribe frame never arrived")
	}
}

func TestChannelStartTwiceIsNoOp(t *testing.T) {
	store := &fakeStore{}

	url := newStreamServer(t, func(conn *websocket.Conn, _ int) {
		readSubscribe(t, conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	channel := NewChannel("binance", store, testConfig(url))
	if err := channel.Start(context.Background(), []string{"BTCUSDT"}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer channel.Stop()

	if err := channel.Start(context.Background(), []string{"BTCUSDT"}); err != nil {
		t.Fatalf("second start must be a warning no-op: %v", err)
	}
}

func TestChannelStopIsIdempotentAndJoinsLoops(t *testing.T) {
	store := &fakeStore{}

	url := newStreamServer(t, func(conn *websocket.Conn, _ int) {
		readSubscribe(t, conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	channel := NewChannel("binance", store, testConfig(url))
	if err := channel.Start(context.Background(), []string{"BTCUSDT"}); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		channel.Stop()
		channel.Stop() // second call returns immediately
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("Stop did not join the loops")
	}
}
