package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"pairs_go/internal/domain"
	"pairs_go/internal/infra"

	"github.com/gorilla/websocket"
)

const (
	maxRetries    = 10
	pingInterval  = 30 * time.Second
	readTimeout   = 60 * time.Second
	forwardBuffer = 256
)

// barMessage is one aligned bar pushed by the host: {"pair","ts","px","py"}.
type barMessage struct {
	Pair string `json:"pair"`
	domain.Bar
}

// subscribeMessage asks the host for the configured pairs.
type subscribeMessage struct {
	Action string   `json:"action"`
	Pairs  []string `json:"pairs"`
}

// WSFeed receives bars over a websocket and routes them to the pair sequencers.
// It reconnects with exponential backoff. It implements domain.BarFeed.
//
// Each pair has its own forwarding goroutine, so a slow sequencer only holds
// back its own bars. The read loop blocks only once that pair's forward
// buffer is full.
type WSFeed struct {
	url        string
	router     *Router
	metrics    *infra.Metrics
	maxDelay   time.Duration
	forwarders map[string]chan domain.Bar

	conn      *websocket.Conn
	mu        sync.RWMutex
	writeMu   sync.Mutex
	connected bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewWSFeed creates a websocket feed for the pairs registered on router. metrics may be nil.
func NewWSFeed(url string, router *Router, metrics *infra.Metrics, maxDelay time.Duration) *WSFeed {
	forwarders := make(map[string]chan domain.Bar)
	for _, id := range router.Pairs() {
		forwarders[id] = make(chan domain.Bar, forwardBuffer)
	}
	return &WSFeed{
		url:        url,
		router:     router,
		metrics:    metrics,
		maxDelay:   maxDelay,
		forwarders: forwarders,
	}
}

// Connect starts the WebSocket connection loop
func (w *WSFeed) Connect(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)
	w.startForwarders(ctx)
	w.wg.Add(1)
	go w.connectionLoop(ctx)
	return nil
}

func (w *WSFeed) startForwarders(ctx context.Context) {
	for id, bars := range w.forwarders {
		w.wg.Add(1)
		go w.forward(ctx, id, bars)
	}
}

// forward routes one pair's bars in arrival order.
func (w *WSFeed) forward(ctx context.Context, pairID string, bars <-chan domain.Bar) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case bar := <-bars:
			err := w.router.Route(ctx, pairID, bar)
			switch {
			case err == nil:
			case errors.Is(err, context.Canceled):
				return
			case errors.Is(err, ErrPairHalted):
				slog.Debug("Bar for halted pair dropped", slog.String("pair", pairID), slog.Time("ts", bar.Time))
			default:
				slog.Warn("Dropped bar", slog.String("pair", pairID), slog.Any("error", err))
			}
		}
	}
}

func (w *WSFeed) connectionLoop(ctx context.Context) {
	defer w.wg.Done()
	retryCount := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := w.connect(ctx); err != nil {
			slog.Warn("Bar feed connection failed", slog.Any("error", err), slog.Int("retry", retryCount))
			delay := infra.CalculateBackoff(retryCount, w.maxDelay)
			retryCount++
			if retryCount > maxRetries {
				retryCount = 0
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		} else {
			retryCount = 0
			w.readLoop(ctx)
		}
	}
}

func (w *WSFeed) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, _, err := dialer.DialContext(ctx, w.url, make(http.Header))
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	w.mu.Lock()
	w.conn = conn
	w.connected = true
	w.mu.Unlock()
	if w.metrics != nil {
		w.metrics.IncrementConnections()
	}

	if err := w.subscribe(); err != nil {
		w.closeConnection()
		return err
	}

	slog.Info("Bar feed connected", slog.String("url", w.url), slog.Int("pairs", len(w.router.Pairs())))
	return nil
}

func (w *WSFeed) subscribe() error {
	pairs := w.router.Pairs()
	sort.Strings(pairs)
	b, err := json.Marshal(subscribeMessage{Action: "subscribe", Pairs: pairs})
	if err != nil {
		return err
	}
	return w.threadSafeWrite(websocket.TextMessage, b)
}

func (w *WSFeed) threadSafeWrite(msgType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.conn == nil {
		return fmt.Errorf("no conn")
	}
	return w.conn.WriteMessage(msgType, data)
}

func (w *WSFeed) readLoop(ctx context.Context) {
	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go w.pingLoop(pingCtx)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn == nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		_, msg, err := conn.ReadMessage()
		if err != nil {
			w.closeConnection()
			return
		}
		if err := w.handleMessage(ctx, msg); err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("Dropped bar message", slog.Any("error", err))
		}
	}
}

func (w *WSFeed) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.threadSafeWrite(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (w *WSFeed) handleMessage(ctx context.Context, msg []byte) error {
	var m barMessage
	if err := json.Unmarshal(msg, &m); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if m.Pair == "" || m.Time.IsZero() {
		return nil // Control frames (acks, heartbeats)
	}
	bars, ok := w.forwarders[m.Pair]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPair, m.Pair)
	}
	select {
	case bars <- m.Bar:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *WSFeed) closeConnection() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
		if w.metrics != nil {
			w.metrics.DecrementConnections()
		}
	}
	w.connected = false
}

// IsConnected reports whether the websocket is up.
func (w *WSFeed) IsConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.connected
}

// Disconnect stops the connection loop and closes the socket.
func (w *WSFeed) Disconnect() {
	if w.cancel != nil {
		w.cancel()
	}
	w.closeConnection()
	w.wg.Wait()
}
