package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"maker_go/internal/domain"
	"maker_go/internal/event"
	"maker_go/internal/infra"
)

const (
	publicWSMainnet = "wss://stream.bybit.com/v5/public"
	publicWSTestnet = "wss://stream-testnet.bybit.com/v5/public"

	pingInterval = 20 * time.Second

	// defaultReadTimeout backstops the read deadline when no heartbeat
	// timeout is configured.
	defaultReadTimeout = 60 * time.Second
)

// streamReadTimeout derives the socket read deadline from the configured
// heartbeat timeout, so a silently dead connection is torn down and
// reconnected on the same clock the engine uses to judge staleness.
func streamReadTimeout(cfg *infra.Config) time.Duration {
	if t := cfg.WSHeartbeatTimeout(); t > 0 {
		return t
	}
	return defaultReadTimeout
}

// PublicWorker maintains the public order-book stream. Messages are
// parsed on the socket goroutine and enqueued into the market queue;
// shared state is never touched here.
type PublicWorker struct {
	symbol   string
	category string
	wsURL    string
	inbox    chan<- event.Event

	reconnectAttempts int
	reconnectInitial  time.Duration
	reconnectMax      time.Duration
	readTimeout       time.Duration

	conn      *websocket.Conn
	mu        sync.RWMutex
	writeMu   sync.Mutex
	connected bool
	lastMsgNs atomic.Int64
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	metrics   *infra.Metrics
	logger    *slog.Logger

	// book mirrors the subscribed depth so deltas can be applied.
	bids map[string]domain.PriceLevel
	asks map[string]domain.PriceLevel
}

// NewPublicWorker factory
func NewPublicWorker(cfg *infra.Config, inbox chan<- event.Event, metrics *infra.Metrics) *PublicWorker {
	wsURL := publicWSMainnet
	if cfg.Exchange.Testnet {
		wsURL = publicWSTestnet
	}
	return &PublicWorker{
		symbol:            cfg.Exchange.Symbol,
		category:          cfg.Exchange.Category,
		wsURL:             wsURL + "/" + cfg.Exchange.Category,
		inbox:             inbox,
		reconnectAttempts: cfg.System.WSReconnectAttempts,
		reconnectInitial:  cfg.WSReconnectInitialDelay(),
		reconnectMax:      cfg.WSReconnectMaxDelay(),
		readTimeout:       streamReadTimeout(cfg),
		metrics:           metrics,
		logger:            slog.Default().With("module", "bybit_public_ws"),
		bids:              make(map[string]domain.PriceLevel),
		asks:              make(map[string]domain.PriceLevel),
	}
}

func (w *PublicWorker) Connect(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.connectionLoop(ctx)
	return nil
}

// connectionLoop reconnects with capped exponential backoff. The
// attempt budget resets after every successful connection; exhausting
// it pushes a fatal event and gives up.
func (w *PublicWorker) connectionLoop(ctx context.Context) {
	defer w.wg.Done()
	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := w.connect(ctx); err != nil {
			attempts++
			if w.metrics != nil {
				w.metrics.RecordReconnect()
			}
			if attempts >= w.reconnectAttempts {
				w.logger.Error("Public stream reconnect budget exhausted",
					slog.Int("attempts", attempts))
				w.inbox <- &event.StreamFatalEvent{Stream: "public", Err: domain.ErrReconnectBudgetExhausted}
				return
			}
			delay := min(w.reconnectInitial<<(attempts-1), w.reconnectMax)
			w.logger.Warn("Public stream connection failed",
				slog.Int("attempt", attempts),
				slog.Duration("retry_in", delay),
				slog.Any("error", err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}

		attempts = 0
		w.readLoop(ctx)
	}
}

func (w *PublicWorker) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConnectionFailed, err)
	}

	w.mu.Lock()
	w.conn = conn
	w.connected = true
	w.mu.Unlock()

	if err := w.subscribe(); err != nil {
		w.closeConnection()
		return err
	}

	if w.metrics != nil {
		w.metrics.IncrementStreams()
	}
	go w.pingLoop(ctx)
	w.logger.Info("Public stream connected", slog.String("symbol", w.symbol))
	return nil
}

func (w *PublicWorker) subscribe() error {
	req := wsRequest{Op: "subscribe", Args: []string{"orderbook.1." + w.symbol}}
	b, _ := json.Marshal(req)
	return w.threadSafeWrite(websocket.TextMessage, b)
}

func (w *PublicWorker) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b, _ := json.Marshal(wsRequest{Op: "ping"})
			w.threadSafeWrite(websocket.TextMessage, b)
		}
	}
}

func (w *PublicWorker) threadSafeWrite(msgType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.conn == nil {
		return fmt.Errorf("no conn")
	}
	return w.conn.WriteMessage(msgType, data)
}

func (w *PublicWorker) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		w.mu.RLock()
		if w.conn == nil {
			w.mu.RUnlock()
			return
		}
		w.conn.SetReadDeadline(time.Now().Add(w.readTimeout))
		w.mu.RUnlock()

		_, msg, err := w.conn.ReadMessage()
		if err != nil {
			w.closeConnection()
			return
		}
		w.lastMsgNs.Store(time.Now().UnixNano())
		w.handleMessage(msg)
	}
}

func (w *PublicWorker) handleMessage(msg []byte) {
	var resp wsOrderbookMessage
	if err := json.Unmarshal(msg, &resp); err != nil {
		return
	}
	if resp.Topic == "" || resp.Data.Symbol == "" {
		return // op acks, pongs
	}

	if resp.Type == "snapshot" {
		w.bids = make(map[string]domain.PriceLevel)
		w.asks = make(map[string]domain.PriceLevel)
	}
	applyLevels(w.bids, resp.Data.Bids)
	applyLevels(w.asks, resp.Data.Asks)

	book := domain.Orderbook{
		Symbol: resp.Data.Symbol,
		Bids:   topLevels(w.bids, true),
		Asks:   topLevels(w.asks, false),
		Ts:     time.UnixMilli(resp.Ts),
	}

	ev := event.AcquireOrderbookEvent()
	ev.Book = book
	// Market updates are monotonic replacements: dropping one on a full
	// queue is safe, the next update supersedes it anyway.
	select {
	case w.inbox <- ev:
	default:
		event.ReleaseOrderbookEvent(ev)
	}
}

// applyLevels folds [price, qty] pairs into the book side; qty "0"
// deletes the level.
func applyLevels(side map[string]domain.PriceLevel, levels [][]string) {
	for _, l := range levels {
		if len(l) < 2 {
			continue
		}
		if l[1] == "0" {
			delete(side, l[0])
			continue
		}
		side[l[0]] = domain.PriceLevel{Price: parseDecimal(l[0]), Qty: parseDecimal(l[1])}
	}
}

func topLevels(side map[string]domain.PriceLevel, descending bool) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(side))
	for _, l := range side {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if descending {
			return out[i].Price.GreaterThan(out[j].Price)
		}
		return out[i].Price.LessThan(out[j].Price)
	})
	return out
}

func (w *PublicWorker) closeConnection() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
		if w.connected && w.metrics != nil {
			w.metrics.DecrementStreams()
		}
	}
	w.connected = false
}

func (w *PublicWorker) Disconnect() {
	if w.cancel != nil {
		w.cancel()
	}
	w.closeConnection()
	w.wg.Wait()
}

func (w *PublicWorker) IsConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.connected
}

// LastMessageAt reports when the last frame arrived; the engine's
// heartbeat check compares it against the configured timeout.
func (w *PublicWorker) LastMessageAt() time.Time {
	ns := w.lastMsgNs.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
