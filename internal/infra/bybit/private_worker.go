package bybit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"maker_go/internal/domain"
	"maker_go/internal/event"
	"maker_go/internal/infra"
)

const (
	privateWSMainnet = "wss://stream.bybit.com/v5/private"
	privateWSTestnet = "wss://stream-testnet.bybit.com/v5/private"
)

// PrivateWorker maintains the authenticated account stream (orders,
// executions, position, wallet). Parsed events go to the account queue;
// account events are never dropped, a full queue blocks the socket
// goroutine instead.
type PrivateWorker struct {
	symbol string
	wsURL  string
	signer *Signer
	inbox  chan<- event.Event

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
}

// NewPrivateWorker factory
func NewPrivateWorker(cfg *infra.Config, inbox chan<- event.Event, metrics *infra.Metrics) *PrivateWorker {
	wsURL := privateWSMainnet
	if cfg.Exchange.Testnet {
		wsURL = privateWSTestnet
	}
	return &PrivateWorker{
		symbol:            cfg.Exchange.Symbol,
		wsURL:             wsURL,
		signer:            NewSigner(cfg.Exchange.APIKey, cfg.Exchange.APISecret),
		inbox:             inbox,
		reconnectAttempts: cfg.System.WSReconnectAttempts,
		reconnectInitial:  cfg.WSReconnectInitialDelay(),
		reconnectMax:      cfg.WSReconnectMaxDelay(),
		readTimeout:       streamReadTimeout(cfg),
		metrics:           metrics,
		logger:            slog.Default().With("module", "bybit_private_ws"),
	}
}

func (w *PrivateWorker) Connect(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.connectionLoop(ctx)
	return nil
}

func (w *PrivateWorker) connectionLoop(ctx context.Context) {
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
				w.logger.Error("Private stream reconnect budget exhausted",
					slog.Int("attempts", attempts))
				w.inbox <- &event.StreamFatalEvent{Stream: "private", Err: domain.ErrReconnectBudgetExhausted}
				return
			}
			delay := min(w.reconnectInitial<<(attempts-1), w.reconnectMax)
			w.logger.Warn("Private stream connection failed",
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

func (w *PrivateWorker) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConnectionFailed, err)
	}

	w.mu.Lock()
	w.conn = conn
	w.connected = true
	w.mu.Unlock()

	if err := w.authenticate(); err != nil {
		w.closeConnection()
		return err
	}
	if err := w.subscribe(); err != nil {
		w.closeConnection()
		return err
	}

	if w.metrics != nil {
		w.metrics.IncrementStreams()
	}
	go w.pingLoop(ctx)
	w.logger.Info("Private stream connected")
	return nil
}

func (w *PrivateWorker) authenticate() error {
	expires := time.Now().Add(10 * time.Second).UnixMilli()
	req := wsAuthRequest{
		Op:   "auth",
		Args: []any{w.signer.apiKey, expires, w.signer.SignWebSocketAuth(expires)},
	}
	b, _ := json.Marshal(req)
	return w.threadSafeWrite(websocket.TextMessage, b)
}

func (w *PrivateWorker) subscribe() error {
	req := wsRequest{Op: "subscribe", Args: []string{"order", "execution", "position", "wallet"}}
	b, _ := json.Marshal(req)
	return w.threadSafeWrite(websocket.TextMessage, b)
}

func (w *PrivateWorker) pingLoop(ctx context.Context) {
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

func (w *PrivateWorker) threadSafeWrite(msgType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.conn == nil {
		return fmt.Errorf("no conn")
	}
	return w.conn.WriteMessage(msgType, data)
}

func (w *PrivateWorker) readLoop(ctx context.Context) {
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

func (w *PrivateWorker) handleMessage(msg []byte) {
	var head struct {
		Topic string `json:"topic"`
		Op    string `json:"op"`
	}
	if err := json.Unmarshal(msg, &head); err != nil {
		return
	}

	switch {
	case head.Op == "auth":
		var resp wsResponse
		json.Unmarshal(msg, &resp)
		if !resp.Success {
			w.logger.Error("Private stream auth rejected", slog.String("ret_msg", resp.RetMsg))
			// Bad credentials never heal through reconnects. Surface a
			// non-retriable error and let the engine stop.
			w.inbox <- &event.StreamFatalEvent{
				Stream: "private",
				Err:    domain.NewFatalNetworkError("auth", errors.New(resp.RetMsg)),
			}
		}
	case head.Topic == "order":
		w.handleOrder(msg)
	case head.Topic == "execution":
		w.handleExecution(msg)
	case head.Topic == "position":
		w.handlePosition(msg)
	case head.Topic == "wallet":
		w.handleWallet(msg)
	}
}

func (w *PrivateWorker) handleOrder(msg []byte) {
	var resp wsOrderMessage
	if err := json.Unmarshal(msg, &resp); err != nil || len(resp.Data) == 0 {
		return
	}
	orders := make([]domain.Order, 0, len(resp.Data))
	for _, wo := range resp.Data {
		if wo.Symbol != w.symbol {
			continue
		}
		orders = append(orders, orderFromWire(wo))
	}
	if len(orders) == 0 {
		return
	}
	w.inbox <- &event.OrderUpdateEvent{Orders: orders, Ts: time.Now()}
}

func (w *PrivateWorker) handleExecution(msg []byte) {
	var resp wsExecutionMessage
	if err := json.Unmarshal(msg, &resp); err != nil || len(resp.Data) == 0 {
		return
	}
	fills := make([]domain.TradeFill, 0, len(resp.Data))
	for _, e := range resp.Data {
		if e.Symbol != w.symbol {
			continue
		}
		role := domain.RoleTaker
		if e.IsMaker {
			role = domain.RoleMaker
		}
		ts := time.Now()
		if ms, err := strconv.ParseInt(e.ExecTime, 10, 64); err == nil {
			ts = time.UnixMilli(ms)
		}
		fills = append(fills, domain.TradeFill{
			OrderID:     e.OrderID,
			TradeID:     e.ExecID,
			Symbol:      e.Symbol,
			Side:        domain.Side(e.Side),
			ExecPrice:   parseDecimal(e.ExecPrice),
			ExecQty:     parseDecimal(e.ExecQty),
			Fee:         parseDecimal(e.ExecFee),
			FeeCurrency: e.FeeCurrency,
			Role:        role,
			Timestamp:   ts,
		})
	}
	if len(fills) == 0 {
		return
	}
	w.inbox <- &event.ExecutionEvent{Fills: fills}
}

func (w *PrivateWorker) handlePosition(msg []byte) {
	var resp wsPositionMessage
	if err := json.Unmarshal(msg, &resp); err != nil {
		return
	}
	for _, p := range resp.Data {
		if p.Symbol != w.symbol {
			continue
		}
		size := parseDecimal(p.Size)
		if p.Side == "Sell" {
			size = size.Neg()
		}
		w.inbox <- &event.PositionEvent{Symbol: p.Symbol, Size: size}
	}
}

func (w *PrivateWorker) handleWallet(msg []byte) {
	var resp wsWalletMessage
	if err := json.Unmarshal(msg, &resp); err != nil {
		return
	}
	for _, acct := range resp.Data {
		for _, c := range acct.Coin {
			w.inbox <- &event.WalletEvent{
				Coin:             c.Coin,
				WalletBalance:    parseDecimal(c.WalletBalance),
				AvailableBalance: parseDecimal(c.AvailableToWithdraw),
			}
		}
	}
}

func (w *PrivateWorker) closeConnection() {
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

func (w *PrivateWorker) Disconnect() {
	if w.cancel != nil {
		w.cancel()
	}
	w.closeConnection()
	w.wg.Wait()
}

func (w *PrivateWorker) IsConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.connected
}

// LastMessageAt reports when the last frame arrived.
func (w *PrivateWorker) LastMessageAt() time.Time {
	ns := w.lastMsgNs.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
