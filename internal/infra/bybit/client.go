package bybit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"maker_go/internal/domain"
	"maker_go/internal/infra"
)

// Bybit V5 API hosts
const (
	BaseURLMainnet = "https://api.bybit.com"
	BaseURLTestnet = "https://api-testnet.bybit.com"
)

// Client is the Bybit V5 REST gateway (boundary layer). It owns error
// classification, the retry policy, and cancel-call spacing; callers
// only ever see classified errors that already survived retries.
type Client struct {
	baseURL       string
	category      string
	httpClient    *http.Client
	signer        *Signer
	retry         RetryPolicy
	cancelLimiter *rate.Limiter
	logger        *slog.Logger
	metrics       *infra.Metrics
}

// NewClient creates a new Bybit API client from configuration.
func NewClient(cfg *infra.Config, metrics *infra.Metrics) *Client {
	baseURL := BaseURLMainnet
	if cfg.Exchange.Testnet {
		baseURL = BaseURLTestnet
	}

	c := &Client{
		baseURL:  baseURL,
		category: cfg.Exchange.Category,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		signer: NewSigner(cfg.Exchange.APIKey, cfg.Exchange.APISecret),
		retry: RetryPolicy{
			MaxAttempts:  cfg.System.APIRetryAttempts,
			InitialDelay: cfg.APIRetryInitialDelay(),
			MaxDelay:     cfg.APIRetryMaxDelay(),
		},
		// Exchange-side cancellation rate limits: consecutive cancels
		// wait out the remaining spacing delta before going on the wire.
		cancelLimiter: rate.NewLimiter(rate.Every(cfg.CancellationMinSpacing()), 1),
		logger:        slog.Default().With("module", "bybit_client"),
		metrics:       metrics,
	}
	c.retry.OnRetry = func(attempt int, err error, delay time.Duration) {
		if c.metrics != nil {
			c.metrics.RecordRetry()
		}
		c.logger.Warn("Retrying API call",
			slog.Int("attempt", attempt),
			slog.Duration("backoff", delay),
			slog.Any("error", err))
	}
	return c
}

// classify maps a Bybit business code to the error taxonomy. The code
// groups follow the venue's documented families; anything unmapped is
// treated as retryable.
func classify(op string, code int64, msg string) error {
	switch code {
	case 0:
		return nil
	case 30071, 110043: // leverage not modified: not an error
		return nil
	case 10004:
		return &domain.APIError{Kind: domain.ErrKindAuth, Code: code, Msg: msg, Op: op}
	case 10006, 10007, 10016, 120004, 120005:
		return &domain.APIError{Kind: domain.ErrKindRateLimit, Code: code, Msg: msg, Op: op}
	case 10001, 110001, 110003, 12130, 12131:
		return &domain.APIError{Kind: domain.ErrKindInsufficientBalance, Code: code, Msg: msg, Op: op}
	case 10002:
		return &domain.APIError{Kind: domain.ErrKindParameter, Code: code, Msg: msg, Op: op}
	case 30003:
		return fmt.Errorf("%s: code=%d msg=%s: %w", op, code, msg, domain.ErrOrderNotFound)
	case 30042:
		return &domain.APIError{Kind: domain.ErrKindOrderPlacement, Code: code, Msg: msg, Op: op}
	default:
		return &domain.APIError{Kind: domain.ErrKindUnknown, Code: code, Msg: msg, Op: op}
	}
}

// GetInstrumentInfo fetches per-symbol trading rules, plus the account
// fee rates when credentials are configured.
func (c *Client) GetInstrumentInfo(ctx context.Context, symbol string) (domain.MarketInfo, error) {
	query := url.Values{"category": {c.category}, "symbol": {symbol}}

	var info domain.MarketInfo
	err := c.retry.Do(ctx, domain.IsRetriable, func() error {
		raw, err := c.doRequest(ctx, http.MethodGet, "/v5/market/instruments-info", query, nil)
		if err != nil {
			return err
		}

		var res instrumentsResult
		if err := json.Unmarshal(raw, &res); err != nil {
			return fmt.Errorf("parse instruments: %w", err)
		}
		if len(res.List) == 0 {
			return &domain.APIError{Kind: domain.ErrKindParameter, Op: "instruments-info",
				Msg: "symbol not found: " + symbol}
		}

		inst := res.List[0]
		info = domain.MarketInfo{
			Symbol:      inst.Symbol,
			PriceTick:   parseDecimal(inst.PriceFilter.TickSize),
			QtyStep:     parseDecimal(inst.LotSizeFilter.QtyStep),
			MinOrderQty: parseDecimal(inst.LotSizeFilter.MinOrderQty),
			MinNotional: parseDecimal(inst.LotSizeFilter.MinNotionalValue),
		}
		return nil
	})
	if err != nil {
		return domain.MarketInfo{}, err
	}

	// Fee rates come from an authenticated endpoint; leave them zero
	// when no credentials are configured (dry-run against public data).
	if c.signer.apiKey != "" {
		maker, taker, err := c.getFeeRates(ctx, symbol)
		if err != nil {
			c.logger.Warn("Failed to fetch fee rates, assuming zero", slog.Any("error", err))
		} else {
			info.MakerFeeRate = maker
			info.TakerFeeRate = taker
		}
	}

	return info, nil
}

func (c *Client) getFeeRates(ctx context.Context, symbol string) (maker, taker decimal.Decimal, err error) {
	query := url.Values{"category": {c.category}, "symbol": {symbol}}

	err = c.retry.Do(ctx, domain.IsRetriable, func() error {
		raw, err := c.doRequest(ctx, http.MethodGet, "/v5/account/fee-rate", query, nil)
		if err != nil {
			return err
		}
		var res feeRateResult
		if err := json.Unmarshal(raw, &res); err != nil {
			return fmt.Errorf("parse fee rates: %w", err)
		}
		if len(res.List) == 0 {
			return errors.New("empty fee rate list")
		}
		maker = parseDecimal(res.List[0].MakerFeeRate)
		taker = parseDecimal(res.List[0].TakerFeeRate)
		return nil
	})
	return maker, taker, err
}

// GetBalance fetches the wallet and available balance for one coin.
func (c *Client) GetBalance(ctx context.Context, coin string) (wallet, available decimal.Decimal, err error) {
	query := url.Values{"accountType": {"UNIFIED"}, "coin": {coin}}

	err = c.retry.Do(ctx, domain.IsRetriable, func() error {
		raw, err := c.doRequest(ctx, http.MethodGet, "/v5/account/wallet-balance", query, nil)
		if err != nil {
			return err
		}
		var res walletResult
		if err := json.Unmarshal(raw, &res); err != nil {
			return fmt.Errorf("parse wallet: %w", err)
		}
		for _, acct := range res.List {
			for _, cb := range acct.Coin {
				if cb.Coin == coin {
					wallet = parseDecimal(cb.WalletBalance)
					available = parseDecimal(cb.AvailableToWithdraw)
					if available.IsZero() {
						available = wallet
					}
					return nil
				}
			}
		}
		// A coin the account never touched simply has zero balance.
		wallet, available = decimal.Zero, decimal.Zero
		return nil
	})
	return wallet, available, err
}

// GetPosition fetches the signed position size: positive long, negative
// short, zero flat.
func (c *Client) GetPosition(ctx context.Context, symbol string) (decimal.Decimal, error) {
	query := url.Values{"category": {c.category}, "symbol": {symbol}}

	var size decimal.Decimal
	err := c.retry.Do(ctx, domain.IsRetriable, func() error {
		raw, err := c.doRequest(ctx, http.MethodGet, "/v5/position/list", query, nil)
		if err != nil {
			return err
		}
		var res positionResult
		if err := json.Unmarshal(raw, &res); err != nil {
			return fmt.Errorf("parse position: %w", err)
		}
		size = decimal.Zero
		for _, p := range res.List {
			if p.Symbol != symbol {
				continue
			}
			size = parseDecimal(p.Size)
			if p.Side == "Sell" {
				size = size.Neg()
			}
		}
		return nil
	})
	return size, err
}

// SetLeverage sets symmetric buy/sell leverage. "Not modified" venue
// responses count as success.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	body := map[string]string{
		"category":     c.category,
		"symbol":       symbol,
		"buyLeverage":  strconv.Itoa(leverage),
		"sellLeverage": strconv.Itoa(leverage),
	}

	return c.retry.Do(ctx, domain.IsRetriable, func() error {
		_, err := c.doRequest(ctx, http.MethodPost, "/v5/position/set-leverage", nil, body)
		return err
	})
}

// GetOpenOrders fetches the venue's current open-order list.
func (c *Client) GetOpenOrders(ctx context.Context, symbol string) ([]domain.Order, error) {
	query := url.Values{"category": {c.category}, "symbol": {symbol}}

	var orders []domain.Order
	err := c.retry.Do(ctx, domain.IsRetriable, func() error {
		raw, err := c.doRequest(ctx, http.MethodGet, "/v5/order/realtime", query, nil)
		if err != nil {
			return err
		}
		var res openOrdersResult
		if err := json.Unmarshal(raw, &res); err != nil {
			return fmt.Errorf("parse open orders: %w", err)
		}
		orders = make([]domain.Order, 0, len(res.List))
		for _, w := range res.List {
			orders = append(orders, orderFromWire(w))
		}
		return nil
	})
	return orders, err
}

// PlaceOrder submits a new order and returns the exchange order id.
func (c *Client) PlaceOrder(ctx context.Context, req domain.OrderRequest) (string, error) {
	body := placeOrderRequest{
		Category:    c.category,
		Symbol:      req.Symbol,
		Side:        string(req.Side),
		OrderType:   req.OrderType,
		Qty:         req.Qty.String(),
		TimeInForce: req.TimeInForce,
		OrderLinkID: req.ClientID,
		ReduceOnly:  req.ReduceOnly,
	}
	if req.OrderType == domain.OrderTypeLimit {
		body.Price = req.Price.String()
	}

	var orderID string
	err := c.retry.Do(ctx, domain.IsRetriable, func() error {
		raw, err := c.doRequest(ctx, http.MethodPost, "/v5/order/create", nil, body)
		if err != nil {
			return err
		}
		var res placeOrderResult
		if err := json.Unmarshal(raw, &res); err != nil {
			return fmt.Errorf("parse place order: %w", err)
		}
		orderID = res.OrderID
		return nil
	})
	if err != nil {
		return "", err
	}

	if c.metrics != nil {
		c.metrics.RecordOrderPlaced()
	}
	c.logger.Info("Order placed",
		slog.String("order_id", orderID),
		slog.String("client_id", req.ClientID),
		slog.String("side", string(req.Side)),
		slog.String("price", req.Price.String()),
		slog.String("qty", req.Qty.String()))
	return orderID, nil
}

// CancelOrder cancels one order. An order the venue no longer knows is
// treated as already gone and reported as cancelled.
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) (bool, error) {
	if err := c.cancelLimiter.Wait(ctx); err != nil {
		return false, err
	}

	body := map[string]string{
		"category": c.category,
		"symbol":   symbol,
		"orderId":  orderID,
	}

	err := c.retry.Do(ctx, domain.IsRetriable, func() error {
		_, err := c.doRequest(ctx, http.MethodPost, "/v5/order/cancel", nil, body)
		return err
	})
	if errors.Is(err, domain.ErrOrderNotFound) {
		c.logger.Debug("Cancel target already gone", slog.String("order_id", orderID))
		return true, nil
	}
	if err != nil {
		return false, err
	}

	if c.metrics != nil {
		c.metrics.RecordOrderCancelled()
	}
	return true, nil
}

// CancelAllOrders cancels every open order for the symbol.
func (c *Client) CancelAllOrders(ctx context.Context, symbol string) (bool, error) {
	if err := c.cancelLimiter.Wait(ctx); err != nil {
		return false, err
	}

	body := map[string]string{
		"category": c.category,
		"symbol":   symbol,
	}

	err := c.retry.Do(ctx, domain.IsRetriable, func() error {
		_, err := c.doRequest(ctx, http.MethodPost, "/v5/order/cancel-all", nil, body)
		return err
	})
	if err != nil {
		return false, err
	}

	c.logger.Info("Cancelled all open orders", slog.String("symbol", symbol))
	return true, nil
}

// doRequest signs and executes one HTTP round trip, unwraps the REST
// envelope and classifies the business code.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body interface{}) (json.RawMessage, error) {
	var bodyReader io.Reader
	var payload string

	if body != nil {
		jsonBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewBuffer(jsonBytes)
		payload = string(jsonBytes)
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		encoded := query.Encode()
		reqURL += "?" + encoded
		if method == http.MethodGet {
			payload = encoded
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return nil, err
	}

	for k, v := range c.signer.GenerateHeaders(payload) {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts and transport failures are retryable network errors.
		return nil, domain.NewNetworkError(method+" "+path, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewNetworkError("read "+path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewNetworkError(path,
			fmt.Errorf("http status %d: %s", resp.StatusCode, string(bodyBytes)))
	}

	var envelope restResponse
	if err := json.Unmarshal(bodyBytes, &envelope); err != nil {
		return nil, fmt.Errorf("parse envelope %s: %w", path, err)
	}

	if err := classify(path, envelope.RetCode, envelope.RetMsg); err != nil {
		return nil, err
	}
	return envelope.Result, nil
}

func orderFromWire(w wireOrder) domain.Order {
	created := time.Time{}
	if ms, err := strconv.ParseInt(w.CreatedTime, 10, 64); err == nil {
		created = time.UnixMilli(ms)
	}
	return domain.Order{
		ID:         w.OrderID,
		ClientID:   w.OrderLinkID,
		Symbol:     w.Symbol,
		Side:       domain.Side(w.Side),
		Price:      parseDecimal(w.Price),
		Qty:        parseDecimal(w.Qty),
		CumExecQty: parseDecimal(w.CumExecQty),
		Status:     domain.OrderStatus(w.OrderStatus),
		ReduceOnly: w.ReduceOnly,
		CreatedAt:  created,
	}
}

// parseDecimal tolerates the venue's habit of empty strings for unset
// numeric fields.
func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
