package bybit

import "encoding/json"

// REST envelope. RetCode 0 means success and unwraps Result.
type restResponse struct {
	RetCode int64           `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

type instrumentsResult struct {
	List []struct {
		Symbol      string `json:"symbol"`
		PriceFilter struct {
			TickSize string `json:"tickSize"`
		} `json:"priceFilter"`
		LotSizeFilter struct {
			QtyStep          string `json:"qtyStep"`
			MinOrderQty      string `json:"minOrderQty"`
			MinNotionalValue string `json:"minNotionalValue"`
		} `json:"lotSizeFilter"`
	} `json:"list"`
}

type feeRateResult struct {
	List []struct {
		Symbol       string `json:"symbol"`
		MakerFeeRate string `json:"makerFeeRate"`
		TakerFeeRate string `json:"takerFeeRate"`
	} `json:"list"`
}

type walletResult struct {
	List []struct {
		AccountType string `json:"accountType"`
		Coin        []struct {
			Coin                string `json:"coin"`
			WalletBalance       string `json:"walletBalance"`
			AvailableToWithdraw string `json:"availableToWithdraw"`
		} `json:"coin"`
	} `json:"list"`
}

type positionResult struct {
	List []struct {
		Symbol string `json:"symbol"`
		Side   string `json:"side"` // Buy, Sell, or "" when flat
		Size   string `json:"size"`
	} `json:"list"`
}

type openOrdersResult struct {
	List []wireOrder `json:"list"`
}

type wireOrder struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	Price       string `json:"price"`
	Qty         string `json:"qty"`
	CumExecQty  string `json:"cumExecQty"`
	OrderStatus string `json:"orderStatus"`
	ReduceOnly  bool   `json:"reduceOnly"`
	CreatedTime string `json:"createdTime"` // unix millis
}

type placeOrderResult struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
}

type placeOrderRequest struct {
	Category    string `json:"category"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	OrderType   string `json:"orderType"`
	Qty         string `json:"qty"`
	Price       string `json:"price,omitempty"`
	TimeInForce string `json:"timeInForce"`
	OrderLinkID string `json:"orderLinkId,omitempty"`
	ReduceOnly  bool   `json:"reduceOnly,omitempty"`
}

// WebSocket frames.

type wsRequest struct {
	Op   string   `json:"op"`
	Args []string `json:"args,omitempty"`
}

type wsAuthRequest struct {
	Op   string `json:"op"`
	Args []any  `json:"args"`
}

type wsResponse struct {
	Op      string `json:"op"`
	Success bool   `json:"success"`
	RetMsg  string `json:"ret_msg"`
}

type wsOrderbookMessage struct {
	Topic string `json:"topic"`
	Type  string `json:"type"` // snapshot or delta
	Ts    int64  `json:"ts"`
	Data  struct {
		Symbol string     `json:"s"`
		Bids   [][]string `json:"b"` // [price, qty]; qty "0" removes the level
		Asks   [][]string `json:"a"`
	} `json:"data"`
}

type wsOrderMessage struct {
	Topic string      `json:"topic"`
	Data  []wireOrder `json:"data"`
}

type wsExecutionMessage struct {
	Topic string `json:"topic"`
	Data  []struct {
		Symbol      string `json:"symbol"`
		OrderID     string `json:"orderId"`
		ExecID      string `json:"execId"`
		Side        string `json:"side"`
		ExecPrice   string `json:"execPrice"`
		ExecQty     string `json:"execQty"`
		ExecFee     string `json:"execFee"`
		FeeCurrency string `json:"feeCurrency"`
		IsMaker     bool   `json:"isMaker"`
		ExecTime    string `json:"execTime"` // unix millis
	} `json:"data"`
}

type wsPositionMessage struct {
	Topic string `json:"topic"`
	Data  []struct {
		Symbol string `json:"symbol"`
		Side   string `json:"side"`
		Size   string `json:"size"`
	} `json:"data"`
}

type wsWalletMessage struct {
	Topic string `json:"topic"`
	Data  []struct {
		AccountType string `json:"accountType"`
		Coin        []struct {
			Coin                string `json:"coin"`
			WalletBalance       string `json:"walletBalance"`
			AvailableToWithdraw string `json:"availableToWithdraw"`
		} `json:"coin"`
	} `json:"data"`
}
