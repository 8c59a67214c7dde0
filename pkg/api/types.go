package api

// API response types for REST endpoints and WebSocket messages

// ==============================
// REST Response Types
// ==============================

// SubmitTxResponse is returned for an applied transaction
type SubmitTxResponse struct {
	Status    string  `json:"status"` // "applied"
	RequestID string  `json:"requestId"`
	TradeID   *uint64 `json:"tradeId,omitempty"`
	Cost      *int64  `json:"cost,omitempty"` // accept_trade only
	StateHash string  `json:"stateHash"`
}

// AccountInfo is an account's balances plus the last nonce accepted from it
type AccountInfo struct {
	ID            string `json:"id"`
	EnergyBalance int64  `json:"energyBalance"`
	FundsBalance  int64  `json:"fundsBalance"`
	Nonce         uint64 `json:"nonce"` // sign the next tx with Nonce+1
}

// TradeInfo mirrors trade.Trade with the status as text
type TradeInfo struct {
	ID     uint64 `json:"id"`
	Seller string `json:"seller"`
	Buyer  string `json:"buyer"`
	Amount int64  `json:"amount"`
	Price  int64  `json:"price"`
	Status string `json:"status"` // "open" or "completed"
}

// GridInfo summarizes the ledger
type GridInfo struct {
	Owner       string `json:"owner"`
	Price       int64  `json:"price"`
	TotalEnergy int64  `json:"totalEnergy"`
	Accounts    int    `json:"accounts"`
	NextTradeID uint64 `json:"nextTradeId"`
	StateHash   string `json:"stateHash"`
}

// ErrorResponse carries the ledger error code when there is one
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by clients:
//
//	{"op": "subscribe", "channels": ["trades", "account:0xabc..."]}
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// TradeUpdate is pushed on "trades" whenever a trade is created or completed
type TradeUpdate struct {
	Type  string    `json:"type"` // "trade"
	Trade TradeInfo `json:"trade"`
}

// PriceUpdate is pushed on "price"
type PriceUpdate struct {
	Type  string `json:"type"` // "price"
	Price int64  `json:"price"`
}

// GridUpdate is pushed on "grid" when total energy changes
type GridUpdate struct {
	Type        string `json:"type"` // "grid"
	TotalEnergy int64  `json:"totalEnergy"`
}

// AccountUpdate is pushed on "account:<id>"
type AccountUpdate struct {
	Type    string      `json:"type"` // "account"
	Account AccountInfo `json:"account"`
}
