package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/gridledger/pkg/app/core/account"
	"github.com/uhyunpark/gridledger/pkg/app/core/errs"
	"github.com/uhyunpark/gridledger/pkg/app/core/ledger"
	"github.com/uhyunpark/gridledger/pkg/app/core/trade"
	"github.com/uhyunpark/gridledger/pkg/app/core/transaction"
	"github.com/uhyunpark/gridledger/pkg/app/grid"
)

const maxTxBytes = 16 << 10

// Config holds HTTP settings
type Config struct {
	CORSOrigins    []string
	RequestTimeout time.Duration
}

// Server handles REST API and WebSocket connections
type Server struct {
	app     *grid.App
	router  *mux.Router
	hub     *Hub
	log     *zap.SugaredLogger
	timeout time.Duration
	origins []string
	http    *http.Server
}

// NewServer creates the server and subscribes it to app events.
// Call before app.Start.
func NewServer(app *grid.App, cfg Config, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	s := &Server{
		app:     app,
		router:  mux.NewRouter(),
		hub:     NewHub(logger),
		log:     logger,
		timeout: cfg.RequestTimeout,
		origins: cfg.CORSOrigins,
	}
	s.setupRoutes()
	app.OnEvent(s.broadcastEvent)
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestID)

	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/tx", s.handleSubmitTx).Methods("POST")
	api.HandleFunc("/accounts/{address}", s.handleGetAccount).Methods("GET")
	api.HandleFunc("/trades", s.handleGetTrades).Methods("GET")
	api.HandleFunc("/trades/{id:[0-9]+}", s.handleGetTrade).Methods("GET")
	api.HandleFunc("/grid", s.handleGetGrid).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the router wrapped with CORS
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
	})
	return c.Handler(s.router)
}

// Hub returns the WebSocket hub
func (s *Server) Hub() *Hub { return s.hub }

// Start runs the hub and serves addr until Shutdown
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.hub.Run(ctx)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Infow("api_server_listening", "addr", addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

type ctxKey struct{}

// requestID tags each request with X-Request-ID, generating one when absent
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func requestIDFrom(r *http.Request) string {
	id, _ := r.Context().Value(ctxKey{}).(string)
	return id
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleSubmitTx(w http.ResponseWriter, r *http.Request) {
	reqID := requestIDFrom(r)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxTxBytes+1))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read body", err.Error(), 0)
		return
	}
	if len(body) > maxTxBytes {
		respondError(w, http.StatusRequestEntityTooLarge, "transaction too large", "", 0)
		return
	}

	tx, err := transaction.Deserialize(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid transaction", err.Error(), 0)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	out, err := s.app.Submit(ctx, reqID, tx)
	if err != nil {
		status, code := statusFor(err)
		respondError(w, status, errorName(err), err.Error(), code)
		return
	}

	resp := SubmitTxResponse{
		Status:    "applied",
		RequestID: reqID,
		TradeID:   out.Result.TradeID,
		StateHash: out.StateHash,
	}
	if out.Result.Receipt != nil {
		cost := out.Result.Receipt.Cost
		resp.Cost = &cost
	}
	respondJSON(w, resp)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	addr := mux.Vars(r)["address"]
	if !common.IsHexAddress(addr) {
		respondError(w, http.StatusBadRequest, "invalid address", "", 0)
		return
	}
	id := transaction.IdentityOf(common.HexToAddress(addr))

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	acc, nonce, ok, err := s.app.Account(ctx, id)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "unavailable", err.Error(), 0)
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, "account not found", "", 0)
		return
	}
	respondJSON(w, accountInfo(acc, nonce))
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	var f trade.Filter
	if v := r.URL.Query().Get("status"); v != "" {
		st, err := trade.ParseStatus(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid status", err.Error(), 0)
			return
		}
		f.Status = &st
	}
	if v := r.URL.Query().Get("seller"); v != "" {
		if !common.IsHexAddress(v) {
			respondError(w, http.StatusBadRequest, "invalid seller", "", 0)
			return
		}
		f.Seller = transaction.IdentityOf(common.HexToAddress(v))
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	trades, err := s.app.Trades(ctx, f)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "unavailable", err.Error(), 0)
		return
	}
	out := make([]TradeInfo, len(trades))
	for i, t := range trades {
		out[i] = tradeInfo(t)
	}
	respondJSON(w, out)
}

func (s *Server) handleGetTrade(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid trade id", err.Error(), 0)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	t, err := s.app.Trade(ctx, id)
	if err != nil {
		status, code := statusFor(err)
		respondError(w, status, errorName(err), "", code)
		return
	}
	respondJSON(w, tradeInfo(t))
}

func (s *Server) handleGetGrid(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	st, err := s.app.Status(ctx)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "unavailable", err.Error(), 0)
		return
	}
	respondJSON(w, GridInfo{
		Owner:       string(st.Owner),
		Price:       st.Price,
		TotalEnergy: st.Grid,
		Accounts:    st.Accounts,
		NextTradeID: st.NextTradeID,
		StateHash:   st.StateHash,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Broadcast (called on the app goroutine)
// ==============================

func (s *Server) broadcastEvent(ev grid.Event) {
	for _, t := range ev.Trades {
		s.hub.BroadcastToChannel("trades", TradeUpdate{Type: "trade", Trade: tradeInfo(t)})
	}
	for _, acc := range ev.Accounts {
		s.hub.BroadcastToChannel("account:"+string(acc.ID), AccountUpdate{
			Type:    "account",
			Account: accountInfo(acc, 0),
		})
	}
	switch ev.Result.Op {
	case ledger.OpSetPrice:
		s.hub.BroadcastToChannel("price", PriceUpdate{Type: "price", Price: ev.Price})
	case ledger.OpAddEnergy, ledger.OpConsumeEnergy:
		s.hub.BroadcastToChannel("grid", GridUpdate{Type: "grid", TotalEnergy: ev.Grid})
	}
}

// ==============================
// Helper Functions
// ==============================

// statusFor maps an app error to an HTTP status and, for ledger errors, its code
func statusFor(err error) (status int, code int) {
	if k, ok := errs.KindOf(err); ok {
		switch k {
		case errs.Validation:
			return http.StatusBadRequest, k.Code()
		case errs.OwnerOnly, errs.Unauthorized:
			return http.StatusForbidden, k.Code()
		case errs.TradeNotFound:
			return http.StatusNotFound, k.Code()
		default:
			return http.StatusConflict, k.Code()
		}
	}
	switch {
	case errors.Is(err, grid.ErrUnauthenticated), errors.Is(err, grid.ErrStaleNonce):
		return http.StatusUnauthorized, 0
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, grid.ErrStopped):
		return http.StatusServiceUnavailable, 0
	default:
		return http.StatusInternalServerError, 0
	}
}

func errorName(err error) string {
	if k, ok := errs.KindOf(err); ok {
		return k.String()
	}
	switch {
	case errors.Is(err, grid.ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, grid.ErrStaleNonce):
		return "stale_nonce"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, grid.ErrStopped):
		return "unavailable"
	default:
		return "internal_error"
	}
}

func accountInfo(acc account.Account, nonce uint64) AccountInfo {
	return AccountInfo{
		ID:            string(acc.ID),
		EnergyBalance: acc.EnergyBalance,
		FundsBalance:  acc.FundsBalance,
		Nonce:         nonce,
	}
}

func tradeInfo(t trade.Trade) TradeInfo {
	return TradeInfo{
		ID:     t.ID,
		Seller: string(t.Seller),
		Buyer:  string(t.Buyer),
		Amount: t.Amount,
		Price:  t.Price,
		Status: t.Status.String(),
	}
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, errName string, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   errName,
		Code:    code,
		Message: message,
	})
}
