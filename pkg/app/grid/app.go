// Package grid runs the ledger behind a single goroutine and connects it to
// authentication, persistence, the journal and event subscribers.
package grid

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/uhyunpark/gridledger/pkg/app/core/account"
	"github.com/uhyunpark/gridledger/pkg/app/core/errs"
	"github.com/uhyunpark/gridledger/pkg/app/core/ledger"
	"github.com/uhyunpark/gridledger/pkg/app/core/trade"
	"github.com/uhyunpark/gridledger/pkg/app/core/transaction"
	"github.com/uhyunpark/gridledger/pkg/storage"
	"github.com/uhyunpark/gridledger/pkg/util"
)

var (
	ErrStopped         = errors.New("grid app stopped")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrStaleNonce      = errors.New("stale nonce")
)

// NonceError reports a replayed or out-of-order transaction
type NonceError struct {
	Got  uint64
	Last uint64
}

func (e *NonceError) Error() string {
	return fmt.Sprintf("stale nonce: got %d, last accepted %d", e.Got, e.Last)
}

func (e *NonceError) Unwrap() error { return ErrStaleNonce }

// Persister is the durable side of the app. *storage.PebbleStore implements it.
type Persister interface {
	Apply(u storage.Update) error
	SaveSnapshot(s ledger.Snapshot) error
	LoadSnapshot() (ledger.Snapshot, bool, error)
	LoadNonces() (map[account.Identity]uint64, error)
}

type Config struct {
	Owner        account.Identity
	DefaultPrice int64
	QueueSize    int
}

type Options struct {
	Store    Persister // nil keeps state in memory only
	Journal  storage.Journal
	Verifier *transaction.Verifier
	Clock    util.Clock
	Logger   *zap.SugaredLogger
}

// Event is emitted after every applied transaction
type Event struct {
	RequestID string
	Tx        transaction.SignedTransaction
	Result    ledger.Result
	Accounts  []account.Account // post-state of touched accounts
	Trades    []trade.Trade     // post-state of touched trades
	Price     int64
	Grid      int64
	StateHash string
}

// Outcome is what Submit returns for an applied transaction
type Outcome struct {
	Result    ledger.Result
	StateHash string
}

// Status summarizes the ledger
type Status struct {
	Owner       account.Identity `json:"owner"`
	Price       int64            `json:"price"`
	Grid        int64            `json:"grid"`
	Accounts    int              `json:"accounts"`
	NextTradeID uint64           `json:"nextTradeId"`
	StateHash   string           `json:"stateHash"`
}

// App owns the ledger. Every read and write runs on the goroutine started by
// Start, so no two requests ever observe each other's partial effects.
type App struct {
	ledger *ledger.Ledger
	nonces map[account.Identity]uint64

	store    Persister
	journal  storage.Journal
	verifier *transaction.Verifier
	clock    util.Clock
	log      *zap.SugaredLogger

	hooks   []func(Event)
	reqs    chan func()
	stopped chan struct{}
	broken  error
}

// New loads the persisted ledger, or creates and persists a fresh one
func New(cfg Config, opts Options) (*App, error) {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	a := &App{
		nonces:   make(map[account.Identity]uint64),
		store:    opts.Store,
		journal:  opts.Journal,
		verifier: opts.Verifier,
		clock:    opts.Clock,
		log:      opts.Logger,
		reqs:     make(chan func(), cfg.QueueSize),
		stopped:  make(chan struct{}),
	}
	if a.journal == nil {
		a.journal = storage.NewNopJournal()
	}
	if a.clock == nil {
		a.clock = util.RealClock{}
	}
	if a.log == nil {
		a.log = zap.NewNop().Sugar()
	}

	if err := a.load(cfg); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) load(cfg Config) error {
	if a.store == nil {
		l, err := ledger.New(cfg.Owner, cfg.DefaultPrice)
		if err != nil {
			return fmt.Errorf("create ledger: %w", err)
		}
		a.ledger = l
		return nil
	}

	snap, ok, err := a.store.LoadSnapshot()
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if !ok {
		l, err := ledger.New(cfg.Owner, cfg.DefaultPrice)
		if err != nil {
			return fmt.Errorf("create ledger: %w", err)
		}
		if err := a.store.SaveSnapshot(l.Snapshot()); err != nil {
			return fmt.Errorf("save genesis: %w", err)
		}
		a.ledger = l
		a.log.Infow("ledger_created", "owner", cfg.Owner, "price", cfg.DefaultPrice)
		return nil
	}

	l, err := ledger.FromSnapshot(snap)
	if err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}
	if snap.Owner != cfg.Owner {
		a.log.Warnw("owner_mismatch", "persisted", snap.Owner, "configured", cfg.Owner)
	}
	nonces, err := a.store.LoadNonces()
	if err != nil {
		return fmt.Errorf("load nonces: %w", err)
	}
	a.ledger = l
	a.nonces = nonces
	a.log.Infow("snapshot_loaded",
		"accounts", len(snap.Accounts),
		"trades", len(snap.Trades),
		"state_hash", l.StateHashHex())
	return nil
}

// OnEvent registers fn to run after each applied transaction. fn runs on the
// app goroutine and must not call back into the App. Register before Start.
func (a *App) OnEvent(fn func(Event)) {
	a.hooks = append(a.hooks, fn)
}

// Start runs the request loop until ctx is done
func (a *App) Start(ctx context.Context) {
	go a.run(ctx)
}

func (a *App) run(ctx context.Context) {
	defer close(a.stopped)
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-a.reqs:
			fn()
		}
	}
}

// Done is closed when the request loop exits
func (a *App) Done() <-chan struct{} { return a.stopped }

// do runs fn on the app goroutine. ctx bounds only the wait for a queue slot;
// once queued, fn runs to completion so the caller always learns its outcome.
func (a *App) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	req := func() {
		defer close(done)
		fn()
	}

	select {
	case a.reqs <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-a.stopped:
		return ErrStopped
	}

	select {
	case <-done:
		return nil
	case <-a.stopped:
		// the loop may have exited with req still queued
		select {
		case <-done:
			return nil
		default:
			return ErrStopped
		}
	}
}

// Submit authenticates tx and applies it to the ledger.
//
// Ledger failures come back as *errs.Error. They still consume the nonce, so a
// rejected transaction cannot be replayed later when it might succeed.
func (a *App) Submit(ctx context.Context, requestID string, tx *transaction.SignedTransaction) (Outcome, error) {
	if a.verifier == nil {
		return Outcome{}, fmt.Errorf("%w: no verifier configured", ErrUnauthenticated)
	}
	if _, err := a.verifier.Verify(tx); err != nil {
		a.log.Infow("tx_unauthenticated", "request_id", requestID, "caller", tx.Caller, "err", err)
		return Outcome{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	var out Outcome
	var applyErr error
	if err := a.do(ctx, func() { out, applyErr = a.apply(requestID, tx) }); err != nil {
		return Outcome{}, err
	}
	return out, applyErr
}

func (a *App) apply(requestID string, tx *transaction.SignedTransaction) (Outcome, error) {
	if a.broken != nil {
		return Outcome{}, a.broken
	}

	id := tx.Identity()
	if last := a.nonces[id]; tx.Nonce <= last {
		return Outcome{}, &NonceError{Got: tx.Nonce, Last: last}
	}

	res, execErr := a.ledger.Execute(tx.ToCommand())

	update := storage.Update{Nonce: &storage.NonceEntry{Identity: id, Nonce: tx.Nonce}}
	var accounts []account.Account
	var trades []trade.Trade
	if execErr == nil {
		for _, aid := range res.Accounts {
			acc, _ := a.ledger.Account(aid)
			accounts = append(accounts, acc)
		}
		for _, tid := range res.Trades {
			t, _ := a.ledger.Trade(tid)
			trades = append(trades, t)
		}
		meta := storage.MetaOf(a.ledger.Snapshot())
		update.Accounts = accounts
		update.Trades = trades
		update.Meta = &meta
	}

	if a.store != nil {
		if err := a.store.Apply(update); err != nil {
			a.log.Errorw("persist_failed", "request_id", requestID, "err", err)
			a.reload()
			return Outcome{}, fmt.Errorf("persist: %w", err)
		}
	}
	a.nonces[id] = tx.Nonce

	hash := a.ledger.StateHashHex()
	entry := storage.JournalEntry{
		Time:      a.clock.Now(),
		RequestID: requestID,
		Type:      string(tx.Type),
		Caller:    string(id),
		Nonce:     tx.Nonce,
		OK:        execErr == nil,
		TradeID:   res.TradeID,
		StateHash: hash,
	}
	if k, ok := errs.KindOf(execErr); ok {
		entry.Code = k.Code()
		entry.Error = k.String()
	}
	if err := a.journal.Append(entry); err != nil {
		a.log.Warnw("journal_append_failed", "request_id", requestID, "err", err)
	}

	if execErr != nil {
		a.log.Infow("tx_rejected",
			"request_id", requestID,
			"type", tx.Type,
			"caller", id,
			"code", entry.Code,
			"reason", entry.Error)
		return Outcome{StateHash: hash}, execErr
	}

	a.log.Infow("tx_applied",
		"request_id", requestID,
		"type", tx.Type,
		"caller", id,
		"state_hash", hash)

	ev := Event{
		RequestID: requestID,
		Tx:        *tx,
		Result:    res,
		Accounts:  accounts,
		Trades:    trades,
		Price:     a.ledger.Price(),
		Grid:      a.ledger.Grid(),
		StateHash: hash,
	}
	for _, fn := range a.hooks {
		fn(ev)
	}
	return Outcome{Result: res, StateHash: hash}, nil
}

// reload replaces in-memory state with what is on disk after a failed write
func (a *App) reload() {
	snap, ok, err := a.store.LoadSnapshot()
	if err == nil && !ok {
		err = errors.New("snapshot missing")
	}
	if err == nil {
		var l *ledger.Ledger
		if l, err = ledger.FromSnapshot(snap); err == nil {
			a.ledger = l
			return
		}
	}
	a.broken = fmt.Errorf("state diverged from storage: %w", err)
	a.log.Errorw("state_reload_failed", "err", err)
}

// Account returns the account for id
func (a *App) Account(ctx context.Context, id account.Identity) (acc account.Account, nonce uint64, ok bool, err error) {
	err = a.do(ctx, func() {
		acc, ok = a.ledger.Account(id)
		nonce = a.nonces[id]
	})
	return
}

// Trade returns trade id
func (a *App) Trade(ctx context.Context, id uint64) (t trade.Trade, err error) {
	var lookupErr error
	if err = a.do(ctx, func() { t, lookupErr = a.ledger.Trade(id) }); err != nil {
		return trade.Trade{}, err
	}
	return t, lookupErr
}

// Trades returns trades matching f in id order
func (a *App) Trades(ctx context.Context, f trade.Filter) (out []trade.Trade, err error) {
	err = a.do(ctx, func() { out = a.ledger.Trades(f) })
	return
}

// Status returns ledger scalars and the state hash
func (a *App) Status(ctx context.Context) (s Status, err error) {
	err = a.do(ctx, func() {
		s = Status{
			Owner:       a.ledger.Owner(),
			Price:       a.ledger.Price(),
			Grid:        a.ledger.Grid(),
			Accounts:    len(a.ledger.Accounts()),
			NextTradeID: a.ledger.NextTradeID(),
			StateHash:   a.ledger.StateHashHex(),
		}
	})
	return
}

// Snapshot returns a full copy of ledger state
func (a *App) Snapshot(ctx context.Context) (s ledger.Snapshot, err error) {
	err = a.do(ctx, func() { s = a.ledger.Snapshot() })
	return
}
