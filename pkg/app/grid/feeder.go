package grid

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uhyunpark/gridledger/pkg/app/core/account"
	"github.com/uhyunpark/gridledger/pkg/app/core/errs"
	"github.com/uhyunpark/gridledger/pkg/app/core/trade"
	"github.com/uhyunpark/gridledger/pkg/app/core/transaction"
	"github.com/uhyunpark/gridledger/pkg/crypto"
)

// FeederConfig controls simulated prosumer traffic
type FeederConfig struct {
	Prosumers int           // number of simulated keys
	BatchSize int           // transactions per tick
	Interval  time.Duration // tick period
	Seed      int64         // 0 seeds from the clock
}

func DefaultFeederConfig() FeederConfig {
	return FeederConfig{
		Prosumers: 20,
		BatchSize: 5,
		Interval:  200 * time.Millisecond,
	}
}

// FeederStats counts submitted transactions by outcome
type FeederStats struct {
	Applied  int
	Rejected int // ledger rejections, expected under random traffic
	Failed   int // authentication, nonce or persistence failures
}

// Feeder drives the app with signed random transactions from simulated
// prosumers: they register, meter production and consumption, deposit funds,
// list energy and buy each other's listings.
type Feeder struct {
	app        *App
	signers    []*crypto.Signer
	nonces     map[*crypto.Signer]uint64
	registered map[*crypto.Signer]bool
	rng        *rand.Rand
	cfg        FeederConfig
	log        *zap.SugaredLogger
	stats      FeederStats
}

func NewFeeder(app *App, cfg FeederConfig, logger *zap.SugaredLogger) (*Feeder, error) {
	if app.verifier == nil {
		return nil, errors.New("feeder: app has no verifier")
	}
	if cfg.Prosumers <= 0 || cfg.BatchSize <= 0 || cfg.Interval <= 0 {
		return nil, fmt.Errorf("feeder: invalid config %+v", cfg)
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	signers := make([]*crypto.Signer, cfg.Prosumers)
	for i := range signers {
		s, err := crypto.GenerateKey()
		if err != nil {
			return nil, err
		}
		signers[i] = s
	}
	return &Feeder{
		app:        app,
		signers:    signers,
		nonces:     make(map[*crypto.Signer]uint64),
		registered: make(map[*crypto.Signer]bool),
		rng:        rand.New(rand.NewSource(cfg.Seed)),
		cfg:        cfg,
		log:        logger,
	}, nil
}

// Stats returns counts so far. Not safe to call concurrently with Run.
func (f *Feeder) Stats() FeederStats { return f.stats }

// Run submits a batch every Interval until ctx is done
func (f *Feeder) Run(ctx context.Context) {
	ticker := time.NewTicker(f.cfg.Interval)
	defer ticker.Stop()

	start := time.Now()
	lastReport := start
	f.log.Infow("txgen_started",
		"prosumers", f.cfg.Prosumers,
		"batch", f.cfg.BatchSize,
		"interval", f.cfg.Interval)

	for {
		select {
		case <-ctx.Done():
			f.log.Infow("txgen_stopped",
				"applied", f.stats.Applied,
				"rejected", f.stats.Rejected,
				"failed", f.stats.Failed,
				"elapsed", time.Since(start).Round(time.Second))
			return
		case <-ticker.C:
			for i := 0; i < f.cfg.BatchSize; i++ {
				if err := f.Step(ctx); err != nil {
					if ctx.Err() == nil {
						f.log.Warnw("txgen_step_failed", "err", err)
					}
					break
				}
			}
			if time.Since(lastReport) >= 10*time.Second {
				lastReport = time.Now()
				f.log.Infow("txgen_stats",
					"applied", f.stats.Applied,
					"rejected", f.stats.Rejected,
					"failed", f.stats.Failed)
			}
		}
	}
}

// Step submits one transaction. It returns an error only when the app cannot
// be reached; ledger rejections are counted, not returned.
func (f *Feeder) Step(ctx context.Context) error {
	signer := f.signers[f.rng.Intn(len(f.signers))]
	tx, err := f.next(ctx, signer)
	if err != nil {
		return err
	}

	f.nonces[signer]++
	tx.Nonce = f.nonces[signer]
	if err := f.app.verifier.Sign(signer, &tx); err != nil {
		return err
	}

	_, err = f.app.Submit(ctx, "txgen-"+uuid.NewString(), &tx)
	switch {
	case err == nil:
		f.stats.Applied++
		if tx.Type == transaction.TxTypeRegister {
			f.registered[signer] = true
		}
	case errs.IsBusiness(err) || errs.IsValidation(err):
		f.stats.Rejected++
		if errors.Is(err, errs.ErrAlreadyRegistered) {
			f.registered[signer] = true
		}
	case errors.Is(err, ErrStopped), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		f.stats.Failed++
		f.log.Debugw("txgen_submit_failed", "type", tx.Type, "err", err)
	}
	return nil
}

func (f *Feeder) next(ctx context.Context, signer *crypto.Signer) (transaction.SignedTransaction, error) {
	if !f.registered[signer] {
		return transaction.SignedTransaction{Type: transaction.TxTypeRegister}, nil
	}

	r := f.rng.Intn(100)
	switch {
	case r < 30:
		return transaction.SignedTransaction{Type: transaction.TxTypeAddEnergy, Amount: 1 + f.rng.Int63n(100)}, nil
	case r < 45:
		return transaction.SignedTransaction{Type: transaction.TxTypeAddFunds, Amount: 100 + f.rng.Int63n(10000)}, nil
	case r < 55:
		return transaction.SignedTransaction{Type: transaction.TxTypeConsumeEnergy, Amount: 1 + f.rng.Int63n(50)}, nil
	case r < 80:
		return transaction.SignedTransaction{
			Type:   transaction.TxTypeCreateTrade,
			Amount: 1 + f.rng.Int63n(50),
			Price:  80 + f.rng.Int63n(40),
		}, nil
	}

	st := trade.Open
	open, err := f.app.Trades(ctx, trade.Filter{Status: &st})
	if err != nil {
		return transaction.SignedTransaction{}, err
	}
	self := transaction.IdentityOf(signer.Address())
	candidates := open[:0]
	for _, t := range open {
		if t.Seller != self {
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		return transaction.SignedTransaction{Type: transaction.TxTypeAddFunds, Amount: 1000}, nil
	}
	pick := candidates[f.rng.Intn(len(candidates))]
	return transaction.SignedTransaction{Type: transaction.TxTypeAcceptTrade, TradeID: pick.ID}, nil
}

// Identities returns the simulated prosumers' identities
func (f *Feeder) Identities() []account.Identity {
	out := make([]account.Identity, len(f.signers))
	for i, s := range f.signers {
		out[i] = transaction.IdentityOf(s.Address())
	}
	return out
}
