package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/gridledger/params"
	"github.com/uhyunpark/gridledger/pkg/api"
	"github.com/uhyunpark/gridledger/pkg/app/core/account"
	"github.com/uhyunpark/gridledger/pkg/app/core/transaction"
	"github.com/uhyunpark/gridledger/pkg/app/grid"
	"github.com/uhyunpark/gridledger/pkg/crypto"
	"github.com/uhyunpark/gridledger/pkg/storage"
	"github.com/uhyunpark/gridledger/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg, err := params.LoadFromEnv("")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	level := cfg.Log.Level
	if cfg.Log.Verbose {
		level = "debug"
	}
	var logger *zap.Logger
	if cfg.Log.File != "" {
		logger, err = util.NewLoggerWithFile(cfg.Log.File, level)
	} else {
		logger, err = util.NewLogger(level)
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "level", level, "log_file", cfg.Log.File)

	owner, err := resolveOwner(cfg, sugar)
	if err != nil {
		sugar.Fatalw("owner_init_failed", "err", err)
	}

	// ---- Storage ----
	store, err := storage.NewPebbleStore(cfg.Storage.DBPath)
	if err != nil {
		sugar.Fatalw("store_open_failed", "path", cfg.Storage.DBPath, "err", err)
	}
	defer store.Close()

	var journal storage.Journal = storage.NewNopJournal()
	if cfg.Storage.TxLogFile != "" {
		fj, err := storage.NewFileJournal(cfg.Storage.TxLogFile)
		if err != nil {
			sugar.Fatalw("journal_open_failed", "path", cfg.Storage.TxLogFile, "err", err)
		}
		journal = fj
	}
	defer journal.Close()

	// ---- App ----
	app, err := grid.New(
		grid.Config{Owner: owner, DefaultPrice: cfg.Ledger.DefaultPrice},
		grid.Options{
			Store:    store,
			Journal:  journal,
			Verifier: transaction.NewVerifier(crypto.DefaultDomain(cfg.Ledger.ChainID)),
			Logger:   sugar,
		},
	)
	if err != nil {
		sugar.Fatalw("app_init_failed", "err", err)
	}

	// ---- API Server ----
	// NewServer subscribes to app events, so it must precede app.Start
	apiServer := api.NewServer(app, api.Config{
		CORSOrigins:    cfg.API.CORSOrigins,
		RequestTimeout: cfg.API.RequestTimeout,
	}, sugar)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app.Start(ctx)

	sugar.Infow("node_starting",
		"owner", owner,
		"chain_id", cfg.Ledger.ChainID,
		"db_path", cfg.Storage.DBPath,
		"tx_log", cfg.Storage.TxLogFile,
		"api_addr", cfg.API.Addr)

	// ---- Transaction Feeder (optional) ----
	if cfg.TxGen.Enabled {
		feeder, err := grid.NewFeeder(app, grid.FeederConfig{
			Prosumers: cfg.TxGen.Prosumers,
			BatchSize: cfg.TxGen.BatchSize,
			Interval:  cfg.TxGen.Interval,
		}, sugar)
		if err != nil {
			sugar.Fatalw("txgen_init_failed", "err", err)
		}
		go feeder.Run(ctx)
	}

	errc := make(chan error, 1)
	go func() { errc <- apiServer.Start(ctx, cfg.API.Addr) }()

	select {
	case <-ctx.Done():
	case err := <-errc:
		if err != nil {
			sugar.Errorw("api_server_failed", "err", err)
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("api_shutdown_failed", "err", err)
	}
	<-app.Done()
	sugar.Info("node_stopped")
}

// resolveOwner returns the configured owner, or the address of the key in
// <DataDir>/owner.key, creating that key on first start
func resolveOwner(cfg params.Config, sugar *zap.SugaredLogger) (account.Identity, error) {
	if cfg.Ledger.OwnerAddress != "" {
		return transaction.IdentityOf(common.HexToAddress(cfg.Ledger.OwnerAddress)), nil
	}

	keyPath := filepath.Join(cfg.Storage.DataDir, "owner.key")
	raw, err := os.ReadFile(keyPath)
	if err == nil {
		signer, err := crypto.FromPrivateKeyHex(strings.TrimSpace(string(raw)))
		if err != nil {
			return "", err
		}
		return transaction.IdentityOf(signer.Address()), nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	signer, err := crypto.GenerateKey()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(cfg.Storage.DataDir, 0755); err != nil {
		return "", err
	}
	if err := os.WriteFile(keyPath, []byte(signer.PrivateKeyHex()+"\n"), 0600); err != nil {
		return "", err
	}
	sugar.Warnw("owner_generated", "address", signer.Address().Hex(), "key_file", keyPath)
	return transaction.IdentityOf(signer.Address()), nil
}
