package params

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

type Ledger struct {
	// OwnerAddress may change the spot price. Empty means the key in
	// <DataDir>/owner.key, generated on first start.
	OwnerAddress string
	DefaultPrice int64
	ChainID      int64
}

type Storage struct {
	DataDir   string
	DBPath    string // Pebble directory; defaults to <DataDir>/ledger
	TxLogFile string // journal; empty disables it
}

type API struct {
	Addr           string
	CORSOrigins    []string
	RequestTimeout time.Duration
}

type Log struct {
	Level   string
	File    string // empty logs to stdout only
	Verbose bool
}

// TxGen drives the node with simulated prosumer traffic for local testing
type TxGen struct {
	Enabled   bool
	Prosumers int
	BatchSize int
	Interval  time.Duration
}

type Config struct {
	Ledger  Ledger
	Storage Storage
	API     API
	Log     Log
	TxGen   TxGen
}

func Default() Config {
	return Config{
		Ledger: Ledger{
			DefaultPrice: 100,
			ChainID:      1337, // local dev chain
		},
		Storage: Storage{
			DataDir:   "data",
			DBPath:    filepath.Join("data", "ledger"),
			TxLogFile: filepath.Join("data", "logs", "transactions.jsonl"),
		},
		API: API{
			Addr:           ":8080",
			CORSOrigins:    []string{"*"},
			RequestTimeout: 5 * time.Second,
		},
		Log: Log{
			Level: "info",
		},
		TxGen: TxGen{
			Prosumers: 20,
			BatchSize: 5,
			Interval:  200 * time.Millisecond,
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) (Config, error) {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg.Ledger.OwnerAddress = getEnv("OWNER_ADDRESS", cfg.Ledger.OwnerAddress)
	if v := os.Getenv("DEFAULT_PRICE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("DEFAULT_PRICE: %w", err)
		}
		cfg.Ledger.DefaultPrice = n
	}
	if v := os.Getenv("CHAIN_ID"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("CHAIN_ID: %w", err)
		}
		cfg.Ledger.ChainID = n
	}

	cfg.Storage.DataDir = getEnv("DATA_DIR", cfg.Storage.DataDir)
	cfg.Storage.DBPath = getEnv("DB_PATH", filepath.Join(cfg.Storage.DataDir, "ledger"))
	if v, ok := os.LookupEnv("TX_LOG_FILE"); ok {
		cfg.Storage.TxLogFile = v
	} else {
		cfg.Storage.TxLogFile = filepath.Join(cfg.Storage.DataDir, "logs", "transactions.jsonl")
	}

	cfg.API.Addr = getEnv("API_ADDR", cfg.API.Addr)
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.API.CORSOrigins = origins
	}
	if v := os.Getenv("REQUEST_TIMEOUT_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("REQUEST_TIMEOUT_MS: %w", err)
		}
		cfg.API.RequestTimeout = time.Duration(ms) * time.Millisecond
	}

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)
	if v := os.Getenv("VERBOSE"); v != "" {
		cfg.Log.Verbose = v == "true"
	}

	// Enable with: ENABLE_TXGEN=true TXGEN_PROSUMERS=50 TXGEN_BATCH=10 TXGEN_INTERVAL_MS=100
	cfg.TxGen.Enabled = os.Getenv("ENABLE_TXGEN") == "true"
	if v := os.Getenv("TXGEN_PROSUMERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("TXGEN_PROSUMERS: %w", err)
		}
		cfg.TxGen.Prosumers = n
	}
	if v := os.Getenv("TXGEN_BATCH"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("TXGEN_BATCH: %w", err)
		}
		cfg.TxGen.BatchSize = n
	}
	if v := os.Getenv("TXGEN_INTERVAL_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("TXGEN_INTERVAL_MS: %w", err)
		}
		cfg.TxGen.Interval = time.Duration(ms) * time.Millisecond
	}

	return cfg, cfg.Validate()
}

// Validate rejects settings the node cannot start with
func (c Config) Validate() error {
	if c.Ledger.DefaultPrice <= 0 {
		return fmt.Errorf("default price must be positive, got %d", c.Ledger.DefaultPrice)
	}
	if c.Ledger.OwnerAddress != "" && !common.IsHexAddress(c.Ledger.OwnerAddress) {
		return fmt.Errorf("owner address %q is not a hex address", c.Ledger.OwnerAddress)
	}
	if c.Ledger.ChainID <= 0 {
		return fmt.Errorf("chain id must be positive, got %d", c.Ledger.ChainID)
	}
	if c.Storage.DBPath == "" {
		return fmt.Errorf("db path is empty")
	}
	if c.API.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %s", c.API.RequestTimeout)
	}
	if c.TxGen.Enabled && (c.TxGen.Prosumers <= 0 || c.TxGen.BatchSize <= 0 || c.TxGen.Interval <= 0) {
		return fmt.Errorf("txgen settings must be positive: %+v", c.TxGen)
	}
	return nil
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
