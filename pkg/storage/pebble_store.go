package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/uhyunpark/gridledger/pkg/app/core/account"
	"github.com/uhyunpark/gridledger/pkg/app/core/ledger"
	"github.com/uhyunpark/gridledger/pkg/app/core/trade"
)

// Meta holds the ledger scalars that are not per-record
type Meta struct {
	Owner       account.Identity `json:"owner"`
	Price       int64            `json:"price"`
	NextTradeID uint64           `json:"nextTradeId"`
	Grid        int64            `json:"grid"`
}

// MetaOf extracts the scalars of a snapshot
func MetaOf(s ledger.Snapshot) Meta {
	return Meta{Owner: s.Owner, Price: s.Price, NextTradeID: s.NextTradeID, Grid: s.Grid}
}

// Update is the set of records one accepted transaction changed. It is written
// as a single Pebble batch so a crash never leaves half a settlement on disk.
type Update struct {
	Accounts []account.Account
	Trades   []trade.Trade
	Meta     *Meta
	Nonce    *NonceEntry
}

// NonceEntry records the last nonce accepted from an identity
type NonceEntry struct {
	Identity account.Identity
	Nonce    uint64
}

type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

// Apply writes u atomically and syncs
func (s *PebbleStore) Apply(u Update) error {
	b := s.db.NewBatch()
	defer b.Close()

	for i := range u.Accounts {
		data, err := json.Marshal(&u.Accounts[i])
		if err != nil {
			return fmt.Errorf("failed to marshal account: %w", err)
		}
		if err := b.Set(accountKey(u.Accounts[i].ID), data, nil); err != nil {
			return fmt.Errorf("failed to stage account: %w", err)
		}
	}
	for i := range u.Trades {
		data, err := json.Marshal(&u.Trades[i])
		if err != nil {
			return fmt.Errorf("failed to marshal trade: %w", err)
		}
		if err := b.Set(tradeKey(u.Trades[i].ID), data, nil); err != nil {
			return fmt.Errorf("failed to stage trade: %w", err)
		}
	}
	if u.Meta != nil {
		data, err := json.Marshal(u.Meta)
		if err != nil {
			return fmt.Errorf("failed to marshal meta: %w", err)
		}
		if err := b.Set(metaKey(), data, nil); err != nil {
			return fmt.Errorf("failed to stage meta: %w", err)
		}
	}
	if u.Nonce != nil {
		if err := b.Set(nonceKey(u.Nonce.Identity), uint64Bytes(u.Nonce.Nonce), nil); err != nil {
			return fmt.Errorf("failed to stage nonce: %w", err)
		}
	}

	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

// SaveSnapshot writes every record of snap in one batch
func (s *PebbleStore) SaveSnapshot(snap ledger.Snapshot) error {
	meta := MetaOf(snap)
	return s.Apply(Update{
		Accounts: snap.Accounts,
		Trades:   snap.Trades,
		Meta:     &meta,
	})
}

// LoadSnapshot reads the persisted ledger. ok is false for an empty database.
func (s *PebbleStore) LoadSnapshot() (snap ledger.Snapshot, ok bool, err error) {
	data, closer, err := s.db.Get(metaKey())
	if errors.Is(err, pebble.ErrNotFound) {
		return ledger.Snapshot{}, false, nil
	}
	if err != nil {
		return ledger.Snapshot{}, false, fmt.Errorf("failed to get meta: %w", err)
	}
	var meta Meta
	err = json.Unmarshal(data, &meta)
	closer.Close()
	if err != nil {
		return ledger.Snapshot{}, false, fmt.Errorf("failed to unmarshal meta: %w", err)
	}

	snap = ledger.Snapshot{
		Owner:       meta.Owner,
		Price:       meta.Price,
		NextTradeID: meta.NextTradeID,
		Grid:        meta.Grid,
	}

	err = s.scan([]byte(prefixAccount), func(_, value []byte) error {
		var acc account.Account
		if err := json.Unmarshal(value, &acc); err != nil {
			return fmt.Errorf("failed to unmarshal account: %w", err)
		}
		snap.Accounts = append(snap.Accounts, acc)
		return nil
	})
	if err != nil {
		return ledger.Snapshot{}, false, err
	}

	err = s.scan([]byte(prefixTrade), func(_, value []byte) error {
		var t trade.Trade
		if err := json.Unmarshal(value, &t); err != nil {
			return fmt.Errorf("failed to unmarshal trade: %w", err)
		}
		snap.Trades = append(snap.Trades, t)
		return nil
	})
	if err != nil {
		return ledger.Snapshot{}, false, err
	}

	return snap, true, nil
}

// LoadNonces returns the last accepted nonce of every identity that sent one
func (s *PebbleStore) LoadNonces() (map[account.Identity]uint64, error) {
	out := make(map[account.Identity]uint64)
	prefix := []byte(prefixNonce)
	err := s.scan(prefix, func(key, value []byte) error {
		n, err := bytesUint64(value)
		if err != nil {
			return fmt.Errorf("nonce %s: %w", key, err)
		}
		out[account.Identity(key[len(prefix):])] = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PebbleStore) scan(prefix []byte, fn func(key, value []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}
