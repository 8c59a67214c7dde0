package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// JournalEntry is one line of the transaction journal. Rejected transactions
// are journaled too, with Code set and StateHash unchanged.
type JournalEntry struct {
	Time      time.Time `json:"ts"`
	RequestID string    `json:"requestId,omitempty"`
	Type      string    `json:"type"`
	Caller    string    `json:"caller"`
	Nonce     uint64    `json:"nonce"`
	OK        bool      `json:"ok"`
	TradeID   *uint64   `json:"tradeId,omitempty"`
	Code      int       `json:"code,omitempty"`
	Error     string    `json:"error,omitempty"`
	StateHash string    `json:"stateHash"`
}

// Journal is an append-only audit trail of processed transactions
type Journal interface {
	Append(e JournalEntry) error
	Close() error
}

type NopJournal struct{}

func NewNopJournal() *NopJournal               { return &NopJournal{} }
func (NopJournal) Append(_ JournalEntry) error { return nil }
func (NopJournal) Close() error                { return nil }

// FileJournal appends JSON lines to a file
type FileJournal struct {
	mu  sync.Mutex
	f   *os.File
	enc *json.Encoder
}

func NewFileJournal(path string) (*FileJournal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileJournal{f: f, enc: json.NewEncoder(f)}, nil
}

func (j *FileJournal) Append(e JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.enc.Encode(e); err != nil {
		return fmt.Errorf("journal append: %w", err)
	}
	return nil
}

func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.f.Close()
}

var _ Journal = (*NopJournal)(nil)
var _ Journal = (*FileJournal)(nil)
