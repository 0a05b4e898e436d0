// Package storage persists the paper account and its settlement history to
// a JSON file. It is the durable side of the settle-then-swap contract:
// the engine returns a new account, ApplySettlement commits it.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/eddiefleurent/schrute_bucks/internal/expiration"
	"github.com/eddiefleurent/schrute_bucks/internal/models"
)

// ErrNoAccount is returned when the store holds no account snapshot yet.
var ErrNoAccount = errors.New("no account in storage")

// SettlementRecord summarizes one settlement run for the history log.
type SettlementRecord struct {
	ID             string          `json:"id"`
	Timestamp      time.Time       `json:"timestamp"`
	CashImpact     decimal.Decimal `json:"cash_impact"`
	Expired        int             `json:"expired"`
	Assignments    int             `json:"assignments"`
	Exercises      int             `json:"exercises"`
	Worthless      int             `json:"worthless"`
	Warnings       []string        `json:"warnings,omitempty"`
	Errors         []string        `json:"errors,omitempty"`
}

// storageData is the on-disk document.
type storageData struct {
	Account     *models.Account    `json:"account"`
	History     []SettlementRecord `json:"history"`
	LastUpdated time.Time          `json:"last_updated"`
}

// JSONStorage is a file-backed Interface implementation.
type JSONStorage struct {
	mu       sync.RWMutex
	filepath string
	data     *storageData
}

// Ensure JSONStorage implements Interface at compile time.
var _ Interface = (*JSONStorage)(nil)

// NewStorage creates a JSON-file store at path, loading existing data if
// the file is present.
func NewStorage(path string) (*JSONStorage, error) {
	s := &JSONStorage{
		filepath: path,
		data:     &storageData{},
	}

	if _, err := os.Stat(path); err == nil {
		if err := s.Load(); err != nil {
			return nil, fmt.Errorf("loading storage: %w", err)
		}
	}

	return s, nil
}

// Load reads the document from disk.
func (s *JSONStorage) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filepath)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, &s.data)
}

// Save writes the document to disk via a temp file and atomic rename.
func (s *JSONStorage) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *JSONStorage) saveLocked() error {
	s.data.LastUpdated = time.Now().UTC()

	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(s.filepath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	// Write to temp file first
	tmpFile := s.filepath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return err
	}

	// Atomic rename
	return os.Rename(tmpFile, s.filepath)
}

// GetAccount returns a deep copy of the stored account, or nil if none.
func (s *JSONStorage) GetAccount() *models.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.data.Account == nil {
		return nil
	}
	return s.data.Account.Clone()
}

// SetAccount replaces the stored account and persists.
func (s *JSONStorage) SetAccount(acct *models.Account) error {
	if acct == nil {
		return ErrNoAccount
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Account = acct.Clone()
	return s.saveLocked()
}

// ApplySettlement swaps in the settled account and appends a history
// record in one critical section.
func (s *JSONStorage) ApplySettlement(acct *models.Account, result *expiration.Result) error {
	if acct == nil {
		return ErrNoAccount
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.Account = acct.Clone()
	if result != nil {
		s.data.History = append(s.data.History, SettlementRecord{
			ID:          uuid.New().String(),
			Timestamp:   time.Now().UTC(),
			CashImpact:  result.CashImpact,
			Expired:     len(result.ExpiredPositions),
			Assignments: len(result.Assignments),
			Exercises:   len(result.Exercises),
			Worthless:   len(result.Worthless),
			Warnings:    result.Warnings,
			Errors:      result.Errors,
		})
	}
	return s.saveLocked()
}

// GetHistory returns a copy of the settlement history.
func (s *JSONStorage) GetHistory() []SettlementRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SettlementRecord, len(s.data.History))
	copy(out, s.data.History)
	return out
}
