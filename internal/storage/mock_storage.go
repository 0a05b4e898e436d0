package storage

import (
	"sync"

	"github.com/eddiefleurent/schrute_bucks/internal/expiration"
	"github.com/eddiefleurent/schrute_bucks/internal/models"
)

// MockStorage is an in-memory Interface implementation for tests.
type MockStorage struct {
	mu      sync.RWMutex
	account *models.Account
	history []SettlementRecord

	// SaveErr, when set, is returned by every persisting method.
	SaveErr error
}

// Ensure MockStorage implements Interface at compile time.
var _ Interface = (*MockStorage)(nil)

// NewMockStorage creates an empty in-memory store.
func NewMockStorage() *MockStorage {
	return &MockStorage{}
}

// GetAccount returns a copy of the stored account, or nil.
func (m *MockStorage) GetAccount() *models.Account {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.account == nil {
		return nil
	}
	return m.account.Clone()
}

// SetAccount replaces the stored account.
func (m *MockStorage) SetAccount(acct *models.Account) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	if acct == nil {
		return ErrNoAccount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.account = acct.Clone()
	return nil
}

// ApplySettlement swaps the account and records the run.
func (m *MockStorage) ApplySettlement(acct *models.Account, result *expiration.Result) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	if acct == nil {
		return ErrNoAccount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.account = acct.Clone()
	if result != nil {
		m.history = append(m.history, SettlementRecord{
			CashImpact:  result.CashImpact,
			Expired:     len(result.ExpiredPositions),
			Assignments: len(result.Assignments),
			Exercises:   len(result.Exercises),
			Worthless:   len(result.Worthless),
			Warnings:    result.Warnings,
			Errors:      result.Errors,
		})
	}
	return nil
}

// GetHistory returns a copy of the recorded runs.
func (m *MockStorage) GetHistory() []SettlementRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]SettlementRecord, len(m.history))
	copy(out, m.history)
	return out
}

// Save is a no-op for the in-memory store.
func (m *MockStorage) Save() error { return m.SaveErr }

// Load is a no-op for the in-memory store.
func (m *MockStorage) Load() error { return nil }
