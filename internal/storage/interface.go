package storage

import (
	"github.com/eddiefleurent/schrute_bucks/internal/expiration"
	"github.com/eddiefleurent/schrute_bucks/internal/models"
)

// Interface defines the contract for account and settlement persistence.
//
// Implementations must be safe for concurrent use - callers can assume all
// methods are goroutine-safe.
//
// The provided JSONStorage implementation uses sync.RWMutex to serialize
// access, ensuring all Interface methods are protected for concurrent
// readers and writers.
type Interface interface {
	// Account access. GetAccount returns a copy the caller owns.
	GetAccount() *models.Account
	SetAccount(acct *models.Account) error

	// ApplySettlement atomically swaps in the settled account and records
	// the run in history.
	ApplySettlement(acct *models.Account, result *expiration.Result) error

	// Settlement history, newest last.
	GetHistory() []SettlementRecord

	// Data persistence
	Save() error
	Load() error
}
