// Package ledger implements the economy's single source of truth: the
// per-user balance store with write-through JSON persistence.
//
// Every mutating call rewrites the full snapshot before returning. A save
// failure is reported to the log but does not roll back the in-memory state;
// a crash between mutation and flush reads as the mutation never happening.
package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/rupianet/rupia/internal/domain"
)

// Store owns all Account records. A single mutex serializes every mutating
// operation, which covers the per-account critical section required for the
// non-negative-balance invariant under concurrent event handlers.
type Store struct {
	mu       sync.Mutex
	path     string
	accounts map[string]*domain.Account
	order    []string // account creation order, for stable ranking ties
	log      *zap.Logger
}

// Open loads the snapshot at path. A missing, empty, or corrupt file yields
// an empty store, never an error.
func Open(path string, log *zap.Logger) *Store {
	s := &Store{
		path:     path,
		accounts: make(map[string]*domain.Account),
		log:      log,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("ledger snapshot unreadable, starting empty",
				zap.String("path", path), zap.Error(err))
		}
		return s
	}
	if len(data) == 0 {
		return s
	}

	var raw map[string]*domain.Account
	if err := json.Unmarshal(data, &raw); err != nil {
		log.Error("ledger snapshot corrupt, starting empty",
			zap.String("path", path), zap.Error(err))
		return s
	}

	s.accounts = raw
	// The snapshot is a JSON object; recover a deterministic baseline order
	// for ranking ties by sorting ids. New accounts append after these.
	for id := range raw {
		s.order = append(s.order, id)
	}
	sort.Strings(s.order)

	log.Info("ledger snapshot loaded",
		zap.String("path", path), zap.Int("accounts", len(raw)))
	return s
}

// flush rewrites the full snapshot. Called with s.mu held.
func (s *Store) flush() {
	data, err := json.MarshalIndent(s.accounts, "", "    ")
	if err != nil {
		s.log.Error("ledger snapshot marshal failed", zap.Error(err))
		return
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		s.log.Error("ledger snapshot write failed",
			zap.String("path", s.path), zap.Error(err))
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.log.Error("ledger snapshot rename failed",
			zap.String("path", s.path), zap.Error(err))
	}
}

// account returns the live record for userID, creating a zero-balance one
// with the given display name if absent. Called with s.mu held.
func (s *Store) account(userID, displayName string) *domain.Account {
	acc, ok := s.accounts[userID]
	if !ok {
		acc = &domain.Account{DisplayName: displayName}
		s.accounts[userID] = acc
		s.order = append(s.order, userID)
		s.flush()
	}
	return acc
}

// Get returns a copy of the user's account, creating it if absent.
func (s *Store) Get(userID, displayName string) domain.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account(userID, displayName).Clone()
}

// Lookup returns a copy of the user's account without creating it.
func (s *Store) Lookup(userID string) (domain.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[userID]
	if !ok {
		return domain.Account{}, false
	}
	return acc.Clone(), true
}

// Credit adds amount to the user's balance. Amount must be positive.
func (s *Store) Credit(userID, displayName string, amount int64) (newBalance int64, err error) {
	if amount <= 0 {
		return 0, fmt.Errorf("credit amount must be positive, got %d", amount)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	acc := s.account(userID, displayName)
	acc.Balance += amount
	if displayName != "" {
		acc.DisplayName = displayName
	}
	s.flush()
	return acc.Balance, nil
}

// Debit subtracts amount from the user's balance. Fails with
// ErrInsufficientFunds, leaving the balance unchanged, when the account
// cannot cover it.
func (s *Store) Debit(userID, displayName string, amount int64) (newBalance int64, err error) {
	if amount <= 0 {
		return 0, fmt.Errorf("debit amount must be positive, got %d", amount)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	acc := s.account(userID, displayName)
	if acc.Balance < amount {
		return acc.Balance, domain.ErrInsufficientFunds
	}
	acc.Balance -= amount
	if displayName != "" {
		acc.DisplayName = displayName
	}
	s.flush()
	return acc.Balance, nil
}

// Transfer moves amount from one account to another atomically.
func (s *Store) Transfer(fromID, fromName, toID, toName string, amount int64) (fromBalance, toBalance int64, err error) {
	if amount <= 0 {
		return 0, 0, fmt.Errorf("transfer amount must be positive, got %d", amount)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	from := s.account(fromID, fromName)
	to := s.account(toID, toName)
	if from.Balance < amount {
		return from.Balance, to.Balance, domain.ErrInsufficientFunds
	}
	from.Balance -= amount
	to.Balance += amount
	if fromName != "" {
		from.DisplayName = fromName
	}
	if toName != "" {
		to.DisplayName = toName
	}
	s.flush()
	return from.Balance, to.Balance, nil
}

// SetDisplayName refreshes the cached last-seen name.
func (s *Store) SetDisplayName(userID, displayName string) {
	if displayName == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	acc := s.account(userID, displayName)
	if acc.DisplayName != displayName {
		acc.DisplayName = displayName
		s.flush()
	}
}

// UpdateAchievement applies fn to the user's state for the given achievement
// and persists the result. fn runs inside the store's critical section.
func (s *Store) UpdateAchievement(userID, displayName string, id domain.AchievementID, fn func(*domain.AchievementState)) domain.AchievementState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.account(userID, displayName).Achievement(id)
	fn(st)
	s.flush()
	return *st
}

// Len returns the number of accounts.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts)
}

// Snapshot returns copies of all accounts keyed by user id.
func (s *Store) Snapshot() map[string]domain.Account {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]domain.Account, len(s.accounts))
	for id, acc := range s.accounts {
		out[id] = acc.Clone()
	}
	return out
}

// Top returns the n richest accounts, balance descending. The sort is stable:
// equal balances keep their account creation order.
func (s *Store) Top(n int) []domain.RankedAccount {
	s.mu.Lock()
	defer s.mu.Unlock()

	ranked := make([]domain.RankedAccount, 0, len(s.order))
	for _, id := range s.order {
		acc := s.accounts[id]
		ranked = append(ranked, domain.RankedAccount{
			UserID:      id,
			DisplayName: acc.DisplayName,
			Balance:     acc.Balance,
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Balance > ranked[j].Balance
	})
	if n < len(ranked) {
		ranked = ranked[:n]
	}
	return ranked
}
