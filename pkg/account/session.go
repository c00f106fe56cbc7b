package account

import (
	"context"
	"fmt"
	"sync"
	"time"

	"campuspay/pkg/gateway"
	"campuspay/pkg/logging"
	"campuspay/pkg/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Session holds one signed-in account. Balance mutations are serialized per
// session and written last-write-wins: the store keeps whichever balance row
// was written last, with no version check against concurrent writers.
type Session struct {
	mu      sync.Mutex
	account Account

	gw     *gateway.Gateway
	latch  *gateway.Latch
	now    func() time.Time
	logger *logging.Logger
}

func newSession(a Account, gw *gateway.Gateway, mode gateway.Mode, now func() time.Time) *Session {
	return &Session{
		account: a,
		gw:      gw,
		latch:   gateway.NewLatch(mode),
		now:     now,
		logger:  logging.Global().Named("account").ForAccount(a.ID),
	}
}

// Snapshot returns a copy of the current account state.
func (s *Session) Snapshot() Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account
}

// ID returns the account id.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account.ID
}

// Mode returns the session's persistence mode.
func (s *Session) Mode() gateway.Mode {
	return s.latch.Mode()
}

// Observe folds the effective mode of a gateway call made on behalf of this
// session into its mode.
func (s *Session) Observe(effective gateway.Mode) {
	if s.latch.Observe(effective) {
		s.logger.Warn("session degraded to local persistence")
	}
}

// UpdateBalance persists newBalance and then updates the snapshot.
// Negative balances are rejected with ErrValidation.
func (s *Session) UpdateBalance(ctx context.Context, newBalance decimal.Decimal) (Account, error) {
	if newBalance.IsNegative() {
		return Account{}, fmt.Errorf("%w: balance cannot be negative, got %s", ErrValidation, newBalance)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked(ctx, newBalance)
}

// TopUp adds a positive amount to the balance.
func (s *Session) TopUp(ctx context.Context, amount decimal.Decimal) (Account, error) {
	if !amount.IsPositive() {
		return Account{}, fmt.Errorf("%w: top-up amount must be positive, got %s", ErrValidation, amount)
	}
	return s.Credit(ctx, amount)
}

// Credit adds amount to the latest known balance.
func (s *Session) Credit(ctx context.Context, amount decimal.Decimal) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked(ctx, s.account.Balance.Add(amount))
}

// Debit subtracts amount from the latest known balance. It fails with
// ErrInsufficientFunds, without writing anything, if the result would be
// negative.
func (s *Session) Debit(ctx context.Context, amount decimal.Decimal) (Account, error) {
	if !amount.IsPositive() {
		return Account{}, fmt.Errorf("%w: debit amount must be positive, got %s", ErrValidation, amount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	newBalance := s.account.Balance.Sub(amount)
	if newBalance.IsNegative() {
		return Account{}, fmt.Errorf("%w: balance %s, amount %s", ErrInsufficientFunds, s.account.Balance, amount)
	}
	return s.persistLocked(ctx, newBalance)
}

// Refresh reloads the account from the store.
func (s *Session) Refresh(ctx context.Context) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, mode, err := s.gw.Read(ctx, s.latch.Mode(), store.Profiles, store.Filter{AccountID: s.account.ID, ID: s.account.ID})
	s.Observe(mode)
	if err != nil {
		return Account{}, fmt.Errorf("account: refresh: %w", err)
	}
	if len(records) == 0 {
		// Nothing stored yet in this mode; the snapshot is still authoritative.
		return s.account, nil
	}

	a, err := decodeProfile(records[len(records)-1])
	if err != nil {
		return Account{}, fmt.Errorf("account: refresh: %w", err)
	}
	s.account = a
	return a, nil
}

// persistLocked must be called with mu held.
func (s *Session) persistLocked(ctx context.Context, newBalance decimal.Decimal) (Account, error) {
	next := s.account
	next.Balance = newBalance
	next.UpdatedAt = s.now().UTC()

	rec, err := profileRecord(next)
	if err != nil {
		return Account{}, fmt.Errorf("account: encode: %w", err)
	}

	_, mode, err := s.gw.Write(ctx, s.latch.Mode(), store.Profiles, rec)
	s.Observe(mode)
	if err != nil {
		return Account{}, fmt.Errorf("account: update balance: %w", err)
	}

	s.logger.Debug("balance updated",
		zap.String("from", s.account.Balance.StringFixed(2)),
		zap.String("to", newBalance.StringFixed(2)),
		zap.String("mode", mode.String()),
	)
	s.account = next
	return next, nil
}
