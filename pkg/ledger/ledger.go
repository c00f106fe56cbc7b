package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"campuspay/pkg/gateway"
	"campuspay/pkg/logging"
	"campuspay/pkg/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrInvalidEntry is returned for entries that cannot be recorded.
var ErrInvalidEntry = errors.New("ledger: invalid entry")

// Entry is one transaction record. Entries are created in their terminal
// status and never modified.
type Entry struct {
	ID        string          `json:"id"`
	AccountID string          `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
	Title     string          `json:"title"`
	Location  string          `json:"location"`
	Category  Category        `json:"category"`
	Timestamp time.Time       `json:"timestamp"`
	Status    Status          `json:"status"`
}

// Validate checks the invariants every stored entry satisfies.
func (e Entry) Validate() error {
	switch {
	case e.AccountID == "":
		return fmt.Errorf("%w: account id is required", ErrInvalidEntry)
	case !e.Amount.IsPositive():
		return fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidEntry, e.Amount)
	case strings.TrimSpace(e.Title) == "":
		return fmt.Errorf("%w: title is required", ErrInvalidEntry)
	case !e.Category.Valid():
		return fmt.Errorf("%w: unknown category", ErrInvalidEntry)
	case !e.Status.Valid():
		return fmt.Errorf("%w: unknown status", ErrInvalidEntry)
	}
	return nil
}

// Ledger reads and appends transaction entries through the gateway.
type Ledger struct {
	gw     *gateway.Gateway
	now    func() time.Time
	logger *logging.Logger
}

// New creates a ledger. A nil clock means time.Now.
func New(gw *gateway.Gateway, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{
		gw:     gw,
		now:    now,
		logger: logging.Global().Named("ledger"),
	}
}

// Fetch returns the account's entries, newest first.
func (l *Ledger) Fetch(ctx context.Context, mode gateway.Mode, accountID string) ([]Entry, gateway.Mode, error) {
	records, mode, err := l.gw.Read(ctx, mode, store.Transactions, store.ByAccount(accountID))
	if err != nil {
		return nil, mode, fmt.Errorf("ledger: fetch: %w", err)
	}

	entries := make([]Entry, 0, len(records))
	for _, r := range records {
		e, err := decode(r)
		if err != nil {
			// One corrupt row must not hide the rest of the history.
			l.logger.Warn("skipping unreadable transaction",
				zap.String("account_id", accountID),
				zap.String("id", r.ID),
				zap.Error(err),
			)
			continue
		}
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	return entries, mode, nil
}

// Append records e and returns it with its assigned id. A zero timestamp is
// set to the current time.
func (l *Ledger) Append(ctx context.Context, mode gateway.Mode, e Entry) (Entry, gateway.Mode, error) {
	if e.ID != "" {
		return Entry{}, mode, fmt.Errorf("%w: id is assigned by the store", ErrInvalidEntry)
	}
	if err := e.Validate(); err != nil {
		return Entry{}, mode, err
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now().UTC()
	}

	data, err := json.Marshal(e)
	if err != nil {
		return Entry{}, mode, fmt.Errorf("ledger: encode: %w", err)
	}

	stored, mode, err := l.gw.Write(ctx, mode, store.Transactions, store.Record{
		AccountID: e.AccountID,
		Data:      data,
		CreatedAt: e.Timestamp,
	})
	if err != nil {
		return Entry{}, mode, fmt.Errorf("ledger: append: %w", err)
	}

	e.ID = stored.ID
	return e, mode, nil
}

func decode(r store.Record) (Entry, error) {
	var e Entry
	if err := json.Unmarshal(r.Data, &e); err != nil {
		return Entry{}, err
	}
	e.ID = r.ID
	e.AccountID = r.AccountID
	if e.Timestamp.IsZero() {
		e.Timestamp = r.CreatedAt
	}
	return e, nil
}
