package payment

import (
	"errors"
	"fmt"

	"campuspay/pkg/account"
	"campuspay/pkg/nfc"

	"github.com/shopspring/decimal"
)

// Errors returned by the payment machine.
var (
	// ErrCapabilityUnavailable is returned when the scanner cannot scan
	ErrCapabilityUnavailable = nfc.ErrCapabilityUnavailable

	// ErrInvalidCredential is returned for confirmation secrets that are too short
	ErrInvalidCredential = errors.New("payment: invalid credential")

	// ErrInsufficientFunds is returned when the balance cannot cover the amount
	ErrInsufficientFunds = account.ErrInsufficientFunds

	// ErrPersistenceUnavailable is the advisory shown once the session falls
	// back to the local cache. It is never returned from an operation.
	ErrPersistenceUnavailable = errors.New("payment: remote store unavailable, using local cache")

	// ErrReconciliation matches every *ReconciliationError
	ErrReconciliation = errors.New("payment: reconciliation required")

	// ErrInvalidTransition is returned for operations the current state does not allow
	ErrInvalidTransition = errors.New("payment: invalid transition")

	// ErrSettlementInProgress is returned when confirming or cancelling while settling
	ErrSettlementInProgress = errors.New("payment: settlement in progress")

	// ErrInvalidOptions is returned for overrides that cannot be charged
	ErrInvalidOptions = errors.New("payment: invalid options")

	// ErrScanAborted is returned when the scanner stops without detecting a card
	ErrScanAborted = errors.New("payment: scan ended without a card")

	// ErrClosed is returned after Close
	ErrClosed = errors.New("payment: machine closed")
)

// ReconciliationError reports a debit whose ledger record could not be
// written. When Compensated is false the balance and the ledger disagree.
type ReconciliationError struct {
	AccountID   string
	Amount      decimal.Decimal
	Step        string
	Compensated bool
	Err         error

	// CompensationErr is set when crediting the amount back failed
	CompensationErr error
}

func (e *ReconciliationError) Error() string {
	if e.Compensated {
		return fmt.Sprintf("payment: %s failed for account %s, debit of %s was reversed: %v",
			e.Step, e.AccountID, e.Amount.StringFixed(2), e.Err)
	}
	return fmt.Sprintf("payment: %s failed for account %s and the debit of %s could not be reversed: %v (reversal: %v)",
		e.Step, e.AccountID, e.Amount.StringFixed(2), e.Err, e.CompensationErr)
}

// Unwrap returns the step failure.
func (e *ReconciliationError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrReconciliation) match.
func (e *ReconciliationError) Is(target error) bool {
	return target == ErrReconciliation
}
