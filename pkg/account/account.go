package account

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"campuspay/pkg/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Errors returned by account operations.
var (
	// ErrValidation is returned for balances or amounts that break an invariant
	ErrValidation = errors.New("account: validation failed")

	// ErrInsufficientFunds is returned when a debit would make the balance negative
	ErrInsufficientFunds = errors.New("account: insufficient funds")

	// ErrUnknownAccount is returned when signing in to an account with no profile
	ErrUnknownAccount = errors.New("account: unknown account")

	// ErrAccountExists is returned when signing up with a registered email
	ErrAccountExists = errors.New("account: account already exists")

	// ErrInvalidCredential is returned for malformed emails or passwords
	ErrInvalidCredential = errors.New("account: invalid credential")
)

// MinPasswordLength is the shortest accepted password or payment secret.
const MinPasswordLength = 4

// idNamespace scopes account ids derived from emails.
var idNamespace = uuid.MustParse("6f1c7a52-9d7e-4b55-8a43-0c2f4e9b1d30")

// Account is one signed-in identity and its balance.
type Account struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Email     string          `json:"email"`
	Balance   decimal.Decimal `json:"balance"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// IDForEmail derives the stable account id for an email address.
func IDForEmail(email string) string {
	return uuid.NewSHA1(idNamespace, []byte(normalizeEmail(email))).String()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	at := strings.IndexByte(email, '@')
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t\r\n")
}

// profileRecord encodes a as the single profiles row keyed by its id.
func profileRecord(a Account) (store.Record, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return store.Record{}, err
	}
	return store.Record{ID: a.ID, AccountID: a.ID, Data: data, CreatedAt: a.UpdatedAt}, nil
}

func decodeProfile(r store.Record) (Account, error) {
	var a Account
	if err := json.Unmarshal(r.Data, &a); err != nil {
		return Account{}, err
	}
	a.ID = r.AccountID
	return a, nil
}
