package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"campuspay/pkg/gateway"
	"campuspay/pkg/logging"
	"campuspay/pkg/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DemoConfig describes the offline demo account.
type DemoConfig struct {
	Enabled  bool
	Email    string
	Password string
	Name     string
	Balance  decimal.Decimal
}

// DefaultDemoConfig returns the built-in demo account.
func DefaultDemoConfig() DemoConfig {
	return DemoConfig{
		Enabled:  true,
		Email:    "demo@paywise.edu",
		Password: "demo",
		Name:     "Demo User",
		Balance:  decimal.NewFromInt(5000),
	}
}

func (d DemoConfig) matches(email, password string) bool {
	return d.Enabled && normalizeEmail(email) == normalizeEmail(d.Email) && password == d.Password
}

// Directory signs accounts up and in. There is no credential store: the
// password is only shape-checked.
type Directory struct {
	gw     *gateway.Gateway
	demo   DemoConfig
	now    func() time.Time
	logger *logging.Logger
}

// NewDirectory creates a directory. A nil clock means time.Now.
func NewDirectory(gw *gateway.Gateway, demo DemoConfig, now func() time.Time) *Directory {
	if now == nil {
		now = time.Now
	}
	return &Directory{
		gw:     gw,
		demo:   demo,
		now:    now,
		logger: logging.Global().Named("directory"),
	}
}

// SignUp creates an account with a zero balance. Demo credentials always
// produce the demo session.
func (d *Directory) SignUp(ctx context.Context, email, password, name string) (*Session, error) {
	if err := checkCredential(email, password); err != nil {
		return nil, err
	}
	if d.demo.matches(email, password) {
		return d.demoSession(ctx)
	}

	id := IDForEmail(email)
	existing, mode, err := d.lookup(ctx, gateway.ModeRemote, id)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountExists, normalizeEmail(email))
	}

	a := Account{
		ID:        id,
		Name:      strings.TrimSpace(name),
		Email:     normalizeEmail(email),
		Balance:   decimal.Zero,
		UpdatedAt: d.now().UTC(),
	}
	rec, err := profileRecord(a)
	if err != nil {
		return nil, fmt.Errorf("account: encode: %w", err)
	}
	if _, mode, err = d.gw.Write(ctx, mode, store.Profiles, rec); err != nil {
		return nil, fmt.Errorf("account: sign up: %w", err)
	}

	d.logger.Info("account created", zap.String("account_id", id), zap.String("mode", mode.String()))
	return newSession(a, d.gw, mode, d.now), nil
}

// SignIn opens a session for an existing account. When the account cannot
// be found and the demo credentials were given, the demo session is opened.
func (d *Directory) SignIn(ctx context.Context, email, password string) (*Session, error) {
	if err := checkCredential(email, password); err != nil {
		return nil, err
	}

	id := IDForEmail(email)
	a, mode, err := d.lookup(ctx, gateway.ModeRemote, id)
	if err != nil || a == nil {
		if d.demo.matches(email, password) {
			return d.demoSession(ctx)
		}
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, normalizeEmail(email))
	}

	d.logger.Info("signed in", zap.String("account_id", id), zap.String("mode", mode.String()))
	return newSession(*a, d.gw, mode, d.now), nil
}

// demoSession opens the demo account in local mode, seeding its profile the
// first time.
func (d *Directory) demoSession(ctx context.Context) (*Session, error) {
	id := IDForEmail(d.demo.Email)
	existing, _, err := d.lookup(ctx, gateway.ModeLocal, id)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		d.logger.Info("signed in with demo account", zap.String("account_id", id))
		return newSession(*existing, d.gw, gateway.ModeLocal, d.now), nil
	}

	a := Account{
		ID:        id,
		Name:      d.demo.Name,
		Email:     normalizeEmail(d.demo.Email),
		Balance:   d.demo.Balance,
		UpdatedAt: d.now().UTC(),
	}
	rec, err := profileRecord(a)
	if err != nil {
		return nil, fmt.Errorf("account: encode: %w", err)
	}
	if _, _, err := d.gw.Write(ctx, gateway.ModeLocal, store.Profiles, rec); err != nil {
		return nil, fmt.Errorf("account: seed demo: %w", err)
	}

	d.logger.Info("created demo account", zap.String("account_id", id), zap.String("balance", a.Balance.StringFixed(2)))
	return newSession(a, d.gw, gateway.ModeLocal, d.now), nil
}

// lookup returns the stored profile for id, or nil if there is none.
func (d *Directory) lookup(ctx context.Context, mode gateway.Mode, id string) (*Account, gateway.Mode, error) {
	records, mode, err := d.gw.Read(ctx, mode, store.Profiles, store.Filter{AccountID: id, ID: id})
	if err != nil {
		return nil, mode, fmt.Errorf("account: lookup: %w", err)
	}
	if len(records) == 0 {
		return nil, mode, nil
	}
	a, err := decodeProfile(records[len(records)-1])
	if err != nil {
		return nil, mode, fmt.Errorf("account: lookup: %w", err)
	}
	return &a, mode, nil
}

func checkCredential(email, password string) error {
	if !validEmail(normalizeEmail(email)) {
		return fmt.Errorf("%w: malformed email", ErrInvalidCredential)
	}
	if len(password) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidCredential, MinPasswordLength)
	}
	return nil
}

// IsValidation reports whether err is a caller-correctable account error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrInvalidCredential)
}
