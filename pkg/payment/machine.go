package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"campuspay/pkg/account"
	"campuspay/pkg/gateway"
	"campuspay/pkg/ledger"
	"campuspay/pkg/logging"
	"campuspay/pkg/merchant"
	"campuspay/pkg/metrics"
	"campuspay/pkg/nfc"
	"campuspay/pkg/notify"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Options override what the merchant table resolves for a scanned card.
type Options struct {
	// Amount replaces the merchant amount when positive
	Amount decimal.Decimal

	// Merchant replaces the merchant name when non-empty
	Merchant string

	// Location and Category apply only together with Merchant
	Location string
	Category ledger.Category
}

func (o Options) validate() error {
	if o.Amount.IsNegative() {
		return fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidOptions, o.Amount)
	}
	if o.Merchant != "" && o.Category != 0 && !o.Category.Valid() {
		return fmt.Errorf("%w: unknown category", ErrInvalidOptions)
	}
	return nil
}

// Config holds machine dependencies and timings.
type Config struct {
	Scanner   nfc.Scanner
	Merchants *merchant.Table
	Ledger    *ledger.Ledger
	Bus       *notify.Bus
	Metrics   metrics.MetricsCollector

	// DetectDelay separates detection from showing the form (default: 1s)
	DetectDelay time.Duration

	// ResetAfter returns Complete and Failed sessions to Idle (default: 2s,
	// negative disables)
	ResetAfter time.Duration

	// MinCredentialLength is the shortest accepted confirmation secret
	// (default: account.MinPasswordLength)
	MinCredentialLength int

	// LedgerAttempts bounds ledger append attempts per settlement (default: 3)
	LedgerAttempts int

	// RetryBackoff is the pause between ledger attempts (default: 100ms)
	RetryBackoff time.Duration
}

func (c *Config) applyDefaults() {
	if c.Merchants == nil {
		c.Merchants = merchant.DefaultTable()
	}
	if c.Metrics == nil {
		c.Metrics = metrics.NoOpCollector{}
	}
	if c.DetectDelay <= 0 {
		c.DetectDelay = time.Second
	}
	if c.ResetAfter == 0 {
		c.ResetAfter = 2 * time.Second
	}
	if c.MinCredentialLength <= 0 {
		c.MinCredentialLength = account.MinPasswordLength
	}
	if c.LedgerAttempts <= 0 {
		c.LedgerAttempts = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 100 * time.Millisecond
	}
}

// Snapshot is a copy of the machine state.
type Snapshot struct {
	State       State           `json:"state"`
	Progress    int             `json:"progress"`
	CardToken   string          `json:"card_token,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Merchant    string          `json:"merchant,omitempty"`
	Location    string          `json:"location,omitempty"`
	Category    string          `json:"category,omitempty"`
	Balance     decimal.Decimal `json:"balance"`
	Mode        string          `json:"mode"`
	Message     string          `json:"error,omitempty"`
	Advisory    string          `json:"advisory,omitempty"`
	Transaction *ledger.Entry   `json:"transaction,omitempty"`

	// Err is the error behind Message
	Err error `json:"-"`
}

// Machine drives one account's payment session: scan, detect, confirm and
// settle. Only one session is live at a time; starting a new one discards
// the previous one.
type Machine struct {
	session *account.Session
	config  Config
	logger  *logging.Logger

	mu       sync.Mutex
	state    State
	progress int
	token    string
	opts     Options
	payee    merchant.Merchant
	amount   decimal.Decimal
	lastErr  error
	advisory error
	receipt  *ledger.Entry

	// gen invalidates timers and scan callbacks of discarded sessions
	gen         uint64
	cancelScan  context.CancelFunc
	detectTimer *time.Timer
	resetTimer  *time.Timer
	changed     chan struct{}
	closed      bool
}

// NewMachine creates an idle machine for session.
func NewMachine(session *account.Session, config Config) (*Machine, error) {
	if session == nil {
		return nil, errors.New("payment: session is required")
	}
	if config.Scanner == nil || config.Ledger == nil {
		return nil, errors.New("payment: scanner and ledger are required")
	}
	config.applyDefaults()

	return &Machine{
		session: session,
		config:  config,
		logger:  logging.Global().Named("payment").ForAccount(session.ID()),
		changed: make(chan struct{}),
	}, nil
}

// StartScan begins a session. Calling it while already scanning is a no-op.
// A finished session is discarded first.
func (m *Machine) StartScan(opts Options) error {
	if err := opts.validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	switch m.state {
	case StateScanning:
		return nil
	case StateIdle:
	case StateComplete, StateFailed:
		m.clearLocked()
	case StateSettling:
		return ErrSettlementInProgress
	default:
		return fmt.Errorf("%w: cannot scan from %s", ErrInvalidTransition, m.state)
	}

	ctx, cancel := context.WithCancel(context.Background())
	events, err := m.config.Scanner.BeginScan(ctx)
	if err != nil {
		cancel()
		m.config.Metrics.RecordScan("unavailable")
		m.failLocked(err)
		return err
	}

	m.opts = opts
	m.cancelScan = cancel
	m.setLocked(StateScanning)
	m.config.Metrics.RecordScan("started")

	go m.consume(m.gen, events)
	return nil
}

func (m *Machine) consume(gen uint64, events <-chan nfc.ScanEvent) {
	for e := range events {
		m.mu.Lock()
		if gen != m.gen || m.state != StateScanning {
			m.mu.Unlock()
			return
		}
		m.progress = e.Progress
		if e.Detected() {
			m.token = e.Token
			m.progress = 100
			m.setLocked(StateDetected)
			m.config.Metrics.RecordScan("detected")
			m.detectTimer = time.AfterFunc(m.config.DetectDelay, func() { m.awaitConfirmation(gen) })
			m.mu.Unlock()
			return
		}
		m.notifyLocked()
		m.mu.Unlock()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen == m.gen && m.state == StateScanning {
		m.config.Metrics.RecordScan("aborted")
		m.failLocked(ErrScanAborted)
	}
}

func (m *Machine) awaitConfirmation(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen || m.state != StateDetected {
		return
	}

	payee := m.config.Merchants.Lookup(m.token)
	if m.opts.Merchant != "" {
		payee.Name = m.opts.Merchant
		payee.Location = m.opts.Location
		payee.Category = ledger.CategoryOther
		if m.opts.Category.Valid() {
			payee.Category = m.opts.Category
		}
	}
	amount := payee.Amount
	if m.opts.Amount.IsPositive() {
		amount = m.opts.Amount
	}

	m.payee = payee
	m.amount = amount
	m.setLocked(StateAwaitingConfirmation)
}

// Confirm authorizes the pending payment with credential and settles it.
// Only the first of concurrent confirmations is honored; the others fail
// with ErrSettlementInProgress. Settlement is not interrupted by ctx.
func (m *Machine) Confirm(ctx context.Context, credential string) (Snapshot, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Snapshot{}, ErrClosed
	}
	switch m.state {
	case StateAwaitingConfirmation:
	case StateSettling:
		m.mu.Unlock()
		return Snapshot{}, ErrSettlementInProgress
	default:
		state := m.state
		m.mu.Unlock()
		return Snapshot{}, fmt.Errorf("%w: cannot confirm from %s", ErrInvalidTransition, state)
	}

	if len(credential) < m.config.MinCredentialLength {
		err := fmt.Errorf("%w: must be at least %d characters", ErrInvalidCredential, m.config.MinCredentialLength)
		m.lastErr = err
		m.notifyLocked()
		m.config.Metrics.RecordSettlement(metrics.OutcomeInvalidCredential, 0)
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return snap, err
	}

	gen := m.gen
	payee, amount := m.payee, m.amount
	m.lastErr = nil
	m.setLocked(StateSettling)
	m.mu.Unlock()

	start := time.Now()
	outcome, receipt, err := m.settle(context.WithoutCancel(ctx), payee, amount)
	m.config.Metrics.RecordSettlement(outcome, time.Since(start))

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		// Close ran during settlement; the result is already persisted.
		return m.snapshotLocked(), err
	}
	if m.session.Mode() == gateway.ModeLocal && m.advisory == nil {
		m.advisory = ErrPersistenceUnavailable
	}

	switch outcome {
	case metrics.OutcomeCompleted:
		m.receipt = &receipt
		m.setLocked(StateComplete)
		m.scheduleResetLocked()
	case metrics.OutcomeInsufficientFunds:
		m.lastErr = err
		m.setLocked(StateAwaitingConfirmation)
	default:
		m.failLocked(err)
	}
	return m.snapshotLocked(), err
}

// settle runs debit, ledger append and notification in order.
func (m *Machine) settle(ctx context.Context, payee merchant.Merchant, amount decimal.Decimal) (string, ledger.Entry, error) {
	accountID := m.session.ID()

	if _, err := m.session.Debit(ctx, amount); err != nil {
		if errors.Is(err, account.ErrInsufficientFunds) {
			m.logger.Info("payment declined", zap.String("amount", amount.StringFixed(2)), zap.Error(err))
			return metrics.OutcomeInsufficientFunds, ledger.Entry{}, err
		}
		m.logger.Error("debit failed", zap.String("amount", amount.StringFixed(2)), zap.Error(err))
		return metrics.OutcomeFailed, ledger.Entry{}, err
	}

	entry := ledger.Entry{
		AccountID: accountID,
		Amount:    amount,
		Title:     payee.Name,
		Location:  payee.Location,
		Category:  payee.Category,
		Status:    ledger.StatusCompleted,
	}

	var (
		stored ledger.Entry
		err    error
	)
	for attempt := 1; attempt <= m.config.LedgerAttempts; attempt++ {
		var mode gateway.Mode
		stored, mode, err = m.config.Ledger.Append(ctx, m.session.Mode(), entry)
		m.session.Observe(mode)
		if err == nil || errors.Is(err, ledger.ErrInvalidEntry) {
			break
		}
		m.logger.Warn("ledger append failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", m.config.LedgerAttempts),
			zap.Error(err),
		)
		if attempt < m.config.LedgerAttempts {
			time.Sleep(m.config.RetryBackoff)
		}
	}

	if err != nil {
		recErr := &ReconciliationError{
			AccountID: accountID,
			Amount:    amount,
			Step:      "ledger append",
			Err:       err,
		}
		if _, cerr := m.session.Credit(ctx, amount); cerr != nil {
			recErr.CompensationErr = cerr
		} else {
			recErr.Compensated = true
		}
		m.logger.Error("settlement needs reconciliation",
			zap.String("amount", amount.StringFixed(2)),
			zap.Bool("compensated", recErr.Compensated),
			zap.Error(recErr),
		)
		return metrics.OutcomeReconciliation, ledger.Entry{}, recErr
	}

	if m.config.Bus != nil {
		m.config.Bus.Publish(notify.Event{Name: notify.PaymentCompleted, AccountID: accountID})
	}

	m.logger.Info("payment completed",
		zap.String("transaction_id", stored.ID),
		zap.String("merchant", payee.Name),
		zap.String("amount", amount.StringFixed(2)),
	)
	return metrics.OutcomeCompleted, stored, nil
}

// Cancel discards a session that has not started settling.
func (m *Machine) Cancel() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.closed:
		return ErrClosed
	case m.state == StateIdle:
		return nil
	case m.state == StateSettling:
		return ErrSettlementInProgress
	case m.state.cancellable():
		m.config.Metrics.RecordScan("cancelled")
		m.clearLocked()
		return nil
	default:
		return fmt.Errorf("%w: cannot cancel from %s", ErrInvalidTransition, m.state)
	}
}

// Reset returns a session in any state but Settling to Idle.
func (m *Machine) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.state == StateSettling {
		return ErrSettlementInProgress
	}
	m.clearLocked()
	return nil
}

// Close stops timers and the scanner. The machine cannot be used afterwards.
func (m *Machine) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.clearLocked()
	m.closed = true
	return nil
}

// Snapshot returns the current session state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// WaitFor blocks until the machine is in one of states or ctx is done.
func (m *Machine) WaitFor(ctx context.Context, states ...State) (Snapshot, error) {
	for {
		m.mu.Lock()
		for _, s := range states {
			if m.state == s {
				snap := m.snapshotLocked()
				m.mu.Unlock()
				return snap, nil
			}
		}
		changed := m.changed
		m.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return m.Snapshot(), ctx.Err()
		}
	}
}

func (m *Machine) snapshotLocked() Snapshot {
	acct := m.session.Snapshot()
	snap := Snapshot{
		State:     m.state,
		Progress:  m.progress,
		CardToken: m.token,
		Amount:    m.amount,
		Merchant:  m.payee.Name,
		Location:  m.payee.Location,
		Balance:   acct.Balance,
		Mode:      m.session.Mode().String(),
		Err:       m.lastErr,
	}
	if m.payee.Category.Valid() {
		snap.Category = m.payee.Category.String()
	}
	if m.lastErr != nil {
		snap.Message = m.lastErr.Error()
	}
	if m.advisory != nil {
		snap.Advisory = m.advisory.Error()
	}
	if m.receipt != nil {
		r := *m.receipt
		snap.Transaction = &r
	}
	return snap
}

// setLocked must be called with mu held.
func (m *Machine) setLocked(s State) {
	if m.state != s {
		m.logger.Debug("payment state changed",
			zap.String("from", m.state.String()),
			zap.String("to", s.String()),
		)
	}
	m.state = s
	m.notifyLocked()
}

// notifyLocked wakes WaitFor callers. It must be called with mu held.
func (m *Machine) notifyLocked() {
	close(m.changed)
	m.changed = make(chan struct{})
}

func (m *Machine) failLocked(err error) {
	m.lastErr = err
	m.stopLocked()
	m.setLocked(StateFailed)
	m.scheduleResetLocked()
}

func (m *Machine) scheduleResetLocked() {
	if m.config.ResetAfter < 0 {
		return
	}
	gen := m.gen
	m.resetTimer = time.AfterFunc(m.config.ResetAfter, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if gen == m.gen && m.state.terminal() {
			m.clearLocked()
		}
	})
}

// stopLocked cancels the scanner and pending timers.
func (m *Machine) stopLocked() {
	if m.cancelScan != nil {
		m.cancelScan()
		m.cancelScan = nil
	}
	if m.detectTimer != nil {
		m.detectTimer.Stop()
		m.detectTimer = nil
	}
	if m.resetTimer != nil {
		m.resetTimer.Stop()
		m.resetTimer = nil
	}
}

// clearLocked discards the session and returns to Idle.
func (m *Machine) clearLocked() {
	m.stopLocked()
	m.gen++
	m.progress = 0
	m.token = ""
	m.opts = Options{}
	m.payee = merchant.Merchant{}
	m.amount = decimal.Zero
	m.lastErr = nil
	m.advisory = nil
	m.receipt = nil
	m.setLocked(StateIdle)
}
