package account

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"campuspay/pkg/gateway"
	"campuspay/pkg/store"
	"campuspay/pkg/store/memory"
	"campuspay/pkg/store/mock"
	"campuspay/pkg/writer"

	"github.com/shopspring/decimal"
)

func newDirectory(t *testing.T, remote store.Backend) (*Directory, *memory.LocalStore) {
	t.Helper()
	local := memory.New(memory.Config{Name: "local"})
	gw, err := gateway.New(gateway.Config{Selector: gateway.StaticSelector{Remote: remote, Local: local}})
	if err != nil {
		t.Fatalf("Failed to create gateway: %v", err)
	}
	return NewDirectory(gw, DefaultDemoConfig(), nil), local
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestIDForEmail_Deterministic(t *testing.T) {
	if IDForEmail("Ana@Campus.edu ") != IDForEmail("ana@campus.edu") {
		t.Error("Expected ids to ignore case and surrounding space")
	}
	if IDForEmail("a@campus.edu") == IDForEmail("b@campus.edu") {
		t.Error("Expected distinct emails to get distinct ids")
	}
}

func TestDirectory_SignUpThenSignIn(t *testing.T) {
	d, _ := newDirectory(t, memory.New(memory.Config{Name: "remote"}))
	ctx := context.Background()

	s, err := d.SignUp(ctx, "ana@campus.edu", "secret", "Ana")
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if !s.Snapshot().Balance.IsZero() {
		t.Errorf("Expected zero balance, got %s", s.Snapshot().Balance)
	}
	if s.Mode() != gateway.ModeRemote {
		t.Errorf("Expected remote mode, got %v", s.Mode())
	}

	if _, err := d.SignUp(ctx, "ana@campus.edu", "secret", "Ana"); !errors.Is(err, ErrAccountExists) {
		t.Errorf("Expected ErrAccountExists, got %v", err)
	}

	again, err := d.SignIn(ctx, "ANA@campus.edu", "secret")
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if again.ID() != s.ID() || again.Snapshot().Name != "Ana" {
		t.Errorf("Expected the same account, got %+v", again.Snapshot())
	}
}

func TestDirectory_SignInValidation(t *testing.T) {
	d, _ := newDirectory(t, nil)
	ctx := context.Background()

	if _, err := d.SignIn(ctx, "not-an-email", "secret"); !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("Expected ErrInvalidCredential for bad email, got %v", err)
	}
	if _, err := d.SignIn(ctx, "ana@campus.edu", "abc"); !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("Expected ErrInvalidCredential for short password, got %v", err)
	}
	if _, err := d.SignIn(ctx, "ana@campus.edu", "abcd"); !errors.Is(err, ErrUnknownAccount) {
		t.Errorf("Expected ErrUnknownAccount, got %v", err)
	}
}

func TestDirectory_DemoFallback(t *testing.T) {
	d, local := newDirectory(t, mock.NewFailingBackend("remote"))
	ctx := context.Background()

	s, err := d.SignIn(ctx, "demo@paywise.edu", "demo")
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if s.Mode() != gateway.ModeLocal {
		t.Errorf("Expected demo session in local mode, got %v", s.Mode())
	}
	if !s.Snapshot().Balance.Equal(dec("5000")) {
		t.Errorf("Expected seeded balance 5000, got %s", s.Snapshot().Balance)
	}

	raw, _ := local.Export(store.Profiles, s.ID())
	if raw == nil {
		t.Error("Expected the demo profile to be seeded locally")
	}

	// Wrong password never reaches the demo path.
	if _, err := d.SignIn(ctx, "demo@paywise.edu", "nope"); err == nil {
		t.Error("Expected sign-in to fail with the wrong demo password")
	}
}

func TestDirectory_DemoSessionKeepsBalance(t *testing.T) {
	d, _ := newDirectory(t, nil)
	ctx := context.Background()

	s, _ := d.SignUp(ctx, "demo@paywise.edu", "demo", "")
	if _, err := s.Debit(ctx, dec("100")); err != nil {
		t.Fatalf("Debit failed: %v", err)
	}

	again, err := d.SignIn(ctx, "demo@paywise.edu", "demo")
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if !again.Snapshot().Balance.Equal(dec("4900")) {
		t.Errorf("Expected persisted balance 4900, got %s", again.Snapshot().Balance)
	}
}

func TestSession_UpdateBalance(t *testing.T) {
	d, _ := newDirectory(t, nil)
	ctx := context.Background()
	s, _ := d.SignUp(ctx, "ana@campus.edu", "secret", "Ana")

	if _, err := s.UpdateBalance(ctx, dec("-0.01")); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected ErrValidation for negative balance, got %v", err)
	}
	if !s.Snapshot().Balance.IsZero() {
		t.Error("Expected rejected update to leave the balance unchanged")
	}

	a, err := s.UpdateBalance(ctx, dec("245.75"))
	if err != nil {
		t.Fatalf("UpdateBalance failed: %v", err)
	}
	if !a.Balance.Equal(dec("245.75")) {
		t.Errorf("Expected 245.75, got %s", a.Balance)
	}

	refreshed, err := s.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if !refreshed.Balance.Equal(dec("245.75")) {
		t.Errorf("Expected persisted 245.75, got %s", refreshed.Balance)
	}
}

func TestSession_TopUpAndDebit(t *testing.T) {
	d, _ := newDirectory(t, nil)
	ctx := context.Background()
	s, _ := d.SignUp(ctx, "ana@campus.edu", "secret", "Ana")

	if _, err := s.TopUp(ctx, decimal.Zero); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected ErrValidation for zero top-up, got %v", err)
	}
	if _, err := s.TopUp(ctx, dec("5.00")); err != nil {
		t.Fatalf("TopUp failed: %v", err)
	}

	if _, err := s.Debit(ctx, dec("10.99")); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("Expected ErrInsufficientFunds, got %v", err)
	}
	if !s.Snapshot().Balance.Equal(dec("5")) {
		t.Errorf("Expected balance 5.00 after rejected debit, got %s", s.Snapshot().Balance)
	}
}

func TestSession_FailedWriteKeepsSnapshot(t *testing.T) {
	local := mock.NewFailingBackend("local")
	gw, _ := gateway.New(gateway.Config{Selector: gateway.StaticSelector{Local: local}})
	s := newSession(Account{ID: "u1", Balance: dec("10")}, gw, gateway.ModeLocal, time.Now)

	if _, err := s.TopUp(context.Background(), dec("1")); err == nil {
		t.Fatal("Expected TopUp to fail")
	}
	if !s.Snapshot().Balance.Equal(dec("10")) {
		t.Errorf("Expected snapshot unchanged, got %s", s.Snapshot().Balance)
	}
}

func TestSession_RemoteFailureDegrades(t *testing.T) {
	remote := memory.New(memory.Config{Name: "remote"})
	d, _ := newDirectory(t, remote)
	ctx := context.Background()
	s, _ := d.SignUp(ctx, "ana@campus.edu", "secret", "Ana")

	remote.Close()

	if _, err := s.TopUp(ctx, dec("20")); err != nil {
		t.Fatalf("TopUp failed: %v", err)
	}
	if s.Mode() != gateway.ModeLocal {
		t.Errorf("Expected session to latch into local mode, got %v", s.Mode())
	}
}

func TestSession_ConcurrentCredits(t *testing.T) {
	d, _ := newDirectory(t, nil)
	ctx := context.Background()
	s, _ := d.SignUp(ctx, "ana@campus.edu", "secret", "Ana")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Credit(ctx, dec("1"))
		}()
	}
	wg.Wait()

	if !s.Snapshot().Balance.Equal(dec("50")) {
		t.Errorf("Expected serialized credits to total 50, got %s", s.Snapshot().Balance)
	}
}

// slowSink delays every merge so a mirror queued earlier lands after later writes.
type slowSink struct {
	*memory.LocalStore
	delay time.Duration
}

func (s slowSink) Merge(ctx context.Context, collection store.Collection, accountID string, records []store.Record) error {
	time.Sleep(s.delay)
	return s.LocalStore.Merge(ctx, collection, accountID, records)
}

func TestSession_LateMirrorKeepsDegradedDebit(t *testing.T) {
	id := IDForEmail("ana@campus.edu")
	seen := time.Now().Add(-time.Hour).UTC()
	data, _ := json.Marshal(Account{ID: id, Name: "Ana", Email: "ana@campus.edu", Balance: dec("100"), UpdatedAt: seen})

	remote := mock.NewMockBackend("remote")
	remote.ReadFunc = func(ctx context.Context, collection store.Collection, filter store.Filter) ([]store.Record, error) {
		return []store.Record{{ID: id, AccountID: id, Data: data, CreatedAt: seen}}, nil
	}
	remote.WriteFunc = func(ctx context.Context, collection store.Collection, record store.Record) (store.Record, error) {
		return store.Record{}, mock.ErrInjected
	}

	local := memory.New(memory.Config{Name: "local"})
	mirror := writer.NewAsyncWriter(slowSink{LocalStore: local, delay: 50 * time.Millisecond}, writer.AsyncWriterConfig{})
	defer mirror.Close()

	gw, err := gateway.New(gateway.Config{
		Selector: gateway.StaticSelector{Remote: remote, Local: local},
		Mirror:   mirror,
	})
	if err != nil {
		t.Fatalf("Failed to create gateway: %v", err)
	}
	d := NewDirectory(gw, DefaultDemoConfig(), nil)
	ctx := context.Background()

	s, err := d.SignIn(ctx, "ana@campus.edu", "secret")
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if _, err := s.Debit(ctx, dec("11")); err != nil {
		t.Fatalf("Debit failed: %v", err)
	}
	if s.Mode() != gateway.ModeLocal {
		t.Fatalf("Expected local mode after the failed remote write, got %v", s.Mode())
	}

	if err := mirror.Flush(time.Second); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	got, err := s.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if !got.Balance.Equal(dec("89")) {
		t.Errorf("Expected balance 89 after refresh, got %s", got.Balance)
	}
}
