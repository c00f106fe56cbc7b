package main

import (
	"bytes"
	"strings"
	"testing"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CAMPUSPAY_STORE_REMOTE", "none")
	t.Setenv("CAMPUSPAY_SCAN_STEP", "50")
	t.Setenv("CAMPUSPAY_SCAN_INTERVAL", "1ms")
	t.Setenv("CAMPUSPAY_SCAN_DETECT_DELAY", "1ms")
	t.Setenv("CAMPUSPAY_LOG_LEVEL", "error")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTopUp_DemoAccount(t *testing.T) {
	out, err := run(t, "topup", "500")
	if err != nil {
		t.Fatalf("topup failed: %v", err)
	}
	if !strings.Contains(out, "Balance: 5500.00") {
		t.Errorf("Expected demo balance 5500.00, got %q", out)
	}
}

func TestTopUp_RejectsNegative(t *testing.T) {
	if _, err := run(t, "topup", "-1"); err == nil {
		t.Error("Expected an error for a negative top-up")
	}
}

func TestPay_DemoAccount(t *testing.T) {
	out, err := run(t, "pay", "--amount", "10.99", "--merchant", "Campus Cafe", "--category", "dining", "--credential", "1234")
	if err != nil {
		t.Fatalf("pay failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Payment complete. New balance 4989.01") {
		t.Errorf("Expected completed payment, got %q", out)
	}
}

func TestPay_ShortCredential(t *testing.T) {
	if _, err := run(t, "pay", "--credential", "12"); err == nil {
		t.Error("Expected an error for a short credential")
	}
}

func TestChat(t *testing.T) {
	out, err := run(t, "chat", "how", "do", "I", "deposit")
	if err != nil {
		t.Fatalf("chat failed: %v", err)
	}
	if !strings.Contains(out, "PayBot: To add money") {
		t.Errorf("Expected a deposit answer, got %q", out)
	}

	if _, err := run(t, "chat"); err == nil {
		t.Error("Expected an error without a message")
	}
}

func TestHistory_Empty(t *testing.T) {
	out, err := run(t, "history", "--summary")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if !strings.Contains(out, "DATE") || !strings.Contains(out, "Spent today: 0.00") {
		t.Errorf("Unexpected history output: %q", out)
	}
}
