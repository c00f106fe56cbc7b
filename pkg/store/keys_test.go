package store

import (
	"errors"
	"strings"
	"testing"
)

func TestLocalKey(t *testing.T) {
	key, err := LocalKey(ChatMessages, "user-1")
	if err != nil {
		t.Fatalf("LocalKey failed: %v", err)
	}
	if key != "chat_messages_user-1" {
		t.Errorf("Expected chat_messages_user-1, got %q", key)
	}

	if _, err := LocalKey("wallets", "user-1"); !errors.Is(err, ErrUnknownCollection) {
		t.Errorf("Expected ErrUnknownCollection, got %v", err)
	}
	if _, err := LocalKey(Profiles, ""); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Expected ErrInvalidKey, got %v", err)
	}
}

func TestRemoteKey(t *testing.T) {
	key, err := RemoteKey("campuspay:", Transactions, "user-1")
	if err != nil {
		t.Fatalf("RemoteKey failed: %v", err)
	}
	if key != "campuspay:transactions:user-1" {
		t.Errorf("Expected campuspay:transactions:user-1, got %q", key)
	}
}

func TestValidateKey(t *testing.T) {
	invalid := []string{
		"",
		" leading",
		"trailing ",
		"tab\tinside",
		"new\nline",
		strings.Repeat("a", 251),
	}
	for _, key := range invalid {
		if err := ValidateKey(key); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Expected ErrInvalidKey for %q, got %v", key, err)
		}
	}

	if err := ValidateKey("profiles_user-1"); err != nil {
		t.Errorf("Expected valid key, got %v", err)
	}
}

func TestFilter(t *testing.T) {
	r := Record{ID: "a", AccountID: "u1"}

	if !ByAccount("u1").Matches(r) {
		t.Error("Expected account filter to match")
	}
	if (Filter{AccountID: "u1", ID: "b"}).Matches(r) {
		t.Error("Expected id filter not to match")
	}
	if (Filter{}).Validate() == nil {
		t.Error("Expected empty filter to be rejected")
	}
}

func TestRecord_Validate(t *testing.T) {
	if err := (Record{AccountID: "u1", Data: []byte(`{"a":1}`)}).Validate(); err != nil {
		t.Errorf("Expected valid record, got %v", err)
	}
	if err := (Record{Data: []byte(`{}`)}).Validate(); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("Expected ErrInvalidRecord for missing account, got %v", err)
	}
	if err := (Record{AccountID: "u1", Data: []byte(`{`)}).Validate(); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("Expected ErrInvalidRecord for malformed data, got %v", err)
	}
}
