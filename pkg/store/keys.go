package store

import (
	"fmt"
	"strings"
	"unicode"
)

const maxKeyLength = 250

// LocalKey builds the namespaced local-cache key "<collection>_<accountId>".
func LocalKey(collection Collection, accountID string) (string, error) {
	if !collection.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCollection, collection)
	}
	if accountID == "" {
		return "", fmt.Errorf("%w: empty account id", ErrInvalidKey)
	}
	key := string(collection) + "_" + accountID
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return key, nil
}

// RemoteKey builds the "<prefix><collection>:<accountId>" key used by keyed remote stores.
func RemoteKey(prefix string, collection Collection, accountID string) (string, error) {
	if !collection.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCollection, collection)
	}
	if accountID == "" {
		return "", fmt.Errorf("%w: empty account id", ErrInvalidKey)
	}
	key := prefix + string(collection) + ":" + accountID
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return key, nil
}

// ValidateKey checks a key is non-empty, bounded, and free of control
// characters and surrounding whitespace.
func ValidateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}

	if len(key) > maxKeyLength {
		return fmt.Errorf("%w: key too long (max %d characters)", ErrInvalidKey, maxKeyLength)
	}

	for _, r := range key {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: key contains control character", ErrInvalidKey)
		}
	}

	if strings.TrimSpace(key) != key {
		return fmt.Errorf("%w: key has leading or trailing whitespace", ErrInvalidKey)
	}

	return nil
}
