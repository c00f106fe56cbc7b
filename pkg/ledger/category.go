package ledger

import (
	"encoding/json"
	"fmt"
)

// Category classifies a transaction.
type Category int

const (
	CategoryDining Category = iota + 1
	CategoryBooks
	CategoryShopping
	CategoryPayment
	CategoryOther
)

// Categories lists every category in display order.
func Categories() []Category {
	return []Category{CategoryDining, CategoryBooks, CategoryShopping, CategoryPayment, CategoryOther}
}

// String returns the wire name of the category.
func (c Category) String() string {
	switch c {
	case CategoryDining:
		return "dining"
	case CategoryBooks:
		return "books"
	case CategoryShopping:
		return "shopping"
	case CategoryPayment:
		return "payment"
	case CategoryOther:
		return "other"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	return c >= CategoryDining && c <= CategoryOther
}

// ParseCategory maps a wire name to a Category.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories() {
		if c.String() == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown category %q", ErrInvalidEntry, s)
}

// MarshalJSON encodes the category as its wire name.
func (c Category) MarshalJSON() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: unknown category %d", ErrInvalidEntry, int(c))
	}
	return json.Marshal(c.String())
}

// UnmarshalJSON rejects unknown category names.
func (c *Category) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseCategory(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Status is the terminal state a transaction was recorded in.
type Status int

const (
	StatusCompleted Status = iota + 1
	StatusPending
	StatusFailed
)

// Statuses lists every status.
func Statuses() []Status {
	return []Status{StatusCompleted, StatusPending, StatusFailed}
}

// String returns the wire name of the status.
func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusPending:
		return "pending"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s >= StatusCompleted && s <= StatusFailed
}

// ParseStatus maps a wire name to a Status.
func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses() {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown status %q", ErrInvalidEntry, s)
}

// MarshalJSON encodes the status as its wire name.
func (s Status) MarshalJSON() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: unknown status %d", ErrInvalidEntry, int(s))
	}
	return json.Marshal(s.String())
}

// UnmarshalJSON rejects unknown status names.
func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseStatus(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
