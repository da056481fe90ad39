package core

import (
	"errors"
	"time"
)

const (
	Income     Kind = "income"
	Expense    Kind = "expense"
	Investment Kind = "investment"
)

type (
	// Kind carries the direction of a bill; amounts are always positive.
	Kind string

	Money struct {
		Cents int64
	}

	// Category groups bills for one owner. (Owner, Name, Kind) is unique.
	Category struct {
		ID          int64
		Owner       string
		Name        string
		Description string
		Color       string
		Kind        Kind
	}

	// Asset is a named store of value (currency, account) used as the
	// source and target of investment bills.
	Asset struct {
		ID          int64
		Name        string
		Description string
	}

	// Bill is a single recorded transaction. Immutable once created except
	// for UpdatedAt, which the store maintains.
	Bill struct {
		ID            int64
		Owner         string
		Amount        Money
		Kind          Kind
		Description   string
		CategoryID    *int64
		SourceAssetID *int64
		TargetAssetID *int64
		SourceAmount  *Money
		TargetAmount  *Money
		CreatedAt     time.Time
		UpdatedAt     time.Time
	}
)

var (
	ErrInvalidPeriod           = errors.New("invalid period reference")
	ErrIncompatibleGranularity = errors.New("granularity must be finer than the period")
	ErrInvalidAmount           = errors.New("amount must be positive")
	ErrCategoryKindMismatch    = errors.New("category kind does not match bill kind")
	ErrUnknownCategory         = errors.New("unknown category")
)

// ValidKind reports whether k is one of the three supported bill kinds.
func ValidKind(k Kind) bool {
	switch k {
	case Income, Expense, Investment:
		return true
	}
	return false
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (b Bill) Validate() error {
	if err := b.Amount.Validate(); err != nil {
		return err
	}
	if !ValidKind(b.Kind) {
		return errors.New("invalid bill kind")
	}
	return nil
}

// NaiveWallClock drops the timezone offset from t, keeping its wall-clock
// reading. Records carrying a foreign offset can be misbucketed; the
// reporting pipeline keeps this behavior on purpose, see DESIGN.md.
func NaiveWallClock(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}
