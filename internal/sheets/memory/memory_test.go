package memory

import (
	"context"
	"testing"
	"time"

	"tally/internal/core"
)

func TestAppendAndRows(t *testing.T) {
	s := New()
	bill := core.Bill{
		Owner:       "7",
		Amount:      core.Money{Cents: 1250},
		Kind:        core.Expense,
		Description: "coffee",
		CreatedAt:   time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC),
	}

	ref, err := s.Append(context.Background(), bill, "dining")
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if ref != "mem:1" {
		t.Errorf("ref = %q, want mem:1", ref)
	}

	rows := s.Rows()
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	if rows[0].CategoryName != "dining" {
		t.Errorf("category = %q, want dining", rows[0].CategoryName)
	}
	if rows[0].Bill.Amount.Cents != 1250 {
		t.Errorf("cents = %d, want 1250", rows[0].Bill.Amount.Cents)
	}
}

func TestAppendRejectsInvalidBill(t *testing.T) {
	s := New()
	_, err := s.Append(context.Background(), core.Bill{Owner: "7", Kind: core.Expense}, "")
	if err == nil {
		t.Fatal("expected error for zero amount")
	}
	if len(s.Rows()) != 0 {
		t.Error("invalid bill should not be stored")
	}
}
