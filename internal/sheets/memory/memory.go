// Package memory is an in-process BillAppender used by tests and local runs
// without Google credentials.
package memory

import (
	"context"
	"fmt"
	"sync"

	"tally/internal/core"
)

type Row struct {
	Bill         core.Bill
	CategoryName string
}

type Store struct {
	mu   sync.Mutex
	rows []Row
}

func New() *Store {
	return &Store{}
}

// Append stores the bill and returns a synthetic row reference.
func (s *Store) Append(_ context.Context, bill core.Bill, categoryName string) (string, error) {
	if err := bill.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, Row{Bill: bill, CategoryName: categoryName})
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

// Rows returns a copy of everything appended so far.
func (s *Store) Rows() []Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Row(nil), s.rows...)
}
