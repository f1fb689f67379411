package store

import (
	"context"
	"errors"
)

// Kind distinguishes the two record collections of the tracker.
type Kind string

const (
	KindIncome  Kind = "income"
	KindExpense Kind = "expense"
)

// ErrNotFound is returned when a record id does not exist under the owner.
var ErrNotFound = errors.New("record not found")

// Record is one income or expense entry. Amounts travel as JSON numbers.
type Record struct {
	ID       string  `json:"id"`
	Amount   float64 `json:"amount"`
	Category string  `json:"category"`
	Note     string  `json:"note,omitempty"`
	Date     string  `json:"date"`
}

// RecordStore is the persistence collaborator consumed by the mutation
// handlers. Every operation is keyed by the owning user; a store never leaks
// one user's records to another.
type RecordStore interface {
	Create(ctx context.Context, owner string, kind Kind, rec Record) (Record, error)
	Update(ctx context.Context, owner string, kind Kind, id string, rec Record) (Record, error)
	Delete(ctx context.Context, owner string, kind Kind, id string) error
	Get(ctx context.Context, owner string, kind Kind, id string) (Record, error)
	List(ctx context.Context, owner string, kind Kind) ([]Record, error)
}
