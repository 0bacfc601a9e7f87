package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrEmptyCollection = errors.New("collection name is required")
)

// Fields is the JSON-compatible content of a record.
type Fields map[string]any

type Record struct {
	ID         string    `json:"id"`
	Collection string    `json:"collection"`
	Fields     Fields    `json:"fields"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeRemoved  ChangeKind = "removed"
)

type Change struct {
	Kind   ChangeKind `json:"kind"`
	Record Record     `json:"record"`
}

// Filter is an equality match on a top level string field.
type Filter struct {
	Field string
	Value string
}

// Query lists records in creation order.
type Query struct {
	Where  []Filter
	Desc   bool
	Limit  int
	Offset int
}

func (q Query) Eq(field, value string) Query {
	q.Where = append(append([]Filter(nil), q.Where...), Filter{Field: field, Value: value})
	return q
}

// Store is a keyed record store with change notifications and atomic counters.
type Store interface {
	Create(ctx context.Context, collection string, fields Fields) (string, error)
	Update(ctx context.Context, collection, id string, fields Fields) error
	Delete(ctx context.Context, collection, id string) error
	Get(ctx context.Context, collection, id string) (*Record, error)
	List(ctx context.Context, collection string, q Query) ([]Record, error)
	Subscribe(ctx context.Context, collection string, onChange func(Change)) (func(), error)
	Increment(ctx context.Context, counter string, delta int64) (int64, error)
}

// Merge returns base overlaid with patch. Both inputs are left untouched.
func Merge(base, patch Fields) Fields {
	out := make(Fields, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}
