// Package store provides the common persistence interfaces and the shared
// error taxonomy. Every backing store in the session manager implements
// these for consistency.
package store

import (
	"context"
)

// Store is the minimal interface all stores must implement.
type Store interface {
	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error
	// Close releases any resources held by the store.
	Close() error
}

// Filter defines query parameters for listing entities.
type Filter struct {
	Limit     int            // Maximum results (0 = no limit)
	Offset    int            // Skip first N results
	OrderBy   string         // Field to sort by
	OrderDesc bool           // Sort descending if true
	Where     map[string]any // Field conditions
}

// DefaultFilter returns a filter with sensible defaults.
func DefaultFilter() Filter {
	return Filter{
		Limit:     100,
		Offset:    0,
		OrderBy:   "updated_at",
		OrderDesc: true,
	}
}

// WithLimit returns a copy of the filter with a new limit.
func (f Filter) WithLimit(n int) Filter {
	f.Limit = n
	return f
}

// WithOffset returns a copy of the filter with a new offset.
func (f Filter) WithOffset(n int) Filter {
	f.Offset = n
	return f
}

// WithOrder returns a copy of the filter with ordering.
func (f Filter) WithOrder(field string, desc bool) Filter {
	f.OrderBy = field
	f.OrderDesc = desc
	return f
}

// WithWhere returns a copy of the filter with an added condition.
func (f Filter) WithWhere(field string, value any) Filter {
	where := make(map[string]any, len(f.Where)+1)
	for k, v := range f.Where {
		where[k] = v
	}
	where[field] = value
	f.Where = where
	return f
}
