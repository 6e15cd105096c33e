// Package store provides the string key-value storage the guard keeps its
// flags and rate-limit window in. Backends are intentionally dumb: no
// transactions, no TTLs, plain get/set semantics shared by every instance
// pointed at the same backend.
package store

import "context"

// Store is a shared, non-transactional key-value store. Get reports ok=false
// for absent keys; callers treat an absent key as the zero value of whatever
// they persist.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
