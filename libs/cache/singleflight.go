package cache

import "golang.org/x/sync/singleflight"

// Flight coalesces concurrent computations for the same key: the first
// caller runs fn, everyone else waits for that result. The entry is
// dropped once settled, so the next call after completion re-executes.
// Used to stop cache-miss stampedes on cold keys.
type Flight[T any] struct {
	group singleflight.Group
}

// Do executes fn for key, deduplicating concurrent calls. Errors are
// broadcast to every waiter exactly like successes.
func (f *Flight[T]) Do(key string, fn func() (T, error)) (T, error) {
	v, err, _ := f.group.Do(key, func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}
