package respcache

import (
	"context"
	"time"
)

// Producer fetches a value from upstream on a cache miss.
type Producer[T any] func(ctx context.Context) (T, error)

// CallOption customizes a single WithCache call.
type CallOption func(*callOptions)

type callOptions struct {
	ttl time.Duration
}

// WithTTL overrides the policy TTL for the stored result.
func WithTTL(ttl time.Duration) CallOption {
	return func(o *callOptions) { o.ttl = ttl }
}

// WithCache returns the cached value for endpoint+params when fresh.
// Otherwise it counts one API call, invokes producer, caches the result and
// returns it. Producer errors are returned unchanged and nothing is cached,
// so the next call retries. A cached value of another type is evicted and
// counted as a miss.
//
// Without coalescing, concurrent misses for the same key each invoke the
// producer and the last Set wins; responses are expected to be idempotent
// reads.
func WithCache[T any](ctx context.Context, s *Store, endpoint string, producer Producer[T], params Params, opts ...CallOption) (T, error) {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}

	fits := func(v any) bool {
		_, ok := v.(T)
		return ok
	}
	if v, ok := s.lookup(endpoint, params, fits); ok {
		return v.(T), nil
	}

	fetch := func() (T, error) {
		s.TrackAPICall()
		data, err := producer(ctx)
		if err != nil {
			return data, err
		}
		s.Set(endpoint, data, params, o.ttl)
		return data, nil
	}

	if !s.coalesce {
		return fetch()
	}

	v, err, _ := s.flight.Do(Key(endpoint, params), func() (any, error) {
		return fetch()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	typed, _ := v.(T)
	return typed, nil
}
