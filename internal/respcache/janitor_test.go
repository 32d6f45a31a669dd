package respcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartJanitor_SweepsExpired(t *testing.T) {
	s, clock := newTestStore(t)
	s.Set("/api/a", 1, nil, time.Minute)
	s.Set("/api/b", 2, nil, time.Hour)
	clock.Advance(2 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.StartJanitor(ctx, 5*time.Millisecond)

	require.Eventually(t, func() bool { return s.Len() == 1 }, time.Second, 5*time.Millisecond)
}

func TestStartJanitor_ZeroIntervalDisabled(t *testing.T) {
	s, clock := newTestStore(t)
	s.Set("/api/a", 1, nil, time.Minute)
	clock.Advance(2 * time.Minute)

	s.StartJanitor(context.Background(), 0)
	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, 1, s.Len())
}
