package chrono

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStandardSleep(t *testing.T) {
	clock := NewStandardTime()

	start := time.Now()
	err := clock.Sleep(context.Background(), 20*time.Millisecond)
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = clock.Sleep(ctx, time.Hour)
	require.ErrorIs(t, err, context.Canceled)

	err = clock.Sleep(context.Background(), 0)
	require.NoError(t, err)
}

func TestStandardNowIsUTC(t *testing.T) {
	require.Equal(t, time.UTC, NewStandardTime().Now().Location())
}

func TestFakeTime(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := NewFakeTime(start)

	clock.Advance(5 * time.Second)
	require.NoError(t, clock.Sleep(context.Background(), 55*time.Second))
	require.Equal(t, start.Add(time.Minute), clock.Now())
	require.Equal(t, []time.Duration{55 * time.Second}, clock.Sleeps())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, clock.Sleep(ctx, time.Second), context.Canceled)
}
