package spam_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/warden/internal/moderation/spam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

const (
	guildA = snowflake.ID(1)
	guildB = snowflake.ID(2)
	user   = snowflake.ID(10)
)

func TestObserveTriggersOnceAboveThreshold(t *testing.T) {
	t.Parallel()

	detector := spam.NewDetector(5)

	triggers := 0
	for i := range 6 {
		if detector.Observe(guildA, user) {
			triggers++
		}

		if i < 5 {
			assert.Equal(t, i+1, detector.Count(guildA, user))
		}
	}

	assert.Equal(t, 1, triggers)
	assert.Equal(t, 0, detector.Count(guildA, user), "counter resets in the triggering step")
}

func TestObserveIsGuildScoped(t *testing.T) {
	t.Parallel()

	detector := spam.NewDetector(5)

	for range 4 {
		detector.Observe(guildA, user)
	}

	assert.Equal(t, 4, detector.Count(guildA, user))
	assert.Equal(t, 0, detector.Count(guildB, user))

	detector.Observe(guildB, user)
	assert.Equal(t, 4, detector.Count(guildA, user))
	assert.Equal(t, 1, detector.Count(guildB, user))
}

func TestObserveConcurrentFiresExactlyOnce(t *testing.T) {
	t.Parallel()

	detector := spam.NewDetector(5)

	var (
		wg       sync.WaitGroup
		triggers atomic.Int32
		start    = make(chan struct{})
	)

	// Six concurrent messages: exactly one may observe the exceeded state
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if detector.Observe(guildA, user) {
				triggers.Add(1)
			}
		}()
	}

	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), triggers.Load())
	assert.Equal(t, 0, detector.Count(guildA, user))
}

func TestThresholdFallback(t *testing.T) {
	t.Parallel()

	assert.Equal(t, spam.DefaultThreshold, spam.NewDetector(0).Threshold())
	assert.Equal(t, 3, spam.NewDetector(3).Threshold())
}

func TestSweepResetsEverything(t *testing.T) {
	t.Parallel()

	detector := spam.NewDetector(5)
	detector.Observe(guildA, user)
	detector.Observe(guildA, user+1)
	detector.Observe(guildB, user)

	assert.Equal(t, 3, detector.Sweep())
	assert.Equal(t, 0, detector.Len())
	assert.Equal(t, 0, detector.Count(guildA, user))

	// A second sweep has nothing to do and leaves counts at zero
	assert.Equal(t, 0, detector.Sweep())
	assert.Equal(t, 0, detector.Count(guildA, user))
}

func TestTriggerThenSweepIsIdempotent(t *testing.T) {
	t.Parallel()

	detector := spam.NewDetector(2)
	for range 3 {
		detector.Observe(guildA, user)
	}

	require.Equal(t, 0, detector.Count(guildA, user))
	detector.Sweep()
	assert.Equal(t, 0, detector.Count(guildA, user))

	// Counting restarts from zero after both resets
	assert.False(t, detector.Observe(guildA, user))
	assert.Equal(t, 1, detector.Count(guildA, user))
}

func TestSweeperClearsAfterInterval(t *testing.T) {
	defer goleak.VerifyNone(t)

	detector := spam.NewDetector(5)
	sweeper := spam.NewSweeper(detector, 20*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- sweeper.Run(ctx)
	}()

	detector.Observe(guildA, user)
	detector.Observe(guildA, user)
	require.Equal(t, 2, detector.Count(guildA, user))

	assert.Eventually(t, func() bool {
		return detector.Count(guildA, user) == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestSweeperIntervalFallback(t *testing.T) {
	t.Parallel()

	sweeper := spam.NewSweeper(spam.NewDetector(5), 0, zap.NewNop())
	assert.Equal(t, spam.DefaultSweepInterval, sweeper.Interval())
}
