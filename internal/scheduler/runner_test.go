package scheduler

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestRunnerNeverRunsSameJobConcurrently(t *testing.T) {
	var running, maxRunning int32
	gate := make(chan struct{})
	job := JobFunc("slow", func(ctx context.Context, now time.Time) (Result, error) {
		n := atomic.AddInt32(&running, 1)
		for {
			m := atomic.LoadInt32(&maxRunning)
			if n <= m || atomic.CompareAndSwapInt32(&maxRunning, m, n) {
				break
			}
		}
		<-gate
		atomic.AddInt32(&running, -1)
		return Result{Processed: 1}, nil
	})

	r := NewRunner(NewLocalLocker(), quietLogger(), time.Hour, time.Minute)
	r.Register(job)

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = r.RunNamed(context.Background(), "slow", time.Now())
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxRunning))
	locked := 0
	for _, err := range errs {
		if errors.Is(err, ErrLocked) {
			locked++
		}
	}
	assert.GreaterOrEqual(t, locked, 1)
}

func TestRunAllContinuesAfterFailure(t *testing.T) {
	var order []string
	r := NewRunner(NewLocalLocker(), quietLogger(), time.Hour, time.Minute)
	r.Register(
		JobFunc("first", func(ctx context.Context, now time.Time) (Result, error) {
			order = append(order, "first")
			return Result{}, errors.New("boom")
		}),
		JobFunc("second", func(ctx context.Context, now time.Time) (Result, error) {
			order = append(order, "second")
			return Result{Processed: 2, Succeeded: 2}, nil
		}),
	)

	r.RunAll(context.Background(), time.Now())
	assert.Equal(t, []string{"first", "second"}, order)
	assert.Equal(t, []string{"first", "second"}, r.Jobs())

	res, err := r.RunNamed(context.Background(), "second", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Succeeded)

	_, err = r.RunNamed(context.Background(), "missing", time.Now())
	assert.Error(t, err)
}

func TestLocalLockerReleases(t *testing.T) {
	l := NewLocalLocker()
	release, err := l.Obtain(context.Background(), "k", time.Minute)
	require.NoError(t, err)

	_, err = l.Obtain(context.Background(), "k", time.Minute)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, release(context.Background()))
	_, err = l.Obtain(context.Background(), "k", time.Minute)
	assert.NoError(t, err)
}
