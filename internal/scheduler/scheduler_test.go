package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"github.com/Guizzs26/msupply-sync/internal/service"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSyncer struct {
	calls   atomic.Int32
	syncing atomic.Bool
	err     error
}

func (f *fakeSyncer) Sync(ctx context.Context) error {
	f.calls.Add(1)
	return f.err
}

func (f *fakeSyncer) IsSyncing() bool { return f.syncing.Load() }

type fakeRecoverer struct {
	calls atomic.Int32
}

func (f *fakeRecoverer) RecoverIfNeeded(ctx context.Context) (bool, error) {
	f.calls.Add(1)
	return true, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunSyncsUntilCancelled(t *testing.T) {
	syncer := &fakeSyncer{}
	recoverer := &fakeRecoverer{}
	s := New(syncer, recoverer, 10*time.Millisecond, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return syncer.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Equal(t, int32(1), recoverer.calls.Load())
}

func TestTickSkipsWhileSyncing(t *testing.T) {
	syncer := &fakeSyncer{}
	syncer.syncing.Store(true)
	s := New(syncer, nil, time.Minute, quietLogger())

	wait := s.tick(context.Background())

	assert.Equal(t, time.Minute, wait)
	assert.Zero(t, syncer.calls.Load())
}

func TestTickTreatsInProgressAsBenign(t *testing.T) {
	syncer := &fakeSyncer{err: service.ErrSyncInProgress}
	s := New(syncer, nil, time.Minute, quietLogger())

	assert.Equal(t, time.Minute, s.tick(context.Background()))
	assert.Zero(t, s.backoff.Attempts())
}

func TestTickBacksOffAfterFailure(t *testing.T) {
	syncer := &fakeSyncer{err: errors.New("server unreachable")}
	s := New(syncer, nil, time.Minute, quietLogger())

	first := s.tick(context.Background())
	second := s.tick(context.Background())

	assert.Less(t, first, time.Minute)
	assert.Less(t, first, second+time.Second)
	assert.Equal(t, 2, s.backoff.Attempts())

	syncer.err = nil
	assert.Equal(t, time.Minute, s.tick(context.Background()))
	assert.Zero(t, s.backoff.Attempts())
}
