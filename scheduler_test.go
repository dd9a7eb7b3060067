package sql2hub_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/autom8ter/sql2hub"
	"github.com/autom8ter/sql2hub/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestScheduler(t *testing.T) {
	t.Run("invalid schedule", func(t *testing.T) {
		_, err := sql2hub.NewScheduler("whenever", sql2hub.RunnerFunc(func(ctx context.Context) (*sql2hub.RunSummary, error) {
			return &sql2hub.RunSummary{}, nil
		}), nil)
		assert.True(t, errors.Is(err, errors.Configuration))
	})
	t.Run("nil runner", func(t *testing.T) {
		_, err := sql2hub.NewScheduler("@every 1s", nil, nil)
		assert.True(t, errors.Is(err, errors.Configuration))
	})
	t.Run("runs on schedule", func(t *testing.T) {
		var runs atomic.Int32
		scheduler, err := sql2hub.NewScheduler("@every 1s", sql2hub.RunnerFunc(func(ctx context.Context) (*sql2hub.RunSummary, error) {
			runs.Add(1)
			return &sql2hub.RunSummary{}, nil
		}), nil)
		require.Nil(t, err)
		scheduler.Start(context.Background())
		time.Sleep(2500 * time.Millisecond)
		assert.Nil(t, scheduler.Stop())
		count := runs.Load()
		assert.GreaterOrEqual(t, count, int32(1))
		time.Sleep(1500 * time.Millisecond)
		assert.Equal(t, count, runs.Load())
	})
	t.Run("overlapping ticks are skipped", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		var runs atomic.Int32
		scheduler, err := sql2hub.NewScheduler("@every 1s", sql2hub.RunnerFunc(func(ctx context.Context) (*sql2hub.RunSummary, error) {
			runs.Add(1)
			<-ctx.Done()
			return nil, ctx.Err()
		}), sql2hub.NewZapLogger(zap.New(core)))
		require.Nil(t, err)
		scheduler.Start(context.Background())
		time.Sleep(3500 * time.Millisecond)
		assert.True(t, scheduler.Running())
		assert.Nil(t, scheduler.Stop())
		assert.False(t, scheduler.Running())
		assert.Equal(t, int32(1), runs.Load())
		assert.GreaterOrEqual(t, len(logs.FilterMessage("skipping run, previous run still in progress").All()), 1)
	})
	t.Run("run errors are logged", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		scheduler, err := sql2hub.NewScheduler("@every 1s", sql2hub.RunnerFunc(func(ctx context.Context) (*sql2hub.RunSummary, error) {
			return &sql2hub.RunSummary{RunID: "run-1"}, errors.New(errors.Fetch, "connection reset")
		}), sql2hub.NewZapLogger(zap.New(core)))
		require.Nil(t, err)
		scheduler.Start(context.Background())
		time.Sleep(2500 * time.Millisecond)
		assert.Nil(t, scheduler.Stop())
		failed := logs.FilterMessage("scheduled run failed").All()
		require.GreaterOrEqual(t, len(failed), 1)
		assert.Equal(t, "fetch", failed[0].ContextMap()["code"])
		assert.Equal(t, "run-1", failed[0].ContextMap()[sql2hub.TagRunID])
	})
}
