package container

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentwallet/core/internal/config"
)

func unreachableDBConfig() *config.Config {
	cfg := config.Test()
	cfg.Database.Host = "invalid-host-that-does-not-exist"
	cfg.Database.Port = 59999
	cfg.Redis.Addr = ""
	return cfg
}

func TestNew_DatabaseUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, err := New(ctx, unreachableDBConfig(), nil)

	assert.Error(t, err)
	assert.Nil(t, c)
	assert.Contains(t, err.Error(), "init database")
}

func TestNew_NilLoggerDefaultsToSlogDefault(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// The database dial fails before any logger-dependent code runs; this
	// only exercises that New tolerates a nil logger rather than panicking.
	_, err := New(ctx, unreachableDBConfig(), nil)
	assert.Error(t, err)
}

func TestContainer_Config(t *testing.T) {
	cfg := config.Test()
	c := &Container{config: cfg}

	assert.Equal(t, cfg, c.Config())
}

func TestContainer_Pool_NilBeforeInit(t *testing.T) {
	c := &Container{}
	assert.Nil(t, c.Pool())
}

func TestContainer_Shutdown_NilComponents(t *testing.T) {
	c := &Container{logger: slog.New(slog.NewTextHandler(os.Stdout, nil))}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := c.Shutdown(ctx)
	assert.NoError(t, err)
}

func TestContainer_InitCache_NoRedisConfigured(t *testing.T) {
	cfg := config.Test()
	cfg.Redis.Addr = ""
	c := &Container{config: cfg, logger: slog.New(slog.NewTextHandler(os.Stdout, nil))}

	cache := c.initCache(context.Background())

	require.NotNil(t, cache)
	assert.Nil(t, c.redisClient)
}

func TestContainer_InitCache_RedisUnreachableFallsBackToMemory(t *testing.T) {
	cfg := config.Test()
	cfg.Redis.Addr = "invalid-redis-host:6379"
	c := &Container{config: cfg, logger: slog.New(slog.NewTextHandler(os.Stdout, nil))}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	cache := c.initCache(ctx)

	require.NotNil(t, cache)
	assert.Nil(t, c.redisClient)
}

func TestContainer_RunSweepLoop_StopsOnContextCancel(t *testing.T) {
	cfg := config.Test()
	cfg.DeadMan.SweepInterval = 10 * time.Millisecond
	c := &Container{config: cfg, logger: slog.New(slog.NewTextHandler(os.Stdout, nil))}

	// services.deadManSvc is nil; runSweepLoop must exit via ctx.Done()
	// before its ticker ever fires against a nil service.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		c.runSweepLoop(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runSweepLoop did not exit after context cancellation")
	}
}
