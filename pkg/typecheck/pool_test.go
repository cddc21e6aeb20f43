package typecheck

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kriollo/versacompile/pkg/cache"
	"github.com/kriollo/versacompile/pkg/clierr"
)

func TestPoolSize_ClampedAndCappedByMode(t *testing.T) {
	assert.GreaterOrEqual(t, PoolSize(ModeWatch), 4)
	assert.LessOrEqual(t, PoolSize(ModeIndividual), 8)
	assert.LessOrEqual(t, PoolSize(ModeWatch), 12)
	assert.LessOrEqual(t, PoolSize(ModeBatch), 16) // clamp(CPU,4,16) always wins over the batch ceiling of 20
}

func TestComputeTimeout_BaseCaseIsEightSeconds(t *testing.T) {
	cfg := DefaultConfig(ModeWatch)
	d := ComputeTimeout([]byte("x"), TaskOptions{}, cfg)
	assert.Equal(t, 8*time.Second, d)
}

func TestComputeTimeout_AccumulatesAndClamps(t *testing.T) {
	cfg := DefaultConfig(ModeWatch)
	source := []byte(strings.Repeat("a", 120_000))
	opts := TaskOptions{
		Imports:           40,
		TypeAliases:       40,
		Interfaces:        40,
		Strict:            true,
		IsDeclarationFile: true,
		IsSFC:             true,
	}
	d := ComputeTimeout(source, opts, cfg)
	assert.Equal(t, 5*cfg.BaseTimeout, d, "multiplier must clamp to 5.0, giving five times the base timeout")
}

func TestComputeTimeout_SmallFileNeverExceedsMax(t *testing.T) {
	cfg := DefaultConfig(ModeWatch)
	d := ComputeTimeout([]byte("const x = 1;"), TaskOptions{}, cfg)
	assert.LessOrEqual(t, d, cfg.MaxTimeout)
}

func TestPool_TypeCheck_SucceedsOnEmptySource(t *testing.T) {
	p := NewPool(DefaultConfig(ModeIndividual), 2, nil)
	defer p.Shutdown()

	resp := p.TypeCheck(context.Background(), Request{Filename: "a.ts"})
	assert.True(t, resp.OK)
	assert.NoError(t, resp.Err)
}

func TestPool_TypeCheck_DispatchesAcrossWorkersConcurrently(t *testing.T) {
	p := NewPool(DefaultConfig(ModeIndividual), 4, nil)
	defer p.Shutdown()

	done := make(chan Response, 10)
	for i := 0; i < 10; i++ {
		go func(i int) {
			resp := p.TypeCheck(context.Background(), Request{
				Filename: "f.ts",
				Source:   []byte("const a = 1;"),
			})
			done <- resp
		}(i)
	}
	for i := 0; i < 10; i++ {
		resp := <-done
		assert.True(t, resp.OK)
	}

	m := p.Metrics()
	assert.Equal(t, uint64(10), m.TotalTasks)
	assert.Equal(t, uint64(10), m.Completed)
}

func TestPool_Shutdown_IsIdempotentAndTerminatesWorkers(t *testing.T) {
	p := NewPool(DefaultConfig(ModeIndividual), 2, nil)
	p.Shutdown()
	require.NotPanics(t, func() { p.Shutdown() })
}

func TestIsRetryable_OnlyTimeoutAndCrash(t *testing.T) {
	assert.True(t, isRetryable(clierr.NewWorkerTimeout("a.ts", context.DeadlineExceeded)))
	assert.True(t, isRetryable(clierr.NewWorkerCrash("a.ts", context.Canceled)))
	assert.False(t, isRetryable(clierr.NewEmptyOutput("a.ts")))
	assert.False(t, isRetryable(nil))
	assert.False(t, isRetryable(context.DeadlineExceeded))
}

func TestPool_TypeCheck_RetriesOnWorkerTimeoutViaFallback(t *testing.T) {
	cfg := DefaultConfig(ModeIndividual)
	cfg.BaseTimeout = 5 * time.Millisecond
	cfg.MaxTimeout = 5 * time.Millisecond

	p := &Pool{logger: slog.Default(), cfg: cfg, memoCache: cache.NewTypeCheckCache(), stopCh: make(chan struct{})}
	stuck := &Worker{
		id: 0, pool: p,
		inbox: make(chan task, 8), quit: make(chan struct{}), done: make(chan struct{}),
		state: StateReady, pendingTasks: make(map[uint64]task),
		createdAt: time.Now(), lastActivity: time.Now(),
	}
	p.workers = []*Worker{stuck} // never started: run() never drains inbox, so the dispatch always times out

	resp := p.TypeCheck(context.Background(), Request{Filename: "a.ts", Source: []byte("const a = 1;")})
	assert.True(t, resp.OK, "a timed-out dispatch must still succeed via the single fallback retry")
	assert.NoError(t, resp.Err)
	assert.Equal(t, uint64(1), p.Metrics().FallbackRuns)
	assert.Equal(t, uint64(1), p.Metrics().Completed)
}

func TestDispatchToWorker_WorkerCrashFromTerminateIsRetryable(t *testing.T) {
	p := &Pool{logger: slog.Default(), cfg: DefaultConfig(ModeIndividual)}
	w := &Worker{
		id: 0, pool: p,
		inbox: make(chan task, 8), quit: make(chan struct{}), done: make(chan struct{}),
		state: StateReady, pendingTasks: make(map[uint64]task),
		createdAt: time.Now(), lastActivity: time.Now(),
	}
	close(w.done) // stand in for run() having already exited, so terminate() returns immediately

	reply := make(chan Response, 1)
	w.pendingTasks[1] = task{id: 1, req: Request{Filename: "a.ts"}, reply: reply}

	w.terminate()

	resp := <-reply
	require.Error(t, resp.Err)
	assert.True(t, isRetryable(resp.Err), "a WorkerCrash from a recycled worker's rejected pending task must be retried like a timeout")
}

func TestPool_BusyCountAndSizeReportSanely(t *testing.T) {
	p := NewPool(DefaultConfig(ModeIndividual), 3, nil)
	defer p.Shutdown()

	assert.Equal(t, 3, p.Size())
	assert.Equal(t, 0, p.BusyCount())
}
