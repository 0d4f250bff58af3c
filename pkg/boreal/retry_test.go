package boreal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/borealdb/boreal-go/pkg/common"
	"github.com/stretchr/testify/assert"
)

// newTestExecutor returns an executor with a deterministic fake clock: sleep
// advances the clock instead of blocking.
func newTestExecutor(maxRetryTime, initialDelay time.Duration) (*transactionExecutor, *time.Time) {
	clock := time.Unix(0, 0)
	e := &transactionExecutor{
		maxRetryTime: maxRetryTime,
		initialDelay: initialDelay,
		multiplier:   2.0,
		jitter:       0,
		sleep:        func(d time.Duration) { clock = clock.Add(d) },
		now:          func() time.Time { return clock },
		randFloat:    func() float64 { return 0.5 },
	}
	return e, &clock
}

func beginOver(conn *fakeConnection) func(context.Context) (*Transaction, error) {
	return func(ctx context.Context) (*Transaction, error) {
		provider := &fakeProvider{queue: []*fakeConnection{conn}}
		holder := newConnectionHolder(provider, AccessModeWrite, "", nil)
		holder.initializeConnection(ctx)
		if err := conn.BeginTx(ctx, RunOptions{}); err != nil {
			holder.releaseConnection(ctx)
			return nil, err
		}
		return newTransaction(holder, nil, nil), nil
	}
}

func TestExecutorRetriesTransientFailuresThenSucceeds(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestExecutor(30*time.Second, time.Millisecond)
	conn := &fakeConnection{server: "fake:7777"}

	attempts := 0
	result, err := e.execute(ctx, beginOver(conn), func(tx *Transaction) (interface{}, error) {
		attempts++
		if attempts <= 2 {
			return nil, common.NewTransientError("deadlock")
		}
		return 42, nil
	})

	assert.Nil(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 3, attempts)
	// two failed cycles rolled back, the third committed
	assert.Equal(t, 3, len(conn.begins))
	assert.Equal(t, 2, conn.rollbacks)
	assert.Equal(t, 1, conn.commits)
}

func TestExecutorDoesNotRetryFatalErrors(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestExecutor(30*time.Second, time.Millisecond)
	conn := &fakeConnection{server: "fake:7777"}

	attempts := 0
	_, err := e.execute(ctx, beginOver(conn), func(tx *Transaction) (interface{}, error) {
		attempts++
		return nil, common.NewClientError("syntax error")
	})

	var ce common.ClientError
	assert.True(t, errors.As(err, &ce))
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 0, conn.commits)
}

func TestExecutorAbortsOnceCeilingExceeded(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestExecutor(time.Second, time.Second)
	conn := &fakeConnection{server: "fake:7777"}

	attempts := 0
	_, err := e.execute(ctx, beginOver(conn), func(tx *Transaction) (interface{}, error) {
		attempts++
		return nil, common.NewTransientError("always contended")
	})

	assert.LessOrEqual(t, attempts, 2)

	var re common.RetryExhaustedError
	assert.True(t, errors.As(err, &re))
	// the underlying transient error stays observable through the wrapper
	var te common.TransientError
	assert.True(t, errors.As(err, &te))
	assert.Equal(t, attempts-1, len(re.Suppressed))
}

func TestExecutorRetriesCommitFailures(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestExecutor(30*time.Second, time.Millisecond)

	first := &fakeConnection{server: "fake:7777", commitErr: common.NewTransientError("leader switch")}
	second := &fakeConnection{server: "fake:7777"}
	conns := []*fakeConnection{first, second}
	i := 0
	begin := func(ctx context.Context) (*Transaction, error) {
		conn := conns[i]
		i++
		return beginOver(conn)(ctx)
	}

	result, err := e.execute(ctx, begin, func(tx *Transaction) (interface{}, error) {
		return "done", nil
	})

	assert.Nil(t, err)
	assert.Equal(t, "done", result)
	assert.Equal(t, 1, first.commits)
	assert.Equal(t, 1, second.commits)
}

func TestExecutorRetriesBeginFailures(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestExecutor(30*time.Second, time.Millisecond)

	failures := 0
	conn := &fakeConnection{server: "fake:7777"}
	begin := func(ctx context.Context) (*Transaction, error) {
		if failures < 2 {
			failures++
			return nil, common.NewServiceUnavailableError("no healthy servers")
		}
		return beginOver(conn)(ctx)
	}

	result, err := e.execute(ctx, begin, func(tx *Transaction) (interface{}, error) {
		return 7, nil
	})
	assert.Nil(t, err)
	assert.Equal(t, 7, result)
	assert.Equal(t, 2, failures)
	assert.Equal(t, 1, conn.commits)
}

func TestExecutorBackoffGrowsWithJitterBounds(t *testing.T) {
	ctx := context.Background()
	clock := time.Unix(0, 0)
	var delays []time.Duration
	e := &transactionExecutor{
		maxRetryTime: time.Minute,
		initialDelay: time.Second,
		multiplier:   2.0,
		jitter:       0.2,
		sleep: func(d time.Duration) {
			delays = append(delays, d)
			clock = clock.Add(d)
		},
		now:       func() time.Time { return clock },
		randFloat: func() float64 { return 1.0 },
	}
	conn := &fakeConnection{server: "fake:7777"}

	attempts := 0
	_, err := e.execute(ctx, beginOver(conn), func(tx *Transaction) (interface{}, error) {
		attempts++
		if attempts <= 3 {
			return nil, common.NewTransientError("contended")
		}
		return nil, nil
	})
	assert.Nil(t, err)

	// randFloat pinned at 1.0 puts every delay at the +20% bound
	assert.Equal(t, []time.Duration{
		1200 * time.Millisecond,
		2400 * time.Millisecond,
		4800 * time.Millisecond,
	}, delays)
}

func TestExecutorHonorsContextCancellation(t *testing.T) {
	e, _ := newTestExecutor(30*time.Second, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.execute(ctx, beginOver(&fakeConnection{}), func(tx *Transaction) (interface{}, error) {
		return nil, nil
	})
	assert.Equal(t, context.Canceled, err)
}

func TestSessionWriteTransactionRetries(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{}
	session := newTestSession(provider, SessionConfig{})
	session.executor.sleep = func(time.Duration) {}

	attempts := 0
	result, err := session.WriteTransaction(ctx, func(tx *Transaction) (interface{}, error) {
		attempts++
		if attempts <= 2 {
			return nil, common.NewTransientError("deadlock")
		}
		res := tx.Run(ctx, "CREATE (n) RETURN n", nil)
		if _, err := res.Consume(ctx); err != nil {
			return nil, err
		}
		return "created", nil
	})

	assert.Nil(t, err)
	assert.Equal(t, "created", result)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, provider.acquiredCount())
	assert.True(t, provider.balanced())

	// the retry loop leaves no pending transaction behind
	_, err = session.BeginTransaction(ctx)
	assert.Nil(t, err)
	assert.Nil(t, session.Close(ctx))
}

func TestSessionReadTransactionUsesReadMode(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{}
	session := newTestSession(provider, SessionConfig{})

	_, err := session.ReadTransaction(ctx, func(tx *Transaction) (interface{}, error) {
		return nil, nil
	})
	assert.Nil(t, err)
	assert.Equal(t, AccessModeRead, provider.lastMode)

	_, err = session.WriteTransaction(ctx, func(tx *Transaction) (interface{}, error) {
		return nil, nil
	})
	assert.Nil(t, err)
	assert.Equal(t, AccessModeWrite, provider.lastMode)
	assert.Nil(t, session.Close(ctx))
}
