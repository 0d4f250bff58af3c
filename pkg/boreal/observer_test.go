package boreal

import (
	"context"
	"testing"

	"github.com/borealdb/boreal-go/pkg/common"
	"github.com/stretchr/testify/assert"
)

func TestRunStreamObserverDeliversKeysRecordsSummary(t *testing.T) {
	ctx := context.Background()
	obs := newRunStreamObserver(nil)

	obs.OnKeys([]string{"n", "m"})
	obs.OnRecord([]interface{}{1, "a"})
	obs.OnRecord([]interface{}{2, "b"})
	obs.OnSuccess(&ResultSummary{Bookmark: "bm:1"})

	keys, err := obs.keys(ctx)
	assert.Nil(t, err)
	assert.Equal(t, []string{"n", "m"}, keys)

	rec, err := obs.next(ctx)
	assert.Nil(t, err)
	assert.Equal(t, []interface{}{1, "a"}, rec.Values)

	rec, err = obs.next(ctx)
	assert.Nil(t, err)
	assert.Equal(t, []interface{}{2, "b"}, rec.Values)

	rec, err = obs.next(ctx)
	assert.Nil(t, err)
	assert.Nil(t, rec)

	summary, err := obs.summary(ctx)
	assert.Nil(t, err)
	assert.Equal(t, "bm:1", summary.Bookmark)
}

func TestRunStreamObserverCompletionHookFiresExactlyOnce(t *testing.T) {
	completions := 0
	obs := newRunStreamObserver(func(summary *ResultSummary, err error) {
		completions++
	})

	obs.OnSuccess(&ResultSummary{})
	obs.OnSuccess(&ResultSummary{})
	obs.OnFailure(common.NewProtocolError("late failure"))

	assert.Equal(t, 1, completions)
}

func TestRunStreamObserverFailure(t *testing.T) {
	ctx := context.Background()
	var hookErr error
	obs := newRunStreamObserver(func(summary *ResultSummary, err error) {
		hookErr = err
	})

	obs.OnKeys([]string{"n"})
	obs.OnFailure(common.NewTransientError("deadlock"))

	_, err := obs.next(ctx)
	assert.True(t, common.IsRetryable(err))
	_, err = obs.summary(ctx)
	assert.NotNil(t, err)
	assert.True(t, common.IsRetryable(hookErr))

	// records arriving after the terminal transition are dropped
	obs.OnRecord([]interface{}{1})
	rec, err := obs.next(ctx)
	assert.Nil(t, rec)
	assert.NotNil(t, err)
}

func TestRunStreamObserverConcurrentProducer(t *testing.T) {
	ctx := context.Background()
	obs := newRunStreamObserver(nil)

	go func() {
		obs.OnKeys([]string{"n"})
		for i := 0; i < 100; i++ {
			obs.OnRecord([]interface{}{i})
		}
		obs.OnSuccess(&ResultSummary{})
	}()

	count := 0
	for {
		rec, err := obs.next(ctx)
		assert.Nil(t, err)
		if rec == nil {
			break
		}
		assert.Equal(t, count, rec.Values[0])
		count++
	}
	assert.Equal(t, 100, count)
}

func TestFailedStreamObserver(t *testing.T) {
	ctx := context.Background()
	cause := common.NewClientError("already committed")
	var hookErr error
	obs := newFailedStreamObserver(cause, func(summary *ResultSummary, err error) {
		hookErr = err
	})

	assert.Equal(t, cause, hookErr)

	_, err := obs.keys(ctx)
	assert.Equal(t, cause, err)
	_, err = obs.next(ctx)
	assert.Equal(t, cause, err)
	_, err = obs.summary(ctx)
	assert.Equal(t, cause, err)
}

func TestCompletedStreamObserver(t *testing.T) {
	ctx := context.Background()
	completions := 0
	obs := newCompletedStreamObserver(func(summary *ResultSummary, err error) {
		completions++
		assert.Nil(t, err)
	})

	assert.Equal(t, 1, completions)

	rec, err := obs.next(ctx)
	assert.Nil(t, err)
	assert.Nil(t, rec)

	summary, err := obs.summary(ctx)
	assert.Nil(t, err)
	assert.NotNil(t, summary)
	assert.Equal(t, "", summary.Bookmark)
}

func TestRunStreamObserverNextHonorsContext(t *testing.T) {
	obs := newRunStreamObserver(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := obs.next(ctx)
	assert.Equal(t, context.Canceled, err)
}
