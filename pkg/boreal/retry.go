/**
 * Copyright 2024 The BorealDB Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *      https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package boreal

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/borealdb/boreal-go/pkg/common"
	log "github.com/sirupsen/logrus"
)

// transactionExecutor runs a unit of work under automatic begin/commit/retry
// management. The whole unit is retried, never a single statement: the failed
// transaction is already retired by the time a retry is considered. One
// executor belongs to one session and is used sequentially.
type transactionExecutor struct {
	maxRetryTime time.Duration
	initialDelay time.Duration
	multiplier   float64
	jitter       float64

	// injectable for tests
	sleep     func(time.Duration)
	now       func() time.Time
	randFloat func() float64
}

func newTransactionExecutor(config *Config) *transactionExecutor {
	return &transactionExecutor{
		maxRetryTime: config.MaxTransactionRetryTime,
		initialDelay: config.InitialRetryDelay,
		multiplier:   config.RetryDelayMultiplier,
		jitter:       config.RetryDelayJitter,
		sleep:        time.Sleep,
		now:          time.Now,
		randFloat:    rand.Float64,
	}
}

// execute repeatedly begins a transaction, invokes work, and commits. On a
// retryable failure the cycle restarts after an exponential backoff delay with
// jitter; the loop aborts once cumulative elapsed time exceeds the ceiling.
// Fatal errors propagate immediately.
func (e *transactionExecutor) execute(ctx context.Context, begin func(context.Context) (*Transaction, error), work TransactionWork) (interface{}, error) {
	start := e.now()
	delay := e.initialDelay
	var suppressed []error

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := e.executeOnce(ctx, begin, work)
		if err == nil {
			return result, nil
		}
		if !common.IsRetryable(err) {
			return nil, err
		}

		elapsed := e.now().Sub(start)
		if elapsed >= e.maxRetryTime {
			log.WithFields(log.Fields{"attempts": attempt, "elapsed": elapsed}).Warn("boreal::retry::execute; retry time ceiling exceeded")
			return nil, common.NewRetryExhaustedError(
				fmt.Sprintf("transaction failed and could not be retried within %s", e.maxRetryTime), err, suppressed)
		}

		wait := e.jittered(delay)
		log.WithFields(log.Fields{"attempt": attempt, "delay": wait, "err": err}).Warn("boreal::retry::execute; retrying transaction")
		suppressed = append(suppressed, err)
		e.sleep(wait)
		delay = time.Duration(float64(delay) * e.multiplier)
	}
}

func (e *transactionExecutor) executeOnce(ctx context.Context, begin func(context.Context) (*Transaction, error), work TransactionWork) (interface{}, error) {
	tx, err := begin(ctx)
	if err != nil {
		return nil, err
	}

	result, err := work(tx)
	if err != nil {
		// Rolling back a transaction the error already retired is a local no-op.
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			log.WithFields(log.Fields{"err": rbErr}).Debug("boreal::retry::executeOnce; rollback after failed work")
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return result, nil
}

// jittered spreads the delay over +-jitter of its nominal value to avoid
// retry storms.
func (e *transactionExecutor) jittered(delay time.Duration) time.Duration {
	if e.jitter <= 0 {
		return delay
	}
	factor := 1 - e.jitter + 2*e.jitter*e.randFloat()
	return time.Duration(float64(delay) * factor)
}
