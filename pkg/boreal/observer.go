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
	"sync"
)

// completionHook is invoked exactly once per observer, with the summary on
// success or the error on failure. Holder release and session bookmark updates
// hang off this hook.
type completionHook func(summary *ResultSummary, err error)

// recordStream is the pull side a Result consumes, regardless of whether any
// network I/O ever happened.
type recordStream interface {
	// keys blocks until the field keys are known or the stream failed.
	keys(ctx context.Context) ([]string, error)

	// next blocks for the next record. It returns (nil, nil) at end of stream.
	next(ctx context.Context) (*Record, error)

	// summary blocks until the stream is terminal. Records still buffered are
	// not invalidated by calling it.
	summary(ctx context.Context) (*ResultSummary, error)
}

// runStreamObserver is the streaming observer: fed by a connection on the push
// side (StreamObserver), drained by a Result on the pull side (recordStream).
// The terminal transition is guarded so completion is signalled exactly once
// no matter how many times the connection calls OnSuccess/OnFailure.
type runStreamObserver struct {
	mu       sync.Mutex
	notifyCh chan struct{}

	fields    []string
	haveKeys  bool
	buffered  []*Record
	nextIdx   int
	terminal  bool
	result    *ResultSummary
	streamErr error

	once       sync.Once
	onComplete completionHook
}

var _ StreamObserver = (*runStreamObserver)(nil)
var _ recordStream = (*runStreamObserver)(nil)

func newRunStreamObserver(onComplete completionHook) *runStreamObserver {
	return &runStreamObserver{
		notifyCh:   make(chan struct{}, 1),
		onComplete: onComplete,
	}
}

func (o *runStreamObserver) notify() {
	select {
	case o.notifyCh <- struct{}{}:
	default:
	}
}

func (o *runStreamObserver) OnKeys(keys []string) {
	o.mu.Lock()
	if !o.haveKeys {
		o.fields = keys
		o.haveKeys = true
	}
	o.mu.Unlock()
	o.notify()
}

func (o *runStreamObserver) OnRecord(values []interface{}) {
	o.mu.Lock()
	if o.terminal {
		o.mu.Unlock()
		return
	}
	o.buffered = append(o.buffered, &Record{Keys: o.fields, Values: values})
	o.mu.Unlock()
	o.notify()
}

func (o *runStreamObserver) OnSuccess(summary *ResultSummary) {
	o.once.Do(func() {
		if summary == nil {
			summary = &ResultSummary{}
		}
		o.mu.Lock()
		o.terminal = true
		o.result = summary
		o.mu.Unlock()
		o.notify()
		if o.onComplete != nil {
			o.onComplete(summary, nil)
		}
	})
}

func (o *runStreamObserver) OnFailure(err error) {
	o.once.Do(func() {
		o.mu.Lock()
		o.terminal = true
		o.streamErr = err
		o.mu.Unlock()
		o.notify()
		if o.onComplete != nil {
			o.onComplete(nil, err)
		}
	})
}

func (o *runStreamObserver) keys(ctx context.Context) ([]string, error) {
	for {
		o.mu.Lock()
		if o.haveKeys {
			keys := o.fields
			o.mu.Unlock()
			return keys, nil
		}
		if o.terminal {
			err := o.streamErr
			o.mu.Unlock()
			return nil, err
		}
		o.mu.Unlock()

		select {
		case <-o.notifyCh:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (o *runStreamObserver) next(ctx context.Context) (*Record, error) {
	for {
		o.mu.Lock()
		if o.nextIdx < len(o.buffered) {
			rec := o.buffered[o.nextIdx]
			o.nextIdx++
			o.mu.Unlock()
			return rec, nil
		}
		if o.terminal {
			err := o.streamErr
			o.mu.Unlock()
			return nil, err
		}
		o.mu.Unlock()

		select {
		case <-o.notifyCh:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (o *runStreamObserver) summary(ctx context.Context) (*ResultSummary, error) {
	for {
		o.mu.Lock()
		if o.terminal {
			result, err := o.result, o.streamErr
			o.mu.Unlock()
			return result, err
		}
		o.mu.Unlock()

		select {
		case <-o.notifyCh:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// failedStreamObserver is terminal from birth with a supplied error. It is the
// uniform answer when the connection could not be obtained or the transaction
// state forbids the operation: error delivery without network I/O.
type failedStreamObserver struct {
	err error
}

var _ recordStream = failedStreamObserver{}

func newFailedStreamObserver(err error, onComplete completionHook) failedStreamObserver {
	if onComplete != nil {
		onComplete(nil, err)
	}
	return failedStreamObserver{err: err}
}

func (o failedStreamObserver) keys(context.Context) ([]string, error) {
	return nil, o.err
}

func (o failedStreamObserver) next(context.Context) (*Record, error) {
	return nil, o.err
}

func (o failedStreamObserver) summary(context.Context) (*ResultSummary, error) {
	return nil, o.err
}

// completedStreamObserver is terminal from birth with an empty summary. Used
// for the no-op rollback of an already failed transaction.
type completedStreamObserver struct {
	result *ResultSummary
}

var _ recordStream = completedStreamObserver{}

func newCompletedStreamObserver(onComplete completionHook) completedStreamObserver {
	summary := &ResultSummary{}
	if onComplete != nil {
		onComplete(summary, nil)
	}
	return completedStreamObserver{result: summary}
}

func (o completedStreamObserver) keys(context.Context) ([]string, error) {
	return nil, nil
}

func (o completedStreamObserver) next(context.Context) (*Record, error) {
	return nil, nil
}

func (o completedStreamObserver) summary(context.Context) (*ResultSummary, error) {
	return o.result, nil
}
