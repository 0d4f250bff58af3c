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

	"github.com/borealdb/boreal-go/pkg/common"
)

// Result is the lazily-materialized outcome of one query submission. Errors
// arising from the network are never thrown at submission time; they surface
// here, on consumption. Completion (success or failure) releases the owning
// connection scope exactly once, through the observer's completion hook.
//
// Streaming consumption (Next, Subscribe) is single-pass. Collect materializes
// the remaining records and memoizes them, so repeated Collect calls replay
// the same slice.
type Result struct {
	cmd    Command
	stream recordStream

	collected   []*Record
	collectDone bool
}

func newResult(cmd Command, stream recordStream) *Result {
	return &Result{cmd: cmd, stream: stream}
}

// Query returns the query text this result was created for.
func (r *Result) Query() string {
	return r.cmd.Query
}

// Params returns the parameters this result was created for.
func (r *Result) Params() map[string]interface{} {
	return r.cmd.Params
}

// Keys returns the field names of the records, blocking until the server has
// sent them or the stream failed.
func (r *Result) Keys(ctx context.Context) ([]string, error) {
	return r.stream.keys(ctx)
}

// Next returns the next record, blocking while it is in flight. It returns
// (nil, nil) once the stream has completed.
func (r *Result) Next(ctx context.Context) (*Record, error) {
	return r.stream.next(ctx)
}

// Collect materializes all remaining records in order. Repeated calls return
// the memoized slice of the first call.
func (r *Result) Collect(ctx context.Context) ([]*Record, error) {
	if r.collectDone {
		return r.collected, nil
	}
	var records []*Record
	for {
		rec, err := r.stream.next(ctx)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			break
		}
		records = append(records, rec)
	}
	r.collected = records
	r.collectDone = true
	return records, nil
}

// Single materializes the result and requires it to hold exactly one record.
func (r *Result) Single(ctx context.Context) (*Record, error) {
	records, err := r.Collect(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) != 1 {
		return nil, common.NewClientError("expected exactly one record in the result")
	}
	return records[0], nil
}

// Consume discards any remaining records and returns the summary metadata,
// blocking until the stream is terminal.
func (r *Result) Consume(ctx context.Context) (*ResultSummary, error) {
	return r.stream.summary(ctx)
}

// SubscriptionHandlers is the push-delivery surface. Exactly one of
// OnCompleted and OnError fires, after all OnRecord calls.
type SubscriptionHandlers struct {
	OnKeys      func(keys []string)
	OnRecord    func(record *Record)
	OnCompleted func(summary *ResultSummary)
	OnError     func(err error)
}

// Subscribe drains the result, pushing every record into the handlers.
func (r *Result) Subscribe(ctx context.Context, handlers SubscriptionHandlers) {
	if handlers.OnKeys != nil {
		keys, err := r.stream.keys(ctx)
		if err == nil {
			handlers.OnKeys(keys)
		}
	}

	for {
		rec, err := r.stream.next(ctx)
		if err != nil {
			if handlers.OnError != nil {
				handlers.OnError(err)
			}
			return
		}
		if rec == nil {
			break
		}
		if handlers.OnRecord != nil {
			handlers.OnRecord(rec)
		}
	}

	summary, err := r.stream.summary(ctx)
	if err != nil {
		if handlers.OnError != nil {
			handlers.OnError(err)
		}
		return
	}
	if handlers.OnCompleted != nil {
		handlers.OnCompleted(summary)
	}
}
