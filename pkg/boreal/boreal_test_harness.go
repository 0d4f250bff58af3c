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

// fakeConnection is an in-memory Connection used by the package tests. It
// feeds observers synchronously and counts every protocol operation so tests
// can assert that terminal transactions never reach the network again.
type fakeConnection struct {
	mu sync.Mutex

	server string

	// scripted outcomes
	fields       []string
	records      [][]interface{}
	runBookmark  string
	runErr       error // synchronous submission failure
	streamErr    error // asynchronous failure delivered via the observer
	beginErr     error
	commitErr    error
	rollbackErr  error
	commitTokens []string // bookmark per successive commit

	// counters
	runs      []Command
	runOpts   []RunOptions
	begins    []RunOptions
	commits   int
	rollbacks int
	resets    int
	closes    int
}

var _ Connection = (*fakeConnection)(nil)

func (c *fakeConnection) Run(ctx context.Context, cmd Command, opts RunOptions, obs StreamObserver) error {
	c.mu.Lock()
	c.runs = append(c.runs, cmd)
	c.runOpts = append(c.runOpts, opts)
	runErr, streamErr := c.runErr, c.streamErr
	fields, records, bookmark := c.fields, c.records, c.runBookmark
	c.mu.Unlock()

	if runErr != nil {
		return runErr
	}

	obs.OnKeys(fields)
	for _, values := range records {
		obs.OnRecord(values)
	}
	if streamErr != nil {
		obs.OnFailure(streamErr)
		return nil
	}
	obs.OnSuccess(&ResultSummary{Query: cmd, Bookmark: bookmark, Server: c.server})
	return nil
}

func (c *fakeConnection) BeginTx(ctx context.Context, opts RunOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.begins = append(c.begins, opts)
	return c.beginErr
}

func (c *fakeConnection) CommitTx(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commits++
	if c.commitErr != nil {
		return "", c.commitErr
	}
	if len(c.commitTokens) > 0 {
		token := c.commitTokens[0]
		c.commitTokens = c.commitTokens[1:]
		return token, nil
	}
	return "", nil
}

func (c *fakeConnection) RollbackTx(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollbacks++
	return c.rollbackErr
}

func (c *fakeConnection) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resets++
	return nil
}

func (c *fakeConnection) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

func (c *fakeConnection) Server() string {
	return c.server
}

// fakeProvider hands out fakeConnections and tracks the pool balance.
type fakeProvider struct {
	mu sync.Mutex

	acquireErr error
	// next connections to hand out; when exhausted a fresh default one is made
	queue []*fakeConnection

	acquired int
	released int

	lastMode      AccessMode
	lastDatabase  string
	lastBookmarks []string
}

var _ ConnectionProvider = (*fakeProvider)(nil)

func (p *fakeProvider) Acquire(ctx context.Context, mode AccessMode, database string, bookmarks []string) (Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastMode = mode
	p.lastDatabase = database
	p.lastBookmarks = bookmarks

	if p.acquireErr != nil {
		return nil, p.acquireErr
	}

	var conn *fakeConnection
	if len(p.queue) > 0 {
		conn = p.queue[0]
		p.queue = p.queue[1:]
	} else {
		conn = &fakeConnection{server: "fake:7777"}
	}
	p.acquired++
	return conn, nil
}

func (p *fakeProvider) Release(ctx context.Context, conn Connection) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released++
	return nil
}

func (p *fakeProvider) Close(ctx context.Context) error {
	return nil
}

// balanced reports whether every acquired connection went back to the pool.
func (p *fakeProvider) balanced() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquired == p.released
}

func (p *fakeProvider) acquiredCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquired
}

func (p *fakeProvider) releasedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.released
}

func newTestSession(provider ConnectionProvider, conf SessionConfig) *Session {
	return newSession(provider, NewDefaultConfig(), conf)
}
