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

	log "github.com/sirupsen/logrus"
)

// connectionHolder owns the scoped use of one pooled connection. A connection
// is acquired at most once per scope (the span where the reference count stays
// above zero) and returned to the provider exactly once, when the count drops
// back to zero. Consumers must balance every initializeConnection with a
// releaseConnection.
type connectionHolder struct {
	mu sync.Mutex

	provider ConnectionProvider
	mode     AccessMode
	database string

	// bookmarks supplies the session's latest tokens at acquisition time.
	bookmarks func() []string

	conn     Connection
	connErr  error
	refCount int
}

func newConnectionHolder(provider ConnectionProvider, mode AccessMode, database string, bookmarks func() []string) *connectionHolder {
	if bookmarks == nil {
		bookmarks = func() []string { return nil }
	}
	return &connectionHolder{
		provider:  provider,
		mode:      mode,
		database:  database,
		bookmarks: bookmarks,
	}
}

// initializeConnection registers a consumer. The first consumer of a scope
// triggers acquisition; later ones share the memoized connection (or the
// memoized acquisition failure).
func (h *connectionHolder) initializeConnection(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.refCount == 0 {
		conn, err := h.provider.Acquire(ctx, h.mode, h.database, h.bookmarks())
		h.conn = conn
		h.connErr = err
		if err != nil {
			log.WithFields(log.Fields{"mode": h.mode.String(), "err": err}).Debug("boreal::holder::initializeConnection; acquisition failed")
		}
	}
	h.refCount++
}

// getConnection returns the memoized connection or its acquisition error.
func (h *connectionHolder) getConnection(ctx context.Context) (Connection, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn, h.connErr
}

// releaseConnection unregisters one consumer. The last consumer of a scope
// resets the connection and returns it to the provider.
func (h *connectionHolder) releaseConnection(ctx context.Context) error {
	h.mu.Lock()
	if h.refCount == 0 {
		h.mu.Unlock()
		return nil
	}
	h.refCount--
	if h.refCount > 0 {
		h.mu.Unlock()
		return nil
	}
	conn := h.conn
	h.conn = nil
	h.connErr = nil
	h.mu.Unlock()

	return h.returnToProvider(ctx, conn)
}

// close forces the connection back to the provider regardless of outstanding
// consumers. Used at session teardown and when a transaction fails mid-flight.
func (h *connectionHolder) close(ctx context.Context) error {
	h.mu.Lock()
	conn := h.conn
	h.conn = nil
	h.connErr = nil
	h.refCount = 0
	h.mu.Unlock()

	return h.returnToProvider(ctx, conn)
}

func (h *connectionHolder) returnToProvider(ctx context.Context, conn Connection) error {
	if conn == nil {
		return nil
	}
	if err := conn.Reset(ctx); err != nil {
		log.WithFields(log.Fields{"server": conn.Server(), "err": err}).Warn("boreal::holder::returnToProvider; reset failed before release")
	}
	return h.provider.Release(ctx, conn)
}
