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

	"github.com/borealdb/boreal-go/pkg/common"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// SessionConfig configures a new session. The zero value uses safe defaults.
type SessionConfig struct {
	// AccessMode used by Run and BeginTransaction. ReadTransaction and
	// WriteTransaction pick their own mode.
	AccessMode AccessMode

	// Bookmarks this session must observe before its first transaction.
	// Pass another session's LastBookmark() here to chain causally.
	Bookmarks []string

	// Database overrides the driver's default database for this session.
	Database string
}

// TransactionWork is a caller-supplied unit of work executed under automatic
// begin/commit/retry management. It may run several times; it must therefore
// be idempotent from the caller's point of view and must not keep results
// alive past its return.
type TransactionWork func(tx *Transaction) (interface{}, error)

// Session serializes one client-facing sequence of operations. It owns a read
// and a write connection scope, tracks the latest bookmark so later
// transactions observe earlier commits, and admits at most one open explicit
// transaction at a time. A session must not be used from multiple goroutines.
type Session struct {
	mu sync.Mutex

	mode     AccessMode
	database string

	readHolder  *connectionHolder
	writeHolder *connectionHolder

	bookmark Bookmark
	tx       *Transaction
	executor *transactionExecutor
	closed   common.ProtectedBool

	id string
}

func newSession(provider ConnectionProvider, config *Config, conf SessionConfig) *Session {
	database := conf.Database
	if database == "" {
		database = config.Database
	}

	s := &Session{
		mode:     conf.AccessMode,
		database: database,
		bookmark: NewBookmark(conf.Bookmarks...),
		executor: newTransactionExecutor(config),
		id:       uuid.New().String()[:8],
	}
	s.readHolder = newConnectionHolder(provider, AccessModeRead, database, s.bookmarkTokens)
	s.writeHolder = newConnectionHolder(provider, AccessModeWrite, database, s.bookmarkTokens)

	log.WithFields(log.Fields{"id": s.id, "mode": conf.AccessMode.String(), "database": database}).Debug("boreal::session::newSession; created")
	return s
}

func (s *Session) holderFor(mode AccessMode) *connectionHolder {
	if mode == AccessModeRead {
		return s.readHolder
	}
	return s.writeHolder
}

func (s *Session) bookmarkTokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bookmark.Values()
}

func (s *Session) updateBookmark(b Bookmark) {
	if b.Empty() {
		return
	}
	s.mu.Lock()
	s.bookmark = b
	s.mu.Unlock()
}

// LastBookmark returns the token set of the bookmark received after the last
// successfully completed transaction, or the initial set when none completed.
func (s *Session) LastBookmark() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bookmark.Values()
}

// Run executes an auto-commit query carrying the session's latest bookmark.
// It never fails synchronously; submission and stream errors surface on the
// returned result.
func (s *Session) Run(ctx context.Context, query string, params map[string]interface{}, configurers ...func(*TransactionConfig)) *Result {
	cmd := Command{Query: query, Params: params}
	log.WithFields(log.Fields{"id": s.id, "query": query}).Info("boreal::session::Run; started")

	if s.closed.Get() {
		return newResult(cmd, newFailedStreamObserver(common.NewUsageError("cannot run query on a closed session"), nil))
	}
	if s.openTransaction() != nil {
		return newResult(cmd, newFailedStreamObserver(common.NewUsageError("cannot run auto-commit query while a transaction is open on this session"), nil))
	}

	var config TransactionConfig
	for _, c := range configurers {
		c(&config)
	}

	holder := s.holderFor(s.mode)
	holder.initializeConnection(ctx)
	conn, err := holder.getConnection(ctx)
	if err != nil {
		holder.releaseConnection(ctx)
		return newResult(cmd, newFailedStreamObserver(err, nil))
	}

	obs := newRunStreamObserver(func(summary *ResultSummary, streamErr error) {
		if streamErr == nil && summary != nil && summary.Bookmark != "" {
			s.updateBookmark(NewBookmark(summary.Bookmark))
		}
		holder.releaseConnection(context.Background())
	})
	opts := RunOptions{
		Bookmarks: s.bookmarkTokens(),
		Config:    config,
		Mode:      s.mode,
		Database:  s.database,
	}
	if err := conn.Run(ctx, cmd, opts, obs); err != nil {
		obs.OnFailure(err)
	}
	return newResult(cmd, obs)
}

// BeginTransaction starts an explicit transaction. It fails synchronously with
// a UsageError when another transaction is already open on this session.
func (s *Session) BeginTransaction(ctx context.Context, configurers ...func(*TransactionConfig)) (*Transaction, error) {
	return s.beginTransaction(ctx, s.mode, configurers...)
}

func (s *Session) beginTransaction(ctx context.Context, mode AccessMode, configurers ...func(*TransactionConfig)) (*Transaction, error) {
	if s.closed.Get() {
		return nil, common.NewUsageError("cannot begin a transaction on a closed session")
	}
	if s.openTransaction() != nil {
		return nil, common.NewUsageError("session already has a pending transaction")
	}

	var config TransactionConfig
	for _, c := range configurers {
		c(&config)
	}

	holder := s.holderFor(mode)
	holder.initializeConnection(ctx)
	conn, err := holder.getConnection(ctx)
	if err != nil {
		holder.releaseConnection(ctx)
		return nil, err
	}

	opts := RunOptions{
		Bookmarks: s.bookmarkTokens(),
		Config:    config,
		Mode:      mode,
		Database:  s.database,
	}
	if err := conn.BeginTx(ctx, opts); err != nil {
		holder.releaseConnection(ctx)
		return nil, err
	}

	tx := newTransaction(holder, func() { s.clearTransaction() }, s.updateBookmark)
	s.setTransaction(tx)
	log.WithFields(log.Fields{"id": s.id, "mode": mode.String()}).Info("boreal::session::beginTransaction; transaction started")
	return tx, nil
}

// ReadTransaction executes the unit of work in a read transaction, retrying
// the whole unit on retryable failures.
func (s *Session) ReadTransaction(ctx context.Context, work TransactionWork, configurers ...func(*TransactionConfig)) (interface{}, error) {
	return s.runTransaction(ctx, AccessModeRead, work, configurers...)
}

// WriteTransaction executes the unit of work in a write transaction, retrying
// the whole unit on retryable failures.
func (s *Session) WriteTransaction(ctx context.Context, work TransactionWork, configurers ...func(*TransactionConfig)) (interface{}, error) {
	return s.runTransaction(ctx, AccessModeWrite, work, configurers...)
}

func (s *Session) runTransaction(ctx context.Context, mode AccessMode, work TransactionWork, configurers ...func(*TransactionConfig)) (interface{}, error) {
	if s.closed.Get() {
		return nil, common.NewUsageError("cannot run a transaction on a closed session")
	}
	if s.openTransaction() != nil {
		return nil, common.NewUsageError("session already has a pending transaction")
	}

	return s.executor.execute(ctx, func(ctx context.Context) (*Transaction, error) {
		return s.beginTransaction(ctx, mode, configurers...)
	}, work)
}

func (s *Session) openTransaction() *Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx
}

func (s *Session) setTransaction(tx *Transaction) {
	s.mu.Lock()
	s.tx = tx
	s.mu.Unlock()
}

func (s *Session) clearTransaction() {
	s.mu.Lock()
	s.tx = nil
	s.mu.Unlock()
}

// Close rolls back any open transaction and forces both connection scopes back
// to the provider, even when a consumer never finished. Idempotent; the
// session is unusable afterwards.
func (s *Session) Close(ctx context.Context) error {
	if !s.closed.SetIfNot(true) {
		return nil
	}
	log.WithFields(log.Fields{"id": s.id}).Info("boreal::session::Close; closing")

	var txErr error
	if tx := s.openTransaction(); tx != nil {
		txErr = tx.Rollback(ctx)
	}

	readErr := s.readHolder.close(ctx)
	writeErr := s.writeHolder.close(ctx)

	if txErr != nil {
		return txErr
	}
	if readErr != nil {
		return readErr
	}
	return writeErr
}
