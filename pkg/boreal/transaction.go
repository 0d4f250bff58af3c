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

type txState int

const (
	txStateActive txState = iota
	txStateFailed
	txStateSucceeded
	txStateRolledBack
)

func (s txState) String() string {
	switch s {
	case txStateActive:
		return "active"
	case txStateFailed:
		return "failed"
	case txStateSucceeded:
		return "succeeded"
	case txStateRolledBack:
		return "rolledback"
	}
	return "unknown"
}

type txEvent int

const (
	txEventRun txEvent = iota
	txEventCommit
	txEventRollback
	txEventError
)

type txOutcome int

const (
	// txOutcomeProceed performs the network operation.
	txOutcomeProceed txOutcome = iota

	// txOutcomeLocalError answers locally with a typed error, no network I/O.
	txOutcomeLocalError

	// txOutcomeLocalNoop answers locally with success, no network I/O.
	txOutcomeLocalNoop
)

// txApply is the transition function of the transaction state machine. Every
// terminal state answers every event locally, so a transaction that has ended
// once can never issue another network operation.
//
// A commit attempt moves to succeeded even when the server reports a failure:
// the commit was attempted, so the transaction can never be retried on this
// handle, while the error is still surfaced to the caller. Retry logic above
// depends on observing that error.
func txApply(state txState, event txEvent) (txState, txOutcome, string) {
	switch state {
	case txStateActive:
		switch event {
		case txEventRun:
			return txStateActive, txOutcomeProceed, ""
		case txEventCommit:
			return txStateSucceeded, txOutcomeProceed, ""
		case txEventRollback:
			return txStateRolledBack, txOutcomeProceed, ""
		case txEventError:
			return txStateFailed, txOutcomeProceed, ""
		}
	case txStateFailed:
		switch event {
		case txEventRun:
			return txStateFailed, txOutcomeLocalError, "cannot run query in this transaction, because it has failed"
		case txEventCommit:
			return txStateFailed, txOutcomeLocalError, "transaction cannot be committed, because it has been rolled back"
		case txEventRollback:
			return txStateFailed, txOutcomeLocalNoop, ""
		case txEventError:
			return txStateFailed, txOutcomeLocalNoop, ""
		}
	case txStateSucceeded:
		switch event {
		case txEventError:
			return txStateSucceeded, txOutcomeLocalNoop, ""
		default:
			return txStateSucceeded, txOutcomeLocalError, "transaction has already been committed"
		}
	case txStateRolledBack:
		switch event {
		case txEventError:
			return txStateRolledBack, txOutcomeLocalNoop, ""
		default:
			return txStateRolledBack, txOutcomeLocalError, "transaction has already been rolled back"
		}
	}
	return state, txOutcomeLocalError, "transaction is in an unknown state"
}

// Transaction is one explicit unit of work on a session. It drives one
// connection scope and is retired by exactly one of Commit, Rollback or an
// asynchronous protocol error. It is not safe for concurrent use.
type Transaction struct {
	mu     sync.Mutex
	state  txState
	holder *connectionHolder

	// onClose lets the owning session accept a new transaction; onBookmark
	// hands it the commit bookmark. closeOnce guards both the callback and the
	// release of the connection scope.
	onClose    func()
	onBookmark func(Bookmark)
	closeOnce  sync.Once

	id string
}

func newTransaction(holder *connectionHolder, onClose func(), onBookmark func(Bookmark)) *Transaction {
	return &Transaction{
		state:      txStateActive,
		holder:     holder,
		onClose:    onClose,
		onBookmark: onBookmark,
		id:         uuid.New().String()[:8],
	}
}

// IsOpen reports whether the transaction can still run queries and be
// committed or rolled back.
func (t *Transaction) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == txStateActive
}

func (t *Transaction) apply(event txEvent) (txOutcome, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	newState, outcome, msg := txApply(t.state, event)
	t.state = newState
	return outcome, msg
}

// Run submits a query inside the transaction. The bookmark was sent on begin
// and is never resent. Errors surface on the returned result.
func (t *Transaction) Run(ctx context.Context, query string, params map[string]interface{}) *Result {
	cmd := Command{Query: query, Params: params}
	log.WithFields(log.Fields{"id": t.id, "query": query}).Debug("boreal::transaction::Run; started")

	outcome, msg := t.apply(txEventRun)
	if outcome != txOutcomeProceed {
		return newResult(cmd, newFailedStreamObserver(common.NewClientError(msg), nil))
	}

	t.holder.initializeConnection(ctx)
	conn, err := t.holder.getConnection(ctx)
	if err != nil {
		t.holder.releaseConnection(ctx)
		t.markFailed(err)
		return newResult(cmd, newFailedStreamObserver(err, nil))
	}

	obs := newRunStreamObserver(func(summary *ResultSummary, streamErr error) {
		t.holder.releaseConnection(context.Background())
		if streamErr != nil {
			t.markFailed(streamErr)
		}
	})
	if err := conn.Run(ctx, cmd, RunOptions{}, obs); err != nil {
		obs.OnFailure(err)
	}
	return newResult(cmd, obs)
}

// Commit commits the transaction. After the first call (successful or not) the
// transaction is retired; a second Commit resolves locally with an error.
func (t *Transaction) Commit(ctx context.Context) error {
	outcome, msg := t.apply(txEventCommit)
	if outcome == txOutcomeLocalError {
		return common.NewClientError(msg)
	}
	if outcome == txOutcomeLocalNoop {
		return nil
	}

	conn, err := t.holder.getConnection(ctx)
	if err == nil && conn == nil {
		err = common.NewProtocolError("transaction has no connection")
	}
	var bookmark string
	if err == nil {
		bookmark, err = conn.CommitTx(ctx)
	}
	if err == nil {
		log.WithFields(log.Fields{"id": t.id, "bookmark": bookmark}).Debug("boreal::transaction::Commit; committed")
		if bookmark != "" && t.onBookmark != nil {
			t.onBookmark(NewBookmark(bookmark))
		}
	} else {
		log.WithFields(log.Fields{"id": t.id, "err": err}).Warn("boreal::transaction::Commit; commit failed")
	}
	t.retire(false)
	return err
}

// Rollback rolls back the transaction. Rolling back an already failed
// transaction is a local no-op.
func (t *Transaction) Rollback(ctx context.Context) error {
	outcome, msg := t.apply(txEventRollback)
	if outcome == txOutcomeLocalError {
		return common.NewClientError(msg)
	}
	if outcome == txOutcomeLocalNoop {
		return nil
	}

	conn, err := t.holder.getConnection(ctx)
	if err == nil && conn == nil {
		err = common.NewProtocolError("transaction has no connection")
	}
	if err == nil {
		err = conn.RollbackTx(ctx)
	}
	log.WithFields(log.Fields{"id": t.id}).Debug("boreal::transaction::Rollback; rolled back")
	t.retire(false)
	return err
}

// markFailed retires the transaction after an asynchronous error arriving out
// of band with any method call. The connection scope is force-released so a
// transaction the caller believes usable can never pin a connection.
func (t *Transaction) markFailed(cause error) {
	outcome, _ := t.apply(txEventError)
	if outcome != txOutcomeProceed {
		return
	}
	log.WithFields(log.Fields{"id": t.id, "err": cause}).Warn("boreal::transaction::markFailed; transaction failed")
	t.retire(true)
}

func (t *Transaction) retire(force bool) {
	t.closeOnce.Do(func() {
		if t.onClose != nil {
			t.onClose()
		}
		if force {
			t.holder.close(context.Background())
		} else {
			t.holder.releaseConnection(context.Background())
		}
	})
}
