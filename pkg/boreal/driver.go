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
	"time"

	"github.com/borealdb/boreal-go/pkg/common"
	log "github.com/sirupsen/logrus"
)

// AccessMode routes the operations of a session or transaction to either the
// writers or the readers of the cluster.
type AccessMode int

const (
	// AccessModeWrite routes to a writer. This is the default.
	AccessModeWrite AccessMode = iota

	// AccessModeRead routes to a reader.
	AccessModeRead
)

func (m AccessMode) String() string {
	if m == AccessModeRead {
		return "read"
	}
	return "write"
}

// Command is one query submission: the query text plus its parameters.
// It is retained on results for diagnostics.
type Command struct {
	Query  string
	Params map[string]interface{}
}

// TransactionConfig carries the per-transaction settings sent to the server
// on begin and on auto-commit runs.
type TransactionConfig struct {
	// Timeout is the server side transaction timeout. Zero means the server default.
	Timeout time.Duration

	// Metadata is attached to the transaction and visible in server monitoring.
	Metadata map[string]interface{}
}

// WithTxTimeout returns a configurer that sets the transaction timeout.
func WithTxTimeout(timeout time.Duration) func(*TransactionConfig) {
	return func(config *TransactionConfig) {
		config.Timeout = timeout
	}
}

// WithTxMetadata returns a configurer that sets the transaction metadata.
func WithTxMetadata(metadata map[string]interface{}) func(*TransactionConfig) {
	return func(config *TransactionConfig) {
		config.Metadata = metadata
	}
}

// RunOptions carries the scope of one run/begin operation down to the connection.
type RunOptions struct {
	// Bookmarks the server must have caught up with before executing.
	// Empty for statements inside an explicit transaction: the bookmarks were
	// already sent on begin and are never resent.
	Bookmarks []string
	Config    TransactionConfig
	Mode      AccessMode
	Database  string
}

// StreamObserver receives the outcome of one submitted operation from the
// connection: field keys, then zero or more records, then exactly one of
// success (with summary metadata) or failure.
type StreamObserver interface {
	OnKeys(keys []string)
	OnRecord(values []interface{})
	OnSuccess(summary *ResultSummary)
	OnFailure(err error)
}

// Connection is one stateful network connection to a borealdb server. It is
// exclusively owned by one connectionHolder at a time. Implementations live in
// the transport packages; the driver core never dials.
type Connection interface {
	// Run submits a query. The returned error covers submission only; the
	// outcome of the query is delivered through the observer.
	Run(ctx context.Context, cmd Command, opts RunOptions, obs StreamObserver) error

	// BeginTx starts an explicit transaction on this connection.
	BeginTx(ctx context.Context, opts RunOptions) error

	// CommitTx commits the explicit transaction and returns the bookmark token
	// issued by the server.
	CommitTx(ctx context.Context) (string, error)

	// RollbackTx rolls back the explicit transaction.
	RollbackTx(ctx context.Context) error

	// Reset clears any leftover protocol state so the connection can be pooled again.
	Reset(ctx context.Context) error

	// Close tears down the network connection.
	Close(ctx context.Context) error

	// Server returns the address of the remote, for diagnostics.
	Server() string
}

// ConnectionProvider produces and recycles connections. The default provider is
// the pooled gRPC one in pkg/rpc.
type ConnectionProvider interface {
	// Acquire returns a healthy connection for the given mode/database, or a
	// ServiceUnavailableError when none can be produced.
	Acquire(ctx context.Context, mode AccessMode, database string, bookmarks []string) (Connection, error)

	// Release returns a connection to the provider after use.
	Release(ctx context.Context, conn Connection) error

	// Close releases all resources held by the provider.
	Close(ctx context.Context) error
}

// Config defines the driver wide settings.
type Config struct {
	// MaxTransactionRetryTime is the ceiling on cumulative retry time of the
	// transaction functions.
	MaxTransactionRetryTime time.Duration

	// InitialRetryDelay is the delay before the first retry.
	InitialRetryDelay time.Duration

	// RetryDelayMultiplier multiplies the delay after every retry.
	RetryDelayMultiplier float64

	// RetryDelayJitter is the relative jitter applied to every delay, e.g. 0.2
	// spreads each delay over +-20% of its nominal value.
	RetryDelayJitter float64

	// Database is the database sessions target when their own config doesn't name one.
	Database string
}

// NewDefaultConfig returns the default driver configuration.
func NewDefaultConfig() *Config {
	return &Config{
		MaxTransactionRetryTime: 30 * time.Second,
		InitialRetryDelay:       time.Second,
		RetryDelayMultiplier:    2.0,
		RetryDelayJitter:        0.2,
	}
}

// ConfigFromClientConfig maps the yaml client config onto a driver Config.
func ConfigFromClientConfig(conf *common.ClientConfig) *Config {
	config := NewDefaultConfig()
	if conf == nil {
		return config
	}
	if conf.MaxTransactionRetryTimeSeconds > 0 {
		config.MaxTransactionRetryTime = time.Duration(conf.MaxTransactionRetryTimeSeconds) * time.Second
	}
	if conf.InitialRetryDelayMillis > 0 {
		config.InitialRetryDelay = time.Duration(conf.InitialRetryDelayMillis) * time.Millisecond
	}
	config.Database = conf.Database
	return config
}

// Driver is the entry point of the package. It owns the connection provider
// and hands out sessions.
type Driver struct {
	provider ConnectionProvider
	config   *Config
	closed   common.ProtectedBool
}

// NewDriver creates a driver on top of the given connection provider.
// A nil config uses the defaults.
func NewDriver(provider ConnectionProvider, config *Config) *Driver {
	if config == nil {
		config = NewDefaultConfig()
	}
	return &Driver{
		provider: provider,
		config:   config,
	}
}

// NewSession creates a new session. Sessions are cheap; create one per unit of
// work and close it when done. A single session must not be used concurrently.
func (d *Driver) NewSession(conf SessionConfig) *Session {
	s := newSession(d.provider, d.config, conf)
	if d.closed.Get() {
		s.closed.Set(true)
	}
	return s
}

// Close shuts down the driver and its connection provider. Idempotent.
func (d *Driver) Close(ctx context.Context) error {
	if !d.closed.SetIfNot(true) {
		return nil
	}
	log.Info("boreal::driver::Close; closing driver")
	return d.provider.Close(ctx)
}
