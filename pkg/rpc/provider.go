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

package rpc

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/borealdb/boreal-go/pkg/boreal"
	"github.com/borealdb/boreal-go/pkg/common"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// dialFunc lets the tests stub out the actual gRPC dial.
type dialFunc func(ctx context.Context, target string) (*grpc.ClientConn, error)

func grpcDial(ctx context.Context, target string) (*grpc.ClientConn, error) {
	return grpc.DialContext(ctx, target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock())
}

// Provider is a pooled boreal.ConnectionProvider over gRPC. Servers are picked
// round robin; released connections are kept idle up to the configured bound.
// Cluster role discovery is out of scope, so the access mode only matters to
// the server, not to server selection.
type Provider struct {
	conf *common.ClientConfig
	dial dialFunc

	mu     sync.Mutex
	idle   []*Conn
	next   int
	closed bool
}

var _ boreal.ConnectionProvider = (*Provider)(nil)

// NewProvider creates a provider from a validated client config.
func NewProvider(conf *common.ClientConfig) (*Provider, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &Provider{
		conf: conf,
		dial: grpcDial,
	}, nil
}

// Acquire returns an idle connection when one is available and dials a new one
// otherwise. Dial failures surface as ServiceUnavailable, never as a panic or
// a synchronous throw further up.
func (p *Provider) Acquire(ctx context.Context, mode boreal.AccessMode, database string, bookmarks []string) (boreal.Connection, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, common.NewUsageError("connection provider is closed")
	}
	if n := len(p.idle); n > 0 {
		conn := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return conn, nil
	}
	server := p.conf.Servers[p.next%len(p.conf.Servers)]
	p.next++
	p.mu.Unlock()

	target := net.JoinHostPort(server.Address, server.Port)
	log.WithFields(log.Fields{"target": target, "mode": mode.String()}).Debug("rpc::provider::Acquire; dialing")

	cc, err := p.dial(ctx, target)
	if err != nil {
		return nil, common.NewServiceUnavailableError(fmt.Sprintf("could not connect to %s: %s", target, err))
	}
	return newConn(cc, target), nil
}

// Release returns a connection to the idle pool, closing it when the pool is
// full or the provider already shut down.
func (p *Provider) Release(ctx context.Context, conn boreal.Connection) error {
	c, ok := conn.(*Conn)
	if !ok {
		return common.NewUsageError("released connection does not belong to this provider")
	}

	p.mu.Lock()
	if !p.closed && len(p.idle) < p.conf.MaxIdleConnections {
		p.idle = append(p.idle, c)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	return c.Close(ctx)
}

// Close tears down every idle connection. In-flight connections are closed as
// they are released.
func (p *Provider) Close(ctx context.Context) error {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.closed = true
	p.mu.Unlock()

	var firstErr error
	for _, conn := range idle {
		if err := conn.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
