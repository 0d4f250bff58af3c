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
	"io"

	"github.com/borealdb/boreal-go/pkg/boreal"
	"github.com/borealdb/boreal-go/pkg/common"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	methodRun      = "/boreal.v1.Graph/Run"
	methodBegin    = "/boreal.v1.Graph/Begin"
	methodCommit   = "/boreal.v1.Graph/Commit"
	methodRollback = "/boreal.v1.Graph/Rollback"
	methodReset    = "/boreal.v1.Graph/Reset"
)

var runStreamDesc = &grpc.StreamDesc{
	StreamName:    "Run",
	ServerStreams: true,
}

// Conn is one boreal.Connection over a gRPC client connection. The server
// keeps per-session state (open transactions, staged writes) keyed by the
// session id sent with every request, so a Conn must be owned by exactly one
// holder at a time, which the driver core guarantees.
type Conn struct {
	cc      *grpc.ClientConn
	server  string
	session string
}

var _ boreal.Connection = (*Conn)(nil)

func newConn(cc *grpc.ClientConn, server string) *Conn {
	return &Conn{
		cc:      cc,
		server:  server,
		session: uuid.New().String(),
	}
}

// Run submits a query and pumps the response stream into the observer from a
// background goroutine. The returned error covers submission only.
func (c *Conn) Run(ctx context.Context, cmd boreal.Command, opts boreal.RunOptions, obs boreal.StreamObserver) error {
	req, err := encodeRunRequest(c.session, cmd, opts)
	if err != nil {
		return err
	}

	stream, err := c.cc.NewStream(ctx, runStreamDesc, methodRun)
	if err != nil {
		return mapError(err)
	}
	if err := stream.SendMsg(req); err != nil {
		return mapError(err)
	}
	if err := stream.CloseSend(); err != nil {
		return mapError(err)
	}

	go c.pump(stream, cmd, obs)
	return nil
}

// pump drains one Run stream into the observer. The observer's exactly-once
// completion guard makes stray trailing messages harmless.
func (c *Conn) pump(stream grpc.ClientStream, cmd boreal.Command, obs boreal.StreamObserver) {
	complete := false
	for {
		msg := &structpb.Struct{}
		err := stream.RecvMsg(msg)
		if err == io.EOF {
			if !complete {
				obs.OnFailure(common.NewProtocolError("result stream ended without a summary"))
			}
			return
		}
		if err != nil {
			obs.OnFailure(mapError(err))
			return
		}

		done, err := dispatchStreamMessage(msg, c.server, cmd, obs)
		if err != nil {
			obs.OnFailure(err)
			return
		}
		if done {
			complete = true
		}
	}
}

// BeginTx starts an explicit transaction for this connection's session.
func (c *Conn) BeginTx(ctx context.Context, opts boreal.RunOptions) error {
	req, err := encodeBeginRequest(c.session, opts)
	if err != nil {
		return err
	}
	resp := &structpb.Struct{}
	if err := c.cc.Invoke(ctx, methodBegin, req, resp); err != nil {
		return mapError(err)
	}
	return nil
}

// CommitTx commits the open transaction and returns the server's bookmark token.
func (c *Conn) CommitTx(ctx context.Context) (string, error) {
	resp := &structpb.Struct{}
	if err := c.cc.Invoke(ctx, methodCommit, encodeSessionRequest(c.session), resp); err != nil {
		return "", mapError(err)
	}
	return resp.GetFields()["bookmark"].GetStringValue(), nil
}

// RollbackTx rolls back the open transaction.
func (c *Conn) RollbackTx(ctx context.Context) error {
	resp := &structpb.Struct{}
	if err := c.cc.Invoke(ctx, methodRollback, encodeSessionRequest(c.session), resp); err != nil {
		return mapError(err)
	}
	return nil
}

// Reset clears leftover server side session state before the connection is pooled again.
func (c *Conn) Reset(ctx context.Context) error {
	resp := &structpb.Struct{}
	if err := c.cc.Invoke(ctx, methodReset, encodeSessionRequest(c.session), resp); err != nil {
		return mapError(err)
	}
	return nil
}

// Close tears down the underlying gRPC connection.
func (c *Conn) Close(ctx context.Context) error {
	log.WithFields(log.Fields{"server": c.server}).Debug("rpc::conn::Close; closing connection")
	return c.cc.Close()
}

// Server returns the remote address.
func (c *Conn) Server() string {
	return c.server
}
