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
	"errors"

	"github.com/borealdb/boreal-go/pkg/common"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// mapError translates a gRPC error into the driver error taxonomy so the
// retry logic can classify it by type. Unreachable transports surface as
// ServiceUnavailable; contention as Transient; caller mistakes as ClientError;
// anything that points at a protocol bug as ProtocolError.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	st, ok := status.FromError(err)
	if !ok {
		return common.NewServiceUnavailableError(err.Error())
	}

	switch st.Code() {
	case codes.Unavailable:
		return common.NewServiceUnavailableError(st.Message())
	case codes.Aborted, codes.ResourceExhausted:
		return common.NewTransientError(st.Message())
	case codes.NotFound:
		// the server reports an expired session lease as NotFound
		return common.NewSessionExpiredError(st.Message())
	case codes.InvalidArgument, codes.FailedPrecondition, codes.AlreadyExists,
		codes.PermissionDenied, codes.Unauthenticated, codes.OutOfRange:
		return common.NewClientError(st.Message())
	case codes.Internal, codes.DataLoss, codes.Unimplemented:
		return common.NewProtocolError(st.Message())
	case codes.DeadlineExceeded:
		return common.NewTransientError(st.Message())
	default:
		return common.NewClientError(st.Message())
	}
}
