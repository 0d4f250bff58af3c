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
	"github.com/borealdb/boreal-go/pkg/boreal"
	"github.com/borealdb/boreal-go/pkg/common"
	"google.golang.org/protobuf/types/known/structpb"
)

// The wire messages of the boreal.v1.Graph service are protobuf Struct values.
// Query parameters and record values map onto structpb.Value, so the driver
// carries no generated stubs of its own.

func encodeRunRequest(session string, cmd boreal.Command, opts boreal.RunOptions) (*structpb.Struct, error) {
	fields := map[string]interface{}{
		"session": session,
		"query":   cmd.Query,
	}
	addScope(fields, opts)

	if len(cmd.Params) > 0 {
		fields["params"] = cmd.Params
	}

	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, common.NewClientError("query parameters are not encodable: " + err.Error())
	}
	return req, nil
}

func encodeBeginRequest(session string, opts boreal.RunOptions) (*structpb.Struct, error) {
	fields := map[string]interface{}{
		"session": session,
	}
	addScope(fields, opts)

	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, common.NewClientError("transaction metadata is not encodable: " + err.Error())
	}
	return req, nil
}

func encodeSessionRequest(session string) *structpb.Struct {
	req, _ := structpb.NewStruct(map[string]interface{}{"session": session})
	return req
}

func addScope(fields map[string]interface{}, opts boreal.RunOptions) {
	if len(opts.Bookmarks) > 0 {
		bookmarks := make([]interface{}, len(opts.Bookmarks))
		for i, b := range opts.Bookmarks {
			bookmarks[i] = b
		}
		fields["bookmarks"] = bookmarks
	}
	fields["mode"] = opts.Mode.String()
	if opts.Database != "" {
		fields["database"] = opts.Database
	}
	if opts.Config.Timeout > 0 {
		fields["timeout_ms"] = float64(opts.Config.Timeout.Milliseconds())
	}
	if len(opts.Config.Metadata) > 0 {
		fields["metadata"] = opts.Config.Metadata
	}
}

// dispatchStreamMessage routes one message of a Run stream into the observer.
// It returns true once the summary arrived, i.e. the stream is complete.
func dispatchStreamMessage(msg *structpb.Struct, server string, cmd boreal.Command, obs boreal.StreamObserver) (bool, error) {
	fields := msg.GetFields()
	kind := fields["type"].GetStringValue()

	switch kind {
	case "keys":
		values := fields["keys"].GetListValue().GetValues()
		keys := make([]string, len(values))
		for i, v := range values {
			keys[i] = v.GetStringValue()
		}
		obs.OnKeys(keys)
		return false, nil

	case "record":
		values := fields["values"].GetListValue().GetValues()
		record := make([]interface{}, len(values))
		for i, v := range values {
			record[i] = v.AsInterface()
		}
		obs.OnRecord(record)
		return false, nil

	case "summary":
		summary := &boreal.ResultSummary{
			Query:    cmd,
			Bookmark: fields["bookmark"].GetStringValue(),
			Server:   server,
		}
		if meta := fields["metadata"].GetStructValue(); meta != nil {
			summary.Metadata = meta.AsMap()
		}
		obs.OnSuccess(summary)
		return true, nil

	default:
		return false, common.NewProtocolError("unexpected stream message type: " + kind)
	}
}
