// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/openchoreo/statepatch/internal/coerce"
	"github.com/openchoreo/statepatch/internal/patch"
)

// StateReader exposes the committed document and its shape to tools.
type StateReader interface {
	State() any
	Shape() *coerce.Shape
}

// Tools exposes a service as MCP tools.
type Tools struct {
	Dispatcher Dispatcher
	State      StateReader
}

// NewMCPServer creates an MCP server with the statepatch tools registered.
func NewMCPServer(t *Tools, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "statepatch",
		Version: version,
	}, nil)
	t.Register(server)
	return server
}

// NewMCPHandler serves the tools over streamable HTTP.
func NewMCPHandler(t *Tools, version string) http.Handler {
	server := NewMCPServer(t, version)
	return mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return server
	}, nil)
}

// Register adds every tool to s.
func (t *Tools) Register(s *mcp.Server) {
	t.RegisterApplyCommands(s)
	t.RegisterReadState(s)
	t.RegisterDescribeShape(s)
}

func (t *Tools) RegisterApplyCommands(s *mcp.Server) {
	mcp.AddTool(s, &mcp.Tool{
		Name: "apply_commands",
		Description: "Apply an ordered list of edit commands to the committed document. " +
			"Each command is an object with op (add, remove, replace, delta, move, copy, test), " +
			"a JSON Pointer path, an optional from pointer for move and copy, and a value. " +
			"Missing intermediate containers are created. Failed commands are reported " +
			"individually and never undo the others. Returns counts, failures and the merge patch of the change.",
		InputSchema: createSchema(map[string]any{
			"commands": map[string]any{
				"type":        "array",
				"description": "Commands to apply in order",
				"items":       map[string]any{"type": "object"},
			},
		}, []string{"commands"}),
	}, func(ctx context.Context, req *mcp.CallToolRequest, args struct {
		Commands []any `json:"commands"`
	}) (*mcp.CallToolResult, any, error) {
		outcome, err := t.Dispatcher.Submit(ctx, Batch{Commands: args.Commands})
		if err != nil && !errors.Is(err, ErrSinkFailed) {
			return nil, nil, err
		}
		// the full document is available through read_state
		summary := *outcome
		summary.Document = nil
		return handleToolResult(summary, nil)
	})
}

func (t *Tools) RegisterReadState(s *mcp.Server) {
	mcp.AddTool(s, &mcp.Tool{
		Name: "read_state",
		Description: "Read the committed document. Optionally provide a JSON Pointer " +
			"(e.g. '/creator/host_energy') to read a single value.",
		InputSchema: createSchema(map[string]any{
			"pointer": stringProperty("Optional: JSON Pointer to the value to read"),
		}, nil),
	}, func(ctx context.Context, req *mcp.CallToolRequest, args struct {
		Pointer string `json:"pointer"`
	}) (*mcp.CallToolResult, any, error) {
		doc := t.State.State()
		if args.Pointer == "" {
			return handleToolResult(map[string]any{"value": doc}, nil)
		}
		value, ok := patch.Get(doc, args.Pointer)
		if !ok {
			return nil, nil, fmt.Errorf("%w: %s", ErrPointerNotFound, args.Pointer)
		}
		return handleToolResult(map[string]any{"pointer": args.Pointer, "value": value}, nil)
	})
}

func (t *Tools) RegisterDescribeShape(s *mcp.Server) {
	mcp.AddTool(s, &mcp.Tool{
		Name: "describe_shape",
		Description: "Describe the declared shape committed documents are coerced to: " +
			"field kinds, defaults, numeric bounds, list limits and union variants.",
		InputSchema: createSchema(map[string]any{}, nil),
	}, func(ctx context.Context, req *mcp.CallToolRequest, args struct{}) (*mcp.CallToolResult, any, error) {
		shape := t.State.Shape()
		if shape == nil {
			return nil, nil, ErrNoShape
		}
		return handleToolResult(coerce.Describe(shape), nil)
	})
}

func handleToolResult(result any, err error) (*mcp.CallToolResult, any, error) {
	if err != nil {
		return nil, nil, err
	}
	jsonData, err := json.Marshal(result)
	if err != nil {
		return nil, nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonData)},
		},
	}, result, nil
}

func stringProperty(description string) map[string]any {
	return map[string]any{
		"type":        "string",
		"description": description,
	}
}

func createSchema(properties map[string]any, required []string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
