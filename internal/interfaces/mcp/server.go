// Package mcp 通过 Model Context Protocol 暴露知识库检索工具
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/imrysn/kmti-icad-hub/internal/application/retrieval"
	"github.com/imrysn/kmti-icad-hub/internal/interfaces/http/dto"
	apperrors "github.com/imrysn/kmti-icad-hub/pkg/errors"
	"github.com/imrysn/kmti-icad-hub/pkg/logger"
)

const (
	ToolSearch = "search_knowledge_base"
	ToolStats  = "knowledge_base_stats"
)

// Searcher 知识库检索
type Searcher interface {
	Search(ctx context.Context, query string) (*retrieval.SearchResponse, error)
	Stats(ctx context.Context) (*retrieval.CollectionStats, error)
}

// Deps MCP 服务依赖
type Deps struct {
	Searcher Searcher
	Version  string
}

// NewServer 创建注册了检索工具的 MCP 服务
func NewServer(deps Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"kmti-icad-hub",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithInstructions("iCAD knowledge base: search training spreadsheets and get linked videos, images and 3D models."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool(ToolSearch,
			mcp.WithDescription("Semantically search the iCAD knowledge base. Each result carries its source file, similarity score and linked media."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
		),
		searchTool(deps),
	)

	s.AddTool(
		mcp.NewTool(ToolStats,
			mcp.WithDescription("Report the number of indexed documents and the vector backend in use."),
		),
		statsTool(deps),
	)

	return s
}

// ServeStdio 在标准输入输出上提供服务，直到 ctx 取消
func ServeStdio(ctx context.Context, s *server.MCPServer) error {
	stdio := server.NewStdioServer(s)
	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func searchTool(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return toolError("query is required"), nil
		}

		resp, err := deps.Searcher.Search(ctx, query)
		if err != nil {
			logger.Warn(ctx, "mcp search failed", "query", query, "error", err.Error())
			return toolError(describe(err)), nil
		}
		return toolJSON(dto.ToSearchResponse(resp))
	}
}

func statsTool(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		stats, err := deps.Searcher.Stats(ctx)
		if err != nil {
			return toolError(describe(err)), nil
		}
		return toolJSON(stats)
	}
}

// describe 只向调用方暴露错误码信息，不泄露底层错误
func describe(err error) string {
	appErr := apperrors.AsAppError(err)
	if appErr.Detail != "" {
		return fmt.Sprintf("%s: %s", appErr.Message, appErr.Detail)
	}
	return appErr.Message
}

func toolJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return toolText(string(b)), nil
}

func toolText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func toolError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
