// Package mcpserver exposes the catalog to agents as MCP tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"askdata/internal/catalog"
	"askdata/internal/formatter"
	"askdata/internal/metrics"
)

// Server wraps an MCP server whose tools call one catalog.
type Server struct {
	cat     *catalog.Catalog
	metrics metrics.Backend
	log     *zap.Logger
	mcp     *server.MCPServer
}

type Option func(*Server)

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics flushes m after every tool call.
func WithMetrics(m metrics.Backend) Option {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
	}
}

// New registers the askdata tools on a fresh MCP server.
func New(cat *catalog.Catalog, version string, opts ...Option) *Server {
	s := &Server{cat: cat, metrics: metrics.Nop{}, log: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	s.mcp = server.NewMCPServer("askdata", version,
		server.WithToolCapabilities(false),
		server.WithLogging(),
	)

	s.mcp.AddTool(mcp.NewTool("query",
		mcp.WithDescription("Answer a natural-language question about the loaded data files"),
		mcp.WithString("question", mcp.Required(), mcp.Description("The question to answer")),
		mcp.WithString("mode", mcp.Description("Response style: standard, executive, research or technical")),
		mcp.WithString("format", mcp.Description("text (default) or json for the raw rows")),
		mcp.WithBoolean("debug", mcp.Description("Append the SQL and timing")),
	), s.tool("query", s.query))

	s.mcp.AddTool(mcp.NewTool("list_tables",
		mcp.WithDescription("List every loaded table with its row count"),
	), s.tool("list_tables", s.listTables))

	s.mcp.AddTool(mcp.NewTool("describe_table",
		mcp.WithDescription("Describe one table: columns, types, value lists and purpose"),
		mcp.WithString("table", mcp.Required(), mcp.Description("Name of the table")),
	), s.tool("describe_table", s.describeTable))

	s.mcp.AddTool(mcp.NewTool("load_file",
		mcp.WithDescription("Load a data file, or every supported file in a directory"),
		mcp.WithString("path", mcp.Required(), mcp.Description("File or directory path")),
	), s.tool("load_file", s.loadFile))

	s.mcp.AddTool(mcp.NewTool("statistics",
		mcp.WithDescription("Show database statistics"),
	), s.tool("statistics", s.statistics))

	s.mcp.AddTool(mcp.NewTool("reload",
		mcp.WithDescription("Reload every configured data directory"),
	), s.tool("reload", s.reload))

	return s
}

// MCP returns the underlying server.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

// ServeStdio blocks serving the tools on stdin and stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// tool logs each call and flushes metrics after it.
func (s *Server) tool(name string, h server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		res, err := h(ctx, req)
		if ferr := s.metrics.Flush(); ferr != nil {
			s.log.Warn("metrics flush failed", zap.Error(ferr))
		}
		s.log.Info("tool call",
			zap.String("stage", "mcp"),
			zap.String("tool", name),
			zap.Bool("is_error", res != nil && res.IsError),
			zap.Duration("duration", time.Since(start)),
		)
		return res, err
	}
}

func arguments(req mcp.CallToolRequest) map[string]any {
	if args, ok := req.Params.Arguments.(map[string]any); ok {
		return args
	}
	return nil
}

func stringArg(req mcp.CallToolRequest, key string) string {
	v, _ := arguments(req)[key].(string)
	return strings.TrimSpace(v)
}

func boolArg(req mcp.CallToolRequest, key string) bool {
	switch v := arguments(req)[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	}
	return false
}

func (s *Server) query(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := req.RequireString("question")
	if err != nil || strings.TrimSpace(question) == "" {
		return mcp.NewToolResultError("Missing question parameter"), nil
	}
	mode, ok := formatter.ParseMode(stringArg(req, "mode"))
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("Unknown mode %q", stringArg(req, "mode"))), nil
	}

	ans, err := s.cat.Query(ctx, question, catalog.QueryOptions{Mode: mode, Debug: boolArg(req, "debug")})
	if err != nil {
		return mcp.NewToolResultError(ans.Text), nil
	}
	if stringArg(req, "format") == "json" {
		data, err := json.MarshalIndent(map[string]any{
			"query_id": ans.QueryID,
			"sql":      ans.SQL,
			"columns":  ans.Columns,
			"rows":     ans.Rows,
		}, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to marshal results: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	}
	return mcp.NewToolResultText(ans.Text), nil
}

func (s *Server) listTables(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tables, err := s.cat.ListTables(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("List tables failed: %v", err)), nil
	}
	if len(tables) == 0 {
		return mcp.NewToolResultText("No tables loaded."), nil
	}
	var b strings.Builder
	for _, t := range tables {
		fmt.Fprintf(&b, "%s: %d rows, %d columns\n", t.Name, t.RowCount, len(t.Columns))
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) describeTable(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	table, err := req.RequireString("table")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Missing table parameter: %v", err)), nil
	}
	d, err := s.cat.DescribeTable(ctx, table)
	if errors.Is(err, catalog.ErrUnknownTable) {
		return mcp.NewToolResultError(fmt.Sprintf("Table %q does not exist", table)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Describe failed: %v", err)), nil
	}
	return mcp.NewToolResultText(d.String()), nil
}

func (s *Server) loadFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Missing path parameter: %v", err)), nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Cannot read %s: %v", path, err)), nil
	}

	var loaded map[string]int
	if info.IsDir() {
		loaded, err = s.cat.LoadDirectory(ctx, path, true, nil)
	} else {
		loaded, err = s.cat.LoadFile(ctx, path)
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Load failed: %v", err)), nil
	}
	return mcp.NewToolResultText(FormatLoaded(loaded)), nil
}

func (s *Server) statistics(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.cat.Statistics(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Statistics failed: %v", err)), nil
	}
	return mcp.NewToolResultText(st.String()), nil
}

func (s *Server) reload(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.cat.Reload(ctx); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Reload failed: %v", err)), nil
	}
	return mcp.NewToolResultText("Reloaded."), nil
}

// FormatLoaded renders a load result as sorted "table: rows" lines.
func FormatLoaded(loaded map[string]int) string {
	if len(loaded) == 0 {
		return "No tables loaded."
	}
	names := make([]string, 0, len(loaded))
	for n := range loaded {
		names = append(names, n)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, n := range names {
		fmt.Fprintf(&b, "%s: %d rows\n", n, loaded[n])
	}
	return b.String()
}
