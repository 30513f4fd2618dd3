// Package mcpserver exposes the pipeline as MCP tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/market-intel/internal/model"
	"github.com/sells-group/market-intel/internal/pipeline"
)

// Analyzer runs one pipeline execution. *pipeline.Orchestrator satisfies it.
type Analyzer interface {
	Execute(ctx context.Context, in model.Input) *model.Report
}

// Reports looks up stored reports. store.Store satisfies it.
type Reports interface {
	Read(ctx context.Context, name string) (json.RawMessage, error)
	GetReport(ctx context.Context, runID string) (*model.Report, error)
}

// Server wraps the MCP SDK server with the market-intel tools registered.
type Server struct {
	MCPServer *sdkmcp.Server

	analyzer Analyzer
	reports  Reports
	log      *zap.Logger
}

// New creates the server. reports may be nil, in which case get_report
// reports that no store is configured.
func New(analyzer Analyzer, reports Reports, version string) *Server {
	s := &Server{
		MCPServer: sdkmcp.NewServer(&sdkmcp.Implementation{Name: "market-intel", Version: version}, nil),
		analyzer:  analyzer,
		reports:   reports,
		log:       zap.L().With(zap.String("component", "mcp")),
	}
	s.registerTools()
	return s
}

// Run serves over stdio until ctx is done or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.MCPServer.Run(ctx, &sdkmcp.StdioTransport{})
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "analyze_business",
		Description: "Run the four-phase market intelligence pipeline for a business URL or description and return the consolidated report.",
	}, s.handleAnalyze)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_report",
		Description: "Fetch a stored report by run id, or the latest report for a target URL or description.",
	}, s.handleGetReport)
}

type analyzeInput struct {
	URL         string   `json:"url,omitempty" jsonschema:"business website URL"`
	Description string   `json:"description,omitempty" jsonschema:"free-text description of the business"`
	Content     string   `json:"content,omitempty" jsonschema:"page text, when already fetched"`
	HTML        string   `json:"html,omitempty" jsonschema:"page HTML, when already fetched"`
	Keywords    []string `json:"keywords,omitempty" jsonschema:"seed keywords for competitor search"`
}

type getReportInput struct {
	RunID  string `json:"run_id,omitempty" jsonschema:"run id returned by a previous analysis"`
	Target string `json:"target,omitempty" jsonschema:"URL or description the report was generated for"`
}

func (s *Server) handleAnalyze(ctx context.Context, _ *sdkmcp.CallToolRequest, in analyzeInput) (*sdkmcp.CallToolResult, any, error) {
	input := model.Input{
		URL:         strings.TrimSpace(in.URL),
		Description: strings.TrimSpace(in.Description),
		TextContent: in.Content,
		HTML:        in.HTML,
		Keywords:    in.Keywords,
	}
	if !input.Usable() {
		return nil, nil, eris.New("url, description or content is required")
	}

	s.log.Info("mcp: analyze_business", zap.String("target", input.Target()))
	rep := s.analyzer.Execute(ctx, input)
	if rep == nil {
		return nil, nil, eris.Errorf("analysis of %q aborted; see server logs", input.Target())
	}
	return jsonResult(rep)
}

func (s *Server) handleGetReport(ctx context.Context, _ *sdkmcp.CallToolRequest, in getReportInput) (*sdkmcp.CallToolResult, any, error) {
	if s.reports == nil {
		return nil, nil, eris.New("no report store configured")
	}

	switch {
	case in.RunID != "":
		rep, err := s.reports.GetReport(ctx, in.RunID)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "get report %s", in.RunID)
		}
		if rep == nil {
			return nil, nil, eris.Errorf("run %s has no report", in.RunID)
		}
		return jsonResult(rep)
	case strings.TrimSpace(in.Target) != "":
		raw, err := s.reports.Read(ctx, pipeline.ReportKey(in.Target))
		if err != nil {
			return nil, nil, eris.Wrapf(err, "read report for %s", in.Target)
		}
		if raw == nil {
			return nil, nil, eris.Errorf("no report for %s", in.Target)
		}
		return textResult(string(raw)), nil, nil
	default:
		return nil, nil, eris.New("run_id or target is required")
	}
}

func jsonResult(v any) (*sdkmcp.CallToolResult, any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, nil, eris.Wrap(err, "marshal tool result")
	}
	return textResult(string(b)), nil, nil
}

func textResult(text string) *sdkmcp.CallToolResult {
	return &sdkmcp.CallToolResult{Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: text}}}
}
