package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/market-intel/internal/model"
)

func connectInMemory(t *testing.T, ctx context.Context, srv *Server) *sdkmcp.ClientSession {
	t.Helper()
	t1, t2 := sdkmcp.NewInMemoryTransports()
	_, err := srv.MCPServer.Connect(ctx, t1, nil)
	require.NoError(t, err)

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, t2, nil)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() }) //nolint:errcheck
	return session
}

// callTool returns the text of the first content item and whether the
// result is a tool error.
func callTool(t *testing.T, ctx context.Context, session *sdkmcp.ClientSession, name string, args map[string]any) (string, bool) {
	t.Helper()
	res, err := session.CallTool(ctx, &sdkmcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	for _, c := range res.Content {
		if tc, ok := c.(*sdkmcp.TextContent); ok {
			return tc.Text, res.IsError
		}
	}
	t.Fatalf("no text content in %s result", name)
	return "", false
}

func sampleReport() *model.Report {
	return &model.Report{
		ReportID:          "rep-1",
		RunID:             "run-1",
		Status:            model.ReportComplete,
		Target:            "https://acme.test",
		Markdown:          "# Market Intelligence Report: Acme Corp",
		OverallConfidence: 0.72,
	}
}

func TestListTools(t *testing.T) {
	ctx := context.Background()
	session := connectInMemory(t, ctx, New(&mockAnalyzer{}, nil, "test"))

	res, err := session.ListTools(ctx, nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"analyze_business", "get_report"}, names)
}

func TestAnalyzeBusiness(t *testing.T) {
	ctx := context.Background()
	an := &mockAnalyzer{}
	an.On("Execute", mock.Anything, model.Input{
		URL:      "https://acme.test",
		Keywords: []string{"widgets"},
	}).Return(sampleReport())

	session := connectInMemory(t, ctx, New(an, nil, "test"))
	text, isErr := callTool(t, ctx, session, "analyze_business", map[string]any{
		"url":      " https://acme.test ",
		"keywords": []string{"widgets"},
	})
	require.False(t, isErr, text)

	var rep model.Report
	require.NoError(t, json.Unmarshal([]byte(text), &rep))
	assert.Equal(t, "rep-1", rep.ReportID)
	assert.InDelta(t, 0.72, rep.OverallConfidence, 1e-9)
	an.AssertExpectations(t)
}

func TestAnalyzeBusiness_Aborted(t *testing.T) {
	ctx := context.Background()
	an := &mockAnalyzer{}
	an.On("Execute", mock.Anything, mock.Anything).Return(nil)

	session := connectInMemory(t, ctx, New(an, nil, "test"))
	text, isErr := callTool(t, ctx, session, "analyze_business", map[string]any{"description": "corner bakery"})
	assert.True(t, isErr)
	assert.Contains(t, text, "aborted")
}

func TestAnalyzeBusiness_RequiresInput(t *testing.T) {
	ctx := context.Background()
	an := &mockAnalyzer{}

	session := connectInMemory(t, ctx, New(an, nil, "test"))
	text, isErr := callTool(t, ctx, session, "analyze_business", map[string]any{"url": "  "})
	assert.True(t, isErr)
	assert.Contains(t, text, "required")
	an.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
}

func TestGetReport_ByRunID(t *testing.T) {
	ctx := context.Background()
	rs := &mockReports{}
	rs.On("GetReport", mock.Anything, "run-1").Return(sampleReport(), nil)

	session := connectInMemory(t, ctx, New(&mockAnalyzer{}, rs, "test"))
	text, isErr := callTool(t, ctx, session, "get_report", map[string]any{"run_id": "run-1"})
	require.False(t, isErr, text)
	assert.Contains(t, text, `"report_id":"rep-1"`)
}

func TestGetReport_ByTarget(t *testing.T) {
	ctx := context.Background()
	rs := &mockReports{}
	rs.On("Read", mock.Anything, "report:https://acme.test").
		Return(json.RawMessage(`{"report_id":"rep-7"}`), nil)

	session := connectInMemory(t, ctx, New(&mockAnalyzer{}, rs, "test"))
	text, isErr := callTool(t, ctx, session, "get_report", map[string]any{"target": "HTTPS://ACME.test"})
	require.False(t, isErr, text)
	assert.JSONEq(t, `{"report_id":"rep-7"}`, text)
}

func TestGetReport_Errors(t *testing.T) {
	ctx := context.Background()
	rs := &mockReports{}
	rs.On("Read", mock.Anything, "report:unknown").Return(nil, nil)
	rs.On("GetReport", mock.Anything, "run-2").Return(nil, nil)
	rs.On("GetReport", mock.Anything, "run-3").Return(nil, errors.New("not found"))

	session := connectInMemory(t, ctx, New(&mockAnalyzer{}, rs, "test"))

	text, isErr := callTool(t, ctx, session, "get_report", map[string]any{"target": "unknown"})
	assert.True(t, isErr)
	assert.Contains(t, text, "no report for unknown")

	text, isErr = callTool(t, ctx, session, "get_report", map[string]any{"run_id": "run-2"})
	assert.True(t, isErr)
	assert.Contains(t, text, "has no report")

	text, isErr = callTool(t, ctx, session, "get_report", map[string]any{"run_id": "run-3"})
	assert.True(t, isErr)
	assert.Contains(t, text, "get report run-3")

	text, isErr = callTool(t, ctx, session, "get_report", map[string]any{})
	assert.True(t, isErr)
	assert.Contains(t, text, "required")
}

func TestGetReport_NoStore(t *testing.T) {
	ctx := context.Background()
	session := connectInMemory(t, ctx, New(&mockAnalyzer{}, nil, "test"))

	text, isErr := callTool(t, ctx, session, "get_report", map[string]any{"run_id": "run-1"})
	assert.True(t, isErr)
	assert.Contains(t, text, "no report store")
}
