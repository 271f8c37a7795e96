package mcp

import (
	"encoding/json"
	"fmt"

	"avmcp/internal/errors"
)

// ToolResult is the tools/call result payload.
type ToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError"`
}

// ContentBlock is a single piece of tool output.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Text returns the concatenated text content.
func (r *ToolResult) Text() string {
	var out string
	for _, c := range r.Content {
		out += c.Text
	}
	return out
}

func jsonResult(v interface{}) *ToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &ToolResult{
			Content: []ContentBlock{{Type: "text", Text: fmt.Sprintf(`{"error": %q}`, "Unexpected error: "+err.Error())}},
			IsError: true,
		}
	}
	return &ToolResult{Content: []ContentBlock{{Type: "text", Text: string(data)}}}
}

func errorResult(v interface{}) *ToolResult {
	res := jsonResult(v)
	res.IsError = true
	return res
}

// describeToolError turns err into the message returned to the caller and
// logs it at a level matching its kind.
func (s *MCPServer) describeToolError(err error, action, subjectKey, subject string) string {
	switch {
	case errors.IsRateLimited(err):
		s.logger.Warn("Rate limit reached", subjectKey, subject, "error", err.Error())
		return err.Error()
	case errors.IsServiceError(err):
		s.logger.Error(action, subjectKey, subject, "code", string(errors.CodeOf(err)), "error", err.Error())
		return fmt.Sprintf("%s: %s", action, err.Error())
	default:
		s.logger.Error("Unexpected error", subjectKey, subject, "error", err.Error())
		return fmt.Sprintf("Unexpected error: %s", err.Error())
	}
}
