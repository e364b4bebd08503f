package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// ErrorResponse is used for consistent error reporting
func ErrorResponse(message string) *mcp.CallToolResult {
	return mcp.NewToolResultError(message)
}

// jsonResult marshals v as the text of a tool result.
func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return ErrorResponse("Failed to generate result"), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// decodeArg converts a structured argument into v by round-tripping it
// through JSON.
func decodeArg(req mcp.CallToolRequest, name string, v interface{}) error {
	raw, ok := req.Params.Arguments[name]
	if !ok || raw == nil {
		return fmt.Errorf("parameter %s not found", name)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %v", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %v", name, err)
	}
	return nil
}

// requireArgs fails when any of the named arguments is absent. mcp-go does
// not enforce required parameters itself.
func requireArgs(req mcp.CallToolRequest, names ...string) error {
	var missing []string
	for _, name := range names {
		if v, ok := req.Params.Arguments[name]; !ok || v == nil {
			missing = append(missing, name)
		}
	}
	switch len(missing) {
	case 0:
		return nil
	case 1:
		return fmt.Errorf("parameter %s not found", missing[0])
	}
	return fmt.Errorf("parameters %s not found", strings.Join(missing, ", "))
}

// stringList reads an array of strings, also accepting a comma-separated
// string. A missing argument yields nil.
func stringList(req mcp.CallToolRequest, name string) []string {
	raw, ok := req.Params.Arguments[name]
	if !ok || raw == nil {
		return nil
	}
	var parts []string
	switch v := raw.(type) {
	case string:
		parts = strings.Split(v, ",")
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				parts = append(parts, s)
			}
		}
	case []string:
		parts = v
	}
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
