package tooling

import (
	"context"
	"encoding/json"
)

// EchoTool reflects its payload back. Used in tests and local mode where no
// external tool services are reachable.
type EchoTool struct {
	ToolName string
	// Fail forces every invocation to error, for failure-path tests.
	Fail error
	// Response overrides the reflected payload when set.
	Response json.RawMessage
}

func (t *EchoTool) Name() string {
	return t.ToolName
}

func (t *EchoTool) Run(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	if t.Fail != nil {
		return nil, t.Fail
	}
	if t.Response != nil {
		return t.Response, nil
	}
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	out, err := json.Marshal(map[string]any{
		"tool":    t.ToolName,
		"success": true,
		"echo":    payload,
	})
	if err != nil {
		return nil, err
	}
	return json.RawMessage(out), nil
}

var _ Tool = (*EchoTool)(nil)
