package conversation

import (
	"encoding/json"

	"github.com/cloudwego/eino/schema"

	"github.com/penguin-run/penguin/internal/agent"
	"github.com/penguin-run/penguin/internal/tool"
	"github.com/penguin-run/penguin/pkg/types"
)

// convertMessage turns a stored message and its parts into the eino
// message the gateway expects. A message is one of: plain text (user or
// assistant), an assistant turn that issued tool calls, or a tool-role
// message carrying a tool's result back to the model.
func convertMessage(msg *types.Message, parts []types.Part) *schema.Message {
	role := schema.Assistant
	switch msg.Role {
	case "user":
		role = schema.User
	case "system":
		role = schema.System
	case "tool":
		role = schema.Tool
	}

	var content string
	var toolCalls []schema.ToolCall
	var toolCallID string

	for _, part := range parts {
		switch p := part.(type) {
		case *types.TextPart:
			content += p.Text
		case *types.ToolPart:
			if msg.Role == "assistant" {
				inputJSON, _ := json.Marshal(p.Input)
				toolCalls = append(toolCalls, schema.ToolCall{
					ID: p.ToolCallID,
					Function: schema.FunctionCall{
						Name:      p.ToolName,
						Arguments: string(inputJSON),
					},
				})
			} else {
				toolCallID = p.ToolCallID
				if p.Output != nil {
					content = *p.Output
				} else if p.Error != nil {
					content = "Error: " + *p.Error
				}
			}
		}
	}

	einoMsg := &schema.Message{Role: role, Content: content, ToolCalls: toolCalls}
	if toolCallID != "" {
		einoMsg.ToolCallID = toolCallID
	}
	return einoMsg
}

// resolveTools returns the eino tool definitions for tools the agent has
// enabled, when the model supports tool use at all.
func resolveTools(registry *tool.Registry, ag *agent.Agent, model *types.Model) []*schema.ToolInfo {
	if registry == nil || model == nil || !model.SupportsTools {
		return nil
	}

	var result []*schema.ToolInfo
	for _, t := range registry.List() {
		if ag != nil && !ag.ToolEnabled(t.ID()) {
			continue
		}
		params := parseJSONSchemaToParams(t.Parameters())
		result = append(result, &schema.ToolInfo{
			Name:        t.ID(),
			Desc:        t.Description(),
			ParamsOneOf: schema.NewParamsOneOfByParams(params),
		})
	}
	return result
}

// parseJSONSchemaToParams converts a tool's JSON Schema parameters into
// eino's ParameterInfo shape.
func parseJSONSchemaToParams(schemaJSON json.RawMessage) map[string]*schema.ParameterInfo {
	var jsonSchema struct {
		Properties map[string]struct {
			Type        string `json:"type"`
			Description string `json:"description"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(schemaJSON, &jsonSchema); err != nil {
		return nil
	}

	required := make(map[string]bool, len(jsonSchema.Required))
	for _, r := range jsonSchema.Required {
		required[r] = true
	}

	params := make(map[string]*schema.ParameterInfo, len(jsonSchema.Properties))
	for name, prop := range jsonSchema.Properties {
		paramType := schema.String
		switch prop.Type {
		case "integer":
			paramType = schema.Integer
		case "number":
			paramType = schema.Number
		case "boolean":
			paramType = schema.Boolean
		case "array":
			paramType = schema.Array
		case "object":
			paramType = schema.Object
		}
		params[name] = &schema.ParameterInfo{Type: paramType, Desc: prop.Description, Required: required[name]}
	}
	return params
}
