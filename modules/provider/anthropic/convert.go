package anthropic

import (
	"encoding/json"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/meditreat/meditreat/internal/provider"
)

// params maps a provider request onto the Messages API. System messages
// anywhere in the list are hoisted into the System field because the API
// accepts no inline system turns.
func (a *Anthropic) params(req provider.CompletionRequest) sdk.MessageNewParams {
	p := sdk.MessageNewParams{
		Model:     sdk.Model(a.config.Model),
		MaxTokens: int64(a.config.MaxTokens),
	}
	if req.MaxTokens > 0 {
		p.MaxTokens = int64(req.MaxTokens)
	}
	if req.Temperature != nil {
		p.Temperature = sdk.Float(*req.Temperature)
	}
	switch {
	case req.TopP != nil:
		p.TopP = sdk.Float(*req.TopP)
	case a.config.TopP != nil:
		p.TopP = sdk.Float(*a.config.TopP)
	}
	if len(req.Stop) > 0 {
		p.StopSequences = req.Stop
	}

	for i := 0; i < len(req.Messages); i++ {
		m := req.Messages[i]
		switch m.Role {
		case provider.MessageRoleSystem:
			p.System = append(p.System, sdk.TextBlockParam{Text: m.Content})
		case provider.MessageRoleUser:
			p.Messages = append(p.Messages, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case provider.MessageRoleAssistant:
			p.Messages = append(p.Messages, assistantMessage(m))
		case provider.MessageRoleTool:
			// Results for one assistant turn travel in a single user message.
			var blocks []sdk.ContentBlockParamUnion
			for ; i < len(req.Messages) && req.Messages[i].Role == provider.MessageRoleTool; i++ {
				blocks = append(blocks, sdk.NewToolResultBlock(req.Messages[i].ToolID, req.Messages[i].Content, false))
			}
			i--
			p.Messages = append(p.Messages, sdk.NewUserMessage(blocks...))
		}
	}

	for _, t := range req.Tools {
		tool := &sdk.ToolParam{Name: t.Name, InputSchema: inputSchema(t.Parameters)}
		if t.Description != "" {
			tool.Description = sdk.String(t.Description)
		}
		p.Tools = append(p.Tools, sdk.ToolUnionParam{OfTool: tool})
	}
	return p
}

func assistantMessage(m provider.LLMMessage) sdk.MessageParam {
	var blocks []sdk.ContentBlockParamUnion
	if m.Content != "" {
		blocks = append(blocks, sdk.NewTextBlock(m.Content))
	}
	for _, tc := range m.ToolCalls {
		args := tc.Arguments
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		blocks = append(blocks, sdk.NewToolUseBlock(tc.ID, args, tc.Name))
	}
	return sdk.NewAssistantMessage(blocks...)
}

// inputSchema keeps properties and required, and passes every other JSON
// Schema keyword through ExtraFields.
func inputSchema(raw json.RawMessage) sdk.ToolInputSchemaParam {
	var schema map[string]any
	if len(raw) == 0 || json.Unmarshal(raw, &schema) != nil {
		return sdk.ToolInputSchemaParam{}
	}

	var out sdk.ToolInputSchemaParam
	out.Properties = schema["properties"]
	if req, ok := schema["required"].([]any); ok {
		for _, r := range req {
			if s, ok := r.(string); ok {
				out.Required = append(out.Required, s)
			}
		}
	}
	delete(schema, "properties")
	delete(schema, "required")
	delete(schema, "type")
	if len(schema) > 0 {
		out.ExtraFields = schema
	}
	return out
}

func fromMessage(msg *sdk.Message) provider.CompletionResponse {
	var text []string
	out := provider.CompletionResponse{
		FinishReason: stopReason(msg.StopReason),
		Usage: provider.TokenUsage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case sdk.TextBlock:
			text = append(text, b.Text)
		case sdk.ToolUseBlock:
			out.ToolCalls = append(out.ToolCalls, provider.ToolCall{ID: b.ID, Name: b.Name, Arguments: b.Input})
		}
	}
	out.Content = strings.Join(text, "\n")
	return out
}

func stopReason(r sdk.StopReason) provider.FinishReason {
	switch r {
	case sdk.StopReasonMaxTokens:
		return provider.FinishReasonLength
	case sdk.StopReasonToolUse:
		return provider.FinishReasonToolUse
	case sdk.StopReasonRefusal:
		return provider.FinishReasonFiltering
	default:
		return provider.FinishReasonStop
	}
}
