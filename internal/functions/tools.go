package functions

import (
	"encoding/json"

	"github.com/pysugar/agent-nexus/internal/db/models"
	openai "github.com/sashabaranov/go-openai"
)

var emptySchema = json.RawMessage(`{"type":"object","properties":{}}`)

// Tools converts stored function rows into chat-completion tool definitions.
func Tools(defs []models.Function) []openai.Tool {
	tools := make([]openai.Tool, 0, len(defs))
	for _, def := range defs {
		params := json.RawMessage(def.Parameters)
		if len(params) == 0 || string(params) == "null" {
			params = emptySchema
		}
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  params,
			},
		})
	}
	return tools
}
