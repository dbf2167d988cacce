package main

import (
	"context"
	"fmt"

	"github.com/agentcore-go/agentcore/tool"
)

const weatherInputSchema = `{
	"type": "object",
	"properties": {"city": {"type": "string"}},
	"required": ["city"]
}`

func weatherTool() *tool.Definition {
	schema, err := tool.CompileSchema("demo-weather-input", []byte(weatherInputSchema))
	if err != nil {
		panic(fmt.Sprintf("demo: compile weather schema: %v", err))
	}
	return &tool.Definition{
		Name:            "get_weather",
		Description:     "Returns a canned weather report for a city.",
		InputSchema:     schema,
		InputSchemaJSON: []byte(weatherInputSchema),
		Execute: func(ctx context.Context, input map[string]any, ec tool.ExecuteContext) (tool.Result, error) {
			city, _ := input["city"].(string)
			if city == "" {
				city = "that city"
			}
			return tool.Result{Output: fmt.Sprintf("It's a sunny 22C in %s.", city)}, nil
		},
	}
}
