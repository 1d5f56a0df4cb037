package tools

import (
	"context"

	"github.com/cxbuddy/voicerelay/pkg/core"
	"github.com/cxbuddy/voicerelay/pkg/relay/knowledge"
)

type KnowledgeSearchExecutor struct {
	store *knowledge.Store
}

func NewKnowledgeSearchExecutor(store *knowledge.Store) *KnowledgeSearchExecutor {
	return &KnowledgeSearchExecutor{store: store}
}

func (e *KnowledgeSearchExecutor) Name() string {
	return ToolSearchHelpCenter
}

func (e *KnowledgeSearchExecutor) Definition() core.Tool {
	return core.Tool{
		Type:        core.ToolTypeFunction,
		Name:        ToolSearchHelpCenter,
		Description: "Search the GXS Bank help center for information about accounts, cards, loans, interest rates, fees and policies.",
		Parameters: &core.JSONSchema{
			Type: "object",
			Properties: map[string]core.JSONSchema{
				"query": {Type: "string", Description: "What the customer wants to know, in their own words"},
			},
			Required: []string{"query"},
		},
	}
}

func (e *KnowledgeSearchExecutor) Execute(ctx context.Context, input map[string]any) (core.ToolOutcome, error) {
	query, _ := input["query"].(string)
	return core.ToolOutcome{Output: e.store.Search(query)}, nil
}
