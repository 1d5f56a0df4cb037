package tools

import (
	"context"
	"encoding/json"

	"github.com/cxbuddy/voicerelay/pkg/core"
)

// ProductOwnershipExecutor answers whether the customer holds a given
// product. The demo portfolio carries only the savings account and the
// FlexiCard, so every lookup comes back negative with a recommendation
// to hand the customer onward.
type ProductOwnershipExecutor struct{}

func (ProductOwnershipExecutor) Name() string {
	return ToolCheckProductOwnership
}

func (ProductOwnershipExecutor) Definition() core.Tool {
	return core.Tool{
		Type:        core.ToolTypeFunction,
		Name:        ToolCheckProductOwnership,
		Description: "Check whether the customer already holds a GXS product such as a loan, investment or insurance plan.",
		Parameters: &core.JSONSchema{
			Type: "object",
			Properties: map[string]core.JSONSchema{
				"product_type": {Type: "string", Description: "The product to check, for example loan, investment or insurance"},
			},
			Required: []string{"product_type"},
		},
	}
}

func (ProductOwnershipExecutor) Execute(ctx context.Context, input map[string]any) (core.ToolOutcome, error) {
	productType, _ := input["product_type"].(string)
	encoded, err := json.Marshal(struct {
		HasProduct    bool   `json:"has_product"`
		ProductType   string `json:"product_type"`
		ShouldHandoff bool   `json:"should_handoff"`
	}{HasProduct: false, ProductType: productType, ShouldHandoff: true})
	if err != nil {
		return core.ToolOutcome{}, err
	}
	return core.ToolOutcome{Output: string(encoded)}, nil
}
