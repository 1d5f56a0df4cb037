package tools

import (
	"context"
	"strings"

	"github.com/cxbuddy/voicerelay/pkg/core"
	"github.com/cxbuddy/voicerelay/pkg/relay/persona"
)

// HandoffExecutor moves the call to the other persona. The output is
// the filler line the current agent speaks while the client reconnects;
// the actual transfer rides on the HandoffRequest in the outcome.
type HandoffExecutor struct {
	name          string
	target        string
	defaultReason string
	announcement  string
	description   string
}

func NewHandoffToHariExecutor() *HandoffExecutor {
	return &HandoffExecutor{
		name:          ToolHandoffToHari,
		target:        persona.NameHari,
		defaultReason: "account inquiry",
		announcement:  "Connecting you to Hari now...",
		description:   "Transfer the customer to Hari, the account specialist, for balances, transactions, card services and other authenticated account matters.",
	}
}

func NewHandoffToRileyExecutor() *HandoffExecutor {
	return &HandoffExecutor{
		name:          ToolHandoffToRiley,
		target:        persona.NameRiley,
		defaultReason: "general inquiry",
		announcement:  "Let me connect you to Riley...",
		description:   "Transfer the customer back to Riley, the general assistant, for product questions and help center information.",
	}
}

func (e *HandoffExecutor) Name() string {
	return e.name
}

func (e *HandoffExecutor) Definition() core.Tool {
	return core.Tool{
		Type:        core.ToolTypeFunction,
		Name:        e.name,
		Description: e.description,
		Parameters: &core.JSONSchema{
			Type: "object",
			Properties: map[string]core.JSONSchema{
				"reason": {Type: "string", Description: "Why the customer is being transferred"},
			},
		},
	}
}

func (e *HandoffExecutor) Execute(ctx context.Context, input map[string]any) (core.ToolOutcome, error) {
	reason, _ := input["reason"].(string)
	if strings.TrimSpace(reason) == "" {
		reason = e.defaultReason
	}
	return core.ToolOutcome{
		Output:  e.announcement,
		Handoff: &core.HandoffRequest{TargetPersona: e.target, Reason: reason},
	}, nil
}
