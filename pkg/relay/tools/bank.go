package tools

import (
	"context"

	"github.com/cxbuddy/voicerelay/pkg/core"
	"github.com/cxbuddy/voicerelay/pkg/relay/auth"
	"github.com/cxbuddy/voicerelay/pkg/relay/bank"
)

// bankExecutor adapts one banking API call to the Executor interface.
// The caller's bearer token travels in the request context as an
// auth.Principal; the client turns a missing token into the
// not-authenticated reply, so guests get a spoken refusal rather than
// an error.
type bankExecutor struct {
	def    core.Tool
	client *bank.Client
	call   func(ctx context.Context, c *bank.Client, token string, input map[string]any) string
}

func (e *bankExecutor) Name() string {
	return e.def.Name
}

func (e *bankExecutor) Definition() core.Tool {
	return e.def
}

func (e *bankExecutor) Execute(ctx context.Context, input map[string]any) (core.ToolOutcome, error) {
	principal, _ := auth.PrincipalFrom(ctx)
	return core.ToolOutcome{Output: e.call(ctx, e.client, principal.Token, input)}, nil
}

// BankExecutors returns the executors backed by the banking API.
func BankExecutors(client *bank.Client) []Executor {
	noArgs := func(name, description string) core.Tool {
		return core.Tool{
			Type:        core.ToolTypeFunction,
			Name:        name,
			Description: description,
			Parameters:  &core.JSONSchema{Type: "object"},
		}
	}

	return []Executor{
		&bankExecutor{
			def:    noArgs(ToolAccountBalance, "Get the customer's current balances for their main and savings accounts."),
			client: client,
			call: func(ctx context.Context, c *bank.Client, token string, _ map[string]any) string {
				return c.AccountBalance(ctx, token)
			},
		},
		&bankExecutor{
			def:    noArgs(ToolAccountDetails, "Get the customer's account profile: name, email, account type and number, status and balances."),
			client: client,
			call: func(ctx context.Context, c *bank.Client, token string, _ map[string]any) string {
				return c.AccountDetails(ctx, token)
			},
		},
		&bankExecutor{
			def: core.Tool{
				Type:        core.ToolTypeFunction,
				Name:        ToolRecentTransactions,
				Description: "Get the customer's most recent account transactions.",
				Parameters: &core.JSONSchema{
					Type: "object",
					Properties: map[string]core.JSONSchema{
						"limit": {Type: "integer", Description: "How many transactions to return, default 5"},
					},
				},
			},
			client: client,
			call: func(ctx context.Context, c *bank.Client, token string, input map[string]any) string {
				limit, _ := intFromAny(input["limit"])
				return c.RecentTransactions(ctx, token, limit)
			},
		},
		&bankExecutor{
			def:    noArgs(ToolCardDetails, "Get the customer's GXS FlexiCard status, masked number, expiry and credit limits."),
			client: client,
			call: func(ctx context.Context, c *bank.Client, token string, _ map[string]any) string {
				return c.CardDetails(ctx, token)
			},
		},
		&bankExecutor{
			def:    noArgs(ToolFreezeCard, "Temporarily freeze the customer's GXS FlexiCard so no transactions can go through."),
			client: client,
			call: func(ctx context.Context, c *bank.Client, token string, _ map[string]any) string {
				return c.FreezeCard(ctx, token)
			},
		},
		&bankExecutor{
			def:    noArgs(ToolUnfreezeCard, "Unfreeze the customer's GXS FlexiCard so it can be used again."),
			client: client,
			call: func(ctx context.Context, c *bank.Client, token string, _ map[string]any) string {
				return c.UnfreezeCard(ctx, token)
			},
		},
	}
}
