// Package tools holds the function-calling surface exposed to the
// realtime model: one executor per callable tool, a registry that maps
// names to executors, and a dispatcher that turns upstream invocations
// into results the relay can send back.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/cxbuddy/voicerelay/pkg/core"
	"github.com/cxbuddy/voicerelay/pkg/relay/bank"
	"github.com/cxbuddy/voicerelay/pkg/relay/knowledge"
)

const (
	ToolSearchHelpCenter      = "search_gxs_help_center"
	ToolCheckProductOwnership = "check_product_ownership"
	ToolHandoffToHari         = "handoff_to_hari"
	ToolHandoffToRiley        = "handoff_to_riley"
	ToolAccountBalance        = "get_account_balance"
	ToolAccountDetails        = "get_account_details"
	ToolRecentTransactions    = "get_recent_transactions"
	ToolCardDetails           = "get_card_details"
	ToolFreezeCard            = "freeze_card"
	ToolUnfreezeCard          = "unfreeze_card"
)

type Executor interface {
	Name() string
	Definition() core.Tool
	Execute(ctx context.Context, input map[string]any) (core.ToolOutcome, error)
}

type Registry struct {
	byName map[string]Executor
}

func NewRegistry(executors ...Executor) *Registry {
	registry := &Registry{byName: make(map[string]Executor, len(executors))}
	for _, ex := range executors {
		if ex == nil {
			continue
		}
		registry.byName[ex.Name()] = ex
	}
	return registry
}

func (r *Registry) Has(name string) bool {
	if r == nil {
		return false
	}
	_, ok := r.byName[strings.TrimSpace(name)]
	return ok
}

func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions resolves an ordered list of tool names, such as a persona's
// tool set, into the declarations for a session configuration. Names with
// no registered executor are skipped.
func (r *Registry) Definitions(names []string) []core.Tool {
	if r == nil {
		return nil
	}
	out := make([]core.Tool, 0, len(names))
	for _, name := range names {
		ex, ok := r.byName[strings.TrimSpace(name)]
		if !ok {
			continue
		}
		out = append(out, ex.Definition())
	}
	return out
}

// NewDefaultRegistry wires every executor the two personas can call.
func NewDefaultRegistry(store *knowledge.Store, bankClient *bank.Client) *Registry {
	executors := []Executor{
		NewKnowledgeSearchExecutor(store),
		ProductOwnershipExecutor{},
		NewHandoffToHariExecutor(),
		NewHandoffToRileyExecutor(),
	}
	executors = append(executors, BankExecutors(bankClient)...)
	return NewRegistry(executors...)
}

// Dispatcher executes tool invocations from the upstream session. Execute
// never fails: every problem becomes the output string of the result, so
// the model always receives a function_call_output to speak from.
type Dispatcher struct {
	registry *Registry
}

func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

func (d *Dispatcher) Execute(ctx context.Context, inv core.ToolInvocation) core.ToolResult {
	result := core.ToolResult{InvocationID: inv.InvocationID}

	input, err := parseArguments(inv.Arguments)
	if err != nil {
		result.Output = fmt.Sprintf("Error: %v", err)
		result.Err = true
		return result
	}

	ex, ok := d.registry.byName[strings.TrimSpace(inv.Name)]
	if !ok {
		result.Output = fmt.Sprintf("Unknown function: %s", inv.Name)
		return result
	}

	outcome, err := ex.Execute(ctx, input)
	if err != nil {
		result.Output = fmt.Sprintf("Error: %v", err)
		result.Err = true
		return result
	}
	result.Output = outcome.Output
	result.Handoff = outcome.Handoff
	return result
}

func parseArguments(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	var input map[string]any
	if err := json.Unmarshal([]byte(raw), &input); err != nil {
		return nil, fmt.Errorf("invalid tool arguments: %w", err)
	}
	if input == nil {
		input = map[string]any{}
	}
	return input, nil
}

func intFromAny(v any) (int, bool) {
	switch value := v.(type) {
	case int:
		return value, true
	case int64:
		return int(value), true
	case float64:
		return int(value), true
	case json.Number:
		parsed, err := value.Int64()
		if err != nil {
			return 0, false
		}
		return int(parsed), true
	default:
		return 0, false
	}
}
