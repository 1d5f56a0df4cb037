package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/cxbuddy/voicerelay/pkg/core"
	"github.com/cxbuddy/voicerelay/pkg/relay/bank"
	"github.com/cxbuddy/voicerelay/pkg/relay/knowledge"
	"github.com/cxbuddy/voicerelay/pkg/relay/persona"
)

type fakeExecutor struct {
	name     string
	outcome  core.ToolOutcome
	err      error
	gotInput map[string]any
}

func (f *fakeExecutor) Name() string { return f.name }
func (f *fakeExecutor) Definition() core.Tool {
	return core.Tool{Type: core.ToolTypeFunction, Name: f.name, Description: "d", Parameters: &core.JSONSchema{Type: "object"}}
}
func (f *fakeExecutor) Execute(ctx context.Context, input map[string]any) (core.ToolOutcome, error) {
	f.gotInput = input
	return f.outcome, f.err
}

func TestDispatcherExecute(t *testing.T) {
	echo := &fakeExecutor{name: "echo", outcome: core.ToolOutcome{Output: "pong"}}
	failing := &fakeExecutor{name: "failing", err: errors.New("backend down")}
	transfer := &fakeExecutor{name: "transfer", outcome: core.ToolOutcome{
		Output:  "One moment",
		Handoff: &core.HandoffRequest{TargetPersona: persona.NameHari, Reason: "cards"},
	}}
	d := NewDispatcher(NewRegistry(echo, failing, transfer))

	t.Run("success", func(t *testing.T) {
		got := d.Execute(context.Background(), core.ToolInvocation{InvocationID: "call_1", Name: "echo", Arguments: `{"query":"hi"}`})
		if got.InvocationID != "call_1" || got.Output != "pong" || got.Err {
			t.Fatalf("unexpected result: %+v", got)
		}
		if echo.gotInput["query"] != "hi" {
			t.Fatalf("input not passed through: %+v", echo.gotInput)
		}
	})

	t.Run("empty arguments", func(t *testing.T) {
		got := d.Execute(context.Background(), core.ToolInvocation{InvocationID: "call_2", Name: "echo", Arguments: ""})
		if got.Err {
			t.Fatalf("empty arguments should not fail: %+v", got)
		}
		if echo.gotInput == nil || len(echo.gotInput) != 0 {
			t.Fatalf("want empty input map, got %+v", echo.gotInput)
		}
	})

	t.Run("malformed arguments", func(t *testing.T) {
		got := d.Execute(context.Background(), core.ToolInvocation{InvocationID: "call_3", Name: "echo", Arguments: `{"query":`})
		if !got.Err {
			t.Fatalf("want Err for malformed arguments: %+v", got)
		}
		if got.Output == "" || got.Output[:7] != "Error: " {
			t.Fatalf("output should carry the parse error: %q", got.Output)
		}
	})

	t.Run("unknown function", func(t *testing.T) {
		got := d.Execute(context.Background(), core.ToolInvocation{InvocationID: "call_4", Name: "make_coffee", Arguments: "{}"})
		if got.Err {
			t.Fatalf("unknown function is a normal result, not an error: %+v", got)
		}
		if got.Output != "Unknown function: make_coffee" {
			t.Fatalf("Output = %q", got.Output)
		}
	})

	t.Run("executor error", func(t *testing.T) {
		got := d.Execute(context.Background(), core.ToolInvocation{InvocationID: "call_5", Name: "failing", Arguments: "{}"})
		if !got.Err || got.Output != "Error: backend down" {
			t.Fatalf("unexpected result: %+v", got)
		}
	})

	t.Run("handoff passthrough", func(t *testing.T) {
		got := d.Execute(context.Background(), core.ToolInvocation{InvocationID: "call_6", Name: "transfer", Arguments: "{}"})
		if got.Handoff == nil || got.Handoff.TargetPersona != persona.NameHari || got.Handoff.Reason != "cards" {
			t.Fatalf("handoff not carried: %+v", got.Handoff)
		}
	})
}

func TestRegistryNamesAndDefinitions(t *testing.T) {
	a := &fakeExecutor{name: "alpha"}
	b := &fakeExecutor{name: "beta"}
	r := NewRegistry(b, a, nil)

	names := r.Names()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "beta" {
		t.Fatalf("Names = %v", names)
	}
	if !r.Has("alpha") || r.Has("gamma") {
		t.Fatal("Has lookup wrong")
	}

	defs := r.Definitions([]string{"beta", "gamma", "alpha"})
	if len(defs) != 2 || defs[0].Name != "beta" || defs[1].Name != "alpha" {
		t.Fatalf("Definitions = %+v", defs)
	}
}

func TestDefaultRegistryCoversPersonaTools(t *testing.T) {
	store := knowledge.NewFromContent("")
	reg := NewDefaultRegistry(store, bank.NewClient("", nil))

	personas := persona.NewRegistry()
	for _, name := range []string{persona.NameRiley, persona.NameHari} {
		p, ok := personas.ByName(name)
		if !ok {
			t.Fatalf("persona %q missing", name)
		}
		for _, tool := range p.Tools {
			if !reg.Has(tool) {
				t.Errorf("persona %s tool %q has no executor", name, tool)
			}
			defs := reg.Definitions(p.Tools)
			if len(defs) != len(p.Tools) {
				t.Errorf("persona %s: %d definitions for %d tools", name, len(defs), len(p.Tools))
			}
		}
	}
}
