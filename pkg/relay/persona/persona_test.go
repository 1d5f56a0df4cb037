package persona

import "testing"

func TestForCall_DefaultByAuthState(t *testing.T) {
	r := NewRegistry()

	if p := r.ForCall("", false); p.Name != NameRiley {
		t.Fatalf("guest default = %q, want riley", p.Name)
	}
	if p := r.ForCall("", true); p.Name != NameHari {
		t.Fatalf("authenticated default = %q, want hari", p.Name)
	}
}

func TestForCall_RequestedPersona(t *testing.T) {
	r := NewRegistry()

	if p := r.ForCall("riley", true); p.Name != NameRiley {
		t.Fatalf("authenticated caller requesting riley got %q", p.Name)
	}
	if p := r.ForCall("hari", true); p.Name != NameHari {
		t.Fatalf("authenticated caller requesting hari got %q", p.Name)
	}
	if p := r.ForCall("HARI", true); p.Name != NameHari {
		t.Fatalf("persona lookup should be case-insensitive, got %q", p.Name)
	}
}

func TestForCall_GuestCannotRequestHari(t *testing.T) {
	r := NewRegistry()

	if p := r.ForCall("hari", false); p.Name != NameRiley {
		t.Fatalf("guest requesting hari got %q, want riley downgrade", p.Name)
	}
}

func TestForCall_UnknownPersonaFallsBack(t *testing.T) {
	r := NewRegistry()

	if p := r.ForCall("zoe", false); p.Name != NameRiley {
		t.Fatalf("unknown request = %q, want riley", p.Name)
	}
	if p := r.ForCall("zoe", true); p.Name != NameHari {
		t.Fatalf("unknown request = %q, want hari", p.Name)
	}
}

func TestPersonaVoicesAndTools(t *testing.T) {
	r := NewRegistry()

	riley, ok := r.ByName("riley")
	if !ok {
		t.Fatal("riley missing")
	}
	if riley.Voice != "shimmer" || riley.RequiresAuth {
		t.Fatalf("riley = %+v", riley)
	}

	hari, ok := r.ByName("hari")
	if !ok {
		t.Fatal("hari missing")
	}
	if hari.Voice != "echo" || !hari.RequiresAuth {
		t.Fatalf("hari = %+v", hari)
	}

	hasTool := func(p Persona, name string) bool {
		for _, tool := range p.Tools {
			if tool == name {
				return true
			}
		}
		return false
	}

	if !hasTool(riley, "handoff_to_hari") || hasTool(riley, "get_account_balance") {
		t.Fatalf("riley tools = %v", riley.Tools)
	}
	if !hasTool(hari, "freeze_card") || hasTool(hari, "handoff_to_hari") {
		t.Fatalf("hari tools = %v", hari.Tools)
	}
	if !hasTool(hari, "search_gxs_help_center") {
		t.Fatalf("hari should keep help center access, tools = %v", hari.Tools)
	}
}
