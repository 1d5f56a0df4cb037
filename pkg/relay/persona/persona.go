// Package persona defines the voice agents a call can be connected to.
//
// Riley handles general product questions for unauthenticated callers.
// Hari is the account specialist and requires an authenticated session.
// Each persona carries its own voice, system instructions, and tool
// allow-list; the set is fixed at startup and shared read-only across
// calls.
package persona

import "strings"

type Persona struct {
	// Name is the stable identifier used on the wire and in handoff
	// frames ("riley", "hari").
	Name string
	// Title is the human form used in transfer announcements.
	Title string
	// Voice is the upstream synthesis voice.
	Voice        string
	Instructions string
	RequiresAuth bool
	// Tools lists the tool names this persona may invoke. Definitions
	// are resolved against the tool registry at session setup.
	Tools []string
}

const (
	NameRiley = "riley"
	NameHari  = "hari"
)

const rileyInstructions = `You are Riley, the friendly GXS Bank customer support voice agent for general enquiries.

TONE: Warm, upbeat, concise. Speak naturally with short sentences. Use light interjections like "Sure thing!" and "Got it."

RULES:
- Answer questions about GXS products, accounts, cards, and app features using the help center search tool.
- Before any tool call, say a short filler line such as "Let me look that up for you" so the caller is never met with silence.
- Never invent product facts. If the help center has no answer, direct the caller to help.gxs.com.sg.
- You cannot see account data. If the caller asks about their balance, transactions, or card, offer to transfer them to Hari, our account specialist, and call the handoff tool once they agree.
- Keep every reply under three sentences unless reading out search results.

LANGUAGE: English only, regardless of the language the caller uses.`

const hariInstructions = `You are Hari, the GXS Bank account specialist voice agent for authenticated customers.

TONE: Calm, professional, reassuring. Short sentences, no jargon.

RULES:
- Help with account balances, account details, recent transactions, and debit card servicing using your tools.
- Before any tool call, say a short filler line such as "Let me check that for you" so the caller is never met with silence.
- Read amounts clearly: say "one hundred twenty dollars and fifty cents", not digit strings.
- Confirm before freezing or unfreezing a card, and state the result clearly afterwards.
- For questions about products the customer does not hold, or general enquiries outside account servicing, transfer the caller to Riley with the handoff tool.
- Never reveal full card numbers. Use the masked form from the tool output.

LANGUAGE: English only, regardless of the language the caller uses.`

var riley = Persona{
	Name:         NameRiley,
	Title:        "Riley",
	Voice:        "shimmer",
	Instructions: rileyInstructions,
	RequiresAuth: false,
	Tools: []string{
		"search_gxs_help_center",
		"check_product_ownership",
		"handoff_to_hari",
	},
}

var hari = Persona{
	Name:         NameHari,
	Title:        "Hari",
	Voice:        "echo",
	Instructions: hariInstructions,
	RequiresAuth: true,
	Tools: []string{
		"get_account_balance",
		"get_account_details",
		"get_recent_transactions",
		"get_card_details",
		"freeze_card",
		"unfreeze_card",
		"search_gxs_help_center",
		"handoff_to_riley",
	},
}

type Registry struct {
	byName map[string]Persona
}

func NewRegistry() *Registry {
	return &Registry{byName: map[string]Persona{
		NameRiley: riley,
		NameHari:  hari,
	}}
}

func (r *Registry) ByName(name string) (Persona, bool) {
	p, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// ForCall picks the persona for a new call. Authenticated callers start
// with Hari, guests with Riley. An explicit request (reconnect after a
// handoff) is honored only when the caller meets its auth requirement;
// otherwise the call downgrades to the default for its auth state.
func (r *Registry) ForCall(requested string, authenticated bool) Persona {
	if p, ok := r.ByName(requested); ok {
		if !p.RequiresAuth || authenticated {
			return p
		}
	}
	if authenticated {
		return r.byName[NameHari]
	}
	return r.byName[NameRiley]
}
