// Package bank calls the GXS banking API on behalf of an
// authenticated caller and renders the answers as voice-ready text.
//
// Every method returns a string the agent can speak, including on
// failure: authentication problems, connectivity problems, and API
// errors all map to polite fixed sentences rather than Go errors, so
// a tool call can never crash a live conversation.
package bank

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
)

const defaultBaseURL = "http://localhost:8004"

const (
	msgNotAuthenticated = "Not authenticated. Please log in through the GXS app first."
	msgSessionExpired   = "Your session has expired. Please log in again."
	msgCannotConnect    = "Cannot connect to GXS services. Please try again later."
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// request performs one authenticated call. ok is false when the reply
// is a caller-facing failure string instead of data.
func (c *Client) request(ctx context.Context, token, method, endpoint string) (json.RawMessage, string, bool) {
	if strings.TrimSpace(token) == "" {
		return nil, msgNotAuthenticated, false
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Sprintf("Request failed: %v", err), false
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, msgCannotConnect, false
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Sprintf("Request failed: %v", err), false
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, msgSessionExpired, false
	}
	if resp.StatusCode != http.StatusOK {
		var detail struct {
			Detail string `json:"detail"`
		}
		_ = json.Unmarshal(body, &detail)
		if detail.Detail == "" {
			detail.Detail = "Unknown error"
		}
		return nil, fmt.Sprintf("API error: %s", detail.Detail), false
	}

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Sprintf("Request failed: %v", err), false
	}
	if !envelope.Success {
		msg := envelope.Error
		if msg == "" {
			msg = "Unknown error"
		}
		return nil, msg, false
	}
	return envelope.Data, "", true
}

func (c *Client) AccountBalance(ctx context.Context, token string) string {
	data, msg, ok := c.request(ctx, token, http.MethodGet, "/api/account/balance")
	if !ok {
		return msg
	}

	var balance struct {
		MainAccount struct {
			Balance float64 `json:"balance"`
		} `json:"mainAccount"`
		SavingsAccount struct {
			Balance float64 `json:"balance"`
		} `json:"savingsAccount"`
		TotalBalance float64 `json:"totalBalance"`
	}
	if err := json.Unmarshal(data, &balance); err != nil {
		return "Failed to retrieve balance"
	}

	return fmt.Sprintf(`Here's your account balance:

💰 **Main Account**: SGD $%s
💎 **Savings Account**: SGD $%s (3.88%% p.a.)
📊 **Total Balance**: SGD $%s

Is there anything else you'd like to know about your accounts?`,
		formatAmount(balance.MainAccount.Balance),
		formatAmount(balance.SavingsAccount.Balance),
		formatAmount(balance.TotalBalance))
}

func (c *Client) AccountDetails(ctx context.Context, token string) string {
	data, msg, ok := c.request(ctx, token, http.MethodGet, "/api/account/details")
	if !ok {
		return msg
	}

	var details struct {
		Name          string `json:"name"`
		Email         string `json:"email"`
		AccountType   string `json:"accountType"`
		AccountNumber string `json:"accountNumber"`
		AccountStatus string `json:"accountStatus"`
		OpenedDate    string `json:"openedDate"`
		MainAccount   struct {
			Balance float64 `json:"balance"`
		} `json:"mainAccount"`
		SavingsAccount struct {
			Balance float64 `json:"balance"`
		} `json:"savingsAccount"`
		BusinessName string `json:"businessName"`
	}
	if err := json.Unmarshal(data, &details); err != nil {
		return "Failed to retrieve account details"
	}

	response := fmt.Sprintf(`Here are your account details:

👤 **Name**: %s
📧 **Email**: %s
🏦 **Account Type**: %s
🔢 **Account Number**: %s
✅ **Status**: %s
📅 **Opened**: %s

💰 **Main Account**: SGD $%s
💎 **Savings Account**: SGD $%s
`,
		details.Name, details.Email, details.AccountType, details.AccountNumber,
		title(details.AccountStatus), details.OpenedDate,
		formatAmount(details.MainAccount.Balance),
		formatAmount(details.SavingsAccount.Balance))

	if details.BusinessName != "" {
		response += fmt.Sprintf("\n🏢 **Business**: %s\n", details.BusinessName)
	}
	response += "\nHow else can I help you today?"
	return response
}

func (c *Client) RecentTransactions(ctx context.Context, token string, limit int) string {
	if limit <= 0 {
		limit = 5
	}
	data, msg, ok := c.request(ctx, token, http.MethodGet, "/api/transactions/recent?limit="+strconv.Itoa(limit))
	if !ok {
		return msg
	}

	var recent struct {
		Transactions []struct {
			Date        string  `json:"date"`
			Description string  `json:"description"`
			Amount      float64 `json:"amount"`
		} `json:"transactions"`
	}
	if err := json.Unmarshal(data, &recent); err != nil {
		return "Failed to retrieve transactions"
	}

	if len(recent.Transactions) == 0 {
		return "You don't have any recent transactions."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Here are your last %d transactions:\n\n", len(recent.Transactions))
	for _, txn := range recent.Transactions {
		symbol := "✅"
		if txn.Amount < 0 {
			symbol = "➖"
		}
		fmt.Fprintf(&b, "%s **%s** - %s: SGD $%s\n", symbol, txn.Date, txn.Description, formatAmount(math.Abs(txn.Amount)))
	}
	b.WriteString("\nWould you like to see more transactions or check anything else?")
	return b.String()
}

func (c *Client) CardDetails(ctx context.Context, token string) string {
	data, msg, ok := c.request(ctx, token, http.MethodGet, "/api/card/details")
	if !ok {
		return msg
	}

	var card struct {
		CardStatus      string  `json:"cardStatus"`
		CardNumber      string  `json:"cardNumber"`
		ExpiryDate      string  `json:"expiryDate"`
		CreditLimit     float64 `json:"creditLimit"`
		AvailableCredit float64 `json:"availableCredit"`
		UsedCredit      float64 `json:"usedCredit"`
	}
	if err := json.Unmarshal(data, &card); err != nil {
		return "Failed to retrieve card details"
	}

	statusEmoji := "✅"
	if card.CardStatus != "active" {
		statusEmoji = "🔒"
	}

	return fmt.Sprintf(`Here are your GXS FlexiCard details:

%s **Status**: %s
💳 **Card**: %s
📅 **Expires**: %s

💰 **Credit Limit**: SGD $%s
✅ **Available**: SGD $%s
📊 **Used**: SGD $%s

Need help with your card?`,
		statusEmoji, title(card.CardStatus), card.CardNumber, card.ExpiryDate,
		formatAmount(card.CreditLimit), formatAmount(card.AvailableCredit), formatAmount(card.UsedCredit))
}

func (c *Client) FreezeCard(ctx context.Context, token string) string {
	_, msg, ok := c.request(ctx, token, http.MethodPost, "/api/card/freeze")
	if !ok {
		return msg
	}

	return `✅ **Card Frozen Successfully**

Your GXS FlexiCard has been temporarily frozen. All transactions are now blocked.

To unfreeze your card, just ask me anytime!`
}

func (c *Client) UnfreezeCard(ctx context.Context, token string) string {
	_, msg, ok := c.request(ctx, token, http.MethodPost, "/api/card/unfreeze")
	if !ok {
		return msg
	}

	return `✅ **Card Unfrozen Successfully**

Your GXS FlexiCard is now active again. You can use it for transactions.

Is there anything else I can help with?`
}

// formatAmount renders 1234.5 as "1,234.50".
func formatAmount(v float64) string {
	neg := v < 0
	s := strconv.FormatFloat(math.Abs(v), 'f', 2, 64)
	dot := strings.IndexByte(s, '.')
	intPart, frac := s[:dot], s[dot:]

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	pre := len(intPart) % 3
	if pre > 0 {
		b.WriteString(intPart[:pre])
		if len(intPart) > pre {
			b.WriteByte(',')
		}
	}
	for i := pre; i < len(intPart); i += 3 {
		b.WriteString(intPart[i : i+3])
		if i+3 < len(intPart) {
			b.WriteByte(',')
		}
	}
	b.WriteString(frac)
	return b.String()
}

func title(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
