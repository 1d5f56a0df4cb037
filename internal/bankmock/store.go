package bankmock

import "sync"

type account struct {
	userID         string
	name           string
	email          string
	accountType    string
	accountNumber  string
	mainBalance    float64
	savingsBalance float64
	cardNumber     string
	cardLastFour   string
	cardStatus     string
	cardLimit      float64
	cardAvailable  float64
	businessName   string
}

type transaction struct {
	Date        string  `json:"date"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Type        string  `json:"type"`
}

// store holds the seeded customers. Card freezes mutate status, so
// every access goes through the lock.
type store struct {
	mu       sync.Mutex
	accounts map[string]*account
	history  map[string][]transaction
}

func newStore() *store {
	return &store{
		accounts: map[string]*account{
			"USR-001": {
				userID:         "USR-001",
				name:           "John Doe",
				email:          "john.doe@email.com",
				accountType:    "Personal Account",
				accountNumber:  "1234567890",
				mainBalance:    15234.50,
				savingsBalance: 42890.00,
				cardNumber:     "5123-****-****-8901",
				cardLastFour:   "8901",
				cardStatus:     "active",
				cardLimit:      50000.00,
				cardAvailable:  48500.00,
			},
			"USR-002": {
				userID:         "USR-002",
				name:           "Jane Smith",
				email:          "jane.smith@email.com",
				accountType:    "Business Account",
				accountNumber:  "2345678901",
				mainBalance:    89456.75,
				savingsBalance: 125000.00,
				cardNumber:     "5123-****-****-4562",
				cardLastFour:   "4562",
				cardStatus:     "active",
				cardLimit:      100000.00,
				cardAvailable:  95600.00,
				businessName:   "Smith Trading Pte Ltd",
			},
			"USR-003": {
				userID:         "USR-003",
				name:           "Mike Wong",
				email:          "mike.wong@email.com",
				accountType:    "Premium Account",
				accountNumber:  "3456789012",
				mainBalance:    234567.80,
				savingsBalance: 500000.00,
				cardNumber:     "5123-****-****-7893",
				cardLastFour:   "7893",
				cardStatus:     "active",
				cardLimit:      200000.00,
				cardAvailable:  198200.00,
			},
		},
		history: map[string][]transaction{
			"USR-001": {
				{Date: "2025-11-27", Description: "Grab Transport", Amount: -25.50, Type: "debit"},
				{Date: "2025-11-26", Description: "NTUC FairPrice", Amount: -87.30, Type: "debit"},
				{Date: "2025-11-25", Description: "Salary Credit", Amount: 5500.00, Type: "credit"},
				{Date: "2025-11-24", Description: "Starbucks", Amount: -12.80, Type: "debit"},
				{Date: "2025-11-23", Description: "Netflix Subscription", Amount: -17.98, Type: "debit"},
			},
			"USR-002": {
				{Date: "2025-11-27", Description: "Supplier Payment", Amount: -45000.00, Type: "debit"},
				{Date: "2025-11-26", Description: "Client Invoice Payment", Amount: 125000.00, Type: "credit"},
				{Date: "2025-11-25", Description: "Office Rent", Amount: -8500.00, Type: "debit"},
				{Date: "2025-11-24", Description: "Equipment Purchase", Amount: -12300.00, Type: "debit"},
				{Date: "2025-11-23", Description: "Client Payment", Amount: 68000.00, Type: "credit"},
			},
			"USR-003": {
				{Date: "2025-11-27", Description: "Property Investment", Amount: -500000.00, Type: "debit"},
				{Date: "2025-11-26", Description: "Dividend Payment", Amount: 15000.00, Type: "credit"},
				{Date: "2025-11-25", Description: "Luxury Car Down Payment", Amount: -80000.00, Type: "debit"},
				{Date: "2025-11-24", Description: "Investment Returns", Amount: 25000.00, Type: "credit"},
				{Date: "2025-11-23", Description: "Club Membership", Amount: -5000.00, Type: "debit"},
			},
		},
	}
}

// lookup returns a copy so handlers render without holding the lock.
func (st *store) lookup(userID string) (account, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	a, ok := st.accounts[userID]
	if !ok {
		return account{}, false
	}
	return *a, true
}

func (st *store) transactions(userID string, limit int) []transaction {
	st.mu.Lock()
	defer st.mu.Unlock()
	txns := st.history[userID]
	if limit < 0 {
		limit = 0
	}
	if limit > len(txns) {
		limit = len(txns)
	}
	out := make([]transaction, limit)
	copy(out, txns[:limit])
	return out
}

func (st *store) setCardStatus(userID, status string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	a, ok := st.accounts[userID]
	if !ok {
		return false
	}
	a.cardStatus = status
	return true
}
