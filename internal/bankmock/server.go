// Package bankmock is an in-memory stand-in for the GXS banking
// backend used by demos and tests. It serves three seeded customers
// and trusts any well-formed bearer JWT whose exp has not passed,
// matching the relay's unverified auth mode. Signatures are never
// checked.
package bankmock

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	serviceVersion      = "1.0.0"
	savingsInterestRate = 3.88
	cardType            = "GXS FlexiCard"
	cardExpiry          = "12/2028"
	accountOpenedDate   = "2024-01-15"
)

type Server struct {
	logger *slog.Logger
	mux    *http.ServeMux
	store  *store
}

func New(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		logger: logger,
		mux:    http.NewServeMux(),
		store:  newStore(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/", s.handleRoot)
	s.mux.HandleFunc("/api/account/balance", s.handleAccountBalance)
	s.mux.HandleFunc("/api/account/details", s.handleAccountDetails)
	s.mux.HandleFunc("/api/transactions/recent", s.handleRecentTransactions)
	s.mux.HandleFunc("/api/card/details", s.handleCardDetails)
	s.mux.HandleFunc("/api/card/freeze", s.handleFreezeCard)
	s.mux.HandleFunc("/api/card/unfreeze", s.handleUnfreezeCard)
}

func (s *Server) Handler() http.Handler {
	return corsAll(s.mux)
}

// corsAll mirrors the permissive CORS of a local demo backend: the
// browser app talks to the mock directly.
func corsAll(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authorize resolves the caller's user id from the bearer token,
// writing the 401 itself on failure. A missing sub falls through to
// the per-endpoint user lookup, which answers 404.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	if authz == "" {
		writeDetail(w, http.StatusUnauthorized, "No authorization token provided")
		return "", false
	}
	if !strings.HasPrefix(authz, "Bearer ") {
		writeDetail(w, http.StatusUnauthorized, "Invalid authorization format")
		return "", false
	}
	raw := strings.TrimPrefix(authz, "Bearer ")

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			writeDetail(w, http.StatusUnauthorized, "Invalid token format")
		} else {
			writeDetail(w, http.StatusUnauthorized, fmt.Sprintf("Invalid token: %v", err))
		}
		return "", false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		writeDetail(w, http.StatusUnauthorized, fmt.Sprintf("Invalid token: %v", err))
		return "", false
	}
	// A token without exp counts as expired.
	if exp == nil || time.Now().After(exp.Time) {
		writeDetail(w, http.StatusUnauthorized, "Token expired")
		return "", false
	}

	sub, _ := claims.GetSubject()
	return sub, true
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeDetail(w, http.StatusNotFound, "Not Found")
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Service   string   `json:"service"`
		Version   string   `json:"version"`
		Endpoints []string `json:"endpoints"`
	}{
		Service: "Mock GXS Bank API",
		Version: serviceVersion,
		Endpoints: []string{
			"/api/account/balance",
			"/api/account/details",
			"/api/transactions/recent",
			"/api/card/details",
			"/api/card/freeze",
			"/api/card/unfreeze",
		},
	})
}

type moneyAccount struct {
	Balance      float64 `json:"balance"`
	Currency     string  `json:"currency"`
	AccountName  string  `json:"accountName,omitempty"`
	InterestRate float64 `json:"interestRate,omitempty"`
}

func (s *Server) handleAccountBalance(w http.ResponseWriter, r *http.Request) {
	_, acct, ok := s.authorizedAccount(w, r, http.MethodGet)
	if !ok {
		return
	}

	writeData(w, struct {
		AccountNumber  string       `json:"accountNumber"`
		MainAccount    moneyAccount `json:"mainAccount"`
		SavingsAccount moneyAccount `json:"savingsAccount"`
		TotalBalance   float64      `json:"totalBalance"`
	}{
		AccountNumber: acct.accountNumber,
		MainAccount: moneyAccount{
			Balance:     acct.mainBalance,
			Currency:    "SGD",
			AccountName: "Main Account",
		},
		SavingsAccount: moneyAccount{
			Balance:      acct.savingsBalance,
			Currency:     "SGD",
			AccountName:  "Savings Account",
			InterestRate: savingsInterestRate,
		},
		TotalBalance: acct.mainBalance + acct.savingsBalance,
	})
}

func (s *Server) handleAccountDetails(w http.ResponseWriter, r *http.Request) {
	_, acct, ok := s.authorizedAccount(w, r, http.MethodGet)
	if !ok {
		return
	}

	writeData(w, struct {
		UserID         string       `json:"userId"`
		Name           string       `json:"name"`
		Email          string       `json:"email"`
		AccountType    string       `json:"accountType"`
		AccountNumber  string       `json:"accountNumber"`
		AccountStatus  string       `json:"accountStatus"`
		OpenedDate     string       `json:"openedDate"`
		MainAccount    moneyAccount `json:"mainAccount"`
		SavingsAccount moneyAccount `json:"savingsAccount"`
		BusinessName   string       `json:"businessName,omitempty"`
	}{
		UserID:        acct.userID,
		Name:          acct.name,
		Email:         acct.email,
		AccountType:   acct.accountType,
		AccountNumber: acct.accountNumber,
		AccountStatus: "active",
		OpenedDate:    accountOpenedDate,
		MainAccount: moneyAccount{
			Balance:  acct.mainBalance,
			Currency: "SGD",
		},
		SavingsAccount: moneyAccount{
			Balance:      acct.savingsBalance,
			Currency:     "SGD",
			InterestRate: savingsInterestRate,
		},
		BusinessName: acct.businessName,
	})
}

func (s *Server) handleRecentTransactions(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := s.authorizedAccount(w, r, http.MethodGet)
	if !ok {
		return
	}

	limit := 5
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeDetail(w, http.StatusUnprocessableEntity, "limit must be an integer")
			return
		}
		limit = n
	}

	txns := s.store.transactions(userID, limit)
	writeData(w, struct {
		Transactions []transaction `json:"transactions"`
		Count        int           `json:"count"`
	}{Transactions: txns, Count: len(txns)})
}

func (s *Server) handleCardDetails(w http.ResponseWriter, r *http.Request) {
	_, acct, ok := s.authorizedAccount(w, r, http.MethodGet)
	if !ok {
		return
	}

	writeData(w, struct {
		CardNumber      string  `json:"cardNumber"`
		CardLastFour    string  `json:"cardLastFour"`
		CardStatus      string  `json:"cardStatus"`
		CardType        string  `json:"cardType"`
		CreditLimit     float64 `json:"creditLimit"`
		AvailableCredit float64 `json:"availableCredit"`
		UsedCredit      float64 `json:"usedCredit"`
		ExpiryDate      string  `json:"expiryDate"`
	}{
		CardNumber:      acct.cardNumber,
		CardLastFour:    acct.cardLastFour,
		CardStatus:      acct.cardStatus,
		CardType:        cardType,
		CreditLimit:     acct.cardLimit,
		AvailableCredit: acct.cardAvailable,
		UsedCredit:      acct.cardLimit - acct.cardAvailable,
		ExpiryDate:      cardExpiry,
	})
}

func (s *Server) handleFreezeCard(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.authorizedMutation(w, r)
	if !ok {
		return
	}
	if !s.store.setCardStatus(userID, "frozen") {
		writeDetail(w, http.StatusNotFound, "User not found")
		return
	}
	s.logger.Info("card frozen", "user_id", userID)

	writeJSON(w, http.StatusOK, struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Data    any    `json:"data"`
	}{
		Success: true,
		Message: "Card frozen successfully",
		Data: struct {
			CardStatus string `json:"cardStatus"`
			FrozenAt   string `json:"frozenAt"`
		}{CardStatus: "frozen", FrozenAt: time.Now().Format(time.RFC3339)},
	})
}

func (s *Server) handleUnfreezeCard(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.authorizedMutation(w, r)
	if !ok {
		return
	}
	if !s.store.setCardStatus(userID, "active") {
		writeDetail(w, http.StatusNotFound, "User not found")
		return
	}
	s.logger.Info("card unfrozen", "user_id", userID)

	writeJSON(w, http.StatusOK, struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Data    any    `json:"data"`
	}{
		Success: true,
		Message: "Card unfrozen successfully",
		Data: struct {
			CardStatus string `json:"cardStatus"`
			UnfrozenAt string `json:"unfrozenAt"`
		}{CardStatus: "active", UnfrozenAt: time.Now().Format(time.RFC3339)},
	})
}

// authorizedAccount bundles the method check, auth, and user lookup
// every read endpoint repeats.
func (s *Server) authorizedAccount(w http.ResponseWriter, r *http.Request, method string) (string, account, bool) {
	if r.Method != method {
		writeDetail(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return "", account{}, false
	}
	userID, ok := s.authorize(w, r)
	if !ok {
		return "", account{}, false
	}
	acct, ok := s.store.lookup(userID)
	if !ok {
		writeDetail(w, http.StatusNotFound, "User not found")
		return "", account{}, false
	}
	return userID, acct, true
}

func (s *Server) authorizedMutation(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return "", false
	}
	return s.authorize(w, r)
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		Data    any  `json:"data"`
	}{Success: true, Data: data})
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, struct {
		Detail string `json:"detail"`
	}{Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
