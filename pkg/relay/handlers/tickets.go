package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/cxbuddy/voicerelay/pkg/relay/ticket"
)

// TicketsHandler serves the read-only ticket API behind the support
// dashboard. Responses keep the dashboard's envelope: success carries
// the payload under "data", errors carry a "message".
type TicketsHandler struct {
	Store  *ticket.Store
	Logger *slog.Logger
}

func (h TicketsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAdminError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.Store == nil {
		writeAdminError(w, http.StatusServiceUnavailable, "ticket store is not available")
		return
	}

	switch {
	case r.URL.Path == "/api/tickets":
		h.list(w, r)
	case r.URL.Path == "/api/tickets/stats":
		h.stats(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/tickets/"):
		h.detail(w, r, strings.TrimPrefix(r.URL.Path, "/api/tickets/"))
	default:
		writeAdminError(w, http.StatusNotFound, "not found")
	}
}

func (h TicketsHandler) list(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit := 50
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeAdminError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	offset := 0
	if raw := strings.TrimSpace(query.Get("offset")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeAdminError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		offset = n
	}

	tickets, err := h.Store.ListTickets(r.Context(), strings.TrimSpace(query.Get("status")), limit, offset)
	if err != nil {
		h.logError("list tickets failed", err)
		writeAdminError(w, http.StatusInternalServerError, "failed to list tickets")
		return
	}
	if tickets == nil {
		tickets = []ticket.Ticket{}
	}

	writeAdminJSON(w, http.StatusOK, struct {
		Status string          `json:"status"`
		Data   []ticket.Ticket `json:"data"`
		Count  int             `json:"count"`
	}{Status: "success", Data: tickets, Count: len(tickets)})
}

func (h TicketsHandler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Store.Stats(r.Context())
	if err != nil {
		h.logError("ticket stats failed", err)
		writeAdminError(w, http.StatusInternalServerError, "failed to load ticket stats")
		return
	}

	writeAdminJSON(w, http.StatusOK, struct {
		Status string       `json:"status"`
		Data   ticket.Stats `json:"data"`
	}{Status: "success", Data: stats})
}

func (h TicketsHandler) detail(w http.ResponseWriter, r *http.Request, ticketID string) {
	ticketID = strings.TrimSpace(ticketID)
	if ticketID == "" || strings.Contains(ticketID, "/") {
		writeAdminError(w, http.StatusNotFound, "Ticket not found")
		return
	}

	detail, err := h.Store.GetTicket(r.Context(), ticketID)
	if err != nil {
		h.logError("get ticket failed", err)
		writeAdminError(w, http.StatusInternalServerError, "failed to load ticket")
		return
	}
	if detail == nil {
		writeAdminError(w, http.StatusNotFound, "Ticket not found")
		return
	}

	writeAdminJSON(w, http.StatusOK, struct {
		Status string         `json:"status"`
		Data   *ticket.Detail `json:"data"`
	}{Status: "success", Data: detail})
}

func (h TicketsHandler) logError(msg string, err error) {
	if h.Logger == nil {
		return
	}
	h.Logger.Error(msg, "error", err)
}

func writeAdminJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeAdminError(w http.ResponseWriter, status int, message string) {
	writeAdminJSON(w, status, map[string]string{"status": "error", "message": message})
}
