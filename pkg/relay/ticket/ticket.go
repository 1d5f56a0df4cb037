// Package ticket persists one service ticket per call: transcript
// interactions, tool-call records, and a resolution written at
// teardown. Storage is a local SQLite file so transcripts survive
// restarts and can be pulled into a real ticketing system later.
package ticket

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/cxbuddy/voicerelay/pkg/core"
)

// timeLayout is a fixed-width ISO form so string ordering matches
// chronological ordering in SQL.
const timeLayout = "2006-01-02T15:04:05.000000"

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open tickets database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate tickets database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS tickets (
			ticket_id TEXT PRIMARY KEY,
			session_id TEXT,
			customer_name TEXT,
			status TEXT DEFAULT 'open',
			priority TEXT DEFAULT 'normal',
			category TEXT,
			created_at TEXT,
			updated_at TEXT,
			resolved_at TEXT,
			summary TEXT,
			resolution_notes TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS interactions (
			interaction_id INTEGER PRIMARY KEY AUTOINCREMENT,
			ticket_id TEXT,
			timestamp TEXT,
			speaker TEXT,
			message TEXT,
			tool_calls TEXT,
			FOREIGN KEY (ticket_id) REFERENCES tickets(ticket_id)
		)`,
		`CREATE TABLE IF NOT EXISTS ticket_metadata (
			metadata_id INTEGER PRIMARY KEY AUTOINCREMENT,
			ticket_id TEXT,
			key TEXT,
			value TEXT,
			FOREIGN KEY (ticket_id) REFERENCES tickets(ticket_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(status)`,
		`CREATE INDEX IF NOT EXISTS idx_tickets_created ON tickets(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_ticket ON interactions(ticket_id)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type Ticket struct {
	TicketID        string  `json:"ticket_id"`
	SessionID       string  `json:"session_id"`
	CustomerName    string  `json:"customer_name"`
	Status          string  `json:"status"`
	Priority        string  `json:"priority"`
	Category        *string `json:"category"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
	ResolvedAt      *string `json:"resolved_at"`
	Summary         *string `json:"summary"`
	ResolutionNotes *string `json:"resolution_notes"`
}

type Interaction struct {
	InteractionID int64                 `json:"interaction_id"`
	TicketID      string                `json:"ticket_id"`
	Timestamp     string                `json:"timestamp"`
	Speaker       string                `json:"speaker"`
	Message       string                `json:"message"`
	ToolCalls     []core.ToolCallRecord `json:"tool_calls"`
}

type Detail struct {
	Ticket
	Interactions []Interaction     `json:"interactions"`
	Metadata     map[string]string `json:"metadata"`
}

// CreateTicket opens a ticket for a new call and returns its ID, of
// the form GXS-YYYYMMDD-XXXXXXXX.
func (s *Store) CreateTicket(ctx context.Context, sessionID, customerName, category, priority string) (string, error) {
	ticketID := fmt.Sprintf("GXS-%s-%s", time.Now().Format("20060102"), strings.ToUpper(uuid.NewString()[:8]))
	now := time.Now().Format(timeLayout)

	if strings.TrimSpace(customerName) == "" {
		customerName = "Anonymous"
	}
	if strings.TrimSpace(priority) == "" {
		priority = "normal"
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tickets (
			ticket_id, session_id, customer_name, status,
			priority, category, created_at, updated_at
		) VALUES (?, ?, ?, 'open', ?, ?, ?, ?)`,
		ticketID, sessionID, customerName, priority, nullable(category), now, now)
	if err != nil {
		return "", fmt.Errorf("failed to create ticket: %w", err)
	}
	return ticketID, nil
}

// LogInteraction appends one transcript line and bumps the ticket's
// updated_at.
func (s *Store) LogInteraction(ctx context.Context, ticketID, speaker, message string, toolCalls []core.ToolCallRecord) error {
	now := time.Now().Format(timeLayout)

	var calls sql.NullString
	if len(toolCalls) > 0 {
		raw, err := json.Marshal(toolCalls)
		if err != nil {
			return fmt.Errorf("failed to encode tool calls: %w", err)
		}
		calls = sql.NullString{String: string(raw), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO interactions (ticket_id, timestamp, speaker, message, tool_calls)
		VALUES (?, ?, ?, ?, ?)`,
		ticketID, now, speaker, message, calls); err != nil {
		return fmt.Errorf("failed to log interaction: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE tickets SET updated_at = ? WHERE ticket_id = ?`, now, ticketID); err != nil {
		return fmt.Errorf("failed to touch ticket: %w", err)
	}
	return tx.Commit()
}

// Update carries the fields to change; empty fields are left alone.
type Update struct {
	Status          string
	Summary         string
	Category        string
	Priority        string
	ResolutionNotes string
}

func (s *Store) UpdateTicket(ctx context.Context, ticketID string, upd Update) error {
	var sets []string
	var params []any

	if upd.Status != "" {
		sets = append(sets, "status = ?")
		params = append(params, upd.Status)
		if upd.Status == "resolved" || upd.Status == "closed" {
			sets = append(sets, "resolved_at = ?")
			params = append(params, time.Now().Format(timeLayout))
		}
	}
	if upd.Summary != "" {
		sets = append(sets, "summary = ?")
		params = append(params, upd.Summary)
	}
	if upd.Category != "" {
		sets = append(sets, "category = ?")
		params = append(params, upd.Category)
	}
	if upd.Priority != "" {
		sets = append(sets, "priority = ?")
		params = append(params, upd.Priority)
	}
	if upd.ResolutionNotes != "" {
		sets = append(sets, "resolution_notes = ?")
		params = append(params, upd.ResolutionNotes)
	}
	if len(sets) == 0 {
		return nil
	}

	sets = append(sets, "updated_at = ?")
	params = append(params, time.Now().Format(timeLayout), ticketID)

	query := fmt.Sprintf("UPDATE tickets SET %s WHERE ticket_id = ?", strings.Join(sets, ", "))
	if _, err := s.db.ExecContext(ctx, query, params...); err != nil {
		return fmt.Errorf("failed to update ticket: %w", err)
	}
	return nil
}

func (s *Store) AddMetadata(ctx context.Context, ticketID, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ticket_metadata (ticket_id, key, value) VALUES (?, ?, ?)`,
		ticketID, key, value)
	if err != nil {
		return fmt.Errorf("failed to add metadata: %w", err)
	}
	return nil
}

// GetTicket returns the full ticket with transcript and metadata, or
// nil when the ticket does not exist.
func (s *Store) GetTicket(ctx context.Context, ticketID string) (*Detail, error) {
	var d Detail
	var category, resolvedAt, summary, notes sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT ticket_id, session_id, customer_name, status, priority,
		       category, created_at, updated_at, resolved_at, summary, resolution_notes
		FROM tickets WHERE ticket_id = ?`, ticketID).
		Scan(&d.TicketID, &d.SessionID, &d.CustomerName, &d.Status, &d.Priority,
			&category, &d.CreatedAt, &d.UpdatedAt, &resolvedAt, &summary, &notes)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	d.Category = fromNull(category)
	d.ResolvedAt = fromNull(resolvedAt)
	d.Summary = fromNull(summary)
	d.ResolutionNotes = fromNull(notes)

	rows, err := s.db.QueryContext(ctx, `
		SELECT interaction_id, ticket_id, timestamp, speaker, message, tool_calls
		FROM interactions WHERE ticket_id = ? ORDER BY timestamp ASC, interaction_id ASC`, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var in Interaction
		var calls sql.NullString
		if err := rows.Scan(&in.InteractionID, &in.TicketID, &in.Timestamp, &in.Speaker, &in.Message, &calls); err != nil {
			return nil, err
		}
		if calls.Valid {
			if err := json.Unmarshal([]byte(calls.String), &in.ToolCalls); err != nil {
				return nil, fmt.Errorf("failed to decode tool calls: %w", err)
			}
		}
		d.Interactions = append(d.Interactions, in)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	d.Metadata = make(map[string]string)
	metaRows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM ticket_metadata WHERE ticket_id = ?`, ticketID)
	if err != nil {
		return nil, err
	}
	defer metaRows.Close()
	for metaRows.Next() {
		var k, v string
		if err := metaRows.Scan(&k, &v); err != nil {
			return nil, err
		}
		d.Metadata[k] = v
	}
	return &d, metaRows.Err()
}

// ListTickets returns tickets newest-first, optionally filtered by
// status.
func (s *Store) ListTickets(ctx context.Context, status string, limit, offset int) ([]Ticket, error) {
	query := `
		SELECT ticket_id, session_id, customer_name, status, priority,
		       category, created_at, updated_at, resolved_at, summary, resolution_notes
		FROM tickets`
	var params []any
	if status != "" {
		query += " WHERE status = ?"
		params = append(params, status)
	}
	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	params = append(params, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []Ticket
	for rows.Next() {
		var t Ticket
		var category, resolvedAt, summary, notes sql.NullString
		if err := rows.Scan(&t.TicketID, &t.SessionID, &t.CustomerName, &t.Status, &t.Priority,
			&category, &t.CreatedAt, &t.UpdatedAt, &resolvedAt, &summary, &notes); err != nil {
			return nil, err
		}
		t.Category = fromNull(category)
		t.ResolvedAt = fromNull(resolvedAt)
		t.Summary = fromNull(summary)
		t.ResolutionNotes = fromNull(notes)
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

type Stats struct {
	TotalTickets       int            `json:"total_tickets"`
	ByStatus           map[string]int `json:"by_status"`
	ByCategory         map[string]int `json:"by_category"`
	AvgResolutionHours float64        `json:"avg_resolution_hours"`
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{
		ByStatus:   make(map[string]int),
		ByCategory: make(map[string]int),
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tickets`).Scan(&stats.TotalTickets); err != nil {
		return Stats{}, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tickets GROUP BY status`)
	if err != nil {
		return Stats{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return Stats{}, err
		}
		stats.ByStatus[status] = count
	}
	if err := rows.Err(); err != nil {
		return Stats{}, err
	}

	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, `
		SELECT AVG((julianday(resolved_at) - julianday(created_at)) * 24)
		FROM tickets WHERE resolved_at IS NOT NULL`).Scan(&avg); err != nil {
		return Stats{}, err
	}
	if avg.Valid {
		stats.AvgResolutionHours = math.Round(avg.Float64*100) / 100
	}

	catRows, err := s.db.QueryContext(ctx, `SELECT category, COUNT(*) FROM tickets GROUP BY category`)
	if err != nil {
		return Stats{}, err
	}
	defer catRows.Close()
	for catRows.Next() {
		var category sql.NullString
		var count int
		if err := catRows.Scan(&category, &count); err != nil {
			return Stats{}, err
		}
		name := "uncategorized"
		if category.Valid {
			name = category.String
		}
		stats.ByCategory[name] = count
	}
	return stats, catRows.Err()
}

// CloseSession resolves the ticket at call teardown, categorizing and
// summarizing from the transcript when asked. Closing an unknown
// ticket is a no-op.
func (s *Store) CloseSession(ctx context.Context, ticketID string, autoCategorize bool) error {
	detail, err := s.GetTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	if detail == nil {
		return nil
	}

	if autoCategorize && len(detail.Interactions) > 0 {
		return s.UpdateTicket(ctx, ticketID, Update{
			Status:          "resolved",
			Category:        categorize(detail.Interactions),
			Summary:         summarize(detail.Interactions),
			ResolutionNotes: "Call completed via voice agent",
		})
	}
	return s.UpdateTicket(ctx, ticketID, Update{Status: "resolved"})
}

// autoCategories are checked in order; the first category with any
// keyword hit wins.
var autoCategories = []struct {
	name     string
	keywords []string
}{
	{"account_inquiry", []string{"balance", "account", "savings", "main account"}},
	{"card_inquiry", []string{"card", "flexi", "debit", "freeze", "lost", "stolen"}},
	{"interest_rates", []string{"interest", "rate", "apr", "yield"}},
	{"loan_inquiry", []string{"loan", "flexiloan", "borrow"}},
	{"technical_issue", []string{"error", "bug", "broken", "not working", "issue"}},
	{"fees_charges", []string{"fee", "charge", "cost", "price"}},
	{"promotions", []string{"promotion", "campaign", "cashback", "reward"}},
}

func categorize(interactions []Interaction) string {
	var b strings.Builder
	for i, in := range interactions {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(strings.ToLower(in.Message))
	}
	text := b.String()

	for _, c := range autoCategories {
		for _, kw := range c.keywords {
			if strings.Contains(text, kw) {
				return c.name
			}
		}
	}
	return "general_inquiry"
}

// summarize uses the first user line, which usually holds the caller's
// actual question.
func summarize(interactions []Interaction) string {
	for _, in := range interactions {
		if in.Speaker != string(core.SpeakerUser) {
			continue
		}
		runes := []rune(in.Message)
		if len(runes) > 200 {
			return string(runes[:200]) + "..."
		}
		return in.Message
	}
	return "Customer inquiry via voice agent"
}

func nullable(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func fromNull(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
