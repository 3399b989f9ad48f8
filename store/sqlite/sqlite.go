/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements schedule.TxStore (contracts, payments, audit records) plus the
  notification table used by the reminder job.

KEY TABLES:
  contracts:      Leases (landlord, tenant, start date, payment day, rent)
  payments:       Due payments, one row per (contract, type, month)
  audit_logs:     One row per scheduling run that created payments
  notifications:  Reminder notifications, one per (payment, kind, day)

INDEXES:
  - idx_payments_unique_month: UNIQUE(contract_id, type, due_month). Backs
    the one-payment-per-month invariant when two runs race.
  - idx_payments_contract_type_due: Existing-schedule reads (hot path)
  - idx_payments_status_due: Reminder scans
  - idx_notifications_unique: Makes reminders idempotent per day

CONNECTIONS:
  The pool is limited to one connection. SQLite allows a single writer
  anyway, and ":memory:" databases are per-connection. Everything inside
  WithTx therefore goes through the *sql.Tx, never through s.db.

USAGE:
  store, err := sqlite.New("./data/rent.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - schedule/store.go: Interface definitions
  - schedule/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/rent-scheduler/schedule"
)

// Store implements schedule.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var _ schedule.TxStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS contracts (
		id TEXT PRIMARY KEY,
		landlord_id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT,
		payment_day INTEGER NOT NULL,
		monthly_rent TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_contracts_landlord
		ON contracts(landlord_id);
	CREATE INDEX IF NOT EXISTS idx_contracts_tenant
		ON contracts(tenant_id);

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		contract_id TEXT NOT NULL REFERENCES contracts(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		type TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		due_date TEXT NOT NULL,
		due_month TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		is_automatic BOOLEAN NOT NULL DEFAULT FALSE,
		notes TEXT,
		created_at TEXT NOT NULL
	);

	-- One payment per contract, type and calendar month
	CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_unique_month
		ON payments(contract_id, type, due_month);

	CREATE INDEX IF NOT EXISTS idx_payments_contract_type_due
		ON payments(contract_id, type, due_date);
	CREATE INDEX IF NOT EXISTS idx_payments_status_due
		ON payments(status, due_date);
	CREATE INDEX IF NOT EXISTS idx_payments_user
		ON payments(user_id);

	CREATE TABLE IF NOT EXISTS audit_logs (
		id TEXT PRIMARY KEY,
		actor_id TEXT NOT NULL,
		action TEXT NOT NULL,
		contract_id TEXT NOT NULL,
		payment_ids_json TEXT NOT NULL,
		details_json TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_logs_contract
		ON audit_logs(contract_id, created_at);

	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		payment_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		message TEXT NOT NULL,
		for_date TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_notifications_unique
		ON notifications(payment_id, kind, for_date);
	CREATE INDEX IF NOT EXISTS idx_notifications_user
		ON notifications(user_id, created_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Reset deletes all data. Used by tests and local development.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"notifications", "audit_logs", "payments", "contracts"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// =============================================================================
// CONTRACTS
// =============================================================================

// SaveContract inserts or updates a contract.
func (s *Store) SaveContract(ctx context.Context, c schedule.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var endDate *string
	if c.EndDate != nil {
		v := c.EndDate.String()
		endDate = &v
	}
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO contracts
		(id, landlord_id, tenant_id, start_date, end_date, payment_day, monthly_rent, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			tenant_id = excluded.tenant_id,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			payment_day = excluded.payment_day,
			monthly_rent = excluded.monthly_rent,
			status = excluded.status
	`

	_, err := s.db.ExecContext(ctx, query,
		c.ID, c.LandlordID, c.TenantID,
		c.StartDate.String(), endDate,
		c.PaymentDay, c.MonthlyRent.String(), string(c.Status),
		createdAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save contract: %w", err)
	}
	return nil
}

// FindContractByID implements schedule.Store.
func (s *Store) FindContractByID(ctx context.Context, id string) (*schedule.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findContract(ctx, s.db, id)
}

// ListContractsByLandlord returns a landlord's contracts, newest first.
func (s *Store) ListContractsByLandlord(ctx context.Context, landlordID string) ([]schedule.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, contractSelect+" WHERE landlord_id = ? ORDER BY created_at DESC", landlordID)
	if err != nil {
		return nil, fmt.Errorf("failed to query contracts: %w", err)
	}
	defer rows.Close()

	var contracts []schedule.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		contracts = append(contracts, *c)
	}
	return contracts, rows.Err()
}

const contractSelect = `
	SELECT id, landlord_id, tenant_id, start_date, end_date, payment_day, monthly_rent, status, created_at
	FROM contracts`

func findContract(ctx context.Context, q querier, id string) (*schedule.Contract, error) {
	c, err := scanContract(q.QueryRowContext(ctx, contractSelect+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, schedule.ErrContractNotFound
	}
	return c, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanContract(row scanner) (*schedule.Contract, error) {
	var (
		c         schedule.Contract
		startDate string
		endDate   sql.NullString
		rent      string
		status    string
		createdAt string
	)
	err := row.Scan(&c.ID, &c.LandlordID, &c.TenantID, &startDate, &endDate,
		&c.PaymentDay, &rent, &status, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan contract: %w", err)
	}

	if c.StartDate, err = schedule.ParseDate(startDate); err != nil {
		return nil, fmt.Errorf("contract %s: %w", c.ID, err)
	}
	if endDate.Valid && endDate.String != "" {
		d, err := schedule.ParseDate(endDate.String)
		if err != nil {
			return nil, fmt.Errorf("contract %s: %w", c.ID, err)
		}
		c.EndDate = &d
	}
	c.MonthlyRent = parseDecimal(rent)
	c.Status = schedule.ContractStatus(status)
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &c, nil
}

// =============================================================================
// PAYMENTS (schedule.Store)
// =============================================================================

// FindPayments implements schedule.Store.
func (s *Store) FindPayments(ctx context.Context, f schedule.PaymentFilter) ([]schedule.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findPayments(ctx, s.db, f)
}

// CreatePayment implements schedule.Store.
func (s *Store) CreatePayment(ctx context.Context, p schedule.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createPayment(ctx, s.db, p)
}

// GetPayment retrieves a payment by ID.
func (s *Store) GetPayment(ctx context.Context, id string) (*schedule.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, paymentSelect+" WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query payment: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, schedule.ErrPaymentNotFound
	}
	return scanPayment(rows)
}

const paymentSelect = `
	SELECT id, contract_id, user_id, type, amount, currency, due_date, status, is_automatic, notes, created_at
	FROM payments`

func findPayments(ctx context.Context, q querier, f schedule.PaymentFilter) ([]schedule.Payment, error) {
	var (
		where []string
		args  []any
	)
	if f.ContractID != "" {
		where = append(where, "contract_id = ?")
		args = append(args, f.ContractID)
	}
	if f.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(f.Type))
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if !f.DueFrom.IsZero() {
		where = append(where, "due_date >= ?")
		args = append(args, f.DueFrom.String())
	}
	if !f.DueTo.IsZero() {
		where = append(where, "due_date <= ?")
		args = append(args, f.DueTo.String())
	}

	query := paymentSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY due_date ASC, created_at ASC"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []schedule.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

func scanPayment(rows *sql.Rows) (*schedule.Payment, error) {
	var (
		p         schedule.Payment
		typ       string
		amount    string
		dueDate   string
		status    string
		notes     sql.NullString
		createdAt string
	)
	err := rows.Scan(&p.ID, &p.ContractID, &p.UserID, &typ, &amount, &p.Currency,
		&dueDate, &status, &p.IsAutomatic, &notes, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan payment: %w", err)
	}

	if p.DueDate, err = schedule.ParseDate(dueDate); err != nil {
		return nil, fmt.Errorf("payment %s: %w", p.ID, err)
	}
	p.Type = schedule.Category(typ)
	p.Amount = parseDecimal(amount)
	p.Status = schedule.PaymentStatus(status)
	p.Notes = notes.String
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &p, nil
}

func createPayment(ctx context.Context, q querier, p schedule.Payment) error {
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO payments
		(id, contract_id, user_id, type, amount, currency, due_date, due_month, status, is_automatic, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := q.ExecContext(ctx, query,
		p.ID, p.ContractID, p.UserID, string(p.Type),
		p.Amount.String(), p.Currency,
		p.DueDate.String(), p.DueDate.MonthKey(),
		string(p.Status), p.IsAutomatic, nullString(p.Notes),
		createdAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &schedule.DuplicatePaymentError{ContractID: p.ContractID, Type: p.Type, Month: p.DueDate.MonthKey()}
		}
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

// CreateAuditRecord implements schedule.Store.
func (s *Store) CreateAuditRecord(ctx context.Context, rec schedule.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createAuditRecord(ctx, s.db, rec)
}

func createAuditRecord(ctx context.Context, q querier, rec schedule.AuditRecord) error {
	ids := rec.PaymentIDs
	if ids == nil {
		ids = []string{}
	}
	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("failed to encode payment ids: %w", err)
	}
	detailsJSON, err := json.Marshal(rec.Details)
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_id, action, contract_id, payment_ids_json, details_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ActorID, string(rec.Action), rec.ContractID,
		string(idsJSON), string(detailsJSON), rec.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}

// ListAuditRecords returns the audit records of a contract, newest first.
func (s *Store) ListAuditRecords(ctx context.Context, contractID string) ([]schedule.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_id, action, contract_id, payment_ids_json, details_json, created_at
		FROM audit_logs
		WHERE contract_id = ?
		ORDER BY created_at DESC, id`,
		contractID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	var records []schedule.AuditRecord
	for rows.Next() {
		var (
			rec         schedule.AuditRecord
			action      string
			idsJSON     string
			detailsJSON sql.NullString
			createdAt   string
		)
		if err := rows.Scan(&rec.ID, &rec.ActorID, &action, &rec.ContractID, &idsJSON, &detailsJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		rec.Action = schedule.AuditAction(action)
		json.Unmarshal([]byte(idsJSON), &rec.PaymentIDs)
		if detailsJSON.Valid && detailsJSON.String != "" {
			json.Unmarshal([]byte(detailsJSON.String), &rec.Details)
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE (schedule.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store schedule.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) FindContractByID(ctx context.Context, id string) (*schedule.Contract, error) {
	return findContract(ctx, ts.tx, id)
}

func (ts *txStore) FindPayments(ctx context.Context, f schedule.PaymentFilter) ([]schedule.Payment, error) {
	return findPayments(ctx, ts.tx, f)
}

func (ts *txStore) CreatePayment(ctx context.Context, p schedule.Payment) error {
	return createPayment(ctx, ts.tx, p)
}

func (ts *txStore) CreateAuditRecord(ctx context.Context, rec schedule.AuditRecord) error {
	return createAuditRecord(ctx, ts.tx, rec)
}

// =============================================================================
// NOTIFICATIONS (reminder job)
// =============================================================================

// Notification is a reminder addressed to a user about one payment.
type Notification struct {
	ID        string
	UserID    string
	PaymentID string
	Kind      string
	Message   string
	ForDate   schedule.Date
	CreatedAt time.Time
}

// SaveNotification inserts n unless one already exists for the same
// (payment, kind, day). Returns whether a row was inserted.
func (s *Store) SaveNotification(ctx context.Context, n Notification) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO notifications (id, user_id, payment_id, kind, message, for_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.PaymentID, n.Kind, n.Message,
		n.ForDate.String(), n.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert notification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ListNotifications returns a user's notifications, newest first.
func (s *Store) ListNotifications(ctx context.Context, userID string, limit int) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, payment_id, kind, message, for_date, created_at
		FROM notifications
		WHERE user_id = ?
		ORDER BY created_at DESC, id
		LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []Notification
	for rows.Next() {
		var (
			n         Notification
			forDate   string
			createdAt string
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.PaymentID, &n.Kind, &n.Message, &forDate, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.ForDate, _ = schedule.ParseDate(forDate)
		n.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
