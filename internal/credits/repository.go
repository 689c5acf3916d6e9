package credits

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Repository defines the interface for ledger data access
type Repository interface {
	CreateEntry(ctx context.Context, entry *LedgerEntry) error
	ListEntries(ctx context.Context, filters *LedgerFilters) ([]*LedgerEntry, int, error)
	GetSummary(ctx context.Context) (*LedgerSummary, error)
}

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS credit_ledger (
	id UUID PRIMARY KEY,
	report_id UUID NOT NULL,
	issued_to TEXT NOT NULL,
	issued_to_name TEXT NOT NULL DEFAULT '',
	issued_by TEXT NOT NULL,
	amount INTEGER NOT NULL,
	reference TEXT NOT NULL,
	issued_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_credit_ledger_issued_to ON credit_ledger (issued_to);
`

// Migrate creates the ledger table and indexes if missing
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, ledgerSchema); err != nil {
		return fmt.Errorf("failed to migrate credit ledger schema: %w", err)
	}
	return nil
}

// CreateEntry appends one issuance to the ledger
func (r *PostgresRepository) CreateEntry(ctx context.Context, entry *LedgerEntry) error {
	query := `
		INSERT INTO credit_ledger (
			id, report_id, issued_to, issued_to_name, issued_by,
			amount, reference, issued_at
		) VALUES (
			:id, :report_id, :issued_to, :issued_to_name, :issued_by,
			:amount, :reference, :issued_at
		)`

	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	return nil
}

// ListEntries returns a page of ledger entries, newest first
func (r *PostgresRepository) ListEntries(ctx context.Context, filters *LedgerFilters) ([]*LedgerEntry, int, error) {
	where := ""
	args := []interface{}{}

	if filters.IssuedTo != nil {
		args = append(args, *filters.IssuedTo)
		where = " WHERE issued_to = $1"
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM credit_ledger"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count ledger entries: %w", err)
	}

	page := filters.Page
	if page < 1 {
		page = 1
	}
	pageSize := filters.PageSize
	if pageSize < 1 {
		pageSize = 20
	}

	args = append(args, pageSize, (page-1)*pageSize)
	query := fmt.Sprintf(
		"SELECT * FROM credit_ledger%s ORDER BY issued_at DESC LIMIT $%d OFFSET $%d",
		where, len(args)-1, len(args))

	entries := []*LedgerEntry{}
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	return entries, total, nil
}

// GetSummary aggregates the ledger in one query
func (r *PostgresRepository) GetSummary(ctx context.Context) (*LedgerSummary, error) {
	var summary LedgerSummary
	query := `SELECT COALESCE(SUM(amount), 0) AS total_issued, COUNT(*) AS entry_count FROM credit_ledger`
	if err := r.db.GetContext(ctx, &summary, query); err != nil {
		return nil, fmt.Errorf("failed to aggregate ledger summary: %w", err)
	}
	return &summary, nil
}
