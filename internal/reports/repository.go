package reports

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var (
	// ErrReportNotFound is returned when no report exists for an ID
	ErrReportNotFound = errors.New("report not found")
	// ErrAlreadyDecided is returned when a decision targets a report
	// that has already reached a terminal status
	ErrAlreadyDecided = errors.New("report has already been decided")
)

// DecisionUpdate is the partial-field write applied by a verification
// decision. It never touches owner identity, draft fields, or proof
// documents.
type DecisionUpdate struct {
	ReportID           uuid.UUID
	Status             ReportStatus
	VerificationStatus VerificationStatus
	VerifiedBy         string
	VerificationNotes  *string
	ActualCredits      *int
	VerifiedAt         time.Time
}

// Repository defines the interface for report data access
type Repository interface {
	CreateReport(ctx context.Context, report *Report) error
	GetReport(ctx context.Context, id uuid.UUID) (*Report, error)
	ListReports(ctx context.Context, filters *ReportFilters) ([]*Report, int, error)
	ApplyDecision(ctx context.Context, update *DecisionUpdate) (*Report, error)
	GetDashboardSummary(ctx context.Context) (*DashboardSummary, error)
}

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const reportsSchema = `
CREATE TABLE IF NOT EXISTS reports (
	id UUID PRIMARY KEY,
	user_id TEXT NOT NULL,
	user_name TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL,
	project_name TEXT NOT NULL,
	community_name TEXT NOT NULL,
	activity_type TEXT NOT NULL,
	area_covered NUMERIC(10,2) NOT NULL,
	location_coordinates TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	estimated_credits INTEGER NOT NULL,
	proof_documents JSONB NOT NULL DEFAULT '[]',
	gps_data JSONB,
	status TEXT NOT NULL DEFAULT 'Pending',
	verification_status TEXT NOT NULL DEFAULT 'pending',
	verified_by TEXT,
	verification_notes TEXT,
	actual_credits INTEGER,
	verified_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_reports_user_id ON reports (user_id);
CREATE INDEX IF NOT EXISTS idx_reports_verification_status ON reports (verification_status, created_at DESC);
`

// Migrate creates the reports table and indexes if missing
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, reportsSchema); err != nil {
		return fmt.Errorf("failed to migrate reports schema: %w", err)
	}
	return nil
}

// CreateReport inserts the full report row in a single statement
func (r *PostgresRepository) CreateReport(ctx context.Context, report *Report) error {
	query := `
		INSERT INTO reports (
			id, user_id, user_name, title, project_name, community_name,
			activity_type, area_covered, location_coordinates, description,
			estimated_credits, proof_documents, gps_data, status,
			verification_status, created_at
		) VALUES (
			:id, :user_id, :user_name, :title, :project_name, :community_name,
			:activity_type, :area_covered, :location_coordinates, :description,
			:estimated_credits, :proof_documents, :gps_data, :status,
			:verification_status, :created_at
		)`

	if _, err := r.db.NamedExecContext(ctx, query, report); err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}
	return nil
}

// GetReport retrieves a report by ID
func (r *PostgresRepository) GetReport(ctx context.Context, id uuid.UUID) (*Report, error) {
	var report Report
	err := r.db.GetContext(ctx, &report, `SELECT * FROM reports WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return &report, nil
}

// ListReports returns a page of reports, newest submission first
func (r *PostgresRepository) ListReports(ctx context.Context, filters *ReportFilters) ([]*Report, int, error) {
	conditions := []string{}
	args := []interface{}{}

	if filters.UserID != nil {
		args = append(args, *filters.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filters.VerificationStatus != nil {
		args = append(args, *filters.VerificationStatus)
		conditions = append(conditions, fmt.Sprintf("verification_status = $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM reports"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count reports: %w", err)
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
		"SELECT * FROM reports%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		where, len(args)-1, len(args))

	reports := []*Report{}
	if err := r.db.SelectContext(ctx, &reports, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list reports: %w", err)
	}
	return reports, total, nil
}

// ApplyDecision performs the conditional partial update for a verification
// decision. The status guard makes a second decision on the same report a
// no-op instead of a silent overwrite.
func (r *PostgresRepository) ApplyDecision(ctx context.Context, update *DecisionUpdate) (*Report, error) {
	query := `
		UPDATE reports SET
			status = $1,
			verification_status = $2,
			verified_by = $3,
			verification_notes = $4,
			actual_credits = $5,
			verified_at = $6
		WHERE id = $7 AND verification_status IN ('pending', 'under_review')
		RETURNING *`

	var report Report
	err := r.db.GetContext(ctx, &report, query,
		update.Status,
		update.VerificationStatus,
		update.VerifiedBy,
		update.VerificationNotes,
		update.ActualCredits,
		update.VerifiedAt,
		update.ReportID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		// Distinguish a missing report from one already decided
		if _, getErr := r.GetReport(ctx, update.ReportID); getErr != nil {
			return nil, getErr
		}
		return nil, ErrAlreadyDecided
	}
	if err != nil {
		return nil, fmt.Errorf("failed to apply decision: %w", err)
	}
	return &report, nil
}

// GetDashboardSummary aggregates registry-wide counters in one query
func (r *PostgresRepository) GetDashboardSummary(ctx context.Context) (*DashboardSummary, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE verification_status = 'pending') AS pending_count,
			COUNT(*) FILTER (WHERE verification_status = 'under_review') AS under_review_count,
			COUNT(*) FILTER (WHERE verification_status = 'approved') AS approved_count,
			COUNT(*) FILTER (WHERE verification_status = 'rejected') AS rejected_count,
			COALESCE(SUM(estimated_credits), 0) AS estimated_credits,
			COALESCE(SUM(actual_credits) FILTER (WHERE verification_status = 'approved'), 0) AS issued_credits,
			COALESCE(SUM(area_covered), 0) AS total_area_covered
		FROM reports`

	var summary DashboardSummary
	if err := r.db.GetContext(ctx, &summary, query); err != nil {
		return nil, fmt.Errorf("failed to aggregate dashboard summary: %w", err)
	}
	summary.GeneratedAt = time.Now()
	return &summary, nil
}
