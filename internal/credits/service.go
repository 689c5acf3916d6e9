package credits

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service provides business logic for the carbon-credit ledger
type Service struct {
	repo   Repository
	logger *zap.Logger
}

// NewService creates a new credits service
func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// IssuanceInput describes one approval's worth of credits
type IssuanceInput struct {
	ReportID     uuid.UUID
	IssuedTo     string
	IssuedToName string
	IssuedBy     string
	Amount       int
}

// RecordIssuance appends a ledger entry for an approved report
func (s *Service) RecordIssuance(ctx context.Context, input IssuanceInput) (*LedgerEntry, error) {
	if input.Amount < 1 {
		return nil, fmt.Errorf("issuance amount must be at least 1, got %d", input.Amount)
	}

	entry := &LedgerEntry{
		ID:           uuid.New(),
		ReportID:     input.ReportID,
		IssuedTo:     input.IssuedTo,
		IssuedToName: input.IssuedToName,
		IssuedBy:     input.IssuedBy,
		Amount:       input.Amount,
		Reference:    newReference(input.ReportID),
		IssuedAt:     time.Now(),
	}

	if err := s.repo.CreateEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to record issuance: %w", err)
	}

	s.logger.Info("Credits issued",
		zap.String("report_id", input.ReportID.String()),
		zap.String("issued_to", input.IssuedTo),
		zap.Int("amount", input.Amount),
		zap.String("reference", entry.Reference))

	return entry, nil
}

// ListEntries returns a page of ledger entries
func (s *Service) ListEntries(ctx context.Context, filters *LedgerFilters) ([]*LedgerEntry, int, error) {
	return s.repo.ListEntries(ctx, filters)
}

// GetSummary returns the ledger totals
func (s *Service) GetSummary(ctx context.Context) (*LedgerSummary, error) {
	return s.repo.GetSummary(ctx)
}

// newReference derives a human-quotable transaction reference from the
// report identity
func newReference(reportID uuid.UUID) string {
	short := strings.ToUpper(strings.ReplaceAll(reportID.String(), "-", ""))[:12]
	return "BCR-TXN-" + short
}
