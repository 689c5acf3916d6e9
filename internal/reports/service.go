package reports

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"blue-carbon-registry/portal-backend/internal/auth"
	"blue-carbon-registry/portal-backend/internal/credits"
	"blue-carbon-registry/portal-backend/internal/notifications"
	"blue-carbon-registry/portal-backend/pkg/pdf"
	"blue-carbon-registry/portal-backend/pkg/storage"
	"blue-carbon-registry/portal-backend/pkg/workflows"
)

// ErrInvalidTransition is returned when a decision targets a report whose
// status does not admit it
var ErrInvalidTransition = errors.New("report status does not allow this transition")

// ErrNotApproved is returned when a certificate is requested for a report
// that has not been approved
var ErrNotApproved = errors.New("certificates are only available for approved reports")

// CreditIssuer appends approved credits to the ledger
type CreditIssuer interface {
	RecordIssuance(ctx context.Context, input credits.IssuanceInput) (*credits.LedgerEntry, error)
}

// Service provides business logic for the report lifecycle
type Service struct {
	repo         Repository
	committer    *Committer
	stateMachine *workflows.StateMachine
	publisher    notifications.Publisher
	issuer       CreditIssuer
	certificates pdf.Generator
	blobs        storage.S3Client
	bucket       string
	logger       *zap.Logger

	summaryCache atomic.Pointer[DashboardSummary]
}

// NewService creates a new reports service
func NewService(
	repo Repository,
	committer *Committer,
	publisher notifications.Publisher,
	issuer CreditIssuer,
	certificates pdf.Generator,
	blobs storage.S3Client,
	bucket string,
	logger *zap.Logger,
) *Service {
	return &Service{
		repo:         repo,
		committer:    committer,
		stateMachine: workflows.NewStateMachine(),
		publisher:    publisher,
		issuer:       issuer,
		certificates: certificates,
		blobs:        blobs,
		bucket:       bucket,
		logger:       logger,
	}
}

// =====================================================
// Submission
// =====================================================

// SubmitReport commits a draft plus its staged files and announces the
// new pending report to live viewers
func (s *Service) SubmitReport(ctx context.Context, draft *ReportDraft, staging *Staging, owner auth.Identity, onProgress ProgressFunc) (*Report, error) {
	report, err := s.committer.Submit(ctx, draft, staging, owner, onProgress)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, notifications.ReportChangeEvent{
		Type:               notifications.EventReportSubmitted,
		ReportID:           report.ID,
		UserID:             report.UserID,
		VerificationStatus: string(report.VerificationStatus),
		OccurredAt:         time.Now(),
	})

	return report, nil
}

// =====================================================
// Lifecycle
// =====================================================

// Decide applies an administrator's approve/reject decision in one
// conditional partial update. Approvals default the issued credits to the
// report's estimate unless explicitly overridden; rejections force the
// issued credits to null no matter what was supplied.
func (s *Service) Decide(ctx context.Context, reportID uuid.UUID, req *DecideRequest, verifier auth.Identity) (*Report, error) {
	report, err := s.repo.GetReport(ctx, reportID)
	if err != nil {
		return nil, err
	}

	var target VerificationStatus
	switch req.Decision {
	case DecisionApprove:
		target = VerificationStatusApproved
	case DecisionReject:
		target = VerificationStatusRejected
	default:
		return nil, fmt.Errorf("unknown decision %q", req.Decision)
	}

	if !s.stateMachine.CanTransition(string(report.VerificationStatus), string(target)) {
		if s.stateMachine.IsTerminal(string(report.VerificationStatus)) {
			return nil, ErrAlreadyDecided
		}
		return nil, ErrInvalidTransition
	}

	update := &DecisionUpdate{
		ReportID:           reportID,
		Status:             target.Status(),
		VerificationStatus: target,
		VerifiedBy:         verifier.Name,
		VerifiedAt:         time.Now(),
	}
	if req.Notes != "" {
		notes := req.Notes
		update.VerificationNotes = &notes
	}

	switch req.Decision {
	case DecisionApprove:
		issued := report.EstimatedCredits
		if req.CreditsToIssue != nil {
			issued = *req.CreditsToIssue
		}
		if issued < 1 {
			return nil, fmt.Errorf("credits to issue must be at least 1, got %d", issued)
		}
		update.ActualCredits = &issued
	case DecisionReject:
		update.ActualCredits = nil
		if req.Notes == "" {
			s.logger.Warn("Report rejected without notes",
				zap.String("report_id", reportID.String()),
				zap.String("verified_by", verifier.Name))
		}
	}

	updated, err := s.repo.ApplyDecision(ctx, update)
	if err != nil {
		return nil, err
	}

	if req.Decision == DecisionApprove && s.issuer != nil {
		_, err := s.issuer.RecordIssuance(ctx, credits.IssuanceInput{
			ReportID:     updated.ID,
			IssuedTo:     updated.UserID,
			IssuedToName: updated.UserName,
			IssuedBy:     verifier.Name,
			Amount:       *updated.ActualCredits,
		})
		if err != nil {
			// The decision stands; the ledger entry can be replayed
			s.logger.Error("Failed to record credit issuance",
				zap.String("report_id", updated.ID.String()),
				zap.Error(err))
		}
	}

	s.logger.Info("Report decided",
		zap.String("report_id", updated.ID.String()),
		zap.String("decision", string(req.Decision)),
		zap.String("verified_by", verifier.Name))

	s.publish(ctx, notifications.ReportChangeEvent{
		Type:               notifications.EventReportDecided,
		ReportID:           updated.ID,
		UserID:             updated.UserID,
		VerificationStatus: string(updated.VerificationStatus),
		ActualCredits:      updated.ActualCredits,
		OccurredAt:         time.Now(),
	})

	return updated, nil
}

// =====================================================
// Queries
// =====================================================

// GetReport retrieves one report by ID
func (s *Service) GetReport(ctx context.Context, id uuid.UUID) (*Report, error) {
	return s.repo.GetReport(ctx, id)
}

// ListReports returns a page of reports matching the filters, newest
// submission first
func (s *Service) ListReports(ctx context.Context, filters *ReportFilters) (*ListReportsResponse, error) {
	reports, total, err := s.repo.ListReports(ctx, filters)
	if err != nil {
		return nil, err
	}
	page := filters.Page
	if page < 1 {
		page = 1
	}
	pageSize := filters.PageSize
	if pageSize < 1 {
		pageSize = 20
	}
	return &ListReportsResponse{
		Reports:  reports,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

// proofLinkTTL bounds how long a minted proof download link stays valid
const proofLinkTTL = 15 * time.Minute

// ProofLinks mints short-lived signed download links for every proof
// document on a report, so reviewers can inspect the evidence behind a
// decision
func (s *Service) ProofLinks(ctx context.Context, report *Report) ([]ProofLink, error) {
	links := make([]ProofLink, 0, len(report.ProofDocuments))
	expiresAt := time.Now().Add(proofLinkTTL)

	for _, doc := range report.ProofDocuments {
		url, err := s.blobs.GetPresignedURL(ctx, s.bucket, doc.FilePath, proofLinkTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to sign link for %s: %w", doc.FileName, err)
		}
		links = append(links, ProofLink{
			FileName:  doc.FileName,
			FileType:  doc.FileType,
			URL:       url,
			ExpiresAt: expiresAt,
		})
	}
	return links, nil
}

// ListPending returns the administrator review queue
func (s *Service) ListPending(ctx context.Context, page, pageSize int) (*ListReportsResponse, error) {
	status := VerificationStatusPending
	return s.ListReports(ctx, &ReportFilters{
		VerificationStatus: &status,
		Page:               page,
		PageSize:           pageSize,
	})
}

// GetDashboardSummary returns the registry-wide counters, preferring the
// cached aggregate maintained by the refresh job
func (s *Service) GetDashboardSummary(ctx context.Context) (*DashboardSummary, error) {
	if cached := s.summaryCache.Load(); cached != nil {
		return cached, nil
	}
	return s.RefreshSummary(ctx)
}

// RefreshSummary recomputes and caches the dashboard aggregate
func (s *Service) RefreshSummary(ctx context.Context) (*DashboardSummary, error) {
	summary, err := s.repo.GetDashboardSummary(ctx)
	if err != nil {
		return nil, err
	}
	s.summaryCache.Store(summary)
	return summary, nil
}

// =====================================================
// Certificates
// =====================================================

// GetCertificate renders the credit issuance certificate for an approved
// report
func (s *Service) GetCertificate(ctx context.Context, id uuid.UUID) ([]byte, error) {
	report, err := s.repo.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	if report.VerificationStatus != VerificationStatusApproved || report.ActualCredits == nil {
		return nil, ErrNotApproved
	}

	verifiedBy := ""
	if report.VerifiedBy != nil {
		verifiedBy = *report.VerifiedBy
	}
	verifiedAt := time.Now()
	if report.VerifiedAt != nil {
		verifiedAt = *report.VerifiedAt
	}

	return s.certificates.GenerateCertificate(ctx, pdf.CertificateData{
		ReportID:      report.ID.String(),
		ProjectName:   report.ProjectName,
		CommunityName: report.CommunityName,
		ActivityType:  string(report.ActivityType),
		AreaCovered:   report.AreaCovered,
		CreditsIssued: *report.ActualCredits,
		VerifiedBy:    verifiedBy,
		VerifiedAt:    verifiedAt,
	})
}

func (s *Service) publish(ctx context.Context, event notifications.ReportChangeEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		// Viewers reconcile on their next read; the write already
		// succeeded
		s.logger.Warn("Failed to publish report change event",
			zap.String("report_id", event.ReportID.String()),
			zap.Error(err))
	}
}
