package reports

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"blue-carbon-registry/portal-backend/internal/auth"
	"blue-carbon-registry/portal-backend/pkg/storage"
)

var (
	// ErrNotAuthenticated is returned when submission is attempted
	// without an owner identity
	ErrNotAuthenticated = errors.New("you must be logged in to submit a report")
	// ErrNoProofFiles is returned when submission is attempted with an
	// empty staging area
	ErrNoProofFiles = errors.New("at least one proof document is required")
	// ErrSubmissionInFlight is returned when a second submission is
	// attempted while one is already running for the same staging area.
	// Submissions over different staging areas proceed independently.
	ErrSubmissionInFlight = errors.New("a submission is already in progress for this draft")
)

// ValidationError carries the per-field failures of a rejected draft
type ValidationError struct {
	FieldErrors map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("draft validation failed for %d field(s)", len(e.FieldErrors))
}

// ProgressFunc receives fractional upload progress in [0, 1]
type ProgressFunc func(fraction float64)

// Committer turns a valid draft plus staged files into one durable report.
// It is the only component that mutates durable storage on the submission
// path.
type Committer struct {
	storage   storage.S3Client
	repo      Repository
	validator *DraftValidator
	bucket    string
	logger    *zap.Logger
}

// NewCommitter creates a submission committer
func NewCommitter(s3 storage.S3Client, repo Repository, bucket string, logger *zap.Logger) *Committer {
	return &Committer{
		storage:   s3,
		repo:      repo,
		validator: NewDraftValidator(),
		bucket:    bucket,
		logger:    logger,
	}
}

// Submit uploads every staged file and then creates the report row in one
// atomic insert. Preconditions fail before any network call. Uploads run
// sequentially so reported progress is monotonic; the first failed upload
// aborts the batch and no report is created. Files already uploaded stay
// in storage — there is no compensating delete.
func (c *Committer) Submit(ctx context.Context, draft *ReportDraft, staging *Staging, owner auth.Identity, onProgress ProgressFunc) (*Report, error) {
	if owner.ID == "" {
		return nil, ErrNotAuthenticated
	}

	files := staging.Files()
	if len(files) == 0 {
		return nil, ErrNoProofFiles
	}

	if result := c.validator.ValidateDraft(draft); !result.Valid {
		return nil, &ValidationError{FieldErrors: result.FieldErrors}
	}

	if !staging.BeginSubmission() {
		return nil, ErrSubmissionInFlight
	}
	defer staging.EndSubmission()

	if onProgress == nil {
		onProgress = func(float64) {}
	}

	proofDocs := make(ProofDocumentList, 0, len(files))
	total := len(files)

	for i, f := range files {
		key := fmt.Sprintf("%s/%d-%s", owner.ID, time.Now().UnixMilli(), f.Name)

		if err := c.storage.Upload(ctx, c.bucket, key, bytes.NewReader(f.Content)); err != nil {
			c.logger.Error("Proof upload failed, aborting submission",
				zap.String("file", f.Name),
				zap.Int("uploaded", i),
				zap.Int("total", total),
				zap.Error(err))
			return nil, fmt.Errorf("failed to upload %s: %w", f.Name, err)
		}

		proofDocs = append(proofDocs, ProofDocument{
			FileName:   f.Name,
			FileType:   f.Kind,
			FilePath:   key,
			FileSize:   f.Size,
			UploadedAt: time.Now(),
			Geotagged:  f.Geotagged,
			CapturedAt: f.CapturedAt,
		})
		onProgress(float64(i+1) / float64(total))
	}

	report := &Report{
		ID:                  uuid.New(),
		UserID:              owner.ID,
		UserName:            owner.Name,
		Title:               draft.Title,
		ProjectName:         draft.ProjectName,
		CommunityName:       draft.CommunityName,
		ActivityType:        ActivityType(draft.ActivityType),
		AreaCovered:         draft.AreaCovered,
		LocationCoordinates: draft.LocationCoordinates,
		Description:         draft.Description,
		EstimatedCredits:    draft.EstimatedCredits,
		ProofDocuments:      proofDocs,
		GPSData:             draft.ParseGPSData(),
		Status:              ReportStatusPending,
		VerificationStatus:  VerificationStatusPending,
		CreatedAt:           time.Now(),
	}

	if err := c.repo.CreateReport(ctx, report); err != nil {
		// Uploaded files stay orphaned in the bucket; a retry re-uploads
		return nil, fmt.Errorf("failed to create report: %w", err)
	}

	c.logger.Info("Report submitted",
		zap.String("report_id", report.ID.String()),
		zap.String("user_id", owner.ID),
		zap.Int("proof_documents", len(proofDocs)))

	staging.Clear()
	*draft = ReportDraft{}

	return report, nil
}
