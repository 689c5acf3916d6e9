package reports

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"blue-carbon-registry/portal-backend/internal/auth"
	"blue-carbon-registry/portal-backend/internal/credits"
	"blue-carbon-registry/portal-backend/internal/notifications"
	"blue-carbon-registry/portal-backend/pkg/pdf"
)

// MockCreditIssuer is a mock implementation of the CreditIssuer interface
type MockCreditIssuer struct {
	mock.Mock
}

func (m *MockCreditIssuer) RecordIssuance(ctx context.Context, input credits.IssuanceInput) (*credits.LedgerEntry, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*credits.LedgerEntry), args.Error(1)
}

var testVerifier = auth.Identity{ID: "admin-1", Name: "Dr. Sharma", Role: auth.RoleNCCR}

func pendingReport() *Report {
	return &Report{
		ID:                 uuid.New(),
		UserID:             "user-123",
		UserName:           "Ravi Kumar",
		Title:              "Mangrove Plantation at Site A",
		ProjectName:        "Sundarbans Mangrove Restoration",
		CommunityName:      "Gosaba Village Committee",
		ActivityType:       ActivityMangrovePlantation,
		AreaCovered:        2.5,
		Description:        "Planted 500 saplings along the eastern bank.",
		EstimatedCredits:   150,
		Status:             ReportStatusPending,
		VerificationStatus: VerificationStatusPending,
		CreatedAt:          time.Now(),
	}
}

func newTestService(repo *MockRepository, publisher notifications.Publisher, issuer CreditIssuer) *Service {
	return NewService(repo, nil, publisher, issuer, pdf.NewGenerator(), new(MockS3Client), "proof-documents", zap.NewNop())
}

func decidedCopy(report *Report, update *DecisionUpdate) *Report {
	decided := *report
	decided.Status = update.Status
	decided.VerificationStatus = update.VerificationStatus
	decided.VerifiedBy = &update.VerifiedBy
	decided.VerifiedAt = &update.VerifiedAt
	decided.VerificationNotes = update.VerificationNotes
	decided.ActualCredits = update.ActualCredits
	return &decided
}

func TestDecideApproveDefaultsCreditsToEstimate(t *testing.T) {
	repo := new(MockRepository)
	issuer := new(MockCreditIssuer)
	publisher := notifications.NewMemoryPublisher()
	service := newTestService(repo, publisher, issuer)

	report := pendingReport()
	repo.On("GetReport", mock.Anything, report.ID).Return(report, nil)
	repo.On("ApplyDecision", mock.Anything, mock.MatchedBy(func(update *DecisionUpdate) bool {
		return update.VerificationStatus == VerificationStatusApproved &&
			update.Status == ReportStatusApproved &&
			update.ActualCredits != nil && *update.ActualCredits == 150 &&
			update.VerifiedBy == "Dr. Sharma"
	})).Return(decidedCopy(report, &DecisionUpdate{
		Status:             ReportStatusApproved,
		VerificationStatus: VerificationStatusApproved,
		VerifiedBy:         "Dr. Sharma",
		VerifiedAt:         time.Now(),
		ActualCredits:      intPtr(150),
	}), nil)
	issuer.On("RecordIssuance", mock.Anything, mock.MatchedBy(func(input credits.IssuanceInput) bool {
		return input.ReportID == report.ID && input.Amount == 150 &&
			input.IssuedTo == "user-123" && input.IssuedBy == "Dr. Sharma"
	})).Return(&credits.LedgerEntry{ID: uuid.New()}, nil)

	sub, err := publisher.Subscribe(context.Background())
	require.NoError(t, err)
	defer sub.Close()

	decided, err := service.Decide(context.Background(), report.ID,
		&DecideRequest{Decision: DecisionApprove, Notes: "Verified on site"}, testVerifier)
	require.NoError(t, err)

	assert.Equal(t, ReportStatusApproved, decided.Status)
	require.NotNil(t, decided.ActualCredits)
	assert.Equal(t, 150, *decided.ActualCredits)

	select {
	case event := <-sub.Events():
		assert.Equal(t, notifications.EventReportDecided, event.Type)
		assert.Equal(t, report.ID, event.ReportID)
		assert.Equal(t, string(VerificationStatusApproved), event.VerificationStatus)
		require.NotNil(t, event.ActualCredits)
		assert.Equal(t, 150, *event.ActualCredits)
	default:
		t.Fatal("expected a decided event to be published")
	}

	repo.AssertExpectations(t)
	issuer.AssertExpectations(t)
}

func TestDecideApproveHonorsCreditOverride(t *testing.T) {
	repo := new(MockRepository)
	issuer := new(MockCreditIssuer)
	service := newTestService(repo, notifications.NewMemoryPublisher(), issuer)

	report := pendingReport()
	repo.On("GetReport", mock.Anything, report.ID).Return(report, nil)
	repo.On("ApplyDecision", mock.Anything, mock.MatchedBy(func(update *DecisionUpdate) bool {
		return update.ActualCredits != nil && *update.ActualCredits == 160
	})).Return(decidedCopy(report, &DecisionUpdate{
		Status:             ReportStatusApproved,
		VerificationStatus: VerificationStatusApproved,
		VerifiedBy:         "Dr. Sharma",
		VerifiedAt:         time.Now(),
		ActualCredits:      intPtr(160),
	}), nil)
	issuer.On("RecordIssuance", mock.Anything, mock.MatchedBy(func(input credits.IssuanceInput) bool {
		return input.Amount == 160
	})).Return(&credits.LedgerEntry{ID: uuid.New()}, nil)

	decided, err := service.Decide(context.Background(), report.ID,
		&DecideRequest{Decision: DecisionApprove, CreditsToIssue: intPtr(160)}, testVerifier)
	require.NoError(t, err)
	require.NotNil(t, decided.ActualCredits)
	assert.Equal(t, 160, *decided.ActualCredits)
}

func TestDecideApproveRejectsNonPositiveCredits(t *testing.T) {
	repo := new(MockRepository)
	service := newTestService(repo, notifications.NewMemoryPublisher(), nil)

	report := pendingReport()
	repo.On("GetReport", mock.Anything, report.ID).Return(report, nil)

	_, err := service.Decide(context.Background(), report.ID,
		&DecideRequest{Decision: DecisionApprove, CreditsToIssue: intPtr(0)}, testVerifier)
	require.Error(t, err)
	repo.AssertNotCalled(t, "ApplyDecision", mock.Anything, mock.Anything)
}

func TestDecideRejectForcesNilCredits(t *testing.T) {
	repo := new(MockRepository)
	issuer := new(MockCreditIssuer)
	service := newTestService(repo, notifications.NewMemoryPublisher(), issuer)

	report := pendingReport()
	repo.On("GetReport", mock.Anything, report.ID).Return(report, nil)
	repo.On("ApplyDecision", mock.Anything, mock.MatchedBy(func(update *DecisionUpdate) bool {
		// A supplied credit amount on a rejection must be discarded
		return update.VerificationStatus == VerificationStatusRejected &&
			update.ActualCredits == nil
	})).Return(decidedCopy(report, &DecisionUpdate{
		Status:             ReportStatusRejected,
		VerificationStatus: VerificationStatusRejected,
		VerifiedBy:         "Dr. Sharma",
		VerifiedAt:         time.Now(),
	}), nil)

	decided, err := service.Decide(context.Background(), report.ID,
		&DecideRequest{Decision: DecisionReject, Notes: "Photos lack geotags", CreditsToIssue: intPtr(75)}, testVerifier)
	require.NoError(t, err)

	assert.Equal(t, ReportStatusRejected, decided.Status)
	assert.Nil(t, decided.ActualCredits)
	issuer.AssertNotCalled(t, "RecordIssuance", mock.Anything, mock.Anything)
}

func TestDecideOnDecidedReportConflicts(t *testing.T) {
	repo := new(MockRepository)
	service := newTestService(repo, notifications.NewMemoryPublisher(), nil)

	report := pendingReport()
	report.Status = ReportStatusApproved
	report.VerificationStatus = VerificationStatusApproved
	report.ActualCredits = intPtr(150)
	repo.On("GetReport", mock.Anything, report.ID).Return(report, nil)

	_, err := service.Decide(context.Background(), report.ID,
		&DecideRequest{Decision: DecisionReject}, testVerifier)
	require.ErrorIs(t, err, ErrAlreadyDecided)
	repo.AssertNotCalled(t, "ApplyDecision", mock.Anything, mock.Anything)
}

func TestDecideUnknownDecision(t *testing.T) {
	repo := new(MockRepository)
	service := newTestService(repo, notifications.NewMemoryPublisher(), nil)

	report := pendingReport()
	repo.On("GetReport", mock.Anything, report.ID).Return(report, nil)

	_, err := service.Decide(context.Background(), report.ID,
		&DecideRequest{Decision: Decision("escalate")}, testVerifier)
	require.Error(t, err)
	repo.AssertNotCalled(t, "ApplyDecision", mock.Anything, mock.Anything)
}

func TestDecideSurvivesLedgerFailure(t *testing.T) {
	repo := new(MockRepository)
	issuer := new(MockCreditIssuer)
	service := newTestService(repo, notifications.NewMemoryPublisher(), issuer)

	report := pendingReport()
	repo.On("GetReport", mock.Anything, report.ID).Return(report, nil)
	repo.On("ApplyDecision", mock.Anything, mock.Anything).Return(decidedCopy(report, &DecisionUpdate{
		Status:             ReportStatusApproved,
		VerificationStatus: VerificationStatusApproved,
		VerifiedBy:         "Dr. Sharma",
		VerifiedAt:         time.Now(),
		ActualCredits:      intPtr(150),
	}), nil)
	issuer.On("RecordIssuance", mock.Anything, mock.Anything).Return(nil, errors.New("ledger unavailable"))

	// The decision stands even when the ledger write fails
	decided, err := service.Decide(context.Background(), report.ID,
		&DecideRequest{Decision: DecisionApprove}, testVerifier)
	require.NoError(t, err)
	assert.Equal(t, ReportStatusApproved, decided.Status)
}

func TestSubmitReportPublishesSubmittedEvent(t *testing.T) {
	s3 := new(MockS3Client)
	repo := new(MockRepository)
	publisher := notifications.NewMemoryPublisher()
	committer := newTestCommitter(s3, repo)
	service := NewService(repo, committer, publisher, nil, pdf.NewGenerator(), s3, "proof-documents", zap.NewNop())

	s3.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	repo.On("CreateReport", mock.Anything, mock.Anything).Return(nil)

	sub, err := publisher.Subscribe(context.Background())
	require.NoError(t, err)
	defer sub.Close()

	report, err := service.SubmitReport(context.Background(), validDraft(), stagingWithOneFile(), testOwner, nil)
	require.NoError(t, err)

	select {
	case event := <-sub.Events():
		assert.Equal(t, notifications.EventReportSubmitted, event.Type)
		assert.Equal(t, report.ID, event.ReportID)
		assert.Equal(t, string(VerificationStatusPending), event.VerificationStatus)
	default:
		t.Fatal("expected a submitted event to be published")
	}
}

func TestGetCertificateRequiresApproval(t *testing.T) {
	repo := new(MockRepository)
	service := newTestService(repo, notifications.NewMemoryPublisher(), nil)

	report := pendingReport()
	repo.On("GetReport", mock.Anything, report.ID).Return(report, nil)

	_, err := service.GetCertificate(context.Background(), report.ID)
	require.ErrorIs(t, err, ErrNotApproved)
}

func TestGetCertificateForApprovedReport(t *testing.T) {
	repo := new(MockRepository)
	service := newTestService(repo, notifications.NewMemoryPublisher(), nil)

	report := pendingReport()
	report.Status = ReportStatusApproved
	report.VerificationStatus = VerificationStatusApproved
	report.ActualCredits = intPtr(150)
	verifiedBy := "Dr. Sharma"
	verifiedAt := time.Now()
	report.VerifiedBy = &verifiedBy
	report.VerifiedAt = &verifiedAt
	repo.On("GetReport", mock.Anything, report.ID).Return(report, nil)

	certificate, err := service.GetCertificate(context.Background(), report.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, certificate)
	assert.Equal(t, "%PDF", string(certificate[:4]))
}

func TestProofLinksSignsEveryDocument(t *testing.T) {
	repo := new(MockRepository)
	s3 := new(MockS3Client)
	service := NewService(repo, nil, notifications.NewMemoryPublisher(), nil, pdf.NewGenerator(), s3, "proof-documents", zap.NewNop())

	report := pendingReport()
	report.ProofDocuments = ProofDocumentList{
		{FileName: "site-a.jpg", FileType: ProofKindPhoto, FilePath: "user-123/1-site-a.jpg", FileSize: 1024},
		{FileName: "track.gpx", FileType: ProofKindGPS, FilePath: "user-123/2-track.gpx", FileSize: 512},
	}

	s3.On("GetPresignedURL", mock.Anything, "proof-documents", "user-123/1-site-a.jpg", mock.Anything).
		Return("https://signed.example/site-a.jpg", nil)
	s3.On("GetPresignedURL", mock.Anything, "proof-documents", "user-123/2-track.gpx", mock.Anything).
		Return("https://signed.example/track.gpx", nil)

	links, err := service.ProofLinks(context.Background(), report)
	require.NoError(t, err)

	require.Len(t, links, 2)
	assert.Equal(t, "site-a.jpg", links[0].FileName)
	assert.Equal(t, ProofKindPhoto, links[0].FileType)
	assert.Equal(t, "https://signed.example/site-a.jpg", links[0].URL)
	assert.Equal(t, "https://signed.example/track.gpx", links[1].URL)
	assert.True(t, links[0].ExpiresAt.After(time.Now()))
	s3.AssertExpectations(t)
}

func TestProofLinksSurfacesSigningFailure(t *testing.T) {
	repo := new(MockRepository)
	s3 := new(MockS3Client)
	service := NewService(repo, nil, notifications.NewMemoryPublisher(), nil, pdf.NewGenerator(), s3, "proof-documents", zap.NewNop())

	report := pendingReport()
	report.ProofDocuments = ProofDocumentList{
		{FileName: "site-a.jpg", FileType: ProofKindPhoto, FilePath: "user-123/1-site-a.jpg"},
	}
	s3.On("GetPresignedURL", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", errors.New("presign unavailable"))

	_, err := service.ProofLinks(context.Background(), report)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "site-a.jpg")
}

func TestGetDashboardSummaryUsesCache(t *testing.T) {
	repo := new(MockRepository)
	service := newTestService(repo, notifications.NewMemoryPublisher(), nil)

	summary := &DashboardSummary{PendingCount: 3, ApprovedCount: 7, IssuedCredits: 900}
	repo.On("GetDashboardSummary", mock.Anything).Return(summary, nil).Once()

	first, err := service.GetDashboardSummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, first.PendingCount)

	// The second read must come from the cache, not the repository
	second, err := service.GetDashboardSummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, second.ApprovedCount)

	repo.AssertNumberOfCalls(t, "GetDashboardSummary", 1)
}

func intPtr(v int) *int { return &v }
