package reports

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"blue-carbon-registry/portal-backend/internal/auth"
)

// MockRepository is a mock implementation of the Repository interface
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateReport(ctx context.Context, report *Report) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

func (m *MockRepository) GetReport(ctx context.Context, id uuid.UUID) (*Report, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Report), args.Error(1)
}

func (m *MockRepository) ListReports(ctx context.Context, filters *ReportFilters) ([]*Report, int, error) {
	args := m.Called(ctx, filters)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*Report), args.Int(1), args.Error(2)
}

func (m *MockRepository) ApplyDecision(ctx context.Context, update *DecisionUpdate) (*Report, error) {
	args := m.Called(ctx, update)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Report), args.Error(1)
}

func (m *MockRepository) GetDashboardSummary(ctx context.Context) (*DashboardSummary, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*DashboardSummary), args.Error(1)
}

// MockS3Client is a mock implementation of the blob store client
type MockS3Client struct {
	mock.Mock
}

func (m *MockS3Client) Upload(ctx context.Context, bucket, key string, body io.Reader) error {
	args := m.Called(ctx, bucket, key, body)
	return args.Error(0)
}

func (m *MockS3Client) GetPresignedURL(ctx context.Context, bucket, key string, expiration time.Duration) (string, error) {
	args := m.Called(ctx, bucket, key, expiration)
	return args.String(0), args.Error(1)
}

var testOwner = auth.Identity{ID: "user-123", Name: "Ravi Kumar", Role: auth.RoleNGO}

func newTestCommitter(s3 *MockS3Client, repo *MockRepository) *Committer {
	return NewCommitter(s3, repo, "proof-documents", zap.NewNop())
}

func TestSubmitCreatesPendingReport(t *testing.T) {
	s3 := new(MockS3Client)
	repo := new(MockRepository)
	committer := newTestCommitter(s3, repo)

	draft := validDraft()
	staging := stagingWithOneFile()

	s3.On("Upload", mock.Anything, "proof-documents", mock.MatchedBy(func(key string) bool {
		return strings.HasPrefix(key, "user-123/") && strings.HasSuffix(key, "-proof.jpg")
	}), mock.Anything).Return(nil)
	repo.On("CreateReport", mock.Anything, mock.Anything).Return(nil)

	report, err := committer.Submit(context.Background(), draft, staging, testOwner, nil)
	require.NoError(t, err)

	assert.Equal(t, ReportStatusPending, report.Status)
	assert.Equal(t, VerificationStatusPending, report.VerificationStatus)
	require.Len(t, report.ProofDocuments, 1)
	assert.Equal(t, "proof.jpg", report.ProofDocuments[0].FileName)
	assert.Equal(t, ProofKindPhoto, report.ProofDocuments[0].FileType)
	assert.Equal(t, "user-123", report.UserID)
	assert.Equal(t, 150, report.EstimatedCredits)
	assert.Nil(t, report.ActualCredits)

	// Success clears the staging area and resets the draft
	assert.Equal(t, 0, staging.Count())
	assert.Empty(t, draft.Title)

	s3.AssertExpectations(t)
	repo.AssertExpectations(t)
}

func TestSubmitWithoutFilesMakesNoNetworkCalls(t *testing.T) {
	s3 := new(MockS3Client)
	repo := new(MockRepository)
	committer := newTestCommitter(s3, repo)

	_, err := committer.Submit(context.Background(), validDraft(), NewStaging(), testOwner, nil)
	require.ErrorIs(t, err, ErrNoProofFiles)

	s3.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "CreateReport", mock.Anything, mock.Anything)
}

func TestSubmitWithoutIdentityFailsFast(t *testing.T) {
	s3 := new(MockS3Client)
	repo := new(MockRepository)
	committer := newTestCommitter(s3, repo)

	_, err := committer.Submit(context.Background(), validDraft(), stagingWithOneFile(), auth.Identity{}, nil)
	require.ErrorIs(t, err, ErrNotAuthenticated)

	s3.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmitRejectsInvalidDraft(t *testing.T) {
	s3 := new(MockS3Client)
	repo := new(MockRepository)
	committer := newTestCommitter(s3, repo)

	draft := validDraft()
	draft.Description = "short"

	_, err := committer.Submit(context.Background(), draft, stagingWithOneFile(), testOwner, nil)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, validationErr.FieldErrors, "description")
	s3.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmitProgressIsMonotonicAndCompletesBeforeInsert(t *testing.T) {
	s3 := new(MockS3Client)
	repo := new(MockRepository)
	committer := newTestCommitter(s3, repo)

	staging := NewStaging()
	staging.AddFiles([]FileInput{
		{Name: "a.jpg", Size: 1, Content: []byte{1}},
		{Name: "b.jpg", Size: 1, Content: []byte{2}},
	}, ProofKindPhoto)
	staging.AddFiles([]FileInput{
		{Name: "track.gpx", Size: 1, Content: []byte{3}},
	}, ProofKindGPS)

	progress := []float64{}

	s3.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	repo.On("CreateReport", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		// All uploads must have completed before the insert happens
		require.NotEmpty(t, progress)
		assert.Equal(t, 1.0, progress[len(progress)-1])
	}).Return(nil)

	_, err := committer.Submit(context.Background(), validDraft(), staging, testOwner, func(fraction float64) {
		progress = append(progress, fraction)
	})
	require.NoError(t, err)

	require.Len(t, progress, 3)
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i], progress[i-1], "progress must be non-decreasing")
	}
	assert.Equal(t, 1.0, progress[len(progress)-1])
}

func TestSubmitAbortsBatchOnUploadFailure(t *testing.T) {
	s3 := new(MockS3Client)
	repo := new(MockRepository)
	committer := newTestCommitter(s3, repo)

	staging := NewStaging()
	staging.AddFiles([]FileInput{
		{Name: "good.jpg", Size: 1, Content: []byte{1}},
		{Name: "bad.jpg", Size: 1, Content: []byte{2}},
		{Name: "never-uploaded.jpg", Size: 1, Content: []byte{3}},
	}, ProofKindPhoto)

	s3.On("Upload", mock.Anything, mock.Anything, mock.MatchedBy(func(key string) bool {
		return strings.HasSuffix(key, "-good.jpg")
	}), mock.Anything).Return(nil).Once()
	s3.On("Upload", mock.Anything, mock.Anything, mock.MatchedBy(func(key string) bool {
		return strings.HasSuffix(key, "-bad.jpg")
	}), mock.Anything).Return(errors.New("connection reset")).Once()

	_, err := committer.Submit(context.Background(), validDraft(), staging, testOwner, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.jpg", "the aggregate error names the failed file")

	// The batch aborts: the third file is never attempted and no report
	// row is created
	s3.AssertNumberOfCalls(t, "Upload", 2)
	repo.AssertNotCalled(t, "CreateReport", mock.Anything, mock.Anything)

	// Failed submissions keep the staged files for a retry
	assert.Equal(t, 3, staging.Count())
}

func TestSubmitSurfacesInsertFailure(t *testing.T) {
	s3 := new(MockS3Client)
	repo := new(MockRepository)
	committer := newTestCommitter(s3, repo)

	staging := stagingWithOneFile()

	s3.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	repo.On("CreateReport", mock.Anything, mock.Anything).Return(errors.New("insert rejected"))

	_, err := committer.Submit(context.Background(), validDraft(), staging, testOwner, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert rejected")
	assert.Equal(t, 1, staging.Count(), "staged files survive for retry")
}

func TestSubmitGuardsPerStagingArea(t *testing.T) {
	s3 := new(MockS3Client)
	repo := new(MockRepository)
	committer := newTestCommitter(s3, repo)

	staging := stagingWithOneFile()
	otherOwner := auth.Identity{ID: "user-456", Name: "Meera Das", Role: auth.RoleNGO}

	var reentered bool
	s3.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		if reentered {
			return
		}
		reentered = true

		// Re-submitting the same draft while its first submission is
		// mid-upload must fail
		_, err := committer.Submit(context.Background(), validDraft(), staging, testOwner, nil)
		assert.ErrorIs(t, err, ErrSubmissionInFlight)

		// An independent user's submission over its own staging area
		// must not be serialized against the one in flight
		_, err = committer.Submit(context.Background(), validDraft(), stagingWithOneFile(), otherOwner, nil)
		assert.NoError(t, err)
	}).Return(nil)
	repo.On("CreateReport", mock.Anything, mock.Anything).Return(nil)

	_, err := committer.Submit(context.Background(), validDraft(), staging, testOwner, nil)
	require.NoError(t, err)
	s3.AssertNumberOfCalls(t, "Upload", 2)
}

func TestStagingSubmissionGuardResetsAfterFailure(t *testing.T) {
	s3 := new(MockS3Client)
	repo := new(MockRepository)
	committer := newTestCommitter(s3, repo)

	staging := stagingWithOneFile()

	s3.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("connection reset")).Once()
	s3.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	repo.On("CreateReport", mock.Anything, mock.Anything).Return(nil)

	_, err := committer.Submit(context.Background(), validDraft(), staging, testOwner, nil)
	require.Error(t, err)

	// A failed submission must release the guard so the retry can run
	_, err = committer.Submit(context.Background(), validDraft(), staging, testOwner, nil)
	require.NoError(t, err)
}
