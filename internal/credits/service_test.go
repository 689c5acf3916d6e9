package credits

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockRepository is a mock implementation of the Repository interface
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateEntry(ctx context.Context, entry *LedgerEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockRepository) ListEntries(ctx context.Context, filters *LedgerFilters) ([]*LedgerEntry, int, error) {
	args := m.Called(ctx, filters)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*LedgerEntry), args.Int(1), args.Error(2)
}

func (m *MockRepository) GetSummary(ctx context.Context) (*LedgerSummary, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*LedgerSummary), args.Error(1)
}

func TestRecordIssuance(t *testing.T) {
	repo := new(MockRepository)
	service := NewService(repo, zap.NewNop())

	repo.On("CreateEntry", mock.Anything, mock.Anything).Return(nil)

	reportID := uuid.New()
	entry, err := service.RecordIssuance(context.Background(), IssuanceInput{
		ReportID:     reportID,
		IssuedTo:     "user-123",
		IssuedToName: "Ravi Kumar",
		IssuedBy:     "Dr. Sharma",
		Amount:       150,
	})
	require.NoError(t, err)

	assert.Equal(t, reportID, entry.ReportID)
	assert.Equal(t, 150, entry.Amount)
	assert.NotEqual(t, uuid.Nil, entry.ID)
	repo.AssertExpectations(t)
}

func TestRecordIssuanceReferenceFormat(t *testing.T) {
	repo := new(MockRepository)
	service := NewService(repo, zap.NewNop())
	repo.On("CreateEntry", mock.Anything, mock.Anything).Return(nil)

	reportID := uuid.MustParse("a1b2c3d4-e5f6-4789-8abc-def012345678")
	entry, err := service.RecordIssuance(context.Background(), IssuanceInput{
		ReportID: reportID,
		IssuedTo: "user-123",
		Amount:   1,
	})
	require.NoError(t, err)

	assert.Equal(t, "BCR-TXN-A1B2C3D4E5F6", entry.Reference)
	assert.True(t, strings.HasPrefix(entry.Reference, "BCR-TXN-"))
}

func TestRecordIssuanceRejectsNonPositiveAmount(t *testing.T) {
	repo := new(MockRepository)
	service := NewService(repo, zap.NewNop())

	_, err := service.RecordIssuance(context.Background(), IssuanceInput{
		ReportID: uuid.New(),
		IssuedTo: "user-123",
		Amount:   0,
	})
	require.Error(t, err)
	repo.AssertNotCalled(t, "CreateEntry", mock.Anything, mock.Anything)
}

func TestRecordIssuanceSurfacesRepositoryError(t *testing.T) {
	repo := new(MockRepository)
	service := NewService(repo, zap.NewNop())
	repo.On("CreateEntry", mock.Anything, mock.Anything).Return(errors.New("insert rejected"))

	_, err := service.RecordIssuance(context.Background(), IssuanceInput{
		ReportID: uuid.New(),
		IssuedTo: "user-123",
		Amount:   10,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert rejected")
}
