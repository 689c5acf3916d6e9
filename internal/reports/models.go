package reports

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =====================================================
// Enums and Constants
// =====================================================

// ReportStatus represents the display status of a report
type ReportStatus string

const (
	ReportStatusPending     ReportStatus = "Pending"
	ReportStatusUnderReview ReportStatus = "Under Review"
	ReportStatusApproved    ReportStatus = "Approved"
	ReportStatusRejected    ReportStatus = "Rejected"
)

// VerificationStatus mirrors ReportStatus in filter-friendly form
type VerificationStatus string

const (
	VerificationStatusPending     VerificationStatus = "pending"
	VerificationStatusUnderReview VerificationStatus = "under_review"
	VerificationStatusApproved    VerificationStatus = "approved"
	VerificationStatusRejected    VerificationStatus = "rejected"
)

// Status returns the display status matching a verification status
func (v VerificationStatus) Status() ReportStatus {
	switch v {
	case VerificationStatusUnderReview:
		return ReportStatusUnderReview
	case VerificationStatusApproved:
		return ReportStatusApproved
	case VerificationStatusRejected:
		return ReportStatusRejected
	default:
		return ReportStatusPending
	}
}

// ActivityType represents the kind of restoration activity reported
type ActivityType string

const (
	ActivityMangrovePlantation   ActivityType = "Mangrove Plantation"
	ActivityWetlandRestoration   ActivityType = "Wetland Restoration"
	ActivitySeagrassRestoration  ActivityType = "Seagrass Restoration"
	ActivitySaltMarshRestoration ActivityType = "Salt Marsh Restoration"
	ActivityWetlandMonitoring    ActivityType = "Wetland Monitoring"
	ActivityCommunityTraining    ActivityType = "Community Training"
	ActivityOther                ActivityType = "Other"
)

// ActivityTypes lists the closed set of accepted activity types
var ActivityTypes = []ActivityType{
	ActivityMangrovePlantation,
	ActivityWetlandRestoration,
	ActivitySeagrassRestoration,
	ActivitySaltMarshRestoration,
	ActivityWetlandMonitoring,
	ActivityCommunityTraining,
	ActivityOther,
}

// IsValidActivityType checks membership in the closed activity set
func IsValidActivityType(t string) bool {
	for _, a := range ActivityTypes {
		if string(a) == t {
			return true
		}
	}
	return false
}

// ProofKind represents the declared kind of an uploaded proof artifact
type ProofKind string

const (
	ProofKindPhoto ProofKind = "photo"
	ProofKindGPS   ProofKind = "gps"
	ProofKindDrone ProofKind = "drone"
)

// IsValidProofKind checks membership in the proof kind set
func IsValidProofKind(k string) bool {
	switch ProofKind(k) {
	case ProofKindPhoto, ProofKindGPS, ProofKindDrone:
		return true
	}
	return false
}

// Decision represents an administrator's verification decision
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// =====================================================
// JSON Types for JSONB columns
// =====================================================

// JSONB is a wrapper for JSONB columns
type JSONB map[string]interface{}

// Value implements driver.Valuer
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements sql.Scanner
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// ProofDocument is the durable metadata of one uploaded proof artifact.
// Immutable once its parent report is created.
type ProofDocument struct {
	FileName   string     `json:"fileName"`
	FileType   ProofKind  `json:"fileType"`
	FilePath   string     `json:"filePath"`
	FileSize   int64      `json:"fileSize"`
	UploadedAt time.Time  `json:"uploadedAt"`
	Geotagged  *bool      `json:"geotagged,omitempty"`
	CapturedAt *time.Time `json:"timestamp,omitempty"`
}

// ProofDocumentList is stored as a JSONB array on the report row
type ProofDocumentList []ProofDocument

// Value implements driver.Valuer
func (l ProofDocumentList) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal([]ProofDocument{})
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner
func (l *ProofDocumentList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("unsupported type for proof document list: %T", value)
	}
	return json.Unmarshal(bytes, l)
}

// =====================================================
// Core Entities
// =====================================================

// Report is a durable restoration activity record submitted for verification
type Report struct {
	ID                  uuid.UUID          `json:"id" db:"id"`
	UserID              string             `json:"user_id" db:"user_id"`
	UserName            string             `json:"user_name" db:"user_name"`
	Title               string             `json:"title" db:"title"`
	ProjectName         string             `json:"project_name" db:"project_name"`
	CommunityName       string             `json:"community_name" db:"community_name"`
	ActivityType        ActivityType       `json:"activity_type" db:"activity_type"`
	AreaCovered         float64            `json:"area_covered" db:"area_covered"`
	LocationCoordinates string             `json:"location_coordinates" db:"location_coordinates"`
	Description         string             `json:"description" db:"description"`
	EstimatedCredits    int                `json:"estimated_credits" db:"estimated_credits"`
	ProofDocuments      ProofDocumentList  `json:"proof_documents" db:"proof_documents"`
	GPSData             JSONB              `json:"gps_data,omitempty" db:"gps_data"`
	Status              ReportStatus       `json:"status" db:"status"`
	VerificationStatus  VerificationStatus `json:"verification_status" db:"verification_status"`
	VerifiedBy          *string            `json:"verified_by,omitempty" db:"verified_by"`
	VerificationNotes   *string            `json:"verification_notes,omitempty" db:"verification_notes"`
	ActualCredits       *int               `json:"actual_credits,omitempty" db:"actual_credits"`
	VerifiedAt          *time.Time         `json:"verified_at,omitempty" db:"verified_at"`
	CreatedAt           time.Time          `json:"created_at" db:"created_at"`
}

// ReportDraft is the in-progress, not-yet-submitted report. It is never
// persisted; the committer turns it into a Report once validation passes.
type ReportDraft struct {
	Title               string  `json:"title"`
	ProjectName         string  `json:"project_name"`
	CommunityName       string  `json:"community_name"`
	ActivityType        string  `json:"activity_type"`
	AreaCovered         float64 `json:"area_covered"`
	LocationCoordinates string  `json:"location_coordinates"`
	Description         string  `json:"description"`
	GPSData             string  `json:"gps_data,omitempty"`
	EstimatedCredits    int     `json:"estimated_credits"`
}

// ParseGPSData interprets the free-text GPS field as JSON when possible,
// falling back to a raw wrapper the way the original submission form did.
func (d *ReportDraft) ParseGPSData() JSONB {
	if d.GPSData == "" {
		return nil
	}
	var parsed JSONB
	if err := json.Unmarshal([]byte(d.GPSData), &parsed); err != nil {
		return JSONB{"raw": d.GPSData}
	}
	return parsed
}

// =====================================================
// Request / Response Types
// =====================================================

// DecideRequest is the administrator's verification decision payload
type DecideRequest struct {
	Decision       Decision `json:"decision" binding:"required"`
	Notes          string   `json:"notes"`
	CreditsToIssue *int     `json:"credits_to_issue,omitempty"`
}

// ProofLink is a short-lived signed download link for one proof
// document, minted for reviewers on demand
type ProofLink struct {
	FileName  string    `json:"file_name"`
	FileType  ProofKind `json:"file_type"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ReportFilters narrows report listings
type ReportFilters struct {
	UserID             *string
	VerificationStatus *VerificationStatus
	Page               int
	PageSize           int
}

// ListReportsResponse wraps a page of reports
type ListReportsResponse struct {
	Reports  []*Report `json:"reports"`
	Total    int       `json:"total"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
}

// DashboardSummary aggregates registry-wide counters for overview cards
type DashboardSummary struct {
	PendingCount     int     `json:"pending_count" db:"pending_count"`
	UnderReviewCount int     `json:"under_review_count" db:"under_review_count"`
	ApprovedCount    int     `json:"approved_count" db:"approved_count"`
	RejectedCount    int     `json:"rejected_count" db:"rejected_count"`
	EstimatedCredits int     `json:"estimated_credits" db:"estimated_credits"`
	IssuedCredits    int     `json:"issued_credits" db:"issued_credits"`
	TotalAreaCovered float64 `json:"total_area_covered" db:"total_area_covered"`
	GeneratedAt      time.Time `json:"generated_at" db:"-"`
}
