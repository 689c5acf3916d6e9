package notifications

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies what happened to a report
type EventType string

const (
	// EventReportSubmitted fires when a new report enters the pending queue
	EventReportSubmitted EventType = "report.submitted"
	// EventReportDecided fires when an administrator approves or rejects
	EventReportDecided EventType = "report.decided"
)

// ReportChangeEvent is pushed to every live viewer whenever the reports
// table changes, so pending lists converge without a manual refresh.
type ReportChangeEvent struct {
	Type               EventType `json:"type"`
	ReportID           uuid.UUID `json:"report_id"`
	UserID             string    `json:"user_id"`
	VerificationStatus string    `json:"verification_status"`
	ActualCredits      *int      `json:"actual_credits,omitempty"`
	OccurredAt         time.Time `json:"occurred_at"`
}
