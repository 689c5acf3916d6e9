package credits

import (
	"time"

	"github.com/google/uuid"
)

// LedgerEntry records one carbon-credit issuance resulting from an
// approved report. Entries are append-only.
type LedgerEntry struct {
	ID           uuid.UUID `json:"id" db:"id"`
	ReportID     uuid.UUID `json:"report_id" db:"report_id"`
	IssuedTo     string    `json:"issued_to" db:"issued_to"`
	IssuedToName string    `json:"issued_to_name" db:"issued_to_name"`
	IssuedBy     string    `json:"issued_by" db:"issued_by"`
	Amount       int       `json:"amount" db:"amount"`
	Reference    string    `json:"reference" db:"reference"`
	IssuedAt     time.Time `json:"issued_at" db:"issued_at"`
}

// LedgerSummary aggregates the ledger for dashboard cards
type LedgerSummary struct {
	TotalIssued int `json:"total_issued" db:"total_issued"`
	EntryCount  int `json:"entry_count" db:"entry_count"`
}

// LedgerFilters narrows ledger listings
type LedgerFilters struct {
	IssuedTo *string
	Page     int
	PageSize int
}
