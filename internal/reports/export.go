package reports

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"
)

const historySheetName = "Verification History"

var historyColumns = []string{
	"Report ID", "Project", "Community", "Activity", "Area (ha)",
	"Estimated Credits", "Issued Credits", "Status", "Verified By",
	"Verified At", "Notes", "Submitted At",
}

// ExportVerificationHistory renders every decided report as an xlsx
// workbook for the registry's records
func (s *Service) ExportVerificationHistory(ctx context.Context) ([]byte, error) {
	decided := []*Report{}
	for _, status := range []VerificationStatus{VerificationStatusApproved, VerificationStatusRejected} {
		st := status
		reports, _, err := s.repo.ListReports(ctx, &ReportFilters{
			VerificationStatus: &st,
			Page:               1,
			PageSize:           10000,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to load %s reports: %w", status, err)
		}
		decided = append(decided, reports...)
	}

	sortNewestDecisionFirst(decided)

	return writeHistoryWorkbook(decided)
}

// sortNewestDecisionFirst orders reports by decision time, newest first.
// A nil decision time sorts as the zero time so undated rows sink to the
// bottom deterministically.
func sortNewestDecisionFirst(reports []*Report) {
	decisionTime := func(r *Report) time.Time {
		if r.VerifiedAt == nil {
			return time.Time{}
		}
		return *r.VerifiedAt
	}
	sort.Slice(reports, func(i, j int) bool {
		return decisionTime(reports[i]).After(decisionTime(reports[j]))
	})
}

func writeHistoryWorkbook(reports []*Report) ([]byte, error) {
	file := excelize.NewFile()
	defer file.Close()

	file.SetSheetName("Sheet1", historySheetName)

	headerStyle, err := file.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF", Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"1565C0"}},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for i, column := range historyColumns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := file.SetCellValue(historySheetName, cell, column); err != nil {
			return nil, err
		}
	}
	lastHeaderCell, _ := excelize.CoordinatesToCellName(len(historyColumns), 1)
	if err := file.SetCellStyle(historySheetName, "A1", lastHeaderCell, headerStyle); err != nil {
		return nil, err
	}

	for row, report := range reports {
		issued := ""
		if report.ActualCredits != nil {
			issued = fmt.Sprintf("%d", *report.ActualCredits)
		}
		verifiedBy, verifiedAt, notes := "", "", ""
		if report.VerifiedBy != nil {
			verifiedBy = *report.VerifiedBy
		}
		if report.VerifiedAt != nil {
			verifiedAt = report.VerifiedAt.Format("2006-01-02 15:04:05")
		}
		if report.VerificationNotes != nil {
			notes = *report.VerificationNotes
		}

		values := []interface{}{
			report.ID.String(),
			report.ProjectName,
			report.CommunityName,
			string(report.ActivityType),
			report.AreaCovered,
			report.EstimatedCredits,
			issued,
			string(report.Status),
			verifiedBy,
			verifiedAt,
			notes,
			report.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return nil, err
			}
			if err := file.SetCellValue(historySheetName, cell, value); err != nil {
				return nil, err
			}
		}
	}

	if err := file.AutoFilter(historySheetName, fmt.Sprintf("A1:%s", lastHeaderCell), nil); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := file.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
