package reports

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"bitbucket.org/mmdatafocus/counts_backend/config"
	"bitbucket.org/mmdatafocus/counts_backend/models"
	"bitbucket.org/mmdatafocus/counts_backend/utils"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// MilkOrderRow aggregates one item's order history across the archived
// sessions of a date range.
type MilkOrderRow struct {
	ItemId       int    `json:"item_id"`
	Name         string `json:"name"`
	Category     string `json:"category"`
	SessionCount int    `json:"session_count"`
	TotalOrdered int    `json:"total_ordered"`
	MaxOrdered   int    `json:"max_ordered"`
	LastOrdered  int    `json:"last_ordered"`
}

// GetMilkOrderReport walks the completed sessions between fromDate and
// toDate (inclusive, yyyy-mm-dd) and sums each item's derived order
// amounts. The delivery algebra lives in the summary builder, so the
// aggregation runs over derived summaries rather than raw SQL.
func GetMilkOrderReport(ctx context.Context, fromDate string, toDate string) ([]*MilkOrderRow, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	for _, d := range []string{fromDate, toDate} {
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return nil, utils.NewValidationError("date must be formatted as 2006-01-02")
		}
	}

	db := config.GetDB()
	var sessions []*models.MilkSession
	if err := db.WithContext(ctx).
		Preload("Entries", func(db *gorm.DB) *gorm.DB { return db.Order("milk_entries.item_id") }).
		Preload("Entries.Item").
		Where("business_id = ? AND status = ? AND session_date BETWEEN ? AND ?",
			businessId, models.MilkStatusCompleted, fromDate, toDate).
		Order("session_date ASC, id ASC").
		Find(&sessions).Error; err != nil {
		return nil, err
	}

	rowByItem := map[int]*MilkOrderRow{}
	order := []int{}
	for _, session := range sessions {
		items := make([]*models.CountItem, 0, len(session.Entries))
		entries := make([]*models.MilkEntry, 0, len(session.Entries))
		for i := range session.Entries {
			entries = append(entries, &session.Entries[i])
			items = append(items, &session.Entries[i].Item)
		}
		for _, summary := range models.BuildMilkSummary(items, entries) {
			row, ok := rowByItem[summary.ItemId]
			if !ok {
				row = &MilkOrderRow{
					ItemId:   summary.ItemId,
					Name:     summary.Name,
					Category: summary.Category,
				}
				rowByItem[summary.ItemId] = row
				order = append(order, summary.ItemId)
			}
			row.SessionCount++
			row.TotalOrdered += summary.OrderAmount
			if summary.OrderAmount > row.MaxOrdered {
				row.MaxOrdered = summary.OrderAmount
			}
			row.LastOrdered = summary.OrderAmount
		}
	}

	rows := make([]*MilkOrderRow, 0, len(order))
	for _, id := range order {
		rows = append(rows, rowByItem[id])
	}
	return rows, nil
}

// ExportMilkOrderExcel writes the report as an xlsx workbook.
func ExportMilkOrderExcel(w io.Writer, rows []*MilkOrderRow) error {
	f := excelize.NewFile()
	sheetName := "Sheet1"
	_, err := f.NewSheet(sheetName)
	if err != nil {
		return err
	}

	// Add headers
	f.SetCellValue(sheetName, "A1", "Item")
	f.SetCellValue(sheetName, "B1", "Category")
	f.SetCellValue(sheetName, "C1", "Sessions")
	f.SetCellValue(sheetName, "D1", "TotalOrdered")
	f.SetCellValue(sheetName, "E1", "MaxOrdered")
	f.SetCellValue(sheetName, "F1", "LastOrdered")

	// Add data
	for i, r := range rows {
		f.SetCellValue(sheetName, "A"+fmt.Sprint(i+2), r.Name)
		f.SetCellValue(sheetName, "B"+fmt.Sprint(i+2), r.Category)
		f.SetCellValue(sheetName, "C"+fmt.Sprint(i+2), r.SessionCount)
		f.SetCellValue(sheetName, "D"+fmt.Sprint(i+2), r.TotalOrdered)
		f.SetCellValue(sheetName, "E"+fmt.Sprint(i+2), r.MaxOrdered)
		f.SetCellValue(sheetName, "F"+fmt.Sprint(i+2), r.LastOrdered)
	}

	return f.Write(w)
}

// ExportMilkSummaryExcel writes one session's derived summary as an xlsx
// workbook. NULL phase values come out as blank cells, not zeros.
func ExportMilkSummaryExcel(w io.Writer, summaries []*models.MilkItemSummary) error {
	f := excelize.NewFile()
	sheetName := "Sheet1"
	_, err := f.NewSheet(sheetName)
	if err != nil {
		return err
	}

	// Add headers
	f.SetCellValue(sheetName, "A1", "Item")
	f.SetCellValue(sheetName, "B1", "Category")
	f.SetCellValue(sheetName, "C1", "Par")
	f.SetCellValue(sheetName, "D1", "Front")
	f.SetCellValue(sheetName, "E1", "Back")
	f.SetCellValue(sheetName, "F1", "Delivered")
	f.SetCellValue(sheetName, "G1", "OnOrder")
	f.SetCellValue(sheetName, "H1", "Total")
	f.SetCellValue(sheetName, "I1", "Order")

	setNullable := func(cell string, v *int) {
		if v != nil {
			f.SetCellValue(sheetName, cell, *v)
		}
	}

	// Add data
	for i, s := range summaries {
		row := fmt.Sprint(i + 2)
		f.SetCellValue(sheetName, "A"+row, s.Name)
		f.SetCellValue(sheetName, "B"+row, s.Category)
		f.SetCellValue(sheetName, "C"+row, s.Par)
		setNullable("D"+row, s.FrontCount)
		setNullable("E"+row, s.BackCount)
		setNullable("F"+row, s.Delivered)
		setNullable("G"+row, s.OnOrderCount)
		f.SetCellValue(sheetName, "H"+row, s.Total)
		f.SetCellValue(sheetName, "I"+row, s.OrderAmount)
	}

	return f.Write(w)
}
