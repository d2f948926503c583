package utils

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"virosync/internal/models"
)

const isolateSheet = "Isolates"

// CreateIsolateWorkbook writes isolate metadata to an xlsx workbook with a
// data sheet and a summary sheet.
func CreateIsolateWorkbook(filepath string, isolates []models.Isolate) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(isolateSheet)
	if err != nil {
		return err
	}

	headers := []string{"Accession", "UID", "Organism", "Host", "Country", "Collected", "Released", "Updated"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(isolateSheet, cell, header)
	}

	for rowIdx, isolate := range isolates {
		rowNum := rowIdx + 2 // headers occupy the first row

		f.SetCellValue(isolateSheet, fmt.Sprintf("A%d", rowNum), isolate.Accession)
		f.SetCellValue(isolateSheet, fmt.Sprintf("B%d", rowNum), isolate.UID)
		f.SetCellValue(isolateSheet, fmt.Sprintf("C%d", rowNum), isolate.Organism)
		f.SetCellValue(isolateSheet, fmt.Sprintf("D%d", rowNum), deref(isolate.Host))
		f.SetCellValue(isolateSheet, fmt.Sprintf("E%d", rowNum), deref(isolate.Country))
		f.SetCellValue(isolateSheet, fmt.Sprintf("F%d", rowNum), deref(isolate.DateCollected))
		f.SetCellValue(isolateSheet, fmt.Sprintf("G%d", rowNum), deref(isolate.DateReleased))
		f.SetCellValue(isolateSheet, fmt.Sprintf("H%d", rowNum),
			isolate.UpdatedAt.Format("2006-01-02 15:04:05"))
	}

	for i := 1; i <= len(headers); i++ {
		colName, _ := excelize.ColumnNumberToName(i)
		f.SetColWidth(isolateSheet, colName, colName, 22)
	}

	createSummarySheet(f, isolates)

	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	return f.SaveAs(filepath)
}

func createSummarySheet(f *excelize.File, isolates []models.Isolate) {
	const sheet = "Summary"
	if _, err := f.NewSheet(sheet); err != nil {
		return
	}

	byCountry := make(map[string]int)
	byHost := make(map[string]int)
	for _, isolate := range isolates {
		byCountry[deref(isolate.Country)]++
		byHost[deref(isolate.Host)]++
	}

	f.SetCellValue(sheet, "A1", "Generated At")
	f.SetCellValue(sheet, "B1", time.Now().UTC().Format(time.RFC3339))
	f.SetCellValue(sheet, "A2", "Total Isolates")
	f.SetCellValue(sheet, "B2", len(isolates))
	f.SetCellValue(sheet, "A3", "Countries")
	f.SetCellValue(sheet, "B3", len(byCountry))
	f.SetCellValue(sheet, "A4", "Hosts")
	f.SetCellValue(sheet, "B4", len(byHost))

	f.SetColWidth(sheet, "A", "B", 24)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
