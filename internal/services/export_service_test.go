package services

import (
	"bytes"
	"testing"

	"tcmclinic/internal/models"

	"github.com/xuri/excelize/v2"
)

func TestExportService_WeeklyWorkbook(t *testing.T) {
	patients := []models.Patient{
		{
			Name:                "王小明",
			ExternalMessagingID: "U1",
			HistoryRecords: []models.HistoryRecord{
				{VisitDate: week(6), Symptoms: []string{"頭痛", "失眠"}, Syndromes: []string{"肝陽上亢"}},
			},
		},
		{
			Name: "陳美麗",
			HistoryRecords: []models.HistoryRecord{
				{VisitDate: week(7), Symptoms: []string{"眩暈"}, Notes: "複診"},
			},
		},
	}
	r := models.WeekRange{Start: week(6), End: week(12)}

	data, err := NewExportService(clinicTZ).WeeklyWorkbook(patients, r)
	if err != nil {
		t.Fatalf("WeeklyWorkbook failed: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Failed to reopen workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(WeeklySheetName)
	if err != nil {
		t.Fatalf("Failed to read rows: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("Expected title, header and 2 rows, got %d rows", len(rows))
	}
	if rows[0][0] != "2025-01-06 ~ 2025-01-12" {
		t.Errorf("Unexpected title: %q", rows[0][0])
	}
	if rows[1][0] != "姓名" {
		t.Errorf("Unexpected header: %v", rows[1])
	}
	// newest week first
	if rows[2][0] != "陳美麗" || rows[2][5] != "複診" {
		t.Errorf("Unexpected first data row: %v", rows[2])
	}
	if rows[3][3] != "頭痛、失眠" {
		t.Errorf("Unexpected symptoms cell: %q", rows[3][3])
	}
}
