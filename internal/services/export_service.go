package services

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"tcmclinic/internal/models"

	"github.com/xuri/excelize/v2"
)

// WeeklySheetName is the worksheet holding the weekly records export
const WeeklySheetName = "Weekly"

var weeklyHeaders = []string{"姓名", "LINE ID", "就診週", "症狀", "證型", "備註"}

// ExportService renders weekly records as spreadsheets
type ExportService struct {
	loc *time.Location
}

// NewExportService creates an export service that prints dates in loc
func NewExportService(loc *time.Location) *ExportService {
	if loc == nil {
		loc = time.Local
	}
	return &ExportService{loc: loc}
}

// WeeklyWorkbook writes one row per history record, newest week first
func (s *ExportService) WeeklyWorkbook(patients []models.Patient, r models.WeekRange) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), WeeklySheetName); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	title := fmt.Sprintf("%s ~ %s", r.Start.In(s.loc).Format("2006-01-02"), r.End.In(s.loc).Format("2006-01-02"))
	if err := f.SetCellValue(WeeklySheetName, "A1", title); err != nil {
		return nil, fmt.Errorf("failed to write title: %w", err)
	}

	header := make([]interface{}, len(weeklyHeaders))
	for i, h := range weeklyHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(WeeklySheetName, "A2", &header); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		_ = f.SetCellStyle(WeeklySheetName, "A2", "F2", bold)
	}

	type line struct {
		visit time.Time
		cells []interface{}
	}
	var lines []line
	for _, p := range patients {
		for _, rec := range p.HistoryRecords {
			lines = append(lines, line{
				visit: rec.VisitDate,
				cells: []interface{}{
					p.Name,
					p.ExternalMessagingID,
					rec.VisitDate.In(s.loc).Format("2006-01-02"),
					strings.Join(rec.Symptoms, "、"),
					strings.Join(rec.Syndromes, "、"),
					rec.Notes,
				},
			})
		}
	}
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].visit.After(lines[j].visit) })

	for i, l := range lines {
		cell, err := excelize.CoordinatesToCellName(1, i+3)
		if err != nil {
			return nil, err
		}
		row := l.cells
		if err := f.SetSheetRow(WeeklySheetName, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+3, err)
		}
	}

	_ = f.SetColWidth(WeeklySheetName, "A", "B", 18)
	_ = f.SetColWidth(WeeklySheetName, "D", "F", 40)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to render workbook: %w", err)
	}
	return buf.Bytes(), nil
}
