package handlers

import (
	"context"
	"fmt"

	"tcmclinic/internal/models"
	"tcmclinic/internal/services"

	"github.com/gofiber/fiber/v2"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// WeeklyRecordSource resolves week ranges and loads the records inside them
type WeeklyRecordSource interface {
	WeekRange(startStr, endStr string) (models.WeekRange, error)
	WeeklyRecords(ctx context.Context, r models.WeekRange) ([]models.Patient, error)
}

// RecordsHandler serves the weekly records view and its spreadsheet export
type RecordsHandler struct {
	source   WeeklyRecordSource
	exporter *services.ExportService
}

// NewRecordsHandler creates a records handler
func NewRecordsHandler(source WeeklyRecordSource, exporter *services.ExportService) *RecordsHandler {
	return &RecordsHandler{source: source, exporter: exporter}
}

// Weekly lists patients with records in the range, current week by default
// GET /api/records/weekly?start=&end=
func (h *RecordsHandler) Weekly(c *fiber.Ctx) error {
	r, patients, err := h.load(c)
	if err != nil {
		return sendError(c, err, "Failed to fetch weekly records")
	}
	return c.JSON(fiber.Map{
		"records":   patients,
		"count":     len(patients),
		"weekRange": r,
	})
}

// Export returns the weekly records as an XLSX workbook
// GET /api/records/weekly/export?start=&end=
func (h *RecordsHandler) Export(c *fiber.Ctx) error {
	r, patients, err := h.load(c)
	if err != nil {
		return sendError(c, err, "Failed to fetch weekly records")
	}

	data, err := h.exporter.WeeklyWorkbook(patients, r)
	if err != nil {
		return sendError(c, err, "Failed to export weekly records")
	}

	filename := fmt.Sprintf("weekly-records-%s.xlsx", r.Start.Format("2006-01-02"))
	c.Set(fiber.HeaderContentType, xlsxContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, filename))
	return c.Send(data)
}

func (h *RecordsHandler) load(c *fiber.Ctx) (models.WeekRange, []models.Patient, error) {
	r, err := h.source.WeekRange(c.Query("start"), c.Query("end"))
	if err != nil {
		return models.WeekRange{}, nil, err
	}
	patients, err := h.source.WeeklyRecords(c.UserContext(), r)
	if err != nil {
		return models.WeekRange{}, nil, err
	}
	return r, patients, nil
}
