package handlers

import (
	"context"

	"tcmclinic/internal/models"
	"tcmclinic/internal/search"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PatientRepository is the patient storage used by the /api/users routes
type PatientRepository interface {
	Search(ctx context.Context, criteria search.Criteria) ([]models.Patient, error)
	Create(ctx context.Context, req *models.CreatePatientRequest) (primitive.ObjectID, error)
	Get(ctx context.Context, hexID string) (*models.Patient, error)
	UpdateLatestRecord(ctx context.Context, hexID string, req *models.UpdateRecordRequest) (int64, error)
}

// PatientHandler serves patient search and maintenance
type PatientHandler struct {
	patients PatientRepository
}

// NewPatientHandler creates a patient handler
func NewPatientHandler(patients PatientRepository) *PatientHandler {
	return &PatientHandler{patients: patients}
}

// Search finds patients by keyword, symptoms and syndromes
// GET /api/users?keyword=&symptoms=&conditions=
func (h *PatientHandler) Search(c *fiber.Ctx) error {
	criteria := search.Criteria{
		Keyword:   c.Query("keyword"),
		Symptoms:  c.Query("symptoms"),
		Syndromes: firstQuery(c, "conditions", "syndromes"),
	}

	patients, err := h.patients.Search(c.UserContext(), criteria)
	if err != nil {
		return sendError(c, err, "Failed to search patients")
	}
	return c.JSON(fiber.Map{
		"users": patients,
		"count": len(patients),
	})
}

// Create adds a patient
// POST /api/users
func (h *PatientHandler) Create(c *fiber.Ctx) error {
	var req models.CreatePatientRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	id, err := h.patients.Create(c.UserContext(), &req)
	if err != nil {
		return sendError(c, err, "Failed to create patient")
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":   "Patient created successfully",
		"patientId": id.Hex(),
	})
}

// Get returns one patient
// GET /api/users/:id
func (h *PatientHandler) Get(c *fiber.Ctx) error {
	patient, err := h.patients.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return sendError(c, err, "Failed to fetch patient")
	}
	return c.JSON(fiber.Map{"patient": patient})
}

// UpdateRecord edits the patient's most recent history record
// PUT /api/users/:id/record
func (h *PatientHandler) UpdateRecord(c *fiber.Ctx) error {
	var req models.UpdateRecordRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	modified, err := h.patients.UpdateLatestRecord(c.UserContext(), c.Params("id"), &req)
	if err != nil {
		return sendError(c, err, "Failed to update patient record")
	}
	return c.JSON(fiber.Map{
		"message":       "Record updated successfully",
		"modifiedCount": modified,
	})
}
