package handlers

import (
	"context"
	"encoding/json"
	"io"
	"regexp"
	"strings"

	"tcmclinic/internal/apperr"
	"tcmclinic/internal/lineimport"
	"tcmclinic/internal/models"
	"tcmclinic/internal/services"

	"github.com/gofiber/fiber/v2"
)

var truthyFlag = regexp.MustCompile(`(?i)^(1|true|yes)$`)

// Importer runs one LINE CSV import
type Importer interface {
	Run(ctx context.Context, req services.ImportRequest) (*models.ImportResponse, error)
}

// ImportHandler serves the LINE chat export import
type ImportHandler struct {
	importer Importer
}

// NewImportHandler creates an import handler
func NewImportHandler(importer Importer) *ImportHandler {
	return &ImportHandler{importer: importer}
}

// LineCSV previews or commits a LINE chat export
// POST /api/import/line-csv?commit=1&externalMessagingId=U...&name=...
func (h *ImportHandler) LineCSV(c *fiber.Ctx) error {
	csvText, rawOverrides, err := readImportBody(c)
	if err != nil {
		return importError(c, err)
	}

	overrides, err := services.ParseOverrides(rawOverrides)
	if err != nil {
		return importError(c, err)
	}

	resp, err := h.importer.Run(c.UserContext(), services.ImportRequest{
		CSV:        csvText,
		Overrides:  overrides,
		Name:       strings.TrimSpace(c.Query("name")),
		ExternalID: firstQuery(c, "externalMessagingId", "lineUserId"),
		Commit:     truthyFlag.MatchString(firstQuery(c, "commit", "upsert")),
	})
	if err != nil {
		return importError(c, err)
	}
	return c.JSON(resp)
}

func importError(c *fiber.Ctx, err error) error {
	return c.Status(apperr.HTTPStatus(err)).JSON(fiber.Map{
		"ok":    false,
		"error": err.Error(),
	})
}

// readImportBody extracts the CSV text and the raw overrides JSON from a
// multipart form, a JSON body or a plain text body.
func readImportBody(c *fiber.Ctx) (string, []byte, error) {
	contentType := strings.ToLower(c.Get(fiber.HeaderContentType))

	switch {
	case strings.HasPrefix(contentType, fiber.MIMEMultipartForm):
		return readImportForm(c)

	case strings.HasPrefix(contentType, fiber.MIMEApplicationJSON):
		var body struct {
			CSV       json.RawMessage `json:"csv"`
			Overrides json.RawMessage `json:"overrides"`
		}
		if err := json.Unmarshal(c.Body(), &body); err != nil {
			return "", nil, apperr.Validation("invalid JSON body: %v", err)
		}
		var csvText string
		if len(body.CSV) > 0 && json.Unmarshal(body.CSV, &csvText) == nil {
			return csvText, body.Overrides, nil
		}
		if hasJSONValue(body.Overrides) {
			return "", body.Overrides, nil
		}
		return "", nil, apperr.Validation(`JSON body must include a "csv" string property`)

	default:
		text := lineimport.DecodeText(c.Body())
		if strings.TrimSpace(text) == "" {
			return "", nil, apperr.Validation("unsupported content type or empty body")
		}
		return text, nil, nil
	}
}

func readImportForm(c *fiber.Ctx) (string, []byte, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return "", nil, apperr.Validation("invalid multipart form: %v", err)
	}

	var overrides []byte
	if values := form.Value["overrides"]; len(values) > 0 {
		overrides = []byte(values[0])
	}

	if files := form.File["file"]; len(files) > 0 {
		f, err := files[0].Open()
		if err != nil {
			return "", nil, apperr.Validation("failed to open uploaded file: %v", err)
		}
		defer f.Close()

		data, err := io.ReadAll(f)
		if err != nil {
			return "", nil, apperr.Validation("failed to read uploaded file: %v", err)
		}
		return lineimport.DecodeText(data), overrides, nil
	}

	if values := form.Value["csv"]; len(values) > 0 {
		return values[0], overrides, nil
	}
	if hasJSONValue(overrides) {
		return "", overrides, nil
	}
	return "", nil, apperr.Validation("no CSV file, csv text or overrides provided in form-data")
}

func hasJSONValue(raw []byte) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed != "" && trimmed != "null"
}
