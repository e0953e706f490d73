package logging

import (
	"os"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

var logger = logrus.New()

// Init configures the global logger.
// In production (ENVIRONMENT=production) it uses JSON output for log aggregation.
// Otherwise it uses the human-readable text formatter.
func Init() {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))

	logger.SetOutput(os.Stdout)
	if env == "production" {
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		logger.SetLevel(logrus.DebugLevel)
	}
}

// L returns the global logger
func L() *logrus.Logger {
	return logger
}

// WithImport returns a logger scoped to one CSV import run.
func WithImport(runID, patientName string) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"import_run": runID,
		"patient":    patientName,
	})
}

// WithRequest returns a logger carrying the request path and the signed-in user
func WithRequest(c *fiber.Ctx) *logrus.Entry {
	fields := logrus.Fields{
		"method": c.Method(),
		"path":   c.Path(),
	}
	if email, ok := c.Locals("user_email").(string); ok && email != "" {
		fields["user_email"] = email
	}
	return logger.WithFields(fields)
}
