package preflight

import (
	"context"
	"fmt"
	"time"

	"tcmclinic/internal/config"
	"tcmclinic/internal/logging"
)

// Check statuses
const (
	StatusPass    = "pass"
	StatusFail    = "fail"
	StatusWarning = "warning"
)

// CheckResult represents the result of a preflight check
type CheckResult struct {
	Name    string
	Status  string
	Message string
	Error   error
}

// Pinger is a backing service that can be reached with a ping
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker performs pre-flight checks before the server starts listening
type Checker struct {
	cfg     *config.Config
	clinic  Pinger
	lineBot Pinger
	redis   Pinger // nil when REDIS_URL is unset
	timeout time.Duration
}

// NewChecker creates a preflight checker. redis may be nil.
func NewChecker(cfg *config.Config, clinic, lineBot, redis Pinger) *Checker {
	return &Checker{
		cfg:     cfg,
		clinic:  clinic,
		lineBot: lineBot,
		redis:   redis,
		timeout: 5 * time.Second,
	}
}

// RunAll runs every check and logs a summary
func (c *Checker) RunAll(ctx context.Context) []CheckResult {
	logging.L().Info("🔍 Running pre-flight checks...")

	results := []CheckResult{
		c.checkConfig(),
		c.checkPing(ctx, "Clinic Database", c.clinic, true),
		c.checkPing(ctx, "LINE Bot Database", c.lineBot, true),
		c.checkRedis(ctx),
		c.checkLineMessaging(),
		c.checkAllowList(),
	}

	var passed, failed, warnings int
	for _, result := range results {
		switch result.Status {
		case StatusPass:
			logging.L().Infof("   ✅ %s: %s", result.Name, result.Message)
			passed++
		case StatusFail:
			entry := logging.L().WithField("check", result.Name)
			if result.Error != nil {
				entry = entry.WithError(result.Error)
			}
			entry.Errorf("   ❌ %s: %s", result.Name, result.Message)
			failed++
		case StatusWarning:
			logging.L().Warnf("   ⚠️ %s: %s", result.Name, result.Message)
			warnings++
		}
	}

	logging.L().Infof("📊 Pre-flight summary: %d passed, %d failed, %d warnings", passed, failed, warnings)
	return results
}

// HasFailures returns true if any check failed
func HasFailures(results []CheckResult) bool {
	for _, result := range results {
		if result.Status == StatusFail {
			return true
		}
	}
	return false
}

func (c *Checker) checkConfig() CheckResult {
	if err := c.cfg.Validate(); err != nil {
		return CheckResult{
			Name:    "Configuration",
			Status:  StatusFail,
			Message: "Invalid configuration",
			Error:   err,
		}
	}
	return CheckResult{
		Name:    "Configuration",
		Status:  StatusPass,
		Message: fmt.Sprintf("Environment %s, clinic timezone %s", c.cfg.Environment, c.cfg.ClinicTimezone),
	}
}

func (c *Checker) checkPing(ctx context.Context, name string, p Pinger, required bool) CheckResult {
	if p == nil {
		status := StatusWarning
		if required {
			status = StatusFail
		}
		return CheckResult{Name: name, Status: status, Message: "Not configured"}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := p.Ping(ctx); err != nil {
		status := StatusWarning
		if required {
			status = StatusFail
		}
		return CheckResult{Name: name, Status: status, Message: "Ping failed", Error: err}
	}
	return CheckResult{Name: name, Status: StatusPass, Message: "Connection successful"}
}

// checkRedis warns rather than fails: merges fall back to an in-process lock
func (c *Checker) checkRedis(ctx context.Context) CheckResult {
	if c.redis == nil {
		return CheckResult{
			Name:    "Redis",
			Status:  StatusWarning,
			Message: "REDIS_URL not set, merge locking is local to this instance",
		}
	}
	return c.checkPing(ctx, "Redis", c.redis, false)
}

func (c *Checker) checkLineMessaging() CheckResult {
	if c.cfg.LineChannelAccessToken == "" {
		return CheckResult{
			Name:    "LINE Messaging",
			Status:  StatusWarning,
			Message: "LINE_CHANNEL_ACCESS_TOKEN not set, notifications and sync are disabled",
		}
	}
	return CheckResult{Name: "LINE Messaging", Status: StatusPass, Message: "Access token configured"}
}

func (c *Checker) checkAllowList() CheckResult {
	if len(c.cfg.AllowedEmails) == 0 && c.cfg.AllowedEmailsFile == "" {
		return CheckResult{
			Name:    "Allow List",
			Status:  StatusWarning,
			Message: "No ALLOWED_EMAILS or ALLOWED_EMAILS_FILE, nobody can sign in",
		}
	}
	return CheckResult{
		Name:    "Allow List",
		Status:  StatusPass,
		Message: fmt.Sprintf("%d static entries", len(c.cfg.AllowedEmails)),
	}
}
