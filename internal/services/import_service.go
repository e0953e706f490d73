package services

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	"tcmclinic/internal/apperr"
	"tcmclinic/internal/lineimport"
	"tcmclinic/internal/logging"
	"tcmclinic/internal/models"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// ImportRequest is one call to the LINE CSV import
type ImportRequest struct {
	CSV        string // empty when only overrides were submitted
	Overrides  *models.ImportOverrides
	Name       string
	ExternalID string
	Commit     bool
}

// ImportService turns a LINE chat export, or a reviewed set of weekly records,
// into a patient preview and optionally commits it.
type ImportService struct {
	pipeline *lineimport.Pipeline
	resolver *MergeResolver
	loc      *time.Location
	now      func() time.Time
}

// NewImportService creates the import orchestrator
func NewImportService(pipeline *lineimport.Pipeline, resolver *MergeResolver, loc *time.Location) *ImportService {
	if loc == nil {
		loc = time.Local
	}
	return &ImportService{pipeline: pipeline, resolver: resolver, loc: loc, now: time.Now}
}

// Run executes one import. Previews never touch storage.
func (s *ImportService) Run(ctx context.Context, req ImportRequest) (*models.ImportResponse, error) {
	started := time.Now()
	now := s.now()
	runID := uuid.NewString()

	var (
		records []models.HistoryRecord
		meta    models.ImportMeta
		names   []string
		mode    string
	)

	switch {
	case req.Overrides != nil && req.Overrides.HasRecords:
		mode = "override"
		var err error
		records, err = s.overrideRecords(req.Overrides.HistoryRecords, now)
		if err != nil {
			return nil, err
		}
		submitted := len(req.Overrides.HistoryRecords)
		meta = models.ImportMeta{Weeks: submitted, Messages: submitted}

	case req.CSV != "":
		mode = "csv"
		result, err := s.pipeline.Run(req.CSV, now)
		if err != nil {
			GetMetrics().RecordImport(mode, "error", 0, time.Since(started).Seconds())
			return nil, err
		}
		records = result.Records
		meta = models.ImportMeta{Weeks: result.Weeks, Messages: result.Messages, Ignored: result.Ignored}
		names = result.Names

	default:
		return nil, apperr.Validation("no CSV text or overrides to process")
	}

	overrideName := ""
	if req.Overrides != nil {
		overrideName = req.Overrides.Name
	}
	name := ResolvePatientName(overrideName, req.Name, names)

	patient := &models.Patient{
		Name:                name,
		ExternalMessagingID: strings.TrimSpace(req.ExternalID),
		HistoryRecords:      records,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if patient.HistoryRecords == nil {
		patient.HistoryRecords = []models.HistoryRecord{}
	}

	resp := &models.ImportResponse{
		OK:      true,
		Meta:    meta,
		Patient: patient,
		Names:   names,
		Preview: !req.Commit,
	}

	log := logging.WithImport(runID, name)
	if !req.Commit {
		log.Debugf("👀 Import preview: %d weeks, %d messages, %d ignored", meta.Weeks, meta.Messages, meta.Ignored)
		GetMetrics().RecordImport(mode, "preview", meta.Ignored, time.Since(started).Seconds())
		return resp, nil
	}

	key := MergeKey{ExternalID: patient.ExternalMessagingID, Name: name}
	upsert, err := s.resolver.Resolve(ctx, key, patient)
	if err != nil {
		log.WithError(err).Error("❌ Import commit failed")
		GetMetrics().RecordImport(mode, "error", meta.Ignored, time.Since(started).Seconds())
		return nil, err
	}
	resp.Upsert = upsert

	outcome := "merged"
	if upsert.Upserted {
		outcome = "inserted"
	}
	log.Infof("✅ Import committed (%s): patient=%s appended=%d weeks=%d", outcome, upsert.PatientID, upsert.Appended, meta.Weeks)
	GetMetrics().RecordImport(mode, outcome, meta.Ignored, time.Since(started).Seconds())

	return resp, nil
}

// overrideRecords converts reviewed records into history records. Dates may be
// plain days (2006-01-02, read in the clinic location) or RFC3339 timestamps.
// A date repeated in the list keeps its first entry.
func (s *ImportService) overrideRecords(in []models.OverrideRecord, now time.Time) ([]models.HistoryRecord, error) {
	out := make([]models.HistoryRecord, 0, len(in))
	seen := make(map[int64]struct{}, len(in))

	for i, r := range in {
		visit, err := parseVisitDate(r.VisitDate, s.loc)
		if err != nil {
			return nil, apperr.Validation("overrides.historyRecords[%d].visitDate %q is not a valid date", i, r.VisitDate)
		}
		if _, dup := seen[visit.UnixMilli()]; dup {
			continue
		}
		seen[visit.UnixMilli()] = struct{}{}

		out = append(out, models.HistoryRecord{
			VisitDate: visit,
			Symptoms:  lineimport.UniqueTerms(r.Symptoms),
			Syndromes: lineimport.UniqueTerms(r.Syndromes),
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	return out, nil
}

func parseVisitDate(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.ParseInLocation(lineimport.WeekKeyLayout, value, loc); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}

// ResolvePatientName picks the display name for an import: the override name,
// then the explicit name, then the names found in the export.
func ResolvePatientName(overrideName, nameParam string, inferred []string) string {
	if n := normalizeName(overrideName); n != "" {
		return n
	}
	if n := normalizeName(nameParam); n != "" {
		return n
	}

	var found []string
	for _, n := range inferred {
		if n = normalizeName(n); n != "" {
			found = append(found, n)
		}
	}
	switch len(found) {
	case 0:
		return models.UnknownPatientName
	case 1:
		return found[0]
	default:
		return strings.Join(found, ",")
	}
}

func normalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// ParseOverrides decodes the overrides JSON sent with an import.
// historyRecords, when present and not null, must be an array.
func ParseOverrides(raw []byte) (*models.ImportOverrides, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var envelope struct {
		Name           json.RawMessage `json:"name"`
		HistoryRecords json.RawMessage `json:"historyRecords"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, apperr.Validation("overrides is not valid JSON: %v", err)
	}

	overrides := &models.ImportOverrides{}

	// a non-string name is ignored
	var name string
	if len(envelope.Name) > 0 && json.Unmarshal(envelope.Name, &name) == nil {
		overrides.Name = name
	}

	records := bytes.TrimSpace(envelope.HistoryRecords)
	if len(records) == 0 || bytes.Equal(records, []byte("null")) {
		return overrides, nil
	}
	if records[0] != '[' {
		return nil, apperr.Validation("overrides.historyRecords must be an array")
	}
	if err := json.Unmarshal(records, &overrides.HistoryRecords); err != nil {
		return nil, apperr.Validation("overrides.historyRecords is malformed: %v", err)
	}
	overrides.HasRecords = true

	return overrides, nil
}
