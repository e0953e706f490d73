package models

// ImportMeta summarises one import run
type ImportMeta struct {
	Weeks    int `json:"weeks"`
	Messages int `json:"messages"`
	Ignored  int `json:"ignored"`
}

// UpsertResult reports how an imported patient was committed
type UpsertResult struct {
	Upserted  bool   `json:"upserted"`
	PatientID string `json:"patientId"`
	Appended  int    `json:"appended"`
}

// ImportResponse is the envelope returned by POST /api/import/line-csv
type ImportResponse struct {
	OK      bool          `json:"ok"`
	Meta    ImportMeta    `json:"meta"`
	Patient *Patient      `json:"patient"`
	Names   []string      `json:"names,omitempty"`
	Upsert  *UpsertResult `json:"upsert,omitempty"`
	Preview bool          `json:"preview"`
}

// OverrideRecord is one human-reviewed weekly record resubmitted from the preview UI
type OverrideRecord struct {
	VisitDate string   `json:"visitDate"`
	Symptoms  []string `json:"symptoms"`
	Syndromes []string `json:"syndromes"`
}

// ImportOverrides is the decoded overrides payload
type ImportOverrides struct {
	Name           string
	HistoryRecords []OverrideRecord
	HasRecords     bool
}
