package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UnknownPatientName is used when an import cannot resolve a display name
const UnknownPatientName = "Unknown"

// Patient is the root aggregate stored in the patients collection
type Patient struct {
	ID                  primitive.ObjectID `bson:"_id,omitempty" json:"_id,omitempty"`
	Name                string             `bson:"name" json:"name"`
	ExternalMessagingID string             `bson:"lineUserId,omitempty" json:"externalMessagingId,omitempty"` // LINE user id, primary merge key when present
	HistoryRecords      []HistoryRecord    `bson:"historyRecords" json:"historyRecords"`
	CreatedAt           time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt           time.Time          `bson:"updatedAt" json:"updatedAt"`
	LastSyncedAt        *time.Time         `bson:"lastSyncedAt,omitempty" json:"lastSyncedAt,omitempty"`
}

// HistoryRecord is one weekly TCM record owned by a patient
type HistoryRecord struct {
	VisitDate time.Time `bson:"visitDate" json:"visitDate"`
	Symptoms  []string  `bson:"symptoms" json:"symptoms"`
	Syndromes []string  `bson:"syndromes" json:"syndromes"`
	Notes     string    `bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// LatestRecordIndex returns the index of the record with the most recent visit date, or -1
func (p *Patient) LatestRecordIndex() int {
	latest := -1
	for i := range p.HistoryRecords {
		if latest == -1 || p.HistoryRecords[i].VisitDate.After(p.HistoryRecords[latest].VisitDate) {
			latest = i
		}
	}
	return latest
}

// CreatePatientRequest is the request body for POST /api/users
type CreatePatientRequest struct {
	Name                string          `json:"name"`
	ExternalMessagingID string          `json:"externalMessagingId,omitempty"`
	HistoryRecords      []HistoryRecord `json:"historyRecords,omitempty"`
}

// UpdateRecordRequest is the request body for PUT /api/users/:id/record
type UpdateRecordRequest struct {
	Symptoms  []string `json:"symptoms"`
	Syndromes []string `json:"syndromes"`
	Notes     string   `json:"notes,omitempty"`
}

// WeekRange is an inclusive date range used by the weekly records endpoints
type WeekRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}
