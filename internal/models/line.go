package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// LineUserProfile is the profile returned by the LINE Messaging API
type LineUserProfile struct {
	UserID        string `json:"userId"`
	DisplayName   string `json:"displayName"`
	PictureURL    string `json:"pictureUrl,omitempty"`
	StatusMessage string `json:"statusMessage,omitempty"`
	Language      string `json:"language,omitempty"`
}

// SendNotificationRequest is the request body for POST /api/notifications/send
type SendNotificationRequest struct {
	LineIDs    []string                 `json:"lineIds"`
	PodcastURL string                   `json:"podcastUrl"`
	Message    string                   `json:"message,omitempty"`
	Patients   []map[string]interface{} `json:"patients,omitempty"`
}

// PushError records a failed push to a single recipient
type PushError struct {
	UserID string `json:"userId"`
	Error  string `json:"error"`
}

// BatchPushResult aggregates the outcome of a batch push
type BatchPushResult struct {
	Success int         `json:"success"`
	Failed  int         `json:"failed"`
	Errors  []PushError `json:"errors"`
}

// Sync statuses reported per LINE user
const (
	SyncStatusSynced        = "synced"
	SyncStatusAlreadySynced = "already_synced"
	SyncStatusNoMatch       = "no_match"
	SyncStatusError         = "error"
)

// LineSyncResult is the per-user outcome of a LINE user sync
type LineSyncResult struct {
	PatientID          *primitive.ObjectID `json:"patientId,omitempty"`
	PatientName        string              `json:"patientName,omitempty"`
	LineUserID         string              `json:"lineUserId"`
	LineDisplayName    string              `json:"lineDisplayName"`
	Status             string              `json:"status"`
	ExistingLineUserID string              `json:"existingLineUserId,omitempty"`
	Error              string              `json:"error,omitempty"`
}

// LineSyncStats summarises a LINE user sync run
type LineSyncStats struct {
	Total             int `json:"total"`
	ProfilesRetrieved int `json:"profilesRetrieved"`
	ProfilesFailure   int `json:"profilesFailure"`
	Synced            int `json:"synced"`
	AlreadySynced     int `json:"alreadySynced"`
	NoMatch           int `json:"noMatch"`
	Errors            int `json:"errors"`
}

// LineSyncReport is returned by POST /api/sync/line-users
type LineSyncReport struct {
	Stats         LineSyncStats    `json:"stats"`
	Results       []LineSyncResult `json:"results"`
	FailedUserIDs []string         `json:"failedUserIds"`
}

// LinkPreview is the metadata returned by POST /api/link-preview
type LinkPreview struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Image       string `json:"image"`
	Favicon     string `json:"favicon"`
	Domain      string `json:"domain"`
}
