package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"tcmclinic/internal/database"
	"tcmclinic/internal/logging"
	"tcmclinic/internal/models"
	"tcmclinic/internal/search"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// ErrSyncInProgress is returned when a LINE sync is started while another is running
var ErrSyncInProgress = errors.New("LINE user sync is already running")

// ProfileFetcher looks up LINE user profiles
type ProfileFetcher interface {
	GetProfile(ctx context.Context, userID string) (*models.LineUserProfile, error)
}

// LineSyncStore is the storage used by the LINE user sync
type LineSyncStore interface {
	// LineUserIDs returns the distinct user ids known to the LINE bot
	LineUserIDs(ctx context.Context) ([]string, error)
	// FindByDisplayName returns the first patient whose name contains displayName,
	// restricted to patients with (linked=true) or without a LINE user id
	FindByDisplayName(ctx context.Context, displayName string, linked bool) (*models.Patient, error)
	LinkLineUser(ctx context.Context, patientID primitive.ObjectID, lineUserID string, at time.Time) error
}

// LineSyncService links patients to LINE accounts by matching display names
type LineSyncService struct {
	store    LineSyncStore
	profiles ProfileFetcher
	running  sync.Mutex
	now      func() time.Time
}

// NewLineSyncService creates a LINE sync service
func NewLineSyncService(store LineSyncStore, profiles ProfileFetcher) *LineSyncService {
	return &LineSyncService{store: store, profiles: profiles, now: time.Now}
}

// Run performs one sync. Only one run executes at a time.
func (s *LineSyncService) Run(ctx context.Context) (*models.LineSyncReport, error) {
	if !s.running.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer s.running.Unlock()

	log := logging.L()
	log.Info("🔄 Fetching LINE user ids from the bot database...")

	userIDs, err := s.store.LineUserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list LINE users: %w", err)
	}

	report := &models.LineSyncReport{
		Results:       []models.LineSyncResult{},
		FailedUserIDs: []string{},
	}
	report.Stats.Total = len(userIDs)

	var profiles []*models.LineUserProfile
	for _, id := range userIDs {
		profile, err := s.profiles.GetProfile(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warnf("⚠️ Failed to fetch LINE profile %s: %v", id, err)
			report.FailedUserIDs = append(report.FailedUserIDs, id)
			continue
		}
		profiles = append(profiles, profile)
	}
	report.Stats.ProfilesRetrieved = len(profiles)
	report.Stats.ProfilesFailure = len(report.FailedUserIDs)

	for _, profile := range profiles {
		result := s.syncOne(ctx, profile)
		GetMetrics().RecordSync(result.Status)

		switch result.Status {
		case models.SyncStatusSynced:
			report.Stats.Synced++
		case models.SyncStatusAlreadySynced:
			report.Stats.AlreadySynced++
		case models.SyncStatusNoMatch:
			report.Stats.NoMatch++
		case models.SyncStatusError:
			report.Stats.Errors++
		}
		report.Results = append(report.Results, result)
	}

	log.Infof("✅ LINE sync finished: %d synced, %d already linked, %d unmatched, %d errors",
		report.Stats.Synced, report.Stats.AlreadySynced, report.Stats.NoMatch, report.Stats.Errors)
	return report, nil
}

func (s *LineSyncService) syncOne(ctx context.Context, profile *models.LineUserProfile) models.LineSyncResult {
	result := models.LineSyncResult{
		LineUserID:      profile.UserID,
		LineDisplayName: profile.DisplayName,
	}
	fail := func(err error) models.LineSyncResult {
		result.Status = models.SyncStatusError
		result.Error = err.Error()
		return result
	}

	if profile.DisplayName == "" {
		result.Status = models.SyncStatusNoMatch
		return result
	}

	patient, err := s.store.FindByDisplayName(ctx, profile.DisplayName, false)
	if err != nil {
		return fail(err)
	}
	if patient != nil {
		if err := s.store.LinkLineUser(ctx, patient.ID, profile.UserID, s.now()); err != nil {
			return fail(err)
		}
		id := patient.ID
		result.PatientID = &id
		result.PatientName = patient.Name
		result.Status = models.SyncStatusSynced
		logging.L().Infof("🔗 Linked %s ↔ %s", patient.Name, profile.DisplayName)
		return result
	}

	linked, err := s.store.FindByDisplayName(ctx, profile.DisplayName, true)
	if err != nil {
		return fail(err)
	}
	if linked != nil {
		result.Status = models.SyncStatusAlreadySynced
		result.ExistingLineUserID = linked.ExternalMessagingID
		return result
	}

	result.Status = models.SyncStatusNoMatch
	return result
}

// MongoLineSyncStore reads LINE user ids from the bot database and links patients
type MongoLineSyncStore struct {
	patients *mongo.Collection
	lineBot  *mongo.Collection
}

// NewMongoLineSyncStore creates the store over the clinic and LINE bot databases
func NewMongoLineSyncStore(clinicDB, lineBotDB *database.MongoDB) *MongoLineSyncStore {
	return &MongoLineSyncStore{
		patients: clinicDB.Collection(database.CollectionPatients),
		lineBot:  lineBotDB.Collection(database.CollectionLineBotPatients),
	}
}

// LineUserIDs returns the distinct non-empty userId values, sorted
func (s *MongoLineSyncStore) LineUserIDs(ctx context.Context) ([]string, error) {
	values, err := s.lineBot.Distinct(ctx, "userId", bson.M{})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(values))
	for _, v := range values {
		if id, ok := v.(string); ok && id != "" {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// FindByDisplayName matches displayName as an escaped, case-insensitive substring of the patient name
func (s *MongoLineSyncStore) FindByDisplayName(ctx context.Context, displayName string, linked bool) (*models.Patient, error) {
	filter := bson.M{
		"name":       search.ContainsPattern(displayName),
		"lineUserId": bson.M{"$exists": linked},
	}

	var patient models.Patient
	err := s.patients.FindOne(ctx, filter).Decode(&patient)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to match patient: %w", err)
	}
	return &patient, nil
}

// LinkLineUser sets the LINE user id on a patient that has none yet
func (s *MongoLineSyncStore) LinkLineUser(ctx context.Context, patientID primitive.ObjectID, lineUserID string, at time.Time) error {
	result, err := s.patients.UpdateOne(ctx,
		bson.M{"_id": patientID, "lineUserId": bson.M{"$exists": false}},
		bson.M{"$set": bson.M{"lineUserId": lineUserID, "lastSyncedAt": at}},
	)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("LINE user %s is already linked to another patient", lineUserID)
		}
		return fmt.Errorf("failed to link patient: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("patient %s was linked concurrently", patientID.Hex())
	}
	return nil
}
